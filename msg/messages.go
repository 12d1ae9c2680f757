package msg

// sent by obs to the tray

// OutputStateMessage reports a change of the streaming or recording output.
type OutputStateMessage struct {
	Output string
	Active bool
}

type SceneMessage struct {
	SceneName string
}

type ConnectionMessage struct {
	Connected bool
}
