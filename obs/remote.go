package obs

import (
	"sync"

	"github.com/andreykaipov/goobs"
	"github.com/andreykaipov/goobs/api/events/subscriptions"
	"github.com/andreykaipov/goobs/api/requests/sceneitems"
	"github.com/andreykaipov/goobs/api/requests/scenes"
)

// Scene is a scene as listed by OBS.
type Scene struct {
	Name  string `json:"sceneName"`
	Index int    `json:"sceneIndex"`
}

// Source is a scene item: a source placed in a scene.
type Source struct {
	Name    string `json:"sourceName"`
	ID      int    `json:"sceneItemId"`
	Enabled bool   `json:"sceneItemEnabled"`
}

// Remote is the request/response surface of the OBS control protocol used
// by the panel. Each method maps to exactly one request.
type Remote interface {
	Version() (obsVersion string, websocketVersion string, err error)
	StartStream() error
	StopStream() error
	StartRecord() error
	StopRecord() error
	SetCurrentProgramScene(name string) error
	GetCurrentProgramScene() (string, error)
	GetSceneList() ([]Scene, error)
	GetSceneItemList(scene string) ([]Source, error)
	SetSceneItemEnabled(scene string, id int, enabled bool) error
	GetSceneItemEnabled(scene string, id int) (bool, error)
	GetStreamStatus() (bool, error)
	GetRecordStatus() (bool, error)
	// Events delivers goobs events until the connection ends.
	Events() <-chan interface{}
	Disconnect() error
}

// Dialer opens a Remote to the given host.
type Dialer func(host string, password string) (Remote, error)

// goobsRemote serializes requests on the goobs connection
type goobsRemote struct {
	mu     sync.Mutex
	client *goobs.Client
}

// DialGoobs connects to obs-websocket with goobs.
func DialGoobs(host string, password string) (Remote, error) {
	client, err := goobs.New(host,
		goobs.WithPassword(password),
		goobs.WithEventSubscriptions(subscriptions.General|subscriptions.Scenes|subscriptions.SceneItems|subscriptions.Outputs))
	if err != nil {
		return nil, err
	}
	return &goobsRemote{client: client}, nil
}

func (r *goobsRemote) Version() (string, string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	version, err := r.client.General.GetVersion()
	if err != nil {
		return "", "", err
	}
	return version.ObsVersion, version.ObsWebSocketVersion, nil
}

func (r *goobsRemote) StartStream() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, err := r.client.Stream.StartStream()
	return err
}

func (r *goobsRemote) StopStream() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, err := r.client.Stream.StopStream()
	return err
}

func (r *goobsRemote) StartRecord() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, err := r.client.Record.StartRecord()
	return err
}

func (r *goobsRemote) StopRecord() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, err := r.client.Record.StopRecord()
	return err
}

func (r *goobsRemote) SetCurrentProgramScene(name string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, err := r.client.Scenes.SetCurrentProgramScene(scenes.NewSetCurrentProgramSceneParams().WithSceneName(name))
	return err
}

func (r *goobsRemote) GetCurrentProgramScene() (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	resp, err := r.client.Scenes.GetCurrentProgramScene()
	if err != nil {
		return "", err
	}
	if resp.SceneName != "" {
		return resp.SceneName, nil
	}
	return resp.CurrentProgramSceneName, nil
}

func (r *goobsRemote) GetSceneList() ([]Scene, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	resp, err := r.client.Scenes.GetSceneList()
	if err != nil {
		return nil, err
	}
	list := make([]Scene, 0, len(resp.Scenes))
	for _, v := range resp.Scenes {
		list = append(list, Scene{
			Name:  v.SceneName,
			Index: int(v.SceneIndex),
		})
	}
	return list, nil
}

func (r *goobsRemote) GetSceneItemList(scene string) ([]Source, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	resp, err := r.client.SceneItems.GetSceneItemList(sceneitems.NewGetSceneItemListParams().WithSceneName(scene))
	if err != nil {
		return nil, err
	}
	list := make([]Source, 0, len(resp.SceneItems))
	for _, item := range resp.SceneItems {
		list = append(list, Source{
			Name:    item.SourceName,
			ID:      item.SceneItemID,
			Enabled: item.SceneItemEnabled,
		})
	}
	return list, nil
}

func (r *goobsRemote) SetSceneItemEnabled(scene string, id int, enabled bool) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, err := r.client.SceneItems.SetSceneItemEnabled(sceneitems.NewSetSceneItemEnabledParams().
		WithSceneName(scene).
		WithSceneItemId(id).
		WithSceneItemEnabled(enabled))
	return err
}

func (r *goobsRemote) GetSceneItemEnabled(scene string, id int) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	resp, err := r.client.SceneItems.GetSceneItemEnabled(sceneitems.NewGetSceneItemEnabledParams().
		WithSceneName(scene).
		WithSceneItemId(id))
	if err != nil {
		return false, err
	}
	return resp.SceneItemEnabled, nil
}

func (r *goobsRemote) GetStreamStatus() (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	resp, err := r.client.Stream.GetStreamStatus()
	if err != nil {
		return false, err
	}
	return resp.OutputActive, nil
}

func (r *goobsRemote) GetRecordStatus() (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	resp, err := r.client.Record.GetRecordStatus()
	if err != nil {
		return false, err
	}
	return resp.OutputActive, nil
}

func (r *goobsRemote) Events() <-chan interface{} {
	return r.client.IncomingEvents
}

func (r *goobsRemote) Disconnect() error {
	return r.client.Disconnect()
}
