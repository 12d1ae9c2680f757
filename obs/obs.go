package obs

import (
	"log/slog"
	"sync"
	"time"

	"github.com/andreykaipov/goobs/api/events"
	"github.com/gorilla/websocket"
	"github.com/pkg/errors"

	"github.com/normen/obs-panel/msg"
)

var (
	ErrNotConnected   = errors.New("not connected to OBS")
	ErrSourceNotFound = errors.New("source not found")
)

// Observer is told about every remote call the client issues.
type Observer interface {
	ObserveCall(call string, took time.Duration, err error)
}

// Client is the control client: one connection to OBS shared by every
// caller for the lifetime of the process.
type Client struct {
	host     string
	password string
	dial     Dialer
	log      *slog.Logger
	observer Observer
	out      chan<- interface{}
	states   *OutputStates

	// connecting serializes Connect and Close; mu only guards the fields
	// below and is never held across a request
	connecting sync.Mutex
	mu         sync.Mutex
	remote     Remote
	done       chan struct{}
	loop       sync.WaitGroup
}

type Option func(*Client)

func WithDialer(dial Dialer) Option {
	return func(c *Client) { c.dial = dial }
}

func WithLogger(log *slog.Logger) Option {
	return func(c *Client) { c.log = log }
}

func WithObserver(o Observer) Option {
	return func(c *Client) { c.observer = o }
}

// WithMessages sets the channel that receives msg.* notifications derived
// from OBS events. Sends never block.
func WithMessages(out chan<- interface{}) Option {
	return func(c *Client) { c.out = out }
}

func NewClient(host string, password string, opts ...Option) *Client {
	c := &Client{
		host:     host,
		password: password,
		dial:     DialGoobs,
		log:      slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	c.states = NewOutputStates(c.out)
	return c
}

// Connect opens the connection to OBS unless one is already open.
// A failure is logged and otherwise ignored: callers notice it through
// the errors of later calls. Calls made while dialing fail with
// ErrNotConnected instead of waiting for the dial.
func (c *Client) Connect() {
	c.connecting.Lock()
	defer c.connecting.Unlock()
	if c.Connected() {
		return
	}
	remote, err := c.dial(c.host, c.password)
	if err != nil {
		c.log.Error("failed to connect to OBS", "host", c.host, "error", err)
		return
	}
	if obsVersion, wsVersion, err := remote.Version(); err == nil {
		c.log.Info("connected to OBS", "host", c.host, "obs_version", obsVersion, "websocket_version", wsVersion)
	} else {
		c.log.Warn("connected to OBS, version unknown", "host", c.host, "error", err)
	}
	if active, err := remote.GetStreamStatus(); err == nil {
		c.states.SetState(StreamState, active)
	}
	if active, err := remote.GetRecordStatus(); err == nil {
		c.states.SetState(RecordState, active)
	}
	scene, err := remote.GetCurrentProgramScene()
	if err != nil {
		c.log.Warn("could not get current program scene", "error", err)
	}

	c.mu.Lock()
	c.remote = remote
	c.done = make(chan struct{})
	c.loop.Add(1)
	go c.runLoop(remote, c.done)
	c.mu.Unlock()

	send(c.out, msg.ConnectionMessage{Connected: true})
	if scene != "" {
		send(c.out, msg.SceneMessage{SceneName: scene})
	}
}

// Connected reports whether a connection is currently held.
func (c *Client) Connected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.remote != nil
}

// States returns the output states mirrored from OBS events.
func (c *Client) States() *OutputStates {
	return c.states
}

// Close disconnects from OBS and waits for the event loop to end.
func (c *Client) Close() error {
	c.connecting.Lock()
	defer c.connecting.Unlock()
	c.mu.Lock()
	remote, done := c.remote, c.done
	c.remote, c.done = nil, nil
	c.mu.Unlock()
	if remote == nil {
		c.loop.Wait()
		return nil
	}
	close(done)
	err := remote.Disconnect()
	c.loop.Wait()
	c.states.Clear()
	send(c.out, msg.ConnectionMessage{Connected: false})
	return err
}

func (c *Client) StartStreaming() error {
	return c.call("StartStream", func(r Remote) error { return r.StartStream() })
}

func (c *Client) StopStreaming() error {
	return c.call("StopStream", func(r Remote) error { return r.StopStream() })
}

func (c *Client) StartRecording() error {
	return c.call("StartRecord", func(r Remote) error { return r.StartRecord() })
}

func (c *Client) StopRecording() error {
	return c.call("StopRecord", func(r Remote) error { return r.StopRecord() })
}

func (c *Client) SetCurrentScene(name string) error {
	return c.call("SetCurrentProgramScene", func(r Remote) error { return r.SetCurrentProgramScene(name) })
}

// GetScenes lists all scenes in the order OBS reports them.
func (c *Client) GetScenes() ([]Scene, error) {
	var list []Scene
	err := c.call("GetSceneList", func(r Remote) (err error) {
		list, err = r.GetSceneList()
		return
	})
	return list, err
}

// GetSceneSources lists the scene items of a scene in the order OBS
// reports them.
func (c *Client) GetSceneSources(scene string) ([]Source, error) {
	var list []Source
	err := c.call("GetSceneItemList", func(r Remote) (err error) {
		list, err = r.GetSceneItemList(scene)
		return
	})
	return list, err
}

func (c *Client) SetSourceVisibility(scene string, source string, visible bool) error {
	id, err := c.sourceID(scene, source)
	if err != nil {
		return err
	}
	return c.call("SetSceneItemEnabled", func(r Remote) error { return r.SetSceneItemEnabled(scene, id, visible) })
}

func (c *Client) GetSourceVisibility(scene string, source string) (bool, error) {
	id, err := c.sourceID(scene, source)
	if err != nil {
		return false, err
	}
	var enabled bool
	err = c.call("GetSceneItemEnabled", func(r Remote) (err error) {
		enabled, err = r.GetSceneItemEnabled(scene, id)
		return
	})
	return enabled, err
}

func (c *Client) GetStreamingStatus() (bool, error) {
	var active bool
	err := c.call("GetStreamStatus", func(r Remote) (err error) {
		active, err = r.GetStreamStatus()
		return
	})
	return active, err
}

func (c *Client) GetRecordingStatus() (bool, error) {
	var active bool
	err := c.call("GetRecordStatus", func(r Remote) (err error) {
		active, err = r.GetRecordStatus()
		return
	})
	return active, err
}

// sourceID looks the scene item id of a source up by name. The protocol
// has no way to address a scene item by name, and ids are not cached.
func (c *Client) sourceID(scene string, source string) (int, error) {
	sources, err := c.GetSceneSources(scene)
	if err != nil {
		return 0, err
	}
	for _, s := range sources {
		if s.Name == source {
			return s.ID, nil
		}
	}
	return 0, errors.Wrapf(ErrSourceNotFound, "%q in scene %q", source, scene)
}

func (c *Client) call(name string, fn func(Remote) error) error {
	c.mu.Lock()
	remote := c.remote
	c.mu.Unlock()
	if remote == nil {
		err := errors.Wrap(ErrNotConnected, name)
		c.observe(name, 0, err)
		return err
	}
	started := time.Now()
	err := fn(remote)
	c.observe(name, time.Since(started), err)
	if err != nil {
		return errors.Wrap(err, name)
	}
	return nil
}

func (c *Client) observe(name string, took time.Duration, err error) {
	if c.observer != nil {
		c.observer.ObserveCall(name, took, err)
	}
}

// drops the connection after OBS went away, unless it was replaced already
func (c *Client) drop(remote Remote) {
	c.mu.Lock()
	if c.remote != remote {
		c.mu.Unlock()
		return
	}
	c.remote, c.done = nil, nil
	c.mu.Unlock()
	if err := remote.Disconnect(); err != nil {
		c.log.Debug("disconnect after connection loss", "error", err)
	}
	c.states.Clear()
	send(c.out, msg.ConnectionMessage{Connected: false})
}

// The runloop that watches the events of one connection
func (c *Client) runLoop(remote Remote, done chan struct{}) {
	defer c.loop.Done()
	incoming := remote.Events()
	for {
		select {
		case <-done:
			return
		case event, ok := <-incoming:
			if !ok {
				c.log.Warn("OBS event stream closed")
				c.drop(remote)
				return
			}
			if !c.processEvent(event) {
				c.drop(remote)
				return
			}
		}
	}
}

// processEvent logs an OBS event for the operator and reports whether the
// connection is still usable afterwards
func (c *Client) processEvent(event interface{}) bool {
	switch e := event.(type) {
	case *events.StreamStateChanged:
		c.log.Info("stream state changed", "active", e.OutputActive, "state", e.OutputState)
		c.states.SetState(StreamState, e.OutputActive)
	case *events.RecordStateChanged:
		c.log.Info("record state changed", "active", e.OutputActive, "state", e.OutputState)
		c.states.SetState(RecordState, e.OutputActive)
	case *events.CurrentProgramSceneChanged:
		c.log.Info("program scene changed", "scene", e.SceneName)
		send(c.out, msg.SceneMessage{SceneName: e.SceneName})
	case *events.SceneItemEnableStateChanged:
		c.log.Debug("scene item visibility changed", "scene", e.SceneName, "item", e.SceneItemId, "enabled", e.SceneItemEnabled)
	case *events.ExitStarted:
		c.log.Warn("OBS is shutting down")
		return false
	case *websocket.CloseError:
		c.log.Warn("OBS connection closed", "code", e.Code, "text", e.Text)
		return false
	default:
		//c.log.Debug("unhandled event", "event", e)
	}
	return true
}
