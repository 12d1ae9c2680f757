// Package obstest provides an in-memory OBS for tests.
package obstest

import (
	"fmt"
	"sync"

	"github.com/normen/obs-panel/obs"
)

// Remote is an in-memory obs.Remote that behaves like a small OBS
// instance and records every request it receives.
type Remote struct {
	mu           sync.Mutex
	scenes       []string
	items        map[string][]obs.Source
	current      string
	streaming    bool
	recording    bool
	nextID       int
	calls        []string
	failures     map[string]error
	events       chan interface{}
	disconnected bool
}

// New creates a Remote with the given scenes, the first one being current.
func New(scenes ...string) *Remote {
	r := &Remote{
		scenes:   scenes,
		items:    make(map[string][]obs.Source),
		failures: make(map[string]error),
		events:   make(chan interface{}, 16),
		nextID:   1,
	}
	if len(scenes) > 0 {
		r.current = scenes[0]
	}
	return r
}

// AddSource places a source in a scene and returns its scene item id.
func (r *Remote) AddSource(scene string, name string, enabled bool) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	id := r.nextID
	r.nextID++
	r.items[scene] = append(r.items[scene], obs.Source{Name: name, ID: id, Enabled: enabled})
	return id
}

// Dialer returns an obs.Dialer that hands out this Remote.
func (r *Remote) Dialer() obs.Dialer {
	return func(host string, password string) (obs.Remote, error) {
		r.mu.Lock()
		defer r.mu.Unlock()
		if err := r.failures["Connect"]; err != nil {
			return nil, err
		}
		r.disconnected = false
		r.events = make(chan interface{}, 16)
		return r, nil
	}
}

// FailWith makes every following request of the given type fail with err.
// "Connect" makes dialing fail. A nil err clears the failure.
func (r *Remote) FailWith(request string, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err == nil {
		delete(r.failures, request)
		return
	}
	r.failures[request] = err
}

// Calls returns the request types received so far.
func (r *Remote) Calls() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.calls...)
}

func (r *Remote) ResetCalls() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls = nil
}

// Emit delivers an event as if OBS had sent it.
func (r *Remote) Emit(event interface{}) {
	r.mu.Lock()
	events := r.events
	r.mu.Unlock()
	events <- event
}

func (r *Remote) Streaming() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.streaming
}

func (r *Remote) Recording() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.recording
}

func (r *Remote) CurrentScene() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.current
}

func (r *Remote) Disconnected() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.disconnected
}

// request records a request and returns the configured failure, if any.
// Must be called with r.mu held.
func (r *Remote) request(name string) error {
	r.calls = append(r.calls, name)
	if r.disconnected {
		return fmt.Errorf("%s: connection closed", name)
	}
	return r.failures[name]
}

func (r *Remote) Version() (string, string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.request("GetVersion"); err != nil {
		return "", "", err
	}
	return "30.0.0", "5.4.0", nil
}

func (r *Remote) setOutput(name string, output *bool, active bool) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.request(name); err != nil {
		return err
	}
	if *output == active {
		return fmt.Errorf("%s: output already in requested state (500)", name)
	}
	*output = active
	return nil
}

func (r *Remote) StartStream() error { return r.setOutput("StartStream", &r.streaming, true) }
func (r *Remote) StopStream() error  { return r.setOutput("StopStream", &r.streaming, false) }
func (r *Remote) StartRecord() error { return r.setOutput("StartRecord", &r.recording, true) }
func (r *Remote) StopRecord() error  { return r.setOutput("StopRecord", &r.recording, false) }

func (r *Remote) SetCurrentProgramScene(name string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.request("SetCurrentProgramScene"); err != nil {
		return err
	}
	if !r.hasScene(name) {
		return fmt.Errorf("SetCurrentProgramScene: no source was found by the name of %q (600)", name)
	}
	r.current = name
	return nil
}

func (r *Remote) GetCurrentProgramScene() (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.request("GetCurrentProgramScene"); err != nil {
		return "", err
	}
	return r.current, nil
}

func (r *Remote) GetSceneList() ([]obs.Scene, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.request("GetSceneList"); err != nil {
		return nil, err
	}
	list := make([]obs.Scene, 0, len(r.scenes))
	for i, name := range r.scenes {
		list = append(list, obs.Scene{Name: name, Index: i})
	}
	return list, nil
}

func (r *Remote) GetSceneItemList(scene string) ([]obs.Source, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.request("GetSceneItemList"); err != nil {
		return nil, err
	}
	if !r.hasScene(scene) {
		return nil, fmt.Errorf("GetSceneItemList: no source was found by the name of %q (600)", scene)
	}
	return append([]obs.Source{}, r.items[scene]...), nil
}

func (r *Remote) SetSceneItemEnabled(scene string, id int, enabled bool) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.request("SetSceneItemEnabled"); err != nil {
		return err
	}
	item := r.item(scene, id)
	if item == nil {
		return fmt.Errorf("SetSceneItemEnabled: no scene items were found in scene %q with the id %d (600)", scene, id)
	}
	item.Enabled = enabled
	return nil
}

func (r *Remote) GetSceneItemEnabled(scene string, id int) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.request("GetSceneItemEnabled"); err != nil {
		return false, err
	}
	item := r.item(scene, id)
	if item == nil {
		return false, fmt.Errorf("GetSceneItemEnabled: no scene items were found in scene %q with the id %d (600)", scene, id)
	}
	return item.Enabled, nil
}

func (r *Remote) GetStreamStatus() (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.request("GetStreamStatus"); err != nil {
		return false, err
	}
	return r.streaming, nil
}

func (r *Remote) GetRecordStatus() (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.request("GetRecordStatus"); err != nil {
		return false, err
	}
	return r.recording, nil
}

func (r *Remote) Events() <-chan interface{} {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.events
}

func (r *Remote) Disconnect() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.disconnected {
		r.disconnected = true
		close(r.events)
	}
	return nil
}

func (r *Remote) hasScene(name string) bool {
	for _, s := range r.scenes {
		if s == name {
			return true
		}
	}
	return false
}

func (r *Remote) item(scene string, id int) *obs.Source {
	items := r.items[scene]
	for i := range items {
		if items[i].ID == id {
			return &items[i]
		}
	}
	return nil
}
