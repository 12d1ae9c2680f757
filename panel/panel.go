// Package panel holds the state of the control panel view and the user
// actions that change it.
package panel

import (
	"log/slog"
	"sync"

	"github.com/google/uuid"

	"github.com/normen/obs-panel/obs"
)

// Controller is the part of the OBS control client the panel drives.
type Controller interface {
	Connect()
	StartStreaming() error
	StopStreaming() error
	StartRecording() error
	StopRecording() error
	SetCurrentScene(name string) error
	GetScenes() ([]obs.Scene, error)
	GetSceneSources(scene string) ([]obs.Source, error)
	SetSourceVisibility(scene string, source string, visible bool) error
	GetSourceVisibility(scene string, source string) (bool, error)
	GetStreamingStatus() (bool, error)
	GetRecordingStatus() (bool, error)
}

// State is what the panel shows.
type State struct {
	Streaming    bool         `json:"streaming"`
	Recording    bool         `json:"recording"`
	Scenes       []obs.Scene  `json:"scenes"`
	CurrentScene string       `json:"currentScene"`
	Sources      []obs.Source `json:"sources"`
}

func (s State) clone() State {
	s.Scenes = append([]obs.Scene(nil), s.Scenes...)
	s.Sources = append([]obs.Source(nil), s.Sources...)
	return s
}

// Panel is the view state machine. Actions may run concurrently: the lock
// only guards the state and is never held during a remote call, so the
// last action to write wins.
type Panel struct {
	obs Controller
	log *slog.Logger

	mu    sync.Mutex
	state State
}

func New(controller Controller, log *slog.Logger) *Panel {
	if log == nil {
		log = slog.Default()
	}
	return &Panel{
		obs: controller,
		log: log,
	}
}

// Snapshot returns a copy of the current state.
func (p *Panel) Snapshot() State {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.state.clone()
}

func (p *Panel) update(fn func(s *State)) {
	p.mu.Lock()
	defer p.mu.Unlock()
	fn(&p.state)
}

func (p *Panel) interaction(action string) *slog.Logger {
	return p.log.With("action", action, "interaction", uuid.NewString())
}

// Mount starts the panel from scratch: connect, then load the scene list,
// the sources of the first scene and both output states. Loading stops at
// the first failure.
func (p *Panel) Mount() {
	log := p.interaction("mount")
	p.update(func(s *State) { *s = State{} })
	p.obs.Connect()

	scenes, err := p.obs.GetScenes()
	if err != nil {
		log.Error("loading scenes failed", "error", err)
		return
	}
	p.update(func(s *State) { s.Scenes = scenes })

	if len(scenes) > 0 && scenes[0].Name != "" {
		first := scenes[0].Name
		sources, err := p.obs.GetSceneSources(first)
		if err != nil {
			log.Error("loading sources failed", "scene", first, "error", err)
			return
		}
		p.update(func(s *State) {
			s.CurrentScene = first
			s.Sources = sources
		})
	}

	streaming, err := p.obs.GetStreamingStatus()
	if err != nil {
		log.Error("loading streaming status failed", "error", err)
		return
	}
	p.update(func(s *State) { s.Streaming = streaming })

	recording, err := p.obs.GetRecordingStatus()
	if err != nil {
		log.Error("loading recording status failed", "error", err)
		return
	}
	p.update(func(s *State) { s.Recording = recording })
	log.Debug("panel ready", "scenes", len(scenes), "streaming", streaming, "recording", recording)
}

// ToggleStream stops or starts streaming depending on the shown state and
// flips it without asking OBS again.
func (p *Panel) ToggleStream() {
	log := p.interaction("stream")
	streaming := p.Snapshot().Streaming
	var err error
	if streaming {
		err = p.obs.StopStreaming()
	} else {
		err = p.obs.StartStreaming()
	}
	if err != nil {
		log.Error("streaming error", "streaming", streaming, "error", err)
		return
	}
	p.update(func(s *State) { s.Streaming = !streaming })
}

// ToggleRecord does for recording what ToggleStream does for streaming.
func (p *Panel) ToggleRecord() {
	log := p.interaction("record")
	recording := p.Snapshot().Recording
	var err error
	if recording {
		err = p.obs.StopRecording()
	} else {
		err = p.obs.StartRecording()
	}
	if err != nil {
		log.Error("recording error", "recording", recording, "error", err)
		return
	}
	p.update(func(s *State) { s.Recording = !recording })
}

// SelectScene switches the program scene and replaces the source list with
// the sources of the new scene. Scene and sources change together or not
// at all.
func (p *Panel) SelectScene(name string) {
	log := p.interaction("scene")
	if err := p.obs.SetCurrentScene(name); err != nil {
		log.Error("scene change error", "scene", name, "error", err)
		return
	}
	sources, err := p.obs.GetSceneSources(name)
	if err != nil {
		log.Error("scene change error", "scene", name, "error", err)
		return
	}
	p.update(func(s *State) {
		s.CurrentScene = name
		s.Sources = sources
	})
}

// ToggleSource asks OBS for the current visibility of a source in the
// shown scene, sets the inverse and reloads the scene's sources.
func (p *Panel) ToggleSource(name string) {
	log := p.interaction("source")
	scene := p.Snapshot().CurrentScene
	visible, err := p.obs.GetSourceVisibility(scene, name)
	if err != nil {
		log.Error("source visibility toggle error", "scene", scene, "source", name, "error", err)
		return
	}
	if err := p.obs.SetSourceVisibility(scene, name, !visible); err != nil {
		log.Error("source visibility toggle error", "scene", scene, "source", name, "error", err)
		return
	}
	sources, err := p.obs.GetSceneSources(scene)
	if err != nil {
		log.Error("source visibility toggle error", "scene", scene, "source", name, "error", err)
		return
	}
	p.update(func(s *State) { s.Sources = sources })
}
