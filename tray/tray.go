// Package tray shows the panel in the system tray.
package tray

import (
	"log/slog"

	"github.com/getlantern/systray"
	"github.com/skratchdot/open-golang/open"

	"github.com/normen/obs-panel/msg"
	"github.com/normen/obs-panel/obs"
)

type titled interface {
	SetTitle(title string)
}

type Tray struct {
	url        string
	configPath string
	messages   <-chan interface{}
	log        *slog.Logger
	open       func(string) error

	connection titled
	stream     titled
	record     titled
	scene      titled
	done       chan struct{}
}

// New creates a tray that opens url and configPath from its menu and shows
// the msg.* notifications read from messages.
func New(url string, configPath string, messages <-chan interface{}, log *slog.Logger) *Tray {
	if log == nil {
		log = slog.Default()
	}
	return &Tray{
		url:        url,
		configPath: configPath,
		messages:   messages,
		log:        log,
		open:       open.Run,
		done:       make(chan struct{}),
	}
}

// Run blocks until the tray quits and then calls onExit. It must be called
// from the main goroutine.
func (t *Tray) Run(onExit func()) {
	systray.Run(t.onReady, func() {
		close(t.done)
		if onExit != nil {
			onExit()
		}
	})
}

func (t *Tray) Quit() {
	systray.Quit()
}

// OpenPanel opens the control panel in the default browser.
func (t *Tray) OpenPanel() {
	if err := t.open(t.url); err != nil {
		t.log.Error("could not open browser", "url", t.url, "error", err)
	}
}

func (t *Tray) onReady() {
	systray.SetTitle("OBS Panel")
	systray.SetTooltip("OBS control panel at " + t.url)
	mOpen := systray.AddMenuItem("Open Control Panel", "Open the control panel in the browser")
	mConfig := systray.AddMenuItem("Open Config File", "Edit the config file")
	systray.AddSeparator()
	mConnection := systray.AddMenuItem(connectionTitle(false), "")
	mConnection.Disable()
	mStream := systray.AddMenuItem(outputTitle(obs.StreamState, false), "")
	mStream.Disable()
	mRecord := systray.AddMenuItem(outputTitle(obs.RecordState, false), "")
	mRecord.Disable()
	mScene := systray.AddMenuItem(sceneTitle(""), "")
	mScene.Disable()
	systray.AddSeparator()
	mQuit := systray.AddMenuItem("Quit", "Stop the control panel")

	t.connection, t.stream, t.record, t.scene = mConnection, mStream, mRecord, mScene

	go func() {
		for {
			select {
			case <-mOpen.ClickedCh:
				t.OpenPanel()
			case <-mConfig.ClickedCh:
				if err := t.open(t.configPath); err != nil {
					t.log.Error("could not open config file", "path", t.configPath, "error", err)
				}
			case <-mQuit.ClickedCh:
				systray.Quit()
				return
			case message, ok := <-t.messages:
				if !ok {
					t.messages = nil
					continue
				}
				t.handle(message)
			case <-t.done:
				return
			}
		}
	}()
}

func (t *Tray) handle(message interface{}) {
	switch m := message.(type) {
	case msg.ConnectionMessage:
		t.connection.SetTitle(connectionTitle(m.Connected))
		if !m.Connected {
			t.stream.SetTitle(outputTitle(obs.StreamState, false))
			t.record.SetTitle(outputTitle(obs.RecordState, false))
			t.scene.SetTitle(sceneTitle(""))
		}
	case msg.OutputStateMessage:
		switch m.Output {
		case obs.StreamState:
			t.stream.SetTitle(outputTitle(m.Output, m.Active))
		case obs.RecordState:
			t.record.SetTitle(outputTitle(m.Output, m.Active))
		}
	case msg.SceneMessage:
		t.scene.SetTitle(sceneTitle(m.SceneName))
	default:
		t.log.Debug("unhandled message", "message", m)
	}
}

func connectionTitle(connected bool) string {
	if connected {
		return "OBS: connected"
	}
	return "OBS: not connected"
}

func outputTitle(output string, active bool) string {
	name := "Recording"
	if output == obs.StreamState {
		name = "Streaming"
	}
	if active {
		return name + ": on"
	}
	return name + ": off"
}

func sceneTitle(scene string) string {
	if scene == "" {
		return "Scene: -"
	}
	return "Scene: " + scene
}
