package obs_test

import (
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/andreykaipov/goobs/api/events"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/normen/obs-panel/msg"
	"github.com/normen/obs-panel/obs"
	"github.com/normen/obs-panel/obs/obstest"
)

func newWorshipRemote() *obstest.Remote {
	remote := obstest.New("Worship", "Announcements")
	remote.AddSource("Worship", "Camera1", true)
	remote.AddSource("Worship", "Slides", false)
	remote.AddSource("Announcements", "Lower Third", true)
	return remote
}

func connectedClient(t *testing.T, remote *obstest.Remote, opts ...obs.Option) *obs.Client {
	t.Helper()
	opts = append([]obs.Option{obs.WithDialer(remote.Dialer())}, opts...)
	client := obs.NewClient("localhost:4455", "", opts...)
	client.Connect()
	require.True(t, client.Connected())
	t.Cleanup(func() { client.Close() })
	remote.ResetCalls()
	return client
}

type recordingObserver struct {
	mu    sync.Mutex
	calls []string
	errs  int
}

func (o *recordingObserver) ObserveCall(call string, took time.Duration, err error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.calls = append(o.calls, call)
	if err != nil {
		o.errs++
	}
}

func TestConnectFailureIsSwallowed(t *testing.T) {
	remote := newWorshipRemote()
	remote.FailWith("Connect", errors.New("dial tcp 127.0.0.1:4455: connection refused"))
	client := obs.NewClient("localhost:4455", "", obs.WithDialer(remote.Dialer()))

	client.Connect()

	assert.False(t, client.Connected())
	_, err := client.GetScenes()
	require.Error(t, err)
	assert.ErrorIs(t, err, obs.ErrNotConnected)
	assert.Empty(t, remote.Calls(), "no request may reach OBS without a connection")
}

func TestConnectKeepsOneConnection(t *testing.T) {
	remote := newWorshipRemote()
	dials := 0
	dial := func(host string, password string) (obs.Remote, error) {
		dials++
		assert.Equal(t, "localhost:4455", host)
		assert.Equal(t, "secret", password)
		return remote.Dialer()(host, password)
	}
	client := obs.NewClient("localhost:4455", "secret", obs.WithDialer(dial))
	defer client.Close()

	client.Connect()
	client.Connect()

	assert.Equal(t, 1, dials)
	assert.True(t, client.Connected())
}

func TestGetScenesAndSources(t *testing.T) {
	client := connectedClient(t, newWorshipRemote())

	scenes, err := client.GetScenes()
	require.NoError(t, err)
	require.Len(t, scenes, 2)
	assert.Equal(t, "Worship", scenes[0].Name)
	assert.Equal(t, "Announcements", scenes[1].Name)

	sources, err := client.GetSceneSources("Worship")
	require.NoError(t, err)
	assert.Equal(t, []obs.Source{
		{Name: "Camera1", ID: 1, Enabled: true},
		{Name: "Slides", ID: 2, Enabled: false},
	}, sources)
}

func TestSetSourceVisibilityResolvesByName(t *testing.T) {
	remote := newWorshipRemote()
	client := connectedClient(t, remote)

	require.NoError(t, client.SetSourceVisibility("Worship", "Slides", true))

	assert.Equal(t, []string{"GetSceneItemList", "SetSceneItemEnabled"}, remote.Calls())
	visible, err := client.GetSourceVisibility("Worship", "Slides")
	require.NoError(t, err)
	assert.True(t, visible)
}

func TestSourceNotFound(t *testing.T) {
	remote := newWorshipRemote()
	client := connectedClient(t, remote)

	err := client.SetSourceVisibility("Worship", "Lower Third", true)
	require.Error(t, err)
	assert.ErrorIs(t, err, obs.ErrSourceNotFound)
	assert.Equal(t, []string{"GetSceneItemList"}, remote.Calls(), "no mutation may be issued")

	remote.ResetCalls()
	_, err = client.GetSourceVisibility("Worship", "Lower Third")
	assert.ErrorIs(t, err, obs.ErrSourceNotFound)
	assert.Equal(t, []string{"GetSceneItemList"}, remote.Calls())
}

func TestToggleSourceTwiceRestoresFlag(t *testing.T) {
	client := connectedClient(t, newWorshipRemote())

	for _, name := range []string{"Camera1", "Slides"} {
		original, err := client.GetSourceVisibility("Worship", name)
		require.NoError(t, err)
		require.NoError(t, client.SetSourceVisibility("Worship", name, !original))
		require.NoError(t, client.SetSourceVisibility("Worship", name, original))
		visible, err := client.GetSourceVisibility("Worship", name)
		require.NoError(t, err)
		assert.Equal(t, original, visible, name)
	}
}

func TestStreamAndRecordAreIndependent(t *testing.T) {
	client := connectedClient(t, newWorshipRemote())

	require.NoError(t, client.StartStreaming())
	streaming, err := client.GetStreamingStatus()
	require.NoError(t, err)
	recording, err := client.GetRecordingStatus()
	require.NoError(t, err)
	assert.True(t, streaming)
	assert.False(t, recording)

	require.NoError(t, client.StartRecording())
	require.NoError(t, client.StopStreaming())
	streaming, _ = client.GetStreamingStatus()
	recording, _ = client.GetRecordingStatus()
	assert.False(t, streaming)
	assert.True(t, recording)

	require.NoError(t, client.StopRecording())
	recording, _ = client.GetRecordingStatus()
	assert.False(t, recording)
}

func TestRemoteRejectionIsWrapped(t *testing.T) {
	client := connectedClient(t, newWorshipRemote())

	err := client.StopStreaming()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "StopStream")

	err = client.SetCurrentScene("Does Not Exist")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "SetCurrentProgramScene")
}

func TestSetCurrentScene(t *testing.T) {
	remote := newWorshipRemote()
	client := connectedClient(t, remote)

	require.NoError(t, client.SetCurrentScene("Announcements"))
	assert.Equal(t, "Announcements", remote.CurrentScene())
	assert.Equal(t, []string{"SetCurrentProgramScene"}, remote.Calls())
}

func TestObserverSeesEveryCall(t *testing.T) {
	observer := &recordingObserver{}
	client := connectedClient(t, newWorshipRemote(), obs.WithObserver(observer))

	_, _ = client.GetScenes()
	_ = client.StopRecording()
	_ = client.SetSourceVisibility("Worship", "Camera1", false)

	observer.mu.Lock()
	defer observer.mu.Unlock()
	assert.Equal(t, []string{"GetSceneList", "StopRecord", "GetSceneItemList", "SetSceneItemEnabled"}, observer.calls)
	assert.Equal(t, 1, observer.errs)
}

func TestExitStartedDropsConnection(t *testing.T) {
	defer goleak.VerifyNone(t)
	remote := newWorshipRemote()
	client := obs.NewClient("localhost:4455", "", obs.WithDialer(remote.Dialer()))
	client.Connect()
	require.True(t, client.Connected())

	remote.Emit(&events.ExitStarted{})

	require.Eventually(t, func() bool { return !client.Connected() }, time.Second, 5*time.Millisecond)
	assert.True(t, remote.Disconnected())
	_, err := client.GetScenes()
	assert.ErrorIs(t, err, obs.ErrNotConnected)

	// a new mount dials again
	client.Connect()
	assert.True(t, client.Connected())
	require.NoError(t, client.Close())
}

func TestCloseErrorDropsConnection(t *testing.T) {
	defer goleak.VerifyNone(t)
	remote := newWorshipRemote()
	client := obs.NewClient("localhost:4455", "", obs.WithDialer(remote.Dialer()))
	client.Connect()

	remote.Emit(&websocket.CloseError{Code: websocket.CloseAbnormalClosure})

	require.Eventually(t, func() bool { return !client.Connected() }, time.Second, 5*time.Millisecond)
	require.NoError(t, client.Close())
}

func TestOutputEventsAreForwarded(t *testing.T) {
	defer goleak.VerifyNone(t)
	messages := make(chan interface{}, 16)
	remote := newWorshipRemote()
	client := obs.NewClient("localhost:4455", "", obs.WithDialer(remote.Dialer()), obs.WithMessages(messages))
	client.Connect()

	remote.Emit(&events.StreamStateChanged{OutputActive: true, OutputState: "OBS_WEBSOCKET_OUTPUT_STARTED"})
	remote.Emit(&events.CurrentProgramSceneChanged{SceneName: "Announcements"})

	var got []interface{}
	require.Eventually(t, func() bool {
		for {
			select {
			case m := <-messages:
				got = append(got, m)
			default:
				return len(got) >= 4
			}
		}
	}, time.Second, 5*time.Millisecond)
	assert.Equal(t, []interface{}{
		msg.ConnectionMessage{Connected: true},
		msg.SceneMessage{SceneName: "Worship"},
		msg.OutputStateMessage{Output: obs.StreamState, Active: true},
		msg.SceneMessage{SceneName: "Announcements"},
	}, got)

	state, ok := client.States().GetState(obs.StreamState)
	require.True(t, ok)
	assert.True(t, state.State)

	require.NoError(t, client.Close())
	assert.Equal(t, msg.ConnectionMessage{Connected: false}, <-messages)
	state, _ = client.States().GetState(obs.StreamState)
	assert.False(t, state.State)
}

func TestConnectAnnouncesProgramScene(t *testing.T) {
	defer goleak.VerifyNone(t)
	messages := make(chan interface{}, 16)
	remote := newWorshipRemote()
	require.NoError(t, remote.SetCurrentProgramScene("Announcements"))
	remote.ResetCalls()
	client := obs.NewClient("localhost:4455", "", obs.WithDialer(remote.Dialer()), obs.WithMessages(messages))

	client.Connect()

	assert.Contains(t, remote.Calls(), "GetCurrentProgramScene")
	assert.Equal(t, msg.ConnectionMessage{Connected: true}, <-messages)
	assert.Equal(t, msg.SceneMessage{SceneName: "Announcements"}, <-messages)
	require.NoError(t, client.Close())
	assert.Equal(t, msg.ConnectionMessage{Connected: false}, <-messages)
}

func TestConnectWithoutProgramSceneStillConnects(t *testing.T) {
	defer goleak.VerifyNone(t)
	messages := make(chan interface{}, 16)
	remote := newWorshipRemote()
	remote.FailWith("GetCurrentProgramScene", errors.New("GetCurrentProgramScene: request failed (500)"))
	client := obs.NewClient("localhost:4455", "", obs.WithDialer(remote.Dialer()), obs.WithMessages(messages))

	client.Connect()

	assert.True(t, client.Connected())
	assert.Equal(t, msg.ConnectionMessage{Connected: true}, <-messages)
	assert.Empty(t, messages, "no scene is announced when it is unknown")
	require.NoError(t, client.Close())
}

func TestCallsDoNotWaitForDial(t *testing.T) {
	defer goleak.VerifyNone(t)
	remote := newWorshipRemote()
	dialing := make(chan struct{})
	release := make(chan struct{})
	slowDial := func(host string, password string) (obs.Remote, error) {
		close(dialing)
		<-release
		return remote.Dialer()(host, password)
	}
	client := obs.NewClient("localhost:4455", "", obs.WithDialer(slowDial))

	connected := make(chan struct{})
	go func() {
		defer close(connected)
		client.Connect()
	}()
	<-dialing

	answered := make(chan error, 1)
	go func() {
		_, err := client.GetStreamingStatus()
		answered <- err
	}()
	select {
	case err := <-answered:
		assert.ErrorIs(t, err, obs.ErrNotConnected)
	case <-time.After(time.Second):
		t.Fatal("GetStreamingStatus waited for the dial")
	}
	assert.False(t, client.Connected())

	close(release)
	<-connected
	assert.True(t, client.Connected())
	require.NoError(t, client.Close())
}
