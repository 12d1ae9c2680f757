package obs

import (
	"sort"
	"sync"

	"github.com/normen/obs-panel/msg"
)

const (
	StreamState = "StreamState"
	RecordState = "RecordState"
)

type OutputState struct {
	StateName string
	State     bool
}

// OutputStates mirrors the output states reported by OBS events and
// forwards every change as a msg.OutputStateMessage.
type OutputStates struct {
	mu     sync.Mutex
	states map[string]*OutputState
	out    chan<- interface{}
}

func NewOutputStates(out chan<- interface{}) *OutputStates {
	return &OutputStates{
		states: map[string]*OutputState{
			StreamState: {StateName: StreamState},
			RecordState: {StateName: RecordState},
		},
		out: out,
	}
}

func (s *OutputStates) SetState(name string, state bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if st, ok := s.states[name]; ok {
		if st.State != state {
			st.State = state
			send(s.out, msg.OutputStateMessage{
				Output: st.StateName,
				Active: st.State,
			})
		}
	}
}

func (s *OutputStates) GetState(name string) (OutputState, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if st, ok := s.states[name]; ok {
		return *st, true
	}
	return OutputState{}, false
}

// SendAll re-announces every state, sorted by name.
func (s *OutputStates) SendAll() {
	s.mu.Lock()
	defer s.mu.Unlock()
	names := make([]string, 0, len(s.states))
	for name := range s.states {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		st := s.states[name]
		send(s.out, msg.OutputStateMessage{
			Output: st.StateName,
			Active: st.State,
		})
	}
}

// Clear marks every output inactive, used when the connection goes away.
func (s *OutputStates) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, st := range s.states {
		st.State = false
	}
}

// send never blocks: listeners that fall behind miss updates
func send(out chan<- interface{}, message interface{}) {
	if out == nil {
		return
	}
	select {
	case out <- message:
	default:
	}
}
