package pipeline

import (
	"time"

	"github.com/ecolucci/parlo/internal/transcript"
)

// State is the position of the current turn in the pipeline.
type State string

const (
	StateIdle          State = "idle"
	StateCapturing     State = "capturing"
	StateTranscribing  State = "transcribing"
	StateAwaitingReply State = "awaiting_reply"
	StateSynthesizing  State = "synthesizing"
	StateComplete      State = "complete"
	StateErrored       State = "errored"
)

// Event is emitted on every state change of a turn. Completion events carry
// the turns produced by the exchange.
type Event struct {
	SessionID     string           `json:"session_id"`
	TurnID        string           `json:"turn_id"`
	State         State            `json:"state"`
	UserTurn      *transcript.Turn `json:"user_turn,omitempty"`
	AssistantTurn *transcript.Turn `json:"assistant_turn,omitempty"`
	ErrorKind     string           `json:"error_kind,omitempty"`
	Detail        string           `json:"detail,omitempty"`
	Timestamp     time.Time        `json:"timestamp"`
}

// Subscribe registers a listener for one session's turn events. The returned
// cancel func must be called to release the subscription.
func (r *Runner) Subscribe(sessionID string) (<-chan Event, func()) {
	ch := make(chan Event, 64)

	r.subMu.Lock()
	id := r.nextSubID
	r.nextSubID++
	if r.subs[sessionID] == nil {
		r.subs[sessionID] = make(map[int]chan Event)
	}
	r.subs[sessionID][id] = ch
	r.subMu.Unlock()

	cancel := func() {
		r.subMu.Lock()
		if m := r.subs[sessionID]; m != nil {
			if _, ok := m[id]; ok {
				delete(m, id)
				close(ch)
			}
			if len(m) == 0 {
				delete(r.subs, sessionID)
			}
		}
		r.subMu.Unlock()
	}
	return ch, cancel
}

func (r *Runner) emit(ev Event) {
	ev.Timestamp = time.Now().UTC()

	r.subMu.RLock()
	defer r.subMu.RUnlock()
	for _, ch := range r.subs[ev.SessionID] {
		select {
		case ch <- ev:
		default:
			// Slow listeners miss events rather than stalling the turn.
		}
	}
}
