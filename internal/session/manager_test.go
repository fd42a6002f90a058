package session

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/ecolucci/parlo/internal/transcript"
)

func TestManagerCreateGet(t *testing.T) {
	m := NewManager(time.Minute)
	s := m.Create("travel")
	if s.ID == "" {
		t.Fatalf("session ID should not be empty")
	}
	if s.Topic != "travel" {
		t.Fatalf("topic = %q, want travel", s.Topic)
	}

	got, err := m.Get(s.ID)
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if got.ID != s.ID || got.Topic != "travel" {
		t.Fatalf("unexpected session: %+v", got)
	}
	if _, err := m.Get("missing"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("Get(missing) error = %v, want ErrNotFound", err)
	}
}

func TestManagerGetReturnsClone(t *testing.T) {
	m := NewManager(time.Minute)
	s := m.Create("")
	if _, err := m.AppendTurn(s.ID, transcript.Turn{Speaker: transcript.SpeakerUser, Text: "original", Timestamp: time.Now()}); err != nil {
		t.Fatalf("AppendTurn() error = %v", err)
	}

	got, err := m.Get(s.ID)
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	got.Turns[0].Text = "mutated"
	got.Topic = "hijacked"

	again, err := m.Get(s.ID)
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if again.Turns[0].Text != "original" || again.Topic != "" {
		t.Fatalf("manager state leaked through clone: %+v", again)
	}
}

func TestManagerSingleTurnInFlight(t *testing.T) {
	m := NewManager(time.Minute)
	s := m.Create("")

	if err := m.BeginTurn(s.ID, "turn-1"); err != nil {
		t.Fatalf("BeginTurn() error = %v", err)
	}
	if err := m.BeginTurn(s.ID, "turn-2"); !errors.Is(err, ErrTurnInFlight) {
		t.Fatalf("second BeginTurn() error = %v, want ErrTurnInFlight", err)
	}

	// Finishing with a stale id does not release the active turn.
	m.FinishTurn(s.ID, "turn-2")
	if err := m.BeginTurn(s.ID, "turn-3"); !errors.Is(err, ErrTurnInFlight) {
		t.Fatalf("BeginTurn() after stale finish error = %v, want ErrTurnInFlight", err)
	}

	m.FinishTurn(s.ID, "turn-1")
	if err := m.BeginTurn(s.ID, "turn-3"); err != nil {
		t.Fatalf("BeginTurn() after finish error = %v", err)
	}
}

func TestManagerAppendTurnOrder(t *testing.T) {
	m := NewManager(time.Minute)
	s := m.Create("")

	base := time.Date(2025, 6, 1, 10, 0, 0, 0, time.UTC)
	for i, text := range []string{"one", "two", "three"} {
		idx, err := m.AppendTurn(s.ID, transcript.Turn{
			Speaker:   transcript.SpeakerUser,
			Text:      text,
			Timestamp: base.Add(time.Duration(i) * time.Second),
		})
		if err != nil {
			t.Fatalf("AppendTurn(%q) error = %v", text, err)
		}
		if idx != i {
			t.Fatalf("AppendTurn(%q) index = %d, want %d", text, idx, i)
		}
	}

	got, err := m.Get(s.ID)
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	for i, want := range []string{"one", "two", "three"} {
		if got.Turns[i].Text != want {
			t.Fatalf("turn %d = %q, want %q", i, got.Turns[i].Text, want)
		}
	}
}

func TestManagerSetTurnAudioRef(t *testing.T) {
	m := NewManager(time.Minute)
	s := m.Create("")
	idx, err := m.AppendTurn(s.ID, transcript.Turn{Speaker: transcript.SpeakerAssistant, Text: "hi", Timestamp: time.Now()})
	if err != nil {
		t.Fatalf("AppendTurn() error = %v", err)
	}
	if err := m.SetTurnAudioRef(s.ID, idx, "audio/abc/turn.wav"); err != nil {
		t.Fatalf("SetTurnAudioRef() error = %v", err)
	}
	if err := m.SetTurnAudioRef(s.ID, 99, "x"); err == nil {
		t.Fatalf("out-of-range index should fail")
	}

	got, _ := m.Get(s.ID)
	if got.Turns[idx].AudioRef != "audio/abc/turn.wav" {
		t.Fatalf("audio ref = %q", got.Turns[idx].AudioRef)
	}
}

func TestManagerClearTurns(t *testing.T) {
	m := NewManager(time.Minute)
	s := m.Create("food")
	if _, err := m.AppendTurn(s.ID, transcript.Turn{Speaker: transcript.SpeakerUser, Text: "hi", Timestamp: time.Now()}); err != nil {
		t.Fatalf("AppendTurn() error = %v", err)
	}

	if err := m.ClearTurns(s.ID); err != nil {
		t.Fatalf("ClearTurns() error = %v", err)
	}
	got, _ := m.Get(s.ID)
	if len(got.Turns) != 0 {
		t.Fatalf("turns after clear = %d, want 0", len(got.Turns))
	}
	if got.Topic != "food" {
		t.Fatalf("topic lost on clear: %q", got.Topic)
	}

	if err := m.BeginTurn(s.ID, "turn-1"); err != nil {
		t.Fatalf("BeginTurn() error = %v", err)
	}
	if err := m.ClearTurns(s.ID); !errors.Is(err, ErrTurnInFlight) {
		t.Fatalf("ClearTurns() during a turn error = %v, want ErrTurnInFlight", err)
	}
}

func TestManagerDiscard(t *testing.T) {
	m := NewManager(time.Minute)
	s := m.Create("")
	got, err := m.Discard(s.ID)
	if err != nil {
		t.Fatalf("Discard() error = %v", err)
	}
	if got.ID != s.ID {
		t.Fatalf("discarded session id = %q", got.ID)
	}
	if _, err := m.Get(s.ID); !errors.Is(err, ErrNotFound) {
		t.Fatalf("Get() after discard error = %v, want ErrNotFound", err)
	}
	if m.ActiveCount() != 0 {
		t.Fatalf("ActiveCount() = %d, want 0", m.ActiveCount())
	}
}

func TestManagerJanitorExpiresInactive(t *testing.T) {
	m := NewManager(30 * time.Millisecond)
	s := m.Create("travel")
	if _, err := m.AppendTurn(s.ID, transcript.Turn{Speaker: transcript.SpeakerUser, Text: "hi", Timestamp: time.Now()}); err != nil {
		t.Fatalf("AppendTurn() error = %v", err)
	}

	expired := make(chan *transcript.Session, 1)
	m.SetExpireHook(func(sess *transcript.Session) {
		expired <- sess
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	m.StartJanitor(ctx, 10*time.Millisecond)

	select {
	case sess := <-expired:
		if sess.ID != s.ID || len(sess.Turns) != 1 {
			t.Fatalf("expired session = %+v", sess)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("janitor never expired the session")
	}
	if _, err := m.Get(s.ID); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expired session still present")
	}
}

func TestManagerJanitorSkipsActiveTurn(t *testing.T) {
	m := NewManager(30 * time.Millisecond)
	s := m.Create("")
	if err := m.BeginTurn(s.ID, "turn-1"); err != nil {
		t.Fatalf("BeginTurn() error = %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	m.StartJanitor(ctx, 10*time.Millisecond)

	time.Sleep(100 * time.Millisecond)
	if _, err := m.Get(s.ID); err != nil {
		t.Fatalf("session with an active turn was expired: %v", err)
	}
}
