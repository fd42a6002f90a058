package transcript

import (
	"math"
	"strings"
	"time"
)

type Speaker string

const (
	SpeakerUser      Speaker = "user"
	SpeakerAssistant Speaker = "assistant"
)

// Valid reports whether s is one of the recognized speaker values.
func (s Speaker) Valid() bool {
	return s == SpeakerUser || s == SpeakerAssistant
}

// Turn is one utterance in a conversation.
type Turn struct {
	Speaker   Speaker   `json:"speaker"`
	Text      string    `json:"text"`
	Timestamp time.Time `json:"timestamp"`
	// AudioRef points at the recorded or synthesized audio for this turn,
	// when any exists. The file is owned by the session and is not required
	// to survive a save/load round trip.
	AudioRef string `json:"audio_ref,omitempty"`
}

// Session is one continuous conversation.
type Session struct {
	ID        string    `json:"id"`
	Topic     string    `json:"topic"`
	CreatedAt time.Time `json:"created_at"`
	Turns     []Turn    `json:"turns"`
}

// Stats are derived from a session's turns; computing them has no side effects.
type Stats struct {
	MessageCount  int           `json:"message_count"`
	Duration      time.Duration `json:"duration"`
	TokenEstimate int           `json:"token_estimate"`
}

// ComputeStats derives message count, elapsed duration and an approximate
// token count. Duration is last turn timestamp minus first; the token estimate
// is a deterministic word-based heuristic, not a provider count.
func ComputeStats(s *Session) Stats {
	st := Stats{MessageCount: len(s.Turns)}
	if len(s.Turns) == 0 {
		return st
	}
	st.Duration = s.Turns[len(s.Turns)-1].Timestamp.Sub(s.Turns[0].Timestamp)
	for _, t := range s.Turns {
		st.TokenEstimate += estimateTokens(t.Text)
	}
	return st
}

// estimateTokens approximates the common 0.75-words-per-token rule.
func estimateTokens(text string) int {
	words := len(strings.Fields(text))
	if words == 0 {
		return 0
	}
	return int(math.Ceil(float64(words) * 4.0 / 3.0))
}
