package tutor

import (
	"context"

	"github.com/ecolucci/parlo/internal/transcript"
)

// mockReplies rotates through open-ended follow-ups so an unconfigured
// install still holds a conversation of sorts.
var mockReplies = []string{
	"That's fascinating! What's the story behind that?",
	"I'm intrigued - what's your perspective on this?",
	"That's an interesting angle. What led you to that conclusion?",
	"Tell me more about that - I'm genuinely curious.",
}

// MockGateway is the fallback provider used when no language model is
// configured. Replies are deterministic given the history length.
type MockGateway struct{}

func NewMockGateway() *MockGateway { return &MockGateway{} }

func (g *MockGateway) Reply(_ context.Context, history []transcript.Turn, topic string) (string, error) {
	if len(history) == 0 && topic != "" {
		return "Let's talk about " + topic + ". What comes to mind first?", nil
	}
	return mockReplies[len(history)%len(mockReplies)], nil
}
