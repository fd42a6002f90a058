package tutor

import (
	"context"
	"testing"
	"time"

	"github.com/ecolucci/parlo/internal/transcript"
)

func TestTopicsStableOrder(t *testing.T) {
	topics := Topics()
	if len(topics) != 6 {
		t.Fatalf("catalog size = %d, want 6", len(topics))
	}
	for i := 1; i < len(topics); i++ {
		if topics[i-1].ID >= topics[i].ID {
			t.Fatalf("topics not in id order: %q before %q", topics[i-1].ID, topics[i].ID)
		}
	}
	for _, topic := range topics {
		if len(topic.Starters) == 0 {
			t.Fatalf("topic %q has no starters", topic.ID)
		}
		if !KnownTopic(topic.ID) {
			t.Fatalf("KnownTopic(%q) = false", topic.ID)
		}
	}
	if KnownTopic("quantum_physics") {
		t.Fatalf("unlisted topic reported as known")
	}
}

func TestStarterComesFromTopicPool(t *testing.T) {
	now := time.Date(2025, 6, 1, 10, 30, 0, 0, time.UTC)
	got := starterAt("travel", now)
	found := false
	for _, s := range topicCatalog["travel"].Starters {
		if s == got {
			found = true
		}
	}
	if !found {
		t.Fatalf("starter %q not in the travel pool", got)
	}

	// Same minute, same pick.
	if again := starterAt("travel", now.Add(20*time.Second)); again != got {
		t.Fatalf("starter changed within the minute: %q vs %q", got, again)
	}
}

func TestStarterUnknownTopicFallsBackToCatalog(t *testing.T) {
	got := starterAt("nonexistent", time.Date(2025, 6, 1, 10, 30, 0, 0, time.UTC))
	if got == "" {
		t.Fatalf("fallback starter is empty")
	}
}

func TestMockReplyIsDeterministic(t *testing.T) {
	g := NewMockGateway()
	history := []transcript.Turn{
		{Speaker: transcript.SpeakerUser, Text: "hi"},
	}
	first, err := g.Reply(context.Background(), history, "")
	if err != nil {
		t.Fatalf("Reply() error = %v", err)
	}
	second, err := g.Reply(context.Background(), history, "")
	if err != nil {
		t.Fatalf("Reply() error = %v", err)
	}
	if first != second {
		t.Fatalf("mock reply not deterministic: %q vs %q", first, second)
	}
}

func TestMockReplyOpensWithTopic(t *testing.T) {
	g := NewMockGateway()
	reply, err := g.Reply(context.Background(), nil, "food")
	if err != nil {
		t.Fatalf("Reply() error = %v", err)
	}
	if reply != "Let's talk about food. What comes to mind first?" {
		t.Fatalf("topic opener = %q", reply)
	}
}

func TestFactoryMockAndUnknown(t *testing.T) {
	g, name, err := NewGateway(FactoryConfig{Provider: "mock"})
	if err != nil {
		t.Fatalf("NewGateway(mock) error = %v", err)
	}
	if name != "mock" {
		t.Fatalf("resolved provider = %q, want mock", name)
	}
	if _, ok := g.(*MockGateway); !ok {
		t.Fatalf("gateway type = %T, want *MockGateway", g)
	}

	if _, _, err := NewGateway(FactoryConfig{Provider: "psychic"}); err == nil {
		t.Fatalf("unknown provider should fail")
	}
	if _, _, err := NewGateway(FactoryConfig{Provider: "openai"}); err == nil {
		t.Fatalf("openai without key should fail")
	}
}
