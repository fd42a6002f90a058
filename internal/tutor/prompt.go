package tutor

import (
	"strings"

	"github.com/ecolucci/parlo/internal/transcript"
)

// historyWindow bounds how many recent turns are serialized into the prompt.
const historyWindow = 15

const systemPrompt = `You are a curious and engaging conversation partner helping someone practice English.

Your personality:
- Friendly, enthusiastic, and genuinely interested in the person you're talking to
- You remember what they tell you in this conversation and build on it
- You ask thoughtful follow-up questions based on what they share
- You share your own thoughts and reactions naturally, like a real friend would

Conversation style:
- Avoid repeating questions you've already asked in this conversation
- Ask specific, personalized questions based on what you know about the person
- Keep responses conversational and natural (1-3 sentences usually)
- Be encouraging but not overly formal or teacher-like`

// freshInstruction steers a regenerated reply away from repeating the
// conversation so far.
const freshInstruction = "The previous response was repetitive. Generate a completely different, creative response. Ask a unique question or make an original comment that hasn't been made before in this conversation."

type message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// buildMessages serializes the bounded recent history into provider messages.
// What the history reveals about the user is folded into the system prompt.
// A topic seeds an extra system instruction only before the first assistant
// reply, so a loaded or ongoing conversation is never re-seeded.
func buildMessages(history []transcript.Turn, topic string) []message {
	msgs := make([]message, 0, historyWindow+2)
	system := systemPrompt
	if ctx := personalizationContext(history); ctx != "" {
		system += "\n\nPersonalization context: " + ctx
	}
	msgs = append(msgs, message{Role: "system", Content: system})

	if topic = strings.TrimSpace(topic); topic != "" && !hasAssistantTurn(history) {
		msgs = append(msgs, message{
			Role:    "system",
			Content: "Open the conversation around this topic and keep steering back to it: " + topic,
		})
	}

	turns := history
	if len(turns) > historyWindow {
		turns = turns[len(turns)-historyWindow:]
	}
	for _, t := range turns {
		role := "user"
		if t.Speaker == transcript.SpeakerAssistant {
			role = "assistant"
		}
		msgs = append(msgs, message{Role: role, Content: t.Text})
	}
	return msgs
}

func hasAssistantTurn(history []transcript.Turn) bool {
	for _, t := range history {
		if t.Speaker == transcript.SpeakerAssistant {
			return true
		}
	}
	return false
}
