package speech

import (
	"context"
	"strings"
)

// MockGateway is the fallback provider used when neither a cloud key nor the
// local engines are available. Transcripts and audio are deterministic.
type MockGateway struct {
	Transcript string
}

func NewMockGateway() *MockGateway {
	return &MockGateway{Transcript: "simulated voice input"}
}

func (g *MockGateway) Transcribe(_ context.Context, audio []byte, _ string) (string, error) {
	if err := checkTranscribeInput(audio, Limits{}); err != nil {
		return "", err
	}
	return g.Transcript, nil
}

func (g *MockGateway) Synthesize(_ context.Context, text, _ string, _ float64) ([]byte, error) {
	if err := checkSynthesizeInput(text); err != nil {
		return nil, err
	}
	// The text bytes stand in for audio so playback paths stay exercisable.
	return []byte(strings.TrimSpace(text)), nil
}
