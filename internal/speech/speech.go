// Package speech converts audio to text and text to audio through a pluggable
// provider chosen once at construction. Providers never retry; retry policy
// belongs to the pipeline.
package speech

import (
	"context"
	"fmt"
	"time"
)

type ErrKind string

const (
	// Local validation failures, never retried.
	KindInvalidInput  ErrKind = "invalid_input"
	KindInputTooLarge ErrKind = "input_too_large"
	// Transient provider failures, the caller may retry the turn.
	KindUnavailable ErrKind = "provider_unavailable"
	KindTimeout     ErrKind = "provider_timeout"
)

// Error is a recognition or synthesis failure with its taxonomy kind attached.
type Error struct {
	Kind ErrKind
	Op   string
	Err  error
}

func (e *Error) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("speech %s: %s", e.Op, e.Kind)
	}
	return fmt.Sprintf("speech %s: %s: %v", e.Op, e.Kind, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// Transient reports whether the failure may succeed on retry.
func (e *Error) Transient() bool {
	return e.Kind == KindUnavailable || e.Kind == KindTimeout
}

func newErr(op string, kind ErrKind, err error) *Error {
	return &Error{Kind: kind, Op: op, Err: err}
}

// Gateway is the audio<->text boundary. Audio is raw PCM16LE mono at the
// sample rate fixed at construction.
type Gateway interface {
	Transcribe(ctx context.Context, audio []byte, language string) (string, error)
	Synthesize(ctx context.Context, text, voice string, speed float64) ([]byte, error)
}

// Limits bound what a provider will accept per call.
type Limits struct {
	SampleRate  int
	MaxDuration time.Duration
}

// MaxBytes is the PCM16LE byte ceiling implied by the duration limit.
func (l Limits) MaxBytes() int {
	if l.SampleRate <= 0 || l.MaxDuration <= 0 {
		return 0
	}
	return int(l.MaxDuration.Seconds() * float64(l.SampleRate) * 2)
}

func checkTranscribeInput(audio []byte, limits Limits) error {
	if len(audio) == 0 {
		return newErr("transcribe", KindInvalidInput, fmt.Errorf("empty audio"))
	}
	if max := limits.MaxBytes(); max > 0 && len(audio) > max {
		return newErr("transcribe", KindInputTooLarge,
			fmt.Errorf("audio is %d bytes, ceiling is %d (%s)", len(audio), max, limits.MaxDuration))
	}
	return nil
}

func checkSynthesizeInput(text string) error {
	if text == "" {
		return newErr("synthesize", KindInvalidInput, fmt.Errorf("empty text"))
	}
	return nil
}

// classifyCtx maps a context failure onto the taxonomy.
func classifyCtx(op string, ctx context.Context, err error) *Error {
	if ctx.Err() == context.DeadlineExceeded {
		return newErr(op, KindTimeout, ctx.Err())
	}
	return newErr(op, KindUnavailable, err)
}
