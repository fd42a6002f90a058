// Package tutor produces the assistant's next conversational reply from the
// accumulated turn history, through a pluggable language-model provider
// chosen once at construction. The gateway is a pure request/response mapper;
// it never retries.
package tutor

import (
	"context"
	"fmt"

	"github.com/ecolucci/parlo/internal/transcript"
)

type ErrKind string

const (
	// Transient network/auth failures; the caller may retry the turn.
	KindUnavailable ErrKind = "tutor_unavailable"
	KindTimeout     ErrKind = "tutor_timeout"
	// Malformed provider responses; not retried automatically.
	KindProtocol ErrKind = "tutor_protocol"
)

type Error struct {
	Kind ErrKind
	Err  error
}

func (e *Error) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("tutor: %s", e.Kind)
	}
	return fmt.Sprintf("tutor: %s: %v", e.Kind, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

func (e *Error) Transient() bool {
	return e.Kind == KindUnavailable || e.Kind == KindTimeout
}

func newErr(kind ErrKind, err error) *Error {
	return &Error{Kind: kind, Err: err}
}

// Gateway maps a conversation history to the next reply. Topic, when present
// and no assistant turn exists yet, seeds the opening system instruction; it
// is never sent as a user turn.
type Gateway interface {
	Reply(ctx context.Context, history []transcript.Turn, topic string) (string, error)
}

// FreshReplier is implemented by providers that can regenerate a reply with an
// explicit instruction not to repeat the conversation so far. Callers check
// for it after ReplyRepetitive flags the first attempt.
type FreshReplier interface {
	FreshReply(ctx context.Context, history []transcript.Turn, topic string) (string, error)
}

// classifyCtx maps a context failure onto the taxonomy.
func classifyCtx(ctx context.Context, err error) *Error {
	if ctx.Err() == context.DeadlineExceeded {
		return newErr(KindTimeout, ctx.Err())
	}
	return newErr(KindUnavailable, err)
}
