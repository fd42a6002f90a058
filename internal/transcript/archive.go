package transcript

import (
	"context"
	"errors"
)

var ErrArchiveNotFound = errors.New("session not found in archive")

// Archive is an optional durable mirror of saved sessions. Archiving never
// replaces the JSON files, which remain the canonical persisted format; an
// archive failure is reported to the caller but does not undo the file save.
type Archive interface {
	SaveSession(ctx context.Context, s *Session) error
	GetSession(ctx context.Context, id string) (*Session, error)
	ListSessions(ctx context.Context, limit int) ([]*Session, error)
	Close() error
}
