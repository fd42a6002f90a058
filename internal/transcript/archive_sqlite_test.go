package transcript

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"
)

func testSQLiteArchive(t *testing.T) *SQLiteArchive {
	t.Helper()
	a, err := NewSQLiteArchive(filepath.Join(t.TempDir(), "archive.db"))
	if err != nil {
		t.Fatalf("NewSQLiteArchive() error = %v", err)
	}
	t.Cleanup(func() { _ = a.Close() })
	return a
}

func TestSQLiteArchiveRoundTrip(t *testing.T) {
	a := testSQLiteArchive(t)
	ctx := context.Background()

	created := time.Date(2025, 6, 1, 10, 0, 0, 0, time.UTC)
	s := sampleSession("arch-1", created)
	if err := a.SaveSession(ctx, s); err != nil {
		t.Fatalf("SaveSession() error = %v", err)
	}

	got, err := a.GetSession(ctx, "arch-1")
	if err != nil {
		t.Fatalf("GetSession() error = %v", err)
	}
	if got.ID != s.ID || got.Topic != s.Topic || !got.CreatedAt.Equal(created) {
		t.Fatalf("archived session header = %+v", got)
	}
	if len(got.Turns) != len(s.Turns) {
		t.Fatalf("archived turns = %d, want %d", len(got.Turns), len(s.Turns))
	}
	for i := range got.Turns {
		if got.Turns[i].Speaker != s.Turns[i].Speaker || got.Turns[i].Text != s.Turns[i].Text {
			t.Fatalf("turn %d = %+v, want %+v", i, got.Turns[i], s.Turns[i])
		}
	}
}

func TestSQLiteArchiveResaveReplacesTurns(t *testing.T) {
	a := testSQLiteArchive(t)
	ctx := context.Background()

	created := time.Date(2025, 6, 1, 10, 0, 0, 0, time.UTC)
	s := sampleSession("arch-1", created)
	if err := a.SaveSession(ctx, s); err != nil {
		t.Fatalf("first SaveSession() error = %v", err)
	}
	s.Turns = s.Turns[:1]
	if err := a.SaveSession(ctx, s); err != nil {
		t.Fatalf("second SaveSession() error = %v", err)
	}

	got, err := a.GetSession(ctx, "arch-1")
	if err != nil {
		t.Fatalf("GetSession() error = %v", err)
	}
	if len(got.Turns) != 1 {
		t.Fatalf("turns after resave = %d, want 1", len(got.Turns))
	}
}

func TestSQLiteArchiveGetMissing(t *testing.T) {
	a := testSQLiteArchive(t)
	if _, err := a.GetSession(context.Background(), "nope"); !errors.Is(err, ErrArchiveNotFound) {
		t.Fatalf("GetSession(missing) error = %v, want ErrArchiveNotFound", err)
	}
}

func TestSQLiteArchiveList(t *testing.T) {
	a := testSQLiteArchive(t)
	ctx := context.Background()

	for i, id := range []string{"a", "b", "c"} {
		s := sampleSession(id, time.Date(2025, 6, 1, 10+i, 0, 0, 0, time.UTC))
		if err := a.SaveSession(ctx, s); err != nil {
			t.Fatalf("SaveSession(%s) error = %v", id, err)
		}
	}

	got, err := a.ListSessions(ctx, 2)
	if err != nil {
		t.Fatalf("ListSessions() error = %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("ListSessions(2) = %d sessions, want 2", len(got))
	}
}
