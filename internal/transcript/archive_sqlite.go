package transcript

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"
)

// SQLiteArchive keeps the archive in a local file, which suits a desktop
// companion better than a networked database.
type SQLiteArchive struct {
	db *sql.DB
}

func NewSQLiteArchive(path string) (*SQLiteArchive, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return nil, fmt.Errorf("sqlite archive path is required")
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create archive dir: %w", err)
		}
	}
	db, err := sql.Open("sqlite", fmt.Sprintf("file:%s?_journal_mode=WAL", path))
	if err != nil {
		return nil, fmt.Errorf("open sqlite archive: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping sqlite archive: %w", err)
	}
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS sessions (
			id TEXT PRIMARY KEY,
			topic TEXT NOT NULL DEFAULT '',
			created_at INTEGER NOT NULL
		);`,
		`CREATE TABLE IF NOT EXISTS turns (
			session_id TEXT NOT NULL REFERENCES sessions(id) ON DELETE CASCADE,
			seq INTEGER NOT NULL,
			speaker TEXT NOT NULL,
			text TEXT NOT NULL,
			ts INTEGER NOT NULL,
			audio_ref TEXT NOT NULL DEFAULT '',
			PRIMARY KEY (session_id, seq)
		);`,
	}
	for _, stmt := range stmts {
		if _, err := db.Exec(stmt); err != nil {
			db.Close()
			return nil, fmt.Errorf("init sqlite schema: %w", err)
		}
	}
	return &SQLiteArchive{db: db}, nil
}

func (a *SQLiteArchive) SaveSession(ctx context.Context, s *Session) error {
	tx, err := a.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	_, err = tx.ExecContext(ctx,
		`INSERT INTO sessions (id, topic, created_at) VALUES (?,?,?)
		 ON CONFLICT(id) DO UPDATE SET topic=excluded.topic, created_at=excluded.created_at`,
		s.ID, s.Topic, s.CreatedAt.UTC().Unix(),
	)
	if err != nil {
		return fmt.Errorf("upsert session: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM turns WHERE session_id=?`, s.ID); err != nil {
		return fmt.Errorf("delete prior turns: %w", err)
	}
	for i, t := range s.Turns {
		_, err := tx.ExecContext(ctx,
			`INSERT INTO turns (session_id, seq, speaker, text, ts, audio_ref) VALUES (?,?,?,?,?,?)`,
			s.ID, i, string(t.Speaker), t.Text, t.Timestamp.UTC().Unix(), t.AudioRef,
		)
		if err != nil {
			return fmt.Errorf("insert turn: %w", err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}

func (a *SQLiteArchive) GetSession(ctx context.Context, id string) (*Session, error) {
	row := a.db.QueryRowContext(ctx, `SELECT id, topic, created_at FROM sessions WHERE id=?`, id)
	var (
		s       Session
		created int64
	)
	if err := row.Scan(&s.ID, &s.Topic, &created); err != nil {
		if err == sql.ErrNoRows {
			return nil, ErrArchiveNotFound
		}
		return nil, fmt.Errorf("get session: %w", err)
	}
	s.CreatedAt = time.Unix(created, 0).UTC()
	turns, err := a.loadTurns(ctx, s.ID)
	if err != nil {
		return nil, err
	}
	s.Turns = turns
	return &s, nil
}

func (a *SQLiteArchive) ListSessions(ctx context.Context, limit int) ([]*Session, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := a.db.QueryContext(ctx,
		`SELECT id, topic, created_at FROM sessions ORDER BY created_at DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("list sessions: %w", err)
	}
	defer rows.Close()

	out := make([]*Session, 0, limit)
	for rows.Next() {
		var (
			s       Session
			created int64
		)
		if err := rows.Scan(&s.ID, &s.Topic, &created); err != nil {
			return nil, fmt.Errorf("scan session row: %w", err)
		}
		s.CreatedAt = time.Unix(created, 0).UTC()
		out = append(out, &s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate session rows: %w", err)
	}
	for _, s := range out {
		s.Turns, err = a.loadTurns(ctx, s.ID)
		if err != nil {
			return nil, err
		}
	}
	return out, nil
}

func (a *SQLiteArchive) loadTurns(ctx context.Context, sessionID string) ([]Turn, error) {
	rows, err := a.db.QueryContext(ctx,
		`SELECT speaker, text, ts, audio_ref FROM turns WHERE session_id=? ORDER BY seq ASC`,
		sessionID,
	)
	if err != nil {
		return nil, fmt.Errorf("list turns: %w", err)
	}
	defer rows.Close()

	turns := make([]Turn, 0, 8)
	for rows.Next() {
		var (
			t       Turn
			speaker string
			ts      int64
		)
		if err := rows.Scan(&speaker, &t.Text, &ts, &t.AudioRef); err != nil {
			return nil, fmt.Errorf("scan turn: %w", err)
		}
		t.Speaker = Speaker(speaker)
		t.Timestamp = time.Unix(ts, 0).UTC()
		turns = append(turns, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate turn rows: %w", err)
	}
	return turns, nil
}

func (a *SQLiteArchive) Close() error {
	return a.db.Close()
}
