package transcript

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type PostgresArchive struct {
	pool *pgxpool.Pool
}

func NewPostgresArchive(ctx context.Context, databaseURL string) (*PostgresArchive, error) {
	pool, err := pgxpool.New(ctx, strings.TrimSpace(databaseURL))
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	if err := initArchiveSchema(ctx, pool); err != nil {
		pool.Close()
		return nil, err
	}
	return &PostgresArchive{pool: pool}, nil
}

func initArchiveSchema(ctx context.Context, pool *pgxpool.Pool) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS sessions (
			id TEXT PRIMARY KEY,
			topic TEXT NOT NULL DEFAULT '',
			created_at TIMESTAMPTZ NOT NULL
		);`,
		`CREATE TABLE IF NOT EXISTS turns (
			session_id TEXT NOT NULL REFERENCES sessions(id) ON DELETE CASCADE,
			seq INTEGER NOT NULL,
			speaker TEXT NOT NULL,
			text TEXT NOT NULL,
			ts TIMESTAMPTZ NOT NULL,
			audio_ref TEXT NOT NULL DEFAULT '',
			PRIMARY KEY (session_id, seq)
		);`,
		`CREATE INDEX IF NOT EXISTS idx_sessions_created ON sessions (created_at DESC);`,
	}
	for _, stmt := range stmts {
		if _, err := pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("init archive schema failed on %q: %w", stmt, err)
		}
	}
	return nil
}

func (a *PostgresArchive) SaveSession(ctx context.Context, s *Session) error {
	tx, err := a.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	_, err = tx.Exec(ctx,
		`INSERT INTO sessions (id, topic, created_at) VALUES ($1,$2,$3)
		 ON CONFLICT (id) DO UPDATE SET topic=EXCLUDED.topic, created_at=EXCLUDED.created_at`,
		s.ID, s.Topic, s.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("upsert session: %w", err)
	}

	if _, err := tx.Exec(ctx, `DELETE FROM turns WHERE session_id=$1`, s.ID); err != nil {
		return fmt.Errorf("delete prior turns: %w", err)
	}
	for i, t := range s.Turns {
		_, err := tx.Exec(ctx,
			`INSERT INTO turns (session_id, seq, speaker, text, ts, audio_ref) VALUES ($1,$2,$3,$4,$5,$6)`,
			s.ID, i, string(t.Speaker), t.Text, t.Timestamp, t.AudioRef,
		)
		if err != nil {
			return fmt.Errorf("insert turn: %w", err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}

func (a *PostgresArchive) GetSession(ctx context.Context, id string) (*Session, error) {
	row := a.pool.QueryRow(ctx, `SELECT id, topic, created_at FROM sessions WHERE id=$1`, id)
	var s Session
	if err := row.Scan(&s.ID, &s.Topic, &s.CreatedAt); err != nil {
		if err == pgx.ErrNoRows {
			return nil, ErrArchiveNotFound
		}
		return nil, fmt.Errorf("get session: %w", err)
	}
	turns, err := a.loadTurns(ctx, s.ID)
	if err != nil {
		return nil, err
	}
	s.Turns = turns
	return &s, nil
}

func (a *PostgresArchive) ListSessions(ctx context.Context, limit int) ([]*Session, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := a.pool.Query(ctx,
		`SELECT id, topic, created_at FROM sessions ORDER BY created_at DESC LIMIT $1`, limit)
	if err != nil {
		return nil, fmt.Errorf("list sessions: %w", err)
	}
	defer rows.Close()

	out := make([]*Session, 0, limit)
	for rows.Next() {
		var s Session
		if err := rows.Scan(&s.ID, &s.Topic, &s.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan session row: %w", err)
		}
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

func (a *PostgresArchive) loadTurns(ctx context.Context, sessionID string) ([]Turn, error) {
	rows, err := a.pool.Query(ctx,
		`SELECT speaker, text, ts, audio_ref FROM turns WHERE session_id=$1 ORDER BY seq ASC`,
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
			ts      time.Time
		)
		if err := rows.Scan(&speaker, &t.Text, &ts, &t.AudioRef); err != nil {
			return nil, fmt.Errorf("scan turn: %w", err)
		}
		t.Speaker = Speaker(speaker)
		t.Timestamp = ts.UTC()
		turns = append(turns, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate turn rows: %w", err)
	}
	return turns, nil
}

func (a *PostgresArchive) Close() error {
	a.pool.Close()
	return nil
}
