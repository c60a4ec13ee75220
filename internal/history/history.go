package history

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

// Store records one summary row per played session: which story ran, when it
// started and ended, and how many winning commands reached the interpreter.
// Individual votes are deliberately not persisted.
type Store struct {
	pool *pgxpool.Pool
}

func New(ctx context.Context, databaseURL string) (*Store, error) {
	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return &Store{pool: pool}, nil
}

func (s *Store) Close() {
	s.pool.Close()
}

// RunMigrations creates the sessions table.
func (s *Store) RunMigrations(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS sessions (
			id BIGSERIAL PRIMARY KEY,
			story TEXT NOT NULL,
			started_at TIMESTAMPTZ NOT NULL,
			ended_at TIMESTAMPTZ,
			commands_sent INTEGER NOT NULL DEFAULT 0
		);
		CREATE INDEX IF NOT EXISTS idx_sessions_started_at ON sessions(started_at);
	`)
	return err
}

// SessionStarted inserts a new session row and returns its id.
func (s *Store) SessionStarted(ctx context.Context, story string, at time.Time) (int64, error) {
	var id int64
	err := s.pool.QueryRow(ctx,
		"INSERT INTO sessions (story, started_at) VALUES ($1, $2) RETURNING id",
		story, at,
	).Scan(&id)
	if err != nil {
		return 0, err
	}
	return id, nil
}

// SessionEnded closes out the session row.
func (s *Store) SessionEnded(ctx context.Context, id int64, at time.Time, commandsSent int) error {
	result, err := s.pool.Exec(ctx,
		"UPDATE sessions SET ended_at = $2, commands_sent = $3 WHERE id = $1",
		id, at, commandsSent,
	)
	if err != nil {
		return err
	}
	if result.RowsAffected() == 0 {
		return fmt.Errorf("session %d not found", id)
	}
	return nil
}

// Session is one played-session summary as served over the API.
type Session struct {
	ID           int64      `json:"id"`
	Story        string     `json:"story"`
	StartedAt    time.Time  `json:"started_at"`
	EndedAt      *time.Time `json:"ended_at,omitempty"`
	CommandsSent int        `json:"commands_sent"`
}

// RecentSessions returns up to limit sessions, newest first.
func (s *Store) RecentSessions(ctx context.Context, limit int) ([]Session, error) {
	rows, err := s.pool.Query(ctx,
		"SELECT id, story, started_at, ended_at, commands_sent FROM sessions ORDER BY started_at DESC LIMIT $1",
		limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var sessions []Session
	for rows.Next() {
		var sess Session
		if err := rows.Scan(&sess.ID, &sess.Story, &sess.StartedAt, &sess.EndedAt, &sess.CommandsSent); err != nil {
			return nil, err
		}
		sessions = append(sessions, sess)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	return sessions, nil
}
