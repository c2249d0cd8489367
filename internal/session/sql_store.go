package session

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"dashboard-auth/internal/db"
)

// SQLStore persists sessions in the sessions table of a postgres or
// sqlite database. Each Set is a single upsert statement.
type SQLStore struct {
	db  *db.DB
	now func() time.Time

	getQuery    string
	upsertQuery string
	deleteQuery string
}

func NewSQLStore(d *db.DB) *SQLStore {
	p := d.Placeholder
	return &SQLStore{
		db:  d,
		now: time.Now,
		getQuery: `
			SELECT session_id, access_token, refresh_token, expires_at_ms
			FROM sessions
			WHERE session_id = ` + p(1),
		upsertQuery: `
			INSERT INTO sessions (session_id, access_token, refresh_token, expires_at_ms, updated_at_ms)
			VALUES (` + p(1) + `, ` + p(2) + `, ` + p(3) + `, ` + p(4) + `, ` + p(5) + `)
			ON CONFLICT (session_id) DO UPDATE SET
				access_token = excluded.access_token,
				refresh_token = excluded.refresh_token,
				expires_at_ms = excluded.expires_at_ms,
				updated_at_ms = excluded.updated_at_ms`,
		deleteQuery: `DELETE FROM sessions WHERE session_id = ` + p(1),
	}
}

func (s *SQLStore) Get(ctx context.Context, sessionID string) (*Session, error) {
	var (
		sess      Session
		expiresMs int64
	)

	err := s.db.QueryRowContext(ctx, s.getQuery, sessionID).Scan(
		&sess.SessionID,
		&sess.AccessToken,
		&sess.RefreshToken,
		&expiresMs,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("session: sql get: %w", err)
	}

	sess.ExpiresAt = time.UnixMilli(expiresMs)
	if err := sess.Validate(); err != nil {
		return nil, err
	}

	return &sess, nil
}

func (s *SQLStore) Set(ctx context.Context, sess Session) error {
	if err := sess.Validate(); err != nil {
		return err
	}

	_, err := s.db.ExecContext(ctx, s.upsertQuery,
		sess.SessionID,
		sess.AccessToken,
		sess.RefreshToken,
		sess.ExpiresAt.UnixMilli(),
		s.now().UnixMilli(),
	)
	if err != nil {
		return fmt.Errorf("session: sql set: %w", err)
	}
	return nil
}

func (s *SQLStore) Delete(ctx context.Context, sessionID string) error {
	_, err := s.db.ExecContext(ctx, s.deleteQuery, sessionID)
	return err
}
