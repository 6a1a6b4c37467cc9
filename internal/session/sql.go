package session

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/desertthunder/makin/internal/shared"
)

// SQLStore keeps sessions in the sessions table created by [shared.RunMigrations].
type SQLStore struct {
	db  *sqlx.DB
	now func() time.Time
}

// NewSQLStore creates a [SQLStore] over db.
func NewSQLStore(db *sqlx.DB) *SQLStore {
	return &SQLStore{db: db, now: func() time.Time { return time.Now().UTC() }}
}

type sessionRow struct {
	ID        string    `db:"id"`
	Data      string    `db:"data"`
	ExpiresAt time.Time `db:"expires_at"`
}

func (s *SQLStore) Load(ctx context.Context, id string) (*Session, error) {
	var row sessionRow
	query := s.db.Rebind("SELECT id, data, expires_at FROM sessions WHERE id = ? AND expires_at > ?")
	if err := s.db.GetContext(ctx, &row, query, id, s.now()); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, shared.ErrNoSession
		}
		return nil, fmt.Errorf("failed to load session: %w", err)
	}

	values := map[string]string{}
	if err := json.Unmarshal([]byte(row.Data), &values); err != nil {
		return nil, fmt.Errorf("failed to decode session: %w", err)
	}
	return &Session{ID: row.ID, Values: values, ExpiresAt: row.ExpiresAt.UTC()}, nil
}

func (s *SQLStore) Save(ctx context.Context, sess *Session) error {
	data, err := json.Marshal(sess.Values)
	if err != nil {
		return fmt.Errorf("failed to encode session: %w", err)
	}

	query := s.db.Rebind(`
		INSERT INTO sessions (id, data, expires_at) VALUES (?, ?, ?)
		ON CONFLICT (id) DO UPDATE SET data = excluded.data, expires_at = excluded.expires_at
	`)
	if _, err := s.db.ExecContext(ctx, query, sess.ID, string(data), sess.ExpiresAt.UTC()); err != nil {
		return fmt.Errorf("failed to save session: %w", err)
	}
	return nil
}

func (s *SQLStore) Delete(ctx context.Context, id string) error {
	if _, err := s.db.ExecContext(ctx, s.db.Rebind("DELETE FROM sessions WHERE id = ?"), id); err != nil {
		return fmt.Errorf("failed to delete session: %w", err)
	}
	return nil
}

// Prune deletes expired sessions and returns how many were removed.
func (s *SQLStore) Prune(ctx context.Context) (int64, error) {
	result, err := s.db.ExecContext(ctx, s.db.Rebind("DELETE FROM sessions WHERE expires_at <= ?"), s.now())
	if err != nil {
		return 0, fmt.Errorf("failed to prune sessions: %w", err)
	}
	return result.RowsAffected()
}
