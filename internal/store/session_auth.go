package store

import (
	"context"
	"database/sql"
	"time"

	"github.com/pavelanni/examhall/internal/model"
)

// AuthToken is a row of the issued-token registry.
type AuthToken struct {
	ID        string
	Subject   string
	Role      model.UserRole
	CreatedAt time.Time
	ExpiresAt time.Time
}

// CreateAuthToken registers an issued token so it can later be revoked.
func (s *Store) CreateAuthToken(ctx context.Context, t AuthToken) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO auth_tokens (id, subject, role, created_at, expires_at) VALUES (?, ?, ?, ?, ?)`,
		t.ID, t.Subject, t.Role, t.CreatedAt, t.ExpiresAt,
	)
	return err
}

// GetAuthToken returns the registered token with the given id, or nil if it
// was revoked or has expired.
func (s *Store) GetAuthToken(ctx context.Context, id string, now time.Time) (*AuthToken, error) {
	var t AuthToken
	err := s.db.QueryRowContext(ctx,
		`SELECT id, subject, role, created_at, expires_at FROM auth_tokens WHERE id = ?`, id,
	).Scan(&t.ID, &t.Subject, &t.Role, &t.CreatedAt, &t.ExpiresAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	if now.After(t.ExpiresAt) {
		_ = s.DeleteAuthToken(ctx, id)
		return nil, nil
	}
	return &t, nil
}

// DeleteAuthToken revokes a token.
func (s *Store) DeleteAuthToken(ctx context.Context, id string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM auth_tokens WHERE id = ?`, id)
	return err
}

// CleanupExpiredTokens removes every token that expired before now.
func (s *Store) CleanupExpiredTokens(ctx context.Context, now time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM auth_tokens WHERE expires_at < ?`, now)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}
