package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/leaseforge/lease-engine/auth"
)

// =============================================================================
// USER STORE (auth.UserStore interface)
// =============================================================================

// SaveUser creates a user.
func (s *Store) SaveUser(ctx context.Context, u auth.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO users (id, email, name, password_hash, role, created_at)
		VALUES (?, ?, ?, ?, ?, ?)`,
		u.ID, u.Email, nullString(u.Name), u.PasswordHash, u.Role, u.CreatedAt.Format(time.RFC3339),
	)
	if err != nil {
		return fmt.Errorf("failed to save user: %w", err)
	}
	return nil
}

// GetUser retrieves a user by ID, or nil if there is none.
func (s *Store) GetUser(ctx context.Context, id string) (*auth.User, error) {
	return s.getUser(ctx, "id", id)
}

// GetUserByEmail retrieves a user by email, or nil if there is none.
func (s *Store) GetUserByEmail(ctx context.Context, email string) (*auth.User, error) {
	return s.getUser(ctx, "email", email)
}

func (s *Store) getUser(ctx context.Context, column, value string) (*auth.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var (
		u         auth.User
		name      sql.NullString
		createdAt string
	)
	err := s.db.QueryRowContext(ctx,
		"SELECT id, email, name, password_hash, role, created_at FROM users WHERE "+column+" = ?",
		value,
	).Scan(&u.ID, &u.Email, &name, &u.PasswordHash, &u.Role, &createdAt)

	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get user: %w", err)
	}
	u.Name = name.String
	u.CreatedAt = parseTimestamp(createdAt)
	return &u, nil
}

// =============================================================================
// REFRESH TOKEN STORE
// =============================================================================

// SaveRefreshToken records an issued refresh token.
func (s *Store) SaveRefreshToken(ctx context.Context, t auth.RefreshToken) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO refresh_tokens (jti, user_id, expires_at, created_at)
		VALUES (?, ?, ?, ?)`,
		t.JTI, t.UserID, t.ExpiresAt.Format(time.RFC3339), t.CreatedAt.Format(time.RFC3339),
	)
	if err != nil {
		return fmt.Errorf("failed to save refresh token: %w", err)
	}
	return nil
}

// GetRefreshToken retrieves a refresh token by jti, or nil if there is none.
func (s *Store) GetRefreshToken(ctx context.Context, jti string) (*auth.RefreshToken, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var (
		t         auth.RefreshToken
		expiresAt string
		revokedAt sql.NullString
		createdAt string
	)
	err := s.db.QueryRowContext(ctx,
		"SELECT jti, user_id, expires_at, revoked_at, created_at FROM refresh_tokens WHERE jti = ?",
		jti,
	).Scan(&t.JTI, &t.UserID, &expiresAt, &revokedAt, &createdAt)

	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get refresh token: %w", err)
	}
	t.ExpiresAt = parseTimestamp(expiresAt)
	t.CreatedAt = parseTimestamp(createdAt)
	if revokedAt.Valid {
		t.RevokedAt = parseTimestamp(revokedAt.String)
	}
	return &t, nil
}

// RevokeRefreshToken marks a token revoked. Revoking an already revoked
// token keeps the first revocation time.
func (s *Store) RevokeRefreshToken(ctx context.Context, jti string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.ExecContext(ctx,
		"UPDATE refresh_tokens SET revoked_at = ? WHERE jti = ? AND revoked_at IS NULL",
		at.Format(time.RFC3339), jti,
	)
	if err != nil {
		return fmt.Errorf("failed to revoke refresh token: %w", err)
	}
	return nil
}
