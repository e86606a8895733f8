/*
Package auth handles back-office users and their sessions.

PURPOSE:
  Contract and receipt endpoints are only available to signed-in staff.
  A login returns a short-lived access token and a long-lived refresh
  token. Refresh tokens are stored by jti so logout can revoke them.

TOKEN FLOW:
  Login(email, password)  → access + refresh
  Refresh(refresh)        → new access + new refresh, old refresh revoked
  Logout(refresh)         → refresh revoked

  Refresh rotates: each refresh token can be exchanged exactly once.

PASSWORDS:
  Stored as bcrypt hashes. Unknown emails and wrong passwords return the
  same ErrInvalidCredentials.

SEE ALSO:
  - jwt.go: Token signing and validation
  - api/middleware.go: Bearer token check on protected routes
  - store/sqlite/users.go: UserStore implementation
*/
package auth

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/leaseforge/lease-engine/generic"
	"github.com/rs/zerolog"
	"golang.org/x/crypto/bcrypt"
)

// =============================================================================
// TYPES
// =============================================================================

const (
	RoleAdmin   = "admin"
	RoleManager = "manager"
	RoleCashier = "cashier"
)

const minPasswordLength = 8

type User struct {
	ID           string
	Email        string
	Name         string
	PasswordHash string
	Role         string
	CreatedAt    time.Time
}

type RefreshToken struct {
	JTI       string
	UserID    string
	ExpiresAt time.Time
	RevokedAt time.Time // zero if still valid
	CreatedAt time.Time
}

func (t RefreshToken) Usable(now time.Time) bool {
	return t.RevokedAt.IsZero() && now.Before(t.ExpiresAt)
}

// UserStore persists users and issued refresh tokens. Getters return nil
// without error when nothing matches.
type UserStore interface {
	SaveUser(ctx context.Context, u User) error
	GetUser(ctx context.Context, id string) (*User, error)
	GetUserByEmail(ctx context.Context, email string) (*User, error)

	SaveRefreshToken(ctx context.Context, t RefreshToken) error
	GetRefreshToken(ctx context.Context, jti string) (*RefreshToken, error)
	RevokeRefreshToken(ctx context.Context, jti string, at time.Time) error
}

// TokenPair is what a login or refresh returns to the client.
type TokenPair struct {
	AccessToken  string
	RefreshToken string
	TokenType    string
	ExpiresIn    int64 // access token lifetime in seconds
}

// =============================================================================
// SERVICE
// =============================================================================

type Service struct {
	store  UserStore
	jwt    *JWTManager
	logger zerolog.Logger
}

func NewService(store UserStore, jwt *JWTManager, logger zerolog.Logger) *Service {
	return &Service{
		store:  store,
		jwt:    jwt,
		logger: logger.With().Str("component", "auth").Logger(),
	}
}

func (s *Service) JWT() *JWTManager { return s.jwt }

// CreateUser hashes the password and stores a new user.
func (s *Service) CreateUser(ctx context.Context, email, name, password, role string) (*User, error) {
	email = normalizeEmail(email)
	if !strings.Contains(email, "@") {
		return nil, &generic.FieldError{Field: "email", Value: email, Message: "is not an email address"}
	}
	if len(password) < minPasswordLength {
		return nil, &generic.FieldError{Field: "password", Message: fmt.Sprintf("must be at least %d characters", minPasswordLength)}
	}
	switch role {
	case "":
		role = RoleCashier
	case RoleAdmin, RoleManager, RoleCashier:
	default:
		return nil, &generic.FieldError{Field: "role", Value: role, Message: "must be admin, manager or cashier"}
	}

	existing, err := s.store.GetUserByEmail(ctx, email)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return nil, &generic.FieldError{Field: "email", Value: email, Message: "is already registered"}
	}

	hash, err := HashPassword(password)
	if err != nil {
		return nil, err
	}
	u := User{
		ID:           uuid.NewString(),
		Email:        email,
		Name:         strings.TrimSpace(name),
		PasswordHash: hash,
		Role:         role,
		CreatedAt:    time.Now().UTC(),
	}
	if err := s.store.SaveUser(ctx, u); err != nil {
		return nil, err
	}
	s.logger.Info().Str("user_id", u.ID).Str("role", u.Role).Msg("user created")
	return &u, nil
}

// Login checks the credentials and issues a token pair.
func (s *Service) Login(ctx context.Context, email, password string) (*TokenPair, *User, error) {
	u, err := s.store.GetUserByEmail(ctx, normalizeEmail(email))
	if err != nil {
		return nil, nil, err
	}
	if u == nil || !CheckPassword(u.PasswordHash, password) {
		s.logger.Warn().Str("email", normalizeEmail(email)).Msg("login failed")
		return nil, nil, generic.ErrInvalidCredentials
	}

	pair, err := s.issue(ctx, *u)
	if err != nil {
		return nil, nil, err
	}
	s.logger.Info().Str("user_id", u.ID).Msg("user logged in")
	return pair, u, nil
}

// Refresh exchanges a refresh token for a new pair and revokes the old one.
func (s *Service) Refresh(ctx context.Context, refreshToken string) (*TokenPair, error) {
	stored, err := s.lookup(ctx, refreshToken)
	if err != nil {
		return nil, err
	}
	u, err := s.store.GetUser(ctx, stored.UserID)
	if err != nil {
		return nil, err
	}
	if u == nil {
		return nil, generic.ErrUserNotFound
	}

	if err := s.store.RevokeRefreshToken(ctx, stored.JTI, time.Now().UTC()); err != nil {
		return nil, err
	}
	return s.issue(ctx, *u)
}

// Logout revokes the refresh token. Logging out twice is an error.
func (s *Service) Logout(ctx context.Context, refreshToken string) error {
	stored, err := s.lookup(ctx, refreshToken)
	if err != nil {
		return err
	}
	if err := s.store.RevokeRefreshToken(ctx, stored.JTI, time.Now().UTC()); err != nil {
		return err
	}
	s.logger.Info().Str("user_id", stored.UserID).Msg("user logged out")
	return nil
}

func (s *Service) lookup(ctx context.Context, refreshToken string) (*RefreshToken, error) {
	claims, err := s.jwt.ValidateRefreshToken(refreshToken)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", generic.ErrTokenRevoked, err)
	}
	stored, err := s.store.GetRefreshToken(ctx, claims.ID)
	if err != nil {
		return nil, err
	}
	if stored == nil || stored.UserID != claims.Subject || !stored.Usable(time.Now()) {
		return nil, generic.ErrTokenRevoked
	}
	return stored, nil
}

func (s *Service) issue(ctx context.Context, u User) (*TokenPair, error) {
	access, err := s.jwt.GenerateAccessToken(u)
	if err != nil {
		return nil, fmt.Errorf("signing access token: %w", err)
	}
	refresh, jti, expiresAt, err := s.jwt.GenerateRefreshToken(u.ID)
	if err != nil {
		return nil, fmt.Errorf("signing refresh token: %w", err)
	}
	err = s.store.SaveRefreshToken(ctx, RefreshToken{
		JTI:       jti,
		UserID:    u.ID,
		ExpiresAt: expiresAt.UTC(),
		CreatedAt: time.Now().UTC(),
	})
	if err != nil {
		return nil, err
	}
	return &TokenPair{
		AccessToken:  access,
		RefreshToken: refresh,
		TokenType:    "Bearer",
		ExpiresIn:    int64(s.jwt.AccessExpiry() / time.Second),
	}, nil
}

// =============================================================================
// PASSWORDS
// =============================================================================

func HashPassword(password string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", fmt.Errorf("hashing password: %w", err)
	}
	return string(hash), nil
}

func CheckPassword(hash, password string) bool {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)) == nil
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
