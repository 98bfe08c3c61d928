package token

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/golang-jwt/jwt/v5"

	apperrors "github.com/louisbranch/latchkey/internal/platform/errors"
	"github.com/louisbranch/latchkey/internal/platform/id"
	"github.com/louisbranch/latchkey/internal/storage"
	"github.com/louisbranch/latchkey/internal/user"
)

// minSecretLength guards against trivially brute-forceable signing keys.
const minSecretLength = 32

// sessionEnv holds raw env values before post-parse validation.
type sessionEnv struct {
	Issuer string        `env:"LATCHKEY_SESSION_ISSUER" envDefault:"latchkey"`
	Secret string        `env:"LATCHKEY_SESSION_SECRET"`
	TTL    time.Duration `env:"LATCHKEY_SESSION_TTL"    envDefault:"168h"`
}

// Config defines how web session tokens are signed and verified.
type Config struct {
	Issuer string
	Secret []byte
	TTL    time.Duration
}

// LoadConfigFromEnv reads web session token configuration.
func LoadConfigFromEnv() (Config, error) {
	var raw sessionEnv
	if err := env.Parse(&raw); err != nil {
		return Config{}, fmt.Errorf("parse session env: %w", err)
	}
	secret := strings.TrimSpace(raw.Secret)
	if secret == "" {
		return Config{}, fmt.Errorf("LATCHKEY_SESSION_SECRET is required")
	}
	if len(secret) < minSecretLength {
		return Config{}, fmt.Errorf("LATCHKEY_SESSION_SECRET must be at least %d bytes", minSecretLength)
	}
	if raw.TTL <= 0 {
		return Config{}, fmt.Errorf("session ttl must be positive")
	}
	return Config{
		Issuer: strings.TrimSpace(raw.Issuer),
		Secret: []byte(secret),
		TTL:    raw.TTL,
	}, nil
}

// sessionClaims is the internal claims type used for JWT parsing.
type sessionClaims struct {
	jwt.RegisteredClaims
}

// Service issues and verifies web session tokens backed by durable rows.
type Service struct {
	config   Config
	sessions storage.WebSessionStore
	newID    func() (string, error)
	now      func() time.Time
}

// NewService builds a token service over a web session store.
func NewService(cfg Config, sessions storage.WebSessionStore) (*Service, error) {
	if len(cfg.Secret) < minSecretLength {
		return nil, fmt.Errorf("session secret must be at least %d bytes", minSecretLength)
	}
	if cfg.Issuer == "" {
		return nil, fmt.Errorf("session issuer is required")
	}
	if cfg.TTL <= 0 {
		return nil, fmt.Errorf("session ttl must be positive")
	}
	if sessions == nil {
		return nil, fmt.Errorf("web session store is required")
	}
	return &Service{
		config:   cfg,
		sessions: sessions,
		newID:    id.NewID,
		now:      time.Now,
	}, nil
}

// Issue creates a durable web session for the user and mints its token.
func (s *Service) Issue(ctx context.Context, u user.User) (string, storage.WebSession, error) {
	sessionID, err := s.newID()
	if err != nil {
		return "", storage.WebSession{}, fmt.Errorf("create session id: %w", err)
	}

	now := s.now().UTC()
	session := storage.WebSession{
		ID:        sessionID,
		UserID:    u.ID,
		CreatedAt: now,
		ExpiresAt: now.Add(s.config.TTL),
	}
	if err := s.sessions.PutWebSession(ctx, session); err != nil {
		return "", storage.WebSession{}, fmt.Errorf("store web session: %w", err)
	}

	claims := sessionClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    s.config.Issuer,
			Subject:   u.ID,
			ID:        session.ID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(session.ExpiresAt),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.config.Secret)
	if err != nil {
		return "", storage.WebSession{}, fmt.Errorf("sign session token: %w", err)
	}
	return signed, session, nil
}

// Verify checks a token's signature and claims and the durable session behind
// it. It returns the live session.
func (s *Service) Verify(ctx context.Context, tokenString string) (storage.WebSession, error) {
	tokenString = strings.TrimSpace(tokenString)
	if tokenString == "" {
		return storage.WebSession{}, apperrors.New(apperrors.CodeTokenInvalid, "session token is required")
	}

	var parsed sessionClaims
	_, err := jwt.ParseWithClaims(tokenString, &parsed, func(*jwt.Token) (any, error) {
		return s.config.Secret, nil
	},
		jwt.WithValidMethods([]string{"HS256"}),
		jwt.WithoutClaimsValidation(),
	)
	if err != nil {
		return storage.WebSession{}, mapJWTError(err)
	}

	if parsed.Issuer != s.config.Issuer {
		return storage.WebSession{}, apperrors.New(apperrors.CodeTokenInvalid, "session token issuer mismatch")
	}
	if parsed.ID == "" || parsed.Subject == "" {
		return storage.WebSession{}, apperrors.New(apperrors.CodeTokenInvalid, "session token claims are incomplete")
	}
	now := s.now().UTC()
	if parsed.ExpiresAt == nil || !parsed.ExpiresAt.Time.UTC().After(now) {
		return storage.WebSession{}, apperrors.New(apperrors.CodeTokenInvalid, "session token is expired")
	}

	session, err := s.sessions.GetWebSession(ctx, parsed.ID)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return storage.WebSession{}, apperrors.New(apperrors.CodeTokenInvalid, "session not found")
		}
		return storage.WebSession{}, fmt.Errorf("load web session: %w", err)
	}
	if session.RevokedAt != nil {
		return storage.WebSession{}, apperrors.New(apperrors.CodeSessionRevoked, "session is revoked")
	}
	if !session.ExpiresAt.After(now) {
		return storage.WebSession{}, apperrors.New(apperrors.CodeTokenInvalid, "session is expired")
	}
	if session.UserID != parsed.Subject {
		return storage.WebSession{}, apperrors.New(apperrors.CodeTokenInvalid, "session token subject mismatch")
	}
	return session, nil
}

// Revoke invalidates the session behind a verified token.
func (s *Service) Revoke(ctx context.Context, sessionID string) error {
	err := s.sessions.RevokeWebSession(ctx, sessionID, s.now().UTC())
	if errors.Is(err, storage.ErrNotFound) {
		return apperrors.New(apperrors.CodeTokenInvalid, "session not found")
	}
	return err
}

// mapJWTError translates jwt library errors to application errors.
func mapJWTError(err error) error {
	if errors.Is(err, jwt.ErrTokenSignatureInvalid) {
		return apperrors.New(apperrors.CodeTokenInvalid, "session token signature is invalid")
	}
	if errors.Is(err, jwt.ErrTokenUnverifiable) {
		return apperrors.New(apperrors.CodeTokenInvalid, "session token alg is invalid")
	}
	return apperrors.New(apperrors.CodeTokenInvalid, "session token is invalid")
}
