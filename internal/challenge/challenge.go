package challenge

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"strings"
	"time"

	apperrors "github.com/louisbranch/latchkey/internal/platform/errors"
	"github.com/louisbranch/latchkey/internal/passkey"
	"github.com/louisbranch/latchkey/internal/storage"
)

// valueBytes is the entropy of a generated challenge value.
const valueBytes = 32

// minValueLength is 16 bytes of entropy rendered URL-safe without padding.
const minValueLength = 22

// Store wraps challenge persistence with issuance and single-use consumption.
type Store struct {
	storage storage.ChallengeStore
	ttl     time.Duration
	now     func() time.Time
}

// NewStore creates a challenge store with the given lifetime for issued
// challenges.
func NewStore(st storage.ChallengeStore, ttl time.Duration) *Store {
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	return &Store{
		storage: st,
		ttl:     ttl,
		now:     time.Now,
	}
}

// NewValue generates a fresh URL-safe challenge value.
func NewValue() (string, error) {
	raw := make([]byte, valueBytes)
	if _, err := rand.Read(raw); err != nil {
		return "", fmt.Errorf("generate challenge value: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(raw), nil
}

// Issue stores a fresh challenge for the session and purpose, replacing any
// earlier one for the same pair. The value is the challenge the verifier put
// in its ceremony options; callers without one can use NewValue.
func (s *Store) Issue(ctx context.Context, sessionID string, purpose passkey.Purpose, subject, value, sessionJSON string) (storage.Challenge, error) {
	if s == nil || s.storage == nil {
		return storage.Challenge{}, fmt.Errorf("challenge storage is not configured")
	}
	sessionID = strings.TrimSpace(sessionID)
	if sessionID == "" {
		return storage.Challenge{}, apperrors.New(apperrors.CodeChallengeInvalid, "session id is required")
	}
	if len(value) < minValueLength {
		return storage.Challenge{}, apperrors.New(apperrors.CodeChallengeInvalid, "challenge value is too short")
	}

	now := s.now().UTC()
	ch := storage.Challenge{
		SessionID:   sessionID,
		Purpose:     purpose,
		Value:       value,
		Subject:     subject,
		SessionJSON: sessionJSON,
		IssuedAt:    now,
		ExpiresAt:   now.Add(s.ttl),
	}
	if err := s.storage.PutChallenge(ctx, ch); err != nil {
		return storage.Challenge{}, fmt.Errorf("store challenge: %w", err)
	}
	return ch, nil
}

// Consume atomically marks the live challenge for the session and purpose as
// used and returns it. Missing, expired, and already-consumed challenges are
// indistinguishable to the caller.
func (s *Store) Consume(ctx context.Context, sessionID string, purpose passkey.Purpose) (storage.Challenge, error) {
	if s == nil || s.storage == nil {
		return storage.Challenge{}, fmt.Errorf("challenge storage is not configured")
	}
	sessionID = strings.TrimSpace(sessionID)
	if sessionID == "" {
		return storage.Challenge{}, apperrors.New(apperrors.CodeChallengeInvalid, "session id is required")
	}

	ch, err := s.storage.ConsumeChallenge(ctx, sessionID, purpose, s.now().UTC())
	if err != nil {
		if apperrors.IsCode(err, apperrors.CodeNotFound) {
			return storage.Challenge{}, apperrors.Wrap(apperrors.CodeChallengeInvalid, "challenge is missing, expired, or already used", err)
		}
		return storage.Challenge{}, fmt.Errorf("consume challenge: %w", err)
	}
	return ch, nil
}

// ExpireStale removes challenges past their lifetime. Consume enforces the
// lifetime on its own; this only reclaims storage.
func (s *Store) ExpireStale(ctx context.Context, now time.Time) error {
	if s == nil || s.storage == nil {
		return fmt.Errorf("challenge storage is not configured")
	}
	return s.storage.DeleteExpiredChallenges(ctx, now.UTC())
}
