package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/louisbranch/latchkey/internal/passkey"
	"github.com/louisbranch/latchkey/internal/storage"
)

// PutChallenge stores a ceremony challenge, replacing any prior challenge for
// the same (session, purpose) pair.
func (s *Store) PutChallenge(ctx context.Context, challenge storage.Challenge) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if s == nil || s.sqlDB == nil {
		return fmt.Errorf("storage is not configured")
	}
	if strings.TrimSpace(challenge.SessionID) == "" {
		return fmt.Errorf("challenge session id is required")
	}
	if challenge.Purpose == "" {
		return fmt.Errorf("challenge purpose is required")
	}
	if strings.TrimSpace(challenge.Value) == "" {
		return fmt.Errorf("challenge value is required")
	}

	_, err := s.sqlDB.ExecContext(
		ctx,
		`INSERT INTO challenges (session_id, purpose, value, subject, session_json, issued_at, expires_at, consumed)
		 VALUES (?, ?, ?, ?, ?, ?, ?, 0)
		 ON CONFLICT (session_id, purpose) DO UPDATE SET
		   value = excluded.value,
		   subject = excluded.subject,
		   session_json = excluded.session_json,
		   issued_at = excluded.issued_at,
		   expires_at = excluded.expires_at,
		   consumed = 0`,
		challenge.SessionID,
		string(challenge.Purpose),
		challenge.Value,
		challenge.Subject,
		challenge.SessionJSON,
		toMillis(challenge.IssuedAt),
		toMillis(challenge.ExpiresAt),
	)
	if err != nil {
		return fmt.Errorf("put challenge: %w", err)
	}
	return nil
}

// ConsumeChallenge atomically marks the live challenge for (session, purpose)
// consumed and returns it. The conditional UPDATE is the concurrency guard: of
// N concurrent callers exactly one observes an affected row.
func (s *Store) ConsumeChallenge(ctx context.Context, sessionID string, purpose passkey.Purpose, now time.Time) (storage.Challenge, error) {
	if err := ctx.Err(); err != nil {
		return storage.Challenge{}, err
	}
	if s == nil || s.sqlDB == nil {
		return storage.Challenge{}, fmt.Errorf("storage is not configured")
	}
	if strings.TrimSpace(sessionID) == "" {
		return storage.Challenge{}, fmt.Errorf("session id is required")
	}
	if purpose == "" {
		return storage.Challenge{}, fmt.Errorf("purpose is required")
	}

	result, err := s.sqlDB.ExecContext(
		ctx,
		`UPDATE challenges SET consumed = 1
		 WHERE session_id = ? AND purpose = ? AND consumed = 0 AND expires_at > ?`,
		sessionID,
		string(purpose),
		toMillis(now),
	)
	if err != nil {
		return storage.Challenge{}, fmt.Errorf("consume challenge: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return storage.Challenge{}, fmt.Errorf("consume challenge: %w", err)
	}
	if affected == 0 {
		return storage.Challenge{}, storage.ErrNotFound
	}

	row := s.sqlDB.QueryRowContext(
		ctx,
		`SELECT session_id, purpose, value, subject, session_json, issued_at, expires_at, consumed
		 FROM challenges WHERE session_id = ? AND purpose = ?`,
		sessionID,
		string(purpose),
	)
	return scanChallenge(row)
}

// DeleteExpiredChallenges removes challenges past their expiry. Consumed rows
// stay until expiry so a replay keeps failing on the consumed flag rather than
// racing the sweep.
func (s *Store) DeleteExpiredChallenges(ctx context.Context, now time.Time) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if s == nil || s.sqlDB == nil {
		return fmt.Errorf("storage is not configured")
	}
	_, err := s.sqlDB.ExecContext(
		ctx,
		"DELETE FROM challenges WHERE expires_at <= ?",
		toMillis(now),
	)
	if err != nil {
		return fmt.Errorf("delete expired challenges: %w", err)
	}
	return nil
}

func scanChallenge(row rowScanner) (storage.Challenge, error) {
	var (
		challenge storage.Challenge
		purpose   string
		issuedAt  int64
		expiresAt int64
		consumed  int64
	)
	err := row.Scan(
		&challenge.SessionID,
		&purpose,
		&challenge.Value,
		&challenge.Subject,
		&challenge.SessionJSON,
		&issuedAt,
		&expiresAt,
		&consumed,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return storage.Challenge{}, storage.ErrNotFound
		}
		return storage.Challenge{}, fmt.Errorf("scan challenge: %w", err)
	}
	challenge.Purpose = passkey.Purpose(purpose)
	challenge.IssuedAt = fromMillis(issuedAt)
	challenge.ExpiresAt = fromMillis(expiresAt)
	challenge.Consumed = consumed != 0
	return challenge, nil
}

var _ storage.ChallengeStore = (*Store)(nil)
