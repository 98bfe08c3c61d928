package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/louisbranch/latchkey/internal/storage"
)

// PutPendingRegistration stores an in-flight passkey-only signup keyed by
// session, replacing any prior pending signup for the same session.
func (s *Store) PutPendingRegistration(ctx context.Context, pending storage.PendingRegistration) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if s == nil || s.sqlDB == nil {
		return fmt.Errorf("storage is not configured")
	}
	if strings.TrimSpace(pending.SessionID) == "" {
		return fmt.Errorf("pending session id is required")
	}
	if strings.TrimSpace(pending.Email) == "" {
		return fmt.Errorf("pending email is required")
	}
	if strings.TrimSpace(pending.UserHandle) == "" {
		return fmt.Errorf("pending user handle is required")
	}

	_, err := s.sqlDB.ExecContext(
		ctx,
		`INSERT INTO pending_registrations (session_id, email, display_name, user_handle, created_at, expires_at)
		 VALUES (?, ?, ?, ?, ?, ?)
		 ON CONFLICT (session_id) DO UPDATE SET
		   email = excluded.email,
		   display_name = excluded.display_name,
		   user_handle = excluded.user_handle,
		   created_at = excluded.created_at,
		   expires_at = excluded.expires_at`,
		pending.SessionID,
		pending.Email,
		pending.DisplayName,
		pending.UserHandle,
		toMillis(pending.CreatedAt),
		toMillis(pending.ExpiresAt),
	)
	if err != nil {
		return fmt.Errorf("put pending registration: %w", err)
	}
	return nil
}

// GetPendingRegistration fetches an in-flight signup by session id.
func (s *Store) GetPendingRegistration(ctx context.Context, sessionID string) (storage.PendingRegistration, error) {
	if err := ctx.Err(); err != nil {
		return storage.PendingRegistration{}, err
	}
	if s == nil || s.sqlDB == nil {
		return storage.PendingRegistration{}, fmt.Errorf("storage is not configured")
	}
	if strings.TrimSpace(sessionID) == "" {
		return storage.PendingRegistration{}, fmt.Errorf("session id is required")
	}

	row := s.sqlDB.QueryRowContext(
		ctx,
		`SELECT session_id, email, display_name, user_handle, created_at, expires_at
		 FROM pending_registrations WHERE session_id = ?`,
		sessionID,
	)

	var (
		pending   storage.PendingRegistration
		createdAt int64
		expiresAt int64
	)
	err := row.Scan(&pending.SessionID, &pending.Email, &pending.DisplayName, &pending.UserHandle, &createdAt, &expiresAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return storage.PendingRegistration{}, storage.ErrNotFound
		}
		return storage.PendingRegistration{}, fmt.Errorf("scan pending registration: %w", err)
	}
	pending.CreatedAt = fromMillis(createdAt)
	pending.ExpiresAt = fromMillis(expiresAt)
	return pending, nil
}

// DeletePendingRegistration removes an in-flight signup.
func (s *Store) DeletePendingRegistration(ctx context.Context, sessionID string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if s == nil || s.sqlDB == nil {
		return fmt.Errorf("storage is not configured")
	}
	if strings.TrimSpace(sessionID) == "" {
		return fmt.Errorf("session id is required")
	}
	_, err := s.sqlDB.ExecContext(ctx, "DELETE FROM pending_registrations WHERE session_id = ?", sessionID)
	if err != nil {
		return fmt.Errorf("delete pending registration: %w", err)
	}
	return nil
}

// DeleteExpiredPendingRegistrations removes signups past their expiry.
func (s *Store) DeleteExpiredPendingRegistrations(ctx context.Context, now time.Time) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if s == nil || s.sqlDB == nil {
		return fmt.Errorf("storage is not configured")
	}
	_, err := s.sqlDB.ExecContext(ctx, "DELETE FROM pending_registrations WHERE expires_at <= ?", toMillis(now))
	if err != nil {
		return fmt.Errorf("delete expired pending registrations: %w", err)
	}
	return nil
}

var _ storage.PendingRegistrationStore = (*Store)(nil)
