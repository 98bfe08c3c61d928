package sqlite

import (
	"context"
	"fmt"
	"strings"

	"github.com/louisbranch/latchkey/internal/storage"
	"github.com/louisbranch/latchkey/internal/user"
)

// CreateUserWithCredential creates the user row, attaches its first credential,
// and optionally enqueues a confirmation email, all in one transaction.
//
// This is the coupler's non-negotiable invariant: there is no committed state
// in which the user exists without the credential or the credential without
// the user.
func (s *Store) CreateUserWithCredential(ctx context.Context, u user.User, credential storage.Credential, email *storage.OutboxEmail) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if s == nil || s.sqlDB == nil {
		return fmt.Errorf("storage is not configured")
	}
	if strings.TrimSpace(u.ID) == "" {
		return fmt.Errorf("user id is required")
	}
	if credential.UserID != u.ID {
		return fmt.Errorf("credential owner must match user")
	}

	tx, err := s.sqlDB.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin provisioning: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	_, err = tx.ExecContext(
		ctx,
		`INSERT INTO users (id, email, display_name, status, password_hash, passkey_enabled, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, 1, ?, ?)`,
		u.ID,
		u.Email,
		u.DisplayName,
		string(u.Status),
		u.PasswordHash,
		toMillis(u.CreatedAt),
		toMillis(u.UpdatedAt),
	)
	if err != nil {
		if isUniqueViolation(err, "users.email") {
			return storage.ErrEmailRegistered
		}
		return fmt.Errorf("insert user: %w", err)
	}

	if err := insertCredential(ctx, tx, credential); err != nil {
		return err
	}

	if email != nil {
		if err := insertOutboxEmail(ctx, tx, *email); err != nil {
			return err
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit provisioning: %w", err)
	}
	return nil
}

var _ storage.ProvisioningStore = (*Store)(nil)
var _ storage.UserStore = (*Store)(nil)
