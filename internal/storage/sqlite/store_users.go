package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/louisbranch/latchkey/internal/storage"
	"github.com/louisbranch/latchkey/internal/user"
)

const userColumns = "id, email, display_name, status, password_hash, passkey_enabled, created_at, updated_at"

// putUser inserts or updates an account record. Production accounts are
// created inside CreateUserWithCredential; this upsert backs package tests.
func (s *Store) putUser(ctx context.Context, u user.User) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if s == nil || s.sqlDB == nil {
		return fmt.Errorf("storage is not configured")
	}
	if strings.TrimSpace(u.ID) == "" {
		return fmt.Errorf("user id is required")
	}
	if strings.TrimSpace(u.Email) == "" {
		return fmt.Errorf("user email is required")
	}

	_, err := s.sqlDB.ExecContext(
		ctx,
		`INSERT INTO users (id, email, display_name, status, password_hash, passkey_enabled, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT (id) DO UPDATE SET
		   email = excluded.email,
		   display_name = excluded.display_name,
		   status = excluded.status,
		   password_hash = excluded.password_hash,
		   passkey_enabled = excluded.passkey_enabled,
		   updated_at = excluded.updated_at`,
		u.ID,
		u.Email,
		u.DisplayName,
		string(u.Status),
		u.PasswordHash,
		boolToInt(u.PasskeyEnabled),
		toMillis(u.CreatedAt),
		toMillis(u.UpdatedAt),
	)
	if err != nil {
		if isUniqueViolation(err, "users.email") {
			return storage.ErrEmailRegistered
		}
		return fmt.Errorf("put user: %w", err)
	}
	return nil
}

// GetUser fetches an account record by id.
func (s *Store) GetUser(ctx context.Context, userID string) (user.User, error) {
	if err := ctx.Err(); err != nil {
		return user.User{}, err
	}
	if s == nil || s.sqlDB == nil {
		return user.User{}, fmt.Errorf("storage is not configured")
	}
	if strings.TrimSpace(userID) == "" {
		return user.User{}, fmt.Errorf("user id is required")
	}

	row := s.sqlDB.QueryRowContext(ctx, "SELECT "+userColumns+" FROM users WHERE id = ?", userID)
	return scanUser(row)
}

// GetUserByEmail fetches an account record by normalized email.
func (s *Store) GetUserByEmail(ctx context.Context, email string) (user.User, error) {
	if err := ctx.Err(); err != nil {
		return user.User{}, err
	}
	if s == nil || s.sqlDB == nil {
		return user.User{}, fmt.Errorf("storage is not configured")
	}
	email = user.NormalizeEmail(email)
	if email == "" {
		return user.User{}, fmt.Errorf("email is required")
	}

	row := s.sqlDB.QueryRowContext(ctx, "SELECT "+userColumns+" FROM users WHERE email = ?", email)
	return scanUser(row)
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanUser(row rowScanner) (user.User, error) {
	var (
		u              user.User
		status         string
		passwordHash   []byte
		passkeyEnabled int64
		createdAt      int64
		updatedAt      int64
	)
	err := row.Scan(&u.ID, &u.Email, &u.DisplayName, &status, &passwordHash, &passkeyEnabled, &createdAt, &updatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return user.User{}, storage.ErrNotFound
		}
		return user.User{}, fmt.Errorf("scan user: %w", err)
	}
	u.Status = user.Status(status)
	u.PasswordHash = passwordHash
	u.PasskeyEnabled = passkeyEnabled != 0
	u.CreatedAt = fromMillis(createdAt)
	u.UpdatedAt = fromMillis(updatedAt)
	return u, nil
}

func boolToInt(value bool) int64 {
	if value {
		return 1
	}
	return 0
}
