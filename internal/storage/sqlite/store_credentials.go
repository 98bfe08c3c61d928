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

const credentialColumns = "external_id, user_id, label, public_key, sign_count, credential_json, created_at, last_used_at"

// AttachCredential inserts a credential and marks its owner passkey-enabled in
// one transaction. The external id UNIQUE constraint is the authoritative guard
// against the same authenticator registering twice.
func (s *Store) AttachCredential(ctx context.Context, credential storage.Credential) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if s == nil || s.sqlDB == nil {
		return fmt.Errorf("storage is not configured")
	}
	if strings.TrimSpace(credential.ExternalID) == "" {
		return fmt.Errorf("credential external id is required")
	}
	if strings.TrimSpace(credential.UserID) == "" {
		return fmt.Errorf("credential user id is required")
	}
	if len(credential.PublicKey) == 0 {
		return fmt.Errorf("credential public key is required")
	}

	tx, err := s.sqlDB.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin attach credential: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if err := insertCredential(ctx, tx, credential); err != nil {
		return err
	}
	if err := setPasskeyEnabled(ctx, tx, credential.UserID, true, credential.CreatedAt); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit attach credential: %w", err)
	}
	return nil
}

type execContexter interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

func insertCredential(ctx context.Context, db execContexter, credential storage.Credential) error {
	lastUsed := sql.NullInt64{}
	if credential.LastUsedAt != nil {
		lastUsed = sql.NullInt64{Int64: toMillis(*credential.LastUsedAt), Valid: true}
	}
	_, err := db.ExecContext(
		ctx,
		`INSERT INTO credentials (external_id, user_id, label, public_key, sign_count, credential_json, created_at, last_used_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		credential.ExternalID,
		credential.UserID,
		credential.Label,
		credential.PublicKey,
		int64(credential.SignCount),
		credential.CredentialJSON,
		toMillis(credential.CreatedAt),
		lastUsed,
	)
	if err != nil {
		if isUniqueViolation(err, "credentials.external_id") {
			return storage.ErrDuplicateCredential
		}
		return fmt.Errorf("insert credential: %w", err)
	}
	return nil
}

func setPasskeyEnabled(ctx context.Context, db execContexter, userID string, enabled bool, at time.Time) error {
	_, err := db.ExecContext(
		ctx,
		"UPDATE users SET passkey_enabled = ?, updated_at = ? WHERE id = ?",
		boolToInt(enabled),
		toMillis(at),
		userID,
	)
	if err != nil {
		return fmt.Errorf("update passkey enabled: %w", err)
	}
	return nil
}

// GetCredential fetches a stored credential by external id.
func (s *Store) GetCredential(ctx context.Context, externalID string) (storage.Credential, error) {
	if err := ctx.Err(); err != nil {
		return storage.Credential{}, err
	}
	if s == nil || s.sqlDB == nil {
		return storage.Credential{}, fmt.Errorf("storage is not configured")
	}
	if strings.TrimSpace(externalID) == "" {
		return storage.Credential{}, fmt.Errorf("credential external id is required")
	}

	row := s.sqlDB.QueryRowContext(ctx, "SELECT "+credentialColumns+" FROM credentials WHERE external_id = ?", externalID)
	return scanCredential(row)
}

// ListCredentials returns the credentials bound to a user, oldest first.
func (s *Store) ListCredentials(ctx context.Context, userID string) ([]storage.Credential, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if s == nil || s.sqlDB == nil {
		return nil, fmt.Errorf("storage is not configured")
	}
	if strings.TrimSpace(userID) == "" {
		return nil, fmt.Errorf("user id is required")
	}

	rows, err := s.sqlDB.QueryContext(
		ctx,
		"SELECT "+credentialColumns+" FROM credentials WHERE user_id = ? ORDER BY created_at, external_id",
		userID,
	)
	if err != nil {
		return nil, fmt.Errorf("list credentials: %w", err)
	}
	defer func() { _ = rows.Close() }()

	credentials := make([]storage.Credential, 0)
	for rows.Next() {
		credential, err := scanCredential(rows)
		if err != nil {
			return nil, err
		}
		credentials = append(credentials, credential)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list credentials: %w", err)
	}
	return credentials, nil
}

// UpdateCredentialUsage records a successful authentication for a credential.
func (s *Store) UpdateCredentialUsage(ctx context.Context, externalID string, signCount uint32, usedAt time.Time) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if s == nil || s.sqlDB == nil {
		return fmt.Errorf("storage is not configured")
	}
	if strings.TrimSpace(externalID) == "" {
		return fmt.Errorf("credential external id is required")
	}

	result, err := s.sqlDB.ExecContext(
		ctx,
		"UPDATE credentials SET sign_count = ?, last_used_at = ? WHERE external_id = ?",
		int64(signCount),
		toMillis(usedAt),
		externalID,
	)
	if err != nil {
		return fmt.Errorf("update credential usage: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("update credential usage: %w", err)
	}
	if affected == 0 {
		return storage.ErrNotFound
	}
	return nil
}

// RenameCredential updates a credential label for its owner.
func (s *Store) RenameCredential(ctx context.Context, userID, externalID, label string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if s == nil || s.sqlDB == nil {
		return fmt.Errorf("storage is not configured")
	}
	if strings.TrimSpace(externalID) == "" || strings.TrimSpace(userID) == "" {
		return fmt.Errorf("credential external id and user id are required")
	}

	result, err := s.sqlDB.ExecContext(
		ctx,
		"UPDATE credentials SET label = ? WHERE external_id = ? AND user_id = ?",
		label,
		externalID,
		userID,
	)
	if err != nil {
		return fmt.Errorf("rename credential: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("rename credential: %w", err)
	}
	if affected == 0 {
		return storage.ErrNotFound
	}
	return nil
}

// RemoveCredential deletes a credential owned by userID, clearing the owner's
// passkey-enabled flag when it was the last one.
func (s *Store) RemoveCredential(ctx context.Context, userID, externalID string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if s == nil || s.sqlDB == nil {
		return fmt.Errorf("storage is not configured")
	}
	if strings.TrimSpace(externalID) == "" || strings.TrimSpace(userID) == "" {
		return fmt.Errorf("credential external id and user id are required")
	}

	tx, err := s.sqlDB.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin remove credential: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	result, err := tx.ExecContext(
		ctx,
		"DELETE FROM credentials WHERE external_id = ? AND user_id = ?",
		externalID,
		userID,
	)
	if err != nil {
		return fmt.Errorf("delete credential: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("delete credential: %w", err)
	}
	if affected == 0 {
		return storage.ErrNotFound
	}

	var remaining int64
	if err := tx.QueryRowContext(ctx, "SELECT COUNT(*) FROM credentials WHERE user_id = ?", userID).Scan(&remaining); err != nil {
		return fmt.Errorf("count remaining credentials: %w", err)
	}
	if remaining == 0 {
		if err := setPasskeyEnabled(ctx, tx, userID, false, time.Now().UTC()); err != nil {
			return err
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit remove credential: %w", err)
	}
	return nil
}

func scanCredential(row rowScanner) (storage.Credential, error) {
	var (
		credential storage.Credential
		signCount  int64
		createdAt  int64
		lastUsed   sql.NullInt64
	)
	err := row.Scan(
		&credential.ExternalID,
		&credential.UserID,
		&credential.Label,
		&credential.PublicKey,
		&signCount,
		&credential.CredentialJSON,
		&createdAt,
		&lastUsed,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return storage.Credential{}, storage.ErrNotFound
		}
		return storage.Credential{}, fmt.Errorf("scan credential: %w", err)
	}
	credential.SignCount = uint32(signCount)
	credential.CreatedAt = fromMillis(createdAt)
	if lastUsed.Valid {
		value := fromMillis(lastUsed.Int64)
		credential.LastUsedAt = &value
	}
	return credential, nil
}

var _ storage.CredentialStore = (*Store)(nil)
