package sqlite

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/louisbranch/latchkey/internal/storage"
)

// EnqueueOutboxEmail stores a queued email.
func (s *Store) EnqueueOutboxEmail(ctx context.Context, email storage.OutboxEmail) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if s == nil || s.sqlDB == nil {
		return fmt.Errorf("storage is not configured")
	}
	return insertOutboxEmail(ctx, s.sqlDB, email)
}

func insertOutboxEmail(ctx context.Context, db execContexter, email storage.OutboxEmail) error {
	if strings.TrimSpace(email.ID) == "" {
		return fmt.Errorf("outbox email id is required")
	}
	if strings.TrimSpace(email.Recipient) == "" {
		return fmt.Errorf("outbox email recipient is required")
	}
	status := email.Status
	if status == "" {
		status = storage.OutboxStatusPending
	}
	_, err := db.ExecContext(
		ctx,
		`INSERT INTO outbox_emails (id, recipient, kind, payload_json, status, attempt_count, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		email.ID,
		email.Recipient,
		email.Kind,
		email.PayloadJSON,
		status,
		email.AttemptCount,
		toMillis(email.CreatedAt),
		toMillis(email.UpdatedAt),
	)
	if err != nil {
		return fmt.Errorf("enqueue outbox email: %w", err)
	}
	return nil
}

// ListPendingOutboxEmails returns queued emails oldest first.
func (s *Store) ListPendingOutboxEmails(ctx context.Context, limit int) ([]storage.OutboxEmail, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if s == nil || s.sqlDB == nil {
		return nil, fmt.Errorf("storage is not configured")
	}
	if limit <= 0 {
		limit = 50
	}

	rows, err := s.sqlDB.QueryContext(
		ctx,
		`SELECT id, recipient, kind, payload_json, status, attempt_count, created_at, updated_at
		 FROM outbox_emails WHERE status = ? ORDER BY created_at LIMIT ?`,
		storage.OutboxStatusPending,
		limit,
	)
	if err != nil {
		return nil, fmt.Errorf("list pending outbox emails: %w", err)
	}
	defer func() { _ = rows.Close() }()

	emails := make([]storage.OutboxEmail, 0)
	for rows.Next() {
		var (
			email     storage.OutboxEmail
			createdAt int64
			updatedAt int64
		)
		if err := rows.Scan(&email.ID, &email.Recipient, &email.Kind, &email.PayloadJSON, &email.Status, &email.AttemptCount, &createdAt, &updatedAt); err != nil {
			return nil, fmt.Errorf("scan outbox email: %w", err)
		}
		email.CreatedAt = fromMillis(createdAt)
		email.UpdatedAt = fromMillis(updatedAt)
		emails = append(emails, email)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list pending outbox emails: %w", err)
	}
	return emails, nil
}

// MarkOutboxEmailSent transitions a queued email to sent.
func (s *Store) MarkOutboxEmailSent(ctx context.Context, id string, sentAt time.Time) error {
	return s.updateOutboxEmail(ctx, id, storage.OutboxStatusSent, sentAt)
}

// MarkOutboxEmailAttempt records a failed delivery attempt.
func (s *Store) MarkOutboxEmailAttempt(ctx context.Context, id string, at time.Time) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if s == nil || s.sqlDB == nil {
		return fmt.Errorf("storage is not configured")
	}
	if strings.TrimSpace(id) == "" {
		return fmt.Errorf("outbox email id is required")
	}
	result, err := s.sqlDB.ExecContext(
		ctx,
		"UPDATE outbox_emails SET attempt_count = attempt_count + 1, updated_at = ? WHERE id = ?",
		toMillis(at),
		id,
	)
	if err != nil {
		return fmt.Errorf("mark outbox email attempt: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("mark outbox email attempt: %w", err)
	}
	if affected == 0 {
		return storage.ErrNotFound
	}
	return nil
}

func (s *Store) updateOutboxEmail(ctx context.Context, id, status string, at time.Time) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if s == nil || s.sqlDB == nil {
		return fmt.Errorf("storage is not configured")
	}
	if strings.TrimSpace(id) == "" {
		return fmt.Errorf("outbox email id is required")
	}
	result, err := s.sqlDB.ExecContext(
		ctx,
		"UPDATE outbox_emails SET status = ?, updated_at = ? WHERE id = ?",
		status,
		toMillis(at),
		id,
	)
	if err != nil {
		return fmt.Errorf("update outbox email: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("update outbox email: %w", err)
	}
	if affected == 0 {
		return storage.ErrNotFound
	}
	return nil
}

var _ storage.OutboxStore = (*Store)(nil)
