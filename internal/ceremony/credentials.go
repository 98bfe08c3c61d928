package ceremony

import (
	"context"
	"errors"
	"fmt"
	"strings"

	apperrors "github.com/louisbranch/latchkey/internal/platform/errors"
	"github.com/louisbranch/latchkey/internal/storage"
)

// ListCredentials returns the user's passkey credentials, oldest first.
func (e *Engine) ListCredentials(ctx context.Context, userID string) ([]storage.Credential, error) {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return nil, apperrors.New(apperrors.CodeNotFound, "user id is required")
	}
	if _, err := e.users.GetUser(ctx, userID); err != nil {
		return nil, err
	}
	records, err := e.credentials.ListCredentials(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("list credentials: %w", err)
	}
	return records, nil
}

// RenameCredential sets the label on one of the user's credentials.
func (e *Engine) RenameCredential(ctx context.Context, userID, credentialID, label string) error {
	label = strings.TrimSpace(label)
	if label == "" {
		return apperrors.New(apperrors.CodeUserInvalidLabel, "label is required")
	}
	err := e.credentials.RenameCredential(ctx, userID, credentialID, label)
	if errors.Is(err, storage.ErrNotFound) {
		return apperrors.New(apperrors.CodeCredentialNotFound, "credential not found for user")
	}
	return err
}

// RemoveCredential deletes one of the user's credentials. Removing the last
// one leaves the account without the passkey sign-in method.
func (e *Engine) RemoveCredential(ctx context.Context, userID, credentialID string) error {
	err := e.credentials.RemoveCredential(ctx, userID, credentialID)
	if errors.Is(err, storage.ErrNotFound) {
		return apperrors.New(apperrors.CodeCredentialNotFound, "credential not found for user")
	}
	return err
}
