package ceremony

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/go-webauthn/webauthn/protocol"
	"github.com/go-webauthn/webauthn/webauthn"

	"github.com/louisbranch/latchkey/internal/passkey"
	apperrors "github.com/louisbranch/latchkey/internal/platform/errors"
	"github.com/louisbranch/latchkey/internal/storage"
	"github.com/louisbranch/latchkey/internal/user"
)

// ConfirmationEmailKind tags queued account confirmation emails.
const ConfirmationEmailKind = "confirmation"

// BeginSignup reserves a passkey-only signup. The email is validated and
// checked against existing accounts, and a pending registration with a
// pre-allocated user handle is stored under the returned session id.
func (e *Engine) BeginSignup(ctx context.Context, email, displayName string) (string, error) {
	input, err := user.NormalizeCreateUserInput(user.CreateUserInput{
		Email:       email,
		DisplayName: displayName,
	})
	if err != nil {
		return "", err
	}

	_, err = e.users.GetUserByEmail(ctx, input.Email)
	switch {
	case err == nil:
		return "", apperrors.New(apperrors.CodeEmailAlreadyRegistered, "email is already registered")
	case errors.Is(err, storage.ErrNotFound):
	default:
		return "", fmt.Errorf("check email: %w", err)
	}

	sessionID, err := e.newID()
	if err != nil {
		return "", fmt.Errorf("create signup session: %w", err)
	}
	handle, err := e.newID()
	if err != nil {
		return "", fmt.Errorf("create user handle: %w", err)
	}

	now := e.now().UTC()
	pending := storage.PendingRegistration{
		SessionID:   sessionID,
		Email:       input.Email,
		DisplayName: input.DisplayName,
		UserHandle:  handle,
		CreatedAt:   now,
		ExpiresAt:   now.Add(e.config.PendingTTL),
	}
	if err := e.pending.PutPendingRegistration(ctx, pending); err != nil {
		return "", fmt.Errorf("store pending registration: %w", err)
	}
	return sessionID, nil
}

// SignupOptions issues the registration ceremony options for a pending
// signup. It can be called again after a failed finish as long as the pending
// registration is alive.
func (e *Engine) SignupOptions(ctx context.Context, sessionID string) (*protocol.CredentialCreation, error) {
	pending, err := e.livePendingRegistration(ctx, sessionID)
	if err != nil {
		return nil, err
	}

	sub := pendingSubject(pending)
	creation, session, err := e.provider.BeginRegistration(sub,
		webauthn.WithResidentKeyRequirement(protocol.ResidentKeyRequirementRequired),
	)
	if err != nil {
		return nil, fmt.Errorf("begin registration: %w", err)
	}
	if err := e.bindChallenge(ctx, pending.SessionID, passkey.PurposeRegistration, pending.UserHandle, session); err != nil {
		return nil, err
	}
	return creation, nil
}

// FinishSignup verifies the registration response for a pending signup and
// provisions the account: user, credential, and (under the email policy) the
// confirmation email commit in one transaction. The pending registration is
// removed only on success, so a failed attempt can retry until it expires.
func (e *Engine) FinishSignup(ctx context.Context, sessionID string, response []byte, label string) (user.User, error) {
	if len(response) == 0 {
		return user.User{}, apperrors.New(apperrors.CodeAttestationInvalid, "credential response is required")
	}

	pending, err := e.livePendingRegistration(ctx, sessionID)
	if err != nil {
		return user.User{}, err
	}
	ch, err := e.challenges.Consume(ctx, pending.SessionID, passkey.PurposeRegistration)
	if err != nil {
		return user.User{}, err
	}
	if ch.Subject != pending.UserHandle {
		return user.User{}, apperrors.New(apperrors.CodeChallengeInvalid, "challenge does not match signup session")
	}

	credential, err := e.verifyRegistration(pendingSubject(pending), ch.SessionJSON, response)
	if err != nil {
		return user.User{}, err
	}

	status := user.StatusConfirmed
	if e.config.Confirmation == passkey.ConfirmationEmail {
		status = user.StatusPending
	}
	// The pre-allocated handle becomes the user id so the credential's user
	// handle resolves back to the account on discoverable logins.
	newUser, err := user.CreateUser(user.CreateUserInput{
		Email:       pending.Email,
		DisplayName: pending.DisplayName,
		Status:      status,
	}, e.now, func() (string, error) { return pending.UserHandle, nil })
	if err != nil {
		return user.User{}, err
	}
	newUser.PasskeyEnabled = true

	record := e.credentialRecord(newUser.ID, credential, label)
	email, err := e.confirmationEmail(newUser)
	if err != nil {
		return user.User{}, err
	}
	if err := e.provisioner.CreateUserWithCredential(ctx, newUser, record, email); err != nil {
		return user.User{}, err
	}
	_ = e.pending.DeletePendingRegistration(ctx, pending.SessionID)

	return newUser, nil
}

// confirmationEmail builds the queued confirmation email, or nil under the
// auto policy.
func (e *Engine) confirmationEmail(u user.User) (*storage.OutboxEmail, error) {
	if e.config.Confirmation != passkey.ConfirmationEmail {
		return nil, nil
	}
	emailID, err := e.newID()
	if err != nil {
		return nil, fmt.Errorf("create email id: %w", err)
	}
	payload, err := json.Marshal(map[string]string{
		"user_id":      u.ID,
		"email":        u.Email,
		"display_name": u.DisplayName,
	})
	if err != nil {
		return nil, fmt.Errorf("encode email payload: %w", err)
	}
	now := e.now().UTC()
	return &storage.OutboxEmail{
		ID:          emailID,
		Recipient:   u.Email,
		Kind:        ConfirmationEmailKind,
		PayloadJSON: string(payload),
		Status:      storage.OutboxStatusPending,
		CreatedAt:   now,
		UpdatedAt:   now,
	}, nil
}

// livePendingRegistration loads a pending signup, treating missing and
// expired rows the same way.
func (e *Engine) livePendingRegistration(ctx context.Context, sessionID string) (storage.PendingRegistration, error) {
	sessionID = strings.TrimSpace(sessionID)
	if sessionID == "" {
		return storage.PendingRegistration{}, apperrors.New(apperrors.CodeNoPendingRegistration, "signup session id is required")
	}
	pending, err := e.pending.GetPendingRegistration(ctx, sessionID)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return storage.PendingRegistration{}, apperrors.New(apperrors.CodeNoPendingRegistration, "signup session not found")
		}
		return storage.PendingRegistration{}, fmt.Errorf("load pending registration: %w", err)
	}
	if !pending.ExpiresAt.After(e.now().UTC()) {
		_ = e.pending.DeletePendingRegistration(ctx, sessionID)
		return storage.PendingRegistration{}, apperrors.New(apperrors.CodeNoPendingRegistration, "signup session expired")
	}
	return pending, nil
}

func pendingSubject(pending storage.PendingRegistration) *subject {
	return &subject{
		handle:      pending.UserHandle,
		name:        pending.Email,
		displayName: pending.DisplayName,
	}
}
