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
)

// BeginLogin starts an authentication ceremony. With a user id the options
// carry an allow-list of that user's credentials; an empty user id starts a
// discoverable (usernameless) ceremony.
func (e *Engine) BeginLogin(ctx context.Context, userID string) (string, *protocol.CredentialAssertion, error) {
	userID = strings.TrimSpace(userID)

	var (
		assertion *protocol.CredentialAssertion
		session   *webauthn.SessionData
	)
	if userID == "" {
		var err error
		assertion, session, err = e.provider.BeginDiscoverableLogin()
		if err != nil {
			return "", nil, fmt.Errorf("begin discoverable login: %w", err)
		}
	} else {
		baseUser, err := e.users.GetUser(ctx, userID)
		if err != nil {
			return "", nil, err
		}
		sub, records, err := e.userSubject(ctx, baseUser)
		if err != nil {
			return "", nil, err
		}
		// The user exists but cannot complete a passkey ceremony. Distinct
		// from an unknown user.
		if len(records) == 0 {
			return "", nil, apperrors.New(apperrors.CodeNoCredentialsForSubject, "user has no passkey credentials")
		}
		assertion, session, err = e.provider.BeginLogin(sub)
		if err != nil {
			return "", nil, fmt.Errorf("begin login: %w", err)
		}
	}

	sessionID, err := e.newID()
	if err != nil {
		return "", nil, fmt.Errorf("create ceremony session: %w", err)
	}
	if err := e.bindChallenge(ctx, sessionID, passkey.PurposeAuthentication, userID, session); err != nil {
		return "", nil, err
	}
	return sessionID, assertion, nil
}

// FinishLogin verifies an assertion response, enforces sign-count
// monotonicity, and records the credential use. A failed sign-count check
// writes nothing.
func (e *Engine) FinishLogin(ctx context.Context, sessionID string, response []byte) (AuthenticatedUser, error) {
	if len(response) == 0 {
		return AuthenticatedUser{}, apperrors.New(apperrors.CodeAssertionInvalid, "credential response is required")
	}

	ch, err := e.challenges.Consume(ctx, sessionID, passkey.PurposeAuthentication)
	if err != nil {
		return AuthenticatedUser{}, err
	}

	parsed, err := e.parser.ParseCredentialRequestResponseBytes(response)
	if err != nil {
		return AuthenticatedUser{}, apperrors.Wrap(apperrors.CodeAssertionInvalid, "parse credential response", err)
	}

	externalID := encodeExternalID(parsed.RawID)
	record, err := e.credentials.GetCredential(ctx, externalID)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return AuthenticatedUser{}, apperrors.New(apperrors.CodeCredentialNotFound, "credential is not registered")
		}
		return AuthenticatedUser{}, fmt.Errorf("look up credential: %w", err)
	}

	var session webauthn.SessionData
	if err := json.Unmarshal([]byte(ch.SessionJSON), &session); err != nil {
		return AuthenticatedUser{}, fmt.Errorf("decode ceremony session: %w", err)
	}

	validated, err := e.validateAssertion(ctx, ch.Subject, record, session, parsed)
	if err != nil {
		return AuthenticatedUser{}, err
	}

	if err := ValidateSignCount(record.SignCount, validated.Authenticator.SignCount); err != nil {
		return AuthenticatedUser{}, err
	}
	if err := e.credentials.UpdateCredentialUsage(ctx, externalID, validated.Authenticator.SignCount, e.now().UTC()); err != nil {
		return AuthenticatedUser{}, fmt.Errorf("record credential use: %w", err)
	}

	return AuthenticatedUser{UserID: record.UserID, CredentialID: externalID}, nil
}

// validateAssertion delegates assertion verification, picking the allow-list
// or discoverable path based on how the ceremony began.
func (e *Engine) validateAssertion(ctx context.Context, subjectID string, record storage.Credential, session webauthn.SessionData, parsed *protocol.ParsedCredentialAssertionData) (*webauthn.Credential, error) {
	if subjectID == "" {
		_, validated, err := e.provider.ValidatePasskeyLogin(e.discoverableHandler(ctx), session, parsed)
		if err != nil {
			return nil, apperrors.Wrap(apperrors.CodeAssertionInvalid, "verify assertion", err)
		}
		return validated, nil
	}

	if record.UserID != subjectID {
		return nil, apperrors.New(apperrors.CodeCredentialNotFound, "credential belongs to another user")
	}
	baseUser, err := e.users.GetUser(ctx, subjectID)
	if err != nil {
		return nil, err
	}
	sub, _, err := e.userSubject(ctx, baseUser)
	if err != nil {
		return nil, err
	}
	validated, err := e.provider.ValidateLogin(sub, session, parsed)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.CodeAssertionInvalid, "verify assertion", err)
	}
	return validated, nil
}

// discoverableHandler resolves the user behind a discoverable assertion from
// the user handle the authenticator returns.
func (e *Engine) discoverableHandler(ctx context.Context) webauthn.DiscoverableUserHandler {
	return func(_, userHandle []byte) (webauthn.User, error) {
		userID := strings.TrimSpace(string(userHandle))
		if userID == "" {
			return nil, fmt.Errorf("user handle is required")
		}
		baseUser, err := e.users.GetUser(ctx, userID)
		if err != nil {
			return nil, err
		}
		sub, _, err := e.userSubject(ctx, baseUser)
		if err != nil {
			return nil, err
		}
		return sub, nil
	}
}
