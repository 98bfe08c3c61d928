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

const defaultCredentialLabel = "Passkey"

// BeginRegistration starts an add-passkey ceremony for an existing user. It
// returns the ceremony session id and the credential creation options to hand
// to the authenticator.
func (e *Engine) BeginRegistration(ctx context.Context, userID string) (string, *protocol.CredentialCreation, error) {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return "", nil, apperrors.New(apperrors.CodeNotFound, "user id is required")
	}
	baseUser, err := e.users.GetUser(ctx, userID)
	if err != nil {
		return "", nil, err
	}

	sub, _, err := e.userSubject(ctx, baseUser)
	if err != nil {
		return "", nil, err
	}

	options := []webauthn.RegistrationOption{
		webauthn.WithResidentKeyRequirement(protocol.ResidentKeyRequirementRequired),
	}
	if len(sub.credentials) > 0 {
		options = append(options, webauthn.WithExclusions(webauthn.Credentials(sub.credentials).CredentialDescriptors()))
	}

	creation, session, err := e.provider.BeginRegistration(sub, options...)
	if err != nil {
		return "", nil, fmt.Errorf("begin registration: %w", err)
	}

	sessionID, err := e.newID()
	if err != nil {
		return "", nil, fmt.Errorf("create ceremony session: %w", err)
	}
	if err := e.bindChallenge(ctx, sessionID, passkey.PurposeRegistration, baseUser.ID, session); err != nil {
		return "", nil, err
	}
	return sessionID, creation, nil
}

// FinishRegistration verifies the authenticator response for an add-passkey
// ceremony and binds the new credential to the user. The caller's userID must
// match the subject the ceremony was begun for; the check runs before any
// verification or write so a foreign response never persists a credential.
func (e *Engine) FinishRegistration(ctx context.Context, userID, sessionID string, response []byte, label string) (storage.Credential, error) {
	if len(response) == 0 {
		return storage.Credential{}, apperrors.New(apperrors.CodeAttestationInvalid, "credential response is required")
	}

	ch, err := e.challenges.Consume(ctx, sessionID, passkey.PurposeRegistration)
	if err != nil {
		return storage.Credential{}, err
	}
	if ch.Subject != strings.TrimSpace(userID) {
		return storage.Credential{}, apperrors.New(apperrors.CodeChallengeInvalid, "ceremony belongs to another user")
	}
	baseUser, err := e.users.GetUser(ctx, ch.Subject)
	if err != nil {
		return storage.Credential{}, err
	}
	sub, _, err := e.userSubject(ctx, baseUser)
	if err != nil {
		return storage.Credential{}, err
	}

	credential, err := e.verifyRegistration(sub, ch.SessionJSON, response)
	if err != nil {
		return storage.Credential{}, err
	}

	record := e.credentialRecord(baseUser.ID, credential, label)
	if err := e.attachNewCredential(ctx, record); err != nil {
		return storage.Credential{}, err
	}
	return record, nil
}

// verifyRegistration parses and verifies an attestation response against the
// stored ceremony session.
func (e *Engine) verifyRegistration(sub *subject, sessionJSON string, response []byte) (*webauthn.Credential, error) {
	var session webauthn.SessionData
	if err := json.Unmarshal([]byte(sessionJSON), &session); err != nil {
		return nil, fmt.Errorf("decode ceremony session: %w", err)
	}

	parsed, err := e.parser.ParseCredentialCreationResponseBytes(response)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.CodeAttestationInvalid, "parse credential response", err)
	}
	credential, err := e.provider.CreateCredential(sub, session, parsed)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.CodeAttestationInvalid, "verify attestation", err)
	}
	return credential, nil
}

// credentialRecord renders a verified credential as its storage record. The
// verified sign count is kept as-is; zero is a valid starting point.
func (e *Engine) credentialRecord(userID string, credential *webauthn.Credential, label string) storage.Credential {
	label = strings.TrimSpace(label)
	if label == "" {
		label = defaultCredentialLabel
	}
	credentialJSON, err := json.Marshal(credential)
	if err != nil {
		// webauthn.Credential is a plain struct; marshaling cannot fail.
		credentialJSON = []byte("{}")
	}
	return storage.Credential{
		ExternalID:     encodeExternalID(credential.ID),
		UserID:         userID,
		Label:          label,
		PublicKey:      credential.PublicKey,
		SignCount:      credential.Authenticator.SignCount,
		CredentialJSON: string(credentialJSON),
		CreatedAt:      e.now().UTC(),
	}
}

// attachNewCredential persists a freshly verified credential. The advisory
// lookup gives a clean error for the common case; the unique constraint on
// external_id stays authoritative under races.
func (e *Engine) attachNewCredential(ctx context.Context, record storage.Credential) error {
	_, err := e.credentials.GetCredential(ctx, record.ExternalID)
	switch {
	case err == nil:
		return apperrors.New(apperrors.CodeDuplicateCredential, "credential is already registered")
	case errors.Is(err, storage.ErrNotFound):
	default:
		return fmt.Errorf("check credential: %w", err)
	}
	if err := e.credentials.AttachCredential(ctx, record); err != nil {
		return err
	}
	return nil
}

// bindChallenge stores the verifier session under the ceremony session id.
func (e *Engine) bindChallenge(ctx context.Context, sessionID string, purpose passkey.Purpose, subjectID string, session *webauthn.SessionData) error {
	if session == nil {
		return fmt.Errorf("ceremony session data is required")
	}
	payload, err := json.Marshal(session)
	if err != nil {
		return fmt.Errorf("encode ceremony session: %w", err)
	}
	if _, err := e.challenges.Issue(ctx, sessionID, purpose, subjectID, session.Challenge, string(payload)); err != nil {
		return err
	}
	return nil
}
