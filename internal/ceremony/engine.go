package ceremony

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"time"

	"github.com/go-webauthn/webauthn/protocol"
	"github.com/go-webauthn/webauthn/webauthn"

	"github.com/louisbranch/latchkey/internal/challenge"
	"github.com/louisbranch/latchkey/internal/passkey"
	"github.com/louisbranch/latchkey/internal/platform/id"
	"github.com/louisbranch/latchkey/internal/storage"
	"github.com/louisbranch/latchkey/internal/user"
)

// Store is the persistence surface the engine needs.
type Store interface {
	storage.UserStore
	storage.CredentialStore
	storage.ChallengeStore
	storage.PendingRegistrationStore
	storage.ProvisioningStore
}

type provider interface {
	BeginRegistration(user webauthn.User, opts ...webauthn.RegistrationOption) (*protocol.CredentialCreation, *webauthn.SessionData, error)
	CreateCredential(user webauthn.User, session webauthn.SessionData, response *protocol.ParsedCredentialCreationData) (*webauthn.Credential, error)
	BeginLogin(user webauthn.User, opts ...webauthn.LoginOption) (*protocol.CredentialAssertion, *webauthn.SessionData, error)
	BeginDiscoverableLogin(opts ...webauthn.LoginOption) (*protocol.CredentialAssertion, *webauthn.SessionData, error)
	ValidateLogin(user webauthn.User, session webauthn.SessionData, response *protocol.ParsedCredentialAssertionData) (*webauthn.Credential, error)
	ValidatePasskeyLogin(handler webauthn.DiscoverableUserHandler, session webauthn.SessionData, response *protocol.ParsedCredentialAssertionData) (webauthn.User, *webauthn.Credential, error)
}

type parser interface {
	ParseCredentialCreationResponseBytes(data []byte) (*protocol.ParsedCredentialCreationData, error)
	ParseCredentialRequestResponseBytes(data []byte) (*protocol.ParsedCredentialAssertionData, error)
}

type defaultParser struct{}

func (defaultParser) ParseCredentialCreationResponseBytes(data []byte) (*protocol.ParsedCredentialCreationData, error) {
	return protocol.ParseCredentialCreationResponseBytes(data)
}

func (defaultParser) ParseCredentialRequestResponseBytes(data []byte) (*protocol.ParsedCredentialAssertionData, error) {
	return protocol.ParseCredentialRequestResponseBytes(data)
}

// Engine coordinates passkey ceremonies against a verifier and a store.
type Engine struct {
	provider    provider
	parser      parser
	challenges  *challenge.Store
	users       storage.UserStore
	credentials storage.CredentialStore
	pending     storage.PendingRegistrationStore
	provisioner storage.ProvisioningStore
	config      passkey.Config
	newID       func() (string, error)
	now         func() time.Time
}

// New builds an engine from relying party configuration and a store.
func New(cfg passkey.Config, store Store) (*Engine, error) {
	if store == nil {
		return nil, fmt.Errorf("ceremony store is required")
	}
	web, err := webauthn.New(&webauthn.Config{
		RPDisplayName: cfg.RPDisplayName,
		RPID:          cfg.RPID,
		RPOrigins:     cfg.RPOrigins,
	})
	if err != nil {
		return nil, fmt.Errorf("configure webauthn: %w", err)
	}

	return &Engine{
		provider:    web,
		parser:      defaultParser{},
		challenges:  challenge.NewStore(store, cfg.ChallengeTTL),
		users:       store,
		credentials: store,
		pending:     store,
		provisioner: store,
		config:      cfg,
		newID:       id.NewID,
		now:         time.Now,
	}, nil
}

// ExpireStale removes ceremony state past its deadline: consumed or expired
// challenges and abandoned pending registrations. Advisory housekeeping;
// expiry is always enforced when the state is consumed.
func (e *Engine) ExpireStale(ctx context.Context, now time.Time) error {
	if err := e.challenges.ExpireStale(ctx, now); err != nil {
		return fmt.Errorf("expire challenges: %w", err)
	}
	if err := e.pending.DeleteExpiredPendingRegistrations(ctx, now); err != nil {
		return fmt.Errorf("expire pending registrations: %w", err)
	}
	return nil
}

// AuthenticatedUser identifies the account and credential behind a verified
// assertion.
type AuthenticatedUser struct {
	UserID       string
	CredentialID string
}

// subject is the webauthn.User a ceremony runs for: an existing user or a
// pending registration that has no account row yet.
type subject struct {
	handle      string
	name        string
	displayName string
	credentials []webauthn.Credential
}

func (s *subject) WebAuthnID() []byte {
	return []byte(s.handle)
}

func (s *subject) WebAuthnName() string {
	return s.name
}

func (s *subject) WebAuthnDisplayName() string {
	return s.displayName
}

func (s *subject) WebAuthnCredentials() []webauthn.Credential {
	return s.credentials
}

func (e *Engine) userSubject(ctx context.Context, u user.User) (*subject, []storage.Credential, error) {
	records, err := e.credentials.ListCredentials(ctx, u.ID)
	if err != nil {
		return nil, nil, fmt.Errorf("list credentials: %w", err)
	}
	parsed, err := decodeCredentialRecords(records)
	if err != nil {
		return nil, nil, err
	}
	return &subject{
		handle:      u.ID,
		name:        u.Email,
		displayName: u.DisplayName,
		credentials: parsed,
	}, records, nil
}

func decodeCredentialRecords(records []storage.Credential) ([]webauthn.Credential, error) {
	if len(records) == 0 {
		return nil, nil
	}
	credentials := make([]webauthn.Credential, 0, len(records))
	for _, record := range records {
		var credential webauthn.Credential
		if err := json.Unmarshal([]byte(record.CredentialJSON), &credential); err != nil {
			return nil, fmt.Errorf("decode credential %s: %w", record.ExternalID, err)
		}
		credentials = append(credentials, credential)
	}
	return credentials, nil
}

// encodeExternalID renders a raw credential id as the portable external id.
func encodeExternalID(raw []byte) string {
	return base64.RawURLEncoding.EncodeToString(raw)
}
