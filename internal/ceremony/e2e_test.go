package ceremony

import (
	"context"
	"encoding/json"
	"path/filepath"
	"testing"
	"time"

	"github.com/descope/virtualwebauthn"

	"github.com/louisbranch/latchkey/internal/passkey"
	apperrors "github.com/louisbranch/latchkey/internal/platform/errors"
	"github.com/louisbranch/latchkey/internal/storage/sqlite"
	"github.com/louisbranch/latchkey/internal/user"
)

// e2eFixture drives full ceremonies with a virtual authenticator against the
// real verifier and the real SQLite store.
type e2eFixture struct {
	engine        *Engine
	store         *sqlite.Store
	rp            virtualwebauthn.RelyingParty
	authenticator virtualwebauthn.Authenticator
	credential    virtualwebauthn.Credential
}

func newE2EFixture(t *testing.T, policy passkey.ConfirmationPolicy) *e2eFixture {
	t.Helper()
	cfg := passkey.Config{
		RPDisplayName: "Latchkey Test",
		RPID:          "example.com",
		RPOrigins:     []string{"https://example.com"},
		ChallengeTTL:  5 * time.Minute,
		PendingTTL:    15 * time.Minute,
		Confirmation:  policy,
	}

	store, err := sqlite.Open(filepath.Join(t.TempDir(), "e2e.db"))
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() {
		if err := store.Close(); err != nil {
			t.Fatalf("close store: %v", err)
		}
	})

	engine, err := New(cfg, store)
	if err != nil {
		t.Fatalf("new engine: %v", err)
	}

	return &e2eFixture{
		engine: engine,
		store:  store,
		rp: virtualwebauthn.RelyingParty{
			Name:   cfg.RPDisplayName,
			ID:     cfg.RPID,
			Origin: cfg.RPOrigins[0],
		},
		authenticator: virtualwebauthn.NewAuthenticator(),
		credential:    virtualwebauthn.NewCredential(virtualwebauthn.KeyTypeEC2),
	}
}

// signUp runs the full passkey-only signup ceremony and returns the created
// account.
func (f *e2eFixture) signUp(t *testing.T, email, displayName string) user.User {
	t.Helper()
	ctx := context.Background()

	sessionID, err := f.engine.BeginSignup(ctx, email, displayName)
	if err != nil {
		t.Fatalf("begin signup: %v", err)
	}
	creation, err := f.engine.SignupOptions(ctx, sessionID)
	if err != nil {
		t.Fatalf("signup options: %v", err)
	}

	response := f.attest(t, creation.Response)
	created, err := f.engine.FinishSignup(ctx, sessionID, response, "Primary")
	if err != nil {
		t.Fatalf("finish signup: %v", err)
	}
	f.authenticator.AddCredential(f.credential)
	return created
}

// attest feeds creation options to the virtual authenticator and returns the
// attestation response as the browser would send it.
func (f *e2eFixture) attest(t *testing.T, options any) []byte {
	t.Helper()
	optionsJSON, err := json.Marshal(options)
	if err != nil {
		t.Fatalf("encode creation options: %v", err)
	}
	parsed, err := virtualwebauthn.ParseAttestationOptions(string(optionsJSON))
	if err != nil {
		t.Fatalf("parse attestation options: %v", err)
	}
	return []byte(virtualwebauthn.CreateAttestationResponse(f.rp, f.authenticator, f.credential, *parsed))
}

// assert produces an assertion response for the given request options.
func (f *e2eFixture) assert(t *testing.T, authenticator virtualwebauthn.Authenticator, options any) []byte {
	t.Helper()
	optionsJSON, err := json.Marshal(options)
	if err != nil {
		t.Fatalf("encode request options: %v", err)
	}
	parsed, err := virtualwebauthn.ParseAssertionOptions(string(optionsJSON))
	if err != nil {
		t.Fatalf("parse assertion options: %v", err)
	}
	return []byte(virtualwebauthn.CreateAssertionResponse(f.rp, authenticator, f.credential, *parsed))
}

func TestEndToEndSignup(t *testing.T) {
	fixture := newE2EFixture(t, passkey.ConfirmationEmail)
	created := fixture.signUp(t, "e2e@example.com", "Ceremony User")

	if created.Status != user.StatusPending {
		t.Fatalf("status = %q, want pending under the email policy", created.Status)
	}
	if !created.PasskeyEnabled {
		t.Fatal("expected passkey-enabled account")
	}

	records, err := fixture.engine.ListCredentials(context.Background(), created.ID)
	if err != nil {
		t.Fatalf("list credentials: %v", err)
	}
	if len(records) != 1 || records[0].Label != "Primary" {
		t.Fatalf("unexpected credentials: %+v", records)
	}
	if records[0].LastUsedAt != nil {
		t.Fatal("expected nil last-used on a fresh credential")
	}

	queued, err := fixture.store.ListPendingOutboxEmails(context.Background(), 10)
	if err != nil {
		t.Fatalf("list outbox: %v", err)
	}
	if len(queued) != 1 || queued[0].Recipient != "e2e@example.com" {
		t.Fatalf("unexpected outbox: %+v", queued)
	}
}

func TestEndToEndLogin(t *testing.T) {
	fixture := newE2EFixture(t, passkey.ConfirmationAuto)
	created := fixture.signUp(t, "login@example.com", "Login User")
	ctx := context.Background()

	sessionID, assertion, err := fixture.engine.BeginLogin(ctx, created.ID)
	if err != nil {
		t.Fatalf("begin login: %v", err)
	}
	if len(assertion.Response.AllowedCredentials) != 1 {
		t.Fatalf("allow-list length = %d, want 1", len(assertion.Response.AllowedCredentials))
	}

	fixture.credential.Counter++
	response := fixture.assert(t, fixture.authenticator, assertion.Response)
	authenticated, err := fixture.engine.FinishLogin(ctx, sessionID, response)
	if err != nil {
		t.Fatalf("finish login: %v", err)
	}
	if authenticated.UserID != created.ID {
		t.Fatalf("user id = %q, want %q", authenticated.UserID, created.ID)
	}

	records, err := fixture.engine.ListCredentials(ctx, created.ID)
	if err != nil {
		t.Fatalf("list credentials: %v", err)
	}
	if records[0].SignCount == 0 {
		t.Fatal("expected advanced sign count after login")
	}
	if records[0].LastUsedAt == nil {
		t.Fatal("expected last-used timestamp after login")
	}

	// The challenge is single use.
	if _, err := fixture.engine.FinishLogin(ctx, sessionID, response); !apperrors.IsCode(err, apperrors.CodeChallengeInvalid) {
		t.Fatalf("expected CodeChallengeInvalid on replay, got %v", err)
	}
}

func TestEndToEndDiscoverableLogin(t *testing.T) {
	fixture := newE2EFixture(t, passkey.ConfirmationAuto)
	created := fixture.signUp(t, "discover@example.com", "Discover User")
	ctx := context.Background()

	sessionID, assertion, err := fixture.engine.BeginLogin(ctx, "")
	if err != nil {
		t.Fatalf("begin discoverable login: %v", err)
	}
	if len(assertion.Response.AllowedCredentials) != 0 {
		t.Fatalf("allow-list length = %d, want 0 for discoverable", len(assertion.Response.AllowedCredentials))
	}

	discoverable := virtualwebauthn.NewAuthenticatorWithOptions(virtualwebauthn.AuthenticatorOptions{
		UserHandle: []byte(created.ID),
	})
	discoverable.AddCredential(fixture.credential)

	fixture.credential.Counter++
	response := fixture.assert(t, discoverable, assertion.Response)
	authenticated, err := fixture.engine.FinishLogin(ctx, sessionID, response)
	if err != nil {
		t.Fatalf("finish discoverable login: %v", err)
	}
	if authenticated.UserID != created.ID {
		t.Fatalf("user id = %q, want %q", authenticated.UserID, created.ID)
	}
}

func TestEndToEndCloneDetection(t *testing.T) {
	fixture := newE2EFixture(t, passkey.ConfirmationAuto)
	created := fixture.signUp(t, "clone@example.com", "Clone User")
	ctx := context.Background()

	// A legitimate login advances the counter.
	sessionID, assertion, err := fixture.engine.BeginLogin(ctx, created.ID)
	if err != nil {
		t.Fatalf("begin login: %v", err)
	}
	fixture.credential.Counter++
	if _, err := fixture.engine.FinishLogin(ctx, sessionID, fixture.assert(t, fixture.authenticator, assertion.Response)); err != nil {
		t.Fatalf("first login: %v", err)
	}

	// A second assertion with the stale counter looks like a cloned key.
	sessionID, assertion, err = fixture.engine.BeginLogin(ctx, created.ID)
	if err != nil {
		t.Fatalf("begin second login: %v", err)
	}
	_, err = fixture.engine.FinishLogin(ctx, sessionID, fixture.assert(t, fixture.authenticator, assertion.Response))
	if !apperrors.IsCode(err, apperrors.CodePossibleCloneDetected) {
		t.Fatalf("expected CodePossibleCloneDetected, got %v", err)
	}
}

func TestEndToEndDuplicateCredential(t *testing.T) {
	fixture := newE2EFixture(t, passkey.ConfirmationAuto)
	created := fixture.signUp(t, "dup@example.com", "Dup User")
	ctx := context.Background()

	// Re-registering the same authenticator credential is refused.
	sessionID, creation, err := fixture.engine.BeginRegistration(ctx, created.ID)
	if err != nil {
		t.Fatalf("begin registration: %v", err)
	}
	if len(creation.Response.CredentialExcludeList) != 1 {
		t.Fatalf("exclude list length = %d, want 1", len(creation.Response.CredentialExcludeList))
	}

	_, err = fixture.engine.FinishRegistration(ctx, created.ID, sessionID, fixture.attest(t, creation.Response), "Again")
	if !apperrors.IsCode(err, apperrors.CodeDuplicateCredential) {
		t.Fatalf("expected CodeDuplicateCredential, got %v", err)
	}
}

func TestEndToEndSecondCredential(t *testing.T) {
	fixture := newE2EFixture(t, passkey.ConfirmationAuto)
	created := fixture.signUp(t, "second@example.com", "Second User")
	ctx := context.Background()

	sessionID, creation, err := fixture.engine.BeginRegistration(ctx, created.ID)
	if err != nil {
		t.Fatalf("begin registration: %v", err)
	}

	second := virtualwebauthn.NewAuthenticator()
	secondCredential := virtualwebauthn.NewCredential(virtualwebauthn.KeyTypeEC2)
	optionsJSON, err := json.Marshal(creation.Response)
	if err != nil {
		t.Fatalf("encode creation options: %v", err)
	}
	parsed, err := virtualwebauthn.ParseAttestationOptions(string(optionsJSON))
	if err != nil {
		t.Fatalf("parse attestation options: %v", err)
	}
	response := virtualwebauthn.CreateAttestationResponse(fixture.rp, second, secondCredential, *parsed)

	record, err := fixture.engine.FinishRegistration(ctx, created.ID, sessionID, []byte(response), "Backup")
	if err != nil {
		t.Fatalf("finish registration: %v", err)
	}
	if record.Label != "Backup" {
		t.Fatalf("label = %q, want Backup", record.Label)
	}

	records, err := fixture.engine.ListCredentials(ctx, created.ID)
	if err != nil {
		t.Fatalf("list credentials: %v", err)
	}
	if len(records) != 2 {
		t.Fatalf("len = %d, want 2", len(records))
	}
}
