package token

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"

	apperrors "github.com/louisbranch/latchkey/internal/platform/errors"
	"github.com/louisbranch/latchkey/internal/storage"
	"github.com/louisbranch/latchkey/internal/user"
)

var testSecret = []byte("0123456789abcdef0123456789abcdef")

type fakeSessionStore struct {
	sessions map[string]storage.WebSession
}

func newFakeSessionStore() *fakeSessionStore {
	return &fakeSessionStore{sessions: make(map[string]storage.WebSession)}
}

func (f *fakeSessionStore) PutWebSession(_ context.Context, session storage.WebSession) error {
	f.sessions[session.ID] = session
	return nil
}

func (f *fakeSessionStore) GetWebSession(_ context.Context, id string) (storage.WebSession, error) {
	session, ok := f.sessions[id]
	if !ok {
		return storage.WebSession{}, storage.ErrNotFound
	}
	return session, nil
}

func (f *fakeSessionStore) RevokeWebSession(_ context.Context, id string, revokedAt time.Time) error {
	session, ok := f.sessions[id]
	if !ok || session.RevokedAt != nil {
		return storage.ErrNotFound
	}
	session.RevokedAt = &revokedAt
	f.sessions[id] = session
	return nil
}

func (f *fakeSessionStore) DeleteExpiredWebSessions(_ context.Context, now time.Time) error {
	for id, session := range f.sessions {
		if !session.ExpiresAt.After(now) {
			delete(f.sessions, id)
		}
	}
	return nil
}

func newTestService(t *testing.T, store *fakeSessionStore) *Service {
	t.Helper()
	service, err := NewService(Config{
		Issuer: "latchkey-test",
		Secret: testSecret,
		TTL:    time.Hour,
	}, store)
	if err != nil {
		t.Fatalf("new service: %v", err)
	}
	return service
}

func testUser() user.User {
	return user.User{ID: "user-1", Email: "alice@example.com", DisplayName: "Alice"}
}

func TestIssueAndVerify(t *testing.T) {
	store := newFakeSessionStore()
	service := newTestService(t, store)

	signed, session, err := service.Issue(context.Background(), testUser())
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	if strings.Count(signed, ".") != 2 {
		t.Fatalf("expected a compact JWT, got %q", signed)
	}
	if session.UserID != "user-1" {
		t.Fatalf("session user = %q, want user-1", session.UserID)
	}
	if _, ok := store.sessions[session.ID]; !ok {
		t.Fatal("expected durable session row")
	}

	verified, err := service.Verify(context.Background(), signed)
	if err != nil {
		t.Fatalf("verify: %v", err)
	}
	if verified.ID != session.ID || verified.UserID != "user-1" {
		t.Fatalf("unexpected verified session: %+v", verified)
	}
}

func TestVerifyRejectsEmptyToken(t *testing.T) {
	service := newTestService(t, newFakeSessionStore())
	if _, err := service.Verify(context.Background(), "  "); !apperrors.IsCode(err, apperrors.CodeTokenInvalid) {
		t.Fatalf("expected CodeTokenInvalid, got %v", err)
	}
}

func TestVerifyRejectsTamperedToken(t *testing.T) {
	store := newFakeSessionStore()
	service := newTestService(t, store)

	signed, _, err := service.Issue(context.Background(), testUser())
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	tampered := signed[:len(signed)-2] + "xx"
	if _, err := service.Verify(context.Background(), tampered); !apperrors.IsCode(err, apperrors.CodeTokenInvalid) {
		t.Fatalf("expected CodeTokenInvalid, got %v", err)
	}
}

func TestVerifyRejectsWrongKey(t *testing.T) {
	store := newFakeSessionStore()
	service := newTestService(t, store)
	if _, _, err := service.Issue(context.Background(), testUser()); err != nil {
		t.Fatalf("issue: %v", err)
	}

	other, err := NewService(Config{
		Issuer: "latchkey-test",
		Secret: []byte("ffffffffffffffffffffffffffffffff"),
		TTL:    time.Hour,
	}, store)
	if err != nil {
		t.Fatalf("new service: %v", err)
	}
	signed, _, err := other.Issue(context.Background(), testUser())
	if err != nil {
		t.Fatalf("issue with other key: %v", err)
	}
	if _, err := service.Verify(context.Background(), signed); !apperrors.IsCode(err, apperrors.CodeTokenInvalid) {
		t.Fatalf("expected CodeTokenInvalid, got %v", err)
	}
}

func TestVerifyRejectsWrongSigningMethod(t *testing.T) {
	service := newTestService(t, newFakeSessionStore())

	unsigned, err := jwt.NewWithClaims(jwt.SigningMethodNone, jwt.RegisteredClaims{
		Issuer:  "latchkey-test",
		Subject: "user-1",
		ID:      "sess-1",
	}).SignedString(jwt.UnsafeAllowNoneSignatureType)
	if err != nil {
		t.Fatalf("sign with none: %v", err)
	}
	if _, err := service.Verify(context.Background(), unsigned); !apperrors.IsCode(err, apperrors.CodeTokenInvalid) {
		t.Fatalf("expected CodeTokenInvalid, got %v", err)
	}
}

func TestVerifyRejectsRevokedSession(t *testing.T) {
	store := newFakeSessionStore()
	service := newTestService(t, store)

	signed, session, err := service.Issue(context.Background(), testUser())
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	if err := service.Revoke(context.Background(), session.ID); err != nil {
		t.Fatalf("revoke: %v", err)
	}

	if _, err := service.Verify(context.Background(), signed); !apperrors.IsCode(err, apperrors.CodeSessionRevoked) {
		t.Fatalf("expected CodeSessionRevoked, got %v", err)
	}
}

func TestVerifyRejectsExpiredSession(t *testing.T) {
	store := newFakeSessionStore()
	service := newTestService(t, store)

	signed, _, err := service.Issue(context.Background(), testUser())
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	service.now = func() time.Time { return time.Now().Add(2 * time.Hour) }

	if _, err := service.Verify(context.Background(), signed); !apperrors.IsCode(err, apperrors.CodeTokenInvalid) {
		t.Fatalf("expected CodeTokenInvalid for expired session, got %v", err)
	}
}

func TestVerifyRejectsMissingSessionRow(t *testing.T) {
	store := newFakeSessionStore()
	service := newTestService(t, store)

	signed, session, err := service.Issue(context.Background(), testUser())
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	delete(store.sessions, session.ID)

	if _, err := service.Verify(context.Background(), signed); !apperrors.IsCode(err, apperrors.CodeTokenInvalid) {
		t.Fatalf("expected CodeTokenInvalid for missing session, got %v", err)
	}
}

func TestRevokeUnknownSession(t *testing.T) {
	service := newTestService(t, newFakeSessionStore())
	if err := service.Revoke(context.Background(), "missing"); !apperrors.IsCode(err, apperrors.CodeTokenInvalid) {
		t.Fatalf("expected CodeTokenInvalid, got %v", err)
	}
}

func TestNewServiceValidation(t *testing.T) {
	store := newFakeSessionStore()
	if _, err := NewService(Config{Issuer: "x", Secret: []byte("short"), TTL: time.Hour}, store); err == nil {
		t.Fatal("expected error for short secret")
	}
	if _, err := NewService(Config{Secret: testSecret, TTL: time.Hour}, store); err == nil {
		t.Fatal("expected error for missing issuer")
	}
	if _, err := NewService(Config{Issuer: "x", Secret: testSecret}, store); err == nil {
		t.Fatal("expected error for missing ttl")
	}
	if _, err := NewService(Config{Issuer: "x", Secret: testSecret, TTL: time.Hour}, nil); err == nil {
		t.Fatal("expected error for missing store")
	}
}
