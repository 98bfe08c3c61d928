package ceremony

import (
	"context"
	"testing"

	apperrors "github.com/louisbranch/latchkey/internal/platform/errors"
)

func TestListCredentialsUnknownUser(t *testing.T) {
	engine := newTestEngine(newFakeStore(), defaultProvider("cred-1", 0), &fakeParser{})

	_, err := engine.ListCredentials(context.Background(), "missing")
	if !apperrors.IsCode(err, apperrors.CodeNotFound) {
		t.Fatalf("expected CodeNotFound, got %v", err)
	}
}

func TestListCredentials(t *testing.T) {
	store := newFakeStore()
	seedUser(store, "user-1", "alice@example.com")
	seedCredential(t, store, "user-1", "cred-1", 1)
	seedCredential(t, store, "user-1", "cred-2", 2)
	engine := newTestEngine(store, defaultProvider("cred-1", 0), &fakeParser{})

	records, err := engine.ListCredentials(context.Background(), "user-1")
	if err != nil {
		t.Fatalf("list credentials: %v", err)
	}
	if len(records) != 2 {
		t.Fatalf("len = %d, want 2", len(records))
	}
}

func TestRenameCredential(t *testing.T) {
	store := newFakeStore()
	seedUser(store, "user-1", "alice@example.com")
	record := seedCredential(t, store, "user-1", "cred-1", 1)
	engine := newTestEngine(store, defaultProvider("cred-1", 0), &fakeParser{})

	if err := engine.RenameCredential(context.Background(), "user-1", record.ExternalID, " Backup key "); err != nil {
		t.Fatalf("rename: %v", err)
	}
	if got := store.credentials[record.ExternalID].Label; got != "Backup key" {
		t.Fatalf("label = %q, want trimmed rename", got)
	}
}

func TestRenameCredentialRejectsEmptyLabel(t *testing.T) {
	engine := newTestEngine(newFakeStore(), defaultProvider("cred-1", 0), &fakeParser{})

	err := engine.RenameCredential(context.Background(), "user-1", "cred-1", "  ")
	if !apperrors.IsCode(err, apperrors.CodeUserInvalidLabel) {
		t.Fatalf("expected CodeUserInvalidLabel, got %v", err)
	}
}

func TestRenameCredentialWrongOwner(t *testing.T) {
	store := newFakeStore()
	seedUser(store, "user-1", "alice@example.com")
	seedUser(store, "user-2", "bob@example.com")
	record := seedCredential(t, store, "user-1", "cred-1", 1)
	engine := newTestEngine(store, defaultProvider("cred-1", 0), &fakeParser{})

	err := engine.RenameCredential(context.Background(), "user-2", record.ExternalID, "stolen")
	if !apperrors.IsCode(err, apperrors.CodeCredentialNotFound) {
		t.Fatalf("expected CodeCredentialNotFound, got %v", err)
	}
}

func TestRemoveCredentialClearsFlagOnLast(t *testing.T) {
	store := newFakeStore()
	seedUser(store, "user-1", "alice@example.com")
	first := seedCredential(t, store, "user-1", "cred-1", 1)
	second := seedCredential(t, store, "user-1", "cred-2", 1)
	engine := newTestEngine(store, defaultProvider("cred-1", 0), &fakeParser{})

	if err := engine.RemoveCredential(context.Background(), "user-1", first.ExternalID); err != nil {
		t.Fatalf("remove first: %v", err)
	}
	if !store.users["user-1"].PasskeyEnabled {
		t.Fatal("expected passkey still enabled with a credential left")
	}

	if err := engine.RemoveCredential(context.Background(), "user-1", second.ExternalID); err != nil {
		t.Fatalf("remove second: %v", err)
	}
	if store.users["user-1"].PasskeyEnabled {
		t.Fatal("expected passkey disabled after last removal")
	}
}

func TestRemoveCredentialWrongOwner(t *testing.T) {
	store := newFakeStore()
	seedUser(store, "user-1", "alice@example.com")
	seedUser(store, "user-2", "bob@example.com")
	record := seedCredential(t, store, "user-1", "cred-1", 1)
	engine := newTestEngine(store, defaultProvider("cred-1", 0), &fakeParser{})

	err := engine.RemoveCredential(context.Background(), "user-2", record.ExternalID)
	if !apperrors.IsCode(err, apperrors.CodeCredentialNotFound) {
		t.Fatalf("expected CodeCredentialNotFound, got %v", err)
	}
}
