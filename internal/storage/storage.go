package storage

import (
	"context"
	"time"

	"github.com/louisbranch/latchkey/internal/passkey"
	apperrors "github.com/louisbranch/latchkey/internal/platform/errors"
	"github.com/louisbranch/latchkey/internal/user"
)

// ErrNotFound indicates a requested record is missing.
var ErrNotFound = apperrors.New(apperrors.CodeNotFound, "record not found")

// ErrDuplicateCredential indicates a credential external id is already bound.
var ErrDuplicateCredential = apperrors.New(apperrors.CodeDuplicateCredential, "credential is already registered")

// ErrEmailRegistered indicates the email already belongs to an account.
var ErrEmailRegistered = apperrors.New(apperrors.CodeEmailAlreadyRegistered, "email is already registered")

// UserStore reads account identity records. Accounts are created only
// through ProvisioningStore, in the same transaction as their first
// credential.
type UserStore interface {
	GetUser(ctx context.Context, userID string) (user.User, error)
	GetUserByEmail(ctx context.Context, email string) (user.User, error)
}

// Credential stores a bound WebAuthn credential for a user.
//
// ExternalID is the authenticator-issued identifier, unique across the whole
// system. PublicKey and CredentialJSON are immutable after creation; only
// SignCount, LastUsedAt, and Label may change.
type Credential struct {
	ExternalID     string
	UserID         string
	Label          string
	PublicKey      []byte
	SignCount      uint32
	CredentialJSON string
	CreatedAt      time.Time
	LastUsedAt     *time.Time
}

// CredentialStore persists bound credentials and their anti-replay bookkeeping.
type CredentialStore interface {
	// AttachCredential inserts a credential and marks the owner passkey-enabled
	// in one transaction. Returns ErrDuplicateCredential when the external id is
	// already bound anywhere.
	AttachCredential(ctx context.Context, credential Credential) error
	GetCredential(ctx context.Context, externalID string) (Credential, error)
	ListCredentials(ctx context.Context, userID string) ([]Credential, error)
	// UpdateCredentialUsage records a successful authentication: the new sign
	// count and last-used timestamp.
	UpdateCredentialUsage(ctx context.Context, externalID string, signCount uint32, usedAt time.Time) error
	RenameCredential(ctx context.Context, userID, externalID, label string) error
	// RemoveCredential deletes a credential owned by userID and clears the
	// owner's passkey-enabled flag when it was the last one, transactionally.
	RemoveCredential(ctx context.Context, userID, externalID string) error
}

// Challenge stores a single-use ceremony challenge keyed by session and purpose.
type Challenge struct {
	SessionID   string
	Purpose     passkey.Purpose
	Value       string
	Subject     string
	SessionJSON string
	IssuedAt    time.Time
	ExpiresAt   time.Time
	Consumed    bool
}

// ChallengeStore persists ceremony challenges.
type ChallengeStore interface {
	// PutChallenge stores a challenge, replacing any prior live challenge for
	// the same (session, purpose) pair.
	PutChallenge(ctx context.Context, challenge Challenge) error
	// ConsumeChallenge atomically marks the live challenge consumed and returns
	// it. Missing, expired, and already-consumed challenges all return
	// ErrNotFound; of N concurrent callers exactly one succeeds.
	ConsumeChallenge(ctx context.Context, sessionID string, purpose passkey.Purpose, now time.Time) (Challenge, error)
	DeleteExpiredChallenges(ctx context.Context, now time.Time) error
}

// PendingRegistration holds signup profile data awaiting a verified passkey.
type PendingRegistration struct {
	SessionID   string
	Email       string
	DisplayName string
	UserHandle  string
	CreatedAt   time.Time
	ExpiresAt   time.Time
}

// PendingRegistrationStore persists in-flight passkey-only signups.
type PendingRegistrationStore interface {
	PutPendingRegistration(ctx context.Context, pending PendingRegistration) error
	GetPendingRegistration(ctx context.Context, sessionID string) (PendingRegistration, error)
	DeletePendingRegistration(ctx context.Context, sessionID string) error
	DeleteExpiredPendingRegistrations(ctx context.Context, now time.Time) error
}

// WebSession is a durable authenticated session backing an issued token.
type WebSession struct {
	ID        string
	UserID    string
	CreatedAt time.Time
	ExpiresAt time.Time
	RevokedAt *time.Time
}

// WebSessionStore persists authenticated web sessions.
type WebSessionStore interface {
	PutWebSession(ctx context.Context, session WebSession) error
	GetWebSession(ctx context.Context, id string) (WebSession, error)
	RevokeWebSession(ctx context.Context, id string, revokedAt time.Time) error
	DeleteExpiredWebSessions(ctx context.Context, now time.Time) error
}

// Outbox email statuses.
const (
	OutboxStatusPending = "pending"
	OutboxStatusSent    = "sent"
)

// OutboxEmail is a queued notification written alongside the state change that
// caused it.
type OutboxEmail struct {
	ID           string
	Recipient    string
	Kind         string
	PayloadJSON  string
	Status       string
	AttemptCount int
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// OutboxStore persists queued emails.
type OutboxStore interface {
	EnqueueOutboxEmail(ctx context.Context, email OutboxEmail) error
	ListPendingOutboxEmails(ctx context.Context, limit int) ([]OutboxEmail, error)
	MarkOutboxEmailSent(ctx context.Context, id string, sentAt time.Time) error
	MarkOutboxEmailAttempt(ctx context.Context, id string, at time.Time) error
}

// ProvisioningStore couples account creation with its first credential.
type ProvisioningStore interface {
	// CreateUserWithCredential creates the user row, attaches the credential,
	// and optionally enqueues a confirmation email, all in one transaction.
	// Returns ErrEmailRegistered or ErrDuplicateCredential on uniqueness
	// conflicts; on any error nothing is written.
	CreateUserWithCredential(ctx context.Context, u user.User, credential Credential, email *OutboxEmail) error
}
