package user

import (
	"fmt"
	"regexp"
	"strings"
	"time"

	"golang.org/x/crypto/bcrypt"

	apperrors "github.com/louisbranch/latchkey/internal/platform/errors"
	"github.com/louisbranch/latchkey/internal/platform/id"
)

var (
	// ErrEmptyEmail indicates a missing email address.
	ErrEmptyEmail = apperrors.New(apperrors.CodeUserEmptyEmail, "email is required")
	// ErrInvalidEmail indicates an email that does not match the required format.
	ErrInvalidEmail = apperrors.New(apperrors.CodeUserInvalidEmail, "email must be a valid address")
	// ErrEmptyDisplayName indicates a missing display name.
	ErrEmptyDisplayName = apperrors.New(apperrors.CodeUserEmptyDisplayName, "display name is required")

	emailPattern = regexp.MustCompile(`^[^@\s]+@[^@\s]+\.[^@\s]+$`)
)

// Status describes the confirmation state of an account.
type Status string

const (
	// StatusPending marks an account awaiting email confirmation.
	StatusPending Status = "pending"
	// StatusConfirmed marks a confirmed account.
	StatusConfirmed Status = "confirmed"
)

// CredentialKind names one way a user can authenticate.
type CredentialKind string

const (
	// CredentialKindPassword is a stored password hash.
	CredentialKindPassword CredentialKind = "password"
	// CredentialKindPasskey is at least one bound WebAuthn credential.
	CredentialKindPasskey CredentialKind = "passkey"
)

// User represents an authenticated identity record.
type User struct {
	ID             string
	Email          string
	DisplayName    string
	Status         Status
	PasswordHash   []byte // nil when the account has no password credential
	PasskeyEnabled bool   // true while at least one passkey is bound
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// CredentialKinds reports the credential kinds currently bound to the user.
func (u User) CredentialKinds() []CredentialKind {
	var kinds []CredentialKind
	if len(u.PasswordHash) > 0 {
		kinds = append(kinds, CredentialKindPassword)
	}
	if u.PasskeyEnabled {
		kinds = append(kinds, CredentialKindPasskey)
	}
	return kinds
}

// CreateUserInput describes the metadata needed to create a user.
type CreateUserInput struct {
	Email       string
	DisplayName string
	Status      Status
}

// ValidateEmail enforces the canonical email shape used across signup paths.
func ValidateEmail(s string) error {
	if !emailPattern.MatchString(s) {
		return ErrInvalidEmail
	}
	return nil
}

// NormalizeEmail lowercases and trims an email address.
func NormalizeEmail(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

// CreateUser creates a durable user identity from validated input.
//
// This is the canonical point where untrusted signup data becomes a stable
// identity; every provisioning path funnels through it.
func CreateUser(input CreateUserInput, now func() time.Time, idGenerator func() (string, error)) (User, error) {
	if now == nil {
		now = time.Now
	}
	if idGenerator == nil {
		idGenerator = id.NewID
	}

	normalized, err := NormalizeCreateUserInput(input)
	if err != nil {
		return User{}, err
	}

	userID, err := idGenerator()
	if err != nil {
		return User{}, fmt.Errorf("generate user id: %w", err)
	}

	createdAt := now().UTC()
	return User{
		ID:          userID,
		Email:       normalized.Email,
		DisplayName: normalized.DisplayName,
		Status:      normalized.Status,
		CreatedAt:   createdAt,
		UpdatedAt:   createdAt,
	}, nil
}

// NormalizeCreateUserInput trims and normalizes input before validation.
func NormalizeCreateUserInput(input CreateUserInput) (CreateUserInput, error) {
	input.Email = NormalizeEmail(input.Email)
	if input.Email == "" {
		return CreateUserInput{}, ErrEmptyEmail
	}
	if err := ValidateEmail(input.Email); err != nil {
		return CreateUserInput{}, err
	}
	input.DisplayName = strings.TrimSpace(input.DisplayName)
	if input.DisplayName == "" {
		return CreateUserInput{}, ErrEmptyDisplayName
	}
	if input.Status == "" {
		input.Status = StatusPending
	}
	return input, nil
}

// SetPassword binds a password credential to the user.
func (u *User) SetPassword(plaintext string) error {
	hash, err := bcrypt.GenerateFromPassword([]byte(plaintext), bcrypt.DefaultCost)
	if err != nil {
		return fmt.Errorf("hash password: %w", err)
	}
	u.PasswordHash = hash
	return nil
}

// CheckPassword reports whether the plaintext matches the stored hash.
// Accounts without a password credential never match.
func (u User) CheckPassword(plaintext string) bool {
	if len(u.PasswordHash) == 0 {
		return false
	}
	return bcrypt.CompareHashAndPassword(u.PasswordHash, []byte(plaintext)) == nil
}
