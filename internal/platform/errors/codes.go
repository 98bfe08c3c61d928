// Package errors provides structured, coded error handling for the service.
package errors

import "net/http"

// Code is a machine-readable error code.
type Code string

const (
	// CodeUnknown represents an unknown error.
	CodeUnknown Code = "UNKNOWN"

	// Ceremony errors
	CodeChallengeInvalid        Code = "CHALLENGE_INVALID"
	CodeAttestationInvalid      Code = "ATTESTATION_INVALID"
	CodeAssertionInvalid        Code = "ASSERTION_INVALID"
	CodePossibleCloneDetected   Code = "POSSIBLE_CLONE_DETECTED"
	CodeDuplicateCredential     Code = "DUPLICATE_CREDENTIAL"
	CodeCredentialNotFound      Code = "CREDENTIAL_NOT_FOUND"
	CodeNoCredentialsForSubject Code = "NO_CREDENTIALS_FOR_SUBJECT"

	// Provisioning errors
	CodeNoPendingRegistration  Code = "NO_PENDING_REGISTRATION"
	CodeEmailAlreadyRegistered Code = "EMAIL_ALREADY_REGISTERED"

	// User errors
	CodeUserEmptyEmail       Code = "USER_EMPTY_EMAIL"
	CodeUserInvalidEmail     Code = "USER_INVALID_EMAIL"
	CodeUserEmptyDisplayName Code = "USER_EMPTY_DISPLAY_NAME"
	CodeUserInvalidLabel     Code = "USER_INVALID_LABEL"

	// Session/token errors
	CodeSessionRevoked Code = "SESSION_REVOKED"
	CodeTokenInvalid   Code = "TOKEN_INVALID"

	// Storage errors
	CodeNotFound Code = "NOT_FOUND"
)

// HTTPStatus maps domain codes to HTTP status codes.
func (c Code) HTTPStatus() int {
	switch c {
	// BadRequest - validation failures, restart the ceremony with fresh state
	case CodeChallengeInvalid,
		CodeUserEmptyEmail,
		CodeUserInvalidEmail,
		CodeUserEmptyDisplayName,
		CodeUserInvalidLabel:
		return http.StatusBadRequest

	// Unauthorized - verification rejected the response
	case CodeAttestationInvalid,
		CodeAssertionInvalid,
		CodeTokenInvalid,
		CodeSessionRevoked:
		return http.StatusUnauthorized

	// Forbidden - security-relevant rejection, kept distinct from a bad signature
	case CodePossibleCloneDetected:
		return http.StatusForbidden

	// NotFound - missing records or subject state
	case CodeCredentialNotFound,
		CodeNoCredentialsForSubject,
		CodeNoPendingRegistration,
		CodeNotFound:
		return http.StatusNotFound

	// Conflict - the record already exists elsewhere
	case CodeDuplicateCredential,
		CodeEmailAlreadyRegistered:
		return http.StatusConflict

	default:
		return http.StatusInternalServerError
	}
}
