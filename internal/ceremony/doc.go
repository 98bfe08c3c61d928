// Package ceremony runs WebAuthn registration and authentication ceremonies.
//
// The engine owns the ceremony lifecycle: it issues single-use challenges,
// delegates attestation and assertion verification to the go-webauthn
// verifier, enforces sign-count monotonicity, and persists the results. It
// also provisions passkey-only accounts: a pending registration reserves the
// email and user handle until its registration ceremony finishes, at which
// point the user, credential, and confirmation email commit in one
// transaction.
package ceremony
