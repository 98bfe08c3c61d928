// Package passkey configures WebAuthn relying-party behavior.
//
// It models challenge lifetimes, pending-signup lifetimes, and the account
// confirmation policy so the ceremony engine can be tuned per deployment
// without touching ceremony code.
package passkey
