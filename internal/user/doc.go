// Package user provides account identity management.
//
// A user may hold a password credential, passkey credentials, or both. Passwords
// are natively optional rather than blanked sentinels, so passkey-only accounts
// never carry secret material they do not use.
package user
