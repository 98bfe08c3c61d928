// Package token mints and verifies web session tokens.
//
// A token is an HS256 JWT over a durable web session row. Verification checks
// the signature and claims first, then the row: a revoked or expired session
// invalidates every token minted for it regardless of the JWT expiry.
package token
