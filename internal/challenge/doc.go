// Package challenge issues and consumes single-use ceremony challenges.
//
// A challenge binds one ceremony attempt to a session and purpose. Issuing a
// new challenge for the same (session, purpose) pair replaces the previous one,
// and consuming is atomic: of any number of concurrent finish attempts exactly
// one observes the live challenge, the rest fail closed.
package challenge
