// Package mail delivers queued emails from the transactional outbox.
//
// Emails are enqueued in the same transaction as the state change that caused
// them; the dispatcher drains the queue best-effort. A delivery failure leaves
// the row pending with its attempt count bumped, never unwinds the state
// change.
package mail
