// Package storage defines the persistence contracts for the ceremony engine.
//
// Interfaces are narrow on purpose: each coordinator depends only on the slice
// of persistence it orchestrates, and tests swap in hand-written fakes.
package storage
