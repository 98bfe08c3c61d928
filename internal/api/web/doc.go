// Package web exposes the passkey ceremonies over HTTP.
//
// Handlers are thin adapters: decode the JSON request, call the coordinator,
// translate coded domain errors into HTTP statuses. No ceremony logic lives
// here.
package web
