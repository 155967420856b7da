// Package tokenstore abstracts the durable slot holding the session token.
// The token is the only client-side state that survives a restart; the cart
// is always rehydrated from the server once a session is ready.
package tokenstore

import "errors"

// ErrNotFound is returned by Load when no token is stored.
var ErrNotFound = errors.New("no stored token")

// Store persists a single bearer token under a fixed key. The session
// manager is the sole writer.
type Store interface {
	// Load returns the stored token, or ErrNotFound if the slot is empty.
	Load() (string, error)
	// Save stores the token, replacing any previous value.
	Save(token string) error
	// Clear empties the slot. Clearing an empty slot is not an error.
	Clear() error
}
