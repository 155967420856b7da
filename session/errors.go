package session

import "errors"

var (
	// ErrLoginFailed indicates the server rejected the supplied credentials.
	ErrLoginFailed = errors.New("login failed")
	// ErrUserUnresolved indicates the token was accepted but the user profile
	// could not be fetched; the session is parked in StateRestoring rather
	// than discarded.
	ErrUserUnresolved = errors.New("user profile unresolved")
)
