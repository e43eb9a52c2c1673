package authkit

import "errors"

// Store-level detail for operator logs. Callers outside the package treat all
// three identically through ErrInvalidSession.
var (
	// ErrSessionNotFound indicates no session matched the provided token.
	ErrSessionNotFound = errors.New("session_store.not_found")
	// ErrSessionRevoked indicates the session has been revoked.
	ErrSessionRevoked = errors.New("session_store.revoked")
	// ErrSessionExpired indicates the session exceeded its expiry.
	ErrSessionExpired = errors.New("session_store.expired")
	// ErrSessionEmptyOpaque indicates the provided opaque token text is empty.
	ErrSessionEmptyOpaque = errors.New("session_store.empty_token")
)
