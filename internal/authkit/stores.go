package authkit

import (
	"context"
	"time"
)

// Identity is the resolved caller attached to a request by the gate.
type Identity struct {
	ID    string
	Email string
	Role  Role
}

// User is the credential-store record this core reads and writes.
type User struct {
	ID           string
	FullName     string
	Email        string
	PasswordHash string
	Role         Role
	Active       bool
}

// RefreshSession is one persisted refresh-token record. A user may hold
// several concurrently, one per device.
type RefreshSession struct {
	SessionID         string
	UserID            string
	TokenHash         string
	IssuedAtUnix      int64
	ExpiresUnix       int64
	RevokedAtUnix     int64
	LastUsedUnix      int64
	DeviceFingerprint string
	PreviousSessionID string
}

// UserStore is the narrow credential-store contract.
type UserStore interface {
	CreateUser(ctx context.Context, user User) (User, error)
	FindUserByEmail(ctx context.Context, email string) (User, error)
	FindUserByID(ctx context.Context, userID string) (User, error)
}

// SessionStore persists refresh sessions and their revocation state.
type SessionStore interface {
	// CreateSession allocates a fresh session and returns it together with
	// the opaque refresh token; only the token's hash is persisted.
	CreateSession(ctx context.Context, userID string, expiresAt time.Time, deviceFingerprint string, previousSessionID string) (RefreshSession, string, error)
	// FindActiveSession resolves an opaque refresh token, marks the session
	// used, and returns it. Fails with ErrSessionNotFound, ErrSessionRevoked,
	// or ErrSessionExpired.
	FindActiveSession(ctx context.Context, tokenOpaque string) (RefreshSession, error)
	// RevokeSession marks one session revoked. Revoking an unknown or
	// already-revoked session is not an error.
	RevokeSession(ctx context.Context, sessionID string) error
	// RevokeAllForUser atomically revokes every non-revoked session owned by
	// the user.
	RevokeAllForUser(ctx context.Context, userID string) error
}
