package authkit

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// MemorySessionStore is an in-memory store intended for tests and dev. All
// mutations happen under one mutex, so RevokeAllForUser is trivially atomic
// with respect to concurrent CreateSession calls.
type MemorySessionStore struct {
	mutex  sync.Mutex
	clock  Clock
	byID   map[string]*RefreshSession
	byHash map[string]string
	byUser map[string][]string
}

// NewMemorySessionStore creates a new in-memory session store.
func NewMemorySessionStore(clock Clock) *MemorySessionStore {
	if clock == nil {
		clock = NewSystemClock()
	}
	return &MemorySessionStore{
		clock:  clock,
		byID:   make(map[string]*RefreshSession),
		byHash: make(map[string]string),
		byUser: make(map[string][]string),
	}
}

// CreateSession allocates a new session and returns it with the opaque token.
func (store *MemorySessionStore) CreateSession(ctx context.Context, userID string, expiresAt time.Time, deviceFingerprint string, previousSessionID string) (RefreshSession, string, error) {
	opaque, hashValue, err := generateRefreshOpaque()
	if err != nil {
		return RefreshSession{}, "", err
	}

	store.mutex.Lock()
	defer store.mutex.Unlock()

	record := &RefreshSession{
		SessionID:         newSessionID(),
		UserID:            userID,
		TokenHash:         hashValue,
		IssuedAtUnix:      store.clock.Now().Unix(),
		ExpiresUnix:       expiresAt.Unix(),
		DeviceFingerprint: deviceFingerprint,
		PreviousSessionID: previousSessionID,
	}
	store.byID[record.SessionID] = record
	store.byHash[hashValue] = record.SessionID
	store.byUser[userID] = append(store.byUser[userID], record.SessionID)
	return *record, opaque, nil
}

// FindActiveSession resolves an opaque token and stamps LastUsedUnix.
func (store *MemorySessionStore) FindActiveSession(ctx context.Context, tokenOpaque string) (RefreshSession, error) {
	if tokenOpaque == "" {
		return RefreshSession{}, fmt.Errorf("session_store.find: %w", ErrSessionEmptyOpaque)
	}

	store.mutex.Lock()
	defer store.mutex.Unlock()

	sessionID, ok := store.byHash[hashOpaque(tokenOpaque)]
	if !ok {
		return RefreshSession{}, fmt.Errorf("session_store.find: %w", ErrSessionNotFound)
	}
	record := store.byID[sessionID]
	if record == nil {
		return RefreshSession{}, fmt.Errorf("session_store.find: %w", ErrSessionNotFound)
	}
	now := store.clock.Now()
	if record.RevokedAtUnix != 0 {
		return RefreshSession{}, fmt.Errorf("session_store.find: %w", ErrSessionRevoked)
	}
	if time.Unix(record.ExpiresUnix, 0).Before(now) {
		return RefreshSession{}, fmt.Errorf("session_store.find: %w", ErrSessionExpired)
	}
	record.LastUsedUnix = now.Unix()
	return *record, nil
}

// RevokeSession marks one session revoked; unknown ids are a no-op.
func (store *MemorySessionStore) RevokeSession(ctx context.Context, sessionID string) error {
	store.mutex.Lock()
	defer store.mutex.Unlock()

	record := store.byID[sessionID]
	if record == nil || record.RevokedAtUnix != 0 {
		return nil
	}
	record.RevokedAtUnix = store.clock.Now().Unix()
	return nil
}

// RevokeAllForUser revokes every non-revoked session owned by the user.
func (store *MemorySessionStore) RevokeAllForUser(ctx context.Context, userID string) error {
	store.mutex.Lock()
	defer store.mutex.Unlock()

	nowUnix := store.clock.Now().Unix()
	for _, sessionID := range store.byUser[userID] {
		record := store.byID[sessionID]
		if record != nil && record.RevokedAtUnix == 0 {
			record.RevokedAtUnix = nowUnix
		}
	}
	return nil
}
