package authkitpg

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/tyemirov/tutorhub/internal/authkit"
)

// PostgresSessionStore persists refresh sessions through a pgx pool, for
// deployments that skip GORM and talk to PostgreSQL directly.
type PostgresSessionStore struct {
	pool  *pgxpool.Pool
	clock authkit.Clock
}

// NewPostgresSessionStore constructs a Postgres store.
func NewPostgresSessionStore(pool *pgxpool.Pool, clock authkit.Clock) *PostgresSessionStore {
	if clock == nil {
		clock = authkit.NewSystemClock()
	}
	return &PostgresSessionStore{pool: pool, clock: clock}
}

// CreateSession inserts a new session row and returns it with the opaque token.
func (store *PostgresSessionStore) CreateSession(ctx context.Context, userID string, expiresAt time.Time, deviceFingerprint string, previousSessionID string) (authkit.RefreshSession, string, error) {
	opaque, hashValue, err := store.randomOpaque()
	if err != nil {
		return authkit.RefreshSession{}, "", err
	}
	session := authkit.RefreshSession{
		SessionID:         uuid.NewString(),
		UserID:            userID,
		TokenHash:         hashValue,
		IssuedAtUnix:      store.clock.Now().Unix(),
		ExpiresUnix:       expiresAt.Unix(),
		DeviceFingerprint: deviceFingerprint,
		PreviousSessionID: previousSessionID,
	}
	_, execErr := store.pool.Exec(ctx, `
INSERT INTO refresh_sessions (session_id, user_id, token_hash, issued_at_unix, expires_unix, revoked_at_unix, last_used_unix, device_fingerprint, previous_session_id)
VALUES ($1, $2, $3, $4, $5, 0, 0, $6, $7)
`, session.SessionID, session.UserID, session.TokenHash, session.IssuedAtUnix, session.ExpiresUnix, session.DeviceFingerprint, session.PreviousSessionID)
	if execErr != nil {
		return authkit.RefreshSession{}, "", fmt.Errorf("session_store.create.pgx: %w", execErr)
	}
	return session, opaque, nil
}

// FindActiveSession resolves an opaque token and stamps last use in the same
// conditional UPDATE, so a concurrently revoked session can never be returned.
func (store *PostgresSessionStore) FindActiveSession(ctx context.Context, tokenOpaque string) (authkit.RefreshSession, error) {
	if tokenOpaque == "" {
		return authkit.RefreshSession{}, fmt.Errorf("session_store.find.pgx: %w", authkit.ErrSessionEmptyOpaque)
	}
	now := store.clock.Now()
	var session authkit.RefreshSession
	row := store.pool.QueryRow(ctx, `
UPDATE refresh_sessions
SET last_used_unix = $1
WHERE token_hash = $2 AND revoked_at_unix = 0 AND expires_unix >= $3
RETURNING session_id, user_id, token_hash, issued_at_unix, expires_unix, revoked_at_unix, last_used_unix, device_fingerprint, previous_session_id
`, now.Unix(), store.hash(tokenOpaque), now.Unix())
	scanErr := row.Scan(&session.SessionID, &session.UserID, &session.TokenHash, &session.IssuedAtUnix, &session.ExpiresUnix, &session.RevokedAtUnix, &session.LastUsedUnix, &session.DeviceFingerprint, &session.PreviousSessionID)
	if scanErr == nil {
		return session, nil
	}
	if !errors.Is(scanErr, pgx.ErrNoRows) {
		return authkit.RefreshSession{}, fmt.Errorf("session_store.find.pgx: %w", scanErr)
	}
	return authkit.RefreshSession{}, store.classifyMiss(ctx, tokenOpaque, now)
}

// RevokeSession marks one session revoked; unknown ids are a no-op.
func (store *PostgresSessionStore) RevokeSession(ctx context.Context, sessionID string) error {
	_, err := store.pool.Exec(ctx, `
UPDATE refresh_sessions
SET revoked_at_unix = $1
WHERE session_id = $2 AND revoked_at_unix = 0
`, store.clock.Now().Unix(), sessionID)
	if err != nil {
		return fmt.Errorf("session_store.revoke.pgx: %w", err)
	}
	return nil
}

// RevokeAllForUser revokes every non-revoked session for the user in one
// statement; no read-modify-write, so concurrent creates cannot be lost.
func (store *PostgresSessionStore) RevokeAllForUser(ctx context.Context, userID string) error {
	_, err := store.pool.Exec(ctx, `
UPDATE refresh_sessions
SET revoked_at_unix = $1
WHERE user_id = $2 AND revoked_at_unix = 0
`, store.clock.Now().Unix(), userID)
	if err != nil {
		return fmt.Errorf("session_store.revoke_all.pgx: %w", err)
	}
	return nil
}

// classifyMiss distinguishes revoked, expired, and unknown tokens for the log
// line; callers treat all three identically.
func (store *PostgresSessionStore) classifyMiss(ctx context.Context, tokenOpaque string, now time.Time) error {
	var revokedAt int64
	var expiresUnix int64
	row := store.pool.QueryRow(ctx, `
SELECT revoked_at_unix, expires_unix
FROM refresh_sessions
WHERE token_hash = $1
`, store.hash(tokenOpaque))
	if scanErr := row.Scan(&revokedAt, &expiresUnix); scanErr != nil {
		return fmt.Errorf("session_store.find.pgx: %w", authkit.ErrSessionNotFound)
	}
	if revokedAt != 0 {
		return fmt.Errorf("session_store.find.pgx: %w", authkit.ErrSessionRevoked)
	}
	if time.Unix(expiresUnix, 0).Before(now) {
		return fmt.Errorf("session_store.find.pgx: %w", authkit.ErrSessionExpired)
	}
	return fmt.Errorf("session_store.find.pgx: %w", authkit.ErrSessionNotFound)
}

func (store *PostgresSessionStore) randomOpaque() (string, string, error) {
	randomBytes := make([]byte, 32)
	if _, err := rand.Read(randomBytes); err != nil {
		return "", "", fmt.Errorf("session_store.random.pgx: %w", err)
	}
	opaque := base64.RawURLEncoding.EncodeToString(randomBytes)
	return opaque, store.hash(opaque), nil
}

func (store *PostgresSessionStore) hash(opaque string) string {
	sum := sha256.Sum256([]byte(opaque))
	return base64.RawURLEncoding.EncodeToString(sum[:])
}
