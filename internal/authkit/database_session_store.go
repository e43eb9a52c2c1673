package authkit

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	sqliteDialector "github.com/glebarez/sqlite"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

var (
	// ErrUnsupportedDialect indicates that no GORM dialector is available for the scheme.
	ErrUnsupportedDialect = errors.New("session_store.unsupported_dialect")

	errEmptyDatabaseURL    = errors.New("session_store.empty_database_url")
	errSQLiteEmptyPath     = errors.New("session_store.sqlite.empty_path")
	errSQLiteInvalidURL    = errors.New("session_store.sqlite.invalid_url")
	errUnsupportedNoScheme = errors.New("session_store.unsupported_no_scheme")
)

// DatabaseSessionStore persists refresh sessions using GORM.
type DatabaseSessionStore struct {
	db          *gorm.DB
	clock       Clock
	driverLabel string
}

// Driver exposes the selected database driver label.
func (store *DatabaseSessionStore) Driver() string {
	return store.driverLabel
}

type refreshSessionRecord struct {
	SessionID         string `gorm:"column:session_id;primaryKey"`
	UserID            string `gorm:"column:user_id;index;not null"`
	TokenHash         string `gorm:"column:token_hash;uniqueIndex;not null"`
	IssuedAtUnix      int64  `gorm:"column:issued_at_unix;not null"`
	ExpiresUnix       int64  `gorm:"column:expires_unix;not null"`
	RevokedAtUnix     int64  `gorm:"column:revoked_at_unix;not null;default:0"`
	LastUsedUnix      int64  `gorm:"column:last_used_unix;not null;default:0"`
	DeviceFingerprint string `gorm:"column:device_fingerprint;not null;default:''"`
	PreviousSessionID string `gorm:"column:previous_session_id;not null;default:''"`
}

func (refreshSessionRecord) TableName() string {
	return "refresh_sessions"
}

func (record refreshSessionRecord) toSession() RefreshSession {
	return RefreshSession{
		SessionID:         record.SessionID,
		UserID:            record.UserID,
		TokenHash:         record.TokenHash,
		IssuedAtUnix:      record.IssuedAtUnix,
		ExpiresUnix:       record.ExpiresUnix,
		RevokedAtUnix:     record.RevokedAtUnix,
		LastUsedUnix:      record.LastUsedUnix,
		DeviceFingerprint: record.DeviceFingerprint,
		PreviousSessionID: record.PreviousSessionID,
	}
}

// NewDatabaseSessionStore constructs a GORM-backed store and migrates its table.
func NewDatabaseSessionStore(ctx context.Context, databaseURL string, clock Clock) (*DatabaseSessionStore, error) {
	if strings.TrimSpace(databaseURL) == "" {
		return nil, fmt.Errorf("session_store.open: %w", errEmptyDatabaseURL)
	}
	if clock == nil {
		clock = NewSystemClock()
	}
	dialector, driverLabel, err := resolveDialector(databaseURL)
	if err != nil {
		return nil, err
	}
	gormDB, openErr := gorm.Open(dialector, &gorm.Config{
		Logger:         logger.Default.LogMode(logger.Silent),
		TranslateError: true,
	})
	if openErr != nil {
		return nil, fmt.Errorf("session_store.open.%s: %w", driverLabel, openErr)
	}
	if migrateErr := gormDB.WithContext(ctx).AutoMigrate(&refreshSessionRecord{}); migrateErr != nil {
		return nil, fmt.Errorf("session_store.migrate.%s: %w", driverLabel, migrateErr)
	}
	return &DatabaseSessionStore{
		db:          gormDB,
		clock:       clock,
		driverLabel: driverLabel,
	}, nil
}

// DB exposes the underlying GORM handle so sibling stores can share one
// connection (the user store migrates its own table on it).
func (store *DatabaseSessionStore) DB() *gorm.DB {
	return store.db
}

// CreateSession inserts a new session row and returns it with the opaque token.
func (store *DatabaseSessionStore) CreateSession(ctx context.Context, userID string, expiresAt time.Time, deviceFingerprint string, previousSessionID string) (RefreshSession, string, error) {
	opaque, hashValue, randomErr := generateRefreshOpaque()
	if randomErr != nil {
		return RefreshSession{}, "", fmt.Errorf("session_store.create.%s: %w", store.driverLabel, randomErr)
	}
	record := refreshSessionRecord{
		SessionID:         newSessionID(),
		UserID:            userID,
		TokenHash:         hashValue,
		IssuedAtUnix:      store.clock.Now().Unix(),
		ExpiresUnix:       expiresAt.Unix(),
		DeviceFingerprint: deviceFingerprint,
		PreviousSessionID: previousSessionID,
	}
	if err := store.db.WithContext(ctx).Create(&record).Error; err != nil {
		return RefreshSession{}, "", fmt.Errorf("session_store.create.%s: %w", store.driverLabel, err)
	}
	return record.toSession(), opaque, nil
}

// FindActiveSession locates a session by its opaque token and stamps last use.
func (store *DatabaseSessionStore) FindActiveSession(ctx context.Context, tokenOpaque string) (RefreshSession, error) {
	if strings.TrimSpace(tokenOpaque) == "" {
		return RefreshSession{}, fmt.Errorf("session_store.find.%s: %w", store.driverLabel, ErrSessionEmptyOpaque)
	}
	var record refreshSessionRecord
	err := store.db.WithContext(ctx).Where("token_hash = ?", hashOpaque(tokenOpaque)).Take(&record).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return RefreshSession{}, fmt.Errorf("session_store.find.%s: %w", store.driverLabel, ErrSessionNotFound)
		}
		return RefreshSession{}, fmt.Errorf("session_store.find.%s: %w", store.driverLabel, err)
	}
	now := store.clock.Now()
	if record.RevokedAtUnix != 0 {
		return RefreshSession{}, fmt.Errorf("session_store.find.%s: %w", store.driverLabel, ErrSessionRevoked)
	}
	if time.Unix(record.ExpiresUnix, 0).Before(now) {
		return RefreshSession{}, fmt.Errorf("session_store.find.%s: %w", store.driverLabel, ErrSessionExpired)
	}
	record.LastUsedUnix = now.Unix()
	updateErr := store.db.WithContext(ctx).Model(&refreshSessionRecord{}).
		Where("session_id = ? AND revoked_at_unix = 0", record.SessionID).
		Update("last_used_unix", record.LastUsedUnix).Error
	if updateErr != nil {
		return RefreshSession{}, fmt.Errorf("session_store.find.%s: %w", store.driverLabel, updateErr)
	}
	return record.toSession(), nil
}

// RevokeSession marks one session revoked. Unknown and already-revoked
// sessions are a no-op, so logout never fails on a stale token.
func (store *DatabaseSessionStore) RevokeSession(ctx context.Context, sessionID string) error {
	result := store.db.WithContext(ctx).Model(&refreshSessionRecord{}).
		Where("session_id = ? AND revoked_at_unix = 0", sessionID).
		Update("revoked_at_unix", store.clock.Now().Unix())
	if result.Error != nil {
		return fmt.Errorf("session_store.revoke.%s: %w", store.driverLabel, result.Error)
	}
	return nil
}

// RevokeAllForUser revokes every non-revoked session for the user in a single
// conditional UPDATE, so a concurrent CreateSession cannot cause a lost update.
func (store *DatabaseSessionStore) RevokeAllForUser(ctx context.Context, userID string) error {
	result := store.db.WithContext(ctx).Model(&refreshSessionRecord{}).
		Where("user_id = ? AND revoked_at_unix = 0", userID).
		Update("revoked_at_unix", store.clock.Now().Unix())
	if result.Error != nil {
		return fmt.Errorf("session_store.revoke_all.%s: %w", store.driverLabel, result.Error)
	}
	return nil
}

func resolveDialector(databaseURL string) (gorm.Dialector, string, error) {
	parsed, err := url.Parse(databaseURL)
	if err != nil {
		return nil, "", fmt.Errorf("session_store.parse_url: %w", err)
	}
	if parsed.Scheme == "" {
		return nil, "", fmt.Errorf("session_store.dialect: %w", errUnsupportedNoScheme)
	}
	switch strings.ToLower(parsed.Scheme) {
	case "postgres", "postgresql":
		return postgres.Open(databaseURL), "postgres", nil
	case "sqlite", "sqlite3":
		dsn, dsnErr := buildSQLiteDSN(parsed)
		if dsnErr != nil {
			return nil, "", fmt.Errorf("session_store.sqlite: %w", dsnErr)
		}
		return sqliteDialector.Open(dsn), "sqlite", nil
	default:
		return nil, "", fmt.Errorf("session_store.dialect.%s: %w", strings.ToLower(parsed.Scheme), ErrUnsupportedDialect)
	}
}

func buildSQLiteDSN(parsed *url.URL) (string, error) {
	if parsed == nil {
		return "", errSQLiteInvalidURL
	}
	var builder strings.Builder
	switch {
	case parsed.Opaque != "":
		builder.WriteString(parsed.Opaque)
	case parsed.Host != "":
		builder.WriteString(parsed.Host)
		if parsed.Path != "" {
			if !strings.HasPrefix(parsed.Path, "/") {
				builder.WriteString("/")
			}
			builder.WriteString(parsed.Path)
		}
	default:
		builder.WriteString(parsed.Path)
	}
	if builder.Len() == 0 {
		return "", errSQLiteEmptyPath
	}
	if parsed.RawQuery != "" {
		builder.WriteString("?")
		builder.WriteString(parsed.RawQuery)
	}
	return builder.String(), nil
}
