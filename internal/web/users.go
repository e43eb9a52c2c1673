package web

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/tyemirov/tutorhub/internal/authkit"
)

type userRecord struct {
	ID           string `gorm:"column:id;primaryKey"`
	FullName     string `gorm:"column:full_name;not null"`
	Email        string `gorm:"column:email;uniqueIndex;not null"`
	PasswordHash string `gorm:"column:password_hash;not null"`
	Role         string `gorm:"column:role;not null"`
	Active       bool   `gorm:"column:active;not null;default:true"`
}

func (userRecord) TableName() string {
	return "users"
}

func (record userRecord) toUser() authkit.User {
	return authkit.User{
		ID:           record.ID,
		FullName:     record.FullName,
		Email:        record.Email,
		PasswordHash: record.PasswordHash,
		Role:         authkit.Role(record.Role),
		Active:       record.Active,
	}
}

// DatabaseUserStore implements the credential-store contract on GORM.
type DatabaseUserStore struct {
	db *gorm.DB
}

// NewDatabaseUserStore migrates the users table on the shared GORM handle.
func NewDatabaseUserStore(ctx context.Context, db *gorm.DB) (*DatabaseUserStore, error) {
	if db == nil {
		return nil, errors.New("user_store.nil_db")
	}
	if migrateErr := db.WithContext(ctx).AutoMigrate(&userRecord{}); migrateErr != nil {
		return nil, fmt.Errorf("user_store.migrate: %w", migrateErr)
	}
	return &DatabaseUserStore{db: db}, nil
}

// CreateUser inserts a new user; a duplicate email fails with ErrEmailTaken.
func (store *DatabaseUserStore) CreateUser(ctx context.Context, user authkit.User) (authkit.User, error) {
	record := userRecord{
		ID:           uuid.NewString(),
		FullName:     user.FullName,
		Email:        strings.ToLower(user.Email),
		PasswordHash: user.PasswordHash,
		Role:         string(user.Role),
		Active:       user.Active,
	}
	// The unique index on email is the only duplicate check; a probe read
	// would race against a concurrent registration. Requires TranslateError
	// on the gorm.Config so the driver's constraint violation surfaces as
	// gorm.ErrDuplicatedKey.
	if err := store.db.WithContext(ctx).Create(&record).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return authkit.User{}, fmt.Errorf("user_store.create: %w", authkit.ErrEmailTaken)
		}
		return authkit.User{}, fmt.Errorf("user_store.create: %w", err)
	}
	return record.toUser(), nil
}

// FindUserByEmail resolves a user by normalized email.
func (store *DatabaseUserStore) FindUserByEmail(ctx context.Context, email string) (authkit.User, error) {
	var record userRecord
	err := store.db.WithContext(ctx).Where("email = ?", strings.ToLower(email)).Take(&record).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return authkit.User{}, fmt.Errorf("user_store.find_email: %w", authkit.ErrUserNotFound)
		}
		return authkit.User{}, fmt.Errorf("user_store.find_email: %w", err)
	}
	return record.toUser(), nil
}

// FindUserByID resolves a user by identifier.
func (store *DatabaseUserStore) FindUserByID(ctx context.Context, userID string) (authkit.User, error) {
	var record userRecord
	err := store.db.WithContext(ctx).Where("id = ?", userID).Take(&record).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return authkit.User{}, fmt.Errorf("user_store.find_id: %w", authkit.ErrUserNotFound)
		}
		return authkit.User{}, fmt.Errorf("user_store.find_id: %w", err)
	}
	return record.toUser(), nil
}

// SetActive flips the account active flag; the gate observes the change on
// the very next request.
func (store *DatabaseUserStore) SetActive(ctx context.Context, userID string, active bool) error {
	result := store.db.WithContext(ctx).Model(&userRecord{}).
		Where("id = ?", userID).
		Update("active", active)
	if result.Error != nil {
		return fmt.Errorf("user_store.set_active: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return fmt.Errorf("user_store.set_active: %w", authkit.ErrUserNotFound)
	}
	return nil
}
