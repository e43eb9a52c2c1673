package web

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/google/uuid"

	"github.com/tyemirov/tutorhub/internal/authkit"
)

// MemoryUserStore is an in-memory credential store for tests and local runs.
type MemoryUserStore struct {
	mutex   sync.Mutex
	byID    map[string]authkit.User
	byEmail map[string]string
}

// NewMemoryUserStore constructs an empty in-memory user store.
func NewMemoryUserStore() *MemoryUserStore {
	return &MemoryUserStore{
		byID:    make(map[string]authkit.User),
		byEmail: make(map[string]string),
	}
}

// CreateUser inserts a new user; a duplicate email fails with ErrEmailTaken.
func (store *MemoryUserStore) CreateUser(ctx context.Context, user authkit.User) (authkit.User, error) {
	store.mutex.Lock()
	defer store.mutex.Unlock()

	email := strings.ToLower(user.Email)
	if _, exists := store.byEmail[email]; exists {
		return authkit.User{}, fmt.Errorf("user_store.create: %w", authkit.ErrEmailTaken)
	}
	user.ID = uuid.NewString()
	user.Email = email
	store.byID[user.ID] = user
	store.byEmail[email] = user.ID
	return user, nil
}

// FindUserByEmail resolves a user by normalized email.
func (store *MemoryUserStore) FindUserByEmail(ctx context.Context, email string) (authkit.User, error) {
	store.mutex.Lock()
	defer store.mutex.Unlock()

	userID, ok := store.byEmail[strings.ToLower(email)]
	if !ok {
		return authkit.User{}, fmt.Errorf("user_store.find_email: %w", authkit.ErrUserNotFound)
	}
	return store.byID[userID], nil
}

// FindUserByID resolves a user by identifier.
func (store *MemoryUserStore) FindUserByID(ctx context.Context, userID string) (authkit.User, error) {
	store.mutex.Lock()
	defer store.mutex.Unlock()

	user, ok := store.byID[userID]
	if !ok {
		return authkit.User{}, fmt.Errorf("user_store.find_id: %w", authkit.ErrUserNotFound)
	}
	return user, nil
}

// SetActive flips the account active flag.
func (store *MemoryUserStore) SetActive(ctx context.Context, userID string, active bool) error {
	store.mutex.Lock()
	defer store.mutex.Unlock()

	user, ok := store.byID[userID]
	if !ok {
		return fmt.Errorf("user_store.set_active: %w", authkit.ErrUserNotFound)
	}
	user.Active = active
	store.byID[userID] = user
	return nil
}
