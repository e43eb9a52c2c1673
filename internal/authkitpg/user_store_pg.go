package authkitpg

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/tyemirov/tutorhub/internal/authkit"
)

const uniqueViolationCode = "23505"

// PostgresUserStore implements the credential-store contract on a pgx pool.
type PostgresUserStore struct {
	pool *pgxpool.Pool
}

// NewPostgresUserStore constructs a Postgres user store.
func NewPostgresUserStore(pool *pgxpool.Pool) *PostgresUserStore {
	return &PostgresUserStore{pool: pool}
}

// CreateUser inserts a new user; a duplicate email fails with ErrEmailTaken.
func (store *PostgresUserStore) CreateUser(ctx context.Context, user authkit.User) (authkit.User, error) {
	created := user
	created.ID = uuid.NewString()
	created.Email = strings.ToLower(user.Email)
	_, execErr := store.pool.Exec(ctx, `
INSERT INTO users (id, full_name, email, password_hash, role, active)
VALUES ($1, $2, $3, $4, $5, $6)
`, created.ID, created.FullName, created.Email, created.PasswordHash, string(created.Role), created.Active)
	if execErr != nil {
		var pgErr *pgconn.PgError
		if errors.As(execErr, &pgErr) && pgErr.Code == uniqueViolationCode {
			return authkit.User{}, fmt.Errorf("user_store.create.pgx: %w", authkit.ErrEmailTaken)
		}
		return authkit.User{}, fmt.Errorf("user_store.create.pgx: %w", execErr)
	}
	return created, nil
}

// FindUserByEmail resolves a user by normalized email.
func (store *PostgresUserStore) FindUserByEmail(ctx context.Context, email string) (authkit.User, error) {
	return store.findUser(ctx, "email = $1", strings.ToLower(email), "user_store.find_email.pgx")
}

// FindUserByID resolves a user by identifier.
func (store *PostgresUserStore) FindUserByID(ctx context.Context, userID string) (authkit.User, error) {
	return store.findUser(ctx, "id = $1", userID, "user_store.find_id.pgx")
}

// SetActive flips the account active flag.
func (store *PostgresUserStore) SetActive(ctx context.Context, userID string, active bool) error {
	tag, err := store.pool.Exec(ctx, `
UPDATE users SET active = $1 WHERE id = $2
`, active, userID)
	if err != nil {
		return fmt.Errorf("user_store.set_active.pgx: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("user_store.set_active.pgx: %w", authkit.ErrUserNotFound)
	}
	return nil
}

func (store *PostgresUserStore) findUser(ctx context.Context, predicate string, argument string, code string) (authkit.User, error) {
	var user authkit.User
	var role string
	row := store.pool.QueryRow(ctx, `
SELECT id, full_name, email, password_hash, role, active
FROM users
WHERE `+predicate, argument)
	scanErr := row.Scan(&user.ID, &user.FullName, &user.Email, &user.PasswordHash, &role, &user.Active)
	if scanErr != nil {
		if errors.Is(scanErr, pgx.ErrNoRows) {
			return authkit.User{}, fmt.Errorf("%s: %w", code, authkit.ErrUserNotFound)
		}
		return authkit.User{}, fmt.Errorf("%s: %w", code, scanErr)
	}
	user.Role = authkit.Role(role)
	return user, nil
}
