// Package repository provides PostgreSQL persistence for accounts, sessions,
// boards and notes.
package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/lib/pq"

	"github.com/atinyakov/casebook/internal/models"
)

// ErrDuplicate is returned when an insert hits a unique constraint.
var ErrDuplicate = errors.New("duplicate key")

// PostgresAuthRepository implements account and session storage using a
// PostgreSQL database.
type PostgresAuthRepository struct {
	// DB is the database handle for executing queries.
	DB *sql.DB
}

// NewPostgresAuthRepository creates a new PostgresAuthRepository with the given database connection.
// db must be a valid *sql.DB connected to a PostgreSQL instance.
func NewPostgresAuthRepository(db *sql.DB) *PostgresAuthRepository {
	return &PostgresAuthRepository{DB: db}
}

// UserExists checks whether an account with the specified email exists in the database.
// It returns true if the account exists, false otherwise.
// If an error occurs during the query, it is returned.
func (r *PostgresAuthRepository) UserExists(ctx context.Context, email string) (bool, error) {
	var exists bool
	err := r.DB.QueryRowContext(
		ctx,
		`SELECT EXISTS(SELECT 1 FROM users WHERE email = $1)`,
		email,
	).Scan(&exists)
	return exists, err
}

// CreateUser inserts a new account. A second account with the same email
// yields ErrDuplicate.
func (r *PostgresAuthRepository) CreateUser(ctx context.Context, acc models.Account) error {
	_, err := r.DB.ExecContext(
		ctx,
		`INSERT INTO users (id, email, display_name, password_hash) VALUES ($1, $2, $3, $4)`,
		acc.ID, acc.Email, acc.DisplayName, acc.PasswordHash,
	)
	var pqErr *pq.Error
	if errors.As(err, &pqErr) && pqErr.Code == "23505" {
		return fmt.Errorf("user %s: %w", acc.Email, ErrDuplicate)
	}
	return err
}

const accountQuery = `SELECT id, email, display_name, password_hash, disabled, created_at FROM users WHERE `

func (r *PostgresAuthRepository) getUser(ctx context.Context, column, value string) (*models.Account, error) {
	var acc models.Account
	err := r.DB.QueryRowContext(ctx, accountQuery+column+` = $1`, value).
		Scan(&acc.ID, &acc.Email, &acc.DisplayName, &acc.PasswordHash, &acc.Disabled, &acc.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("user %s: %w", value, models.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get user: %w", err)
	}
	return &acc, nil
}

// GetUserByEmail returns the account registered under email, or
// models.ErrNotFound.
func (r *PostgresAuthRepository) GetUserByEmail(ctx context.Context, email string) (*models.Account, error) {
	return r.getUser(ctx, "email", email)
}

// GetUserByID returns the account with the given id, or models.ErrNotFound.
func (r *PostgresAuthRepository) GetUserByID(ctx context.Context, id string) (*models.Account, error) {
	return r.getUser(ctx, "id", id)
}

// SaveSession records an issued token id until expiresAt.
func (r *PostgresAuthRepository) SaveSession(ctx context.Context, jti, userID string, expiresAt time.Time) error {
	_, err := r.DB.ExecContext(
		ctx,
		`INSERT INTO sessions (jti, user_id, expires_at) VALUES ($1, $2, $3)`,
		jti, userID, expiresAt,
	)
	if err != nil {
		return fmt.Errorf("save session: %w", err)
	}
	return nil
}

// SessionActive reports whether jti was issued, has not been revoked and has
// not expired.
func (r *PostgresAuthRepository) SessionActive(ctx context.Context, jti string) (bool, error) {
	var active bool
	err := r.DB.QueryRowContext(
		ctx,
		`SELECT EXISTS(SELECT 1 FROM sessions WHERE jti = $1 AND expires_at > $2)`,
		jti, time.Now(),
	).Scan(&active)
	return active, err
}

// RevokeSession forgets jti. Revoking an unknown token is not an error.
func (r *PostgresAuthRepository) RevokeSession(ctx context.Context, jti string) error {
	_, err := r.DB.ExecContext(ctx, `DELETE FROM sessions WHERE jti = $1`, jti)
	if err != nil {
		return fmt.Errorf("revoke session: %w", err)
	}
	return nil
}
