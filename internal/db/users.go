package db

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"birthdays/internal/models"
)

// UpsertUser creates or updates a user based on their subject identifier.
func (d *DB) UpsertUser(ctx context.Context, user *models.User) error {
	query := `
		INSERT INTO users (sub, email, name)
		VALUES ($1, $2, $3)
		ON CONFLICT (sub) DO UPDATE SET
			email = COALESCE(NULLIF(EXCLUDED.email, ''), users.email),
			name = COALESCE(NULLIF(EXCLUDED.name, ''), users.name),
			updated_at = NOW()
		RETURNING id, email, name, created_at, updated_at
	`

	return d.Pool.QueryRow(ctx, query, user.Sub, user.Email, user.Name).
		Scan(&user.ID, &user.Email, &user.Name, &user.CreatedAt, &user.UpdatedAt)
}

// GetUserByID retrieves a user by ID.
func (d *DB) GetUserByID(ctx context.Context, id uuid.UUID) (*models.User, error) {
	return d.getUser(ctx, `SELECT id, sub, email, name, created_at, updated_at FROM users WHERE id = $1`, id)
}

// GetUserBySub retrieves a user by their subject identifier.
func (d *DB) GetUserBySub(ctx context.Context, sub string) (*models.User, error) {
	return d.getUser(ctx, `SELECT id, sub, email, name, created_at, updated_at FROM users WHERE sub = $1`, sub)
}

func (d *DB) getUser(ctx context.Context, query string, arg any) (*models.User, error) {
	var user models.User
	err := d.Pool.QueryRow(ctx, query, arg).Scan(
		&user.ID,
		&user.Sub,
		&user.Email,
		&user.Name,
		&user.CreatedAt,
		&user.UpdatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrUserNotFound
	}
	if err != nil {
		return nil, err
	}
	return &user, nil
}
