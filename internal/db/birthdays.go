package db

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"birthdays/internal/models"
)

const birthdayColumns = `id, owner_id, name, year, month, day, category, notes, import_source, created_at`

// querier is satisfied by both the pool and a transaction.
type querier interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

func insertBirthday(ctx context.Context, q querier, b *models.Birthday) error {
	return q.QueryRow(ctx, `
		INSERT INTO birthdays (owner_id, name, year, month, day, category, notes, import_source)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING id, created_at
	`,
		b.OwnerID,
		b.Name,
		b.Date.Year,
		b.Date.Month,
		b.Date.Day,
		b.Category,
		b.Notes,
		b.ImportSource,
	).Scan(&b.ID, &b.CreatedAt)
}

// CreateBirthday inserts a birthday into its owner's list.
func (d *DB) CreateBirthday(ctx context.Context, b *models.Birthday) error {
	return insertBirthday(ctx, d.Pool, b)
}

// ListBirthdaysByOwner returns an owner's birthdays ordered by calendar position.
func (d *DB) ListBirthdaysByOwner(ctx context.Context, ownerID uuid.UUID) ([]models.Birthday, error) {
	return d.listBirthdays(ctx, `
		SELECT `+birthdayColumns+` FROM birthdays
		WHERE owner_id = $1
		ORDER BY month, day, name
	`, ownerID)
}

// ListBirthdaysOn returns every birthday, across all owners, that falls on month/day.
func (d *DB) ListBirthdaysOn(ctx context.Context, month, day int) ([]models.Birthday, error) {
	return d.listBirthdays(ctx, `
		SELECT `+birthdayColumns+` FROM birthdays
		WHERE month = $1 AND day = $2
		ORDER BY owner_id, name
	`, month, day)
}

func (d *DB) listBirthdays(ctx context.Context, query string, args ...any) ([]models.Birthday, error) {
	rows, err := d.Pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var birthdays []models.Birthday
	for rows.Next() {
		var b models.Birthday
		if err := rows.Scan(
			&b.ID,
			&b.OwnerID,
			&b.Name,
			&b.Date.Year,
			&b.Date.Month,
			&b.Date.Day,
			&b.Category,
			&b.Notes,
			&b.ImportSource,
			&b.CreatedAt,
		); err != nil {
			return nil, err
		}
		birthdays = append(birthdays, b)
	}
	return birthdays, rows.Err()
}
