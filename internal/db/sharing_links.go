package db

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"birthdays/internal/models"
)

// sharingLinkColumns is the standard column list for sharing link queries.
const sharingLinkColumns = `id, token, owner_id, description, is_active, expires_at, created_at`

func scanSharingLink(row pgx.Row) (*models.SharingLink, error) {
	var link models.SharingLink
	err := row.Scan(
		&link.ID,
		&link.Token,
		&link.OwnerID,
		&link.Description,
		&link.IsActive,
		&link.ExpiresAt,
		&link.CreatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrSharingLinkNotFound
	}
	if err != nil {
		return nil, err
	}
	return &link, nil
}

// CreateSharingLink inserts a new sharing link. Returns ErrDuplicateToken on token collision.
func (d *DB) CreateSharingLink(ctx context.Context, link *models.SharingLink) error {
	query := `
		INSERT INTO sharing_links (token, owner_id, description, is_active, expires_at, created_at)
		VALUES ($1, $2, $3, TRUE, $4, $5)
		RETURNING id, is_active
	`
	err := d.Pool.QueryRow(ctx, query,
		link.Token,
		link.OwnerID,
		link.Description,
		link.ExpiresAt,
		link.CreatedAt,
	).Scan(&link.ID, &link.IsActive)

	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == pgUniqueViolation {
			return ErrDuplicateToken
		}
		return err
	}
	return nil
}

// SharingTokenExists reports whether any link already uses token.
func (d *DB) SharingTokenExists(ctx context.Context, token string) (bool, error) {
	var exists bool
	err := d.Pool.QueryRow(ctx,
		`SELECT EXISTS(SELECT 1 FROM sharing_links WHERE token = $1)`, token,
	).Scan(&exists)
	return exists, err
}

// GetSharingLinkByToken returns the link for token regardless of state.
func (d *DB) GetSharingLinkByToken(ctx context.Context, token string) (*models.SharingLink, error) {
	return scanSharingLink(d.Pool.QueryRow(ctx,
		`SELECT `+sharingLinkColumns+` FROM sharing_links WHERE token = $1`, token))
}

// GetSharingLinkByID returns a single sharing link by ID.
func (d *DB) GetSharingLinkByID(ctx context.Context, id uuid.UUID) (*models.SharingLink, error) {
	return scanSharingLink(d.Pool.QueryRow(ctx,
		`SELECT `+sharingLinkColumns+` FROM sharing_links WHERE id = $1`, id))
}

// ListSharingLinksByOwner returns an owner's links, newest first, with pending submission counts.
func (d *DB) ListSharingLinksByOwner(ctx context.Context, ownerID uuid.UUID) ([]models.SharingLink, error) {
	query := `
		SELECT l.id, l.token, l.owner_id, l.description, l.is_active, l.expires_at, l.created_at,
		       COUNT(s.id) FILTER (WHERE s.status = $2)
		FROM sharing_links l
		LEFT JOIN birthday_submissions s ON s.sharing_link_id = l.id
		WHERE l.owner_id = $1
		GROUP BY l.id
		ORDER BY l.created_at DESC
	`
	rows, err := d.Pool.Query(ctx, query, ownerID, string(models.StatusPending))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var links []models.SharingLink
	for rows.Next() {
		var l models.SharingLink
		if err := rows.Scan(
			&l.ID, &l.Token, &l.OwnerID, &l.Description, &l.IsActive, &l.ExpiresAt, &l.CreatedAt,
			&l.PendingCount,
		); err != nil {
			return nil, err
		}
		links = append(links, l)
	}
	return links, rows.Err()
}

// CountActiveSharingLinks counts an owner's links that are active and unexpired at now.
func (d *DB) CountActiveSharingLinks(ctx context.Context, ownerID uuid.UUID, now time.Time) (int, error) {
	var count int
	err := d.Pool.QueryRow(ctx, `
		SELECT COUNT(*) FROM sharing_links
		WHERE owner_id = $1 AND is_active AND expires_at > $2
	`, ownerID, now).Scan(&count)
	return count, err
}

// CountSharingLinksCreatedSince counts links an owner created at or after since.
func (d *DB) CountSharingLinksCreatedSince(ctx context.Context, ownerID uuid.UUID, since time.Time) (int, error) {
	var count int
	err := d.Pool.QueryRow(ctx, `
		SELECT COUNT(*) FROM sharing_links
		WHERE owner_id = $1 AND created_at >= $2
	`, ownerID, since).Scan(&count)
	return count, err
}

// DeactivateSharingLink marks a link inactive.
func (d *DB) DeactivateSharingLink(ctx context.Context, id uuid.UUID) error {
	result, err := d.Pool.Exec(ctx, `UPDATE sharing_links SET is_active = FALSE WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if result.RowsAffected() == 0 {
		return ErrSharingLinkNotFound
	}
	return nil
}

// RevokeSharingLink deactivates a link owned by ownerID and returns it.
func (d *DB) RevokeSharingLink(ctx context.Context, id, ownerID uuid.UUID) (*models.SharingLink, error) {
	return scanSharingLink(d.Pool.QueryRow(ctx, `
		UPDATE sharing_links SET is_active = FALSE
		WHERE id = $1 AND owner_id = $2
		RETURNING `+sharingLinkColumns, id, ownerID))
}

// DeactivateExpiredSharingLinks flips every active link whose expiry is at or before now.
func (d *DB) DeactivateExpiredSharingLinks(ctx context.Context, now time.Time) (int64, error) {
	result, err := d.Pool.Exec(ctx, `
		UPDATE sharing_links SET is_active = FALSE
		WHERE is_active AND expires_at <= $1
	`, now)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected(), nil
}

// DeleteOrphanedSharingLinks removes inactive links that expired before cutoff and have no
// pending submissions. Their moderated submissions are removed by cascade.
func (d *DB) DeleteOrphanedSharingLinks(ctx context.Context, cutoff time.Time) (int64, error) {
	result, err := d.Pool.Exec(ctx, `
		DELETE FROM sharing_links l
		WHERE NOT l.is_active AND l.expires_at < $1
		  AND NOT EXISTS (
			SELECT 1 FROM birthday_submissions s
			WHERE s.sharing_link_id = l.id AND s.status = $2
		  )
	`, cutoff, string(models.StatusPending))
	if err != nil {
		return 0, err
	}
	return result.RowsAffected(), nil
}
