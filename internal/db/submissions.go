package db

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"birthdays/internal/models"
)

// submissionColumns is the standard column list for submission queries, aliased on s.
const submissionColumns = `s.id, s.sharing_link_id, s.name, s.year, s.month, s.day, s.category, s.notes,
	s.submitter_name, s.submitter_email, s.relationship, s.submitter_ip, s.status, s.created_at`

func scanSubmission(row pgx.Row, extra ...any) (*models.BirthdaySubmission, error) {
	var s models.BirthdaySubmission
	var status string
	dest := []any{
		&s.ID,
		&s.SharingLinkID,
		&s.Name,
		&s.Date.Year,
		&s.Date.Month,
		&s.Date.Day,
		&s.Category,
		&s.Notes,
		&s.SubmitterName,
		&s.SubmitterEmail,
		&s.Relationship,
		&s.SubmitterIP,
		&status,
		&s.CreatedAt,
	}
	if err := row.Scan(append(dest, extra...)...); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrSubmissionNotFound
		}
		return nil, err
	}
	s.Status = models.SubmissionStatus(status)
	if !s.Status.Valid() {
		return nil, fmt.Errorf("submission %s has unknown status %q", s.ID, status)
	}
	return &s, nil
}

// CreateSubmission inserts a PENDING submission.
func (d *DB) CreateSubmission(ctx context.Context, s *models.BirthdaySubmission) error {
	query := `
		INSERT INTO birthday_submissions (
			sharing_link_id, name, year, month, day, category, notes,
			submitter_name, submitter_email, relationship, submitter_ip, status, created_at
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
		RETURNING id
	`
	s.Status = models.StatusPending
	return d.Pool.QueryRow(ctx, query,
		s.SharingLinkID,
		s.Name,
		s.Date.Year,
		s.Date.Month,
		s.Date.Day,
		s.Category,
		s.Notes,
		s.SubmitterName,
		s.SubmitterEmail,
		s.Relationship,
		s.SubmitterIP,
		string(s.Status),
		s.CreatedAt,
	).Scan(&s.ID)
}

// CountSubmissionsForLinkSince counts submissions made to a link at or after since.
func (d *DB) CountSubmissionsForLinkSince(ctx context.Context, linkID uuid.UUID, since time.Time) (int, error) {
	var count int
	err := d.Pool.QueryRow(ctx, `
		SELECT COUNT(*) FROM birthday_submissions
		WHERE sharing_link_id = $1 AND created_at >= $2
	`, linkID, since).Scan(&count)
	return count, err
}

// CountSubmissionsFromIPSince counts submissions from an IP address across all links.
func (d *DB) CountSubmissionsFromIPSince(ctx context.Context, ip string, since time.Time) (int, error) {
	var count int
	err := d.Pool.QueryRow(ctx, `
		SELECT COUNT(*) FROM birthday_submissions
		WHERE submitter_ip = $1 AND created_at >= $2
	`, ip, since).Scan(&count)
	return count, err
}

// ListRecentSubmissionsForLink returns a link's submissions created at or after since.
func (d *DB) ListRecentSubmissionsForLink(ctx context.Context, linkID uuid.UUID, since time.Time) ([]models.BirthdaySubmission, error) {
	rows, err := d.Pool.Query(ctx, `
		SELECT `+submissionColumns+`
		FROM birthday_submissions s
		WHERE s.sharing_link_id = $1 AND s.created_at >= $2
		ORDER BY s.created_at DESC
	`, linkID, since)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var subs []models.BirthdaySubmission
	for rows.Next() {
		s, err := scanSubmission(rows)
		if err != nil {
			return nil, err
		}
		subs = append(subs, *s)
	}
	return subs, rows.Err()
}

// GetPendingSubmission returns a PENDING submission whose link belongs to ownerID.
// Missing, foreign and already-moderated submissions all yield ErrSubmissionNotFound.
func (d *DB) GetPendingSubmission(ctx context.Context, id, ownerID uuid.UUID) (*models.BirthdaySubmission, error) {
	return scanSubmission(d.Pool.QueryRow(ctx, `
		SELECT `+submissionColumns+`
		FROM birthday_submissions s
		JOIN sharing_links l ON l.id = s.sharing_link_id
		WHERE s.id = $1 AND l.owner_id = $2 AND s.status = $3
	`, id, ownerID, string(models.StatusPending)))
}

// ListPendingSubmissions returns one page of an owner's pending submissions, oldest first,
// and the total number pending.
func (d *DB) ListPendingSubmissions(ctx context.Context, ownerID uuid.UUID, limit, offset int) ([]models.BirthdaySubmission, int, error) {
	var total int
	if err := d.Pool.QueryRow(ctx, `
		SELECT COUNT(*)
		FROM birthday_submissions s
		JOIN sharing_links l ON l.id = s.sharing_link_id
		WHERE l.owner_id = $1 AND s.status = $2
	`, ownerID, string(models.StatusPending)).Scan(&total); err != nil {
		return nil, 0, err
	}

	rows, err := d.Pool.Query(ctx, `
		SELECT `+submissionColumns+`, l.description
		FROM birthday_submissions s
		JOIN sharing_links l ON l.id = s.sharing_link_id
		WHERE l.owner_id = $1 AND s.status = $2
		ORDER BY s.created_at ASC, s.id ASC
		LIMIT $3 OFFSET $4
	`, ownerID, string(models.StatusPending), limit, offset)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var subs []models.BirthdaySubmission
	for rows.Next() {
		var description *string
		s, err := scanSubmission(rows, &description)
		if err != nil {
			return nil, 0, err
		}
		s.LinkDescription = description
		subs = append(subs, *s)
	}
	return subs, total, rows.Err()
}

// ImportSubmission creates birthday from a pending submission and marks it IMPORTED
// in one transaction.
func (d *DB) ImportSubmission(ctx context.Context, submissionID, ownerID uuid.UUID, birthday *models.Birthday) error {
	tx, err := d.Pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	result, err := tx.Exec(ctx, `
		UPDATE birthday_submissions s
		SET status = $1
		FROM sharing_links l
		WHERE s.id = $2 AND l.id = s.sharing_link_id AND l.owner_id = $3 AND s.status = $4
	`, string(models.StatusImported), submissionID, ownerID, string(models.StatusPending))
	if err != nil {
		return err
	}
	if result.RowsAffected() == 0 {
		return ErrSubmissionNotFound
	}

	if err := insertBirthday(ctx, tx, birthday); err != nil {
		return err
	}

	return tx.Commit(ctx)
}

// RejectSubmission marks a pending submission owned by ownerID as REJECTED.
func (d *DB) RejectSubmission(ctx context.Context, submissionID, ownerID uuid.UUID) error {
	result, err := d.Pool.Exec(ctx, `
		UPDATE birthday_submissions s
		SET status = $1
		FROM sharing_links l
		WHERE s.id = $2 AND l.id = s.sharing_link_id AND l.owner_id = $3 AND s.status = $4
	`, string(models.StatusRejected), submissionID, ownerID, string(models.StatusPending))
	if err != nil {
		return err
	}
	if result.RowsAffected() == 0 {
		return ErrSubmissionNotFound
	}
	return nil
}

// DeleteRejectedSubmissionsBefore removes REJECTED submissions created before cutoff.
func (d *DB) DeleteRejectedSubmissionsBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	result, err := d.Pool.Exec(ctx, `
		DELETE FROM birthday_submissions WHERE status = $1 AND created_at < $2
	`, string(models.StatusRejected), cutoff)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected(), nil
}

// GetSubmissionStats returns submission counts by status and the number of usable links.
func (d *DB) GetSubmissionStats(ctx context.Context, now time.Time) (*models.SubmissionStats, error) {
	var stats models.SubmissionStats
	err := d.Pool.QueryRow(ctx, `
		SELECT
			(SELECT COUNT(*) FROM birthday_submissions WHERE status = $1),
			(SELECT COUNT(*) FROM birthday_submissions WHERE status = $2),
			(SELECT COUNT(*) FROM birthday_submissions WHERE status = $3),
			(SELECT COUNT(*) FROM sharing_links WHERE is_active AND expires_at > $4)
	`, string(models.StatusPending), string(models.StatusImported), string(models.StatusRejected), now).Scan(
		&stats.Pending, &stats.Imported, &stats.Rejected, &stats.ActiveLinks,
	)
	if err != nil {
		return nil, err
	}
	return &stats, nil
}

// ListPendingSummaries returns, per owner, how many submissions are awaiting review.
func (d *DB) ListPendingSummaries(ctx context.Context) ([]models.PendingSummary, error) {
	rows, err := d.Pool.Query(ctx, `
		SELECT l.owner_id, COUNT(*)
		FROM birthday_submissions s
		JOIN sharing_links l ON l.id = s.sharing_link_id
		WHERE s.status = $1
		GROUP BY l.owner_id
		ORDER BY l.owner_id
	`, string(models.StatusPending))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var summaries []models.PendingSummary
	for rows.Next() {
		var ps models.PendingSummary
		if err := rows.Scan(&ps.UserID, &ps.PendingCount); err != nil {
			return nil, err
		}
		summaries = append(summaries, ps)
	}
	return summaries, rows.Err()
}
