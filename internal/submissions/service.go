// Package submissions handles public birthday submissions and their moderation.
package submissions

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"birthdays/internal/db"
	"birthdays/internal/logger"
	"birthdays/internal/metrics"
	"birthdays/internal/models"
	"birthdays/internal/validation"
)

// Submission limits and defaults.
const (
	MaxSubmissionsPerLinkPerHour = 10
	DefaultRejectedRetentionDays = 30
	DefaultPageSize              = 20
	MaxPageSize                  = 100
)

// ErrNotFoundOrProcessed covers missing, foreign and already moderated submissions alike.
var ErrNotFoundOrProcessed = errors.New("submission not found or already processed")

// User-facing failure messages.
const (
	MsgInvalidLink   = "Invalid or expired sharing link"
	MsgLinkRateLimit = "Too many submissions to this link. Please try again later."
	MsgSubmitFailed  = "Failed to submit birthday. Please try again."
)

// Failure classifies why a submission was not accepted.
type Failure string

const (
	FailureNone        Failure = ""
	FailureInvalidLink Failure = "invalid_link"
	FailureValidation  Failure = "validation"
	FailureRateLimited Failure = "rate_limited"
	FailureInternal    Failure = "internal"
)

// ValidationError carries every field error of a rejected input.
type ValidationError struct {
	Errors []string
}

func (e *ValidationError) Error() string {
	return strings.Join(e.Errors, "; ")
}

// Store is the persistence the submission service needs.
type Store interface {
	CreateSubmission(ctx context.Context, s *models.BirthdaySubmission) error
	CountSubmissionsForLinkSince(ctx context.Context, linkID uuid.UUID, since time.Time) (int, error)
	GetPendingSubmission(ctx context.Context, id, ownerID uuid.UUID) (*models.BirthdaySubmission, error)
	ListPendingSubmissions(ctx context.Context, ownerID uuid.UUID, limit, offset int) ([]models.BirthdaySubmission, int, error)
	ImportSubmission(ctx context.Context, submissionID, ownerID uuid.UUID, birthday *models.Birthday) error
	RejectSubmission(ctx context.Context, submissionID, ownerID uuid.UUID) error
	DeleteRejectedSubmissionsBefore(ctx context.Context, cutoff time.Time) (int64, error)
	CreateBirthday(ctx context.Context, b *models.Birthday) error
	ListBirthdaysByOwner(ctx context.Context, ownerID uuid.UUID) ([]models.Birthday, error)
}

// LinkValidator resolves a token to a usable sharing link with its owner, or nil.
type LinkValidator interface {
	ValidateSharingLink(ctx context.Context, token string) (*models.SharingLink, error)
}

// Notifier tells a link owner about a new submission.
type Notifier interface {
	SendSubmissionNotification(ctx context.Context, owner *models.User, link *models.SharingLink, sub *models.BirthdaySubmission) error
}

// Service processes and moderates submissions.
type Service struct {
	store    Store
	links    LinkValidator
	notifier Notifier
	log      *zap.Logger
	now      func() time.Time
}

// NewService creates a submission service. notifier may be nil.
func NewService(store Store, links LinkValidator, notifier Notifier, log *zap.Logger) *Service {
	return &Service{
		store:    store,
		links:    links,
		notifier: notifier,
		log:      log.Named("submissions"),
		now:      time.Now,
	}
}

// SetClock replaces the time source.
func (s *Service) SetClock(now func() time.Time) {
	s.now = now
}

// SubmitResult is the outcome of ProcessSubmission.
type SubmitResult struct {
	Success      bool       `json:"success"`
	SubmissionID *uuid.UUID `json:"submission_id,omitempty"`
	Errors       []string   `json:"errors,omitempty"`
	Failure      Failure    `json:"-"`
}

func failed(f Failure, msgs ...string) *SubmitResult {
	metrics.SubmissionsTotal.WithLabelValues(string(f)).Inc()
	return &SubmitResult{Failure: f, Errors: msgs}
}

// ProcessSubmission validates, rate-checks and stores a public submission, then notifies the owner.
// A notification failure never undoes the stored submission.
func (s *Service) ProcessSubmission(ctx context.Context, token string, in validation.SubmissionInput, ip string) *SubmitResult {
	link, err := s.links.ValidateSharingLink(ctx, token)
	if err != nil {
		s.log.Error("failed to validate sharing link", zap.Error(err))
		return failed(FailureInternal, MsgSubmitFailed)
	}
	if link == nil {
		return failed(FailureInvalidLink, MsgInvalidLink)
	}

	now := s.now()
	result := validation.ValidateBirthdaySubmission(in, now)
	if !result.IsValid {
		return failed(FailureValidation, result.Errors...)
	}

	recent, err := s.store.CountSubmissionsForLinkSince(ctx, link.ID, now.Add(-time.Hour))
	if err != nil {
		s.log.Error("failed to count link submissions", zap.Stringer("link_id", link.ID), zap.Error(err))
		return failed(FailureInternal, MsgSubmitFailed)
	}
	if recent >= MaxSubmissionsPerLinkPerHour {
		s.log.Warn("link submission limit reached", zap.Stringer("link_id", link.ID), zap.Int("recent", recent))
		return failed(FailureRateLimited, MsgLinkRateLimit)
	}

	data := result.Data
	sub := &models.BirthdaySubmission{
		SharingLinkID:  link.ID,
		Name:           data.Name,
		Date:           data.DateComponents,
		Category:       data.Category,
		Notes:          data.Notes,
		SubmitterName:  data.SubmitterName,
		SubmitterEmail: data.SubmitterEmail,
		Relationship:   data.Relationship,
		SubmitterIP:    ip,
		CreatedAt:      now,
	}
	if err := s.store.CreateSubmission(ctx, sub); err != nil {
		s.log.Error("failed to store submission", zap.Stringer("link_id", link.ID), zap.Error(err))
		return failed(FailureInternal, MsgSubmitFailed)
	}

	email := ""
	if sub.SubmitterEmail != nil {
		email = *sub.SubmitterEmail
	}
	s.log.Info("submission received",
		zap.Stringer("submission_id", sub.ID),
		zap.Stringer("link_id", link.ID),
		logger.Email("submitter_email", email),
	)
	metrics.SubmissionsTotal.WithLabelValues("accepted").Inc()

	s.notifyOwner(ctx, link, sub)

	id := sub.ID
	return &SubmitResult{Success: true, SubmissionID: &id}
}

func (s *Service) notifyOwner(ctx context.Context, link *models.SharingLink, sub *models.BirthdaySubmission) {
	if s.notifier == nil || link.Owner == nil {
		return
	}
	defer func() {
		if r := recover(); r != nil {
			s.log.Error("submission notification panicked", zap.Stringer("submission_id", sub.ID), zap.Any("panic", r))
		}
	}()
	if err := s.notifier.SendSubmissionNotification(ctx, link.Owner, link, sub); err != nil {
		s.log.Warn("submission notification failed", zap.Stringer("submission_id", sub.ID), zap.Error(err))
	}
}

func (s *Service) getPending(ctx context.Context, id, ownerID uuid.UUID) (*models.BirthdaySubmission, error) {
	sub, err := s.store.GetPendingSubmission(ctx, id, ownerID)
	if errors.Is(err, db.ErrSubmissionNotFound) {
		return nil, ErrNotFoundOrProcessed
	}
	if err != nil {
		return nil, fmt.Errorf("get submission: %w", err)
	}
	return sub, nil
}

// PendingPage is one page of an owner's moderation queue.
type PendingPage struct {
	Submissions []models.BirthdaySubmission `json:"submissions"`
	Total       int                         `json:"total"`
	Page        int                         `json:"page"`
	PageSize    int                         `json:"page_size"`
	HasMore     bool                        `json:"has_more"`
}

// PendingSubmissions returns the owner's pending submissions, oldest first, flagging likely duplicates.
func (s *Service) PendingSubmissions(ctx context.Context, ownerID uuid.UUID, page, pageSize int) (*PendingPage, error) {
	if page < 1 {
		page = 1
	}
	if pageSize < 1 {
		pageSize = DefaultPageSize
	}
	if pageSize > MaxPageSize {
		pageSize = MaxPageSize
	}
	offset := (page - 1) * pageSize

	subs, total, err := s.store.ListPendingSubmissions(ctx, ownerID, pageSize, offset)
	if err != nil {
		return nil, fmt.Errorf("list pending submissions: %w", err)
	}

	if len(subs) > 0 {
		existing, err := s.store.ListBirthdaysByOwner(ctx, ownerID)
		if err != nil {
			return nil, fmt.Errorf("list birthdays: %w", err)
		}
		for i := range subs {
			c := Candidate{Name: subs[i].Name, Date: subs[i].Date, Category: subs[i].Category}
			subs[i].PossibleDuplicate = hasPossibleDuplicate(c, existing)
		}
	}

	if subs == nil {
		subs = []models.BirthdaySubmission{}
	}
	return &PendingPage{
		Submissions: subs,
		Total:       total,
		Page:        page,
		PageSize:    pageSize,
		HasMore:     offset+len(subs) < total,
	}, nil
}

// ImportSubmission turns a pending submission into a birthday on the owner's list.
func (s *Service) ImportSubmission(ctx context.Context, submissionID, ownerID uuid.UUID) (*models.Birthday, error) {
	sub, err := s.getPending(ctx, submissionID, ownerID)
	if err != nil {
		metrics.ModerationActionsTotal.WithLabelValues("import", "failed").Inc()
		return nil, err
	}
	if _, err := sub.Status.Transition(models.StatusImported); err != nil {
		return nil, ErrNotFoundOrProcessed
	}

	birthday := models.BirthdayFromSubmission(sub, ownerID)
	birthday.CreatedAt = s.now()
	err = s.store.ImportSubmission(ctx, submissionID, ownerID, birthday)
	if errors.Is(err, db.ErrSubmissionNotFound) {
		metrics.ModerationActionsTotal.WithLabelValues("import", "failed").Inc()
		return nil, ErrNotFoundOrProcessed
	}
	if err != nil {
		return nil, fmt.Errorf("import submission: %w", err)
	}

	metrics.ModerationActionsTotal.WithLabelValues("import", "success").Inc()
	s.log.Info("submission imported", zap.Stringer("submission_id", submissionID), zap.Stringer("birthday_id", birthday.ID))
	return birthday, nil
}

// RejectSubmission marks a pending submission as rejected.
func (s *Service) RejectSubmission(ctx context.Context, submissionID, ownerID uuid.UUID) error {
	err := s.store.RejectSubmission(ctx, submissionID, ownerID)
	if errors.Is(err, db.ErrSubmissionNotFound) {
		metrics.ModerationActionsTotal.WithLabelValues("reject", "failed").Inc()
		return ErrNotFoundOrProcessed
	}
	if err != nil {
		return fmt.Errorf("reject submission: %w", err)
	}

	metrics.ModerationActionsTotal.WithLabelValues("reject", "success").Inc()
	s.log.Info("submission rejected", zap.Stringer("submission_id", submissionID))
	return nil
}

// BulkResult summarizes a bulk moderation action. Items are processed independently.
type BulkResult struct {
	Success        bool        `json:"success"`
	ProcessedCount int         `json:"processed_count"`
	FailedIDs      []uuid.UUID `json:"failed_ids"`
	Errors         []string    `json:"errors"`
}

func (s *Service) bulk(ids []uuid.UUID, action func(uuid.UUID) error) *BulkResult {
	res := &BulkResult{FailedIDs: []uuid.UUID{}, Errors: []string{}}
	for _, id := range ids {
		if err := action(id); err != nil {
			res.FailedIDs = append(res.FailedIDs, id)
			msg := err.Error()
			if !errors.Is(err, ErrNotFoundOrProcessed) {
				msg = "internal error"
			}
			res.Errors = append(res.Errors, fmt.Sprintf("%s: %s", id, msg))
			continue
		}
		res.ProcessedCount++
	}
	res.Success = len(res.FailedIDs) == 0
	return res
}

// BulkImportSubmissions imports each submission in order. Earlier successes stand if a later item fails.
func (s *Service) BulkImportSubmissions(ctx context.Context, ids []uuid.UUID, ownerID uuid.UUID) *BulkResult {
	return s.bulk(ids, func(id uuid.UUID) error {
		_, err := s.ImportSubmission(ctx, id, ownerID)
		if err != nil && !errors.Is(err, ErrNotFoundOrProcessed) {
			s.log.Error("bulk import item failed", zap.Stringer("submission_id", id), zap.Error(err))
		}
		return err
	})
}

// BulkRejectSubmissions rejects each submission in order.
func (s *Service) BulkRejectSubmissions(ctx context.Context, ids []uuid.UUID, ownerID uuid.UUID) *BulkResult {
	return s.bulk(ids, func(id uuid.UUID) error {
		err := s.RejectSubmission(ctx, id, ownerID)
		if err != nil && !errors.Is(err, ErrNotFoundOrProcessed) {
			s.log.Error("bulk reject item failed", zap.Stringer("submission_id", id), zap.Error(err))
		}
		return err
	})
}

// CleanupOldRejectedSubmissions deletes rejected submissions older than daysOld days.
// Storage errors are logged and reported as zero deletions.
func (s *Service) CleanupOldRejectedSubmissions(ctx context.Context, daysOld int) int64 {
	if daysOld <= 0 {
		daysOld = DefaultRejectedRetentionDays
	}
	cutoff := s.now().AddDate(0, 0, -daysOld)

	n, err := s.store.DeleteRejectedSubmissionsBefore(ctx, cutoff)
	if err != nil {
		s.log.Error("failed to clean up rejected submissions", zap.Error(err))
		return 0
	}
	if n > 0 {
		s.log.Info("deleted old rejected submissions", zap.Int64("count", n), zap.Int("days_old", daysOld))
	}
	return n
}

// BirthdayInput is an owner-entered birthday.
type BirthdayInput struct {
	Name        string `json:"name"`
	Date        string `json:"date"`
	YearUnknown bool   `json:"year_unknown"`
	Category    string `json:"category"`
	Notes       string `json:"notes"`
}

// CreateBirthday validates and adds a birthday to the owner's list.
func (s *Service) CreateBirthday(ctx context.Context, ownerID uuid.UUID, in BirthdayInput) (*models.Birthday, error) {
	var errs []string
	add := func(msg string) {
		if msg != "" {
			errs = append(errs, msg)
		}
	}

	name, msg := validation.ValidateName(in.Name)
	add(msg)
	date, msg := validation.ValidateDate(in.Date, s.now())
	add(msg)
	category, msg := validation.ValidateOptional("Category", in.Category, validation.MaxCategoryLength)
	add(msg)
	notes, msg := validation.ValidateOptional("Notes", in.Notes, validation.MaxNotesLength)
	add(msg)

	if len(errs) > 0 {
		return nil, &ValidationError{Errors: errs}
	}
	if in.YearUnknown {
		date.Year = nil
	}

	b := &models.Birthday{
		OwnerID:   ownerID,
		Name:      name,
		Date:      date,
		Category:  category,
		Notes:     notes,
		CreatedAt: s.now(),
	}
	if err := s.store.CreateBirthday(ctx, b); err != nil {
		return nil, fmt.Errorf("create birthday: %w", err)
	}
	return b, nil
}

// ListBirthdays returns the owner's birthdays in calendar order.
func (s *Service) ListBirthdays(ctx context.Context, ownerID uuid.UUID) ([]models.Birthday, error) {
	birthdays, err := s.store.ListBirthdaysByOwner(ctx, ownerID)
	if err != nil {
		return nil, fmt.Errorf("list birthdays: %w", err)
	}
	if birthdays == nil {
		birthdays = []models.Birthday{}
	}
	return birthdays, nil
}
