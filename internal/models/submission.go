package models

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// SubmissionStatus is the moderation state of a BirthdaySubmission.
type SubmissionStatus string

// Submission status constants
const (
	StatusPending  SubmissionStatus = "PENDING"
	StatusImported SubmissionStatus = "IMPORTED"
	StatusRejected SubmissionStatus = "REJECTED"
)

// ErrInvalidTransition is returned when a status change would leave a terminal state.
var ErrInvalidTransition = errors.New("invalid submission status transition")

// IsTerminal reports whether no further transitions are possible.
func (s SubmissionStatus) IsTerminal() bool {
	return s == StatusImported || s == StatusRejected
}

// Valid reports whether s is a known status.
func (s SubmissionStatus) Valid() bool {
	switch s {
	case StatusPending, StatusImported, StatusRejected:
		return true
	}
	return false
}

// Transition returns the next status. Only PENDING -> IMPORTED and PENDING -> REJECTED are allowed.
func (s SubmissionStatus) Transition(to SubmissionStatus) (SubmissionStatus, error) {
	if s != StatusPending || !to.IsTerminal() {
		return s, fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, s, to)
	}
	return to, nil
}

// BirthdaySubmission is a birthday suggested through a sharing link, awaiting moderation.
type BirthdaySubmission struct {
	ID             uuid.UUID        `json:"id"`
	SharingLinkID  uuid.UUID        `json:"sharing_link_id"`
	Name           string           `json:"name"`
	Date           DateComponents   `json:"date"`
	Category       *string          `json:"category,omitempty"`
	Notes          *string          `json:"notes,omitempty"`
	SubmitterName  *string          `json:"submitter_name,omitempty"`
	SubmitterEmail *string          `json:"submitter_email,omitempty"`
	Relationship   *string          `json:"relationship,omitempty"`
	SubmitterIP    string           `json:"-"`
	Status         SubmissionStatus `json:"status"`
	CreatedAt      time.Time        `json:"created_at"`

	// Non-DB fields, populated for moderation views
	LinkDescription   *string `json:"link_description,omitempty"`
	PossibleDuplicate bool    `json:"possible_duplicate"`
}

// SubmissionStats aggregates submission and link counts for metrics.
type SubmissionStats struct {
	Pending     int64 `json:"pending"`
	Imported    int64 `json:"imported"`
	Rejected    int64 `json:"rejected"`
	ActiveLinks int64 `json:"active_links"`
}

// PendingSummary is the number of pending submissions awaiting one owner.
type PendingSummary struct {
	UserID       uuid.UUID
	PendingCount int
}
