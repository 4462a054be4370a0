package models

import (
	"time"

	"github.com/google/uuid"
)

// SharingLink is a tokenized URL that lets third parties suggest birthdays to its owner.
type SharingLink struct {
	ID          uuid.UUID `json:"id"`
	Token       string    `json:"token"`
	OwnerID     uuid.UUID `json:"owner_id"`
	Description *string   `json:"description,omitempty"`
	IsActive    bool      `json:"is_active"`
	ExpiresAt   time.Time `json:"expires_at"`
	CreatedAt   time.Time `json:"created_at"`

	// Non-DB fields
	Owner        *User `json:"owner,omitempty"`
	PendingCount int   `json:"pending_count"`
}

// IsUsable reports whether the link accepts submissions at the given instant.
func (l *SharingLink) IsUsable(now time.Time) bool {
	return l.IsActive && l.ExpiresAt.After(now)
}

// IsExpired reports whether the link's expiry has passed.
func (l *SharingLink) IsExpired(now time.Time) bool {
	return !l.ExpiresAt.After(now)
}
