package models

import (
	"time"

	"github.com/google/uuid"
)

// ImportSourceSharing tags birthdays imported from a sharing-link submission.
const ImportSourceSharing = "sharing"

// Birthday is an entry in a user's personal birthday list.
type Birthday struct {
	ID           uuid.UUID      `json:"id"`
	OwnerID      uuid.UUID      `json:"owner_id"`
	Name         string         `json:"name"`
	Date         DateComponents `json:"date"`
	Category     *string        `json:"category,omitempty"`
	Notes        *string        `json:"notes,omitempty"`
	ImportSource *string        `json:"import_source,omitempty"`
	CreatedAt    time.Time      `json:"created_at"`
}

// BirthdayFromSubmission copies a submission into a new Birthday for owner.
func BirthdayFromSubmission(s *BirthdaySubmission, ownerID uuid.UUID) *Birthday {
	source := ImportSourceSharing
	return &Birthday{
		OwnerID:      ownerID,
		Name:         s.Name,
		Date:         s.Date,
		Category:     s.Category,
		Notes:        s.Notes,
		ImportSource: &source,
	}
}
