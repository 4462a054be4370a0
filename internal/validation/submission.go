package validation

import (
	"time"

	"birthdays/internal/models"
)

// SubmissionInput is the raw public submission as received from a visitor.
type SubmissionInput struct {
	Name           string `json:"name"`
	Date           string `json:"date"`
	Category       string `json:"category"`
	Notes          string `json:"notes"`
	SubmitterName  string `json:"submitter_name"`
	SubmitterEmail string `json:"submitter_email"`
	Relationship   string `json:"relationship"`
}

// SanitizedSubmission holds validated, sanitized submission fields.
type SanitizedSubmission struct {
	Name           string
	Date           string
	DateComponents models.DateComponents
	Category       *string
	Notes          *string
	SubmitterName  *string
	SubmitterEmail *string
	Relationship   *string
}

// Result is the outcome of validating a submission.
// Data is only set when IsValid is true.
type Result struct {
	IsValid bool
	Errors  []string
	Data    *SanitizedSubmission
}

// ValidateBirthdaySubmission validates every field independently and accumulates all errors.
func ValidateBirthdaySubmission(in SubmissionInput, now time.Time) Result {
	var errs []string
	add := func(msg string) {
		if msg != "" {
			errs = append(errs, msg)
		}
	}

	name, msg := ValidateName(in.Name)
	add(msg)

	date, msg := ValidateDate(in.Date, now)
	add(msg)

	email, msg := ValidateEmail(in.SubmitterEmail)
	add(msg)

	category, msg := ValidateOptional("Category", in.Category, MaxCategoryLength)
	add(msg)

	notes, msg := ValidateOptional("Notes", in.Notes, MaxNotesLength)
	add(msg)

	relationship, msg := ValidateOptional("Relationship", in.Relationship, MaxRelationshipLength)
	add(msg)

	submitterName, msg := ValidateOptional("Submitter name", in.SubmitterName, MaxSubmitterLength)
	add(msg)

	if len(errs) > 0 {
		return Result{IsValid: false, Errors: errs}
	}

	data := &SanitizedSubmission{
		Name:           name,
		Date:           date.String(),
		DateComponents: date,
		Category:       category,
		Notes:          notes,
		SubmitterName:  submitterName,
		Relationship:   relationship,
	}
	if email != "" {
		data.SubmitterEmail = &email
	}

	return Result{IsValid: true, Data: data}
}
