package validation

import (
	"fmt"
	"regexp"
	"strings"
	"time"
	"unicode"
	"unicode/utf8"

	"birthdays/internal/models"
)

// Field limits
const (
	MaxRawLength          = 1000
	MaxNameLength         = 100
	MaxEmailLength        = 254
	MaxCategoryLength     = 50
	MaxNotesLength        = 500
	MaxRelationshipLength = 50
	MaxSubmitterLength    = 100
	MaxDescriptionLength  = 200
	MinTokenLength        = 10
	MaxTokenLength        = 100
	MinYear               = 1900
)

// TokenPattern defines the valid sharing token format: URL-safe base64 alphabet.
var TokenPattern = regexp.MustCompile(`^[A-Za-z0-9_-]+$`)

var (
	datePattern  = regexp.MustCompile(`^\d{4}-\d{2}-\d{2}$`)
	emailPattern = regexp.MustCompile(`^[^\s@]+@[^\s@]+\.[^\s@]+$`)

	angleBrackets  = regexp.MustCompile(`[<>]`)
	scriptProtocol = regexp.MustCompile(`(?i)javascript\s*:`)
	inlineHandler  = regexp.MustCompile(`(?i)\bon\w+\s*=`)
)

// Sanitize strips markup and script markers from free text and trims it.
// Input is capped at MaxRawLength runes before any other processing.
func Sanitize(input string) string {
	s := input
	if utf8.RuneCountInString(s) > MaxRawLength {
		s = string([]rune(s)[:MaxRawLength])
	}
	s = angleBrackets.ReplaceAllString(s, "")
	s = scriptProtocol.ReplaceAllString(s, "")
	s = inlineHandler.ReplaceAllString(s, "")
	return strings.TrimSpace(s)
}

// ValidateToken checks if a sharing token matches the allowed pattern and length.
func ValidateToken(token string) bool {
	if len(token) < MinTokenLength || len(token) > MaxTokenLength {
		return false
	}
	return TokenPattern.MatchString(token)
}

// ValidateName sanitizes a birthday name and returns it, or an error message.
func ValidateName(raw string) (string, string) {
	if strings.TrimSpace(raw) == "" {
		return "", "Name is required"
	}

	name := Sanitize(raw)
	n := utf8.RuneCountInString(name)
	if n < 1 || n > MaxNameLength {
		return "", fmt.Sprintf("Name must be between 1 and %d characters", MaxNameLength)
	}

	if !strings.ContainsFunc(name, unicode.IsLetter) {
		return "", "Name must contain at least one letter"
	}

	return name, ""
}

// ValidateDate parses a YYYY-MM-DD date whose year lies in [1900, now.Year()+1].
func ValidateDate(raw string, now time.Time) (models.DateComponents, string) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return models.DateComponents{}, "Date is required"
	}
	if !datePattern.MatchString(s) {
		return models.DateComponents{}, "Date must be in YYYY-MM-DD format"
	}

	t, err := time.Parse("2006-01-02", s)
	if err != nil {
		return models.DateComponents{}, "Date is not a valid calendar date"
	}

	maxYear := now.Year() + 1
	if t.Year() < MinYear || t.Year() > maxYear {
		return models.DateComponents{}, fmt.Sprintf("Year must be between %d and %d", MinYear, maxYear)
	}

	return models.DateFromTime(t), ""
}

// ValidateEmail normalizes an optional email address. An empty input is valid and yields "".
func ValidateEmail(raw string) (string, string) {
	email := strings.ToLower(strings.TrimSpace(raw))
	if email == "" {
		return "", ""
	}
	if len(email) > MaxEmailLength {
		return "", fmt.Sprintf("Email must be %d characters or less", MaxEmailLength)
	}
	if !emailPattern.MatchString(email) {
		return "", "Email address is invalid"
	}
	return email, ""
}

// ValidateOptional sanitizes an optional free-text field. Empty results are returned as nil.
func ValidateOptional(label, raw string, maxLen int) (*string, string) {
	s := Sanitize(raw)
	if s == "" {
		return nil, ""
	}
	if utf8.RuneCountInString(s) > maxLen {
		return nil, fmt.Sprintf("%s must be %d characters or less", label, maxLen)
	}
	return &s, ""
}
