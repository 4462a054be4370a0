package submissions

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/google/uuid"

	"birthdays/internal/models"
)

// Duplicate thresholds. DuplicateListThreshold drives the owner-facing duplicate list;
// PossibleDuplicateThreshold flags entries in the pending queue.
const (
	DuplicateListThreshold     = 0.7
	PossibleDuplicateThreshold = 0.8

	nameWeight = 0.6
	dateWeight = 0.4
)

// Candidate is a birthday to compare against an owner's list.
type Candidate struct {
	Name     string
	Date     models.DateComponents
	Category *string
}

// DuplicateMatch is an existing birthday resembling a candidate.
type DuplicateMatch struct {
	Birthday   models.Birthday `json:"birthday"`
	Similarity float64         `json:"similarity"`
}

// levenshtein returns the edit distance between a and b, counted in runes.
func levenshtein(a, b []rune) int {
	if len(a) == 0 {
		return len(b)
	}
	if len(b) == 0 {
		return len(a)
	}

	prev := make([]int, len(b)+1)
	curr := make([]int, len(b)+1)
	for j := range prev {
		prev[j] = j
	}

	for i := 1; i <= len(a); i++ {
		curr[0] = i
		for j := 1; j <= len(b); j++ {
			cost := 1
			if a[i-1] == b[j-1] {
				cost = 0
			}
			curr[j] = min(prev[j]+1, curr[j-1]+1, prev[j-1]+cost)
		}
		prev, curr = curr, prev
	}
	return prev[len(b)]
}

// NameSimilarity scores two names in [0,1], ignoring case and surrounding space.
func NameSimilarity(a, b string) float64 {
	ra := []rune(strings.ToLower(strings.TrimSpace(a)))
	rb := []rune(strings.ToLower(strings.TrimSpace(b)))

	longest := max(len(ra), len(rb))
	if longest == 0 {
		return 1
	}
	return 1 - float64(levenshtein(ra, rb))/float64(longest)
}

// DateScore is the date contribution to similarity: full weight when the whole date
// matches, less when only month and day agree.
func DateScore(a, b models.DateComponents) float64 {
	if !a.SameMonthDay(b) {
		return 0
	}
	switch {
	case !a.HasYear() || !b.HasYear():
		return 0.35
	case *a.Year == *b.Year:
		return dateWeight
	default:
		return 0.2
	}
}

// Similarity is the weighted name and date similarity of a candidate to an existing birthday.
func Similarity(c Candidate, b models.Birthday) float64 {
	return nameWeight*NameSimilarity(c.Name, b.Name) + DateScore(c.Date, b.Date)
}

// findDuplicates returns birthdays scoring at least threshold, most similar first.
func findDuplicates(c Candidate, existing []models.Birthday, threshold float64) []DuplicateMatch {
	matches := []DuplicateMatch{}
	for _, b := range existing {
		if score := Similarity(c, b); score >= threshold {
			matches = append(matches, DuplicateMatch{Birthday: b, Similarity: score})
		}
	}
	sort.SliceStable(matches, func(i, j int) bool {
		return matches[i].Similarity > matches[j].Similarity
	})
	return matches
}

// DetectDuplicates compares a candidate against the owner's birthdays.
func (s *Service) DetectDuplicates(ctx context.Context, ownerID uuid.UUID, c Candidate) ([]DuplicateMatch, error) {
	existing, err := s.store.ListBirthdaysByOwner(ctx, ownerID)
	if err != nil {
		return nil, fmt.Errorf("list birthdays: %w", err)
	}
	return findDuplicates(c, existing, DuplicateListThreshold), nil
}

// SubmissionDuplicates returns the owner's birthdays resembling a pending submission.
func (s *Service) SubmissionDuplicates(ctx context.Context, submissionID, ownerID uuid.UUID) ([]DuplicateMatch, error) {
	sub, err := s.getPending(ctx, submissionID, ownerID)
	if err != nil {
		return nil, err
	}
	return s.DetectDuplicates(ctx, ownerID, Candidate{Name: sub.Name, Date: sub.Date, Category: sub.Category})
}

// hasPossibleDuplicate reports whether any existing birthday clears the stricter threshold.
func hasPossibleDuplicate(c Candidate, existing []models.Birthday) bool {
	for _, b := range existing {
		if Similarity(c, b) >= PossibleDuplicateThreshold {
			return true
		}
	}
	return false
}
