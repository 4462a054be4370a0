package submissions

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"

	"birthdays/internal/models"
)

func yearless(month, day int) models.DateComponents {
	return models.DateComponents{Month: month, Day: day}
}

func TestNameSimilarity(t *testing.T) {
	tests := []struct {
		a, b string
		want float64
	}{
		{"Avery", "Avery", 1},
		{"avery", "  AVERY ", 1},
		{"", "", 1},
		{"Avery", "", 0},
		{"kitten", "sitting", 1 - 3.0/7.0},
		{"José", "Jose", 0.75},
	}

	for _, tt := range tests {
		t.Run(tt.a+"/"+tt.b, func(t *testing.T) {
			assert.InDelta(t, tt.want, NameSimilarity(tt.a, tt.b), 1e-9)
		})
	}
}

func TestDateScore(t *testing.T) {
	tests := []struct {
		name string
		a, b models.DateComponents
		want float64
	}{
		{"full match", models.NewDate(2015, 3, 2), models.NewDate(2015, 3, 2), 0.4},
		{"year missing on one side", models.NewDate(2015, 3, 2), yearless(3, 2), 0.35},
		{"year missing on both", yearless(3, 2), yearless(3, 2), 0.35},
		{"different years", models.NewDate(2015, 3, 2), models.NewDate(2014, 3, 2), 0.2},
		{"different day", models.NewDate(2015, 3, 2), models.NewDate(2015, 3, 3), 0},
		{"different month", models.NewDate(2015, 3, 2), models.NewDate(2015, 4, 2), 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.InDelta(t, tt.want, DateScore(tt.a, tt.b), 1e-9)
		})
	}
}

func TestSimilarity_Thresholds(t *testing.T) {
	existing := models.Birthday{Name: "Avery Smith", Date: models.NewDate(2015, 3, 2)}

	identical := Similarity(Candidate{Name: "Avery Smith", Date: models.NewDate(2015, 3, 2)}, existing)
	assert.GreaterOrEqual(t, identical, PossibleDuplicateThreshold)
	assert.GreaterOrEqual(t, identical, DuplicateListThreshold)

	unrelated := Similarity(Candidate{Name: "Jordan Lee", Date: models.NewDate(1988, 11, 20)}, existing)
	assert.Less(t, unrelated, 0.5)
}

func TestFindDuplicates(t *testing.T) {
	existing := []models.Birthday{
		{Name: "Unrelated", Date: models.NewDate(1990, 1, 1)},
		{Name: "Avery Smyth", Date: models.NewDate(2015, 3, 2)},
		{Name: "Avery Smith", Date: models.NewDate(2015, 3, 2)},
		{Name: "Avery Smith", Date: yearless(3, 2)},
	}

	matches := findDuplicates(Candidate{Name: "Avery Smith", Date: models.NewDate(2015, 3, 2)}, existing, DuplicateListThreshold)

	assert.Len(t, matches, 3)
	for i := 1; i < len(matches); i++ {
		assert.GreaterOrEqual(t, matches[i-1].Similarity, matches[i].Similarity)
	}
	assert.Equal(t, "Avery Smith", matches[0].Birthday.Name)
	assert.InDelta(t, 1.0, matches[0].Similarity, 1e-9)
}

func TestThresholdsAreDistinct(t *testing.T) {
	existing := []models.Birthday{{Name: "Michael", Date: models.NewDate(2014, 3, 2)}}

	// Same name, month and day with a different year scores exactly 0.8
	exact := Candidate{Name: "Michael", Date: models.NewDate(2015, 3, 2)}
	assert.True(t, hasPossibleDuplicate(exact, existing))

	// One edit away with a different year lands between the two thresholds
	near := Candidate{Name: "Michel", Date: models.NewDate(2015, 3, 2)}
	score := Similarity(near, existing[0])
	assert.True(t, score >= DuplicateListThreshold && score < PossibleDuplicateThreshold, "score %v", score)
	assert.False(t, hasPossibleDuplicate(near, existing))
	assert.Len(t, findDuplicates(near, existing, DuplicateListThreshold), 1)
}

func TestLevenshtein(t *testing.T) {
	assert.Equal(t, 0, levenshtein([]rune("abc"), []rune("abc")))
	assert.Equal(t, 3, levenshtein([]rune(""), []rune("abc")))
	assert.Equal(t, 1, levenshtein([]rune("abc"), []rune("abd")))
	assert.Equal(t, 2, levenshtein([]rune("ab"), []rune("ba")))
	assert.False(t, math.IsNaN(NameSimilarity("a", "b")))
}
