package models

import (
	"errors"
	"testing"
)

func TestSubmissionStatus_Transition(t *testing.T) {
	tests := []struct {
		name    string
		from    SubmissionStatus
		to      SubmissionStatus
		want    SubmissionStatus
		wantErr bool
	}{
		{"pending to imported", StatusPending, StatusImported, StatusImported, false},
		{"pending to rejected", StatusPending, StatusRejected, StatusRejected, false},
		{"pending to pending", StatusPending, StatusPending, StatusPending, true},
		{"imported to rejected", StatusImported, StatusRejected, StatusImported, true},
		{"rejected to imported", StatusRejected, StatusImported, StatusRejected, true},
		{"imported to pending", StatusImported, StatusPending, StatusImported, true},
		{"unknown to imported", SubmissionStatus("ARCHIVED"), StatusImported, SubmissionStatus("ARCHIVED"), true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := tt.from.Transition(tt.to)
			if (err != nil) != tt.wantErr {
				t.Fatalf("Transition() error = %v, wantErr %v", err, tt.wantErr)
			}
			if err != nil && !errors.Is(err, ErrInvalidTransition) {
				t.Errorf("Transition() error = %v, want ErrInvalidTransition", err)
			}
			if got != tt.want {
				t.Errorf("Transition() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestSubmissionStatus_IsTerminal(t *testing.T) {
	if StatusPending.IsTerminal() {
		t.Error("PENDING should not be terminal")
	}
	if !StatusImported.IsTerminal() || !StatusRejected.IsTerminal() {
		t.Error("IMPORTED and REJECTED should be terminal")
	}
}

func TestSubmissionStatus_Valid(t *testing.T) {
	for _, s := range []SubmissionStatus{StatusPending, StatusImported, StatusRejected} {
		if !s.Valid() {
			t.Errorf("%q should be valid", s)
		}
	}
	for _, s := range []SubmissionStatus{"", "pending", "ARCHIVED"} {
		if s.Valid() {
			t.Errorf("%q should not be valid", s)
		}
	}
}

func TestBirthdayFromSubmission(t *testing.T) {
	category := "family"
	s := &BirthdaySubmission{
		Name:     "Avery",
		Date:     NewDate(2015, 3, 2),
		Category: &category,
		Status:   StatusPending,
	}

	b := BirthdayFromSubmission(s, [16]byte{1})
	if b.Name != "Avery" || b.Date.String() != "2015-03-02" {
		t.Errorf("BirthdayFromSubmission() = %+v", b)
	}
	if b.ImportSource == nil || *b.ImportSource != ImportSourceSharing {
		t.Errorf("ImportSource = %v, want %q", b.ImportSource, ImportSourceSharing)
	}
	if b.Category == nil || *b.Category != "family" {
		t.Errorf("Category = %v, want family", b.Category)
	}
}
