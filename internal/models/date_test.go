package models

import "testing"

func TestDateComponents_String(t *testing.T) {
	tests := []struct {
		name string
		date DateComponents
		want string
	}{
		{"with year", NewDate(2015, 3, 2), "2015-03-02"},
		{"without year", DateComponents{Month: 12, Day: 25}, "--12-25"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.date.String(); got != tt.want {
				t.Errorf("String() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestDateComponents_SameMonthDay(t *testing.T) {
	a := NewDate(1990, 7, 4)
	b := DateComponents{Month: 7, Day: 4}
	c := NewDate(1990, 7, 5)

	if !a.SameMonthDay(b) {
		t.Error("expected same month/day")
	}
	if a.SameMonthDay(c) {
		t.Error("expected different month/day")
	}
}
