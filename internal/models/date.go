package models

import (
	"fmt"
	"time"
)

// DateComponents is a calendar date whose year may be unknown.
type DateComponents struct {
	Year  *int `json:"year,omitempty"`
	Month int  `json:"month"`
	Day   int  `json:"day"`
}

// NewDate builds DateComponents with a known year.
func NewDate(year, month, day int) DateComponents {
	return DateComponents{Year: &year, Month: month, Day: day}
}

// DateFromTime extracts DateComponents from a time value.
func DateFromTime(t time.Time) DateComponents {
	return NewDate(t.Year(), int(t.Month()), t.Day())
}

// HasYear reports whether the year is known.
func (d DateComponents) HasYear() bool {
	return d.Year != nil
}

// SameMonthDay reports whether both dates fall on the same month and day.
func (d DateComponents) SameMonthDay(o DateComponents) bool {
	return d.Month == o.Month && d.Day == o.Day
}

// String formats the date as YYYY-MM-DD, or --MM-DD when the year is unknown.
func (d DateComponents) String() string {
	if d.Year == nil {
		return fmt.Sprintf("--%02d-%02d", d.Month, d.Day)
	}
	return fmt.Sprintf("%04d-%02d-%02d", *d.Year, d.Month, d.Day)
}
