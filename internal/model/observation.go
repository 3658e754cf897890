package model

import (
	"time"

	"github.com/rotisserie/eris"
)

// DateLayout is the wire format for calendar dates.
const DateLayout = "2006-01-02"

// Observation is one confirmed "store served flavor on date" record.
// Rows are append-only: one per store per calendar date.
type Observation struct {
	StoreID     string    `json:"store_id" csv:"store_id"`
	Brand       string    `json:"brand" csv:"brand"`
	Date        time.Time `json:"-" csv:"-"`
	Flavor      string    `json:"flavor" csv:"flavor"`
	Description string    `json:"description,omitempty" csv:"description"`
	CapturedAt  time.Time `json:"captured_at,omitzero" csv:"-"`
}

// HasCapture reports whether the capture timestamp is known.
func (o Observation) HasCapture() bool {
	return !o.CapturedAt.IsZero()
}

// ParseDate parses a YYYY-MM-DD calendar date as UTC midnight.
func ParseDate(s string) (time.Time, error) {
	t, err := time.Parse(DateLayout, s)
	if err != nil {
		return time.Time{}, eris.Wrapf(err, "model: parse date %q", s)
	}
	return t.UTC(), nil
}

// FormatDate renders t as YYYY-MM-DD in UTC.
func FormatDate(t time.Time) string {
	return t.UTC().Format(DateLayout)
}

// Day truncates t to midnight UTC of its UTC calendar day.
func Day(t time.Time) time.Time {
	y, m, d := t.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// DaysBetween returns the whole number of calendar days from a to b.
// Negative when b is before a.
func DaysBetween(a, b time.Time) int {
	return int(Day(b).Sub(Day(a)).Hours() / 24)
}
