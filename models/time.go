package models

import "time"

// TimeFormat is the timestamp layout stored on every record. UTC RFC3339
// keeps string comparisons consistent with chronological order.
const TimeFormat = time.RFC3339

// FormatTime renders t in the stored layout.
func FormatTime(t time.Time) string {
	return t.UTC().Format(TimeFormat)
}

// ParseTime parses a stored timestamp; the zero time is returned for
// malformed or empty values so age checks treat them as ancient.
func ParseTime(s string) time.Time {
	t, err := time.Parse(TimeFormat, s)
	if err != nil {
		return time.Time{}
	}
	return t
}
