package incident

import (
	"strings"
	"time"
)

// dateLayouts are the accepted timestamp spellings in raw partitions, tried in
// order. The City of Chicago export uses the 12-hour layout; re-exports and
// intermediate tooling tend to normalize to RFC 3339 or plain SQL timestamps.
var dateLayouts = []string{
	time.RFC3339,
	"2006-01-02 15:04:05",
	"2006-01-02T15:04:05",
	"01/02/2006 03:04:05 PM",
	"2006-01-02",
}

// RawIncident is one row as it arrives in a yearly partition. Every field is
// nullable at the source: the export contains rows with missing coordinates,
// missing categories, and timestamps that do not parse.
type RawIncident struct {
	Date        *string
	PrimaryType *string
	Latitude    *float64
	Longitude   *float64
}

// Incident is a validated, usable row: all four fields present and the
// timestamp parsed. Only Incidents enter aggregation.
type Incident struct {
	Date        time.Time
	PrimaryType string
	Latitude    float64
	Longitude   float64
}

// ParseDate parses a raw timestamp string against the accepted layouts.
// Returns false for anything unparseable — the caller treats that the same as
// a missing value.
func ParseDate(s string) (time.Time, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, false
	}
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC(), true
		}
	}
	return time.Time{}, false
}

// Clean validates a raw row. A row is usable only if date, primary_type,
// latitude and longitude are all present and the date parses; anything else
// is dropped without error.
func Clean(raw RawIncident, norm *Normalizer) (Incident, bool) {
	if raw.Date == nil || raw.PrimaryType == nil || raw.Latitude == nil || raw.Longitude == nil {
		return Incident{}, false
	}

	date, ok := ParseDate(*raw.Date)
	if !ok {
		return Incident{}, false
	}

	primaryType := norm.Canonical(*raw.PrimaryType)
	if primaryType == "" {
		return Incident{}, false
	}

	return Incident{
		Date:        date,
		PrimaryType: primaryType,
		Latitude:    *raw.Latitude,
		Longitude:   *raw.Longitude,
	}, true
}

// MonthStart truncates a timestamp to the first day of its calendar month, in UTC.
// This is the bucket key for all monthly artifacts.
func MonthStart(t time.Time) time.Time {
	year, month, _ := t.UTC().Date()
	return time.Date(year, month, 1, 0, 0, 0, 0, time.UTC)
}

// DayStart truncates a timestamp to midnight UTC of its calendar day.
func DayStart(t time.Time) time.Time {
	year, month, day := t.UTC().Date()
	return time.Date(year, month, day, 0, 0, 0, 0, time.UTC)
}
