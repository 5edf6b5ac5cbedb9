/*
dates.go - Normalization of the upstream free-text date encodings

PURPOSE:
  The source portal emits dates as strings in several encodings, most
  commonly "06-Oct-2025". The store keeps them raw; all parsing happens
  here, in one place, with an ordered format list.

POLICY:
  A date that fails to parse is NOT an error. Records with unusable
  dates are excluded from time-bucketed aggregates while their amounts
  still count toward scalar totals (observed upstream behavior, kept).
  Plausibility additionally rejects years before 2000 and dates after
  the injected "now" - both show up in the raw feed.
*/
package engine

import (
	"strings"
	"time"
)

// dateFormats is the ordered list of accepted encodings. Order matters:
// a value can be consistent with more than one pattern, and the first
// successful parse wins.
var dateFormats = []string{
	"02-Jan-2006", // dominant portal format
	"02-Jan-06",
	"02/01/2006",
	"2006-01-02", // ISO, used by API query parameters
}

// monthKeyFormat is the canonical month bucket key, e.g. "2025-10".
// Keys in this format sort chronologically as plain strings.
const monthKeyFormat = "2006-01"

// NormalizeDate parses a raw date string into a calendar date.
// Empty strings and the pandas "nan" token fail fast.
func NormalizeDate(raw string) (time.Time, bool) {
	raw = strings.TrimSpace(raw)
	if raw == "" || strings.EqualFold(raw, "nan") {
		return time.Time{}, false
	}
	for _, layout := range dateFormats {
		if t, err := time.Parse(layout, raw); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

// Plausible reports whether a normalized date is usable for time
// bucketing: year 2000 or later, and not after now. now is injected so
// the filter is deterministic under test.
func Plausible(d time.Time, now time.Time) bool {
	return d.Year() >= 2000 && !d.After(now)
}

// MonthKey returns the YYYY-MM bucket key for a date.
func MonthKey(d time.Time) string { return d.Format(monthKeyFormat) }
