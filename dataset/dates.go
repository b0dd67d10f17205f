package dataset

import (
	"fmt"
	"strings"
	"time"
)

// unixOrdinal is the ordinal day of 1970-01-01, with 0001-01-01 as day 1.
const unixOrdinal = 719163

// Ordinal returns the proleptic Gregorian ordinal day of t's calendar date.
func Ordinal(t time.Time) float64 {
	y, m, d := t.Date()
	u := time.Date(y, m, d, 0, 0, 0, 0, time.UTC).Unix()
	days := u / 86400
	if u%86400 < 0 {
		days--
	}
	return float64(days + unixOrdinal)
}

// FromOrdinal is the inverse of Ordinal, in UTC.
func FromOrdinal(o float64) time.Time {
	return time.Unix((int64(o)-unixOrdinal)*86400, 0).UTC()
}

var strftime = strings.NewReplacer(
	"%Y", "2006",
	"%y", "06",
	"%m", "01",
	"%d", "02",
	"%j", "002",
	"%H", "15",
	"%M", "04",
	"%S", "05",
	"%%", "%",
)

// Layout converts a strftime date format such as "%Y%j" to a time layout.
// An empty format means ISO dates.
func Layout(format string) (string, error) {
	if format == "" {
		return time.DateOnly, nil
	}
	layout := strftime.Replace(format)
	if strings.Contains(layout, "%") && !strings.Contains(format, "%%") {
		return "", fmt.Errorf("dataset: unsupported directive in date format %q", format)
	}
	return layout, nil
}

// ParseDate parses s with a strftime format and returns its ordinal day.
func ParseDate(format, s string) (float64, error) {
	layout, err := Layout(format)
	if err != nil {
		return 0, err
	}
	t, err := time.Parse(layout, strings.TrimSpace(s))
	if err != nil {
		return 0, fmt.Errorf("dataset: date %q: %w", s, err)
	}
	return Ordinal(t), nil
}
