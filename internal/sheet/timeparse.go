package sheet

import (
	"sort"
	"strings"
	"time"
)

const (
	dateLayout      = "02/01/2006"
	timestampLayout = "02/01/2006 15:04:05"
)

// ParseTimestamp parses "DD/MM/YYYY" or "DD/MM/YYYY HH:mm:ss" into an
// instant. Missing or malformed values map to the Unix epoch so they sort
// last under the newest-first ordering; callers must not treat an epoch
// result as an error signal.
func ParseTimestamp(s string) time.Time {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Unix(0, 0).UTC()
	}
	if t, err := time.Parse(timestampLayout, s); err == nil {
		return t
	}
	if t, err := time.Parse(dateLayout, s); err == nil {
		return t
	}
	return time.Unix(0, 0).UTC()
}

// ParseDateBound parses a date-range bound in either "YYYY-MM-DD" or
// "DD/MM/YYYY" form. endOfDay selects 23:59:59 instead of midnight. The
// second return reports whether the input was usable.
func ParseDateBound(s string, endOfDay bool) (time.Time, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, false
	}
	var t time.Time
	var err error
	if strings.Contains(s, "-") {
		t, err = time.Parse("2006-01-02", s)
	} else {
		t, err = time.Parse(dateLayout, s)
	}
	if err != nil {
		return time.Time{}, false
	}
	if endOfDay {
		t = t.Add(23*time.Hour + 59*time.Minute + 59*time.Second)
	}
	return t, true
}

// SortNewestFirst returns a new slice ordered by descending submission
// timestamp. The sort is stable so ties keep their original order, which
// makes the operation idempotent.
func SortNewestFirst(records []Record) []Record {
	sorted := make([]Record, len(records))
	copy(sorted, records)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].ParsedTimestamp().After(sorted[j].ParsedTimestamp())
	})
	return sorted
}
