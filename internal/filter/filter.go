// Package filter holds the pure record transformations the service applies
// between fetch and response: year filtering, free-text and multi-criteria
// search, and pagination. Nothing here touches the network or the cache.
package filter

import (
	"strings"
	"time"

	"github.com/dnaufal/presensi/internal/sheet"
)

// Criteria carries the multi-criteria search terms. Zero values mean "not
// constrained". Normalize before comparing or fingerprinting.
type Criteria struct {
	Search   string `json:"search,omitempty"`
	Teacher  string `json:"teacher,omitempty"`
	Student  string `json:"student,omitempty"`
	DateFrom string `json:"dateFrom,omitempty"`
	DateTo   string `json:"dateTo,omitempty"`
}

// Normalized lowercases and trims every free-text term so equivalent
// queries compare and fingerprint identically.
func (c Criteria) Normalized() Criteria {
	norm := func(s string) string { return strings.ToLower(strings.TrimSpace(s)) }
	return Criteria{
		Search:   norm(c.Search),
		Teacher:  norm(c.Teacher),
		Student:  norm(c.Student),
		DateFrom: strings.TrimSpace(c.DateFrom),
		DateTo:   strings.TrimSpace(c.DateTo),
	}
}

// IsZero reports whether no criterion is set.
func (c Criteria) IsZero() bool {
	return c == Criteria{}
}

// CriteriaCount returns how many independent criteria are present, which the
// service uses to choose between the simple and advanced search paths.
func (c Criteria) CriteriaCount() int {
	n := 0
	for _, v := range []string{c.Search, c.Teacher, c.Student, c.DateFrom, c.DateTo} {
		if strings.TrimSpace(v) != "" {
			n++
		}
	}
	return n
}

// ByYear keeps records whose lesson date falls in the given 4-digit year.
// An empty year is a no-op.
func ByYear(records []sheet.Record, year string) []sheet.Record {
	year = strings.TrimSpace(year)
	if year == "" {
		return records
	}
	out := make([]sheet.Record, 0, len(records))
	for _, r := range records {
		if r.Year() == year {
			out = append(out, r)
		}
	}
	return out
}

// Search performs a case-insensitive substring match of term against every
// searchable field; a record matches when any field contains the term.
func Search(records []sheet.Record, term string) []sheet.Record {
	term = strings.ToLower(strings.TrimSpace(term))
	if term == "" {
		return records
	}
	out := make([]sheet.Record, 0, len(records))
	for _, r := range records {
		if r.MatchesTerm(term) {
			out = append(out, r)
		}
	}
	return out
}

// Advanced applies each present criterion as an independent narrowing step.
//
// A teacher term given without a student term matches against either the
// teacher or the student field. That broadened-OR behavior is intentional:
// callers searching by one name usually do not know which role it belongs
// to. When both terms are present each matches only its own field.
func Advanced(records []sheet.Record, c Criteria) []sheet.Record {
	c = c.Normalized()
	out := records

	if c.Search != "" {
		out = Search(out, c.Search)
	}

	switch {
	case c.Teacher != "" && c.Student != "":
		out = keep(out, func(r sheet.Record) bool {
			return strings.Contains(strings.ToLower(r.Teacher), c.Teacher) &&
				strings.Contains(strings.ToLower(r.Student), c.Student)
		})
	case c.Teacher != "":
		out = keep(out, func(r sheet.Record) bool {
			return strings.Contains(strings.ToLower(r.Teacher), c.Teacher) ||
				strings.Contains(strings.ToLower(r.Student), c.Teacher)
		})
	case c.Student != "":
		out = keep(out, func(r sheet.Record) bool {
			return strings.Contains(strings.ToLower(r.Student), c.Student)
		})
	}

	if c.DateFrom != "" || c.DateTo != "" {
		from, to := dateBounds(c.DateFrom, c.DateTo)
		out = keep(out, func(r sheet.Record) bool {
			ts := r.ParsedTimestamp()
			return !ts.Before(from) && !ts.After(to)
		})
	}

	return out
}

func keep(records []sheet.Record, pred func(sheet.Record) bool) []sheet.Record {
	out := make([]sheet.Record, 0, len(records))
	for _, r := range records {
		if pred(r) {
			out = append(out, r)
		}
	}
	return out
}

// dateBounds resolves the inclusive [from, to] window, defaulting missing or
// unparseable bounds to effectively unbounded instants.
func dateBounds(fromStr, toStr string) (time.Time, time.Time) {
	from := time.Date(1970, 1, 1, 0, 0, 0, 0, time.UTC)
	to := time.Date(9999, 12, 31, 23, 59, 59, 0, time.UTC)
	if t, ok := sheet.ParseDateBound(fromStr, false); ok {
		from = t
	}
	if t, ok := sheet.ParseDateBound(toStr, true); ok {
		to = t
	}
	return from, to
}
