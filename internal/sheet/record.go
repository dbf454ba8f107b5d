package sheet

import (
	"strings"
	"time"
)

// Record is one normalized attendance entry derived from a spreadsheet row.
// Records are created per fetch cycle and never mutated afterwards; the
// remote sheet stays the single source of truth.
type Record struct {
	Timestamp string `json:"timestamp"`
	Teacher   string `json:"teacher"`
	Student   string `json:"student"`
	Date      string `json:"date"`
	Time      string `json:"time"`
	Duration  string `json:"duration,omitempty"`

	// RowIndex is the 2-based position of the source row (row 1 is the
	// header), kept for traceability back to the sheet.
	RowIndex int `json:"rowIndex"`
}

// Columns maps the logical record fields to the header names used in the
// sheet. The defaults match the production attendance form.
type Columns struct {
	Timestamp string `koanf:"timestamp"`
	Teacher   string `koanf:"teacher"`
	Student   string `koanf:"student"`
	Date      string `koanf:"date"`
	Time      string `koanf:"time"`
	Duration  string `koanf:"duration"`
}

// DefaultColumns returns the header layout of the production sheet.
func DefaultColumns() Columns {
	return Columns{
		Timestamp: "Timestamp",
		Teacher:   "Nama Tentor",
		Student:   "Nama Siswa",
		Date:      "Hari dan Tanggal Les",
		Time:      "Jam Kegiatan Les",
		Duration:  "Durasi Les",
	}
}

// required lists the fields a row must populate to survive normalization.
// Duration is optional.
func (c Columns) required() []string {
	return []string{c.Timestamp, c.Teacher, c.Student, c.Date, c.Time}
}

// ParsedTimestamp converts the record's submission timestamp into a
// comparable instant per ParseTimestamp's sort-last policy.
func (r Record) ParsedTimestamp() time.Time {
	return ParseTimestamp(r.Timestamp)
}

// Year extracts the 4-digit year segment from the lesson date
// (DD/MM/YYYY). It returns "" when the date does not carry one.
func (r Record) Year() string {
	parts := strings.Split(strings.TrimSpace(r.Date), "/")
	if len(parts) != 3 {
		return ""
	}
	year := strings.TrimSpace(parts[2])
	if len(year) != 4 {
		return ""
	}
	return year
}

// searchFields returns the values the free-text search matches against.
func (r Record) searchFields() []string {
	fields := []string{r.Teacher, r.Student, r.Date, r.Time, r.Timestamp}
	if r.Duration != "" {
		fields = append(fields, r.Duration)
	}
	return fields
}

// MatchesTerm reports whether any searchable field contains the already
// lowercased and trimmed term.
func (r Record) MatchesTerm(term string) bool {
	if term == "" {
		return true
	}
	for _, field := range r.searchFields() {
		if strings.Contains(strings.ToLower(field), term) {
			return true
		}
	}
	return false
}
