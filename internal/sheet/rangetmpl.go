package sheet

import (
	"errors"
	"fmt"
	"strings"
	"text/template"
	"unicode"

	sprig "github.com/Masterminds/sprig/v3"
)

// RangeTemplate renders the year-qualified range string, for example
// `Presensi {{ .Year }}!A:F`. Sprig helpers are available so operators can
// reshape sheet naming conventions without a deploy. Filesystem and
// environment helpers are stripped; a range template has no business
// reading either.
type RangeTemplate struct {
	source string
	tmpl   *template.Template
}

// NewRangeTemplate compiles the template eagerly so malformed configuration
// is rejected at startup rather than on the first year-filtered request.
func NewRangeTemplate(source string) (*RangeTemplate, error) {
	source = strings.TrimSpace(source)
	if source == "" {
		return nil, errors.New("sheet: range template required")
	}
	funcs := sprig.TxtFuncMap()
	for _, name := range []string{"env", "expandenv", "readDir", "mustReadDir", "readFile", "mustReadFile", "glob"} {
		delete(funcs, name)
	}
	tmpl, err := template.New("range").Funcs(funcs).Option("missingkey=error").Parse(source)
	if err != nil {
		return nil, fmt.Errorf("sheet: parse range template: %w", err)
	}
	return &RangeTemplate{source: source, tmpl: tmpl}, nil
}

// Render produces the range for the given year.
func (t *RangeTemplate) Render(year string) (string, error) {
	var sb strings.Builder
	if err := t.tmpl.Execute(&sb, map[string]string{"Year": year}); err != nil {
		return "", fmt.Errorf("sheet: render range template: %w", err)
	}
	return sb.String(), nil
}

// Source returns the raw template text for status reporting.
func (t *RangeTemplate) Source() string { return t.source }

// rangeSpec is a parsed `Sheet!A:F` style range.
type rangeSpec struct {
	Sheet    string
	StartCol string
	EndCol   string
}

// parseRange splits a sheet-qualified range into its parts. Row numbers in
// the column references are ignored; batch planning supplies its own.
func parseRange(r string) (rangeSpec, error) {
	name, cols, ok := strings.Cut(strings.TrimSpace(r), "!")
	if !ok || name == "" {
		return rangeSpec{}, fmt.Errorf("sheet: range %q missing sheet qualifier", r)
	}
	start, end, ok := strings.Cut(cols, ":")
	if !ok {
		return rangeSpec{}, fmt.Errorf("sheet: range %q missing column span", r)
	}
	spec := rangeSpec{
		Sheet:    strings.Trim(name, "'"),
		StartCol: stripDigits(start),
		EndCol:   stripDigits(end),
	}
	if spec.StartCol == "" || spec.EndCol == "" {
		return rangeSpec{}, fmt.Errorf("sheet: range %q has empty columns", r)
	}
	return spec, nil
}

func stripDigits(s string) string {
	return strings.TrimRightFunc(strings.TrimSpace(s), unicode.IsDigit)
}

// rowRange renders a concrete `Sheet!A<start>:F<end>` row window.
func (s rangeSpec) rowRange(start, end int) string {
	name := s.Sheet
	if strings.ContainsAny(name, " -") {
		name = "'" + name + "'"
	}
	return fmt.Sprintf("%s!%s%d:%s%d", name, s.StartCol, start, s.EndCol, end)
}
