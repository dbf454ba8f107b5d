package cache

import (
	"strconv"
	"strings"

	"github.com/dnaufal/presensi/internal/filter"
)

// KeyPrefix namespaces every response-cache key so shared backends can be
// cleared without touching foreign data.
const KeyPrefix = "presensi:data:"

// Key builds the deterministic request fingerprint. Free-text criteria are
// lowercased and trimmed first so equivalent queries with different casing
// or whitespace collide to the same entry. Absent criteria are omitted
// entirely, keeping keys for plain pagination short and stable.
func Key(year string, page, pageSize int, c filter.Criteria) string {
	c = c.Normalized()

	var sb strings.Builder
	sb.WriteString(KeyPrefix)
	if year = strings.TrimSpace(year); year != "" {
		sb.WriteString("year=")
		sb.WriteString(year)
	} else {
		sb.WriteString("year=all")
	}
	sb.WriteString(":page=")
	sb.WriteString(strconv.Itoa(page))
	sb.WriteString(":size=")
	sb.WriteString(strconv.Itoa(pageSize))

	appendPart := func(name, value string) {
		if value == "" {
			return
		}
		sb.WriteString(":")
		sb.WriteString(name)
		sb.WriteString("=")
		sb.WriteString(value)
	}
	appendPart("search", c.Search)
	appendPart("teacher", c.Teacher)
	appendPart("student", c.Student)
	appendPart("from", c.DateFrom)
	appendPart("to", c.DateTo)

	return sb.String()
}
