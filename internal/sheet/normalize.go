package sheet

import "strings"

// Row is one raw data row together with its 1-based position in the sheet.
type Row struct {
	Cells  []string
	Number int
}

// Normalize converts a raw value grid (header row first) into Records. Row
// numbers are assigned positionally: the first data row is row 2.
func Normalize(grid [][]string, cols Columns) []Record {
	if len(grid) < 2 {
		return nil
	}
	rows := make([]Row, 0, len(grid)-1)
	for i, cells := range grid[1:] {
		rows = append(rows, Row{Cells: cells, Number: i + 2})
	}
	return NormalizeRows(grid[0], rows, cols)
}

// NormalizeRows converts data rows into Records using the given header row.
// Rows that are entirely blank, or blank in every required column, are
// dropped without error; "no usable data" is a valid state, not a failure.
// Output preserves input row order.
func NormalizeRows(headers []string, rows []Row, cols Columns) []Record {
	if len(headers) == 0 || len(rows) == 0 {
		return nil
	}

	index := make(map[string]int, len(headers))
	for i, h := range headers {
		index[strings.TrimSpace(h)] = i
	}

	cell := func(cells []string, header string) string {
		i, ok := index[header]
		if !ok || i >= len(cells) {
			return ""
		}
		return cells[i]
	}

	required := cols.required()
	records := make([]Record, 0, len(rows))

	for _, row := range rows {
		if allBlank(row.Cells) {
			continue
		}
		blankRequired := true
		for _, header := range required {
			if strings.TrimSpace(cell(row.Cells, header)) != "" {
				blankRequired = false
				break
			}
		}
		if blankRequired {
			continue
		}

		records = append(records, Record{
			Timestamp: strings.TrimSpace(cell(row.Cells, cols.Timestamp)),
			Teacher:   strings.TrimSpace(cell(row.Cells, cols.Teacher)),
			Student:   strings.TrimSpace(cell(row.Cells, cols.Student)),
			Date:      strings.TrimSpace(cell(row.Cells, cols.Date)),
			Time:      strings.TrimSpace(cell(row.Cells, cols.Time)),
			Duration:  strings.TrimSpace(cell(row.Cells, cols.Duration)),
			RowIndex:  row.Number,
		})
	}

	// Second pass: a required column may exist while an individual cell is
	// still blank. Those rows are invalid and silently discarded too.
	valid := records[:0]
	for _, r := range records {
		if r.Timestamp == "" || r.Teacher == "" || r.Student == "" || r.Date == "" || r.Time == "" {
			continue
		}
		valid = append(valid, r)
	}
	return valid
}

func allBlank(cells []string) bool {
	for _, c := range cells {
		if strings.TrimSpace(c) != "" {
			return false
		}
	}
	return true
}
