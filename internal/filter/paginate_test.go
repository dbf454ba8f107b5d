package filter

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/dnaufal/presensi/internal/sheet"
)

func numberedRecords(n int) []sheet.Record {
	out := make([]sheet.Record, n)
	for i := range out {
		out[i] = sheet.Record{Teacher: fmt.Sprintf("t%03d", i), RowIndex: i + 2}
	}
	return out
}

func TestPaginateSlicesPages(t *testing.T) {
	records := numberedRecords(45)

	page, meta := Paginate(records, 1, 20)
	require.Len(t, page, 20)
	require.Equal(t, 2, page[0].RowIndex)
	require.Equal(t, Pagination{Page: 1, PageSize: 20, TotalItems: 45, TotalPages: 3, HasNextPage: true}, meta)

	page, meta = Paginate(records, 3, 20)
	require.Len(t, page, 5)
	require.Equal(t, 42, page[0].RowIndex)
	require.False(t, meta.HasNextPage)
	require.True(t, meta.HasPrevPage)
}

func TestPaginatePagesCoverEveryRecordOnce(t *testing.T) {
	records := numberedRecords(103)

	seen := make(map[int]bool)
	_, meta := Paginate(records, 1, 10)
	for p := 1; p <= meta.TotalPages; p++ {
		page, _ := Paginate(records, p, 10)
		for _, r := range page {
			require.False(t, seen[r.RowIndex])
			seen[r.RowIndex] = true
		}
	}
	require.Len(t, seen, 103)
}

func TestPaginateClampsOutOfRangePages(t *testing.T) {
	records := numberedRecords(25)

	// Beyond the last page clamps to the last page, not an empty slice.
	page, meta := Paginate(records, 99, 10)
	require.Len(t, page, 5)
	require.Equal(t, 3, meta.Page)
	require.False(t, meta.HasNextPage)

	page, meta = Paginate(records, 0, 10)
	require.Len(t, page, 10)
	require.Equal(t, 1, meta.Page)
	require.False(t, meta.HasPrevPage)
}

func TestPaginateEmptyInput(t *testing.T) {
	page, meta := Paginate(nil, 1, 20)
	require.Empty(t, page)
	require.Equal(t, Pagination{Page: 1, PageSize: 20, TotalItems: 0, TotalPages: 1}, meta)
}
