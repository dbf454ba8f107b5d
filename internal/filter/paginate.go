package filter

import "github.com/dnaufal/presensi/internal/sheet"

// Pagination is the metadata block returned with every data page.
type Pagination struct {
	Page        int  `json:"currentPage"`
	PageSize    int  `json:"pageSize"`
	TotalItems  int  `json:"totalItems"`
	TotalPages  int  `json:"totalPages"`
	HasNextPage bool `json:"hasNextPage"`
	HasPrevPage bool `json:"hasPreviousPage"`
}

// Paginate slices out the 1-based page of the given size. Pages beyond the
// last clamp to the last page instead of returning empty; pages below 1
// clamp to the first. The engine assumes a positive size, clamped upstream.
func Paginate(records []sheet.Record, page, size int) ([]sheet.Record, Pagination) {
	if size < 1 {
		size = 1
	}
	total := len(records)
	totalPages := (total + size - 1) / size
	if totalPages < 1 {
		totalPages = 1
	}
	if page < 1 {
		page = 1
	}
	if page > totalPages {
		page = totalPages
	}

	start := (page - 1) * size
	end := start + size
	if start > total {
		start = total
	}
	if end > total {
		end = total
	}

	return records[start:end], Pagination{
		Page:        page,
		PageSize:    size,
		TotalItems:  total,
		TotalPages:  totalPages,
		HasNextPage: page < totalPages,
		HasPrevPage: page > 1,
	}
}
