// Package repository provides the data access layer for the local journal.
package repository

// Journal listings page through order attempts and holding history.
const (
	DefaultLimit = 50
	MaxLimit     = 200
)

// Pagination is an offset window over a journal listing.
type Pagination struct {
	Limit  int
	Offset int
}

// NewPagination clamps limit to [1, MaxLimit], defaulting to DefaultLimit,
// and offset to zero or more.
func NewPagination(limit, offset int) Pagination {
	switch {
	case limit <= 0:
		limit = DefaultLimit
	case limit > MaxLimit:
		limit = MaxLimit
	}
	return Pagination{Limit: limit, Offset: max(offset, 0)}
}

// PageToPagination converts the API's 1-based page and per_page parameters.
func PageToPagination(page, perPage int) Pagination {
	p := NewPagination(perPage, 0)
	p.Offset = (max(page, 1) - 1) * p.Limit
	return p
}

// PaginatedResult is one page of a listing and where it sits in the whole.
type PaginatedResult[T any] struct {
	Items      []T   `json:"items"`
	Total      int64 `json:"total"`
	Page       int   `json:"page"`
	PerPage    int   `json:"per_page"`
	TotalPages int   `json:"total_pages"`
	HasMore    bool  `json:"has_more"`
}

// NewPaginatedResult wraps items fetched with p out of total rows.
func NewPaginatedResult[T any](items []T, total int64, p Pagination) PaginatedResult[T] {
	return PaginatedResult[T]{
		Items:      items,
		Total:      total,
		Page:       p.Offset/p.Limit + 1,
		PerPage:    p.Limit,
		TotalPages: int((total + int64(p.Limit) - 1) / int64(p.Limit)),
		HasMore:    int64(p.Offset+len(items)) < total,
	}
}
