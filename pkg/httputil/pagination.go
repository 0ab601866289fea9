package httputil

import (
	"fmt"
	"net/http"
)

const (
	defaultPerPage = 20
	maxPerPage     = 100
)

// Pagination holds the page window requested by a client.
type Pagination struct {
	Page    int
	PerPage int
}

// Offset returns the row offset for the requested page.
func (p Pagination) Offset() int {
	return (p.Page - 1) * p.PerPage
}

// ParsePagination reads page and per_page query parameters, applying
// defaults and capping per_page at 100.
func ParsePagination(r *http.Request) (Pagination, error) {
	page, err := ParseQueryInt(r, "page", 1)
	if err != nil {
		return Pagination{}, err
	}
	perPage, err := ParseQueryInt(r, "per_page", defaultPerPage)
	if err != nil {
		return Pagination{}, err
	}

	if page < 1 {
		return Pagination{}, fmt.Errorf("page must be at least 1")
	}
	if perPage < 1 {
		return Pagination{}, fmt.Errorf("per_page must be at least 1")
	}
	if perPage > maxPerPage {
		perPage = maxPerPage
	}
	return Pagination{Page: page, PerPage: perPage}, nil
}

// PaginatedResponse wraps a page of items with its paging envelope.
type PaginatedResponse struct {
	Items      interface{} `json:"items"`
	Page       int         `json:"page"`
	PerPage    int         `json:"per_page"`
	Total      int         `json:"total"`
	TotalPages int         `json:"total_pages"`
}

// TotalPages computes the number of pages needed for total items. An empty
// collection has zero pages rather than one empty page.
func TotalPages(total, perPage int) int {
	if total <= 0 || perPage <= 0 {
		return 0
	}
	return (total + perPage - 1) / perPage
}

// WritePaginated writes a 200 response with the standard paging envelope.
func WritePaginated(w http.ResponseWriter, items interface{}, p Pagination, total int) error {
	return WriteSuccess(w, PaginatedResponse{
		Items:      items,
		Page:       p.Page,
		PerPage:    p.PerPage,
		Total:      total,
		TotalPages: TotalPages(total, p.PerPage),
	})
}
