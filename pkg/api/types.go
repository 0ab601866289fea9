package api

import "github.com/basinhq/basin/pkg/httputil"

// pageOf windows an in-memory result set onto the requested page.
func pageOf[T any](items []T, p httputil.Pagination) []T {
	start := p.Offset()
	if start >= len(items) {
		return []T{}
	}
	end := start + p.PerPage
	if end > len(items) {
		end = len(items)
	}
	return items[start:end]
}
