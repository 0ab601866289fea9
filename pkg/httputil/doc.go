// Package httputil provides HTTP utilities for standardized request/response handling.
//
// # Response Helpers
//
//	httputil.WriteSuccess(w, resource)
//	httputil.WriteCreated(w, resource)
//	httputil.WriteTaxonomyError(w, err) // maps domain errors to HTTP status codes
//
// WriteTaxonomyError understands the pkg/apperrors taxonomy: validation
// errors become 422, missing resources 404, conflicts 409, and so on.
// Anything unrecognized becomes a generic 500.
//
// # Request Parsing
//
//	var req createProjectRequest
//	if !httputil.ParseJSONOrError(w, r, &req) {
//		return // error response already written
//	}
//	id, ok := httputil.ParsePathStringOrError(w, r, "id")
//
// # Pagination
//
//	p, err := httputil.ParsePagination(r)
//	httputil.WritePaginated(w, items, p, total)
//
// # Middleware
//
//	httputil.Chain(
//		httputil.RequestIDMiddleware,
//		httputil.LoggingMiddleware(logger),
//		httputil.RecoveryMiddleware(logger),
//		httputil.MaxBytesMiddleware(1*1024*1024),
//	)
//
// # Related Packages
//
//   - pkg/middleware: caller resolution and admin gating
package httputil
