// Package api wires the HTTP surface of the basin server.
//
// Routes are grouped per resource into handler structs, each registering
// its own routes on the shared mux router:
//
//   - ProjectHandlers: /api/v1/projects
//   - ConnectorHandlers: /api/v1/data_connectors
//   - PoolHandlers: /api/v1/resource_pools, /api/v1/users
//
// Handlers are thin: parse, delegate to the service, translate errors via
// httputil.WriteTaxonomyError. All access decisions, scope escalation, and
// etag gating live in the services; admin-only pool mutations are enforced
// there as well.
//
// Updates to etag-protected resources require the If-Match header carrying
// the etag from a prior read; responses carry the current etag in the ETag
// header.
package api
