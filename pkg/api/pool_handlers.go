package api

import (
	"net/http"

	"github.com/gorilla/mux"

	"github.com/basinhq/basin/pkg/httputil"
	"github.com/basinhq/basin/pkg/middleware"
	"github.com/basinhq/basin/pkg/observability"
	"github.com/basinhq/basin/pkg/pools"
)

// PoolHandlers serves the resource pool endpoints. Mutations are admin-only;
// the service enforces that, handlers just translate errors.
type PoolHandlers struct {
	svc    *pools.Service
	logger *observability.Logger
}

// NewPoolHandlers creates handlers backed by the pool service
func NewPoolHandlers(svc *pools.Service, logger *observability.Logger) *PoolHandlers {
	return &PoolHandlers{svc: svc, logger: logger}
}

// RegisterRoutes registers the resource pool routes
func (h *PoolHandlers) RegisterRoutes(router *mux.Router) {
	router.HandleFunc("/api/v1/resource_pools", h.createPool).Methods("POST")
	router.HandleFunc("/api/v1/resource_pools", h.listPools).Methods("GET")
	router.HandleFunc("/api/v1/resource_pools/{id}", h.getPool).Methods("GET")
	router.HandleFunc("/api/v1/resource_pools/{id}", h.updatePool).Methods("PATCH")
	router.HandleFunc("/api/v1/resource_pools/{id}", h.deletePool).Methods("DELETE")

	router.HandleFunc("/api/v1/resource_pools/{id}/classes", h.createClass).Methods("POST")
	router.HandleFunc("/api/v1/resource_pools/{id}/classes/{classId}", h.updateClass).Methods("PATCH")
	router.HandleFunc("/api/v1/resource_pools/{id}/classes/{classId}", h.deleteClass).Methods("DELETE")

	router.HandleFunc("/api/v1/resource_pools/{id}/users", h.listPoolUsers).Methods("GET")
	router.HandleFunc("/api/v1/resource_pools/{id}/users", h.grantUsersToPool).Methods("PUT")
	router.HandleFunc("/api/v1/users/{userId}/resource_pools", h.grantPoolsToUser).Methods("PUT")
	router.HandleFunc("/api/v1/users", h.createUser).Methods("POST")
	router.HandleFunc("/api/v1/users/{userId}", h.getUser).Methods("GET")
	router.HandleFunc("/api/v1/users/{userId}", h.removeUser).Methods("DELETE")

	router.HandleFunc("/api/v1/resource_pools/matching", h.matchClasses).Methods("POST")
}

func (h *PoolHandlers) createPool(w http.ResponseWriter, r *http.Request) {
	var pool pools.ResourcePool
	if !httputil.ParseJSONOrError(w, r, &pool) {
		return
	}

	caller := middleware.CallerFromRequest(r)
	created, err := h.svc.CreatePool(r.Context(), caller, pool)
	if err != nil {
		httputil.WriteTaxonomyError(w, err)
		return
	}
	httputil.WriteCreated(w, created)
}

func (h *PoolHandlers) listPools(w http.ResponseWriter, r *http.Request) {
	var targetUserID *string
	if v := httputil.ParseQueryString(r, "user_id", ""); v != "" {
		targetUserID = &v
	}

	caller := middleware.CallerFromRequest(r)
	result, err := h.svc.ListPools(r.Context(), caller, targetUserID)
	if err != nil {
		httputil.WriteTaxonomyError(w, err)
		return
	}
	httputil.WriteSuccess(w, result)
}

func (h *PoolHandlers) getPool(w http.ResponseWriter, r *http.Request) {
	id, ok := httputil.ParsePathInt64OrError(w, r, "id")
	if !ok {
		return
	}

	caller := middleware.CallerFromRequest(r)
	pool, err := h.svc.GetPool(r.Context(), caller, id)
	if err != nil {
		httputil.WriteTaxonomyError(w, err)
		return
	}
	httputil.WriteSuccess(w, pool)
}

func (h *PoolHandlers) updatePool(w http.ResponseWriter, r *http.Request) {
	id, ok := httputil.ParsePathInt64OrError(w, r, "id")
	if !ok {
		return
	}

	var patch pools.PoolPatch
	if !httputil.ParseJSONOrError(w, r, &patch) {
		return
	}

	caller := middleware.CallerFromRequest(r)
	updated, err := h.svc.UpdatePool(r.Context(), caller, id, patch)
	if err != nil {
		httputil.WriteTaxonomyError(w, err)
		return
	}
	httputil.WriteSuccess(w, updated)
}

func (h *PoolHandlers) deletePool(w http.ResponseWriter, r *http.Request) {
	id, ok := httputil.ParsePathInt64OrError(w, r, "id")
	if !ok {
		return
	}

	caller := middleware.CallerFromRequest(r)
	deleted, err := h.svc.DeletePool(r.Context(), caller, id)
	if err != nil {
		httputil.WriteTaxonomyError(w, err)
		return
	}
	if deleted == nil {
		httputil.WriteNoContent(w)
		return
	}
	httputil.WriteSuccess(w, deleted)
}

func (h *PoolHandlers) createClass(w http.ResponseWriter, r *http.Request) {
	poolID, ok := httputil.ParsePathInt64OrError(w, r, "id")
	if !ok {
		return
	}

	var class pools.ResourceClass
	if !httputil.ParseJSONOrError(w, r, &class) {
		return
	}

	caller := middleware.CallerFromRequest(r)
	created, err := h.svc.CreateClass(r.Context(), caller, poolID, class)
	if err != nil {
		httputil.WriteTaxonomyError(w, err)
		return
	}
	httputil.WriteCreated(w, created)
}

func (h *PoolHandlers) updateClass(w http.ResponseWriter, r *http.Request) {
	poolID, ok := httputil.ParsePathInt64OrError(w, r, "id")
	if !ok {
		return
	}
	classID, ok := httputil.ParsePathInt64OrError(w, r, "classId")
	if !ok {
		return
	}

	var patch pools.ClassPatch
	if !httputil.ParseJSONOrError(w, r, &patch) {
		return
	}

	caller := middleware.CallerFromRequest(r)
	updated, err := h.svc.UpdateClass(r.Context(), caller, poolID, classID, patch)
	if err != nil {
		httputil.WriteTaxonomyError(w, err)
		return
	}
	httputil.WriteSuccess(w, updated)
}

func (h *PoolHandlers) deleteClass(w http.ResponseWriter, r *http.Request) {
	poolID, ok := httputil.ParsePathInt64OrError(w, r, "id")
	if !ok {
		return
	}
	classID, ok := httputil.ParsePathInt64OrError(w, r, "classId")
	if !ok {
		return
	}

	caller := middleware.CallerFromRequest(r)
	if err := h.svc.DeleteClass(r.Context(), caller, poolID, classID); err != nil {
		httputil.WriteTaxonomyError(w, err)
		return
	}
	httputil.WriteNoContent(w)
}

func (h *PoolHandlers) listPoolUsers(w http.ResponseWriter, r *http.Request) {
	poolID, ok := httputil.ParsePathInt64OrError(w, r, "id")
	if !ok {
		return
	}

	caller := middleware.CallerFromRequest(r)
	users, err := h.svc.ListPoolUsers(r.Context(), caller, poolID)
	if err != nil {
		httputil.WriteTaxonomyError(w, err)
		return
	}
	httputil.WriteSuccess(w, users)
}

type grantUsersRequest struct {
	Users  []pools.PoolUser `json:"users"`
	Append bool             `json:"append"`
}

func (h *PoolHandlers) grantUsersToPool(w http.ResponseWriter, r *http.Request) {
	poolID, ok := httputil.ParsePathInt64OrError(w, r, "id")
	if !ok {
		return
	}

	var req grantUsersRequest
	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}

	caller := middleware.CallerFromRequest(r)
	if err := h.svc.GrantUsersToPool(r.Context(), caller, poolID, req.Users, req.Append); err != nil {
		httputil.WriteTaxonomyError(w, err)
		return
	}
	httputil.WriteNoContent(w)
}

type grantPoolsRequest struct {
	PoolIDs []int64 `json:"pool_ids"`
	Append  bool    `json:"append"`
}

func (h *PoolHandlers) grantPoolsToUser(w http.ResponseWriter, r *http.Request) {
	userID, ok := httputil.ParsePathStringOrError(w, r, "userId")
	if !ok {
		return
	}

	var req grantPoolsRequest
	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}

	caller := middleware.CallerFromRequest(r)
	if err := h.svc.GrantPoolsToUser(r.Context(), caller, userID, req.PoolIDs, req.Append); err != nil {
		httputil.WriteTaxonomyError(w, err)
		return
	}
	httputil.WriteNoContent(w)
}

func (h *PoolHandlers) createUser(w http.ResponseWriter, r *http.Request) {
	var user pools.PoolUser
	if !httputil.ParseJSONOrError(w, r, &user) {
		return
	}

	caller := middleware.CallerFromRequest(r)
	created, err := h.svc.CreateUser(r.Context(), caller, user)
	if err != nil {
		httputil.WriteTaxonomyError(w, err)
		return
	}
	httputil.WriteCreated(w, created)
}

func (h *PoolHandlers) getUser(w http.ResponseWriter, r *http.Request) {
	userID, ok := httputil.ParsePathStringOrError(w, r, "userId")
	if !ok {
		return
	}

	caller := middleware.CallerFromRequest(r)
	user, err := h.svc.GetUser(r.Context(), caller, userID)
	if err != nil {
		httputil.WriteTaxonomyError(w, err)
		return
	}
	httputil.WriteSuccess(w, user)
}

func (h *PoolHandlers) removeUser(w http.ResponseWriter, r *http.Request) {
	userID, ok := httputil.ParsePathStringOrError(w, r, "userId")
	if !ok {
		return
	}

	caller := middleware.CallerFromRequest(r)
	if err := h.svc.RemoveUser(r.Context(), caller, userID); err != nil {
		httputil.WriteTaxonomyError(w, err)
		return
	}
	httputil.WriteNoContent(w)
}

func (h *PoolHandlers) matchClasses(w http.ResponseWriter, r *http.Request) {
	var req pools.Requirements
	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}

	caller := middleware.CallerFromRequest(r)
	poolList, err := h.svc.ListPools(r.Context(), caller, nil)
	if err != nil {
		httputil.WriteTaxonomyError(w, err)
		return
	}
	httputil.WriteSuccess(w, pools.GroupByPool(poolList, req))
}
