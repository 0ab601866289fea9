package api

import (
	"net/http"

	"github.com/gorilla/mux"

	"github.com/basinhq/basin/pkg/apperrors"
	"github.com/basinhq/basin/pkg/httputil"
	"github.com/basinhq/basin/pkg/middleware"
	"github.com/basinhq/basin/pkg/observability"
	"github.com/basinhq/basin/pkg/projects"
)

// ProjectHandlers serves the project resource endpoints.
type ProjectHandlers struct {
	svc     *projects.Service
	logger  *observability.Logger
	metrics *observability.Metrics
}

// NewProjectHandlers creates handlers backed by the project service
func NewProjectHandlers(svc *projects.Service, logger *observability.Logger, metrics *observability.Metrics) *ProjectHandlers {
	return &ProjectHandlers{svc: svc, logger: logger, metrics: metrics}
}

// RegisterRoutes registers the project routes
func (h *ProjectHandlers) RegisterRoutes(router *mux.Router) {
	router.HandleFunc("/api/v1/projects", h.create).Methods("POST")
	router.HandleFunc("/api/v1/projects", h.list).Methods("GET")
	router.HandleFunc("/api/v1/projects/{id}", h.get).Methods("GET")
	router.HandleFunc("/api/v1/projects/{id}", h.update).Methods("PATCH")
	router.HandleFunc("/api/v1/projects/{id}", h.delete).Methods("DELETE")
}

type createProjectRequest struct {
	Namespace   string              `json:"namespace"`
	Slug        string              `json:"slug"`
	Visibility  projects.Visibility `json:"visibility"`
	Description string              `json:"description"`
	Keywords    []string            `json:"keywords"`
}

func (h *ProjectHandlers) create(w http.ResponseWriter, r *http.Request) {
	var req createProjectRequest
	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}

	caller := middleware.CallerFromRequest(r)
	created, err := h.svc.Create(r.Context(), caller, projects.Project{
		Namespace:   req.Namespace,
		Slug:        req.Slug,
		Visibility:  req.Visibility,
		Description: req.Description,
		Keywords:    req.Keywords,
	})
	if err != nil {
		httputil.WriteTaxonomyError(w, err)
		return
	}

	w.Header().Set("ETag", created.Etag)
	httputil.WriteCreated(w, created)
}

func (h *ProjectHandlers) list(w http.ResponseWriter, r *http.Request) {
	caller := middleware.CallerFromRequest(r)
	result, err := h.svc.List(r.Context(), caller)
	if err != nil {
		httputil.WriteTaxonomyError(w, err)
		return
	}

	p, err := httputil.ParsePagination(r)
	if err != nil {
		httputil.WriteBadRequest(w, err.Error())
		return
	}
	httputil.WritePaginated(w, pageOf(result, p), p, len(result))
}

func (h *ProjectHandlers) get(w http.ResponseWriter, r *http.Request) {
	id, ok := httputil.ParsePathStringOrError(w, r, "id")
	if !ok {
		return
	}

	caller := middleware.CallerFromRequest(r)
	project, err := h.svc.Get(r.Context(), caller, id)
	if err != nil {
		httputil.WriteTaxonomyError(w, err)
		return
	}

	w.Header().Set("ETag", project.Etag)
	httputil.WriteSuccess(w, project)
}

func (h *ProjectHandlers) update(w http.ResponseWriter, r *http.Request) {
	id, ok := httputil.ParsePathStringOrError(w, r, "id")
	if !ok {
		return
	}

	etag := r.Header.Get("If-Match")
	if etag == "" {
		httputil.WriteTaxonomyError(w, apperrors.NewValidation("If-Match header is required"))
		return
	}

	var patch projects.ProjectPatch
	if !httputil.ParseJSONOrError(w, r, &patch) {
		return
	}

	caller := middleware.CallerFromRequest(r)
	updated, err := h.svc.Update(r.Context(), caller, id, etag, patch)
	if err != nil {
		if apperrors.IsConflict(err) && h.metrics != nil {
			h.metrics.EtagConflictsTotal.Inc()
		}
		httputil.WriteTaxonomyError(w, err)
		return
	}

	w.Header().Set("ETag", updated.Etag)
	httputil.WriteSuccess(w, updated)
}

func (h *ProjectHandlers) delete(w http.ResponseWriter, r *http.Request) {
	id, ok := httputil.ParsePathStringOrError(w, r, "id")
	if !ok {
		return
	}

	caller := middleware.CallerFromRequest(r)
	if err := h.svc.Delete(r.Context(), caller, id); err != nil {
		httputil.WriteTaxonomyError(w, err)
		return
	}
	httputil.WriteNoContent(w)
}
