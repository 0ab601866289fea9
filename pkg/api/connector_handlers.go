package api

import (
	"net/http"

	"github.com/gorilla/mux"

	"github.com/basinhq/basin/pkg/apperrors"
	"github.com/basinhq/basin/pkg/connectors"
	"github.com/basinhq/basin/pkg/httputil"
	"github.com/basinhq/basin/pkg/middleware"
	"github.com/basinhq/basin/pkg/observability"
)

// ConnectorHandlers serves the data connector endpoints.
type ConnectorHandlers struct {
	svc     *connectors.Service
	logger  *observability.Logger
	metrics *observability.Metrics
}

// NewConnectorHandlers creates handlers backed by the connector service
func NewConnectorHandlers(svc *connectors.Service, logger *observability.Logger, metrics *observability.Metrics) *ConnectorHandlers {
	return &ConnectorHandlers{svc: svc, logger: logger, metrics: metrics}
}

// RegisterRoutes registers the data connector routes
func (h *ConnectorHandlers) RegisterRoutes(router *mux.Router) {
	router.HandleFunc("/api/v1/data_connectors", h.create).Methods("POST")
	router.HandleFunc("/api/v1/data_connectors", h.list).Methods("GET")
	router.HandleFunc("/api/v1/data_connectors/{id}", h.get).Methods("GET")
	router.HandleFunc("/api/v1/data_connectors/{id}", h.update).Methods("PATCH")
	router.HandleFunc("/api/v1/data_connectors/{id}", h.delete).Methods("DELETE")
}

type createConnectorRequest struct {
	Namespace   string                `json:"namespace"`
	Slug        string                `json:"slug"`
	Visibility  connectors.Visibility `json:"visibility"`
	Description string                `json:"description"`
	Keywords    []string              `json:"keywords"`
	Storage     connectors.Storage    `json:"storage"`
}

func (h *ConnectorHandlers) create(w http.ResponseWriter, r *http.Request) {
	var req createConnectorRequest
	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}

	caller := middleware.CallerFromRequest(r)
	created, err := h.svc.Create(r.Context(), caller, connectors.DataConnector{
		Namespace:   req.Namespace,
		Slug:        req.Slug,
		Visibility:  req.Visibility,
		Description: req.Description,
		Keywords:    req.Keywords,
		Storage:     req.Storage,
	})
	if err != nil {
		httputil.WriteTaxonomyError(w, err)
		return
	}

	w.Header().Set("ETag", created.Etag)
	httputil.WriteCreated(w, created)
}

func (h *ConnectorHandlers) list(w http.ResponseWriter, r *http.Request) {
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

func (h *ConnectorHandlers) get(w http.ResponseWriter, r *http.Request) {
	id, ok := httputil.ParsePathStringOrError(w, r, "id")
	if !ok {
		return
	}

	caller := middleware.CallerFromRequest(r)
	connector, err := h.svc.Get(r.Context(), caller, id)
	if err != nil {
		httputil.WriteTaxonomyError(w, err)
		return
	}

	w.Header().Set("ETag", connector.Etag)
	httputil.WriteSuccess(w, connector)
}

func (h *ConnectorHandlers) update(w http.ResponseWriter, r *http.Request) {
	id, ok := httputil.ParsePathStringOrError(w, r, "id")
	if !ok {
		return
	}

	etag := r.Header.Get("If-Match")
	if etag == "" {
		httputil.WriteTaxonomyError(w, apperrors.NewValidation("If-Match header is required"))
		return
	}

	var patch connectors.ConnectorPatch
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

func (h *ConnectorHandlers) delete(w http.ResponseWriter, r *http.Request) {
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
