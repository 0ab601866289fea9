package api

import (
	"net/http"

	"github.com/gorilla/mux"

	"github.com/basinhq/basin/pkg/connectors"
	"github.com/basinhq/basin/pkg/httputil"
	"github.com/basinhq/basin/pkg/middleware"
	"github.com/basinhq/basin/pkg/observability"
	"github.com/basinhq/basin/pkg/pools"
	"github.com/basinhq/basin/pkg/projects"
)

// Server represents the API server
type Server struct {
	router   *mux.Router
	logger   *observability.Logger
	resolver *middleware.CallerResolver
}

// Deps carries the services and infrastructure the server routes to.
type Deps struct {
	Logger     *observability.Logger
	Metrics    *observability.Metrics
	Resolver   *middleware.CallerResolver
	Projects   *projects.Service
	Connectors *connectors.Service
	Pools      *pools.Service
}

// NewServer creates the API server and wires all routes
func NewServer(deps Deps) *Server {
	s := &Server{
		router:   mux.NewRouter(),
		logger:   deps.Logger,
		resolver: deps.Resolver,
	}

	s.router.Use(httputil.RequestIDMiddleware)
	s.router.Use(httputil.LoggingMiddleware(deps.Logger))
	s.router.Use(httputil.RecoveryMiddleware(deps.Logger))
	if deps.Metrics != nil {
		s.router.Use(observability.HTTPMetricsMiddleware(deps.Metrics))
	}
	if deps.Resolver != nil {
		s.router.Use(deps.Resolver.Handler)
	}
	s.router.Use(httputil.ContentTypeMiddleware)
	s.router.Use(httputil.MaxBytesMiddleware(1 << 20))

	NewProjectHandlers(deps.Projects, deps.Logger, deps.Metrics).RegisterRoutes(s.router)
	NewConnectorHandlers(deps.Connectors, deps.Logger, deps.Metrics).RegisterRoutes(s.router)
	NewPoolHandlers(deps.Pools, deps.Logger).RegisterRoutes(s.router)

	return s
}

// ServeHTTP implements http.Handler
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}
