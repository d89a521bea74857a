// internal/server/server.go
package server

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/markb/macrolite/internal/catalog"
	"github.com/markb/macrolite/internal/db"
	"github.com/markb/macrolite/internal/log"
	"github.com/markb/macrolite/internal/macro"
	"github.com/markb/macrolite/internal/observability"
)

// Config holds server configuration.
type Config struct {
	// Prefix is prepended to the macro routes, e.g. "/api". Empty means
	// macros are served from the root.
	Prefix string
}

type Server struct {
	db       *db.DB
	catalog  *catalog.Service
	executor *macro.Executor
	handler  *macro.Handler
	routes   *macro.Routes
	router   *chi.Mux
	prefix   string

	telemetry *observability.Telemetry

	// HTTP server for graceful shutdown
	httpServer *http.Server
}

func New(database *db.DB, cfg Config, tel *observability.Telemetry) *Server {
	catalogService := catalog.NewService(database)

	var sink macro.MetricsSink
	if tel != nil && tel.Metrics() != nil {
		sink = tel.Metrics()
	}
	executor := macro.NewExecutor(database, catalogService, sink)
	handler := macro.NewHandler(catalogService, executor)

	s := &Server{
		db:        database,
		catalog:   catalogService,
		executor:  executor,
		handler:   handler,
		routes:    macro.NewRoutes(handler),
		router:    chi.NewRouter(),
		prefix:    normalizePrefix(cfg.Prefix),
		telemetry: tel,
	}

	s.setupRoutes()
	return s
}

// normalizePrefix returns a prefix with a leading slash and no trailing
// slash, or "" for the root.
func normalizePrefix(p string) string {
	p = strings.Trim(p, "/")
	if p == "" {
		return ""
	}
	return "/" + p
}

// RefreshCatalog re-reads the macro catalog and regenerates the dynamic
// routes from the new snapshot.
func (s *Server) RefreshCatalog(ctx context.Context) (*catalog.Snapshot, int, error) {
	snap, err := s.catalog.Refresh(ctx)
	if err != nil {
		return nil, 0, err
	}
	count := s.routes.Regenerate(snap)
	return snap, count, nil
}

// Catalog returns the catalog service.
func (s *Server) Catalog() *catalog.Service {
	return s.catalog
}

func (s *Server) setupRoutes() {
	// CORS middleware for browser-based apps
	s.router.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "POST", "OPTIONS", "HEAD"},
		AllowedHeaders:   []string{"*"},
		AllowCredentials: false,
		MaxAge:           300,
	}))

	s.router.Use(log.RequestLogger)
	s.router.Use(middleware.Recoverer)
	s.router.Use(middleware.SetHeader("Content-Type", "application/json"))

	if s.telemetry != nil && s.telemetry.Config().ShouldEnable() {
		s.router.Use(observability.HTTPMiddleware(s.telemetry, s.telemetry.Config().ServiceName))
	}

	s.router.Get("/health", s.handleHealth)

	mount := func(r chi.Router) {
		r.Get("/macros", s.handler.HandleListMacros)
		r.Get("/macros/{name}", s.handler.HandleGetMacro)
		r.Post("/macros/{name}/execute", s.handler.HandleExecuteNamed)
		r.Mount("/execute", s.routes)
	}
	if s.prefix == "" {
		mount(s.router)
	} else {
		s.router.Route(s.prefix, mount)
	}

	// Admin API routes
	s.router.Route("/admin/v1", func(r chi.Router) {
		r.Post("/refresh", s.handleRefresh)
		r.Get("/logs", s.handleLogs)
	})
}

func (s *Server) Router() *chi.Mux {
	return s.router
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	if !s.db.Healthy(ctx) {
		w.WriteHeader(http.StatusServiceUnavailable)
		json.NewEncoder(w).Encode(map[string]string{
			"status":   "unhealthy",
			"database": "unreachable",
		})
		return
	}

	json.NewEncoder(w).Encode(map[string]any{
		"status":   "healthy",
		"database": s.db.Path(),
		"macros":   len(s.catalog.Current().Macros),
	})
}

// handleRefresh re-reads the catalog and swaps in regenerated routes.
// New and changed macros become routable; removed macros stop resolving.
func (s *Server) handleRefresh(w http.ResponseWriter, r *http.Request) {
	snap, count, err := s.RefreshCatalog(r.Context())
	if err != nil {
		log.Error("catalog refresh failed", "error", err.Error())
		w.WriteHeader(http.StatusInternalServerError)
		json.NewEncoder(w).Encode(map[string]string{
			"detail":     "catalog refresh failed: " + err.Error(),
			"error_code": "EXECUTION_ERROR",
			"timestamp":  time.Now().UTC().Format(time.RFC3339),
		})
		return
	}

	json.NewEncoder(w).Encode(map[string]any{
		"status":      "ok",
		"macros":      count,
		"captured_at": snap.CapturedAt.UTC().Format(time.RFC3339),
	})
}

// handleLogs returns the most recent buffered log lines.
func (s *Server) handleLogs(w http.ResponseWriter, r *http.Request) {
	n := 100
	if raw := r.URL.Query().Get("n"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 1 {
			w.WriteHeader(http.StatusBadRequest)
			json.NewEncoder(w).Encode(map[string]string{
				"detail":     "n must be a positive integer",
				"error_code": "INVALID_PARAMETERS",
				"timestamp":  time.Now().UTC().Format(time.RFC3339),
			})
			return
		}
		n = parsed
	}

	lines := log.GetBufferedLogs(n)
	if lines == nil {
		lines = []string{}
	}
	json.NewEncoder(w).Encode(map[string]any{
		"lines": lines,
		"count": len(lines),
	})
}

func (s *Server) ListenAndServe(addr string) error {
	s.httpServer = &http.Server{
		Addr:    addr,
		Handler: s.router,
	}
	return s.httpServer.ListenAndServe()
}

// Shutdown gracefully shuts down the HTTP server.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.httpServer != nil {
		return s.httpServer.Shutdown(ctx)
	}
	return nil
}
