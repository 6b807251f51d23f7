package server

import (
	"net/http"

	"github.com/ternarybob/ecrop/internal/metrics"
)

// setupRoutes configures all HTTP routes
func (s *Server) setupRoutes() *http.ServeMux {
	mux := http.NewServeMux()

	// UI pages
	mux.HandleFunc("/", s.app.PageHandler.ServePage("index.html", "home"))
	mux.HandleFunc("/static/", s.app.PageHandler.StaticFileHandler)

	// Owner update form submission
	mux.HandleFunc("/run", s.app.RunHandler.RunHandler)

	// Live workflow log
	mux.HandleFunc("/ws", s.app.WSHandler.HandleWebSocket)

	// API routes - run history
	mux.HandleFunc("/api/runs", func(w http.ResponseWriter, r *http.Request) {
		RouteReadOnly(w, r, s.app.RunsHandler.ListHandler)
	})
	mux.HandleFunc("/api/runs/", s.handleRunRoutes)

	// API routes - system
	mux.HandleFunc("/api/version", s.app.APIHandler.VersionHandler)
	mux.HandleFunc("/api/health", s.app.APIHandler.HealthHandler)

	if s.app.Config.Metrics.Enabled {
		mux.Handle("/metrics", metrics.Handler())
	}

	// 404 for unmatched API routes
	mux.HandleFunc("/api/", s.app.APIHandler.NotFoundHandler)

	return mux
}

// handleRunRoutes dispatches /api/runs/{id}, /api/runs/{id}/report.pdf and /api/runs/{id}/report.md
func (s *Server) handleRunRoutes(w http.ResponseWriter, r *http.Request) {
	routes := []PathSuffixRouter{
		{Suffix: "/report.pdf", Handler: s.app.RunsHandler.PDFHandler},
		{Suffix: "/report.md", Handler: s.app.RunsHandler.MarkdownHandler},
	}
	if r.Method == http.MethodGet && RouteByPathSuffix(w, r, "/api/runs/", routes) {
		return
	}
	RouteReadOnly(w, r, s.app.RunsHandler.GetHandler)
}
