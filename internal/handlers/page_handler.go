package handlers

import (
	"fmt"
	"html/template"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/ternarybob/arbor"

	"github.com/ternarybob/ecrop/internal/common"
)

type PageHandler struct {
	logger    arbor.ILogger
	templates *template.Template
	pagesDir  string
}

// NewPageHandler parses every template in pagesDir; an empty pagesDir is searched for
func NewPageHandler(logger arbor.ILogger, pagesDir string) (*PageHandler, error) {
	if pagesDir == "" {
		pagesDir = findPagesDir()
	}

	templates, err := template.New("pages").Funcs(template.FuncMap{
		"version": common.GetVersion,
	}).ParseGlob(filepath.Join(pagesDir, "*.html"))
	if err != nil {
		return nil, fmt.Errorf("failed to parse page templates in %s: %w", pagesDir, err)
	}

	return &PageHandler{
		logger:    logger,
		templates: templates,
		pagesDir:  pagesDir,
	}, nil
}

// findPagesDir locates the pages directory
func findPagesDir() string {
	dirs := []string{
		"./pages",     // Running from project root
		"../pages",    // Running from bin/
		"../../pages", // Running from deeper location
	}

	for _, dir := range dirs {
		if _, err := os.Stat(dir); err == nil {
			abs, _ := filepath.Abs(dir)
			return abs
		}
	}

	return "."
}

// ServePage creates a handler function for serving a specific page template
func (h *PageHandler) ServePage(templateName string, pageName string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/" && pageName == "home" {
			http.NotFound(w, r)
			return
		}
		h.Render(w, http.StatusOK, templateName, map[string]interface{}{
			"Page": pageName,
		})
	}
}

// Render executes a template with the given status code
func (h *PageHandler) Render(w http.ResponseWriter, status int, templateName string, data interface{}) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	if err := h.templates.ExecuteTemplate(w, templateName, data); err != nil {
		h.logger.Error().
			Err(err).
			Str("template", templateName).
			Msg("Failed to render page")
	}
}

// StaticFileHandler serves static files (CSS, JS, images)
func (h *PageHandler) StaticFileHandler(w http.ResponseWriter, r *http.Request) {
	staticDir := filepath.Join(h.pagesDir, "static")

	path := strings.TrimPrefix(r.URL.Path, "/static/")
	fullPath := filepath.Join(staticDir, filepath.Clean("/"+path))

	// Security check - prevent directory traversal
	if !strings.HasPrefix(fullPath, staticDir+string(filepath.Separator)) {
		http.NotFound(w, r)
		return
	}

	http.ServeFile(w, r, fullPath)
}
