package handlers

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/ternarybob/arbor"

	"github.com/ternarybob/ecrop/internal/interfaces"
	"github.com/ternarybob/ecrop/internal/models"
)

const runsPrefix = "/api/runs/"

// RunSummary is the list view of a stored run
type RunSummary struct {
	ID            string    `json:"id"`
	VillageCode   string    `json:"village_code"`
	DatasetFile   string    `json:"dataset_file"`
	Status        string    `json:"status"`
	StartedAt     time.Time `json:"started_at"`
	FinishedAt    time.Time `json:"finished_at"`
	Khatas        int       `json:"khatas"`
	RowsUpdated   int       `json:"rows_updated"`
	SkippedKhatas int       `json:"skipped_khatas"`
}

// RunsHandler serves stored run history and its reports
type RunsHandler struct {
	storage interfaces.RunStorage
	reports interfaces.ReportService
	logger  arbor.ILogger
}

func NewRunsHandler(storage interfaces.RunStorage, reports interfaces.ReportService, logger arbor.ILogger) *RunsHandler {
	return &RunsHandler{
		storage: storage,
		reports: reports,
		logger:  logger,
	}
}

// ListHandler returns the most recent runs, newest first
func (h *RunsHandler) ListHandler(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, http.MethodGet) {
		return
	}

	runs, err := h.storage.ListRuns(r.Context(), GetLimitParam(r, 20, 200))
	if err != nil {
		h.logger.Error().Err(err).Msg("Failed to list runs")
		WriteError(w, http.StatusInternalServerError, "Failed to list runs")
		return
	}

	summaries := make([]RunSummary, 0, len(runs))
	for _, run := range runs {
		summaries = append(summaries, RunSummary{
			ID:            run.ID,
			VillageCode:   run.VillageCode,
			DatasetFile:   run.DatasetFile,
			Status:        run.Status,
			StartedAt:     run.StartedAt,
			FinishedAt:    run.FinishedAt,
			Khatas:        len(run.Khatas),
			RowsUpdated:   run.TotalUpdated(),
			SkippedKhatas: run.SkippedKhatas(),
		})
	}

	WriteJSON(w, http.StatusOK, map[string]interface{}{
		"runs":  summaries,
		"count": len(summaries),
	})
}

// GetHandler returns one run with its Workflow Log
func (h *RunsHandler) GetHandler(w http.ResponseWriter, r *http.Request) {
	if report, ok := h.load(w, r, ""); ok {
		WriteJSON(w, http.StatusOK, report)
	}
}

// MarkdownHandler returns the markdown summary of a run
func (h *RunsHandler) MarkdownHandler(w http.ResponseWriter, r *http.Request) {
	report, ok := h.load(w, r, "/report.md")
	if !ok {
		return
	}
	w.Header().Set("Content-Type", "text/markdown; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	w.Write([]byte(h.reports.RenderMarkdown(report)))
}

// PDFHandler returns the PDF report of a run as a download
func (h *RunsHandler) PDFHandler(w http.ResponseWriter, r *http.Request) {
	report, ok := h.load(w, r, "/report.pdf")
	if !ok {
		return
	}

	pdf, err := h.reports.RenderPDF(report)
	if err != nil {
		WriteError(w, http.StatusInternalServerError, "Failed to render report")
		return
	}

	w.Header().Set("Content-Type", "application/pdf")
	w.Header().Set("Content-Disposition", `attachment; filename="ecrop-run-`+report.ID+`.pdf"`)
	w.WriteHeader(http.StatusOK)
	w.Write(pdf)
}

// load resolves the run id between the route prefix and suffix and fetches it
func (h *RunsHandler) load(w http.ResponseWriter, r *http.Request, suffix string) (*models.RunReport, bool) {
	if !RequireMethod(w, r, http.MethodGet) {
		return nil, false
	}

	id := strings.TrimSuffix(strings.TrimPrefix(r.URL.Path, runsPrefix), suffix)
	if id == "" || strings.Contains(id, "/") {
		WriteError(w, http.StatusNotFound, "Run not found")
		return nil, false
	}

	report, err := h.storage.GetRun(r.Context(), id)
	if errors.Is(err, interfaces.ErrRunNotFound) {
		WriteError(w, http.StatusNotFound, "Run not found")
		return nil, false
	}
	if err != nil {
		h.logger.Error().Err(err).Str("run_id", id).Msg("Failed to load run")
		WriteError(w, http.StatusInternalServerError, "Failed to load run")
		return nil, false
	}
	return report, true
}
