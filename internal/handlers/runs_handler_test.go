package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ternarybob/arbor"

	"github.com/ternarybob/ecrop/internal/interfaces"
	"github.com/ternarybob/ecrop/internal/models"
	"github.com/ternarybob/ecrop/internal/services/report"
)

type memRuns struct {
	runs []*models.RunReport
}

func (m *memRuns) SaveRun(ctx context.Context, r *models.RunReport) error {
	m.runs = append(m.runs, r)
	return nil
}

func (m *memRuns) GetRun(ctx context.Context, id string) (*models.RunReport, error) {
	for _, r := range m.runs {
		if r.ID == id {
			return r, nil
		}
	}
	return nil, interfaces.ErrRunNotFound
}

func (m *memRuns) ListRuns(ctx context.Context, limit int) ([]*models.RunReport, error) {
	if limit > len(m.runs) {
		limit = len(m.runs)
	}
	return m.runs[:limit], nil
}

func (m *memRuns) Close() error { return nil }

func newRunsHandler() *RunsHandler {
	logger := arbor.NewLogger()
	started := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	storage := &memRuns{runs: []*models.RunReport{
		{
			ID: "run-2", VillageCode: "1234", Status: models.RunStatusCompleted,
			StartedAt: started.Add(time.Hour), FinishedAt: started.Add(2 * time.Hour),
			Khatas: []models.KhataResult{{KhataID: "101", Updated: 3}, {KhataID: "102", SkipReason: "No eligible rows"}},
		},
		{ID: "run-1", VillageCode: "1234", Status: models.RunStatusFailed, StartedAt: started},
	}}
	return NewRunsHandler(storage, report.NewService(logger), logger)
}

func TestRunsHandler_List(t *testing.T) {
	rec := httptest.NewRecorder()
	newRunsHandler().ListHandler(rec, httptest.NewRequest(http.MethodGet, "/api/runs?limit=1", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	var body struct {
		Runs  []RunSummary `json:"runs"`
		Count int          `json:"count"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.Equal(t, 1, body.Count)
	assert.Equal(t, "run-2", body.Runs[0].ID)
	assert.Equal(t, 3, body.Runs[0].RowsUpdated)
	assert.Equal(t, 1, body.Runs[0].SkippedKhatas)
}

func TestRunsHandler_Get(t *testing.T) {
	handler := newRunsHandler()

	rec := httptest.NewRecorder()
	handler.GetHandler(rec, httptest.NewRequest(http.MethodGet, "/api/runs/run-1", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	var run models.RunReport
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &run))
	assert.Equal(t, models.RunStatusFailed, run.Status)

	rec = httptest.NewRecorder()
	handler.GetHandler(rec, httptest.NewRequest(http.MethodGet, "/api/runs/missing", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = httptest.NewRecorder()
	handler.GetHandler(rec, httptest.NewRequest(http.MethodDelete, "/api/runs/run-1", nil))
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}

func TestRunsHandler_Reports(t *testing.T) {
	handler := newRunsHandler()

	rec := httptest.NewRecorder()
	handler.PDFHandler(rec, httptest.NewRequest(http.MethodGet, "/api/runs/run-2/report.pdf", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/pdf", rec.Header().Get("Content-Type"))
	assert.Contains(t, rec.Header().Get("Content-Disposition"), "ecrop-run-run-2.pdf")
	assert.Equal(t, "%PDF", rec.Body.String()[:4])

	rec = httptest.NewRecorder()
	handler.MarkdownHandler(rec, httptest.NewRequest(http.MethodGet, "/api/runs/run-2/report.md", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "# Owner Update Run run-2")

	rec = httptest.NewRecorder()
	handler.PDFHandler(rec, httptest.NewRequest(http.MethodGet, "/api/runs/missing/report.pdf", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestAPIHandler_HealthAndVersion(t *testing.T) {
	handler := NewAPIHandler(busyFlag(false), arbor.NewLogger())

	rec := httptest.NewRecorder()
	handler.HealthHandler(rec, httptest.NewRequest(http.MethodGet, "/api/health", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ok","run_active":false}`, rec.Body.String())

	rec = httptest.NewRecorder()
	handler.VersionHandler(rec, httptest.NewRequest(http.MethodGet, "/api/version", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"version"`)
}
