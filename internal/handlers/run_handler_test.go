package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ternarybob/arbor"

	"github.com/ternarybob/ecrop/internal/common"
	"github.com/ternarybob/ecrop/internal/models"
	"github.com/ternarybob/ecrop/internal/services/dataset"
	"github.com/ternarybob/ecrop/internal/services/ecrop"
	"github.com/ternarybob/ecrop/internal/services/license"
)

// fakeRunner records requests and answers with a canned report
type fakeRunner struct {
	mu       sync.Mutex
	busy     bool
	err      error
	requests []ecrop.RunRequest
	ctxErr   error
}

func (f *fakeRunner) Busy() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.busy
}

func (f *fakeRunner) Run(ctx context.Context, req ecrop.RunRequest) (*models.RunReport, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.requests = append(f.requests, req)
	f.ctxErr = ctx.Err()
	if f.err != nil {
		return nil, f.err
	}
	log := models.NewWorkflowLog()
	log.Info("Navigation complete. Village selected.")
	log.Info("Khata %s: %d rows updated.", "101", 1)
	log.Info("<script>alert(1)</script>")
	return &models.RunReport{
		ID:          "run-1",
		VillageCode: req.VillageCode,
		Status:      models.RunStatusCompleted,
		StartedAt:   time.Now(),
		FinishedAt:  time.Now(),
		Khatas:      []models.KhataResult{{KhataID: "101", Updated: 1}},
		Log:         log.Entries(),
	}, nil
}

type licenseFunc func(village, key string) error

func (f licenseFunc) Check(ctx context.Context, village, key string) error { return f(village, key) }

type runFixture struct {
	runner  *fakeRunner
	handler *RunHandler
	uploads string
}

func newRunFixture(t *testing.T, check licenseFunc) *runFixture {
	t.Helper()
	logger := arbor.NewLogger()
	pages, err := NewPageHandler(logger, "../../pages")
	require.NoError(t, err)

	uploads := common.NewDefaultConfig().Uploads
	uploads.Dir = filepath.Join(t.TempDir(), "uploads")

	if check == nil {
		check = func(village, key string) error { return nil }
	}
	runner := &fakeRunner{}
	return &runFixture{
		runner:  runner,
		handler: NewRunHandler(runner, check, dataset.NewLoader(logger), pages, uploads, logger),
		uploads: uploads.Dir,
	}
}

func uploadRequest(t *testing.T, fields map[string]string, fileName, content string) *http.Request {
	t.Helper()
	var body bytes.Buffer
	writer := multipart.NewWriter(&body)
	for name, value := range fields {
		require.NoError(t, writer.WriteField(name, value))
	}
	if fileName != "" {
		part, err := writer.CreateFormFile("excel_file", fileName)
		require.NoError(t, err)
		_, err = part.Write([]byte(content))
		require.NoError(t, err)
	}
	require.NoError(t, writer.Close())

	req := httptest.NewRequest(http.MethodPost, "/run", &body)
	req.Header.Set("Content-Type", writer.FormDataContentType())
	return req
}

func validFields() map[string]string {
	return map[string]string{
		"username":     "vaa01",
		"password":     "secret",
		"village_code": "1234",
		"license_key":  "ABC-1",
	}
}

const datasetCSV = "KNO,Mobile\n101,9876543210\n102,9123456789\n"

func TestRunHandler_RunsAndRendersLog(t *testing.T) {
	fx := newRunFixture(t, nil)
	rec := httptest.NewRecorder()

	fx.handler.RunHandler(rec, uploadRequest(t, validFields(), "villages.csv", datasetCSV))

	require.Equal(t, http.StatusOK, rec.Code)
	body := rec.Body.String()
	assert.Contains(t, body, "Navigation complete. Village selected.<br>Khata 101: 1 rows updated.<br>")
	assert.Contains(t, body, "&lt;script&gt;alert(1)&lt;/script&gt;<br>")
	assert.Contains(t, body, "/api/runs/run-1/report.pdf")

	require.Len(t, fx.runner.requests, 1)
	req := fx.runner.requests[0]
	assert.Equal(t, "vaa01", req.Username)
	assert.Equal(t, "1234", req.VillageCode)
	assert.Equal(t, "villages.csv", req.DatasetFile)
	assert.Equal(t, []string{"101", "102"}, req.Dataset.Khatas())
	assert.NoError(t, fx.runner.ctxErr)
	assert.FileExists(t, filepath.Join(fx.uploads, "villages.csv"))
}

func TestRunHandler_JSONResponse(t *testing.T) {
	fx := newRunFixture(t, nil)
	rec := httptest.NewRecorder()
	req := uploadRequest(t, validFields(), "villages.csv", datasetCSV)
	req.Header.Set("Accept", "application/json")

	fx.handler.RunHandler(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var report models.RunReport
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &report))
	assert.Equal(t, "run-1", report.ID)
	assert.Equal(t, 1, report.TotalUpdated())
}

func TestRunHandler_InvalidLicense(t *testing.T) {
	fx := newRunFixture(t, func(village, key string) error {
		return license.ErrInvalidLicense
	})
	rec := httptest.NewRecorder()

	fx.handler.RunHandler(rec, uploadRequest(t, validFields(), "villages.csv", datasetCSV))

	assert.Equal(t, http.StatusForbidden, rec.Code)
	assert.Contains(t, rec.Body.String(), "Invalid license key")
	assert.Empty(t, fx.runner.requests)
}

func TestRunHandler_BusyRunner(t *testing.T) {
	fx := newRunFixture(t, nil)
	fx.runner.busy = true
	rec := httptest.NewRecorder()

	fx.handler.RunHandler(rec, uploadRequest(t, validFields(), "villages.csv", datasetCSV))

	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Empty(t, fx.runner.requests)
}

func TestRunHandler_RunnerRejectsConcurrentRun(t *testing.T) {
	fx := newRunFixture(t, nil)
	fx.runner.err = ecrop.ErrRunInProgress
	rec := httptest.NewRecorder()
	req := uploadRequest(t, validFields(), "villages.csv", datasetCSV)
	req.Header.Set("Accept", "application/json")

	fx.handler.RunHandler(rec, req)

	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Contains(t, rec.Body.String(), ecrop.ErrRunInProgress.Error())
}

func TestRunHandler_RejectsBadInput(t *testing.T) {
	missingVillage := validFields()
	delete(missingVillage, "village_code")

	tests := []struct {
		name     string
		fields   map[string]string
		fileName string
		content  string
		contains string
	}{
		{"missing field", missingVillage, "villages.csv", datasetCSV, "village_code"},
		{"missing file", validFields(), "", "", "dataset file is required"},
		{"missing columns", validFields(), "villages.csv", "Khata,Phone\n101,9876543210\n", "KNO"},
		{"unsupported format", validFields(), "villages.txt", datasetCSV, "unsupported dataset format"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fx := newRunFixture(t, nil)
			rec := httptest.NewRecorder()

			fx.handler.RunHandler(rec, uploadRequest(t, tt.fields, tt.fileName, tt.content))

			assert.Equal(t, http.StatusBadRequest, rec.Code)
			assert.Contains(t, rec.Body.String(), tt.contains)
			assert.Empty(t, fx.runner.requests)
		})
	}
}

func TestRunHandler_UploadNameCannotEscapeUploadsDir(t *testing.T) {
	fx := newRunFixture(t, nil)
	rec := httptest.NewRecorder()

	fx.handler.RunHandler(rec, uploadRequest(t, validFields(), "../../evil.csv", datasetCSV))

	require.Equal(t, http.StatusOK, rec.Code)
	assert.FileExists(t, filepath.Join(fx.uploads, "evil.csv"))
	_, err := os.Stat(filepath.Join(filepath.Dir(filepath.Dir(fx.uploads)), "evil.csv"))
	assert.True(t, os.IsNotExist(err))
}

func TestRunHandler_MethodNotAllowed(t *testing.T) {
	fx := newRunFixture(t, nil)
	rec := httptest.NewRecorder()

	fx.handler.RunHandler(rec, httptest.NewRequest(http.MethodGet, "/run", strings.NewReader("")))

	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}
