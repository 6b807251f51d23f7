package handlers

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/ternarybob/arbor"

	"github.com/ternarybob/ecrop/internal/common"
	"github.com/ternarybob/ecrop/internal/interfaces"
	"github.com/ternarybob/ecrop/internal/models"
	"github.com/ternarybob/ecrop/internal/services/ecrop"
)

// Upload form field names
const (
	fieldUsername    = "username"
	fieldPassword    = "password"
	fieldVillageCode = "village_code"
	fieldLicenseKey  = "license_key"
	fieldDatasetFile = "excel_file"
)

type runForm struct {
	Username    string `validate:"required"`
	Password    string `validate:"required"`
	VillageCode string `validate:"required,max=32"`
	LicenseKey  string `validate:"max=256"`
}

// resultPage is the data of result.html
type resultPage struct {
	Title  string
	Error  string
	Report *models.RunReport
	Lines  []string
}

// RunHandler accepts the upload form and runs the workflow synchronously
type RunHandler struct {
	runner   WorkflowRunner
	license  interfaces.LicenseChecker
	loader   interfaces.DatasetLoader
	pages    *PageHandler
	uploads  common.UploadsConfig
	validate *validator.Validate
	logger   arbor.ILogger
}

func NewRunHandler(runner WorkflowRunner, license interfaces.LicenseChecker, loader interfaces.DatasetLoader, pages *PageHandler, uploads common.UploadsConfig, logger arbor.ILogger) *RunHandler {
	return &RunHandler{
		runner:   runner,
		license:  license,
		loader:   loader,
		pages:    pages,
		uploads:  uploads,
		validate: validator.New(),
		logger:   logger,
	}
}

// RunHandler handles POST /run. HTML clients get the Workflow Log joined by
// line breaks; clients sending Accept: application/json get the run report.
func (h *RunHandler) RunHandler(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, http.MethodPost) {
		return
	}

	maxBytes := int64(h.uploads.MaxSizeMB) << 20
	r.Body = http.MaxBytesReader(w, r.Body, maxBytes)
	if err := r.ParseMultipartForm(maxBytes); err != nil {
		h.fail(w, r, http.StatusBadRequest, fmt.Sprintf("Invalid upload: %v", err))
		return
	}
	defer r.MultipartForm.RemoveAll()

	form := runForm{
		Username:    strings.TrimSpace(r.FormValue(fieldUsername)),
		Password:    r.FormValue(fieldPassword),
		VillageCode: strings.TrimSpace(r.FormValue(fieldVillageCode)),
		LicenseKey:  strings.TrimSpace(r.FormValue(fieldLicenseKey)),
	}
	if err := h.validate.Struct(form); err != nil {
		h.fail(w, r, http.StatusBadRequest, formError(err))
		return
	}

	if h.runner.Busy() {
		h.fail(w, r, http.StatusConflict, ecrop.ErrRunInProgress.Error())
		return
	}

	path, err := h.saveUpload(r)
	if err != nil {
		h.fail(w, r, http.StatusBadRequest, err.Error())
		return
	}

	if err := h.license.Check(r.Context(), form.VillageCode, form.LicenseKey); err != nil {
		h.fail(w, r, http.StatusForbidden, err.Error())
		return
	}

	dataset, err := h.loader.Load(path)
	if err != nil {
		h.fail(w, r, http.StatusBadRequest, err.Error())
		return
	}

	// A client that stops waiting must not abort a run holding the portal session
	ctx := context.WithoutCancel(r.Context())
	report, err := h.runner.Run(ctx, ecrop.RunRequest{
		Credentials: ecrop.Credentials{
			Username:    form.Username,
			Password:    form.Password,
			VillageCode: form.VillageCode,
		},
		Dataset:     dataset,
		DatasetFile: filepath.Base(path),
	})
	if errors.Is(err, ecrop.ErrRunInProgress) {
		h.fail(w, r, http.StatusConflict, err.Error())
		return
	}
	if err != nil {
		h.fail(w, r, http.StatusInternalServerError, err.Error())
		return
	}

	if wantsJSON(r) {
		WriteJSON(w, http.StatusOK, report)
		return
	}
	h.pages.Render(w, http.StatusOK, "result.html", resultPage{
		Title:  "Owner Update run " + report.Status,
		Report: report,
		Lines:  report.Lines(),
	})
}

// saveUpload stores the dataset under the uploads directory using its base name
func (h *RunHandler) saveUpload(r *http.Request) (string, error) {
	file, header, err := r.FormFile(fieldDatasetFile)
	if err != nil {
		return "", fmt.Errorf("dataset file is required")
	}
	defer file.Close()

	name := filepath.Base(filepath.Clean("/" + header.Filename))
	if name == "" || name == "/" || name == "." || name == string(filepath.Separator) {
		return "", fmt.Errorf("dataset file name is invalid")
	}

	if err := os.MkdirAll(h.uploads.Dir, 0755); err != nil {
		return "", fmt.Errorf("failed to create uploads directory: %w", err)
	}

	path := filepath.Join(h.uploads.Dir, name)
	dst, err := os.Create(path)
	if err != nil {
		return "", fmt.Errorf("failed to save upload: %w", err)
	}
	defer dst.Close()

	if _, err := io.Copy(dst, file); err != nil {
		return "", fmt.Errorf("failed to save upload: %w", err)
	}

	h.logger.Info().Str("file", name).Int64("size", header.Size).Msg("Dataset uploaded")
	return path, nil
}

func (h *RunHandler) fail(w http.ResponseWriter, r *http.Request, status int, message string) {
	h.logger.Warn().Int("status", status).Str("error", message).Msg("Run request rejected")
	if wantsJSON(r) {
		WriteError(w, status, message)
		return
	}
	h.pages.Render(w, status, "result.html", resultPage{
		Title: "Run not started",
		Error: message,
	})
}

// formError lists the missing or invalid form fields
func formError(err error) string {
	var invalid validator.ValidationErrors
	if !errors.As(err, &invalid) {
		return err.Error()
	}
	names := map[string]string{
		"Username":    fieldUsername,
		"Password":    fieldPassword,
		"VillageCode": fieldVillageCode,
		"LicenseKey":  fieldLicenseKey,
	}
	fields := make([]string, 0, len(invalid))
	for _, fe := range invalid {
		fields = append(fields, names[fe.Field()])
	}
	return "Missing or invalid fields: " + strings.Join(fields, ", ")
}
