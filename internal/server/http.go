package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/google/uuid"

	"github.com/joseph-ayodele/collateral-classifier/internal/classifier"
	"github.com/joseph-ayodele/collateral-classifier/internal/common"
	"github.com/joseph-ayodele/collateral-classifier/internal/entity"
	"github.com/joseph-ayodele/collateral-classifier/internal/export"
	"github.com/joseph-ayodele/collateral-classifier/internal/registry"
)

// DocumentClassifier is the pipeline entry point.
type DocumentClassifier interface {
	ClassifyDocument(ctx context.Context, filename string, pdf []byte, opts ...classifier.RequestOption) (*classifier.DocumentResult, error)
}

type ModelStatus interface {
	Status() registry.Status
}

type JobReader interface {
	Get(ctx context.Context, id uuid.UUID) (*entity.ClassificationJob, error)
	ListRecent(ctx context.Context, limit int) ([]*entity.ClassificationJob, error)
}

type HTTPServer struct {
	classifier DocumentClassifier
	models     ModelStatus
	jobs       JobReader
	exporter   *export.Service
	maxUpload  int64
	logger     *slog.Logger
}

// NewHTTPServer wires the HTTP API. jobs may be nil when the audit store is disabled.
func NewHTTPServer(c DocumentClassifier, models ModelStatus, jobs JobReader, exporter *export.Service, maxUploadBytes int64, logger *slog.Logger) *HTTPServer {
	if logger == nil {
		logger = slog.Default()
	}
	if exporter == nil {
		exporter = export.NewService(logger)
	}
	if maxUploadBytes <= 0 {
		maxUploadBytes = 50 << 20
	}
	return &HTTPServer{classifier: c, models: models, jobs: jobs, exporter: exporter, maxUpload: maxUploadBytes, logger: logger}
}

func (s *HTTPServer) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /{$}", s.handleHealth)
	mux.HandleFunc("GET /model-info", s.handleModelInfo)
	mux.HandleFunc("POST /classify", s.handleClassify)
	mux.HandleFunc("POST /classify/export", s.handleClassifyExport)
	mux.HandleFunc("GET /jobs", s.handleListJobs)
	mux.HandleFunc("GET /jobs/{id}", s.handleGetJob)
	return withRequestLogging(mux, s.logger)
}

type errorBody struct {
	Error   string `json:"error"`
	Details string `json:"details,omitempty"`
}

type healthBody struct {
	Status      string `json:"status"`
	Message     string `json:"message"`
	ModelLoaded bool   `json:"model_loaded"`
}

type modelInfoBody struct {
	ModelLoaded          bool     `json:"model_loaded"`
	ModelType            string   `json:"model_type"`
	Accuracy             float64  `json:"accuracy"`
	TrainingSamples      int      `json:"training_samples"`
	TestSamples          int      `json:"test_samples"`
	SupportedLabels      []string `json:"supported_labels"`
	MinAccuracyThreshold float64  `json:"min_accuracy_threshold"`
}

func (s *HTTPServer) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, healthBody{
		Status:      "ok",
		Message:     "collateral classifier is running",
		ModelLoaded: s.models.Status().Loaded,
	})
}

func (s *HTTPServer) handleModelInfo(w http.ResponseWriter, _ *http.Request) {
	st := s.models.Status()
	if !st.Loaded || st.Metadata == nil {
		writeJSON(w, http.StatusServiceUnavailable, struct {
			ModelLoaded bool `json:"model_loaded"`
			errorBody
		}{false, errorBody{Error: common.ErrorMessage(common.ErrModelUnavailable), Details: st.LoadError}})
		return
	}
	m := st.Metadata
	writeJSON(w, http.StatusOK, modelInfoBody{
		ModelLoaded:          true,
		ModelType:            m.ModelType,
		Accuracy:             m.Accuracy,
		TrainingSamples:      m.TrainingSamples,
		TestSamples:          m.TestSamples,
		SupportedLabels:      m.SupportedLabels,
		MinAccuracyThreshold: m.MinAccuracyThreshold,
	})
}

func (s *HTTPServer) handleClassify(w http.ResponseWriter, r *http.Request) {
	res, err := s.classifyUpload(w, r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (s *HTTPServer) handleClassifyExport(w http.ResponseWriter, r *http.Request) {
	res, err := s.classifyUpload(w, r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	data, err := s.exporter.PredictionsXLSX(res)
	if err != nil {
		s.writeError(w, r, fmt.Errorf("%w: %w", common.ErrInternal, err))
		return
	}
	base := strings.TrimSuffix(filepath.Base(res.Filename), filepath.Ext(res.Filename))
	w.Header().Set("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", base+"_predictions.xlsx"))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(data)
}

// classifyUpload validates the multipart upload and runs the pipeline.
func (s *HTTPServer) classifyUpload(w http.ResponseWriter, r *http.Request) (*classifier.DocumentResult, error) {
	r.Body = http.MaxBytesReader(w, r.Body, s.maxUpload+(1<<20))
	if err := r.ParseMultipartForm(32 << 20); err != nil {
		var tooBig *http.MaxBytesError
		if errors.As(err, &tooBig) {
			return nil, fmt.Errorf("%w: upload exceeds %d bytes", errUploadTooLarge, s.maxUpload)
		}
		return nil, fmt.Errorf("%w: %v", common.ErrInvalidInput, err)
	}
	defer func() {
		if r.MultipartForm != nil {
			_ = r.MultipartForm.RemoveAll()
		}
	}()

	file, header, err := r.FormFile("file")
	if err != nil {
		return nil, fmt.Errorf("%w: no file provided", common.ErrInvalidInput)
	}
	defer file.Close()

	if header.Size > s.maxUpload {
		return nil, fmt.Errorf("%w: upload exceeds %d bytes", errUploadTooLarge, s.maxUpload)
	}

	var opts []classifier.RequestOption
	v := common.NewValidator().
		Field("file", header.Filename, common.Required, common.Extension(".pdf"))
	if raw := r.URL.Query().Get("threshold"); raw != "" {
		t, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			v.Field("threshold", raw, common.InRange(0, 1))
		} else {
			v.Field("threshold", t, common.InRange(0, 1))
			opts = append(opts, classifier.Threshold(t))
		}
	}
	if err := common.ValidateAndReturnError(v); err != nil {
		return nil, err
	}

	pdf, err := io.ReadAll(file)
	if err != nil {
		return nil, fmt.Errorf("%w: read upload: %v", common.ErrInvalidInput, err)
	}
	return s.classifier.ClassifyDocument(r.Context(), filepath.Base(header.Filename), pdf, opts...)
}

func (s *HTTPServer) handleGetJob(w http.ResponseWriter, r *http.Request) {
	if s.jobs == nil {
		s.writeError(w, r, fmt.Errorf("audit store disabled: %w", common.ErrNotFound))
		return
	}
	raw := r.PathValue("id")
	if err := common.ValidateAndReturnError(common.NewValidator().Field("id", raw, common.UUID)); err != nil {
		s.writeError(w, r, err)
		return
	}
	job, err := s.jobs.Get(r.Context(), uuid.MustParse(raw))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, job)
}

func (s *HTTPServer) handleListJobs(w http.ResponseWriter, r *http.Request) {
	if s.jobs == nil {
		s.writeError(w, r, fmt.Errorf("audit store disabled: %w", common.ErrNotFound))
		return
	}
	limit := 20
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 || n > 500 {
			s.writeError(w, r, fmt.Errorf("%w: limit must be between 1 and 500", common.ErrInvalidInput))
			return
		}
		limit = n
	}
	jobs, err := s.jobs.ListRecent(r.Context(), limit)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if jobs == nil {
		jobs = []*entity.ClassificationJob{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"jobs": jobs})
}

var errUploadTooLarge = errors.New("upload too large")

func (s *HTTPServer) writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := common.HTTPStatus(err)
	msg := common.ErrorMessage(err)
	if errors.Is(err, errUploadTooLarge) {
		status = http.StatusRequestEntityTooLarge
		msg = "Upload too large"
	}
	if status >= http.StatusInternalServerError {
		s.logger.Error("request failed", "request_id", common.RequestIDFromContext(r.Context()), "status", status, "error", err)
	} else {
		s.logger.Warn("request rejected", "request_id", common.RequestIDFromContext(r.Context()), "status", status, "error", err)
	}
	writeJSON(w, status, errorBody{Error: msg, Details: err.Error()})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
