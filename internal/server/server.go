// Package server exposes the synchronous HTTP surface: a "process now"
// endpoint that calls straight into the pipeline, plus health, engine
// discovery, and a results export. No queue is involved.
package server

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/tendant/simple-ocr/internal/common"
	"github.com/tendant/simple-ocr/internal/engine"
	"github.com/tendant/simple-ocr/internal/export"
	"github.com/tendant/simple-ocr/internal/job"
)

// Processor runs one job to a terminal result.
type Processor interface {
	Process(ctx context.Context, j job.Job) job.Result
}

// Recorder persists terminal results. Optional.
type Recorder interface {
	Record(ctx context.Context, res job.Result) error
}

type Server struct {
	cfg      *common.Config
	proc     Processor
	recorder Recorder
	exporter *export.Service
	logger   *slog.Logger
}

type Option func(*Server)

// WithRecorder enables result persistence for synchronous jobs.
func WithRecorder(r Recorder) Option {
	return func(s *Server) { s.recorder = r }
}

// WithExporter enables the XLSX results export endpoint.
func WithExporter(e *export.Service) Option {
	return func(s *Server) { s.exporter = e }
}

func New(cfg *common.Config, proc Processor, logger *slog.Logger, opts ...Option) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Server{cfg: cfg, proc: proc, logger: logger}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Routes builds the chi router for the OCR API.
func (s *Server) Routes() http.Handler {
	r := chi.NewRouter()
	r.Use(
		middleware.RequestID,
		middleware.RealIP,
		middleware.Recoverer,
	)

	r.Route("/api/v1/ocr", func(r chi.Router) {
		r.Get("/health", s.handleHealth)
		r.Get("/engines", s.handleEngines)
		r.Post("/process", s.handleProcess)
		r.Get("/jobs/export", s.handleExport)
	})
	return r
}

type processRequest struct {
	JobID     string            `json:"job_id"`
	ContentID string            `json:"content_id"`
	ObjectID  string            `json:"object_id"`
	OwnerID   string            `json:"owner_id,omitempty"`
	TenantID  string            `json:"tenant_id,omitempty"`
	SourceURL string            `json:"source_url"`
	MIMEType  string            `json:"mime_type"`
	Metadata  map[string]string `json:"metadata,omitempty"`
}

// handleProcess runs a job synchronously. Job-processing failures come back
// as a failed result with status 200; only malformed requests are errors.
func (s *Server) handleProcess(w http.ResponseWriter, r *http.Request) {
	var req processRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		common.BadRequestError(w, "invalid request body: %v", err)
		return
	}
	payload, err := json.Marshal(req)
	if err != nil {
		common.InternalError(w, "encode request: %v", err)
		return
	}
	j, err := job.Decode(payload)
	if err != nil {
		common.BadRequestError(w, "invalid job: %v", err)
		return
	}
	if j.CreatedAt.IsZero() {
		j.CreatedAt = time.Now().UTC()
	}

	s.logger.Info("server.process.start", "job_id", j.JobID, "mime_type", j.MIMEType)

	result := s.proc.Process(r.Context(), j)
	if s.recorder != nil {
		if err := s.recorder.Record(r.Context(), result); err != nil {
			s.logger.Error("server.result.record_failed", "job_id", j.JobID, "error", err)
		}
	}

	s.logger.Info("server.process.done",
		"job_id", j.JobID,
		"status", result.Status,
		"processing_time_ms", result.ProcessingTimeMS,
	)
	common.WriteJSON(w, http.StatusOK, result)
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	common.WriteJSON(w, http.StatusOK, map[string]string{
		"status":     "healthy",
		"service":    s.cfg.App.Name,
		"version":    s.cfg.App.Version,
		"ocr_engine": s.cfg.Engine.Name,
	})
}

func (s *Server) handleEngines(w http.ResponseWriter, _ *http.Request) {
	common.WriteJSON(w, http.StatusOK, map[string]any{
		"available_engines": engine.List(),
		"current_engine":    s.cfg.Engine.Name,
		"engine_config": map[string]any{
			"model_name": s.cfg.Engine.ModelName,
			"base_url":   s.cfg.Engine.BaseURL,
			"max_tokens": s.cfg.Engine.MaxTokens,
		},
	})
}

// handleExport streams an XLSX report of recorded job results. Query params
// from/to are dates (2006-01-02).
func (s *Server) handleExport(w http.ResponseWriter, r *http.Request) {
	if s.exporter == nil {
		common.WriteError(w, http.StatusServiceUnavailable, "job-result store not configured")
		return
	}

	from, err := parseDateParam(r, "from")
	if err != nil {
		common.BadRequestError(w, "%v", err)
		return
	}
	to, err := parseDateParam(r, "to")
	if err != nil {
		common.BadRequestError(w, "%v", err)
		return
	}

	data, err := s.exporter.ExportResultsXLSX(r.Context(), from, to)
	if err != nil {
		s.logger.Error("server.export.failed", "error", err)
		common.InternalError(w, "export failed: %v", err)
		return
	}

	w.Header().Set("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
	w.Header().Set("Content-Disposition", `attachment; filename="ocr-jobs.xlsx"`)
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(data)
}

func parseDateParam(r *http.Request, name string) (*time.Time, error) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return nil, nil
	}
	t, err := time.Parse("2006-01-02", raw)
	if err != nil {
		return nil, fmt.Errorf("invalid %s date %q, expected YYYY-MM-DD", name, raw)
	}
	return &t, nil
}
