// Package api exposes the HTTP interface for the extraction service.
package api

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/jmarchand/boamp-extractor/internal/archive"
	"github.com/jmarchand/boamp-extractor/internal/config"
	"github.com/jmarchand/boamp-extractor/internal/dispatcher"
	"github.com/jmarchand/boamp-extractor/internal/extract"
	"github.com/jmarchand/boamp-extractor/internal/metrics"
	"github.com/jmarchand/boamp-extractor/internal/xlsx"
)

const (
	fullSheetName     = "BOAMP_Data"
	filteredSheetName = "BOAMP_Filtered"

	downloadTimestampLayout = "20060102_150405"
)

// Server wires HTTP handlers to the dispatcher, job store, and encoders.
type Server struct {
	router     chi.Router
	jobStore   extract.JobStore
	dispatcher *dispatcher.Dispatcher
	encoder    extract.Encoder
	archiver   archive.Provider
	idGen      extract.IDGenerator
	clock      extract.Clock
	cfg        config.Config
	logger     *zap.Logger
}

// NewServer constructs a Server with middleware and routes.
func NewServer(
	jobStore extract.JobStore,
	dispatcher *dispatcher.Dispatcher,
	encoder extract.Encoder,
	archiver archive.Provider,
	idGen extract.IDGenerator,
	clock extract.Clock,
	cfg config.Config,
	logger *zap.Logger,
) *Server {
	s := &Server{
		jobStore:   jobStore,
		dispatcher: dispatcher,
		encoder:    encoder,
		archiver:   archiver,
		idGen:      idGen,
		clock:      clock,
		cfg:        cfg,
		logger:     logger,
	}
	r := chi.NewRouter()
	r.Use(requestIDMiddleware)
	r.Use(loggingMiddleware(logger))
	r.Use(recoverMiddleware(logger))
	r.Use(timeoutMiddleware(60 * time.Second))

	r.Get("/healthz", s.healthz)
	r.Get("/readyz", s.readyz)
	r.Method(http.MethodGet, "/metrics", metrics.Handler())

	r.Post("/extract", s.submitExtraction)
	r.Get("/job/{job_id}", s.getJobStatus)
	r.Route("/download/{job_id}", func(r chi.Router) {
		r.Get("/full", s.downloadFull)
		r.Get("/filtered", s.downloadFiltered)
	})

	s.router = r
	return s
}

// Handler returns the Router for use with http.Server.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) healthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(s.logger, w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) readyz(w http.ResponseWriter, _ *http.Request) {
	// In-memory dependencies are always ready; the catalog is checked lazily.
	writeJSON(s.logger, w, http.StatusOK, map[string]string{"status": "ready"})
}

type extractionRequest struct {
	TargetDate  string   `json:"target_date"`
	Departments []string `json:"departments"`
	MaxRecords  *int     `json:"max_records"`
}

func (s *Server) submitExtraction(w http.ResponseWriter, r *http.Request) {
	var req extractionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(s.logger, w, http.StatusBadRequest, "invalid JSON")
		return
	}
	params, err := s.toExtractionParams(req)
	if err != nil {
		writeError(s.logger, w, http.StatusBadRequest, err.Error())
		return
	}
	jobID, err := s.enqueueJob(r.Context(), params)
	if err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, context.DeadlineExceeded) {
			status = http.StatusRequestTimeout
		}
		writeError(s.logger, w, status, err.Error())
		return
	}
	writeJSON(s.logger, w, http.StatusAccepted, map[string]string{
		"job_id":  jobID,
		"status":  string(extract.JobStatusStarted),
		"message": "Extraction started in background",
	})
}

func (s *Server) getJobStatus(w http.ResponseWriter, r *http.Request) {
	jobID := chi.URLParam(r, "job_id")
	job, err := s.jobStore.GetJob(r.Context(), jobID)
	if err != nil {
		writeError(s.logger, w, http.StatusNotFound, "job not found")
		return
	}
	writeJSON(s.logger, w, http.StatusOK, map[string]any{
		"job_id":                  job.ID,
		"status":                  string(job.Status),
		"message":                 job.Message,
		"total_records":           job.Results.TotalRecords,
		"filtered_records":        job.Results.FilteredRecords,
		"department_distribution": job.Results.DepartmentDistribution,
	})
}

func (s *Server) downloadFull(w http.ResponseWriter, r *http.Request) {
	s.download(w, r, "Full", fullSheetName, func(res extract.JobResults) *extract.Dataset {
		return res.FullDataset
	})
}

func (s *Server) downloadFiltered(w http.ResponseWriter, r *http.Request) {
	s.download(w, r, "Filtered", filteredSheetName, func(res extract.JobResults) *extract.Dataset {
		return res.FilteredDataset
	})
}

func (s *Server) download(
	w http.ResponseWriter,
	r *http.Request,
	variant string,
	sheetName string,
	pick func(extract.JobResults) *extract.Dataset,
) {
	jobID := chi.URLParam(r, "job_id")
	job, err := s.jobStore.GetJob(r.Context(), jobID)
	if err != nil {
		writeError(s.logger, w, http.StatusNotFound, "job not found")
		return
	}
	ds := pick(job.Results)
	if job.Status != extract.JobStatusCompleted || ds == nil {
		writeError(s.logger, w, http.StatusNotFound, "data not available")
		return
	}
	payload, err := s.encoder.Encode(*ds, sheetName)
	if err != nil {
		s.logger.Error("workbook encode failed",
			zap.String("job_id", jobID),
			zap.String("variant", variant),
			zap.Error(err),
		)
		writeError(s.logger, w, http.StatusInternalServerError, "failed to encode workbook")
		return
	}
	filename := fmt.Sprintf("BOAMP_%s_Results_%s_%s.xlsx",
		variant,
		job.Params.TargetDate,
		s.clock.Now().Format(downloadTimestampLayout),
	)
	if err := s.archiver.Save(r.Context(), filename, payload); err != nil {
		// Archival is best effort; the download still proceeds.
		s.logger.Warn("workbook archive failed",
			zap.String("job_id", jobID),
			zap.String("object", filename),
			zap.Error(err),
		)
	}
	w.Header().Set("Content-Type", xlsx.ContentType)
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", filename))
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write(payload); err != nil {
		s.logger.Error("workbook write failed", zap.String("job_id", jobID), zap.Error(err))
	}
}

func (s *Server) enqueueJob(ctx context.Context, params extract.ExtractionParams) (string, error) {
	jobID, err := s.idGen.NewID()
	if err != nil {
		return "", fmt.Errorf("generate job id: %w", err)
	}
	now := s.clock.Now()
	job := extract.Job{
		ID:        jobID,
		Status:    extract.JobStatusStarted,
		Message:   "Job created, starting processing...",
		Params:    params,
		Submitted: now,
	}
	if err := s.jobStore.CreateJob(ctx, job); err != nil {
		return "", fmt.Errorf("create job: %w", err)
	}
	queueCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	item := extract.QueueItem{
		JobID:     jobID,
		Params:    params,
		Submitted: now.Unix(),
	}
	if err := s.dispatcher.Enqueue(queueCtx, item); err != nil {
		return "", fmt.Errorf("enqueue job: %w", err)
	}
	return jobID, nil
}

func (s *Server) toExtractionParams(req extractionRequest) (extract.ExtractionParams, error) {
	if req.TargetDate == "" {
		return extract.ExtractionParams{}, errors.New("target_date required")
	}
	if _, err := time.Parse("2006-01-02", req.TargetDate); err != nil {
		return extract.ExtractionParams{}, errors.New("target_date must be formatted YYYY-MM-DD")
	}
	if len(req.Departments) == 0 {
		return extract.ExtractionParams{}, errors.New("departments required")
	}
	maxRecords := s.cfg.Pipeline.MaxRecords
	if req.MaxRecords != nil {
		if *req.MaxRecords <= 0 {
			return extract.ExtractionParams{}, errors.New("max_records must be > 0")
		}
		maxRecords = *req.MaxRecords
	}
	return extract.ExtractionParams{
		TargetDate:  req.TargetDate,
		MaxRecords:  maxRecords,
		Departments: req.Departments,
	}, nil
}

func requestIDMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		reqID := uuid.NewString()
		ctx := context.WithValue(r.Context(), requestIDKey{}, reqID)
		w.Header().Set("X-Request-ID", reqID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func loggingMiddleware(logger *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := &responseWriter{ResponseWriter: w, status: http.StatusOK}
			next.ServeHTTP(ww, r)
			elapsed := time.Since(start)
			logger.Info("request completed",
				zap.String("method", r.Method),
				zap.String("path", r.URL.Path),
				zap.Int("status", ww.status),
				zap.Int64("duration_ms", elapsed.Milliseconds()),
			)
			metrics.ObserveHTTPRequest(r.Method, r.URL.Path, ww.status, elapsed)
		})
	}
}

func recoverMiddleware(logger *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				if rec := recover(); rec != nil {
					logger.Error("panic recovered", zap.Any("error", rec))
					writeError(logger, w, http.StatusInternalServerError, "internal server error")
				}
			}()
			next.ServeHTTP(w, r)
		})
	}
}

func timeoutMiddleware(d time.Duration) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.TimeoutHandler(next, d, "request timed out")
	}
}

type responseWriter struct {
	http.ResponseWriter
	status int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.status = code
	rw.ResponseWriter.WriteHeader(code)
}

func (rw *responseWriter) Write(b []byte) (int, error) {
	n, err := rw.ResponseWriter.Write(b)
	if err != nil {
		return n, fmt.Errorf("write response: %w", err)
	}
	return n, nil
}

func (rw *responseWriter) Flush() {
	if f, ok := rw.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

func (rw *responseWriter) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	if h, ok := rw.ResponseWriter.(http.Hijacker); ok {
		conn, buf, err := h.Hijack()
		if err != nil {
			return nil, nil, fmt.Errorf("hijack connection: %w", err)
		}
		return conn, buf, nil
	}
	return nil, nil, errors.New("hijacker not supported")
}

type requestIDKey struct{}

func writeJSON(logger *zap.Logger, w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		logger.Error("write JSON failed", zap.Error(err))
	}
}

func writeError(logger *zap.Logger, w http.ResponseWriter, status int, msg string) {
	writeJSON(logger, w, status, map[string]string{"error": msg})
}
