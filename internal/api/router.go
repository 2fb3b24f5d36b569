package api

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/adverant/nexus/doctranslate-worker/internal/logging"
	"github.com/adverant/nexus/doctranslate-worker/internal/storage"
)

// JobReader looks up translation jobs.
type JobReader interface {
	GetJobByID(ctx context.Context, jobID string) (*storage.Job, error)
	Ping(ctx context.Context) error
}

// StatsSource reports queue statistics.
type StatsSource interface {
	GetStats(ctx context.Context) (map[string]int64, error)
}

// Handler serves the worker's HTTP surface
type Handler struct {
	jobs    JobReader
	queue   StatsSource
	version string
	started time.Time
	logger  *logging.Logger
}

// NewHandler creates a handler. queue may be nil.
func NewHandler(jobs JobReader, queue StatsSource, version string) *Handler {
	return &Handler{
		jobs:    jobs,
		queue:   queue,
		version: version,
		started: time.Now(),
		logger:  logging.NewLogger("API"),
	}
}

// NewRouter configures the HTTP routes
func (h *Handler) NewRouter() *mux.Router {
	router := mux.NewRouter()

	router.HandleFunc("/health", h.Health).Methods("GET")
	router.Handle("/metrics", promhttp.Handler()).Methods("GET")
	router.HandleFunc("/api/jobs/{id}", h.GetJob).Methods("GET")
	router.HandleFunc("/api/queue/stats", h.QueueStats).Methods("GET")

	return router
}

// HealthResponse represents the health check response structure
type HealthResponse struct {
	Status    string `json:"status"`
	Version   string `json:"version"`
	Timestamp string `json:"timestamp"`
	Uptime    string `json:"uptime"`
	Database  string `json:"database"`
	Error     string `json:"error,omitempty"`
}

// Health reports whether the job database is reachable.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()

	resp := HealthResponse{
		Status:    "healthy",
		Version:   h.version,
		Timestamp: time.Now().Format(time.RFC3339),
		Uptime:    time.Since(h.started).Round(time.Second).String(),
		Database:  "ok",
	}
	status := http.StatusOK
	if err := h.jobs.Ping(ctx); err != nil {
		resp.Status = "degraded"
		resp.Database = "unavailable"
		resp.Error = err.Error()
		status = http.StatusServiceUnavailable
	}
	h.sendJSON(w, status, resp)
}

// GetJob returns one job's status and outputs.
func (h *Handler) GetJob(w http.ResponseWriter, r *http.Request) {
	jobID := mux.Vars(r)["id"]

	job, err := h.jobs.GetJobByID(r.Context(), jobID)
	if err != nil {
		if stderrors.Is(err, storage.ErrJobNotFound) {
			h.sendError(w, http.StatusNotFound, "job not found")
			return
		}
		h.logger.Error("Failed to load job", "jobId", jobID, "error", err)
		h.sendError(w, http.StatusInternalServerError, "failed to load job")
		return
	}
	h.sendJSON(w, http.StatusOK, job)
}

// QueueStats returns waiting/processing/completed/failed counts.
func (h *Handler) QueueStats(w http.ResponseWriter, r *http.Request) {
	if h.queue == nil {
		h.sendError(w, http.StatusNotImplemented, "queue statistics not available for this backend")
		return
	}
	stats, err := h.queue.GetStats(r.Context())
	if err != nil {
		h.sendError(w, http.StatusServiceUnavailable, err.Error())
		return
	}
	h.sendJSON(w, http.StatusOK, stats)
}

func (h *Handler) sendJSON(w http.ResponseWriter, statusCode int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		h.logger.Warn("Failed to write response", "error", err)
	}
}

func (h *Handler) sendError(w http.ResponseWriter, statusCode int, message string) {
	h.sendJSON(w, statusCode, map[string]string{
		"error": message,
	})
}
