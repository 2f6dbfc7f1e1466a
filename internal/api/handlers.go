// Package api provides the fleetmon HTTP surface: JSON queries, report
// downloads, job triggers, the websocket feed and Prometheus metrics.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"path/filepath"
	"strconv"
	"time"

	"github.com/darshan-rambhia/fleetmon/internal/cache"
	"github.com/darshan-rambhia/fleetmon/internal/jobs"
	"github.com/darshan-rambhia/fleetmon/internal/model"
	"github.com/darshan-rambhia/fleetmon/internal/report"
	"github.com/darshan-rambhia/fleetmon/internal/store"
	httpSwagger "github.com/swaggo/http-swagger"

	_ "github.com/darshan-rambhia/fleetmon/docs/swagger"
)

const (
	defaultHistoryLimit = 100
	maxHistoryLimit     = 1000
)

// Enqueuer accepts background jobs.
type Enqueuer interface {
	Enqueue(ctx context.Context, j jobs.Job) error
}

// ReportRequester creates on-demand reports.
type ReportRequester interface {
	Request(ctx context.Context, serverID int64, start, end time.Time) (model.Report, error)
}

// Deps are the collaborators the HTTP handlers read from and write to.
type Deps struct {
	Store      *store.Store
	Cache      *cache.Cache
	Hub        http.Handler
	Metrics    http.Handler
	Queue      Enqueuer
	Reports    ReportRequester
	ReportsDir string
}

// Server is the HTTP server for fleetmon.
type Server struct {
	deps   Deps
	mux    *http.ServeMux
	server *http.Server
}

// NewServer creates a new HTTP server.
func NewServer(addr string, deps Deps) *Server {
	srv := &Server{
		deps: deps,
		mux:  http.NewServeMux(),
	}

	srv.registerRoutes()

	srv.server = &http.Server{
		Addr:         addr,
		Handler:      SecurityHeadersMiddleware(RecoveryMiddleware(LoggingMiddleware(srv.mux))),
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	return srv
}

// Run starts the HTTP server. It blocks until the context is cancelled.
func (s *Server) Run(ctx context.Context) error {
	slog.Info("HTTP server starting", "addr", s.server.Addr)

	errCh := make(chan error, 1)
	go func() {
		if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case <-ctx.Done():
		slog.Info("HTTP server shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return s.server.Shutdown(shutdownCtx)
	case err := <-errCh:
		return err
	}
}

func (s *Server) registerRoutes() {
	s.mux.HandleFunc("GET /healthz", s.handleHealthz)

	if s.deps.Hub != nil {
		s.mux.Handle("GET /ws", s.deps.Hub)
	}
	if s.deps.Metrics != nil {
		s.mux.Handle("GET /metrics", s.deps.Metrics)
	}

	s.mux.HandleFunc("GET /api/servers", s.handleServers)
	s.mux.HandleFunc("GET /api/metrics/latest", s.handleLatestMetrics)
	s.mux.HandleFunc("GET /api/metrics/history/{id}", s.handleMetricHistory)
	s.mux.HandleFunc("GET /api/alerts", s.handleAlerts)
	s.mux.HandleFunc("GET /api/reports", s.handleReports)
	s.mux.HandleFunc("POST /api/reports", s.handleRequestReport)
	s.mux.HandleFunc("GET /api/reports/{id}/download", s.handleReportDownload)
	s.mux.HandleFunc("POST /api/jobs/{kind}", s.handleEnqueueJob)

	// Swagger UI
	s.mux.Handle("GET /swagger/", httpSwagger.Handler(
		httpSwagger.URL("/swagger/doc.json"),
	))
}

// writeJSON marshals v to JSON into a buffer first, then writes it to the
// response. This ensures marshalling errors can be returned as a proper 500.
func writeJSON(w http.ResponseWriter, r *http.Request, status int, v any) {
	data, err := json.Marshal(v)
	if err != nil {
		slog.Error("encoding JSON response", "path", r.URL.Path, "error", err)
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if _, err := w.Write(data); err != nil {
		slog.Debug("writing JSON response", "path", r.URL.Path, "error", err)
	}
}

// errorResponse is the body of every 4xx and 5xx JSON reply.
type errorResponse struct {
	Error string `json:"error"`
}

func writeError(w http.ResponseWriter, r *http.Request, status int, msg string) {
	writeJSON(w, r, status, errorResponse{Error: msg})
}

func internalError(w http.ResponseWriter, r *http.Request, what string, err error) {
	slog.Error(what, "path", r.URL.Path, "error", err)
	writeError(w, r, http.StatusInternalServerError, "Internal Server Error")
}

// pathID parses a positive integer path parameter.
func pathID(r *http.Request, name string) (int64, error) {
	id, err := strconv.ParseInt(r.PathValue(name), 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("invalid %s %q", name, r.PathValue(name))
	}
	return id, nil
}

// orEmpty keeps JSON list responses as [] rather than null.
func orEmpty[T any](v []T) []T {
	if v == nil {
		return []T{}
	}
	return v
}

// @Summary Health check
// @Description Returns service health and database reachability
// @Produce json
// @Success 200 {object} map[string]interface{} "Health status"
// @Failure 503 {object} map[string]interface{} "Database unreachable"
// @Router /healthz [get]
func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	status, code := "ok", http.StatusOK
	if err := s.deps.Store.Ping(r.Context()); err != nil {
		slog.Warn("health check: database unreachable", "error", err)
		status, code = "db_unavailable", http.StatusServiceUnavailable
	}
	writeJSON(w, r, code, map[string]any{
		"status":    status,
		"timestamp": time.Now().Unix(),
	})
}

// @Summary List servers
// @Description Returns every tracked server with its last known status
// @Produce json
// @Success 200 {array} model.Server
// @Router /api/servers [get]
func (s *Server) handleServers(w http.ResponseWriter, r *http.Request) {
	servers, err := s.deps.Store.ListServers(r.Context())
	if err != nil {
		internalError(w, r, "listing servers", err)
		return
	}
	writeJSON(w, r, http.StatusOK, orEmpty(servers))
}

// @Summary Latest metrics
// @Description Returns the newest metric of every server. Served from cache between collection cycles.
// @Produce json
// @Success 200 {array} model.Metric
// @Router /api/metrics/latest [get]
func (s *Server) handleLatestMetrics(w http.ResponseWriter, r *http.Request) {
	latest, err := cache.GetOrLoad(r.Context(), s.deps.Cache, cache.TagLatestMetrics, "all", s.deps.Store.LatestMetrics)
	if err != nil {
		internalError(w, r, "loading latest metrics", err)
		return
	}
	writeJSON(w, r, http.StatusOK, orEmpty(latest))
}

// @Summary Metric history
// @Description Returns a server's most recent metrics, newest first
// @Produce json
// @Param id path int true "Server ID"
// @Param limit query int false "Number of samples (1-1000)" default(100)
// @Success 200 {array} model.Metric
// @Failure 400 {object} errorResponse
// @Router /api/metrics/history/{id} [get]
func (s *Server) handleMetricHistory(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	limit := defaultHistoryLimit
	if l := r.URL.Query().Get("limit"); l != "" {
		if v, err := strconv.Atoi(l); err == nil && v > 0 && v <= maxHistoryLimit {
			limit = v
		}
	}

	history, err := s.deps.Store.MetricHistory(r.Context(), id, limit)
	if err != nil {
		internalError(w, r, "querying metric history", err)
		return
	}
	writeJSON(w, r, http.StatusOK, orEmpty(history))
}

// @Summary List alerts
// @Description Returns alerts newest first
// @Produce json
// @Param active query bool false "Only unresolved alerts"
// @Success 200 {array} model.Alert
// @Failure 400 {object} errorResponse
// @Router /api/alerts [get]
func (s *Server) handleAlerts(w http.ResponseWriter, r *http.Request) {
	onlyActive := false
	if v := r.URL.Query().Get("active"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			writeError(w, r, http.StatusBadRequest, fmt.Sprintf("invalid active %q", v))
			return
		}
		onlyActive = b
	}

	alerts, err := s.deps.Store.ListAlerts(r.Context(), onlyActive)
	if err != nil {
		internalError(w, r, "listing alerts", err)
		return
	}
	writeJSON(w, r, http.StatusOK, orEmpty(alerts))
}

// @Summary List reports
// @Description Returns reports newest first, optionally filtered by server and status
// @Produce json
// @Param server query int false "Server ID"
// @Param status query string false "Pending, Processing, Completed or Failed"
// @Success 200 {array} model.Report
// @Failure 400 {object} errorResponse
// @Router /api/reports [get]
func (s *Server) handleReports(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	var serverID int64
	if v := q.Get("server"); v != "" {
		id, err := strconv.ParseInt(v, 10, 64)
		if err != nil || id <= 0 {
			writeError(w, r, http.StatusBadRequest, fmt.Sprintf("invalid server %q", v))
			return
		}
		serverID = id
	}

	var status *model.ReportStatus
	if v := q.Get("status"); v != "" {
		st, err := model.ParseReportStatus(v)
		if err != nil {
			writeError(w, r, http.StatusBadRequest, err.Error())
			return
		}
		status = &st
	}

	reports, err := s.deps.Store.ListReports(r.Context(), serverID, status)
	if err != nil {
		internalError(w, r, "listing reports", err)
		return
	}
	writeJSON(w, r, http.StatusOK, orEmpty(reports))
}

// reportRequest is the body of POST /api/reports.
type reportRequest struct {
	ServerID int64     `json:"server_id"`
	Start    time.Time `json:"start"`
	End      time.Time `json:"end"`
}

// @Summary Request a report
// @Description Creates an on-demand performance report and queues its generation
// @Accept json
// @Produce json
// @Param request body reportRequest true "Server and window"
// @Success 202 {object} model.Report
// @Failure 400 {object} errorResponse
// @Failure 404 {object} errorResponse
// @Router /api/reports [post]
func (s *Server) handleRequestReport(w http.ResponseWriter, r *http.Request) {
	var req reportRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<16)).Decode(&req); err != nil {
		writeError(w, r, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.ServerID <= 0 {
		writeError(w, r, http.StatusBadRequest, "server_id is required")
		return
	}

	rep, err := s.deps.Reports.Request(r.Context(), req.ServerID, req.Start, req.End)
	switch {
	case errors.Is(err, report.ErrInvalidWindow):
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	case errors.Is(err, store.ErrNotFound):
		writeError(w, r, http.StatusNotFound, fmt.Sprintf("server %d not found", req.ServerID))
		return
	case err != nil:
		internalError(w, r, "requesting report", err)
		return
	}
	writeJSON(w, r, http.StatusAccepted, rep)
}

// @Summary Download a report
// @Description Returns the JSON artifact of a completed report
// @Produce json
// @Param id path int true "Report ID"
// @Success 200 {file} file "Report artifact"
// @Failure 404 {object} errorResponse
// @Failure 409 {object} errorResponse "Report not completed"
// @Router /api/reports/{id}/download [get]
func (s *Server) handleReportDownload(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}

	rep, err := s.deps.Store.GetReport(r.Context(), id)
	if errors.Is(err, store.ErrNotFound) {
		writeError(w, r, http.StatusNotFound, fmt.Sprintf("report %d not found", id))
		return
	}
	if err != nil {
		internalError(w, r, "loading report", err)
		return
	}
	if rep.Status != model.ReportCompleted || rep.FilePath == "" {
		writeError(w, r, http.StatusConflict, fmt.Sprintf("report %d is %s", id, rep.Status))
		return
	}

	// Only the base name is trusted; artifacts always live in the reports dir.
	name := filepath.Base(rep.FilePath)
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", name))
	http.ServeFile(w, r, filepath.Join(s.deps.ReportsDir, name))
}

// @Summary Enqueue a job
// @Description Queues a background job. Kinds: collect, schedule-reports.
// @Produce json
// @Param kind path string true "Job kind"
// @Success 202 {object} map[string]string
// @Failure 400 {object} errorResponse
// @Router /api/jobs/{kind} [post]
func (s *Server) handleEnqueueJob(w http.ResponseWriter, r *http.Request) {
	job, err := jobs.ParseKind(r.PathValue("kind"))
	if err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	if err := s.deps.Queue.Enqueue(r.Context(), job); err != nil {
		if errors.Is(err, jobs.ErrQueueClosed) {
			writeError(w, r, http.StatusServiceUnavailable, err.Error())
			return
		}
		internalError(w, r, "enqueueing job", err)
		return
	}
	writeJSON(w, r, http.StatusAccepted, map[string]string{"kind": string(job.Kind())})
}
