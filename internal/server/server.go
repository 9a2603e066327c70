package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"slices"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"docpipe/internal/logging"
	"docpipe/internal/pipeline"
)

const (
	maxRequestBody = 8 << 20
	maxPollWait    = 30 * time.Second
)

// Server runs pipeline jobs on behalf of HTTP clients.
type Server struct {
	rt     *pipeline.Runtime
	logger *slog.Logger
	mux    *http.ServeMux

	mu   sync.Mutex
	jobs map[string]*job
	wg   sync.WaitGroup

	// jobCtx is the parent of every job; canceling it stops in-flight runs.
	jobCtx    context.Context
	cancelAll context.CancelFunc
}

// New constructs a server over rt.
func New(rt *pipeline.Runtime) *Server {
	logger := rt.Logger
	if logger == nil {
		logger = logging.NewNop()
	}
	ctx, cancel := context.WithCancel(context.Background())
	s := &Server{
		rt:        rt,
		logger:    logging.NewComponentLogger(logger, "server"),
		mux:       http.NewServeMux(),
		jobs:      make(map[string]*job),
		jobCtx:    ctx,
		cancelAll: cancel,
	}
	s.mux.HandleFunc("GET /api/health", s.handleHealth)
	s.mux.HandleFunc("POST /api/jobs", s.handleCreateJob)
	s.mux.HandleFunc("GET /api/jobs", s.handleListJobs)
	s.mux.HandleFunc("GET /api/jobs/{id}", s.handleJob)
	s.mux.HandleFunc("GET /api/jobs/{id}/events", s.handleEvents)
	s.mux.HandleFunc("GET /api/runs", s.handleRuns)
	s.mux.Handle("GET /metrics", promhttp.Handler())
	return s
}

// Handler returns the HTTP handler.
func (s *Server) Handler() http.Handler {
	return s.mux
}

// Serve listens on bind until ctx ends, then shuts down and cancels any
// in-flight jobs.
func (s *Server) Serve(ctx context.Context, bind string) error {
	listener, err := net.Listen("tcp", bind)
	if err != nil {
		return fmt.Errorf("api listen: %w", err)
	}
	httpServer := &http.Server{
		Handler:           s.mux,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      maxPollWait + 15*time.Second,
		IdleTimeout:       60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- httpServer.Serve(listener)
	}()
	s.logger.Info("api server listening",
		logging.String(logging.FieldEventType, "server_start"),
		logging.String("address", listener.Addr().String()),
		logging.Int("workers", s.rt.Pool.Size()),
	)

	select {
	case err := <-errCh:
		s.Close()
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("api serve: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		s.logger.Warn("api shutdown incomplete", logging.Error(err))
	}
	s.Close()
	s.logger.Info("api server stopped", logging.String(logging.FieldEventType, "server_stop"))
	return nil
}

// Close cancels running jobs and waits for them to record their outcome.
func (s *Server) Close() {
	s.cancelAll()
	s.wg.Wait()
}

// Wait blocks until every started job has finished.
func (s *Server) Wait() {
	s.wg.Wait()
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	s.mu.Lock()
	jobs := len(s.jobs)
	s.mu.Unlock()
	s.writeJSON(w, http.StatusOK, map[string]any{"ok": true, "jobs": jobs, "workers": s.rt.Pool.Size()})
}

func (s *Server) handleCreateJob(w http.ResponseWriter, r *http.Request) {
	var req JobRequest
	decoder := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxRequestBody))
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, fmt.Sprintf("invalid request body: %v", err))
		return
	}
	id := uuid.NewString()
	input, status, err := s.resolveInput(id, req)
	if err != nil {
		s.writeError(w, status, err.Error())
		return
	}

	j := newJob(id, input, s.rt.Config.Server.EventBuffer)
	s.mu.Lock()
	s.jobs[id] = j
	s.mu.Unlock()

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		j.run(s.jobCtx, s.rt)
	}()

	s.logger.Info("job accepted",
		logging.String(logging.FieldEventType, "job_accepted"),
		logging.String("job_id", id),
		logging.String("input", input.Path),
	)
	s.writeJSON(w, http.StatusAccepted, JobResponse{
		ID:     id,
		Status: StatusRunning,
		Events: "/api/jobs/" + id + "/events",
	})
}

// resolveInput validates a job request and materializes inline text.
func (s *Server) resolveInput(id string, req JobRequest) (pipeline.Input, int, error) {
	hasInput := strings.TrimSpace(req.Input) != ""
	hasText := strings.TrimSpace(req.Text) != ""
	switch {
	case hasInput && hasText:
		return pipeline.Input{}, http.StatusBadRequest, errors.New("provide either input or text, not both")
	case hasText:
		path := filepath.Join(s.rt.Config.Paths.DataDir, "jobs", id+".md")
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return pipeline.Input{}, http.StatusInternalServerError, fmt.Errorf("stage inline text: %w", err)
		}
		if err := os.WriteFile(path, []byte(req.Text), 0o644); err != nil {
			return pipeline.Input{}, http.StatusInternalServerError, fmt.Errorf("stage inline text: %w", err)
		}
		return pipeline.Input{Path: path, OutputDir: s.jobOutputDir(id)}, 0, nil
	case hasInput:
		if _, err := os.Stat(req.Input); err != nil {
			return pipeline.Input{}, http.StatusBadRequest, fmt.Errorf("input not found: %s", req.Input)
		}
		return pipeline.Input{Path: req.Input, SkipOCR: req.SkipOCR, OutputDir: s.jobOutputDir(id)}, 0, nil
	default:
		return pipeline.Input{}, http.StatusBadRequest, errors.New("input or text is required")
	}
}

// jobOutputDir gives every job its own output area so concurrent jobs on the
// same input never share checkpoints.
func (s *Server) jobOutputDir(id string) string {
	return filepath.Join(s.rt.Config.Paths.OutputRoot, "jobs", id)
}

func (s *Server) lookup(id string) *job {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.jobs[id]
}

func (s *Server) handleListJobs(w http.ResponseWriter, _ *http.Request) {
	s.mu.Lock()
	jobs := make([]*job, 0, len(s.jobs))
	for _, j := range s.jobs {
		jobs = append(jobs, j)
	}
	s.mu.Unlock()

	out := make([]JobStatus, 0, len(jobs))
	for _, j := range jobs {
		out = append(out, j.status())
	}
	slices.SortFunc(out, func(a, b JobStatus) int { return a.CreatedAt.Compare(b.CreatedAt) })
	s.writeJSON(w, http.StatusOK, map[string]any{"jobs": out})
}

func (s *Server) handleJob(w http.ResponseWriter, r *http.Request) {
	j := s.lookup(r.PathValue("id"))
	if j == nil {
		s.writeError(w, http.StatusNotFound, "job not found")
		return
	}
	s.writeJSON(w, http.StatusOK, j.status())
}

func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	j := s.lookup(r.PathValue("id"))
	if j == nil {
		s.writeError(w, http.StatusNotFound, "job not found")
		return
	}
	query := r.URL.Query()
	since, _ := strconv.ParseUint(query.Get("since"), 10, 64)
	limit, _ := strconv.Atoi(query.Get("limit"))
	wait := query.Get("wait") == "1" || strings.EqualFold(query.Get("wait"), "true")

	ctx := r.Context()
	if wait {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, maxPollWait)
		defer cancel()
	}
	events, next, err := j.hub.Fetch(ctx, since, limit, wait)
	if err != nil && !errors.Is(err, context.Canceled) && !errors.Is(err, context.DeadlineExceeded) {
		s.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	_, last := j.hub.Tail(1)
	s.writeJSON(w, http.StatusOK, EventsResponse{
		Events: events,
		Next:   next,
		Done:   j.hub.Closed() && next >= last,
	})
}

func (s *Server) handleRuns(w http.ResponseWriter, r *http.Request) {
	if s.rt.Ledger == nil {
		s.writeJSON(w, http.StatusOK, RunsResponse{})
		return
	}
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	runs, err := s.rt.Ledger.List(r.Context(), limit)
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	s.writeJSON(w, http.StatusOK, RunsResponse{Runs: runs})
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if payload == nil {
		return
	}
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		s.logger.Error("failed to encode response", logging.Error(err))
	}
}

func (s *Server) writeError(w http.ResponseWriter, status int, message string) {
	s.writeJSON(w, status, map[string]string{"error": message})
}
