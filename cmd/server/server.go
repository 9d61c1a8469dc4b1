package main

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"sandwich-scan/internal/observability"
	"sandwich-scan/internal/orchestrator"
)

// Pipeline builds a fresh orchestrator for one scheduled run.
type Pipeline func() (*orchestrator.Orchestrator, error)

// Server runs the pipeline on a cron schedule and serves its status.
type Server struct {
	schedule string
	pipeline Pipeline
	logger   *zap.Logger

	// State
	mu              sync.Mutex
	started         time.Time
	lastPipelineRun time.Time
	lastResult      *orchestrator.RunResult
	lastError       string
	pipelineRunning bool
	pipelineRuns    int
}

// NewServer creates a Server for the given cron expression (with seconds).
func NewServer(schedule string, pipeline Pipeline, logger *zap.Logger) *Server {
	return &Server{
		schedule: schedule,
		pipeline: pipeline,
		logger:   logger,
		started:  time.Now(),
	}
}

// Run schedules the pipeline until ctx is done and waits for a running
// pipeline to return.
func (s *Server) Run(ctx context.Context, runOnStart bool) error {
	cronLog := cron.PrintfLogger(zap.NewStdLog(s.logger.Named("cron")))
	c := cron.New(
		cron.WithSeconds(),
		cron.WithLogger(cronLog),
		cron.WithChain(cron.Recover(cronLog), cron.SkipIfStillRunning(cronLog)),
	)
	if _, err := c.AddFunc(s.schedule, func() { s.runPipeline(ctx) }); err != nil {
		return err
	}

	s.logger.Info("starting pipeline scheduler", zap.String("schedule", s.schedule))
	c.Start()
	if runOnStart {
		go s.runPipeline(ctx)
	}

	<-ctx.Done()
	<-c.Stop().Done()
	return ctx.Err()
}

// runPipeline executes one pipeline run unless one is already in flight.
func (s *Server) runPipeline(ctx context.Context) {
	s.mu.Lock()
	if s.pipelineRunning {
		s.mu.Unlock()
		s.logger.Info("pipeline already running, skipping")
		return
	}
	s.pipelineRunning = true
	s.mu.Unlock()

	start := time.Now()
	var (
		result *orchestrator.RunResult
		err    error
	)
	defer func() {
		s.mu.Lock()
		s.pipelineRunning = false
		s.lastPipelineRun = start
		s.lastResult = result
		s.lastError = ""
		if err != nil {
			s.lastError = err.Error()
		}
		s.pipelineRuns++
		s.mu.Unlock()
	}()

	orch, err := s.pipeline()
	if err != nil {
		s.logger.Error("build pipeline", zap.Error(err))
		return
	}
	result, err = orch.Run(ctx)
	status := observability.StatusSuccess
	if err != nil {
		status = observability.StatusError
		if !errors.Is(err, context.Canceled) {
			s.logger.Error("pipeline failed", zap.Error(err))
		}
	}
	observability.RecordPipelineRun(observability.PhaseOrchestrator, status, time.Since(start).Seconds())
}

// Handler serves /health, /metrics and /status.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	mux.Handle("/metrics", observability.Handler())
	mux.HandleFunc("/status", s.handleStatus)
	return mux
}

// ListenAndServe serves Handler on addr until ctx is done.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("starting http server", zap.String("addr", addr))
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	}
}

// StatusResponse is the /status payload.
type StatusResponse struct {
	Status          string     `json:"status"`
	Uptime          string     `json:"uptime"`
	Schedule        string     `json:"schedule"`
	LastPipelineRun *time.Time `json:"last_pipeline_run,omitempty"`
	PipelineRuns    int        `json:"pipeline_runs"`
	PipelineRunning bool       `json:"pipeline_running"`
	LastError       string     `json:"last_error,omitempty"`
	LastRun         *RunStatus `json:"last_run,omitempty"`
}

// RunStatus summarizes the last pipeline run.
type RunStatus struct {
	ToBlock     int64  `json:"to_block"`
	ActivePools int    `json:"active_pools"`
	Found       int    `json:"found"`
	Inserted    int    `json:"inserted"`
	Valued      int    `json:"valued"`
	Priced      int    `json:"priced"`
	Errors      int    `json:"errors"`
	Duration    string `json:"duration"`
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	resp := StatusResponse{
		Status:          "running",
		Uptime:          time.Since(s.started).Round(time.Second).String(),
		Schedule:        s.schedule,
		PipelineRuns:    s.pipelineRuns,
		PipelineRunning: s.pipelineRunning,
		LastError:       s.lastError,
	}
	if !s.lastPipelineRun.IsZero() {
		t := s.lastPipelineRun
		resp.LastPipelineRun = &t
	}
	if res := s.lastResult; res != nil {
		resp.LastRun = &RunStatus{
			ToBlock:     res.ToBlock,
			ActivePools: res.ActivePools,
			Found:       res.Detection.Found,
			Inserted:    res.Detection.Inserted,
			Valued:      res.Valued,
			Priced:      res.Priced,
			Errors:      len(res.Errors),
			Duration:    res.Duration.String(),
		}
	}
	s.mu.Unlock()

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(resp)
}
