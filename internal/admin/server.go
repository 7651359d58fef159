// Package admin exposes a small operational HTTP surface: health, job
// snapshots, and a manual trigger that enqueues an immediate tick. It
// is a pass-through to the scheduler; the pipeline's window and
// watermark checks still decide who actually gets notified.
package admin

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"nudge/internal/scheduler"
	"nudge/pkg/logx"
)

type Config struct {
	Addr string
}

type Server struct {
	srv   *http.Server
	sched *scheduler.Service
	log   logx.Logger
}

func New(cfg Config, sched *scheduler.Service, log logx.Logger) *Server {
	addr := strings.TrimSpace(cfg.Addr)
	if addr == "" {
		addr = "127.0.0.1:8091"
	}

	s := &Server{sched: sched, log: log}

	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Get("/healthz", s.handleHealth)
	r.Get("/v1/jobs", s.handleJobs)
	r.Get("/v1/runs", s.handleRuns)
	r.Post("/v1/jobs/{name}/run", s.handleTrigger)

	s.srv = &http.Server{
		Addr:         addr,
		Handler:      r,
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 10 * time.Second,
	}
	return s
}

// Start serves until the listener fails or Shutdown is called.
func (s *Server) Start() {
	go func() {
		s.log.Info("admin server listening", logx.String("addr", s.srv.Addr))
		if err := s.srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.log.Error("admin server failed", logx.Err(err))
		}
	}()
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.srv.Shutdown(ctx)
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleJobs(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.sched.Snapshot())
}

func (s *Server) handleRuns(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.sched.History())
}

func (s *Server) handleTrigger(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	if err := s.sched.TriggerNow(name); err != nil {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": err.Error()})
		return
	}
	s.log.Info("manual trigger accepted", logx.String("job", name))
	writeJSON(w, http.StatusAccepted, map[string]string{"job": name, "status": "queued"})
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}
