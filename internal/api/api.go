// Package api provides the HTTP admin API for BoardPipe.
//
// It exposes a health check, on-demand report runs and read-only views of reminders and
// subscriptions.
package api

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/BTreeMap/BoardPipe/internal/jobs"
	"github.com/BTreeMap/BoardPipe/internal/models"
	"github.com/BTreeMap/BoardPipe/internal/store"
)

// DefaultAddr is the listen address used when none is configured.
const DefaultAddr = ":8080"

// Opts holds server configuration.
type Opts struct {
	Addr string
}

// Option configures a Server.
type Option func(*Opts)

// WithAddr sets the listen address.
func WithAddr(addr string) Option {
	return func(o *Opts) { o.Addr = addr }
}

// Server serves the admin API.
type Server struct {
	runner *jobs.Runner
	store  store.Store
	http   *http.Server
}

// NewServer creates a server. Call Start to begin listening.
func NewServer(runner *jobs.Runner, st store.Store, opts ...Option) *Server {
	cfg := Opts{Addr: DefaultAddr}
	for _, opt := range opts {
		opt(&cfg)
	}
	s := &Server{runner: runner, store: st}
	s.http = &http.Server{
		Addr:              cfg.Addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	return s
}

// Handler returns the API routes.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /healthz", s.healthHandler)
	mux.HandleFunc("POST /reports/{name}", s.runReportHandler)
	mux.HandleFunc("GET /reminders", s.remindersHandler)
	mux.HandleFunc("GET /subscriptions", s.subscriptionsHandler)
	return mux
}

// Start listens in the background. Errors other than a clean shutdown are logged.
func (s *Server) Start() {
	go func() {
		slog.Info("BoardPipe API listening", "addr", s.http.Addr)
		if err := s.http.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("Server.Start: listen failed", "addr", s.http.Addr, "error", err)
		}
	}()
}

// Shutdown stops the server gracefully.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.http.Shutdown(ctx)
}

func (s *Server) healthHandler(w http.ResponseWriter, r *http.Request) {
	respond(w, http.StatusOK, models.SuccessWithMessage("healthy", nil))
}

// runReportHandler runs a job for a chat the way the scheduler would.
func (s *Server) runReportHandler(w http.ResponseWriter, r *http.Request) {
	name := r.PathValue("name")
	chatID, err := strconv.ParseInt(r.URL.Query().Get("chat_id"), 10, 64)
	if err != nil || chatID == 0 {
		slog.Warn("Server.runReportHandler: invalid chat_id", "value", r.URL.Query().Get("chat_id"))
		respondError(w, http.StatusBadRequest, "chat_id query parameter must be a non-zero integer")
		return
	}
	if _, ok := s.runner.Registry().Get(name); !ok {
		respondError(w, http.StatusNotFound, "unknown report: %s", name)
		return
	}

	slog.Info("Server.runReportHandler: running report", "job", name, "chatID", chatID)
	ok, err := s.runner.RunNow(r.Context(), name, chatID, r.URL.Query()["arg"], false)
	if err != nil {
		respondError(w, http.StatusNotFound, "%v", err)
		return
	}
	if !ok {
		respondError(w, http.StatusBadGateway, "report %s failed, see logs", name)
		return
	}
	respond(w, http.StatusOK, models.SuccessWithMessage("report sent", reportRun{Job: name, ChatID: chatID, Args: r.URL.Query()["arg"]}))
}

func (s *Server) remindersHandler(w http.ResponseWriter, r *http.Request) {
	reminders, err := s.store.ListReminders()
	if err != nil {
		slog.Error("Server.remindersHandler: failed to list reminders", "error", err)
		respondError(w, http.StatusInternalServerError, "failed to list reminders")
		return
	}
	respondOK(w, reminders)
}

func (s *Server) subscriptionsHandler(w http.ResponseWriter, r *http.Request) {
	subs, err := s.store.ListSubscriptions()
	if err != nil {
		slog.Error("Server.subscriptionsHandler: failed to list subscriptions", "error", err)
		respondError(w, http.StatusInternalServerError, "failed to list subscriptions")
		return
	}
	respondOK(w, subs)
}
