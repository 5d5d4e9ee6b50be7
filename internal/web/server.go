// Package web provides the HTTP status server for the sos-trigger daemon.
package web

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"strconv"

	"github.com/gorilla/handlers"
	"github.com/gorilla/mux"
	"github.com/sweeney/sos-trigger/internal/metrics"
	"github.com/sweeney/sos-trigger/internal/status"
	"github.com/sweeney/sos-trigger/internal/store"
)

const (
	defaultIncidentLimit = 20
	maxIncidentLimit     = 500
)

// Canceller cancels the armed session, reporting whether one was armed.
type Canceller interface {
	Cancel(reason string) bool
}

// IncidentLister returns recent incidents, newest first.
type IncidentLister interface {
	Recent(ctx context.Context, limit int) ([]store.Incident, error)
}

// Options wires the optional collaborators. Nil fields disable the
// matching endpoint.
type Options struct {
	Canceller Canceller
	Incidents IncidentLister
	Metrics   *metrics.Metrics
	// AccessLog receives Apache-style request lines.
	AccessLog io.Writer
	Log       *slog.Logger
}

// Server serves the status page over HTTP.
type Server struct {
	httpServer *http.Server
	tracker    *status.Tracker
	opts       Options
	log        *slog.Logger
}

// New creates a Server that reads state from the given tracker.
func New(addr string, tracker *status.Tracker, opts Options) *Server {
	log := opts.Log
	if log == nil {
		log = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	s := &Server{tracker: tracker, opts: opts, log: log.With("component", "web")}

	r := mux.NewRouter()
	s.handle(r, "/", s.handleIndex, http.MethodGet, http.MethodHead)
	s.handle(r, "/index.html", s.handleIndex, http.MethodGet, http.MethodHead)
	s.handle(r, "/index.json", s.handleJSON, http.MethodGet)
	if opts.Canceller != nil {
		s.handle(r, "/cancel", s.handleCancel, http.MethodPost)
	}
	if opts.Incidents != nil {
		s.handle(r, "/incidents.json", s.handleIncidents, http.MethodGet)
	}
	if opts.Metrics != nil {
		r.Handle("/metrics", opts.Metrics.Handler()).Methods(http.MethodGet)
	}

	var h http.Handler = handlers.RecoveryHandler(
		handlers.RecoveryLogger(recoveryLogger{s.log}),
		handlers.PrintRecoveryStack(true),
	)(r)
	if opts.AccessLog != nil {
		h = handlers.LoggingHandler(opts.AccessLog, h)
	}

	s.httpServer = &http.Server{
		Addr:    addr,
		Handler: h,
	}
	return s
}

func (s *Server) handle(r *mux.Router, path string, fn http.HandlerFunc, methods ...string) {
	r.Handle(path, s.opts.Metrics.WrapHandler(path, fn)).Methods(methods...)
}

// ListenAndServe starts listening. It blocks until the server is shut down.
func (s *Server) ListenAndServe() error {
	return s.httpServer.ListenAndServe()
}

// Serve accepts connections on the given listener. Useful for tests.
func (s *Server) Serve(ln net.Listener) error {
	return s.httpServer.Serve(ln)
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	snap := s.tracker.Snapshot()
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := renderHTML(w, snap, s.opts.Canceller != nil); err != nil {
		s.log.Warn("render index failed", "error", err)
	}
}

func (s *Server) handleJSON(w http.ResponseWriter, r *http.Request) {
	snap := s.tracker.Snapshot()
	w.Header().Set("Content-Type", "application/json")
	w.Write(status.FormatJSON(snap))
}

func (s *Server) handleCancel(w http.ResponseWriter, r *http.Request) {
	reason := r.FormValue("reason")
	if reason == "" {
		reason = "http"
	}
	cancelled := s.opts.Canceller.Cancel(reason)
	s.log.Info("cancel requested", "remote", r.RemoteAddr, "reason", reason, "cancelled", cancelled)
	writeJSON(w, http.StatusOK, cancelJSON{Cancelled: cancelled})
}

func (s *Server) handleIncidents(w http.ResponseWriter, r *http.Request) {
	limit, err := parseLimit(r.URL.Query().Get("limit"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorJSON{Error: err.Error()})
		return
	}
	incidents, err := s.opts.Incidents.Recent(r.Context(), limit)
	if err != nil {
		s.log.Warn("list incidents failed", "error", err)
		writeJSON(w, http.StatusInternalServerError, errorJSON{Error: "incident store unavailable"})
		return
	}
	writeJSON(w, http.StatusOK, formatIncidents(incidents))
}

func parseLimit(s string) (int, error) {
	if s == "" {
		return defaultIncidentLimit, nil
	}
	n, err := strconv.Atoi(s)
	if err != nil || n < 1 {
		return 0, fmt.Errorf("limit must be a positive integer, got %q", s)
	}
	if n > maxIncidentLimit {
		n = maxIncidentLimit
	}
	return n, nil
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(v)
}

// recoveryLogger routes handler panics into slog.
type recoveryLogger struct {
	log *slog.Logger
}

func (l recoveryLogger) Println(v ...interface{}) {
	l.log.Error("http handler panic", "detail", fmt.Sprint(v...))
}
