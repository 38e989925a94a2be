// Package api serves the feeder's local status endpoints.
package api

import (
	"net/http"
	"strconv"
	"time"

	"tailscale.com/tsweb"

	"github.com/banshee-data/pet-feeder/internal/controller"
	"github.com/banshee-data/pet-feeder/internal/httputil"
	"github.com/banshee-data/pet-feeder/internal/monitoring"
	"github.com/banshee-data/pet-feeder/internal/session"
	"github.com/banshee-data/pet-feeder/internal/timeutil"
	"github.com/banshee-data/pet-feeder/internal/version"
)

// ANSI escape codes for cyan and reset
const colorCyan = "\033[36m"
const colorReset = "\033[0m"
const colorYellow = "\033[33m"
const colorBoldGreen = "\033[1;32m"
const colorBoldRed = "\033[1;31m"

// Readiness reports whether the inference source can classify.
type Readiness interface {
	Ready() bool
}

// Connectivity reports whether the serial link is up.
type Connectivity interface {
	Connected() bool
}

// SessionStater reports the session aggregator state.
type SessionStater interface {
	State() session.State
}

// Status is the body of GET /api/status.
type Status struct {
	AIReady         bool                `json:"ai_ready"`
	SerialConnected bool                `json:"serial_connected"`
	SessionState    string              `json:"session_state"`
	Controller      controller.Snapshot `json:"controller"`
	Uptime          string              `json:"uptime"`
	Version         string              `json:"version"`
	GitSHA          string              `json:"git_sha"`
}

type Server struct {
	ai       Readiness
	serial   Connectivity
	sessions SessionStater
	state    *controller.State
	clock    timeutil.Clock
	started  time.Time
}

// NewServer builds a status server. A nil clock uses the wall clock.
func NewServer(ai Readiness, serial Connectivity, sessions SessionStater, state *controller.State, clock timeutil.Clock) *Server {
	if clock == nil {
		clock = timeutil.RealClock{}
	}
	return &Server{
		ai:       ai,
		serial:   serial,
		sessions: sessions,
		state:    state,
		clock:    clock,
		started:  clock.Now(),
	}
}

type loggingResponseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (lrw *loggingResponseWriter) WriteHeader(code int) {
	lrw.statusCode = code
	lrw.ResponseWriter.WriteHeader(code)
}

func (lrw *loggingResponseWriter) Flush() {
	if flusher, ok := lrw.ResponseWriter.(http.Flusher); ok {
		flusher.Flush()
	}
}

func statusCodeColor(statusCode int) string {
	switch {
	case statusCode >= 200 && statusCode < 300:
		return colorBoldGreen + strconv.Itoa(statusCode) + colorReset
	case statusCode >= 300 && statusCode < 400:
		return colorYellow + strconv.Itoa(statusCode) + colorReset
	case statusCode >= 400:
		return colorBoldRed + strconv.Itoa(statusCode) + colorReset
	default:
		return strconv.Itoa(statusCode)
	}
}

// LoggingMiddleware logs method, path, status, and duration
func LoggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		lrw := &loggingResponseWriter{w, http.StatusOK}
		next.ServeHTTP(lrw, r)
		monitoring.Logf(
			"[%s] %s %s%s%s %vms",
			statusCodeColor(lrw.statusCode), r.Method,
			colorCyan, r.RequestURI, colorReset,
			float64(time.Since(start).Nanoseconds())/1e6,
		)
	})
}

// ServeMux returns the status routes. The same status is summarised on the
// /debug/ index.
func (s *Server) ServeMux() *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/status", s.showStatus)
	mux.HandleFunc("/healthz", s.healthz)

	debug := tsweb.Debugger(mux)
	debug.KVFunc("AI ready", func() any { return s.ai.Ready() })
	debug.KVFunc("Serial connected", func() any { return s.serial.Connected() })
	debug.KVFunc("Session state", func() any { return s.sessions.State().String() })
	debug.KVFunc("Target", func() any { return s.targetLabel() })
	return mux
}

// Status assembles the current status.
func (s *Server) Status() Status {
	return Status{
		AIReady:         s.ai.Ready(),
		SerialConnected: s.serial.Connected(),
		SessionState:    s.sessions.State().String(),
		Controller:      s.state.Snapshot(),
		Uptime:          s.clock.Since(s.started).Round(time.Second).String(),
		Version:         version.Version,
		GitSHA:          version.GitSHA,
	}
}

func (s *Server) targetLabel() string {
	if t := s.state.Snapshot().Target; t != "" {
		return string(t)
	}
	return "(not configured)"
}

func (s *Server) showStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		httputil.MethodNotAllowed(w)
		return
	}
	httputil.WriteJSONOK(w, s.Status())
}

// healthz is OK while the command loop can do useful work: the serial link is
// up. AI readiness is reported but does not fail the check, since the feeder
// still answers AI_NOT_READY without it.
func (s *Server) healthz(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		httputil.MethodNotAllowed(w)
		return
	}
	if !s.serial.Connected() {
		httputil.WriteJSONError(w, http.StatusServiceUnavailable, "serial link down")
		return
	}
	httputil.WriteJSONOK(w, map[string]bool{"ok": true, "ai_ready": s.ai.Ready()})
}
