// Package server exposes the engine's current-status and history views
// over HTTP.
package server

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"go.uber.org/zap"

	"github.com/ulvio/heimdall/internal/component"
)

// Store defines the history queries the server needs. The in-memory
// board, not the store, answers current-status questions; the store is
// only consulted for what the board cannot know.
type Store interface {
	History(ctx context.Context, name string, since time.Time, limit int) ([]component.Transition, error)
	RecentTransitions(ctx context.Context, name string, limit int) ([]component.Transition, error)
	UptimePercent(ctx context.Context, name string, window int) (float64, error)
}

// BoardView is the read-only view of the engine's status board.
type BoardView interface {
	Snapshot() []component.Status
	Get(name string) (component.Status, bool)
	Healthy() bool
	NumHealthy() int
}

// Server holds the chi router and its dependencies.
type Server struct {
	board   BoardView
	store   Store
	defs    []component.Definition
	hub     *Hub
	running func() bool
	router chi.Router
	logger *zap.Logger
}

// New creates a Server and registers all routes. Pass nil logger to
// discard logs.
func New(board BoardView, store Store, defs []component.Definition, hub *Hub, logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Server{
		board:  board,
		store:  store,
		defs:   defs,
		hub:    hub,
		router: chi.NewRouter(),
		logger: logger,
	}
	s.registerRoutes()
	return s
}

// SetRunningFunc wires the engine's liveness into the monitor summary.
// Without it the monitor reports RUNNING unconditionally.
func (s *Server) SetRunningFunc(fn func() bool) {
	s.running = fn
}

// Router returns the chi router (for mounting or testing).
func (s *Server) Router() chi.Router {
	return s.router
}

func (s *Server) registerRoutes() {
	r := s.router
	r.Use(middleware.Recoverer)
	r.Use(s.requestLogger)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{http.MethodHead, http.MethodGet},
		AllowedHeaders: []string{"*"},
	}))

	r.Get("/api", s.handleMonitor)
	r.Get("/api/health", s.handleHealth)
	r.Get("/api/components", s.handleListComponents)
	r.Get("/api/components/{name}", s.handleGetComponent)
	r.Get("/api/components/{name}/history", s.handleGetHistory)
	if s.hub != nil {
		r.Get("/api/live", s.hub.ServeHTTP)
	}
}

// --- Response helpers ---

type envelope struct {
	Data  interface{} `json:"data"`
	Error string      `json:"error"`
}

func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(envelope{Data: data})
}

func writeError(w http.ResponseWriter, status int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(envelope{Error: msg})
}

// --- Handlers ---

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
}

type componentDetail struct {
	Name        string                 `json:"name"`
	DisplayName string                 `json:"display_name"`
	Kind        component.Kind         `json:"kind"`
	Group       string                 `json:"group,omitempty"`
	State       component.State        `json:"state"`
	Since       *time.Time             `json:"since,omitempty"`
	LastChecked *time.Time             `json:"last_checked,omitempty"`
	LatencyMs   int64                  `json:"latency_ms"`
	Detail      string                 `json:"detail,omitempty"`
	UptimePct   float64                `json:"uptime_percent"`
	History     []component.Transition `json:"history,omitempty"`
}

func (s *Server) detailFor(r *http.Request, def component.Definition, withHistory bool) componentDetail {
	d := componentDetail{
		Name:        def.Name,
		DisplayName: def.DisplayName,
		Kind:        def.Kind,
		Group:       def.Group,
		State:       component.StateUnknown,
	}
	if st, ok := s.board.Get(def.Name); ok {
		d.State = st.State
		d.LatencyMs = st.LastLatency.Milliseconds()
		d.Detail = st.Detail
		since, lastChecked := st.Since, st.LastChecked
		d.Since = &since
		d.LastChecked = &lastChecked
	}
	if pct, err := s.store.UptimePercent(r.Context(), def.Name, 100); err == nil {
		d.UptimePct = pct
	}
	if withHistory {
		history, err := s.store.RecentTransitions(r.Context(), def.Name, 10)
		if err != nil {
			s.logger.Error("querying recent transitions", zap.String("component", def.Name), zap.Error(err))
		} else {
			d.History = history
		}
	}
	return d
}

type monitorResponse struct {
	Monitor    string            `json:"monitor"`
	Healthy    bool              `json:"healthy"`
	NumHealthy int               `json:"num_healthy"`
	Total      int               `json:"total"`
	Components []componentDetail `json:"components"`
}

func (s *Server) handleMonitor(w http.ResponseWriter, r *http.Request) {
	state := "RUNNING"
	if s.running != nil && !s.running() {
		state = "STOPPED"
	}
	resp := monitorResponse{
		Monitor:    state,
		Healthy:    s.board.Healthy(),
		NumHealthy: s.board.NumHealthy(),
		Total:      len(s.defs),
	}
	for _, def := range s.defs {
		resp.Components = append(resp.Components, s.detailFor(r, def, true))
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleListComponents(w http.ResponseWriter, r *http.Request) {
	details := make([]componentDetail, 0, len(s.defs))
	for _, def := range s.defs {
		details = append(details, s.detailFor(r, def, false))
	}
	writeJSON(w, http.StatusOK, details)
}

func (s *Server) definition(name string) (component.Definition, bool) {
	for _, def := range s.defs {
		if def.Name == name {
			return def, true
		}
	}
	return component.Definition{}, false
}

func (s *Server) handleGetComponent(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	def, ok := s.definition(name)
	if !ok {
		writeError(w, http.StatusNotFound, "component not found")
		return
	}
	writeJSON(w, http.StatusOK, s.detailFor(r, def, true))
}

type historyResponse struct {
	Transitions []component.Transition `json:"transitions"`
}

func (s *Server) handleGetHistory(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	if _, ok := s.definition(name); !ok {
		writeError(w, http.StatusNotFound, "component not found")
		return
	}

	const maxLimit = 1000
	limit := 50
	var since time.Time

	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			writeError(w, http.StatusBadRequest, "invalid limit parameter")
			return
		}
		if n > maxLimit {
			n = maxLimit
		}
		limit = n
	}
	if v := r.URL.Query().Get("since"); v != "" {
		t, err := time.Parse(time.RFC3339, v)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid since parameter, want RFC3339")
			return
		}
		since = t
	}

	transitions, err := s.store.History(r.Context(), name, since, limit)
	if err != nil {
		s.logger.Error("querying history", zap.String("component", name), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	if transitions == nil {
		transitions = []component.Transition{}
	}
	writeJSON(w, http.StatusOK, historyResponse{Transitions: transitions})
}

// --- Middleware ---

type statusWriter struct {
	http.ResponseWriter
	status int
}

func (sw *statusWriter) WriteHeader(code int) {
	sw.status = code
	sw.ResponseWriter.WriteHeader(code)
}

// Hijack lets the websocket upgrade pass through the logger wrapper.
func (sw *statusWriter) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	h, ok := sw.ResponseWriter.(http.Hijacker)
	if !ok {
		return nil, nil, fmt.Errorf("response writer does not support hijacking")
	}
	return h.Hijack()
}

func (s *Server) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		sw := &statusWriter{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(sw, r)
		s.logger.Info("request",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", sw.status),
			zap.Duration("duration", time.Since(start)),
		)
	})
}
