// Package webserver exposes the session store, search index and live
// event stream over HTTP.
package webserver

import (
	"context"
	"encoding/json"
	"log/slog"
	"math"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/victorarias/cclog/internal/config"
	"github.com/victorarias/cclog/internal/logging"
	"github.com/victorarias/cclog/internal/logs"
)

type Server struct {
	cfg     config.Config
	store   *logs.Store
	search  *logs.SearchIndex
	manager *logs.ConnectionManager
	watcher *logs.SessionWatcher
	logger  *slog.Logger
	started time.Time
}

func NewServer(cfg config.Config, store *logs.Store, search *logs.SearchIndex, manager *logs.ConnectionManager, watcher *logs.SessionWatcher, logger *slog.Logger) *Server {
	if logger == nil {
		logger = logging.New("info", nil)
	}
	return &Server{
		cfg:     cfg,
		store:   store,
		search:  search,
		manager: manager,
		watcher: watcher,
		logger:  logger,
		started: time.Now(),
	}
}

func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}

	httpServer := &http.Server{
		Handler:     s.routes(),
		ReadTimeout: 15 * time.Second,
		// No write timeout: /api/events streams for the lifetime of
		// the client connection.
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- httpServer.Serve(listener)
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return httpServer.Shutdown(shutdownCtx)
	case err := <-errCh:
		return err
	}
}

func (s *Server) routes() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/projects", s.handleProjects)
	mux.HandleFunc("/api/projects/", s.handleProjectDetail)
	mux.HandleFunc("/api/sessions/batch-export", s.handleBatchExport)
	mux.HandleFunc("/api/sessions/", s.handleSessionDetail)
	mux.HandleFunc("/api/search", s.handleSearch)
	mux.HandleFunc("/api/stats", s.handleStats)
	mux.HandleFunc("/api/health", s.handleHealth)
	mux.HandleFunc("/api/events", s.handleEvents)
	mux.HandleFunc("/", s.handleRoot)
	return s.logRequests(s.cors(mux))
}

func (s *Server) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)
		s.logger.Info("request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", rec.status,
			"duration_ms", time.Since(start).Milliseconds(),
		)
	})
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (s *statusRecorder) WriteHeader(code int) {
	s.status = code
	s.ResponseWriter.WriteHeader(code)
}

// Flush keeps the event stream working behind the status recorder.
func (s *statusRecorder) Flush() {
	if f, ok := s.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

func (s *Server) cors(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		origin := r.Header.Get("Origin")
		if origin != "" && s.originAllowed(origin) {
			w.Header().Set("Access-Control-Allow-Origin", origin)
			w.Header().Set("Access-Control-Allow-Credentials", "true")
			w.Header().Set("Vary", "Origin")
		}
		if r.Method == http.MethodOptions {
			w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
			w.Header().Set("Access-Control-Allow-Headers", "*")
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) originAllowed(origin string) bool {
	for _, allowed := range s.cfg.Server.CORSOrigins {
		if allowed == "*" || allowed == origin {
			return true
		}
	}
	return false
}

func (s *Server) handleRoot(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		w.WriteHeader(http.StatusNotFound)
		return
	}
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("<h1>CC LOG</h1><p>API is available at /api/</p>"))
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	uptime := math.Round(time.Since(s.started).Seconds()*10) / 10
	watcherActive := s.watcher != nil && s.watcher.Active()

	s.writeJSON(w, http.StatusOK, map[string]interface{}{
		"status":           "ok",
		"uptime_seconds":   uptime,
		"projects_loaded":  s.store.ProjectCount(),
		"sessions_indexed": s.store.SessionCount(),
		"search_entries":   s.search.EntryCount(),
		"live_clients":     s.manager.ClientCount(),
		"watcher_active":   watcherActive,
	})
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	s.writeJSON(w, http.StatusOK, s.store.Stats())
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func (s *Server) writeError(w http.ResponseWriter, status int, code, message string) {
	resp := ErrorResponse{
		Status: "error",
		Error: ErrorPayload{
			Code:    code,
			Message: message,
		},
	}
	s.writeJSON(w, status, resp)
}

// queryString returns a trimmed query parameter or its default.
func queryString(r *http.Request, name, fallback string) string {
	if raw := strings.TrimSpace(r.URL.Query().Get(name)); raw != "" {
		return raw
	}
	return fallback
}

// queryInt parses an integer parameter, clamping to max and falling back
// on anything unparseable or below min.
func queryInt(r *http.Request, name string, fallback, min, max int) int {
	raw := strings.TrimSpace(r.URL.Query().Get(name))
	if raw == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(raw)
	if err != nil || parsed < min {
		return fallback
	}
	if max > 0 && parsed > max {
		return max
	}
	return parsed
}

func queryBool(r *http.Request, name string, fallback bool) bool {
	raw := strings.TrimSpace(r.URL.Query().Get(name))
	if raw == "" {
		return fallback
	}
	parsed, err := strconv.ParseBool(raw)
	if err != nil {
		return fallback
	}
	return parsed
}

// querySortPair validates sort_by against the route's allowed columns and
// sort_order against asc/desc, falling back to the defaults otherwise.
func querySortPair(r *http.Request, defaultSort string, allowed ...string) (string, string) {
	sortBy := queryString(r, "sort_by", defaultSort)
	valid := false
	for _, a := range allowed {
		if sortBy == a {
			valid = true
			break
		}
	}
	if !valid {
		sortBy = defaultSort
	}

	sortOrder := queryString(r, "sort_order", "desc")
	if sortOrder != "asc" && sortOrder != "desc" {
		sortOrder = "desc"
	}
	return sortBy, sortOrder
}
