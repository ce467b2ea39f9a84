// Package nodeapitest provides an in-memory node API for tests.
package nodeapitest

import (
	"crypto/subtle"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/mattjoyce/nodesync/internal/entity"
)

// Call records one request the server handled.
type Call struct {
	Method string
	Path   string
	Query  string
	Status int
}

// Server is a fake node. Configuration is stored per config group; the empty
// group is the whole node.
type Server struct {
	*httptest.Server

	JWT string

	mu       sync.Mutex
	config   map[string][]entity.Entity
	env      map[string]any
	secrets  map[string]string
	failures map[string][]int
	calls    []Call
	logger   *slog.Logger
}

// New starts a fake node that accepts jwt as its bearer token.
func New(jwt string, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	s := &Server{
		JWT:      jwt,
		config:   make(map[string][]entity.Entity),
		env:      make(map[string]any),
		secrets:  make(map[string]string),
		failures: make(map[string][]int),
		logger:   logger,
	}
	s.Server = httptest.NewServer(s.setupRoutes())
	return s
}

// SetConfig installs the running configuration of a group.
func (s *Server) SetConfig(group string, conf []entity.Entity) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.config[group] = conf
}

// Config returns the stored configuration of a group.
func (s *Server) Config(group string) []entity.Entity {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.config[group]
}

// SetEnv installs the running environment variables.
func (s *Server) SetEnv(env map[string]any) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.env = env
}

// Env returns the stored environment variables.
func (s *Server) Env() map[string]any {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.env
}

// Secrets returns the stored secrets.
func (s *Server) Secrets() map[string]string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.secrets
}

// FailNext makes the next requests to "METHOD /path" answer with the given
// statuses, one per request.
func (s *Server) FailNext(route string, statuses ...int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failures[route] = append(s.failures[route], statuses...)
}

// Calls returns the handled requests in order.
func (s *Server) Calls() []Call {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Call(nil), s.calls...)
}

// Routes returns "METHOD /path" for every handled request.
func (s *Server) Routes() []string {
	var out []string
	for _, c := range s.Calls() {
		out = append(out, c.Method+" "+c.Path)
	}
	return out
}

func (s *Server) setupRoutes() *chi.Mux {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(s.recordMiddleware)
	r.Use(s.failureMiddleware)

	r.Route("/api", func(r chi.Router) {
		r.Use(s.authMiddleware)
		r.Get("/config", s.handleGetConfig)
		r.Get("/config/{group}", s.handleGetConfig)
		r.Put("/config", s.handlePutConfig)
		r.Put("/config/{group}", s.handlePutConfig)
		r.Get("/env", s.handleGetEnv)
		r.Put("/env", s.handlePutEnv)
		r.Put("/secrets", s.handlePutSecrets)
		r.Post("/utils/reformat-config", s.handleReformat)
	})
	return r
}

func (s *Server) recordMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		s.mu.Lock()
		s.calls = append(s.calls, Call{Method: r.Method, Path: r.URL.Path, Query: r.URL.RawQuery, Status: ww.Status()})
		s.mu.Unlock()
		s.logger.Debug("http request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"duration_ms", time.Since(start).Milliseconds(),
		)
	})
}

func (s *Server) failureMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		route := r.Method + " " + r.URL.Path
		s.mu.Lock()
		queue := s.failures[route]
		status := 0
		if len(queue) > 0 {
			status, s.failures[route] = queue[0], queue[1:]
		}
		s.mu.Unlock()
		if status != 0 {
			http.Error(w, "injected failure", status)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) authMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		const prefix = "bearer "
		h := r.Header.Get("Authorization")
		if len(h) < len(prefix) || !strings.EqualFold(h[:len(prefix)], prefix) {
			writeError(w, http.StatusUnauthorized, "missing bearer token")
			return
		}
		token := strings.TrimSpace(h[len(prefix):])
		if subtle.ConstantTimeCompare([]byte(token), []byte(s.JWT)) != 1 {
			writeError(w, http.StatusUnauthorized, "invalid token")
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) handleGetConfig(w http.ResponseWriter, r *http.Request) {
	conf := s.Config(chi.URLParam(r, "group"))
	if conf == nil {
		conf = []entity.Entity{}
	}
	writeJSON(w, http.StatusOK, conf)
}

func (s *Server) handlePutConfig(w http.ResponseWriter, r *http.Request) {
	if r.URL.Query().Get("force") != "true" {
		writeError(w, http.StatusConflict, "force=true required")
		return
	}
	v, err := entity.Decode(r.Body)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	conf, err := entity.AsList(v)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	s.SetConfig(chi.URLParam(r, "group"), conf)
	writeJSON(w, http.StatusOK, map[string]any{"entities": len(conf)})
}

func (s *Server) handleGetEnv(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.Env())
}

func (s *Server) handlePutEnv(w http.ResponseWriter, r *http.Request) {
	v, err := entity.Decode(r.Body)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	m, ok := v.(map[string]any)
	if !ok {
		writeError(w, http.StatusBadRequest, "expected an object")
		return
	}
	s.SetEnv(m)
	w.WriteHeader(http.StatusOK)
}

func (s *Server) handlePutSecrets(w http.ResponseWriter, r *http.Request) {
	var secrets map[string]string
	if err := json.NewDecoder(r.Body).Decode(&secrets); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	s.mu.Lock()
	s.secrets = secrets
	s.mu.Unlock()
	w.WriteHeader(http.StatusOK)
}

// handleReformat renders the entity as indented JSON with sorted keys, the
// shape a real node returns closely enough for diffs.
func (s *Server) handleReformat(w http.ResponseWriter, r *http.Request) {
	v, err := entity.Decode(r.Body)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	b, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	w.Header().Set("Content-Type", "text/plain")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(append(b, '\n'))
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
