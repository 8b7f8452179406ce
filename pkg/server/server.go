// Package server provides the HTTP API of ontologia.
//
// Endpoints:
//
//	GET  /                    service banner with the loaded triple count
//	GET  /clases              classes declared in the ontology
//	GET  /procesadores        members of a class (legacy listing, ?clase=)
//	GET  /buscar              search by name fragment (?q=&clase=)
//	GET  /procesador/{name}   every property of one individual
//	GET  /sparql, POST        SELECT queries, SPARQL JSON results
//	GET  /health              liveness
//	GET  /status              load state, server and cache statistics
//	GET  /metrics             Prometheus exposition
//
// The data never changes while the process runs, so data endpoints send the
// ontology fingerprint as ETag and answer 304 to a matching If-None-Match.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime"
	"net"
	"net/http"
	"strings"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/orneryd/ontologia/pkg/catalog"
	"github.com/orneryd/ontologia/pkg/config"
	"github.com/orneryd/ontologia/pkg/query"
)

// Errors for HTTP operations.
var (
	ErrServerClosed = errors.New("server closed")
	ErrBadRequest   = errors.New("bad request")
	ErrInternal     = errors.New("internal server error")
)

// Config holds HTTP server configuration.
type Config struct {
	// Address to bind to (default: "127.0.0.1")
	Address string
	// Port to listen on (default: 8000)
	Port int
	// ReadTimeout for requests
	ReadTimeout time.Duration
	// WriteTimeout for responses
	WriteTimeout time.Duration
	// IdleTimeout for keep-alive connections
	IdleTimeout time.Duration
	// MaxRequestSize in bytes for POST /sparql (default: 1MB)
	MaxRequestSize int64
	// EnableCORS for cross-origin requests
	EnableCORS bool
	// CORSOrigins allowed (default: "*")
	CORSOrigins []string
	// EnableMetrics serves /metrics
	EnableMetrics bool
}

// DefaultConfig returns default server configuration.
func DefaultConfig() *Config {
	return &Config{
		Address:        "127.0.0.1",
		Port:           8000,
		ReadTimeout:    30 * time.Second,
		WriteTimeout:   60 * time.Second,
		IdleTimeout:    120 * time.Second,
		MaxRequestSize: 1 << 20,
		EnableCORS:     true,
		CORSOrigins:    []string{"*"},
		EnableMetrics:  true,
	}
}

// ConfigFrom maps the server section of the application config.
func ConfigFrom(c config.ServerConfig) *Config {
	cfg := DefaultConfig()
	cfg.Address = c.Host
	cfg.Port = c.Port
	if c.ReadTimeout > 0 {
		cfg.ReadTimeout = c.ReadTimeout
	}
	if c.WriteTimeout > 0 {
		cfg.WriteTimeout = c.WriteTimeout
	}
	if c.IdleTimeout > 0 {
		cfg.IdleTimeout = c.IdleTimeout
	}
	if len(c.CORSOrigins) > 0 {
		cfg.CORSOrigins = c.CORSOrigins
	}
	cfg.EnableMetrics = c.MetricsEnabled
	return cfg
}

// Server is the HTTP API server.
type Server struct {
	config  *Config
	catalog *catalog.Catalog
	logger  *zap.Logger
	metrics *serverMetrics

	httpServer *http.Server
	listener   net.Listener

	closed  atomic.Bool
	started time.Time

	requestCount   atomic.Int64
	errorCount     atomic.Int64
	activeRequests atomic.Int64
}

// New creates a new HTTP server over a loaded catalog.
func New(cat *catalog.Catalog, config *Config, logger *zap.Logger) (*Server, error) {
	if config == nil {
		config = DefaultConfig()
	}
	if cat == nil {
		return nil, fmt.Errorf("catalog required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &Server{
		config:  config,
		catalog: cat,
		logger:  logger.Named("http"),
		metrics: newServerMetrics(cat),
		started: time.Now(),
	}, nil
}

// Start begins listening for HTTP connections.
func (s *Server) Start() error {
	if s.closed.Load() {
		return ErrServerClosed
	}

	addr := net.JoinHostPort(s.config.Address, fmt.Sprint(s.config.Port))
	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", addr, err)
	}

	s.listener = listener
	s.started = time.Now()

	s.httpServer = &http.Server{
		Handler:      s.buildRouter(),
		ReadTimeout:  s.config.ReadTimeout,
		WriteTimeout: s.config.WriteTimeout,
		IdleTimeout:  s.config.IdleTimeout,
		ErrorLog:     zap.NewStdLog(s.logger),
	}

	go func() {
		if err := s.httpServer.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("http server stopped", zap.Error(err))
		}
	}()

	s.logger.Info("listening", zap.String("addr", listener.Addr().String()))
	return nil
}

// Stop gracefully shuts down the server.
func (s *Server) Stop(ctx context.Context) error {
	if !s.closed.CompareAndSwap(false, true) {
		return nil
	}

	if s.httpServer != nil {
		return s.httpServer.Shutdown(ctx)
	}
	return nil
}

// Addr returns the server's listen address.
func (s *Server) Addr() string {
	if s.listener != nil {
		return s.listener.Addr().String()
	}
	return ""
}

// Stats returns server statistics.
func (s *Server) Stats() ServerStats {
	return ServerStats{
		Uptime:         time.Since(s.started),
		RequestCount:   s.requestCount.Load(),
		ErrorCount:     s.errorCount.Load(),
		ActiveRequests: s.activeRequests.Load(),
	}
}

// ServerStats holds server metrics.
type ServerStats struct {
	Uptime         time.Duration `json:"uptime"`
	RequestCount   int64         `json:"request_count"`
	ErrorCount     int64         `json:"error_count"`
	ActiveRequests int64         `json:"active_requests"`
}

// =============================================================================
// Router Setup
// =============================================================================

func (s *Server) buildRouter() http.Handler {
	mux := http.NewServeMux()

	// Ontology endpoints
	mux.HandleFunc("GET /{$}", s.handleRoot)
	mux.HandleFunc("GET /clases", s.handleClasses)
	mux.HandleFunc("GET /procesadores", s.handleIndividuals)
	mux.HandleFunc("GET /buscar", s.handleSearch)
	mux.HandleFunc("GET /procesador/{name}", s.handleDetail)
	mux.HandleFunc("GET /sparql", s.handleSPARQL)
	mux.HandleFunc("POST /sparql", s.handleSPARQL)

	// Health/Status
	mux.HandleFunc("GET /health", s.handleHealth)
	mux.HandleFunc("GET /status", s.handleStatus)
	if s.config.EnableMetrics {
		mux.Handle("GET /metrics", s.metrics.handler())
	}

	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		s.writeError(w, http.StatusNotFound, fmt.Sprintf("Ruta '%s' no encontrada.", r.URL.Path), nil)
	})

	// Wrap with middleware, innermost first
	handler := s.corsMiddleware(mux)
	handler = s.loggingMiddleware(handler)
	handler = s.metricsMiddleware(handler)
	handler = s.recoveryMiddleware(handler)
	handler = s.requestIDMiddleware(handler)

	return handler
}

// =============================================================================
// Middleware
// =============================================================================

type contextKey string

const requestIDKey contextKey = "request_id"

// RequestIDHeader carries the request id in both directions.
const RequestIDHeader = "X-Request-ID"

// RequestID returns the id assigned to the request carrying ctx.
func RequestID(ctx context.Context) string {
	id, _ := ctx.Value(requestIDKey).(string)
	return id
}

func (s *Server) requestIDMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get(RequestIDHeader)
		if id == "" {
			id = uuid.NewString()
		}
		w.Header().Set(RequestIDHeader, id)
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), requestIDKey, id)))
	})
}

func (s *Server) corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.config.EnableCORS {
			origin := r.Header.Get("Origin")
			if origin == "" {
				origin = "*"
			}

			allowed := false
			for _, o := range s.config.CORSOrigins {
				if o == "*" || o == origin {
					allowed = true
					break
				}
			}

			if allowed {
				w.Header().Set("Access-Control-Allow-Origin", origin)
				w.Header().Set("Access-Control-Allow-Methods", "*")
				headers := r.Header.Get("Access-Control-Request-Headers")
				if headers == "" {
					headers = "Accept, Content-Type, If-None-Match, X-Request-ID"
				}
				w.Header().Set("Access-Control-Allow-Headers", headers)
				w.Header().Set("Access-Control-Expose-Headers", "ETag, X-Request-ID")
				w.Header().Set("Access-Control-Max-Age", "86400")
				if origin != "*" {
					w.Header().Add("Vary", "Origin")
				}
			}

			if r.Method == http.MethodOptions {
				w.WriteHeader(http.StatusNoContent)
				return
			}
		}

		next.ServeHTTP(w, r)
	})
}

func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		wrapped := &responseWriter{ResponseWriter: w, status: http.StatusOK}

		next.ServeHTTP(wrapped, r)

		level := zap.InfoLevel
		if r.URL.Path == "/health" || r.URL.Path == "/metrics" {
			level = zap.DebugLevel
		}
		if ce := s.logger.Check(level, "request"); ce != nil {
			ce.Write(
				zap.String("method", r.Method),
				zap.String("path", r.URL.Path),
				zap.String("query", r.URL.RawQuery),
				zap.Int("status", wrapped.status),
				zap.Duration("duration", time.Since(start)),
				zap.String("request_id", RequestID(r.Context())),
				zap.String("remote", getClientIP(r)),
			)
		}
	})
}

func (s *Server) recoveryMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if err := recover(); err != nil {
				s.logger.Error("panic in handler",
					zap.Any("panic", err),
					zap.String("path", r.URL.Path),
					zap.String("request_id", RequestID(r.Context())),
					zap.Stack("stack"),
				)
				s.writeError(w, http.StatusInternalServerError, "internal server error", ErrInternal)
			}
		}()

		next.ServeHTTP(w, r)
	})
}

func (s *Server) metricsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		s.requestCount.Add(1)
		s.activeRequests.Add(1)
		s.metrics.inFlight.Inc()
		defer func() {
			s.activeRequests.Add(-1)
			s.metrics.inFlight.Dec()
		}()

		start := time.Now()
		wrapped := &responseWriter{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(wrapped, r)

		// the mux records the matched pattern on the request
		route := r.Pattern
		if route == "" {
			route = "unmatched"
		}
		s.metrics.observe(route, r.Method, wrapped.status, time.Since(start))
	})
}

// =============================================================================
// Ontology Handlers
// =============================================================================

func (s *Server) handleRoot(w http.ResponseWriter, r *http.Request) {
	if s.notModified(w, r) {
		return
	}
	st := s.catalog.Status()
	message := "API de Procesadores funcionando"
	if !st.Loaded {
		message = "API de Procesadores funcionando sin datos: la ontología no pudo cargarse"
	}
	s.writeJSON(w, http.StatusOK, map[string]interface{}{
		"status":       "online",
		"message":      message,
		"triple_count": st.TripleCount,
		"namespace":    st.Namespace,
		"fingerprint":  st.Fingerprint,
	})
}

func (s *Server) handleClasses(w http.ResponseWriter, r *http.Request) {
	if s.notModified(w, r) {
		return
	}
	classes, err := s.catalog.Classes(r.Context())
	if err != nil {
		s.writeCatalogError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]interface{}{"classes": classes})
}

func (s *Server) handleIndividuals(w http.ResponseWriter, r *http.Request) {
	if s.notModified(w, r) {
		return
	}
	listing, err := s.catalog.Individuals(r.Context(), r.URL.Query().Get("clase"))
	if err != nil {
		s.writeCatalogError(w, r, err)
		return
	}

	if len(listing.Names) == 0 && len(listing.Suggestions) > 0 {
		s.writeJSON(w, http.StatusOK, map[string]interface{}{
			"message": fmt.Sprintf(
				"No se encontraron individuos de '%s' con coincidencia exacta, pero estos son similares (revisa el namespace):",
				listing.Class),
			"suggestions": listing.Suggestions,
		})
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]interface{}{
		"count":   len(listing.Names),
		"results": listing.Names,
	})
}

func (s *Server) handleSearch(w http.ResponseWriter, r *http.Request) {
	if s.notModified(w, r) {
		return
	}
	params := r.URL.Query()
	hits, err := s.catalog.Search(r.Context(), params.Get("q"), params.Get("clase"))
	if err != nil {
		s.writeCatalogError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]interface{}{
		"count":   len(hits),
		"results": hits,
	})
}

func (s *Server) handleDetail(w http.ResponseWriter, r *http.Request) {
	name := r.PathValue("name")
	entity, err := s.catalog.Detail(r.Context(), name)
	if err != nil {
		if errors.Is(err, catalog.ErrNotFound) {
			s.writeError(w, http.StatusNotFound,
				fmt.Sprintf("La entidad '%s' no fue encontrada en la ontología.", name), err)
			return
		}
		s.writeCatalogError(w, r, err)
		return
	}
	if s.notModified(w, r) {
		return
	}
	s.writeJSON(w, http.StatusOK, entity)
}

// sparqlRequest is the JSON body accepted by POST /sparql.
type sparqlRequest struct {
	Query string `json:"query"`
}

func (s *Server) handleSPARQL(w http.ResponseWriter, r *http.Request) {
	text, err := s.readQuery(w, r)
	if err != nil {
		s.writeError(w, http.StatusBadRequest, err.Error(), ErrBadRequest)
		return
	}
	if strings.TrimSpace(text) == "" {
		s.writeError(w, http.StatusBadRequest, "missing query", ErrBadRequest)
		return
	}
	if r.Method == http.MethodGet && s.notModified(w, r) {
		return
	}

	res, err := s.catalog.Query(r.Context(), text)
	if err != nil {
		s.writeCatalogError(w, r, err)
		return
	}
	w.Header().Set("Content-Type", "application/sparql-results+json")
	w.WriteHeader(http.StatusOK)
	if err := json.NewEncoder(w).Encode(res); err != nil {
		s.logger.Warn("encoding sparql results", zap.Error(err))
	}
}

// readQuery extracts the query text of a /sparql request. POST accepts a raw
// application/sparql-query body, a form or a JSON object.
func (s *Server) readQuery(w http.ResponseWriter, r *http.Request) (string, error) {
	if r.Method == http.MethodGet {
		return r.URL.Query().Get("query"), nil
	}

	body := http.MaxBytesReader(w, r.Body, s.config.MaxRequestSize)
	ctype, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	switch ctype {
	case "application/x-www-form-urlencoded":
		r.Body = body
		if err := r.ParseForm(); err != nil {
			return "", fmt.Errorf("invalid form: %w", err)
		}
		return r.PostForm.Get("query"), nil
	case "application/json":
		var req sparqlRequest
		if err := json.NewDecoder(body).Decode(&req); err != nil {
			return "", fmt.Errorf("invalid JSON body: %w", err)
		}
		return req.Query, nil
	default:
		data, err := io.ReadAll(body)
		if err != nil {
			return "", fmt.Errorf("reading body: %w", err)
		}
		return string(data), nil
	}
}

// =============================================================================
// Health & Status Handlers
// =============================================================================

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]interface{}{
		"status": "healthy",
		"time":   time.Now().Format(time.RFC3339),
	})
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	stats := s.Stats()

	s.writeJSON(w, http.StatusOK, map[string]interface{}{
		"status":   "running",
		"ontology": s.catalog.Status(),
		"server": map[string]interface{}{
			"uptime_seconds": stats.Uptime.Seconds(),
			"requests":       stats.RequestCount,
			"errors":         stats.ErrorCount,
			"active":         stats.ActiveRequests,
		},
		"cache": s.catalog.CacheStats(),
	})
}

// =============================================================================
// Helpers
// =============================================================================

// notModified sets the ETag of a data response and reports whether the
// client copy is current, in which case 304 has been written.
func (s *Server) notModified(w http.ResponseWriter, r *http.Request) bool {
	fp := s.catalog.Fingerprint()
	if fp == "" {
		return false
	}
	etag := `"` + fp + `"`
	w.Header().Set("ETag", etag)
	w.Header().Set("Cache-Control", "no-cache")

	for _, candidate := range strings.Split(r.Header.Get("If-None-Match"), ",") {
		candidate = strings.TrimPrefix(strings.TrimSpace(candidate), "W/")
		if candidate == etag || candidate == "*" {
			w.WriteHeader(http.StatusNotModified)
			return true
		}
	}
	return false
}

func (s *Server) writeCatalogError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, catalog.ErrNotFound):
		s.writeError(w, http.StatusNotFound, err.Error(), err)
	case errors.Is(err, query.ErrSyntax),
		errors.Is(err, query.ErrUnboundProjection),
		errors.Is(err, query.ErrEmptyPattern):
		s.writeError(w, http.StatusBadRequest, err.Error(), err)
	case errors.Is(err, context.Canceled):
		s.logger.Debug("request canceled", zap.String("path", r.URL.Path))
		s.writeError(w, http.StatusServiceUnavailable, "request canceled", err)
	default:
		s.logger.Error("request failed",
			zap.String("path", r.URL.Path),
			zap.String("request_id", RequestID(r.Context())),
			zap.Error(err),
		)
		s.writeError(w, http.StatusInternalServerError, "internal server error", err)
	}
}

func getClientIP(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		ip, _, _ := strings.Cut(xff, ",")
		return strings.TrimSpace(ip)
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

// responseWriter wraps http.ResponseWriter to capture status code.
type responseWriter struct {
	http.ResponseWriter
	status int
}

func (w *responseWriter) WriteHeader(status int) {
	w.status = status
	w.ResponseWriter.WriteHeader(status)
}

// JSON helpers

func (s *Server) writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.Warn("encoding response", zap.Error(err))
	}
}

func (s *Server) writeError(w http.ResponseWriter, status int, message string, err error) {
	s.errorCount.Add(1)

	response := map[string]interface{}{
		"error":   true,
		"message": message,
		"code":    status,
	}

	s.writeJSON(w, status, response)
}
