// Package api provides the HTTP server for swarmd.
// It upgrades signaling connections to WebSocket, redirects every other
// browser request, and exposes status and metrics endpoints.
package api

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/zlx-network/swarmd/internal/domain"
	"github.com/zlx-network/swarmd/internal/health"
	"github.com/zlx-network/swarmd/internal/signaling"
)

// Config holds the handshake and transport settings.
type Config struct {
	// RedirectURL receives every non-WebSocket request.
	RedirectURL string
	// AccessKeyLength is the exact length a tenant key must have.
	AccessKeyLength int
	// KeyQueryParam names the upgrade URL parameter that may carry the key
	// when no subprotocol is offered.
	KeyQueryParam string
	// ReadLimit caps inbound frame size in bytes.
	ReadLimit int64
	// WriteTimeout bounds each frame and ping write.
	WriteTimeout time.Duration
	Version      string
}

// DefaultConfig returns the production defaults.
func DefaultConfig() Config {
	return Config{
		RedirectURL:     "https://zelexis.com/",
		AccessKeyLength: 5,
		KeyQueryParam:   "key",
		ReadLimit:       64 * 1024,
		WriteTimeout:    10 * time.Second,
		Version:         "dev",
	}
}

// HealthReporter is satisfied by health.Checker.
type HealthReporter interface {
	Statuses() []health.Status
	IsHealthy() bool
}

// HistoryReader is satisfied by sqlite.History.
type HistoryReader interface {
	Recent(domainKey string, limit int) ([]domain.SessionInfo, error)
}

// Server is the swarmd HTTP server.
type Server struct {
	hub            *signaling.Hub
	cfg            Config
	upgrader       websocket.Upgrader
	startedAt      time.Time
	metricsEnabled bool
	health         HealthReporter // nil if health checks are off
	history        HistoryReader  // nil if the ledger is disabled
}

// NewServer creates a new API server.
func NewServer(hub *signaling.Hub, cfg Config) *Server {
	def := DefaultConfig()
	if cfg.AccessKeyLength <= 0 {
		cfg.AccessKeyLength = def.AccessKeyLength
	}
	if cfg.KeyQueryParam == "" {
		cfg.KeyQueryParam = def.KeyQueryParam
	}
	if cfg.ReadLimit <= 0 {
		cfg.ReadLimit = def.ReadLimit
	}
	if cfg.WriteTimeout <= 0 {
		cfg.WriteTimeout = def.WriteTimeout
	}
	if cfg.RedirectURL == "" {
		cfg.RedirectURL = def.RedirectURL
	}
	return &Server{
		hub:       hub,
		cfg:       cfg,
		startedAt: time.Now(),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			// Peers connect from arbitrary customer pages.
			CheckOrigin: func(r *http.Request) bool { return true },
		},
	}
}

// EnableMetrics enables the /metrics Prometheus endpoint.
func (s *Server) EnableMetrics() { s.metricsEnabled = true }

// SetHealth sets the checker reported by /health.
func (s *Server) SetHealth(h HealthReporter) { s.health = h }

// SetHistory sets the session ledger served by /api/history.
func (s *Server) SetHistory(h HistoryReader) { s.history = h }

// Handler returns the chi router with all routes mounted.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()

	// No Timeout middleware: signaling connections are long-lived.
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)

	r.Get("/health", s.handleHealth)

	r.Route("/api", func(r chi.Router) {
		r.Get("/status", s.handleStatus)
		r.Get("/swarms", s.handleSwarms)
		r.Get("/sessions", s.handleSessions)
		r.Get("/history", s.handleHistory)
	})

	if s.metricsEnabled {
		r.Handle("/metrics", promhttp.Handler())
	}

	// Signaling upgrades may arrive on any path.
	r.HandleFunc("/*", s.handleRoot)

	return r
}

// StatusResponse is the body of GET /api/status.
type StatusResponse struct {
	Status        string          `json:"status"`
	Version       string          `json:"version"`
	StartedAt     time.Time       `json:"started_at"`
	UptimeSeconds int64           `json:"uptime_seconds"`
	Healthy       bool            `json:"healthy"`
	Stats         signaling.Stats `json:"stats"`
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	healthy := s.health == nil || s.health.IsHealthy()
	writeJSON(w, http.StatusOK, StatusResponse{
		Status:        "swarmd is running",
		Version:       s.cfg.Version,
		StartedAt:     s.startedAt,
		UptimeSeconds: int64(time.Since(s.startedAt).Seconds()),
		Healthy:       healthy,
		Stats:         s.hub.Stats(),
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if s.health == nil {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
		return
	}
	status, code := "ok", http.StatusOK
	if !s.health.IsHealthy() {
		status, code = "degraded", http.StatusServiceUnavailable
	}
	writeJSON(w, code, map[string]any{
		"status": status,
		"checks": s.health.Statuses(),
	})
}

// tenant returns the domain named by the request. Per-tenant endpoints are
// only answered for a caller that already holds that tenant's access key.
func (s *Server) tenant(w http.ResponseWriter, r *http.Request) (string, bool) {
	domainKey := r.URL.Query().Get("domain")
	if domainKey == "" {
		writeError(w, http.StatusBadRequest, "domain is required")
		return "", false
	}
	if err := s.checkAccessKey(domainKey); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return "", false
	}
	return domainKey, true
}

func (s *Server) handleSwarms(w http.ResponseWriter, r *http.Request) {
	domainKey, ok := s.tenant(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"domain": domainKey,
		"swarms": s.hub.Directory().Swarms(domainKey),
	})
}

func (s *Server) handleSessions(w http.ResponseWriter, r *http.Request) {
	domainKey, ok := s.tenant(w, r)
	if !ok {
		return
	}
	sessions := make([]domain.SessionInfo, 0)
	for _, info := range s.hub.Sessions() {
		if info.Domain == domainKey {
			sessions = append(sessions, info)
		}
	}
	writeJSON(w, http.StatusOK, map[string]any{"sessions": sessions})
}

func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	if s.history == nil {
		writeError(w, http.StatusNotFound, "session history is disabled")
		return
	}
	domainKey, ok := s.tenant(w, r)
	if !ok {
		return
	}
	limit := 50
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			writeError(w, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
		limit = n
	}
	sessions, err := s.history.Recent(domainKey, limit)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if sessions == nil {
		sessions = []domain.SessionInfo{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"sessions": sessions})
}

// writeJSON writes a JSON response.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// writeError writes a JSON error response.
func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]any{
		"error": map[string]any{
			"message": msg,
			"type":    "error",
		},
	})
}
