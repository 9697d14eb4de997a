// Package api serves the AdGuard DNS operations over a loopback HTTP API so
// that scripts and dashboards can use them without an MCP client.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"sync"
	"time"

	"dnsmedic/internal/adguard"
	"dnsmedic/internal/auth"
	"dnsmedic/internal/config"
	"dnsmedic/internal/metrics"
	"dnsmedic/internal/rules"
	"dnsmedic/internal/utils"

	"github.com/sirupsen/logrus"
)

// AdGuard is the client surface served by the API
type AdGuard interface {
	FetchBlocked(ctx context.Context, minutes int) (*adguard.BlockedResult, error)
	Unblock(ctx context.Context, domains []string) (*adguard.UnblockResult, error)
}

type Server struct {
	client      AdGuard
	tokens      *APITokenManager
	rateLimiter *RateLimiter
	mu          sync.Mutex
	server      *http.Server
	version     string
	startTime   time.Time
}

type Health struct {
	Healthy bool   `json:"healthy"`
	Version string `json:"version"`
	Uptime  string `json:"uptime"`
}

type UnblockRequest struct {
	Domains []string `json:"domains"`
}

type errorResponse struct {
	Error string `json:"error"`
}

func NewServer(client AdGuard, tokens *APITokenManager, cfg config.APIConfig, version string) *Server {
	limit := cfg.RateLimit
	if limit <= 0 {
		limit = 60
	}
	return &Server{
		client:      client,
		tokens:      tokens,
		rateLimiter: NewRateLimiter(limit, time.Minute),
		version:     version,
		startTime:   time.Now(),
	}
}

// Handler returns the API routes
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	rl := s.rateLimiter.RateLimitMiddleware

	mux.HandleFunc("GET /api/health", rl(s.handleHealth))
	mux.Handle("GET /metrics", metrics.Handler())

	mux.HandleFunc("GET /api/query-log", rl(s.tokens.AuthMiddleware(s.handleQueryLog)))
	mux.HandleFunc("POST /api/unblock", rl(s.tokens.AuthMiddleware(s.handleUnblock)))

	return mux
}

// Start listens on 127.0.0.1:port until Stop is called
func (s *Server) Start(port int) error {
	srv := &http.Server{
		Addr:              fmt.Sprintf("127.0.0.1:%d", port),
		Handler:           s.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       10 * time.Second,
		// upstream calls may retry and refresh before answering
		WriteTimeout: 90 * time.Second,
	}

	s.mu.Lock()
	s.server = srv
	s.mu.Unlock()

	logrus.Infof("Starting API server on port %d", port)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *Server) Stop(ctx context.Context) error {
	s.mu.Lock()
	srv := s.server
	s.mu.Unlock()

	if srv != nil {
		return srv.Shutdown(ctx)
	}
	return nil
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, Health{
		Healthy: true,
		Version: s.version,
		Uptime:  time.Since(s.startTime).Round(time.Second).String(),
	})
}

func (s *Server) handleQueryLog(w http.ResponseWriter, r *http.Request) {
	minutes := adguard.DefaultWindowMinutes
	if v := r.URL.Query().Get("minutes"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			writeError(w, http.StatusBadRequest, "minutes must be an integer")
			return
		}
		if err := adguard.ValidateWindow(n); err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		minutes = n
	}

	res, err := s.client.FetchBlocked(r.Context(), minutes)
	if err != nil {
		s.writeUpstreamError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (s *Server) handleUnblock(w http.ResponseWriter, r *http.Request) {
	var req UnblockRequest
	if err := json.NewDecoder(utils.LimitedReader(r.Body, utils.MaxHTTPBodySize)).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if len(req.Domains) == 0 {
		writeError(w, http.StatusBadRequest, "domains must not be empty")
		return
	}
	if len(req.Domains) > utils.MaxDomainsPerRequest {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("at most %d domains per request", utils.MaxDomainsPerRequest))
		return
	}

	res, err := s.client.Unblock(r.Context(), req.Domains)
	if err != nil {
		s.writeUpstreamError(w, r, err)
		return
	}

	logrus.WithFields(logrus.Fields{
		"remote":      r.RemoteAddr,
		"rules_added": res.RulesAdded,
	}).Info("Unblock request served")
	writeJSON(w, http.StatusOK, res)
}

// writeUpstreamError maps client errors onto HTTP statuses
func (s *Server) writeUpstreamError(w http.ResponseWriter, r *http.Request, err error) {
	var (
		invalid    *rules.InvalidDomainError
		cfgErr     *config.ConfigurationError
		refreshErr *auth.RefreshError
		upstream   *adguard.UpstreamHTTPError
	)

	status := http.StatusInternalServerError
	switch {
	case errors.As(err, &invalid):
		status = http.StatusBadRequest
	case errors.As(err, &cfgErr):
		status = http.StatusServiceUnavailable
	case errors.As(err, &refreshErr), errors.As(err, &upstream):
		status = http.StatusBadGateway
	case errors.Is(err, context.DeadlineExceeded):
		status = http.StatusGatewayTimeout
	}

	logrus.WithError(err).WithField("path", r.URL.Path).Warn("API request failed")
	writeError(w, status, err.Error())
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, errorResponse{Error: msg})
}
