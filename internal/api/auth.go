package api

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/hex"
	"fmt"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"
)

const (
	apiTokenFileName = "api_token"
	apiTokenLength   = 32 // 256 bits
	bearerPrefix     = "Bearer "
)

// DefaultTokenPath returns ~/.dnsmedic/api_token
func DefaultTokenPath() string {
	homeDir, _ := os.UserHomeDir()
	return filepath.Join(homeDir, ".dnsmedic", apiTokenFileName)
}

// APITokenManager manages the bearer token protecting the local HTTP API.
// It is unrelated to the AdGuard DNS access token.
type APITokenManager struct {
	mu        sync.RWMutex
	tokenPath string
	token     string
	loaded    bool
}

// NewAPITokenManager creates a token manager backed by the file at path
func NewAPITokenManager(path string) *APITokenManager {
	if path == "" {
		path = DefaultTokenPath()
	}
	return &APITokenManager{tokenPath: path}
}

// Path returns the token file location
func (atm *APITokenManager) Path() string {
	return atm.tokenPath
}

// GenerateToken creates a new token and writes it with owner-only permissions
func (atm *APITokenManager) GenerateToken() (string, error) {
	if err := os.MkdirAll(filepath.Dir(atm.tokenPath), 0700); err != nil {
		return "", fmt.Errorf("failed to create token directory: %w", err)
	}

	tokenBytes := make([]byte, apiTokenLength)
	if _, err := rand.Read(tokenBytes); err != nil {
		return "", fmt.Errorf("failed to generate token: %w", err)
	}
	token := hex.EncodeToString(tokenBytes)

	if err := os.WriteFile(atm.tokenPath, []byte(token), 0600); err != nil {
		return "", fmt.Errorf("failed to write token: %w", err)
	}

	atm.mu.Lock()
	atm.token = token
	atm.loaded = true
	atm.mu.Unlock()

	return token, nil
}

// LoadToken reads the token from disk once
func (atm *APITokenManager) LoadToken() error {
	atm.mu.Lock()
	defer atm.mu.Unlock()

	if atm.loaded {
		return nil
	}

	tokenBytes, err := os.ReadFile(atm.tokenPath)
	if err != nil {
		if os.IsNotExist(err) {
			return fmt.Errorf("no API token found. Generate one with 'dnsmedic api-token generate'")
		}
		return fmt.Errorf("failed to read token: %w", err)
	}

	atm.token = strings.TrimSpace(string(tokenBytes))
	atm.loaded = true
	return nil
}

// Token returns the loaded token
func (atm *APITokenManager) Token() (string, error) {
	if err := atm.LoadToken(); err != nil {
		return "", err
	}
	atm.mu.RLock()
	defer atm.mu.RUnlock()
	return atm.token, nil
}

// ValidateToken compares in constant time
func (atm *APITokenManager) ValidateToken(providedToken string) bool {
	atm.mu.RLock()
	defer atm.mu.RUnlock()

	if !atm.loaded || atm.token == "" || providedToken == "" {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(providedToken), []byte(atm.token)) == 1
}

// AuthMiddleware rejects requests without a valid bearer token
func (atm *APITokenManager) AuthMiddleware(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := atm.LoadToken(); err != nil {
			writeError(w, http.StatusInternalServerError, "Authentication not configured")
			return
		}

		authHeader := r.Header.Get("Authorization")
		if authHeader == "" {
			w.Header().Set("WWW-Authenticate", "Bearer")
			writeError(w, http.StatusUnauthorized, "Missing Authorization header")
			return
		}
		if !strings.HasPrefix(authHeader, bearerPrefix) {
			w.Header().Set("WWW-Authenticate", "Bearer")
			writeError(w, http.StatusUnauthorized, "Invalid Authorization format")
			return
		}
		if !atm.ValidateToken(strings.TrimPrefix(authHeader, bearerPrefix)) {
			w.Header().Set("WWW-Authenticate", "Bearer")
			writeError(w, http.StatusUnauthorized, "Invalid token")
			return
		}

		next(w, r)
	}
}

// RateLimiter is a sliding-window limiter keyed by client address
type RateLimiter struct {
	mu       sync.Mutex
	requests map[string][]time.Time
	limit    int
	window   time.Duration
	now      func() time.Time
}

func NewRateLimiter(limit int, window time.Duration) *RateLimiter {
	return &RateLimiter{
		requests: make(map[string][]time.Time),
		limit:    limit,
		window:   window,
		now:      time.Now,
	}
}

// Allow records a request from client and reports whether it is within the limit
func (rl *RateLimiter) Allow(client string) bool {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := rl.now()
	valid := rl.requests[client][:0]
	for _, t := range rl.requests[client] {
		if now.Sub(t) < rl.window {
			valid = append(valid, t)
		}
	}

	if len(valid) >= rl.limit {
		rl.requests[client] = valid
		return false
	}
	rl.requests[client] = append(valid, now)
	return true
}

// RateLimitMiddleware answers 429 once a client exceeds the limit.
// The API listens on loopback only, so forwarding headers are ignored.
func (rl *RateLimiter) RateLimitMiddleware(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		client := r.RemoteAddr
		if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil {
			client = host
		}

		if !rl.Allow(client) {
			writeError(w, http.StatusTooManyRequests, "Rate limit exceeded")
			return
		}
		next(w, r)
	}
}
