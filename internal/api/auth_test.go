package api

import (
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestAPITokenManager(t *testing.T) {
	tokenPath := filepath.Join(t.TempDir(), ".dnsmedic", apiTokenFileName)
	atm := NewAPITokenManager(tokenPath)

	t.Run("MissingToken", func(t *testing.T) {
		if err := NewAPITokenManager(tokenPath).LoadToken(); err == nil {
			t.Error("Expected error when no token file exists")
		}
	})

	t.Run("GenerateToken", func(t *testing.T) {
		token, err := atm.GenerateToken()
		if err != nil {
			t.Fatalf("Failed to generate token: %v", err)
		}
		if len(token) != apiTokenLength*2 {
			t.Errorf("Token length incorrect: got %d, want %d", len(token), apiTokenLength*2)
		}

		info, err := os.Stat(tokenPath)
		if err != nil {
			t.Fatalf("Failed to stat token file: %v", err)
		}
		if info.Mode().Perm() != 0600 {
			t.Errorf("Token file has incorrect permissions: %v", info.Mode().Perm())
		}
	})

	t.Run("LoadToken", func(t *testing.T) {
		atm2 := NewAPITokenManager(tokenPath)
		token, err := atm2.Token()
		if err != nil {
			t.Fatalf("Failed to load token: %v", err)
		}
		want, _ := atm.Token()
		if token != want {
			t.Errorf("Loaded token %q, want %q", token, want)
		}
	})

	t.Run("ValidateToken", func(t *testing.T) {
		token, err := atm.GenerateToken()
		if err != nil {
			t.Fatalf("Failed to generate token: %v", err)
		}
		if !atm.ValidateToken(token) {
			t.Error("Valid token rejected")
		}
		if atm.ValidateToken("invalid-token") {
			t.Error("Invalid token accepted")
		}
		if atm.ValidateToken("") {
			t.Error("Empty token accepted")
		}
	})
}

func TestAuthMiddleware(t *testing.T) {
	atm := NewAPITokenManager(filepath.Join(t.TempDir(), apiTokenFileName))
	token, err := atm.GenerateToken()
	if err != nil {
		t.Fatalf("Failed to generate token: %v", err)
	}

	protectedHandler := atm.AuthMiddleware(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("Success"))
	})

	tests := []struct {
		name   string
		header string
		want   int
	}{
		{"NoAuthHeader", "", http.StatusUnauthorized},
		{"InvalidAuthFormat", "Basic dGVzdDp0ZXN0", http.StatusUnauthorized},
		{"InvalidToken", "Bearer invalid-token", http.StatusUnauthorized},
		{"ValidToken", "Bearer " + token, http.StatusOK},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest("GET", "/api/query-log", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			rec := httptest.NewRecorder()

			protectedHandler(rec, req)

			if rec.Code != tt.want {
				t.Errorf("Expected status %d, got %d", tt.want, rec.Code)
			}
			if tt.want == http.StatusUnauthorized && rec.Header().Get("WWW-Authenticate") != "Bearer" {
				t.Error("Missing WWW-Authenticate header")
			}
		})
	}
}

func TestRateLimiter(t *testing.T) {
	rl := NewRateLimiter(3, time.Second)
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	rl.now = func() time.Time { return now }

	limitedHandler := rl.RateLimitMiddleware(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	do := func(remote string) int {
		req := httptest.NewRequest("GET", "/api/health", nil)
		req.RemoteAddr = remote
		rec := httptest.NewRecorder()
		limitedHandler(rec, req)
		return rec.Code
	}

	t.Run("WithinLimit", func(t *testing.T) {
		for i := 0; i < 3; i++ {
			if code := do("127.0.0.1:12345"); code != http.StatusOK {
				t.Errorf("Request %d: Expected status %d, got %d", i+1, http.StatusOK, code)
			}
		}
	})

	t.Run("ExceedsLimitAcrossPorts", func(t *testing.T) {
		if code := do("127.0.0.1:23456"); code != http.StatusTooManyRequests {
			t.Errorf("Expected status %d, got %d", http.StatusTooManyRequests, code)
		}
	})

	t.Run("DifferentClient", func(t *testing.T) {
		if code := do("127.0.0.2:12345"); code != http.StatusOK {
			t.Errorf("Expected status %d, got %d", http.StatusOK, code)
		}
	})

	t.Run("WindowExpires", func(t *testing.T) {
		now = now.Add(2 * time.Second)
		if code := do("127.0.0.1:12345"); code != http.StatusOK {
			t.Errorf("Expected status %d after window, got %d", http.StatusOK, code)
		}
	})
}
