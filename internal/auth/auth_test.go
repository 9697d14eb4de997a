package auth

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"dnsmedic/internal/config"
)

func TestCredentialStore(t *testing.T) {
	t.Run("MissingAccessToken", func(t *testing.T) {
		s := NewCredentialStore("", "refresh")
		_, err := s.AccessToken()
		var cfgErr *config.ConfigurationError
		if !errors.As(err, &cfgErr) {
			t.Fatalf("Expected ConfigurationError, got %v", err)
		}
		if cfgErr.Field != "adguard.accessToken" {
			t.Errorf("Field = %q", cfgErr.Field)
		}
	})

	t.Run("MissingRefreshToken", func(t *testing.T) {
		s := NewCredentialStore("access", "")
		_, err := s.RefreshToken()
		var cfgErr *config.ConfigurationError
		if !errors.As(err, &cfgErr) {
			t.Fatalf("Expected ConfigurationError, got %v", err)
		}
	})

	t.Run("SetTokens", func(t *testing.T) {
		s := NewCredentialStore("a1", "r1")
		s.SetAccessToken("a2")
		s.SetRefreshToken("")
		s.SetRefreshToken("r2")

		got := s.Snapshot()
		if got.AccessToken != "a2" || got.RefreshToken != "r2" {
			t.Errorf("Snapshot = %+v, want a2/r2", got)
		}
	})
}

func newTokenServer(t *testing.T, handler func(w http.ResponseWriter, req tokenRequest)) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != TokenPath || r.Method != http.MethodPost {
			t.Errorf("Unexpected request %s %s", r.Method, r.URL.Path)
			http.NotFound(w, r)
			return
		}
		var req tokenRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("Invalid token request body: %v", err)
		}
		handler(w, req)
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestRefresher(t *testing.T) {
	t.Run("Success", func(t *testing.T) {
		srv := newTokenServer(t, func(w http.ResponseWriter, req tokenRequest) {
			if req.RefreshToken != "r1" {
				t.Errorf("refresh_token = %q, want r1", req.RefreshToken)
			}
			json.NewEncoder(w).Encode(tokenResponse{AccessToken: "a2"})
		})

		store := NewCredentialStore("a1", "r1")
		r := NewRefresher(store, srv.Client(), srv.URL)

		token, err := r.Refresh(context.Background())
		if err != nil {
			t.Fatalf("Refresh failed: %v", err)
		}
		if token != "a2" {
			t.Errorf("token = %q, want a2", token)
		}
		if got := store.Snapshot(); got.AccessToken != "a2" || got.RefreshToken != "r1" {
			t.Errorf("Store = %+v, want a2/r1", got)
		}
	})

	t.Run("RotatedRefreshTokenIsKept", func(t *testing.T) {
		srv := newTokenServer(t, func(w http.ResponseWriter, req tokenRequest) {
			json.NewEncoder(w).Encode(tokenResponse{AccessToken: "a2", RefreshToken: "r2"})
		})

		store := NewCredentialStore("a1", "r1")
		if _, err := NewRefresher(store, srv.Client(), srv.URL).Refresh(context.Background()); err != nil {
			t.Fatalf("Refresh failed: %v", err)
		}
		if got := store.Snapshot().RefreshToken; got != "r2" {
			t.Errorf("RefreshToken = %q, want r2", got)
		}
	})

	t.Run("Rejected", func(t *testing.T) {
		srv := newTokenServer(t, func(w http.ResponseWriter, req tokenRequest) {
			w.WriteHeader(http.StatusBadRequest)
		})

		store := NewCredentialStore("a1", "r1")
		_, err := NewRefresher(store, srv.Client(), srv.URL).Refresh(context.Background())

		var refreshErr *RefreshError
		if !errors.As(err, &refreshErr) {
			t.Fatalf("Expected RefreshError, got %v", err)
		}
		if refreshErr.Status != http.StatusBadRequest {
			t.Errorf("Status = %d, want 400", refreshErr.Status)
		}
		if store.Snapshot().AccessToken != "a1" {
			t.Error("Access token changed after a rejected refresh")
		}
	})

	t.Run("MissingAccessTokenInResponse", func(t *testing.T) {
		srv := newTokenServer(t, func(w http.ResponseWriter, req tokenRequest) {
			w.Write([]byte(`{}`))
		})

		_, err := NewRefresher(NewCredentialStore("a1", "r1"), srv.Client(), srv.URL).Refresh(context.Background())
		var refreshErr *RefreshError
		if !errors.As(err, &refreshErr) {
			t.Fatalf("Expected RefreshError, got %v", err)
		}
	})

	t.Run("MissingRefreshToken", func(t *testing.T) {
		var calls atomic.Int32
		srv := newTokenServer(t, func(w http.ResponseWriter, req tokenRequest) {
			calls.Add(1)
		})

		_, err := NewRefresher(NewCredentialStore("a1", ""), srv.Client(), srv.URL).Refresh(context.Background())
		var cfgErr *config.ConfigurationError
		if !errors.As(err, &cfgErr) {
			t.Fatalf("Expected ConfigurationError, got %v", err)
		}
		if calls.Load() != 0 {
			t.Error("Token endpoint called without a refresh token")
		}
	})
}

func TestRefreshFromCoalesces(t *testing.T) {
	var calls atomic.Int32
	release := make(chan struct{})
	srv := newTokenServer(t, func(w http.ResponseWriter, req tokenRequest) {
		calls.Add(1)
		<-release
		json.NewEncoder(w).Encode(tokenResponse{AccessToken: "fresh"})
	})

	store := NewCredentialStore("stale", "r1")
	r := NewRefresher(store, srv.Client(), srv.URL)

	const workers = 8
	var wg sync.WaitGroup
	tokens := make([]string, workers)
	errs := make([]error, workers)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			tokens[i], errs[i] = r.RefreshFrom(context.Background(), "stale")
		}(i)
	}

	time.Sleep(50 * time.Millisecond)
	close(release)
	wg.Wait()

	if n := calls.Load(); n != 1 {
		t.Errorf("Token endpoint called %d times, want 1", n)
	}
	for i := 0; i < workers; i++ {
		if errs[i] != nil {
			t.Errorf("worker %d: %v", i, errs[i])
		}
		if tokens[i] != "fresh" {
			t.Errorf("worker %d token = %q, want fresh", i, tokens[i])
		}
	}
}

func TestRefreshFromSkipsWhenAlreadyRefreshed(t *testing.T) {
	var calls atomic.Int32
	srv := newTokenServer(t, func(w http.ResponseWriter, req tokenRequest) {
		calls.Add(1)
	})

	store := NewCredentialStore("newer", "r1")
	token, err := NewRefresher(store, srv.Client(), srv.URL).RefreshFrom(context.Background(), "older")
	if err != nil {
		t.Fatalf("RefreshFrom failed: %v", err)
	}
	if token != "newer" {
		t.Errorf("token = %q, want newer", token)
	}
	if calls.Load() != 0 {
		t.Error("Token endpoint called although the token had already changed")
	}
}
