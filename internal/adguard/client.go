// Package adguard is a client for the AdGuard DNS API. It reads the DNS query
// log to find blocked domains and adds whitelist rules to a server's
// user-rules configuration. Every call is authenticated with a bearer token
// that is refreshed once when the API answers 401.
package adguard

import (
	"net/http"
	"strings"
	"sync"
	"time"

	"dnsmedic/internal/auth"
	"dnsmedic/internal/config"
)

const (
	QueryLogPath       = "/oapi/v1/query_log"
	DNSServersPath     = "/oapi/v1/dns_servers/"
	serverSettingsPath = "/settings"

	// DefaultWindowMinutes is the query log window used when none is given
	DefaultWindowMinutes = 10
	// MaxWindowMinutes bounds the query log window callers may ask for
	MaxWindowMinutes = 24 * 60
)

// Options configures a Client
type Options struct {
	BaseURL       string
	ServerID      string
	HTTPClient    *http.Client
	QueryLogLimit int
	Retry         RetryPolicy
	// Now is used to compute query log windows; defaults to time.Now
	Now func() time.Time
}

// Client talks to the AdGuard DNS API on behalf of a single account
type Client struct {
	baseURL    string
	serverID   string
	httpClient *http.Client
	store      *auth.CredentialStore
	refresher  *auth.Refresher
	limit      int
	retry      RetryPolicy
	now        func() time.Time

	// serializes read-modify-write cycles on the filtering configuration
	mutateMu sync.Mutex
}

// New creates a client that reads and refreshes tokens through store
func New(store *auth.CredentialStore, opts Options) (*Client, error) {
	if opts.BaseURL == "" {
		return nil, config.Missing("adguard.baseURL")
	}

	httpClient := opts.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 30 * time.Second}
	}

	limit := opts.QueryLogLimit
	if limit <= 0 {
		limit = config.DefaultQueryLogLimit
	}
	if limit > config.MaxQueryLogLimit {
		limit = config.MaxQueryLogLimit
	}

	now := opts.Now
	if now == nil {
		now = time.Now
	}

	baseURL := strings.TrimSuffix(opts.BaseURL, "/")
	return &Client{
		baseURL:    baseURL,
		serverID:   opts.ServerID,
		httpClient: httpClient,
		store:      store,
		refresher:  auth.NewRefresher(store, httpClient, baseURL),
		limit:      limit,
		retry:      opts.Retry,
		now:        now,
	}, nil
}

// NewFromConfig builds a client and its credential store from loaded configuration
func NewFromConfig(cfg *config.Config) (*Client, error) {
	creds := config.GetAdGuardCredentials(&cfg.AdGuard)
	store := auth.NewCredentialStore(creds.AccessToken, creds.RefreshToken)

	return New(store, Options{
		BaseURL:       cfg.AdGuard.BaseURL,
		ServerID:      cfg.AdGuard.ServerID,
		HTTPClient:    &http.Client{Timeout: cfg.AdGuard.Timeout},
		QueryLogLimit: cfg.AdGuard.QueryLogLimit,
		Retry: RetryPolicy{
			MaxRetries: cfg.AdGuard.Retry.MaxRetries,
			BaseDelay:  cfg.AdGuard.Retry.BaseDelay,
			MaxDelay:   cfg.AdGuard.Retry.MaxDelay,
		},
	})
}

// Refresher returns the token refresher used by the client
func (c *Client) Refresher() *auth.Refresher {
	return c.refresher
}

// ServerID returns the DNS server whose configuration is mutated
func (c *Client) ServerID() string {
	return c.serverID
}

// Credentials returns a snapshot of the tokens currently in use
func (c *Client) Credentials() auth.Credentials {
	return c.store.Snapshot()
}
