// Package adguardtest provides an in-memory AdGuard DNS API for tests.
package adguardtest

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
)

// Entry is a query log row served by the fake provider
type Entry struct {
	Domain          string
	TimeISO         string
	TimeMillis      int64
	FilteringStatus string
	FilterRule      string
	FilterID        string
}

// Request records one call received by the provider
type Request struct {
	Method        string
	Path          string
	Query         string
	Authorization string
	Body          []byte
}

// Provider is a fake AdGuard DNS API. Exported fields may be changed
// between calls; use Lock/Unlock when a test server is serving concurrently.
type Provider struct {
	sync.Mutex

	ServerID     string
	AccessToken  string
	RefreshToken string
	// NextAccessToken is issued by the token endpoint
	NextAccessToken string
	// RotatedRefreshToken, when set, is returned alongside the new token
	RotatedRefreshToken string

	RulesEnabled bool
	Rules        []string
	Entries      []Entry
	PagesTotal   int

	// Status overrides, keyed by "METHOD /path". Consumed one per request.
	Fail map[string][]int

	Requests []Request

	server *httptest.Server
}

// NewProvider starts a fake provider that accepts access token "access-1"
// and refresh token "refresh-1" for server "srv-1".
func NewProvider() *Provider {
	p := &Provider{
		ServerID:        "srv-1",
		AccessToken:     "access-1",
		RefreshToken:    "refresh-1",
		NextAccessToken: "access-2",
		RulesEnabled:    true,
		Rules:           []string{},
		Fail:            map[string][]int{},
	}
	p.server = httptest.NewServer(http.HandlerFunc(p.serveHTTP))
	return p
}

// URL returns the provider's base URL
func (p *Provider) URL() string {
	return p.server.URL
}

// Client returns an HTTP client for the provider
func (p *Provider) Client() *http.Client {
	return p.server.Client()
}

// Close shuts the provider down
func (p *Provider) Close() {
	p.server.Close()
}

// FailNext makes the next len(statuses) requests to "METHOD /path" answer
// with the given statuses in order.
func (p *Provider) FailNext(method, path string, statuses ...int) {
	p.Lock()
	defer p.Unlock()
	key := method + " " + path
	p.Fail[key] = append(p.Fail[key], statuses...)
}

// Count returns how many requests matched method and path
func (p *Provider) Count(method, path string) int {
	p.Lock()
	defer p.Unlock()
	n := 0
	for _, r := range p.Requests {
		if r.Method == method && r.Path == path {
			n++
		}
	}
	return n
}

// Recorded returns a copy of the requests received so far
func (p *Provider) Recorded() []Request {
	p.Lock()
	defer p.Unlock()
	return append([]Request(nil), p.Requests...)
}

// CurrentRules returns a copy of the stored user rules
func (p *Provider) CurrentRules() []string {
	p.Lock()
	defer p.Unlock()
	return append([]string(nil), p.Rules...)
}

// ServerPath returns the DNS server resource path
func (p *Provider) ServerPath() string {
	return "/oapi/v1/dns_servers/" + p.ServerID
}

// SettingsPath returns the DNS server settings resource path
func (p *Provider) SettingsPath() string {
	return p.ServerPath() + "/settings"
}

func (p *Provider) serveHTTP(w http.ResponseWriter, r *http.Request) {
	p.Lock()
	defer p.Unlock()

	body, _ := io.ReadAll(r.Body)
	p.Requests = append(p.Requests, Request{
		Method:        r.Method,
		Path:          r.URL.Path,
		Query:         r.URL.RawQuery,
		Authorization: r.Header.Get("Authorization"),
		Body:          body,
	})

	key := r.Method + " " + r.URL.Path
	if statuses := p.Fail[key]; len(statuses) > 0 {
		p.Fail[key] = statuses[1:]
		w.WriteHeader(statuses[0])
		return
	}

	if r.URL.Path == "/oapi/v1/oauth_token" && r.Method == http.MethodPost {
		p.token(w, body)
		return
	}

	if r.Header.Get("Authorization") != "Bearer "+p.AccessToken {
		w.WriteHeader(http.StatusUnauthorized)
		return
	}

	switch {
	case r.Method == http.MethodGet && r.URL.Path == "/oapi/v1/query_log":
		p.queryLog(w)
	case r.Method == http.MethodGet && r.URL.Path == p.ServerPath():
		p.dnsServer(w)
	case r.Method == http.MethodPut && r.URL.Path == p.SettingsPath():
		p.updateSettings(w, body)
	default:
		http.NotFound(w, r)
	}
}

func (p *Provider) token(w http.ResponseWriter, body []byte) {
	var req struct {
		RefreshToken string `json:"refresh_token"`
	}
	if err := json.Unmarshal(body, &req); err != nil || req.RefreshToken != p.RefreshToken {
		w.WriteHeader(http.StatusBadRequest)
		return
	}

	p.AccessToken = p.NextAccessToken
	resp := map[string]interface{}{
		"access_token": p.AccessToken,
		"expires_in":   3600,
	}
	if p.RotatedRefreshToken != "" {
		p.RefreshToken = p.RotatedRefreshToken
		resp["refresh_token"] = p.RotatedRefreshToken
	}
	writeJSON(w, resp)
}

func (p *Provider) queryLog(w http.ResponseWriter) {
	items := make([]map[string]interface{}, 0, len(p.Entries))
	for _, e := range p.Entries {
		info := map[string]interface{}{"filtering_status": e.FilteringStatus}
		if e.FilterRule != "" {
			info["filter_rule"] = e.FilterRule
		}
		if e.FilterID != "" {
			info["filter_id"] = e.FilterID
		}
		items = append(items, map[string]interface{}{
			"domain":         e.Domain,
			"time_iso":       e.TimeISO,
			"time_millis":    e.TimeMillis,
			"filtering_info": info,
		})
	}

	total := p.PagesTotal
	if total == 0 {
		total = 1
	}
	writeJSON(w, map[string]interface{}{
		"items": items,
		"pages": map[string]int{"current": 1, "total": total},
	})
}

func (p *Provider) dnsServer(w http.ResponseWriter) {
	writeJSON(w, map[string]interface{}{
		"id":   p.ServerID,
		"name": "Home",
		"settings": map[string]interface{}{
			"user_rules_settings": map[string]interface{}{
				"enabled":     p.RulesEnabled,
				"rules":       p.Rules,
				"rules_count": len(p.Rules),
			},
		},
	})
}

func (p *Provider) updateSettings(w http.ResponseWriter, body []byte) {
	var req struct {
		UserRulesSettings struct {
			Enabled bool     `json:"enabled"`
			Rules   []string `json:"rules"`
		} `json:"user_rules_settings"`
	}
	if err := json.Unmarshal(body, &req); err != nil {
		w.WriteHeader(http.StatusBadRequest)
		return
	}
	p.RulesEnabled = req.UserRulesSettings.Enabled
	p.Rules = req.UserRulesSettings.Rules
	w.WriteHeader(http.StatusNoContent)
}

func writeJSON(w http.ResponseWriter, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(v)
}
