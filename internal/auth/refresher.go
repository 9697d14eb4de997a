package auth

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"dnsmedic/internal/audit"
	"dnsmedic/internal/metrics"
	"dnsmedic/internal/utils"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/singleflight"
)

// TokenPath is the provider's token exchange endpoint
const TokenPath = "/oapi/v1/oauth_token"

// RefreshError reports a rejected or failed token exchange. It is terminal
// for the request that triggered it.
type RefreshError struct {
	Status     int
	StatusText string
	// TriggerStatus is the status of the request that caused the refresh,
	// normally 401. Zero when Refresh was called directly.
	TriggerStatus int
	Err           error
}

func (e *RefreshError) Error() string {
	var b strings.Builder
	b.WriteString("token refresh failed")
	if e.Status != 0 {
		fmt.Fprintf(&b, ": %d %s", e.Status, e.StatusText)
	}
	if e.Err != nil {
		fmt.Fprintf(&b, ": %v", e.Err)
	}
	if e.TriggerStatus != 0 {
		fmt.Fprintf(&b, " (after HTTP %d from API)", e.TriggerStatus)
	}
	return b.String()
}

func (e *RefreshError) Unwrap() error {
	return e.Err
}

type tokenRequest struct {
	RefreshToken string `json:"refresh_token"`
}

type tokenResponse struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token,omitempty"`
	ExpiresIn    int64  `json:"expires_in,omitempty"`
}

// Refresher exchanges the refresh token for a new access token and writes
// the result to the CredentialStore. Concurrent refreshes share one exchange.
type Refresher struct {
	store      *CredentialStore
	httpClient *http.Client
	tokenURL   string
	group      singleflight.Group
}

// NewRefresher creates a refresher for the API rooted at baseURL
func NewRefresher(store *CredentialStore, httpClient *http.Client, baseURL string) *Refresher {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	return &Refresher{
		store:      store,
		httpClient: httpClient,
		tokenURL:   strings.TrimSuffix(baseURL, "/") + TokenPath,
	}
}

// Refresh performs a token exchange and returns the new access token
func (r *Refresher) Refresh(ctx context.Context) (string, error) {
	return r.refresh(ctx, "")
}

// RefreshFrom refreshes unless the stored access token has already moved on
// from stale, in which case the newer token is returned without an exchange.
// Callers pass the token their failed request was sent with.
func (r *Refresher) RefreshFrom(ctx context.Context, stale string) (string, error) {
	return r.refresh(ctx, stale)
}

func (r *Refresher) refresh(ctx context.Context, stale string) (string, error) {
	if stale != "" {
		if current := r.store.Snapshot().AccessToken; current != "" && current != stale {
			logrus.Debug("Access token already refreshed by a concurrent request")
			return current, nil
		}
	}

	// The exchange outlives any single waiter's cancellation
	exchangeCtx := context.WithoutCancel(ctx)
	ch := r.group.DoChan("refresh", func() (interface{}, error) {
		return r.exchange(exchangeCtx)
	})

	select {
	case <-ctx.Done():
		return "", ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return "", res.Err
		}
		return res.Val.(string), nil
	}
}

func (r *Refresher) exchange(ctx context.Context) (string, error) {
	refreshToken, err := r.store.RefreshToken()
	if err != nil {
		return "", err
	}

	body, err := json.Marshal(tokenRequest{RefreshToken: refreshToken})
	if err != nil {
		return "", fmt.Errorf("failed to encode token request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, r.tokenURL, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("failed to build token request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	resp, err := r.httpClient.Do(req)
	if err != nil {
		metrics.TokenRefreshes.WithLabelValues("error").Inc()
		return "", &RefreshError{Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		metrics.TokenRefreshes.WithLabelValues("rejected").Inc()
		audit.LogTokenRefresh(false, resp.StatusCode, false)
		return "", &RefreshError{Status: resp.StatusCode, StatusText: http.StatusText(resp.StatusCode)}
	}

	data, err := utils.ReadAllLimited(resp.Body, utils.MaxAPIResponseSize)
	if err != nil {
		metrics.TokenRefreshes.WithLabelValues("error").Inc()
		return "", &RefreshError{Status: resp.StatusCode, StatusText: http.StatusText(resp.StatusCode), Err: err}
	}

	var tr tokenResponse
	if err := json.Unmarshal(data, &tr); err != nil {
		metrics.TokenRefreshes.WithLabelValues("error").Inc()
		return "", &RefreshError{Status: resp.StatusCode, StatusText: http.StatusText(resp.StatusCode), Err: fmt.Errorf("invalid token response: %w", err)}
	}
	if tr.AccessToken == "" {
		metrics.TokenRefreshes.WithLabelValues("error").Inc()
		return "", &RefreshError{Status: resp.StatusCode, StatusText: http.StatusText(resp.StatusCode), Err: fmt.Errorf("token response has no access_token")}
	}

	r.store.SetAccessToken(tr.AccessToken)
	rotated := tr.RefreshToken != "" && tr.RefreshToken != refreshToken
	if rotated {
		r.store.SetRefreshToken(tr.RefreshToken)
	}

	metrics.TokenRefreshes.WithLabelValues("success").Inc()
	audit.LogTokenRefresh(true, resp.StatusCode, rotated)
	logrus.WithFields(logrus.Fields{
		"expires_in": tr.ExpiresIn,
		"rotated":    rotated,
	}).Info("Refreshed AdGuard DNS access token")

	return tr.AccessToken, nil
}
