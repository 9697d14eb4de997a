package adguard

import (
	"bytes"
	"context"
	"errors"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"dnsmedic/internal/auth"
	"dnsmedic/internal/metrics"

	"github.com/sirupsen/logrus"
)

// request describes one API call. It is replayable: the body is kept as
// bytes so the call can be re-sent after a refresh or a backoff.
type request struct {
	op     string
	method string
	path   string
	query  url.Values
	header http.Header
	body   []byte
}

// do issues an authenticated request. GETs are retried with backoff on
// transport errors and 5xx; other methods are sent without retry.
func (c *Client) do(ctx context.Context, req request) (*http.Response, error) {
	if req.method == http.MethodGet {
		return c.withRetry(ctx, req.op, func() (*http.Response, error) {
			return c.doAuthenticated(ctx, req)
		})
	}
	return c.doAuthenticated(ctx, req)
}

// doAuthenticated sends req with the current access token. On 401 it
// refreshes the token once and re-sends; the second response is returned
// whatever its status.
func (c *Client) doAuthenticated(ctx context.Context, req request) (*http.Response, error) {
	token, err := c.store.AccessToken()
	if err != nil {
		return nil, err
	}

	resp, err := c.send(ctx, req, token)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != http.StatusUnauthorized {
		return resp, nil
	}
	drainAndClose(resp)

	logrus.WithField("operation", req.op).Debug("Access token rejected, refreshing")

	newToken, err := c.refresher.RefreshFrom(ctx, token)
	if err != nil {
		var refreshErr *auth.RefreshError
		if errors.As(err, &refreshErr) {
			// the error value may be shared with concurrent waiters
			annotated := *refreshErr
			annotated.TriggerStatus = http.StatusUnauthorized
			return nil, &annotated
		}
		return nil, err
	}

	return c.send(ctx, req, newToken)
}

// send performs a single HTTP exchange. The Authorization header always
// carries token, replacing anything the caller supplied.
func (c *Client) send(ctx context.Context, req request, token string) (*http.Response, error) {
	u := c.baseURL + req.path
	if len(req.query) > 0 {
		u += "?" + req.query.Encode()
	}

	var body io.Reader
	if req.body != nil {
		body = bytes.NewReader(req.body)
	}

	httpReq, err := http.NewRequestWithContext(ctx, req.method, u, body)
	if err != nil {
		return nil, err
	}

	for k, vs := range req.header {
		for _, v := range vs {
			httpReq.Header.Add(k, v)
		}
	}
	httpReq.Header.Set("Accept", "application/json")
	if req.body != nil && httpReq.Header.Get("Content-Type") == "" {
		httpReq.Header.Set("Content-Type", "application/json")
	}
	httpReq.Header.Set("Authorization", "Bearer "+token)

	start := time.Now()
	resp, err := c.httpClient.Do(httpReq)
	metrics.APIRequestDuration.WithLabelValues(req.op).Observe(time.Since(start).Seconds())
	if err != nil {
		metrics.APIRequests.WithLabelValues(req.op, "error").Inc()
		return nil, err
	}
	metrics.APIRequests.WithLabelValues(req.op, strconv.Itoa(resp.StatusCode)).Inc()

	logrus.WithFields(logrus.Fields{
		"operation": req.op,
		"method":    req.method,
		"status":    resp.StatusCode,
		"duration":  time.Since(start).String(),
	}).Debug("AdGuard DNS API call")

	return resp, nil
}

// isRefreshError reports a failed token exchange. It may wrap a network
// error but is final: the original request is never re-sent.
func isRefreshError(err error) bool {
	var refreshErr *auth.RefreshError
	return errors.As(err, &refreshErr)
}

func drainAndClose(resp *http.Response) {
	io.Copy(io.Discard, io.LimitReader(resp.Body, 64*1024))
	resp.Body.Close()
}

func isSuccess(status int) bool {
	return status >= 200 && status <= 299
}

func upstreamError(op string, resp *http.Response) *UpstreamHTTPError {
	return &UpstreamHTTPError{
		Op:         op,
		Status:     resp.StatusCode,
		StatusText: http.StatusText(resp.StatusCode),
	}
}
