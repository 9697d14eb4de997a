package adguard

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"dnsmedic/internal/metrics"
	"dnsmedic/internal/utils"

	"github.com/sirupsen/logrus"
)

// FetchBlocked returns the blocked entries of the query log for the last
// minutes minutes. A single page of at most the configured limit is fetched;
// Truncated reports when the window holds more entries than that page.
func (c *Client) FetchBlocked(ctx context.Context, minutes int) (*BlockedResult, error) {
	if minutes <= 0 {
		minutes = DefaultWindowMinutes
	}
	if minutes > MaxWindowMinutes {
		minutes = MaxWindowMinutes
	}

	to := c.now()
	from := to.Add(-time.Duration(minutes) * time.Minute)

	query := url.Values{}
	query.Set("time_from_millis", strconv.FormatInt(from.UnixMilli(), 10))
	query.Set("time_to_millis", strconv.FormatInt(to.UnixMilli(), 10))
	query.Set("limit", strconv.Itoa(c.limit))

	resp, err := c.do(ctx, request{
		op:     "query_log",
		method: http.MethodGet,
		path:   QueryLogPath,
		query:  query,
	})
	if err != nil {
		return nil, wrapTransport(err, func(e *UpstreamHTTPError) error {
			return &QueryLogFetchError{e}
		}, "query log fetch")
	}
	defer resp.Body.Close()

	if !isSuccess(resp.StatusCode) {
		return nil, &QueryLogFetchError{upstreamError("query log fetch", resp)}
	}

	data, err := utils.ReadAllLimited(resp.Body, utils.MaxAPIResponseSize)
	if err != nil {
		return nil, &QueryLogFetchError{&UpstreamHTTPError{Op: "query log fetch", Err: err}}
	}

	var page queryLogResponse
	if err := json.Unmarshal(data, &page); err != nil {
		return nil, &QueryLogFetchError{&UpstreamHTTPError{
			Op:  "query log fetch",
			Err: fmt.Errorf("invalid query log response: %w", err),
		}}
	}

	result := &BlockedResult{
		BlockedDomains: filterBlocked(page.Items),
		TotalQueries:   len(page.Items),
		Truncated:      isTruncated(page, c.limit),
	}
	metrics.BlockedDomains.Set(float64(len(result.BlockedDomains)))

	logrus.WithFields(logrus.Fields{
		"minutes":   minutes,
		"total":     result.TotalQueries,
		"blocked":   len(result.BlockedDomains),
		"truncated": result.Truncated,
	}).Info("Fetched query log")

	return result, nil
}

// filterBlocked keeps blocked entries in source order
func filterBlocked(items []QueryLogEntry) []BlockedDomain {
	blocked := make([]BlockedDomain, 0)
	for _, item := range items {
		if !item.FilteringInfo.FilteringStatus.IsBlocked() {
			continue
		}
		blocked = append(blocked, BlockedDomain{
			Domain:     item.Domain,
			BlockedAt:  item.TimeISO,
			FilterRule: item.FilteringInfo.FilterRule,
			FilterID:   item.FilteringInfo.FilterID,
		})
	}
	return blocked
}

func isTruncated(page queryLogResponse, limit int) bool {
	if page.Pages != nil {
		return page.Pages.Total > page.Pages.Current
	}
	return len(page.Items) >= limit
}

// ValidateWindow rejects query log windows outside 1..MaxWindowMinutes
func ValidateWindow(minutes int) error {
	if minutes < 1 || minutes > MaxWindowMinutes {
		return fmt.Errorf("minutes must be between 1 and %d", MaxWindowMinutes)
	}
	return nil
}

// wrapTransport turns a network failure into the operation's error type.
// Credential, refresh and cancellation errors are returned unchanged.
func wrapTransport(err error, wrap func(*UpstreamHTTPError) error, op string) error {
	if isRefreshError(err) {
		return err
	}
	var urlErr *url.Error
	if errors.As(err, &urlErr) && !errors.Is(err, context.Canceled) && !errors.Is(err, context.DeadlineExceeded) {
		return wrap(&UpstreamHTTPError{Op: op, Err: err})
	}
	return err
}
