package adguard

import "fmt"

// UpstreamHTTPError reports a non-success response, or a transport failure
// when Status is zero, from the AdGuard DNS API.
type UpstreamHTTPError struct {
	Op         string
	Status     int
	StatusText string
	Err        error
}

func (e *UpstreamHTTPError) Error() string {
	if e.Status != 0 {
		return fmt.Sprintf("%s failed: %d %s", e.Op, e.Status, e.StatusText)
	}
	return fmt.Sprintf("%s failed: %v", e.Op, e.Err)
}

func (e *UpstreamHTTPError) Unwrap() error {
	return e.Err
}

// QueryLogFetchError reports a failed query log request
type QueryLogFetchError struct {
	*UpstreamHTTPError
}

func (e *QueryLogFetchError) Unwrap() error {
	return e.UpstreamHTTPError
}

// ConfigReadError reports a failed read of the server's filtering settings
type ConfigReadError struct {
	*UpstreamHTTPError
}

func (e *ConfigReadError) Unwrap() error {
	return e.UpstreamHTTPError
}

// ConfigWriteError reports a failed update of the server's filtering settings.
// No rule from the request was added when this is returned.
type ConfigWriteError struct {
	*UpstreamHTTPError
}

func (e *ConfigWriteError) Unwrap() error {
	return e.UpstreamHTTPError
}
