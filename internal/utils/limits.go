// Package utils holds the size and length limits applied to untrusted input:
// provider responses, local API bodies, config files and domain names.
package utils

import (
	"errors"
	"fmt"
	"io"
	"strings"
)

const (
	// MaxConfigFileSize is the maximum size for configuration files (1MB)
	MaxConfigFileSize = 1 * 1024 * 1024

	// MaxAPIResponseSize caps AdGuard DNS API responses (10MB).
	// A 1000-entry query log page is well under 1MB.
	MaxAPIResponseSize = 10 * 1024 * 1024

	// MaxHTTPBodySize is the maximum size for local API request bodies (1MB)
	MaxHTTPBodySize = 1 * 1024 * 1024

	// MaxAuditFileSize caps a single audit file uploaded to S3 (256MB)
	MaxAuditFileSize = 256 * 1024 * 1024

	MaxDomainLength = 253
	MaxLabelLength  = 63

	// MaxDomainsPerRequest is the maximum number of domains in a single unblock call
	MaxDomainsPerRequest = 100
)

// ErrTooLarge is returned when input exceeds its limit
var ErrTooLarge = errors.New("exceeds maximum size")

// LimitedReader returns a reader that stops after limit bytes
func LimitedReader(r io.Reader, limit int64) io.Reader {
	return io.LimitReader(r, limit)
}

// ReadAllLimited reads r fully, failing with ErrTooLarge past limit bytes
func ReadAllLimited(r io.Reader, limit int64) ([]byte, error) {
	data, err := io.ReadAll(io.LimitReader(r, limit+1))
	if err != nil {
		return nil, err
	}
	if int64(len(data)) > limit {
		return nil, fmt.Errorf("data %w of %d bytes", ErrTooLarge, limit)
	}
	return data, nil
}

// ValidateDomainLength checks the total and per-label length of a domain
func ValidateDomainLength(domain string) error {
	if len(domain) > MaxDomainLength {
		return fmt.Errorf("domain name exceeds maximum length of %d characters", MaxDomainLength)
	}
	for _, label := range strings.Split(domain, ".") {
		if len(label) > MaxLabelLength {
			return fmt.Errorf("domain label %q exceeds maximum length of %d characters", label, MaxLabelLength)
		}
	}
	return nil
}
