package config

import (
	"fmt"
	"net/url"
)

// ConfigurationError reports a required setting that is missing or invalid.
// It is a startup fault, never a retryable runtime condition.
type ConfigurationError struct {
	Field  string
	Reason string
}

func (e *ConfigurationError) Error() string {
	if e.Reason == "" {
		return fmt.Sprintf("configuration error: %s is not set", e.Field)
	}
	return fmt.Sprintf("configuration error: %s %s", e.Field, e.Reason)
}

// Missing returns a ConfigurationError for an absent setting
func Missing(field string) *ConfigurationError {
	return &ConfigurationError{Field: field}
}

// ValidateConfig performs basic configuration validation.
// Tokens are not checked here; the credential store reports them lazily
// at first use so that commands which never call the API still work.
func ValidateConfig(cfg *Config) error {
	if cfg.AdGuard.BaseURL == "" {
		return Missing("adguard.baseURL")
	}

	u, err := url.Parse(cfg.AdGuard.BaseURL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return &ConfigurationError{Field: "adguard.baseURL", Reason: "must be an absolute URL"}
	}

	if cfg.AdGuard.ServerID == "" {
		return Missing("adguard.serverID")
	}

	if cfg.AdGuard.QueryLogLimit <= 0 {
		cfg.AdGuard.QueryLogLimit = DefaultQueryLogLimit
	}
	if cfg.AdGuard.QueryLogLimit > MaxQueryLogLimit {
		return &ConfigurationError{
			Field:  "adguard.queryLogLimit",
			Reason: fmt.Sprintf("exceeds provider maximum of %d", MaxQueryLogLimit),
		}
	}

	if cfg.AdGuard.Retry.MaxRetries < 0 {
		return &ConfigurationError{Field: "adguard.retry.maxRetries", Reason: "must not be negative"}
	}

	// Validate S3 configuration if present
	if cfg.Audit.S3.Enabled {
		if cfg.Audit.S3.Bucket == "" {
			return Missing("audit.s3.bucket")
		}
		if cfg.Audit.S3.Region == "" {
			return &ConfigurationError{Field: "audit.s3.region", Reason: "must be set when S3 archiving is enabled"}
		}
	}

	if cfg.API.Enabled && (cfg.API.Port <= 0 || cfg.API.Port > 65535) {
		return &ConfigurationError{Field: "api.port", Reason: fmt.Sprintf("invalid port %d", cfg.API.Port)}
	}

	return nil
}
