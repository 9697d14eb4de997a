// Package config defines configuration structures and loading logic for dnsmedic.
// It supports YAML configuration files with sensible defaults, and resolves
// AdGuard DNS credentials from the environment before falling back to the file.
package config

import (
	"os"
	"time"

	"dnsmedic/internal/utils"

	"gopkg.in/yaml.v3"
)

const (
	// DefaultBaseURL is the public AdGuard DNS API endpoint
	DefaultBaseURL = "https://api.adguard-dns.io"

	// DefaultQueryLogLimit is the page size requested from the query log.
	// The provider caps a page at 1000 entries.
	DefaultQueryLogLimit = 200

	// MaxQueryLogLimit is the provider's hard page size limit
	MaxQueryLogLimit = 1000
)

type Config struct {
	AdGuard AdGuardConfig `yaml:"adguard"`
	Agent   AgentConfig   `yaml:"agent"`
	API     APIConfig     `yaml:"api"`
	Audit   AuditConfig   `yaml:"audit"`
	DNS     DNSConfig     `yaml:"dns"`
}

type AdGuardConfig struct {
	BaseURL       string        `yaml:"baseURL"`
	ServerID      string        `yaml:"serverID"`
	AccessToken   string        `yaml:"accessToken,omitempty"`
	RefreshToken  string        `yaml:"refreshToken,omitempty"`
	Timeout       time.Duration `yaml:"timeout"`
	QueryLogLimit int           `yaml:"queryLogLimit"`
	Retry         RetryConfig   `yaml:"retry"`
}

// RetryConfig controls backoff for idempotent GET requests.
// MaxRetries of zero disables retries entirely.
type RetryConfig struct {
	MaxRetries int           `yaml:"maxRetries"`
	BaseDelay  time.Duration `yaml:"baseDelay"`
	MaxDelay   time.Duration `yaml:"maxDelay"`
}

type AgentConfig struct {
	LogLevel string `yaml:"logLevel"`
	// Unblock requests from the CLI prompt for confirmation unless this is set
	AssumeYes bool `yaml:"assumeYes"`
	// RedactPII also masks email and IP addresses in log output
	RedactPII bool `yaml:"redactPII"`
}

type APIConfig struct {
	Enabled   bool `yaml:"enabled"`
	Port      int  `yaml:"port"`
	RateLimit int  `yaml:"rateLimit"`
}

type AuditConfig struct {
	Dir string        `yaml:"dir"`
	S3  S3AuditConfig `yaml:"s3"`
}

type S3AuditConfig struct {
	Enabled     bool   `yaml:"enabled"`
	Bucket      string `yaml:"bucket"`
	Region      string `yaml:"region"`
	Prefix      string `yaml:"prefix"`
	AccessKeyID string `yaml:"accessKeyId,omitempty"`
	SecretKey   string `yaml:"secretKey,omitempty"`
}

type DNSConfig struct {
	// Resolver used by the check command, usually the AdGuard DNS server address
	Resolver string        `yaml:"resolver"`
	Timeout  time.Duration `yaml:"timeout"`
}

// LoadConfig loads configuration from a YAML file
func LoadConfig(path string) (*Config, error) {
	// Set defaults
	cfg := &Config{
		AdGuard: AdGuardConfig{
			BaseURL:       DefaultBaseURL,
			Timeout:       30 * time.Second,
			QueryLogLimit: DefaultQueryLogLimit,
			Retry: RetryConfig{
				MaxRetries: 2,
				BaseDelay:  500 * time.Millisecond,
				MaxDelay:   5 * time.Second,
			},
		},
		Agent: AgentConfig{
			LogLevel: "info",
		},
		API: APIConfig{
			Port:      8053,
			RateLimit: 60,
		},
		Audit: AuditConfig{
			Dir: "~/.dnsmedic/audit",
			S3: S3AuditConfig{
				Prefix: "dnsmedic-audit/",
			},
		},
		DNS: DNSConfig{
			Resolver: "94.140.14.14:53",
			Timeout:  3 * time.Second,
		},
	}

	// If no path specified, try default locations
	if path == "" {
		for _, p := range []string{"./dnsmedic.yaml", "/etc/dnsmedic/config.yaml"} {
			if _, err := os.Stat(p); err == nil {
				path = p
				break
			}
		}
	}

	// If we have a config file, load it
	if path != "" {
		f, err := os.Open(path)
		if err != nil {
			return nil, err
		}
		defer f.Close()

		data, err := utils.ReadAllLimited(f, utils.MaxConfigFileSize)
		if err != nil {
			return nil, err
		}

		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, err
		}
	}

	applyEnvironment(cfg)

	return cfg, nil
}

// applyEnvironment overrides file values with environment variables
func applyEnvironment(cfg *Config) {
	if v := os.Getenv("ADGUARD_BASE_URL"); v != "" {
		cfg.AdGuard.BaseURL = v
	}
	if v := os.Getenv("ADGUARD_SERVER_ID"); v != "" {
		cfg.AdGuard.ServerID = v
	}
	if v := os.Getenv("DNSMEDIC_LOG_LEVEL"); v != "" {
		cfg.Agent.LogLevel = v
	}
}
