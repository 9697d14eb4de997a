package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/sirupsen/logrus"
)

// CredentialSource represents where credentials come from
type CredentialSource string

const (
	CredentialSourceNone        CredentialSource = "none"
	CredentialSourceEnvironment CredentialSource = "environment"
	CredentialSourceConfig      CredentialSource = "config"
	CredentialSourceIAMRole     CredentialSource = "iam-role"
)

// AdGuardCredentials holds the bearer access token and the refresh token
// used against the AdGuard DNS API
type AdGuardCredentials struct {
	AccessToken  string
	RefreshToken string
	Source       CredentialSource
}

// GetAdGuardCredentials resolves AdGuard DNS credentials.
// Environment variables take priority over the config file. Each token is
// resolved independently so a refresh token can live in the environment
// while the short-lived access token is left empty.
func GetAdGuardCredentials(cfg *AdGuardConfig) *AdGuardCredentials {
	creds := &AdGuardCredentials{Source: CredentialSourceNone}

	accessToken := os.Getenv("ADGUARD_ACCESS_TOKEN")
	refreshToken := os.Getenv("ADGUARD_REFRESH_TOKEN")
	if accessToken != "" || refreshToken != "" {
		creds.Source = CredentialSourceEnvironment
	}

	if accessToken == "" && cfg.AccessToken != "" {
		accessToken = cfg.AccessToken
		creds.Source = CredentialSourceConfig
	}
	if refreshToken == "" && cfg.RefreshToken != "" {
		refreshToken = cfg.RefreshToken
		creds.Source = CredentialSourceConfig
	}

	if creds.Source == CredentialSourceConfig {
		fmt.Fprintf(os.Stderr, "WARNING: AdGuard DNS tokens found in config file. This is insecure!\n")
		fmt.Fprintf(os.Stderr, "Set ADGUARD_ACCESS_TOKEN and ADGUARD_REFRESH_TOKEN environment variables instead.\n\n")
	}

	creds.AccessToken = accessToken
	creds.RefreshToken = refreshToken
	return creds
}

// AWSCredentials holds AWS credential information for the audit archive
type AWSCredentials struct {
	AccessKeyID     string
	SecretAccessKey string
	Source          CredentialSource
}

// GetAWSCredentials retrieves AWS credentials from the most secure available source
func GetAWSCredentials(s3Config *S3AuditConfig) (*AWSCredentials, error) {
	// Priority order (most secure to least secure):
	// 1. IAM Role (no credentials needed)
	// 2. Environment variables
	// 3. Config file (deprecated, will warn)

	if os.Getenv("AWS_CONTAINER_CREDENTIALS_RELATIVE_URI") != "" ||
		os.Getenv("AWS_CONTAINER_CREDENTIALS_FULL_URI") != "" ||
		os.Getenv("AWS_EXECUTION_ENV") != "" {
		return &AWSCredentials{
			Source: CredentialSourceIAMRole,
		}, nil
	}

	accessKey := os.Getenv("AWS_ACCESS_KEY_ID")
	secretKey := os.Getenv("AWS_SECRET_ACCESS_KEY")

	if accessKey != "" && secretKey != "" {
		return &AWSCredentials{
			AccessKeyID:     accessKey,
			SecretAccessKey: secretKey,
			Source:          CredentialSourceEnvironment,
		}, nil
	}

	if s3Config.AccessKeyID != "" && s3Config.SecretKey != "" {
		fmt.Fprintf(os.Stderr, "WARNING: AWS credentials found in config file. This is insecure!\n")
		fmt.Fprintf(os.Stderr, "Set AWS_ACCESS_KEY_ID and AWS_SECRET_ACCESS_KEY environment variables.\n\n")

		return &AWSCredentials{
			AccessKeyID:     s3Config.AccessKeyID,
			SecretAccessKey: s3Config.SecretKey,
			Source:          CredentialSourceConfig,
		}, nil
	}

	// No credentials found - AWS SDK will try default credential chain
	return &AWSCredentials{
		Source: CredentialSourceNone,
	}, nil
}

// SanitizeConfig removes sensitive information from config for logging
func SanitizeConfig(cfg *Config) Config {
	sanitized := *cfg

	if sanitized.AdGuard.AccessToken != "" {
		sanitized.AdGuard.AccessToken = "***REDACTED***"
	}
	if sanitized.AdGuard.RefreshToken != "" {
		sanitized.AdGuard.RefreshToken = "***REDACTED***"
	}
	if sanitized.Audit.S3.AccessKeyID != "" {
		sanitized.Audit.S3.AccessKeyID = "***REDACTED***"
	}
	if sanitized.Audit.S3.SecretKey != "" {
		sanitized.Audit.S3.SecretKey = "***REDACTED***"
	}

	return sanitized
}

// ValidateCredentialSecurity checks if credentials are stored securely
func ValidateCredentialSecurity(cfg *Config) []string {
	var warnings []string

	if cfg.AdGuard.AccessToken != "" || cfg.AdGuard.RefreshToken != "" {
		warnings = append(warnings, "AdGuard DNS tokens found in configuration file - consider using environment variables")
	}

	if cfg.Audit.S3.AccessKeyID != "" || cfg.Audit.S3.SecretKey != "" {
		warnings = append(warnings, "AWS credentials found in configuration file - consider using environment variables or IAM roles")
	}

	if cfg.Agent.LogLevel == "debug" {
		warnings = append(warnings, "Running in debug mode - queried domains may be exposed in logs")
	}

	if strings.HasPrefix(cfg.AdGuard.BaseURL, "http://") {
		warnings = append(warnings, "AdGuard DNS base URL is not using HTTPS - bearer tokens will be sent in clear text")
	}

	for _, warning := range warnings {
		logrus.Warn(fmt.Sprintf("SECURITY: %s", warning))
	}

	return warnings
}
