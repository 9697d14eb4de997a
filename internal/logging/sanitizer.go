// Package logging configures the process-wide logrus logger and keeps API
// credentials out of log output. It also archives audit events to S3.
package logging

import (
	"fmt"
	"io"
	"regexp"
	"strings"

	"github.com/sirupsen/logrus"
)

const redacted = "[REDACTED]"

type redaction struct {
	pattern     *regexp.Regexp
	replacement string
	pii         bool
}

// redactions run in order; the credential-shaped ones come first so the
// generic patterns below do not half-mask them.
var redactions = []redaction{
	// Authorization header values
	{regexp.MustCompile(`(?i)\bbearer\s+[A-Za-z0-9._~+/=-]+`), "Bearer " + redacted, false},
	// token fields in JSON bodies and query strings
	{regexp.MustCompile(`(?i)"(access_token|refresh_token)"\s*:\s*"[^"]*"`), `"$1":"` + redacted + `"`, false},
	{regexp.MustCompile(`(?i)\b(access_token|refresh_token)=[^&\s]+`), "$1=" + redacted, false},
	// JWTs
	{regexp.MustCompile(`\beyJ[A-Za-z0-9_-]+\.[A-Za-z0-9_-]+\.[A-Za-z0-9_-]+\b`), redacted, false},
	// AWS access key IDs
	{regexp.MustCompile(`\b(AKIA|ASIA|AIDA)[A-Z0-9]{16}\b`), "[REDACTED-AWS-KEY]", false},
	// AWS secret keys and other 40 character base64 secrets
	{regexp.MustCompile(`\b[A-Za-z0-9/+=]{40}\b`), redacted, false},
	// hex API keys
	{regexp.MustCompile(`\b[a-fA-F0-9]{32,}\b`), redacted, false},
	{regexp.MustCompile(`\b[A-Za-z0-9._%+-]+@[A-Za-z0-9.-]+\.[A-Za-z]{2,}\b`), "[EMAIL-REDACTED]", true},
	{regexp.MustCompile(`\b(?:(?:25[0-5]|2[0-4][0-9]|[01]?[0-9][0-9]?)\.){3}(?:25[0-5]|2[0-4][0-9]|[01]?[0-9][0-9]?)\b`), "[IP-REDACTED]", true},
}

// SensitiveFieldNames are log field names whose values are always redacted
var SensitiveFieldNames = map[string]bool{
	"password":      true,
	"secret":        true,
	"secretkey":     true,
	"token":         true,
	"access_token":  true,
	"refresh_token": true,
	"accesstoken":   true,
	"refreshtoken":  true,
	"api_token":     true,
	"accesskeyid":   true,
	"authorization": true,
	"credentials":   true,
}

// SanitizeString masks credentials and, when redactPII is set, email and
// IP addresses in s.
func SanitizeString(s string, redactPII bool) string {
	for _, r := range redactions {
		if r.pii && !redactPII {
			continue
		}
		s = r.pattern.ReplaceAllString(s, r.replacement)
	}
	return s
}

// SanitizeFields returns a copy of fields with sensitive names and values masked.
// Numbers and booleans are passed through untouched.
func SanitizeFields(fields logrus.Fields, redactPII bool) logrus.Fields {
	sanitized := make(logrus.Fields, len(fields))
	for k, v := range fields {
		if SensitiveFieldNames[strings.ToLower(k)] {
			sanitized[k] = redacted
			continue
		}

		switch val := v.(type) {
		case nil, bool, int, int32, int64, uint, uint32, uint64, float32, float64:
			sanitized[k] = val
		case string:
			sanitized[k] = SanitizeString(val, redactPII)
		case error:
			sanitized[k] = SanitizeString(val.Error(), redactPII)
		case fmt.Stringer:
			sanitized[k] = SanitizeString(val.String(), redactPII)
		default:
			sanitized[k] = SanitizeString(fmt.Sprintf("%v", val), redactPII)
		}
	}
	return sanitized
}

// SanitizingHook masks every log entry before it is written
type SanitizingHook struct {
	redactPII bool
}

// NewSanitizingHook creates a hook; redactPII also masks email and IP addresses
func NewSanitizingHook(redactPII bool) *SanitizingHook {
	return &SanitizingHook{redactPII: redactPII}
}

func (h *SanitizingHook) Levels() []logrus.Level {
	return logrus.AllLevels
}

func (h *SanitizingHook) Fire(entry *logrus.Entry) error {
	entry.Message = SanitizeString(entry.Message, h.redactPII)
	if len(entry.Data) > 0 {
		entry.Data = SanitizeFields(entry.Data, h.redactPII)
	}
	return nil
}

// Setup configures the standard logger: level, text formatter with full
// timestamps, output to w and the sanitizing hook. Stdout must not be used
// while serving MCP over stdio.
func Setup(level string, w io.Writer, redactPII bool) error {
	lvl, err := logrus.ParseLevel(level)
	if err != nil {
		return fmt.Errorf("invalid log level %q: %w", level, err)
	}

	logrus.SetLevel(lvl)
	logrus.SetOutput(w)
	logrus.SetFormatter(&logrus.TextFormatter{
		FullTimestamp: true,
	})
	logrus.StandardLogger().ReplaceHooks(make(logrus.LevelHooks))
	logrus.AddHook(NewSanitizingHook(redactPII))
	return nil
}
