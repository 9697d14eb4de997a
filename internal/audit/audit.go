// Package audit provides security audit logging for dnsmedic.
// It records credential refreshes and every change made to the AdGuard DNS
// filtering configuration so that unblocks can be reviewed afterwards.
package audit

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

// EventType represents the type of audit event
type EventType string

const (
	// Credential operations
	EventTokenRefresh       EventType = "TOKEN_REFRESH"
	EventTokenRefreshFailed EventType = "TOKEN_REFRESH_FAILED"

	// Filtering configuration changes
	EventWhitelistUpdate EventType = "WHITELIST_UPDATE"
	EventWhitelistNoop   EventType = "WHITELIST_NOOP"
	EventWhitelistFailed EventType = "WHITELIST_FAILED"

	// Service lifecycle
	EventServiceStart EventType = "SERVICE_START"
	EventServiceStop  EventType = "SERVICE_STOP"
)

// Event represents an audit log entry
type Event struct {
	Timestamp   time.Time              `json:"timestamp"`
	Type        EventType              `json:"type"`
	Severity    string                 `json:"severity"`
	Message     string                 `json:"message"`
	Details     map[string]interface{} `json:"details,omitempty"`
	User        string                 `json:"user,omitempty"`
	ProcessID   int                    `json:"process_id"`
	ProcessName string                 `json:"process_name"`
}

// Sink receives a copy of every recorded event
type Sink interface {
	Log(event Event)
}

// Logger handles audit logging
type Logger struct {
	file    *os.File
	encoder *json.Encoder
	mu      sync.Mutex
	logPath string
	sinks   []Sink
}

var (
	defaultMu     sync.RWMutex
	defaultLogger *Logger
)

// NewLogger opens a daily audit file under dir
func NewLogger(dir string) (*Logger, error) {
	dir = ExpandDir(dir)
	if err := os.MkdirAll(dir, 0700); err != nil {
		return nil, fmt.Errorf("failed to create audit directory: %w", err)
	}

	logFile := fmt.Sprintf("audit-%s.log", time.Now().Format("2006-01-02"))
	logPath := filepath.Join(dir, logFile)

	file, err := os.OpenFile(logPath, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0600)
	if err != nil {
		return nil, fmt.Errorf("failed to open audit log: %w", err)
	}

	return &Logger{
		file:    file,
		encoder: json.NewEncoder(file),
		logPath: logPath,
	}, nil
}

// Initialize sets up the process-wide audit logger
func Initialize(dir string) error {
	l, err := NewLogger(dir)
	if err != nil {
		return err
	}

	defaultMu.Lock()
	defaultLogger = l
	defaultMu.Unlock()

	Log(EventServiceStart, "info", "Audit logging initialized", nil)
	return nil
}

// AddSink forwards events from the process-wide logger to s
func AddSink(s Sink) {
	defaultMu.RLock()
	l := defaultLogger
	defaultMu.RUnlock()

	if l != nil {
		l.AddSink(s)
	}
}

// AddSink forwards events recorded by l to s
func (l *Logger) AddSink(s Sink) {
	l.mu.Lock()
	l.sinks = append(l.sinks, s)
	l.mu.Unlock()
}

// Log records an audit event on the process-wide logger
func Log(eventType EventType, severity string, message string, details map[string]interface{}) {
	defaultMu.RLock()
	l := defaultLogger
	defaultMu.RUnlock()

	if l == nil {
		// Fallback to regular logging if audit not initialized
		logrus.WithFields(logrus.Fields{
			"audit_type": eventType,
			"details":    details,
		}).Info(message)
		return
	}

	l.Log(eventType, severity, message, details)
}

// Log records an audit event
func (l *Logger) Log(eventType EventType, severity string, message string, details map[string]interface{}) {
	event := Event{
		Timestamp:   time.Now(),
		Type:        eventType,
		Severity:    severity,
		Message:     message,
		Details:     details,
		ProcessID:   os.Getpid(),
		ProcessName: filepath.Base(os.Args[0]),
	}

	if user := os.Getenv("USER"); user != "" {
		event.User = user
	}

	l.mu.Lock()
	if err := l.encoder.Encode(event); err != nil {
		logrus.WithError(err).Error("Failed to write audit log")
	}
	sinks := append([]Sink(nil), l.sinks...)
	l.mu.Unlock()

	for _, s := range sinks {
		s.Log(event)
	}

	// Also log to standard logger for real-time monitoring
	logrus.WithFields(logrus.Fields{
		"audit_type": eventType,
		"severity":   severity,
	}).Info(message)
}

// LogTokenRefresh logs an access token exchange
func LogTokenRefresh(success bool, status int, rotated bool) {
	if success {
		Log(EventTokenRefresh, "info", "Access token refreshed", map[string]interface{}{
			"status":                status,
			"refresh_token_rotated": rotated,
		})
		return
	}

	Log(EventTokenRefreshFailed, "warning", "Access token refresh rejected", map[string]interface{}{
		"status": status,
	})
}

// LogWhitelistUpdate logs the outcome of an unblock request
func LogWhitelistUpdate(serverID string, rulesAdded, alreadyWhitelisted []string, err error) {
	details := map[string]interface{}{
		"server_id":           serverID,
		"rules_added":         rulesAdded,
		"already_whitelisted": alreadyWhitelisted,
	}

	switch {
	case err != nil:
		details["error"] = err.Error()
		Log(EventWhitelistFailed, "warning", "Whitelist update failed", details)
	case len(rulesAdded) == 0:
		Log(EventWhitelistNoop, "info", "All domains already whitelisted", details)
	default:
		Log(EventWhitelistUpdate, "warning", fmt.Sprintf("Added %d whitelist rule(s)", len(rulesAdded)), details)
	}
}

// Close closes the process-wide audit logger
func Close() error {
	defaultMu.Lock()
	l := defaultLogger
	defaultLogger = nil
	defaultMu.Unlock()

	if l != nil {
		l.Log(EventServiceStop, "info", "Audit logging stopped", nil)
		return l.Close()
	}
	return nil
}

// Close closes the audit file
func (l *Logger) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.file.Close()
}

// Path returns the audit file path
func (l *Logger) Path() string {
	return l.logPath
}

// GetLogPath returns the current audit log path
func GetLogPath() string {
	defaultMu.RLock()
	defer defaultMu.RUnlock()
	if defaultLogger != nil {
		return defaultLogger.logPath
	}
	return ""
}

// ExpandDir resolves a leading ~ to the user home directory
func ExpandDir(dir string) string {
	if dir == "~" || strings.HasPrefix(dir, "~/") {
		if home, err := os.UserHomeDir(); err == nil {
			return filepath.Join(home, strings.TrimPrefix(dir, "~"))
		}
	}
	return dir
}
