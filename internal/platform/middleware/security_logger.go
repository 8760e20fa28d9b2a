package middleware

import (
	"log/slog"
	"net/http"
	"time"
)

// Security event kinds.
const (
	EventRateLimitExceeded = "rate_limit_exceeded"
	EventCommandRejected   = "command_rejected"
	EventSuspiciousAccess  = "suspicious_access"
)

// SecurityLogger records security-relevant events through slog rather
// than the application's request log, so they can be routed/alerted on
// separately.
type SecurityLogger struct {
	logger *slog.Logger
}

// NewSecurityLogger creates a SecurityLogger backed by logger.
func NewSecurityLogger(logger *slog.Logger) *SecurityLogger {
	return &SecurityLogger{logger: logger}
}

// LogEvent logs a security event with request context plus arbitrary
// extra details.
func (sl *SecurityLogger) LogEvent(eventType string, r *http.Request, details map[string]any) {
	attrs := []any{
		slog.String("event", eventType),
		slog.String("ip", GetClientIP(r)),
		slog.String("method", r.Method),
		slog.String("path", r.URL.Path),
		slog.String("user_agent", r.Header.Get("User-Agent")),
	}
	for k, v := range details {
		attrs = append(attrs, slog.Any(k, v))
	}
	sl.logger.Warn("security_event", attrs...)
}

// LogRateLimitExceeded logs a rate-limit violation.
func (sl *SecurityLogger) LogRateLimitExceeded(r *http.Request) {
	sl.LogEvent(EventRateLimitExceeded, r, map[string]any{
		"timestamp": time.Now().Unix(),
	})
}

// LogCommandRejected logs a command dispatch rejected for an
// unsupported (kind, platform) pair (spec.md §4.5).
func (sl *SecurityLogger) LogCommandRejected(r *http.Request, deviceID, commandType, platform string) {
	sl.LogEvent(EventCommandRejected, r, map[string]any{
		"device_id":    deviceID,
		"command_type": commandType,
		"platform":     platform,
	})
}
