package audit

import (
	"context"
	"net/http"
	"time"

	"github.com/platinummonkey/portalauth/pkg/contextkeys"
	"github.com/platinummonkey/portalauth/pkg/httputil"
	"github.com/platinummonkey/portalauth/pkg/observability"
	"github.com/sirupsen/logrus"
)

// Logger is the interface for audit logging
type Logger interface {
	// Log records an audit event
	Log(ctx context.Context, event *AuditEvent) error

	// Close flushes and releases the logger
	Close() error
}

// NewEvent builds an event carrying the request context. r may be nil.
func NewEvent(ctx context.Context, r *http.Request, eventType EventType, status EventStatus) *AuditEvent {
	event := &AuditEvent{
		Timestamp: time.Now().UTC(),
		EventType: eventType,
		Status:    status,
		AccountID: contextkeys.GetAccountID(ctx),
		RequestID: contextkeys.GetRequestID(ctx),
	}
	if r != nil {
		event.IPAddress = httputil.ClientIP(r)
		event.UserAgent = r.UserAgent()
		event.Method = r.Method
		event.Path = r.URL.Path
	}
	return event
}

// LogrusLogger writes audit events into the application log
type LogrusLogger struct {
	logger logrus.FieldLogger
}

// NewLogrusLogger creates an audit logger over logger
func NewLogrusLogger(logger logrus.FieldLogger) *LogrusLogger {
	if logger == nil {
		logger = observability.NopLogger()
	}
	return &LogrusLogger{logger: logger.WithField("audit", true)}
}

// Log writes event at info level, or warn level for failures and denials
func (l *LogrusLogger) Log(_ context.Context, event *AuditEvent) error {
	entry := l.logger.WithFields(logrus.Fields{
		"event_type": event.EventType,
		"status":     event.Status,
		"account_id": event.AccountID,
		"username":   event.Username,
		"provider":   event.Provider,
		"ip_address": event.IPAddress,
		"request_id": event.RequestID,
		"path":       event.Path,
	})
	if event.Status == EventStatusSuccess {
		entry.Info(event.Message)
	} else {
		entry.Warn(event.Message)
	}
	return nil
}

// Close is a no-op
func (l *LogrusLogger) Close() error {
	return nil
}

// NopLogger discards events
type NopLogger struct{}

// Log discards event
func (NopLogger) Log(context.Context, *AuditEvent) error { return nil }

// Close is a no-op
func (NopLogger) Close() error { return nil }
