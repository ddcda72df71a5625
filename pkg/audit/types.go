package audit

import (
	"time"
)

// EventType represents the category of audit event
type EventType string

const (
	EventTypeAuthLogin          EventType = "auth.login"
	EventTypeAuthLogout         EventType = "auth.logout"
	EventTypeAuthLoginFailed    EventType = "auth.login_failed"
	EventTypeAuthRegister       EventType = "auth.register"
	EventTypeAuthRegisterFailed EventType = "auth.register_failed"

	EventTypeAuthzAccessDenied EventType = "authz.access_denied"
)

// EventStatus represents the outcome of an event
type EventStatus string

const (
	EventStatusSuccess EventStatus = "success"
	EventStatusFailure EventStatus = "failure"
	EventStatusDenied  EventStatus = "denied"
)

// AuditEvent represents a single audit log entry
type AuditEvent struct {
	Timestamp time.Time   `json:"timestamp"`
	EventType EventType   `json:"event_type"`
	Status    EventStatus `json:"status"`

	// Actor information
	AccountID string `json:"account_id,omitempty"`
	Username  string `json:"username,omitempty"`
	Provider  string `json:"provider,omitempty"`

	// Request context
	IPAddress string `json:"ip_address,omitempty"`
	UserAgent string `json:"user_agent,omitempty"`
	RequestID string `json:"request_id,omitempty"`
	Method    string `json:"method,omitempty"`
	Path      string `json:"path,omitempty"`

	Message string `json:"message,omitempty"`
}
