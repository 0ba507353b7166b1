// Package audit carries the client details attached to audit entries and logs
// security events. Events go to a dedicated "security_audit" logger in structured
// JSON for SIEM ingestion.
package audit

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	libinjection "github.com/corazawaf/libinjection-go"
	"go.uber.org/zap"

	"github.com/plantvision/inspection-api/pkg/apperrors"
	"github.com/plantvision/inspection-api/pkg/auth"
	"github.com/plantvision/inspection-api/pkg/logging"
	"github.com/plantvision/inspection-api/pkg/models"
)

// SecurityEventType categorizes security-relevant events for filtering and alerting.
type SecurityEventType string

const (
	// EventInjectionAttempt is logged when libinjection flags free-text search input.
	EventInjectionAttempt SecurityEventType = "sql_injection_attempt"
	// EventUnauthorizedAccess is logged when a caller hits an endpoint their role may not use.
	EventUnauthorizedAccess SecurityEventType = "unauthorized_access"
)

// SecurityEvent represents an auditable security event with all relevant context
// for SIEM ingestion and analysis.
type SecurityEvent struct {
	Timestamp time.Time         `json:"timestamp"`
	EventType SecurityEventType `json:"event_type"`
	UserID    string            `json:"user_id,omitempty"`
	UserRole  string            `json:"user_role,omitempty"`
	ClientIP  string            `json:"client_ip,omitempty"`
	Details   any               `json:"details"`
	Severity  string            `json:"severity"` // info, warning, critical
}

// InjectionDetails contains specifics of a flagged search input.
type InjectionDetails struct {
	Field       string `json:"field"`
	Value       string `json:"value"`
	Fingerprint string `json:"fingerprint"` // libinjection fingerprint for pattern analysis
}

// Recorder appends entries to the audit trail. It never reports failure.
type Recorder interface {
	Record(ctx context.Context, entry models.AuditLogEntry)
}

// SecurityAuditor logs security events and mirrors access denials into the
// audit trail.
type SecurityAuditor struct {
	logger   *zap.Logger
	recorder Recorder
}

// NewSecurityAuditor creates a new security auditor with a dedicated logger namespace.
// recorder may be nil, in which case events are only logged.
func NewSecurityAuditor(logger *zap.Logger, recorder Recorder) *SecurityAuditor {
	return &SecurityAuditor{
		logger:   logger.Named("security_audit"),
		recorder: recorder,
	}
}

// ScreenSearch checks a free-text search value with libinjection. Flagged input is
// logged at ERROR level and rejected with a validation error.
func (a *SecurityAuditor) ScreenSearch(ctx context.Context, field, value string) error {
	if value == "" {
		return nil
	}

	isSQLi, fingerprint := libinjection.IsSQLi(value)
	if !isSQLi {
		return nil
	}

	details := InjectionDetails{
		Field:       field,
		Value:       logging.TruncateString(value, logging.MaxFieldLength),
		Fingerprint: string(fingerprint),
	}
	event := a.newEvent(ctx, EventInjectionAttempt, "critical", details)

	// Ignoring error as marshaling known types should never fail
	eventJSON, _ := json.Marshal(event)

	a.logger.Error("SQL injection pattern in search input",
		zap.String("event_json", string(eventJSON)),
		zap.String("field", field),
		zap.String("fingerprint", details.Fingerprint),
		zap.String("client_ip", event.ClientIP),
		zap.String("user_id", event.UserID),
		zap.String("severity", event.Severity),
	)

	return apperrors.Validation("Invalid %s parameter", field)
}

// RecordAccessDenied logs a role denial and records an UNAUTHORIZED_ACCESS entry
// against the endpoint path.
func (a *SecurityAuditor) RecordAccessDenied(ctx context.Context, caller models.Caller, r *http.Request, required []models.Role) {
	requiredRoles := make([]string, len(required))
	for i, role := range required {
		requiredRoles[i] = string(role)
	}

	details := map[string]any{
		"userRole":      string(caller.Role),
		"requiredRoles": requiredRoles,
		"method":        r.Method,
	}
	event := a.newEvent(ctx, EventUnauthorizedAccess, "warning", details)
	event.UserID = caller.ID.String()
	event.UserRole = string(caller.Role)
	if event.ClientIP == "" {
		event.ClientIP = ClientIP(r)
	}

	eventJSON, _ := json.Marshal(event)

	a.logger.Warn("Insufficient permissions",
		zap.String("event_json", string(eventJSON)),
		zap.String("user_id", event.UserID),
		zap.String("user_role", event.UserRole),
		zap.Strings("required_roles", requiredRoles),
		zap.String("method", r.Method),
		zap.String("path", r.URL.Path),
		zap.String("client_ip", event.ClientIP),
		zap.String("severity", event.Severity),
	)

	if a.recorder == nil {
		return
	}

	userID := caller.ID
	path := r.URL.Path
	a.recorder.Record(ctx, models.AuditLogEntry{
		UserID:       &userID,
		Action:       models.AuditActionUnauthorizedAccess,
		ResourceType: models.AuditResourceEndpoint,
		ResourceID:   &path,
		Metadata:     details,
	})
}

func (a *SecurityAuditor) newEvent(ctx context.Context, eventType SecurityEventType, severity string, details any) SecurityEvent {
	event := SecurityEvent{
		Timestamp: time.Now().UTC(),
		EventType: eventType,
		Details:   details,
		Severity:  severity,
	}
	if caller, ok := auth.GetCaller(ctx); ok {
		event.UserID = caller.ID.String()
		event.UserRole = string(caller.Role)
	}
	if info, ok := RequestInfoFrom(ctx); ok {
		event.ClientIP = info.IPAddress
	}
	return event
}

// Ensure SecurityAuditor can be handed to the auth middleware.
var _ auth.AccessDeniedRecorder = (*SecurityAuditor)(nil)
