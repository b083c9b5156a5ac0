// Package security provides security features for the fact-pod gateway,
// including client-secret encryption at rest, audit logging with PII
// protection, registration rate limiting, and expiry checks.
package security

import (
	"crypto/sha256"
	"encoding/hex"
	"log/slog"
	"time"

	"github.com/google/uuid"
)

// Auditor handles security event logging with PII protection.
// User identifiers are hashed before they reach the log stream.
type Auditor struct {
	logger  *slog.Logger
	enabled bool
}

// NewAuditor creates a new security auditor
func NewAuditor(logger *slog.Logger, enabled bool) *Auditor {
	if logger == nil {
		logger = slog.Default()
	}
	return &Auditor{
		logger:  logger,
		enabled: enabled,
	}
}

// Event represents a security audit event
type Event struct {
	ID        string
	Type      string
	UserID    string
	Site      string
	Details   map[string]any
	Timestamp time.Time
}

// LogEvent logs a security event with hashed PII.
// Each event gets a unique ID for correlation with diagnostics.
func (a *Auditor) LogEvent(event Event) {
	if a == nil || !a.enabled {
		return
	}

	event.ID = uuid.NewString()
	event.Timestamp = time.Now()

	a.logger.Info("security_audit",
		"event_id", event.ID,
		"event_type", event.Type,
		"user_id_hash", hashForLogging(event.UserID),
		"site", event.Site,
		"details", event.Details,
		"timestamp", event.Timestamp,
	)
}

// LogEnableStarted logs the start of a fact-pod authorization flow
func (a *Auditor) LogEnableStarted(userID, site string, registered bool) {
	a.LogEvent(Event{
		Type:   "fact_pod_enable_started",
		UserID: userID,
		Site:   site,
		Details: map[string]any{
			"client_registered": registered,
		},
	})
}

// LogCallbackProcessed logs the outcome of a provider callback
func (a *Auditor) LogCallbackProcessed(userID, site string, success bool, reason string) {
	a.LogEvent(Event{
		Type:   "oauth_callback_processed",
		UserID: userID,
		Site:   site,
		Details: map[string]any{
			"success": success,
			"reason":  reason,
		},
	})
}

// LogInvalidState logs a callback that presented an unknown, expired, or
// already consumed state value. The distinguishing reason is deliberately
// not recorded in the user-facing path; it is safe in the audit stream.
func (a *Auditor) LogInvalidState(statePrefix string) {
	a.LogEvent(Event{
		Type: "oauth_invalid_state",
		Details: map[string]any{
			"state_prefix": statePrefix,
		},
	})
}

// LogFactPodDisabled logs a fact pod being disabled
func (a *Auditor) LogFactPodDisabled(site string) {
	a.LogEvent(Event{
		Type: "fact_pod_disabled",
		Site: site,
	})
}

// LogRegistrationThrottled logs a dynamic client registration attempt that
// was blocked by the per-site rate limiter.
func (a *Auditor) LogRegistrationThrottled(site string) {
	a.LogEvent(Event{
		Type: "client_registration_throttled",
		Site: site,
	})
}

// hashForLogging returns a short SHA-256 digest of a value for log
// correlation without exposing the value itself.
func hashForLogging(value string) string {
	if value == "" {
		return ""
	}
	sum := sha256.Sum256([]byte(value))
	return hex.EncodeToString(sum[:8])
}
