package models

import "time"

// SecurityEvent is the analytics row written to ClickHouse for every
// authentication-relevant incident.
type SecurityEvent struct {
	EventBucket int       `db:"event_bucket"`
	EventTime   time.Time `db:"event_time"`
	EventType   string    `db:"event_type"`
	SourceKey   string    `db:"source_key"`
	Kind        string    `db:"principal_kind"`
	EmployeeID  string    `db:"employee_id"`
	SessionID   string    `db:"session_id"`
	Details     string    `db:"details"`
}

const (
	EventPinFailed      = "pin_failed"
	EventPinVerified    = "pin_verified"
	EventRateLimited    = "rate_limited"
	EventSessionRevoked = "session_revoked"
	EventSuspiciousData = "suspicious_input"
)
