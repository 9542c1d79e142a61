package domain

import "time"

// AuditEvent is a single entry in the append-only audit log. Events within a
// clinic form a hash chain: each event's hash covers the previous event's hash.
type AuditEvent struct {
	ID           string                 `json:"id" db:"id"`
	Timestamp    time.Time              `json:"timestamp" db:"timestamp"`
	EventType    AuditEventType         `json:"event_type" db:"event_type"`
	Severity     AuditSeverity          `json:"severity" db:"severity"`
	ClinicID     string                 `json:"clinic_id" db:"clinic_id"`
	PatientID    string                 `json:"patient_id,omitempty" db:"patient_id"`
	SessionID    string                 `json:"session_id,omitempty" db:"session_id"`
	Action       string                 `json:"action" db:"action"`
	Outcome      string                 `json:"outcome" db:"outcome"`
	Details      map[string]interface{} `json:"details,omitempty" db:"-"`
	PreviousHash string                 `json:"previous_hash" db:"previous_hash"`
	EntryHash    string                 `json:"entry_hash" db:"entry_hash"`
}

// AuditQuery filters audit events. Zero values mean no constraint.
type AuditQuery struct {
	ClinicID   string
	PatientID  string
	EventTypes []AuditEventType
	Severity   AuditSeverity
	Start      time.Time
	End        time.Time
	Limit      int
	Offset     int
}

// AuditSummary aggregates audit activity for a clinic over a window
type AuditSummary struct {
	ClinicID      string                 `json:"clinic_id"`
	Start         time.Time              `json:"start"`
	End           time.Time              `json:"end"`
	TotalEvents   int                    `json:"total_events"`
	ByType        map[AuditEventType]int `json:"by_type"`
	BySeverity    map[AuditSeverity]int  `json:"by_severity"`
	CrisisCount   int                    `json:"crisis_count"`
	PIICount      int                    `json:"pii_count"`
	BlockedCount  int                    `json:"blocked_count"`
	FailureCount  int                    `json:"failure_count"`
	UniquePatients int                   `json:"unique_patients"`
}

// ChainVerification is the result of verifying a clinic's hash chain
type ChainVerification struct {
	ClinicID      string    `json:"clinic_id"`
	Valid         bool      `json:"valid"`
	EventsChecked int       `json:"events_checked"`
	// FirstBreak is the index of the first broken event, or -1 when the chain is intact.
	FirstBreak    int       `json:"first_break"`
	BrokenEventID string    `json:"broken_event_id,omitempty"`
	CheckedAt     time.Time `json:"checked_at"`
}
