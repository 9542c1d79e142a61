package audit

import (
	"context"
	"fmt"

	"github.com/medrelay/safety-service/internal/safety/domain"
)

// Convenience wrappers for the common event families. Each one maps its
// arguments onto an Entry; only type names and metadata are recorded, never
// raw PII values or message text.

// LogPIIDetected records detected PII by type name.
func (l *Logger) LogPIIDetected(ctx context.Context, clinicID, patientID string, piiTypes []domain.PIIType, actionTaken, source string) (*domain.AuditEvent, error) {
	names := make([]string, len(piiTypes))
	for i, t := range piiTypes {
		names[i] = string(t)
	}
	return l.Log(ctx, Entry{
		EventType: domain.EventPIIDetected,
		Severity:  domain.SeverityInfo,
		ClinicID:  clinicID,
		PatientID: patientID,
		Action:    fmt.Sprintf("PII detected and %s", actionTaken),
		Details: map[string]interface{}{
			"pii_types":    names,
			"action_taken": actionTaken,
			"source":       source,
		},
	})
}

// LogCrisisDetected records a crisis detection. Critical and high level
// crises are logged at critical severity.
func (l *Logger) LogCrisisDetected(ctx context.Context, clinicID, patientID string, crisisType domain.CrisisType, level domain.CrisisLevel, escalated bool) (*domain.AuditEvent, error) {
	severity := domain.SeverityWarning
	if level == domain.CrisisLevelCritical || level == domain.CrisisLevelHigh {
		severity = domain.SeverityCritical
	}
	return l.Log(ctx, Entry{
		EventType: domain.EventCrisisDetected,
		Severity:  severity,
		ClinicID:  clinicID,
		PatientID: patientID,
		Action:    fmt.Sprintf("Crisis detected: %s (%s)", crisisType, level),
		Details: map[string]interface{}{
			"crisis_type": string(crisisType),
			"level":       string(level),
			"escalated":   escalated,
		},
	})
}

// LogCrisisEscalated records a handoff of a crisis conversation.
func (l *Logger) LogCrisisEscalated(ctx context.Context, clinicID, patientID string, crisisType domain.CrisisType, target string) (*domain.AuditEvent, error) {
	return l.Log(ctx, Entry{
		EventType: domain.EventCrisisEscalated,
		Severity:  domain.SeverityCritical,
		ClinicID:  clinicID,
		PatientID: patientID,
		Action:    fmt.Sprintf("Crisis escalated to %s", target),
		Details: map[string]interface{}{
			"crisis_type":       string(crisisType),
			"escalation_target": target,
		},
	})
}

// LogConsentGranted records a consent grant.
func (l *Logger) LogConsentGranted(ctx context.Context, clinicID, patientID string, consentType domain.ConsentType, version string) (*domain.AuditEvent, error) {
	return l.Log(ctx, Entry{
		EventType: domain.EventConsentGranted,
		Severity:  domain.SeverityInfo,
		ClinicID:  clinicID,
		PatientID: patientID,
		Action:    fmt.Sprintf("Consent granted: %s", consentType),
		Details: map[string]interface{}{
			"consent_type": string(consentType),
			"version":      version,
		},
	})
}

// LogConsentWithdrawn records a consent withdrawal.
func (l *Logger) LogConsentWithdrawn(ctx context.Context, clinicID, patientID string, consentType domain.ConsentType) (*domain.AuditEvent, error) {
	return l.Log(ctx, Entry{
		EventType: domain.EventConsentWithdrawn,
		Severity:  domain.SeverityWarning,
		ClinicID:  clinicID,
		PatientID: patientID,
		Action:    fmt.Sprintf("Consent withdrawn: %s", consentType),
		Details: map[string]interface{}{
			"consent_type": string(consentType),
		},
	})
}

// LogVerificationStarted records the opening of a verification session.
func (l *Logger) LogVerificationStarted(ctx context.Context, clinicID, patientID, sessionID string, methods []domain.VerificationMethod) (*domain.AuditEvent, error) {
	names := make([]string, len(methods))
	for i, m := range methods {
		names[i] = string(m)
	}
	return l.Log(ctx, Entry{
		EventType: domain.EventVerificationStarted,
		Severity:  domain.SeverityInfo,
		ClinicID:  clinicID,
		PatientID: patientID,
		SessionID: sessionID,
		Action:    "Patient verification started",
		Details: map[string]interface{}{
			"methods_required": names,
		},
	})
}

// LogVerificationSuccess records a completed verification.
func (l *Logger) LogVerificationSuccess(ctx context.Context, clinicID, patientID, sessionID string, completed []domain.VerificationMethod) (*domain.AuditEvent, error) {
	names := make([]string, len(completed))
	for i, m := range completed {
		names[i] = string(m)
	}
	return l.Log(ctx, Entry{
		EventType: domain.EventVerificationSuccess,
		Severity:  domain.SeverityInfo,
		ClinicID:  clinicID,
		PatientID: patientID,
		SessionID: sessionID,
		Action:    "Patient verification successful",
		Details: map[string]interface{}{
			"methods_completed": names,
		},
	})
}

// LogVerificationFailed records a failed verification attempt.
func (l *Logger) LogVerificationFailed(ctx context.Context, clinicID, patientID, sessionID string, method domain.VerificationMethod, attempts int) (*domain.AuditEvent, error) {
	return l.Log(ctx, Entry{
		EventType: domain.EventVerificationFailed,
		Severity:  domain.SeverityWarning,
		ClinicID:  clinicID,
		PatientID: patientID,
		SessionID: sessionID,
		Action:    fmt.Sprintf("Verification failed: %s", method),
		Outcome:   domain.OutcomeFailure,
		Details: map[string]interface{}{
			"method":   string(method),
			"attempts": attempts,
		},
	})
}

// LogVerificationLocked records a lockout after repeated failures.
func (l *Logger) LogVerificationLocked(ctx context.Context, clinicID, patientID, sessionID string, lockoutMinutes int) (*domain.AuditEvent, error) {
	return l.Log(ctx, Entry{
		EventType: domain.EventVerificationLocked,
		Severity:  domain.SeverityError,
		ClinicID:  clinicID,
		PatientID: patientID,
		SessionID: sessionID,
		Action:    fmt.Sprintf("Account locked for %d minutes", lockoutMinutes),
		Outcome:   domain.OutcomeFailure,
		Details: map[string]interface{}{
			"lockout_duration_minutes": lockoutMinutes,
		},
	})
}

// LogContentFiltered records a content filter decision.
func (l *Logger) LogContentFiltered(ctx context.Context, clinicID, patientID string, categories []domain.ContentCategory, action domain.FilterAction, source string) (*domain.AuditEvent, error) {
	names := make([]string, len(categories))
	for i, c := range categories {
		names[i] = string(c)
	}
	return l.Log(ctx, Entry{
		EventType: domain.EventContentFiltered,
		Severity:  domain.SeverityWarning,
		ClinicID:  clinicID,
		PatientID: patientID,
		Action:    fmt.Sprintf("Content filtered: %s", action),
		Details: map[string]interface{}{
			"categories":   names,
			"action_taken": string(action),
			"source":       source,
		},
	})
}

// LogPromptInjection records a blocked prompt injection attempt.
func (l *Logger) LogPromptInjection(ctx context.Context, clinicID, patientID string, patterns []string) (*domain.AuditEvent, error) {
	return l.Log(ctx, Entry{
		EventType: domain.EventPromptInjectionDetected,
		Severity:  domain.SeverityError,
		ClinicID:  clinicID,
		PatientID: patientID,
		Action:    "Prompt injection attempt detected",
		Outcome:   domain.OutcomeBlocked,
		Details: map[string]interface{}{
			"patterns_detected": patterns,
		},
	})
}

// LogAIResponseFiltered records an AI response that was softened or replaced.
func (l *Logger) LogAIResponseFiltered(ctx context.Context, clinicID, patientID, reason string, category domain.ContentCategory) (*domain.AuditEvent, error) {
	return l.Log(ctx, Entry{
		EventType: domain.EventAIResponseFiltered,
		Severity:  domain.SeverityWarning,
		ClinicID:  clinicID,
		PatientID: patientID,
		Action:    fmt.Sprintf("AI response filtered: %s", reason),
		Details: map[string]interface{}{
			"reason":   reason,
			"category": string(category),
		},
	})
}

// LogPHIAccessed records access to protected health information.
func (l *Logger) LogPHIAccessed(ctx context.Context, clinicID, patientID, dataType, purpose string) (*domain.AuditEvent, error) {
	return l.Log(ctx, Entry{
		EventType: domain.EventPHIAccessed,
		Severity:  domain.SeverityInfo,
		ClinicID:  clinicID,
		PatientID: patientID,
		Action:    fmt.Sprintf("PHI accessed: %s", dataType),
		Details: map[string]interface{}{
			"data_type": dataType,
			"purpose":   purpose,
		},
	})
}

// LogAppointmentEvent records an appointment lifecycle event.
func (l *Logger) LogAppointmentEvent(ctx context.Context, eventType domain.AuditEventType, clinicID, patientID, appointmentID string) (*domain.AuditEvent, error) {
	actions := map[domain.AuditEventType]string{
		domain.EventAppointmentViewed:    "Appointment viewed",
		domain.EventAppointmentCreated:   "Appointment created",
		domain.EventAppointmentModified:  "Appointment modified",
		domain.EventAppointmentCancelled: "Appointment cancelled",
	}
	action, ok := actions[eventType]
	if !ok {
		action = "Appointment event"
	}
	return l.Log(ctx, Entry{
		EventType: eventType,
		Severity:  domain.SeverityInfo,
		ClinicID:  clinicID,
		PatientID: patientID,
		Action:    action,
		Details: map[string]interface{}{
			"appointment_id": appointmentID,
		},
	})
}

// LogSystemError records an internal failure.
func (l *Logger) LogSystemError(ctx context.Context, clinicID, errorType, errorMessage, component string) (*domain.AuditEvent, error) {
	return l.Log(ctx, Entry{
		EventType: domain.EventSystemError,
		Severity:  domain.SeverityError,
		ClinicID:  clinicID,
		Action:    fmt.Sprintf("System error: %s", errorType),
		Outcome:   domain.OutcomeFailure,
		Details: map[string]interface{}{
			"error_type":    errorType,
			"error_message": errorMessage,
			"component":     component,
		},
	})
}

// LogRateLimitExceeded records a throttled request.
func (l *Logger) LogRateLimitExceeded(ctx context.Context, clinicID, patientID, limitType string, current, limit int) (*domain.AuditEvent, error) {
	return l.Log(ctx, Entry{
		EventType: domain.EventRateLimitExceeded,
		Severity:  domain.SeverityWarning,
		ClinicID:  clinicID,
		PatientID: patientID,
		Action:    fmt.Sprintf("Rate limit exceeded: %s", limitType),
		Outcome:   domain.OutcomeBlocked,
		Details: map[string]interface{}{
			"limit_type":    limitType,
			"current_count": current,
			"limit":         limit,
		},
	})
}

// LogHumanEscalation records a request for a human agent.
func (l *Logger) LogHumanEscalation(ctx context.Context, clinicID, patientID, reason string) (*domain.AuditEvent, error) {
	return l.Log(ctx, Entry{
		EventType: domain.EventHumanEscalationRequested,
		Severity:  domain.SeverityWarning,
		ClinicID:  clinicID,
		PatientID: patientID,
		Action:    fmt.Sprintf("Human escalation requested: %s", reason),
		Details: map[string]interface{}{
			"reason": reason,
		},
	})
}
