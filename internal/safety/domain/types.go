package domain

// PIIType identifies a category of personally identifiable information
type PIIType string

const (
	PIITypeSSN           PIIType = "SSN"
	PIITypeCreditCard    PIIType = "CREDIT_CARD"
	PIITypeEmail         PIIType = "EMAIL"
	PIITypePhone         PIIType = "PHONE"
	PIITypePerson        PIIType = "PERSON"
	PIITypeDateOfBirth   PIIType = "DATE_OF_BIRTH"
	PIITypeAddress       PIIType = "ADDRESS"
	PIITypeMedicalRecord PIIType = "MEDICAL_RECORD"
	PIITypeInsuranceID   PIIType = "INSURANCE_ID"
	PIITypeIPAddress     PIIType = "IP_ADDRESS"
	PIITypeUnknown       PIIType = "UNKNOWN"
)

// CrisisType identifies the kind of crisis detected in a message
type CrisisType string

const (
	CrisisTypeNone              CrisisType = "none"
	CrisisTypeSelfHarm          CrisisType = "self_harm"
	CrisisTypeSuicide           CrisisType = "suicide"
	CrisisTypeHarmToOthers      CrisisType = "harm_to_others"
	CrisisTypeMedicalEmergency  CrisisType = "medical_emergency"
	CrisisTypeDomesticAbuse     CrisisType = "domestic_abuse"
	CrisisTypeChildSafety       CrisisType = "child_safety"
	CrisisTypeSubstanceOverdose CrisisType = "substance_overdose"
	CrisisTypeMentalHealth      CrisisType = "mental_health_crisis"
)

// CrisisLevel is the severity of a detected crisis
type CrisisLevel string

const (
	CrisisLevelNone     CrisisLevel = "none"
	CrisisLevelLow      CrisisLevel = "low"
	CrisisLevelMedium   CrisisLevel = "medium"
	CrisisLevelHigh     CrisisLevel = "high"
	CrisisLevelCritical CrisisLevel = "critical"
)

// Rank returns the ordering of a crisis level for comparisons
func (l CrisisLevel) Rank() int {
	switch l {
	case CrisisLevelLow:
		return 1
	case CrisisLevelMedium:
		return 2
	case CrisisLevelHigh:
		return 3
	case CrisisLevelCritical:
		return 4
	default:
		return 0
	}
}

// Demote returns the level one step down. Critical is never demoted.
func (l CrisisLevel) Demote() CrisisLevel {
	switch l {
	case CrisisLevelCritical:
		return CrisisLevelCritical
	case CrisisLevelHigh:
		return CrisisLevelMedium
	case CrisisLevelMedium:
		return CrisisLevelLow
	case CrisisLevelLow:
		return CrisisLevelNone
	default:
		return CrisisLevelNone
	}
}

// ContentCategory is a category of filtered content
type ContentCategory string

const (
	ContentCategoryClean         ContentCategory = "clean"
	ContentCategoryProfanity     ContentCategory = "profanity"
	ContentCategorySexual        ContentCategory = "sexual"
	ContentCategoryViolence      ContentCategory = "violence"
	ContentCategorySpam          ContentCategory = "spam"
	ContentCategoryOffTopic      ContentCategory = "off_topic"
	ContentCategoryHateSpeech    ContentCategory = "hate_speech"
	ContentCategoryHallucination ContentCategory = "hallucination"
	ContentCategoryMedicalAdvice ContentCategory = "medical_advice"
)

// FilterAction is the action recommended by the content filter
type FilterAction string

const (
	FilterActionAllow    FilterAction = "allow"
	FilterActionWarn     FilterAction = "warn"
	FilterActionRedirect FilterAction = "redirect"
	FilterActionBlock    FilterAction = "block"
)

// ConsentType identifies a kind of consent a patient can grant
type ConsentType string

const (
	ConsentTypeAIInteraction        ConsentType = "ai_interaction"
	ConsentTypeDataProcessing       ConsentType = "data_processing"
	ConsentTypeSMSCommunication     ConsentType = "sms_communication"
	ConsentTypeEmailCommunication   ConsentType = "email_communication"
	ConsentTypeVoiceCommunication   ConsentType = "voice_communication"
	ConsentTypeAppointmentReminders ConsentType = "appointment_reminders"
	ConsentTypeMarketing            ConsentType = "marketing"
	ConsentTypeDataSharing          ConsentType = "data_sharing"
)

// DefaultRequiredConsents is the consent set required before AI interaction
var DefaultRequiredConsents = []ConsentType{
	ConsentTypeAIInteraction,
	ConsentTypeDataProcessing,
}

// ConsentStatus is the lifecycle state of a consent record
type ConsentStatus string

const (
	ConsentStatusGranted   ConsentStatus = "granted"
	ConsentStatusDenied    ConsentStatus = "denied"
	ConsentStatusWithdrawn ConsentStatus = "withdrawn"
	ConsentStatusExpired   ConsentStatus = "expired"
	ConsentStatusPending   ConsentStatus = "pending"
)

// VerificationMethod identifies a challenge type for identity verification
type VerificationMethod string

const (
	MethodDateOfBirth      VerificationMethod = "date_of_birth"
	MethodPhoneLastFour    VerificationMethod = "phone_last_four"
	MethodSSNLastFour      VerificationMethod = "ssn_last_four"
	MethodVerificationCode VerificationMethod = "verification_code"
	MethodSecurityQuestion VerificationMethod = "security_question"
	MethodNameConfirmation VerificationMethod = "name_confirmation"
)

// DefaultVerificationMethods is the standard challenge sequence
var DefaultVerificationMethods = []VerificationMethod{
	MethodDateOfBirth,
}

// HighSecurityMethods is required for sensitive operations
var HighSecurityMethods = []VerificationMethod{
	MethodDateOfBirth,
	MethodPhoneLastFour,
}

// VerificationStatus is the state of a verification session
type VerificationStatus string

const (
	VerificationStatusPending  VerificationStatus = "pending"
	VerificationStatusVerified VerificationStatus = "verified"
	VerificationStatusFailed   VerificationStatus = "failed"
	VerificationStatusLocked   VerificationStatus = "locked"
	VerificationStatusExpired  VerificationStatus = "expired"
)

// AuditEventType identifies the kind of audit event
type AuditEventType string

const (
	// PII events
	EventPIIDetected      AuditEventType = "pii_detected"
	EventPIIRedacted      AuditEventType = "pii_redacted"
	EventPIIAccessAttempt AuditEventType = "pii_access_attempt"

	// Crisis events
	EventCrisisDetected  AuditEventType = "crisis_detected"
	EventCrisisEscalated AuditEventType = "crisis_escalated"
	EventCrisisResolved  AuditEventType = "crisis_resolved"

	// Consent events
	EventConsentGranted   AuditEventType = "consent_granted"
	EventConsentWithdrawn AuditEventType = "consent_withdrawn"
	EventConsentExpired   AuditEventType = "consent_expired"
	EventConsentCheck     AuditEventType = "consent_check"

	// Verification events
	EventVerificationStarted AuditEventType = "verification_started"
	EventVerificationSuccess AuditEventType = "verification_success"
	EventVerificationFailed  AuditEventType = "verification_failed"
	EventVerificationLocked  AuditEventType = "verification_locked"

	// Content events
	EventContentFiltered         AuditEventType = "content_filtered"
	EventContentBlocked          AuditEventType = "content_blocked"
	EventPromptInjectionDetected AuditEventType = "prompt_injection_detected"

	// Access events
	EventPHIAccessed          AuditEventType = "phi_accessed"
	EventAppointmentViewed    AuditEventType = "appointment_viewed"
	EventAppointmentCreated   AuditEventType = "appointment_created"
	EventAppointmentModified  AuditEventType = "appointment_modified"
	EventAppointmentCancelled AuditEventType = "appointment_cancelled"

	// AI events
	EventAIRequest                AuditEventType = "ai_request"
	EventAIResponse               AuditEventType = "ai_response"
	EventAIResponseFiltered       AuditEventType = "ai_response_filtered"
	EventAIHallucinationDetected  AuditEventType = "ai_hallucination_detected"
	EventHumanEscalationRequested AuditEventType = "human_escalation_requested"
	EventHumanEscalationCompleted AuditEventType = "human_escalation_completed"

	// System events
	EventSystemError       AuditEventType = "system_error"
	EventRateLimitExceeded AuditEventType = "rate_limit_exceeded"
)

// AuditSeverity is the severity of an audit event
type AuditSeverity string

const (
	SeverityDebug    AuditSeverity = "debug"
	SeverityInfo     AuditSeverity = "info"
	SeverityWarning  AuditSeverity = "warning"
	SeverityError    AuditSeverity = "error"
	SeverityCritical AuditSeverity = "critical"
)

// Outcome values for audit events
const (
	OutcomeSuccess = "success"
	OutcomeFailure = "failure"
	OutcomeBlocked = "blocked"
	OutcomePartial = "partial"
)
