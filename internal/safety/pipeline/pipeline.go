package pipeline

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/medrelay/safety-service/internal/safety/audit"
	"github.com/medrelay/safety-service/internal/safety/consent"
	"github.com/medrelay/safety-service/internal/safety/content"
	"github.com/medrelay/safety-service/internal/safety/crisis"
	"github.com/medrelay/safety-service/internal/safety/domain"
	"github.com/medrelay/safety-service/internal/safety/pii"
	"github.com/medrelay/safety-service/internal/safety/sanitizer"
	"github.com/medrelay/safety-service/internal/safety/verification"
	"github.com/medrelay/safety-service/pkg/config"
	"github.com/medrelay/safety-service/pkg/logger"
)

// RequestContext carries per-message identifiers and processing flags.
type RequestContext struct {
	PatientID        string
	SessionID        string
	RequestID        string
	SkipConsentCheck bool
	HighSecurity     bool
}

// InputResult is the outcome of running user input through the pipeline.
type InputResult struct {
	RequestID     string    `json:"request_id"`
	Timestamp     time.Time `json:"timestamp"`
	Action        Action    `json:"action"`
	CanProceed    bool      `json:"can_proceed"`
	OriginalText  string    `json:"-"`
	ProcessedText string    `json:"processed_text"`

	Sanitization    *sanitizer.Result    `json:"sanitization,omitempty"`
	PIIDetection    *pii.Result          `json:"pii_detection,omitempty"`
	CrisisDetection *crisis.Result       `json:"crisis_detection,omitempty"`
	ContentFilter   *content.Result      `json:"content_filter,omitempty"`
	ConsentCheck    *consent.CheckResult `json:"consent_check,omitempty"`

	HasPII                  bool `json:"has_pii"`
	HasCrisis               bool `json:"has_crisis"`
	HasInappropriateContent bool `json:"has_inappropriate_content"`
	HasPromptInjection      bool `json:"has_prompt_injection"`
	RequiresConsent         bool `json:"requires_consent"`
	RequiresVerification    bool `json:"requires_verification"`

	SuggestedResponse string   `json:"suggested_response,omitempty"`
	CrisisResources   []string `json:"crisis_resources,omitempty"`

	ProcessingTime time.Duration `json:"processing_time"`
	ComponentsRun  []string      `json:"components_run"`
}

// OutputResult is the outcome of running an AI response through the pipeline.
type OutputResult struct {
	RequestID     string    `json:"request_id"`
	Timestamp     time.Time `json:"timestamp"`
	Action        Action    `json:"action"`
	CanSend       bool      `json:"can_send"`
	OriginalText  string    `json:"-"`
	ProcessedText string    `json:"processed_text"`

	PIIDetection  *pii.Result     `json:"pii_detection,omitempty"`
	ContentFilter *content.Result `json:"content_filter,omitempty"`

	HasPIILeak              bool `json:"has_pii_leak"`
	HasHallucination        bool `json:"has_hallucination"`
	HasMedicalAdvice        bool `json:"has_medical_advice"`
	HasInappropriateContent bool `json:"has_inappropriate_content"`

	FallbackResponse string `json:"fallback_response,omitempty"`

	ProcessingTime time.Duration `json:"processing_time"`
}

// Pipeline runs every message through the full safety stack for one clinic.
// Safe for concurrent use.
type Pipeline struct {
	clinicID string

	sanitizer *sanitizer.Sanitizer
	pii       *pii.Detector
	crisis    *crisis.Detector
	content   *content.Filter
	consent   *consent.Manager
	verifier  *verification.Verifier
	audit     *audit.Logger

	log *logger.Logger
	now func() time.Time

	forwarder      audit.Forwarder
	lockoutMinutes int

	enablePII     bool
	enableCrisis  bool
	enableContent bool
	enableConsent bool
	enableAudit   bool
}

// Option configures a Pipeline.
type Option func(*Pipeline)

// WithoutPIIDetection disables the PII stage.
func WithoutPIIDetection() Option {
	return func(p *Pipeline) { p.enablePII = false }
}

// WithoutCrisisDetection disables the crisis stage.
func WithoutCrisisDetection() Option {
	return func(p *Pipeline) { p.enableCrisis = false }
}

// WithoutContentFilter disables the content stage.
func WithoutContentFilter() Option {
	return func(p *Pipeline) { p.enableContent = false }
}

// WithoutConsentCheck disables the consent stage.
func WithoutConsentCheck() Option {
	return func(p *Pipeline) { p.enableConsent = false }
}

// WithoutAuditLogging disables audit writes.
func WithoutAuditLogging() Option {
	return func(p *Pipeline) { p.enableAudit = false }
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(p *Pipeline) { p.now = now }
}

// WithForwarder attaches a SIEM forwarder to the audit logger.
func WithForwarder(f audit.Forwarder) Option {
	return func(p *Pipeline) { p.forwarder = f }
}

// Stores bundles the persistence collaborators the pipeline builds its
// components over.
type Stores struct {
	Consent      consent.Store
	Verification verification.SessionStore
	Directory    verification.PatientDirectory
	Audit        audit.Store
}

// New builds a Pipeline for a clinic. All components are constructed once,
// up front; nothing is lazily initialized.
func New(clinicID string, cfg *config.SafetyConfig, stores Stores, log *logger.Logger, opts ...Option) *Pipeline {
	log = log.WithClinicID(clinicID)

	var sanitizerOpts []sanitizer.Option
	if cfg.MaxInputLength > 0 {
		sanitizerOpts = append(sanitizerOpts, sanitizer.WithMaxLength(cfg.MaxInputLength))
	}

	var piiOpts []pii.Option
	if cfg.PIIConfidenceThreshold > 0 {
		piiOpts = append(piiOpts, pii.WithConfidenceThreshold(cfg.PIIConfidenceThreshold))
	}

	var crisisOpts []crisis.Option
	if cfg.CrisisSensitivity > 0 {
		crisisOpts = append(crisisOpts, crisis.WithSensitivity(cfg.CrisisSensitivity))
	}

	var contentOpts []content.Option
	if cfg.StrictMode {
		contentOpts = append(contentOpts, content.WithStrictMode())
	}

	var consentOpts []consent.Option
	if cfg.ConsentDurationDays > 0 {
		consentOpts = append(consentOpts, consent.WithDuration(time.Duration(cfg.ConsentDurationDays)*24*time.Hour))
	}

	var verifierOpts []verification.Option
	if cfg.VerificationSessionExpiry > 0 {
		verifierOpts = append(verifierOpts, verification.WithSessionExpiry(cfg.VerificationSessionExpiry))
	}
	if cfg.VerificationMaxAttempts > 0 {
		verifierOpts = append(verifierOpts, verification.WithMaxAttempts(cfg.VerificationMaxAttempts))
	}
	if cfg.LockoutDuration > 0 {
		verifierOpts = append(verifierOpts, verification.WithLockoutDuration(cfg.LockoutDuration))
	}
	if cfg.VerificationCodeExpiry > 0 {
		verifierOpts = append(verifierOpts, verification.WithCodeExpiry(cfg.VerificationCodeExpiry))
	}
	if cfg.VerificationTokenSecret != "" {
		expiry := cfg.VerificationTokenExpiry
		if expiry <= 0 {
			expiry = time.Hour
		}
		verifierOpts = append(verifierOpts, verification.WithTokenIssuer(
			verification.NewTokenIssuer(cfg.VerificationTokenSecret, expiry)))
	}

	lockoutMinutes := int(verification.DefaultLockoutDuration.Minutes())
	if cfg.LockoutDuration > 0 {
		lockoutMinutes = int(cfg.LockoutDuration.Minutes())
	}

	p := &Pipeline{
		clinicID:  clinicID,
		sanitizer: sanitizer.New(log.Logger, sanitizerOpts...),
		pii:       pii.New(log.Logger, piiOpts...),
		crisis:    crisis.New(log.Logger, crisisOpts...),
		content:   content.New(log.Logger, contentOpts...),
		consent:   consent.NewManager(clinicID, stores.Consent, log.Logger, consentOpts...),
		verifier:  verification.NewVerifier(clinicID, stores.Verification, stores.Directory, log.Logger, verifierOpts...),

		log: log.WithComponent("safety_pipeline"),
		now: time.Now,

		lockoutMinutes: lockoutMinutes,

		enablePII:     true,
		enableCrisis:  true,
		enableContent: true,
		enableConsent: true,
		enableAudit:   true,
	}
	for _, opt := range opts {
		opt(p)
	}

	auditOpts := []audit.Option{}
	if !cfg.EnableHashChain {
		auditOpts = append(auditOpts, audit.WithoutHashChain())
	}
	if p.forwarder != nil {
		auditOpts = append(auditOpts, audit.WithForwarder(p.forwarder))
	}
	p.audit = audit.NewLogger(stores.Audit, log, auditOpts...)

	p.log.Info().
		Bool("pii", p.enablePII).
		Bool("crisis", p.enableCrisis).
		Bool("content", p.enableContent).
		Bool("consent", p.enableConsent).
		Msg("safety pipeline initialized")

	return p
}

// ProcessInput runs user input through the full pipeline:
// sanitization, consent, PII redaction, crisis detection, content filtering.
// It never returns an error; failures degrade per stage, and a panic in any
// stage resolves to human review.
func (p *Pipeline) ProcessInput(ctx context.Context, text string, rc RequestContext) (result *InputResult) {
	start := p.now()

	requestID := rc.RequestID
	if requestID == "" {
		requestID = uuid.New().String()
	}

	result = &InputResult{
		RequestID:     requestID,
		Timestamp:     start.UTC(),
		Action:        ActionProceed,
		CanProceed:    true,
		OriginalText:  text,
		ProcessedText: text,
	}

	defer func() {
		if r := recover(); r != nil {
			p.log.Error().Interface("panic", r).Str("request_id", requestID).Msg("pipeline panic")
			result.Action = ActionHumanReview
			result.CanProceed = false
			result.SuggestedResponse = technicalIssueFallback
			p.auditSystemError(ctx, "pipeline_panic", fmt.Sprint(r))
		}
		result.ProcessingTime = p.now().Sub(start)
		processingDuration.WithLabelValues("input").Observe(result.ProcessingTime.Seconds())
		inputProcessedTotal.WithLabelValues(p.clinicID, string(result.Action)).Inc()
	}()

	// Sanitization runs first; injection attempts stop everything else.
	san := p.sanitizer.Sanitize(text)
	result.Sanitization = &san
	result.ProcessedText = san.SanitizedText
	result.ComponentsRun = append(result.ComponentsRun, "sanitizer")

	if san.InjectionDetected {
		result.HasPromptInjection = true
		result.Action = ActionBlock
		result.CanProceed = false
		result.SuggestedResponse = blockFallback
		detectionsTotal.WithLabelValues(p.clinicID, "prompt_injection").Inc()
		if p.enableAudit {
			if _, err := p.audit.LogPromptInjection(ctx, p.clinicID, rc.PatientID, san.MatchedPatterns); err != nil {
				p.log.Warn().Err(err).Msg("audit write failed")
			}
		}
		return result
	}

	// Consent gate. A store failure here fails safe to human review rather
	// than letting an unconsented message through.
	if p.enableConsent && rc.PatientID != "" && !rc.SkipConsentCheck {
		check, err := p.consent.CheckConsent(ctx, rc.PatientID)
		result.ComponentsRun = append(result.ComponentsRun, "consent_manager")
		if err != nil {
			p.log.Error().Err(err).Str("request_id", requestID).Msg("consent check failed")
			result.Action = ActionHumanReview
			result.CanProceed = false
			result.SuggestedResponse = technicalIssueFallback
			p.auditSystemError(ctx, "consent_check_error", err.Error())
			return result
		}
		result.ConsentCheck = check

		if !check.HasConsent {
			result.RequiresConsent = true
			result.Action = ActionRequireConsent
			result.CanProceed = false
			result.SuggestedResponse = consentFallback
			if p.enableAudit {
				missing := make([]string, len(check.MissingConsents))
				for i, c := range check.MissingConsents {
					missing[i] = string(c)
				}
				if _, err := p.audit.Log(ctx, audit.Entry{
					EventType: domain.EventConsentCheck,
					Severity:  domain.SeverityWarning,
					ClinicID:  p.clinicID,
					PatientID: rc.PatientID,
					Action:    "Consent required but not granted",
					Details:   map[string]interface{}{"missing": missing},
				}); err != nil {
					p.log.Warn().Err(err).Msg("audit write failed")
				}
			}
			return result
		}
	}

	// PII redaction. Detection failures inside the detector already degrade
	// to "nothing found"; the message continues either way.
	if p.enablePII {
		piiResult := p.pii.Detect(result.ProcessedText)
		result.PIIDetection = &piiResult
		result.ComponentsRun = append(result.ComponentsRun, "pii_detector")

		if piiResult.PIIDetected {
			result.HasPII = true
			result.ProcessedText = piiResult.RedactedText
			if result.Action == ActionProceed {
				result.Action = ActionProceedWithRedaction
			}
			detectionsTotal.WithLabelValues(p.clinicID, "pii").Inc()
			if p.enableAudit {
				types := make([]domain.PIIType, len(piiResult.Entities))
				for i, e := range piiResult.Entities {
					types[i] = e.Type
				}
				if _, err := p.audit.LogPIIDetected(ctx, p.clinicID, rc.PatientID, types, "redacted", "user_input"); err != nil {
					p.log.Warn().Err(err).Msg("audit write failed")
				}
			}
		}
	}

	// Crisis detection. Critical and high levels are terminal; the caller
	// shows the resources verbatim and hands off to a human.
	if p.enableCrisis {
		crisisResult := p.crisis.Detect(result.ProcessedText)
		result.CrisisDetection = &crisisResult
		result.ComponentsRun = append(result.ComponentsRun, "crisis_detector")

		if crisisResult.IsCrisis {
			result.HasCrisis = true
			result.CrisisResources = crisisResult.Resources
			detectionsTotal.WithLabelValues(p.clinicID, "crisis").Inc()

			escalate := crisisResult.Level == domain.CrisisLevelCritical || crisisResult.Level == domain.CrisisLevelHigh
			if p.enableAudit {
				if _, err := p.audit.LogCrisisDetected(ctx, p.clinicID, rc.PatientID, crisisResult.Type, crisisResult.Level, escalate); err != nil {
					p.log.Warn().Err(err).Msg("audit write failed")
				}
			}

			if escalate {
				result.Action = ActionEscalateCrisis
				result.CanProceed = false
				result.SuggestedResponse = crisisFallback
				return result
			}
		}
	}

	// Content filtering.
	if p.enableContent {
		contentResult := p.content.FilterInput(result.ProcessedText)
		result.ContentFilter = &contentResult
		result.ComponentsRun = append(result.ComponentsRun, "content_filter")

		if !contentResult.IsAppropriate {
			result.HasInappropriateContent = true
			detectionsTotal.WithLabelValues(p.clinicID, "content").Inc()

			switch contentResult.Action {
			case domain.FilterActionBlock:
				result.Action = ActionBlock
				result.CanProceed = false
				result.SuggestedResponse = contentResult.SuggestedResponse
				if result.SuggestedResponse == "" {
					result.SuggestedResponse = blockFallback
				}
			case domain.FilterActionRedirect:
				result.Action = ActionRedirect
				result.CanProceed = false
				result.SuggestedResponse = contentResult.SuggestedResponse
				if result.SuggestedResponse == "" {
					result.SuggestedResponse = redirectFallback
				}
			case domain.FilterActionWarn:
				if result.Action == ActionProceed {
					result.Action = ActionHumanReview
				}
			}

			if p.enableAudit {
				if _, err := p.audit.LogContentFiltered(ctx, p.clinicID, rc.PatientID, contentResult.Categories, contentResult.Action, "user_input"); err != nil {
					p.log.Warn().Err(err).Msg("audit write failed")
				}
			}
		}
	}

	if p.enableAudit && result.CanProceed {
		if _, err := p.audit.Log(ctx, audit.Entry{
			EventType: domain.EventAIRequest,
			Severity:  domain.SeverityDebug,
			ClinicID:  p.clinicID,
			PatientID: rc.PatientID,
			Action:    "AI request: conversation",
			Details: map[string]interface{}{
				"request_type": "conversation",
				"input_length": len(result.ProcessedText),
			},
		}); err != nil {
			p.log.Warn().Err(err).Msg("audit write failed")
		}
	}

	return result
}

// ProcessOutput screens an AI response before it reaches the patient:
// PII leakage is silently redacted, hallucinated facts and medical advice
// are blocked in favor of a fixed fallback.
func (p *Pipeline) ProcessOutput(ctx context.Context, text string, rc RequestContext) (result *OutputResult) {
	start := p.now()

	requestID := rc.RequestID
	if requestID == "" {
		requestID = uuid.New().String()
	}

	result = &OutputResult{
		RequestID:     requestID,
		Timestamp:     start.UTC(),
		Action:        ActionProceed,
		CanSend:       true,
		OriginalText:  text,
		ProcessedText: text,
	}

	defer func() {
		if r := recover(); r != nil {
			p.log.Error().Interface("panic", r).Str("request_id", requestID).Msg("output pipeline panic")
			result.Action = ActionBlock
			result.CanSend = false
			result.FallbackResponse = aiBlockedFallback
			p.auditSystemError(ctx, "output_pipeline_panic", fmt.Sprint(r))
		}
		result.ProcessingTime = p.now().Sub(start)
		processingDuration.WithLabelValues("output").Observe(result.ProcessingTime.Seconds())
		outputProcessedTotal.WithLabelValues(p.clinicID, string(result.Action)).Inc()
	}()

	if p.enablePII {
		piiResult := p.pii.Detect(text)
		result.PIIDetection = &piiResult

		if piiResult.PIIDetected {
			result.HasPIILeak = true
			result.ProcessedText = piiResult.RedactedText
			detectionsTotal.WithLabelValues(p.clinicID, "pii_leak").Inc()
			if p.enableAudit {
				types := make([]domain.PIIType, len(piiResult.Entities))
				for i, e := range piiResult.Entities {
					types[i] = e.Type
				}
				if _, err := p.audit.LogPIIDetected(ctx, p.clinicID, rc.PatientID, types, "redacted_from_output", "ai_response"); err != nil {
					p.log.Warn().Err(err).Msg("audit write failed")
				}
			}
		}
	}

	if p.enableContent {
		contentResult := p.content.FilterOutput(text)
		result.ContentFilter = &contentResult

		if !contentResult.IsAppropriate {
			result.HasInappropriateContent = true
			for _, c := range contentResult.Categories {
				switch c {
				case domain.ContentCategoryHallucination:
					result.HasHallucination = true
				case domain.ContentCategoryMedicalAdvice:
					result.HasMedicalAdvice = true
				}
			}

			primary := domain.ContentCategory("unknown")
			if len(contentResult.Categories) > 0 {
				primary = contentResult.Categories[0]
			}

			switch contentResult.Action {
			case domain.FilterActionBlock:
				result.Action = ActionBlock
				result.CanSend = false
				result.FallbackResponse = aiBlockedFallback
				if p.enableAudit {
					if _, err := p.audit.LogAIResponseFiltered(ctx, p.clinicID, rc.PatientID, "blocked", primary); err != nil {
						p.log.Warn().Err(err).Msg("audit write failed")
					}
				}
			case domain.FilterActionWarn:
				// Still send, but flag for review.
				result.Action = ActionHumanReview
				if p.enableAudit {
					if _, err := p.audit.LogAIResponseFiltered(ctx, p.clinicID, rc.PatientID, "flagged", primary); err != nil {
						p.log.Warn().Err(err).Msg("audit write failed")
					}
				}
			}
		}
	}

	return result
}

// GrantConsent records consent grants for a patient, defaulting to the
// consents required for AI processing.
func (p *Pipeline) GrantConsent(ctx context.Context, patientID string, types ...domain.ConsentType) ([]domain.ConsentRecord, error) {
	if !p.enableConsent {
		return nil, nil
	}
	if len(types) == 0 {
		types = domain.DefaultRequiredConsents
	}

	records := make([]domain.ConsentRecord, 0, len(types))
	for _, t := range types {
		record, err := p.consent.GrantConsent(ctx, patientID, t)
		if err != nil {
			return records, fmt.Errorf("granting %s consent: %w", t, err)
		}
		records = append(records, *record)

		if p.enableAudit {
			if _, err := p.audit.LogConsentGranted(ctx, p.clinicID, patientID, t, record.TextVersion); err != nil {
				p.log.Warn().Err(err).Msg("audit write failed")
			}
		}
	}
	return records, nil
}

// WithdrawConsent withdraws a consent and records the withdrawal.
func (p *Pipeline) WithdrawConsent(ctx context.Context, patientID string, consentType domain.ConsentType) (*domain.ConsentRecord, error) {
	if !p.enableConsent {
		return nil, nil
	}
	record, err := p.consent.WithdrawConsent(ctx, patientID, consentType)
	if err != nil {
		return nil, err
	}
	if p.enableAudit {
		if _, auditErr := p.audit.LogConsentWithdrawn(ctx, p.clinicID, patientID, consentType); auditErr != nil {
			p.log.Warn().Err(auditErr).Msg("audit write failed")
		}
	}
	return record, nil
}

// StartVerification opens an identity verification session for a patient.
func (p *Pipeline) StartVerification(ctx context.Context, patientID string, highSecurity bool) (*domain.VerificationResult, error) {
	var result *domain.VerificationResult
	var err error
	if highSecurity {
		result, err = p.verifier.StartHighSecurity(ctx, patientID)
	} else {
		result, err = p.verifier.StartVerification(ctx, patientID)
	}
	if err != nil {
		return nil, err
	}

	if p.enableAudit && result.Session != nil {
		if _, auditErr := p.audit.LogVerificationStarted(ctx, p.clinicID, patientID, result.Session.ID, result.Session.Methods); auditErr != nil {
			p.log.Warn().Err(auditErr).Msg("audit write failed")
		}
	}
	return result, nil
}

// Verify checks a challenge answer and records the outcome.
func (p *Pipeline) Verify(ctx context.Context, sessionID string, method domain.VerificationMethod, value string) (*domain.VerificationResult, error) {
	result, err := p.verifier.Verify(ctx, sessionID, method, value)
	if err != nil {
		return nil, err
	}

	if p.enableAudit {
		switch {
		case result.Status == domain.VerificationStatusVerified:
			if _, auditErr := p.audit.LogVerificationSuccess(ctx, p.clinicID, result.Session.PatientID, sessionID, result.Session.CompletedMethods); auditErr != nil {
				p.log.Warn().Err(auditErr).Msg("audit write failed")
			}
		case result.Status == domain.VerificationStatusLocked:
			if _, auditErr := p.audit.LogVerificationLocked(ctx, p.clinicID, p.patientForSession(ctx, sessionID), sessionID, p.lockoutMinutes); auditErr != nil {
				p.log.Warn().Err(auditErr).Msg("audit write failed")
			}
		case !result.Success && result.Session != nil:
			if _, auditErr := p.audit.LogVerificationFailed(ctx, p.clinicID, result.Session.PatientID, sessionID, method, result.Session.Attempts); auditErr != nil {
				p.log.Warn().Err(auditErr).Msg("audit write failed")
			}
		}
	}
	return result, nil
}

// AuditSummary aggregates this clinic's audit activity.
func (p *Pipeline) AuditSummary(ctx context.Context, start, end time.Time) (*domain.AuditSummary, error) {
	return p.audit.Summary(ctx, p.clinicID, start, end)
}

// VerifyAuditChain replays this clinic's hash chain.
func (p *Pipeline) VerifyAuditChain(ctx context.Context) (*domain.ChainVerification, error) {
	return p.audit.VerifyChainIntegrity(ctx, p.clinicID)
}

// Audit exposes the underlying audit logger for callers that record events
// outside the per-message loop.
func (p *Pipeline) Audit() *audit.Logger {
	return p.audit
}

func (p *Pipeline) auditSystemError(ctx context.Context, errorType, message string) {
	if !p.enableAudit {
		return
	}
	if _, err := p.audit.LogSystemError(ctx, p.clinicID, errorType, message, "safety_pipeline"); err != nil {
		p.log.Warn().Err(err).Msg("audit write failed")
	}
}

func (p *Pipeline) patientForSession(ctx context.Context, sessionID string) string {
	session, err := p.verifier.Session(ctx, sessionID)
	if err != nil {
		return ""
	}
	return session.PatientID
}
