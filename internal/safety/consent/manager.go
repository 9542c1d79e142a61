// Package consent tracks per-patient consent records for HIPAA compliance.
// Explicit, unexpired consent must exist before patient data reaches an AI
// system; withdrawal flips a record's status but never erases its history.
package consent

import (
	"context"
	goerrors "errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/medrelay/safety-service/internal/safety/domain"
	"github.com/medrelay/safety-service/pkg/errors"
)

// DefaultDuration is how long a granted consent stays valid
const DefaultDuration = 365 * 24 * time.Hour

// CheckResult is the outcome of verifying a patient's required consents
type CheckResult struct {
	HasConsent      bool                 `json:"has_consent"`
	MissingConsents []domain.ConsentType `json:"missing_consents,omitempty"`
	ExpiredConsents []domain.ConsentType `json:"expired_consents,omitempty"`
	Message         string               `json:"message"`
	RequiresAction  bool                 `json:"requires_action"`
}

// Manager enforces consent requirements for one clinic
type Manager struct {
	clinicID string
	required []domain.ConsentType
	duration time.Duration
	store    Store
	logger   zerolog.Logger
	now      func() time.Time
}

// Option configures a Manager
type Option func(*Manager)

// WithRequiredConsents overrides the default required consent set
func WithRequiredConsents(types ...domain.ConsentType) Option {
	return func(m *Manager) { m.required = types }
}

// WithDuration overrides the default consent validity window
func WithDuration(d time.Duration) Option {
	return func(m *Manager) {
		if d > 0 {
			m.duration = d
		}
	}
}

// WithClock overrides the time source, used by tests
func WithClock(now func() time.Time) Option {
	return func(m *Manager) { m.now = now }
}

// NewManager creates a Manager for a clinic
func NewManager(clinicID string, store Store, logger zerolog.Logger, opts ...Option) *Manager {
	m := &Manager{
		clinicID: clinicID,
		required: domain.DefaultRequiredConsents,
		duration: DefaultDuration,
		store:    store,
		logger:   logger.With().Str("component", "consent_manager").Str("clinic_id", clinicID).Logger(),
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// CheckConsent verifies that the patient holds every required consent,
// distinguishing never-granted from granted-then-lapsed so the caller can
// present the right prompt.
func (m *Manager) CheckConsent(ctx context.Context, patientID string, required ...domain.ConsentType) (*CheckResult, error) {
	types := required
	if len(types) == 0 {
		types = m.required
	}

	now := m.now()
	var missing, expired []domain.ConsentType

	for _, t := range types {
		record, err := m.store.Get(ctx, m.clinicID, patientID, t)
		if err != nil {
			if goerrors.Is(err, errors.ErrNotFound) {
				missing = append(missing, t)
				continue
			}
			return nil, fmt.Errorf("reading consent record: %w", err)
		}
		if record.Active(now) {
			continue
		}
		if record.Status == domain.ConsentStatusGranted && record.ExpiresAt != nil {
			expired = append(expired, t)
		} else {
			missing = append(missing, t)
		}
	}

	hasConsent := len(missing) == 0 && len(expired) == 0

	var message string
	switch {
	case hasConsent:
		message = "All required consents are valid."
	case len(missing) > 0 && len(expired) > 0:
		message = fmt.Sprintf("Missing consents: %v. Expired consents: %v.", missing, expired)
	case len(missing) > 0:
		message = fmt.Sprintf("Missing required consents: %v.", missing)
	default:
		message = fmt.Sprintf("Expired consents requiring renewal: %v.", expired)
	}

	return &CheckResult{
		HasConsent:      hasConsent,
		MissingConsents: missing,
		ExpiredConsents: expired,
		Message:         message,
		RequiresAction:  !hasConsent,
	}, nil
}

// GrantConsent records a consent grant, superseding any prior record for the
// same type.
func (m *Manager) GrantConsent(ctx context.Context, patientID string, consentType domain.ConsentType, duration ...time.Duration) (*domain.ConsentRecord, error) {
	d := m.duration
	if len(duration) > 0 && duration[0] > 0 {
		d = duration[0]
	}

	now := m.now()
	expires := now.Add(d)
	record := &domain.ConsentRecord{
		ID:          uuid.New().String(),
		PatientID:   patientID,
		ClinicID:    m.clinicID,
		ConsentType: consentType,
		Status:      domain.ConsentStatusGranted,
		GrantedAt:   &now,
		ExpiresAt:   &expires,
		TextVersion: TextFor(consentType).Version,
		CreatedAt:   now,
	}

	if err := m.store.Put(ctx, record); err != nil {
		return nil, fmt.Errorf("storing consent record: %w", err)
	}

	m.logger.Info().
		Str("patient_id", patientID).
		Str("consent_type", string(consentType)).
		Time("expires_at", expires).
		Msg("consent granted")

	return record, nil
}

// WithdrawConsent flips an existing record to withdrawn, preserving the
// grant history.
func (m *Manager) WithdrawConsent(ctx context.Context, patientID string, consentType domain.ConsentType) (*domain.ConsentRecord, error) {
	record, err := m.store.Get(ctx, m.clinicID, patientID, consentType)
	if err != nil {
		if goerrors.Is(err, errors.ErrNotFound) {
			m.logger.Warn().
				Str("patient_id", patientID).
				Str("consent_type", string(consentType)).
				Msg("consent withdrawal failed, no record found")
		}
		return nil, err
	}

	now := m.now()
	record.Status = domain.ConsentStatusWithdrawn
	record.WithdrawnAt = &now

	if err := m.store.Put(ctx, record); err != nil {
		return nil, fmt.Errorf("storing withdrawal: %w", err)
	}

	m.logger.Info().
		Str("patient_id", patientID).
		Str("consent_type", string(consentType)).
		Msg("consent withdrawn")

	return record, nil
}

// ConsentStatus returns the current record for one consent type, or
// errors.ErrNotFound.
func (m *Manager) ConsentStatus(ctx context.Context, patientID string, consentType domain.ConsentType) (*domain.ConsentRecord, error) {
	return m.store.Get(ctx, m.clinicID, patientID, consentType)
}

// AllConsents lists every consent record held for a patient
func (m *Manager) AllConsents(ctx context.Context, patientID string) ([]domain.ConsentRecord, error) {
	return m.store.List(ctx, m.clinicID, patientID)
}

// HasValidConsent reports whether one specific consent is currently active
func (m *Manager) HasValidConsent(ctx context.Context, patientID string, consentType domain.ConsentType) bool {
	record, err := m.store.Get(ctx, m.clinicID, patientID, consentType)
	if err != nil {
		return false
	}
	return record.Active(m.now())
}

// CanProcessWithAI reports whether every required consent is active
func (m *Manager) CanProcessWithAI(ctx context.Context, patientID string) bool {
	result, err := m.CheckConsent(ctx, patientID)
	if err != nil {
		return false
	}
	return result.HasConsent
}
