// Package verification confirms patient identity before PHI access. It runs
// a challenge/response state machine per session, with per-patient lockout
// after repeated failures so a fresh session cannot reset the attempt count.
package verification

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base64"
	"encoding/hex"
	goerrors "errors"
	"fmt"
	"math/big"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/crypto/bcrypt"

	"github.com/medrelay/safety-service/internal/safety/domain"
	"github.com/medrelay/safety-service/pkg/errors"
)

const (
	DefaultSessionExpiry   = 15 * time.Minute
	DefaultMaxAttempts     = 5
	DefaultLockoutDuration = 30 * time.Minute
	DefaultCodeExpiry      = 10 * time.Minute

	codeLength = 6
)

// Verifier runs identity verification for one clinic
type Verifier struct {
	clinicID        string
	store           SessionStore
	directory       PatientDirectory
	defaultMethods  []domain.VerificationMethod
	sessionExpiry   time.Duration
	maxAttempts     int
	lockoutDuration time.Duration
	codeExpiry      time.Duration
	tokens          *TokenIssuer
	logger          zerolog.Logger
	now             func() time.Time
}

// Option configures a Verifier
type Option func(*Verifier)

// WithDefaultMethods overrides the standard challenge sequence
func WithDefaultMethods(methods ...domain.VerificationMethod) Option {
	return func(v *Verifier) { v.defaultMethods = methods }
}

// WithSessionExpiry overrides the session lifetime
func WithSessionExpiry(d time.Duration) Option {
	return func(v *Verifier) {
		if d > 0 {
			v.sessionExpiry = d
		}
	}
}

// WithMaxAttempts overrides the failed-attempt ceiling
func WithMaxAttempts(n int) Option {
	return func(v *Verifier) {
		if n > 0 {
			v.maxAttempts = n
		}
	}
}

// WithLockoutDuration overrides the per-patient lockout window
func WithLockoutDuration(d time.Duration) Option {
	return func(v *Verifier) {
		if d > 0 {
			v.lockoutDuration = d
		}
	}
}

// WithCodeExpiry overrides the one-time code lifetime
func WithCodeExpiry(d time.Duration) Option {
	return func(v *Verifier) {
		if d > 0 {
			v.codeExpiry = d
		}
	}
}

// WithTokenIssuer enables proof tokens on successful verification
func WithTokenIssuer(t *TokenIssuer) Option {
	return func(v *Verifier) { v.tokens = t }
}

// WithClock overrides the time source, used by tests
func WithClock(now func() time.Time) Option {
	return func(v *Verifier) { v.now = now }
}

// NewVerifier creates a Verifier for a clinic
func NewVerifier(clinicID string, store SessionStore, directory PatientDirectory, logger zerolog.Logger, opts ...Option) *Verifier {
	v := &Verifier{
		clinicID:        clinicID,
		store:           store,
		directory:       directory,
		defaultMethods:  domain.DefaultVerificationMethods,
		sessionExpiry:   DefaultSessionExpiry,
		maxAttempts:     DefaultMaxAttempts,
		lockoutDuration: DefaultLockoutDuration,
		codeExpiry:      DefaultCodeExpiry,
		logger:          logger.With().Str("component", "patient_verifier").Str("clinic_id", clinicID).Logger(),
		now:             time.Now,
	}
	for _, opt := range opts {
		opt(v)
	}
	return v
}

// StartVerification opens a session and returns the first challenge. A
// patient under lockout is refused even though the session would be new.
func (v *Verifier) StartVerification(ctx context.Context, patientID string, methods ...domain.VerificationMethod) (*domain.VerificationResult, error) {
	locked, remaining, err := v.isLockedOut(ctx, patientID)
	if err != nil {
		return nil, err
	}
	if locked {
		return &domain.VerificationResult{
			Status:        domain.VerificationStatusLocked,
			Message:       fmt.Sprintf("Account temporarily locked. Please try again in %d minutes or contact the clinic.", remaining),
			RequiresHuman: true,
		}, nil
	}

	identity, err := v.directory.Lookup(ctx, v.clinicID, patientID)
	if err != nil {
		if goerrors.Is(err, errors.ErrNotFound) {
			// do not reveal whether the patient exists
			v.logger.Warn().Str("patient_id", patientID).Msg("verification attempted for unknown patient")
			return &domain.VerificationResult{
				Status:        domain.VerificationStatusFailed,
				Message:       "Unable to verify identity. Please contact the clinic directly.",
				RequiresHuman: true,
			}, nil
		}
		return nil, fmt.Errorf("looking up patient: %w", err)
	}

	required := methods
	if len(required) == 0 {
		required = v.defaultMethods
	}

	now := v.now()
	session := &domain.VerificationSession{
		ID:        newSessionID(),
		PatientID: patientID,
		ClinicID:  v.clinicID,
		Status:    domain.VerificationStatusPending,
		Methods:   required,
		CreatedAt: now,
		ExpiresAt: now.Add(v.sessionExpiry),
	}
	if err := v.store.PutSession(ctx, session); err != nil {
		return nil, fmt.Errorf("storing session: %w", err)
	}

	v.logger.Info().
		Str("patient_id", patientID).
		Str("session_id", session.ID).
		Msg("verification session started")

	challenge := v.challenge(session.ID, required[0], identity, v.maxAttempts)
	return &domain.VerificationResult{
		Success:       true,
		Status:        domain.VerificationStatusPending,
		Message:       "Verification required. Please answer the security question.",
		NextChallenge: challenge,
		Session:       session,
	}, nil
}

// StartHighSecurity opens a session requiring the extended method set, used
// before sensitive operations.
func (v *Verifier) StartHighSecurity(ctx context.Context, patientID string) (*domain.VerificationResult, error) {
	return v.StartVerification(ctx, patientID, domain.HighSecurityMethods...)
}

// Verify checks a challenge answer and advances the session state machine
func (v *Verifier) Verify(ctx context.Context, sessionID string, method domain.VerificationMethod, value string) (*domain.VerificationResult, error) {
	session, err := v.store.GetSession(ctx, sessionID)
	if err != nil {
		if goerrors.Is(err, errors.ErrSessionNotFound) {
			return &domain.VerificationResult{
				Status:  domain.VerificationStatusFailed,
				Message: "Invalid or expired session. Please start over.",
			}, nil
		}
		return nil, fmt.Errorf("loading session: %w", err)
	}

	now := v.now()
	if session.Expired(now) {
		session.Status = domain.VerificationStatusExpired
		if err := v.store.PutSession(ctx, session); err != nil {
			return nil, fmt.Errorf("storing session: %w", err)
		}
		return &domain.VerificationResult{
			Status:  domain.VerificationStatusExpired,
			Message: "Verification session expired. Please start over.",
		}, nil
	}

	if session.Attempts >= v.maxAttempts {
		if err := v.lockPatient(ctx, session); err != nil {
			return nil, err
		}
		return &domain.VerificationResult{
			Status:        domain.VerificationStatusLocked,
			Message:       "Too many failed attempts. Account temporarily locked.",
			RequiresHuman: true,
		}, nil
	}

	identity, err := v.directory.Lookup(ctx, v.clinicID, session.PatientID)
	if err != nil {
		return &domain.VerificationResult{
			Status:        domain.VerificationStatusFailed,
			Message:       "Verification failed. Please contact the clinic.",
			RequiresHuman: true,
		}, nil
	}

	if v.verifyResponse(method, value, identity, session) {
		return v.advance(ctx, session, method, identity)
	}
	return v.recordFailure(ctx, session, method, identity)
}

// advance marks a method complete and either finishes or issues the next
// challenge.
func (v *Verifier) advance(ctx context.Context, session *domain.VerificationSession, method domain.VerificationMethod, identity *domain.PatientIdentity) (*domain.VerificationResult, error) {
	session.CompletedMethods = append(session.CompletedMethods, method)

	next, more := session.NextMethod()
	if !more {
		now := v.now()
		session.Status = domain.VerificationStatusVerified
		session.VerifiedAt = &now
		if err := v.store.PutSession(ctx, session); err != nil {
			return nil, fmt.Errorf("storing session: %w", err)
		}

		v.logger.Info().
			Str("patient_id", session.PatientID).
			Str("session_id", session.ID).
			Msg("patient verified")

		result := &domain.VerificationResult{
			Success: true,
			Status:  domain.VerificationStatusVerified,
			Message: "Identity verified successfully.",
			Session: session,
		}
		if v.tokens != nil {
			token, err := v.tokens.Issue(session.PatientID, session.ClinicID, session.ID)
			if err != nil {
				v.logger.Error().Err(err).Msg("issuing proof token failed")
			} else {
				result.ProofToken = token
			}
		}
		return result, nil
	}

	if err := v.store.PutSession(ctx, session); err != nil {
		return nil, fmt.Errorf("storing session: %w", err)
	}
	return &domain.VerificationResult{
		Success:       true,
		Status:        domain.VerificationStatusPending,
		Message:       "Verification step completed. Please continue.",
		NextChallenge: v.challenge(session.ID, next, identity, v.maxAttempts-session.Attempts),
		Session:       session,
	}, nil
}

// recordFailure increments the attempt counter, locking the patient once the
// ceiling is reached; otherwise the same challenge is reissued.
func (v *Verifier) recordFailure(ctx context.Context, session *domain.VerificationSession, method domain.VerificationMethod, identity *domain.PatientIdentity) (*domain.VerificationResult, error) {
	session.Attempts++
	attemptsLeft := v.maxAttempts - session.Attempts

	v.logger.Warn().
		Str("patient_id", session.PatientID).
		Str("method", string(method)).
		Int("attempts_left", attemptsLeft).
		Msg("verification attempt failed")

	if session.Attempts >= v.maxAttempts {
		if err := v.lockPatient(ctx, session); err != nil {
			return nil, err
		}
		return &domain.VerificationResult{
			Status:        domain.VerificationStatusLocked,
			Message:       "Too many failed attempts. Please contact the clinic for assistance.",
			RequiresHuman: true,
		}, nil
	}

	if err := v.store.PutSession(ctx, session); err != nil {
		return nil, fmt.Errorf("storing session: %w", err)
	}
	return &domain.VerificationResult{
		Status:        domain.VerificationStatusPending,
		Message:       fmt.Sprintf("Verification failed. %d attempts remaining.", attemptsLeft),
		NextChallenge: v.challenge(session.ID, method, identity, attemptsLeft),
		Session:       session,
	}, nil
}

func (v *Verifier) lockPatient(ctx context.Context, session *domain.VerificationSession) error {
	session.Status = domain.VerificationStatusLocked
	if err := v.store.PutSession(ctx, session); err != nil {
		return fmt.Errorf("storing session: %w", err)
	}
	until := v.now().Add(v.lockoutDuration)
	if err := v.store.SetLockout(ctx, session.ClinicID, session.PatientID, until); err != nil {
		return fmt.Errorf("storing lockout: %w", err)
	}

	v.logger.Warn().
		Str("patient_id", session.PatientID).
		Time("until", until).
		Msg("patient locked out")
	return nil
}

// GenerateCode creates a one-time numeric code for the session and returns
// it for out-of-band delivery. Only its hash is stored. Expired sessions and
// locked-out patients are refused before any code is issued.
func (v *Verifier) GenerateCode(ctx context.Context, sessionID string) (string, error) {
	session, err := v.store.GetSession(ctx, sessionID)
	if err != nil {
		return "", err
	}
	if session.Expired(v.now()) {
		return "", errors.ErrSessionExpired
	}
	locked, remaining, err := v.isLockedOut(ctx, session.PatientID)
	if err != nil {
		return "", err
	}
	if locked {
		return "", errors.PatientLocked(remaining)
	}

	code, err := randomDigits(codeLength)
	if err != nil {
		return "", fmt.Errorf("generating code: %w", err)
	}

	hash := sha256.Sum256([]byte(code))
	expires := v.now().Add(v.codeExpiry)
	session.CodeHash = hex.EncodeToString(hash[:])
	session.CodeExpiresAt = &expires
	if err := v.store.PutSession(ctx, session); err != nil {
		return "", fmt.Errorf("storing session: %w", err)
	}

	v.logger.Info().Str("session_id", sessionID).Msg("verification code generated")
	return code, nil
}

// VerifyCode checks a one-time code against the session's stored hash
func (v *Verifier) VerifyCode(ctx context.Context, sessionID, code string) (*domain.VerificationResult, error) {
	session, err := v.store.GetSession(ctx, sessionID)
	if err != nil || session.CodeHash == "" {
		return &domain.VerificationResult{
			Status:  domain.VerificationStatusFailed,
			Message: "Invalid session or no code requested.",
		}, nil
	}

	if session.CodeExpiresAt != nil && v.now().After(*session.CodeExpiresAt) {
		return &domain.VerificationResult{
			Status:  domain.VerificationStatusExpired,
			Message: "Verification code expired. Please request a new code.",
		}, nil
	}

	return v.Verify(ctx, sessionID, domain.MethodVerificationCode, code)
}

// IsVerified reports whether a session reached the verified state
func (v *Verifier) IsVerified(ctx context.Context, sessionID string) bool {
	session, err := v.store.GetSession(ctx, sessionID)
	return err == nil && session.Status == domain.VerificationStatusVerified
}

// Session returns the current session state
func (v *Verifier) Session(ctx context.Context, sessionID string) (*domain.VerificationSession, error) {
	return v.store.GetSession(ctx, sessionID)
}

func (v *Verifier) isLockedOut(ctx context.Context, patientID string) (bool, int, error) {
	until, ok, err := v.store.LockoutUntil(ctx, v.clinicID, patientID)
	if err != nil {
		return false, 0, fmt.Errorf("reading lockout: %w", err)
	}
	if !ok {
		return false, 0, nil
	}
	now := v.now()
	if now.Before(until) {
		return true, int(until.Sub(now).Minutes()), nil
	}
	if err := v.store.ClearLockout(ctx, v.clinicID, patientID); err != nil {
		return false, 0, fmt.Errorf("clearing lockout: %w", err)
	}
	return false, 0, nil
}

// challenge builds the prompt for a method
func (v *Verifier) challenge(sessionID string, method domain.VerificationMethod, identity *domain.PatientIdentity, attemptsRemaining int) *domain.VerificationChallenge {
	c := &domain.VerificationChallenge{
		SessionID:         sessionID,
		Method:            method,
		AttemptsRemaining: attemptsRemaining,
	}

	switch method {
	case domain.MethodDateOfBirth:
		c.Prompt = "Please enter your date of birth (YYYY-MM-DD):"
		c.Hint = "Format: YYYY-MM-DD"
	case domain.MethodPhoneLastFour:
		c.Prompt = "Please enter the last 4 digits of the phone number on file:"
		if len(identity.ContactPhone) >= 4 {
			c.Hint = fmt.Sprintf("Phone ending in ...%s", identity.ContactPhone[len(identity.ContactPhone)-4:])
		}
	case domain.MethodSSNLastFour:
		c.Prompt = "Please enter the last 4 digits of your SSN:"
		c.Hint = "This is optional. You may skip and request a verification code instead."
	case domain.MethodSecurityQuestion:
		c.Prompt = identity.SecurityQuestion
		if c.Prompt == "" {
			c.Prompt = "What is your security answer?"
		}
	case domain.MethodNameConfirmation:
		if identity.FirstName != "" {
			initial := identity.FirstName[:1]
			c.Prompt = fmt.Sprintf("Please confirm your full name (first name starts with '%s'):", initial)
			c.Hint = fmt.Sprintf("First initial: %s", initial)
		} else {
			c.Prompt = "Please confirm your full name:"
		}
	default:
		c.Prompt = "Please complete verification:"
	}
	return c
}

// verifyResponse compares an answer against the directory facts. Every
// comparison is constant time.
func (v *Verifier) verifyResponse(method domain.VerificationMethod, value string, identity *domain.PatientIdentity, session *domain.VerificationSession) bool {
	value = strings.ToLower(strings.TrimSpace(value))

	switch method {
	case domain.MethodDateOfBirth:
		normalized := strings.NewReplacer("/", "-", ".", "-").Replace(value)
		return constantTimeEqual(normalized, strings.ToLower(identity.DateOfBirth))

	case domain.MethodPhoneLastFour:
		return constantTimeEqual(lastFour(value), identity.PhoneLastFour)

	case domain.MethodSSNLastFour:
		return constantTimeEqual(lastFour(value), identity.SSNLastFour)

	case domain.MethodSecurityQuestion:
		if identity.SecurityAnswerHash == "" {
			return false
		}
		return bcrypt.CompareHashAndPassword([]byte(identity.SecurityAnswerHash), []byte(value)) == nil

	case domain.MethodNameConfirmation:
		expected := strings.ToLower(strings.TrimSpace(identity.FirstName + " " + identity.LastName))
		return constantTimeEqual(value, expected)

	case domain.MethodVerificationCode:
		if session.CodeHash == "" {
			return false
		}
		hash := sha256.Sum256([]byte(strings.TrimSpace(value)))
		return constantTimeEqual(hex.EncodeToString(hash[:]), session.CodeHash)
	}
	return false
}

// HashSecurityAnswer produces the bcrypt hash stored in the directory for a
// patient's security answer.
func HashSecurityAnswer(answer string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(strings.ToLower(strings.TrimSpace(answer))), bcrypt.DefaultCost)
	if err != nil {
		return "", fmt.Errorf("hashing security answer: %w", err)
	}
	return string(hash), nil
}

func constantTimeEqual(a, b string) bool {
	return len(a) == len(b) && subtle.ConstantTimeCompare([]byte(a), []byte(b)) == 1
}

func lastFour(s string) string {
	if len(s) >= 4 {
		return s[len(s)-4:]
	}
	return s
}

func newSessionID() string {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		panic(err)
	}
	return base64.RawURLEncoding.EncodeToString(buf)
}

func randomDigits(n int) (string, error) {
	var b strings.Builder
	for i := 0; i < n; i++ {
		d, err := rand.Int(rand.Reader, big.NewInt(10))
		if err != nil {
			return "", err
		}
		b.WriteByte(byte('0' + d.Int64()))
	}
	return b.String(), nil
}
