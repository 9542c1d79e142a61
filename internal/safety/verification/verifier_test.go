package verification

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/medrelay/safety-service/internal/safety/domain"
	apperrors "github.com/medrelay/safety-service/pkg/errors"
	"github.com/medrelay/safety-service/pkg/logger"
)

const (
	testClinic  = "clinic-1"
	testPatient = "patient-001"
)

func testDirectory(t *testing.T) *MemoryDirectory {
	t.Helper()
	answerHash, err := HashSecurityAnswer("johnson")
	require.NoError(t, err)

	dir := NewMemoryDirectory()
	dir.Add(domain.PatientIdentity{
		PatientID:          testPatient,
		ClinicID:           testClinic,
		DateOfBirth:        "1985-03-15",
		PhoneLastFour:      "4567",
		SSNLastFour:        "1234",
		FirstName:          "John",
		LastName:           "Smith",
		SecurityQuestion:   "What is your mother's maiden name?",
		SecurityAnswerHash: answerHash,
		ContactPhone:       "555-123-4567",
	})
	return dir
}

func newVerifier(t *testing.T, opts ...Option) *Verifier {
	t.Helper()
	return NewVerifier(testClinic, NewMemoryStore(), testDirectory(t), logger.Nop().Logger, opts...)
}

func TestStartVerification_IssuesFirstChallenge(t *testing.T) {
	v := newVerifier(t)

	result, err := v.StartVerification(context.Background(), testPatient)

	require.NoError(t, err)
	assert.True(t, result.Success)
	assert.Equal(t, domain.VerificationStatusPending, result.Status)
	require.NotNil(t, result.NextChallenge)
	assert.Equal(t, domain.MethodDateOfBirth, result.NextChallenge.Method)
	require.NotNil(t, result.Session)
	assert.NotEmpty(t, result.Session.ID)
}

func TestStartVerification_UnknownPatientDoesNotReveal(t *testing.T) {
	v := newVerifier(t)

	result, err := v.StartVerification(context.Background(), "no-such-patient")

	require.NoError(t, err)
	assert.False(t, result.Success)
	assert.Equal(t, domain.VerificationStatusFailed, result.Status)
	assert.True(t, result.RequiresHuman)
	assert.NotContains(t, result.Message, "no-such-patient")
}

func TestVerify_CorrectDOBVerifies(t *testing.T) {
	v := newVerifier(t)
	ctx := context.Background()

	start, err := v.StartVerification(ctx, testPatient)
	require.NoError(t, err)

	result, err := v.Verify(ctx, start.Session.ID, domain.MethodDateOfBirth, "1985-03-15")

	require.NoError(t, err)
	assert.True(t, result.Success)
	assert.Equal(t, domain.VerificationStatusVerified, result.Status)
	assert.True(t, v.IsVerified(ctx, start.Session.ID))
}

func TestVerify_DOBFormatNormalization(t *testing.T) {
	v := newVerifier(t)
	ctx := context.Background()

	start, err := v.StartVerification(ctx, testPatient)
	require.NoError(t, err)

	result, err := v.Verify(ctx, start.Session.ID, domain.MethodDateOfBirth, "1985/03/15")

	require.NoError(t, err)
	assert.True(t, result.Success)
}

func TestVerify_WrongAnswerReissuesChallenge(t *testing.T) {
	v := newVerifier(t)
	ctx := context.Background()

	start, err := v.StartVerification(ctx, testPatient)
	require.NoError(t, err)

	result, err := v.Verify(ctx, start.Session.ID, domain.MethodDateOfBirth, "1999-01-01")

	require.NoError(t, err)
	assert.False(t, result.Success)
	assert.Equal(t, domain.VerificationStatusPending, result.Status)
	require.NotNil(t, result.NextChallenge)
	assert.Equal(t, domain.MethodDateOfBirth, result.NextChallenge.Method)
	assert.Equal(t, DefaultMaxAttempts-1, result.NextChallenge.AttemptsRemaining)
}

func TestVerify_MultiMethodSequence(t *testing.T) {
	v := newVerifier(t)
	ctx := context.Background()

	start, err := v.StartHighSecurity(ctx, testPatient)
	require.NoError(t, err)

	step, err := v.Verify(ctx, start.Session.ID, domain.MethodDateOfBirth, "1985-03-15")
	require.NoError(t, err)
	assert.True(t, step.Success)
	assert.Equal(t, domain.VerificationStatusPending, step.Status)
	require.NotNil(t, step.NextChallenge)
	assert.Equal(t, domain.MethodPhoneLastFour, step.NextChallenge.Method)

	final, err := v.Verify(ctx, start.Session.ID, domain.MethodPhoneLastFour, "4567")
	require.NoError(t, err)
	assert.Equal(t, domain.VerificationStatusVerified, final.Status)
}

func TestVerify_SecurityQuestionUsesAnswerHash(t *testing.T) {
	v := newVerifier(t)
	ctx := context.Background()

	start, err := v.StartVerification(ctx, testPatient, domain.MethodSecurityQuestion)
	require.NoError(t, err)
	assert.Equal(t, "What is your mother's maiden name?", start.NextChallenge.Prompt)

	wrong, err := v.Verify(ctx, start.Session.ID, domain.MethodSecurityQuestion, "williams")
	require.NoError(t, err)
	assert.False(t, wrong.Success)

	right, err := v.Verify(ctx, start.Session.ID, domain.MethodSecurityQuestion, "  Johnson ")
	require.NoError(t, err)
	assert.True(t, right.Success)
}

func TestVerify_LockoutAfterMaxAttempts(t *testing.T) {
	v := newVerifier(t, WithMaxAttempts(3))
	ctx := context.Background()

	start, err := v.StartVerification(ctx, testPatient)
	require.NoError(t, err)

	var result *domain.VerificationResult
	for i := 0; i < 3; i++ {
		result, err = v.Verify(ctx, start.Session.ID, domain.MethodDateOfBirth, "wrong")
		require.NoError(t, err)
	}

	assert.Equal(t, domain.VerificationStatusLocked, result.Status)
	assert.True(t, result.RequiresHuman)
}

func TestVerify_LockoutBlocksNewSessions(t *testing.T) {
	v := newVerifier(t, WithMaxAttempts(2))
	ctx := context.Background()

	start, err := v.StartVerification(ctx, testPatient)
	require.NoError(t, err)
	for i := 0; i < 2; i++ {
		_, err = v.Verify(ctx, start.Session.ID, domain.MethodDateOfBirth, "wrong")
		require.NoError(t, err)
	}

	// a fresh session for the same patient is refused
	fresh, err := v.StartVerification(ctx, testPatient)
	require.NoError(t, err)
	assert.Equal(t, domain.VerificationStatusLocked, fresh.Status)
	assert.True(t, fresh.RequiresHuman)
}

func TestVerify_LockoutExpires(t *testing.T) {
	now := time.Now()
	clock := now
	v := newVerifier(t,
		WithMaxAttempts(1),
		WithLockoutDuration(30*time.Minute),
		WithClock(func() time.Time { return clock }),
	)
	ctx := context.Background()

	start, err := v.StartVerification(ctx, testPatient)
	require.NoError(t, err)
	_, err = v.Verify(ctx, start.Session.ID, domain.MethodDateOfBirth, "wrong")
	require.NoError(t, err)

	locked, err := v.StartVerification(ctx, testPatient)
	require.NoError(t, err)
	assert.Equal(t, domain.VerificationStatusLocked, locked.Status)

	clock = now.Add(31 * time.Minute)
	unlocked, err := v.StartVerification(ctx, testPatient)
	require.NoError(t, err)
	assert.Equal(t, domain.VerificationStatusPending, unlocked.Status)
}

func TestVerify_ExpiredSession(t *testing.T) {
	now := time.Now()
	clock := now
	v := newVerifier(t, WithClock(func() time.Time { return clock }))
	ctx := context.Background()

	start, err := v.StartVerification(ctx, testPatient)
	require.NoError(t, err)

	clock = now.Add(16 * time.Minute)
	result, err := v.Verify(ctx, start.Session.ID, domain.MethodDateOfBirth, "1985-03-15")

	require.NoError(t, err)
	assert.Equal(t, domain.VerificationStatusExpired, result.Status)

	session, err := v.Session(ctx, start.Session.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.VerificationStatusExpired, session.Status)
}

func TestVerify_UnknownSession(t *testing.T) {
	v := newVerifier(t)

	result, err := v.Verify(context.Background(), "missing", domain.MethodDateOfBirth, "x")

	require.NoError(t, err)
	assert.Equal(t, domain.VerificationStatusFailed, result.Status)
}

func TestVerificationCode_RoundTrip(t *testing.T) {
	v := newVerifier(t)
	ctx := context.Background()

	start, err := v.StartVerification(ctx, testPatient, domain.MethodVerificationCode)
	require.NoError(t, err)

	code, err := v.GenerateCode(ctx, start.Session.ID)
	require.NoError(t, err)
	assert.Len(t, code, 6)

	result, err := v.VerifyCode(ctx, start.Session.ID, code)
	require.NoError(t, err)
	assert.True(t, result.Success)
	assert.Equal(t, domain.VerificationStatusVerified, result.Status)
}

func TestVerificationCode_WrongCodeFails(t *testing.T) {
	v := newVerifier(t)
	ctx := context.Background()

	start, err := v.StartVerification(ctx, testPatient, domain.MethodVerificationCode)
	require.NoError(t, err)
	_, err = v.GenerateCode(ctx, start.Session.ID)
	require.NoError(t, err)

	result, err := v.VerifyCode(ctx, start.Session.ID, "000000")
	require.NoError(t, err)
	assert.False(t, result.Success)
}

func TestVerificationCode_Expires(t *testing.T) {
	now := time.Now()
	clock := now
	v := newVerifier(t, WithClock(func() time.Time { return clock }))
	ctx := context.Background()

	start, err := v.StartVerification(ctx, testPatient, domain.MethodVerificationCode)
	require.NoError(t, err)
	code, err := v.GenerateCode(ctx, start.Session.ID)
	require.NoError(t, err)

	clock = now.Add(11 * time.Minute)
	result, err := v.VerifyCode(ctx, start.Session.ID, code)

	require.NoError(t, err)
	assert.Equal(t, domain.VerificationStatusExpired, result.Status)
}

func TestVerificationCode_NoCodeRequested(t *testing.T) {
	v := newVerifier(t)
	ctx := context.Background()

	start, err := v.StartVerification(ctx, testPatient)
	require.NoError(t, err)

	result, err := v.VerifyCode(ctx, start.Session.ID, "123456")
	require.NoError(t, err)
	assert.Equal(t, domain.VerificationStatusFailed, result.Status)
}

func TestGenerateCode_RefusesExpiredSession(t *testing.T) {
	now := time.Now()
	clock := now
	v := newVerifier(t, WithClock(func() time.Time { return clock }))
	ctx := context.Background()

	start, err := v.StartVerification(ctx, testPatient, domain.MethodVerificationCode)
	require.NoError(t, err)

	clock = now.Add(16 * time.Minute)
	_, err = v.GenerateCode(ctx, start.Session.ID)
	assert.ErrorIs(t, err, apperrors.ErrSessionExpired)
}

func TestGenerateCode_RefusesLockedPatient(t *testing.T) {
	v := newVerifier(t, WithMaxAttempts(1), WithLockoutDuration(30*time.Minute))
	ctx := context.Background()

	start, err := v.StartVerification(ctx, testPatient, domain.MethodVerificationCode)
	require.NoError(t, err)
	_, err = v.Verify(ctx, start.Session.ID, domain.MethodVerificationCode, "000000")
	require.NoError(t, err)

	_, err = v.GenerateCode(ctx, start.Session.ID)
	assert.ErrorIs(t, err, apperrors.ErrPatientLocked)
}

func TestProofToken_IssuedOnVerification(t *testing.T) {
	issuer := NewTokenIssuer("test-secret", 30*time.Minute)
	v := newVerifier(t, WithTokenIssuer(issuer))
	ctx := context.Background()

	start, err := v.StartVerification(ctx, testPatient)
	require.NoError(t, err)

	result, err := v.Verify(ctx, start.Session.ID, domain.MethodDateOfBirth, "1985-03-15")
	require.NoError(t, err)
	require.NotEmpty(t, result.ProofToken)

	claims, err := issuer.Validate(result.ProofToken)
	require.NoError(t, err)
	assert.Equal(t, testPatient, claims.Subject)
	assert.Equal(t, testClinic, claims.ClinicID)
	assert.Equal(t, start.Session.ID, claims.SessionID)
}

func TestProofToken_RejectsTamperedToken(t *testing.T) {
	issuer := NewTokenIssuer("test-secret", 30*time.Minute)

	token, err := issuer.Issue(testPatient, testClinic, "sess")
	require.NoError(t, err)

	other := NewTokenIssuer("different-secret", 30*time.Minute)
	_, err = other.Validate(token)
	assert.Error(t, err)
}

func TestVerify_NameConfirmation(t *testing.T) {
	v := newVerifier(t)
	ctx := context.Background()

	start, err := v.StartVerification(ctx, testPatient, domain.MethodNameConfirmation)
	require.NoError(t, err)
	assert.Contains(t, start.NextChallenge.Prompt, "'J'")

	result, err := v.Verify(ctx, start.Session.ID, domain.MethodNameConfirmation, "John Smith")
	require.NoError(t, err)
	assert.True(t, result.Success)
}
