package consent

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/medrelay/safety-service/internal/safety/domain"
	"github.com/medrelay/safety-service/pkg/logger"
)

const (
	testClinic  = "clinic-1"
	testPatient = "patient-1"
)

func newManager(opts ...Option) *Manager {
	return NewManager(testClinic, NewMemoryStore(), logger.Nop().Logger, opts...)
}

func TestCheckConsent_NothingGranted(t *testing.T) {
	m := newManager()

	result, err := m.CheckConsent(context.Background(), testPatient)

	require.NoError(t, err)
	assert.False(t, result.HasConsent)
	assert.True(t, result.RequiresAction)
	assert.ElementsMatch(t, domain.DefaultRequiredConsents, result.MissingConsents)
	assert.Empty(t, result.ExpiredConsents)
}

func TestCheckConsent_AllGranted(t *testing.T) {
	m := newManager()
	ctx := context.Background()

	for _, ct := range domain.DefaultRequiredConsents {
		_, err := m.GrantConsent(ctx, testPatient, ct)
		require.NoError(t, err)
	}

	result, err := m.CheckConsent(ctx, testPatient)

	require.NoError(t, err)
	assert.True(t, result.HasConsent)
	assert.False(t, result.RequiresAction)
	assert.Equal(t, "All required consents are valid.", result.Message)
}

func TestCheckConsent_DistinguishesExpiredFromMissing(t *testing.T) {
	now := time.Now()
	clock := now
	m := newManager(WithClock(func() time.Time { return clock }))
	ctx := context.Background()

	_, err := m.GrantConsent(ctx, testPatient, domain.ConsentTypeAIInteraction, 24*time.Hour)
	require.NoError(t, err)

	clock = now.Add(48 * time.Hour)
	result, err := m.CheckConsent(ctx, testPatient)

	require.NoError(t, err)
	assert.False(t, result.HasConsent)
	assert.Contains(t, result.ExpiredConsents, domain.ConsentTypeAIInteraction)
	assert.Contains(t, result.MissingConsents, domain.ConsentTypeDataProcessing)
}

func TestCheckConsent_Idempotent(t *testing.T) {
	m := newManager()
	ctx := context.Background()

	_, err := m.GrantConsent(ctx, testPatient, domain.ConsentTypeAIInteraction)
	require.NoError(t, err)

	first, err := m.CheckConsent(ctx, testPatient)
	require.NoError(t, err)
	second, err := m.CheckConsent(ctx, testPatient)
	require.NoError(t, err)

	assert.Equal(t, first, second)
}

func TestGrantConsent_RecordShape(t *testing.T) {
	m := newManager()

	record, err := m.GrantConsent(context.Background(), testPatient, domain.ConsentTypeAIInteraction)

	require.NoError(t, err)
	assert.NotEmpty(t, record.ID)
	assert.Equal(t, testClinic, record.ClinicID)
	assert.Equal(t, domain.ConsentStatusGranted, record.Status)
	assert.Equal(t, "1.0", record.TextVersion)
	require.NotNil(t, record.ExpiresAt)
	assert.WithinDuration(t, time.Now().Add(DefaultDuration), *record.ExpiresAt, time.Minute)
}

func TestWithdrawConsent_PreservesHistory(t *testing.T) {
	m := newManager()
	ctx := context.Background()

	granted, err := m.GrantConsent(ctx, testPatient, domain.ConsentTypeAIInteraction)
	require.NoError(t, err)

	withdrawn, err := m.WithdrawConsent(ctx, testPatient, domain.ConsentTypeAIInteraction)
	require.NoError(t, err)

	assert.Equal(t, domain.ConsentStatusWithdrawn, withdrawn.Status)
	assert.NotNil(t, withdrawn.WithdrawnAt)
	assert.Equal(t, granted.GrantedAt, withdrawn.GrantedAt)

	// withdrawn consent counts as missing, not expired
	result, err := m.CheckConsent(ctx, testPatient, domain.ConsentTypeAIInteraction)
	require.NoError(t, err)
	assert.Contains(t, result.MissingConsents, domain.ConsentTypeAIInteraction)
	assert.Empty(t, result.ExpiredConsents)
}

func TestWithdrawConsent_NotFound(t *testing.T) {
	m := newManager()

	_, err := m.WithdrawConsent(context.Background(), testPatient, domain.ConsentTypeMarketing)

	assert.Error(t, err)
}

func TestHasValidConsent(t *testing.T) {
	m := newManager()
	ctx := context.Background()

	assert.False(t, m.HasValidConsent(ctx, testPatient, domain.ConsentTypeAIInteraction))

	_, err := m.GrantConsent(ctx, testPatient, domain.ConsentTypeAIInteraction)
	require.NoError(t, err)

	assert.True(t, m.HasValidConsent(ctx, testPatient, domain.ConsentTypeAIInteraction))
}

func TestCanProcessWithAI(t *testing.T) {
	m := newManager()
	ctx := context.Background()

	assert.False(t, m.CanProcessWithAI(ctx, testPatient))

	for _, ct := range domain.DefaultRequiredConsents {
		_, err := m.GrantConsent(ctx, testPatient, ct)
		require.NoError(t, err)
	}

	assert.True(t, m.CanProcessWithAI(ctx, testPatient))
}

func TestCustomRequiredConsents(t *testing.T) {
	m := newManager(WithRequiredConsents(domain.ConsentTypeSMSCommunication))
	ctx := context.Background()

	_, err := m.GrantConsent(ctx, testPatient, domain.ConsentTypeSMSCommunication)
	require.NoError(t, err)

	assert.True(t, m.CanProcessWithAI(ctx, testPatient))
}

func TestTextFor(t *testing.T) {
	known := TextFor(domain.ConsentTypeAIInteraction)
	assert.Equal(t, "1.0", known.Version)
	assert.Contains(t, known.Text, "AI-powered medical receptionist")

	fallback := TextFor(domain.ConsentTypeDataSharing)
	assert.Contains(t, fallback.Text, "data_sharing")
}

func TestAllConsents(t *testing.T) {
	m := newManager()
	ctx := context.Background()

	_, err := m.GrantConsent(ctx, testPatient, domain.ConsentTypeAIInteraction)
	require.NoError(t, err)
	_, err = m.GrantConsent(ctx, testPatient, domain.ConsentTypeSMSCommunication)
	require.NoError(t, err)

	records, err := m.AllConsents(ctx, testPatient)

	require.NoError(t, err)
	assert.Len(t, records, 2)
}
