package repository_test

import (
	"context"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/medrelay/safety-service/internal/safety/audit"
	"github.com/medrelay/safety-service/internal/safety/domain"
	"github.com/medrelay/safety-service/internal/safety/repository"
	"github.com/medrelay/safety-service/pkg/database"
	"github.com/medrelay/safety-service/pkg/errors"
	"github.com/medrelay/safety-service/pkg/logger"
	"github.com/medrelay/safety-service/pkg/testutil"
)

func newDB(t *testing.T) (*database.DB, *testutil.MockDB) {
	t.Helper()
	mock := testutil.NewMockDB(t)
	t.Cleanup(func() { mock.Close() })
	return database.NewWithDB(mock.DB, logger.Nop()), mock
}

func TestAuditRepository_Append(t *testing.T) {
	db, mock := newDB(t)
	repo := repository.NewAuditRepository(db)

	event := &domain.AuditEvent{
		ID:           "evt_1",
		Timestamp:    time.Now().UTC(),
		EventType:    domain.EventPIIDetected,
		Severity:     domain.SeverityInfo,
		ClinicID:     "clinic_1",
		PatientID:    "patient_1",
		Action:       "PII detected and redacted",
		Outcome:      domain.OutcomeSuccess,
		Details:      map[string]interface{}{"source": "user_input"},
		PreviousHash: audit.GenesisHash,
		EntryHash:    "abc123",
	}

	mock.ExpectExec("INSERT INTO audit_events").
		WithArgs(
			"evt_1", testutil.AnyTime{}, "pii_detected", "info", "clinic_1", "patient_1",
			"", "PII detected and redacted", "success", []byte(`{"source":"user_input"}`),
			audit.GenesisHash, "abc123",
		).
		WillReturnResult(sqlmock.NewResult(0, 1))

	err := repo.Append(context.Background(), event)
	require.NoError(t, err)
	mock.ExpectationsWereMet(t)
}

func TestAuditRepository_LastHash(t *testing.T) {
	db, mock := newDB(t)
	repo := repository.NewAuditRepository(db)

	mock.ExpectQuery("SELECT entry_hash FROM audit_events WHERE clinic_id = $1 ORDER BY seq DESC LIMIT 1").
		WithArgs("clinic_1").
		WillReturnRows(testutil.MockRows("entry_hash").AddRow("abc123"))

	hash, err := repo.LastHash(context.Background(), "clinic_1")
	require.NoError(t, err)
	assert.Equal(t, "abc123", hash)
	mock.ExpectationsWereMet(t)
}

func TestAuditRepository_LastHash_EmptyChainIsGenesis(t *testing.T) {
	db, mock := newDB(t)
	repo := repository.NewAuditRepository(db)

	mock.ExpectQuery("SELECT entry_hash FROM audit_events WHERE clinic_id = $1 ORDER BY seq DESC LIMIT 1").
		WithArgs("clinic_new").
		WillReturnRows(testutil.MockRows("entry_hash"))

	hash, err := repo.LastHash(context.Background(), "clinic_new")
	require.NoError(t, err)
	assert.Equal(t, audit.GenesisHash, hash)
	mock.ExpectationsWereMet(t)
}

func TestAuditRepository_Query_ByPatient(t *testing.T) {
	db, mock := newDB(t)
	repo := repository.NewAuditRepository(db)

	ts := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	rows := testutil.MockRows(
		"id", "timestamp", "event_type", "severity", "clinic_id", "patient_id",
		"session_id", "action", "outcome", "details", "previous_hash", "entry_hash",
	).AddRow(
		"evt_1", ts, "crisis_detected", "critical", "clinic_1", "patient_1",
		"", "Crisis detected: suicide (critical)", "success",
		[]byte(`{"crisis_type":"suicide"}`), "genesis", "abc123",
	)

	mock.Mock.ExpectQuery(`SELECT .+ FROM audit_events WHERE clinic_id = \$1 AND patient_id = \$2 ORDER BY seq LIMIT \$3`).
		WithArgs("clinic_1", "patient_1", 50).
		WillReturnRows(rows)

	events, err := repo.Query(context.Background(), domain.AuditQuery{
		ClinicID:  "clinic_1",
		PatientID: "patient_1",
		Limit:     50,
	})
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, domain.EventCrisisDetected, events[0].EventType)
	assert.Equal(t, "suicide", events[0].Details["crisis_type"])
	mock.ExpectationsWereMet(t)
}

func TestAuditRepository_Chain(t *testing.T) {
	db, mock := newDB(t)
	repo := repository.NewAuditRepository(db)

	ts := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	rows := testutil.MockRows(
		"id", "timestamp", "event_type", "severity", "clinic_id", "patient_id",
		"session_id", "action", "outcome", "details", "previous_hash", "entry_hash",
	).
		AddRow("evt_1", ts, "consent_check", "info", "clinic_1", "", "", "Consent checked", "success", []byte(`{}`), "genesis", "hash_1").
		AddRow("evt_2", ts, "consent_check", "info", "clinic_1", "", "", "Consent checked", "success", []byte(`{}`), "hash_1", "hash_2")

	mock.Mock.ExpectQuery(`SELECT .+ FROM audit_events WHERE clinic_id = \$1 ORDER BY seq`).
		WithArgs("clinic_1").
		WillReturnRows(rows)

	events, err := repo.Chain(context.Background(), "clinic_1")
	require.NoError(t, err)
	require.Len(t, events, 2)
	assert.Equal(t, "hash_1", events[1].PreviousHash)
	mock.ExpectationsWereMet(t)
}

func TestConsentRepository_Get(t *testing.T) {
	db, mock := newDB(t)
	repo := repository.NewConsentRepository(db)

	granted := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	created := granted
	rows := testutil.MockRows(
		"id", "patient_id", "clinic_id", "consent_type", "status",
		"granted_at", "expires_at", "withdrawn_at", "text_version", "created_at",
	).AddRow("rec_1", "patient_1", "clinic_1", "ai_interaction", "granted", granted, nil, nil, "1.0", created)

	mock.Mock.ExpectQuery(`SELECT .+ FROM consent_records`).
		WithArgs("clinic_1", "patient_1", "ai_interaction").
		WillReturnRows(rows)

	record, err := repo.Get(context.Background(), "clinic_1", "patient_1", domain.ConsentTypeAIInteraction)
	require.NoError(t, err)
	assert.Equal(t, domain.ConsentStatusGranted, record.Status)
	assert.Equal(t, "1.0", record.TextVersion)
	mock.ExpectationsWereMet(t)
}

func TestConsentRepository_Get_NotFound(t *testing.T) {
	db, mock := newDB(t)
	repo := repository.NewConsentRepository(db)

	mock.Mock.ExpectQuery(`SELECT .+ FROM consent_records`).
		WithArgs("clinic_1", "patient_1", "sms_communication").
		WillReturnRows(testutil.MockRows("id"))

	_, err := repo.Get(context.Background(), "clinic_1", "patient_1", domain.ConsentTypeSMSCommunication)
	assert.ErrorIs(t, err, errors.ErrNotFound)
	mock.ExpectationsWereMet(t)
}

func TestConsentRepository_Put(t *testing.T) {
	db, mock := newDB(t)
	repo := repository.NewConsentRepository(db)

	now := time.Now().UTC()
	record := &domain.ConsentRecord{
		ID:          "rec_1",
		PatientID:   "patient_1",
		ClinicID:    "clinic_1",
		ConsentType: domain.ConsentTypeAIInteraction,
		Status:      domain.ConsentStatusGranted,
		GrantedAt:   &now,
		TextVersion: "1.0",
		CreatedAt:   now,
	}

	mock.ExpectExec("INSERT INTO consent_records").
		WithArgs("rec_1", "patient_1", "clinic_1", "ai_interaction", "granted",
			testutil.AnyTime{}, nil, nil, "1.0", testutil.AnyTime{}).
		WillReturnResult(sqlmock.NewResult(0, 1))

	err := repo.Put(context.Background(), record)
	require.NoError(t, err)
	mock.ExpectationsWereMet(t)
}

func TestConsentRepository_List(t *testing.T) {
	db, mock := newDB(t)
	repo := repository.NewConsentRepository(db)

	granted := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	rows := testutil.MockRows(
		"id", "patient_id", "clinic_id", "consent_type", "status",
		"granted_at", "expires_at", "withdrawn_at", "text_version", "created_at",
	).
		AddRow("rec_1", "patient_1", "clinic_1", "ai_interaction", "granted", granted, nil, nil, "1.0", granted).
		AddRow("rec_2", "patient_1", "clinic_1", "sms_communication", "withdrawn", granted, nil, granted, "1.0", granted)

	mock.Mock.ExpectQuery(`SELECT DISTINCT ON \(consent_type\)`).
		WithArgs("clinic_1", "patient_1").
		WillReturnRows(rows)

	records, err := repo.List(context.Background(), "clinic_1", "patient_1")
	require.NoError(t, err)
	assert.Len(t, records, 2)
	mock.ExpectationsWereMet(t)
}

func TestVerificationRepository_GetSession(t *testing.T) {
	db, mock := newDB(t)
	repo := repository.NewVerificationRepository(db)

	created := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	rows := testutil.MockRows(
		"id", "patient_id", "clinic_id", "status", "methods", "completed_methods",
		"attempts", "created_at", "expires_at", "verified_at", "code_hash", "code_expires_at",
	).AddRow(
		"sess_1", "patient_1", "clinic_1", "pending",
		[]byte(`["date_of_birth","phone_last_four"]`), []byte(`["date_of_birth"]`),
		1, created, created.Add(15*time.Minute), nil, "", nil,
	)

	mock.Mock.ExpectQuery(`SELECT .+ FROM verification_sessions`).
		WithArgs("sess_1").
		WillReturnRows(rows)

	session, err := repo.GetSession(context.Background(), "sess_1")
	require.NoError(t, err)
	assert.Equal(t, []domain.VerificationMethod{domain.MethodDateOfBirth, domain.MethodPhoneLastFour}, session.Methods)
	assert.Equal(t, []domain.VerificationMethod{domain.MethodDateOfBirth}, session.CompletedMethods)
	assert.Equal(t, 1, session.Attempts)
	mock.ExpectationsWereMet(t)
}

func TestVerificationRepository_GetSession_NotFound(t *testing.T) {
	db, mock := newDB(t)
	repo := repository.NewVerificationRepository(db)

	mock.Mock.ExpectQuery(`SELECT .+ FROM verification_sessions`).
		WithArgs("sess_missing").
		WillReturnRows(testutil.MockRows("id"))

	_, err := repo.GetSession(context.Background(), "sess_missing")
	assert.ErrorIs(t, err, errors.ErrSessionNotFound)
	mock.ExpectationsWereMet(t)
}

func TestVerificationRepository_PutSession(t *testing.T) {
	db, mock := newDB(t)
	repo := repository.NewVerificationRepository(db)

	now := time.Now().UTC()
	session := &domain.VerificationSession{
		ID:        "sess_1",
		PatientID: "patient_1",
		ClinicID:  "clinic_1",
		Status:    domain.VerificationStatusPending,
		Methods:   []domain.VerificationMethod{domain.MethodDateOfBirth},
		Attempts:  0,
		CreatedAt: now,
		ExpiresAt: now.Add(15 * time.Minute),
	}

	mock.ExpectExec("INSERT INTO verification_sessions").
		WithArgs("sess_1", "patient_1", "clinic_1", "pending",
			[]byte(`["date_of_birth"]`), []byte(`null`),
			0, testutil.AnyTime{}, testutil.AnyTime{}, nil, "", nil).
		WillReturnResult(sqlmock.NewResult(0, 1))

	err := repo.PutSession(context.Background(), session)
	require.NoError(t, err)
	mock.ExpectationsWereMet(t)
}

func TestVerificationRepository_Lockouts(t *testing.T) {
	db, mock := newDB(t)
	repo := repository.NewVerificationRepository(db)
	ctx := context.Background()

	until := time.Now().Add(30 * time.Minute).UTC()

	mock.ExpectExec("INSERT INTO verification_lockouts").
		WithArgs("clinic_1", "patient_1", testutil.AnyTime{}).
		WillReturnResult(sqlmock.NewResult(0, 1))
	require.NoError(t, repo.SetLockout(ctx, "clinic_1", "patient_1", until))

	mock.ExpectQuery("SELECT locked_until FROM verification_lockouts WHERE clinic_id = $1 AND patient_id = $2").
		WithArgs("clinic_1", "patient_1").
		WillReturnRows(testutil.MockRows("locked_until").AddRow(until))

	got, found, err := repo.LockoutUntil(ctx, "clinic_1", "patient_1")
	require.NoError(t, err)
	assert.True(t, found)
	assert.WithinDuration(t, until, got, time.Second)

	mock.ExpectQuery("SELECT locked_until FROM verification_lockouts WHERE clinic_id = $1 AND patient_id = $2").
		WithArgs("clinic_1", "patient_2").
		WillReturnRows(testutil.MockRows("locked_until"))

	_, found, err = repo.LockoutUntil(ctx, "clinic_1", "patient_2")
	require.NoError(t, err)
	assert.False(t, found)

	mock.ExpectExec("DELETE FROM verification_lockouts").
		WithArgs("clinic_1", "patient_1").
		WillReturnResult(sqlmock.NewResult(0, 1))
	require.NoError(t, repo.ClearLockout(ctx, "clinic_1", "patient_1"))

	mock.ExpectationsWereMet(t)
}

func TestDirectoryRepository_Lookup(t *testing.T) {
	db, mock := newDB(t)
	repo := repository.NewDirectoryRepository(db)

	rows := testutil.MockRows(
		"patient_id", "clinic_id", "date_of_birth", "phone_last_four", "ssn_last_four",
		"first_name", "last_name", "security_question", "security_answer_hash",
		"contact_phone", "contact_email",
	).AddRow(
		"patient_1", "clinic_1", "1985-03-15", "4567", "1234",
		"maria", "garcia", "What is your mother's maiden name?", "$2a$10$hash",
		"+15551234567", "maria@example.com",
	)

	mock.Mock.ExpectQuery(`SELECT .+ FROM patient_directory`).
		WithArgs("clinic_1", "patient_1").
		WillReturnRows(rows)

	identity, err := repo.Lookup(context.Background(), "clinic_1", "patient_1")
	require.NoError(t, err)
	assert.Equal(t, "1985-03-15", identity.DateOfBirth)
	assert.Equal(t, "4567", identity.PhoneLastFour)
	mock.ExpectationsWereMet(t)
}

func TestDirectoryRepository_Lookup_NotFound(t *testing.T) {
	db, mock := newDB(t)
	repo := repository.NewDirectoryRepository(db)

	mock.Mock.ExpectQuery(`SELECT .+ FROM patient_directory`).
		WithArgs("clinic_1", "patient_unknown").
		WillReturnRows(testutil.MockRows("patient_id"))

	_, err := repo.Lookup(context.Background(), "clinic_1", "patient_unknown")
	assert.ErrorIs(t, err, errors.ErrNotFound)
	mock.ExpectationsWereMet(t)
}
