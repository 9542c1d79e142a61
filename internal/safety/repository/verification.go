package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	stderrors "errors"
	"time"

	"github.com/medrelay/safety-service/internal/safety/domain"
	"github.com/medrelay/safety-service/pkg/database"
	"github.com/medrelay/safety-service/pkg/errors"
)

// VerificationRepository persists verification sessions and patient lockouts
// in Postgres. Lockouts live in their own table keyed by (clinic, patient) so
// they survive session expiry.
type VerificationRepository struct {
	db *database.DB
}

// NewVerificationRepository creates a new verification repository.
func NewVerificationRepository(db *database.DB) *VerificationRepository {
	return &VerificationRepository{db: db}
}

// GetSession loads a session by id.
func (r *VerificationRepository) GetSession(ctx context.Context, sessionID string) (*domain.VerificationSession, error) {
	query := `
		SELECT id, patient_id, clinic_id, status, methods, completed_methods, attempts,
		       created_at, expires_at, verified_at, code_hash, code_expires_at
		FROM verification_sessions
		WHERE id = $1
	`

	var session domain.VerificationSession
	var methodsJSON, completedJSON []byte

	err := r.db.QueryRowxContext(ctx, query, sessionID).Scan(
		&session.ID, &session.PatientID, &session.ClinicID, &session.Status,
		&methodsJSON, &completedJSON, &session.Attempts,
		&session.CreatedAt, &session.ExpiresAt, &session.VerifiedAt,
		&session.CodeHash, &session.CodeExpiresAt,
	)
	if stderrors.Is(err, sql.ErrNoRows) {
		return nil, errors.ErrSessionNotFound
	}
	if err != nil {
		return nil, err
	}

	if err := json.Unmarshal(methodsJSON, &session.Methods); err != nil {
		return nil, err
	}
	if len(completedJSON) > 0 {
		if err := json.Unmarshal(completedJSON, &session.CompletedMethods); err != nil {
			return nil, err
		}
	}
	return &session, nil
}

// PutSession inserts or updates a session.
func (r *VerificationRepository) PutSession(ctx context.Context, session *domain.VerificationSession) error {
	methodsJSON, err := json.Marshal(session.Methods)
	if err != nil {
		return err
	}
	completedJSON, err := json.Marshal(session.CompletedMethods)
	if err != nil {
		return err
	}

	query := `
		INSERT INTO verification_sessions (id, patient_id, clinic_id, status, methods, completed_methods,
		                                   attempts, created_at, expires_at, verified_at, code_hash, code_expires_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		ON CONFLICT (id) DO UPDATE SET
			status = EXCLUDED.status,
			completed_methods = EXCLUDED.completed_methods,
			attempts = EXCLUDED.attempts,
			verified_at = EXCLUDED.verified_at,
			code_hash = EXCLUDED.code_hash,
			code_expires_at = EXCLUDED.code_expires_at
	`

	_, err = r.db.ExecContext(ctx, query,
		session.ID,
		session.PatientID,
		session.ClinicID,
		session.Status,
		methodsJSON,
		completedJSON,
		session.Attempts,
		session.CreatedAt,
		session.ExpiresAt,
		session.VerifiedAt,
		session.CodeHash,
		session.CodeExpiresAt,
	)
	return err
}

// SetLockout records a lockout until the given time.
func (r *VerificationRepository) SetLockout(ctx context.Context, clinicID, patientID string, until time.Time) error {
	query := `
		INSERT INTO verification_lockouts (clinic_id, patient_id, locked_until)
		VALUES ($1, $2, $3)
		ON CONFLICT (clinic_id, patient_id) DO UPDATE SET locked_until = EXCLUDED.locked_until
	`
	_, err := r.db.ExecContext(ctx, query, clinicID, patientID, until)
	return err
}

// LockoutUntil returns the lockout expiry for a patient, if one exists.
func (r *VerificationRepository) LockoutUntil(ctx context.Context, clinicID, patientID string) (time.Time, bool, error) {
	var until time.Time
	query := `SELECT locked_until FROM verification_lockouts WHERE clinic_id = $1 AND patient_id = $2`
	err := r.db.GetContext(ctx, &until, query, clinicID, patientID)
	if stderrors.Is(err, sql.ErrNoRows) {
		return time.Time{}, false, nil
	}
	if err != nil {
		return time.Time{}, false, err
	}
	return until, true, nil
}

// ClearLockout removes a patient's lockout.
func (r *VerificationRepository) ClearLockout(ctx context.Context, clinicID, patientID string) error {
	query := `DELETE FROM verification_lockouts WHERE clinic_id = $1 AND patient_id = $2`
	_, err := r.db.ExecContext(ctx, query, clinicID, patientID)
	return err
}
