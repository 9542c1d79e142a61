package repository

import (
	"context"
	"database/sql"
	stderrors "errors"

	"github.com/medrelay/safety-service/internal/safety/domain"
	"github.com/medrelay/safety-service/pkg/database"
	"github.com/medrelay/safety-service/pkg/errors"
)

// ConsentRepository persists consent records in Postgres. Every grant is a
// new row; withdrawals update the row they revoke, so the full consent
// history stays queryable.
type ConsentRepository struct {
	db *database.DB
}

// NewConsentRepository creates a new consent repository.
func NewConsentRepository(db *database.DB) *ConsentRepository {
	return &ConsentRepository{db: db}
}

const consentColumns = `id, patient_id, clinic_id, consent_type, status, granted_at, expires_at, withdrawn_at, text_version, created_at`

// Get returns the most recent record for a (clinic, patient, type) key.
func (r *ConsentRepository) Get(ctx context.Context, clinicID, patientID string, consentType domain.ConsentType) (*domain.ConsentRecord, error) {
	query := `
		SELECT ` + consentColumns + `
		FROM consent_records
		WHERE clinic_id = $1 AND patient_id = $2 AND consent_type = $3
		ORDER BY created_at DESC
		LIMIT 1
	`

	var record domain.ConsentRecord
	err := r.db.GetContext(ctx, &record, query, clinicID, patientID, consentType)
	if stderrors.Is(err, sql.ErrNoRows) {
		return nil, errors.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &record, nil
}

// Put inserts a new record or updates an existing one by id.
func (r *ConsentRepository) Put(ctx context.Context, record *domain.ConsentRecord) error {
	query := `
		INSERT INTO consent_records (id, patient_id, clinic_id, consent_type, status,
		                             granted_at, expires_at, withdrawn_at, text_version, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		ON CONFLICT (id) DO UPDATE SET
			status = EXCLUDED.status,
			expires_at = EXCLUDED.expires_at,
			withdrawn_at = EXCLUDED.withdrawn_at
	`

	_, err := r.db.ExecContext(ctx, query,
		record.ID,
		record.PatientID,
		record.ClinicID,
		record.ConsentType,
		record.Status,
		record.GrantedAt,
		record.ExpiresAt,
		record.WithdrawnAt,
		record.TextVersion,
		record.CreatedAt,
	)
	return err
}

// List returns the most recent record per consent type for a patient.
func (r *ConsentRepository) List(ctx context.Context, clinicID, patientID string) ([]domain.ConsentRecord, error) {
	query := `
		SELECT DISTINCT ON (consent_type) ` + consentColumns + `
		FROM consent_records
		WHERE clinic_id = $1 AND patient_id = $2
		ORDER BY consent_type, created_at DESC
	`

	var records []domain.ConsentRecord
	if err := r.db.SelectContext(ctx, &records, query, clinicID, patientID); err != nil {
		return nil, err
	}
	return records, nil
}
