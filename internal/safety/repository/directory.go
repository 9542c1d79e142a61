package repository

import (
	"context"
	"database/sql"
	stderrors "errors"

	"github.com/medrelay/safety-service/internal/safety/domain"
	"github.com/medrelay/safety-service/pkg/database"
	"github.com/medrelay/safety-service/pkg/errors"
)

// DirectoryRepository resolves patient identity facts from the clinic's
// patient directory table.
type DirectoryRepository struct {
	db *database.DB
}

// NewDirectoryRepository creates a new directory repository.
func NewDirectoryRepository(db *database.DB) *DirectoryRepository {
	return &DirectoryRepository{db: db}
}

// Lookup loads the identity facts for a patient.
func (r *DirectoryRepository) Lookup(ctx context.Context, clinicID, patientID string) (*domain.PatientIdentity, error) {
	query := `
		SELECT patient_id, clinic_id, date_of_birth, phone_last_four, ssn_last_four,
		       first_name, last_name, security_question, security_answer_hash,
		       contact_phone, contact_email
		FROM patient_directory
		WHERE clinic_id = $1 AND patient_id = $2
	`

	var identity domain.PatientIdentity
	err := r.db.QueryRowxContext(ctx, query, clinicID, patientID).Scan(
		&identity.PatientID, &identity.ClinicID, &identity.DateOfBirth,
		&identity.PhoneLastFour, &identity.SSNLastFour,
		&identity.FirstName, &identity.LastName,
		&identity.SecurityQuestion, &identity.SecurityAnswerHash,
		&identity.ContactPhone, &identity.ContactEmail,
	)
	if stderrors.Is(err, sql.ErrNoRows) {
		return nil, errors.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &identity, nil
}
