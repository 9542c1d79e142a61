package domain

import "time"

// ConsentRecord is a single consent grant, denial, or withdrawal
type ConsentRecord struct {
	ID          string        `json:"id" db:"id"`
	PatientID   string        `json:"patient_id" db:"patient_id"`
	ClinicID    string        `json:"clinic_id" db:"clinic_id"`
	ConsentType ConsentType   `json:"consent_type" db:"consent_type"`
	Status      ConsentStatus `json:"status" db:"status"`
	GrantedAt   *time.Time    `json:"granted_at,omitempty" db:"granted_at"`
	ExpiresAt   *time.Time    `json:"expires_at,omitempty" db:"expires_at"`
	WithdrawnAt *time.Time    `json:"withdrawn_at,omitempty" db:"withdrawn_at"`
	TextVersion string        `json:"text_version" db:"text_version"`
	CreatedAt   time.Time     `json:"created_at" db:"created_at"`
}

// Active reports whether the record currently authorizes its consent type
func (r *ConsentRecord) Active(now time.Time) bool {
	if r.Status != ConsentStatusGranted {
		return false
	}
	if r.ExpiresAt != nil && !now.Before(*r.ExpiresAt) {
		return false
	}
	return true
}
