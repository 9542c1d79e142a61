package domain

import "time"

// VerificationSession tracks a patient identity verification attempt
type VerificationSession struct {
	ID               string               `json:"id" db:"id"`
	PatientID        string               `json:"patient_id" db:"patient_id"`
	ClinicID         string               `json:"clinic_id" db:"clinic_id"`
	Status           VerificationStatus   `json:"status" db:"status"`
	Methods          []VerificationMethod `json:"methods" db:"-"`
	CompletedMethods []VerificationMethod `json:"completed_methods" db:"-"`
	Attempts         int                  `json:"attempts" db:"attempts"`
	CreatedAt        time.Time            `json:"created_at" db:"created_at"`
	ExpiresAt        time.Time            `json:"expires_at" db:"expires_at"`
	VerifiedAt       *time.Time           `json:"verified_at,omitempty" db:"verified_at"`
	CodeHash         string               `json:"-" db:"code_hash"`
	CodeExpiresAt    *time.Time           `json:"-" db:"code_expires_at"`
}

// Expired reports whether the session has passed its expiry
func (s *VerificationSession) Expired(now time.Time) bool {
	return !now.Before(s.ExpiresAt)
}

// NextMethod returns the next uncompleted challenge method, if any
func (s *VerificationSession) NextMethod() (VerificationMethod, bool) {
	done := make(map[VerificationMethod]bool, len(s.CompletedMethods))
	for _, m := range s.CompletedMethods {
		done[m] = true
	}
	for _, m := range s.Methods {
		if !done[m] {
			return m, true
		}
	}
	return "", false
}

// VerificationChallenge is a prompt presented to the patient
type VerificationChallenge struct {
	SessionID         string             `json:"session_id"`
	Method            VerificationMethod `json:"method"`
	Prompt            string             `json:"prompt"`
	Hint              string             `json:"hint,omitempty"`
	AttemptsRemaining int                `json:"attempts_remaining"`
}

// VerificationResult is the outcome of starting a session or answering a
// challenge
type VerificationResult struct {
	Success       bool                   `json:"success"`
	Status        VerificationStatus     `json:"status"`
	Message       string                 `json:"message"`
	NextChallenge *VerificationChallenge `json:"next_challenge,omitempty"`
	Session       *VerificationSession   `json:"session,omitempty"`
	ProofToken    string                 `json:"proof_token,omitempty"`
	RequiresHuman bool                   `json:"requires_human"`
}

// PatientIdentity holds the directory facts challenges are checked against.
// Values are already normalized by the directory.
type PatientIdentity struct {
	PatientID          string
	ClinicID           string
	DateOfBirth        string // YYYY-MM-DD
	PhoneLastFour      string
	SSNLastFour        string
	FirstName          string
	LastName           string
	SecurityQuestion   string
	SecurityAnswerHash string // bcrypt
	ContactPhone       string
	ContactEmail       string
}
