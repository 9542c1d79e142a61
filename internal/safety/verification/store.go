package verification

import (
	"context"
	"sync"
	"time"

	"github.com/medrelay/safety-service/internal/safety/domain"
	"github.com/medrelay/safety-service/pkg/errors"
)

// SessionStore persists verification sessions and patient lockouts. Lockouts
// are keyed by patient, not session, so a locked patient stays locked across
// fresh sessions. Get returns errors.ErrSessionNotFound for unknown ids.
type SessionStore interface {
	GetSession(ctx context.Context, sessionID string) (*domain.VerificationSession, error)
	PutSession(ctx context.Context, session *domain.VerificationSession) error
	SetLockout(ctx context.Context, clinicID, patientID string, until time.Time) error
	LockoutUntil(ctx context.Context, clinicID, patientID string) (time.Time, bool, error)
	ClearLockout(ctx context.Context, clinicID, patientID string) error
}

// PatientDirectory resolves the identity facts challenges are checked
// against. Lookup returns errors.ErrNotFound for unknown patients.
type PatientDirectory interface {
	Lookup(ctx context.Context, clinicID, patientID string) (*domain.PatientIdentity, error)
}

type lockoutKey struct {
	clinicID  string
	patientID string
}

// MemoryStore is an in-process SessionStore for tests and single-node use
type MemoryStore struct {
	mu       sync.RWMutex
	sessions map[string]domain.VerificationSession
	lockouts map[lockoutKey]time.Time
}

// NewMemoryStore creates an empty MemoryStore
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		sessions: make(map[string]domain.VerificationSession),
		lockouts: make(map[lockoutKey]time.Time),
	}
}

func (s *MemoryStore) GetSession(_ context.Context, sessionID string) (*domain.VerificationSession, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	session, ok := s.sessions[sessionID]
	if !ok {
		return nil, errors.ErrSessionNotFound
	}
	copied := session
	copied.Methods = append([]domain.VerificationMethod(nil), session.Methods...)
	copied.CompletedMethods = append([]domain.VerificationMethod(nil), session.CompletedMethods...)
	return &copied, nil
}

func (s *MemoryStore) PutSession(_ context.Context, session *domain.VerificationSession) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.sessions[session.ID] = *session
	return nil
}

func (s *MemoryStore) SetLockout(_ context.Context, clinicID, patientID string, until time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.lockouts[lockoutKey{clinicID, patientID}] = until
	return nil
}

func (s *MemoryStore) LockoutUntil(_ context.Context, clinicID, patientID string) (time.Time, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	until, ok := s.lockouts[lockoutKey{clinicID, patientID}]
	return until, ok, nil
}

func (s *MemoryStore) ClearLockout(_ context.Context, clinicID, patientID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.lockouts, lockoutKey{clinicID, patientID})
	return nil
}

// MemoryDirectory is a fixture-backed PatientDirectory for tests and
// development environments.
type MemoryDirectory struct {
	mu       sync.RWMutex
	patients map[lockoutKey]domain.PatientIdentity
}

// NewMemoryDirectory creates an empty MemoryDirectory
func NewMemoryDirectory() *MemoryDirectory {
	return &MemoryDirectory{patients: make(map[lockoutKey]domain.PatientIdentity)}
}

// Add registers a patient identity
func (d *MemoryDirectory) Add(identity domain.PatientIdentity) {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.patients[lockoutKey{identity.ClinicID, identity.PatientID}] = identity
}

func (d *MemoryDirectory) Lookup(_ context.Context, clinicID, patientID string) (*domain.PatientIdentity, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	identity, ok := d.patients[lockoutKey{clinicID, patientID}]
	if !ok {
		return nil, errors.ErrNotFound
	}
	return &identity, nil
}
