package consent

import (
	"context"
	"sync"

	"github.com/medrelay/safety-service/internal/safety/domain"
	"github.com/medrelay/safety-service/pkg/errors"
)

// Store persists the current consent record per (clinic, patient, type).
// Get returns errors.ErrNotFound when no record exists.
type Store interface {
	Get(ctx context.Context, clinicID, patientID string, consentType domain.ConsentType) (*domain.ConsentRecord, error)
	Put(ctx context.Context, record *domain.ConsentRecord) error
	List(ctx context.Context, clinicID, patientID string) ([]domain.ConsentRecord, error)
}

type memoryKey struct {
	clinicID    string
	patientID   string
	consentType domain.ConsentType
}

// MemoryStore is an in-process Store for tests and single-node deployments
type MemoryStore struct {
	mu      sync.RWMutex
	records map[memoryKey]domain.ConsentRecord
}

// NewMemoryStore creates an empty MemoryStore
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{records: make(map[memoryKey]domain.ConsentRecord)}
}

func (s *MemoryStore) Get(_ context.Context, clinicID, patientID string, consentType domain.ConsentType) (*domain.ConsentRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	record, ok := s.records[memoryKey{clinicID, patientID, consentType}]
	if !ok {
		return nil, errors.ErrNotFound
	}
	copied := record
	return &copied, nil
}

func (s *MemoryStore) Put(_ context.Context, record *domain.ConsentRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.records[memoryKey{record.ClinicID, record.PatientID, record.ConsentType}] = *record
	return nil
}

func (s *MemoryStore) List(_ context.Context, clinicID, patientID string) ([]domain.ConsentRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var records []domain.ConsentRecord
	for key, record := range s.records {
		if key.clinicID == clinicID && key.patientID == patientID {
			records = append(records, record)
		}
	}
	return records, nil
}
