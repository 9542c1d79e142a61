package audit

import (
	"context"
	"sync"

	"github.com/medrelay/safety-service/internal/safety/domain"
)

// Store persists audit events. Implementations must preserve insertion order
// per clinic; the hash chain is only meaningful over an ordered sequence.
type Store interface {
	// Append stores a new event at the tail of its clinic's chain.
	Append(ctx context.Context, event *domain.AuditEvent) error
	// Query returns events matching the filter in chain order.
	// A Limit of zero means no limit.
	Query(ctx context.Context, q domain.AuditQuery) ([]domain.AuditEvent, error)
	// Chain returns the complete ordered chain for a clinic.
	Chain(ctx context.Context, clinicID string) ([]domain.AuditEvent, error)
	// LastHash returns the hash of a clinic's newest event, or GenesisHash
	// when the clinic has no events yet.
	LastHash(ctx context.Context, clinicID string) (string, error)
}

// MemoryStore is an in-memory Store keyed by clinic, used in tests and
// single-process deployments.
type MemoryStore struct {
	mu     sync.RWMutex
	chains map[string][]domain.AuditEvent
}

// NewMemoryStore creates an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{chains: make(map[string][]domain.AuditEvent)}
}

func (m *MemoryStore) Append(_ context.Context, event *domain.AuditEvent) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.chains[event.ClinicID] = append(m.chains[event.ClinicID], *event)
	return nil
}

func (m *MemoryStore) Query(_ context.Context, q domain.AuditQuery) ([]domain.AuditEvent, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var matched []domain.AuditEvent
	for _, e := range m.chains[q.ClinicID] {
		if !matches(&e, q) {
			continue
		}
		matched = append(matched, e)
	}

	if q.Offset > 0 {
		if q.Offset >= len(matched) {
			return nil, nil
		}
		matched = matched[q.Offset:]
	}
	if q.Limit > 0 && len(matched) > q.Limit {
		matched = matched[:q.Limit]
	}
	return matched, nil
}

func (m *MemoryStore) Chain(_ context.Context, clinicID string) ([]domain.AuditEvent, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	chain := m.chains[clinicID]
	out := make([]domain.AuditEvent, len(chain))
	copy(out, chain)
	return out, nil
}

func (m *MemoryStore) LastHash(_ context.Context, clinicID string) (string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	chain := m.chains[clinicID]
	if len(chain) == 0 {
		return GenesisHash, nil
	}
	return chain[len(chain)-1].EntryHash, nil
}

func matches(e *domain.AuditEvent, q domain.AuditQuery) bool {
	if q.PatientID != "" && e.PatientID != q.PatientID {
		return false
	}
	if q.Severity != "" && e.Severity != q.Severity {
		return false
	}
	if len(q.EventTypes) > 0 {
		found := false
		for _, t := range q.EventTypes {
			if e.EventType == t {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	if !q.Start.IsZero() && e.Timestamp.Before(q.Start) {
		return false
	}
	if !q.End.IsZero() && e.Timestamp.After(q.End) {
		return false
	}
	return true
}
