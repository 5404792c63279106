package store

import (
	"context"
	"sync"

	"github.com/amishk599/jobtap/internal/model"
)

var _ model.JobStore = (*MemoryStore)(nil)

// MemoryStore keeps records in a map for the life of the process.
type MemoryStore struct {
	mu      sync.RWMutex
	records map[string]model.JobRecord
	order   []string
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{records: make(map[string]model.JobRecord)}
}

func (s *MemoryStore) AddBatch(ctx context.Context, records []model.JobRecord) (model.AddResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	added := 0
	for _, rec := range records {
		if _, ok := s.records[rec.IdentityKey]; ok {
			continue
		}
		s.records[rec.IdentityKey] = rec.Clone()
		s.order = append(s.order, rec.IdentityKey)
		added++
	}
	return model.AddResult{Added: added, Total: len(s.records)}, nil
}

func (s *MemoryStore) GetAll(ctx context.Context) ([]model.JobRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]model.JobRecord, 0, len(s.order))
	for _, k := range s.order {
		out = append(out, s.records[k].Clone())
	}
	return out, nil
}

func (s *MemoryStore) Reset(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records = make(map[string]model.JobRecord)
	s.order = nil
	return nil
}
