package store

import (
	"context"

	"github.com/amishk599/jobtap/internal/model"
)

var _ model.JobStore = (*NopStore)(nil)

// NopStore discards everything. Used by one-shot commands that only print.
type NopStore struct{}

func NewNopStore() *NopStore { return &NopStore{} }

func (s *NopStore) AddBatch(ctx context.Context, records []model.JobRecord) (model.AddResult, error) {
	return model.AddResult{}, nil
}
func (s *NopStore) GetAll(ctx context.Context) ([]model.JobRecord, error) { return nil, nil }
func (s *NopStore) Reset(ctx context.Context) error                      { return nil }
