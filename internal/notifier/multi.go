package notifier

import (
	"context"
	"errors"

	"github.com/amishk599/jobtap/internal/model"
)

var _ model.Notifier = Multi(nil)

// Multi fans every event out to all notifiers and joins their errors.
type Multi []model.Notifier

func (m Multi) NotifyBatch(ctx context.Context, b model.Batch) error {
	var errs []error
	for _, n := range m {
		errs = append(errs, n.NotifyBatch(ctx, b))
	}
	return errors.Join(errs...)
}

func (m Multi) NotifyRanking(ctx context.Context, results []model.RankedResult) error {
	var errs []error
	for _, n := range m {
		errs = append(errs, n.NotifyRanking(ctx, results))
	}
	return errors.Join(errs...)
}
