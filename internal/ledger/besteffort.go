package ledger

import (
	"context"

	"github.com/angelmondragon/coffeefund-backend/pkg/logger"
)

// Step names reported on best-effort failures.
const (
	StepRecomputePrice    = "recompute_average_price"
	StepBackfillPhoto     = "backfill_product_photo"
	StepReprocessBalances = "reprocess_balances"
	StepCompensationCheck = "compensation_check"
)

type failureCounter interface {
	IncBestEffortFailure(step string)
}

// BestEffort runs steps that follow a committed write. Failures are logged
// with the step name and counted; they never reach the caller.
type BestEffort struct {
	logg    *logger.Logger
	metrics failureCounter
}

func NewBestEffort(logg *logger.Logger, metrics failureCounter) *BestEffort {
	return &BestEffort{logg: logg, metrics: metrics}
}

// Run executes fn and reports whether it succeeded.
func (b *BestEffort) Run(ctx context.Context, step string, fn func(ctx context.Context) error) bool {
	err := fn(ctx)
	if err == nil {
		return true
	}
	if b == nil {
		return false
	}
	if b.logg != nil {
		b.logg.Error(b.logg.WithField(ctx, "step", step), "best-effort step failed", err)
	}
	if b.metrics != nil {
		b.metrics.IncBestEffortFailure(step)
	}
	return false
}
