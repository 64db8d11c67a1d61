package cron

import (
	"context"
	"fmt"

	"github.com/angelmondragon/coffeefund-backend/internal/balances"
	"github.com/angelmondragon/coffeefund-backend/internal/compensations"
	"github.com/angelmondragon/coffeefund-backend/pkg/logger"
	"go.uber.org/multierr"
)

type balanceReprocessor interface {
	ReprocessAllBalances(ctx context.Context) (*balances.Result, error)
}

type compensationChecker interface {
	CheckAndExecute(ctx context.Context) (*compensations.CompensationDTO, error)
}

type BalanceReconcileJobParams struct {
	Logger        *logger.Logger
	Reprocessor   balanceReprocessor
	Compensations compensationChecker
}

// NewBalanceReconcileJob replays the ledger and then runs the compensation
// check, healing drift left behind by failed post-commit steps.
func NewBalanceReconcileJob(params BalanceReconcileJobParams) (Job, error) {
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	if params.Reprocessor == nil {
		return nil, fmt.Errorf("balance reprocessor required")
	}
	if params.Compensations == nil {
		return nil, fmt.Errorf("compensation checker required")
	}
	return &balanceReconcileJob{
		logg:          params.Logger,
		reprocessor:   params.Reprocessor,
		compensations: params.Compensations,
	}, nil
}

type balanceReconcileJob struct {
	logg          *logger.Logger
	reprocessor   balanceReprocessor
	compensations compensationChecker
}

func (j *balanceReconcileJob) Name() string { return "balance-reconcile" }

// Run always attempts the compensation check, even after a failed replay;
// both failures are reported together.
func (j *balanceReconcileJob) Run(ctx context.Context) error {
	var errs error

	res, err := j.reprocessor.ReprocessAllBalances(ctx)
	if err != nil {
		errs = multierr.Append(errs, fmt.Errorf("reprocess balances: %w", err))
	} else {
		j.logg.Info(j.logg.WithField(ctx, "users_updated", res.UsersUpdated), res.Message)
	}

	comp, err := j.compensations.CheckAndExecute(ctx)
	if err != nil {
		errs = multierr.Append(errs, fmt.Errorf("compensation check: %w", err))
	} else if comp != nil {
		j.logg.Info(j.logg.WithField(ctx, "compensation_id", comp.ID.String()), "compensation executed by reconcile job")
	}
	return errs
}
