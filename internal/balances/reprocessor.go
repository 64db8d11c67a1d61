package balances

import (
	"context"
	"fmt"
	"time"

	"github.com/angelmondragon/coffeefund-backend/internal/ledger"
	"github.com/angelmondragon/coffeefund-backend/internal/users"
	"github.com/angelmondragon/coffeefund-backend/pkg/db"
	"github.com/angelmondragon/coffeefund-backend/pkg/db/models"
	pkgerrors "github.com/angelmondragon/coffeefund-backend/pkg/errors"
	"github.com/angelmondragon/coffeefund-backend/pkg/logger"
	"github.com/angelmondragon/coffeefund-backend/pkg/metrics"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"
	"gorm.io/gorm"
)

// Result summarizes one reprocessing pass.
type Result struct {
	UsersUpdated int    `json:"users_updated"`
	Message      string `json:"message"`
}

// CheckpointReader returns the most recent compensation and its details, or
// a nil compensation when none has run yet.
type CheckpointReader interface {
	Latest(ctx context.Context) (*models.Compensation, []models.CompensationDetail, error)
}

// ContributionReader exposes the contribution log.
type ContributionReader interface {
	ListAll(ctx context.Context) ([]models.Contribution, error)
	ListDetails(ctx context.Context, contributionID uuid.UUID) ([]models.ContributionDetail, error)
}

// Reprocessor rebuilds every cached user balance from the latest
// compensation checkpoint plus the contributions purchased after it.
type Reprocessor struct {
	users         users.Repository
	checkpoints   CheckpointReader
	contributions ContributionReader
	tx            db.TxRunner
	logg          *logger.Logger
	metrics       *metrics.LedgerMetrics
}

func NewReprocessor(
	userRepo users.Repository,
	checkpoints CheckpointReader,
	contributions ContributionReader,
	tx db.TxRunner,
	logg *logger.Logger,
	ledgerMetrics *metrics.LedgerMetrics,
) (*Reprocessor, error) {
	if userRepo == nil {
		return nil, fmt.Errorf("user repository required")
	}
	if checkpoints == nil {
		return nil, fmt.Errorf("checkpoint reader required")
	}
	if contributions == nil {
		return nil, fmt.Errorf("contribution reader required")
	}
	if tx == nil {
		return nil, fmt.Errorf("transaction runner required")
	}
	return &Reprocessor{
		users:         userRepo,
		checkpoints:   checkpoints,
		contributions: contributions,
		tx:            tx,
		logg:          logg,
		metrics:       ledgerMetrics,
	}, nil
}

// ReprocessAllBalances recomputes and persists every user's balance. Only
// balances that changed are written, so a second call without new events
// performs no writes.
func (r *Reprocessor) ReprocessAllBalances(ctx context.Context) (*Result, error) {
	started := time.Now()

	var (
		allUsers      []models.User
		checkpoint    *models.Compensation
		checkDetails  []models.CompensationDetail
		contributions []models.Contribution
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		allUsers, err = r.users.List(gctx)
		return err
	})
	g.Go(func() error {
		var err error
		checkpoint, checkDetails, err = r.checkpoints.Latest(gctx)
		return err
	})
	g.Go(func() error {
		var err error
		contributions, err = r.contributions.ListAll(gctx)
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load ledger history")
	}

	var since *time.Time
	if checkpoint != nil {
		since = &checkpoint.Date
	}
	replay := make([]Entry, 0, len(contributions))
	for _, c := range EventsAfter(contributions, since) {
		entry := Entry{Contribution: c}
		if c.IsDivided {
			details, err := r.contributions.ListDetails(ctx, c.ID)
			if err != nil {
				r.logError(ctx, c.ID, err)
				continue
			}
			entry.Details = details
		}
		replay = append(replay, entry)
	}

	computed := Compute(allUsers, checkDetails, replay)

	changed := make(map[uuid.UUID]decimal.Decimal)
	for _, u := range allUsers {
		next := computed[u.ID]
		if !ledger.SameKg(next, u.Balance) {
			changed[u.ID] = next
		}
	}

	if len(changed) > 0 {
		if err := r.tx.WithTx(ctx, func(tx *gorm.DB) error {
			return r.users.WithTx(tx).UpdateBalances(ctx, changed)
		}); err != nil {
			return nil, pkgerrors.Wrap(pkgerrors.CodePersistence, err, "persist balances")
		}
	}

	r.metrics.ObserveReprocess(time.Since(started), len(changed))
	if r.logg != nil {
		r.logg.Info(r.logg.WithField(ctx, "users_updated", len(changed)), "balances reprocessed")
	}

	return &Result{
		UsersUpdated: len(changed),
		Message:      fmt.Sprintf("Balances updated for %d users", len(changed)),
	}, nil
}

func (r *Reprocessor) logError(ctx context.Context, contributionID uuid.UUID, err error) {
	if r.logg == nil {
		return
	}
	ctx = r.logg.WithContributionID(ctx, contributionID.String())
	r.logg.Error(ctx, "skipping divided contribution: detail lookup failed", err)
}
