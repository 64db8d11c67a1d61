package compensations

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/angelmondragon/coffeefund-backend/internal/balances"
	"github.com/angelmondragon/coffeefund-backend/internal/ledger"
	"github.com/angelmondragon/coffeefund-backend/internal/users"
	"github.com/angelmondragon/coffeefund-backend/pkg/db"
	"github.com/angelmondragon/coffeefund-backend/pkg/db/models"
	pkgerrors "github.com/angelmondragon/coffeefund-backend/pkg/errors"
	"github.com/angelmondragon/coffeefund-backend/pkg/logger"
	"github.com/angelmondragon/coffeefund-backend/pkg/metrics"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// Reprocessor rebuilds balances after the checkpoint set changes.
type Reprocessor interface {
	ReprocessAllBalances(ctx context.Context) (*balances.Result, error)
}

// ServiceParams groups dependencies for the compensation engine.
type ServiceParams struct {
	Repo        Repository
	UserRepo    users.Repository
	Tx          db.TxRunner
	Reprocessor Reprocessor
	BestEffort  *ledger.BestEffort
	Metrics     *metrics.LedgerMetrics
	Logger      *logger.Logger
	Clock       func() time.Time
}

// Service decides when balances are redistributed and records each run.
type Service interface {
	ShouldTrigger(ctx context.Context) (bool, error)
	Execute(ctx context.Context) (*CompensationDTO, error)
	CheckAndExecute(ctx context.Context) (*CompensationDTO, error)
	List(ctx context.Context) ([]CompensationDTO, error)
	Get(ctx context.Context, id uuid.UUID) (*CompensationDTO, error)
	Delete(ctx context.Context, id uuid.UUID) error
}

type service struct {
	repo        Repository
	userRepo    users.Repository
	tx          db.TxRunner
	reprocessor Reprocessor
	bestEffort  *ledger.BestEffort
	metrics     *metrics.LedgerMetrics
	logg        *logger.Logger
	now         func() time.Time
}

func NewService(params ServiceParams) (Service, error) {
	if params.Repo == nil {
		return nil, fmt.Errorf("compensation repository required")
	}
	if params.UserRepo == nil {
		return nil, fmt.Errorf("user repository required")
	}
	if params.Tx == nil {
		return nil, fmt.Errorf("transaction runner required")
	}
	if params.Reprocessor == nil {
		return nil, fmt.Errorf("balance reprocessor required")
	}
	now := params.Clock
	if now == nil {
		now = time.Now
	}
	return &service{
		repo:        params.Repo,
		userRepo:    params.UserRepo,
		tx:          params.Tx,
		reprocessor: params.Reprocessor,
		bestEffort:  params.BestEffort,
		metrics:     params.Metrics,
		logg:        params.Logger,
		now:         now,
	}, nil
}

// ShouldTrigger is true when there is at least one active user and every
// active balance is strictly positive.
func (s *service) ShouldTrigger(ctx context.Context) (bool, error) {
	active, err := s.userRepo.ListActive(ctx)
	if err != nil {
		return false, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list active users")
	}
	return AllInCredit(active), nil
}

// Execute subtracts the smallest active balance from every active user and
// records the snapshot. It returns nil when there is nothing to compensate.
func (s *service) Execute(ctx context.Context) (*CompensationDTO, error) {
	var (
		compensation *models.Compensation
		details      []models.CompensationDetail
	)
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		txUsers := s.userRepo.WithTx(tx)
		active, err := txUsers.ListActive(ctx)
		if err != nil {
			return err
		}
		plan := Plan(active)
		if plan == nil {
			return nil
		}

		updates := make(map[uuid.UUID]decimal.Decimal, len(plan.Details))
		for _, d := range plan.Details {
			updates[d.UserID] = d.BalanceAfter
		}
		if err := txUsers.UpdateBalances(ctx, updates); err != nil {
			return err
		}

		compensation = &models.Compensation{
			ID:      uuid.New(),
			Date:    s.now().UTC(),
			TotalKg: plan.TotalKg,
		}
		details = plan.Details
		return s.repo.WithTx(tx).Create(ctx, compensation, details)
	})
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodePersistence, err, "execute compensation")
	}
	if compensation == nil {
		return nil, nil
	}

	s.metrics.IncCompensation()
	if s.logg != nil {
		logCtx := s.logg.WithFields(ctx, map[string]any{
			"compensation_id": compensation.ID.String(),
			"total_kg":        compensation.TotalKg.String(),
			"users":           len(details),
		})
		s.logg.Info(logCtx, "compensation executed")
	}
	return toDTO(compensation, details), nil
}

func (s *service) CheckAndExecute(ctx context.Context) (*CompensationDTO, error) {
	ok, err := s.ShouldTrigger(ctx)
	if err != nil || !ok {
		return nil, err
	}
	return s.Execute(ctx)
}

func (s *service) List(ctx context.Context) ([]CompensationDTO, error) {
	list, err := s.repo.List(ctx)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list compensations")
	}
	ids := make([]uuid.UUID, 0, len(list))
	for _, c := range list {
		ids = append(ids, c.ID)
	}
	details, err := s.repo.ListDetails(ctx, ids)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list compensation details")
	}
	out := make([]CompensationDTO, 0, len(list))
	for i := range list {
		out = append(out, *toDTO(&list[i], details[list[i].ID]))
	}
	return out, nil
}

func (s *service) Get(ctx context.Context, id uuid.UUID) (*CompensationDTO, error) {
	compensation, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return nil, mapLookupError(err)
	}
	details, err := s.repo.ListDetails(ctx, []uuid.UUID{id})
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list compensation details")
	}
	return toDTO(compensation, details[id]), nil
}

// Delete removes a compensation and re-anchors balances on the previous
// checkpoint.
func (s *service) Delete(ctx context.Context, id uuid.UUID) error {
	if err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		return s.repo.WithTx(tx).Delete(ctx, id)
	}); err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return mapLookupError(err)
		}
		return pkgerrors.Wrap(pkgerrors.CodePersistence, err, "delete compensation")
	}
	s.bestEffort.Run(ctx, ledger.StepReprocessBalances, func(ctx context.Context) error {
		_, err := s.reprocessor.ReprocessAllBalances(ctx)
		return err
	})
	return nil
}

func mapLookupError(err error) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return pkgerrors.Wrap(pkgerrors.CodeNotFound, err, "compensation not found")
	}
	return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load compensation")
}
