// Package app assembles the ledger services shared by the API and the
// reconcile worker.
package app

import (
	"fmt"
	"time"

	"github.com/angelmondragon/coffeefund-backend/internal/balances"
	"github.com/angelmondragon/coffeefund-backend/internal/compensations"
	"github.com/angelmondragon/coffeefund-backend/internal/contributions"
	"github.com/angelmondragon/coffeefund-backend/internal/ledger"
	product "github.com/angelmondragon/coffeefund-backend/internal/products"
	"github.com/angelmondragon/coffeefund-backend/internal/users"
	"github.com/angelmondragon/coffeefund-backend/pkg/db"
	"github.com/angelmondragon/coffeefund-backend/pkg/logger"
	"github.com/angelmondragon/coffeefund-backend/pkg/metrics"
)

// Ledger holds every wired ledger service.
type Ledger struct {
	Users         users.Service
	Products      product.Service
	Contributions contributions.Service
	Compensations compensations.Service
	Reprocessor   *balances.Reprocessor
}

// LedgerParams configure NewLedger. Clock defaults to time.Now.
type LedgerParams struct {
	DB      *db.Client
	Logger  *logger.Logger
	Metrics *metrics.LedgerMetrics
	Clock   func() time.Time
}

func NewLedger(p LedgerParams) (*Ledger, error) {
	if p.DB == nil {
		return nil, fmt.Errorf("db client required")
	}
	if p.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}

	conn := p.DB.DB()
	userRepo := users.NewRepository(conn)
	contributionRepo := contributions.NewRepository(conn)
	compensationRepo := compensations.NewRepository(conn)
	bestEffort := ledger.NewBestEffort(p.Logger, p.Metrics)

	userSvc, err := users.NewService(userRepo, p.DB)
	if err != nil {
		return nil, fmt.Errorf("user service: %w", err)
	}
	productSvc, err := product.NewService(product.NewRepository(conn))
	if err != nil {
		return nil, fmt.Errorf("product service: %w", err)
	}
	reprocessor, err := balances.NewReprocessor(userRepo, compensationRepo, contributionRepo, p.DB, p.Logger, p.Metrics)
	if err != nil {
		return nil, fmt.Errorf("balance reprocessor: %w", err)
	}
	compensationSvc, err := compensations.NewService(compensations.ServiceParams{
		Repo:        compensationRepo,
		UserRepo:    userRepo,
		Tx:          p.DB,
		Reprocessor: reprocessor,
		BestEffort:  bestEffort,
		Metrics:     p.Metrics,
		Logger:      p.Logger,
		Clock:       p.Clock,
	})
	if err != nil {
		return nil, fmt.Errorf("compensation service: %w", err)
	}
	contributionSvc, err := contributions.NewService(contributions.ServiceParams{
		Repo:          contributionRepo,
		Users:         userRepo,
		Products:      productSvc,
		Tx:            p.DB,
		Reprocessor:   reprocessor,
		Compensations: compensationSvc,
		BestEffort:    bestEffort,
		Metrics:       p.Metrics,
		Logger:        p.Logger,
		Clock:         p.Clock,
	})
	if err != nil {
		return nil, fmt.Errorf("contribution service: %w", err)
	}

	return &Ledger{
		Users:         userSvc,
		Products:      productSvc,
		Contributions: contributionSvc,
		Compensations: compensationSvc,
		Reprocessor:   reprocessor,
	}, nil
}
