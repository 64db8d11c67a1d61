package contributions

import (
	"context"
	"testing"
	"time"

	"github.com/angelmondragon/coffeefund-backend/internal/balances"
	"github.com/angelmondragon/coffeefund-backend/internal/compensations"
	"github.com/angelmondragon/coffeefund-backend/internal/ledger"
	product "github.com/angelmondragon/coffeefund-backend/internal/products"
	"github.com/angelmondragon/coffeefund-backend/internal/users"
	"github.com/angelmondragon/coffeefund-backend/pkg/db"
	"github.com/angelmondragon/coffeefund-backend/pkg/db/dbtest"
	"github.com/angelmondragon/coffeefund-backend/pkg/db/models"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

type testClock struct {
	now time.Time
}

func (c *testClock) Now() time.Time { return c.now }

type failureRecorder struct {
	steps []string
}

func (f *failureRecorder) IncBestEffortFailure(step string) {
	f.steps = append(f.steps, step)
}

// countingReprocessor wraps the real reprocessor so tests can assert calls.
type countingReprocessor struct {
	inner *balances.Reprocessor
	calls int
	err   error
}

func (c *countingReprocessor) ReprocessAllBalances(ctx context.Context) (*balances.Result, error) {
	c.calls++
	if c.err != nil {
		return nil, c.err
	}
	return c.inner.ReprocessAllBalances(ctx)
}

// failingTx rejects every transaction before the callback runs.
type failingTx struct {
	err error
}

func (f failingTx) WithTx(context.Context, func(tx *gorm.DB) error) error {
	return f.err
}

type harness struct {
	t             *testing.T
	conn          *gorm.DB
	clock         *testClock
	svc           Service
	repo          Repository
	userRepo      users.Repository
	products      product.Service
	reprocessor   *countingReprocessor
	compensations compensations.Service
	failures      *failureRecorder
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	client, conn := dbtest.Client(t)
	clock := &testClock{now: time.Date(2024, 3, 10, 12, 0, 0, 0, time.UTC)}
	failures := &failureRecorder{}
	bestEffort := ledger.NewBestEffort(nil, failures)

	userRepo := users.NewRepository(conn)
	repo := NewRepository(conn)
	compRepo := compensations.NewRepository(conn)

	productSvc, err := product.NewService(product.NewRepository(conn))
	require.NoError(t, err)

	inner, err := balances.NewReprocessor(userRepo, compRepo, repo, client, nil, nil)
	require.NoError(t, err)
	reprocessor := &countingReprocessor{inner: inner}

	compSvc, err := compensations.NewService(compensations.ServiceParams{
		Repo:        compRepo,
		UserRepo:    userRepo,
		Tx:          client,
		Reprocessor: reprocessor,
		BestEffort:  bestEffort,
		Clock:       clock.Now,
	})
	require.NoError(t, err)

	svc, err := NewService(ServiceParams{
		Repo:          repo,
		Users:         userRepo,
		Products:      productSvc,
		Tx:            client,
		Reprocessor:   reprocessor,
		Compensations: compSvc,
		BestEffort:    bestEffort,
		Clock:         clock.Now,
	})
	require.NoError(t, err)

	return &harness{
		t:             t,
		conn:          conn,
		clock:         clock,
		svc:           svc,
		repo:          repo,
		userRepo:      userRepo,
		products:      productSvc,
		reprocessor:   reprocessor,
		compensations: compSvc,
		failures:      failures,
	}
}

func (h *harness) member(name string, active bool) uuid.UUID {
	h.t.Helper()
	u := &models.User{
		ID:       uuid.New(),
		Email:    name + "@example.com",
		Name:     name,
		IsActive: active,
		Balance:  decimal.Zero,
	}
	require.NoError(h.t, h.userRepo.Create(context.Background(), u))
	return u.ID
}

func (h *harness) product(name string) uuid.UUID {
	h.t.Helper()
	p, err := h.products.Create(context.Background(), product.CreateProductInput{Name: name})
	require.NoError(h.t, err)
	return p.ID
}

func (h *harness) balance(id uuid.UUID) decimal.Decimal {
	h.t.Helper()
	u, err := h.userRepo.FindByID(context.Background(), id)
	require.NoError(h.t, err)
	return u.Balance
}

func (h *harness) requireBalance(id uuid.UUID, want string) {
	h.t.Helper()
	got := h.balance(id)
	require.Truef(h.t, got.Equal(decimal.RequireFromString(want)), "balance = %s, want %s", got, want)
}

func (h *harness) input(buyer, productID uuid.UUID, kg, value string) CreateInput {
	return CreateInput{
		UserID:       buyer,
		ProductID:    productID,
		PurchaseDate: h.clock.now.Add(-time.Hour),
		Value:        decimal.RequireFromString(value),
		QuantityKg:   decimal.RequireFromString(kg),
	}
}

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func ptr[T any](v T) *T { return &v }

// serviceWithTx builds a service sharing the harness collaborators but
// running its writes through tx.
func (h *harness) serviceWithTx(tx db.TxRunner) Service {
	h.t.Helper()
	svc, err := NewService(ServiceParams{
		Repo:          h.repo,
		Users:         h.userRepo,
		Products:      h.products,
		Tx:            tx,
		Reprocessor:   h.reprocessor,
		Compensations: h.compensations,
		BestEffort:    ledger.NewBestEffort(nil, h.failures),
		Clock:         h.clock.Now,
	})
	require.NoError(h.t, err)
	return svc
}

func (h *harness) contributionCount() int64 {
	h.t.Helper()
	var n int64
	require.NoError(h.t, h.conn.Model(&models.Contribution{}).Count(&n).Error)
	return n
}

func (h *harness) detailCount() int64 {
	h.t.Helper()
	var n int64
	require.NoError(h.t, h.conn.Model(&models.ContributionDetail{}).Count(&n).Error)
	return n
}
