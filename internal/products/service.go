package product

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/angelmondragon/coffeefund-backend/internal/ledger"
	"github.com/angelmondragon/coffeefund-backend/pkg/db/models"
	pkgerrors "github.com/angelmondragon/coffeefund-backend/pkg/errors"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// Service exposes the catalog operations the ledger relies on.
type Service interface {
	Create(ctx context.Context, input CreateProductInput) (*ProductDTO, error)
	Get(ctx context.Context, id uuid.UUID) (*ProductDTO, error)
	List(ctx context.Context) ([]ProductDTO, error)
	RecomputeAveragePrice(ctx context.Context, id uuid.UUID) (decimal.Decimal, error)
	SetPhoto(ctx context.Context, id uuid.UUID, url string) error
}

type service struct {
	repo Repository
}

// NewService constructs a product service instance.
func NewService(repo Repository) (Service, error) {
	if repo == nil {
		return nil, fmt.Errorf("product repository required")
	}
	return &service{repo: repo}, nil
}

func (s *service) Create(ctx context.Context, input CreateProductInput) (*ProductDTO, error) {
	name := strings.TrimSpace(input.Name)
	if name == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "name is required")
	}
	product := &models.Product{
		ID:                uuid.New(),
		Name:              name,
		Description:       trimmedOrNil(input.Description),
		PhotoURL:          trimmedOrNil(input.PhotoURL),
		AveragePricePerKg: decimal.Zero,
	}
	if err := s.repo.Create(ctx, product); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodePersistence, err, "db: insert product")
	}
	return toDTO(product), nil
}

func (s *service) Get(ctx context.Context, id uuid.UUID) (*ProductDTO, error) {
	product, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return nil, mapLookupError(err)
	}
	return toDTO(product), nil
}

func (s *service) List(ctx context.Context) ([]ProductDTO, error) {
	products, err := s.repo.List(ctx)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list products")
	}
	out := make([]ProductDTO, 0, len(products))
	for i := range products {
		out = append(out, *toDTO(&products[i]))
	}
	return out, nil
}

// RecomputeAveragePrice stores sum(value)/sum(kg) across the product's
// contributions, or zero when nothing has been bought yet.
func (s *service) RecomputeAveragePrice(ctx context.Context, id uuid.UUID) (decimal.Decimal, error) {
	totals, err := s.repo.ContributionTotals(ctx, id)
	if err != nil {
		return decimal.Zero, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "sum product contributions")
	}
	price := AveragePrice(totals)
	if err := s.repo.UpdateAveragePrice(ctx, id, price); err != nil {
		return decimal.Zero, mapLookupError(err)
	}
	return price, nil
}

// SetPhoto replaces the product photo.
func (s *service) SetPhoto(ctx context.Context, id uuid.UUID, url string) error {
	url = strings.TrimSpace(url)
	if url == "" {
		return pkgerrors.New(pkgerrors.CodeValidation, "photo url is required")
	}
	if err := s.repo.UpdatePhoto(ctx, id, url); err != nil {
		return mapLookupError(err)
	}
	return nil
}

// AveragePrice is value per kg rounded to cents.
func AveragePrice(t Totals) decimal.Decimal {
	if t.Count == 0 || !t.QuantityKg.IsPositive() {
		return decimal.Zero
	}
	return ledger.RoundValue(t.Value.Div(t.QuantityKg))
}

func trimmedOrNil(v *string) *string {
	if v == nil {
		return nil
	}
	trimmed := strings.TrimSpace(*v)
	if trimmed == "" {
		return nil
	}
	return &trimmed
}

func mapLookupError(err error) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return pkgerrors.Wrap(pkgerrors.CodeNotFound, err, "product not found")
	}
	return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load product")
}
