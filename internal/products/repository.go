package product

import (
	"context"

	"github.com/angelmondragon/coffeefund-backend/pkg/db/models"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// Repository defines persistence for the coffee catalog.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	Create(ctx context.Context, product *models.Product) error
	FindByID(ctx context.Context, id uuid.UUID) (*models.Product, error)
	List(ctx context.Context) ([]models.Product, error)
	ContributionTotals(ctx context.Context, productID uuid.UUID) (Totals, error)
	UpdateAveragePrice(ctx context.Context, productID uuid.UUID, price decimal.Decimal) error
	UpdatePhoto(ctx context.Context, productID uuid.UUID, url string) error
}

// Totals aggregates the purchases recorded against one product.
type Totals struct {
	Value      decimal.Decimal
	QuantityKg decimal.Decimal
	Count      int
}

type repository struct {
	db *gorm.DB
}

// NewRepository binds a product repository to the provided database.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

// WithTx returns a repository bound to the provided transaction.
func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

func (r *repository) Create(ctx context.Context, product *models.Product) error {
	if product.ID == uuid.Nil {
		product.ID = uuid.New()
	}
	return r.db.WithContext(ctx).Create(product).Error
}

func (r *repository) FindByID(ctx context.Context, id uuid.UUID) (*models.Product, error) {
	var product models.Product
	if err := r.db.WithContext(ctx).First(&product, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &product, nil
}

func (r *repository) List(ctx context.Context) ([]models.Product, error) {
	var products []models.Product
	if err := r.db.WithContext(ctx).Order("name ASC").Find(&products).Error; err != nil {
		return nil, err
	}
	return products, nil
}

// ContributionTotals sums value and kg over the product's contributions.
// Rows are summed in Go so the result keeps decimal precision on every driver.
func (r *repository) ContributionTotals(ctx context.Context, productID uuid.UUID) (Totals, error) {
	var rows []models.Contribution
	if err := r.db.WithContext(ctx).
		Select("value", "quantity_kg").
		Where("product_id = ?", productID).
		Find(&rows).Error; err != nil {
		return Totals{}, err
	}
	totals := Totals{Value: decimal.Zero, QuantityKg: decimal.Zero, Count: len(rows)}
	for _, row := range rows {
		totals.Value = totals.Value.Add(row.Value)
		totals.QuantityKg = totals.QuantityKg.Add(row.QuantityKg)
	}
	return totals, nil
}

func (r *repository) UpdateAveragePrice(ctx context.Context, productID uuid.UUID, price decimal.Decimal) error {
	return r.updateColumn(ctx, productID, "average_price_per_kg", price)
}

func (r *repository) UpdatePhoto(ctx context.Context, productID uuid.UUID, url string) error {
	return r.updateColumn(ctx, productID, "photo_url", url)
}

func (r *repository) updateColumn(ctx context.Context, productID uuid.UUID, column string, value any) error {
	res := r.db.WithContext(ctx).
		Model(&models.Product{}).
		Where("id = ?", productID).
		Updates(map[string]any{column: value})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}
