package compensations

import (
	"context"
	"errors"

	"github.com/angelmondragon/coffeefund-backend/pkg/db/models"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Repository persists compensation aggregates.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	Create(ctx context.Context, compensation *models.Compensation, details []models.CompensationDetail) error
	FindByID(ctx context.Context, id uuid.UUID) (*models.Compensation, error)
	Latest(ctx context.Context) (*models.Compensation, []models.CompensationDetail, error)
	List(ctx context.Context) ([]models.Compensation, error)
	ListDetails(ctx context.Context, compensationIDs []uuid.UUID) (map[uuid.UUID][]models.CompensationDetail, error)
	Delete(ctx context.Context, id uuid.UUID) error
}

type repository struct {
	db *gorm.DB
}

func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

// Create inserts the compensation followed by its details.
func (r *repository) Create(ctx context.Context, compensation *models.Compensation, details []models.CompensationDetail) error {
	if compensation.ID == uuid.Nil {
		compensation.ID = uuid.New()
	}
	if err := r.db.WithContext(ctx).Create(compensation).Error; err != nil {
		return err
	}
	if len(details) == 0 {
		return nil
	}
	for i := range details {
		if details[i].ID == uuid.Nil {
			details[i].ID = uuid.New()
		}
		details[i].CompensationID = compensation.ID
	}
	return r.db.WithContext(ctx).Create(&details).Error
}

func (r *repository) FindByID(ctx context.Context, id uuid.UUID) (*models.Compensation, error) {
	var compensation models.Compensation
	if err := r.db.WithContext(ctx).First(&compensation, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &compensation, nil
}

// Latest returns the checkpoint compensation, or nil when none exists.
func (r *repository) Latest(ctx context.Context) (*models.Compensation, []models.CompensationDetail, error) {
	var compensation models.Compensation
	err := r.db.WithContext(ctx).
		Order("date DESC").
		Order("created_at DESC").
		First(&compensation).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil, nil
	}
	if err != nil {
		return nil, nil, err
	}
	var details []models.CompensationDetail
	if err := r.db.WithContext(ctx).
		Where("compensation_id = ?", compensation.ID).
		Find(&details).Error; err != nil {
		return nil, nil, err
	}
	return &compensation, details, nil
}

func (r *repository) List(ctx context.Context) ([]models.Compensation, error) {
	var list []models.Compensation
	if err := r.db.WithContext(ctx).Order("date DESC").Find(&list).Error; err != nil {
		return nil, err
	}
	return list, nil
}

func (r *repository) ListDetails(ctx context.Context, compensationIDs []uuid.UUID) (map[uuid.UUID][]models.CompensationDetail, error) {
	out := make(map[uuid.UUID][]models.CompensationDetail, len(compensationIDs))
	if len(compensationIDs) == 0 {
		return out, nil
	}
	var rows []models.CompensationDetail
	if err := r.db.WithContext(ctx).
		Where("compensation_id IN ?", compensationIDs).
		Order("user_name ASC").
		Find(&rows).Error; err != nil {
		return nil, err
	}
	for _, row := range rows {
		out[row.CompensationID] = append(out[row.CompensationID], row)
	}
	return out, nil
}

// Delete removes the aggregate. Callers run it inside a transaction.
func (r *repository) Delete(ctx context.Context, id uuid.UUID) error {
	if err := r.db.WithContext(ctx).
		Where("compensation_id = ?", id).
		Delete(&models.CompensationDetail{}).Error; err != nil {
		return err
	}
	res := r.db.WithContext(ctx).Delete(&models.Compensation{}, "id = ?", id)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}
