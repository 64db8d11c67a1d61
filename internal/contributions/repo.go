package contributions

import (
	"context"

	"github.com/angelmondragon/coffeefund-backend/pkg/db/models"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Repository persists contributions and their participant shares.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	Create(ctx context.Context, contribution *models.Contribution) error
	CreateDetails(ctx context.Context, details []models.ContributionDetail) error
	FindByID(ctx context.Context, id uuid.UUID) (*models.Contribution, error)
	Update(ctx context.Context, id uuid.UUID, fields map[string]any) error
	Delete(ctx context.Context, id uuid.UUID) error
	DeleteDetails(ctx context.Context, contributionID uuid.UUID) error
	ListDetails(ctx context.Context, contributionID uuid.UUID) ([]models.ContributionDetail, error)
	ListDetailsFor(ctx context.Context, contributionIDs []uuid.UUID) (map[uuid.UUID][]models.ContributionDetail, error)
	ListAll(ctx context.Context) ([]models.Contribution, error)
	ListByUser(ctx context.Context, userID uuid.UUID) ([]models.Contribution, error)
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

func (r *repository) Create(ctx context.Context, contribution *models.Contribution) error {
	if contribution.ID == uuid.Nil {
		contribution.ID = uuid.New()
	}
	return r.db.WithContext(ctx).Create(contribution).Error
}

func (r *repository) CreateDetails(ctx context.Context, details []models.ContributionDetail) error {
	if len(details) == 0 {
		return nil
	}
	for i := range details {
		if details[i].ID == uuid.Nil {
			details[i].ID = uuid.New()
		}
	}
	return r.db.WithContext(ctx).Create(&details).Error
}

func (r *repository) FindByID(ctx context.Context, id uuid.UUID) (*models.Contribution, error) {
	var contribution models.Contribution
	if err := r.db.WithContext(ctx).First(&contribution, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &contribution, nil
}

func (r *repository) Update(ctx context.Context, id uuid.UUID, fields map[string]any) error {
	if len(fields) == 0 {
		return nil
	}
	res := r.db.WithContext(ctx).Model(&models.Contribution{}).Where("id = ?", id).Updates(fields)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

func (r *repository) Delete(ctx context.Context, id uuid.UUID) error {
	res := r.db.WithContext(ctx).Delete(&models.Contribution{}, "id = ?", id)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

func (r *repository) DeleteDetails(ctx context.Context, contributionID uuid.UUID) error {
	return r.db.WithContext(ctx).
		Where("contribution_id = ?", contributionID).
		Delete(&models.ContributionDetail{}).Error
}

func (r *repository) ListDetails(ctx context.Context, contributionID uuid.UUID) ([]models.ContributionDetail, error) {
	var details []models.ContributionDetail
	if err := r.db.WithContext(ctx).
		Where("contribution_id = ?", contributionID).
		Order("created_at ASC").
		Find(&details).Error; err != nil {
		return nil, err
	}
	return details, nil
}

func (r *repository) ListDetailsFor(ctx context.Context, contributionIDs []uuid.UUID) (map[uuid.UUID][]models.ContributionDetail, error) {
	out := make(map[uuid.UUID][]models.ContributionDetail, len(contributionIDs))
	if len(contributionIDs) == 0 {
		return out, nil
	}
	var rows []models.ContributionDetail
	if err := r.db.WithContext(ctx).
		Where("contribution_id IN ?", contributionIDs).
		Order("created_at ASC").
		Find(&rows).Error; err != nil {
		return nil, err
	}
	for _, row := range rows {
		out[row.ContributionID] = append(out[row.ContributionID], row)
	}
	return out, nil
}

// ListAll returns every contribution, newest purchase first.
func (r *repository) ListAll(ctx context.Context) ([]models.Contribution, error) {
	var list []models.Contribution
	if err := r.db.WithContext(ctx).
		Order("purchase_date DESC").
		Order("created_at DESC").
		Find(&list).Error; err != nil {
		return nil, err
	}
	return list, nil
}

func (r *repository) ListByUser(ctx context.Context, userID uuid.UUID) ([]models.Contribution, error) {
	var list []models.Contribution
	if err := r.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("purchase_date DESC").
		Find(&list).Error; err != nil {
		return nil, err
	}
	return list, nil
}
