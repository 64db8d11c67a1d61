package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Contribution records a coffee purchase made by UserID.
type Contribution struct {
	ID               uuid.UUID       `gorm:"column:id;type:uuid;primaryKey"`
	UserID           uuid.UUID       `gorm:"column:user_id;type:uuid;not null;index"`
	ProductID        uuid.UUID       `gorm:"column:product_id;type:uuid;not null;index"`
	PurchaseDate     time.Time       `gorm:"column:purchase_date;not null"`
	Value            decimal.Decimal `gorm:"column:value;type:numeric(12,2);not null"`
	QuantityKg       decimal.Decimal `gorm:"column:quantity_kg;type:numeric(14,6);not null"`
	PurchaseEvidence *string         `gorm:"column:purchase_evidence"`
	ArrivalEvidence  *string         `gorm:"column:arrival_evidence"`
	ArrivalDate      *time.Time      `gorm:"column:arrival_date"`
	IsDivided        bool            `gorm:"column:is_divided;not null;default:false"`
	CreatedAt        time.Time       `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt        time.Time       `gorm:"column:updated_at;autoUpdateTime"`
}

// ContributionDetail is one participant's share of a divided contribution.
type ContributionDetail struct {
	ID             uuid.UUID       `gorm:"column:id;type:uuid;primaryKey"`
	ContributionID uuid.UUID       `gorm:"column:contribution_id;type:uuid;not null;index"`
	UserID         uuid.UUID       `gorm:"column:user_id;type:uuid;not null"`
	UserName       string          `gorm:"column:user_name;not null"`
	QuantityKg     decimal.Decimal `gorm:"column:quantity_kg;type:numeric(14,6);not null"`
	Value          decimal.Decimal `gorm:"column:value;type:numeric(12,2);not null"`
	CreatedAt      time.Time       `gorm:"column:created_at;autoCreateTime"`
}
