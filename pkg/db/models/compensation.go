package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Compensation is the immutable snapshot of one redistribution run. The most
// recent one is the checkpoint balances are replayed from.
type Compensation struct {
	ID        uuid.UUID       `gorm:"column:id;type:uuid;primaryKey"`
	Date      time.Time       `gorm:"column:date;not null;index"`
	TotalKg   decimal.Decimal `gorm:"column:total_kg;type:numeric(14,6);not null"`
	CreatedAt time.Time       `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt time.Time       `gorm:"column:updated_at;autoUpdateTime"`
}

// CompensationDetail captures one active user's balance before and after.
type CompensationDetail struct {
	ID             uuid.UUID       `gorm:"column:id;type:uuid;primaryKey"`
	CompensationID uuid.UUID       `gorm:"column:compensation_id;type:uuid;not null;index"`
	UserID         uuid.UUID       `gorm:"column:user_id;type:uuid;not null"`
	UserName       string          `gorm:"column:user_name;not null"`
	BalanceBefore  decimal.Decimal `gorm:"column:balance_before;type:numeric(14,6);not null"`
	BalanceAfter   decimal.Decimal `gorm:"column:balance_after;type:numeric(14,6);not null"`
	CompensationKg decimal.Decimal `gorm:"column:compensation_kg;type:numeric(14,6);not null"`
}
