package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// User is a coffee fund member. Balance is a cached value rebuilt by the
// balance reprocessor; it is never negative at rest.
type User struct {
	ID        uuid.UUID       `gorm:"column:id;type:uuid;primaryKey"`
	Email     string          `gorm:"column:email;type:text;not null;uniqueIndex"`
	Name      string          `gorm:"column:name;not null"`
	PhotoURL  *string         `gorm:"column:photo_url"`
	IsAdmin   bool            `gorm:"column:is_admin;not null;default:false"`
	IsActive  bool            `gorm:"column:is_active;not null;default:false"`
	Balance   decimal.Decimal `gorm:"column:balance;type:numeric(14,6);not null;default:0"`
	CreatedAt time.Time       `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt time.Time       `gorm:"column:updated_at;autoUpdateTime"`
}
