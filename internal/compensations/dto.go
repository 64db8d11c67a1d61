package compensations

import (
	"time"

	"github.com/angelmondragon/coffeefund-backend/pkg/db/models"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// CompensationDTO is the historical snapshot returned to callers.
type CompensationDTO struct {
	ID        uuid.UUID       `json:"id"`
	Date      time.Time       `json:"date"`
	TotalKg   decimal.Decimal `json:"total_kg"`
	Details   []DetailDTO     `json:"details"`
	CreatedAt time.Time       `json:"created_at"`
}

type DetailDTO struct {
	UserID         uuid.UUID       `json:"user_id"`
	UserName       string          `json:"user_name"`
	BalanceBefore  decimal.Decimal `json:"balance_before"`
	BalanceAfter   decimal.Decimal `json:"balance_after"`
	CompensationKg decimal.Decimal `json:"compensation_kg"`
}

func toDTO(c *models.Compensation, details []models.CompensationDetail) *CompensationDTO {
	out := &CompensationDTO{
		ID:        c.ID,
		Date:      c.Date,
		TotalKg:   c.TotalKg,
		CreatedAt: c.CreatedAt,
		Details:   make([]DetailDTO, 0, len(details)),
	}
	for _, d := range details {
		out.Details = append(out.Details, DetailDTO{
			UserID:         d.UserID,
			UserName:       d.UserName,
			BalanceBefore:  d.BalanceBefore,
			BalanceAfter:   d.BalanceAfter,
			CompensationKg: d.CompensationKg,
		})
	}
	return out
}
