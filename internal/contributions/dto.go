package contributions

import (
	"time"

	"github.com/angelmondragon/coffeefund-backend/pkg/db/models"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// ContributionDTO is a purchase together with its participant shares.
type ContributionDTO struct {
	ID               uuid.UUID       `json:"id"`
	UserID           uuid.UUID       `json:"user_id"`
	ProductID        uuid.UUID       `json:"product_id"`
	PurchaseDate     time.Time       `json:"purchase_date"`
	Value            decimal.Decimal `json:"value"`
	QuantityKg       decimal.Decimal `json:"quantity_kg"`
	PurchaseEvidence *string         `json:"purchase_evidence,omitempty"`
	ArrivalEvidence  *string         `json:"arrival_evidence,omitempty"`
	ArrivalDate      *time.Time      `json:"arrival_date,omitempty"`
	IsDivided        bool            `json:"is_divided"`
	Details          []DetailDTO     `json:"details,omitempty"`
	CreatedAt        time.Time       `json:"created_at"`
	UpdatedAt        time.Time       `json:"updated_at"`
}

type DetailDTO struct {
	UserID     uuid.UUID       `json:"user_id"`
	UserName   string          `json:"user_name"`
	QuantityKg decimal.Decimal `json:"quantity_kg"`
	Value      decimal.Decimal `json:"value"`
}

// CreateInput is a new purchase. ParticipantIDs only matter when IsDivided.
type CreateInput struct {
	UserID           uuid.UUID
	ProductID        uuid.UUID
	PurchaseDate     time.Time
	Value            decimal.Decimal
	QuantityKg       decimal.Decimal
	PurchaseEvidence *string
	ArrivalEvidence  *string
	ArrivalDate      *time.Time
	IsDivided        bool
	ParticipantIDs   []uuid.UUID
}

// UpdateInput patches a contribution; nil fields keep their stored value.
// SkipBalanceUpdate is set for purchases already settled by a compensation:
// only product, arrival data, evidences and the divided flag are written.
type UpdateInput struct {
	ProductID         *uuid.UUID
	PurchaseDate      *time.Time
	Value             *decimal.Decimal
	QuantityKg        *decimal.Decimal
	PurchaseEvidence  *string
	ArrivalEvidence   *string
	ArrivalDate       *time.Time
	IsDivided         *bool
	ParticipantIDs    *[]uuid.UUID
	SkipBalanceUpdate bool
}

func toDTO(c *models.Contribution, details []models.ContributionDetail) *ContributionDTO {
	out := &ContributionDTO{
		ID:               c.ID,
		UserID:           c.UserID,
		ProductID:        c.ProductID,
		PurchaseDate:     c.PurchaseDate,
		Value:            c.Value,
		QuantityKg:       c.QuantityKg,
		PurchaseEvidence: c.PurchaseEvidence,
		ArrivalEvidence:  c.ArrivalEvidence,
		ArrivalDate:      c.ArrivalDate,
		IsDivided:        c.IsDivided,
		CreatedAt:        c.CreatedAt,
		UpdatedAt:        c.UpdatedAt,
	}
	for _, d := range details {
		out.Details = append(out.Details, DetailDTO{
			UserID:     d.UserID,
			UserName:   d.UserName,
			QuantityKg: d.QuantityKg,
			Value:      d.Value,
		})
	}
	return out
}
