package users

import (
	"time"

	"github.com/angelmondragon/coffeefund-backend/pkg/db/models"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// UserDTO is the transport shape for a fund member.
type UserDTO struct {
	ID        uuid.UUID       `json:"id"`
	Email     string          `json:"email"`
	Name      string          `json:"name"`
	PhotoURL  *string         `json:"photo_url,omitempty"`
	IsAdmin   bool            `json:"is_admin"`
	IsActive  bool            `json:"is_active"`
	Balance   decimal.Decimal `json:"balance"`
	CreatedAt time.Time       `json:"created_at"`
	UpdatedAt time.Time       `json:"updated_at"`
}

// EnsureProfileInput carries the identity supplied on first login.
type EnsureProfileInput struct {
	Email    string
	Name     string
	PhotoURL *string
}

// SetStatusInput toggles membership flags; nil fields are left unchanged.
type SetStatusInput struct {
	IsActive *bool
	IsAdmin  *bool
}

func FromModel(u *models.User) *UserDTO {
	if u == nil {
		return nil
	}
	return &UserDTO{
		ID:        u.ID,
		Email:     u.Email,
		Name:      u.Name,
		PhotoURL:  u.PhotoURL,
		IsAdmin:   u.IsAdmin,
		IsActive:  u.IsActive,
		Balance:   u.Balance,
		CreatedAt: u.CreatedAt,
		UpdatedAt: u.UpdatedAt,
	}
}

func FromModels(list []models.User) []UserDTO {
	out := make([]UserDTO, 0, len(list))
	for i := range list {
		out = append(out, *FromModel(&list[i]))
	}
	return out
}
