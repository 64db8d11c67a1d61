package compensations

import (
	"github.com/angelmondragon/coffeefund-backend/pkg/db/models"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Redistribution is the computed effect of one compensation.
type Redistribution struct {
	TotalKg decimal.Decimal
	Details []models.CompensationDetail
}

// AllInCredit reports whether active is non-empty and every balance is > 0.
func AllInCredit(active []models.User) bool {
	if len(active) == 0 {
		return false
	}
	for _, u := range active {
		if !u.Balance.IsPositive() {
			return false
		}
	}
	return true
}

// Plan computes the redistribution for the active users: the minimum
// balance is subtracted from everyone. Nil means nothing to do.
func Plan(active []models.User) *Redistribution {
	if len(active) == 0 {
		return nil
	}
	minBalance := active[0].Balance
	for _, u := range active[1:] {
		if u.Balance.LessThan(minBalance) {
			minBalance = u.Balance
		}
	}
	if !minBalance.IsPositive() {
		return nil
	}

	details := make([]models.CompensationDetail, 0, len(active))
	for _, u := range active {
		after := u.Balance.Sub(minBalance)
		if after.IsNegative() {
			after = decimal.Zero
		}
		details = append(details, models.CompensationDetail{
			ID:             uuid.New(),
			UserID:         u.ID,
			UserName:       u.Name,
			BalanceBefore:  u.Balance,
			BalanceAfter:   after,
			CompensationKg: minBalance,
		})
	}
	return &Redistribution{TotalKg: minBalance, Details: details}
}
