package balances

import (
	"time"

	"github.com/angelmondragon/coffeefund-backend/internal/ledger"
	"github.com/angelmondragon/coffeefund-backend/pkg/db/models"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Entry is a contribution to replay together with its stored shares.
type Entry struct {
	Contribution models.Contribution
	Details      []models.ContributionDetail
}

// EventsAfter keeps contributions purchased strictly after since. A nil
// since keeps everything.
func EventsAfter(contributions []models.Contribution, since *time.Time) []models.Contribution {
	if since == nil {
		return contributions
	}
	out := make([]models.Contribution, 0, len(contributions))
	for _, c := range contributions {
		if c.PurchaseDate.After(*since) {
			out = append(out, c)
		}
	}
	return out
}

// Compute returns the balance every known user should hold: their balance
// after the checkpoint plus the kg credited by entries, floored at zero.
// Credits for ids missing from users are dropped.
func Compute(users []models.User, checkpoint []models.CompensationDetail, entries []Entry) map[uuid.UUID]decimal.Decimal {
	balances := make(map[uuid.UUID]decimal.Decimal, len(users))
	for _, u := range users {
		balances[u.ID] = decimal.Zero
	}
	for _, d := range checkpoint {
		if _, ok := balances[d.UserID]; ok {
			balances[d.UserID] = d.BalanceAfter
		}
	}

	credit := func(id uuid.UUID, kg decimal.Decimal) {
		if current, ok := balances[id]; ok {
			balances[id] = current.Add(kg)
		}
	}
	for _, e := range entries {
		c := e.Contribution
		if !c.IsDivided || len(e.Details) == 0 {
			credit(c.UserID, c.QuantityKg)
			continue
		}
		for _, d := range e.Details {
			credit(d.UserID, d.QuantityKg)
		}
	}

	for id, b := range balances {
		if b.IsNegative() {
			b = decimal.Zero
		}
		balances[id] = ledger.RoundKg(b)
	}
	return balances
}
