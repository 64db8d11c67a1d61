package ledger

import (
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Share is one participant's portion of a divided purchase.
type Share struct {
	UserID     uuid.UUID
	QuantityKg decimal.Decimal
	Value      decimal.Decimal
}

// Participants returns buyer followed by the other members, deduplicated and
// in first-seen order. Nil ids are dropped.
func Participants(buyer uuid.UUID, others []uuid.UUID) []uuid.UUID {
	seen := map[uuid.UUID]struct{}{buyer: {}}
	out := []uuid.UUID{buyer}
	for _, id := range others {
		if id == uuid.Nil {
			continue
		}
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}

// Split divides quantity and value evenly across members. Each share is
// truncated to the column scale and the remainder goes to members[0] (the
// buyer), so the shares always sum to exactly the stored totals.
func Split(members []uuid.UUID, quantityKg, value decimal.Decimal) []Share {
	if len(members) == 0 {
		return nil
	}
	quantityKg = RoundKg(quantityKg)
	value = RoundValue(value)

	n := decimal.NewFromInt(int64(len(members)))
	kgShare := quantityKg.Div(n).Truncate(BalanceScale)
	valueShare := value.Div(n).Truncate(ValueScale)

	shares := make([]Share, len(members))
	for i, id := range members {
		shares[i] = Share{UserID: id, QuantityKg: kgShare, Value: valueShare}
	}

	allocatedKg := kgShare.Mul(n)
	allocatedValue := valueShare.Mul(n)
	shares[0].QuantityKg = shares[0].QuantityKg.Add(quantityKg.Sub(allocatedKg))
	shares[0].Value = shares[0].Value.Add(value.Sub(allocatedValue))
	return shares
}
