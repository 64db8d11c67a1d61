// Package ledger holds the arithmetic shared by the contribution, balance
// and compensation code: column scales, even splits and post-commit steps.
package ledger

import "github.com/shopspring/decimal"

const (
	// BalanceScale matches numeric(14,6) on kg columns.
	BalanceScale int32 = 6
	// ValueScale matches numeric(12,2) on currency columns.
	ValueScale int32 = 2
)

// RoundKg rounds a kg amount to the stored precision.
func RoundKg(v decimal.Decimal) decimal.Decimal {
	return v.Round(BalanceScale)
}

// RoundValue rounds a currency amount to cents.
func RoundValue(v decimal.Decimal) decimal.Decimal {
	return v.Round(ValueScale)
}

// SameKg compares two kg amounts at the stored precision.
func SameKg(a, b decimal.Decimal) bool {
	return RoundKg(a).Equal(RoundKg(b))
}
