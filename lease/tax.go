package lease

import (
	"github.com/leaseforge/lease-engine/generic"
	"github.com/shopspring/decimal"
)

var hundred = decimal.NewFromInt(100)

// TaxAmount returns base * pct / 100 rounded to cents, or zero when either
// input is not positive.
func TaxAmount(base, pct decimal.Decimal) decimal.Decimal {
	if !base.IsPositive() || !pct.IsPositive() {
		return decimal.Zero
	}
	return generic.RoundMoney(base.Mul(pct).Div(hundred))
}

// EffectiveRent is the yearly rent after the rent-free adjustment, floored at zero.
func EffectiveRent(yearlyRent, rentFree decimal.Decimal) decimal.Decimal {
	return generic.Positive(yearlyRent.Sub(rentFree))
}

// TotalWithTax returns the tax on effective and effective + tax.
func TotalWithTax(effective, pct decimal.Decimal) (tax, total decimal.Decimal) {
	tax = TaxAmount(effective, pct)
	return tax, effective.Add(tax)
}
