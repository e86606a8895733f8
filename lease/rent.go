package lease

import (
	"github.com/leaseforge/lease-engine/generic"
	"github.com/shopspring/decimal"
)

var (
	monthsPerYear = decimal.NewFromInt(12)
	daysPerYear   = decimal.NewFromInt(365)
)

// =============================================================================
// RENT CONVERSION
// =============================================================================

// MonthlyToYearly returns m * 12, or zero for non-positive input.
func MonthlyToYearly(m decimal.Decimal) decimal.Decimal {
	return generic.Positive(m).Mul(monthsPerYear)
}

// YearlyToMonthly returns y / 12, or zero for non-positive input.
func YearlyToMonthly(y decimal.Decimal) decimal.Decimal {
	return generic.Positive(y).Div(monthsPerYear)
}

// DailyRate spreads a yearly amount over a fixed 365-day year.
func DailyRate(yearly decimal.Decimal) decimal.Decimal {
	return generic.Positive(yearly).Div(daysPerYear)
}

// =============================================================================
// RENT-FREE ADJUSTMENT
// =============================================================================

// RentFreeAmount is the rent waived over the rent-free window:
// DailyRate(yearlyRent) * inclusive days of rentFree, rounded to cents.
// Zero when the window is not set or the yearly rent is not positive.
//
// The window is not clipped to the contract term; see RentFreeOutsideContract.
func RentFreeAmount(yearlyRent decimal.Decimal, rentFree generic.Period) decimal.Decimal {
	if !rentFree.IsSet() || !yearlyRent.IsPositive() {
		return decimal.Zero
	}
	days := DaysBetween(rentFree.Start, rentFree.End)
	if days == 0 {
		return decimal.Zero
	}
	return generic.RoundMoney(DailyRate(yearlyRent).Mul(decimal.NewFromInt(int64(days))))
}

// RentFreeOutsideContract reports a rent-free window that is set but not
// fully inside a set contract term.
func RentFreeOutsideContract(contract, rentFree generic.Period) bool {
	if !contract.Valid() || !rentFree.IsSet() {
		return false
	}
	return !contract.Covers(rentFree)
}
