package lease

import (
	"github.com/leaseforge/lease-engine/generic"
	"github.com/shopspring/decimal"
)

// =============================================================================
// CONTRACT UNIT - One leased unit on a contract form
// =============================================================================

// Warning flags a condition the calculator does not correct but the form
// should show to the user.
type Warning string

const (
	WarnRentFreeOutsideContract Warning = "rent_free_outside_contract"
	WarnFitoutOutsideContract   Warning = "fitout_outside_contract"
	WarnToBeforeFrom            Warning = "to_date_before_from_date"
)

// ContractUnit holds the inputs of one contract line and the values derived
// from them. Exactly one of RentPerMonth / RentPerYear is the user's input;
// Recalculate derives the other.
type ContractUnit struct {
	UnitID string `json:"unit_id"`

	FromDate         generic.TimePoint `json:"from_date"`
	ToDate           generic.TimePoint `json:"to_date"`
	RentPerMonth     decimal.Decimal   `json:"rent_per_month"`
	RentPerYear      decimal.Decimal   `json:"rent_per_year"`
	RentFreeFrom     generic.TimePoint `json:"rent_free_from"`
	RentFreeTo       generic.TimePoint `json:"rent_free_to"`
	TaxPercentage    decimal.Decimal   `json:"tax_percentage"`
	NoOfInstallments int               `json:"no_of_installments"`
	Frequency        Frequency         `json:"frequency"`
	FitoutFrom       generic.TimePoint `json:"fitout_from"`
	FitoutTo         generic.TimePoint `json:"fitout_to"`
	CommencementDate generic.TimePoint `json:"commencement_date"`

	// Derived
	ContractDays      int             `json:"contract_days"`
	ContractMonths    int             `json:"contract_months"`
	ContractYears     int             `json:"contract_years"`
	TotalDays         int             `json:"total_days"`
	FitoutDays        int             `json:"fitout_days"`
	RentFreeAmount    decimal.Decimal `json:"rent_free_amount"`
	EffectiveRent     decimal.Decimal `json:"effective_rent"`
	TaxAmount         decimal.Decimal `json:"tax_amount"`
	TotalAmount       decimal.Decimal `json:"total_amount"`
	InstallmentAmount decimal.Decimal `json:"installment_amount"`
	Schedule          []ScheduleEntry `json:"installment_schedule"`
	Warnings          []Warning       `json:"warnings,omitempty"`
}

func (u ContractUnit) Term() generic.Period {
	return generic.Period{Start: u.FromDate, End: u.ToDate}
}

func (u ContractUnit) RentFreePeriod() generic.Period {
	return generic.Period{Start: u.RentFreeFrom, End: u.RentFreeTo}
}

func (u ContractUnit) FitoutPeriod() generic.Period {
	return generic.Period{Start: u.FitoutFrom, End: u.FitoutTo}
}

// ScheduleStart is the first due date: commencement, else the contract start.
func (u ContractUnit) ScheduleStart() generic.TimePoint {
	if !u.CommencementDate.IsZero() {
		return u.CommencementDate
	}
	return u.FromDate
}

// Recalculate returns a copy of u with every derived field recomputed.
// changed names the field the user just edited and decides rent authority:
// editing RentPerMonth re-derives RentPerYear and vice versa. For any other
// field the missing side is derived from the present one.
//
// It fails on an unknown installment frequency or an installment count above
// MaxInstallments.
func Recalculate(u ContractUnit, changed FieldID) (ContractUnit, error) {
	freq, err := ParseFrequency(string(u.Frequency))
	if err != nil {
		return u, err
	}
	u.Frequency = freq
	if u.NoOfInstallments > MaxInstallments {
		return u, TooManyInstallments(u.NoOfInstallments)
	}

	switch changed {
	case FieldRentPerMonth:
		u.RentPerYear = MonthlyToYearly(u.RentPerMonth)
	case FieldRentPerYear:
		u.RentPerMonth = generic.RoundMoney(YearlyToMonthly(u.RentPerYear))
	default:
		if !u.RentPerYear.IsPositive() && u.RentPerMonth.IsPositive() {
			u.RentPerYear = MonthlyToYearly(u.RentPerMonth)
		} else if !u.RentPerMonth.IsPositive() && u.RentPerYear.IsPositive() {
			u.RentPerMonth = generic.RoundMoney(YearlyToMonthly(u.RentPerYear))
		}
	}

	term := ContractPeriod(u.FromDate, u.ToDate)
	u.ContractDays = term.Days
	u.ContractMonths = term.Months
	u.ContractYears = term.Years
	u.TotalDays = term.TotalDays
	u.FitoutDays = DaysBetween(u.FitoutFrom, u.FitoutTo)

	u.RentFreeAmount = RentFreeAmount(u.RentPerYear, u.RentFreePeriod())
	u.EffectiveRent = EffectiveRent(u.RentPerYear, u.RentFreeAmount)
	u.TaxAmount, u.TotalAmount = TotalWithTax(u.EffectiveRent, u.TaxPercentage)

	u.Schedule = Schedule(u.TotalAmount, u.NoOfInstallments, u.ScheduleStart(), u.Frequency)
	u.InstallmentAmount = decimal.Zero
	if len(u.Schedule) > 0 {
		u.InstallmentAmount = u.Schedule[0].Amount
	}

	u.Warnings = unitWarnings(u)
	return u, nil
}

func unitWarnings(u ContractUnit) []Warning {
	var warnings []Warning
	term := u.Term()
	if term.IsSet() && !term.Valid() {
		warnings = append(warnings, WarnToBeforeFrom)
	}
	if RentFreeOutsideContract(term, u.RentFreePeriod()) {
		warnings = append(warnings, WarnRentFreeOutsideContract)
	}
	if fit := u.FitoutPeriod(); term.Valid() && fit.IsSet() && !term.Covers(fit) {
		warnings = append(warnings, WarnFitoutOutsideContract)
	}
	return warnings
}
