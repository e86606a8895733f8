/*
Package lease implements the contract calculator of the lease engine.

PURPOSE:
  Everything a contract form needs to turn user input into money: the term
  of the contract, rent conversion between monthly and yearly figures, the
  rent-free adjustment, tax and totals, and the installment schedule.

KEY CONCEPTS:
  - Term: days/months/years of a contract (period.go)
  - Rent conversion and rent-free adjustment (rent.go)
  - Tax and totals (tax.go)
  - Installment amounts and due dates (installments.go)
  - ContractUnit: one contract line and its recalculation (unit.go)
  - Form / Binder: field-change driven recalculation of a whole form (form.go)

FAILURE SEMANTICS:
  Calculators never fail on missing input. A zero TimePoint or a
  non-positive amount yields the neutral value (0 or an empty schedule).
  The Binder is the only place errors are handled: a failed recalculation
  is logged and the previous form state is kept.

SEE ALSO:
  - generic/time.go: TimePoint
  - factory/contract.go: JSON to Form conversion
*/
package lease

import "github.com/leaseforge/lease-engine/generic"

// =============================================================================
// TERM - Contract duration
// =============================================================================

// Term is the duration of a contract. Years and Months come from the
// calendar month difference; Days is the residual after subtracting an
// approximate 365-day year and 30-day month from TotalDays.
type Term struct {
	Days      int `json:"days"`
	Months    int `json:"months"`
	Years     int `json:"years"`
	TotalDays int `json:"total_days"`
}

// DaysBetween is the inclusive number of days from start to end.
// Returns 0 if either date is missing or end precedes start.
func DaysBetween(start, end generic.TimePoint) int {
	if start.IsZero() || end.IsZero() || end.Before(start) {
		return 0
	}
	return generic.DaysBetween(start, end) + 1
}

// MonthsBetween is the calendar month difference, ignoring the day of month.
func MonthsBetween(start, end generic.TimePoint) int {
	if start.IsZero() || end.IsZero() {
		return 0
	}
	return (end.Year()-start.Year())*12 + int(end.Month()-start.Month())
}

// ContractPeriod decomposes [from, to] into a Term.
//
// The residual day count is approximate: it subtracts years*365 and
// months*30 from the exact inclusive day count and floors at zero.
func ContractPeriod(from, to generic.TimePoint) Term {
	total := DaysBetween(from, to)
	if total == 0 {
		return Term{}
	}

	months := MonthsBetween(from, to)
	if months < 0 {
		months = 0
	}
	years := months / 12
	months = months % 12

	days := total - (years*365 + months*30)
	if days < 0 {
		days = 0
	}
	return Term{Days: days, Months: months, Years: years, TotalDays: total}
}
