package lease

import (
	"errors"
	"fmt"

	"github.com/leaseforge/lease-engine/generic"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
)

// =============================================================================
// FIELD IDENTIFIERS
// =============================================================================

// FieldID names an editable field of a contract unit.
type FieldID int

const (
	FieldNone FieldID = iota
	FieldUnitID
	FieldFromDate
	FieldToDate
	FieldRentPerMonth
	FieldRentPerYear
	FieldRentFreeFrom
	FieldRentFreeTo
	FieldTaxPercentage
	FieldNoOfInstallments
	FieldFrequency
	FieldFitoutFrom
	FieldFitoutTo
	FieldCommencementDate
)

var fieldNames = map[FieldID]string{
	FieldNone:             "",
	FieldUnitID:           "unit_id",
	FieldFromDate:         "from_date",
	FieldToDate:           "to_date",
	FieldRentPerMonth:     "rent_per_month",
	FieldRentPerYear:      "rent_per_year",
	FieldRentFreeFrom:     "rent_free_from",
	FieldRentFreeTo:       "rent_free_to",
	FieldTaxPercentage:    "tax_percentage",
	FieldNoOfInstallments: "no_of_installments",
	FieldFrequency:        "frequency",
	FieldFitoutFrom:       "fitout_from",
	FieldFitoutTo:         "fitout_to",
	FieldCommencementDate: "commencement_date",
}

func (f FieldID) String() string {
	if name, ok := fieldNames[f]; ok {
		return name
	}
	return fmt.Sprintf("field(%d)", int(f))
}

// ParseFieldID maps a JSON field name to its FieldID.
func ParseFieldID(name string) (FieldID, error) {
	for id, n := range fieldNames {
		if n == name && id != FieldNone {
			return id, nil
		}
	}
	return FieldNone, &generic.FieldError{Field: "field", Value: name, Message: "unknown contract unit field"}
}

// Watched reports whether an edit of f triggers recalculation.
func (f FieldID) Watched() bool {
	switch f {
	case FieldFromDate, FieldToDate,
		FieldRentPerMonth, FieldRentPerYear,
		FieldRentFreeFrom, FieldRentFreeTo,
		FieldTaxPercentage, FieldNoOfInstallments, FieldFrequency,
		FieldFitoutFrom, FieldFitoutTo, FieldCommencementDate:
		return true
	}
	return false
}

// FieldRef addresses one field of one unit on a form.
type FieldRef struct {
	Unit  int
	Field FieldID
}

func (r FieldRef) String() string {
	return fmt.Sprintf("units[%d].%s", r.Unit, r.Field)
}

// =============================================================================
// VALUES
// =============================================================================

type valueKind int

const (
	kindDate valueKind = iota + 1
	kindDecimal
	kindInt
	kindText
)

// Value is a typed field value. Build one with DateValue, DecimalValue,
// IntValue or TextValue.
type Value struct {
	kind  valueKind
	date  generic.TimePoint
	num   decimal.Decimal
	count int
	text  string
}

func DateValue(tp generic.TimePoint) Value { return Value{kind: kindDate, date: tp} }
func DecimalValue(d decimal.Decimal) Value { return Value{kind: kindDecimal, num: d} }
func IntValue(n int) Value                 { return Value{kind: kindInt, count: n} }
func TextValue(s string) Value             { return Value{kind: kindText, text: s} }

func (v Value) mismatch(ref FieldRef, want string) error {
	return &generic.FieldError{Field: ref.String(), Message: "expected a " + want + " value"}
}

// =============================================================================
// FORM
// =============================================================================

// AdditionalCharge is a non-rent line on the contract (service charge,
// deposit, agency fee).
type AdditionalCharge struct {
	Description   string          `json:"description"`
	Amount        decimal.Decimal `json:"amount"`
	TaxPercentage decimal.Decimal `json:"tax_percentage"`
	TaxAmount     decimal.Decimal `json:"tax_amount"`
	Total         decimal.Decimal `json:"total"`
}

// Totals are the top-level figures of a contract form.
type Totals struct {
	RentTotal    decimal.Decimal `json:"rent_total"`
	ChargesTotal decimal.Decimal `json:"charges_total"`
	TaxTotal     decimal.Decimal `json:"tax_total"`
	GrandTotal   decimal.Decimal `json:"grand_total"`
}

// Form is the whole contract form state. It is a value: every operation
// returns a new Form and the caller decides whether to keep it.
type Form struct {
	Units   []ContractUnit     `json:"units"`
	Charges []AdditionalCharge `json:"charges"`
	Totals  Totals             `json:"totals"`
}

// Clone copies the unit and charge slices so edits on the copy do not
// reach the original.
func (f Form) Clone() Form {
	out := Form{Totals: f.Totals}
	out.Units = append([]ContractUnit(nil), f.Units...)
	out.Charges = append([]AdditionalCharge(nil), f.Charges...)
	return out
}

// Set returns a copy of f with the referenced field replaced. It does not
// recalculate anything.
func (f Form) Set(ref FieldRef, v Value) (Form, error) {
	if ref.Unit < 0 || ref.Unit >= len(f.Units) {
		return f, &generic.FieldError{Field: ref.String(), Message: "unit index out of range"}
	}
	out := f.Clone()
	u := &out.Units[ref.Unit]

	switch ref.Field {
	case FieldFromDate, FieldToDate, FieldRentFreeFrom, FieldRentFreeTo,
		FieldFitoutFrom, FieldFitoutTo, FieldCommencementDate:
		if v.kind != kindDate {
			return f, v.mismatch(ref, "date")
		}
		*datePtr(u, ref.Field) = v.date
	case FieldRentPerMonth:
		if v.kind != kindDecimal {
			return f, v.mismatch(ref, "decimal")
		}
		u.RentPerMonth = v.num
	case FieldRentPerYear:
		if v.kind != kindDecimal {
			return f, v.mismatch(ref, "decimal")
		}
		u.RentPerYear = v.num
	case FieldTaxPercentage:
		if v.kind != kindDecimal {
			return f, v.mismatch(ref, "decimal")
		}
		u.TaxPercentage = v.num
	case FieldNoOfInstallments:
		if v.kind != kindInt {
			return f, v.mismatch(ref, "integer")
		}
		u.NoOfInstallments = v.count
	case FieldFrequency:
		if v.kind != kindText {
			return f, v.mismatch(ref, "text")
		}
		u.Frequency = Frequency(v.text)
	case FieldUnitID:
		if v.kind != kindText {
			return f, v.mismatch(ref, "text")
		}
		u.UnitID = v.text
	default:
		return f, &generic.FieldError{Field: ref.String(), Message: "field is not editable"}
	}
	return out, nil
}

func datePtr(u *ContractUnit, field FieldID) *generic.TimePoint {
	switch field {
	case FieldFromDate:
		return &u.FromDate
	case FieldToDate:
		return &u.ToDate
	case FieldRentFreeFrom:
		return &u.RentFreeFrom
	case FieldRentFreeTo:
		return &u.RentFreeTo
	case FieldFitoutFrom:
		return &u.FitoutFrom
	case FieldFitoutTo:
		return &u.FitoutTo
	default:
		return &u.CommencementDate
	}
}

// RecalculateTotals recomputes every charge's tax and the form totals from
// the units' already-derived figures.
func RecalculateTotals(f Form) Form {
	out := f.Clone()
	var t Totals
	for _, u := range out.Units {
		t.RentTotal = t.RentTotal.Add(u.EffectiveRent)
		t.TaxTotal = t.TaxTotal.Add(u.TaxAmount)
		t.GrandTotal = t.GrandTotal.Add(u.TotalAmount)
	}
	for i := range out.Charges {
		c := &out.Charges[i]
		c.Amount = generic.Positive(c.Amount)
		c.TaxAmount, c.Total = TotalWithTax(c.Amount, c.TaxPercentage)
		t.ChargesTotal = t.ChargesTotal.Add(c.Amount)
		t.TaxTotal = t.TaxTotal.Add(c.TaxAmount)
		t.GrandTotal = t.GrandTotal.Add(c.Total)
	}
	out.Totals = t
	return out
}

// RecalculateAll recomputes every unit and the totals. Used when a form is
// loaded or submitted rather than edited field by field.
func RecalculateAll(f Form) (Form, error) {
	out := f.Clone()
	for i := range out.Units {
		u, err := Recalculate(out.Units[i], FieldNone)
		if err != nil {
			var fe *generic.FieldError
			if errors.As(err, &fe) {
				return f, &generic.FieldError{Field: fmt.Sprintf("units[%d].%s", i, fe.Field), Value: fe.Value, Message: fe.Message}
			}
			return f, fmt.Errorf("units[%d]: %w", i, err)
		}
		out.Units[i] = u
	}
	return RecalculateTotals(out), nil
}

// =============================================================================
// BINDER - Field change → recalculation
// =============================================================================

// recalculateUnit is the unit step of the binder's recalculation chain.
var recalculateUnit = Recalculate

// Binder applies a field edit to a form and recalculates what depends on it.
type Binder struct {
	Logger zerolog.Logger
}

func NewBinder(logger zerolog.Logger) *Binder {
	return &Binder{Logger: logger.With().Str("component", "form_binder").Logger()}
}

// Apply sets the field and, if the field is watched, recalculates that unit
// and then the form totals. On error the original form is returned.
func (b *Binder) Apply(form Form, ref FieldRef, v Value) (out Form, err error) {
	defer func() {
		if r := recover(); r != nil {
			out, err = form, fmt.Errorf("recalculating %s: %v", ref, r)
		}
	}()

	next, err := form.Set(ref, v)
	if err != nil {
		return form, err
	}
	if !ref.Field.Watched() {
		return next, nil
	}

	unit, err := recalculateUnit(next.Units[ref.Unit], ref.Field)
	if err != nil {
		return form, fmt.Errorf("recalculating %s: %w", ref, err)
	}
	next.Units[ref.Unit] = unit
	return RecalculateTotals(next), nil
}

// Change is Apply with the error swallowed: failures are logged and the
// form comes back unchanged.
func (b *Binder) Change(form Form, ref FieldRef, v Value) Form {
	out, err := b.Apply(form, ref, v)
	if err != nil {
		b.Logger.Error().Err(err).Str("field", ref.String()).Msg("form recalculation failed, keeping previous values")
		return form
	}
	return out
}
