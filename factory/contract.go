/*
Package factory provides JSON to Go contract conversion.

PURPOSE:
  Converts the JSON contract form sent by the admin UI (or read from a file
  by the CLI) into a lease.Form and the submission metadata billing needs.
  Dates arrive as "YYYY-MM-DD" strings, money as strings or numbers; empty
  strings mean "not set" and become zero values the calculators treat as
  missing input.

JSON SCHEMA:
  {
    "number": "LC-2025-0042",
    "customer_id": "8d7c...",
    "status": "active",
    "currency": "AED",
    "units": [
      {
        "unit_id": "OF-1203",
        "from_date": "2025-01-01",
        "to_date": "2025-12-31",
        "rent_per_month": "10000",
        "rent_free_from": "2025-01-01",
        "rent_free_to": "2025-01-31",
        "tax_percentage": 5,
        "no_of_installments": 4,
        "frequency": "quarterly"
      }
    ],
    "charges": [
      {"description": "Service charge", "amount": "5000", "tax_percentage": "5"}
    ]
  }

RENT AUTHORITY:
  When both rent fields are given, "rent_source" ("month" or "year") names
  the one the user typed. Without it the monthly figure wins.

KEY FEATURES:
  - Validates JSON structure and every date/number field
  - Errors are *generic.FieldError naming the offending field
  - Returns a fully recalculated form

USAGE:
  f := NewContractFactory()

  in, err := f.ParseContract(body)
  contract, err := billingService.Submit(ctx, *in)

  // Stateless calculation
  form, err := f.ParseForm(body)

SEE ALSO:
  - lease/form.go: Form and recalculation
  - billing/service.go: Submit
*/
package factory

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/leaseforge/lease-engine/billing"
	"github.com/leaseforge/lease-engine/generic"
	"github.com/leaseforge/lease-engine/lease"
	"github.com/shopspring/decimal"
)

// =============================================================================
// JSON SCHEMA TYPES
// =============================================================================

// ContractJSON is the JSON representation of a contract form.
type ContractJSON struct {
	Number     string       `json:"number,omitempty"`
	CustomerID string       `json:"customer_id,omitempty"`
	Status     string       `json:"status,omitempty"` // draft, active
	Currency   string       `json:"currency,omitempty"`
	Units      []UnitJSON   `json:"units"`
	Charges    []ChargeJSON `json:"charges,omitempty"`
}

// UnitJSON represents one contract line.
type UnitJSON struct {
	UnitID           string `json:"unit_id"`
	FromDate         string `json:"from_date"`
	ToDate           string `json:"to_date"`
	RentPerMonth     Number `json:"rent_per_month,omitempty"`
	RentPerYear      Number `json:"rent_per_year,omitempty"`
	RentSource       string `json:"rent_source,omitempty"` // month, year
	RentFreeFrom     string `json:"rent_free_from,omitempty"`
	RentFreeTo       string `json:"rent_free_to,omitempty"`
	TaxPercentage    Number `json:"tax_percentage,omitempty"`
	NoOfInstallments int    `json:"no_of_installments"`
	Frequency        string `json:"frequency,omitempty"`
	FitoutFrom       string `json:"fitout_from,omitempty"`
	FitoutTo         string `json:"fitout_to,omitempty"`
	CommencementDate string `json:"commencement_date,omitempty"`
}

// ChargeJSON represents an additional charge line.
type ChargeJSON struct {
	Description   string `json:"description"`
	Amount        Number `json:"amount"`
	TaxPercentage Number `json:"tax_percentage,omitempty"`
}

// Number accepts a JSON number, a numeric string, an empty string or null.
type Number string

func (n *Number) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if bytes.Equal(data, []byte("null")) {
		*n = ""
		return nil
	}
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*n = Number(strings.TrimSpace(s))
		return nil
	}
	*n = Number(data)
	return nil
}

// =============================================================================
// CONTRACT FACTORY
// =============================================================================

// ContractFactory converts JSON contract forms to Go structs.
type ContractFactory struct{}

// NewContractFactory creates a new contract factory.
func NewContractFactory() *ContractFactory {
	return &ContractFactory{}
}

// ParseContract parses a JSON contract into a recalculated submission.
func (f *ContractFactory) ParseContract(data []byte) (*billing.SubmitInput, error) {
	var cj ContractJSON
	if err := json.Unmarshal(data, &cj); err != nil {
		return nil, &generic.FieldError{Field: "body", Message: "malformed contract JSON: " + err.Error()}
	}
	return f.FromJSON(cj)
}

// ParseForm parses only the units and charges of a JSON contract.
func (f *ContractFactory) ParseForm(data []byte) (lease.Form, error) {
	in, err := f.ParseContract(data)
	if err != nil {
		return lease.Form{}, err
	}
	return in.Form, nil
}

// FromJSON converts ContractJSON to a submission with a recalculated form.
func (f *ContractFactory) FromJSON(cj ContractJSON) (*billing.SubmitInput, error) {
	status := billing.StatusActive
	if cj.Status != "" {
		s, err := billing.ParseContractStatus(cj.Status)
		if err != nil {
			return nil, err
		}
		status = s
	}

	var form lease.Form
	for i, uj := range cj.Units {
		u, err := parseUnit(uj)
		if err != nil {
			return nil, prefixField(fmt.Sprintf("units[%d]", i), err)
		}
		form.Units = append(form.Units, u)
	}
	for i, chj := range cj.Charges {
		c, err := parseCharge(chj)
		if err != nil {
			return nil, prefixField(fmt.Sprintf("charges[%d]", i), err)
		}
		form.Charges = append(form.Charges, c)
	}

	// Apply rent authority per unit, then the totals.
	for i, uj := range cj.Units {
		u, err := lease.Recalculate(form.Units[i], rentSource(uj))
		if err != nil {
			return nil, prefixField(fmt.Sprintf("units[%d]", i), err)
		}
		form.Units[i] = u
	}
	form = lease.RecalculateTotals(form)

	currency := generic.Currency(strings.ToUpper(strings.TrimSpace(cj.Currency)))
	if currency == "" {
		currency = generic.DefaultCurrency
	}

	return &billing.SubmitInput{
		Number:     cj.Number,
		CustomerID: cj.CustomerID,
		Status:     status,
		Currency:   currency,
		Form:       form,
	}, nil
}

// ToJSON converts a form back to its wire representation. Derived values
// are dropped: the receiver recalculates them.
func (f *ContractFactory) ToJSON(c billing.Contract) ContractJSON {
	cj := ContractJSON{
		Number:     c.Number,
		CustomerID: c.CustomerID,
		Status:     string(c.Status),
		Currency:   string(c.Currency),
	}
	for _, u := range c.Form.Units {
		cj.Units = append(cj.Units, UnitJSON{
			UnitID:           u.UnitID,
			FromDate:         u.FromDate.String(),
			ToDate:           u.ToDate.String(),
			RentPerMonth:     decimalNumber(u.RentPerMonth),
			RentPerYear:      decimalNumber(u.RentPerYear),
			RentSource:       "year",
			RentFreeFrom:     u.RentFreeFrom.String(),
			RentFreeTo:       u.RentFreeTo.String(),
			TaxPercentage:    decimalNumber(u.TaxPercentage),
			NoOfInstallments: u.NoOfInstallments,
			Frequency:        string(u.Frequency),
			FitoutFrom:       u.FitoutFrom.String(),
			FitoutTo:         u.FitoutTo.String(),
			CommencementDate: u.CommencementDate.String(),
		})
	}
	for _, ch := range c.Form.Charges {
		cj.Charges = append(cj.Charges, ChargeJSON{
			Description:   ch.Description,
			Amount:        decimalNumber(ch.Amount),
			TaxPercentage: decimalNumber(ch.TaxPercentage),
		})
	}
	return cj
}

// ParseAmount parses a money amount sent as a JSON number or string.
func (f *ContractFactory) ParseAmount(n Number) (decimal.Decimal, error) {
	return parseNumber("amount", n)
}

// =============================================================================
// FIELD EDITS
// =============================================================================

// ParseEdit converts a single field edit from the form ("units[0].to_date"
// and its raw value) into the typed reference and value the binder takes.
func (f *ContractFactory) ParseEdit(field string, raw Number) (lease.FieldRef, lease.Value, error) {
	ref, err := parseFieldRef(field)
	if err != nil {
		return ref, lease.Value{}, err
	}

	switch ref.Field {
	case lease.FieldFromDate, lease.FieldToDate, lease.FieldRentFreeFrom, lease.FieldRentFreeTo,
		lease.FieldFitoutFrom, lease.FieldFitoutTo, lease.FieldCommencementDate:
		tp, err := generic.ParseDate(string(raw))
		if err != nil {
			return ref, lease.Value{}, &generic.FieldError{Field: field, Value: string(raw), Message: "expected a YYYY-MM-DD date"}
		}
		return ref, lease.DateValue(tp), nil
	case lease.FieldRentPerMonth, lease.FieldRentPerYear, lease.FieldTaxPercentage:
		d, err := parseNumber(field, raw)
		if err != nil {
			return ref, lease.Value{}, err
		}
		return ref, lease.DecimalValue(d), nil
	case lease.FieldNoOfInstallments:
		if raw == "" {
			return ref, lease.IntValue(0), nil
		}
		n, err := strconv.Atoi(string(raw))
		if err != nil {
			return ref, lease.Value{}, &generic.FieldError{Field: field, Value: string(raw), Message: "expected a whole number"}
		}
		if n > lease.MaxInstallments {
			return ref, lease.Value{}, &generic.FieldError{Field: field, Value: string(raw), Message: fmt.Sprintf("must not exceed %d", lease.MaxInstallments)}
		}
		return ref, lease.IntValue(n), nil
	default:
		return ref, lease.TextValue(string(raw)), nil
	}
}

// parseFieldRef parses "units[<index>].<field>".
func parseFieldRef(s string) (lease.FieldRef, error) {
	bad := &generic.FieldError{Field: "field", Value: s, Message: `expected "units[<n>].<field>"`}

	rest, ok := strings.CutPrefix(s, "units[")
	if !ok {
		return lease.FieldRef{}, bad
	}
	idx, name, ok := strings.Cut(rest, "].")
	if !ok {
		return lease.FieldRef{}, bad
	}
	unit, err := strconv.Atoi(idx)
	if err != nil || unit < 0 {
		return lease.FieldRef{}, bad
	}
	id, err := lease.ParseFieldID(name)
	if err != nil {
		return lease.FieldRef{}, err
	}
	return lease.FieldRef{Unit: unit, Field: id}, nil
}

// =============================================================================
// PARSING HELPERS
// =============================================================================

func parseUnit(uj UnitJSON) (lease.ContractUnit, error) {
	u := lease.ContractUnit{
		UnitID:           strings.TrimSpace(uj.UnitID),
		NoOfInstallments: uj.NoOfInstallments,
	}
	if uj.NoOfInstallments < 0 {
		return u, &generic.FieldError{Field: "no_of_installments", Value: fmt.Sprint(uj.NoOfInstallments), Message: "must not be negative"}
	}
	if uj.NoOfInstallments > lease.MaxInstallments {
		return u, lease.TooManyInstallments(uj.NoOfInstallments)
	}

	freq, err := lease.ParseFrequency(uj.Frequency)
	if err != nil {
		return u, err
	}
	u.Frequency = freq

	dates := []struct {
		name string
		raw  string
		dst  *generic.TimePoint
	}{
		{"from_date", uj.FromDate, &u.FromDate},
		{"to_date", uj.ToDate, &u.ToDate},
		{"rent_free_from", uj.RentFreeFrom, &u.RentFreeFrom},
		{"rent_free_to", uj.RentFreeTo, &u.RentFreeTo},
		{"fitout_from", uj.FitoutFrom, &u.FitoutFrom},
		{"fitout_to", uj.FitoutTo, &u.FitoutTo},
		{"commencement_date", uj.CommencementDate, &u.CommencementDate},
	}
	for _, d := range dates {
		tp, err := generic.ParseDate(d.raw)
		if err != nil {
			return u, &generic.FieldError{Field: d.name, Value: d.raw, Message: "expected a YYYY-MM-DD date"}
		}
		*d.dst = tp
	}

	numbers := []struct {
		name string
		raw  Number
		dst  *decimal.Decimal
	}{
		{"rent_per_month", uj.RentPerMonth, &u.RentPerMonth},
		{"rent_per_year", uj.RentPerYear, &u.RentPerYear},
		{"tax_percentage", uj.TaxPercentage, &u.TaxPercentage},
	}
	for _, n := range numbers {
		d, err := parseNumber(n.name, n.raw)
		if err != nil {
			return u, err
		}
		*n.dst = d
	}
	return u, nil
}

func parseCharge(cj ChargeJSON) (lease.AdditionalCharge, error) {
	c := lease.AdditionalCharge{Description: strings.TrimSpace(cj.Description)}
	amount, err := parseNumber("amount", cj.Amount)
	if err != nil {
		return c, err
	}
	if amount.IsNegative() {
		return c, &generic.FieldError{Field: "amount", Value: string(cj.Amount), Message: "must not be negative"}
	}
	tax, err := parseNumber("tax_percentage", cj.TaxPercentage)
	if err != nil {
		return c, err
	}
	c.Amount, c.TaxPercentage = amount, tax
	return c, nil
}

func parseNumber(field string, n Number) (decimal.Decimal, error) {
	s := strings.ReplaceAll(strings.TrimSpace(string(n)), ",", "")
	if s == "" {
		return decimal.Zero, nil
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, &generic.FieldError{Field: field, Value: string(n), Message: "expected a number"}
	}
	return d, nil
}

func rentSource(uj UnitJSON) lease.FieldID {
	switch strings.ToLower(uj.RentSource) {
	case "year", "yearly", "rent_per_year":
		return lease.FieldRentPerYear
	case "month", "monthly", "rent_per_month":
		return lease.FieldRentPerMonth
	}
	if uj.RentPerMonth != "" && uj.RentPerMonth != "0" {
		return lease.FieldRentPerMonth
	}
	return lease.FieldNone
}

func decimalNumber(d decimal.Decimal) Number {
	if d.IsZero() {
		return ""
	}
	return Number(d.String())
}

// prefixField qualifies a FieldError with its position on the form.
func prefixField(prefix string, err error) error {
	if fe, ok := err.(*generic.FieldError); ok {
		return &generic.FieldError{Field: prefix + "." + fe.Field, Value: fe.Value, Message: fe.Message}
	}
	return fmt.Errorf("%s: %w", prefix, err)
}
