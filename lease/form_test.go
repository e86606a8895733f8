package lease_test

import (
	"bytes"
	"testing"

	"github.com/leaseforge/lease-engine/generic"
	"github.com/leaseforge/lease-engine/lease"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// =============================================================================
// TEST SETUP
// =============================================================================

func officeUnit() lease.ContractUnit {
	return lease.ContractUnit{
		UnitID:           "OF-1203",
		FromDate:         date(2025, 1, 1),
		ToDate:           date(2025, 12, 31),
		RentPerMonth:     dec("10000"),
		RentFreeFrom:     date(2025, 1, 1),
		RentFreeTo:       date(2025, 1, 31),
		TaxPercentage:    dec("5"),
		NoOfInstallments: 4,
		Frequency:        lease.FrequencyQuarterly,
	}
}

func newBinder(buf *bytes.Buffer) *lease.Binder {
	return lease.NewBinder(zerolog.New(buf))
}

// =============================================================================
// UNIT RECALCULATION
// =============================================================================

func TestRecalculate_FullLine(t *testing.T) {
	u, err := lease.Recalculate(officeUnit(), lease.FieldRentPerMonth)
	require.NoError(t, err)

	assertDecimal(t, "120000", u.RentPerYear)
	assert.Equal(t, 365, u.TotalDays)
	assertDecimal(t, "10191.78", u.RentFreeAmount)
	assertDecimal(t, "109808.22", u.EffectiveRent)
	assertDecimal(t, "5490.41", u.TaxAmount)
	assertDecimal(t, "115298.63", u.TotalAmount)

	require.Len(t, u.Schedule, 4)
	assertDecimal(t, "28824.66", u.InstallmentAmount)
	assertDecimal(t, "28824.65", u.Schedule[3].Amount)
	assertDecimal(t, "115298.63", lease.SumSchedule(u.Schedule))
	assert.Equal(t, "2025-01-01", u.Schedule[0].DueDate.String())
	assert.Equal(t, "2025-10-01", u.Schedule[3].DueDate.String())
	assert.Empty(t, u.Warnings)
}

func TestRecalculate_TotalInvariant(t *testing.T) {
	u, err := lease.Recalculate(officeUnit(), lease.FieldNone)
	require.NoError(t, err)

	want := lease.EffectiveRent(u.RentPerYear, u.RentFreeAmount).Add(u.TaxAmount)
	assert.True(t, want.Equal(u.TotalAmount))
}

func TestRecalculate_RentAuthority(t *testing.T) {
	u := officeUnit()
	u.RentPerYear = dec("120000")

	u.RentPerYear = dec("60000")
	got, err := lease.Recalculate(u, lease.FieldRentPerYear)
	require.NoError(t, err)
	assertDecimal(t, "5000", got.RentPerMonth)

	got.RentPerMonth = dec("2000")
	got, err = lease.Recalculate(got, lease.FieldRentPerMonth)
	require.NoError(t, err)
	assertDecimal(t, "24000", got.RentPerYear)
}

func TestRecalculate_DerivesMissingSide(t *testing.T) {
	u := officeUnit()
	u.RentPerMonth = dec("0")
	u.RentPerYear = dec("100000")

	got, err := lease.Recalculate(u, lease.FieldTaxPercentage)
	require.NoError(t, err)
	assertDecimal(t, "8333.33", got.RentPerMonth)
	assertDecimal(t, "100000", got.RentPerYear)
}

func TestRecalculate_CommencementStartsSchedule(t *testing.T) {
	u := officeUnit()
	u.CommencementDate = date(2025, 2, 15)

	got, err := lease.Recalculate(u, lease.FieldCommencementDate)
	require.NoError(t, err)
	assert.Equal(t, "2025-02-15", got.Schedule[0].DueDate.String())
	assert.Equal(t, "2025-11-15", got.Schedule[3].DueDate.String())
}

func TestRecalculate_Warnings(t *testing.T) {
	u := officeUnit()
	u.RentFreeFrom = date(2024, 12, 1)
	u.FitoutFrom = date(2024, 11, 1)
	u.FitoutTo = date(2024, 12, 31)

	got, err := lease.Recalculate(u, lease.FieldNone)
	require.NoError(t, err)
	assert.Contains(t, got.Warnings, lease.WarnRentFreeOutsideContract)
	assert.Contains(t, got.Warnings, lease.WarnFitoutOutsideContract)
	assert.Equal(t, 61, got.FitoutDays)
	// The rent-free window is not clipped: 62 days at 120000/365.
	assertDecimal(t, "20383.56", got.RentFreeAmount)
}

func TestRecalculate_EmptyUnit(t *testing.T) {
	got, err := lease.Recalculate(lease.ContractUnit{}, lease.FieldNone)
	require.NoError(t, err)
	assert.True(t, got.TotalAmount.IsZero())
	assert.Empty(t, got.Schedule)
	assert.Equal(t, lease.FrequencyMonthly, got.Frequency)
}

func TestRecalculate_UnknownFrequency(t *testing.T) {
	u := officeUnit()
	u.Frequency = "weekly"
	_, err := lease.Recalculate(u, lease.FieldFrequency)
	assert.Error(t, err)
}

func TestRecalculate_TooManyInstallments(t *testing.T) {
	u := officeUnit()
	u.NoOfInstallments = 5000000
	_, err := lease.Recalculate(u, lease.FieldNoOfInstallments)
	var fieldErr *generic.FieldError
	require.ErrorAs(t, err, &fieldErr)
	assert.Equal(t, "no_of_installments", fieldErr.Field)

	_, err = lease.RecalculateAll(lease.Form{Units: []lease.ContractUnit{officeUnit(), u}})
	require.ErrorAs(t, err, &fieldErr)
	assert.Equal(t, "units[1].no_of_installments", fieldErr.Field)

	var buf bytes.Buffer
	form, err := lease.RecalculateAll(lease.Form{Units: []lease.ContractUnit{officeUnit()}})
	require.NoError(t, err)
	out := newBinder(&buf).Change(form, lease.FieldRef{Unit: 0, Field: lease.FieldNoOfInstallments}, lease.IntValue(5000000))
	assert.Equal(t, 4, out.Units[0].NoOfInstallments)
	assert.Len(t, out.Units[0].Schedule, 4)
	assert.Contains(t, buf.String(), "must not exceed")
}

// =============================================================================
// BINDER
// =============================================================================

func TestBinder_WatchedFieldRecalculatesLineAndTotals(t *testing.T) {
	var buf bytes.Buffer
	b := newBinder(&buf)

	form := lease.Form{
		Units: []lease.ContractUnit{officeUnit()},
		Charges: []lease.AdditionalCharge{
			{Description: "Service charge", Amount: dec("5000"), TaxPercentage: dec("5")},
		},
	}

	out := b.Change(form, lease.FieldRef{Unit: 0, Field: lease.FieldRentPerMonth}, lease.DecimalValue(dec("10000")))

	assertDecimal(t, "115298.63", out.Units[0].TotalAmount)
	assertDecimal(t, "250", out.Charges[0].TaxAmount)
	assertDecimal(t, "109808.22", out.Totals.RentTotal)
	assertDecimal(t, "5000", out.Totals.ChargesTotal)
	assertDecimal(t, "5740.41", out.Totals.TaxTotal)
	assertDecimal(t, "120548.63", out.Totals.GrandTotal)
	assert.Empty(t, buf.String())
}

func TestBinder_DoesNotMutateInput(t *testing.T) {
	b := newBinder(&bytes.Buffer{})
	form := lease.Form{Units: []lease.ContractUnit{officeUnit()}}

	out := b.Change(form, lease.FieldRef{Unit: 0, Field: lease.FieldNoOfInstallments}, lease.IntValue(12))

	assert.Equal(t, 4, form.Units[0].NoOfInstallments)
	assert.Empty(t, form.Units[0].Schedule)
	assert.Len(t, out.Units[0].Schedule, 12)
}

func TestBinder_OnlyTouchesEditedLine(t *testing.T) {
	b := newBinder(&bytes.Buffer{})
	other := officeUnit()
	other.UnitID = "OF-1204"
	form := lease.Form{Units: []lease.ContractUnit{officeUnit(), other}}

	out := b.Change(form, lease.FieldRef{Unit: 1, Field: lease.FieldTaxPercentage}, lease.DecimalValue(dec("0")))

	assert.Empty(t, out.Units[0].Schedule, "line 0 not recalculated")
	assert.True(t, out.Units[1].TaxAmount.IsZero())
	assertDecimal(t, "109808.22", out.Totals.GrandTotal)
}

func TestBinder_UnwatchedFieldSkipsRecalculation(t *testing.T) {
	b := newBinder(&bytes.Buffer{})
	form := lease.Form{Units: []lease.ContractUnit{officeUnit()}}

	out := b.Change(form, lease.FieldRef{Unit: 0, Field: lease.FieldUnitID}, lease.TextValue("OF-9999"))

	assert.Equal(t, "OF-9999", out.Units[0].UnitID)
	assert.True(t, out.Totals.GrandTotal.IsZero())
}

func TestBinder_FailureKeepsPreviousValues(t *testing.T) {
	var buf bytes.Buffer
	b := newBinder(&buf)
	form, err := lease.RecalculateAll(lease.Form{Units: []lease.ContractUnit{officeUnit()}})
	require.NoError(t, err)

	out := b.Change(form, lease.FieldRef{Unit: 0, Field: lease.FieldFrequency}, lease.TextValue("weekly"))

	assert.Equal(t, lease.FrequencyQuarterly, out.Units[0].Frequency)
	assert.True(t, form.Totals.GrandTotal.Equal(out.Totals.GrandTotal))
	assert.Contains(t, buf.String(), "form recalculation failed")
}

func TestBinder_PanicKeepsPreviousValues(t *testing.T) {
	restore := lease.SetRecalculateUnit(func(lease.ContractUnit, lease.FieldID) (lease.ContractUnit, error) {
		panic("decimal division by zero")
	})
	defer restore()

	var buf bytes.Buffer
	b := newBinder(&buf)
	form, err := lease.RecalculateAll(lease.Form{Units: []lease.ContractUnit{officeUnit()}})
	require.NoError(t, err)
	ref := lease.FieldRef{Unit: 0, Field: lease.FieldTaxPercentage}

	_, err = b.Apply(form, ref, lease.DecimalValue(dec("10")))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "decimal division by zero")

	out := b.Change(form, ref, lease.DecimalValue(dec("10")))
	assert.True(t, dec("5").Equal(out.Units[0].TaxPercentage), "edited value is dropped")
	assert.True(t, form.Totals.GrandTotal.Equal(out.Totals.GrandTotal))
	assert.Contains(t, buf.String(), "form recalculation failed")
	assert.Contains(t, buf.String(), "decimal division by zero")
}

func TestBinder_ApplyReportsTypeMismatch(t *testing.T) {
	b := newBinder(&bytes.Buffer{})
	form := lease.Form{Units: []lease.ContractUnit{officeUnit()}}

	_, err := b.Apply(form, lease.FieldRef{Unit: 0, Field: lease.FieldFromDate}, lease.DecimalValue(dec("1")))
	var fieldErr *generic.FieldError
	require.ErrorAs(t, err, &fieldErr)
	assert.Equal(t, "units[0].from_date", fieldErr.Field)

	_, err = b.Apply(form, lease.FieldRef{Unit: 3, Field: lease.FieldFromDate}, lease.DateValue(date(2025, 1, 1)))
	assert.ErrorAs(t, err, &fieldErr)
}

func TestParseFieldID(t *testing.T) {
	id, err := lease.ParseFieldID("rent_free_to")
	require.NoError(t, err)
	assert.Equal(t, lease.FieldRentFreeTo, id)
	assert.True(t, id.Watched())
	assert.False(t, lease.FieldUnitID.Watched())

	_, err = lease.ParseFieldID("units.0.rent")
	assert.Error(t, err)
}
