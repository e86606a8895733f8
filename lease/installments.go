package lease

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/leaseforge/lease-engine/generic"
	"github.com/shopspring/decimal"
)

// =============================================================================
// FREQUENCY - Installment cadence
// =============================================================================

type Frequency string

const (
	FrequencyMonthly   Frequency = "monthly"   // every month
	FrequencyQuarterly Frequency = "quarterly" // every 3 months
	FrequencyBiAnnual  Frequency = "bi_annual" // every 6 months
	FrequencyAnnual    Frequency = "annual"    // every 12 months
)

// Months is the month increment between two due dates, 0 if unknown.
func (f Frequency) Months() int {
	switch f {
	case FrequencyMonthly:
		return 1
	case FrequencyQuarterly:
		return 3
	case FrequencyBiAnnual:
		return 6
	case FrequencyAnnual:
		return 12
	default:
		return 0
	}
}

// ParseFrequency accepts the canonical names plus the spellings the admin UI
// historically sent ("bi-annual", "half-yearly", "yearly"). Empty means monthly.
func ParseFrequency(s string) (Frequency, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "monthly":
		return FrequencyMonthly, nil
	case "quarterly":
		return FrequencyQuarterly, nil
	case "bi_annual", "bi-annual", "biannual", "half-yearly", "half_yearly", "semi_annual":
		return FrequencyBiAnnual, nil
	case "annual", "yearly":
		return FrequencyAnnual, nil
	default:
		return "", &generic.FieldError{Field: "frequency", Value: s, Message: "unknown installment frequency"}
	}
}

// =============================================================================
// SCHEDULE
// =============================================================================

// MaxInstallments caps the installments of one unit: monthly for a hundred
// years.
const MaxInstallments = 1200

// ScheduleEntry is one installment. DueDate is zero when the schedule was
// built without a start date.
type ScheduleEntry struct {
	Number  int               `json:"installment_number"`
	Amount  decimal.Decimal   `json:"amount"`
	DueDate generic.TimePoint `json:"due_date"`
}

// Installments splits total into count installments. Every installment but
// the last is round(total/count, 2); the last takes whatever remains so the
// amounts always sum to total. A count above MaxInstallments yields no
// installments.
func Installments(total decimal.Decimal, count int) []ScheduleEntry {
	if !total.IsPositive() || count <= 0 || count > MaxInstallments {
		return []ScheduleEntry{}
	}

	base := generic.RoundMoney(total.Div(decimal.NewFromInt(int64(count))))
	entries := make([]ScheduleEntry, count)
	allocated := decimal.Zero
	for i := 0; i < count-1; i++ {
		entries[i] = ScheduleEntry{Number: i + 1, Amount: base}
		allocated = allocated.Add(base)
	}
	entries[count-1] = ScheduleEntry{Number: count, Amount: total.Sub(allocated)}
	return entries
}

// InstallmentDates returns count due dates starting at start, each advanced
// by the frequency's month step. Year rollover is done with modulo-12
// arithmetic on the month index; a day that does not exist in the target
// month rolls into the following month (Jan 31 + 1 month = Mar 3 in 2025).
func InstallmentDates(start generic.TimePoint, count int, freq Frequency) []generic.TimePoint {
	step := freq.Months()
	if start.IsZero() || count <= 0 || count > MaxInstallments || step == 0 {
		return []generic.TimePoint{}
	}

	dates := make([]generic.TimePoint, count)
	base := int(start.Month()) - 1
	for i := 0; i < count; i++ {
		idx := base + i*step
		year := start.Year() + idx/12
		month := time.Month(idx%12 + 1)
		dates[i] = generic.NewTimePoint(year, month, start.Day())
	}
	return dates
}

// Schedule combines Installments and InstallmentDates. Due dates are only
// attached when start is set and the frequency is known.
func Schedule(total decimal.Decimal, count int, start generic.TimePoint, freq Frequency) []ScheduleEntry {
	entries := Installments(total, count)
	dates := InstallmentDates(start, len(entries), freq)
	if len(dates) == len(entries) {
		for i := range entries {
			entries[i].DueDate = dates[i]
		}
	}
	return entries
}

// TooManyInstallments is the error for an installment count above
// MaxInstallments.
func TooManyInstallments(n int) error {
	return &generic.FieldError{
		Field:   "no_of_installments",
		Value:   strconv.Itoa(n),
		Message: fmt.Sprintf("must not exceed %d", MaxInstallments),
	}
}

// SumSchedule adds up the amounts of a schedule.
func SumSchedule(entries []ScheduleEntry) decimal.Decimal {
	sum := decimal.Zero
	for _, e := range entries {
		sum = sum.Add(e.Amount)
	}
	return sum
}

func (e ScheduleEntry) String() string {
	if e.DueDate.IsZero() {
		return fmt.Sprintf("#%d %s", e.Number, e.Amount.StringFixed(generic.MoneyPlaces))
	}
	return fmt.Sprintf("#%d %s due %s", e.Number, e.Amount.StringFixed(generic.MoneyPlaces), e.DueDate)
}
