package billing

import (
	"sort"

	"github.com/leaseforge/lease-engine/generic"
	"github.com/shopspring/decimal"
)

// InstallmentCancelled marks an installment whose charge was reversed when
// the contract was terminated.
const InstallmentCancelled InstallmentStatus = "cancelled"

// Allocate spreads received over the installments, oldest due date first,
// and derives each row's status as of asOf:
//
//	paid      fully covered by receipts
//	overdue   due before asOf and not fully covered
//	pending   otherwise
//
// Cancelled rows are left untouched and receive nothing. The input slice is
// not modified; the result is in due order.
func Allocate(rows []Installment, received decimal.Decimal, asOf generic.TimePoint) []Installment {
	out := append([]Installment(nil), rows...)
	sort.SliceStable(out, func(i, j int) bool {
		a, b := out[i], out[j]
		if !a.DueDate.Equal(b.DueDate) {
			return a.DueDate.Before(b.DueDate)
		}
		if a.Line != b.Line {
			return a.Line < b.Line
		}
		return a.Number < b.Number
	})

	remaining := generic.Positive(received)
	for i := range out {
		row := &out[i]
		if row.Status == InstallmentCancelled {
			row.Paid = decimal.Zero
			continue
		}
		row.Paid = decimal.Min(remaining, row.Amount)
		remaining = remaining.Sub(row.Paid)

		switch {
		case row.Paid.Equal(row.Amount):
			row.Status = InstallmentPaid
		case row.DueDate.Before(asOf):
			row.Status = InstallmentOverdue
		default:
			row.Status = InstallmentPending
		}
	}
	return out
}

// installmentReceipts is what received leaves for the installments once the
// additional charges still standing on the account are settled. Additional
// charges fall due at the contract start, ahead of every installment.
func installmentReceipts(entries []generic.Entry) decimal.Decimal {
	reversed := make(map[string]bool)
	for _, e := range entries {
		if e.Type == generic.EntryReversal {
			reversed[e.ReferenceID] = true
		}
	}
	extra := decimal.Zero
	for _, e := range entries {
		if _, ok := e.Metadata[metaCharge]; ok && e.Type == generic.EntryCharge && !reversed[string(e.ID)] {
			extra = extra.Add(e.Delta.Value)
		}
	}
	return generic.Positive(generic.Summarize(entries).Received.Sub(extra))
}

// cancelAfter marks rows falling due after cutoff as cancelled.
func cancelAfter(rows []Installment, cutoff generic.TimePoint) []Installment {
	out := append([]Installment(nil), rows...)
	for i := range out {
		if out[i].DueDate.After(cutoff) {
			out[i].Status = InstallmentCancelled
		}
	}
	return out
}

func changedRows(before, after []Installment) []Installment {
	prev := make(map[string]Installment, len(before))
	for _, r := range before {
		prev[r.ID] = r
	}
	var changed []Installment
	for _, r := range after {
		p, ok := prev[r.ID]
		if !ok || p.Status != r.Status || !p.Paid.Equal(r.Paid) {
			changed = append(changed, r)
		}
	}
	return changed
}

func countStatus(rows []Installment, status InstallmentStatus) int {
	n := 0
	for _, r := range rows {
		if r.Status == status {
			n++
		}
	}
	return n
}
