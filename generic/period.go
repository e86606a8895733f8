package generic

// =============================================================================
// PERIOD - A closed date interval [Start, End]
// =============================================================================

// Period is a closed interval of calendar dates. Contract terms, rent-free
// windows and fit-out windows are all periods. Either bound may be zero,
// in which case the period is "open" and calculators treat it as absent.
type Period struct {
	Start TimePoint `json:"start"`
	End   TimePoint `json:"end"`
}

// IsSet reports whether both bounds are present.
func (p Period) IsSet() bool {
	return !p.Start.IsZero() && !p.End.IsZero()
}

// Valid reports whether the period is set and End is not before Start.
func (p Period) Valid() bool {
	return p.IsSet() && p.Start.BeforeOrEqual(p.End)
}

// Contains returns true if the time point is within the period [Start, End]
func (p Period) Contains(t TimePoint) bool {
	return t.AfterOrEqual(p.Start) && t.BeforeOrEqual(p.End)
}

// Covers returns true if other lies entirely inside p.
func (p Period) Covers(other Period) bool {
	return p.Contains(other.Start) && p.Contains(other.End)
}

// String returns a string representation of the period.
func (p Period) String() string {
	return "[" + p.Start.String() + ", " + p.End.String() + "]"
}
