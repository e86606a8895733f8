package lease

// SetRecalculateUnit replaces the binder's unit recalculation and returns a
// func that restores it.
func SetRecalculateUnit(fn func(ContractUnit, FieldID) (ContractUnit, error)) (restore func()) {
	prev := recalculateUnit
	recalculateUnit = fn
	return func() { recalculateUnit = prev }
}
