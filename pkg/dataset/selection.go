package dataset

// CombineSelections composes two boolean filter expressions conjunctively.
// The empty string is the identity on either side; otherwise the result is
// "(a)&&(b)", which evaluates equivalently regardless of operand order.
// Inputs are never mutated.
func CombineSelections(a, b string) string {
	if a == "" {
		return b
	}
	if b == "" {
		return a
	}
	return "(" + a + ")&&(" + b + ")"
}
