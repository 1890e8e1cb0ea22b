package table

import "strings"

// Compare orders two values. Nulls sort last, numbers compare numerically,
// dates chronologically and everything else by string form.
func Compare(a, b Value) int {
	if a.IsNull() && b.IsNull() {
		return 0
	}
	if a.IsNull() {
		return 1
	}
	if b.IsNull() {
		return -1
	}

	af, aok := a.AsFloat()
	bf, bok := b.AsFloat()
	if aok && bok {
		if af < bf {
			return -1
		}
		if af > bf {
			return 1
		}
		return 0
	}

	if a.Type == TypeDate && b.Type == TypeDate {
		return a.Time.Compare(b.Time)
	}

	return strings.Compare(a.AsString(), b.AsString())
}

// Equal reports whether two non-null values compare equal.
func Equal(a, b Value) bool {
	if a.IsNull() || b.IsNull() {
		return false
	}
	return Compare(a, b) == 0
}

// KeyOf builds a grouping key from the values at the given column indices.
func KeyOf(r Row, indices []int) string {
	parts := make([]string, len(indices))
	for i, idx := range indices {
		v := r.Values[idx]
		if v.IsNull() {
			parts[i] = "\x01"
			continue
		}
		parts[i] = v.AsString()
	}
	return strings.Join(parts, "\x00")
}
