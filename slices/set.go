// Package slices implements set operations on small slices.
package slices

func Contains[L ~[]E, E comparable](l L, x E) bool {
	for _, y := range l {
		if x == y {
			return true
		}
	}

	return false
}

func Subset[L ~[]E, E comparable](a, b L) bool {
	if len(a) > len(b) {
		return false
	}

	for _, x := range a {
		if !Contains(b, x) {
			return false
		}
	}

	return true
}

// Distinct returns the elements of l without duplicates, keeping the first
// occurrence of each.
func Distinct[L ~[]E, E comparable](l L) L {
	seen := make(map[E]bool, len(l))
	var r L
	for _, x := range l {
		if !seen[x] {
			seen[x] = true
			r = append(r, x)
		}
	}
	return r
}
