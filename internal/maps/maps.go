package maps

import "golang.org/x/exp/slices"

func FromKeys[L ~[]K, K comparable](l L) map[K]struct{} {
	res := make(map[K]struct{}, len(l))
	for _, key := range l {
		res[key] = struct{}{}
	}
	return res
}

func Keys[M ~map[K]V, K comparable, V any](m M) []K {
	keys := make([]K, 0, len(m))
	for key := range m {
		keys = append(keys, key)
	}
	return keys
}

// KeysByValue returns the keys of m ordered by their values.
func KeysByValue[M ~map[K]V, K comparable, V ~int | ~uint32](m M) []K {
	keys := Keys(m)
	slices.SortFunc(keys, func(a, b K) bool { return m[a] < m[b] })
	return keys
}

// SortedKeys returns the keys of m ordered by their string form.
func SortedKeys[M ~map[K]V, K interface {
	comparable
	String() string
}, V any](m M) []K {
	keys := Keys(m)
	slices.SortFunc(keys, func(a, b K) bool { return a.String() < b.String() })
	return keys
}
