package common

// IsEmpty reports whether the slice has no elements.
func IsEmpty[S ~[]E, E any](s S) bool {
	return len(s) == 0
}

// IsMultiple reports whether the slice has more than one element, e.g. a
// composite unique key.
func IsMultiple[S ~[]E, E any](s S) bool {
	return len(s) > 1
}

// First returns the first element of the slice and true, or the zero value
// and false if empty.
func First[S ~[]E, E any](s S) (E, bool) {
	if len(s) == 0 {
		var zero E
		return zero, false
	}

	return s[0], true
}

// Unique returns the elements of s without repeats, keeping the first
// occurrence of each.
func Unique[S ~[]E, E comparable](s S) S {
	seen := make(map[E]bool, len(s))
	out := make(S, 0, len(s))

	for _, v := range s {
		if seen[v] {
			continue
		}

		seen[v] = true
		out = append(out, v)
	}

	return out
}
