package pool

import "golang.org/x/exp/constraints"

// AlignUp rounds v up to a multiple of align, which must be a power of two.
func AlignUp[T constraints.Integer](v, align T) T {
	return (v + align - 1) &^ (align - 1)
}

// DivRoundUp returns ceil(v / d).
func DivRoundUp[T constraints.Integer](v, d T) T {
	return (v + d - 1) / d
}

// IsPow2 reports whether v is a positive power of two.
func IsPow2[T constraints.Integer](v T) bool {
	return v > 0 && v&(v-1) == 0
}
