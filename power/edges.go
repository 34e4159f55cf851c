// Copyright (c) 2025 Daniel Kuo.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

package power

import (
	"cmp"
	"fmt"
)

// Normalize turns an oriented preference, where value flows from source to
// target with the given strength, into a canonical edge.
func Normalize[T cmp.Ordered](target, source T, preference float64) (Edge[T], error) {
	if preference < 0 || preference > 1 {
		return Edge[T]{}, fmt.Errorf("%w: value %v outside [0, 1]", ErrInvalidPreference, preference)
	}
	switch cmp.Compare(target, source) {
	case -1:
		return Edge[T]{Alpha: target, Beta: source, Preference: preference}, nil
	case 1:
		return Edge[T]{Alpha: source, Beta: target, Preference: 1 - preference}, nil
	default:
		return Edge[T]{}, fmt.Errorf("%w: item %v compared with itself", ErrInvalidPreference, target)
	}
}

// Orient returns the edge from target's point of view: the other item and
// the strength with which value flows towards target. ok is false if the
// edge does not involve target.
func Orient[T cmp.Ordered](target T, e Edge[T]) (source T, preference float64, ok bool) {
	switch target {
	case e.Alpha:
		return e.Beta, e.Preference, true
	case e.Beta:
		return e.Alpha, 1 - e.Preference, true
	default:
		var zero T
		return zero, 0, false
	}
}
