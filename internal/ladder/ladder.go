// Package ladder implements step functions expressed as ordered tables of
// (upper bound, value) pairs.
//
// Bands are checked in ascending bound order and the first band whose bound
// is strictly greater than the key wins, so each band is inclusive at its
// lower edge and exclusive at its upper edge. Keys at or above the last bound
// fall through to the Above value.
package ladder

import (
	"fmt"
	"math"
)

// Band is one rung of a ladder: keys strictly below Below map to Value.
type Band[T any] struct {
	Below float64
	Value T
}

// Ladder is an ordered step function.
type Ladder[T any] struct {
	Bands []Band[T]
	Above T // value for keys at or above the last bound
}

// New builds a ladder and checks that bounds are strictly ascending.
func New[T any](above T, bands ...Band[T]) (Ladder[T], error) {
	l := Ladder[T]{Bands: bands, Above: above}
	if err := l.Validate(); err != nil {
		return Ladder[T]{}, err
	}
	return l, nil
}

// Must is like New but panics on an invalid table. Intended for package-level
// literal tables only.
func Must[T any](above T, bands ...Band[T]) Ladder[T] {
	l, err := New(above, bands...)
	if err != nil {
		panic(err)
	}
	return l
}

// Validate reports whether the bounds are finite and strictly ascending.
func (l Ladder[T]) Validate() error {
	prev := math.Inf(-1)
	for i, b := range l.Bands {
		if math.IsNaN(b.Below) {
			return fmt.Errorf("band %d: bound is NaN", i)
		}
		if b.Below <= prev {
			return fmt.Errorf("band %d: bound %g not above previous bound %g", i, b.Below, prev)
		}
		prev = b.Below
	}
	return nil
}

// Lookup returns the value of the first band whose bound exceeds key.
// A NaN key matches no band and yields Above.
func (l Ladder[T]) Lookup(key float64) T {
	for _, b := range l.Bands {
		if key < b.Below {
			return b.Value
		}
	}
	return l.Above
}
