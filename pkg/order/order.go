// Package order defines the result of comparing values that need not form a
// total order, and the capability for types that can be compared that way.
//
// Integer ranges are the usual example: which of [1,5) and [3,5) is greater?
// Some pairs simply have no answer, and Incomparable says so. Hybrid logical
// clocks never produce it, but other implementers of PartiallyComparable may.
package order

import (
	"errors"
	"fmt"
)

// PartialOrdering is the outcome of a partial comparison. The numeric values
// are a stable wire encoding and must not be reordered.
type PartialOrdering uint8

const (
	LessThan     PartialOrdering = 0
	GreaterThan  PartialOrdering = 1
	Equal        PartialOrdering = 2
	Incomparable PartialOrdering = 3
)

// ErrInvalidCode is returned when reconstructing a PartialOrdering from a
// code outside 0..3.
var ErrInvalidCode = errors.New("invalid partial ordering code")

var names = [...]string{
	LessThan:     "less_than",
	GreaterThan:  "greater_than",
	Equal:        "equal",
	Incomparable: "incomparable",
}

// FromCode looks up the PartialOrdering for a persisted or transmitted code.
func FromCode(code uint8) (PartialOrdering, error) {
	if int(code) >= len(names) {
		return 0, fmt.Errorf("%w: %d (expected 0 to 3)", ErrInvalidCode, code)
	}
	return PartialOrdering(code), nil
}

// FromCmp converts a three-way result in the style of cmp.Compare.
func FromCmp(c int) PartialOrdering {
	switch {
	case c < 0:
		return LessThan
	case c > 0:
		return GreaterThan
	default:
		return Equal
	}
}

// Code returns the stable numeric encoding.
func (o PartialOrdering) Code() uint8 { return uint8(o) }

// Valid reports whether o is one of the four defined variants.
func (o PartialOrdering) Valid() bool { return int(o) < len(names) }

// Reverse returns the ordering seen from the other operand.
func (o PartialOrdering) Reverse() PartialOrdering {
	switch o {
	case LessThan:
		return GreaterThan
	case GreaterThan:
		return LessThan
	default:
		return o
	}
}

func (o PartialOrdering) String() string {
	if !o.Valid() {
		return fmt.Sprintf("PartialOrdering(%d)", uint8(o))
	}
	return names[o]
}

// MarshalText renders the variant name, so JSON and YAML carry
// "less_than" rather than a bare number.
func (o PartialOrdering) MarshalText() ([]byte, error) {
	if !o.Valid() {
		return nil, fmt.Errorf("%w: %d", ErrInvalidCode, uint8(o))
	}
	return []byte(names[o]), nil
}

// UnmarshalText accepts the variant names produced by MarshalText.
func (o *PartialOrdering) UnmarshalText(text []byte) error {
	for code, name := range names {
		if name == string(text) {
			*o = PartialOrdering(code)
			return nil
		}
	}
	return fmt.Errorf("%w: unknown name %q", ErrInvalidCode, text)
}

// PartiallyComparable is implemented by values that can be compared with
// another value of the same type.
//
// Implementations must be reflexive (x.Compare(x) == Equal) and
// anti-symmetric (x.Compare(y) == LessThan exactly when y.Compare(x) ==
// GreaterThan), and return Incomparable only when no definite order exists.
type PartiallyComparable[T any] interface {
	Compare(other T) PartialOrdering
}

// Min returns the lesser of a and b, preferring a when they are equal. The
// boolean is false when the two are incomparable.
func Min[T PartiallyComparable[T]](a, b T) (T, bool) {
	switch a.Compare(b) {
	case Equal, LessThan:
		return a, true
	case GreaterThan:
		return b, true
	default:
		var zero T
		return zero, false
	}
}

// Max returns the greater of a and b, preferring a when they are equal. The
// boolean is false when the two are incomparable.
func Max[T PartiallyComparable[T]](a, b T) (T, bool) {
	switch a.Compare(b) {
	case Equal, GreaterThan:
		return a, true
	case LessThan:
		return b, true
	default:
		var zero T
		return zero, false
	}
}
