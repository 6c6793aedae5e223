// Package merge defines the contracts for values that can be combined with
// one another, and helpers for checking the algebraic laws they promise.
//
// Set union is the model: merging {1,2} with {3} gives the same result in
// either order, regardless of grouping, and merging a set with itself changes
// nothing. String concatenation is the counter-example; order matters.
//
// Two contracts exist because some useful merges are deliberately not
// idempotent. In causality tracking the merge is itself an event, so merging
// a value with itself must still move it forward.
package merge

// Mergeable is implemented by values with an associative and commutative
// combining operation. Implementations may return a new value or reuse the
// receiver's storage; only the result is constrained.
type Mergeable[T any] interface {
	Merge(other T) T
}

// IdempotentMergeable refines Mergeable with Merge(a, a) == a, making the
// merge a semilattice join. Implementations opt in with the IdempotentMerge
// marker method, which does nothing.
type IdempotentMergeable[T any] interface {
	Mergeable[T]
	IdempotentMerge()
}

// Fold merges values left to right, starting from first.
func Fold[T Mergeable[T]](first T, rest ...T) T {
	acc := first
	for _, v := range rest {
		acc = acc.Merge(v)
	}
	return acc
}

// Commutative reports whether a.Merge(b) equals b.Merge(a) under eq.
func Commutative[T Mergeable[T]](a, b T, eq func(x, y T) bool) bool {
	return eq(a.Merge(b), b.Merge(a))
}

// Associative reports whether (a∘b)∘c equals a∘(b∘c) under eq.
func Associative[T Mergeable[T]](a, b, c T, eq func(x, y T) bool) bool {
	return eq(a.Merge(b).Merge(c), a.Merge(b.Merge(c)))
}

// Idempotent reports whether a.Merge(a) equals a under eq.
func Idempotent[T Mergeable[T]](a T, eq func(x, y T) bool) bool {
	return eq(a.Merge(a), a)
}
