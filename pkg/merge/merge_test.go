package merge

import (
	"sort"
	"testing"
)

// union is a set of ints merged by union.
type union map[int]struct{}

func newUnion(items ...int) union {
	u := union{}
	for _, i := range items {
		u[i] = struct{}{}
	}
	return u
}

func (u union) Merge(o union) union {
	out := union{}
	for k := range u {
		out[k] = struct{}{}
	}
	for k := range o {
		out[k] = struct{}{}
	}
	return out
}

func (union) IdempotentMerge() {}

func sameUnion(a, b union) bool {
	if len(a) != len(b) {
		return false
	}
	for k := range a {
		if _, ok := b[k]; !ok {
			return false
		}
	}
	return true
}

// concat merges by string concatenation, which is associative but not
// commutative.
type concat string

func (c concat) Merge(o concat) concat { return c + o }

// bump is max+1: commutative, never idempotent.
type bump int

func (b bump) Merge(o bump) bump {
	if o > b {
		return o + 1
	}
	return b + 1
}

func sameConcat(a, b concat) bool { return a == b }
func sameBump(a, b bump) bool     { return a == b }

var _ IdempotentMergeable[union] = union{}

func TestFold(t *testing.T) {
	got := Fold(newUnion(1, 2), newUnion(3), newUnion(4, 5, 6))
	keys := make([]int, 0, len(got))
	for k := range got {
		keys = append(keys, k)
	}
	sort.Ints(keys)
	if len(keys) != 6 || keys[0] != 1 || keys[5] != 6 {
		t.Fatalf("Fold = %v, want 1..6", keys)
	}

	if Fold(concat("solo")) != "solo" {
		t.Fatal("Fold of a single value should return it")
	}
}

func TestUnionSatisfiesAllLaws(t *testing.T) {
	a, b, c := newUnion(1, 2), newUnion(3), newUnion(4, 5, 6)
	if !Commutative(a, b, sameUnion) {
		t.Error("union should be commutative")
	}
	if !Associative(a, b, c, sameUnion) {
		t.Error("union should be associative")
	}
	if !Idempotent(a, sameUnion) {
		t.Error("union should be idempotent")
	}
}

func TestConcatIsNotCommutative(t *testing.T) {
	if Commutative(concat("hello"), concat("world"), sameConcat) {
		t.Error("concatenation reported commutative")
	}
	if !Associative(concat("a"), concat("b"), concat("c"), sameConcat) {
		t.Error("concatenation should be associative")
	}
	if Idempotent(concat("hello"), sameConcat) {
		t.Error("concatenation reported idempotent")
	}
}

func TestBumpIsCommutativeButNotIdempotent(t *testing.T) {
	if !Commutative(bump(3), bump(7), sameBump) {
		t.Error("max+1 should be commutative")
	}
	if Idempotent(bump(3), sameBump) {
		t.Error("max+1 reported idempotent")
	}
	// (1∘0)∘5 = 6 but 1∘(0∘5) = 7.
	if Associative(bump(1), bump(0), bump(5), sameBump) {
		t.Error("max+1 reported associative")
	}
}
