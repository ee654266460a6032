// Package relalg implements the relational algebra operators that rule
// bodies compile to, and the materialized Relation type that evaluation
// produces and consumes between operators and between strata.
package relalg

import (
	"sort"

	"github.com/mitchellh/hashstructure"

	"github.com/cozodb/cozo-sub000/program"
	"github.com/cozodb/cozo-sub000/value"
)

// Tuple is one row of bindings, in the column order of the relation it
// belongs to.
type Tuple []value.Value

func (t Tuple) hash() (uint64, error) {
	// hashstructure walks the slice field by field; Value is a plain struct
	// of comparable/slice fields so this gives a stable content hash without
	// routing every in-memory tuple through the memcomparable byte codec,
	// which exists for persisted keys, not for set-semantics dedup.
	return hashstructure.Hash(t, nil)
}

// Relation is a materialized, column-named set of tuples (set semantics:
// duplicate tuples are never stored twice). Evaluation produces one Relation
// per rule name per stratum iteration.
type Relation struct {
	Cols   []program.Symbol
	Tuples []Tuple
	seen   map[uint64]bool
}

// New creates an empty relation with the given column names.
func New(cols []program.Symbol) *Relation {
	return &Relation{Cols: cols, seen: map[uint64]bool{}}
}

// Arity is the relation's column count.
func (r *Relation) Arity() int { return len(r.Cols) }

// Len is the number of distinct tuples currently materialized.
func (r *Relation) Len() int { return len(r.Tuples) }

// Insert adds t to the relation if it is not already present, reporting
// whether it was newly added (the caller uses this to build delta
// relations incrementally).
func (r *Relation) Insert(t Tuple) (bool, error) {
	if r.seen == nil {
		r.seen = map[uint64]bool{}
	}
	h, err := t.hash()
	if err != nil {
		return false, err
	}
	if r.seen[h] {
		return false, nil
	}
	r.seen[h] = true
	r.Tuples = append(r.Tuples, t)
	return true, nil
}

// Contains reports whether an equal tuple is already materialized.
func (r *Relation) Contains(t Tuple) (bool, error) {
	h, err := t.hash()
	if err != nil {
		return false, err
	}
	return r.seen[h], nil
}

// Union adds every tuple of other into r, returning the tuples that were
// newly added (the new delta).
func (r *Relation) Union(other *Relation) (*Relation, error) {
	delta := New(r.Cols)
	for _, t := range other.Tuples {
		added, err := r.Insert(t)
		if err != nil {
			return nil, err
		}
		if added {
			if _, err := delta.Insert(t); err != nil {
				return nil, err
			}
		}
	}
	return delta, nil
}

// ColIndex returns the position of sym in Cols, or -1.
func (r *Relation) ColIndex(sym program.Symbol) int {
	for i, c := range r.Cols {
		if c == sym {
			return i
		}
	}
	return -1
}

// SortBy orders Tuples in place by the given column positions, ascending
// unless desc[i] is set; ties fall through to later keys and then to
// arrival order (a stable sort), matching :sort's documented tie behavior.
func (r *Relation) SortBy(cols []int, desc []bool) {
	sort.SliceStable(r.Tuples, func(i, j int) bool {
		a, b := r.Tuples[i], r.Tuples[j]
		for k, c := range cols {
			cmp := value.Compare(a[c], b[c])
			if cmp == 0 {
				continue
			}
			if k < len(desc) && desc[k] {
				return cmp > 0
			}
			return cmp < 0
		}
		return false
	})
}

// Take keeps at most n leading tuples.
func (r *Relation) Take(n int64) {
	if n >= 0 && int64(len(r.Tuples)) > n {
		r.Tuples = r.Tuples[:n]
	}
}

// Skip drops the first n tuples.
func (r *Relation) Skip(n int64) {
	if n <= 0 {
		return
	}
	if n >= int64(len(r.Tuples)) {
		r.Tuples = nil
		return
	}
	r.Tuples = r.Tuples[n:]
}
