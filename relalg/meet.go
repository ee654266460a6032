package relalg

import (
	"github.com/cozodb/cozo-sub000/cozoerr"
	"github.com/cozodb/cozo-sub000/program"
	"github.com/cozodb/cozo-sub000/value"
)

// MeetIdentity returns the identity element of a meet-aggregation: merging
// any value with it yields that value unchanged. The evaluator seeds a
// group's running aggregate with this before any tuple has been merged in.
func MeetIdentity(op program.AggOp) value.Value {
	switch op {
	case program.AggAnd:
		return value.Bool(true)
	case program.AggOr:
		return value.Bool(false)
	case program.AggBitOr:
		return value.Int(0)
	case program.AggBitAnd:
		return value.Int(-1) // all bits set
	case program.AggUnion:
		return value.List()
	default: // min, max, choice, choice_last, coalesce, min_cost, shortest, intersection
		return value.Null() // "unset"; the first merge always wins unconditionally
	}
}

// MeetMerge combines old (the group's running aggregate) with next (one
// newly produced tuple's aggregated column) and reports whether the result
// strictly progressed past old — the signal the semi-naïve loop uses to
// decide whether to keep iterating a recursive stratum.
func MeetMerge(op program.AggOp, old, next value.Value) (value.Value, bool, error) {
	switch op {
	case program.AggMin:
		if old.IsNull() || value.Less(next, old) {
			return next, true, nil
		}
		return old, false, nil
	case program.AggMax:
		if old.IsNull() || value.Less(old, next) {
			return next, true, nil
		}
		return old, false, nil
	case program.AggAnd:
		merged := old.Bool && next.Bool
		return value.Bool(merged), merged != old.Bool, nil
	case program.AggOr:
		merged := old.Bool || next.Bool
		return value.Bool(merged), merged != old.Bool, nil
	case program.AggBitAnd:
		merged := old.Int & next.Int
		return value.Int(merged), merged != old.Int, nil
	case program.AggBitOr:
		merged := old.Int | next.Int
		return value.Int(merged), merged != old.Int, nil
	case program.AggUnion:
		return mergeSet(old, next, true)
	case program.AggIntersection:
		if old.IsNull() {
			return next, true, nil
		}
		return mergeSet(old, next, false)
	case program.AggChoice:
		if old.IsNull() && !next.IsNull() {
			return next, true, nil
		}
		return old, false, nil
	case program.AggChoiceLast:
		if value.Equal(old, next) {
			return old, false, nil
		}
		return next, true, nil
	case program.AggCoalesce:
		if old.IsNull() && !next.IsNull() {
			return next, true, nil
		}
		return old, false, nil
	case program.AggMinCost:
		return mergeMinCost(old, next)
	case program.AggShortest:
		return mergeShortest(old, next)
	default:
		return value.Value{}, false, cozoerr.ErrInternal.New("not a meet-aggregation: " + string(op))
	}
}

// mergeSet treats List-valued old/next as sets (deduplicated by value
// equality) and unions or intersects them, reporting growth as progress
// (union only grows, so any added element is progress; intersection only
// shrinks, so any removed element is progress too — encoded by the grow
// flag picking which direction counts as "strictly smaller/bigger").
func mergeSet(old, next value.Value, union bool) (value.Value, bool, error) {
	oldList := old.List
	nextList := next.List
	if union {
		merged := append([]value.Value{}, oldList...)
		changed := false
		for _, v := range nextList {
			if !containsValue(merged, v) {
				merged = append(merged, v)
				changed = true
			}
		}
		return value.List(merged...), changed, nil
	}
	var merged []value.Value
	for _, v := range oldList {
		if containsValue(nextList, v) {
			merged = append(merged, v)
		}
	}
	changed := len(merged) != len(oldList)
	return value.List(merged...), changed, nil
}

func containsValue(list []value.Value, v value.Value) bool {
	for _, e := range list {
		if value.Equal(e, v) {
			return true
		}
	}
	return false
}

// mergeMinCost expects both old and next to be 2-element Lists of
// [data, cost]; it keeps whichever has the lower cost.
func mergeMinCost(old, next value.Value) (value.Value, bool, error) {
	if old.IsNull() || len(old.List) != 2 {
		return next, true, nil
	}
	if len(next.List) != 2 {
		return old, false, nil
	}
	if value.Less(next.List[1], old.List[1]) {
		return next, true, nil
	}
	return old, false, nil
}

// mergeShortest keeps whichever of old/next is the shorter List.
func mergeShortest(old, next value.Value) (value.Value, bool, error) {
	if old.IsNull() {
		return next, true, nil
	}
	if len(next.List) < len(old.List) {
		return next, true, nil
	}
	return old, false, nil
}
