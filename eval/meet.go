package eval

import (
	"github.com/cozodb/cozo-sub000/program"
	"github.com/cozodb/cozo-sub000/relalg"
	"github.com/cozodb/cozo-sub000/value"
)

// meetAcc is the running per-group merged state of a meet-aggregating
// recursive rule name, carried across semi-naive iterations. Plain
// Insert-based set semantics cannot express "update this group's value in
// place", so the evaluator keeps this alongside the rule's materialized
// relation and rebuilds the relation from it after every merge.
type meetAcc struct {
	keyVals map[string][]value.Value
	merged  map[string][]value.Value
}

func newMeetAcc() *meetAcc {
	return &meetAcc{keyVals: map[string][]value.Value{}, merged: map[string][]value.Value{}}
}

// evalMeetRule groups raw (ungrouped, per-row) tuples by groupKeys, folds
// each group's rows for every aggregated column via relalg.MeetMerge
// (idempotent, so deduping raw rows first changes nothing), merges the
// per-call result into acc's running state, and returns a delta relation
// holding only the groups whose merged value strictly progressed.
func evalMeetRule(raw *relalg.Relation, groupKeys []program.Symbol, aggs []relalg.AggSpec, acc *meetAcc) (*relalg.Relation, error) {
	headCols := append(append([]program.Symbol{}, groupKeys...), aggOutSymbols(aggs)...)
	delta := relalg.New(headCols)

	type rowGroup struct {
		keyVals []value.Value
		vals    []value.Value
		has     []bool
	}
	groups := map[string]*rowGroup{}
	var order []string

	for _, t := range raw.Tuples {
		keyVals := make([]value.Value, len(groupKeys))
		for i, k := range groupKeys {
			keyVals[i] = t[raw.ColIndex(k)]
		}
		keyBytes, err := value.EncodeCompositeKey(keyVals)
		if err != nil {
			return nil, err
		}
		keyStr := string(keyBytes)
		g, ok := groups[keyStr]
		if !ok {
			g = &rowGroup{keyVals: keyVals, vals: make([]value.Value, len(aggs)), has: make([]bool, len(aggs))}
			groups[keyStr] = g
			order = append(order, keyStr)
		}
		for i, spec := range aggs {
			v := t[raw.ColIndex(spec.Src)]
			if !g.has[i] {
				g.vals[i] = v
				g.has[i] = true
				continue
			}
			merged, _, err := relalg.MeetMerge(spec.Op, g.vals[i], v)
			if err != nil {
				return nil, err
			}
			g.vals[i] = merged
		}
	}

	for _, keyStr := range order {
		g := groups[keyStr]
		old := acc.merged[keyStr]
		newVals := make([]value.Value, len(aggs))
		progressedAny := false
		for i, spec := range aggs {
			oldVal := relalg.MeetIdentity(spec.Op)
			if old != nil && i < len(old) {
				oldVal = old[i]
			}
			merged, progressed, err := relalg.MeetMerge(spec.Op, oldVal, g.vals[i])
			if err != nil {
				return nil, err
			}
			newVals[i] = merged
			if progressed {
				progressedAny = true
			}
		}
		acc.keyVals[keyStr] = g.keyVals
		acc.merged[keyStr] = newVals
		if progressedAny {
			tuple := append(append(relalg.Tuple{}, g.keyVals...), newVals...)
			if _, err := delta.Insert(tuple); err != nil {
				return nil, err
			}
		}
	}
	return delta, nil
}

// rebuildFromAcc reconstructs the full current relation for a meet-
// aggregated recursive rule name from its accumulator's latest per-group
// state.
func rebuildFromAcc(headCols []program.Symbol, acc *meetAcc) (*relalg.Relation, error) {
	rel := relalg.New(headCols)
	for keyStr, keyVals := range acc.keyVals {
		vals := acc.merged[keyStr]
		tuple := append(append(relalg.Tuple{}, keyVals...), vals...)
		if _, err := rel.Insert(tuple); err != nil {
			return nil, err
		}
	}
	return rel, nil
}
