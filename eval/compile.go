// Package eval drives stratified semi-naive evaluation of an already
// magic-rewritten program: per stratum, it compiles each rule's body to a
// relalg operator tree and iterates recursive strata to a fixpoint.
package eval

import (
	"github.com/cozodb/cozo-sub000/catalog"
	"github.com/cozodb/cozo-sub000/cozoerr"
	"github.com/cozodb/cozo-sub000/program"
	"github.com/cozodb/cozo-sub000/relalg"
	"github.com/cozodb/cozo-sub000/storage"
)

// compileCtx carries the bindings a single compile of one rule definition
// needs: the storage transaction and catalog for stored-relation atoms, the
// current stratum's membership set, and which relation (running R, or the
// previous iteration's delta) each same-stratum rule reference should read
// from.
type compileCtx struct {
	tx      storage.Tx
	cat     *catalog.Catalog
	rel     map[string]*relalg.Relation
	delta   map[string]*relalg.Relation
	members map[string]bool

	// activePos is the body-atom index chosen to read from delta, per the
	// semi-naive "exactly one recursive position at a time" substitution.
	// -1 means no same-stratum atom is substituted with delta: every
	// same-stratum reference reads the running R, the shape used for the
	// first, non-recursive seed pass and for rule definitions that
	// reference no same-stratum name at all.
	activePos int
}

// relationFor resolves the relation a RuleApplication/FixedRuleApplication
// atom at body index atomIdx should scan.
func (cc *compileCtx) relationFor(name string, atomIdx int) *relalg.Relation {
	if cc.members[name] && atomIdx == cc.activePos {
		if d, ok := cc.delta[name]; ok {
			return d
		}
		return relalg.New(nil)
	}
	if r, ok := cc.rel[name]; ok {
		return r
	}
	return relalg.New(nil)
}

// recursivePositions returns the body-atom indices of top-level
// RuleApplication/FixedRuleApplication atoms referencing a name in members.
// Negation into a same-stratum name is already rejected by stratify.Stratify
// before evaluation ever reaches here, so there is no need to look inside
// AtomNegated; a same-stratum reference nested inside an AtomDisjunction
// branch is not tracked as its own position (see the "eval" section of
// DESIGN.md for why this is still correct, just sometimes slower to
// converge).
func recursivePositions(body []program.Atom, members map[string]bool) []int {
	if len(members) == 0 {
		return nil
	}
	var out []int
	for i, a := range body {
		if (a.Kind == program.AtomRuleApplication || a.Kind == program.AtomFixedRuleApplication) && members[a.RuleName] {
			out = append(out, i)
		}
	}
	return out
}

// compileBody compiles atoms[pos:] onto input, returning the finished
// operator tree.
func compileBody(atoms []program.Atom, pos int, input relalg.Operator, cc *compileCtx) (relalg.Operator, error) {
	if pos >= len(atoms) {
		return input, nil
	}
	a := atoms[pos]
	switch a.Kind {
	case program.AtomRuleApplication, program.AtomFixedRuleApplication:
		rel := cc.relationFor(a.RuleName, pos)
		next := &relalg.RuleScan{Input: input, Rel: rel, Args: a.Args}
		return compileBody(atoms, pos+1, next, cc)

	case program.AtomStoredRelationApplication:
		schema, err := cc.cat.Get(a.RelName)
		if err != nil {
			return nil, err
		}
		prefix, err := schema.KeyPrefix()
		if err != nil {
			return nil, err
		}
		args := resolveStoredArgs(schema, a)
		next := &relalg.StoredScan{Input: input, Tx: cc.tx, Schema: schema, RelID: prefix, Args: args}
		return compileBody(atoms, pos+1, next, cc)

	case program.AtomExpression:
		next := &relalg.Filter{Input: input, Expr: a.Expr}
		return compileBody(atoms, pos+1, next, cc)

	case program.AtomUnification:
		next := &relalg.Unify{Input: input, Target: a.Target, Expr: a.Expr}
		return compileBody(atoms, pos+1, next, cc)

	case program.AtomMultiUnification:
		next := &relalg.Unnest{Input: input, Target: a.Target, Expr: a.Expr}
		return compileBody(atoms, pos+1, next, cc)

	case program.AtomNegated:
		right, err := compileAtomAlone(*a.Inner, cc)
		if err != nil {
			return nil, err
		}
		next := &relalg.Join{Left: input, Right: right, Kind: relalg.AntiSemi}
		return compileBody(atoms, pos+1, next, cc)

	case program.AtomDisjunction:
		branches := make([]relalg.Operator, 0, len(a.Disjuncts))
		for _, conj := range a.Disjuncts {
			combined := append(append([]program.Atom{}, conj...), atoms[pos+1:]...)
			op, err := compileBody(combined, 0, input, cc)
			if err != nil {
				return nil, err
			}
			branches = append(branches, op)
		}
		return &relalg.Union{Inputs: branches}, nil

	default:
		return nil, cozoerr.ErrInternal.New("unknown atom kind in rule body")
	}
}

// compileAtomAlone compiles a single atom starting from an empty seed
// environment, used to build the right side of a negation's AntiSemi join.
func compileAtomAlone(a program.Atom, cc *compileCtx) (relalg.Operator, error) {
	return compileBody([]program.Atom{a}, 0, relalg.Seed{}, cc)
}

// resolveStoredArgs turns a stored-relation atom's binding (positional or
// named) into the positional symbol list StoredScan expects, padding
// unbound trailing columns and unmentioned named columns with the anonymous
// wildcard.
func resolveStoredArgs(schema *catalog.Relation, a program.Atom) []program.Symbol {
	cols := schema.AllColumns()
	out := make([]program.Symbol, len(cols))
	for i := range out {
		out[i] = "_"
	}
	if a.BindMode == program.Named {
		for i, c := range cols {
			if s, ok := a.NamedArgs[c.Name]; ok {
				out[i] = s
			}
		}
		return out
	}
	for i := 0; i < len(a.Args) && i < len(out); i++ {
		out[i] = a.Args[i]
	}
	return out
}

// splitHead separates a rule head's plain group-key symbols from its
// aggregated entries.
func splitHead(h program.Head) ([]program.Symbol, []relalg.AggSpec) {
	var groupKeys []program.Symbol
	var aggs []relalg.AggSpec
	for _, e := range h {
		if e.IsAggregated() {
			aggs = append(aggs, relalg.AggSpec{Src: e.Symbol, Op: e.Agg, Out: e.Symbol})
		} else {
			groupKeys = append(groupKeys, e.Symbol)
		}
	}
	return groupKeys, aggs
}

func headHasAgg(h program.Head) bool {
	for _, e := range h {
		if e.IsAggregated() {
			return true
		}
	}
	return false
}

func aggOutSymbols(aggs []relalg.AggSpec) []program.Symbol {
	out := make([]program.Symbol, len(aggs))
	for i, a := range aggs {
		out[i] = a.Out
	}
	return out
}
