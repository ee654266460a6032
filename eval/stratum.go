package eval

import (
	"context"

	"github.com/cozodb/cozo-sub000/program"
	"github.com/cozodb/cozo-sub000/relalg"
	"github.com/cozodb/cozo-sub000/stratify"
)

// collectBranches compiles every definition of a rule name into one operator
// per semi-naive substitution choice: one branch with activePos -1 (read R
// everywhere) when the definition references no same-stratum name, or one
// branch per recursive atom position otherwise, so the delta relation is
// substituted at exactly one position per branch as semi-naive evaluation
// requires.
func (e *Evaluator) collectBranches(defs []*program.Rule, members map[string]bool, rel, delta map[string]*relalg.Relation) ([]relalg.Operator, error) {
	var branches []relalg.Operator
	for _, r := range defs {
		positions := recursivePositions(r.Body, members)
		if len(positions) == 0 {
			cc := &compileCtx{tx: e.Tx, cat: e.Catalog, rel: rel, delta: delta, members: members, activePos: -1}
			op, err := compileBody(r.Body, 0, relalg.Seed{}, cc)
			if err != nil {
				return nil, err
			}
			branches = append(branches, op)
			continue
		}
		for _, pos := range positions {
			cc := &compileCtx{tx: e.Tx, cat: e.Catalog, rel: rel, delta: delta, members: members, activePos: pos}
			op, err := compileBody(r.Body, 0, relalg.Seed{}, cc)
			if err != nil {
				return nil, err
			}
			branches = append(branches, op)
		}
	}
	return branches, nil
}

// evalStratum evaluates one stratum to completion, writing every member
// rule name's final relation into rel.
func (e *Evaluator) evalStratum(ctx context.Context, p *program.Program, stratum stratify.Stratum, rel map[string]*relalg.Relation) error {
	if !stratum.Recursive {
		return e.evalNonRecursiveStratum(ctx, p, stratum.RuleNames[0], rel)
	}
	return e.evalRecursiveStratum(ctx, p, stratum, rel)
}

// evalNonRecursiveStratum evaluates a single rule name with no same-stratum
// self- or mutual-reference: it needs only one pass.
func (e *Evaluator) evalNonRecursiveStratum(ctx context.Context, p *program.Program, name string, rel map[string]*relalg.Relation) error {
	defs := p.RulesNamed(name)
	switch defs[0].Kind {
	case program.Fixed:
		return e.evalFixed(ctx, defs[0], rel)
	case program.Constant:
		return e.evalConstant(defs[0], rel)
	}

	headCols := defs[0].Head.Symbols()
	branches, err := e.collectBranches(defs, nil, rel, nil)
	if err != nil {
		return err
	}
	var op relalg.Operator = &relalg.Union{Inputs: branches}
	agg := headHasAgg(defs[0].Head)
	if agg {
		groupKeys, aggs := splitHead(defs[0].Head)
		op = &relalg.Aggregate{Input: op, GroupKeys: groupKeys, Aggs: aggs}
	}

	limit := int64(-1)
	if name == program.EntryRuleName && p.Options.Limit != nil && len(p.Options.SortKeys) == 0 && !agg {
		limit = *p.Options.Limit
		if p.Options.Offset != nil {
			limit += *p.Options.Offset
		}
	}

	var result *relalg.Relation
	if limit >= 0 {
		result, err = materializeLimited(ctx, op, headCols, limit)
	} else {
		result, err = relalg.Materialize(ctx, op, headCols)
	}
	if err != nil {
		return err
	}
	rel[name] = result
	return nil
}

// evalRecursiveStratum runs the semi-naive fixpoint loop over every rule
// name in the stratum until no name's delta grows in a given iteration.
func (e *Evaluator) evalRecursiveStratum(ctx context.Context, p *program.Program, stratum stratify.Stratum, rel map[string]*relalg.Relation) error {
	members := make(map[string]bool, len(stratum.RuleNames))
	for _, n := range stratum.RuleNames {
		members[n] = true
	}

	delta := map[string]*relalg.Relation{}
	accs := map[string]*meetAcc{}
	headColsOf := map[string][]program.Symbol{}
	for _, n := range stratum.RuleNames {
		defs := p.RulesNamed(n)
		cols := defs[0].Head.Symbols()
		headColsOf[n] = cols
		rel[n] = relalg.New(cols)
		delta[n] = relalg.New(cols)
		if headHasAgg(defs[0].Head) {
			accs[n] = newMeetAcc()
		}
	}

	for {
		if err := ctx.Err(); err != nil {
			return mapCtxErr(err)
		}
		progressed := false
		nextDelta := map[string]*relalg.Relation{}

		for _, n := range stratum.RuleNames {
			defs := p.RulesNamed(n)
			headCols := headColsOf[n]
			branches, err := e.collectBranches(defs, members, rel, delta)
			if err != nil {
				return err
			}

			if acc, ok := accs[n]; ok {
				groupKeys, aggs := splitHead(defs[0].Head)
				raw, err := relalg.Materialize(ctx, &relalg.Union{Inputs: branches}, headCols)
				if err != nil {
					return err
				}
				d, err := evalMeetRule(raw, groupKeys, aggs, acc)
				if err != nil {
					return err
				}
				rebuilt, err := rebuildFromAcc(headCols, acc)
				if err != nil {
					return err
				}
				rel[n] = rebuilt
				nextDelta[n] = d
				if d.Len() > 0 {
					progressed = true
				}
				continue
			}

			combined, err := relalg.Materialize(ctx, &relalg.Union{Inputs: branches}, headCols)
			if err != nil {
				return err
			}
			d, err := rel[n].Union(combined)
			if err != nil {
				return err
			}
			nextDelta[n] = d
			if d.Len() > 0 {
				progressed = true
			}
		}

		delta = nextDelta
		if !progressed {
			return nil
		}
	}
}
