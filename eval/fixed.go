package eval

import (
	"context"

	"github.com/cozodb/cozo-sub000/cozoerr"
	"github.com/cozodb/cozo-sub000/program"
	"github.com/cozodb/cozo-sub000/relalg"
	"github.com/cozodb/cozo-sub000/value"
)

// FixedRuleRunner resolves and executes a named fixed-rule algorithm: a
// single `run(inputs, options) -> relation` operation. The fixedrule package
// implements this against its algorithm registry; eval depends only on this
// narrow interface so it never needs to import fixedrule.
type FixedRuleRunner interface {
	Run(ctx context.Context, name string, inputs []*relalg.Relation, options map[string]value.Value) (*relalg.Relation, error)
}

// evalFixed resolves a fixed rule's named inputs (each either an
// already-evaluated rule name or a stored relation), evaluates its option
// expressions to constants, dispatches to the algorithm registry, and binds
// the resulting relation to the rule's head.
func (e *Evaluator) evalFixed(ctx context.Context, r *program.Rule, rel map[string]*relalg.Relation) error {
	if e.FixedRules == nil {
		return cozoerr.ErrNotFound.New("fixed rule " + r.FixedRuleName + ": no algorithm registry configured")
	}
	inputs := make([]*relalg.Relation, len(r.FixedInputs))
	for i, name := range r.FixedInputs {
		in, err := e.resolveFixedInput(ctx, name, rel)
		if err != nil {
			return err
		}
		inputs[i] = in
	}
	options := make(map[string]value.Value, len(r.FixedOptions))
	for k, expr := range r.FixedOptions {
		v, err := expr.Eval(map[program.Symbol]value.Value{})
		if err != nil {
			return err
		}
		options[k] = v
	}
	result, err := e.FixedRules.Run(ctx, r.FixedRuleName, inputs, options)
	if err != nil {
		return err
	}
	result.Cols = r.Head.Symbols()
	rel[r.Name] = result
	return nil
}

// resolveFixedInput looks up name among already-evaluated rule relations
// first (an earlier stratum, by construction of the dependency graph), and
// falls back to a full scan of a stored relation of that name otherwise.
func (e *Evaluator) resolveFixedInput(ctx context.Context, name string, rel map[string]*relalg.Relation) (*relalg.Relation, error) {
	if r, ok := rel[name]; ok {
		return r, nil
	}
	schema, err := e.Catalog.Get(name)
	if err != nil {
		return nil, err
	}
	prefix, err := schema.KeyPrefix()
	if err != nil {
		return nil, err
	}
	cols := schema.AllColumns()
	syms := make([]program.Symbol, len(cols))
	for i, c := range cols {
		syms[i] = program.Symbol(c.Name)
	}
	scan := &relalg.StoredScan{Input: relalg.Seed{}, Tx: e.Tx, Schema: schema, RelID: prefix, Args: syms}
	return relalg.Materialize(ctx, scan, syms)
}

// evalConstant materializes a Kind==Constant rule's literal rows directly,
// the compiled form of `?[...] <- [[1, 2], [3, 4]]` sugar.
func (e *Evaluator) evalConstant(r *program.Rule, rel map[string]*relalg.Relation) error {
	headCols := r.Head.Symbols()
	out := relalg.New(headCols)
	for _, row := range r.ConstantRows {
		if _, err := out.Insert(relalg.Tuple(row)); err != nil {
			return err
		}
	}
	rel[r.Name] = out
	return nil
}
