// Package txn drives script execution: a sequence of already magic-rewritten
// and stratified queries run inside one storage transaction, each applying
// its mutation op against the catalog and firing the target relation's
// triggers, with :assert none/some and a bounded trigger-cascade depth
// aborting the whole script on violation.
package txn

import (
	"context"

	"github.com/opentracing/opentracing-go"

	"github.com/cozodb/cozo-sub000/catalog"
	"github.com/cozodb/cozo-sub000/cozoerr"
	"github.com/cozodb/cozo-sub000/eval"
	"github.com/cozodb/cozo-sub000/internal/log"
	"github.com/cozodb/cozo-sub000/program"
	"github.com/cozodb/cozo-sub000/relalg"
	"github.com/cozodb/cozo-sub000/storage"
	"github.com/cozodb/cozo-sub000/stratify"
)

// MaxTriggerDepth bounds how many trigger-fired mutations may cascade
// within one script before it is aborted as a cycle.
const MaxTriggerDepth = 16

// Query bundles one magic-rewritten, stratified program with the strata
// eval.Run needs — the unit RunScript executes, in order, inside one
// transaction.
type Query struct {
	Program *program.Program
	Strata  []stratify.Stratum
}

// Runner executes scripts against a catalog, dispatching Fixed-kind rules
// through FixedRules and tracing through Tracer the same way eval.Evaluator
// does (a nil Tracer evaluates with opentracing's no-op implementation).
type Runner struct {
	Catalog    *catalog.Catalog
	FixedRules eval.FixedRuleRunner
	Tracer     opentracing.Tracer

	// MaxTriggerDepth overrides the package's default trigger-cascade bound
	// when non-zero.
	MaxTriggerDepth int

	// OnMutation, if set, is called once per successfully-applied mutation
	// op (including every trigger-fired one), after the triggers it sets
	// off have themselves run. newRows/oldRows carry full (key+value) rows
	// in schema column order, the same rows bound to "_new"/"_old" for that
	// op's own triggers. The cozo package uses this to fan out to
	// per-relation registered callbacks.
	OnMutation func(relName string, op program.MutationOp, newRows, oldRows []relalg.Tuple)
}

func (r *Runner) notifyMutation(relName string, op program.MutationOp, newRows, oldRows []rowChange) {
	if r.OnMutation == nil {
		return
	}
	r.OnMutation(relName, op, toTuples(newRows), toTuples(oldRows))
}

func toTuples(rows []rowChange) []relalg.Tuple {
	out := make([]relalg.Tuple, len(rows))
	for i, row := range rows {
		out[i] = relalg.Tuple(row.full())
	}
	return out
}

// RunScript evaluates every query in order inside tx, applying each one's
// mutation op and firing triggers, committing only once every query (and
// every trigger cascade it set off) has succeeded. The first error rolls tx
// back and is returned unexamined; a concurrent conflict instead surfaces
// from tx.Commit as cozoerr.ErrTransactionConflict.
func (r *Runner) RunScript(ctx context.Context, tx storage.Tx, queries []Query) ([]*eval.Result, error) {
	logger := log.Component("txn")
	results := make([]*eval.Result, 0, len(queries))
	for i, q := range queries {
		res, err := r.runQuery(ctx, tx, q, 0)
		if err != nil {
			logger.WithField("query", i).WithError(err).Warn("script aborted, rolling back")
			if rbErr := tx.Rollback(); rbErr != nil {
				logger.WithError(rbErr).Warn("rollback itself failed")
			}
			return nil, err
		}
		results = append(results, res)
	}
	if err := tx.Commit(); err != nil {
		return nil, err
	}
	logger.WithField("queries", len(queries)).Debug("script committed")
	return results, nil
}

// RunOne evaluates a single query against an already-open transaction
// without committing or rolling it back, leaving that decision to the
// caller — the entry point RunInTx uses to interleave several
// separately-issued scripts against one long-lived transaction.
func (r *Runner) RunOne(ctx context.Context, tx storage.Tx, q Query) (*eval.Result, error) {
	return r.runQuery(ctx, tx, q, 0)
}

// runQuery evaluates one query's program and, if it carries a mutation op,
// applies it and fires the target relation's triggers. depth counts
// trigger-fired recursion; a script's own queries always start at depth 0.
func (r *Runner) runQuery(ctx context.Context, tx storage.Tx, q Query, depth int) (*eval.Result, error) {
	return r.runQueryWithSeed(ctx, tx, q, nil, depth)
}

// runQueryWithSeed is runQuery plus named relations pre-bound into the
// evaluator before the first stratum runs — trigger programs use this to
// see "_new"/"_old" as plain relations.
func (r *Runner) runQueryWithSeed(ctx context.Context, tx storage.Tx, q Query, seed map[string]*relalg.Relation, depth int) (*eval.Result, error) {
	maxDepth := r.MaxTriggerDepth
	if maxDepth == 0 {
		maxDepth = MaxTriggerDepth
	}
	if depth > maxDepth {
		return nil, cozoerr.ErrValidation.New("trigger cascade exceeded max recursion depth")
	}

	ev := &eval.Evaluator{Tx: tx, Catalog: r.Catalog, FixedRules: r.FixedRules, Tracer: r.Tracer, Seed: seed}
	res, err := ev.Run(ctx, q.Program, q.Strata)
	if err != nil {
		return nil, err
	}

	if q.Program.MutationOp != program.NoMutation {
		if err := r.applyMutation(ctx, tx, q.Program, res, depth); err != nil {
			return nil, err
		}
	}
	return res, nil
}
