package eval

import (
	"context"
	"errors"
	"io"
	"strconv"
	"time"

	"github.com/opentracing/opentracing-go"

	"github.com/cozodb/cozo-sub000/catalog"
	"github.com/cozodb/cozo-sub000/cozoerr"
	"github.com/cozodb/cozo-sub000/internal/log"
	"github.com/cozodb/cozo-sub000/program"
	"github.com/cozodb/cozo-sub000/relalg"
	"github.com/cozodb/cozo-sub000/storage"
	"github.com/cozodb/cozo-sub000/stratify"
)

// Evaluator drives stratified semi-naive evaluation of an already
// stratified, magic-rewritten program against one transaction's storage
// snapshot. Callers run magic.Rewrite then stratify.Stratify first; Run
// consumes their output.
type Evaluator struct {
	Tx         storage.Tx
	Catalog    *catalog.Catalog
	FixedRules FixedRuleRunner
	// Tracer receives one span per stratum. A nil Tracer evaluates with
	// opentracing's no-op implementation.
	Tracer opentracing.Tracer
	// Seed pre-populates named relations before the first stratum runs, so a
	// rule body's plain RuleApplication atom can resolve a name that is not
	// itself defined by any rule in the program. The txn package uses this
	// to bind a trigger program's "_new"/"_old" references to the rows a
	// mutation actually touched.
	Seed map[string]*relalg.Relation
}

// Result is the outcome of evaluating a program: every rule name's final
// materialized relation, plus the entry rule's relation after :limit,
// :offset, :sort, and :assert have been applied.
type Result struct {
	Entry *relalg.Relation
	Named map[string]*relalg.Relation
}

// Run evaluates every stratum of p in order, then applies p.Options to the
// entry rule's relation.
func (e *Evaluator) Run(ctx context.Context, p *program.Program, strata []stratify.Stratum) (*Result, error) {
	logger := log.Component("eval")
	tracer := e.Tracer
	if tracer == nil {
		tracer = opentracing.NoopTracer{}
	}

	if p.Options.TimeoutS != nil {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, time.Duration(*p.Options.TimeoutS*float64(time.Second)))
		defer cancel()
	}

	rel := map[string]*relalg.Relation{}
	for n, r := range e.Seed {
		rel[n] = r
	}
	named := map[string]*relalg.Relation{}

	for _, stratum := range strata {
		if err := ctx.Err(); err != nil {
			return nil, mapCtxErr(err)
		}
		span, sctx := opentracing.StartSpanFromContextWithTracer(ctx, tracer, "eval.stratum")
		span.SetTag("rules", stratum.RuleNames)
		span.SetTag("recursive", stratum.Recursive)
		err := e.evalStratum(sctx, p, stratum, rel)
		span.Finish()
		if err != nil {
			return nil, err
		}
		for _, n := range stratum.RuleNames {
			named[n] = rel[n]
		}
		logger.WithField("stratum", stratum.RuleNames).WithField("recursive", stratum.Recursive).Debug("stratum evaluated")
	}

	entry, ok := rel[program.EntryRuleName]
	if !ok {
		entry = relalg.New(nil)
	}
	if err := applyOptions(entry, p.Options); err != nil {
		return nil, err
	}

	if p.Options.SleepS != nil {
		time.Sleep(time.Duration(*p.Options.SleepS * float64(time.Second)))
	}

	return &Result{Entry: entry, Named: named}, nil
}

// applyOptions sorts, asserts, skips, and takes on entry in place, in that
// order: :assert reads the pre-:offset/:limit row count, matching the
// intuition that an assertion is about whether the rule produced answers at
// all, not about the page of answers the caller asked to see.
func applyOptions(entry *relalg.Relation, opts program.QueryOptions) error {
	if len(opts.SortKeys) > 0 {
		cols := make([]int, len(opts.SortKeys))
		desc := make([]bool, len(opts.SortKeys))
		for i, k := range opts.SortKeys {
			cols[i] = entry.ColIndex(k.Symbol)
			desc[i] = k.Desc
		}
		entry.SortBy(cols, desc)
	}

	switch opts.AssertOp {
	case program.AssertNone:
		if entry.Len() > 0 {
			return cozoerr.ErrAssertion.New("expected no rows, got " + strconv.Itoa(entry.Len()))
		}
	case program.AssertSome:
		if entry.Len() == 0 {
			return cozoerr.ErrAssertion.New("expected at least one row, got none")
		}
	}

	if opts.Offset != nil {
		entry.Skip(*opts.Offset)
	}
	if opts.Limit != nil {
		entry.Take(*opts.Limit)
	}
	return nil
}

// materializeLimited drains op into a new Relation, stopping as soon as
// limit distinct tuples have been produced (limit < 0 means unbounded). This
// is the entry rule's :limit early-termination path: it is only safe when
// nothing downstream needs the full materialization (no sort, no
// aggregation).
func materializeLimited(ctx context.Context, op relalg.Operator, cols []program.Symbol, limit int64) (*relalg.Relation, error) {
	rel := relalg.New(cols)
	it, err := op.Open(ctx)
	if err != nil {
		return nil, err
	}
	defer it.Close()
	for limit < 0 || int64(rel.Len()) < limit {
		env, err := it.Next(ctx)
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, err
		}
		if _, err := rel.Insert(env.Project(cols)); err != nil {
			return nil, err
		}
	}
	return rel, nil
}

func mapCtxErr(err error) error {
	if errors.Is(err, context.DeadlineExceeded) {
		return cozoerr.ErrTimeout.New(err.Error())
	}
	return cozoerr.ErrCancelled.New(err.Error())
}
