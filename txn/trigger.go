package txn

import (
	"context"
	"fmt"

	"github.com/cozodb/cozo-sub000/catalog"
	"github.com/cozodb/cozo-sub000/cozoerr"
	"github.com/cozodb/cozo-sub000/program"
	"github.com/cozodb/cozo-sub000/relalg"
	"github.com/cozodb/cozo-sub000/storage"
	"github.com/cozodb/cozo-sub000/stratify"
)

// fireTriggers runs every trigger of schema matching kind, each against its
// own stratification of the same program but with "_new"/"_old" seeded as
// plain relations holding newRows/oldRows. A trigger program's body never
// needs bound-argument gating against these two pseudo relations (they
// carry no recursive structure of their own), so unlike a query's entry
// rule a trigger is stratified directly, without going through
// magic.Rewrite first.
func (r *Runner) fireTriggers(ctx context.Context, tx storage.Tx, schema *catalog.Relation, kind catalog.TriggerKind, newRows, oldRows []rowChange, depth int) error {
	var matched []catalog.Trigger
	for _, t := range schema.Triggers {
		if t.Kind == kind {
			matched = append(matched, t)
		}
	}
	if len(matched) == 0 {
		return nil
	}

	arity := schema.Arity()
	seed := map[string]*relalg.Relation{
		"_new": seedRelation(newRows, arity),
		"_old": seedRelation(oldRows, arity),
	}

	for _, t := range matched {
		p, ok := t.Program.(*program.Program)
		if !ok || p == nil {
			return cozoerr.ErrInternal.New("trigger program is not a *program.Program")
		}
		strata, err := stratify.Stratify(p)
		if err != nil {
			return err
		}
		if _, err := r.runQueryWithSeed(ctx, tx, Query{Program: p, Strata: strata}, seed, depth+1); err != nil {
			return err
		}
	}
	return nil
}

// seedRelation materializes rows as a relation of the given arity, with
// placeholder column names — a trigger program's body unifies against it
// positionally via its own Args, never by column name.
func seedRelation(rows []rowChange, arity int) *relalg.Relation {
	cols := make([]program.Symbol, arity)
	for i := range cols {
		cols[i] = program.Symbol(fmt.Sprintf("c%d", i))
	}
	rel := relalg.New(cols)
	for _, row := range rows {
		full := row.full()
		if len(full) != arity {
			continue
		}
		_, _ = rel.Insert(relalg.Tuple(full))
	}
	return rel
}
