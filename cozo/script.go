package cozo

import (
	"context"
	"strconv"
	"time"

	"github.com/cozodb/cozo-sub000/cozoerr"
	"github.com/cozodb/cozo-sub000/eval"
	"github.com/cozodb/cozo-sub000/magic"
	"github.com/cozodb/cozo-sub000/program"
	"github.com/cozodb/cozo-sub000/storage"
	"github.com/cozodb/cozo-sub000/stratify"
	"github.com/cozodb/cozo-sub000/txn"
	"github.com/cozodb/cozo-sub000/value"
)

// Rows is one query's result payload: column names, rows in entry-rule
// order, and the wall-clock time evaluation took.
type Rows struct {
	Headers []string
	Rows    [][]value.Value
	TookMs  int64
}

func itoa(id uint64) string { return strconv.FormatUint(id, 10) }

func toRow(res *eval.Result, start time.Time) Rows {
	headers := make([]string, len(res.Entry.Cols))
	for i, c := range res.Entry.Cols {
		headers[i] = string(c)
	}
	rows := make([][]value.Value, len(res.Entry.Tuples))
	for i, t := range res.Entry.Tuples {
		rows[i] = []value.Value(t)
	}
	return Rows{Headers: headers, Rows: rows, TookMs: time.Since(start).Milliseconds()}
}

func toRows(results []*eval.Result, start time.Time) []Rows {
	out := make([]Rows, len(results))
	for i, res := range results {
		out[i] = toRow(res, start)
	}
	return out
}

type queryIDKey struct{}

// QueryID extracts the running-query id a context carries, as assigned by
// BeginQuery. The second return is false for a context BeginQuery never
// touched.
func QueryID(ctx context.Context) (uint64, bool) {
	id, ok := ctx.Value(queryIDKey{}).(uint64)
	return id, ok
}

// BeginQuery registers a new entry in the running-queries registry and
// returns a context carrying its id (retrievable via QueryID) wired to
// cancel when KillQuery(id) is called. Callers pass the returned context to
// RunScript/RunInTx and must call end once the query is finished, win or
// lose.
func (db *Db) BeginQuery(parent context.Context) (ctx context.Context, id uint64, end func()) {
	cctx, cancel := context.WithCancel(parent)
	db.queriesMu.Lock()
	db.nextQueryID++
	id = db.nextQueryID
	db.queries[id] = cancel
	db.queriesMu.Unlock()

	cctx = context.WithValue(cctx, queryIDKey{}, id)
	end = func() {
		cancel()
		db.queriesMu.Lock()
		delete(db.queries, id)
		db.queriesMu.Unlock()
	}
	return cctx, id, end
}

// KillQuery cancels a running query by id, causing its evaluator to abort
// at its next cooperative check with cozoerr.ErrCancelled and its
// transaction to roll back. Returns cozoerr.ErrNotFound if id is not
// currently running.
func (db *Db) KillQuery(id uint64) error {
	db.queriesMu.Lock()
	cancel, ok := db.queries[id]
	db.queriesMu.Unlock()
	if !ok {
		return cozoerr.ErrNotFound.New("running query " + itoa(id))
	}
	cancel()
	return nil
}

// RunningQueries lists the ids currently registered.
func (db *Db) RunningQueries() []uint64 {
	db.queriesMu.Lock()
	defer db.queriesMu.Unlock()
	out := make([]uint64, 0, len(db.queries))
	for id := range db.queries {
		out = append(out, id)
	}
	return out
}

// RunScript runs every program in order as one script: one transaction, in
// textual order, each query's mutation op applied and its triggers fired,
// the whole thing rolled back on the first error. immutable forces a
// read-only transaction, rejecting any program that carries a mutation op,
// regardless of the Config's own ReadOnly setting or any relation's access
// level.
func (db *Db) RunScript(ctx context.Context, programs []*program.Program, immutable bool) ([]Rows, error) {
	start := time.Now()
	write := !immutable && !db.config.ReadOnly
	if !write {
		for _, p := range programs {
			if p.MutationOp != program.NoMutation {
				return nil, cozoerr.ErrValidation.New("script carries a mutation op in a read-only run")
			}
		}
	}

	tx, err := db.engine.Begin(ctx, write)
	if err != nil {
		return nil, err
	}

	queries, err := db.buildQueries(programs)
	if err != nil {
		_ = tx.Rollback()
		return nil, err
	}

	results, err := db.newRunner().RunScript(ctx, tx, queries)
	if err != nil {
		return nil, err
	}
	return toRows(results, start), nil
}

// BeginTx opens a standalone transaction for RunInTx/Commit/Abort, when a
// caller needs several separately-issued scripts to share one transaction
// rather than being batched into a single RunScript call.
func (db *Db) BeginTx(ctx context.Context, write bool) (storage.Tx, error) {
	return db.engine.Begin(ctx, write)
}

// RunInTx runs programs against an already-open transaction (from BeginTx),
// without committing or rolling it back — the caller owns that decision via
// Commit/Abort.
func (db *Db) RunInTx(ctx context.Context, tx storage.Tx, programs []*program.Program) ([]Rows, error) {
	start := time.Now()
	queries, err := db.buildQueries(programs)
	if err != nil {
		return nil, err
	}
	runner := db.newRunner()
	results := make([]Rows, 0, len(programs))
	for _, q := range queries {
		res, err := runner.RunOne(ctx, tx, q)
		if err != nil {
			return nil, err
		}
		results = append(results, toRow(res, start))
	}
	return results, nil
}

// Commit finalizes a transaction opened with BeginTx.
func (db *Db) Commit(tx storage.Tx) error { return tx.Commit() }

// Abort discards a transaction opened with BeginTx without applying its
// writes.
func (db *Db) Abort(tx storage.Tx) error { return tx.Rollback() }

// buildQueries magic-rewrites and stratifies every program, applying the
// Config's default timeout to any query that declares none of its own. The
// input programs are never mutated: a shallow copy carries the
// default-timeout override so callers may safely reuse the same
// *program.Program across multiple RunScript calls with different configs.
func (db *Db) buildQueries(programs []*program.Program) ([]txn.Query, error) {
	queries := make([]txn.Query, 0, len(programs))
	for _, p := range programs {
		if p.Options.TimeoutS == nil && db.config.DefaultTimeoutS > 0 {
			cp := *p
			t := db.config.DefaultTimeoutS
			cp.Options.TimeoutS = &t
			p = &cp
		}
		rewritten := magic.Rewrite(p)
		strata, err := stratify.Stratify(rewritten)
		if err != nil {
			return nil, err
		}
		queries = append(queries, txn.Query{Program: rewritten, Strata: strata})
	}
	return queries, nil
}
