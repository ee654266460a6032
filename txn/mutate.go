package txn

import (
	"context"

	"github.com/cozodb/cozo-sub000/catalog"
	"github.com/cozodb/cozo-sub000/cozoerr"
	"github.com/cozodb/cozo-sub000/eval"
	"github.com/cozodb/cozo-sub000/program"
	"github.com/cozodb/cozo-sub000/relalg"
	"github.com/cozodb/cozo-sub000/storage"
	"github.com/cozodb/cozo-sub000/value"
)

// rowChange is one row a mutation touched, split into key and value columns
// in the target schema's declared order — the shape both row encoding and
// trigger binding need.
type rowChange struct {
	key []value.Value
	val []value.Value
}

func (c rowChange) full() []value.Value {
	out := make([]value.Value, 0, len(c.key)+len(c.val))
	out = append(out, c.key...)
	out = append(out, c.val...)
	return out
}

// applyMutation applies q's mutation op to res.Entry against the named
// stored relation, then fires that relation's triggers against the rows
// actually touched. The relation's schema is assumed already registered in
// the catalog; this package only performs the row-level mutation and
// trigger cascade, not relation definition.
func (r *Runner) applyMutation(ctx context.Context, tx storage.Tx, q *program.Program, res *eval.Result, depth int) error {
	schema, err := r.Catalog.Get(q.MutationRel)
	if err != nil {
		return err
	}
	writable := schema.AccessLevel.AllowsWriteWithOverride(q.Options.AllowProtectedWrite)
	if q.MutationOp != program.OpEnsure && q.MutationOp != program.OpEnsureNot && !writable {
		return cozoerr.ErrValidation.New(schema.Name + " is not writable at its current access level")
	}

	cols := schema.AllColumns()
	keyArity := len(schema.KeyCols)
	rows, err := bindMutationRows(res.Entry, q.MutationCols, cols, keyArity)
	if err != nil {
		return err
	}
	prefix, err := schema.KeyPrefix()
	if err != nil {
		return err
	}

	switch q.MutationOp {
	case program.OpCreate:
		return r.putRows(ctx, tx, schema, prefix, rows, depth, true, program.OpCreate)
	case program.OpPut:
		return r.putRows(ctx, tx, schema, prefix, rows, depth, false, program.OpPut)
	case program.OpReplace:
		if err := r.fireTriggers(ctx, tx, schema, catalog.OnReplace, rows, nil, depth); err != nil {
			return err
		}
		return r.putRows(ctx, tx, schema, prefix, rows, depth, false, program.OpReplace)
	case program.OpRm:
		return r.rmRows(ctx, tx, schema, prefix, rows, depth)
	case program.OpEnsure:
		return ensureRows(tx, prefix, rows, true)
	case program.OpEnsureNot:
		return ensureRows(tx, prefix, rows, false)
	default:
		return cozoerr.ErrInternal.New("unknown mutation op")
	}
}

// bindMutationRows reorders res.Entry's columns (named by mutationCols, one
// head symbol per target column in target-column order) into schema column
// order and coerces each to its declared type, splitting the result at
// keyArity into key/value halves.
func bindMutationRows(entry *relalg.Relation, mutationCols []program.Symbol, cols []catalog.Column, keyArity int) ([]rowChange, error) {
	if len(mutationCols) != len(cols) {
		return nil, cozoerr.ErrValidation.New("mutation binds a different number of columns than the target relation declares")
	}
	idx := make([]int, len(mutationCols))
	for i, sym := range mutationCols {
		ci := entry.ColIndex(sym)
		if ci < 0 {
			return nil, cozoerr.ErrValidation.New("mutation column binding references unbound symbol " + string(sym))
		}
		idx[i] = ci
	}

	rows := make([]rowChange, 0, entry.Len())
	for _, t := range entry.Tuples {
		full := make([]value.Value, len(cols))
		for i, c := range cols {
			v, err := catalog.CoerceColumn(c, t[idx[i]])
			if err != nil {
				return nil, err
			}
			full[i] = v
		}
		rows = append(rows, rowChange{
			key: append([]value.Value{}, full[:keyArity]...),
			val: append([]value.Value{}, full[keyArity:]...),
		})
	}
	return rows, nil
}

func encodeRowKey(prefix []byte, key []value.Value) ([]byte, error) {
	buf := append([]byte{}, prefix...)
	for _, v := range key {
		var err error
		buf, err = value.EncodeKey(buf, v)
		if err != nil {
			return nil, err
		}
	}
	return buf, nil
}

func encodeRowVal(val []value.Value) []byte {
	var buf []byte
	for _, v := range val {
		buf = value.EncodeValue(buf, v)
	}
	return buf
}

func decodeRowVal(buf []byte, valCols []catalog.Column) ([]value.Value, error) {
	out := make([]value.Value, 0, len(valCols))
	rest := buf
	for range valCols {
		v, r, err := value.DecodeValue(rest)
		if err != nil {
			return nil, err
		}
		out = append(out, v)
		rest = r
	}
	return out, nil
}

// putRows writes every row's key/value into storage, reading back any
// previously-stored value at the same key first so triggers can see it as
// "_old". If failOnExisting (the :create op), a row whose key is already
// present aborts the whole mutation.
func (r *Runner) putRows(ctx context.Context, tx storage.Tx, schema *catalog.Relation, prefix []byte, rows []rowChange, depth int, failOnExisting bool, op program.MutationOp) error {
	oldRows := make([]rowChange, 0, len(rows))
	for _, row := range rows {
		key, err := encodeRowKey(prefix, row.key)
		if err != nil {
			return err
		}
		existingVal, ok, err := tx.Get(key)
		if err != nil {
			return err
		}
		if ok {
			if failOnExisting {
				return cozoerr.ErrValidation.New(":create found an existing row at this key in " + schema.Name)
			}
			oldVal, err := decodeRowVal(existingVal, schema.ValCols)
			if err != nil {
				return err
			}
			oldRows = append(oldRows, rowChange{key: row.key, val: oldVal})
		}
		if err := tx.Put(key, encodeRowVal(row.val)); err != nil {
			return err
		}
	}
	if err := r.fireTriggers(ctx, tx, schema, catalog.OnPut, rows, oldRows, depth); err != nil {
		return err
	}
	r.notifyMutation(schema.Name, op, rows, oldRows)
	return nil
}

// rmRows deletes every row whose key matches one of rows' key columns
// (value columns in rows are ignored for matching purposes), collecting the
// rows actually deleted for the "_old" trigger binding.
func (r *Runner) rmRows(ctx context.Context, tx storage.Tx, schema *catalog.Relation, prefix []byte, rows []rowChange, depth int) error {
	deleted := make([]rowChange, 0, len(rows))
	for _, row := range rows {
		key, err := encodeRowKey(prefix, row.key)
		if err != nil {
			return err
		}
		existingVal, ok, err := tx.Get(key)
		if err != nil {
			return err
		}
		if !ok {
			continue
		}
		oldVal, err := decodeRowVal(existingVal, schema.ValCols)
		if err != nil {
			return err
		}
		deleted = append(deleted, rowChange{key: row.key, val: oldVal})
		if err := tx.Delete(key); err != nil {
			return err
		}
	}
	if err := r.fireTriggers(ctx, tx, schema, catalog.OnRm, rows, deleted, depth); err != nil {
		return err
	}
	r.notifyMutation(schema.Name, program.OpRm, rows, deleted)
	return nil
}

// ensureRows asserts presence (wantPresent true) or absence (wantPresent
// false) of every row's key, aborting on the first mismatch; value columns
// are not compared. Neither direction mutates storage or fires triggers.
func ensureRows(tx storage.Tx, prefix []byte, rows []rowChange, wantPresent bool) error {
	for _, row := range rows {
		key, err := encodeRowKey(prefix, row.key)
		if err != nil {
			return err
		}
		_, ok, err := tx.Get(key)
		if err != nil {
			return err
		}
		if wantPresent && !ok {
			return cozoerr.ErrAssertion.New(":ensure found no row at an expected key")
		}
		if !wantPresent && ok {
			return cozoerr.ErrAssertion.New(":ensure_not found a row at a key expected absent")
		}
	}
	return nil
}
