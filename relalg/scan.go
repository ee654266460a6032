package relalg

import (
	"context"

	"github.com/cozodb/cozo-sub000/catalog"
	"github.com/cozodb/cozo-sub000/program"
	"github.com/cozodb/cozo-sub000/storage"
	"github.com/cozodb/cozo-sub000/value"
)

// RuleScan implements the Rule(RuleName) operator: for every environment
// produced by Input, it extends (or filters) the environment against every
// tuple of an already-materialized relation, unifying positionally against
// Args. This is how both the corresponding stored-relation lookups (when
// Stored wraps a scan result instead of going straight to storage) and
// self/mutual-recursive references to another rule's current relation
// compile.
type RuleScan struct {
	Input Operator
	Rel   *Relation
	Args  []program.Symbol
}

func (s *RuleScan) Open(ctx context.Context) (EnvIter, error) {
	in, err := s.Input.Open(ctx)
	if err != nil {
		return nil, err
	}
	return &ruleScanIter{ctx: ctx, in: in, rel: s.Rel, args: s.Args}, nil
}

type ruleScanIter struct {
	ctx     context.Context
	in      EnvIter
	rel     *Relation
	args    []program.Symbol
	cur     Env
	tuplePos int
}

func (it *ruleScanIter) Next(ctx context.Context) (Env, error) {
	for {
		if it.cur == nil {
			e, err := it.in.Next(ctx)
			if err != nil {
				return nil, err
			}
			it.cur = e
			it.tuplePos = 0
		}
		for it.tuplePos < len(it.rel.Tuples) {
			t := it.rel.Tuples[it.tuplePos]
			it.tuplePos++
			if ext, ok := unify(it.cur, it.args, t); ok {
				return ext, nil
			}
		}
		it.cur = nil
	}
}

func (it *ruleScanIter) Close() error { return it.in.Close() }

// unify attempts to extend env with tuple t's columns bound positionally to
// args, rejecting the candidate if a symbol is already bound to a different
// value, or if the same symbol repeats at two argument positions with
// differing tuple values.
func unify(env Env, args []program.Symbol, t Tuple) (Env, bool) {
	ext := env.clone()
	for i, s := range args {
		if s.IsAnonymous() {
			continue
		}
		if existing, ok := ext[s]; ok {
			if !value.Equal(existing, t[i]) {
				return nil, false
			}
			continue
		}
		ext[s] = t[i]
	}
	return ext, true
}

// StoredScan implements the Scan(StoredRelation, prefix?) operator: for
// every environment produced by Input, it range-scans a stored relation
// through tx, restricting to the key-prefix derivable from args already
// bound in the environment (the positions of Schema.KeyCols that line up
// with a bound symbol), and unifies the decoded row's columns against args.
type StoredScan struct {
	Input  Operator
	Tx     storage.Tx
	Schema *catalog.Relation
	RelID  []byte // Schema.KeyPrefix(), cached by the caller across rows
	Args   []program.Symbol
}

func (s *StoredScan) Open(ctx context.Context) (EnvIter, error) {
	in, err := s.Input.Open(ctx)
	if err != nil {
		return nil, err
	}
	return &storedScanIter{ctx: ctx, in: in, s: s}, nil
}

type storedScanIter struct {
	ctx  context.Context
	in   EnvIter
	s    *StoredScan
	cur  Env
	rows []Tuple
	pos  int
}

func (it *storedScanIter) Next(ctx context.Context) (Env, error) {
	for {
		if it.cur == nil {
			e, err := it.in.Next(ctx)
			if err != nil {
				return nil, err
			}
			it.cur = e
			rows, err := it.s.scanRows(e)
			if err != nil {
				return nil, err
			}
			it.rows = rows
			it.pos = 0
		}
		for it.pos < len(it.rows) {
			t := it.rows[it.pos]
			it.pos++
			if ext, ok := unify(it.cur, it.s.Args, t); ok {
				return ext, nil
			}
		}
		it.cur = nil
	}
}

func (it *storedScanIter) Close() error { return it.in.Close() }

// scanRows decodes every stored row reachable under the key-prefix implied
// by env's current bindings over Args against the schema's key columns.
func (s *StoredScan) scanRows(env Env) ([]Tuple, error) {
	cols := s.Schema.AllColumns()
	keyArity := len(s.Schema.KeyCols)

	lower := append([]byte{}, s.RelID...)
	for i := 0; i < keyArity && i < len(s.Args); i++ {
		sym := s.Args[i]
		v, ok := env[sym]
		if !ok {
			break
		}
		enc, err := value.EncodeKey(nil, v)
		if err != nil {
			return nil, err
		}
		lower = append(lower, enc...)
	}
	upper := append([]byte{}, lower...)
	upper = append(upper, 0xff)

	it, err := s.Tx.Range(lower, upper, storage.Forward)
	if err != nil {
		return nil, err
	}
	defer it.Close()

	var out []Tuple
	for it.Next() {
		key := it.Key()
		rowKeyBuf := key[len(s.RelID):]
		vals := make([]value.Value, 0, len(cols))
		rest := rowKeyBuf
		for i := 0; i < keyArity; i++ {
			var v value.Value
			var r []byte
			var err error
			if s.Schema.KeyCols[i].Type == catalog.ColInt {
				v, r, err = value.DecodeKeyAsInt(rest)
			} else {
				v, r, err = value.DecodeKey(rest)
			}
			if err != nil {
				return nil, err
			}
			vals = append(vals, v)
			rest = r
		}
		valRest := it.Value()
		for i := keyArity; i < len(cols); i++ {
			v, r, err := value.DecodeValue(valRest)
			if err != nil {
				return nil, err
			}
			vals = append(vals, v)
			valRest = r
		}
		out = append(out, Tuple(vals))
	}
	if err := it.Err(); err != nil {
		return nil, err
	}
	return out, nil
}
