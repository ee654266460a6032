package relalg

import (
	"context"
	"io"
)

// Union concatenates every Input's environments in turn, preserving
// duplicates (bag semantics): the way a disjunction's branches, or a rule
// name's several separately-defined clauses, are combined before set
// semantics is enforced at the rule boundary by Materialize, or before
// Aggregate reads its bag input.
type Union struct {
	Inputs []Operator
}

func (u *Union) Open(ctx context.Context) (EnvIter, error) {
	return &unionIter{inputs: u.Inputs}, nil
}

type unionIter struct {
	inputs []Operator
	cur    EnvIter
	idx    int
}

func (it *unionIter) Next(ctx context.Context) (Env, error) {
	for {
		if it.cur == nil {
			if it.idx >= len(it.inputs) {
				return nil, io.EOF
			}
			next, err := it.inputs[it.idx].Open(ctx)
			if err != nil {
				return nil, err
			}
			it.idx++
			it.cur = next
		}
		e, err := it.cur.Next(ctx)
		if err == io.EOF {
			it.cur.Close()
			it.cur = nil
			continue
		}
		if err != nil {
			return nil, err
		}
		return e, nil
	}
}

func (it *unionIter) Close() error {
	if it.cur != nil {
		return it.cur.Close()
	}
	return nil
}
