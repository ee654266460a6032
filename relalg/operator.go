package relalg

import (
	"context"
	"io"

	"github.com/cozodb/cozo-sub000/program"
)

// EnvIter is a pull iterator over binding environments, mirroring the
// row-iterator convention used throughout this codebase: Next returns
// io.EOF once exhausted, and Close must be called (including after io.EOF)
// to release any held resources (an open storage.Iterator, most commonly).
type EnvIter interface {
	Next(ctx context.Context) (Env, error)
	Close() error
}

// Operator is one node of a rule body's compiled operator tree.
type Operator interface {
	Open(ctx context.Context) (EnvIter, error)
}

// sliceIter adapts a pre-computed slice of Env into an EnvIter, the base
// case most operators eventually bottom out on (a materialized Relation, or
// a single-tuple seed for the empty conjunction).
type sliceIter struct {
	envs []Env
	pos  int
}

func (it *sliceIter) Next(ctx context.Context) (Env, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if it.pos >= len(it.envs) {
		return nil, io.EOF
	}
	e := it.envs[it.pos]
	it.pos++
	return e, nil
}

func (it *sliceIter) Close() error { return nil }

// Materialize drains op into a new Relation over cols, applying
// set-semantics dedup as each tuple is projected and inserted.
func Materialize(ctx context.Context, op Operator, cols []program.Symbol) (*Relation, error) {
	rel := New(cols)
	it, err := op.Open(ctx)
	if err != nil {
		return nil, err
	}
	defer it.Close()
	for {
		env, err := it.Next(ctx)
		if err == io.EOF {
			return rel, nil
		}
		if err != nil {
			return nil, err
		}
		if _, err := rel.Insert(env.Project(cols)); err != nil {
			return nil, err
		}
	}
}

// Seed is the identity operator for the empty conjunction: one environment
// with no bindings, matched exactly once. Every rule body compiles starting
// from Seed and threads bindings through the chain of operators after it.
type Seed struct{}

func (Seed) Open(ctx context.Context) (EnvIter, error) {
	return &sliceIter{envs: []Env{{}}}, nil
}
