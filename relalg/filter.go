package relalg

import (
	"context"

	"github.com/cozodb/cozo-sub000/cozoerr"
	"github.com/cozodb/cozo-sub000/program"
	"github.com/cozodb/cozo-sub000/value"
)

// Filter evaluates Expr against each environment Input produces, passing
// through only those for which it is true.
type Filter struct {
	Input Operator
	Expr  program.Expr
}

func (f *Filter) Open(ctx context.Context) (EnvIter, error) {
	in, err := f.Input.Open(ctx)
	if err != nil {
		return nil, err
	}
	return &filterIter{ctx: ctx, in: in, expr: f.Expr}, nil
}

type filterIter struct {
	ctx  context.Context
	in   EnvIter
	expr program.Expr
}

func (it *filterIter) Next(ctx context.Context) (Env, error) {
	for {
		e, err := it.in.Next(ctx)
		if err != nil {
			return nil, err
		}
		v, err := it.expr.Eval(e)
		if err != nil {
			return nil, err
		}
		if v.Tag == value.TagBool && v.Bool {
			return e, nil
		}
	}
}

func (it *filterIter) Close() error { return it.in.Close() }

// Unify implements the Unify(symbol, expr) operator: if Target is already
// bound, it behaves exactly like Filter(symbol == expr); otherwise it adds
// the binding.
type Unify struct {
	Input  Operator
	Target program.Symbol
	Expr   program.Expr
}

func (u *Unify) Open(ctx context.Context) (EnvIter, error) {
	in, err := u.Input.Open(ctx)
	if err != nil {
		return nil, err
	}
	return &unifyIter{ctx: ctx, in: in, target: u.Target, expr: u.Expr}, nil
}

type unifyIter struct {
	ctx    context.Context
	in     EnvIter
	target program.Symbol
	expr   program.Expr
}

func (it *unifyIter) Next(ctx context.Context) (Env, error) {
	for {
		e, err := it.in.Next(ctx)
		if err != nil {
			return nil, err
		}
		v, err := it.expr.Eval(e)
		if err != nil {
			return nil, err
		}
		if it.target.IsAnonymous() {
			return e, nil
		}
		if existing, ok := e[it.target]; ok {
			if value.Equal(existing, v) {
				return e, nil
			}
			continue
		}
		ext := e.clone()
		ext[it.target] = v
		return ext, nil
	}
}

func (it *unifyIter) Close() error { return it.in.Close() }

// Unnest implements the Unnest(symbol, expr) operator: expr must evaluate
// to a List, and each of its elements produces one output environment with
// Target bound to that element.
type Unnest struct {
	Input  Operator
	Target program.Symbol
	Expr   program.Expr
}

func (u *Unnest) Open(ctx context.Context) (EnvIter, error) {
	in, err := u.Input.Open(ctx)
	if err != nil {
		return nil, err
	}
	return &unnestIter{ctx: ctx, in: in, target: u.Target, expr: u.Expr}, nil
}

type unnestIter struct {
	ctx    context.Context
	in     EnvIter
	target program.Symbol
	expr   program.Expr

	cur  Env
	list []value.Value
	pos  int
}

func (it *unnestIter) Next(ctx context.Context) (Env, error) {
	for {
		for it.pos < len(it.list) {
			elem := it.list[it.pos]
			it.pos++
			ext := it.cur.clone()
			ext[it.target] = elem
			return ext, nil
		}
		e, err := it.in.Next(ctx)
		if err != nil {
			return nil, err
		}
		v, err := it.expr.Eval(e)
		if err != nil {
			return nil, err
		}
		if v.Tag != value.TagList {
			return nil, cozoerr.ErrCoercion.New(v, "List (for unnest)")
		}
		it.cur = e
		it.list = v.List
		it.pos = 0
	}
}

func (it *unnestIter) Close() error { return it.in.Close() }
