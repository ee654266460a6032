package relalg

import (
	"context"
	"io"

	"github.com/cozodb/cozo-sub000/value"
)

// JoinKind distinguishes the join shapes a rule body compiles to.
type JoinKind int

const (
	Inner JoinKind = iota
	AntiSemi
)

// Join drains Right into a slice once, then for each environment of Left
// scans every Right environment, combining results that agree on every
// shared symbol. It is a nested-loop join: no hash table is built.
type Join struct {
	Left, Right Operator
	Kind        JoinKind
}

func (j *Join) Open(ctx context.Context) (EnvIter, error) {
	return openHashJoin(ctx, j)
}

func openHashJoin(ctx context.Context, j *Join) (EnvIter, error) {
	rightEnvs, err := drain(ctx, j.Right)
	if err != nil {
		return nil, err
	}
	leftIt, err := j.Left.Open(ctx)
	if err != nil {
		return nil, err
	}
	return &hashJoinIter{ctx: ctx, left: leftIt, right: rightEnvs, kind: j.Kind}, nil
}

func drain(ctx context.Context, op Operator) ([]Env, error) {
	it, err := op.Open(ctx)
	if err != nil {
		return nil, err
	}
	defer it.Close()
	var out []Env
	for {
		e, err := it.Next(ctx)
		if err == io.EOF {
			return out, nil
		}
		if err != nil {
			return nil, err
		}
		out = append(out, e)
	}
}

type hashJoinIter struct {
	ctx   context.Context
	left  EnvIter
	right []Env
	kind  JoinKind

	cur      Env
	rightPos int
	curMatched bool
}

func (it *hashJoinIter) Next(ctx context.Context) (Env, error) {
	for {
		if it.cur == nil {
			e, err := it.left.Next(ctx)
			if err != nil {
				return nil, err
			}
			it.cur = e
			it.rightPos = 0
			it.curMatched = false
		}
		for it.rightPos < len(it.right) {
			r := it.right[it.rightPos]
			it.rightPos++
			ext, ok := mergeEnv(it.cur, r)
			if !ok {
				continue
			}
			switch it.kind {
			case AntiSemi:
				it.curMatched = true
				// AntiSemi never emits here; a match disqualifies it.left's
				// current row, discovered once probing is exhausted below.
				continue
			default:
				it.curMatched = true
				return ext, nil
			}
		}
		// Right side exhausted for this left row.
		exhausted := it.cur
		it.cur = nil
		if it.kind == AntiSemi && !it.curMatched {
			return exhausted, nil
		}
	}
}

func (it *hashJoinIter) Close() error { return it.left.Close() }

// mergeEnv combines a and b, requiring agreement on every symbol bound in
// both.
func mergeEnv(a, b Env) (Env, bool) {
	out := a.clone()
	for k, v := range b {
		if existing, ok := out[k]; ok {
			if !value.Equal(existing, v) {
				return nil, false
			}
			continue
		}
		out[k] = v
	}
	return out, true
}
