package relalg

import "github.com/cozodb/cozo-sub000/program"
import "github.com/cozodb/cozo-sub000/value"

// Env is a partial binding environment produced while evaluating a rule
// body: a map from bound symbol to its current value.
type Env map[program.Symbol]value.Value

// clone returns a shallow copy of e, used whenever an operator needs to
// extend bindings without mutating the environment a sibling branch (e.g.
// a disjunct, or the next candidate row of a join's probe side) still
// holds a reference to.
func (e Env) clone() Env {
	out := make(Env, len(e)+1)
	for k, v := range e {
		out[k] = v
	}
	return out
}

// Project reads out cols in order, producing a Tuple suitable for
// materialization. Missing columns (should not happen for a safe rule) read
// as Null.
func (e Env) Project(cols []program.Symbol) Tuple {
	t := make(Tuple, len(cols))
	for i, c := range cols {
		if v, ok := e[c]; ok {
			t[i] = v
		} else {
			t[i] = value.Null()
		}
	}
	return t
}
