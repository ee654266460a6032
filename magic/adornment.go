// Package magic implements the magic-set rewriter: adornment of
// predicates with bound/free argument patterns, and generation of
// supplementary magic/input rules that bound computation to what the goal
// actually needs.
package magic

import (
	"strings"

	"github.com/cozodb/cozo-sub000/program"
)

// Adornment is a per-argument-position bound/free pattern, e.g. "bf" for a
// 2-ary predicate whose first argument is bound and second is free.
type Adornment string

const (
	bound = 'b'
	free  = 'f'
)

func adornmentFor(boundPositions []bool) Adornment {
	b := make([]byte, len(boundPositions))
	for i, bb := range boundPositions {
		if bb {
			b[i] = bound
		} else {
			b[i] = free
		}
	}
	return Adornment(b)
}

// AdornedName is the rule name used for one (name, adornment) pair's
// rewritten copy, e.g. "reachable_bf".
func AdornedName(name string, a Adornment) string {
	if a == "" {
		return name
	}
	return name + "_" + string(a)
}

// MagicName is the name of the magic relation that records the bound
// argument tuples under which name is called with adornment a.
func MagicName(name string, a Adornment) string {
	return "magic_" + AdornedName(name, a)
}

// call records one adorned invocation of a rule name discovered while
// propagating bindings through rule bodies, left to right.
type call struct {
	name string
	adorn Adornment
}

// adornmentPlan is the result of propagating the query's binding pattern
// through the program: which (name, adornment) pairs are actually needed,
// and in what order they were first discovered (for deterministic rewrite
// output).
type adornmentPlan struct {
	needed []call
	seen   map[string]bool
}

func newPlan() *adornmentPlan { return &adornmentPlan{seen: map[string]bool{}} }

func (p *adornmentPlan) add(name string, a Adornment) bool {
	key := name + "\x00" + string(a)
	if p.seen[key] {
		return false
	}
	p.seen[key] = true
	p.needed = append(p.needed, call{name: name, adorn: a})
	return true
}

// Plan computes every (rule name, adornment) pair reachable from the entry
// rule "?", called with all its arguments free (the entry rule has no
// caller to bind its arguments), and returns the adornment of each pair in
// discovery order. The rule names are not part of the result.
func Plan(p *program.Program) []Adornment {
	plan := newPlan()
	entryArity := 0
	for _, r := range p.RulesNamed(program.EntryRuleName) {
		if r.Arity() > entryArity {
			entryArity = r.Arity()
		}
	}
	allFree := make([]bool, entryArity)
	propagate(p, plan, program.EntryRuleName, adornmentFor(allFree))

	out := make([]Adornment, 0, len(plan.needed))
	for _, c := range plan.needed {
		out = append(out, c.adorn)
	}
	return out
}

// propagate walks every definition of name under the given calling
// adornment, discovering further (callee, adornment) pairs by tracking
// which symbols are bound at each point in the body, left to right.
func propagate(p *program.Program, plan *adornmentPlan, name string, a Adornment) {
	if !plan.add(name, a) {
		return
	}
	for _, r := range p.RulesNamed(name) {
		if r.Kind != program.Inline {
			continue
		}
		boundSet := map[program.Symbol]bool{}
		// Seed bound head-argument positions from the calling adornment:
		// the head's binding symbols line up positionally with the
		// adornment's bound/free pattern in the order they're used to call
		// this rule, which (for a rule's own head) is Head.Symbols().
		syms := r.Head.Symbols()
		for i, s := range syms {
			if i < len(a) && a[i] == bound {
				boundSet[s] = true
			}
		}
		walkAndPropagate(p, plan, r.Body, boundSet)
	}
}

func walkAndPropagate(p *program.Program, plan *adornmentPlan, body []program.Atom, boundSet map[program.Symbol]bool) {
	for _, at := range body {
		switch at.Kind {
		case program.AtomRuleApplication:
			calleeA := adornmentFromArgs(at.Args, boundSet)
			propagate(p, plan, at.RuleName, calleeA)
			for _, s := range at.Args {
				boundSet[s] = true
			}
		case program.AtomStoredRelationApplication, program.AtomFixedRuleApplication:
			for _, s := range at.FreeSymbols() {
				boundSet[s] = true
			}
		case program.AtomUnification, program.AtomMultiUnification:
			boundSet[at.Target] = true
		case program.AtomDisjunction:
			for _, d := range at.Disjuncts {
				// Each disjunct is explored with a copy of the current
				// binding set; bindings made inside one disjunct do not
				// leak into the next.
				sub := map[program.Symbol]bool{}
				for k, v := range boundSet {
					sub[k] = v
				}
				walkAndPropagate(p, plan, d, sub)
			}
		case program.AtomNegated:
			if at.Inner != nil {
				// A negated atom only reads; it never binds a new symbol,
				// so its own binding set is explored in a copy rather than
				// the shared one.
				sub := map[program.Symbol]bool{}
				for k, v := range boundSet {
					sub[k] = v
				}
				walkAndPropagate(p, plan, []program.Atom{*at.Inner}, sub)
			}
		}
	}
}

func adornmentFromArgs(args []program.Symbol, boundSet map[program.Symbol]bool) Adornment {
	b := make([]bool, len(args))
	for i, s := range args {
		b[i] = boundSet[s] || s.IsAnonymous()
	}
	return adornmentFor(b)
}

// String renders an adornment for debugging/display, e.g. "bf".
func (a Adornment) String() string { return string(a) }

// BoundPositions returns the argument indices that are bound under a.
func (a Adornment) BoundPositions() []int {
	var out []int
	for i := 0; i < len(a); i++ {
		if a[i] == bound {
			out = append(out, i)
		}
	}
	return out
}

// Pretty renders a human-readable form like "p[b,f]" for logging.
func Pretty(name string, a Adornment) string {
	var sb strings.Builder
	sb.WriteString(name)
	sb.WriteByte('[')
	for i, c := range a {
		if i > 0 {
			sb.WriteByte(',')
		}
		sb.WriteByte(byte(c))
	}
	sb.WriteByte(']')
	return sb.String()
}
