// Package stratify builds the rule dependency graph and computes strata via
// strongly-connected-component condensation. Nodes are addressed by integer
// index into a slice, so the graph (and its cycles) never needs
// shared-owning pointers.
package stratify

import (
	"sort"

	"github.com/cozodb/cozo-sub000/cozoerr"
	"github.com/cozodb/cozo-sub000/program"
)

// EdgeKind classifies a dependency edge for the stratification rule: an edge
// is negative if the reference sits under negation, and aggregation-carrying
// if the referencing rule's head aggregates its result non-monotonically, or
// the reference itself sits under a non-monotone aggregation.
type EdgeKind int

const (
	Positive EdgeKind = iota
	Negative
	NonMonotoneAgg
)

type edge struct {
	to   int
	kind EdgeKind
}

// Graph is the rule-reference graph: nodes are distinct rule names
// (addressed by index), edges record every reference from one rule's body
// to another rule name.
type Graph struct {
	names   []string
	index   map[string]int
	edges   [][]edge // edges[i] = outgoing edges from node i
}

// Build constructs the dependency graph of p: one node per distinct rule
// name, one edge per atom in a rule's body that references another rule
// name.
func Build(p *program.Program) *Graph {
	g := &Graph{index: map[string]int{}}
	for _, name := range p.Names() {
		g.index[name] = len(g.names)
		g.names = append(g.names, name)
	}
	g.edges = make([][]edge, len(g.names))

	for _, r := range p.Rules {
		from := g.index[r.Name]
		headAggregates := headHasAggregation(r.Head)
		walkBody(r.Body, false, func(calleeName string, negated, underNonMonotoneAgg bool) {
			to, ok := g.index[calleeName]
			if !ok {
				return
			}
			kind := Positive
			switch {
			case negated:
				kind = Negative
			case headAggregates && !aggAtHeadIsMeet(r.Head):
				kind = NonMonotoneAgg
			case underNonMonotoneAgg:
				kind = NonMonotoneAgg
			}
			g.edges[from] = append(g.edges[from], edge{to: to, kind: kind})
		})

		// A fixed rule's inputs are named relations, not body atoms, so they
		// never surface through walkBody; a fixed rule always runs to
		// completion in one pass, so an edge to one of its inputs is positive
		// regardless of how that input's own head aggregates.
		if r.Kind == program.Fixed {
			for _, inputName := range r.FixedInputs {
				if to, ok := g.index[inputName]; ok {
					g.edges[from] = append(g.edges[from], edge{to: to, kind: Positive})
				}
			}
		}
	}
	return g
}

func headHasAggregation(h program.Head) bool {
	for _, e := range h {
		if e.IsAggregated() {
			return true
		}
	}
	return false
}

func aggAtHeadIsMeet(h program.Head) bool {
	for _, e := range h {
		if e.IsAggregated() && !e.Agg.IsMeet() {
			return false
		}
	}
	return true
}

// walkBody visits every rule/fixed-rule-application atom in body (including
// inside negation and disjunction), reporting whether each reference sits
// under negation or under a non-monotone aggregation context. Fixed-rule
// applications are not added as graph edges by the caller unless their name
// resolves to another program rule (a fixed rule's named inputs may also be
// ordinary relations or other rules).
func walkBody(body []program.Atom, underNonMonotoneAgg bool, visit func(name string, negated, underNonMonotoneAgg bool)) {
	for _, a := range body {
		switch a.Kind {
		case program.AtomRuleApplication, program.AtomFixedRuleApplication:
			visit(a.RuleName, false, underNonMonotoneAgg)
		case program.AtomNegated:
			walkBody([]program.Atom{*a.Inner}, underNonMonotoneAgg, func(name string, _ bool, agg bool) {
				visit(name, true, agg)
			})
		case program.AtomDisjunction:
			for _, d := range a.Disjuncts {
				walkBody(d, underNonMonotoneAgg, visit)
			}
		}
	}
}

// SCCs computes the graph's strongly-connected components via Tarjan's
// algorithm and returns them as lists of node indices, in the order
// Tarjan's algorithm closes them. Edges point from a rule to the rules it
// references, so that order is dependency-first: every component comes
// after each component it references.
func (g *Graph) SCCs() [][]int {
	index := make([]int, len(g.names))
	lowlink := make([]int, len(g.names))
	onStack := make([]bool, len(g.names))
	for i := range index {
		index[i] = -1
	}
	var stack []int
	var counter int
	var order [][]int

	var strongconnect func(v int)
	strongconnect = func(v int) {
		index[v] = counter
		lowlink[v] = counter
		counter++
		stack = append(stack, v)
		onStack[v] = true

		for _, e := range g.edges[v] {
			w := e.to
			if index[w] == -1 {
				strongconnect(w)
				if lowlink[w] < lowlink[v] {
					lowlink[v] = lowlink[w]
				}
			} else if onStack[w] {
				if index[w] < lowlink[v] {
					lowlink[v] = index[w]
				}
			}
		}

		if lowlink[v] == index[v] {
			var component []int
			for {
				n := len(stack) - 1
				w := stack[n]
				stack = stack[:n]
				onStack[w] = false
				component = append(component, w)
				if w == v {
					break
				}
			}
			order = append(order, component)
		}
	}

	for v := range g.names {
		if index[v] == -1 {
			strongconnect(v)
		}
	}

	// A component only closes once every component it depends on (reachable
	// via a tree edge) has already closed, so Tarjan's output order is
	// already dependency-first: callees appear before callers, which is
	// exactly the evaluation order strata need.
	return order
}

// Stratum is one maximal set of rules evaluated to a joint fixpoint before
// the next stratum begins.
type Stratum struct {
	RuleNames []string
	Recursive bool // true if this stratum has more than one node or a self-loop
}

// Stratify validates the no-negative/non-monotone-edge-inside-an-SCC rule
// and returns the resulting strata in evaluation order.
func Stratify(p *program.Program) ([]Stratum, error) {
	g := Build(p)
	sccs := g.SCCs()

	nodeInComponent := make([]int, len(g.names))
	for ci, comp := range sccs {
		for _, n := range comp {
			nodeInComponent[n] = ci
		}
	}

	strata := make([]Stratum, 0, len(sccs))
	for ci, comp := range sccs {
		recursive := len(comp) > 1
		if len(comp) == 1 {
			n := comp[0]
			for _, e := range g.edges[n] {
				if e.to == n {
					recursive = true
				}
			}
		}

		if recursive {
			members := map[int]bool{}
			for _, n := range comp {
				members[n] = true
			}
			for _, n := range comp {
				for _, e := range g.edges[n] {
					if !members[e.to] {
						continue // edge leaves the component, governed by stratum ordering instead
					}
					if e.kind != Positive {
						return nil, cozoerr.ErrStratification.New("recursive component containing " + g.names[n] + " has a negative or non-monotone edge")
					}
				}
			}
		}

		names := make([]string, len(comp))
		for i, n := range comp {
			names[i] = g.names[n]
		}
		sort.Strings(names) // deterministic order within a stratum's name listing
		strata = append(strata, Stratum{RuleNames: names, Recursive: recursive})
		_ = ci
	}
	return strata, nil
}
