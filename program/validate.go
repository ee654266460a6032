package program

import "github.com/cozodb/cozo-sub000/cozoerr"

// Validate checks safety, negation safety,
// arity consistency, and that the entry rule is not recursively
// referenced. It does not check reserved names. Stratification-specific checks (negation/
// non-monotone aggregation inside a recursive SCC) belong to the stratify
// package, which runs after this passes.
func (p *Program) Validate() error {
	if err := p.checkArityConsistency(); err != nil {
		return err
	}
	for _, r := range p.Rules {
		if err := r.checkSafety(); err != nil {
			return err
		}
	}
	if err := p.checkEntryNotRecursive(); err != nil {
		return err
	}
	return nil
}

// checkArityConsistency ensures every rule sharing a name has the same
// arity and the same aggregation positions.
func (p *Program) checkArityConsistency() error {
	type sig struct {
		arity int
		aggs  []AggOp
	}
	sigs := map[string]sig{}
	for _, r := range p.Rules {
		aggs := make([]AggOp, len(r.Head))
		for i, h := range r.Head {
			aggs[i] = h.Agg
		}
		s := sig{arity: r.Arity(), aggs: aggs}
		if prev, ok := sigs[r.Name]; ok {
			if prev.arity != s.arity {
				return cozoerr.ErrValidation.New("rule " + r.Name + " has inconsistent arity across definitions")
			}
			for i := range prev.aggs {
				if prev.aggs[i] != s.aggs[i] {
					return cozoerr.ErrValidation.New("rule " + r.Name + " has inconsistent aggregation positions across definitions")
				}
			}
		} else {
			sigs[r.Name] = s
		}
	}
	return nil
}

// checkSafety verifies every head variable is bound in every disjunctive
// branch of the body, and that every negated
// atom's variables are bound elsewhere positively in the same conjunction
//.
func (r *Rule) checkSafety() error {
	if r.Kind != Inline {
		return nil
	}
	branches := conjunctionBranches(r.Body)
	for _, branch := range branches {
		bound := boundSymbolsOf(branch)
		for _, h := range r.Head {
			if h.Symbol.IsAnonymous() {
				continue
			}
			if !bound[h.Symbol] {
				return cozoerr.ErrValidation.New("rule " + r.Name + ": head variable " + string(h.Symbol) + " is not bound in every branch")
			}
		}
		if err := checkNegationSafety(branch); err != nil {
			return err
		}
	}
	return nil
}

// conjunctionBranches expands top-level disjunctions into the list of
// conjunctions they represent, combined with the atoms surrounding them, so
// each returned branch is one fully concrete conjunction of atoms.
func conjunctionBranches(body []Atom) [][]Atom {
	branches := [][]Atom{nil}
	for _, a := range body {
		if a.Kind == AtomDisjunction {
			var next [][]Atom
			for _, existing := range branches {
				for _, d := range a.Disjuncts {
					combined := append(append([]Atom{}, existing...), d...)
					next = append(next, combined)
				}
			}
			branches = next
		} else {
			for i := range branches {
				branches[i] = append(branches[i], a)
			}
		}
	}
	return branches
}

func boundSymbolsOf(atoms []Atom) map[Symbol]bool {
	bound := map[Symbol]bool{}
	for _, a := range atoms {
		if a.Kind == AtomNegated {
			continue // negated atoms never bind into the outer scope
		}
		for _, s := range a.BoundSymbols() {
			bound[s] = true
		}
	}
	return bound
}

// checkNegationSafety ensures every variable read by a negated atom is
// bound positively elsewhere in the same conjunction.
func checkNegationSafety(atoms []Atom) error {
	bound := boundSymbolsOf(atoms)
	for _, a := range atoms {
		if a.Kind != AtomNegated {
			continue
		}
		for _, s := range a.Inner.FreeSymbols() {
			if s.IsAnonymous() {
				continue
			}
			if !bound[s] {
				return cozoerr.ErrValidation.New("negated atom references unbound variable " + string(s))
			}
		}
	}
	return nil
}

// checkEntryNotRecursive ensures the entry rule "?" is not part of any
// cycle in the rule-reference graph.
func (p *Program) checkEntryNotRecursive() error {
	reaches := map[string]bool{}
	var visit func(name string, stack map[string]bool) bool
	visit = func(name string, stack map[string]bool) bool {
		if stack[name] {
			return name == EntryRuleName
		}
		stack[name] = true
		defer delete(stack, name)
		for _, r := range p.RulesNamed(name) {
			for _, callee := range calledRuleNames(r.Body) {
				if visit(callee, stack) {
					reaches[name] = true
				}
			}
		}
		return reaches[name]
	}
	if visit(EntryRuleName, map[string]bool{}) {
		return cozoerr.ErrValidation.New("entry rule ? may not be recursively referenced")
	}
	return nil
}

func calledRuleNames(body []Atom) []string {
	var out []string
	for _, a := range body {
		switch a.Kind {
		case AtomRuleApplication, AtomFixedRuleApplication:
			out = append(out, a.RuleName)
		case AtomNegated:
			out = append(out, calledRuleNames([]Atom{*a.Inner})...)
		case AtomDisjunction:
			for _, d := range a.Disjuncts {
				out = append(out, calledRuleNames(d)...)
			}
		}
	}
	return out
}
