package magic

import (
	"github.com/cozodb/cozo-sub000/program"
)

// magicColumns returns the symbols occupying the bound positions of a,
// positionally aligned with args — these are exactly the columns of the
// magic relation for (name, a).
func magicColumns(a Adornment, args []program.Symbol) []program.Symbol {
	var out []program.Symbol
	for _, i := range a.BoundPositions() {
		if i < len(args) {
			out = append(out, args[i])
		}
	}
	return out
}

func headFromSymbols(syms []program.Symbol) program.Head {
	h := make(program.Head, len(syms))
	for i, s := range syms {
		h[i] = program.HeadEntry{Symbol: s}
	}
	return h
}

// Rewrite performs the magic-set transformation: it computes
// the adornments reachable from "?" (propagating bound/free argument
// patterns left to right through rule bodies), generates one adorned copy
// of each rule needed under each reachable adornment, and for every
// positive reference from an adorned rule's body to another IDB rule,
// both (a) inserts that callee's magic atom immediately before the call (gating the
// callee's own evaluation to bound-argument tuples actually needed) and
// (b) emits a rule definition for the callee's magic relation itself, whose
// body is the call site's prefix — the atoms of the caller that run before
// the call, which is exactly the set of bindings that reach it.
//
// "?" is always called with every argument free (it has no caller), so its
// own adornment is the identity (all "f") and it is never itself
// magic-gated; it is the seed that drives everything reachable from it.
//
// The rewritten program is deterministic and re-enters stratification
// unchanged: the caller is expected to call stratify.Stratify
// on the result.
func Rewrite(p *program.Program) *program.Program {
	entryArity := 0
	for _, r := range p.RulesNamed(program.EntryRuleName) {
		if r.Arity() > entryArity {
			entryArity = r.Arity()
		}
	}
	allFree := adornmentFor(make([]bool, entryArity))

	plan := newPlan()
	propagate(p, plan, program.EntryRuleName, allFree)

	out := &program.Program{
		Options:      p.Options,
		MutationOp:   p.MutationOp,
		MutationRel:  p.MutationRel,
		MutationCols: p.MutationCols,
	}

	for _, c := range plan.needed {
		defs := p.RulesNamed(c.name)
		for _, r := range defs {
			if r.Kind != program.Inline {
				// Fixed and Constant rules are not adorned or magic-gated:
				// each fixed rule is already its own stratum
				// and runs to completion regardless of how its result is
				// consumed downstream.
				out.Rules = append(out.Rules, r)
				continue
			}
			adorned, magicDefs := adornRule(r, c.adorn)
			out.Rules = append(out.Rules, adorned)
			out.Rules = append(out.Rules, magicDefs...)
		}
	}

	return out
}

// adornRule produces one rewritten copy of r under adornment a, plus every
// magic-relation rule definition discovered at r's call sites.
func adornRule(r *program.Rule, a Adornment) (*program.Rule, []*program.Rule) {
	// The entry rule is never called from anywhere else in the program (its
	// name is reserved and only ever looked up by callers of Rewrite itself),
	// so unlike every other adorned rule it keeps its original name rather
	// than being renamed to an adornment-qualified one.
	adornedName := r.Name
	if r.Name != program.EntryRuleName {
		adornedName = AdornedName(r.Name, a)
	}
	syms := r.Head.Symbols()
	ownMagicCols := magicColumns(a, syms)

	newBody := make([]program.Atom, 0, len(r.Body)+1)
	if len(ownMagicCols) > 0 {
		newBody = append(newBody, program.Atom{
			Kind:     program.AtomRuleApplication,
			RuleName: MagicName(r.Name, a),
			Args:     ownMagicCols,
		})
	}

	boundSet := map[program.Symbol]bool{}
	for i, s := range syms {
		if i < len(a) && a[i] == bound {
			boundSet[s] = true
		}
	}

	gated, magicDefs := gateBody(r.Body, boundSet, newBody)

	return &program.Rule{
		Name: adornedName,
		Kind: r.Kind,
		Head: r.Head,
		Body: gated,
	}, magicDefs
}

// gateRuleApplication computes one call site's adorned rewrite: the renamed
// atom plus, when the callee has any bound argument position, the magic
// atom that must run before it and the rule definition supplying that magic
// relation's rows (prefix is the atoms already established at this call
// site — exactly the bindings that reach the call).
func gateRuleApplication(at program.Atom, bound map[program.Symbol]bool, prefix []program.Atom) (renamed program.Atom, magicAtom *program.Atom, magicDef *program.Rule) {
	calleeAdorn := adornmentFromArgs(at.Args, bound)
	renamed = program.Atom{
		Kind:     program.AtomRuleApplication,
		RuleName: AdornedName(at.RuleName, calleeAdorn),
		Args:     at.Args,
	}
	magicCols := magicColumns(calleeAdorn, at.Args)
	if len(magicCols) == 0 {
		return renamed, nil, nil
	}
	magicDef = &program.Rule{
		Name: MagicName(at.RuleName, calleeAdorn),
		Kind: program.Inline,
		Head: headFromSymbols(magicCols),
		Body: append([]program.Atom{}, prefix...),
	}
	atom := program.Atom{
		Kind:     program.AtomRuleApplication,
		RuleName: MagicName(at.RuleName, calleeAdorn),
		Args:     magicCols,
	}
	return renamed, &atom, magicDef
}

// gateDisjunction rewrites each of at's disjuncts independently (the same
// way propagate explores them: a copy of the caller's bound set per
// disjunct, none of it leaking to the next), returning a Disjunction atom
// whose branches are gated.
func gateDisjunction(at program.Atom, bound map[program.Symbol]bool, prefix []program.Atom) (program.Atom, []*program.Rule) {
	newDisjuncts := make([][]program.Atom, len(at.Disjuncts))
	var magicDefs []*program.Rule
	for i, d := range at.Disjuncts {
		sub := map[program.Symbol]bool{}
		for k, v := range bound {
			sub[k] = v
		}
		gatedD, defs := gateBody(d, sub, prefix)
		newDisjuncts[i] = gatedD[len(prefix):]
		magicDefs = append(magicDefs, defs...)
	}
	return program.Atom{Kind: program.AtomDisjunction, Disjuncts: newDisjuncts}, magicDefs
}

// gateBody rewrites a rule body so every positive rule-application atom
// (including one wrapped in negation, or nested inside a disjunct) is
// preceded by its own magic atom and renamed to its adorned copy, and
// collects, for each such callee, a rule definition for its magic relation
// whose body is the prefix of atoms already established at that call site.
//
// prefix is the atoms already placed in the rewritten body before body's
// first element (e.g. the rule's own magic-gate atom); it seeds the
// running "atoms so far" list that each generated magic-rule body copies.
func gateBody(body []program.Atom, boundSet map[program.Symbol]bool, prefix []program.Atom) ([]program.Atom, []*program.Rule) {
	out := append([]program.Atom{}, prefix...)
	bound := map[program.Symbol]bool{}
	for k, v := range boundSet {
		bound[k] = v
	}
	var magicDefs []*program.Rule

	for _, at := range body {
		switch at.Kind {
		case program.AtomRuleApplication:
			renamed, magicAtom, magicDef := gateRuleApplication(at, bound, out)
			if magicAtom != nil {
				out = append(out, *magicAtom)
				magicDefs = append(magicDefs, magicDef)
			}
			out = append(out, renamed)
			for _, s := range at.Args {
				bound[s] = true
			}
		case program.AtomNegated:
			switch {
			case at.Inner != nil && at.Inner.Kind == program.AtomRuleApplication:
				renamedInner, magicAtom, magicDef := gateRuleApplication(*at.Inner, bound, out)
				if magicAtom != nil {
					out = append(out, *magicAtom)
					magicDefs = append(magicDefs, magicDef)
				}
				out = append(out, program.Atom{Kind: program.AtomNegated, Inner: &renamedInner})
			case at.Inner != nil && at.Inner.Kind == program.AtomDisjunction:
				gatedDisj, defs := gateDisjunction(*at.Inner, bound, out)
				magicDefs = append(magicDefs, defs...)
				out = append(out, program.Atom{Kind: program.AtomNegated, Inner: &gatedDisj})
			default:
				out = append(out, at)
			}
			// A negated atom never binds a new symbol for what follows.
		case program.AtomDisjunction:
			gatedDisj, defs := gateDisjunction(at, bound, out)
			magicDefs = append(magicDefs, defs...)
			out = append(out, gatedDisj)
		default:
			out = append(out, at)
			for _, s := range at.BoundSymbols() {
				bound[s] = true
			}
		}
	}
	return out, magicDefs
}
