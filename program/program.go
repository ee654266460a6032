// Package program models a parsed CozoScript program: rules, atoms, heads,
// and aggregations. The
// parser/AST is out of scope; this package is the data model the
// rest of the engine consumes, modeled as an arena of rule nodes addressed
// by name.
package program

import "github.com/cozodb/cozo-sub000/value"

// Symbol is a bound or binding variable name. Reserved symbols start with
// "_" (anonymous, never bound into the head) or "?" (the entry rule name
// when used as a rule name, not a variable).
type Symbol string

// IsAnonymous reports whether s is the "_"-prefixed wildcard convention.
func (s Symbol) IsAnonymous() bool { return len(s) > 0 && s[0] == '_' }

// EntryRuleName is the reserved name of the query's entry rule.
const EntryRuleName = "?"

// AggOp names a head-position aggregation operator.
type AggOp string

const (
	AggMin          AggOp = "min"
	AggMax          AggOp = "max"
	AggAnd          AggOp = "and"
	AggOr           AggOp = "or"
	AggUnion        AggOp = "union"
	AggIntersection AggOp = "intersection"
	AggChoice       AggOp = "choice"
	AggChoiceLast   AggOp = "choice_last"
	AggMinCost      AggOp = "min_cost"
	AggShortest     AggOp = "shortest"
	AggCoalesce     AggOp = "coalesce"
	AggBitAnd       AggOp = "bit_and"
	AggBitOr        AggOp = "bit_or"

	AggCount      AggOp = "count"
	AggSum        AggOp = "sum"
	AggMean       AggOp = "mean"
	AggCollect    AggOp = "collect"
	AggGroupCount AggOp = "group_count"
	AggVariance   AggOp = "variance"
	AggStdDev     AggOp = "std_dev"
	AggBitXor     AggOp = "bit_xor"
	AggLatestBy   AggOp = "latest_by"
	AggChoiceRand AggOp = "choice_rand"
)

// meetOps is the set of aggregations whose binary merge is idempotent,
// commutative, associative, and monotone,
// and are therefore safe to use inside a recursive stratum.
var meetOps = map[AggOp]bool{
	AggMin: true, AggMax: true, AggAnd: true, AggOr: true,
	AggUnion: true, AggIntersection: true, AggChoice: true, AggChoiceLast: true,
	AggMinCost: true, AggShortest: true, AggCoalesce: true,
	AggBitAnd: true, AggBitOr: true,
}

// IsMeet reports whether op is a meet-aggregation (safe inside recursion).
func (op AggOp) IsMeet() bool { return meetOps[op] }

// HeadEntry is one position of a rule head: either a plain binding symbol,
// or an aggregation application over a binding.
type HeadEntry struct {
	Symbol Symbol
	Agg    AggOp // empty string if this entry carries no aggregation
}

func (h HeadEntry) IsAggregated() bool { return h.Agg != "" }

// Head is the ordered list of a rule's head entries.
type Head []HeadEntry

// Symbols returns the head's binding symbols in order, ignoring
// aggregation annotations.
func (h Head) Symbols() []Symbol {
	out := make([]Symbol, len(h))
	for i, e := range h {
		out[i] = e.Symbol
	}
	return out
}

// BindMode distinguishes positional from named stored-relation argument
// binding.
type BindMode int

const (
	Positional BindMode = iota
	Named
)

// Atom is one unit of a rule body. Exactly one of the concrete
// fields below is populated, discriminated by Kind, a tagged-union pattern
// used throughout this engine in place of Go generics-based sum types.
type AtomKind int

const (
	AtomRuleApplication AtomKind = iota
	AtomStoredRelationApplication
	AtomFixedRuleApplication
	AtomExpression
	AtomUnification
	AtomMultiUnification
	AtomNegated
	AtomDisjunction
)

// Expr is a placeholder for an expression tree. Expression evaluation is a
// concern of the relalg layer; the program model only needs to know which
// symbols an expression reads and a way to evaluate it given a binding
// environment, captured by this narrow interface so program stays free of
// an expression-AST dependency.
type Expr interface {
	// FreeSymbols returns every symbol the expression reads.
	FreeSymbols() []Symbol
	// Eval evaluates the expression given a binding environment.
	Eval(env map[Symbol]value.Value) (value.Value, error)
	String() string
}

// Atom is one conjunct (or disjunct-of-conjuncts) in a rule body.
type Atom struct {
	Kind AtomKind

	// AtomRuleApplication / AtomFixedRuleApplication
	RuleName string
	Args     []Symbol

	// AtomStoredRelationApplication
	RelName  string
	BindMode BindMode
	// NamedArgs maps column name -> symbol for Named bind mode; Args is
	// used positionally for Positional bind mode.
	NamedArgs map[string]Symbol

	// AtomExpression / AtomUnification / AtomMultiUnification
	Target Symbol // unification/multi-unification binding target
	Expr   Expr

	// AtomNegated
	Inner *Atom

	// AtomDisjunction: list of conjunctions (each a slice of atoms), unioned
	// at materialization.
	Disjuncts [][]Atom
}

// FreeSymbols returns every symbol this atom reads (not binds), used by
// safety checking and negation-safety checking.
func (a Atom) FreeSymbols() []Symbol {
	switch a.Kind {
	case AtomRuleApplication, AtomFixedRuleApplication:
		return a.Args
	case AtomStoredRelationApplication:
		if a.BindMode == Named {
			out := make([]Symbol, 0, len(a.NamedArgs))
			for _, s := range a.NamedArgs {
				out = append(out, s)
			}
			return out
		}
		return a.Args
	case AtomExpression:
		return a.Expr.FreeSymbols()
	case AtomUnification, AtomMultiUnification:
		return a.Expr.FreeSymbols()
	case AtomNegated:
		return a.Inner.FreeSymbols()
	case AtomDisjunction:
		var out []Symbol
		for _, conj := range a.Disjuncts {
			for _, at := range conj {
				out = append(out, at.FreeSymbols()...)
			}
		}
		return out
	default:
		return nil
	}
}

// BoundSymbols returns symbols this atom binds in a conjunction context
// (i.e. the symbols it introduces into scope for atoms after it), used by
// the safety checker. Note this is positional/named-arg symbols for rule and
// stored-relation applications too: whether a given occurrence is a "bind"
// or a "read" of an already-bound symbol depends on the atoms before it in
// the conjunction, which the validator tracks; BoundSymbols reports the
// symbols an atom is *capable* of binding.
func (a Atom) BoundSymbols() []Symbol {
	switch a.Kind {
	case AtomRuleApplication, AtomFixedRuleApplication, AtomStoredRelationApplication:
		return a.FreeSymbols()
	case AtomUnification:
		return []Symbol{a.Target}
	case AtomMultiUnification:
		return []Symbol{a.Target}
	default:
		return nil
	}
}

// RuleKind distinguishes inline Datalog rules from fixed-rule invocations
// and constant sugar.
type RuleKind int

const (
	Inline RuleKind = iota
	Fixed
	Constant
)

// Rule is one (name, head, body) definition. A rule name may have multiple
// Rule definitions (disjuncts via separate clauses, or recursive
// definitions); arity and aggregation positions must agree across all of
// them.
type Rule struct {
	Name string
	Kind RuleKind
	Head Head
	Body []Atom

	// FixedRuleName/FixedOptions are populated when Kind == Fixed.
	FixedRuleName string
	FixedInputs   []string // names of input relations (rule or stored)
	FixedOptions  map[string]Expr

	// ConstantRows is populated when Kind == Constant.
	ConstantRows [][]value.Value
}

// Arity returns the rule's head width.
func (r *Rule) Arity() int { return len(r.Head) }

// QueryOptions carries the post-processing and control options attached to
// a program.
type QueryOptions struct {
	Limit    *int64
	Offset   *int64
	SortKeys []SortKey
	TimeoutS *float64
	SleepS   *float64
	AssertOp AssertOp // AssertNone, AssertSome, or AssertNoneSet (no assertion)

	// AllowProtectedWrite lets this query's mutation op touch a Protected
	// relation; without it, Protected behaves like ReadOnly.
	AllowProtectedWrite bool
}

type SortKey struct {
	Symbol Symbol
	Desc   bool
}

type AssertOp int

const (
	AssertNoneSet AssertOp = iota
	AssertNone
	AssertSome
)

// MutationOp names the stored-relation mutation op a query applies its
// entry relation with.
type MutationOp int

const (
	NoMutation MutationOp = iota
	OpCreate
	OpReplace
	OpPut
	OpEnsure
	OpEnsureNot
	OpRm
)

// Program is an ordered list of rules plus query options. The
// entry rule is named "?".
type Program struct {
	Rules   []*Rule
	Options QueryOptions

	MutationOp   MutationOp
	MutationRel  string
	MutationCols []Symbol // head-symbol -> target-column binding order
}

// RulesNamed returns every rule definition sharing name, in program order.
func (p *Program) RulesNamed(name string) []*Rule {
	var out []*Rule
	for _, r := range p.Rules {
		if r.Name == name {
			out = append(out, r)
		}
	}
	return out
}

// Names returns the distinct set of rule names defined in the program, in
// first-appearance order.
func (p *Program) Names() []string {
	seen := map[string]bool{}
	var out []string
	for _, r := range p.Rules {
		if !seen[r.Name] {
			seen[r.Name] = true
			out = append(out, r.Name)
		}
	}
	return out
}
