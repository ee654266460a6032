// Package fixedrule implements the fixed-rule algorithm registry: named,
// single-operation algorithms, each a `run(inputs, options) -> relation`
// function, that a program's Fixed-kind rules dispatch to instead of
// compiling a Datalog body.
package fixedrule

import (
	"context"
	"sync"

	"github.com/cozodb/cozo-sub000/cozoerr"
	"github.com/cozodb/cozo-sub000/internal/log"
	"github.com/cozodb/cozo-sub000/relalg"
	"github.com/cozodb/cozo-sub000/value"
)

// Algorithm is one fixed rule's implementation: given its resolved input
// relations (in FixedInputs order) and its option expressions evaluated to
// constants, it produces the relation bound to the rule's head. A named
// rule registered by host code (rather than a built-in graph algorithm) is
// an Algorithm too; its Run call simply blocks on whatever the handler does
// to produce a relation, which is how the evaluator's stratum boundary ends
// up blocking on an asynchronous host-side handler without either side
// needing to know that about the other.
type Algorithm func(ctx context.Context, inputs []*relalg.Relation, options map[string]value.Value) (*relalg.Relation, error)

// Dispatcher is the process-wide fixed-rule registry. It implements
// eval.FixedRuleRunner. Safe for concurrent Register/Unregister/Run: queries
// on independent threads may register named rules or run fixed rules at the
// same time.
type Dispatcher struct {
	mu         sync.RWMutex
	algorithms map[string]Algorithm
}

// New returns a Dispatcher pre-registered with every built-in algorithm.
func New() *Dispatcher {
	d := &Dispatcher{algorithms: map[string]Algorithm{}}
	d.Register("Constant", constantAlgorithm)
	d.Register("ShortestPathBFS", shortestPathBFS)
	d.Register("ConnectedComponents", connectedComponents)
	d.Register("PageRank", pageRank)
	return d
}

// Register adds or overrides a named algorithm.
func (d *Dispatcher) Register(name string, alg Algorithm) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.algorithms[name] = alg
}

// Unregister removes a named algorithm, if present.
func (d *Dispatcher) Unregister(name string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	delete(d.algorithms, name)
}

// Run resolves name against the registry and invokes it.
func (d *Dispatcher) Run(ctx context.Context, name string, inputs []*relalg.Relation, options map[string]value.Value) (*relalg.Relation, error) {
	d.mu.RLock()
	alg, ok := d.algorithms[name]
	d.mu.RUnlock()
	if !ok {
		return nil, cozoerr.ErrNotFound.New("fixed rule algorithm " + name)
	}
	log.Component("fixedrule").WithField("algo", name).WithField("inputs", len(inputs)).Debug("running fixed rule")
	return alg(ctx, inputs, options)
}
