// Package cozo is the programmatic API a database process exposes to every
// binding: open/close, run scripts (single-shot or against an explicit
// transaction), export/import/backup/restore, and the two extension points
// host code can plug into the evaluator through — mutation callbacks and
// named (host-implemented) fixed rules.
//
// Parsing CozoScript text into a program.Program is a binding's job, not
// this package's: everything here consumes already-built programs, the same
// boundary the rest of the engine draws.
package cozo

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/opentracing/opentracing-go"

	"github.com/cozodb/cozo-sub000/catalog"
	"github.com/cozodb/cozo-sub000/cozoerr"
	"github.com/cozodb/cozo-sub000/eval"
	"github.com/cozodb/cozo-sub000/fixedrule"
	"github.com/cozodb/cozo-sub000/internal/log"
	"github.com/cozodb/cozo-sub000/program"
	"github.com/cozodb/cozo-sub000/relalg"
	"github.com/cozodb/cozo-sub000/storage"
	"github.com/cozodb/cozo-sub000/storage/boltkv"
	"github.com/cozodb/cozo-sub000/storage/memkv"
	"github.com/cozodb/cozo-sub000/txn"
)

// Db is one open database: a storage engine, the process-wide catalog of
// stored-relation schemas, the fixed-rule dispatcher, and the bookkeeping
// for running-query cancellation and the two callback extension points.
// Safe for concurrent use from multiple goroutines, the same "independent
// threads against the same database process" model the evaluator assumes.
type Db struct {
	engine     storage.Engine
	catalog    *catalog.Catalog
	fixedRules *fixedrule.Dispatcher
	tracer     opentracing.Tracer
	config     Config

	queriesMu   sync.Mutex
	queries     map[uint64]context.CancelFunc
	nextQueryID uint64

	callbacksMu    sync.Mutex
	callbacks      map[string]map[uint64]chan<- MutationEvent
	nextCallbackID uint64

	closed int32
}

// MutationEvent is delivered to a registered mutation callback's channel
// once per mutation op applied to the relation it was registered against,
// including ones fired by a trigger cascade.
type MutationEvent struct {
	Relation string
	Op       program.MutationOp
	New, Old []relalg.Tuple
}

// Open starts a database backed by the named storage engine. engine is
// "mem" for the in-memory, non-persisted engine (path is ignored), or
// "bolt" for a single bolt file at path. options is decoded into a Config;
// unrecognized keys are ignored.
func Open(engine, path string, options map[string]string) (*Db, error) {
	cfg, err := decodeConfig(options)
	if err != nil {
		return nil, err
	}

	var eng storage.Engine
	switch engine {
	case "mem", "":
		eng = memkv.New()
	case "bolt":
		eng, err = boltkv.Open(path)
		if err != nil {
			return nil, err
		}
	default:
		return nil, cozoerr.ErrValidation.New("unknown storage engine " + engine)
	}

	db := &Db{
		engine:     eng,
		catalog:    catalog.New(),
		fixedRules: fixedrule.New(),
		config:     cfg,
		queries:    map[uint64]context.CancelFunc{},
		callbacks:  map[string]map[uint64]chan<- MutationEvent{},
	}
	log.Component("cozo").WithField("engine", engine).WithField("path", path).
		WithField("tx_mode", eng.Mode()).Info("database opened")
	return db, nil
}

// Close releases the storage engine. Running queries are not implicitly
// cancelled; callers should KillQuery or await them first.
func (db *Db) Close() error {
	if !atomic.CompareAndSwapInt32(&db.closed, 0, 1) {
		return nil
	}
	return db.engine.Close()
}

// Catalog exposes the relation-schema registry so a binding layer can issue
// ::create/::remove/::rename against it directly (those are catalog-only
// ops with no row-level mutation, so they do not need to go through
// RunScript's txn.Runner at all).
func (db *Db) Catalog() *catalog.Catalog { return db.catalog }

// RegisterMutationCallback subscribes to every mutation applied against
// relation (including trigger-fired ones), delivered on a channel buffered
// to capacity. A full channel drops the event rather than blocking the
// mutation that produced it — a slow or absent consumer must not be able to
// stall a write transaction. The returned id is passed to
// UnregisterMutationCallback.
func (db *Db) RegisterMutationCallback(relation string, capacity int) (id uint64, events <-chan MutationEvent) {
	ch := make(chan MutationEvent, capacity)
	db.callbacksMu.Lock()
	defer db.callbacksMu.Unlock()
	db.nextCallbackID++
	id = db.nextCallbackID
	if db.callbacks[relation] == nil {
		db.callbacks[relation] = map[uint64]chan<- MutationEvent{}
	}
	db.callbacks[relation][id] = ch
	return id, ch
}

// UnregisterMutationCallback removes a callback previously returned by
// RegisterMutationCallback. Unknown (relation, id) pairs are a no-op.
func (db *Db) UnregisterMutationCallback(relation string, id uint64) {
	db.callbacksMu.Lock()
	defer db.callbacksMu.Unlock()
	delete(db.callbacks[relation], id)
}

func (db *Db) dispatchMutation(relation string, op program.MutationOp, newRows, oldRows []relalg.Tuple) {
	db.callbacksMu.Lock()
	subs := db.callbacks[relation]
	chans := make([]chan<- MutationEvent, 0, len(subs))
	for _, ch := range subs {
		chans = append(chans, ch)
	}
	db.callbacksMu.Unlock()

	if len(chans) == 0 {
		return
	}
	evt := MutationEvent{Relation: relation, Op: op, New: newRows, Old: oldRows}
	for _, ch := range chans {
		select {
		case ch <- evt:
		default:
			log.Component("cozo").WithField("relation", relation).Warn("mutation callback channel full, dropping event")
		}
	}
}

// RegisterNamedRule lets host code implement a fixed-rule algorithm; arity
// is advisory (the dispatcher does not itself check it, the same way a
// built-in algorithm's output arity is only checked by what the calling
// rule's head expects). A handler that blocks until some external event
// arrives makes the evaluator block that stratum on it, exactly as if it
// were a slow built-in algorithm.
func (db *Db) RegisterNamedRule(name string, arity int, handler fixedrule.Algorithm) {
	db.fixedRules.Register(name, handler)
}

// UnregisterNamedRule removes a previously-registered named rule.
func (db *Db) UnregisterNamedRule(name string) {
	db.fixedRules.Unregister(name)
}

// newRunner builds a txn.Runner wired to this Db's catalog, fixed-rule
// dispatcher, and mutation-callback fan-out.
func (db *Db) newRunner() *txn.Runner {
	return &txn.Runner{
		Catalog:         db.catalog,
		FixedRules:      eval.FixedRuleRunner(db.fixedRules),
		Tracer:          db.tracer,
		MaxTriggerDepth: db.config.MaxTriggerDepth,
		OnMutation:      db.dispatchMutation,
	}
}
