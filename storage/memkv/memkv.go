// Package memkv implements storage.Engine over a sorted in-memory slice. It
// is the engine named "mem": fast, not persisted, the default for tests.
//
// Conflict detection is optimistic and coarse: a write transaction
// records the keys and ranges it reads, and commit fails with
// cozoerr.ErrTransactionConflict if it read anything and any other
// transaction has committed since its snapshot was taken, whichever keys
// that commit changed. Keys it only wrote are not checked.
package memkv

import (
	"bytes"
	"context"
	"sort"
	"sync"

	"github.com/cozodb/cozo-sub000/cozoerr"
	"github.com/cozodb/cozo-sub000/storage"
)

type entry struct {
	key, val []byte
}

// Engine is an in-memory storage.Engine. The zero value is not usable; use
// New.
type Engine struct {
	mu      sync.Mutex
	entries []entry // sorted by key
	version uint64  // bumped on every successful commit
}

// New returns an empty in-memory engine.
func New() *Engine {
	return &Engine{}
}

func (e *Engine) Close() error { return nil }

func (e *Engine) Mode() storage.TxMode { return storage.Optimistic }

func (e *Engine) Begin(_ context.Context, write bool) (storage.Tx, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	snap := make([]entry, len(e.entries))
	copy(snap, e.entries)
	return &tx{
		engine:      e,
		write:       write,
		baseVersion: e.version,
		snapshot:    snap,
		writes:      map[string][]byte{},
		deletes:     map[string]bool{},
		readSet:     map[string]bool{},
	}, nil
}

func find(entries []entry, key []byte) (int, bool) {
	i := sort.Search(len(entries), func(i int) bool { return bytes.Compare(entries[i].key, key) >= 0 })
	if i < len(entries) && bytes.Equal(entries[i].key, key) {
		return i, true
	}
	return i, false
}

type tx struct {
	engine      *Engine
	write       bool
	baseVersion uint64
	snapshot    []entry

	writes  map[string][]byte
	deletes map[string]bool
	readSet map[string]bool

	done bool
}

func (t *tx) Get(key []byte) ([]byte, bool, error) {
	t.readSet[string(key)] = true
	if v, ok := t.writes[string(key)]; ok {
		return v, true, nil
	}
	if t.deletes[string(key)] {
		return nil, false, nil
	}
	i, ok := find(t.snapshot, key)
	if !ok {
		return nil, false, nil
	}
	return t.snapshot[i].val, true, nil
}

func (t *tx) Put(key, val []byte) error {
	if !t.write {
		return cozoerr.ErrInternal.New("write on a read-only transaction")
	}
	k := string(key)
	t.writes[k] = append([]byte(nil), val...)
	delete(t.deletes, k)
	return nil
}

func (t *tx) Delete(key []byte) error {
	if !t.write {
		return cozoerr.ErrInternal.New("write on a read-only transaction")
	}
	k := string(key)
	t.deletes[k] = true
	delete(t.writes, k)
	return nil
}

func (t *tx) DeleteRange(lower, upper []byte) error {
	it, err := t.Range(lower, upper, storage.Forward)
	if err != nil {
		return err
	}
	defer it.Close()
	var keys [][]byte
	for it.Next() {
		keys = append(keys, append([]byte(nil), it.Key()...))
	}
	if err := it.Err(); err != nil {
		return err
	}
	for _, k := range keys {
		if err := t.Delete(k); err != nil {
			return err
		}
	}
	return nil
}

func (t *tx) Range(lower, upper []byte, dir storage.Direction) (storage.Iterator, error) {
	t.readSet[rangeMark(lower, upper)] = true

	merged := map[string][]byte{}
	for _, e := range t.snapshot {
		if below(e.key, lower, upper) {
			merged[string(e.key)] = e.val
		}
	}
	for k, v := range t.writes {
		if below([]byte(k), lower, upper) {
			merged[k] = v
		}
	}
	for k := range t.deletes {
		delete(merged, k)
	}

	keys := make([]string, 0, len(merged))
	for k := range merged {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	if dir == storage.Backward {
		for i, j := 0, len(keys)-1; i < j; i, j = i+1, j-1 {
			keys[i], keys[j] = keys[j], keys[i]
		}
	}

	entries := make([]entry, 0, len(keys))
	for _, k := range keys {
		entries = append(entries, entry{key: []byte(k), val: merged[k]})
	}
	return &iterator{entries: entries, idx: -1}, nil
}

func below(key, lower, upper []byte) bool {
	if lower != nil && bytes.Compare(key, lower) < 0 {
		return false
	}
	if upper != nil && bytes.Compare(key, upper) >= 0 {
		return false
	}
	return true
}

func rangeMark(lower, upper []byte) string {
	return "range:" + string(lower) + "\x00" + string(upper)
}

func (t *tx) Commit() error {
	if t.done {
		return cozoerr.ErrInternal.New("transaction already closed")
	}
	t.done = true
	if !t.write {
		return nil
	}

	e := t.engine
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.version != t.baseVersion && len(t.readSet) > 0 {
		// Something committed since our snapshot was taken. Optimistic
		// conflict detection: conflict if any key or range this
		// transaction read might have been affected by a concurrent commit.
		// Since we do not track the concurrent transaction's write set
		// after the fact, any overlap between "we read something" and "the
		// store changed under us" is treated conservatively as a conflict;
		// read-only transactions (empty readSet only when nothing was
		// looked at) never conflict.
		return cozoerr.ErrTransactionConflict.New("concurrent commit overlapped this transaction's read set")
	}

	for k := range t.deletes {
		if i, ok := find(e.entries, []byte(k)); ok {
			e.entries = append(e.entries[:i], e.entries[i+1:]...)
		}
	}
	for k, v := range t.writes {
		key := []byte(k)
		if i, ok := find(e.entries, key); ok {
			e.entries[i].val = v
		} else {
			e.entries = append(e.entries, entry{})
			copy(e.entries[i+1:], e.entries[i:])
			e.entries[i] = entry{key: key, val: v}
		}
	}
	e.version++
	return nil
}

func (t *tx) Rollback() error {
	t.done = true
	return nil
}

type iterator struct {
	entries []entry
	idx     int
	err     error
}

func (it *iterator) Next() bool {
	if it.idx+1 >= len(it.entries) {
		return false
	}
	it.idx++
	return true
}

func (it *iterator) Key() []byte   { return it.entries[it.idx].key }
func (it *iterator) Value() []byte { return it.entries[it.idx].val }
func (it *iterator) Err() error    { return it.err }
func (it *iterator) Close() error  { return nil }
