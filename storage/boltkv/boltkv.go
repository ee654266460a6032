// Package boltkv implements storage.Engine on top of github.com/boltdb/bolt,
// a disk-backed embedded single-file store suitable for a persisted engine.
//
// All stored-relation rows live in one bolt bucket; bolt's own
// single-writer/multi-reader transaction model gives us snapshot isolation
// for free, so this engine runs in Pessimistic mode: a write transaction
// takes bolt's single write lock up front rather than detecting conflicts
// after the fact.
package boltkv

import (
	"bytes"
	"context"

	bolt "github.com/boltdb/bolt"

	"github.com/cozodb/cozo-sub000/cozoerr"
	"github.com/cozodb/cozo-sub000/storage"
)

var rootBucket = []byte("cozo")

// Engine wraps a single bolt.DB file.
type Engine struct {
	db *bolt.DB
}

// Open opens (creating if necessary) a bolt-backed engine at path.
func Open(path string) (*Engine, error) {
	db, err := bolt.Open(path, 0600, nil)
	if err != nil {
		return nil, cozoerr.ErrStorage.New("opening bolt file: " + err.Error())
	}
	err = db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(rootBucket)
		return err
	})
	if err != nil {
		return nil, cozoerr.ErrStorage.New("initializing bucket: " + err.Error())
	}
	return &Engine{db: db}, nil
}

func (e *Engine) Close() error {
	if err := e.db.Close(); err != nil {
		return cozoerr.ErrStorage.New(err.Error())
	}
	return nil
}

func (e *Engine) Mode() storage.TxMode { return storage.Pessimistic }

func (e *Engine) Begin(_ context.Context, write bool) (storage.Tx, error) {
	btx, err := e.db.Begin(write)
	if err != nil {
		return nil, cozoerr.ErrStorage.New("begin: " + err.Error())
	}
	return &tx{btx: btx, bucket: btx.Bucket(rootBucket), write: write}, nil
}

type tx struct {
	btx    *bolt.Tx
	bucket *bolt.Bucket
	write  bool
	done   bool
}

func (t *tx) Get(key []byte) ([]byte, bool, error) {
	v := t.bucket.Get(key)
	if v == nil {
		return nil, false, nil
	}
	// bolt reuses the backing array across the transaction's lifetime; copy
	// out so callers can retain the bytes past iterator/tx lifetime.
	out := make([]byte, len(v))
	copy(out, v)
	return out, true, nil
}

func (t *tx) Put(key, val []byte) error {
	if err := t.bucket.Put(key, val); err != nil {
		return cozoerr.ErrStorage.New(err.Error())
	}
	return nil
}

func (t *tx) Delete(key []byte) error {
	if err := t.bucket.Delete(key); err != nil {
		return cozoerr.ErrStorage.New(err.Error())
	}
	return nil
}

func (t *tx) DeleteRange(lower, upper []byte) error {
	c := t.bucket.Cursor()
	var keys [][]byte
	for k, _ := seek(c, lower); k != nil && belowUpper(k, upper); k, _ = c.Next() {
		keys = append(keys, append([]byte(nil), k...))
	}
	for _, k := range keys {
		if err := t.bucket.Delete(k); err != nil {
			return cozoerr.ErrStorage.New(err.Error())
		}
	}
	return nil
}

func seek(c *bolt.Cursor, lower []byte) ([]byte, []byte) {
	if lower == nil {
		return c.First()
	}
	return c.Seek(lower)
}

func belowUpper(k, upper []byte) bool {
	return upper == nil || bytes.Compare(k, upper) < 0
}

func (t *tx) Range(lower, upper []byte, dir storage.Direction) (storage.Iterator, error) {
	c := t.bucket.Cursor()
	var keys, vals [][]byte
	for k, v := seek(c, lower); k != nil && belowUpper(k, upper); k, v = c.Next() {
		keys = append(keys, append([]byte(nil), k...))
		vals = append(vals, append([]byte(nil), v...))
	}
	if dir == storage.Backward {
		for i, j := 0, len(keys)-1; i < j; i, j = i+1, j-1 {
			keys[i], keys[j] = keys[j], keys[i]
			vals[i], vals[j] = vals[j], vals[i]
		}
	}
	return &iterator{keys: keys, vals: vals, idx: -1}, nil
}

func (t *tx) Commit() error {
	if t.done {
		return cozoerr.ErrInternal.New("transaction already closed")
	}
	t.done = true
	if !t.write {
		// bolt rejects Commit on a read-only transaction (only Rollback is
		// valid there); Rollback is how a read-only bolt.Tx releases its
		// read lock, so it still has to run even though there's nothing to
		// persist.
		if err := t.btx.Rollback(); err != nil {
			return cozoerr.ErrStorage.New("commit: " + err.Error())
		}
		return nil
	}
	if err := t.btx.Commit(); err != nil {
		return cozoerr.ErrStorage.New("commit: " + err.Error())
	}
	return nil
}

func (t *tx) Rollback() error {
	if t.done {
		return nil
	}
	t.done = true
	return t.btx.Rollback()
}

func (e *Engine) CompactRange(lower, upper []byte) error {
	// bolt reclaims free pages on its own; nothing to do here beyond
	// satisfying storage.CompactRange for callers that probe for it.
	return nil
}

type iterator struct {
	keys, vals [][]byte
	idx        int
}

func (it *iterator) Next() bool {
	if it.idx+1 >= len(it.keys) {
		return false
	}
	it.idx++
	return true
}

func (it *iterator) Key() []byte   { return it.keys[it.idx] }
func (it *iterator) Value() []byte { return it.vals[it.idx] }
func (it *iterator) Err() error    { return nil }
func (it *iterator) Close() error  { return nil }
