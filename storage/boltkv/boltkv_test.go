package boltkv_test

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/cozodb/cozo-sub000/storage"
	"github.com/cozodb/cozo-sub000/storage/boltkv"
)

func openTemp(t *testing.T) *boltkv.Engine {
	t.Helper()
	e, err := boltkv.Open(filepath.Join(t.TempDir(), "cozo.bolt"))
	require.NoError(t, err)
	t.Cleanup(func() { require.NoError(t, e.Close()) })
	return e
}

func TestPutGetCommit(t *testing.T) {
	e := openTemp(t)
	ctx := context.Background()

	tx, err := e.Begin(ctx, true)
	require.NoError(t, err)
	require.NoError(t, tx.Put([]byte("a"), []byte("1")))
	require.NoError(t, tx.Put([]byte("b"), []byte("2")))
	require.NoError(t, tx.Commit())

	tx2, err := e.Begin(ctx, false)
	require.NoError(t, err)
	v, ok, err := tx2.Get([]byte("a"))
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, "1", string(v))
	require.NoError(t, tx2.Commit())
}

// TestReadOnlyTxCommitSucceeds guards against a read-only bolt transaction's
// Commit forwarding to bolt.Tx.Commit, which bolt rejects with
// ErrTxNotWritable on a non-writable transaction.
func TestReadOnlyTxCommitSucceeds(t *testing.T) {
	e := openTemp(t)
	ctx := context.Background()

	tx, err := e.Begin(ctx, false)
	require.NoError(t, err)
	_, _, err = tx.Get([]byte("missing"))
	require.NoError(t, err)
	require.NoError(t, tx.Commit())
}

func TestRangeScanOrder(t *testing.T) {
	e := openTemp(t)
	ctx := context.Background()
	tx, _ := e.Begin(ctx, true)
	for _, k := range []string{"c", "a", "b"} {
		require.NoError(t, tx.Put([]byte(k), []byte(k)))
	}
	require.NoError(t, tx.Commit())

	tx2, _ := e.Begin(ctx, false)
	it, err := tx2.Range(nil, nil, storage.Forward)
	require.NoError(t, err)
	var got []string
	for it.Next() {
		got = append(got, string(it.Key()))
	}
	require.NoError(t, it.Err())
	require.Equal(t, []string{"a", "b", "c"}, got)
	require.NoError(t, tx2.Commit())
}

func TestDeleteRange(t *testing.T) {
	e := openTemp(t)
	ctx := context.Background()
	tx, _ := e.Begin(ctx, true)
	for _, k := range []string{"a", "b", "c", "d"} {
		require.NoError(t, tx.Put([]byte(k), []byte(k)))
	}
	require.NoError(t, tx.Commit())

	tx2, _ := e.Begin(ctx, true)
	require.NoError(t, tx2.DeleteRange([]byte("b"), []byte("d")))
	require.NoError(t, tx2.Commit())

	tx3, _ := e.Begin(ctx, false)
	it, _ := tx3.Range(nil, nil, storage.Forward)
	var got []string
	for it.Next() {
		got = append(got, string(it.Key()))
	}
	require.Equal(t, []string{"a", "d"}, got)
	require.NoError(t, tx3.Commit())
}

func TestModeIsPessimistic(t *testing.T) {
	e := openTemp(t)
	require.Equal(t, storage.Pessimistic, e.Mode())
}
