package recordstore

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"chatcore/internal/cerrors"
)

type counter struct {
	N int `json:"n"`
}

func newTestStore(t *testing.T) (*Store, *MemoryBackend) {
	t.Helper()
	backend := NewMemoryBackend()
	return New(backend, DefaultOptions()), backend
}

func TestTransactCommitsAllWrites(t *testing.T) {
	store, _ := newTestStore(t)
	ctx := context.Background()

	err := store.Transact(ctx, []string{"a", "b"}, func(tx *Tx) error {
		if err := tx.Put("a", &counter{N: 1}); err != nil {
			return err
		}
		return tx.Put("b", &counter{N: 2})
	})
	require.NoError(t, err)

	var a, b counter
	require.NoError(t, store.GetJSON(ctx, "a", &a))
	require.NoError(t, store.GetJSON(ctx, "b", &b))
	assert.Equal(t, 1, a.N)
	assert.Equal(t, 2, b.N)
}

func TestTransactFnErrorAppliesNothing(t *testing.T) {
	store, _ := newTestStore(t)
	ctx := context.Background()
	boom := errors.New("boom")

	err := store.Transact(ctx, []string{"a", "b"}, func(tx *Tx) error {
		if err := tx.Put("a", &counter{N: 1}); err != nil {
			return err
		}
		return boom
	})
	require.ErrorIs(t, err, boom)

	err = store.GetJSON(ctx, "a", &counter{})
	assert.ErrorIs(t, err, cerrors.ErrNotFound)
}

func TestTransactConcurrentIncrements(t *testing.T) {
	store, _ := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.Transact(ctx, []string{"c"}, func(tx *Tx) error {
		return tx.Put("c", &counter{})
	}))

	const workers = 16
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			err := store.Transact(ctx, []string{"c"}, func(tx *Tx) error {
				var c counter
				if err := tx.Get("c", &c); err != nil {
					return err
				}
				c.N++
				return tx.Put("c", &c)
			})
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	var c counter
	require.NoError(t, store.GetJSON(ctx, "c", &c))
	assert.Equal(t, workers, c.N)
}

// alwaysConflict simulates a backend whose every commit loses the race.
type alwaysConflict struct {
	*MemoryBackend
}

func (alwaysConflict) Commit(ctx context.Context, readVersions map[string]int64, writes map[string]json.RawMessage, deletes map[string]struct{}) error {
	return ErrVersionConflict
}

func TestTransactExhaustedRetriesAbort(t *testing.T) {
	store := New(alwaysConflict{NewMemoryBackend()}, Options{MaxRetries: 2, RetryBackoff: time.Millisecond})

	err := store.Transact(context.Background(), []string{"a"}, func(tx *Tx) error {
		return tx.Put("a", &counter{N: 1})
	})
	assert.ErrorIs(t, err, cerrors.ErrTxAborted)
}

func TestTxRejectsIDsOutsideSet(t *testing.T) {
	store, _ := newTestStore(t)

	err := store.Transact(context.Background(), []string{"a"}, func(tx *Tx) error {
		return tx.Put("other", &counter{N: 1})
	})
	require.Error(t, err)

	err = store.Transact(context.Background(), []string{"a"}, func(tx *Tx) error {
		var c counter
		return tx.Get("other", &c)
	})
	require.Error(t, err)
}

func TestTxObservesOwnWrites(t *testing.T) {
	store, _ := newTestStore(t)

	err := store.Transact(context.Background(), []string{"a"}, func(tx *Tx) error {
		require.False(t, tx.Exists("a"))
		if err := tx.Put("a", &counter{N: 7}); err != nil {
			return err
		}
		require.True(t, tx.Exists("a"))
		var c counter
		if err := tx.Get("a", &c); err != nil {
			return err
		}
		assert.Equal(t, 7, c.N)
		tx.Delete("a")
		assert.False(t, tx.Exists("a"))
		return nil
	})
	require.NoError(t, err)
}

func TestCommitValidatesAbsentReads(t *testing.T) {
	backend := NewMemoryBackend()
	ctx := context.Background()

	// A transaction read "x" as absent (version 0); a concurrent writer
	// then created it. The commit must fail even though the transaction
	// never wrote "x".
	data, err := json.Marshal(&counter{N: 1})
	require.NoError(t, err)
	require.NoError(t, backend.Commit(ctx, map[string]int64{"x": 0}, map[string]json.RawMessage{"x": data}, nil))

	err = backend.Commit(ctx,
		map[string]int64{"x": 0, "y": 0},
		map[string]json.RawMessage{"y": data},
		nil)
	assert.ErrorIs(t, err, ErrVersionConflict)
}

func TestDeleteCommits(t *testing.T) {
	store, _ := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.Transact(ctx, []string{"a"}, func(tx *Tx) error {
		return tx.Put("a", &counter{N: 1})
	}))
	require.NoError(t, store.Transact(ctx, []string{"a"}, func(tx *Tx) error {
		tx.Delete("a")
		return nil
	}))

	err := store.GetJSON(ctx, "a", &counter{})
	assert.ErrorIs(t, err, cerrors.ErrNotFound)
}
