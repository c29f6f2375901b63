package store

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fastLockOptions() LockOptions {
	return LockOptions{
		TTL:          60 * time.Second,
		Timeout:      300 * time.Millisecond,
		PollInterval: 10 * time.Millisecond,
	}
}

func TestAcquireLock_MutualExclusion(t *testing.T) {
	// Scenario: two owners contend for one lock; exactly one holds it until
	// release
	st := NewMemoryStore()
	g1, g2 := NewGuard(st), NewGuard(st)
	ctx := context.Background()

	release1, err := g1.AcquireLock(ctx, "game-1", fastLockOptions())
	require.NoError(t, err)

	_, err = g2.AcquireLock(ctx, "game-1", fastLockOptions())
	assert.ErrorIs(t, err, ErrLockTimeout)

	release1()

	release2, err := g2.AcquireLock(ctx, "game-1", fastLockOptions())
	require.NoError(t, err)
	release2()
}

func TestAcquireLock_ReclaimsExpired(t *testing.T) {
	st := NewMemoryStore()
	g1, g2 := NewGuard(st), NewGuard(st)
	ctx := context.Background()

	opts := fastLockOptions()
	opts.TTL = 50 * time.Millisecond
	_, err := g1.AcquireLock(ctx, "game-1", opts)
	require.NoError(t, err)

	time.Sleep(80 * time.Millisecond)

	// the abandoned record is older than its own TTL, so it is reclaimable
	release2, err := g2.AcquireLock(ctx, "game-1", fastLockOptions())
	require.NoError(t, err)
	release2()
}

func TestRelease_IdempotentAndOwnerChecked(t *testing.T) {
	st := NewMemoryStore()
	g1, g2 := NewGuard(st), NewGuard(st)
	ctx := context.Background()

	opts := fastLockOptions()
	opts.TTL = 50 * time.Millisecond
	release1, err := g1.AcquireLock(ctx, "game-1", opts)
	require.NoError(t, err)

	time.Sleep(80 * time.Millisecond)
	release2, err := g2.AcquireLock(ctx, "game-1", fastLockOptions())
	require.NoError(t, err)

	// the stale holder releasing must not free the reclaimed lock
	release1()
	release1() // double release is a no-op too

	_, err = g1.AcquireLock(ctx, "game-1", fastLockOptions())
	assert.ErrorIs(t, err, ErrLockTimeout, "lock still belongs to the second holder")

	release2()
}

func TestWithLock_ReleasesOnPanic(t *testing.T) {
	st := NewMemoryStore()
	g := NewGuard(st)
	ctx := context.Background()

	require.Panics(t, func() {
		_ = g.WithLock(ctx, "game-1", fastLockOptions(), func() error {
			panic("boom")
		})
	})

	// the lock must be free again
	require.NoError(t, g.WithLock(ctx, "game-1", fastLockOptions(), func() error {
		return nil
	}))
}

func TestWithLock_SerializesHolders(t *testing.T) {
	st := NewMemoryStore()
	ctx := context.Background()

	var mu sync.Mutex
	var inside, maxInside int

	var wg sync.WaitGroup
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			g := NewGuard(st)
			opts := fastLockOptions()
			opts.Timeout = 5 * time.Second
			err := g.WithLock(ctx, "game-1", opts, func() error {
				mu.Lock()
				inside++
				if inside > maxInside {
					maxInside = inside
				}
				mu.Unlock()

				time.Sleep(20 * time.Millisecond)

				mu.Lock()
				inside--
				mu.Unlock()
				return nil
			})
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, maxInside, "no two holders may overlap")
}

// conflictStore forces the first n transactions on a path to lose the race.
type conflictStore struct {
	*MemoryStore
	mu        sync.Mutex
	conflicts int
}

func (c *conflictStore) Transaction(ctx context.Context, path string, fn MutateFn) error {
	c.mu.Lock()
	remaining := c.conflicts
	if remaining > 0 {
		c.conflicts--
	}
	c.mu.Unlock()

	if remaining > 0 {
		return ErrConflict
	}
	return c.MemoryStore.Transaction(ctx, path, fn)
}

func TestTransactionalUpdate_RetriesThenSucceeds(t *testing.T) {
	st := &conflictStore{MemoryStore: NewMemoryStore(), conflicts: 2}
	g := NewGuard(st)
	g.backoffBase = time.Millisecond

	require.NoError(t, st.Set(context.Background(), "games/g1", testDoc{Count: 1}))

	err := g.TransactionalUpdate(context.Background(), "games/g1", func(current json.RawMessage) (any, error) {
		var doc testDoc
		require.NoError(t, json.Unmarshal(current, &doc))
		doc.Count++
		return doc, nil
	}, 5)
	require.NoError(t, err)

	raw, err := st.Get(context.Background(), "games/g1")
	require.NoError(t, err)
	var got testDoc
	require.NoError(t, json.Unmarshal(raw, &got))
	assert.Equal(t, 2, got.Count)
}

func TestTransactionalUpdate_Exhausts(t *testing.T) {
	st := &conflictStore{MemoryStore: NewMemoryStore(), conflicts: 100}
	g := NewGuard(st)
	g.backoffBase = time.Millisecond

	err := g.TransactionalUpdate(context.Background(), "games/g1", func(current json.RawMessage) (any, error) {
		return testDoc{}, nil
	}, 3)
	assert.ErrorIs(t, err, ErrTransactionExhausted)
}

func TestTransactionalUpdate_PropagatesMutateError(t *testing.T) {
	st := NewMemoryStore()
	g := NewGuard(st)
	require.NoError(t, st.Set(context.Background(), "games/g1", testDoc{}))

	wantErr := assert.AnError
	err := g.TransactionalUpdate(context.Background(), "games/g1", func(current json.RawMessage) (any, error) {
		return nil, wantErr
	}, 3)
	assert.ErrorIs(t, err, wantErr, "non-conflict errors are not retried")
}
