package store

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type testDoc struct {
	Name  string `json:"name"`
	Count int    `json:"count"`
}

func TestMemoryStore_GetSet(t *testing.T) {
	st := NewMemoryStore()
	ctx := context.Background()

	_, err := st.Get(ctx, "games/none")
	assert.ErrorIs(t, err, ErrNotFound)

	require.NoError(t, st.Set(ctx, "games/g1", testDoc{Name: "a", Count: 1}))

	raw, err := st.Get(ctx, "games/g1")
	require.NoError(t, err)
	var got testDoc
	require.NoError(t, json.Unmarshal(raw, &got))
	assert.Equal(t, testDoc{Name: "a", Count: 1}, got)
}

func TestMemoryStore_UpdateMergesFields(t *testing.T) {
	st := NewMemoryStore()
	ctx := context.Background()

	require.NoError(t, st.Set(ctx, "games/g1", testDoc{Name: "a", Count: 1}))
	require.NoError(t, st.Update(ctx, "games/g1", map[string]any{"count": 5}))

	raw, err := st.Get(ctx, "games/g1")
	require.NoError(t, err)
	var got testDoc
	require.NoError(t, json.Unmarshal(raw, &got))
	assert.Equal(t, testDoc{Name: "a", Count: 5}, got)

	assert.ErrorIs(t, st.Update(ctx, "games/none", map[string]any{"count": 5}), ErrNotFound)
}

func TestMemoryStore_TransactionConflict(t *testing.T) {
	st := NewMemoryStore()
	ctx := context.Background()
	require.NoError(t, st.Set(ctx, "games/g1", testDoc{Count: 1}))

	// a competing write lands while the transaction body runs
	err := st.Transaction(ctx, "games/g1", func(current json.RawMessage) (any, error) {
		require.NoError(t, st.Set(ctx, "games/g1", testDoc{Count: 99}))
		return testDoc{Count: 2}, nil
	})
	assert.ErrorIs(t, err, ErrConflict)

	raw, err := st.Get(ctx, "games/g1")
	require.NoError(t, err)
	var got testDoc
	require.NoError(t, json.Unmarshal(raw, &got))
	assert.Equal(t, 99, got.Count, "losing transaction committed nothing")
}

func TestMemoryStore_TransactionCreates(t *testing.T) {
	st := NewMemoryStore()

	err := st.Transaction(context.Background(), "games/new", func(current json.RawMessage) (any, error) {
		assert.Nil(t, current)
		return testDoc{Name: "fresh"}, nil
	})
	require.NoError(t, err)

	_, err = st.Get(context.Background(), "games/new")
	assert.NoError(t, err)
}

func TestMemoryStore_SubscribeDeliversChangesAndDeletes(t *testing.T) {
	st := NewMemoryStore()
	ctx := context.Background()
	require.NoError(t, st.Set(ctx, "games/g1", testDoc{Count: 1}))

	var got []json.RawMessage
	unsubscribe := st.Subscribe("games/g1", func(doc json.RawMessage) {
		got = append(got, doc)
	})

	require.Len(t, got, 1, "current document arrives on subscribe")

	require.NoError(t, st.Set(ctx, "games/g1", testDoc{Count: 2}))
	require.Len(t, got, 2)

	require.NoError(t, st.Delete(ctx, "games/g1"))
	require.Len(t, got, 3)
	assert.Nil(t, got[2], "deletion is distinguishable from a change")

	unsubscribe()
	require.NoError(t, st.Set(ctx, "games/g1", testDoc{Count: 3}))
	assert.Len(t, got, 3, "no delivery after unsubscribe")
}

func TestMemoryStore_List(t *testing.T) {
	st := NewMemoryStore()
	ctx := context.Background()
	require.NoError(t, st.Set(ctx, "games/b", testDoc{}))
	require.NoError(t, st.Set(ctx, "games/a", testDoc{}))
	require.NoError(t, st.Set(ctx, "locks/x", testDoc{}))

	paths, err := st.List(ctx, "games/")
	require.NoError(t, err)
	assert.Equal(t, []string{"games/a", "games/b"}, paths)
}
