package repository

import (
	"sync"
	"testing"

	"github.com/ASHISH26940/homestate/internal/listenable"
	"github.com/ASHISH26940/homestate/internal/model"
	"github.com/ASHISH26940/homestate/internal/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRepository_SeededEmpty(t *testing.T) {
	repo := New()
	current := repo.Current()
	assert.Same(t, store.Empty(), current)
	assert.Zero(t, current.Version())
	assert.Zero(t, current.Len())
}

func TestRepository_CommitAndDiff(t *testing.T) {
	repo := New()
	exec := listenable.NewSerialExecutor()

	var mu sync.Mutex
	var received []*store.Frozen
	repo.Subscribe(exec, func(s *store.Frozen) {
		mu.Lock()
		defer mu.Unlock()
		received = append(received, s)
	})

	// --- Test Case 1: Full load ---
	w := repo.Writer()
	w.ReplaceAll([]model.Item{{ID: 1}, {ID: 2}})
	loaded := repo.Commit()
	assert.Same(t, loaded, repo.Current())

	// --- Test Case 2: Incremental change ---
	w.RemoveItems([]model.Item{{ID: 2}}, "drag")
	repo.Commit()

	exec.Close()
	require.Len(t, received, 2)

	// The first delivery crosses an epoch from the empty seed.
	_, ok := store.Diff(received[0], store.Empty())
	assert.False(t, ok)

	events, ok := store.Diff(received[1], received[0])
	require.True(t, ok)
	require.Len(t, events, 1)
	assert.Equal(t, "drag", events[0].EventOwner())
}

func TestRepository_DispatchChangeFromLoader(t *testing.T) {
	repo := New()
	loader := store.NewStore()
	loader.ReplaceAll([]model.Item{{ID: 5}})
	snapshot := loader.Copy()

	repo.DispatchChange(snapshot)
	item, ok := repo.Listenable().Value().Get(5)
	require.True(t, ok)
	assert.Equal(t, 5, item.ID)
}
