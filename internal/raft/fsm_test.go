package raft

import (
	"bytes"
	"encoding/json"
	"io"
	"path/filepath"
	"testing"

	"github.com/ASHISH26940/homestate/internal/model"
	"github.com/ASHISH26940/homestate/internal/persistence"
	"github.com/ASHISH26940/homestate/internal/repository"
	"github.com/ASHISH26940/homestate/internal/store"
	"github.com/ASHISH26940/homestate/internal/transaction"
	"github.com/hashicorp/raft"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// memorySink is an in-memory raft.SnapshotSink.
type memorySink struct {
	bytes.Buffer
	cancelled bool
	closed    bool
}

func (s *memorySink) ID() string    { return "test" }
func (s *memorySink) Cancel() error { s.cancelled = true; return nil }
func (s *memorySink) Close() error  { s.closed = true; return nil }

func logEntry(t *testing.T, index uint64, cmd Command) *raft.Log {
	t.Helper()
	data, err := cmd.Encode()
	require.NoError(t, err)
	return &raft.Log{Index: index, Type: raft.LogCommand, Data: data}
}

func TestFSM_Apply(t *testing.T) {
	repo := repository.New()
	fsm := NewFSM(repo, nil)

	// --- Test Case 1: Full load ---
	resp := fsm.Apply(logEntry(t, 1, Command{Op: OpReplaceAll, Items: []model.Item{{ID: 1}, {ID: 2}, {ID: 3}}}))
	base, ok := resp.(*store.Frozen)
	require.True(t, ok)
	assert.Same(t, base, repo.Current())
	assert.Equal(t, 3, base.Len())

	// --- Test Case 2: Incremental ops become diffable events ---
	fsm.Apply(logEntry(t, 2, Command{Op: OpRemove, IDs: []int{3}, Owner: "drag"}))
	fsm.Apply(logEntry(t, 3, Command{Op: OpUpdate, Items: []model.Item{{ID: 1, Title: "Camera"}}, Owner: "edit"}))
	fsm.Apply(logEntry(t, 4, Command{Op: OpNotify, Items: []model.Item{{ID: 2, CellY: 4}}}))

	events, ok := store.Diff(repo.Current(), base)
	require.True(t, ok)
	require.Len(t, events, 3)
	assert.Equal(t, model.Removed{Matcher: model.IDSet{3: {}}, Owner: "drag"}, events[0])
	assert.Equal(t, model.Updated{Items: []model.Item{{ID: 1, Title: "Camera"}}, Owner: "edit"}, events[1])
	item, _ := repo.Current().Get(2)
	assert.Equal(t, 4, item.CellY)

	// --- Test Case 3: Malformed commands are rejected without a change ---
	before := repo.Current()
	resp = fsm.Apply(&raft.Log{Index: 5, Data: []byte(`{"op":"EXPLODE"}`)})
	err, isErr := resp.(error)
	require.True(t, isErr)
	assert.ErrorIs(t, err, ErrUnknownOp)
	assert.Same(t, before, repo.Current())

	// --- Test Case 4: Already applied indices are skipped ---
	fsm.Apply(logEntry(t, 2, Command{Op: OpAdd, Items: []model.Item{{ID: 50}}}))
	_, ok = repo.Current().Get(50)
	assert.False(t, ok)
	assert.Equal(t, uint64(5), fsm.Applied())
}

func TestFSM_TxCommit(t *testing.T) {
	repo := repository.New()
	fsm := NewFSM(repo, nil)
	fsm.Apply(logEntry(t, 1, Command{Op: OpReplaceAll, Items: []model.Item{{ID: 1}, {ID: 2}}}))
	base := repo.Current()

	tx := transaction.NewManager().Begin()
	tx.StageAdd(model.Item{ID: 10})
	tx.StageAdd(model.Item{ID: 11})
	tx.StageRemove(1)
	tx.StageUpdate(model.Item{ID: 2, Title: "Clock"})

	fsm.Apply(logEntry(t, 2, Command{Op: OpTxCommit, Owner: tx.ID, WriteSet: tx.WriteSet()}))

	events, ok := store.Diff(repo.Current(), base)
	require.True(t, ok)
	require.Len(t, events, 3)
	assert.Equal(t, model.Added{Items: []model.Item{{ID: 10}, {ID: 11}}, Owner: tx.ID}, events[0])
	assert.IsType(t, model.Removed{}, events[1])
	assert.IsType(t, model.Updated{}, events[2])
	for _, e := range events {
		assert.Equal(t, tx.ID, e.EventOwner())
	}
}

func TestFSM_TxCommitRejectsUnknownWrite(t *testing.T) {
	fsm := NewFSM(repository.New(), nil)
	resp := fsm.Apply(logEntry(t, 1, Command{Op: OpTxCommit, WriteSet: []transaction.WriteOp{
		{Op: transaction.OpAdd, Item: model.Item{ID: 1}},
		{Op: "MOVE"},
	}}))
	err, ok := resp.(error)
	require.True(t, ok)
	assert.ErrorIs(t, err, ErrUnknownOp)
}

func TestFSM_SnapshotRestore(t *testing.T) {
	repo := repository.New()
	fsm := NewFSM(repo, nil)
	fsm.Apply(logEntry(t, 1, Command{Op: OpReplaceAll, Items: []model.Item{{ID: 1}, {ID: 2}}}))
	fsm.Apply(logEntry(t, 2, Command{Op: OpAdd, Items: []model.Item{{ID: 3, Title: "Maps"}}}))

	snap, err := fsm.Snapshot()
	require.NoError(t, err)

	// Later writes do not leak into the captured snapshot.
	fsm.Apply(logEntry(t, 3, Command{Op: OpRemove, IDs: []int{1}}))

	sink := &memorySink{}
	require.NoError(t, snap.Persist(sink))
	snap.Release()
	assert.True(t, sink.closed)

	// --- Test Case 1: Restore on a fresh node starts a new epoch ---
	other := repository.New()
	restored := NewFSM(other, nil)
	require.NoError(t, restored.Restore(io.NopCloser(bytes.NewReader(sink.Bytes()))))
	current := other.Current()
	assert.Equal(t, 3, current.Len())
	assert.Equal(t, uint64(2), restored.Applied())
	assert.NotEqual(t, repo.Current().Version(), current.Version())
	item, _ := current.Get(3)
	assert.Equal(t, "Maps", item.Title)

	// --- Test Case 2: A stale snapshot does not roll back ---
	before := repo.Current()
	require.NoError(t, fsm.Restore(io.NopCloser(bytes.NewReader(sink.Bytes()))))
	assert.Same(t, before, repo.Current())

	// --- Test Case 3: Garbage is an error ---
	assert.Error(t, restored.Restore(io.NopCloser(bytes.NewReader([]byte("nope")))))
}

func TestFSM_WALReplay(t *testing.T) {
	path := filepath.Join(t.TempDir(), "app.wal")
	wal, err := persistence.NewWAL(path)
	require.NoError(t, err)

	fsm := NewFSM(repository.New(), wal)
	fsm.Apply(logEntry(t, 1, Command{Op: OpReplaceAll, Items: []model.Item{{ID: 1}}}))
	fsm.Apply(logEntry(t, 2, Command{Op: OpAdd, Items: []model.Item{{ID: 2}}}))
	fsm.Apply(&raft.Log{Index: 3, Data: []byte(`{"op":"BAD"}`)})
	require.NoError(t, wal.Close())

	// A restarted node rebuilds from the WAL, then skips what raft replays.
	repo := repository.New()
	restarted := NewFSM(repo, nil)
	require.NoError(t, persistence.Replay(path, func(index uint64, cmd json.RawMessage) error {
		return restarted.Replay(index, cmd)
	}))
	assert.Equal(t, uint64(2), restarted.Applied())
	assert.Equal(t, 2, repo.Current().Len())

	restarted.Apply(logEntry(t, 2, Command{Op: OpAdd, Items: []model.Item{{ID: 2}}}))
	assert.Equal(t, 1, repo.Current().ModificationCount())
}

func TestFSM_RestoreSurvivesRestart(t *testing.T) {
	path := filepath.Join(t.TempDir(), "app.wal")
	wal, err := persistence.NewWAL(path)
	require.NoError(t, err)

	snapshot, err := json.Marshal(snapshotData{Index: 10, Items: []model.Item{{ID: 1}, {ID: 2}, {ID: 3}}})
	require.NoError(t, err)
	restoreFrom := func(f *FSM) error {
		return f.Restore(io.NopCloser(bytes.NewReader(snapshot)))
	}
	ids := func(repo *repository.Repository) []int {
		var out []int
		for item := range repo.Current().Items() {
			out = append(out, item.ID)
		}
		return out
	}

	// A follower applies, installs the leader's snapshot, then keeps applying.
	repo := repository.New()
	fsm := NewFSM(repo, wal)
	fsm.Apply(logEntry(t, 1, Command{Op: OpAdd, Items: []model.Item{{ID: 1}}}))
	require.NoError(t, restoreFrom(fsm))
	fsm.Apply(logEntry(t, 11, Command{Op: OpAdd, Items: []model.Item{{ID: 4}}}))
	require.NoError(t, wal.Close())
	require.Equal(t, []int{1, 2, 3, 4}, ids(repo))

	// On restart the WAL is replayed first, then raft restores its local snapshot.
	restartedRepo := repository.New()
	restarted := NewFSM(restartedRepo, nil)
	require.NoError(t, persistence.Replay(path, restarted.Replay))
	require.NoError(t, restoreFrom(restarted))

	assert.Equal(t, ids(repo), ids(restartedRepo))
	assert.Equal(t, uint64(11), restarted.Applied())
}
