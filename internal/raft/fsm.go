// Package raft applies committed commands to the home-screen store.
//
// Raft calls Apply, Snapshot and Restore one at a time, which makes the FSM
// the store's single writer.
package raft

import (
	"encoding/json"
	"fmt"
	"io"
	"slices"

	"github.com/ASHISH26940/homestate/internal/logging"
	"github.com/ASHISH26940/homestate/internal/model"
	"github.com/ASHISH26940/homestate/internal/persistence"
	"github.com/ASHISH26940/homestate/internal/repository"
	"github.com/ASHISH26940/homestate/internal/store"
	"github.com/ASHISH26940/homestate/internal/transaction"
	"github.com/hashicorp/raft"
	"github.com/sirupsen/logrus"
)

var log = logging.NewLogger("fsm")

// FSM is a raft.FSM over a Repository.
type FSM struct {
	repo *repository.Repository
	wal  *persistence.WAL

	// applied is the last raft index reflected in the store.
	applied uint64
}

// NewFSM creates an FSM writing to repo. wal may be nil.
func NewFSM(repo *repository.Repository, wal *persistence.WAL) *FSM {
	return &FSM{
		repo: repo,
		wal:  wal,
	}
}

// Applied returns the last applied raft index.
func (f *FSM) Applied() uint64 {
	return f.applied
}

// Apply writes the entry to the WAL, applies it to the store and publishes
// the result. The response is the new *store.Frozen, or an error for a
// malformed command.
func (f *FSM) Apply(entry *raft.Log) interface{} {
	if entry.Index <= f.applied {
		// Already restored from the WAL.
		return f.repo.Current()
	}

	cmd, err := DecodeCommand(entry.Data)
	if err != nil {
		log.WithField("index", entry.Index).Warnf("Rejecting command: %v", err)
		f.applied = entry.Index
		return err
	}

	if f.wal != nil {
		if err := f.wal.Write(entry.Index, entry.Data); err != nil {
			log.Panicf("Failed to write command to WAL: %v", err)
		}
	}

	return f.apply(entry.Index, cmd)
}

// Replay applies a command read back from the WAL at startup.
func (f *FSM) Replay(index uint64, data json.RawMessage) error {
	cmd, err := DecodeCommand(data)
	if err != nil {
		return err
	}
	f.apply(index, cmd)
	return nil
}

func (f *FSM) apply(index uint64, cmd Command) *store.Frozen {
	w := f.repo.Writer()
	switch cmd.Op {
	case OpAdd:
		w.AddItems(cmd.Items, cmd.Owner)
	case OpRemove:
		w.RemoveItems(itemsWithIDs(cmd.IDs), cmd.Owner)
	case OpUpdate:
		for _, item := range cmd.Items {
			w.ReplaceItemByID(item, cmd.Owner)
		}
	case OpNotify:
		w.NotifyUpdated(cmd.Items, cmd.Owner)
	case OpReplaceAll:
		w.ReplaceAll(cmd.Items)
	case OpTxCommit:
		applyWriteSet(w, cmd.WriteSet, cmd.Owner)
	}
	f.applied = index

	snapshot := f.repo.Commit()
	log.WithFields(logrus.Fields{
		"index":        index,
		"op":           cmd.Op,
		"version":      snapshot.Version(),
		"modification": snapshot.ModificationCount(),
	}).Debug("Applied command")
	return snapshot
}

// applyWriteSet applies a transaction's operations in order, folding runs of
// adds or removes into one event each.
func applyWriteSet(w *store.Store, ops []transaction.WriteOp, owner string) {
	for start := 0; start < len(ops); {
		end := start + 1
		kind := ops[start].Op
		if kind != transaction.OpUpdate {
			for end < len(ops) && ops[end].Op == kind {
				end++
			}
		}
		items := make([]model.Item, 0, end-start)
		for _, op := range ops[start:end] {
			items = append(items, op.Item)
		}
		switch kind {
		case transaction.OpAdd:
			w.AddItems(items, owner)
		case transaction.OpRemove:
			w.RemoveItems(items, owner)
		case transaction.OpUpdate:
			w.ReplaceItemByID(items[0], owner)
		}
		start = end
	}
}

func itemsWithIDs(ids []int) []model.Item {
	items := make([]model.Item, len(ids))
	for i, id := range ids {
		items[i] = model.Item{ID: id}
	}
	return items
}

// snapshotData is the persisted form of an FSM snapshot.
type snapshotData struct {
	Index uint64       `json:"index"`
	Items []model.Item `json:"items"`
}

// Snapshot captures the store. The copy is taken here, on the writer, and
// serialised later by Persist.
func (f *FSM) Snapshot() (raft.FSMSnapshot, error) {
	return &fsmSnapshot{
		index:    f.applied,
		snapshot: f.repo.Writer().Copy(),
	}, nil
}

// Restore replaces the item set from a snapshot, starting a new epoch, and
// logs the replacement to the WAL. Snapshots older than what the WAL already
// replayed are ignored.
func (f *FSM) Restore(rc io.ReadCloser) error {
	defer rc.Close()

	var data snapshotData
	if err := json.NewDecoder(rc).Decode(&data); err != nil {
		return fmt.Errorf("decode snapshot: %w", err)
	}
	if data.Index != 0 && data.Index <= f.applied {
		log.WithField("index", data.Index).Info("Snapshot is behind the WAL, skipping restore")
		return nil
	}

	// Record the new epoch so a WAL replay after restart reproduces it.
	if f.wal != nil {
		cmd, err := Command{Op: OpReplaceAll, Items: data.Items}.Encode()
		if err != nil {
			return fmt.Errorf("encode restore command: %w", err)
		}
		if err := f.wal.Write(data.Index, cmd); err != nil {
			return fmt.Errorf("write restore to wal: %w", err)
		}
	}

	f.repo.Writer().ReplaceAll(data.Items)
	f.applied = data.Index
	snapshot := f.repo.Commit()
	log.WithFields(logrus.Fields{
		"index":   data.Index,
		"items":   snapshot.Len(),
		"version": snapshot.Version(),
	}).Info("Restored from snapshot")
	return nil
}

type fsmSnapshot struct {
	index    uint64
	snapshot *store.Frozen
}

func (s *fsmSnapshot) Persist(sink raft.SnapshotSink) error {
	data := snapshotData{
		Index: s.index,
		Items: slices.Collect(s.snapshot.Items()),
	}
	if err := json.NewEncoder(sink).Encode(data); err != nil {
		sink.Cancel()
		return fmt.Errorf("persist snapshot: %w", err)
	}
	return sink.Close()
}

func (s *fsmSnapshot) Release() {}
