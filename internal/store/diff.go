package store

import (
	"slices"

	"github.com/ASHISH26940/homestate/internal/model"
)

// Diff returns the events that turn source's content into current's, oldest
// first. ok is false when the transition cannot be reconstructed from the
// retained history: a different epoch, a source newer than current, or more
// mutations than HistorySize. Callers treat that as a full resync.
//
// Diff reads both snapshots without locking; pass Frozen snapshots, or call it
// on the writer's goroutine when current is the live Store.
func Diff(current, source Snapshot) ([]model.ChangeEvent, bool) {
	return DiffSince(current, source.Version(), source.ModificationCount())
}

// DiffSince is Diff against a baseline known only by its counters.
func DiffSince(current Snapshot, version int64, modificationCount int) ([]model.ChangeEvent, bool) {
	if current.Version() != version {
		return nil, false
	}
	k := current.ModificationCount() - modificationCount
	history := current.history()
	if k < 0 || k > len(history) {
		return nil, false
	}
	events := slices.Clone(history[:k])
	slices.Reverse(events)
	if events == nil {
		events = []model.ChangeEvent{}
	}
	return events, true
}
