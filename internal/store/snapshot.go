// Package store contains the versioned home-screen item collection.
//
// A Store is mutated by exactly one writer. Readers never touch the Store
// directly; the writer hands them Frozen copies, which are safe to share
// across goroutines while the writer keeps mutating.
package store

import (
	"iter"
	"sync/atomic"

	"github.com/ASHISH26940/homestate/internal/model"
)

// HistorySize is the number of change events a snapshot retains.
const HistorySize = 4

// versions is shared by every Store in the process so that two epochs never
// carry the same version. Zero is reserved for Empty.
var versions atomic.Int64

// NextVersion returns a fresh, process-wide unique version.
func NextVersion() int64 {
	return versions.Add(1)
}

// Snapshot is the read side shared by Store and Frozen.
type Snapshot interface {
	// Version identifies the epoch; it changes only on a full replacement.
	Version() int64
	// ModificationCount counts incremental mutations within the epoch.
	ModificationCount() int
	Get(id int) (model.Item, bool)
	// Items yields the contents in ascending id order.
	Items() iter.Seq[model.Item]
	Len() int
	Copy() *Frozen
	Diff(source Snapshot) ([]model.ChangeEvent, bool)

	history() []model.ChangeEvent
}

// Equal reports whether a and b denote the same point in a writer's timeline.
// Only the counters are compared, never the items. This holds as long as each
// Store has a single writer applying mutations deterministically; snapshots
// from branching or merging writers would need a content comparison instead.
func Equal(a, b Snapshot) bool {
	return a.Version() == b.Version() && a.ModificationCount() == b.ModificationCount()
}
