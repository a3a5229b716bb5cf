package store

import (
	"iter"
	"maps"
	"slices"

	"github.com/ASHISH26940/homestate/internal/model"
)

// Frozen is an immutable point-in-time copy of a Store.
type Frozen struct {
	version           int64
	modificationCount int
	events            []model.ChangeEvent
	items             map[int]model.Item
}

var empty = &Frozen{items: map[int]model.Item{}}

// Empty returns the version 0 snapshot with no items and no history.
func Empty() *Frozen {
	return empty
}

func (f *Frozen) Version() int64         { return f.version }
func (f *Frozen) ModificationCount() int { return f.modificationCount }
func (f *Frozen) Len() int               { return len(f.items) }

func (f *Frozen) Get(id int) (model.Item, bool) {
	item, ok := f.items[id]
	return item, ok
}

func (f *Frozen) Items() iter.Seq[model.Item] {
	return sortedItems(f.items)
}

// Copy returns f itself.
func (f *Frozen) Copy() *Frozen {
	return f
}

func (f *Frozen) Diff(source Snapshot) ([]model.ChangeEvent, bool) {
	return Diff(f, source)
}

func (f *Frozen) history() []model.ChangeEvent {
	return f.events
}

func sortedItems(items map[int]model.Item) iter.Seq[model.Item] {
	return func(yield func(model.Item) bool) {
		for _, id := range slices.Sorted(maps.Keys(items)) {
			if !yield(items[id]) {
				return
			}
		}
	}
}
