package store

import (
	"iter"
	"maps"
	"slices"

	"github.com/ASHISH26940/homestate/internal/model"
)

// Store is the mutable snapshot. It is not safe for concurrent use: every
// mutation, and any read racing with one, must happen on the single writer.
// Readers elsewhere get a Frozen via Copy.
type Store struct {
	version           int64
	modificationCount int
	events            []model.ChangeEvent
	items             map[int]model.Item
}

// NewStore returns an empty Store in a fresh epoch.
func NewStore() *Store {
	return &Store{
		version: NextVersion(),
		items:   make(map[int]model.Item),
	}
}

// ReplaceAll discards every item and the history and starts a new epoch.
// No event is recorded: nothing can be diffed across epochs.
func (s *Store) ReplaceAll(items []model.Item) {
	s.items = make(map[int]model.Item, len(items))
	for _, item := range items {
		s.items[item.ID] = item
	}
	s.events = nil
	s.modificationCount = 0
	s.version = NextVersion()
}

// AddItems inserts items, overwriting any with the same id.
func (s *Store) AddItems(items []model.Item, owner any) {
	items = slices.Clone(items)
	for _, item := range items {
		s.items[item.ID] = item
	}
	s.push(model.Added{Items: items, Owner: owner})
}

// RemoveItems deletes items by id. Only the ids are consulted.
func (s *Store) RemoveItems(items []model.Item, owner any) {
	matcher := model.MatchIDs(items)
	for id := range matcher {
		delete(s.items, id)
	}
	s.push(model.Removed{Matcher: matcher, Owner: owner})
}

// ReplaceItemByID stores item under its id and records an Updated event.
func (s *Store) ReplaceItemByID(item model.Item, owner any) {
	s.items[item.ID] = item
	s.push(model.Updated{Items: []model.Item{item}, Owner: owner})
}

// NotifyUpdated records that items changed outside the store. Items are
// values, so entries already present are refreshed from the given copies;
// ids the store does not hold are only reported, never inserted.
func (s *Store) NotifyUpdated(items []model.Item, owner any) {
	items = slices.Clone(items)
	for _, item := range items {
		if _, ok := s.items[item.ID]; ok {
			s.items[item.ID] = item
		}
	}
	s.push(model.Updated{Items: items, Owner: owner})
}

func (s *Store) push(event model.ChangeEvent) {
	n := min(len(s.events)+1, HistorySize)
	events := make([]model.ChangeEvent, n)
	events[0] = event
	copy(events[1:], s.events)
	s.events = events
	s.modificationCount++
}

func (s *Store) Version() int64         { return s.version }
func (s *Store) ModificationCount() int { return s.modificationCount }
func (s *Store) Len() int               { return len(s.items) }

func (s *Store) Get(id int) (model.Item, bool) {
	item, ok := s.items[id]
	return item, ok
}

func (s *Store) Items() iter.Seq[model.Item] {
	return sortedItems(s.items)
}

// Copy captures the current state. Call it on the writer, right after the
// mutations it should include.
func (s *Store) Copy() *Frozen {
	return &Frozen{
		version:           s.version,
		modificationCount: s.modificationCount,
		events:            slices.Clone(s.events),
		items:             maps.Clone(s.items),
	}
}

func (s *Store) Diff(source Snapshot) ([]model.ChangeEvent, bool) {
	return Diff(s, source)
}

func (s *Store) history() []model.ChangeEvent {
	return s.events
}
