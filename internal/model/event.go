package model

import (
	"maps"
	"slices"
)

// ChangeEvent is one incremental mutation recorded in a snapshot's history.
// The set of variants is closed: Added, Removed and Updated.
//
// Owner is an opaque token supplied by whoever made the change. It is carried
// through untouched so consumers can ignore changes they originated.
type ChangeEvent interface {
	EventOwner() any
	changeEvent()
}

// Added records items inserted (or overwritten) by id.
type Added struct {
	Items []Item
	Owner any
}

// Removed records items deleted by id.
type Removed struct {
	Matcher IDSet
	Owner   any
}

// Updated records items replaced in place or reported as changed.
type Updated struct {
	Items []Item
	Owner any
}

func (e Added) EventOwner() any   { return e.Owner }
func (e Removed) EventOwner() any { return e.Owner }
func (e Updated) EventOwner() any { return e.Owner }

func (Added) changeEvent()   {}
func (Removed) changeEvent() {}
func (Updated) changeEvent() {}

// IDSet matches items by id.
type IDSet map[int]struct{}

// MatchIDs builds an IDSet from the ids of items.
func MatchIDs(items []Item) IDSet {
	set := make(IDSet, len(items))
	for _, item := range items {
		set[item.ID] = struct{}{}
	}
	return set
}

// Match reports whether id is in the set.
func (s IDSet) Match(id int) bool {
	_, ok := s[id]
	return ok
}

// IDs returns the ids in ascending order.
func (s IDSet) IDs() []int {
	return slices.Sorted(maps.Keys(s))
}
