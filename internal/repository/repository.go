// Package repository publishes home-screen snapshots to subscribers.
package repository

import (
	"github.com/ASHISH26940/homestate/internal/listenable"
	"github.com/ASHISH26940/homestate/internal/store"
)

// Repository owns the Store and broadcasts frozen snapshots of it.
type Repository struct {
	store *store.Store
	ref   *listenable.Ref[*store.Frozen]
}

// New returns a Repository whose current value is store.Empty().
func New() *Repository {
	return &Repository{
		store: store.NewStore(),
		ref:   listenable.NewRef(store.Empty()),
	}
}

// Writer returns the owned Store. Only the single writer may use it.
func (r *Repository) Writer() *store.Store {
	return r.store
}

// Commit captures the Store and dispatches the copy. Writer only.
func (r *Repository) Commit() *store.Frozen {
	snapshot := r.store.Copy()
	r.DispatchChange(snapshot)
	return snapshot
}

// DispatchChange publishes snapshot. Current reflects it immediately;
// subscribers are notified on their executors.
func (r *Repository) DispatchChange(snapshot *store.Frozen) {
	r.ref.DispatchValue(snapshot)
}

// Current returns the most recently dispatched snapshot.
func (r *Repository) Current() *store.Frozen {
	return r.ref.Value()
}

// Listenable returns the read-only handle.
func (r *Repository) Listenable() listenable.Readable[*store.Frozen] {
	return r.ref
}

// Subscribe is shorthand for Listenable().Subscribe.
func (r *Repository) Subscribe(executor listenable.Executor, callback func(*store.Frozen)) listenable.Disposer {
	return r.ref.Subscribe(executor, callback)
}
