package listenable

import (
	"fmt"
	"reflect"
	"runtime/debug"
	"slices"
	"sync"
	"sync/atomic"

	"github.com/ASHISH26940/homestate/internal/logging"
)

var log = logging.NewLogger("listenable")

// Disposer cancels a subscription for all future dispatches. Deliveries
// already scheduled may still run. Calling it more than once is harmless.
type Disposer func()

type subscription[T any] struct {
	callback func(T)
	disposed atomic.Bool
}

// group is the callbacks registered under one executor. The slice is
// replaced, never modified in place, so a scheduled delivery can hold on to
// it without locking.
type group[T any] struct {
	executor Executor
	subs     []*subscription[T]
}

// Listenable delivers each dispatched value to its subscribers. All callbacks
// registered under the same Executor are invoked together, in registration
// order, as a single task on that executor.
type Listenable[T any] struct {
	mu     sync.Mutex
	groups []*group[T]
}

// Subscribe registers callback to run on executor for every future dispatch.
// It panics if executor is nil or of a type that cannot be compared, since
// groups are matched by executor identity.
func (l *Listenable[T]) Subscribe(executor Executor, callback func(T)) Disposer {
	if executor == nil || !reflect.TypeOf(executor).Comparable() {
		panic(fmt.Sprintf("listenable: executor %T must be a non-nil comparable value, such as a pointer", executor))
	}
	sub := &subscription[T]{callback: callback}

	l.mu.Lock()
	defer l.mu.Unlock()

	i := slices.IndexFunc(l.groups, func(g *group[T]) bool { return g.executor == executor })
	if i < 0 {
		l.groups = append(slices.Clone(l.groups), &group[T]{executor: executor, subs: []*subscription[T]{sub}})
	} else {
		next := *l.groups[i]
		next.subs = append(slices.Clone(next.subs), sub)
		groups := slices.Clone(l.groups)
		groups[i] = &next
		l.groups = groups
	}

	return func() {
		if sub.disposed.Swap(true) {
			return
		}
		l.remove(executor, sub)
	}
}

func (l *Listenable[T]) remove(executor Executor, sub *subscription[T]) {
	l.mu.Lock()
	defer l.mu.Unlock()

	i := slices.IndexFunc(l.groups, func(g *group[T]) bool { return g.executor == executor })
	if i < 0 {
		return
	}
	subs := slices.DeleteFunc(slices.Clone(l.groups[i].subs), func(s *subscription[T]) bool { return s == sub })
	groups := slices.Clone(l.groups)
	if len(subs) == 0 {
		groups = slices.Delete(groups, i, i+1)
	} else {
		groups[i] = &group[T]{executor: executor, subs: subs}
	}
	l.groups = groups
}

// DispatchValue schedules one delivery of value per executor with at least
// one subscriber. It does not wait for the deliveries to run.
func (l *Listenable[T]) DispatchValue(value T) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.dispatchLocked(value)
}

// dispatchLocked enqueues while holding mu so that every executor sees
// dispatches in the same order.
func (l *Listenable[T]) dispatchLocked(value T) {
	for _, g := range l.groups {
		subs := g.subs
		g.executor.Execute(func() {
			for _, sub := range subs {
				if sub.disposed.Load() {
					continue
				}
				deliver(sub.callback, value)
			}
		})
	}
}

func deliver[T any](callback func(T), value T) {
	defer func() {
		if r := recover(); r != nil {
			log.WithField("panic", r).Warnf("Listener panicked: %s", debug.Stack())
		}
	}()
	callback(value)
}

// Readable is the subscriber side of a Ref.
type Readable[T any] interface {
	Value() T
	Subscribe(executor Executor, callback func(T)) Disposer
}

// Ref is a Listenable that also holds the most recently dispatched value.
type Ref[T any] struct {
	Listenable[T]
	value atomic.Pointer[T]
}

// NewRef returns a Ref holding initial.
func NewRef[T any](initial T) *Ref[T] {
	r := &Ref[T]{}
	r.value.Store(&initial)
	return r
}

// Value returns the latest value. It reflects a DispatchValue as soon as that
// call returns, even if subscribers have not run yet.
func (r *Ref[T]) Value() T {
	return *r.value.Load()
}

// DispatchValue stores value and then notifies subscribers.
func (r *Ref[T]) DispatchValue(value T) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.value.Store(&value)
	r.dispatchLocked(value)
}
