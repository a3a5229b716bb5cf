// Package listenable is a many-subscriber broadcast grouped by executor.
package listenable

import "sync"

// Executor is a serial dispatch target. Execute must not block the caller
// and must run tasks in submission order.
//
// Execute is called while the Listenable holds its lock, so it must hand the
// task off rather than run it inline. Executors are grouped by identity and
// must be comparable, typically pointers; Subscribe rejects others.
type Executor interface {
	Execute(task func())
}

// SerialExecutor runs tasks one at a time on its own goroutine. The queue is
// unbounded so Execute never waits on a slow subscriber.
type SerialExecutor struct {
	mu     sync.Mutex
	cond   *sync.Cond
	queue  []func()
	closed bool
	done   chan struct{}
}

// NewSerialExecutor starts the worker goroutine.
func NewSerialExecutor() *SerialExecutor {
	e := &SerialExecutor{done: make(chan struct{})}
	e.cond = sync.NewCond(&e.mu)
	go e.run()
	return e
}

// Execute queues task. Tasks submitted after Close are dropped.
func (e *SerialExecutor) Execute(task func()) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return
	}
	e.queue = append(e.queue, task)
	e.cond.Signal()
}

// Close runs what is already queued, then stops the worker and waits for it.
func (e *SerialExecutor) Close() {
	e.mu.Lock()
	e.closed = true
	e.cond.Signal()
	e.mu.Unlock()
	<-e.done
}

func (e *SerialExecutor) run() {
	defer close(e.done)
	for {
		e.mu.Lock()
		for len(e.queue) == 0 && !e.closed {
			e.cond.Wait()
		}
		if len(e.queue) == 0 {
			e.mu.Unlock()
			return
		}
		task := e.queue[0]
		e.queue[0] = nil
		e.queue = e.queue[1:]
		e.mu.Unlock()

		task()
	}
}
