// Package viewmodel bridges repositories and the auth manager into
// observable, UI-consumable state, and owns the reconciliation policies
// between optimistic local mutations and the store's authoritative
// snapshots.
package viewmodel

import "sync"

// Queue is a serialized dispatcher standing in for the UI thread: store
// and provider callbacks arrive on arbitrary goroutines and must be
// redelivered through the queue before touching observable state.
// Dispatching onto a closed queue is a no-op, so in-flight completions
// tolerate a torn-down owner.
type Queue struct {
	mu      sync.Mutex
	pending []func()
	wake    chan struct{}
	done    chan struct{}
	closed  bool
	once    sync.Once
}

func NewQueue() *Queue {
	q := &Queue{
		wake: make(chan struct{}, 1),
		done: make(chan struct{}),
	}
	go q.run()
	return q
}

func (q *Queue) Dispatch(fn func()) {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return
	}
	q.pending = append(q.pending, fn)
	q.mu.Unlock()

	select {
	case q.wake <- struct{}{}:
	default:
	}
}

// Flush blocks until everything dispatched before it has run. Test helper.
func (q *Queue) Flush() {
	ran := make(chan struct{})
	q.Dispatch(func() { close(ran) })
	select {
	case <-ran:
	case <-q.done:
	}
}

func (q *Queue) Close() {
	q.once.Do(func() {
		q.mu.Lock()
		q.closed = true
		q.pending = nil
		q.mu.Unlock()
		close(q.done)
	})
}

func (q *Queue) run() {
	for {
		select {
		case <-q.done:
			return
		case <-q.wake:
			for {
				q.mu.Lock()
				if len(q.pending) == 0 {
					q.mu.Unlock()
					break
				}
				fn := q.pending[0]
				q.pending = q.pending[1:]
				q.mu.Unlock()
				fn()
			}
		}
	}
}
