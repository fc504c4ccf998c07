package viewmodel

import (
	"sync"
	"testing"
)

func TestQueue_serializedOrder(t *testing.T) {
	q := NewQueue()
	defer q.Close()

	var mu sync.Mutex
	var got []int
	for i := 0; i < 100; i++ {
		i := i
		q.Dispatch(func() {
			mu.Lock()
			got = append(got, i)
			mu.Unlock()
		})
	}
	q.Flush()

	mu.Lock()
	defer mu.Unlock()
	if len(got) != 100 {
		t.Fatalf("ran %d funcs, want 100", len(got))
	}
	for i, v := range got {
		if v != i {
			t.Fatalf("order broken at %d: got %d", i, v)
		}
	}
}

func TestQueue_dispatchAfterClose(t *testing.T) {
	q := NewQueue()
	q.Close()
	q.Close() // idempotent

	ran := false
	q.Dispatch(func() { ran = true })
	q.Flush() // must not block on a closed queue

	if ran {
		t.Error("dispatched func ran after Close()")
	}
}
