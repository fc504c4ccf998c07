package viewmodel

import (
	"context"
	"sync"

	feedssvc "github.com/unitrack/unitrack/services/feeds"
)

// HolidaySummaryViewModel exposes the upcoming-holidays panel. Loading
// happens at most once per instance; subsequent calls are no-ops.
type HolidaySummaryViewModel struct {
	queue *Queue
	svc   *feedssvc.HolidayService

	mu        sync.Mutex
	holidays  []feedssvc.Holiday
	loaded    bool
	loading   bool
	observers map[int]func()
	nextOID   int
}

func NewHolidaySummaryViewModel(queue *Queue, svc *feedssvc.HolidayService) *HolidaySummaryViewModel {
	return &HolidaySummaryViewModel{
		queue:     queue,
		svc:       svc,
		observers: make(map[int]func()),
	}
}

func (vm *HolidaySummaryViewModel) Subscribe(fn func()) (stop func()) {
	vm.mu.Lock()
	vm.nextOID++
	oid := vm.nextOID
	vm.observers[oid] = fn
	vm.mu.Unlock()

	return func() {
		vm.mu.Lock()
		delete(vm.observers, oid)
		vm.mu.Unlock()
	}
}

func (vm *HolidaySummaryViewModel) Holidays() []feedssvc.Holiday {
	vm.mu.Lock()
	defer vm.mu.Unlock()
	return append([]feedssvc.Holiday(nil), vm.holidays...)
}

// Load fetches once; repeated calls while loaded or in flight do nothing.
func (vm *HolidaySummaryViewModel) Load(ctx context.Context) {
	vm.mu.Lock()
	if vm.loaded || vm.loading {
		vm.mu.Unlock()
		return
	}
	vm.loading = true
	vm.mu.Unlock()

	hols := vm.svc.Upcoming(ctx)
	vm.queue.Dispatch(func() {
		vm.mu.Lock()
		vm.holidays = hols
		vm.loaded = true
		vm.loading = false
		vm.mu.Unlock()
		vm.notify()
	})
}

func (vm *HolidaySummaryViewModel) notify() {
	vm.mu.Lock()
	fns := make([]func(), 0, len(vm.observers))
	for _, fn := range vm.observers {
		fns = append(fns, fn)
	}
	vm.mu.Unlock()
	for _, fn := range fns {
		fn()
	}
}
