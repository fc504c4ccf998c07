package viewmodel

import (
	"context"
	"fmt"
	"sync"

	"github.com/unitrack/unitrack/core"
	"github.com/unitrack/unitrack/core/session"
)

// SessionViewModel holds one course's sessions, backed by one-shot
// queries: mutations are write-then-refetch, never write-then-patch.
type SessionViewModel struct {
	queue    *Queue
	repo     *session.Repository
	logger   core.Logger
	courseID string

	mu        sync.Mutex
	sessions  []session.Session
	observers map[int]func()
	nextOID   int
}

func NewSessionViewModel(queue *Queue, repo *session.Repository, courseID string, logger core.Logger) *SessionViewModel {
	return &SessionViewModel{
		queue:     queue,
		repo:      repo,
		logger:    logger,
		courseID:  courseID,
		observers: make(map[int]func()),
	}
}

func (vm *SessionViewModel) Subscribe(fn func()) (stop func()) {
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

func (vm *SessionViewModel) Sessions() []session.Session {
	vm.mu.Lock()
	defer vm.mu.Unlock()
	return append([]session.Session(nil), vm.sessions...)
}

// Load refetches the course's sessions. A failed fetch resets the list
// to empty rather than preserving stale data.
func (vm *SessionViewModel) Load(ctx context.Context) {
	items, err := vm.repo.GetForCourse(ctx, vm.courseID)
	if err != nil {
		vm.logger.Error(fmt.Sprintf("sessions: loading course %q: %v", vm.courseID, err), err)
		items = nil
	}
	vm.queue.Dispatch(func() {
		vm.mu.Lock()
		vm.sessions = items
		vm.mu.Unlock()
		vm.notify()
	})
}

func (vm *SessionViewModel) Add(ctx context.Context, s session.Session) error {
	s.CourseID = vm.courseID
	if err := s.Validate(); err != nil {
		return err
	}
	_, err := vm.repo.Create(ctx, s)
	if err != nil {
		vm.logger.Error(fmt.Sprintf("sessions: creating session: %v", err), err)
	}
	vm.Load(ctx)
	return err
}

func (vm *SessionViewModel) Update(ctx context.Context, s session.Session) error {
	err := vm.repo.Update(ctx, s)
	if err != nil {
		vm.logger.Error(fmt.Sprintf("sessions: updating session: %v", err), err)
	}
	vm.Load(ctx)
	return err
}

func (vm *SessionViewModel) Delete(ctx context.Context, s session.Session) error {
	err := vm.repo.Delete(ctx, s)
	if err != nil {
		vm.logger.Error(fmt.Sprintf("sessions: deleting session: %v", err), err)
	}
	vm.Load(ctx)
	return err
}

func (vm *SessionViewModel) notify() {
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
