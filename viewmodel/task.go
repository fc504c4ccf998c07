package viewmodel

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/unitrack/unitrack/core"
	"github.com/unitrack/unitrack/core/task"
)

// TaskDraft is the task form state.
type TaskDraft struct {
	Title       string
	CourseID    string
	CourseTitle string
	DueDate     time.Time
}

// TaskViewModel mirrors the dashboard tasks collection through the
// standing subscription; snapshots replace the local state wholesale.
type TaskViewModel struct {
	queue  *Queue
	repo   *task.Repository
	logger core.Logger

	mu        sync.Mutex
	tasks     []task.Task
	loading   bool
	observers map[int]func()
	nextOID   int
}

func NewTaskViewModel(queue *Queue, repo *task.Repository, logger core.Logger) *TaskViewModel {
	vm := &TaskViewModel{
		queue:     queue,
		repo:      repo,
		logger:    logger,
		loading:   true,
		observers: make(map[int]func()),
	}

	err := repo.Listen(func(items []task.Task) {
		vm.queue.Dispatch(func() {
			vm.mu.Lock()
			vm.tasks = items
			vm.loading = false
			vm.mu.Unlock()
			vm.notify()
		})
	})
	if err != nil {
		logger.Error(fmt.Sprintf("tasks: opening subscription: %v", err), err)
	}
	return vm
}

// Close stops the standing subscription.
func (vm *TaskViewModel) Close() {
	vm.repo.StopListening()
}

func (vm *TaskViewModel) Subscribe(fn func()) (stop func()) {
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

func (vm *TaskViewModel) Tasks() []task.Task {
	vm.mu.Lock()
	defer vm.mu.Unlock()
	return append([]task.Task(nil), vm.tasks...)
}

func (vm *TaskViewModel) Loading() bool {
	vm.mu.Lock()
	defer vm.mu.Unlock()
	return vm.loading
}

// AddTask persists a new task from the draft; courseTitle is snapshot at
// write time and goes stale if the course is later renamed.
func (vm *TaskViewModel) AddTask(ctx context.Context, draft TaskDraft) error {
	t := task.Task{
		Title:       draft.Title,
		CourseID:    draft.CourseID,
		CourseTitle: draft.CourseTitle,
		DueDate:     draft.DueDate,
		Done:        false,
	}
	if err := t.Validate(); err != nil {
		return err
	}
	if _, err := vm.repo.Create(ctx, t); err != nil {
		vm.logger.Error(fmt.Sprintf("tasks: creating task: %v", err), err)
		return err
	}
	return nil
}

// ToggleDone is a read-modify-write on a copy: flip, then update. There
// is no rollback on failure; local and remote state diverge until the
// next snapshot.
func (vm *TaskViewModel) ToggleDone(ctx context.Context, t task.Task) error {
	t.Done = !t.Done

	vm.mu.Lock()
	for i := range vm.tasks {
		if vm.tasks[i].ID == t.ID {
			vm.tasks[i] = t
			break
		}
	}
	vm.mu.Unlock()
	vm.notify()

	if err := vm.repo.Update(ctx, t); err != nil {
		vm.logger.Error(fmt.Sprintf("tasks: toggling task: %v", err), err)
		return err
	}
	return nil
}

// DeleteTask removes by entity ID, never by display position.
func (vm *TaskViewModel) DeleteTask(ctx context.Context, t task.Task) error {
	if t.ID == "" {
		return task.ErrMissingID
	}

	vm.mu.Lock()
	kept := vm.tasks[:0]
	for _, cur := range vm.tasks {
		if cur.ID != t.ID {
			kept = append(kept, cur)
		}
	}
	vm.tasks = kept
	vm.mu.Unlock()
	vm.notify()

	if err := vm.repo.Delete(ctx, t.ID); err != nil {
		vm.logger.Error(fmt.Sprintf("tasks: deleting task: %v", err), err)
		return err
	}
	return nil
}

func (vm *TaskViewModel) notify() {
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

// CourseTasksViewModel is the course-detail task list, backed by one-shot
// queries: every mutation reloads the full query after the write
// completes, so the visible list always reflects a state the store had.
type CourseTasksViewModel struct {
	queue    *Queue
	repo     *task.Repository
	logger   core.Logger
	courseID string

	mu        sync.Mutex
	tasks     []task.Task
	observers map[int]func()
	nextOID   int
}

func NewCourseTasksViewModel(queue *Queue, repo *task.Repository, courseID string, logger core.Logger) *CourseTasksViewModel {
	return &CourseTasksViewModel{
		queue:     queue,
		repo:      repo,
		logger:    logger,
		courseID:  courseID,
		observers: make(map[int]func()),
	}
}

func (vm *CourseTasksViewModel) Subscribe(fn func()) (stop func()) {
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

func (vm *CourseTasksViewModel) Tasks() []task.Task {
	vm.mu.Lock()
	defer vm.mu.Unlock()
	return append([]task.Task(nil), vm.tasks...)
}

// Load refetches the course's tasks. A failed fetch resets the list to
// empty rather than preserving stale data.
func (vm *CourseTasksViewModel) Load(ctx context.Context) {
	items, err := vm.repo.GetForCourse(ctx, vm.courseID)
	if err != nil {
		vm.logger.Error(fmt.Sprintf("tasks: loading course %q: %v", vm.courseID, err), err)
		items = nil
	}
	vm.queue.Dispatch(func() {
		vm.mu.Lock()
		vm.tasks = items
		vm.mu.Unlock()
		vm.notify()
	})
}

func (vm *CourseTasksViewModel) Add(ctx context.Context, t task.Task) error {
	if err := t.Validate(); err != nil {
		return err
	}
	_, err := vm.repo.Create(ctx, t)
	if err != nil {
		vm.logger.Error(fmt.Sprintf("tasks: creating task: %v", err), err)
	}
	vm.Load(ctx)
	return err
}

func (vm *CourseTasksViewModel) Update(ctx context.Context, t task.Task) error {
	err := vm.repo.Update(ctx, t)
	if err != nil {
		vm.logger.Error(fmt.Sprintf("tasks: updating task: %v", err), err)
	}
	vm.Load(ctx)
	return err
}

func (vm *CourseTasksViewModel) Delete(ctx context.Context, t task.Task) error {
	if t.ID == "" {
		return task.ErrMissingID
	}
	err := vm.repo.Delete(ctx, t.ID)
	if err != nil {
		vm.logger.Error(fmt.Sprintf("tasks: deleting task: %v", err), err)
	}
	vm.Load(ctx)
	return err
}

func (vm *CourseTasksViewModel) notify() {
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
