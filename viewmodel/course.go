package viewmodel

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/unitrack/unitrack/core"
	"github.com/unitrack/unitrack/core/course"
	"github.com/unitrack/unitrack/core/identity"
	"github.com/unitrack/unitrack/core/session"
)

// SessionDraft is the session form state captured while creating a course.
type SessionDraft struct {
	Title     string
	StartDate time.Time
	EndDate   time.Time
	Location  string
}

// CourseViewModel mirrors the courses collection through the standing
// subscription: every remote change replaces the local snapshot wholesale,
// no merge, no diffing.
type CourseViewModel struct {
	queue       *Queue
	repo        *course.Repository
	sessionRepo *session.Repository
	provider    identity.Provider
	logger      core.Logger

	mu        sync.Mutex
	courses   []course.Course
	loading   bool
	observers map[int]func()
	nextOID   int
}

func NewCourseViewModel(queue *Queue, repo *course.Repository, sessionRepo *session.Repository, provider identity.Provider, logger core.Logger) *CourseViewModel {
	vm := &CourseViewModel{
		queue:       queue,
		repo:        repo,
		sessionRepo: sessionRepo,
		provider:    provider,
		logger:      logger,
		loading:     true,
		observers:   make(map[int]func()),
	}

	err := repo.Listen(func(items []course.Course) {
		vm.queue.Dispatch(func() {
			vm.mu.Lock()
			vm.courses = items
			vm.loading = false
			vm.mu.Unlock()
			vm.notify()
		})
	})
	if err != nil {
		logger.Error(fmt.Sprintf("courses: opening subscription: %v", err), err)
	}
	return vm
}

// Close stops the standing subscription.
func (vm *CourseViewModel) Close() {
	vm.repo.StopListening()
}

func (vm *CourseViewModel) Subscribe(fn func()) (stop func()) {
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

func (vm *CourseViewModel) Courses() []course.Course {
	vm.mu.Lock()
	defer vm.mu.Unlock()
	return append([]course.Course(nil), vm.courses...)
}

func (vm *CourseViewModel) Loading() bool {
	vm.mu.Lock()
	defer vm.mu.Unlock()
	return vm.loading
}

// AddCourse creates the course (teacherId taken from the current
// identity) then persists its session drafts; the subscription snapshot
// brings the new state back.
func (vm *CourseViewModel) AddCourse(ctx context.Context, title string, drafts []SessionDraft) (string, error) {
	var teacherID string
	if usr, ok := vm.provider.CurrentUser(); ok {
		teacherID = usr.UID
	}

	c := course.Course{Title: title, TeacherID: teacherID}
	if err := c.Validate(); err != nil {
		return "", err
	}

	courseID, err := vm.repo.Create(ctx, c)
	if err != nil {
		vm.logger.Error(fmt.Sprintf("courses: creating course: %v", err), err)
		return "", err
	}

	for _, draft := range drafts {
		s := session.Session{
			Title:     draft.Title,
			CourseID:  courseID,
			StartDate: draft.StartDate,
			EndDate:   draft.EndDate,
			Location:  draft.Location,
		}
		if err := s.Validate(); err != nil {
			vm.logger.Error(fmt.Sprintf("courses: invalid session draft: %v", err), err)
			continue
		}
		if _, err := vm.sessionRepo.Create(ctx, s); err != nil {
			vm.logger.Error(fmt.Sprintf("courses: creating session: %v", err), err)
		}
	}
	return courseID, nil
}

// UpdateCourse optimistically replaces the local record, then issues the
// merge-write; the next snapshot is authoritative either way.
func (vm *CourseViewModel) UpdateCourse(ctx context.Context, c course.Course) error {
	vm.mu.Lock()
	for i := range vm.courses {
		if vm.courses[i].ID == c.ID {
			vm.courses[i] = c
			break
		}
	}
	vm.mu.Unlock()
	vm.notify()

	if err := vm.repo.Update(ctx, c); err != nil {
		vm.logger.Error(fmt.Sprintf("courses: updating course: %v", err), err)
		return err
	}
	return nil
}

func (vm *CourseViewModel) DeleteCourse(ctx context.Context, id string) error {
	vm.mu.Lock()
	kept := vm.courses[:0]
	for _, c := range vm.courses {
		if c.ID != id {
			kept = append(kept, c)
		}
	}
	vm.courses = kept
	vm.mu.Unlock()
	vm.notify()

	if err := vm.repo.Delete(ctx, id); err != nil {
		vm.logger.Error(fmt.Sprintf("courses: deleting course: %v", err), err)
		return err
	}
	return nil
}

// DeleteAt removes courses by display position. Positions resolve to
// entity IDs before anything is removed, so a concurrent snapshot
// reorder cannot shift the deletion onto the wrong record.
func (vm *CourseViewModel) DeleteAt(ctx context.Context, indexes ...int) {
	vm.mu.Lock()
	ids := make([]string, 0, len(indexes))
	drop := make(map[string]bool, len(indexes))
	for _, idx := range indexes {
		if idx < 0 || idx >= len(vm.courses) || vm.courses[idx].ID == "" {
			continue
		}
		ids = append(ids, vm.courses[idx].ID)
		drop[vm.courses[idx].ID] = true
	}
	kept := vm.courses[:0]
	for _, c := range vm.courses {
		if !drop[c.ID] {
			kept = append(kept, c)
		}
	}
	vm.courses = kept
	vm.mu.Unlock()
	vm.notify()

	for _, id := range ids {
		if err := vm.repo.Delete(ctx, id); err != nil {
			vm.logger.Error(fmt.Sprintf("courses: deleting course: %v", err), err)
		}
	}
}

func (vm *CourseViewModel) notify() {
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
