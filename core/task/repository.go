package task

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/unitrack/unitrack/core"
	"github.com/unitrack/unitrack/storage/docstore"
)

// Path is the tasks collection.
const Path = "tasks"

var ErrMissingID = errors.New("missing task ID")

// Repository owns the tasks collection: typed CRUD plus an optional
// one-slot live subscription republishing the full decoded collection on
// every remote change.
type Repository struct {
	store  docstore.Store
	logger core.Logger

	mu  sync.Mutex
	sub *docstore.Subscription
}

func NewRepository(store docstore.Store, logger core.Logger) *Repository {
	return &Repository{store: store, logger: logger}
}

// Create persists a new task and returns its store-assigned ID. The
// caller's record is never mutated.
func (r *Repository) Create(ctx context.Context, t Task) (string, error) {
	return r.store.Add(ctx, Path, t.document())
}

// Update merge-writes the task fields; stored fields absent from the
// payload are left untouched.
func (r *Repository) Update(ctx context.Context, t Task) error {
	if t.ID == "" {
		return ErrMissingID
	}
	return r.store.Set(ctx, Path, t.ID, t.document(), true)
}

func (r *Repository) Delete(ctx context.Context, id string) error {
	if id == "" {
		return ErrMissingID
	}
	return r.store.Delete(ctx, Path, id)
}

// GetForCourse returns a course's tasks ordered by due date ascending.
func (r *Repository) GetForCourse(ctx context.Context, courseID string) ([]Task, error) {
	snaps, err := r.store.GetAll(ctx, Path, docstore.Query{
		Filters: []docstore.Filter{{Field: "courseId", Equals: courseID}},
		OrderBy: "dueDate",
	})
	if err != nil {
		return nil, err
	}
	return r.decode(snaps), nil
}

// Listen opens the standing subscription on the whole collection ordered
// by due date. A previous subscription, if any, is cancelled first; only
// one is ever active per repository.
func (r *Repository) Listen(fn func([]Task)) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.sub.Stop()
	r.sub = nil

	sub, err := r.store.Listen(Path, docstore.Query{OrderBy: "dueDate"}, func(snaps []docstore.Snapshot) {
		fn(r.decode(snaps))
	})
	if err != nil {
		return err
	}
	r.sub = sub
	return nil
}

// StopListening is idempotent and safe to call with no active subscription.
func (r *Repository) StopListening() {
	r.mu.Lock()
	sub := r.sub
	r.sub = nil
	r.mu.Unlock()
	sub.Stop()
}

func (r *Repository) decode(snaps []docstore.Snapshot) []Task {
	tasks := make([]Task, 0, len(snaps))
	for _, snap := range snaps {
		t, ok := fromSnapshot(snap)
		if !ok {
			r.logger.Warn(fmt.Sprintf("task: dropping malformed document %q", snap.ID))
			continue
		}
		tasks = append(tasks, t)
	}
	return tasks
}
