package course

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/unitrack/unitrack/core"
	"github.com/unitrack/unitrack/storage/docstore"
)

// Path is the courses collection.
const Path = "courses"

var ErrMissingID = errors.New("missing course ID")

// Repository owns the courses collection: typed CRUD plus an optional
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

// Create persists a new course and returns its store-assigned ID. The
// caller's record is never mutated; creation time is stamped server-side.
func (r *Repository) Create(ctx context.Context, c Course) (string, error) {
	doc := c.document()
	doc["createdAt"] = docstore.ServerTimestamp
	return r.store.Add(ctx, Path, doc)
}

// Update merge-writes the course fields; stored fields absent from the
// payload are left untouched.
func (r *Repository) Update(ctx context.Context, c Course) error {
	if c.ID == "" {
		return ErrMissingID
	}
	return r.store.Set(ctx, Path, c.ID, c.document(), true)
}

func (r *Repository) Delete(ctx context.Context, id string) error {
	if id == "" {
		return ErrMissingID
	}
	return r.store.Delete(ctx, Path, id)
}

// GetAll returns all courses ordered by title ascending.
func (r *Repository) GetAll(ctx context.Context) ([]Course, error) {
	snaps, err := r.store.GetAll(ctx, Path, docstore.Query{OrderBy: "title"})
	if err != nil {
		return nil, err
	}
	return r.decode(snaps), nil
}

// Listen opens the standing subscription. A previous subscription, if
// any, is cancelled first; only one is ever active per repository.
func (r *Repository) Listen(fn func([]Course)) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.sub.Stop()
	r.sub = nil

	sub, err := r.store.Listen(Path, docstore.Query{OrderBy: "title"}, func(snaps []docstore.Snapshot) {
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

func (r *Repository) decode(snaps []docstore.Snapshot) []Course {
	courses := make([]Course, 0, len(snaps))
	for _, snap := range snaps {
		c, ok := fromSnapshot(snap)
		if !ok {
			r.logger.Warn(fmt.Sprintf("course: dropping malformed document %q", snap.ID))
			continue
		}
		courses = append(courses, c)
	}
	return courses
}
