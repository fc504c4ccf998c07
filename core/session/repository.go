package session

import (
	"context"
	"errors"
	"fmt"

	"github.com/unitrack/unitrack/core"
	"github.com/unitrack/unitrack/storage/docstore"
)

var ErrMissingID = errors.New("missing session ID")

// Repository owns the per-course sessions sub-collections.
type Repository struct {
	store  docstore.Store
	logger core.Logger
}

func NewRepository(store docstore.Store, logger core.Logger) *Repository {
	return &Repository{store: store, logger: logger}
}

// Path returns the sessions sub-collection of a course.
func Path(courseID string) string {
	return "courses/" + courseID + "/sessions"
}

// Create persists a new session under its owning course and returns the
// store-assigned ID. The caller's record is never mutated.
func (r *Repository) Create(ctx context.Context, s Session) (string, error) {
	return r.store.Add(ctx, Path(s.CourseID), s.document())
}

// Update merge-writes the session fields.
func (r *Repository) Update(ctx context.Context, s Session) error {
	if s.ID == "" {
		return ErrMissingID
	}
	return r.store.Set(ctx, Path(s.CourseID), s.ID, s.document(), true)
}

func (r *Repository) Delete(ctx context.Context, s Session) error {
	if s.ID == "" {
		return ErrMissingID
	}
	return r.store.Delete(ctx, Path(s.CourseID), s.ID)
}

// GetForCourse returns a course's sessions ordered by start date ascending.
func (r *Repository) GetForCourse(ctx context.Context, courseID string) ([]Session, error) {
	snaps, err := r.store.GetAll(ctx, Path(courseID), docstore.Query{OrderBy: "startDate"})
	if err != nil {
		return nil, err
	}

	sessions := make([]Session, 0, len(snaps))
	for _, snap := range snaps {
		s, ok := fromSnapshot(snap)
		if !ok {
			r.logger.Warn(fmt.Sprintf("session: dropping malformed document %q", snap.ID))
			continue
		}
		sessions = append(sessions, s)
	}
	return sessions, nil
}
