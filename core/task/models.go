package task

import (
	"time"

	"github.com/unitrack/unitrack/core"
	"github.com/unitrack/unitrack/storage/docstore"
)

// Task is an assignment due for a course. CourseTitle is a denormalized
// copy of the course's title at creation/edit time; it is not kept in
// sync when the course is renamed later.
type Task struct {
	ID          string    `json:"id"`
	Title       string    `json:"title" validate:"required"`
	CourseID    string    `json:"course_id" validate:"required"`
	CourseTitle string    `json:"course_title"`
	DueDate     time.Time `json:"due_date" validate:"required"`
	Done        bool      `json:"is_done"`
}

func (t *Task) Validate() error {
	t.Title = core.CleanString(t.Title)
	return core.Validate.Struct(t)
}

func (t Task) document() docstore.Document {
	return docstore.Document{
		"title":       t.Title,
		"courseId":    t.CourseID,
		"courseTitle": t.CourseTitle,
		"dueDate":     t.DueDate,
		"isDone":      t.Done,
	}
}

// fromSnapshot decodes a stored document; records missing a required
// field are dropped. courseTitle is cosmetic and may be absent.
func fromSnapshot(snap docstore.Snapshot) (Task, bool) {
	title, ok := docstore.String(snap.Data, "title")
	if !ok {
		return Task{}, false
	}
	courseID, ok := docstore.String(snap.Data, "courseId")
	if !ok {
		return Task{}, false
	}
	due, ok := docstore.Time(snap.Data, "dueDate")
	if !ok {
		return Task{}, false
	}
	done, ok := docstore.Bool(snap.Data, "isDone")
	if !ok {
		return Task{}, false
	}
	courseTitle, _ := docstore.String(snap.Data, "courseTitle")
	return Task{
		ID:          snap.ID,
		Title:       title,
		CourseID:    courseID,
		CourseTitle: courseTitle,
		DueDate:     due,
		Done:        done,
	}, true
}
