package course

import (
	"github.com/unitrack/unitrack/core"
	"github.com/unitrack/unitrack/storage/docstore"
)

// Course is a taught course owned by a teacher. ID is empty until the
// store assigns one on create.
type Course struct {
	ID        string `json:"id"`
	Title     string `json:"title" validate:"required"`
	TeacherID string `json:"teacher_id" validate:"required"`
}

func (c *Course) Validate() error {
	c.Title = core.CleanString(c.Title)
	return core.Validate.Struct(c)
}

func (c Course) document() docstore.Document {
	return docstore.Document{
		"title":     c.Title,
		"teacherId": c.TeacherID,
	}
}

// fromSnapshot decodes a stored document; records missing a required
// field are dropped.
func fromSnapshot(snap docstore.Snapshot) (Course, bool) {
	title, ok := docstore.String(snap.Data, "title")
	if !ok {
		return Course{}, false
	}
	teacherID, ok := docstore.String(snap.Data, "teacherId")
	if !ok {
		return Course{}, false
	}
	return Course{ID: snap.ID, Title: title, TeacherID: teacherID}, true
}
