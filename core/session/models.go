package session

import (
	"time"

	"github.com/unitrack/unitrack/core"
	"github.com/unitrack/unitrack/storage/docstore"
)

// Session is a weekly recurring time slot of a course.
type Session struct {
	ID        string    `json:"id"`
	Title     string    `json:"title" validate:"required"`
	CourseID  string    `json:"course_id" validate:"required"`
	StartDate time.Time `json:"start_date" validate:"required"`
	EndDate   time.Time `json:"end_date" validate:"required,gtfield=StartDate"`
	Location  string    `json:"location"`
}

func (s *Session) Validate() error {
	s.Title = core.CleanString(s.Title)
	s.Location = core.CleanString(s.Location)
	return core.Validate.Struct(s)
}

func (s Session) document() docstore.Document {
	return docstore.Document{
		"title":     s.Title,
		"courseId":  s.CourseID,
		"startDate": s.StartDate,
		"endDate":   s.EndDate,
		"location":  s.Location,
	}
}

// fromSnapshot decodes a stored document; records missing a required
// field are dropped.
func fromSnapshot(snap docstore.Snapshot) (Session, bool) {
	title, ok := docstore.String(snap.Data, "title")
	if !ok {
		return Session{}, false
	}
	courseID, ok := docstore.String(snap.Data, "courseId")
	if !ok {
		return Session{}, false
	}
	start, ok := docstore.Time(snap.Data, "startDate")
	if !ok {
		return Session{}, false
	}
	end, ok := docstore.Time(snap.Data, "endDate")
	if !ok {
		return Session{}, false
	}
	location, ok := docstore.String(snap.Data, "location")
	if !ok {
		return Session{}, false
	}
	return Session{
		ID:        snap.ID,
		Title:     title,
		CourseID:  courseID,
		StartDate: start,
		EndDate:   end,
		Location:  location,
	}, true
}
