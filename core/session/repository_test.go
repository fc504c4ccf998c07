package session

import (
	"context"
	"log"
	"os"
	"testing"
	"time"

	"github.com/unitrack/unitrack/core"
	"github.com/unitrack/unitrack/storage/docstore"
	memorystore "github.com/unitrack/unitrack/storage/docstore/memory"
)

var (
	ctx    = context.Background()
	logger = core.NewStdLogger(log.New(os.Stdout, "TEST : ", log.LstdFlags))
)

func TestMain(m *testing.M) {
	core.InitValidators()
	os.Exit(m.Run())
}

func at(hour int) time.Time {
	return time.Date(2021, 9, 6, hour, 0, 0, 0, time.UTC)
}

func TestSession_Validate(t *testing.T) {
	tests := []struct {
		name    string
		session Session
		wantErr bool
	}{
		{name: "ok", session: Session{Title: "Lecture", CourseID: "c1", StartDate: at(9), EndDate: at(11)}},
		{name: "location optional", session: Session{Title: "Lab", CourseID: "c1", StartDate: at(9), EndDate: at(11), Location: "B2"}},
		{name: "missing title", session: Session{CourseID: "c1", StartDate: at(9), EndDate: at(11)}, wantErr: true},
		{name: "missing course", session: Session{Title: "Lecture", StartDate: at(9), EndDate: at(11)}, wantErr: true},
		{name: "end before start", session: Session{Title: "Lecture", CourseID: "c1", StartDate: at(11), EndDate: at(9)}, wantErr: true},
		{name: "end equals start", session: Session{Title: "Lecture", CourseID: "c1", StartDate: at(9), EndDate: at(9)}, wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := tt.session.Validate(); (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestRepository_CRUD(t *testing.T) {
	store := memorystore.Open()
	repo := NewRepository(store, logger)

	s := Session{Title: "Lecture", CourseID: "c1", StartDate: at(9), EndDate: at(11), Location: "A1"}
	id, err := repo.Create(ctx, s)
	if err != nil {
		t.Fatalf("Create() error = %v", err)
	}

	// sessions live under their course's sub-collection
	if _, err = store.Get(ctx, Path("c1"), id); err != nil {
		t.Fatalf("Get() under %q error = %v", Path("c1"), err)
	}

	s.ID = id
	s.Location = "B2"
	if err = repo.Update(ctx, s); err != nil {
		t.Fatalf("Update() error = %v", err)
	}

	sessions, err := repo.GetForCourse(ctx, "c1")
	if err != nil {
		t.Fatalf("GetForCourse() error = %v", err)
	}
	if len(sessions) != 1 || sessions[0].Location != "B2" {
		t.Errorf("GetForCourse() = %+v, want one session in B2", sessions)
	}

	if err = repo.Delete(ctx, s); err != nil {
		t.Fatalf("Delete() error = %v", err)
	}
	sessions, _ = repo.GetForCourse(ctx, "c1")
	if len(sessions) != 0 {
		t.Errorf("got %d sessions after delete, want 0", len(sessions))
	}
}

func TestRepository_missingID(t *testing.T) {
	repo := NewRepository(memorystore.Open(), logger)
	s := Session{Title: "Lecture", CourseID: "c1", StartDate: at(9), EndDate: at(11)}

	if err := repo.Update(ctx, s); err != ErrMissingID {
		t.Errorf("Update() error = %v, want ErrMissingID", err)
	}
	if err := repo.Delete(ctx, s); err != ErrMissingID {
		t.Errorf("Delete() error = %v, want ErrMissingID", err)
	}
}

func TestRepository_GetForCourse_ordering(t *testing.T) {
	store := memorystore.Open()
	repo := NewRepository(store, logger)

	repo.Create(ctx, Session{Title: "afternoon", CourseID: "c1", StartDate: at(14), EndDate: at(16)})
	repo.Create(ctx, Session{Title: "morning", CourseID: "c1", StartDate: at(8), EndDate: at(10)})
	repo.Create(ctx, Session{Title: "other", CourseID: "c2", StartDate: at(9), EndDate: at(10)})
	// malformed document: missing endDate
	store.Add(ctx, Path("c1"), docstore.Document{"title": "ghost", "courseId": "c1", "startDate": at(9), "location": ""})

	sessions, err := repo.GetForCourse(ctx, "c1")
	if err != nil {
		t.Fatalf("GetForCourse() error = %v", err)
	}
	if len(sessions) != 2 {
		t.Fatalf("got %d sessions, want 2", len(sessions))
	}
	if sessions[0].Title != "morning" || sessions[1].Title != "afternoon" {
		t.Errorf("order = %+v, want start date ascending", sessions)
	}
}
