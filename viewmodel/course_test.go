package viewmodel

import (
	"context"
	"log"
	"os"
	"testing"
	"time"

	"github.com/unitrack/unitrack/core"
	"github.com/unitrack/unitrack/core/course"
	"github.com/unitrack/unitrack/core/identity"
	"github.com/unitrack/unitrack/core/session"
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

// stubProvider only answers CurrentUser; the rest is unused here.
type stubProvider struct {
	user identity.User
}

var _ identity.Provider = (*stubProvider)(nil)

func (p *stubProvider) SignIn(context.Context, string, string) (identity.User, error) {
	return p.user, nil
}
func (p *stubProvider) CreateUser(context.Context, string, string) (identity.User, error) {
	return p.user, nil
}
func (p *stubProvider) SendPasswordReset(context.Context, string) error { return nil }
func (p *stubProvider) Reauthenticate(context.Context, string) error    { return nil }
func (p *stubProvider) UpdatePassword(context.Context, string) error    { return nil }
func (p *stubProvider) SignOut() error                                  { return nil }
func (p *stubProvider) CurrentUser() (identity.User, bool) {
	return p.user, p.user.UID != ""
}
func (p *stubProvider) OnStateChange(func(*identity.User)) (stop func()) { return func() {} }

func eventually(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("condition not met in time")
}

type courseFixture struct {
	store *memorystore.Store
	queue *Queue
	vm    *CourseViewModel
}

func newCourseFixture(t *testing.T) *courseFixture {
	t.Helper()

	store := memorystore.Open()
	queue := NewQueue()
	t.Cleanup(queue.Close)

	provider := &stubProvider{user: identity.User{UID: "t1", Email: "prof@test.cd"}}
	vm := NewCourseViewModel(
		queue,
		course.NewRepository(store, logger),
		session.NewRepository(store, logger),
		provider,
		logger,
	)
	t.Cleanup(vm.Close)
	return &courseFixture{store: store, queue: queue, vm: vm}
}

func TestCourseViewModel_snapshotReplacesWholesale(t *testing.T) {
	f := newCourseFixture(t)

	eventually(t, func() bool { return !f.vm.Loading() })

	// an out-of-band write lands through the subscription
	f.store.Add(ctx, course.Path, docstore.Document{"title": "Maths", "teacherId": "t9"})
	eventually(t, func() bool { return len(f.vm.Courses()) == 1 })

	// a remote delete disappears just as wholesale
	courses := f.vm.Courses()
	f.store.Delete(ctx, course.Path, courses[0].ID)
	eventually(t, func() bool { return len(f.vm.Courses()) == 0 })
}

func TestCourseViewModel_AddCourse(t *testing.T) {
	f := newCourseFixture(t)

	start := time.Date(2021, 9, 6, 9, 0, 0, 0, time.UTC)
	drafts := []SessionDraft{
		{Title: "Lecture", StartDate: start, EndDate: start.Add(2 * time.Hour), Location: "A1"},
		{Title: "bad draft", StartDate: start, EndDate: start}, // end not after start, skipped
	}
	id, err := f.vm.AddCourse(ctx, "Maths", drafts)
	if err != nil {
		t.Fatalf("AddCourse() error = %v", err)
	}

	eventually(t, func() bool { return len(f.vm.Courses()) == 1 })
	c := f.vm.Courses()[0]
	if c.TeacherID != "t1" {
		t.Errorf("TeacherID = %q, want the signed-in identity", c.TeacherID)
	}

	// only the valid draft was persisted
	sessions, err := session.NewRepository(f.store, logger).GetForCourse(ctx, id)
	if err != nil {
		t.Fatalf("GetForCourse() error = %v", err)
	}
	if len(sessions) != 1 || sessions[0].Title != "Lecture" {
		t.Errorf("sessions = %+v, want the valid draft only", sessions)
	}
}

func TestCourseViewModel_AddCourse_validation(t *testing.T) {
	f := newCourseFixture(t)

	if _, err := f.vm.AddCourse(ctx, "   ", nil); err == nil {
		t.Error("AddCourse() with blank title error = nil, want validation error")
	}
}

func TestCourseViewModel_UpdateCourse_optimistic(t *testing.T) {
	f := newCourseFixture(t)

	id, _ := f.vm.AddCourse(ctx, "Maths", nil)
	eventually(t, func() bool { return len(f.vm.Courses()) == 1 })

	updated := course.Course{ID: id, Title: "Physics", TeacherID: "t1"}
	if err := f.vm.UpdateCourse(ctx, updated); err != nil {
		t.Fatalf("UpdateCourse() error = %v", err)
	}

	// the local record flips immediately and the store confirms
	if got := f.vm.Courses(); len(got) != 1 || got[0].Title != "Physics" {
		t.Errorf("Courses() = %+v, want the optimistic update applied", got)
	}
	snap, _ := f.store.Get(ctx, course.Path, id)
	if title, _ := docstore.String(snap.Data, "title"); title != "Physics" {
		t.Errorf("stored title = %q, want %q", title, "Physics")
	}
}

func TestCourseViewModel_DeleteAt(t *testing.T) {
	f := newCourseFixture(t)

	f.vm.AddCourse(ctx, "Art", nil)
	bID, _ := f.vm.AddCourse(ctx, "Maths", nil)
	f.vm.AddCourse(ctx, "Physics", nil)
	eventually(t, func() bool { return len(f.vm.Courses()) == 3 })

	// positions resolve to IDs before anything is removed
	f.vm.DeleteAt(ctx, 1)
	eventually(t, func() bool {
		courses := f.vm.Courses()
		if len(courses) != 2 {
			return false
		}
		for _, c := range courses {
			if c.ID == bID {
				return false
			}
		}
		return true
	})
	if _, err := f.store.Get(ctx, course.Path, bID); err != docstore.ErrNotFound {
		t.Errorf("Get() deleted course error = %v, want ErrNotFound", err)
	}

	// out-of-range positions are ignored
	f.vm.DeleteAt(ctx, -1, 99)
	if got := f.vm.Courses(); len(got) != 2 {
		t.Errorf("got %d courses, want 2", len(got))
	}
}

func TestCourseViewModel_DeleteCourse(t *testing.T) {
	f := newCourseFixture(t)

	id, _ := f.vm.AddCourse(ctx, "Maths", nil)
	eventually(t, func() bool { return len(f.vm.Courses()) == 1 })

	if err := f.vm.DeleteCourse(ctx, id); err != nil {
		t.Fatalf("DeleteCourse() error = %v", err)
	}
	// removed optimistically, before the next snapshot lands
	if got := f.vm.Courses(); len(got) != 0 {
		t.Errorf("got %d courses, want optimistic removal", len(got))
	}
}
