package task

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

func due(day int) time.Time {
	return time.Date(2021, 5, day, 12, 0, 0, 0, time.UTC)
}

func TestTask_Validate(t *testing.T) {
	tests := []struct {
		name    string
		task    Task
		wantErr bool
	}{
		{name: "ok", task: Task{Title: "Revise", CourseID: "c1", DueDate: due(1)}},
		{name: "course title optional", task: Task{Title: "Revise", CourseID: "c1", CourseTitle: "Maths", DueDate: due(1)}},
		{name: "missing title", task: Task{CourseID: "c1", DueDate: due(1)}, wantErr: true},
		{name: "missing course", task: Task{Title: "Revise", DueDate: due(1)}, wantErr: true},
		{name: "missing due date", task: Task{Title: "Revise", CourseID: "c1"}, wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := tt.task.Validate(); (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestRepository_missingID(t *testing.T) {
	repo := NewRepository(memorystore.Open(), logger)

	if err := repo.Update(ctx, Task{Title: "Revise", CourseID: "c1", DueDate: due(1)}); err != ErrMissingID {
		t.Errorf("Update() error = %v, want ErrMissingID", err)
	}
	if err := repo.Delete(ctx, ""); err != ErrMissingID {
		t.Errorf("Delete() error = %v, want ErrMissingID", err)
	}
}

func TestRepository_GetForCourse(t *testing.T) {
	store := memorystore.Open()
	repo := NewRepository(store, logger)

	repo.Create(ctx, Task{Title: "late", CourseID: "c1", DueDate: due(20)})
	repo.Create(ctx, Task{Title: "early", CourseID: "c1", DueDate: due(2)})
	repo.Create(ctx, Task{Title: "other course", CourseID: "c2", DueDate: due(5)})

	tasks, err := repo.GetForCourse(ctx, "c1")
	if err != nil {
		t.Fatalf("GetForCourse() error = %v", err)
	}
	if len(tasks) != 2 {
		t.Fatalf("got %d tasks, want 2", len(tasks))
	}
	if tasks[0].Title != "early" || tasks[1].Title != "late" {
		t.Errorf("order = %+v, want due date ascending", tasks)
	}
}

func TestRepository_decodeTolerance(t *testing.T) {
	store := memorystore.Open()
	repo := NewRepository(store, logger)

	repo.Create(ctx, Task{Title: "Revise", CourseID: "c1", DueDate: due(1)})
	// malformed documents must be dropped, not fail the whole decode
	store.Add(ctx, Path, docstore.Document{"title": "no due date", "courseId": "c1", "isDone": false})
	store.Add(ctx, Path, docstore.Document{"courseId": "c1", "dueDate": due(2), "isDone": false})

	tasks, err := repo.GetForCourse(ctx, "c1")
	if err != nil {
		t.Fatalf("GetForCourse() error = %v", err)
	}
	if len(tasks) != 1 {
		t.Errorf("got %d tasks, want malformed ones dropped", len(tasks))
	}

	// courseTitle is cosmetic; its absence is fine
	store.Add(ctx, Path, docstore.Document{"title": "t", "courseId": "c1", "dueDate": due(3), "isDone": true})
	tasks, _ = repo.GetForCourse(ctx, "c1")
	if len(tasks) != 2 {
		t.Errorf("got %d tasks, want the courseTitle-less one kept", len(tasks))
	}
}

func TestRepository_Listen(t *testing.T) {
	store := memorystore.Open()
	repo := NewRepository(store, logger)

	deliveries := make(chan []Task, 16)
	if err := repo.Listen(func(items []Task) { deliveries <- items }); err != nil {
		t.Fatalf("Listen() error = %v", err)
	}
	defer repo.StopListening()

	next := func() []Task {
		t.Helper()
		select {
		case items := <-deliveries:
			return items
		case <-time.After(2 * time.Second):
			t.Fatal("timed out waiting for delivery")
			return nil
		}
	}

	if items := next(); len(items) != 0 {
		t.Fatalf("initial snapshot has %d tasks, want 0", len(items))
	}

	// the dashboard subscription spans all courses, ordered by due date
	repo.Create(ctx, Task{Title: "b", CourseID: "c1", DueDate: due(10)})
	next()
	repo.Create(ctx, Task{Title: "a", CourseID: "c2", DueDate: due(1)})
	items := next()
	if len(items) != 2 {
		t.Fatalf("got %d tasks, want 2", len(items))
	}
	if items[0].Title != "a" {
		t.Errorf("first = %q, want ordering by due date", items[0].Title)
	}
}
