package ec

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/ovaphlow/pitchfork/service-ilearn-go/internal/ec/repo"
	userentity "github.com/ovaphlow/pitchfork/service-ilearn-go/internal/user/entity"
	userrepo "github.com/ovaphlow/pitchfork/service-ilearn-go/internal/user/repo"
	"github.com/ovaphlow/pitchfork/service-ilearn-go/pkg/database"
)

func newTestService(t *testing.T) *Service {
	t.Helper()
	dsn := "file:" + filepath.Join(t.TempDir(), "ec.db")
	db, err := database.Connect(database.Config{Driver: database.DriverSQLite, DSN: dsn})
	if err != nil {
		t.Fatalf("Connect() error = %v", err)
	}
	t.Cleanup(func() { db.Close() })
	ctx := context.Background()

	users := userrepo.NewUserRepo(db)
	if err := users.EnsureTable(ctx); err != nil {
		t.Fatalf("users EnsureTable() error = %v", err)
	}
	if err := users.InsertIdentity(ctx, &userentity.Identity{UID: "teacher1", PasswordHash: "h", Role: 1, ChiName: "黃老師"}); err != nil {
		t.Fatalf("InsertIdentity() error = %v", err)
	}
	r := repo.NewRepo(db)
	if err := r.EnsureTable(ctx); err != nil {
		t.Fatalf("ec EnsureTable() error = %v", err)
	}
	if err := r.Create(ctx, 1, "Choir", "Sings", "teacher1", 0); err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	if err := r.Create(ctx, 2, "Robotics", "Builds", "nobody", 150); err != nil {
		t.Fatalf("Create() error = %v", err)
	}

	svc := NewService(r)
	svc.now = func() time.Time { return time.Date(2026, 10, 15, 8, 0, 0, 0, time.UTC) }
	return svc
}

func TestList(t *testing.T) {
	svc := newTestService(t)
	ecs, err := svc.List(context.Background())
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if len(ecs) != 2 || ecs[0].Teacher != "黃老師" || ecs[1].Teacher != "" || ecs[1].Cost != 150 {
		t.Fatalf("ecs = %+v", ecs)
	}
}

func TestJoinAndAttendance(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	n, err := svc.Join(ctx, "s001", []int64{1, 0, 99})
	if err != nil {
		t.Fatalf("Join() error = %v", err)
	}
	if n != 1 {
		t.Fatalf("joined = %d, want 1", n)
	}
	if _, err := svc.Join(ctx, "s001", []int64{1}); !errors.Is(err, ErrNoneJoined) {
		t.Fatalf("repeat Join() error = %v, want ErrNoneJoined", err)
	}
	if n, err := svc.Join(ctx, "s001", []int64{1, 2}); err != nil || n != 1 {
		t.Fatalf("Join(1,2) = %d, %v", n, err)
	}

	got, err := svc.Attendance(ctx, "s001")
	if err != nil {
		t.Fatalf("Attendance() error = %v", err)
	}
	if len(got) != 2 || got[0].Name != "Choir" || got[1].Name != "Robotics" {
		t.Fatalf("attendance = %+v", got)
	}
	if other, _ := svc.Attendance(ctx, "s002"); len(other) != 0 {
		t.Fatalf("s002 attendance = %+v", other)
	}
}

func TestJoinRejects(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()
	if _, err := svc.Join(ctx, "s001", []int64{1, 2, 3, 4}); !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("Join(4 ids) error = %v", err)
	}
	if _, err := svc.Join(ctx, "s001", []int64{0, -1}); !errors.Is(err, ErrNoneJoined) {
		t.Fatalf("Join(no valid ids) error = %v", err)
	}
	if _, err := svc.Join(ctx, "s001", nil); !errors.Is(err, ErrNoneJoined) {
		t.Fatalf("Join(nil) error = %v", err)
	}
}
