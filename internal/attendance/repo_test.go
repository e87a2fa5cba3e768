package attendance

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/campusattend/attendance/internal/store"
)

func newTestRepo(t *testing.T) *Repository {
	t.Helper()
	db, err := store.NewDB(store.DriverSQLite, ":memory:")
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	if err := db.Migrate(context.Background()); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return NewRepository(db.Client)
}

func seedStudent(t *testing.T, r *Repository, id string) {
	t.Helper()
	if _, err := r.EnsureStudent(context.Background(), Student{StudentID: id, Name: "Student " + id, Email: id + "@campus.edu"}); err != nil {
		t.Fatalf("seed student %s: %v", id, err)
	}
}

func TestEnsureStudent_DoesNotOverwrite(t *testing.T) {
	r := newTestRepo(t)
	ctx := context.Background()

	created, err := r.EnsureStudent(ctx, Student{StudentID: "CS101", Name: "Asha", Email: "asha@campus.edu"})
	if err != nil || !created {
		t.Fatalf("expected first insert to create, got created=%v err=%v", created, err)
	}
	created, err = r.EnsureStudent(ctx, Student{StudentID: "CS101", Name: "Someone Else", Email: "x@campus.edu"})
	if err != nil || created {
		t.Fatalf("expected second insert to be a no-op, got created=%v err=%v", created, err)
	}

	st, err := r.GetStudent(ctx, "CS101")
	if err != nil || st == nil {
		t.Fatalf("get student: %v", err)
	}
	if st.Name != "Asha" || st.Email != "asha@campus.edu" {
		t.Errorf("student was mutated: %+v", st)
	}
}

func TestGetStudent_Missing(t *testing.T) {
	r := newTestRepo(t)

	st, err := r.GetStudent(context.Background(), "nobody")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if st != nil {
		t.Errorf("expected nil, got %+v", st)
	}
}

func TestInsertEvent_DuplicateIsNoop(t *testing.T) {
	r := newTestRepo(t)
	ctx := context.Background()
	seedStudent(t, r, "CS101")

	captured := time.Date(2024, 3, 4, 9, 15, 0, 0, time.UTC)
	first, created, err := r.InsertEvent(ctx, Event{StudentID: "CS101", Lecture: "Math", CapturedAt: captured})
	if err != nil || !created {
		t.Fatalf("expected create, got created=%v err=%v", created, err)
	}

	second, created, err := r.InsertEvent(ctx, Event{StudentID: "CS101", Lecture: "Math", CapturedAt: captured.Add(2 * time.Hour)})
	if err != nil {
		t.Fatalf("duplicate should not error: %v", err)
	}
	if created {
		t.Error("duplicate reported as created")
	}
	if second.ID != first.ID {
		t.Errorf("expected existing event %s, got %s", first.ID, second.ID)
	}

	// another lecture on the same day is a separate fact
	if _, created, err := r.InsertEvent(ctx, Event{StudentID: "CS101", Lecture: "Physics", CapturedAt: captured}); err != nil || !created {
		t.Errorf("expected Physics event created, got created=%v err=%v", created, err)
	}
}

func TestInsertEvent_ConcurrentSubmissionsRecordOnce(t *testing.T) {
	r := newTestRepo(t)
	ctx := context.Background()
	seedStudent(t, r, "CS101")

	captured := time.Date(2024, 3, 4, 9, 0, 0, 0, time.UTC)
	const n = 8
	var wg sync.WaitGroup
	var mu sync.Mutex
	createdCount := 0
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, created, err := r.InsertEvent(ctx, Event{StudentID: "CS101", Lecture: "Math", CapturedAt: captured})
			if err != nil {
				t.Errorf("insert: %v", err)
				return
			}
			if created {
				mu.Lock()
				createdCount++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	if createdCount != 1 {
		t.Errorf("expected exactly one created event, got %d", createdCount)
	}
	events, err := r.Snapshot(ctx)
	if err != nil {
		t.Fatalf("snapshot: %v", err)
	}
	if len(events) != 1 {
		t.Errorf("expected 1 stored event, got %d", len(events))
	}
}

func TestInsertEvent_UnknownStudentRejected(t *testing.T) {
	r := newTestRepo(t)

	_, _, err := r.InsertEvent(context.Background(), Event{StudentID: "ghost", Lecture: "Math"})
	if err == nil {
		t.Fatal("expected foreign key violation")
	}
}

func TestListEvents_Filters(t *testing.T) {
	r := newTestRepo(t)
	ctx := context.Background()
	seedStudent(t, r, "A")
	seedStudent(t, r, "B")

	base := time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)
	inserts := []Event{
		{StudentID: "A", Lecture: "Math", CapturedAt: base, DeviceID: "kiosk-1"},
		{StudentID: "A", Lecture: "Chem", CapturedAt: base.Add(time.Hour), DeviceID: "kiosk-2"},
		{StudentID: "B", Lecture: "Math", CapturedAt: base.Add(2 * time.Hour), DeviceID: "kiosk-1"},
	}
	for _, e := range inserts {
		if _, _, err := r.InsertEvent(ctx, e); err != nil {
			t.Fatalf("insert: %v", err)
		}
	}

	all, err := r.ListEvents(ctx, EventFilter{})
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(all) != 3 || all[0].StudentID != "B" {
		t.Errorf("expected 3 events newest first, got %+v", all)
	}

	math, err := r.ListEvents(ctx, EventFilter{Lecture: "Math", DeviceID: "kiosk-1"})
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(math) != 2 {
		t.Errorf("expected 2 Math events from kiosk-1, got %d", len(math))
	}

	page, err := r.ListEvents(ctx, EventFilter{StudentID: "A", Limit: 1, Offset: 1})
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(page) != 1 || page[0].Lecture != "Math" {
		t.Errorf("unexpected page %+v", page)
	}
}

func TestRefreshTokens(t *testing.T) {
	r := newTestRepo(t)
	ctx := context.Background()
	now := time.Now().UTC()

	if err := r.UpsertDevice(ctx, "kiosk-1"); err != nil {
		t.Fatalf("upsert device: %v", err)
	}
	if err := r.UpsertDevice(ctx, "kiosk-1"); err != nil {
		t.Fatalf("upsert device twice: %v", err)
	}
	if err := r.SaveRefreshToken(ctx, "kiosk-1", "tok", now.Add(time.Hour)); err != nil {
		t.Fatalf("save token: %v", err)
	}

	active, err := r.RefreshTokenActive(ctx, "tok", now)
	if err != nil || !active {
		t.Fatalf("expected active token, got %v %v", active, err)
	}
	if active, _ := r.RefreshTokenActive(ctx, "tok", now.Add(2*time.Hour)); active {
		t.Error("expired token reported active")
	}

	if err := r.RevokeRefreshToken(ctx, "tok"); err != nil {
		t.Fatalf("revoke: %v", err)
	}
	if active, _ := r.RefreshTokenActive(ctx, "tok", now); active {
		t.Error("revoked token reported active")
	}
	if active, _ := r.RefreshTokenActive(ctx, "unknown", now); active {
		t.Error("unknown token reported active")
	}
}
