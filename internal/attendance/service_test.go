package attendance

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/campusattend/attendance/internal/recognition"
)

type stubRecognizer struct {
	match    recognition.Match
	err      error
	enrolled map[string][]string
}

func (s *stubRecognizer) Identify(ctx context.Context, frames []string) (recognition.Match, error) {
	if s.err != nil {
		return recognition.Match{}, s.err
	}
	m := s.match
	m.Frame = frames[0]
	return m, nil
}

func (s *stubRecognizer) Enroll(ctx context.Context, studentID, name string, images []string) (int, error) {
	if s.enrolled == nil {
		s.enrolled = map[string][]string{}
	}
	s.enrolled[studentID] = append(s.enrolled[studentID], images...)
	return len(images), nil
}

func newTestService(t *testing.T, rec Recognizer, now time.Time) *Service {
	t.Helper()
	return NewService(newTestRepo(t), rec, WithClock(func() time.Time { return now }))
}

func markReq(id string) MarkRequest {
	return MarkRequest{
		StudentID: id,
		Name:      "Student " + id,
		Email:     id + "@campus.edu",
		Lecture:   "Math",
		Frames:    []string{"https://cdn/frame-" + id + ".jpg"},
		DeviceID:  "kiosk-1",
	}
}

func TestMark_RegistersAndRecords(t *testing.T) {
	rec := &stubRecognizer{match: recognition.Match{StudentID: "CS101", Similarity: 0.8}}
	now := time.Date(2024, 3, 4, 9, 0, 0, 0, time.UTC)
	svc := newTestService(t, rec, now)
	ctx := context.Background()

	res, err := svc.Mark(ctx, markReq("CS101"))
	if err != nil {
		t.Fatalf("mark: %v", err)
	}
	if !res.Created || !res.Registered {
		t.Errorf("expected created and registered, got %+v", res)
	}
	if res.Event.DateKey() != "2024-03-04" {
		t.Errorf("unexpected date %s", res.Event.DateKey())
	}
	if res.Event.MatchScore == nil || *res.Event.MatchScore != 0.8 {
		t.Errorf("expected match score 0.8, got %v", res.Event.MatchScore)
	}
	if res.Event.ImageURL != "https://cdn/frame-CS101.jpg" {
		t.Errorf("unexpected image url %s", res.Event.ImageURL)
	}

	again, err := svc.Mark(ctx, markReq("CS101"))
	if err != nil {
		t.Fatalf("second mark should be a silent no-op, got %v", err)
	}
	if again.Created || again.Registered {
		t.Errorf("expected duplicate, got %+v", again)
	}
	if again.Event.ID != res.Event.ID {
		t.Errorf("expected the first event returned")
	}
}

func TestMark_RecordsRecognizedStudent(t *testing.T) {
	rec := &stubRecognizer{match: recognition.Match{StudentID: "CS102", Similarity: 0.7}}
	svc := newTestService(t, rec, time.Now())
	ctx := context.Background()

	if _, _, err := svc.RegisterStudent(ctx, Student{StudentID: "CS102", Name: "Ravi", Email: "ravi@campus.edu"}); err != nil {
		t.Fatalf("register: %v", err)
	}

	res, err := svc.Mark(ctx, markReq("CS101"))
	if err != nil {
		t.Fatalf("mark: %v", err)
	}
	if res.Event.StudentID != "CS102" || res.Student.Name != "Ravi" {
		t.Errorf("expected attendance for recognized CS102, got %+v", res)
	}
}

func TestMark_NotRecognized(t *testing.T) {
	rec := &stubRecognizer{err: recognition.ErrNoMatch}
	svc := newTestService(t, rec, time.Now())

	_, err := svc.Mark(context.Background(), markReq("CS101"))
	if !errors.Is(err, recognition.ErrNoMatch) {
		t.Fatalf("expected ErrNoMatch, got %v", err)
	}
	events, _ := svc.ListEvents(context.Background(), EventFilter{})
	if len(events) != 0 {
		t.Errorf("expected no events, got %d", len(events))
	}
}

func TestMark_MatchedIdentityNotOnRoster(t *testing.T) {
	rec := &stubRecognizer{match: recognition.Match{StudentID: "ghost", Similarity: 0.9}}
	svc := newTestService(t, rec, time.Now())

	_, err := svc.Mark(context.Background(), markReq("CS101"))
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestMark_Validation(t *testing.T) {
	svc := newTestService(t, &stubRecognizer{}, time.Now())

	req := markReq("CS101")
	req.Email = "not-an-email"
	if _, err := svc.Mark(context.Background(), req); !errors.Is(err, ErrInvalid) {
		t.Errorf("expected ErrInvalid for email, got %v", err)
	}

	req = markReq("CS101")
	req.Frames = nil
	if _, err := svc.Mark(context.Background(), req); !errors.Is(err, ErrInvalid) {
		t.Errorf("expected ErrInvalid for missing frames, got %v", err)
	}

	req = markReq("CS101")
	req.Lecture = "   "
	if _, err := svc.Mark(context.Background(), req); !errors.Is(err, ErrInvalid) {
		t.Errorf("expected ErrInvalid for blank lecture, got %v", err)
	}
}

func TestMark_EnrollsBeforeIdentify(t *testing.T) {
	rec := &stubRecognizer{match: recognition.Match{StudentID: "CS101", Similarity: 0.9}}
	svc := newTestService(t, rec, time.Now())

	req := markReq("CS101")
	req.EnrollImages = []string{"https://cdn/e1.jpg", "https://cdn/e2.jpg"}
	if _, err := svc.Mark(context.Background(), req); err != nil {
		t.Fatalf("mark: %v", err)
	}
	if len(rec.enrolled["CS101"]) != 2 {
		t.Errorf("expected 2 enrolled images, got %v", rec.enrolled)
	}
}

func TestMark_DateUsesCampusTimezone(t *testing.T) {
	loc := time.FixedZone("IST", 5*3600+1800)
	// 20:00 UTC on the 4th is already the 5th on campus
	now := time.Date(2024, 3, 4, 20, 0, 0, 0, time.UTC)
	rec := &stubRecognizer{match: recognition.Match{StudentID: "CS101", Similarity: 0.9}}
	svc := NewService(newTestRepo(t), rec, WithLocation(loc), WithClock(func() time.Time { return now }))

	res, err := svc.Mark(context.Background(), markReq("CS101"))
	if err != nil {
		t.Fatalf("mark: %v", err)
	}
	if res.Event.DateKey() != "2024-03-05" {
		t.Errorf("expected campus date 2024-03-05, got %s", res.Event.DateKey())
	}
}

func TestEnroll_UnknownStudent(t *testing.T) {
	svc := newTestService(t, &stubRecognizer{}, time.Now())

	if _, err := svc.Enroll(context.Background(), "nobody", []string{"a.jpg"}); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestDefaulters_JoinsRoster(t *testing.T) {
	ctx := context.Background()
	repo := newTestRepo(t)
	svc := NewService(repo, &stubRecognizer{})

	seedStudent(t, repo, "S1")
	seedStudent(t, repo, "S2")
	for _, e := range []Event{
		{StudentID: "S1", Lecture: "Math", Date: day(1)},
		{StudentID: "S1", Lecture: "Math", Date: day(2)},
		{StudentID: "S2", Lecture: "Math", Date: day(1)},
	} {
		if _, _, err := repo.InsertEvent(ctx, e); err != nil {
			t.Fatalf("insert: %v", err)
		}
	}

	rep, err := svc.Report(ctx)
	if err != nil {
		t.Fatalf("report: %v", err)
	}
	if rep.TotalSessions != 2 || len(rep.Students) != 2 {
		t.Errorf("unexpected report %+v", rep)
	}

	ds, err := svc.Defaulters(ctx)
	if err != nil {
		t.Fatalf("defaulters: %v", err)
	}
	if len(ds) != 1 {
		t.Fatalf("expected 1 defaulter, got %+v", ds)
	}
	if ds[0].StudentID != "S2" || ds[0].Email != "S2@campus.edu" || ds[0].Percentage != 50 {
		t.Errorf("unexpected defaulter %+v", ds[0])
	}
}
