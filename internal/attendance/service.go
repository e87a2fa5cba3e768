package attendance

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"golang.org/x/text/unicode/norm"

	"github.com/campusattend/attendance/internal/metrics"
	"github.com/campusattend/attendance/internal/recognition"
)

// Recognizer identifies a student from captured frames and enrolls gallery images.
type Recognizer interface {
	Identify(ctx context.Context, frames []string) (recognition.Match, error)
	Enroll(ctx context.Context, studentID, name string, images []string) (int, error)
}

// MarkRequest is one capture submitted from a kiosk.
type MarkRequest struct {
	StudentID string   `validate:"required,max=64"`
	Name      string   `validate:"required,max=200"`
	Email     string   `validate:"required,email"`
	Lecture   string   `validate:"required,max=120"`
	Frames    []string `validate:"required,min=1,dive,required"`
	// EnrollImages are added to the gallery for StudentID before identification.
	EnrollImages []string `validate:"dive,required"`
	DeviceID     string
}

// MarkResult reports the recorded (or already present) event.
type MarkResult struct {
	Event      Event             `json:"event"`
	Student    Student           `json:"student"`
	Match      recognition.Match `json:"match"`
	Created    bool              `json:"created"`
	Registered bool              `json:"registered"`
}

// Service coordinates registration, recognition and attendance recording.
type Service struct {
	repo       *Repository
	recognizer Recognizer
	validate   *validator.Validate
	loc        *time.Location
	threshold  float64
	now        func() time.Time
}

// Option customises a Service.
type Option func(*Service)

// WithLocation sets the campus time zone used to derive lecture dates.
func WithLocation(loc *time.Location) Option {
	return func(s *Service) {
		if loc != nil {
			s.loc = loc
		}
	}
}

// WithThreshold sets the defaulter threshold percentage.
func WithThreshold(pct float64) Option {
	return func(s *Service) { s.threshold = pct }
}

// WithClock overrides time.Now.
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

// NewService creates a service backed by a repository and a recognizer.
func NewService(repo *Repository, recognizer Recognizer, opts ...Option) *Service {
	s := &Service{
		repo:       repo,
		recognizer: recognizer,
		validate:   validator.New(),
		loc:        time.UTC,
		threshold:  DefaultThreshold,
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func clean(s string) string {
	return norm.NFC.String(strings.TrimSpace(s))
}

func (s *Service) check(v any) error {
	if err := s.validate.Struct(v); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalid, err)
	}
	return nil
}

// RegisterStudent adds a student to the roster if the identifier is new. An existing
// student is returned unchanged.
func (s *Service) RegisterStudent(ctx context.Context, st Student) (Student, bool, error) {
	st.StudentID = clean(st.StudentID)
	st.Name = clean(st.Name)
	st.Email = strings.ToLower(strings.TrimSpace(st.Email))
	if err := s.check(st); err != nil {
		return Student{}, false, err
	}
	st.RegisteredAt = s.now().UTC()

	created, err := s.repo.EnsureStudent(ctx, st)
	if err != nil {
		return Student{}, false, fmt.Errorf("register student: %w", err)
	}
	if created {
		return st, true, nil
	}
	existing, err := s.repo.GetStudent(ctx, st.StudentID)
	if err != nil {
		return Student{}, false, fmt.Errorf("load student: %w", err)
	}
	if existing == nil {
		return Student{}, false, ErrNotFound
	}
	return *existing, false, nil
}

// GetStudent returns a roster entry or ErrNotFound.
func (s *Service) GetStudent(ctx context.Context, studentID string) (Student, error) {
	st, err := s.repo.GetStudent(ctx, clean(studentID))
	if err != nil {
		return Student{}, err
	}
	if st == nil {
		return Student{}, ErrNotFound
	}
	return *st, nil
}

// ListStudents returns the roster.
func (s *Service) ListStudents(ctx context.Context) ([]Student, error) {
	return s.repo.ListStudents(ctx)
}

// Enroll adds gallery images for an existing student.
func (s *Service) Enroll(ctx context.Context, studentID string, images []string) (int, error) {
	st, err := s.GetStudent(ctx, studentID)
	if err != nil {
		return 0, err
	}
	if len(images) == 0 {
		return 0, fmt.Errorf("%w: at least one image required", ErrInvalid)
	}
	return s.recognizer.Enroll(ctx, st.StudentID, st.Name, images)
}

// Mark registers the student if new, identifies who is in the frames, and records one
// event per (student, lecture, date). A repeat submission is reported with
// Created=false and no error.
func (s *Service) Mark(ctx context.Context, req MarkRequest) (MarkResult, error) {
	req.Lecture = clean(req.Lecture)
	if err := s.check(req); err != nil {
		metrics.Marks.WithLabelValues("invalid").Inc()
		return MarkResult{}, err
	}

	_, registered, err := s.RegisterStudent(ctx, Student{StudentID: req.StudentID, Name: req.Name, Email: req.Email})
	if err != nil {
		metrics.Marks.WithLabelValues("error").Inc()
		return MarkResult{}, err
	}

	if len(req.EnrollImages) > 0 {
		if _, err := s.Enroll(ctx, req.StudentID, req.EnrollImages); err != nil {
			metrics.Marks.WithLabelValues("error").Inc()
			return MarkResult{}, fmt.Errorf("enroll: %w", err)
		}
	}

	match, err := s.recognizer.Identify(ctx, req.Frames)
	if err != nil {
		if errors.Is(err, recognition.ErrNoMatch) {
			metrics.Marks.WithLabelValues("not_recognized").Inc()
		} else {
			metrics.Marks.WithLabelValues("error").Inc()
		}
		return MarkResult{}, err
	}

	// the recorded student is whoever was recognized, which may differ from the form
	student, err := s.GetStudent(ctx, match.StudentID)
	if err != nil {
		metrics.Marks.WithLabelValues("not_found").Inc()
		return MarkResult{}, fmt.Errorf("matched %s: %w", match.StudentID, err)
	}

	now := s.now()
	score := match.Similarity
	evt, created, err := s.repo.InsertEvent(ctx, Event{
		StudentID:  student.StudentID,
		Lecture:    req.Lecture,
		Date:       LectureDate(now, s.loc),
		CapturedAt: now.UTC(),
		DeviceID:   req.DeviceID,
		ImageURL:   match.Frame,
		MatchScore: &score,
	})
	if err != nil {
		metrics.Marks.WithLabelValues("error").Inc()
		return MarkResult{}, fmt.Errorf("record attendance: %w", err)
	}
	if created {
		metrics.Marks.WithLabelValues("created").Inc()
	} else {
		metrics.Marks.WithLabelValues("duplicate").Inc()
	}

	return MarkResult{Event: evt, Student: student, Match: match, Created: created, Registered: registered}, nil
}

// ListEvents returns filtered events.
func (s *Service) ListEvents(ctx context.Context, f EventFilter) ([]Event, error) {
	return s.repo.ListEvents(ctx, f)
}

// Report computes attendance over the current event snapshot.
func (s *Service) Report(ctx context.Context) (Report, error) {
	events, err := s.repo.Snapshot(ctx)
	if err != nil {
		return Report{}, fmt.Errorf("load events: %w", err)
	}
	rep := Compute(events, s.threshold)
	metrics.Defaulters.Set(float64(len(rep.Defaulters)))
	return rep, nil
}

// Defaulters returns students below the threshold with their contact details.
// Defaulters missing from the roster are skipped.
func (s *Service) Defaulters(ctx context.Context) ([]Defaulter, error) {
	rep, err := s.Report(ctx)
	if err != nil {
		return nil, err
	}
	students, err := s.repo.ListStudents(ctx)
	if err != nil {
		return nil, fmt.Errorf("load roster: %w", err)
	}
	roster := make(map[string]Student, len(students))
	for _, st := range students {
		roster[st.StudentID] = st
	}

	out := make([]Defaulter, 0, len(rep.Defaulters))
	for _, d := range rep.Defaulters {
		st, ok := roster[d.StudentID]
		if !ok {
			continue
		}
		out = append(out, Defaulter{StudentID: st.StudentID, Name: st.Name, Email: st.Email, Percentage: d.Percentage})
	}
	return out, nil
}
