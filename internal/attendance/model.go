package attendance

import (
	"errors"
	"time"
)

var (
	// ErrNotFound is returned when a referenced student is absent from the roster.
	ErrNotFound = errors.New("student not found")
	// ErrInvalid wraps request validation failures.
	ErrInvalid = errors.New("invalid request")
)

// Student is a roster entry. StudentID is the roll number and never changes.
type Student struct {
	StudentID    string    `json:"student_id" validate:"required,max=64"`
	Name         string    `json:"name" validate:"required,max=200"`
	Email        string    `json:"email" validate:"required,email"`
	RegisteredAt time.Time `json:"registered_at"`
}

// Event records that a student was present at a lecture on a date.
type Event struct {
	ID         string    `json:"id"`
	StudentID  string    `json:"student_id"`
	Lecture    string    `json:"lecture"`
	Date       time.Time `json:"date"`
	CapturedAt time.Time `json:"captured_at"`
	DeviceID   string    `json:"device_id,omitempty"`
	ImageURL   string    `json:"image_url,omitempty"`
	MatchScore *float64  `json:"match_score,omitempty"`
}

// DateKey is the calendar date of the event as YYYY-MM-DD.
func (e Event) DateKey() string {
	return e.Date.Format(time.DateOnly)
}

// LectureDate truncates t to its calendar date in loc, expressed as midnight UTC so
// the same day always stores the same value.
func LectureDate(t time.Time, loc *time.Location) time.Time {
	if loc == nil {
		loc = time.UTC
	}
	y, m, d := t.In(loc).Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// EventFilter narrows ListEvents.
type EventFilter struct {
	StudentID string
	Lecture   string
	DeviceID  string
	Limit     int
	Offset    int
}

// Defaulter is a student below the attendance threshold, joined with roster contact
// details.
type Defaulter struct {
	StudentID  string  `json:"student_id"`
	Name       string  `json:"name"`
	Email      string  `json:"email"`
	Percentage float64 `json:"percentage"`
}
