package attendance

import (
	"context"
	"database/sql"
	"errors"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Repository persists the roster and attendance events. Queries use $n placeholders in
// first-use order so they run unchanged on pgx and go-sqlite3.
type Repository struct {
	db *sql.DB
}

// NewRepository creates a repo.
func NewRepository(db *sql.DB) *Repository {
	return &Repository{db: db}
}

const eventColumns = `id, student_id, lecture, lecture_date, captured_at, device_id, image_url, match_score`

type scanner interface {
	Scan(dest ...any) error
}

func scanEvent(s scanner) (Event, error) {
	var evt Event
	err := s.Scan(&evt.ID, &evt.StudentID, &evt.Lecture, &evt.Date, &evt.CapturedAt, &evt.DeviceID, &evt.ImageURL, &evt.MatchScore)
	return evt, err
}

// EnsureStudent inserts the student unless the identifier is already on the roster.
// Existing rows are left untouched.
func (r *Repository) EnsureStudent(ctx context.Context, st Student) (bool, error) {
	if st.RegisteredAt.IsZero() {
		st.RegisteredAt = time.Now().UTC()
	}
	res, err := r.db.ExecContext(ctx, `
		INSERT INTO students (student_id, name, email, registered_at)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (student_id) DO NOTHING
	`, st.StudentID, st.Name, st.Email, st.RegisteredAt.UTC())
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

// GetStudent returns a student by identifier, or nil when absent.
func (r *Repository) GetStudent(ctx context.Context, studentID string) (*Student, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT student_id, name, email, registered_at
		FROM students WHERE student_id = $1
	`, studentID)
	var st Student
	if err := row.Scan(&st.StudentID, &st.Name, &st.Email, &st.RegisteredAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return &st, nil
}

// ListStudents returns the roster ordered by identifier.
func (r *Repository) ListStudents(ctx context.Context) ([]Student, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT student_id, name, email, registered_at
		FROM students
		ORDER BY student_id
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var students []Student
	for rows.Next() {
		var st Student
		if err := rows.Scan(&st.StudentID, &st.Name, &st.Email, &st.RegisteredAt); err != nil {
			return nil, err
		}
		students = append(students, st)
	}
	return students, rows.Err()
}

// InsertEvent writes a new event. A row for the same (student, lecture, date) already
// present is not an error: the stored event is returned with created=false.
func (r *Repository) InsertEvent(ctx context.Context, evt Event) (Event, bool, error) {
	if evt.ID == "" {
		evt.ID = uuid.NewString()
	}
	if evt.CapturedAt.IsZero() {
		evt.CapturedAt = time.Now().UTC()
	}
	if evt.Date.IsZero() {
		evt.Date = evt.CapturedAt
	}
	evt.Date = LectureDate(evt.Date, evt.Date.Location())
	evt.CapturedAt = evt.CapturedAt.UTC()

	res, err := r.db.ExecContext(ctx, `
		INSERT INTO attendance_events (id, student_id, lecture, lecture_date, captured_at, device_id, image_url, match_score)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (student_id, lecture, lecture_date) DO NOTHING
	`, evt.ID, evt.StudentID, evt.Lecture, evt.Date, evt.CapturedAt, evt.DeviceID, evt.ImageURL, evt.MatchScore)
	if err != nil {
		return Event{}, false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return Event{}, false, err
	}
	if n == 1 {
		return evt, true, nil
	}

	existing, err := r.FindEvent(ctx, evt.StudentID, evt.Lecture, evt.Date)
	if err != nil {
		return Event{}, false, err
	}
	if existing == nil {
		return Event{}, false, errors.New("attendance insert skipped but no existing row found")
	}
	return *existing, false, nil
}

// FindEvent returns the event for a (student, lecture, date) triple, or nil.
func (r *Repository) FindEvent(ctx context.Context, studentID, lecture string, date time.Time) (*Event, error) {
	date = LectureDate(date, date.Location())
	row := r.db.QueryRowContext(ctx, `
		SELECT `+eventColumns+`
		FROM attendance_events
		WHERE student_id = $1 AND lecture = $2 AND lecture_date = $3
	`, studentID, lecture, date)
	evt, err := scanEvent(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return &evt, nil
}

// ListEvents returns events with basic filters, newest first.
func (r *Repository) ListEvents(ctx context.Context, f EventFilter) ([]Event, error) {
	if f.Limit <= 0 || f.Limit > 500 {
		f.Limit = 50
	}
	if f.Offset < 0 {
		f.Offset = 0
	}
	query := `SELECT ` + eventColumns + ` FROM attendance_events`
	args := []any{}
	clauses := []string{}
	add := func(column, value string) {
		if value == "" {
			return
		}
		args = append(args, value)
		clauses = append(clauses, column+" = $"+strconv.Itoa(len(args)))
	}
	add("student_id", f.StudentID)
	add("lecture", f.Lecture)
	add("device_id", f.DeviceID)
	if len(clauses) > 0 {
		query += " WHERE " + strings.Join(clauses, " AND ")
	}
	query += " ORDER BY captured_at DESC LIMIT $" + strconv.Itoa(len(args)+1) + " OFFSET $" + strconv.Itoa(len(args)+2)
	args = append(args, f.Limit, f.Offset)

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectEvents(rows)
}

// Snapshot returns every event, ordered by student then date, for aggregation.
func (r *Repository) Snapshot(ctx context.Context) ([]Event, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT `+eventColumns+`
		FROM attendance_events
		ORDER BY student_id, lecture_date, lecture
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectEvents(rows)
}

func collectEvents(rows *sql.Rows) ([]Event, error) {
	var res []Event
	for rows.Next() {
		evt, err := scanEvent(rows)
		if err != nil {
			return nil, err
		}
		res = append(res, evt)
	}
	return res, rows.Err()
}

// UpsertDevice ensures a kiosk device record exists.
func (r *Repository) UpsertDevice(ctx context.Context, deviceID string) error {
	if deviceID == "" {
		return errors.New("device id required")
	}
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO devices (device_id, created_at)
		VALUES ($1, $2)
		ON CONFLICT (device_id) DO NOTHING
	`, deviceID, time.Now().UTC())
	return err
}

// SaveRefreshToken stores a refresh token for rotation checks.
func (r *Repository) SaveRefreshToken(ctx context.Context, deviceID, token string, expiresAt time.Time) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO refresh_tokens (token, device_id, expires_at, revoked)
		VALUES ($1, $2, $3, $4)
	`, token, deviceID, expiresAt.UTC(), false)
	return err
}

// RefreshTokenActive reports whether token is stored, unrevoked and unexpired.
func (r *Repository) RefreshTokenActive(ctx context.Context, token string, now time.Time) (bool, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT expires_at, revoked FROM refresh_tokens WHERE token = $1
	`, token)
	var expiresAt time.Time
	var revoked bool
	if err := row.Scan(&expiresAt, &revoked); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return false, nil
		}
		return false, err
	}
	return !revoked && now.Before(expiresAt), nil
}

// RevokeRefreshToken marks a token revoked.
func (r *Repository) RevokeRefreshToken(ctx context.Context, token string) error {
	_, err := r.db.ExecContext(ctx, `UPDATE refresh_tokens SET revoked = $1 WHERE token = $2`, true, token)
	return err
}
