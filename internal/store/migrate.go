package store

import (
	"context"
	"fmt"
)

// The unique (student_id, lecture, lecture_date) constraint is what keeps concurrent
// submissions for the same lecture down to one row.
var postgresSchema = []string{
	`CREATE TABLE IF NOT EXISTS students (
		student_id    TEXT PRIMARY KEY,
		name          TEXT NOT NULL,
		email         TEXT NOT NULL,
		registered_at TIMESTAMPTZ NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS attendance_events (
		id           TEXT PRIMARY KEY,
		student_id   TEXT NOT NULL REFERENCES students(student_id),
		lecture      TEXT NOT NULL,
		lecture_date DATE NOT NULL,
		captured_at  TIMESTAMPTZ NOT NULL,
		device_id    TEXT NOT NULL DEFAULT '',
		image_url    TEXT NOT NULL DEFAULT '',
		match_score  DOUBLE PRECISION,
		CONSTRAINT attendance_once_per_lecture UNIQUE (student_id, lecture, lecture_date)
	)`,
	`CREATE INDEX IF NOT EXISTS idx_attendance_date ON attendance_events(lecture_date)`,
	`CREATE TABLE IF NOT EXISTS devices (
		device_id  TEXT PRIMARY KEY,
		created_at TIMESTAMPTZ NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS refresh_tokens (
		token      TEXT PRIMARY KEY,
		device_id  TEXT NOT NULL REFERENCES devices(device_id),
		expires_at TIMESTAMPTZ NOT NULL,
		revoked    BOOLEAN NOT NULL DEFAULT FALSE
	)`,
}

// go-sqlite3 only parses DATE/DATETIME/TIMESTAMP/BOOLEAN declared columns back into
// Go types, hence the separate dialect.
var sqliteSchema = []string{
	`PRAGMA foreign_keys = ON`,
	`CREATE TABLE IF NOT EXISTS students (
		student_id    TEXT PRIMARY KEY,
		name          TEXT NOT NULL,
		email         TEXT NOT NULL,
		registered_at DATETIME NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS attendance_events (
		id           TEXT PRIMARY KEY,
		student_id   TEXT NOT NULL REFERENCES students(student_id),
		lecture      TEXT NOT NULL,
		lecture_date DATE NOT NULL,
		captured_at  DATETIME NOT NULL,
		device_id    TEXT NOT NULL DEFAULT '',
		image_url    TEXT NOT NULL DEFAULT '',
		match_score  REAL,
		UNIQUE (student_id, lecture, lecture_date)
	)`,
	`CREATE INDEX IF NOT EXISTS idx_attendance_date ON attendance_events(lecture_date)`,
	`CREATE TABLE IF NOT EXISTS devices (
		device_id  TEXT PRIMARY KEY,
		created_at DATETIME NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS refresh_tokens (
		token      TEXT PRIMARY KEY,
		device_id  TEXT NOT NULL REFERENCES devices(device_id),
		expires_at DATETIME NOT NULL,
		revoked    BOOLEAN NOT NULL DEFAULT FALSE
	)`,
}

// Migrate creates the schema for the active driver. Safe to run repeatedly.
func (d *DB) Migrate(ctx context.Context) error {
	stmts := postgresSchema
	if d.Driver == DriverSQLite {
		stmts = sqliteSchema
	}
	for _, stmt := range stmts {
		if _, err := d.Client.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("migrate: %w", err)
		}
	}
	return nil
}
