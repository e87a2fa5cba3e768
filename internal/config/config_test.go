package config

import (
	"strings"
	"testing"
	"time"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if cfg.HTTPPort != "8081" {
		t.Errorf("expected default port 8081, got %s", cfg.HTTPPort)
	}
	if cfg.AttendanceThreshold != 75 {
		t.Errorf("expected default threshold 75, got %v", cfg.AttendanceThreshold)
	}
	if cfg.RecognitionTimeout != 10*time.Second {
		t.Errorf("expected 10s recognition timeout, got %s", cfg.RecognitionTimeout)
	}
	if cfg.MatchPolicy != "first-match" {
		t.Errorf("expected first-match policy, got %s", cfg.MatchPolicy)
	}
	if cfg.NotifySchedule != "0 18 28 * *" {
		t.Errorf("unexpected default schedule %q", cfg.NotifySchedule)
	}
	if cfg.SMTP.Enabled() {
		t.Error("expected SMTP disabled without host")
	}
}

func TestLoad_EnvOverrides(t *testing.T) {
	t.Setenv("DB_DRIVER", "sqlite3")
	t.Setenv("DATABASE_URL", "file:test.db")
	t.Setenv("RECOGNITION_TIMEOUT", "3s")
	t.Setenv("MATCH_POLICY", "best-match")
	t.Setenv("SMTP_HOST", "smtp.example.edu")
	t.Setenv("SMTP_FROM", "attendance@example.edu")
	t.Setenv("CAMPUS_TZ", "Asia/Kolkata")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.DBDriver != "sqlite3" {
		t.Errorf("expected sqlite3 driver, got %s", cfg.DBDriver)
	}
	if cfg.RecognitionTimeout != 3*time.Second {
		t.Errorf("expected 3s, got %s", cfg.RecognitionTimeout)
	}
	if cfg.MatchPolicy != "best-match" {
		t.Errorf("expected best-match, got %s", cfg.MatchPolicy)
	}
	if !cfg.SMTP.Enabled() {
		t.Error("expected SMTP enabled")
	}
	if cfg.Location().String() != "Asia/Kolkata" {
		t.Errorf("unexpected location %s", cfg.Location())
	}
}

func TestLoad_RejectsUnknownPolicy(t *testing.T) {
	t.Setenv("MATCH_POLICY", "random")

	if _, err := Load(); err == nil {
		t.Fatal("expected error for unknown match policy")
	}
}

func TestLoad_RejectsBadTimezone(t *testing.T) {
	t.Setenv("CAMPUS_TZ", "Mars/Olympus")

	_, err := Load()
	if err == nil || !strings.Contains(err.Error(), "CAMPUS_TZ") {
		t.Fatalf("expected CAMPUS_TZ error, got %v", err)
	}
}

func TestValidate_ProductionNeedsSigningKey(t *testing.T) {
	t.Setenv("APP_ENV", "production")

	if _, err := Load(); err == nil {
		t.Fatal("expected error for default signing key in production")
	}

	t.Setenv("JWT_SIGNING_KEY", "a-real-secret")
	if _, err := Load(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}
