package config

import (
	"testing"
	"time"
)

func TestLoad_Defaults(t *testing.T) {
	t.Setenv("DATABASE_URL", "")
	t.Setenv("SESSION_TICK_INTERVAL", "")
	t.Setenv("SCHEDULE_TZ", "")
	t.Setenv("SCHEDULE_UTC_OFFSET", "")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Session.Tick != time.Second {
		t.Errorf("tick = %v", cfg.Session.Tick)
	}
	loc, err := cfg.Session.Location()
	if err != nil {
		t.Fatal(err)
	}
	_, off := time.Date(2026, 10, 17, 18, 0, 0, 0, loc).Zone()
	if off != 5*3600+30*60 {
		t.Errorf("offset = %d", off)
	}
}

func TestLoad_Overrides(t *testing.T) {
	t.Setenv("SESSION_TICK_INTERVAL", "250ms")
	t.Setenv("RESPONSE_GRACE", "120")
	t.Setenv("REDIS_DB", "3")
	t.Setenv("SCHEDULE_TZ", "UTC")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Session.Tick != 250*time.Millisecond {
		t.Errorf("tick = %v", cfg.Session.Tick)
	}
	if cfg.Session.ResponseGrace != 2*time.Minute {
		t.Errorf("grace = %v", cfg.Session.ResponseGrace)
	}
	if cfg.Redis.DB != 3 {
		t.Errorf("redis db = %d", cfg.Redis.DB)
	}
	loc, err := cfg.Session.Location()
	if err != nil || loc != time.UTC {
		t.Errorf("location = %v, %v", loc, err)
	}
}

func TestLoad_RejectsNonPositiveTick(t *testing.T) {
	t.Setenv("SESSION_TICK_INTERVAL", "-1s")
	if _, err := Load(); err == nil {
		t.Fatal("expected error")
	}
}

func TestDSN(t *testing.T) {
	c := DatabaseConfig{Host: "db", Port: "5432", User: "u", Password: "p", DBName: "w", SSLMode: "disable"}
	if got, want := c.DSN(), "postgres://u:p@db:5432/w?sslmode=disable"; got != want {
		t.Errorf("DSN = %q, want %q", got, want)
	}
	c.URL = "postgres://x"
	if c.DSN() != "postgres://x" {
		t.Errorf("URL not preferred")
	}
}

func TestAWSEnabled(t *testing.T) {
	if (AWSConfig{Region: "us-east-1"}).Enabled() {
		t.Error("enabled without buckets")
	}
	if !(AWSConfig{Region: "us-east-1", VideosBucket: "v"}).Enabled() {
		t.Error("not enabled with videos bucket")
	}
}
