package schedule

import (
	"errors"
	"testing"
	"time"
)

var ist = time.FixedZone("IST", 5*3600+1800)

func TestResolve_Fixed(t *testing.T) {
	r := NewResolver(ist)
	start := time.Date(2026, 3, 14, 12, 30, 0, 0, time.UTC)

	got, err := r.Resolve(Fixed(start), time.Now())
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if !got.Equal(start) {
		t.Errorf("expected %v, got %v", start, got)
	}
	if got.Location() != ist {
		t.Errorf("expected reference zone, got %v", got.Location())
	}
}

func TestResolve_WeeklyBeforeTimeOfDay(t *testing.T) {
	r := NewResolver(ist)
	// 2026-10-17 is a Saturday.
	now := time.Date(2026, 10, 17, 17, 59, 0, 0, ist)

	got, err := r.Resolve(Weekly(time.Saturday, 18, 0), now)
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	want := time.Date(2026, 10, 17, 18, 0, 0, 0, ist)
	if !got.Equal(want) {
		t.Errorf("expected %v, got %v", want, got)
	}
}

func TestResolve_WeeklyAfterTimeOfDay(t *testing.T) {
	r := NewResolver(ist)
	now := time.Date(2026, 10, 17, 18, 1, 0, 0, ist)

	got, err := r.Resolve(Weekly(time.Saturday, 18, 0), now)
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	want := time.Date(2026, 10, 24, 18, 0, 0, 0, ist)
	if !got.Equal(want) {
		t.Errorf("expected %v, got %v", want, got)
	}
}

func TestResolve_WeeklyExactlyAtTimeOfDay(t *testing.T) {
	r := NewResolver(ist)
	now := time.Date(2026, 10, 17, 18, 0, 0, 0, ist)

	got, err := r.Resolve(Weekly(time.Saturday, 18, 0), now)
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if !got.Equal(now) {
		t.Errorf("expected %v, got %v", now, got)
	}
}

func TestResolve_WeeklyOtherDay(t *testing.T) {
	r := NewResolver(ist)
	// Thursday evening; next Saturday is two days later.
	now := time.Date(2026, 10, 15, 21, 0, 0, 0, ist)

	got, err := r.Resolve(Weekly(time.Saturday, 18, 0), now)
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	want := time.Date(2026, 10, 17, 18, 0, 0, 0, ist)
	if !got.Equal(want) {
		t.Errorf("expected %v, got %v", want, got)
	}
}

func TestResolve_WeeklyIdempotent(t *testing.T) {
	r := NewResolver(ist)
	now := time.Date(2026, 10, 16, 9, 15, 30, 0, ist)
	s := Weekly(time.Saturday, 18, 0)

	a, _ := r.Resolve(s, now)
	b, _ := r.Resolve(s, now.Add(time.Second))
	if !a.Equal(b) {
		t.Errorf("resolutions one second apart differ: %v vs %v", a, b)
	}
}

func TestResolve_WeeklyUsesReferenceZone(t *testing.T) {
	r := NewResolver(ist)
	// 2026-10-17 13:00 UTC is Saturday 18:30 IST, past 18:00 in the reference zone.
	now := time.Date(2026, 10, 17, 13, 0, 0, 0, time.UTC)

	got, err := r.Resolve(Weekly(time.Saturday, 18, 0), now)
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	want := time.Date(2026, 10, 24, 18, 0, 0, 0, ist)
	if !got.Equal(want) {
		t.Errorf("expected %v, got %v", want, got)
	}
}

func TestResolve_WeeklyAcrossDSTChange(t *testing.T) {
	ny, err := time.LoadLocation("America/New_York")
	if err != nil {
		t.Skipf("zone database unavailable: %v", err)
	}
	r := NewResolver(ny)
	// Clocks spring forward at 02:00 on Sunday 2026-03-08.
	now := time.Date(2026, 3, 7, 12, 0, 0, 0, ny)

	got, err := r.Resolve(Weekly(time.Sunday, 18, 0), now)
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	want := time.Date(2026, 3, 8, 18, 0, 0, 0, ny)
	if !got.Equal(want) {
		t.Errorf("expected %v, got %v", want, got)
	}
	if h := got.In(ny).Hour(); h != 18 {
		t.Errorf("expected 18:00 wall clock, got hour %d", h)
	}
}

func TestResolve_Unresolvable(t *testing.T) {
	r := NewResolver(ist)
	cases := map[string]Schedule{
		"empty":           {},
		"fixed no start":  {Kind: KindFixed},
		"unknown kind":    {Kind: "monthly"},
		"bad time of day": {Kind: KindWeekly, Weekday: time.Monday, TimeOfDay: 25 * time.Hour},
	}
	for name, s := range cases {
		t.Run(name, func(t *testing.T) {
			if _, err := r.Resolve(s, time.Now()); !errors.Is(err, ErrScheduleUnresolvable) {
				t.Errorf("expected ErrScheduleUnresolvable, got %v", err)
			}
		})
	}
}

func TestParseInstant(t *testing.T) {
	r := NewResolver(ist)

	got, err := r.ParseInstant("2026-10-17T18:00")
	if err != nil {
		t.Fatalf("ParseInstant: %v", err)
	}
	if want := time.Date(2026, 10, 17, 18, 0, 0, 0, ist); !got.Equal(want) {
		t.Errorf("expected %v, got %v", want, got)
	}

	got, err = r.ParseInstant("2026-10-17T12:30:00Z")
	if err != nil {
		t.Fatalf("ParseInstant: %v", err)
	}
	if want := time.Date(2026, 10, 17, 12, 30, 0, 0, time.UTC); !got.Equal(want) {
		t.Errorf("expected %v, got %v", want, got)
	}

	if _, err := r.ParseInstant("next saturday"); !errors.Is(err, ErrScheduleUnresolvable) {
		t.Errorf("expected ErrScheduleUnresolvable, got %v", err)
	}
}

func TestParseKind(t *testing.T) {
	if ParseKind("Weekly") != KindWeekly {
		t.Error("Weekly should parse as weekly")
	}
	if ParseKind("") != KindFixed {
		t.Error("empty should default to fixed")
	}
	if ParseKind("monthly") != "" {
		t.Error("monthly should not be recognized")
	}
}

func TestParseTimeOfDay(t *testing.T) {
	tests := []struct {
		in   string
		want time.Duration
		ok   bool
	}{
		{"18:00", 18 * time.Hour, true},
		{" 07:05 ", 7*time.Hour + 5*time.Minute, true},
		{"23:59:30", 23*time.Hour + 59*time.Minute + 30*time.Second, true},
		{"24:00", 0, false},
		{"6pm", 0, false},
		{"", 0, false},
	}
	for _, tt := range tests {
		got, err := ParseTimeOfDay(tt.in)
		if tt.ok {
			if err != nil || got != tt.want {
				t.Errorf("ParseTimeOfDay(%q) = %v, %v; want %v", tt.in, got, err, tt.want)
			}
			continue
		}
		if !errors.Is(err, ErrScheduleUnresolvable) {
			t.Errorf("ParseTimeOfDay(%q) err = %v, want ErrScheduleUnresolvable", tt.in, err)
		}
	}
}
