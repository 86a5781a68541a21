package webinars

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/pashagolub/pgxmock/v4"

	"github.com/aura-webinar/virtual-live/internal/schedule"
)

var webinarCols = []string{"id", "title", "schedule_type", "date", "weekday", "time_of_day", "video_url", "vimeo_link",
	"video_key", "video_duration_seconds", "chat_messages_count", "created_at", "updated_at"}

func ptr[T any](v T) *T { return &v }

func istResolver() *schedule.Resolver {
	return schedule.NewOffsetResolver("IST", 5*time.Hour+30*time.Minute)
}

func TestGetByID_FixedWithLinksAndCues(t *testing.T) {
	mock, err := pgxmock.NewPool()
	if err != nil {
		t.Fatal(err)
	}
	defer mock.Close()

	id := uuid.New()
	created := time.Date(2026, 10, 1, 0, 0, 0, 0, time.UTC)
	mock.ExpectQuery("SELECT id, title, schedule_type").
		WithArgs(id).
		WillReturnRows(pgxmock.NewRows(webinarCols).
			AddRow(id, "Reading basics", "fixed", ptr("2026-10-17 18:00"), (*int16)(nil), (*string)(nil),
				"", "https://vimeo.com/76979871", "", 600, 3, created, created))
	mock.ExpectQuery("SELECT token, user_id FROM webinar_user_links").
		WithArgs(id).
		WillReturnRows(pgxmock.NewRows([]string{"token", "user_id"}).
			AddRow("tok-a", "u1").
			AddRow("tok-b", "u2"))
	mock.ExpectQuery("SELECT id, prompt, type, options, at_seconds, window_seconds").
		WithArgs(id).
		WillReturnRows(pgxmock.NewRows([]string{"id", "prompt", "type", "options", "at_seconds", "window_seconds"}).
			AddRow("q1", "Ready?", "mcq", []string{"yes", "no"}, 30, 60))

	w, err := NewRepository(mock, istResolver()).GetByID(context.Background(), id)
	if err != nil {
		t.Fatalf("GetByID: %v", err)
	}
	if w.Schedule.Kind != schedule.KindFixed || w.Schedule.Start == nil {
		t.Fatalf("schedule = %+v", w.Schedule)
	}
	if want := time.Date(2026, 10, 17, 12, 30, 0, 0, time.UTC); !w.Schedule.Start.Equal(want) {
		t.Errorf("start = %v, want %v", w.Schedule.Start, want)
	}
	if w.VideoDuration != 10*time.Minute || w.ChatMessagesCount != 3 {
		t.Errorf("duration %v count %d", w.VideoDuration, w.ChatMessagesCount)
	}
	if len(w.AuthorizedLinks) != 2 || w.AuthorizedLinks[1].SubjectID != "u2" {
		t.Errorf("links = %+v", w.AuthorizedLinks)
	}
	if len(w.Questions) != 1 || w.Questions[0].At != 30*time.Second {
		t.Errorf("cues = %+v", w.Questions)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unmet expectations: %v", err)
	}
}

func TestGetByID_Weekly(t *testing.T) {
	tests := []struct {
		name       string
		weekday    *int16
		tod        *string
		resolvable bool
	}{
		{"valid", ptr(int16(6)), ptr("18:00"), true},
		{"bad time", ptr(int16(6)), ptr("6pm"), false},
		{"missing weekday", (*int16)(nil), ptr("18:00"), false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mock, err := pgxmock.NewPool()
			if err != nil {
				t.Fatal(err)
			}
			defer mock.Close()

			id := uuid.New()
			mock.ExpectQuery("SELECT id, title, schedule_type").
				WithArgs(id).
				WillReturnRows(pgxmock.NewRows(webinarCols).
					AddRow(id, "Weekly", "weekly", (*string)(nil), tt.weekday, tt.tod,
						"https://cdn.test/v.mp4", "", "", 0, 0, time.Now(), time.Now()))
			mock.ExpectQuery("SELECT token, user_id").WithArgs(id).
				WillReturnRows(pgxmock.NewRows([]string{"token", "user_id"}))
			mock.ExpectQuery("SELECT id, prompt").WithArgs(id).
				WillReturnRows(pgxmock.NewRows([]string{"id", "prompt", "type", "options", "at_seconds", "window_seconds"}))

			w, err := NewRepository(mock, istResolver()).GetByID(context.Background(), id)
			if err != nil {
				t.Fatalf("GetByID: %v", err)
			}
			if w.Schedule.Kind != schedule.KindWeekly {
				t.Fatalf("kind = %q", w.Schedule.Kind)
			}
			_, err = istResolver().Resolve(w.Schedule, time.Date(2026, 10, 17, 12, 29, 0, 0, time.UTC))
			if tt.resolvable && err != nil {
				t.Fatalf("Resolve: %v", err)
			}
			if !tt.resolvable && !errors.Is(err, schedule.ErrScheduleUnresolvable) {
				t.Fatalf("Resolve err = %v, want ErrScheduleUnresolvable", err)
			}
		})
	}
}

func TestGetByID_NotFound(t *testing.T) {
	mock, err := pgxmock.NewPool()
	if err != nil {
		t.Fatal(err)
	}
	defer mock.Close()

	mock.ExpectQuery("SELECT id, title").WillReturnError(pgx.ErrNoRows)
	_, err = NewRepository(mock, nil).GetByID(context.Background(), uuid.New())
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("err = %v, want ErrNotFound", err)
	}
}

func TestList(t *testing.T) {
	mock, err := pgxmock.NewPool()
	if err != nil {
		t.Fatal(err)
	}
	defer mock.Close()

	a, b := uuid.New(), uuid.New()
	mock.ExpectQuery("FROM webinars ORDER BY created_at DESC").
		WillReturnRows(pgxmock.NewRows(webinarCols).
			AddRow(a, "A", "fixed", ptr("2026-10-17T18:00:00+05:30"), (*int16)(nil), (*string)(nil), "", "", "", 0, 0, time.Now(), time.Now()).
			AddRow(b, "B", "lunar", (*string)(nil), (*int16)(nil), (*string)(nil), "", "", "", 0, 0, time.Now(), time.Now()))

	list, err := NewRepository(mock, istResolver()).List(context.Background())
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(list) != 2 || list[0].ID != a {
		t.Fatalf("list = %+v", list)
	}
	if list[0].Schedule.Start == nil {
		t.Error("fixed start not parsed")
	}
	if list[1].Schedule.Kind != "" || list[1].Schedule.Start != nil {
		t.Errorf("unknown kind mapped to %+v", list[1].Schedule)
	}
}
