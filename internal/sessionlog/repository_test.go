package sessionlog

import (
	"context"
	"regexp"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/pashagolub/pgxmock/v4"

	"github.com/aura-webinar/virtual-live/internal/models"
)

func TestRecord(t *testing.T) {
	mock, err := pgxmock.NewPool()
	if err != nil {
		t.Fatal(err)
	}
	defer mock.Close()

	joined := time.Date(2026, 10, 17, 18, 0, 0, 0, time.UTC)
	left := joined.Add(20 * time.Minute)
	log := models.ViewerSessionLog{WebinarID: uuid.New(), SubjectID: "user-1", JoinedAt: joined, LeftAt: &left, WatchSeconds: 1100}

	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO user_session_logs")).
		WithArgs(log.WebinarID, "user-1", joined, &left, int64(1100)).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	if err := NewRepository(mock).Record(context.Background(), log); err != nil {
		t.Fatalf("Record: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unmet expectations: %v", err)
	}
}

func TestGetWatchTimeAggregates(t *testing.T) {
	mock, err := pgxmock.NewPool()
	if err != nil {
		t.Fatal(err)
	}
	defer mock.Close()

	webinarID := uuid.New()
	mock.ExpectQuery(regexp.QuoteMeta("SELECT COALESCE(SUM(watch_seconds), 0)")).
		WithArgs(webinarID).
		WillReturnRows(pgxmock.NewRows([]string{"sum", "count"}).AddRow(int64(5400), 3))

	agg, err := NewRepository(mock).GetWatchTimeAggregates(context.Background(), webinarID)
	if err != nil {
		t.Fatalf("GetWatchTimeAggregates: %v", err)
	}
	if agg.TotalWatchSeconds != 5400 || agg.DistinctViewers != 3 {
		t.Errorf("unexpected aggregates %+v", agg)
	}
}
