package webinars

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/aura-webinar/virtual-live/internal/models"
	"github.com/aura-webinar/virtual-live/internal/questions"
	"github.com/aura-webinar/virtual-live/internal/schedule"
	"github.com/aura-webinar/virtual-live/pkg/database"
)

// ErrNotFound is returned when no webinar has the requested id.
var ErrNotFound = errors.New("webinar not found")

const webinarColumns = `id, title, schedule_type, date, weekday, time_of_day, video_url, vimeo_link,
		video_key, video_duration_seconds, chat_messages_count, created_at, updated_at`

// Repository loads webinars with their access links and question cues.
type Repository struct {
	db       database.DBTX
	cues     *questions.Repository
	resolver *schedule.Resolver
}

// NewRepository creates a webinar repository. Stored dates without a zone are
// read in resolver's reference zone.
func NewRepository(db database.DBTX, resolver *schedule.Resolver) *Repository {
	if resolver == nil {
		resolver = schedule.NewResolver(nil)
	}
	return &Repository{db: db, cues: questions.NewRepository(db), resolver: resolver}
}

// GetByID returns a webinar with its authorized links and question cues.
func (r *Repository) GetByID(ctx context.Context, id uuid.UUID) (*models.Webinar, error) {
	const query = `SELECT ` + webinarColumns + ` FROM webinars WHERE id = $1`
	w, err := r.scan(r.db.QueryRow(ctx, query, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("webinar %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	if w.AuthorizedLinks, err = r.links(ctx, id); err != nil {
		return nil, fmt.Errorf("load links: %w", err)
	}
	if w.Questions, err = r.cues.ListCues(ctx, id); err != nil {
		return nil, fmt.Errorf("load cues: %w", err)
	}
	return w, nil
}

// List returns all webinars without links or cues, newest first.
func (r *Repository) List(ctx context.Context) ([]models.Webinar, error) {
	const query = `SELECT ` + webinarColumns + ` FROM webinars ORDER BY created_at DESC`
	rows, err := r.db.Query(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var list []models.Webinar
	for rows.Next() {
		w, err := r.scan(rows)
		if err != nil {
			return nil, err
		}
		list = append(list, *w)
	}
	return list, rows.Err()
}

func (r *Repository) links(ctx context.Context, webinarID uuid.UUID) ([]models.AuthorizedLink, error) {
	const query = `SELECT token, user_id FROM webinar_user_links WHERE webinar_id = $1 ORDER BY token`
	rows, err := r.db.Query(ctx, query, webinarID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var links []models.AuthorizedLink
	for rows.Next() {
		var l models.AuthorizedLink
		if err := rows.Scan(&l.Token, &l.SubjectID); err != nil {
			return nil, err
		}
		links = append(links, l)
	}
	return links, rows.Err()
}

func (r *Repository) scan(row pgx.Row) (*models.Webinar, error) {
	var (
		w        models.Webinar
		kind     string
		date     *string
		weekday  *int16
		tod      *string
		duration int
	)
	err := row.Scan(&w.ID, &w.Title, &kind, &date, &weekday, &tod, &w.VideoURL, &w.VimeoLink,
		&w.VideoKey, &duration, &w.ChatMessagesCount, &w.CreatedAt, &w.UpdatedAt)
	if err != nil {
		return nil, err
	}
	w.VideoDuration = time.Duration(duration) * time.Second
	w.Schedule = r.toSchedule(kind, date, weekday, tod)
	return &w, nil
}

// toSchedule maps stored schedule columns. Malformed values leave the schedule
// unresolvable so the session refuses to start instead of guessing.
func (r *Repository) toSchedule(kind string, date *string, weekday *int16, tod *string) schedule.Schedule {
	s := schedule.Schedule{Kind: schedule.ParseKind(kind)}
	if s.Kind == schedule.KindWeekly {
		s.Weekday = -1
		if weekday != nil {
			s.Weekday = time.Weekday(*weekday)
		}
		s.TimeOfDay = -1
		if tod != nil {
			if d, err := schedule.ParseTimeOfDay(*tod); err == nil {
				s.TimeOfDay = d
			}
		}
		return s
	}
	if date != nil {
		if t, err := r.resolver.ParseInstant(*date); err == nil {
			s.Start = &t
		}
	}
	return s
}
