package webinars

import (
	"errors"
	"time"

	"github.com/aura-webinar/virtual-live/internal/models"
	"github.com/aura-webinar/virtual-live/internal/schedule"
)

// DefaultTolerance is how far from its start a webinar still counts as ongoing.
const DefaultTolerance = 5 * time.Minute

// ErrNoWebinar is returned when nothing is ongoing or upcoming.
var ErrNoWebinar = errors.New("no current webinar")

// Selection is the webinar chosen for the landing page.
type Selection struct {
	Webinar *models.Webinar
	Start   time.Time
	Ongoing bool
}

// SelectCurrent picks the webinar whose start lies within tolerance of now,
// closest first, else the soonest upcoming one. Webinars whose schedule cannot
// be resolved are skipped.
func SelectCurrent(list []models.Webinar, resolver *schedule.Resolver, tolerance time.Duration, now time.Time) (Selection, error) {
	if tolerance < 0 {
		tolerance = 0
	}
	var ongoing, upcoming *Selection
	for i := range list {
		start, err := resolver.Resolve(list[i].Schedule, now)
		if err != nil {
			continue
		}
		diff := absSince(now, start)
		if diff <= tolerance {
			if ongoing == nil || diff < absSince(now, ongoing.Start) {
				ongoing = &Selection{Webinar: &list[i], Start: start, Ongoing: true}
			}
			continue
		}
		if start.After(now) && (upcoming == nil || start.Before(upcoming.Start)) {
			upcoming = &Selection{Webinar: &list[i], Start: start}
		}
	}
	switch {
	case ongoing != nil:
		return *ongoing, nil
	case upcoming != nil:
		return *upcoming, nil
	}
	return Selection{}, ErrNoWebinar
}

func absSince(now, t time.Time) time.Duration {
	d := now.Sub(t)
	if d < 0 {
		return -d
	}
	return d
}
