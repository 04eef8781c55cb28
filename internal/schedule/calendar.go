package schedule

import (
	"fmt"
	"strings"
	"time"
	_ "time/tzdata"

	"github.com/pickforge/internal/config"
	"github.com/pickforge/internal/domain"
)

const dateLayout = "2006-01-02"

// Calendar assigns week numbers to kickoffs
type Calendar struct {
	loc    *time.Location
	starts map[domain.League]time.Time
}

// NewCalendar builds a calendar from the schedule configuration
func NewCalendar(cfg config.ScheduleConfig) (*Calendar, error) {
	tz := cfg.Timezone
	if tz == "" {
		tz = "America/New_York"
	}
	loc, err := time.LoadLocation(tz)
	if err != nil {
		return nil, fmt.Errorf("loading timezone %q: %w", tz, err)
	}

	starts := make(map[domain.League]time.Time, len(cfg.SeasonStarts))
	for league, raw := range cfg.SeasonStarts {
		start, err := time.ParseInLocation(dateLayout, strings.TrimSpace(raw), loc)
		if err != nil {
			return nil, fmt.Errorf("parsing season start for %s: %w", league, err)
		}
		starts[domain.League(strings.ToLower(league))] = start
	}

	return &Calendar{loc: loc, starts: starts}, nil
}

// Week returns the 1-based week of the league's season a kickoff falls in.
// Weeks are seven calendar days in the calendar's timezone starting on the
// season start date. Kickoffs before the start count as week 1. Leagues
// without a configured start use the ISO week of the kickoff.
func (c *Calendar) Week(league domain.League, kickoff time.Time) int {
	local := kickoff.In(c.loc)

	start, ok := c.starts[league]
	if !ok {
		_, week := local.ISOWeek()
		return week
	}

	days := dayNumber(local) - dayNumber(start)
	if days < 0 {
		return 1
	}
	return days/7 + 1
}

// dayNumber counts whole calendar days since the epoch for the wall date of t,
// so DST shifts never move a kickoff into another week.
func dayNumber(t time.Time) int {
	y, m, d := t.Date()
	return int(time.Date(y, m, d, 0, 0, 0, 0, time.UTC).Unix() / 86400)
}
