package points

import (
	"time"

	"github.com/pkg/errors"
)

// =============================================================================
// CALENDAR - Civil dates in one fixed timezone
// =============================================================================

// DateKeyLayout is the format of a civil date key.
const DateKeyLayout = "2006-01-02"

// Calendar maps instants to civil dates in a single configured timezone, so
// "today" is the same day for every student regardless of where a request
// originates.
type Calendar struct {
	loc *time.Location
}

func NewCalendar(timezone string) (Calendar, error) {
	loc, err := time.LoadLocation(timezone)
	if err != nil {
		return Calendar{}, errors.Wrapf(err, "load timezone %q", timezone)
	}
	return Calendar{loc: loc}, nil
}

// MustCalendar is NewCalendar for tests and static configuration.
func MustCalendar(timezone string) Calendar {
	c, err := NewCalendar(timezone)
	if err != nil {
		panic(err)
	}
	return c
}

func (c Calendar) Location() *time.Location {
	if c.loc == nil {
		return time.UTC
	}
	return c.loc
}

// DateKey returns the civil date of t, formatted as YYYY-MM-DD.
func (c Calendar) DateKey(t time.Time) string {
	return t.In(c.Location()).Format(DateKeyLayout)
}

// StartOfDay returns midnight of t's civil date.
func (c Calendar) StartOfDay(t time.Time) time.Time {
	l := t.In(c.Location())
	return time.Date(l.Year(), l.Month(), l.Day(), 0, 0, 0, 0, c.Location())
}

// WeekStart returns midnight on the Monday of t's civil week.
func (c Calendar) WeekStart(t time.Time) time.Time {
	day := c.StartOfDay(t)
	offset := (int(day.Weekday()) + 6) % 7
	return day.AddDate(0, 0, -offset)
}
