package syncer

import (
	"errors"
	"fmt"
	"time"

	"calplan/internal/models"
	"calplan/internal/provider"
)

const (
	dateLayout      = "2006-01-02"
	defaultTitle    = "Untitled Event"
	defaultCalendar = "Unnamed Calendar"
	defaultTimezone = "UTC"
)

// canonicalEvent is a remote event in the shape stored locally.
type canonicalEvent struct {
	ExternalID  string
	Title       string
	Description *string
	Location    *string
	Start       time.Time
	End         time.Time
	AllDay      bool
	Status      models.Status
}

// canonicalize converts a provider event. All-day is decided by the start
// alone: a date-only start means the whole event is parsed as dates
// anchored at UTC midnight.
func canonicalize(ev provider.Event) (canonicalEvent, error) {
	c := canonicalEvent{
		ExternalID:  ev.ID,
		Title:       ev.Title,
		Description: ev.Description,
		Location:    ev.Location,
		AllDay:      ev.Start.IsDate(),
		Status:      models.Status(ev.Status),
	}
	if c.ExternalID == "" {
		return c, errors.New("event has no id")
	}
	if c.Title == "" {
		c.Title = defaultTitle
	}
	if c.Status == "" {
		c.Status = models.StatusConfirmed
	}

	var err error
	if c.AllDay {
		if c.Start, err = parseDate(ev.Start.Date); err != nil {
			return c, fmt.Errorf("start: %w", err)
		}
		if c.End, err = parseDate(ev.End.Date); err != nil {
			return c, fmt.Errorf("end: %w", err)
		}
	} else {
		if c.Start, err = parseDateTime(ev.Start.DateTime); err != nil {
			return c, fmt.Errorf("start: %w", err)
		}
		if c.End, err = parseDateTime(ev.End.DateTime); err != nil {
			return c, fmt.Errorf("end: %w", err)
		}
	}
	if err := models.ValidateTimes(c.Start, c.End, c.AllDay); err != nil {
		return c, err
	}
	return c, nil
}

func parseDate(s string) (time.Time, error) {
	if s == "" {
		return time.Time{}, errors.New("missing date")
	}
	return time.ParseInLocation(dateLayout, s, time.UTC)
}

func parseDateTime(s string) (time.Time, error) {
	if s == "" {
		return time.Time{}, errors.New("missing date-time")
	}
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return time.Time{}, err
	}
	return t.UTC(), nil
}

// matches reports whether e already holds c's values.
func (c canonicalEvent) matches(e *models.CachedEvent) bool {
	return e.Title == c.Title &&
		equalPtr(e.Description, c.Description) &&
		equalPtr(e.Location, c.Location) &&
		e.StartAt.Equal(c.Start) &&
		e.EndAt.Equal(c.End) &&
		e.AllDay == c.AllDay &&
		e.Status == c.Status
}

// apply overwrites every mutable field of e. Origin is left alone.
func (c canonicalEvent) apply(e *models.CachedEvent) {
	e.Title = c.Title
	e.Description = c.Description
	e.Location = c.Location
	e.StartAt = c.Start
	e.EndAt = c.End
	e.AllDay = c.AllDay
	e.Status = c.Status
}

func equalPtr(a, b *string) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}
