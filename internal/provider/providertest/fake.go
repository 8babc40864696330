// Package providertest provides an in-memory provider.Client for tests.
package providertest

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"calplan/internal/apperr"
	"calplan/internal/provider"
)

// Fake is an in-memory calendar service. Zero value is not usable; call
// New.
type Fake struct {
	mu        sync.Mutex
	calendars []provider.Calendar
	events    map[string][]provider.Event
	nextID    int

	// ListCalendarsErr fails ListCalendars when set.
	ListCalendarsErr error
	// ListEventsErr fails ListEvents for the given calendar IDs.
	ListEventsErr map[string]error
	// WriteErr fails CreateEvent, UpdateEvent and DeleteEvent when set.
	WriteErr error

	Calls   []string
	Updates []provider.EventInput
}

func New() *Fake {
	return &Fake{events: map[string][]provider.Event{}, ListEventsErr: map[string]error{}}
}

// AddCalendar registers a calendar and returns the fake for chaining.
func (f *Fake) AddCalendar(c provider.Calendar, events ...provider.Event) *Fake {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calendars = append(f.calendars, c)
	f.events[c.ID] = append(f.events[c.ID], events...)
	return f
}

// SetEvents replaces the events of a calendar.
func (f *Fake) SetEvents(calendarID string, events ...provider.Event) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.events[calendarID] = events
}

// Events returns a copy of a calendar's events.
func (f *Fake) Events(calendarID string) []provider.Event {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]provider.Event(nil), f.events[calendarID]...)
}

// Factory returns a provider.Factory that always hands out f.
func (f *Fake) Factory() provider.Factory {
	return func(ctx context.Context, accessToken string) (provider.Client, error) {
		return f, nil
	}
}

func (f *Fake) record(call string) {
	f.Calls = append(f.Calls, call)
}

func (f *Fake) ListCalendars(ctx context.Context) ([]provider.Calendar, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.record("ListCalendars")
	if f.ListCalendarsErr != nil {
		return nil, f.ListCalendarsErr
	}
	return append([]provider.Calendar(nil), f.calendars...), nil
}

func (f *Fake) ListEvents(ctx context.Context, calendarID string, timeMin, timeMax time.Time) ([]provider.Event, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.record("ListEvents:" + calendarID)
	if err := f.ListEventsErr[calendarID]; err != nil {
		return nil, err
	}
	return append([]provider.Event(nil), f.events[calendarID]...), nil
}

func (f *Fake) CreateEvent(ctx context.Context, calendarID string, in provider.EventInput) (*provider.Event, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.record("CreateEvent:" + calendarID)
	if f.WriteErr != nil {
		return nil, f.WriteErr
	}
	f.nextID++
	ev := fromInput(fmt.Sprintf("remote-%d", f.nextID), in)
	f.events[calendarID] = append(f.events[calendarID], ev)
	return &ev, nil
}

func (f *Fake) UpdateEvent(ctx context.Context, calendarID, eventID string, in provider.EventInput) (*provider.Event, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.record("UpdateEvent:" + eventID)
	if f.WriteErr != nil {
		return nil, f.WriteErr
	}
	f.Updates = append(f.Updates, in)
	for i, ev := range f.events[calendarID] {
		if ev.ID == eventID {
			f.events[calendarID][i] = fromInput(eventID, in)
			out := f.events[calendarID][i]
			return &out, nil
		}
	}
	return nil, apperr.Provider(http.StatusNotFound, "event not found")
}

func (f *Fake) DeleteEvent(ctx context.Context, calendarID, eventID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.record("DeleteEvent:" + eventID)
	if f.WriteErr != nil {
		return f.WriteErr
	}
	evs := f.events[calendarID]
	for i, ev := range evs {
		if ev.ID == eventID {
			f.events[calendarID] = append(evs[:i], evs[i+1:]...)
			return nil
		}
	}
	return apperr.Provider(http.StatusGone, "event already deleted")
}

func fromInput(id string, in provider.EventInput) provider.Event {
	ev := provider.Event{
		ID:          id,
		Title:       in.Title,
		Description: in.Description,
		Location:    in.Location,
		Status:      "confirmed",
	}
	if in.AllDay {
		ev.Start = provider.EventTime{Date: in.Start.Format("2006-01-02")}
		ev.End = provider.EventTime{Date: in.End.Format("2006-01-02")}
	} else {
		ev.Start = provider.EventTime{DateTime: in.Start.Format(time.RFC3339)}
		ev.End = provider.EventTime{DateTime: in.End.Format(time.RFC3339)}
	}
	return ev
}

// Timed builds a timed provider event.
func Timed(id, title string, start, end time.Time) provider.Event {
	return provider.Event{
		ID:     id,
		Title:  title,
		Start:  provider.EventTime{DateTime: start.Format(time.RFC3339)},
		End:    provider.EventTime{DateTime: end.Format(time.RFC3339)},
		Status: "confirmed",
	}
}

// AllDay builds an all-day provider event from two dates.
func AllDay(id, title, startDate, endDate string) provider.Event {
	return provider.Event{
		ID:     id,
		Title:  title,
		Start:  provider.EventTime{Date: startDate},
		End:    provider.EventTime{Date: endDate},
		Status: "confirmed",
	}
}
