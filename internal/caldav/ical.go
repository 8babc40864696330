// Package caldav exports cached events as iCalendar data and mirrors them
// to a CalDAV server.
package caldav

import (
	"fmt"
	"io"
	"strings"
	"time"

	"calplan/internal/models"

	"github.com/emersion/go-ical"
)

const productID = "-//calplan//EN"

// UID is the iCalendar UID of an event: its provider id when it has one so
// a mirror lines up with the source, otherwise a local one.
func UID(ev *models.CachedEvent) string {
	if !ev.IsLocalOnly() {
		return *ev.ExternalEventID
	}
	return ev.ID.String() + "@calplan"
}

// NewCalendar wraps events in a VCALENDAR.
func NewCalendar(name string, events []models.CachedEvent, now time.Time) *ical.Calendar {
	cal := ical.NewCalendar()
	cal.Props.SetText(ical.PropVersion, "2.0")
	cal.Props.SetText(ical.PropProductID, productID)
	if name != "" {
		cal.Props.SetText("X-WR-CALNAME", name)
	}
	for i := range events {
		cal.Children = append(cal.Children, toICal(&events[i], now))
	}
	return cal
}

// EncodeCalendar writes events as one .ics document.
func EncodeCalendar(w io.Writer, name string, events []models.CachedEvent, now time.Time) error {
	if err := ical.NewEncoder(w).Encode(NewCalendar(name, events, now)); err != nil {
		return fmt.Errorf("failed to encode calendar to iCal format: %w", err)
	}
	return nil
}

// toICal converts a cached event to a VEVENT. All-day events carry DATE
// values, timed events UTC date-times.
func toICal(ev *models.CachedEvent, now time.Time) *ical.Component {
	ve := ical.NewComponent(ical.CompEvent)
	ve.Props.SetText(ical.PropUID, UID(ev))
	ve.Props.SetText(ical.PropSummary, ev.Title)
	ve.Props.SetDateTime(ical.PropDateTimeStamp, now.UTC())
	if ev.AllDay {
		ve.Props.SetDate(ical.PropDateTimeStart, ev.StartAt.UTC())
		ve.Props.SetDate(ical.PropDateTimeEnd, ev.EndAt.UTC())
	} else {
		ve.Props.SetDateTime(ical.PropDateTimeStart, ev.StartAt.UTC())
		ve.Props.SetDateTime(ical.PropDateTimeEnd, ev.EndAt.UTC())
	}

	if ev.Description != nil {
		ve.Props.SetText(ical.PropDescription, *ev.Description)
	}
	if ev.Location != nil {
		ve.Props.SetText(ical.PropLocation, *ev.Location)
	}
	switch ev.Status {
	case models.StatusConfirmed, models.StatusTentative, models.StatusCancelled:
		ve.Props.SetText(ical.PropStatus, strings.ToUpper(string(ev.Status)))
	}
	return ve
}
