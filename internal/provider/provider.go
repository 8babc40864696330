// Package provider defines the contract the sync engine and the event
// write path use to talk to a remote calendar service.
package provider

import (
	"context"
	"time"

	"calplan/internal/models"
)

// Calendar is a calendar as reported by the provider.
type Calendar struct {
	ID          string
	DisplayName string
	IsPrimary   bool
	TimeZone    string
}

// EventTime holds either a date ("2006-01-02", all-day) or an RFC 3339
// date-time. Exactly one should be set.
type EventTime struct {
	Date     string
	DateTime string
}

// IsDate reports whether the time is a calendar date.
func (t EventTime) IsDate() bool {
	return t.Date != ""
}

// Event is an event as reported by the provider.
type Event struct {
	ID          string
	Title       string
	Description *string
	Location    *string
	Start       EventTime
	End         EventTime
	Status      string
}

// EventInput is what the write path sends. Update sends the full merged
// state, not a diff.
type EventInput struct {
	Title       string
	Description *string
	Location    *string
	Start       time.Time
	End         time.Time
	AllDay      bool
}

// Client is one authenticated session against a provider.
type Client interface {
	ListCalendars(ctx context.Context) ([]Calendar, error)
	// ListEvents expands recurring events and orders by start.
	ListEvents(ctx context.Context, calendarID string, timeMin, timeMax time.Time) ([]Event, error)
	CreateEvent(ctx context.Context, calendarID string, in EventInput) (*Event, error)
	UpdateEvent(ctx context.Context, calendarID, eventID string, in EventInput) (*Event, error)
	DeleteEvent(ctx context.Context, calendarID, eventID string) error
}

// Factory builds a Client for an access token.
type Factory func(ctx context.Context, accessToken string) (Client, error)

// TokenValidator returns a usable access token for the account,
// refreshing and persisting it first when needed.
type TokenValidator interface {
	EnsureValid(ctx context.Context, account *models.Account) (string, error)
}
