// Package google adapts the Google Calendar API to provider.Client and
// handles the Google side of the OAuth flow.
package google

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"calplan/internal/apperr"
	"calplan/internal/metrics"
	"calplan/internal/provider"

	"golang.org/x/oauth2"
	"google.golang.org/api/calendar/v3"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"
)

const dateLayout = "2006-01-02"

// CalendarClient talks to the Google Calendar API with a fixed access
// token. Refresh is handled outside, by provider.Session.
type CalendarClient struct {
	service *calendar.Service
	logger  *slog.Logger
}

// NewClient creates a client authenticated with accessToken. Extra options
// are appended last, so tests can point the client at a fake endpoint.
func NewClient(ctx context.Context, logger *slog.Logger, accessToken string, timeout time.Duration, opts ...option.ClientOption) (*CalendarClient, error) {
	base := &http.Client{Timeout: timeout}
	ctx = context.WithValue(ctx, oauth2.HTTPClient, base)
	httpClient := oauth2.NewClient(ctx, oauth2.StaticTokenSource(&oauth2.Token{AccessToken: accessToken, TokenType: "Bearer"}))
	httpClient.Timeout = timeout

	opts = append([]option.ClientOption{option.WithHTTPClient(httpClient)}, opts...)
	service, err := calendar.NewService(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create calendar service: %w", err)
	}
	return &CalendarClient{service: service, logger: logger}, nil
}

// NewFactory returns a provider.Factory producing CalendarClients.
func NewFactory(logger *slog.Logger, timeout time.Duration, opts ...option.ClientOption) provider.Factory {
	return func(ctx context.Context, accessToken string) (provider.Client, error) {
		return NewClient(ctx, logger, accessToken, timeout, opts...)
	}
}

// ListCalendars returns every calendar in the account's calendar list.
func (c *CalendarClient) ListCalendars(ctx context.Context) ([]provider.Calendar, error) {
	var out []provider.Calendar
	pageToken := ""
	for {
		call := c.service.CalendarList.List().Context(ctx)
		if pageToken != "" {
			call = call.PageToken(pageToken)
		}
		list, err := call.Do()
		metrics.ProviderCall("list_calendars", err)
		if err != nil {
			return nil, providerError("list calendars", err)
		}
		for _, item := range list.Items {
			out = append(out, provider.Calendar{
				ID:          item.Id,
				DisplayName: item.Summary,
				IsPrimary:   item.Primary,
				TimeZone:    item.TimeZone,
			})
		}
		if list.NextPageToken == "" {
			break
		}
		pageToken = list.NextPageToken
	}
	c.logger.Debug("Fetched calendar list", "count", len(out))
	return out, nil
}

// ListEvents fetches the events of calendarID in [timeMin, timeMax) with
// recurring events expanded.
func (c *CalendarClient) ListEvents(ctx context.Context, calendarID string, timeMin, timeMax time.Time) ([]provider.Event, error) {
	var out []provider.Event
	pageToken := ""
	for {
		call := c.service.Events.List(calendarID).
			Context(ctx).
			ShowDeleted(false).
			SingleEvents(true).
			TimeMin(timeMin.UTC().Format(time.RFC3339)).
			TimeMax(timeMax.UTC().Format(time.RFC3339)).
			OrderBy("startTime")
		if pageToken != "" {
			call = call.PageToken(pageToken)
		}
		events, err := call.Do()
		metrics.ProviderCall("list_events", err)
		if err != nil {
			return nil, providerError("list events", err)
		}
		for _, item := range events.Items {
			out = append(out, fromGoogle(item))
		}
		if events.NextPageToken == "" {
			break
		}
		pageToken = events.NextPageToken
	}
	c.logger.Info("Successfully fetched events from Google Calendar", "count", len(out), "calendarID", calendarID)
	return out, nil
}

func (c *CalendarClient) CreateEvent(ctx context.Context, calendarID string, in provider.EventInput) (*provider.Event, error) {
	created, err := c.service.Events.Insert(calendarID, toGoogle(in)).Context(ctx).Do()
	metrics.ProviderCall("create_event", err)
	if err != nil {
		return nil, providerError("create event", err)
	}
	c.logger.Info("Created event", "calendarID", calendarID, "eventID", created.Id)
	ev := fromGoogle(created)
	return &ev, nil
}

// UpdateEvent patches the event with the full merged state in. Cleared
// description and location are sent explicitly as empty strings.
func (c *CalendarClient) UpdateEvent(ctx context.Context, calendarID, eventID string, in provider.EventInput) (*provider.Event, error) {
	body := toGoogle(in)
	body.ForceSendFields = []string{"Summary", "Description", "Location"}
	updated, err := c.service.Events.Patch(calendarID, eventID, body).Context(ctx).Do()
	metrics.ProviderCall("update_event", err)
	if err != nil {
		return nil, providerError("update event", err)
	}
	ev := fromGoogle(updated)
	return &ev, nil
}

func (c *CalendarClient) DeleteEvent(ctx context.Context, calendarID, eventID string) error {
	err := c.service.Events.Delete(calendarID, eventID).Context(ctx).Do()
	metrics.ProviderCall("delete_event", err)
	if err != nil {
		return providerError("delete event", err)
	}
	return nil
}

func fromGoogle(item *calendar.Event) provider.Event {
	ev := provider.Event{
		ID:     item.Id,
		Title:  item.Summary,
		Status: item.Status,
	}
	if item.Description != "" {
		d := item.Description
		ev.Description = &d
	}
	if item.Location != "" {
		l := item.Location
		ev.Location = &l
	}
	if item.Start != nil {
		ev.Start = provider.EventTime{Date: item.Start.Date, DateTime: item.Start.DateTime}
	}
	if item.End != nil {
		ev.End = provider.EventTime{Date: item.End.Date, DateTime: item.End.DateTime}
	}
	return ev
}

func toGoogle(in provider.EventInput) *calendar.Event {
	ev := &calendar.Event{Summary: in.Title}
	if in.Description != nil {
		ev.Description = *in.Description
	}
	if in.Location != nil {
		ev.Location = *in.Location
	}
	if in.AllDay {
		ev.Start = &calendar.EventDateTime{Date: in.Start.UTC().Format(dateLayout)}
		ev.End = &calendar.EventDateTime{Date: in.End.UTC().Format(dateLayout)}
	} else {
		ev.Start = &calendar.EventDateTime{DateTime: in.Start.UTC().Format(time.RFC3339), TimeZone: "UTC"}
		ev.End = &calendar.EventDateTime{DateTime: in.End.UTC().Format(time.RFC3339), TimeZone: "UTC"}
	}
	return ev
}

func providerError(op string, err error) error {
	var gerr *googleapi.Error
	if errors.As(err, &gerr) {
		body := gerr.Body
		if body == "" {
			body = gerr.Message
		}
		return fmt.Errorf("%s: %w", op, apperr.Provider(gerr.Code, body))
	}
	return fmt.Errorf("%s: %w", op, apperr.Provider(0, err.Error()))
}
