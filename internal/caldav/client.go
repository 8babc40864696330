package caldav

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"path"
	"time"

	"calplan/internal/models"

	"github.com/emersion/go-ical"
	"github.com/emersion/go-webdav"
	"github.com/emersion/go-webdav/caldav"
)

// customTransport adds Basic Auth and our User-Agent to each request.
type customTransport struct {
	Username  string
	Password  string
	Transport http.RoundTripper
}

func (t *customTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	req.SetBasicAuth(t.Username, t.Password)
	req.Header.Set("User-Agent", "calplan/1.0")
	return t.Transport.RoundTrip(req)
}

// Options selects the server, the credentials and the target calendar.
type Options struct {
	Endpoint     string
	Username     string
	Password     string
	CalendarName string
	Timeout      time.Duration
	// Transport defaults to http.DefaultTransport.
	Transport http.RoundTripper
}

// Client writes events into one calendar collection of a CalDAV server.
type Client struct {
	caldavClient *caldav.Client
	webdavClient *webdav.Client
	logger       *slog.Logger
	calendarPath string
	now          func() time.Time
}

// MirrorReport counts the outcome of a Mirror call.
type MirrorReport struct {
	Written int
	Failed  int
}

func newClient(logger *slog.Logger, opts Options) (*Client, error) {
	base := opts.Transport
	if base == nil {
		base = http.DefaultTransport
	}
	httpClient := &http.Client{
		Transport: &customTransport{Username: opts.Username, Password: opts.Password, Transport: base},
		Timeout:   opts.Timeout,
	}

	caldavClient, err := caldav.NewClient(httpClient, opts.Endpoint)
	if err != nil {
		return nil, fmt.Errorf("failed to create caldav client: %w", err)
	}
	webdavClient, err := webdav.NewClient(httpClient, opts.Endpoint)
	if err != nil {
		return nil, fmt.Errorf("failed to create webdav client: %w", err)
	}
	return &Client{
		caldavClient: caldavClient,
		webdavClient: webdavClient,
		logger:       logger,
		now:          time.Now,
	}, nil
}

// NewClient connects and resolves the calendar named opts.CalendarName.
func NewClient(ctx context.Context, logger *slog.Logger, opts Options) (*Client, error) {
	c, err := newClient(logger, opts)
	if err != nil {
		return nil, err
	}

	logger.Info("Finding CalDAV calendar", "calendarName", opts.CalendarName)
	calendarPath, err := c.findCalendar(ctx, opts.CalendarName)
	if err != nil {
		return nil, fmt.Errorf("could not find calendar '%s': %w", opts.CalendarName, err)
	}
	c.calendarPath = calendarPath
	logger.Info("Successfully found CalDAV calendar", "path", calendarPath)
	return c, nil
}

// PutEvent creates or replaces one event in the calendar.
func (c *Client) PutEvent(ctx context.Context, ev *models.CachedEvent) error {
	uid := UID(ev)
	c.logger.Debug("Writing event to CalDAV", "eventTitle", ev.Title, "uid", uid)

	cal := ical.NewCalendar()
	cal.Props.SetText(ical.PropVersion, "2.0")
	cal.Props.SetText(ical.PropProductID, productID)
	cal.Children = append(cal.Children, toICal(ev, c.now()))

	writer, err := c.webdavClient.Create(ctx, path.Join(c.calendarPath, uid+".ics"))
	if err != nil {
		return fmt.Errorf("failed to create event on CalDAV server: %w", err)
	}
	if err := ical.NewEncoder(writer).Encode(cal); err != nil {
		writer.Close()
		return fmt.Errorf("failed to encode event to iCal format: %w", err)
	}
	if err := writer.Close(); err != nil {
		return fmt.Errorf("failed to write event to CalDAV server: %w", err)
	}
	return nil
}

// Mirror writes every event, logging and skipping the ones that fail.
func (c *Client) Mirror(ctx context.Context, events []models.CachedEvent) MirrorReport {
	var report MirrorReport
	for i := range events {
		if err := c.PutEvent(ctx, &events[i]); err != nil {
			c.logger.Error("Failed to mirror event, skipping", "eventID", events[i].ID, "error", err)
			report.Failed++
			continue
		}
		report.Written++
	}
	c.logger.Info("Mirrored events to CalDAV", "written", report.Written, "failed", report.Failed)
	return report
}

// findCalendar walks principal, home set and calendars and returns the
// path of the one with the matching display name.
func (c *Client) findCalendar(ctx context.Context, name string) (string, error) {
	principalPath, err := c.caldavClient.FindCurrentUserPrincipal(ctx)
	if err != nil {
		return "", fmt.Errorf("failed to find principal path: %w", err)
	}

	homeSetPath, err := c.caldavClient.FindCalendarHomeSet(ctx, principalPath)
	if err != nil {
		return "", fmt.Errorf("failed to find calendar home set: %w", err)
	}

	calendars, err := c.caldavClient.FindCalendars(ctx, homeSetPath)
	if err != nil {
		return "", fmt.Errorf("failed to find calendars: %w", err)
	}

	for _, cal := range calendars {
		if cal.Name == name {
			return cal.Path, nil
		}
	}
	return "", fmt.Errorf("no calendar found with name '%s'", name)
}
