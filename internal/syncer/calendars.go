package syncer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"calplan/internal/apperr"
	"calplan/internal/metrics"
	"calplan/internal/models"
	"calplan/internal/provider"
	"calplan/internal/store"

	"github.com/google/uuid"
)

// Window is the time range pulled from the provider.
type Window struct {
	Min time.Time
	Max time.Time
}

// WindowAt anchors a window of daysBack/daysForward at now.
func WindowAt(now time.Time, daysBack, daysForward int) Window {
	now = now.UTC()
	return Window{
		Min: now.AddDate(0, 0, -daysBack),
		Max: now.AddDate(0, 0, daysForward),
	}
}

// CalendarResult is the typed per-calendar result.
type CalendarResult struct {
	CalendarSourceID uuid.UUID
	ExternalID       string
	Name             string
	Events           EventReport
	Err              error
}

// CalendarReport summarises one account's reconciliation.
type CalendarReport struct {
	CalendarsSynced int
	EventsSynced    int
	Calendars       []CalendarResult
	Failures        []CalendarResult
}

// CalendarReconciler mirrors an account's calendars and their events.
type CalendarReconciler struct {
	repo   store.Repository
	events *EventReconciler
	logger *slog.Logger
}

func NewCalendarReconciler(repo store.Repository, events *EventReconciler, logger *slog.Logger) *CalendarReconciler {
	return &CalendarReconciler{repo: repo, events: events, logger: logger}
}

// Reconcile lists the account's remote calendars and reconciles each one as
// its own unit of work. Only a failure to list calendars is returned; a
// failing calendar is recorded in the report and skipped.
func (r *CalendarReconciler) Reconcile(ctx context.Context, account *models.Account, client provider.Client, w Window) (CalendarReport, error) {
	var report CalendarReport

	remote, err := client.ListCalendars(ctx)
	if err != nil {
		return report, fmt.Errorf("failed to list calendars for account %s: %w", account.ID, err)
	}

	for _, rc := range remote {
		res := r.reconcileCalendar(ctx, account, client, rc, w)
		if res.Err != nil {
			r.logger.Error("Error syncing calendar, skipping", "accountID", account.ID, "calendarID", rc.ID, "error", res.Err)
			metrics.SyncFailure("calendar")
			report.Failures = append(report.Failures, res)
			continue
		}
		report.CalendarsSynced++
		report.EventsSynced += res.Events.Synced()
		report.Calendars = append(report.Calendars, res)
	}
	metrics.SyncItems("calendar", "synced", report.CalendarsSynced)
	return report, nil
}

// reconcileCalendar fetches the events first, outside any transaction, and
// then upserts the calendar and its events in one transaction.
func (r *CalendarReconciler) reconcileCalendar(ctx context.Context, account *models.Account, client provider.Client, rc provider.Calendar, w Window) CalendarResult {
	res := CalendarResult{ExternalID: rc.ID, Name: rc.DisplayName}
	if rc.ID == "" {
		res.Err = errors.New("calendar has no id")
		return res
	}

	remoteEvents, err := client.ListEvents(ctx, rc.ID, w.Min, w.Max)
	if err != nil {
		res.Err = fmt.Errorf("failed to fetch events: %w", err)
		return res
	}

	err = r.repo.WithTx(ctx, func(tx store.Repository) error {
		src, err := upsertCalendar(ctx, tx, account.ID, rc)
		if err != nil {
			return err
		}
		res.CalendarSourceID = src.ID
		res.Name = src.Name
		r.logger.Info("Synced calendar source", "name", src.Name, "primary", src.IsPrimary)
		res.Events = r.events.Reconcile(ctx, tx, src, remoteEvents)
		return nil
	})
	if err != nil {
		res.Err = err
		res.Events = EventReport{}
	}
	return res
}

// upsertCalendar matches on (account, external id), refreshing name,
// primary flag and timezone. Calendars are never deleted here.
func upsertCalendar(ctx context.Context, repo store.Repository, accountID uuid.UUID, rc provider.Calendar) (*models.CalendarSource, error) {
	name := rc.DisplayName
	if name == "" {
		name = defaultCalendar
	}
	tz := rc.TimeZone
	if tz == "" {
		tz = defaultTimezone
	}

	src, err := repo.FindCalendar(ctx, accountID, rc.ID)
	if errors.Is(err, apperr.ErrNotFound) {
		src = &models.CalendarSource{
			AccountID:          accountID,
			ExternalCalendarID: rc.ID,
			Name:               name,
			IsPrimary:          rc.IsPrimary,
			Timezone:           tz,
		}
		if err := repo.CreateCalendar(ctx, src); err != nil {
			return nil, err
		}
		return src, nil
	}
	if err != nil {
		return nil, err
	}

	if src.Name == name && src.IsPrimary == rc.IsPrimary && src.Timezone == tz {
		return src, nil
	}
	src.Name, src.IsPrimary, src.Timezone = name, rc.IsPrimary, tz
	if err := repo.SaveCalendar(ctx, src); err != nil {
		return nil, err
	}
	return src, nil
}
