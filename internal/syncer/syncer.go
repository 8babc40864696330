// Package syncer pulls provider calendars and events into the local cache.
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

// AccountFailure records an account whose sync failed as a whole.
type AccountFailure struct {
	AccountID uuid.UUID
	Err       error
}

// Result is what a sync run reports back to its caller.
type Result struct {
	CalendarsSynced int
	EventsSynced    int
	StartedAt       time.Time
	CompletedAt     time.Time
	// ReauthRequired lists accounts that must be reconnected.
	ReauthRequired []uuid.UUID
	Failures       []AccountFailure
	Calendars      []CalendarResult
}

func (r *Result) merge(rep CalendarReport) {
	r.CalendarsSynced += rep.CalendarsSynced
	r.EventsSynced += rep.EventsSynced
	r.Calendars = append(r.Calendars, rep.Calendars...)
	r.Calendars = append(r.Calendars, rep.Failures...)
}

// Orchestrator runs sync passes. Each pass builds its own provider.Session
// so a client is never shared between concurrent runs.
type Orchestrator struct {
	repo        store.Repository
	guard       provider.TokenValidator
	factory     provider.Factory
	calendars   *CalendarReconciler
	events      *EventReconciler
	locker      Locker
	logger      *slog.Logger
	provider    string
	daysBack    int
	daysForward int
	now         func() time.Time
}

// Option configures an Orchestrator.
type Option func(*Orchestrator)

// WithLocker replaces the in-process locker.
func WithLocker(l Locker) Option {
	return func(o *Orchestrator) { o.locker = l }
}

// WithWindow sets the sync window in days around the start of a pass.
func WithWindow(daysBack, daysForward int) Option {
	return func(o *Orchestrator) { o.daysBack, o.daysForward = daysBack, daysForward }
}

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(o *Orchestrator) { o.now = now }
}

func NewOrchestrator(repo store.Repository, guard provider.TokenValidator, factory provider.Factory, logger *slog.Logger, opts ...Option) *Orchestrator {
	events := NewEventReconciler(logger)
	o := &Orchestrator{
		repo:        repo,
		guard:       guard,
		factory:     factory,
		events:      events,
		calendars:   NewCalendarReconciler(repo, events, logger),
		locker:      NewMemoryLocker(),
		logger:      logger,
		provider:    models.ProviderGoogle,
		daysBack:    30,
		daysForward: 90,
		now:         time.Now,
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

func accountLockKey(id uuid.UUID) string {
	return "sync:account:" + id.String()
}

// SyncAccount reconciles every calendar of one account.
func (o *Orchestrator) SyncAccount(ctx context.Context, accountID uuid.UUID) (Result, error) {
	res := Result{StartedAt: o.now().UTC()}
	err := o.syncAccount(ctx, accountID, res.StartedAt, &res)
	res.CompletedAt = o.now().UTC()
	return res, err
}

func (o *Orchestrator) syncAccount(ctx context.Context, accountID uuid.UUID, started time.Time, res *Result) (err error) {
	begin := time.Now()
	defer func() { metrics.ObserveSync("account", begin, err) }()

	unlock, err := o.locker.Lock(ctx, accountLockKey(accountID))
	if err != nil {
		return err
	}
	defer unlock()

	account, err := o.repo.GetAccount(ctx, accountID)
	if err != nil {
		return err
	}

	o.logger.Info("Starting sync cycle.", "accountID", account.ID)
	session := provider.NewSession(o.guard, o.factory, account)
	report, err := o.calendars.Reconcile(ctx, account, session, WindowAt(started, o.daysBack, o.daysForward))
	if err != nil {
		return err
	}
	res.merge(report)
	o.logger.Info("Sync cycle finished.", "accountID", account.ID, "calendars", report.CalendarsSynced, "events", report.EventsSynced, "failedCalendars", len(report.Failures))
	return nil
}

// SyncAllAccountsForUser syncs every account the user has for the
// configured provider. Account failures are isolated: they are logged and
// recorded in the Result, and the remaining accounts still sync. The error
// is only set when the accounts themselves cannot be loaded.
func (o *Orchestrator) SyncAllAccountsForUser(ctx context.Context, userID uuid.UUID) (Result, error) {
	res := Result{StartedAt: o.now().UTC()}
	accounts, err := o.repo.ListAccountsForUser(ctx, userID, o.provider)
	if err != nil {
		return res, fmt.Errorf("failed to load accounts for user %s: %w", userID, err)
	}

	for _, a := range accounts {
		if err := o.syncAccount(ctx, a.ID, res.StartedAt, &res); err != nil {
			o.logger.Error("Error syncing calendars for account", "accountID", a.ID, "error", err)
			metrics.SyncFailure("account")
			res.Failures = append(res.Failures, AccountFailure{AccountID: a.ID, Err: err})
			if errors.Is(err, apperr.ErrReauthRequired) {
				res.ReauthRequired = append(res.ReauthRequired, a.ID)
			}
		}
	}
	res.CompletedAt = o.now().UTC()
	return res, nil
}

// SyncOneCalendar re-pulls a single calendar's events. Unlike the bulk
// paths every error is returned.
func (o *Orchestrator) SyncOneCalendar(ctx context.Context, calendarSourceID uuid.UUID) (n int, err error) {
	begin := time.Now()
	defer func() { metrics.ObserveSync("calendar", begin, err) }()

	cal, err := o.repo.GetCalendar(ctx, calendarSourceID)
	if err != nil {
		return 0, err
	}
	if cal.Account == nil {
		return 0, apperr.NotFound("account", cal.AccountID)
	}

	unlock, err := o.locker.Lock(ctx, accountLockKey(cal.AccountID))
	if err != nil {
		return 0, err
	}
	defer unlock()

	w := WindowAt(o.now(), o.daysBack, o.daysForward)
	session := provider.NewSession(o.guard, o.factory, cal.Account)
	remote, err := session.ListEvents(ctx, cal.ExternalCalendarID, w.Min, w.Max)
	if err != nil {
		return 0, fmt.Errorf("failed to fetch events for calendar %s: %w", cal.ID, err)
	}

	var report EventReport
	err = o.repo.WithTx(ctx, func(tx store.Repository) error {
		report = o.events.Reconcile(ctx, tx, cal, remote)
		return nil
	})
	if err != nil {
		return 0, err
	}
	return report.Synced(), nil
}
