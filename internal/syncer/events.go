package syncer

import (
	"context"
	"errors"
	"log/slog"

	"calplan/internal/apperr"
	"calplan/internal/metrics"
	"calplan/internal/models"
	"calplan/internal/provider"
	"calplan/internal/store"
)

// Outcome is what reconciliation did with one item.
type Outcome string

const (
	OutcomeInserted  Outcome = "inserted"
	OutcomeUpdated   Outcome = "updated"
	OutcomeUnchanged Outcome = "unchanged"
	OutcomeSkipped   Outcome = "skipped"
)

// ItemResult is the typed per-event result.
type ItemResult struct {
	ExternalID string
	Outcome    Outcome
	Err        error
}

// EventReport summarises one calendar's event reconciliation.
type EventReport struct {
	Inserted  int
	Updated   int
	Unchanged int
	Skipped   int
	Failures  []ItemResult
}

// Synced is the number of remote events now mirrored locally.
func (r EventReport) Synced() int {
	return r.Inserted + r.Updated + r.Unchanged
}

func (r *EventReport) add(res ItemResult) {
	switch res.Outcome {
	case OutcomeInserted:
		r.Inserted++
	case OutcomeUpdated:
		r.Updated++
	case OutcomeUnchanged:
		r.Unchanged++
	default:
		r.Skipped++
		r.Failures = append(r.Failures, res)
	}
}

// EventReconciler upserts remote events into one calendar's cache.
type EventReconciler struct {
	logger *slog.Logger
}

func NewEventReconciler(logger *slog.Logger) *EventReconciler {
	return &EventReconciler{logger: logger}
}

// Reconcile upserts every remote event into cal. Each event is written in
// its own savepoint of repo's transaction; a failing event is reported and
// skipped. Local events missing from remote are left untouched.
func (r *EventReconciler) Reconcile(ctx context.Context, repo store.Repository, cal *models.CalendarSource, remote []provider.Event) EventReport {
	var report EventReport
	for _, ev := range remote {
		res := r.reconcileOne(ctx, repo, cal, ev)
		if res.Err != nil {
			r.logger.Warn("Failed to sync event, skipping", "calendar", cal.Name, "eventID", ev.ID, "error", res.Err)
			metrics.SyncFailure("event")
		}
		report.add(res)
	}

	metrics.SyncItems("event", string(OutcomeInserted), report.Inserted)
	metrics.SyncItems("event", string(OutcomeUpdated), report.Updated)
	metrics.SyncItems("event", string(OutcomeUnchanged), report.Unchanged)
	metrics.SyncItems("event", string(OutcomeSkipped), report.Skipped)
	r.logger.Info("Synced events for calendar", "calendar", cal.Name, "synced", report.Synced(), "inserted", report.Inserted, "updated", report.Updated, "skipped", report.Skipped)
	return report
}

func (r *EventReconciler) reconcileOne(ctx context.Context, repo store.Repository, cal *models.CalendarSource, ev provider.Event) ItemResult {
	c, err := canonicalize(ev)
	if err != nil {
		return ItemResult{ExternalID: ev.ID, Outcome: OutcomeSkipped, Err: err}
	}

	var outcome Outcome
	err = repo.WithTx(ctx, func(tx store.Repository) error {
		existing, err := tx.FindEventByExternalID(ctx, cal.ID, c.ExternalID)
		switch {
		case errors.Is(err, apperr.ErrNotFound):
			extID := c.ExternalID
			row := &models.CachedEvent{
				CalendarSourceID: cal.ID,
				ExternalEventID:  &extID,
				Origin:           models.OriginImported,
			}
			c.apply(row)
			outcome = OutcomeInserted
			return tx.CreateEvent(ctx, row)
		case err != nil:
			return err
		case c.matches(existing):
			outcome = OutcomeUnchanged
			return nil
		default:
			c.apply(existing)
			outcome = OutcomeUpdated
			return tx.SaveEvent(ctx, existing)
		}
	})
	if err != nil {
		return ItemResult{ExternalID: ev.ID, Outcome: OutcomeSkipped, Err: err}
	}
	return ItemResult{ExternalID: ev.ID, Outcome: outcome}
}
