// Package events is the single-event write path: create, update and delete
// go to the provider first and are mirrored locally only after the remote
// call succeeded.
package events

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"calplan/internal/apperr"
	"calplan/internal/models"
	"calplan/internal/provider"
	"calplan/internal/store"
	"calplan/internal/validate"

	"github.com/google/uuid"
)

// CreateInput is a new event. LocalOnly stores it without pushing it.
type CreateInput struct {
	CalendarSourceID uuid.UUID `json:"calendar_source_id" binding:"required"`
	Title            string    `json:"title" binding:"required,max=255"`
	Description      *string   `json:"description"`
	Location         *string   `json:"location" binding:"omitempty,max=255"`
	StartAt          time.Time `json:"start_at" binding:"required"`
	EndAt            time.Time `json:"end_at" binding:"required"`
	AllDay           bool      `json:"all_day"`
	LocalOnly        bool      `json:"local_only"`
}

// UpdateInput changes only the fields that are set. An empty description or
// location clears it.
type UpdateInput struct {
	Title       *string    `json:"title" binding:"omitempty,min=1,max=255"`
	Description *string    `json:"description"`
	Location    *string    `json:"location" binding:"omitempty,max=255"`
	StartAt     *time.Time `json:"start_at"`
	EndAt       *time.Time `json:"end_at"`
	AllDay      *bool      `json:"all_day"`
}

// Filter scopes List. Both bounds are inclusive and apply to the start.
type Filter struct {
	CalendarSourceID *uuid.UUID
	StartMin         *time.Time
	StartMax         *time.Time
}

type Service struct {
	repo    store.Repository
	guard   provider.TokenValidator
	factory provider.Factory
	logger  *slog.Logger
}

func NewService(repo store.Repository, guard provider.TokenValidator, factory provider.Factory, logger *slog.Logger) *Service {
	return &Service{repo: repo, guard: guard, factory: factory, logger: logger}
}

// Create pushes the event to the calendar's provider and stores it with
// origin generated, or stores a draft with origin manual when LocalOnly.
func (s *Service) Create(ctx context.Context, userID uuid.UUID, in CreateInput) (*models.CachedEvent, error) {
	if err := validate.Struct(in); err != nil {
		return nil, err
	}
	row := &models.CachedEvent{
		CalendarSourceID: in.CalendarSourceID,
		Title:            strings.TrimSpace(in.Title),
		Description:      emptyToNil(in.Description),
		Location:         emptyToNil(in.Location),
		AllDay:           in.AllDay,
	}
	row.StartAt, row.EndAt = normalize(in.StartAt, in.AllDay), normalize(in.EndAt, in.AllDay)
	if err := checkEvent(row); err != nil {
		return nil, err
	}

	cal, err := s.repo.GetCalendarForUser(ctx, userID, in.CalendarSourceID)
	if err != nil {
		return nil, err
	}

	if in.LocalOnly {
		row.Origin, row.Status = models.OriginManual, models.StatusDraft
	} else {
		remote, err := s.session(cal).CreateEvent(ctx, cal.ExternalCalendarID, inputFor(row))
		if err != nil {
			s.logger.Error("Failed to create event", "calendar", cal.Name, "error", err)
			return nil, fmt.Errorf("failed to create event in calendar %s: %w", cal.ID, err)
		}
		extID := remote.ID
		row.ExternalEventID = &extID
		row.Origin, row.Status = models.OriginGenerated, remoteStatus(remote)
	}

	err = s.repo.WithTx(ctx, func(tx store.Repository) error {
		return tx.CreateEvent(ctx, row)
	})
	if err != nil {
		if !row.IsLocalOnly() {
			s.logger.Error("Event created remotely but not cached", "calendar", cal.Name, "externalID", *row.ExternalEventID, "error", err)
		}
		return nil, err
	}
	s.logger.Info("Created event", "eventID", row.ID, "calendar", cal.Name, "origin", row.Origin)
	return row, nil
}

// Update merges in into the stored event, pushes the merged state when the
// event exists remotely, then saves it.
func (s *Service) Update(ctx context.Context, userID, eventID uuid.UUID, in UpdateInput) (*models.CachedEvent, error) {
	if err := validate.Struct(in); err != nil {
		return nil, err
	}
	ev, err := s.repo.GetEventForUser(ctx, userID, eventID)
	if err != nil {
		return nil, err
	}

	merged := *ev
	merged.CalendarSource = nil
	if in.Title != nil {
		merged.Title = strings.TrimSpace(*in.Title)
	}
	if in.Description != nil {
		merged.Description = emptyToNil(in.Description)
	}
	if in.Location != nil {
		merged.Location = emptyToNil(in.Location)
	}
	if in.AllDay != nil {
		merged.AllDay = *in.AllDay
	}
	if in.StartAt != nil {
		merged.StartAt = *in.StartAt
	}
	if in.EndAt != nil {
		merged.EndAt = *in.EndAt
	}
	merged.StartAt, merged.EndAt = normalize(merged.StartAt, merged.AllDay), normalize(merged.EndAt, merged.AllDay)
	if err := checkEvent(&merged); err != nil {
		return nil, err
	}

	if !ev.IsLocalOnly() {
		cal := ev.CalendarSource
		remote, err := s.session(cal).UpdateEvent(ctx, cal.ExternalCalendarID, *ev.ExternalEventID, inputFor(&merged))
		if err != nil {
			s.logger.Error("Failed to update event", "eventID", ev.ID, "error", err)
			return nil, fmt.Errorf("failed to update event %s: %w", ev.ID, err)
		}
		merged.Status = remoteStatus(remote)
	}

	err = s.repo.WithTx(ctx, func(tx store.Repository) error {
		return tx.SaveEvent(ctx, &merged)
	})
	if err != nil {
		return nil, err
	}
	s.logger.Info("Updated event", "eventID", merged.ID, "localOnly", ev.IsLocalOnly())
	return &merged, nil
}

// Delete removes the event remotely, when it has a remote id, and then
// locally. A remote event that is already gone does not block the local
// delete.
func (s *Service) Delete(ctx context.Context, userID, eventID uuid.UUID) error {
	ev, err := s.repo.GetEventForUser(ctx, userID, eventID)
	if err != nil {
		return err
	}

	if !ev.IsLocalOnly() {
		cal := ev.CalendarSource
		err := s.session(cal).DeleteEvent(ctx, cal.ExternalCalendarID, *ev.ExternalEventID)
		switch status, _ := apperr.ProviderStatus(err); {
		case err == nil:
		case status == http.StatusNotFound || status == http.StatusGone:
			s.logger.Warn("Event already deleted remotely", "eventID", ev.ID, "status", status)
		default:
			s.logger.Error("Failed to delete event", "eventID", ev.ID, "error", err)
			return fmt.Errorf("failed to delete event %s: %w", ev.ID, err)
		}
	}

	err = s.repo.WithTx(ctx, func(tx store.Repository) error {
		return tx.DeleteEvent(ctx, ev.ID)
	})
	if err != nil {
		return err
	}
	s.logger.Info("Deleted event", "eventID", ev.ID, "localOnly", ev.IsLocalOnly())
	return nil
}

func (s *Service) Get(ctx context.Context, userID, eventID uuid.UUID) (*models.CachedEvent, error) {
	ev, err := s.repo.GetEventForUser(ctx, userID, eventID)
	if err != nil {
		return nil, err
	}
	ev.CalendarSource = nil
	return ev, nil
}

// List returns the user's cached events ordered by start.
func (s *Service) List(ctx context.Context, userID uuid.UUID, f Filter) ([]models.CachedEvent, error) {
	if f.StartMin != nil && f.StartMax != nil && f.StartMax.Before(*f.StartMin) {
		return nil, validate.Field("start_max", "start_max must not be before start_min")
	}
	return s.repo.ListEvents(ctx, store.EventFilter{
		UserID:           userID,
		CalendarSourceID: f.CalendarSourceID,
		StartMin:         f.StartMin,
		StartMax:         f.StartMax,
	})
}

func (s *Service) session(cal *models.CalendarSource) *provider.Session {
	return provider.NewSession(s.guard, s.factory, cal.Account)
}

func inputFor(e *models.CachedEvent) provider.EventInput {
	return provider.EventInput{
		Title:       e.Title,
		Description: e.Description,
		Location:    e.Location,
		Start:       e.StartAt,
		End:         e.EndAt,
		AllDay:      e.AllDay,
	}
}

func checkEvent(e *models.CachedEvent) error {
	if e.Title == "" {
		return validate.Field("title", "this field is required")
	}
	if err := e.Validate(); err != nil {
		return validate.Field("end_at", err.Error())
	}
	return nil
}

// normalize converts timed values to UTC and all-day values to midnight UTC
// of the calendar date they were given in.
func normalize(t time.Time, allDay bool) time.Time {
	if !allDay {
		return t.UTC()
	}
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func remoteStatus(ev *provider.Event) models.Status {
	if ev == nil || ev.Status == "" {
		return models.StatusConfirmed
	}
	return models.Status(ev.Status)
}

func emptyToNil(s *string) *string {
	if s == nil || strings.TrimSpace(*s) == "" {
		return nil
	}
	v := *s
	return &v
}
