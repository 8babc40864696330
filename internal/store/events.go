package store

import (
	"context"
	"time"

	"calplan/internal/models"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// EventFilter scopes ListEvents. StartMin and StartMax are inclusive bounds
// on the event start.
type EventFilter struct {
	UserID           uuid.UUID
	CalendarSourceID *uuid.UUID
	StartMin         *time.Time
	StartMax         *time.Time
}

func (s *Store) ownedEvents(ctx context.Context, userID uuid.UUID) *gorm.DB {
	return s.conn(ctx).
		Joins("JOIN calendar_sources ON calendar_sources.id = cached_events.calendar_source_id").
		Joins("JOIN accounts ON accounts.id = calendar_sources.account_id").
		Where("accounts.user_id = ?", userID)
}

// GetEventForUser loads an event with its calendar and account, provided
// the user owns it.
func (s *Store) GetEventForUser(ctx context.Context, userID, id uuid.UUID) (*models.CachedEvent, error) {
	var e models.CachedEvent
	err := s.ownedEvents(ctx, userID).
		Preload("CalendarSource.Account").
		Where("cached_events.id = ?", id).
		First(&e).Error
	if err != nil {
		return nil, dbError(err, "event", id)
	}
	return &e, nil
}

func (s *Store) FindEventByExternalID(ctx context.Context, calendarID uuid.UUID, externalID string) (*models.CachedEvent, error) {
	var e models.CachedEvent
	err := s.conn(ctx).
		Where("calendar_source_id = ? AND external_event_id = ?", calendarID, externalID).
		First(&e).Error
	if err != nil {
		return nil, dbError(err, "event", externalID)
	}
	return &e, nil
}

// ListEvents returns the user's events ordered by start.
func (s *Store) ListEvents(ctx context.Context, f EventFilter) ([]models.CachedEvent, error) {
	q := s.ownedEvents(ctx, f.UserID)
	if f.CalendarSourceID != nil {
		q = q.Where("cached_events.calendar_source_id = ?", *f.CalendarSourceID)
	}
	if f.StartMin != nil {
		q = q.Where("cached_events.start_at >= ?", f.StartMin.UTC())
	}
	if f.StartMax != nil {
		q = q.Where("cached_events.start_at <= ?", f.StartMax.UTC())
	}
	var out []models.CachedEvent
	if err := q.Order("cached_events.start_at").Find(&out).Error; err != nil {
		return nil, dbError(err, "event", f.UserID)
	}
	return out, nil
}

func (s *Store) CreateEvent(ctx context.Context, e *models.CachedEvent) error {
	if err := s.conn(ctx).Omit(clause.Associations).Create(e).Error; err != nil {
		return dbError(err, "event", e.Title)
	}
	return nil
}

func (s *Store) SaveEvent(ctx context.Context, e *models.CachedEvent) error {
	if err := s.conn(ctx).Omit(clause.Associations).Save(e).Error; err != nil {
		return dbError(err, "event", e.ID)
	}
	return nil
}

func (s *Store) DeleteEvent(ctx context.Context, id uuid.UUID) error {
	res := s.conn(ctx).Delete(&models.CachedEvent{}, "id = ?", id)
	if res.Error != nil {
		return dbError(res.Error, "event", id)
	}
	if res.RowsAffected == 0 {
		return dbError(gorm.ErrRecordNotFound, "event", id)
	}
	return nil
}
