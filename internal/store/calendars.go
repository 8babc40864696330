package store

import (
	"context"

	"calplan/internal/models"

	"github.com/google/uuid"
	"gorm.io/gorm/clause"
)

// GetCalendar loads a calendar with its owning account.
func (s *Store) GetCalendar(ctx context.Context, id uuid.UUID) (*models.CalendarSource, error) {
	var c models.CalendarSource
	if err := s.conn(ctx).Preload("Account").First(&c, "id = ?", id).Error; err != nil {
		return nil, dbError(err, "calendar", id)
	}
	return &c, nil
}

// GetCalendarForUser is GetCalendar restricted to calendars the user owns.
// A calendar owned by someone else is reported as not found.
func (s *Store) GetCalendarForUser(ctx context.Context, userID, id uuid.UUID) (*models.CalendarSource, error) {
	var c models.CalendarSource
	err := s.conn(ctx).
		Preload("Account").
		Joins("JOIN accounts ON accounts.id = calendar_sources.account_id").
		Where("calendar_sources.id = ? AND accounts.user_id = ?", id, userID).
		First(&c).Error
	if err != nil {
		return nil, dbError(err, "calendar", id)
	}
	return &c, nil
}

func (s *Store) FindCalendar(ctx context.Context, accountID uuid.UUID, externalID string) (*models.CalendarSource, error) {
	var c models.CalendarSource
	err := s.conn(ctx).
		Where("account_id = ? AND external_calendar_id = ?", accountID, externalID).
		First(&c).Error
	if err != nil {
		return nil, dbError(err, "calendar", externalID)
	}
	return &c, nil
}

// ListCalendarsForUser returns the primary calendar first, then by name.
func (s *Store) ListCalendarsForUser(ctx context.Context, userID uuid.UUID) ([]models.CalendarSource, error) {
	var out []models.CalendarSource
	err := s.conn(ctx).
		Joins("JOIN accounts ON accounts.id = calendar_sources.account_id").
		Where("accounts.user_id = ?", userID).
		Order("calendar_sources.is_primary DESC").
		Order("calendar_sources.name").
		Find(&out).Error
	if err != nil {
		return nil, dbError(err, "calendar", userID)
	}
	return out, nil
}

func (s *Store) CreateCalendar(ctx context.Context, c *models.CalendarSource) error {
	if err := s.conn(ctx).Omit(clause.Associations).Create(c).Error; err != nil {
		return dbError(err, "calendar", c.ExternalCalendarID)
	}
	return nil
}

func (s *Store) SaveCalendar(ctx context.Context, c *models.CalendarSource) error {
	if err := s.conn(ctx).Omit(clause.Associations).Save(c).Error; err != nil {
		return dbError(err, "calendar", c.ID)
	}
	return nil
}
