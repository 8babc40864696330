// Package models holds the persisted domain types. They are provider
// independent: adapters convert their payloads to these shapes.
package models

import (
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// ProviderGoogle is the only provider the sync engine talks to.
const ProviderGoogle = "google"

// Origin records where a cached event came from.
type Origin string

const (
	// Pulled from the provider by a sync pass.
	OriginImported Origin = "imported"
	// Created locally and pushed to the provider.
	OriginGenerated Origin = "generated"
	// Local only, never pushed.
	OriginManual Origin = "manual"
)

// Status mirrors the provider's event status.
type Status string

const (
	StatusConfirmed Status = "confirmed"
	StatusTentative Status = "tentative"
	StatusCancelled Status = "cancelled"
	StatusDraft     Status = "draft"
)

// ErrEndBeforeStart is returned by CachedEvent.Validate.
var ErrEndBeforeStart = errors.New("event end time must be after start time")

// Base carries the UUID primary key and timestamps shared by every table.
type Base struct {
	ID        uuid.UUID `json:"id" gorm:"type:uuid;primaryKey"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// BeforeCreate assigns a fresh UUID when the caller did not set one.
func (b *Base) BeforeCreate(tx *gorm.DB) error {
	if b.ID == uuid.Nil {
		b.ID = uuid.New()
	}
	return nil
}

// User is the local identity. Accounts and task batches hang off it.
type User struct {
	Base
	Email    string `json:"email" gorm:"size:320;uniqueIndex;not null"`
	Name     string `json:"name,omitempty" gorm:"size:255"`
	IsActive bool   `json:"is_active" gorm:"not null;default:true"`
}

// Account is one external provider identity connected by a user.
type Account struct {
	Base
	UserID            uuid.UUID  `json:"user_id" gorm:"type:uuid;not null;uniqueIndex:uq_account_user_provider_external,priority:1"`
	Provider          string     `json:"provider" gorm:"size:50;not null;uniqueIndex:uq_account_user_provider_external,priority:2"`
	ProviderAccountID string     `json:"provider_account_id" gorm:"size:255;not null;uniqueIndex:uq_account_user_provider_external,priority:3"`
	AccessToken       string     `json:"-" gorm:"type:text"`
	RefreshToken      *string    `json:"-" gorm:"type:text"`
	TokenExpiresAt    *time.Time `json:"token_expires_at,omitempty"`
	// Scopes is an opaque JSON blob of what the provider granted.
	Scopes string `json:"scopes,omitempty" gorm:"type:text"`

	User      *User            `json:"-" gorm:"foreignKey:UserID;constraint:OnDelete:CASCADE"`
	Calendars []CalendarSource `json:"-" gorm:"foreignKey:AccountID;constraint:OnDelete:CASCADE"`
}

// HasRefreshToken reports whether the account can be refreshed without
// sending the user through the consent screen again.
func (a *Account) HasRefreshToken() bool {
	return a.RefreshToken != nil && *a.RefreshToken != ""
}

// CalendarSource is one concrete calendar under an Account.
type CalendarSource struct {
	Base
	AccountID          uuid.UUID `json:"account_id" gorm:"type:uuid;not null;uniqueIndex:uq_calendar_source_account_external,priority:1"`
	ExternalCalendarID string    `json:"external_calendar_id" gorm:"size:255;not null;uniqueIndex:uq_calendar_source_account_external,priority:2"`
	Name               string    `json:"name" gorm:"size:255;not null"`
	IsPrimary          bool      `json:"is_primary" gorm:"not null;default:false"`
	Timezone           string    `json:"timezone" gorm:"size:64;not null"`

	Account *Account      `json:"-" gorm:"foreignKey:AccountID"`
	Events  []CachedEvent `json:"-" gorm:"foreignKey:CalendarSourceID;constraint:OnDelete:CASCADE"`
}

// CachedEvent is the local copy of a remote event, or a local event that
// has not been pushed (ExternalEventID nil).
type CachedEvent struct {
	Base
	CalendarSourceID uuid.UUID `json:"calendar_source_id" gorm:"type:uuid;not null;uniqueIndex:uq_cached_event_calendar_external,priority:1;index:ix_cached_event_calendar_start,priority:1"`
	ExternalEventID  *string   `json:"external_event_id,omitempty" gorm:"size:255;uniqueIndex:uq_cached_event_calendar_external,priority:2"`
	Title            string    `json:"title" gorm:"size:255;not null"`
	Description      *string   `json:"description,omitempty" gorm:"type:text"`
	Location         *string   `json:"location,omitempty" gorm:"size:255"`
	StartAt          time.Time `json:"start_at" gorm:"not null;index:ix_cached_event_calendar_start,priority:2"`
	EndAt            time.Time `json:"end_at" gorm:"not null"`
	AllDay           bool      `json:"all_day" gorm:"not null;default:false"`
	Origin           Origin    `json:"source" gorm:"size:50;not null"`
	Status           Status    `json:"status" gorm:"size:50;not null"`

	CalendarSource *CalendarSource `json:"-" gorm:"foreignKey:CalendarSourceID"`
}

// Validate requires end strictly after start, except
// all-day events which only need end not before start.
func (e *CachedEvent) Validate() error {
	return ValidateTimes(e.StartAt, e.EndAt, e.AllDay)
}

// IsLocalOnly reports whether the event was never pushed to the provider.
func (e *CachedEvent) IsLocalOnly() bool {
	return e.ExternalEventID == nil || *e.ExternalEventID == ""
}

// Duration returns the length of the event.
func (e *CachedEvent) Duration() time.Duration {
	return e.EndAt.Sub(e.StartAt)
}

// ValidateTimes is the shared form of CachedEvent.Validate.
func ValidateTimes(start, end time.Time, allDay bool) error {
	if allDay {
		if end.Before(start) {
			return ErrEndBeforeStart
		}
		return nil
	}
	if !end.After(start) {
		return ErrEndBeforeStart
	}
	return nil
}
