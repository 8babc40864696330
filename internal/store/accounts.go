package store

import (
	"context"
	"time"

	"calplan/internal/models"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

func (s *Store) GetAccount(ctx context.Context, id uuid.UUID) (*models.Account, error) {
	var a models.Account
	if err := s.conn(ctx).First(&a, "id = ?", id).Error; err != nil {
		return nil, dbError(err, "account", id)
	}
	return &a, nil
}

func (s *Store) FindAccount(ctx context.Context, userID uuid.UUID, provider, providerAccountID string) (*models.Account, error) {
	var a models.Account
	err := s.conn(ctx).
		Where("user_id = ? AND provider = ? AND provider_account_id = ?", userID, provider, providerAccountID).
		First(&a).Error
	if err != nil {
		return nil, dbError(err, "account", providerAccountID)
	}
	return &a, nil
}

// ListAccountsForUser returns accounts oldest first. An empty provider
// matches all providers.
func (s *Store) ListAccountsForUser(ctx context.Context, userID uuid.UUID, provider string) ([]models.Account, error) {
	q := s.conn(ctx).Where("user_id = ?", userID)
	if provider != "" {
		q = q.Where("provider = ?", provider)
	}
	var out []models.Account
	if err := q.Order("created_at").Find(&out).Error; err != nil {
		return nil, dbError(err, "account", userID)
	}
	return out, nil
}

func (s *Store) CreateAccount(ctx context.Context, a *models.Account) error {
	if err := s.conn(ctx).Omit(clause.Associations).Create(a).Error; err != nil {
		return dbError(err, "account", a.ProviderAccountID)
	}
	return nil
}

func (s *Store) SaveAccount(ctx context.Context, a *models.Account) error {
	if err := s.conn(ctx).Omit(clause.Associations).Save(a).Error; err != nil {
		return dbError(err, "account", a.ID)
	}
	return nil
}

// UpdateAccountTokens writes the token triple in one statement. A nil
// refreshToken leaves the stored one untouched.
func (s *Store) UpdateAccountTokens(ctx context.Context, id uuid.UUID, accessToken string, refreshToken *string, expiresAt time.Time) error {
	updates := map[string]any{
		"access_token":     accessToken,
		"token_expires_at": expiresAt.UTC(),
	}
	if refreshToken != nil {
		updates["refresh_token"] = *refreshToken
	}
	res := s.conn(ctx).Model(&models.Account{}).Where("id = ?", id).Updates(updates)
	if res.Error != nil {
		return dbError(res.Error, "account", id)
	}
	if res.RowsAffected == 0 {
		return dbError(gorm.ErrRecordNotFound, "account", id)
	}
	return nil
}

// DeleteAccountsForUser removes the user's accounts for provider together
// with their calendars and cached events. It returns the number of
// accounts removed.
func (s *Store) DeleteAccountsForUser(ctx context.Context, userID uuid.UUID, provider string) (int64, error) {
	var removed int64
	err := s.conn(ctx).Transaction(func(tx *gorm.DB) error {
		accounts := tx.Model(&models.Account{}).Select("id").Where("user_id = ? AND provider = ?", userID, provider)
		calendars := tx.Model(&models.CalendarSource{}).Select("id").Where("account_id IN (?)", accounts)

		if err := tx.Where("calendar_source_id IN (?)", calendars).Delete(&models.CachedEvent{}).Error; err != nil {
			return err
		}
		if err := tx.Where("account_id IN (?)", accounts).Delete(&models.CalendarSource{}).Error; err != nil {
			return err
		}
		res := tx.Where("user_id = ? AND provider = ?", userID, provider).Delete(&models.Account{})
		if res.Error != nil {
			return res.Error
		}
		removed = res.RowsAffected
		return nil
	})
	if err != nil {
		return 0, dbError(err, "account", userID)
	}
	return removed, nil
}
