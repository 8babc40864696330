package store

import (
	"context"

	"calplan/internal/models"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// CreateTaskBatch inserts the batch and its items together.
func (s *Store) CreateTaskBatch(ctx context.Context, b *models.TaskBatch) error {
	err := s.conn(ctx).Transaction(func(tx *gorm.DB) error {
		items := b.Items
		if err := tx.Omit("Items", "User").Create(b).Error; err != nil {
			return err
		}
		for i := range items {
			items[i].BatchID = b.ID
		}
		if len(items) > 0 {
			if err := tx.Create(&items).Error; err != nil {
				return err
			}
		}
		b.Items = items
		return nil
	})
	if err != nil {
		return dbError(err, "task batch", b.ID)
	}
	return nil
}

func (s *Store) GetTaskBatch(ctx context.Context, userID, id uuid.UUID) (*models.TaskBatch, error) {
	var b models.TaskBatch
	err := s.conn(ctx).
		Preload("Items", func(db *gorm.DB) *gorm.DB { return db.Order("line_index") }).
		Where("id = ? AND user_id = ?", id, userID).
		First(&b).Error
	if err != nil {
		return nil, dbError(err, "task batch", id)
	}
	return &b, nil
}

// ListTaskBatches returns the newest batches first, items included.
func (s *Store) ListTaskBatches(ctx context.Context, userID uuid.UUID, limit int) ([]models.TaskBatch, error) {
	var out []models.TaskBatch
	err := s.conn(ctx).
		Preload("Items", func(db *gorm.DB) *gorm.DB { return db.Order("line_index") }).
		Where("user_id = ?", userID).
		Order("created_at DESC").
		Limit(limit).
		Find(&out).Error
	if err != nil {
		return nil, dbError(err, "task batch", userID)
	}
	return out, nil
}
