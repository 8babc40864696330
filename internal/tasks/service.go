package tasks

import (
	"context"
	"log/slog"
	"strings"

	"calplan/internal/models"
	"calplan/internal/validate"

	"github.com/google/uuid"
)

const (
	DefaultSource = "notepad"
	DefaultLimit  = 50
)

// Repository is the slice of the store the task service needs.
type Repository interface {
	CreateTaskBatch(ctx context.Context, b *models.TaskBatch) error
	GetTaskBatch(ctx context.Context, userID, id uuid.UUID) (*models.TaskBatch, error)
	ListTaskBatches(ctx context.Context, userID uuid.UUID, limit int) ([]models.TaskBatch, error)
}

// BatchInput is the payload of a new batch.
type BatchInput struct {
	RawText         string  `json:"raw_text" binding:"required,max=20000"`
	Source          string  `json:"source" binding:"max=50"`
	DefaultTimezone *string `json:"default_timezone" binding:"omitempty,timezone"`
}

type Service struct {
	repo   Repository
	logger *slog.Logger
}

func NewService(repo Repository, logger *slog.Logger) *Service {
	return &Service{repo: repo, logger: logger}
}

// CreateBatch parses every line of in.RawText and stores the batch with its
// items. Blank lines are skipped but keep their index so LineIndex points
// back into the raw text.
func (s *Service) CreateBatch(ctx context.Context, userID uuid.UUID, in BatchInput) (*models.TaskBatch, error) {
	if err := validate.Struct(in); err != nil {
		return nil, err
	}
	source := in.Source
	if source == "" {
		source = DefaultSource
	}

	batch := &models.TaskBatch{
		UserID:          userID,
		RawText:         in.RawText,
		Source:          source,
		DefaultTimezone: in.DefaultTimezone,
	}
	for idx, raw := range strings.Split(in.RawText, "\n") {
		line := strings.TrimSpace(raw)
		if line == "" {
			continue
		}
		p := ParseLine(line)
		if p.Title == "" {
			continue
		}
		minutes, confidence := p.Minutes, p.Confidence
		batch.Items = append(batch.Items, models.TaskItem{
			LineIndex:             idx,
			RawLine:               line,
			Title:                 p.Title,
			ParsedDurationMinutes: &minutes,
			DurationConfidence:    &confidence,
			ParseMethod:           p.Method,
		})
	}

	if err := s.repo.CreateTaskBatch(ctx, batch); err != nil {
		return nil, err
	}
	s.logger.Info("Created task batch", "batchID", batch.ID, "items", len(batch.Items), "userID", userID)
	return batch, nil
}

// GetBatch returns the batch only if userID owns it.
func (s *Service) GetBatch(ctx context.Context, userID, batchID uuid.UUID) (*models.TaskBatch, error) {
	return s.repo.GetTaskBatch(ctx, userID, batchID)
}

// ListBatches returns the newest batches first. A limit <= 0 means
// DefaultLimit.
func (s *Service) ListBatches(ctx context.Context, userID uuid.UUID, limit int) ([]models.TaskBatch, error) {
	if limit <= 0 {
		limit = DefaultLimit
	}
	return s.repo.ListTaskBatches(ctx, userID, limit)
}
