package models

import "github.com/google/uuid"

// TaskBatch is one pasted block of free-text task lines.
type TaskBatch struct {
	Base
	UserID          uuid.UUID `json:"user_id" gorm:"type:uuid;not null;index"`
	RawText         string    `json:"raw_text" gorm:"type:text;not null"`
	Source          string    `json:"source" gorm:"size:50;not null"`
	DefaultTimezone *string   `json:"default_timezone,omitempty" gorm:"size:64"`

	User  *User      `json:"-" gorm:"foreignKey:UserID;constraint:OnDelete:CASCADE"`
	Items []TaskItem `json:"items,omitempty" gorm:"foreignKey:BatchID;constraint:OnDelete:CASCADE"`
}

// TaskItem is a single parsed line of a batch.
type TaskItem struct {
	Base
	BatchID               uuid.UUID `json:"batch_id" gorm:"type:uuid;not null;index"`
	LineIndex             int       `json:"line_index" gorm:"not null"`
	RawLine               string    `json:"raw_line" gorm:"type:text;not null"`
	Title                 string    `json:"title" gorm:"size:255;not null"`
	ParsedDurationMinutes *int      `json:"duration_minutes,omitempty"`
	DurationConfidence    *float64  `json:"confidence,omitempty"`
	ParseMethod           string    `json:"parse_method" gorm:"size:50;not null"`
}
