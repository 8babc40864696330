package store

import (
	"context"
	"strings"

	"calplan/internal/models"

	"github.com/google/uuid"
)

func (s *Store) GetUser(ctx context.Context, id uuid.UUID) (*models.User, error) {
	var u models.User
	if err := s.conn(ctx).First(&u, "id = ?", id).Error; err != nil {
		return nil, dbError(err, "user", id)
	}
	return &u, nil
}

func (s *Store) FindUserByEmail(ctx context.Context, email string) (*models.User, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	var u models.User
	if err := s.conn(ctx).First(&u, "email = ?", email).Error; err != nil {
		return nil, dbError(err, "user", email)
	}
	return &u, nil
}

func (s *Store) CreateUser(ctx context.Context, u *models.User) error {
	u.Email = strings.ToLower(strings.TrimSpace(u.Email))
	if err := s.conn(ctx).Create(u).Error; err != nil {
		return dbError(err, "user", u.Email)
	}
	return nil
}
