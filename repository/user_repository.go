package repository

import (
	"context"
	"errors"
	"strings"

	"github.com/longle289/TrustAustralia/models"
	"gorm.io/gorm"
)

var ErrUserNotFound = errors.New("user not found")

// UserRepository is read-only access to the account store.
type UserRepository interface {
	FindByEmail(ctx context.Context, email string) (*models.User, error)
}

type gormUserRepository struct {
	db *gorm.DB
}

func NewGormUserRepository(db *gorm.DB) UserRepository {
	return &gormUserRepository{db: db}
}

func (r *gormUserRepository) FindByEmail(ctx context.Context, email string) (*models.User, error) {
	email = strings.TrimSpace(email)
	if email == "" {
		return nil, ErrUserNotFound
	}

	var user models.User
	err := r.db.WithContext(ctx).Where("LOWER(email) = LOWER(?)", email).First(&user).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrUserNotFound
	}
	if err != nil {
		return nil, err
	}
	return &user, nil
}
