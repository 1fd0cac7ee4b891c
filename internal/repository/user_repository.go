package repository

import (
	"errors"
	"fmt"

	"gorm.io/gorm"

	"datasteward/internal/model"
)

// ErrUserConflict is returned when a username or email is taken by a
// concurrent registration that passed the service-level checks.
var ErrUserConflict = errors.New("user already exists")

type UserRepository struct {
	db *gorm.DB
}

func NewUserRepository(db *gorm.DB) *UserRepository {
	return &UserRepository{db: db}
}

func (r *UserRepository) Create(user *model.User) error {
	if err := r.db.Create(user).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return fmt.Errorf("%w: %v", ErrUserConflict, err)
		}
		return fmt.Errorf("create user failed: %w", err)
	}
	return nil
}

func (r *UserRepository) GetByUsername(username string) (*model.User, error) {
	return r.first("username", "username = ?", username)
}

func (r *UserRepository) GetByEmail(email string) (*model.User, error) {
	return r.first("email", "email = ?", email)
}

func (r *UserRepository) GetByID(id uint) (*model.User, error) {
	return r.first("id", "id = ?", id)
}

// UpdateProfile only touches the editable profile columns.
func (r *UserRepository) UpdateProfile(id uint, displayName, avatarURL string) error {
	err := r.db.Model(&model.User{}).Where("id = ?", id).Updates(map[string]interface{}{
		"display_name": displayName,
		"avatar_url":   avatarURL,
	}).Error
	if err != nil {
		return fmt.Errorf("update profile of user %d failed: %w", id, err)
	}
	return nil
}

// first returns (nil, nil) when no row matches.
func (r *UserRepository) first(field, query string, arg interface{}) (*model.User, error) {
	var user model.User
	if err := r.db.Where(query, arg).First(&user).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("query user by %s failed: %w", field, err)
	}
	return &user, nil
}
