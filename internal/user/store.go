package user

import (
	"errors"
	"fmt"

	"gorm.io/gorm"

	"finsight/internal/models"
)

// ErrUserNotFound is returned when a username or ID has no account.
var ErrUserNotFound = errors.New("user not found")

// Store wraps the relational access the auth service needs.
type Store struct {
	db *gorm.DB
}

func NewStore(db *gorm.DB) *Store {
	return &Store{db: db}
}

func (s *Store) CreateUser(user *models.User) error {
	if err := s.db.Create(user).Error; err != nil {
		return fmt.Errorf("creating user: %w", err)
	}
	return nil
}

func (s *Store) GetUserByUsername(username string) (*models.User, error) {
	var user models.User
	if err := s.db.Where("username = ?", username).First(&user).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrUserNotFound
		}
		return nil, fmt.Errorf("loading user %q: %w", username, err)
	}
	return &user, nil
}

func (s *Store) GetUserByID(id uint) (*models.User, error) {
	var user models.User
	if err := s.db.First(&user, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrUserNotFound
		}
		return nil, fmt.Errorf("loading user %d: %w", id, err)
	}
	return &user, nil
}

func (s *Store) CompanyExists(id uint) (bool, error) {
	var count int64
	if err := s.db.Model(&models.Company{}).Where("id = ?", id).Count(&count).Error; err != nil {
		return false, fmt.Errorf("checking company %d: %w", id, err)
	}
	return count > 0, nil
}
