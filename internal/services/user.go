package services

import (
	"errors"
	"time"

	"github.com/studyblocks/backend/internal/models"
	"github.com/studyblocks/backend/internal/utils"
	"github.com/studyblocks/backend/pkg/logger"
	"gorm.io/gorm"
)

var (
	ErrUserNotFound       = errors.New("user not found")
	ErrUsernameTaken      = errors.New("username already taken")
	ErrInvalidCredentials = errors.New("invalid username or password")
)

// Contact is a user's reminder delivery identity.
type Contact struct {
	Email string
	Name  string
}

// UserService owns the users table and doubles as the scanner's user
// directory.
type UserService struct {
	db *gorm.DB
}

func NewUserService(db *gorm.DB) *UserService {
	return &UserService{db: db}
}

func (s *UserService) Register(username, password, email, nickname string) (*models.User, error) {
	var count int64
	if err := s.db.Model(&models.User{}).Where("username = ?", username).Count(&count).Error; err != nil {
		return nil, err
	}
	if count > 0 {
		return nil, ErrUsernameTaken
	}

	hash, err := utils.HashPassword(password)
	if err != nil {
		return nil, err
	}

	user := &models.User{
		Username: username,
		Password: hash,
		Email:    email,
		Nickname: nickname,
		Role:     "user",
		IsActive: true,
	}
	if err := s.db.Create(user).Error; err != nil {
		return nil, err
	}
	return user, nil
}

func (s *UserService) Authenticate(username, password string) (*models.User, error) {
	var user models.User
	err := s.db.Where("username = ? AND is_active = ?", username, true).First(&user).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrInvalidCredentials
	}
	if err != nil {
		return nil, err
	}

	if !utils.CheckPassword(password, user.Password) {
		return nil, ErrInvalidCredentials
	}

	now := time.Now()
	if err := s.db.Model(&user).Update("last_login", &now).Error; err != nil {
		logger.Warn().Err(err).Str("username", user.Username).Msg("failed to record last login")
	}

	return &user, nil
}

// FindContactByOwnerID resolves a block owner to their reminder contact.
// A missing or deactivated owner means the block is skipped by the scanner.
func (s *UserService) FindContactByOwnerID(ownerID uint) (*Contact, error) {
	var user models.User
	err := s.db.Where("id = ? AND is_active = ?", ownerID, true).First(&user).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrUserNotFound
	}
	if err != nil {
		return nil, err
	}
	if user.Email == "" {
		return nil, ErrUserNotFound
	}

	name := user.Nickname
	if name == "" {
		name = user.Username
	}
	return &Contact{Email: user.Email, Name: name}, nil
}

// CreateAdminIfNotExists seeds a default admin account on first start.
func (s *UserService) CreateAdminIfNotExists() error {
	var count int64
	if err := s.db.Model(&models.User{}).Where("role = ?", "admin").Count(&count).Error; err != nil {
		return err
	}
	if count > 0 {
		return nil
	}

	hash, err := utils.HashPassword("admin123")
	if err != nil {
		return err
	}

	admin := &models.User{
		Username: "admin",
		Password: hash,
		Email:    "admin@localhost",
		Nickname: "Administrator",
		Role:     "admin",
		IsActive: true,
	}
	if err := s.db.Create(admin).Error; err != nil {
		return err
	}

	logger.Info().Msg("default admin user created (username: admin), change the password immediately")
	return nil
}
