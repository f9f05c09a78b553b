package users

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"gorm.io/gorm"
)

var (
	// ErrUserNotFound indicates no user row matches the requested identity.
	ErrUserNotFound = errors.New("users: user not found")
	// ErrInvalidUsername indicates the supplied username fails validation.
	ErrInvalidUsername = errors.New("users: invalid username")
	// ErrUsernameTaken indicates another user already holds the username.
	ErrUsernameTaken = errors.New("users: username already taken")
	// ErrInvalidProfile indicates the provider profile lacks usable identity data.
	ErrInvalidProfile = errors.New("users: invalid profile")

	errMissingDatabase = errors.New("users: database connection required")
)

const (
	minUsernameLength = 3
	maxUsernameLength = 20
)

// Usernames that collide with route segments are never assignable.
var reservedUsernames = map[string]struct{}{
	"dashboard": {},
	"admin":     {},
	"api":       {},
	"signup":    {},
	"login":     {},
	"logout":    {},
	"settings":  {},
}

// Profile carries identity fields obtained from the login provider.
type Profile struct {
	Email         string
	DisplayName   string
	AvatarURL     string
	EmailVerified bool
}

// ServiceConfig describes the dependencies required for user management.
type ServiceConfig struct {
	Database   *gorm.DB
	Clock      func() time.Time
	IDProvider IDProvider
}

// IDProvider issues identifiers for new user rows.
type IDProvider interface {
	NewID() (string, error)
}

// Service manages user rows and the signup completion flow.
type Service struct {
	db         *gorm.DB
	now        func() time.Time
	idProvider IDProvider
}

// NewService constructs the user service.
func NewService(cfg ServiceConfig) (*Service, error) {
	if cfg.Database == nil {
		return nil, errMissingDatabase
	}
	clock := cfg.Clock
	if clock == nil {
		clock = time.Now
	}
	idProvider := cfg.IDProvider
	if idProvider == nil {
		idProvider = NewUUIDProvider()
	}
	return &Service{
		db:         cfg.Database,
		now:        clock,
		idProvider: idProvider,
	}, nil
}

// GetByID returns a user row by its primary identifier.
func (s *Service) GetByID(ctx context.Context, userID string) (User, error) {
	var user User
	err := s.db.WithContext(ctx).Where("id = ?", userID).Take(&user).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return User{}, ErrUserNotFound
	}
	if err != nil {
		return User{}, err
	}
	return user, nil
}

// GetByUsername returns a user row by its public username.
func (s *Service) GetByUsername(ctx context.Context, username string) (User, error) {
	trimmed := normalize(username)
	if trimmed == "" {
		return User{}, ErrUserNotFound
	}
	var user User
	err := s.db.WithContext(ctx).Where("username = ?", trimmed).Take(&user).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return User{}, ErrUserNotFound
	}
	if err != nil {
		return User{}, err
	}
	return user, nil
}

// EnsureUser finds an existing user by provider email or creates a new row.
// Existing rows get refreshed display data on every login.
func (s *Service) EnsureUser(ctx context.Context, profile Profile) (User, error) {
	email := normalize(profile.Email)
	if email == "" {
		return User{}, ErrInvalidProfile
	}

	var user User
	err := s.db.WithContext(ctx).Where("email = ?", email).Take(&user).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		id, idErr := s.idProvider.NewID()
		if idErr != nil {
			return User{}, idErr
		}
		user = User{
			ID:            id,
			Name:          normalize(profile.DisplayName),
			Email:         email,
			EmailVerified: profile.EmailVerified,
			Image:         normalize(profile.AvatarURL),
		}
		if user.Name == "" {
			user.Name = email
		}
		if createErr := s.db.WithContext(ctx).Create(&user).Error; createErr != nil {
			return User{}, createErr
		}
		return user, nil
	}
	if err != nil {
		return User{}, err
	}

	updates := map[string]interface{}{}
	if name := normalize(profile.DisplayName); name != "" && name != user.Name {
		updates["name"] = name
		user.Name = name
	}
	if avatar := normalize(profile.AvatarURL); avatar != "" && avatar != user.Image {
		updates["image"] = avatar
		user.Image = avatar
	}
	if profile.EmailVerified && !user.EmailVerified {
		updates["email_verified"] = true
		user.EmailVerified = true
	}
	if len(updates) > 0 {
		updates["updated_at"] = s.now()
		if updateErr := s.db.WithContext(ctx).Model(&User{}).
			Where("id = ?", user.ID).
			Updates(updates).Error; updateErr != nil {
			return User{}, updateErr
		}
	}
	return user, nil
}

// SetUsername assigns the public username during signup completion. The
// username must be unclaimed; a conflict leaves the user row untouched.
func (s *Service) SetUsername(ctx context.Context, userID, username string) (User, error) {
	trimmed := normalize(username)
	if err := validateUsername(trimmed); err != nil {
		return User{}, err
	}

	var user User
	txErr := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var holder User
		err := tx.Where("username = ?", trimmed).Take(&holder).Error
		if err == nil {
			if holder.ID == userID {
				user = holder
				return nil
			}
			return ErrUsernameTaken
		}
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return err
		}

		result := tx.Model(&User{}).
			Where("id = ?", userID).
			Updates(map[string]interface{}{"username": trimmed, "updated_at": s.now()})
		if result.Error != nil {
			return result.Error
		}
		if result.RowsAffected == 0 {
			return ErrUserNotFound
		}
		return tx.Where("id = ?", userID).Take(&user).Error
	})
	if txErr != nil {
		return User{}, txErr
	}
	return user, nil
}

func validateUsername(username string) error {
	if username == "" {
		return fmt.Errorf("%w: required", ErrInvalidUsername)
	}
	if len(username) < minUsernameLength {
		return fmt.Errorf("%w: must be at least %d characters", ErrInvalidUsername, minUsernameLength)
	}
	if len(username) > maxUsernameLength {
		return fmt.Errorf("%w: must be at most %d characters", ErrInvalidUsername, maxUsernameLength)
	}
	if _, reserved := reservedUsernames[strings.ToLower(username)]; reserved {
		return fmt.Errorf("%w: reserved", ErrInvalidUsername)
	}
	return nil
}
