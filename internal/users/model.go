package users

import (
	"strings"
	"time"
)

// User holds one account identity. Username is empty until the owner picks
// one during signup completion; the dashboard is gated on it being set.
type User struct {
	ID            string    `gorm:"column:id;primaryKey;size:190;not null"`
	Name          string    `gorm:"column:name;size:320;not null"`
	Email         string    `gorm:"column:email;size:320;not null;uniqueIndex"`
	EmailVerified bool      `gorm:"column:email_verified;not null;default:false"`
	Image         string    `gorm:"column:image;size:512"`
	Username      *string   `gorm:"column:username;size:190;uniqueIndex"`
	CreatedAt     time.Time `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt     time.Time `gorm:"column:updated_at;autoUpdateTime"`
}

// TableName provides the explicit table binding for GORM.
func (User) TableName() string {
	return "users"
}

// HasUsername reports whether signup completion has happened for the user.
func (u User) HasUsername() bool {
	return u.Username != nil && strings.TrimSpace(*u.Username) != ""
}

func normalize(value string) string {
	return strings.TrimSpace(value)
}
