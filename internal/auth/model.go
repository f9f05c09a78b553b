package auth

import (
	"time"

	"github.com/melodiary/backend/internal/users"
)

// Session is the ephemeral credential backing a logged-in browser. The
// opaque token travels in a cookie; expiry is absolute from issue time.
type Session struct {
	ID        string     `gorm:"column:id;primaryKey;size:190;not null"`
	Token     string     `gorm:"column:token;size:190;not null;uniqueIndex"`
	UserID    string     `gorm:"column:user_id;size:190;not null;index"`
	User      users.User `gorm:"foreignKey:UserID;constraint:OnDelete:CASCADE"`
	ExpiresAt time.Time  `gorm:"column:expires_at;not null"`
	IPAddress string     `gorm:"column:ip_address;size:64"`
	UserAgent string     `gorm:"column:user_agent;size:512"`
	CreatedAt time.Time  `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt time.Time  `gorm:"column:updated_at;autoUpdateTime"`
}

// TableName provides the explicit table binding for GORM.
func (Session) TableName() string {
	return "sessions"
}

// Account links a user to one external login provider identity.
type Account struct {
	ID                   string     `gorm:"column:id;primaryKey;size:190;not null"`
	AccountID            string     `gorm:"column:account_id;size:190;not null;uniqueIndex:idx_accounts_provider,priority:2"`
	ProviderID           string     `gorm:"column:provider_id;size:64;not null;uniqueIndex:idx_accounts_provider,priority:1"`
	UserID               string     `gorm:"column:user_id;size:190;not null;index"`
	User                 users.User `gorm:"foreignKey:UserID;constraint:OnDelete:CASCADE"`
	AccessToken          string     `gorm:"column:access_token;type:text"`
	RefreshToken         string     `gorm:"column:refresh_token;type:text"`
	AccessTokenExpiresAt *time.Time `gorm:"column:access_token_expires_at"`
	Scope                string     `gorm:"column:scope;size:512"`
	CreatedAt            time.Time  `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt            time.Time  `gorm:"column:updated_at;autoUpdateTime"`
}

// TableName provides the explicit table binding for GORM.
func (Account) TableName() string {
	return "accounts"
}

// Verification stores short-lived challenge values owned by the auth flow.
type Verification struct {
	ID         string    `gorm:"column:id;primaryKey;size:190;not null"`
	Identifier string    `gorm:"column:identifier;size:190;not null;index"`
	Value      string    `gorm:"column:value;type:text;not null"`
	ExpiresAt  time.Time `gorm:"column:expires_at;not null"`
	CreatedAt  time.Time `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt  time.Time `gorm:"column:updated_at;autoUpdateTime"`
}

// TableName provides the explicit table binding for GORM.
func (Verification) TableName() string {
	return "verifications"
}
