package auth

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/melodiary/backend/internal/users"
	"gorm.io/gorm"
)

const defaultSessionTTL = 30 * 24 * time.Hour

var (
	// ErrNoSession indicates the request carries no usable session.
	ErrNoSession = errors.New("auth: no valid session")

	errMissingSessionDatabase = errors.New("auth: database connection required")
	errMissingCookieName      = errors.New("auth: cookie name required")
)

// SessionServiceConfig describes the dependencies of the session service.
type SessionServiceConfig struct {
	Database   *gorm.DB
	CookieName string
	TTL        time.Duration
	Clock      func() time.Time
}

// SessionService owns the session table: issuing, resolving, and revoking
// cookie-backed sessions.
type SessionService struct {
	db         *gorm.DB
	cookieName string
	ttl        time.Duration
	clock      func() time.Time
}

// NewSessionService constructs the session service.
func NewSessionService(cfg SessionServiceConfig) (*SessionService, error) {
	if cfg.Database == nil {
		return nil, errMissingSessionDatabase
	}
	cookieName := strings.TrimSpace(cfg.CookieName)
	if cookieName == "" {
		return nil, errMissingCookieName
	}
	ttl := cfg.TTL
	if ttl <= 0 {
		ttl = defaultSessionTTL
	}
	clock := cfg.Clock
	if clock == nil {
		clock = time.Now
	}
	return &SessionService{
		db:         cfg.Database,
		cookieName: cookieName,
		ttl:        ttl,
		clock:      clock,
	}, nil
}

// CookieName returns the cookie name used for session lookups.
func (s *SessionService) CookieName() string {
	return s.cookieName
}

// TTL returns the configured session lifetime.
func (s *SessionService) TTL() time.Duration {
	return s.ttl
}

// Issue creates a session row for the user and returns it. The token is an
// opaque random identifier, not a bearer of claims.
func (s *SessionService) Issue(ctx context.Context, userID, ipAddress, userAgent string) (Session, error) {
	if strings.TrimSpace(userID) == "" {
		return Session{}, ErrNoSession
	}

	id, err := uuid.NewV7()
	if err != nil {
		return Session{}, err
	}
	session := Session{
		ID:        id.String(),
		Token:     uuid.NewString(),
		UserID:    userID,
		ExpiresAt: s.clock().Add(s.ttl),
		IPAddress: ipAddress,
		UserAgent: userAgent,
	}
	if err := s.db.WithContext(ctx).Create(&session).Error; err != nil {
		return Session{}, err
	}
	return session, nil
}

// Resolve reads the session cookie from the request and returns the session
// and its owning user. Missing, unknown, or expired sessions all fail with
// ErrNoSession.
func (s *SessionService) Resolve(ctx context.Context, request *http.Request) (users.User, Session, error) {
	cookie, err := request.Cookie(s.cookieName)
	if err != nil || strings.TrimSpace(cookie.Value) == "" {
		return users.User{}, Session{}, ErrNoSession
	}
	return s.ResolveToken(ctx, cookie.Value)
}

// ResolveToken looks up a session by its token value.
func (s *SessionService) ResolveToken(ctx context.Context, token string) (users.User, Session, error) {
	var session Session
	err := s.db.WithContext(ctx).Where("token = ?", token).Take(&session).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return users.User{}, Session{}, ErrNoSession
	}
	if err != nil {
		return users.User{}, Session{}, err
	}

	if !session.ExpiresAt.After(s.clock()) {
		// Expired rows are reaped lazily on first touch.
		_ = s.db.WithContext(ctx).Where("id = ?", session.ID).Delete(&Session{}).Error
		return users.User{}, Session{}, ErrNoSession
	}

	var user users.User
	err = s.db.WithContext(ctx).Where("id = ?", session.UserID).Take(&user).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return users.User{}, Session{}, ErrNoSession
	}
	if err != nil {
		return users.User{}, Session{}, err
	}

	return user, session, nil
}

// Revoke deletes the session row backing the token. Revoking an unknown
// token is not an error.
func (s *SessionService) Revoke(ctx context.Context, token string) error {
	return s.db.WithContext(ctx).Where("token = ?", token).Delete(&Session{}).Error
}
