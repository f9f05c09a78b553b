package server

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/melodiary/backend/internal/artwork"
	"github.com/melodiary/backend/internal/auth"
	"github.com/melodiary/backend/internal/catalog"
	"github.com/melodiary/backend/internal/entries"
	"github.com/melodiary/backend/internal/users"
	"go.uber.org/zap"
)

const (
	userContextKey    = "melodiary_user"
	sessionContextKey = "melodiary_session"
)

var (
	errMissingSessions    = errors.New("session service dependency required")
	errMissingUsers       = errors.New("user service dependency required")
	errMissingEntries     = errors.New("entries service dependency required")
	errMissingCatalog     = errors.New("catalog client dependency required")
	errMissingArtwork     = errors.New("artwork cache dependency required")
	errMissingSpotifyAuth = errors.New("spotify authenticator dependency required")
)

// SessionResolver reads the acting user from an inbound request.
type SessionResolver interface {
	Resolve(ctx context.Context, request *http.Request) (users.User, auth.Session, error)
	Issue(ctx context.Context, userID, ipAddress, userAgent string) (auth.Session, error)
	Revoke(ctx context.Context, token string) error
	CookieName() string
	TTL() time.Duration
}

// CatalogClient exposes the album search and lookup operations the API needs.
type CatalogClient interface {
	SearchAlbums(ctx context.Context, query string, limit int) ([]catalog.Album, error)
	GetAlbumDetails(ctx context.Context, albumID string) (catalog.Album, error)
}

// SpotifyLogin drives the social login redirect and callback.
type SpotifyLogin interface {
	LoginURL() (string, error)
	Callback(ctx context.Context, state, code string) (users.User, error)
}

// Dependencies bundles everything the HTTP layer needs.
type Dependencies struct {
	Sessions    SessionResolver
	Users       *users.Service
	Entries     *entries.Service
	Catalog     CatalogClient
	Artwork     *artwork.Cache
	SpotifyAuth SpotifyLogin
	Logger      *zap.Logger
}

// NewHTTPHandler wires the router with middleware and all API routes.
func NewHTTPHandler(deps Dependencies) (http.Handler, error) {
	if deps.Sessions == nil {
		return nil, errMissingSessions
	}
	if deps.Users == nil {
		return nil, errMissingUsers
	}
	if deps.Entries == nil {
		return nil, errMissingEntries
	}
	if deps.Catalog == nil {
		return nil, errMissingCatalog
	}
	if deps.Artwork == nil {
		return nil, errMissingArtwork
	}
	if deps.SpotifyAuth == nil {
		return nil, errMissingSpotifyAuth
	}

	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(cors.New(cors.Config{
		AllowOrigins: []string{"*"},
		AllowMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowHeaders: []string{"Authorization", "Content-Type"},
		MaxAge:       12 * time.Hour,
	}))

	handler := &httpHandler{
		sessions:    deps.Sessions,
		users:       deps.Users,
		entries:     deps.Entries,
		catalog:     deps.Catalog,
		artwork:     deps.Artwork,
		spotifyAuth: deps.SpotifyAuth,
		logger:      logger,
	}

	router.GET("/auth/spotify/login", handler.handleSpotifyLogin)
	router.GET("/auth/spotify/callback", handler.handleSpotifyCallback)

	api := router.Group("/api")
	api.GET("/search", handler.handleSearch)
	api.GET("/albums/:albumId/tracks", handler.handleAlbumTracks)
	api.GET("/artwork", handler.handleArtwork)
	api.GET("/users/:username", handler.handlePublicProfile)

	authed := api.Group("")
	authed.Use(handler.requireSession)
	authed.POST("/entries", handler.handleCreateEntry)
	authed.GET("/entries", handler.handleListEntries)
	authed.GET("/calendar", handler.handleCalendar)
	authed.GET("/me", handler.handleMe)
	authed.POST("/me/username", handler.handleSetUsername)

	router.POST("/auth/logout", handler.requireSession, handler.handleLogout)

	return router, nil
}

type httpHandler struct {
	sessions    SessionResolver
	users       *users.Service
	entries     *entries.Service
	catalog     CatalogClient
	artwork     *artwork.Cache
	spotifyAuth SpotifyLogin
	logger      *zap.Logger
}

// requireSession resolves the cookie-backed session and stashes the user in
// the request context. Requests without a valid session stop here with 401.
func (h *httpHandler) requireSession(c *gin.Context) {
	user, session, err := h.sessions.Resolve(c.Request.Context(), c.Request)
	if err != nil {
		if !errors.Is(err, auth.ErrNoSession) {
			h.logger.Error("session resolution failed", zap.Error(err))
		}
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}
	c.Set(userContextKey, user)
	c.Set(sessionContextKey, session)
	c.Next()
}

func (h *httpHandler) currentUser(c *gin.Context) (users.User, bool) {
	value, exists := c.Get(userContextKey)
	if !exists {
		return users.User{}, false
	}
	user, ok := value.(users.User)
	return user, ok
}

func (h *httpHandler) currentSession(c *gin.Context) (auth.Session, bool) {
	value, exists := c.Get(sessionContextKey)
	if !exists {
		return auth.Session{}, false
	}
	session, ok := value.(auth.Session)
	return session, ok
}
