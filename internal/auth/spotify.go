package auth

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/melodiary/backend/internal/users"
	"golang.org/x/oauth2"
	"gorm.io/gorm"
)

const (
	spotifyAuthURL    = "https://accounts.spotify.com/authorize"
	spotifyTokenURL   = "https://accounts.spotify.com/api/token"
	spotifyProfileURL = "https://api.spotify.com/v1/me"
	providerSpotify   = "spotify"
)

var (
	// ErrLoginFailed indicates the provider rejected the code exchange or the
	// profile fetch.
	ErrLoginFailed = errors.New("auth: spotify login failed")

	errMissingOAuthCredentials = errors.New("auth: spotify client id and secret required")
	errMissingUserService      = errors.New("auth: user service required")
	errMissingOAuthDatabase    = errors.New("auth: database connection required")
)

// SpotifyAuthenticatorConfig configures the social login flow.
type SpotifyAuthenticatorConfig struct {
	ClientID     string
	ClientSecret string
	RedirectURL  string
	States       *StateSigner
	Users        *users.Service
	Database     *gorm.DB
	ProfileURL   string
	AuthURL      string
	TokenURL     string
	HTTPClient   *http.Client
	Clock        func() time.Time
}

// SpotifyAuthenticator drives the authorization-code login against Spotify
// and materializes user and account rows on callback.
type SpotifyAuthenticator struct {
	oauth      oauth2.Config
	states     *StateSigner
	users      *users.Service
	db         *gorm.DB
	profileURL string
	httpClient *http.Client
	clock      func() time.Time
}

type spotifyProfile struct {
	ID          string `json:"id"`
	DisplayName string `json:"display_name"`
	Email       string `json:"email"`
	Images      []struct {
		URL string `json:"url"`
	} `json:"images"`
}

// NewSpotifyAuthenticator constructs the authenticator with validated
// configuration.
func NewSpotifyAuthenticator(cfg SpotifyAuthenticatorConfig) (*SpotifyAuthenticator, error) {
	if strings.TrimSpace(cfg.ClientID) == "" || strings.TrimSpace(cfg.ClientSecret) == "" {
		return nil, errMissingOAuthCredentials
	}
	if cfg.States == nil {
		return nil, errMissingStateSecret
	}
	if cfg.Users == nil {
		return nil, errMissingUserService
	}
	if cfg.Database == nil {
		return nil, errMissingOAuthDatabase
	}

	authURL := cfg.AuthURL
	if authURL == "" {
		authURL = spotifyAuthURL
	}
	tokenURL := cfg.TokenURL
	if tokenURL == "" {
		tokenURL = spotifyTokenURL
	}
	profileURL := cfg.ProfileURL
	if profileURL == "" {
		profileURL = spotifyProfileURL
	}
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	clock := cfg.Clock
	if clock == nil {
		clock = time.Now
	}

	return &SpotifyAuthenticator{
		oauth: oauth2.Config{
			ClientID:     cfg.ClientID,
			ClientSecret: cfg.ClientSecret,
			RedirectURL:  cfg.RedirectURL,
			Scopes:       []string{"user-read-private", "user-read-email"},
			Endpoint: oauth2.Endpoint{
				AuthURL:  authURL,
				TokenURL: tokenURL,
			},
		},
		states:     cfg.States,
		users:      cfg.Users,
		db:         cfg.Database,
		profileURL: profileURL,
		httpClient: httpClient,
		clock:      clock,
	}, nil
}

// LoginURL returns the provider redirect target with a signed state token.
func (a *SpotifyAuthenticator) LoginURL() (string, error) {
	state, err := a.states.Sign()
	if err != nil {
		return "", err
	}
	return a.oauth.AuthCodeURL(state), nil
}

// Callback verifies the state, exchanges the authorization code, fetches
// the provider profile, and returns the resolved (possibly new) user.
func (a *SpotifyAuthenticator) Callback(ctx context.Context, state, code string) (users.User, error) {
	if err := a.states.Verify(state); err != nil {
		return users.User{}, err
	}

	ctx = context.WithValue(ctx, oauth2.HTTPClient, a.httpClient)
	token, err := a.oauth.Exchange(ctx, code)
	if err != nil {
		return users.User{}, fmt.Errorf("%w: code exchange: %v", ErrLoginFailed, err)
	}

	profile, err := a.fetchProfile(ctx, token.AccessToken)
	if err != nil {
		return users.User{}, err
	}

	user, err := a.users.EnsureUser(ctx, users.Profile{
		Email:         profile.Email,
		DisplayName:   profile.DisplayName,
		AvatarURL:     profileImage(profile),
		EmailVerified: true,
	})
	if err != nil {
		return users.User{}, err
	}

	if err := a.upsertAccount(ctx, user.ID, profile.ID, token); err != nil {
		return users.User{}, err
	}
	return user, nil
}

func (a *SpotifyAuthenticator) fetchProfile(ctx context.Context, accessToken string) (spotifyProfile, error) {
	request, err := http.NewRequestWithContext(ctx, http.MethodGet, a.profileURL, nil)
	if err != nil {
		return spotifyProfile{}, err
	}
	request.Header.Set("Authorization", "Bearer "+accessToken)

	response, err := a.httpClient.Do(request)
	if err != nil {
		return spotifyProfile{}, fmt.Errorf("%w: profile fetch: %v", ErrLoginFailed, err)
	}
	defer response.Body.Close()

	if response.StatusCode < 200 || response.StatusCode >= 300 {
		return spotifyProfile{}, fmt.Errorf("%w: profile fetch status %d", ErrLoginFailed, response.StatusCode)
	}

	var profile spotifyProfile
	if err := json.NewDecoder(response.Body).Decode(&profile); err != nil {
		return spotifyProfile{}, fmt.Errorf("%w: profile decode: %v", ErrLoginFailed, err)
	}
	if strings.TrimSpace(profile.Email) == "" {
		return spotifyProfile{}, fmt.Errorf("%w: profile missing email", ErrLoginFailed)
	}
	return profile, nil
}

func (a *SpotifyAuthenticator) upsertAccount(ctx context.Context, userID, providerAccountID string, token *oauth2.Token) error {
	var expiresAt *time.Time
	if !token.Expiry.IsZero() {
		expiry := token.Expiry
		expiresAt = &expiry
	}

	var account Account
	err := a.db.WithContext(ctx).
		Where("provider_id = ? AND account_id = ?", providerSpotify, providerAccountID).
		Take(&account).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		id, idErr := uuid.NewV7()
		if idErr != nil {
			return idErr
		}
		account = Account{
			ID:                   id.String(),
			AccountID:            providerAccountID,
			ProviderID:           providerSpotify,
			UserID:               userID,
			AccessToken:          token.AccessToken,
			RefreshToken:         token.RefreshToken,
			AccessTokenExpiresAt: expiresAt,
			Scope:                strings.Join(a.oauth.Scopes, " "),
		}
		return a.db.WithContext(ctx).Create(&account).Error
	}
	if err != nil {
		return err
	}

	updates := map[string]interface{}{
		"access_token": token.AccessToken,
		"updated_at":   a.clock(),
	}
	if token.RefreshToken != "" {
		updates["refresh_token"] = token.RefreshToken
	}
	if expiresAt != nil {
		updates["access_token_expires_at"] = *expiresAt
	}
	return a.db.WithContext(ctx).Model(&Account{}).
		Where("id = ?", account.ID).
		Updates(updates).Error
}

func profileImage(profile spotifyProfile) string {
	if len(profile.Images) == 0 {
		return ""
	}
	return profile.Images[0].URL
}
