package auth

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/melodiary/backend/internal/users"
	"gorm.io/gorm"
)

type spotifyFixture struct {
	authenticator *SpotifyAuthenticator
	db            *gorm.DB
	profileEmail  string
	tokenCalls    int
	profileCalls  int
}

func newSpotifyFixture(t *testing.T) *spotifyFixture {
	t.Helper()

	dsn := fmt.Sprintf("file:melodiary_spotify_test_%d?mode=memory&cache=shared", time.Now().UnixNano())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{TranslateError: true})
	if err != nil {
		t.Fatalf("open database: %v", err)
	}
	if err := db.AutoMigrate(&users.User{}, &Account{}); err != nil {
		t.Fatalf("migrate schema: %v", err)
	}

	userService, err := users.NewService(users.ServiceConfig{Database: db})
	if err != nil {
		t.Fatalf("new user service: %v", err)
	}

	fixture := &spotifyFixture{db: db, profileEmail: "ada@example.com"}

	tokenServer := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fixture.tokenCalls++
		if err := r.ParseForm(); err != nil || r.Form.Get("code") == "" {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{"access_token": "provider-access", "refresh_token": "provider-refresh", "token_type": "Bearer", "expires_in": 3600}`)
	}))
	t.Cleanup(tokenServer.Close)

	profileServer := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fixture.profileCalls++
		if r.Header.Get("Authorization") != "Bearer provider-access" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprintf(w, `{"id": "spotify-ada", "display_name": "Ada", "email": %q, "images": [{"url": "https://img.example/ada.png"}]}`, fixture.profileEmail)
	}))
	t.Cleanup(profileServer.Close)

	states, err := NewStateSigner(StateSignerConfig{SigningSecret: []byte("test-secret")})
	if err != nil {
		t.Fatalf("new state signer: %v", err)
	}

	authenticator, err := NewSpotifyAuthenticator(SpotifyAuthenticatorConfig{
		ClientID:     "client-id",
		ClientSecret: "client-secret",
		RedirectURL:  "http://localhost:8080/auth/spotify/callback",
		States:       states,
		Users:        userService,
		Database:     db,
		TokenURL:     tokenServer.URL,
		ProfileURL:   profileServer.URL,
	})
	if err != nil {
		t.Fatalf("new authenticator: %v", err)
	}
	fixture.authenticator = authenticator
	return fixture
}

func TestLoginURLCarriesVerifiableState(t *testing.T) {
	fixture := newSpotifyFixture(t)

	loginURL, err := fixture.authenticator.LoginURL()
	if err != nil {
		t.Fatalf("login url: %v", err)
	}
	parsed, err := url.Parse(loginURL)
	if err != nil {
		t.Fatalf("parse login url: %v", err)
	}
	state := parsed.Query().Get("state")
	if state == "" {
		t.Fatalf("expected state parameter in %q", loginURL)
	}
	if err := fixture.authenticator.states.Verify(state); err != nil {
		t.Fatalf("state must verify: %v", err)
	}
}

func TestCallbackCreatesUserAndAccount(t *testing.T) {
	fixture := newSpotifyFixture(t)

	state, err := fixture.authenticator.states.Sign()
	if err != nil {
		t.Fatalf("sign state: %v", err)
	}

	user, err := fixture.authenticator.Callback(context.Background(), state, "auth-code")
	if err != nil {
		t.Fatalf("callback: %v", err)
	}
	if user.Email != "ada@example.com" || user.Name != "Ada" {
		t.Fatalf("unexpected user %+v", user)
	}
	if fixture.tokenCalls != 1 || fixture.profileCalls != 1 {
		t.Fatalf("expected one exchange and one profile fetch, got %d/%d", fixture.tokenCalls, fixture.profileCalls)
	}

	var account Account
	if err := fixture.db.Where("provider_id = ? AND account_id = ?", "spotify", "spotify-ada").Take(&account).Error; err != nil {
		t.Fatalf("load account: %v", err)
	}
	if account.UserID != user.ID || account.AccessToken != "provider-access" || account.RefreshToken != "provider-refresh" {
		t.Fatalf("unexpected account row %+v", account)
	}
	if account.AccessTokenExpiresAt == nil {
		t.Fatalf("expected access token expiry recorded")
	}
}

func TestCallbackReusesAccountOnRepeatLogin(t *testing.T) {
	fixture := newSpotifyFixture(t)

	ctx := context.Background()
	for i := 0; i < 2; i++ {
		state, err := fixture.authenticator.states.Sign()
		if err != nil {
			t.Fatalf("sign state: %v", err)
		}
		if _, err := fixture.authenticator.Callback(ctx, state, "auth-code"); err != nil {
			t.Fatalf("callback %d: %v", i, err)
		}
	}

	var accounts, userRows int64
	if err := fixture.db.Model(&Account{}).Count(&accounts).Error; err != nil {
		t.Fatalf("count accounts: %v", err)
	}
	if err := fixture.db.Model(&users.User{}).Count(&userRows).Error; err != nil {
		t.Fatalf("count users: %v", err)
	}
	if accounts != 1 || userRows != 1 {
		t.Fatalf("repeat login must not duplicate rows, got %d accounts / %d users", accounts, userRows)
	}
}

func TestCallbackRejectsForgedState(t *testing.T) {
	fixture := newSpotifyFixture(t)

	if _, err := fixture.authenticator.Callback(context.Background(), "forged", "auth-code"); !errors.Is(err, ErrInvalidState) {
		t.Fatalf("expected ErrInvalidState, got %v", err)
	}
	if fixture.tokenCalls != 0 {
		t.Fatalf("forged state must never reach the provider")
	}
}

func TestCallbackRequiresProfileEmail(t *testing.T) {
	fixture := newSpotifyFixture(t)
	fixture.profileEmail = ""

	state, err := fixture.authenticator.states.Sign()
	if err != nil {
		t.Fatalf("sign state: %v", err)
	}
	if _, err := fixture.authenticator.Callback(context.Background(), state, "auth-code"); !errors.Is(err, ErrLoginFailed) {
		t.Fatalf("expected ErrLoginFailed for missing email, got %v", err)
	}
}
