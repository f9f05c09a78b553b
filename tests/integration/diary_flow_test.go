package integration_test

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"path/filepath"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/melodiary/backend/internal/artwork"
	"github.com/melodiary/backend/internal/auth"
	"github.com/melodiary/backend/internal/catalog"
	"github.com/melodiary/backend/internal/database"
	"github.com/melodiary/backend/internal/entries"
	"github.com/melodiary/backend/internal/server"
	"github.com/melodiary/backend/internal/users"
	"go.uber.org/zap"
)

const (
	stateSigningSecret = "integration-secret"
	sessionCookieName  = "melodiary_session"
	jsonContentType    = "application/json"
)

// spotifyStub stands in for both the accounts and API hosts: token
// exchange, profile fetch, and album search.
func spotifyStub(t *testing.T) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/api/token", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", jsonContentType)
		fmt.Fprint(w, `{"access_token": "stub-access", "refresh_token": "stub-refresh", "token_type": "Bearer", "expires_in": 3600}`)
	})
	mux.HandleFunc("/v1/me", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", jsonContentType)
		fmt.Fprint(w, `{"id": "spotify-ada", "display_name": "Ada", "email": "ada@example.com", "images": []}`)
	})
	mux.HandleFunc("/v1/search", func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer stub-access" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		w.Header().Set("Content-Type", jsonContentType)
		fmt.Fprint(w, `{"albums": {"items": [{"id": "5vkqYmiPBYLaalcmjujWxK", "name": "In Rainbows", "artists": [{"name": "Radiohead"}], "images": [{"url": "https://img.example/ir.jpg", "height": 300, "width": 300}]}]}}`)
	})
	stub := httptest.NewServer(mux)
	t.Cleanup(stub.Close)
	return stub
}

func TestDiaryFlow(t *testing.T) {
	gin.SetMode(gin.TestMode)

	stub := spotifyStub(t)

	db, err := database.OpenSQLite(filepath.Join(t.TempDir(), "melodiary.db"), zap.NewNop())
	if err != nil {
		t.Fatalf("open database: %v", err)
	}

	userService, err := users.NewService(users.ServiceConfig{Database: db})
	if err != nil {
		t.Fatalf("user service: %v", err)
	}
	entryService, err := entries.NewService(entries.ServiceConfig{
		Database:   db,
		IDProvider: entries.NewUUIDProvider(),
		Logger:     zap.NewNop(),
	})
	if err != nil {
		t.Fatalf("entry service: %v", err)
	}
	sessionService, err := auth.NewSessionService(auth.SessionServiceConfig{
		Database:   db,
		CookieName: sessionCookieName,
	})
	if err != nil {
		t.Fatalf("session service: %v", err)
	}
	states, err := auth.NewStateSigner(auth.StateSignerConfig{SigningSecret: []byte(stateSigningSecret)})
	if err != nil {
		t.Fatalf("state signer: %v", err)
	}
	spotifyAuth, err := auth.NewSpotifyAuthenticator(auth.SpotifyAuthenticatorConfig{
		ClientID:     "client-id",
		ClientSecret: "client-secret",
		RedirectURL:  "http://localhost:8080/auth/spotify/callback",
		States:       states,
		Users:        userService,
		Database:     db,
		AuthURL:      stub.URL + "/authorize",
		TokenURL:     stub.URL + "/api/token",
		ProfileURL:   stub.URL + "/v1/me",
	})
	if err != nil {
		t.Fatalf("spotify authenticator: %v", err)
	}
	catalogClient, err := catalog.NewClient(catalog.ClientConfig{
		ClientID:     "client-id",
		ClientSecret: "client-secret",
		TokenURL:     stub.URL + "/api/token",
		BaseURL:      stub.URL + "/v1",
	})
	if err != nil {
		t.Fatalf("catalog client: %v", err)
	}

	handler, err := server.NewHTTPHandler(server.Dependencies{
		Sessions:    sessionService,
		Users:       userService,
		Entries:     entryService,
		Catalog:     catalogClient,
		Artwork:     artwork.NewCache(artwork.CacheConfig{}),
		SpotifyAuth: spotifyAuth,
		Logger:      zap.NewNop(),
	})
	if err != nil {
		t.Fatalf("http handler: %v", err)
	}

	// Login redirect carries a signed state parameter.
	recorder := httptest.NewRecorder()
	handler.ServeHTTP(recorder, httptest.NewRequest(http.MethodGet, "/auth/spotify/login", nil))
	if recorder.Code != http.StatusFound {
		t.Fatalf("login: expected 302, got %d", recorder.Code)
	}
	redirect, err := url.Parse(recorder.Header().Get("Location"))
	if err != nil {
		t.Fatalf("parse redirect: %v", err)
	}
	state := redirect.Query().Get("state")
	if state == "" {
		t.Fatalf("expected state in redirect %q", redirect)
	}

	// Callback mints a session and routes the fresh user to signup.
	recorder = httptest.NewRecorder()
	handler.ServeHTTP(recorder, httptest.NewRequest(
		http.MethodGet, "/auth/spotify/callback?state="+url.QueryEscape(state)+"&code=auth-code", nil))
	if recorder.Code != http.StatusFound {
		t.Fatalf("callback: expected 302, got %d (%s)", recorder.Code, recorder.Body.String())
	}
	if got := recorder.Header().Get("Location"); got != "/signup" {
		t.Fatalf("expected signup redirect, got %q", got)
	}
	cookies := recorder.Result().Cookies()
	if len(cookies) == 0 {
		t.Fatalf("expected session cookie")
	}
	sessionCookie := cookies[0]

	authedRequest := func(method, target, body string) *http.Request {
		request := httptest.NewRequest(method, target, strings.NewReader(body))
		if body != "" {
			request.Header.Set("Content-Type", jsonContentType)
		}
		request.AddCookie(sessionCookie)
		return request
	}

	// Signup completion.
	recorder = httptest.NewRecorder()
	handler.ServeHTTP(recorder, authedRequest(http.MethodPost, "/api/me/username", `{"username": "adalistens"}`))
	if recorder.Code != http.StatusOK {
		t.Fatalf("set username: expected 200, got %d (%s)", recorder.Code, recorder.Body.String())
	}

	// Album search rides the real catalog client through the stub.
	recorder = httptest.NewRecorder()
	handler.ServeHTTP(recorder, httptest.NewRequest(http.MethodGet, "/api/search?q=in+rainbows", nil))
	if recorder.Code != http.StatusOK {
		t.Fatalf("search: expected 200, got %d (%s)", recorder.Code, recorder.Body.String())
	}
	var searchBody struct {
		Albums []catalog.Album `json:"albums"`
	}
	if err := json.Unmarshal(recorder.Body.Bytes(), &searchBody); err != nil {
		t.Fatalf("decode search: %v", err)
	}
	if len(searchBody.Albums) != 1 || searchBody.Albums[0].Name != "In Rainbows" {
		t.Fatalf("unexpected search results %+v", searchBody.Albums)
	}

	// Diary entry for the found album.
	entryBody := `{
		"album": {"name": "In Rainbows", "artist": "Radiohead", "spotifyId": "5vkqYmiPBYLaalcmjujWxK"},
		"tracks": [{"id": "track-1", "name": "15 Step", "trackNumber": 1, "durationMs": 237000, "artists": ["Radiohead"]}],
		"rating": 95,
		"listenDate": "2026-03-14"
	}`
	recorder = httptest.NewRecorder()
	handler.ServeHTTP(recorder, authedRequest(http.MethodPost, "/api/entries", entryBody))
	if recorder.Code != http.StatusOK {
		t.Fatalf("create entry: expected 200, got %d (%s)", recorder.Code, recorder.Body.String())
	}

	// Calendar month view surfaces the entry in the day index.
	recorder = httptest.NewRecorder()
	handler.ServeHTTP(recorder, authedRequest(http.MethodGet, "/api/calendar?month=2&year=2026", ""))
	if recorder.Code != http.StatusOK {
		t.Fatalf("calendar: expected 200, got %d (%s)", recorder.Code, recorder.Body.String())
	}
	var calendarBody struct {
		Data struct {
			AlbumMap map[string]json.RawMessage `json:"albumMap"`
		} `json:"data"`
	}
	if err := json.Unmarshal(recorder.Body.Bytes(), &calendarBody); err != nil {
		t.Fatalf("decode calendar: %v", err)
	}
	if _, ok := calendarBody.Data.AlbumMap["2026-03-14"]; !ok {
		t.Fatalf("expected album map entry for listen day, got %v", calendarBody.Data.AlbumMap)
	}

	// Public profile is visible without a session.
	recorder = httptest.NewRecorder()
	handler.ServeHTTP(recorder, httptest.NewRequest(http.MethodGet, "/api/users/adalistens", nil))
	if recorder.Code != http.StatusOK {
		t.Fatalf("profile: expected 200, got %d", recorder.Code)
	}

	// Logout invalidates the session.
	recorder = httptest.NewRecorder()
	handler.ServeHTTP(recorder, authedRequest(http.MethodPost, "/auth/logout", ""))
	if recorder.Code != http.StatusOK {
		t.Fatalf("logout: expected 200, got %d", recorder.Code)
	}
	recorder = httptest.NewRecorder()
	handler.ServeHTTP(recorder, authedRequest(http.MethodGet, "/api/me", ""))
	if recorder.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 after logout, got %d", recorder.Code)
	}
}
