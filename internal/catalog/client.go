package catalog

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

const (
	defaultTokenURL    = "https://accounts.spotify.com/api/token"
	defaultBaseURL     = "https://api.spotify.com/v1"
	defaultSearchLimit = 6
	// Tokens are treated as expired one minute before the provider's stated
	// expiry so in-flight requests never carry a stale bearer.
	tokenExpiryMargin = 60 * time.Second
)

var (
	// ErrTokenExchange indicates the client-credentials exchange failed.
	ErrTokenExchange = errors.New("catalog: token exchange failed")
	// ErrSearch indicates the catalog search request failed.
	ErrSearch = errors.New("catalog: album search failed")
	// ErrAlbumLookup indicates the album detail request failed.
	ErrAlbumLookup = errors.New("catalog: album lookup failed")
	// ErrInvalidClientConfig indicates missing catalog credentials.
	ErrInvalidClientConfig = errors.New("catalog: client id and secret required")
)

// ClientConfig bundles configuration for the catalog client.
type ClientConfig struct {
	ClientID     string
	ClientSecret string
	TokenURL     string
	BaseURL      string
	SearchLimit  int
	HTTPClient   *http.Client
	Limiter      *rate.Limiter
	Logger       *zap.Logger
	Clock        func() time.Time
}

// Client talks to the external music catalog using the client-credentials
// flow. The bearer token is cached process-wide; a refresh race costs a
// duplicate upstream exchange, nothing more.
type Client struct {
	clientID     string
	clientSecret string
	tokenURL     string
	baseURL      string
	searchLimit  int
	httpClient   *http.Client
	limiter      *rate.Limiter
	logger       *zap.Logger
	clock        func() time.Time

	mu          sync.Mutex
	accessToken string
	tokenExpiry time.Time
}

// NewClient constructs a catalog client with validated configuration.
func NewClient(cfg ClientConfig) (*Client, error) {
	if strings.TrimSpace(cfg.ClientID) == "" || strings.TrimSpace(cfg.ClientSecret) == "" {
		return nil, ErrInvalidClientConfig
	}

	tokenURL := cfg.TokenURL
	if tokenURL == "" {
		tokenURL = defaultTokenURL
	}
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	searchLimit := cfg.SearchLimit
	if searchLimit <= 0 {
		searchLimit = defaultSearchLimit
	}
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	clock := cfg.Clock
	if clock == nil {
		clock = time.Now
	}

	return &Client{
		clientID:     cfg.ClientID,
		clientSecret: cfg.ClientSecret,
		tokenURL:     tokenURL,
		baseURL:      baseURL,
		searchLimit:  searchLimit,
		httpClient:   httpClient,
		limiter:      cfg.Limiter,
		logger:       logger,
		clock:        clock,
	}, nil
}

// SearchAlbums runs a text search against the catalog. A blank query
// short-circuits to an empty result without touching the network. A
// non-positive limit falls back to the configured default.
func (c *Client) SearchAlbums(ctx context.Context, query string, limit int) ([]Album, error) {
	if strings.TrimSpace(query) == "" {
		return []Album{}, nil
	}
	if limit <= 0 {
		limit = c.searchLimit
	}

	token, err := c.token(ctx)
	if err != nil {
		return nil, err
	}

	requestURL := fmt.Sprintf("%s/search?q=%s&type=album&limit=%d&market=US",
		c.baseURL, url.QueryEscape(query), limit)

	var parsed searchResponse
	if err := c.doJSON(ctx, requestURL, token, ErrSearch, &parsed); err != nil {
		return nil, err
	}
	return parsed.Albums.Items, nil
}

// GetAlbumDetails fetches a single album record including its track listing.
func (c *Client) GetAlbumDetails(ctx context.Context, albumID string) (Album, error) {
	token, err := c.token(ctx)
	if err != nil {
		return Album{}, err
	}

	requestURL := fmt.Sprintf("%s/albums/%s?market=US", c.baseURL, url.PathEscape(albumID))

	var album Album
	if err := c.doJSON(ctx, requestURL, token, ErrAlbumLookup, &album); err != nil {
		return Album{}, err
	}
	return album, nil
}

// token returns the cached bearer token, refreshing it via the
// client-credentials exchange when it is within the expiry margin.
func (c *Client) token(ctx context.Context) (string, error) {
	c.mu.Lock()
	if c.accessToken != "" && c.clock().Before(c.tokenExpiry) {
		token := c.accessToken
		c.mu.Unlock()
		return token, nil
	}
	c.mu.Unlock()

	if err := c.wait(ctx); err != nil {
		return "", err
	}

	request, err := http.NewRequestWithContext(ctx, http.MethodPost, c.tokenURL,
		strings.NewReader("grant_type=client_credentials"))
	if err != nil {
		return "", err
	}
	basic := base64.StdEncoding.EncodeToString([]byte(c.clientID + ":" + c.clientSecret))
	request.Header.Set("Authorization", "Basic "+basic)
	request.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	response, err := c.httpClient.Do(request)
	if err != nil {
		return "", err
	}
	defer response.Body.Close()

	if response.StatusCode < 200 || response.StatusCode >= 300 {
		c.logger.Warn("catalog token exchange rejected", zap.Int("status", response.StatusCode))
		return "", fmt.Errorf("%w: status %d", ErrTokenExchange, response.StatusCode)
	}

	var parsed tokenResponse
	if err := json.NewDecoder(response.Body).Decode(&parsed); err != nil {
		return "", fmt.Errorf("%w: %v", ErrTokenExchange, err)
	}

	expiry := c.clock().Add(time.Duration(parsed.ExpiresIn)*time.Second - tokenExpiryMargin)

	c.mu.Lock()
	c.accessToken = parsed.AccessToken
	c.tokenExpiry = expiry
	c.mu.Unlock()

	return parsed.AccessToken, nil
}

func (c *Client) doJSON(ctx context.Context, requestURL, token string, failure error, result interface{}) error {
	if err := c.wait(ctx); err != nil {
		return err
	}

	request, err := http.NewRequestWithContext(ctx, http.MethodGet, requestURL, nil)
	if err != nil {
		return err
	}
	request.Header.Set("Authorization", "Bearer "+token)

	response, err := c.httpClient.Do(request)
	if err != nil {
		return err
	}
	defer response.Body.Close()

	if response.StatusCode < 200 || response.StatusCode >= 300 {
		c.logger.Warn("catalog request rejected",
			zap.String("url", requestURL),
			zap.Int("status", response.StatusCode))
		return fmt.Errorf("%w: status %d", failure, response.StatusCode)
	}

	if err := json.NewDecoder(response.Body).Decode(result); err != nil {
		return fmt.Errorf("%w: %v", failure, err)
	}
	return nil
}

func (c *Client) wait(ctx context.Context) error {
	if c.limiter == nil {
		return nil
	}
	return c.limiter.Wait(ctx)
}
