package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

const (
	envPrefix            = "MELODIARY"
	defaultHTTPAddress   = "0.0.0.0:8080"
	defaultDatabasePath  = "melodiary.db"
	defaultLogLevel      = "info"
	defaultCookieName    = "melodiary_session"
	defaultSessionTTL    = 30 * 24 * time.Hour
	defaultSearchLimit   = 6
	defaultArtworkItems  = 100
	defaultArtworkMaxAge = 24 * time.Hour
)

// AppConfig captures runtime configuration for the API server.
type AppConfig struct {
	HTTPAddress         string
	DatabasePath        string
	LogLevel            string
	SessionCookieName   string
	SessionTTL          time.Duration
	StateSigningSecret  string
	SpotifyClientID     string
	SpotifyClientSecret string
	SpotifyRedirectURL  string
	SearchLimit         int
	ArtworkMaxItems     int
	ArtworkMaxAge       time.Duration
}

// NewViper returns a viper instance with defaults and env bindings configured.
func NewViper() *viper.Viper {
	configViper := viper.New()
	ApplyDefaults(configViper)
	return configViper
}

// ApplyDefaults configures defaults and env bindings on the provided viper instance.
func ApplyDefaults(configViper *viper.Viper) {
	configViper.SetEnvPrefix(envPrefix)
	configViper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	configViper.AutomaticEnv()

	configViper.SetDefault("http.address", defaultHTTPAddress)
	configViper.SetDefault("database.path", defaultDatabasePath)
	configViper.SetDefault("log.level", defaultLogLevel)
	configViper.SetDefault("session.cookie_name", defaultCookieName)
	configViper.SetDefault("session.ttl_hours", int(defaultSessionTTL/time.Hour))
	configViper.SetDefault("catalog.search_limit", defaultSearchLimit)
	configViper.SetDefault("artwork.max_items", defaultArtworkItems)
	configViper.SetDefault("artwork.max_age_hours", int(defaultArtworkMaxAge/time.Hour))
}

// Load parses runtime configuration from viper.
func Load(configViper *viper.Viper) (AppConfig, error) {
	cfg := AppConfig{
		HTTPAddress:         configViper.GetString("http.address"),
		DatabasePath:        configViper.GetString("database.path"),
		LogLevel:            configViper.GetString("log.level"),
		SessionCookieName:   configViper.GetString("session.cookie_name"),
		SessionTTL:          time.Duration(configViper.GetInt("session.ttl_hours")) * time.Hour,
		StateSigningSecret:  configViper.GetString("auth.signing_secret"),
		SpotifyClientID:     configViper.GetString("spotify.client_id"),
		SpotifyClientSecret: configViper.GetString("spotify.client_secret"),
		SpotifyRedirectURL:  configViper.GetString("spotify.redirect_url"),
		SearchLimit:         configViper.GetInt("catalog.search_limit"),
		ArtworkMaxItems:     configViper.GetInt("artwork.max_items"),
		ArtworkMaxAge:       time.Duration(configViper.GetInt("artwork.max_age_hours")) * time.Hour,
	}

	if err := cfg.validate(); err != nil {
		return AppConfig{}, err
	}

	return cfg, nil
}

func (c AppConfig) validate() error {
	if strings.TrimSpace(c.DatabasePath) == "" {
		return fmt.Errorf("database.path is required")
	}
	if strings.TrimSpace(c.SessionCookieName) == "" {
		return fmt.Errorf("session.cookie_name is required")
	}
	if strings.TrimSpace(c.StateSigningSecret) == "" {
		return fmt.Errorf("auth.signing_secret is required")
	}
	if strings.TrimSpace(c.SpotifyClientID) == "" {
		return fmt.Errorf("spotify.client_id is required")
	}
	if strings.TrimSpace(c.SpotifyClientSecret) == "" {
		return fmt.Errorf("spotify.client_secret is required")
	}
	if c.SessionTTL <= 0 {
		return fmt.Errorf("session.ttl_hours must be positive")
	}
	return nil
}
