package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/melodiary/backend/internal/artwork"
	"github.com/melodiary/backend/internal/auth"
	"github.com/melodiary/backend/internal/catalog"
	"github.com/melodiary/backend/internal/config"
	"github.com/melodiary/backend/internal/database"
	"github.com/melodiary/backend/internal/entries"
	"github.com/melodiary/backend/internal/logging"
	"github.com/melodiary/backend/internal/server"
	"github.com/melodiary/backend/internal/users"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

var (
	cfgFile string
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "melodiary-api",
		Short: "Melodiary listening diary backend service",
		PreRunE: func(cmd *cobra.Command, args []string) error {
			return initConfig()
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServer(cmd.Context())
		},
	}

	setupFlags(rootCmd)

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func setupFlags(cmd *cobra.Command) {
	config.ApplyDefaults(viper.GetViper())
	defaults := config.NewViper()
	cmd.PersistentFlags().StringVar(&cfgFile, "config", "", "Path to configuration file")
	cmd.PersistentFlags().String("http-address", defaults.GetString("http.address"), "HTTP listen address")
	cmd.PersistentFlags().String("database-path", defaults.GetString("database.path"), "SQLite database path")
	cmd.PersistentFlags().String("log-level", defaults.GetString("log.level"), "Log level (debug, info, warn, error)")
	cmd.PersistentFlags().String("spotify-client-id", defaults.GetString("spotify.client_id"), "Spotify application client ID")
	cmd.PersistentFlags().String("spotify-redirect-url", defaults.GetString("spotify.redirect_url"), "Spotify OAuth redirect URL")
	cmd.PersistentFlags().Int("session-ttl-hours", defaults.GetInt("session.ttl_hours"), "Session lifetime in hours")
	cmd.PersistentFlags().Int("search-limit", defaults.GetInt("catalog.search_limit"), "Default album search result limit")

	bindFlag(cmd, "http.address", "http-address")
	bindFlag(cmd, "database.path", "database-path")
	bindFlag(cmd, "log.level", "log-level")
	bindFlag(cmd, "spotify.client_id", "spotify-client-id")
	bindFlag(cmd, "spotify.redirect_url", "spotify-redirect-url")
	bindFlag(cmd, "session.ttl_hours", "session-ttl-hours")
	bindFlag(cmd, "catalog.search_limit", "search-limit")
}

func bindFlag(cmd *cobra.Command, key, flag string) {
	if err := viper.BindPFlag(key, cmd.PersistentFlags().Lookup(flag)); err != nil {
		panic(err)
	}
}

func initConfig() error {
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	}

	if err := viper.ReadInConfig(); err != nil {
		var configNotFound viper.ConfigFileNotFoundError
		if cfgFile != "" && errors.As(err, &configNotFound) {
			return err
		}
	}

	return nil
}

func runServer(ctx context.Context) error {
	appConfig, err := config.Load(viper.GetViper())
	if err != nil {
		return err
	}

	logger, err := logging.NewLogger(appConfig.LogLevel)
	if err != nil {
		return err
	}
	defer logger.Sync() //nolint:errcheck

	db, err := database.OpenSQLite(appConfig.DatabasePath, logger)
	if err != nil {
		return err
	}
	sqlDB, err := db.DB()
	if err != nil {
		return err
	}
	defer sqlDB.Close()

	userService, err := users.NewService(users.ServiceConfig{
		Database: db,
	})
	if err != nil {
		return err
	}

	sessionService, err := auth.NewSessionService(auth.SessionServiceConfig{
		Database:   db,
		CookieName: appConfig.SessionCookieName,
		TTL:        appConfig.SessionTTL,
	})
	if err != nil {
		return err
	}

	stateSigner, err := auth.NewStateSigner(auth.StateSignerConfig{
		SigningSecret: []byte(appConfig.StateSigningSecret),
	})
	if err != nil {
		return err
	}

	spotifyAuth, err := auth.NewSpotifyAuthenticator(auth.SpotifyAuthenticatorConfig{
		ClientID:     appConfig.SpotifyClientID,
		ClientSecret: appConfig.SpotifyClientSecret,
		RedirectURL:  appConfig.SpotifyRedirectURL,
		States:       stateSigner,
		Users:        userService,
		Database:     db,
	})
	if err != nil {
		return err
	}

	catalogClient, err := catalog.NewClient(catalog.ClientConfig{
		ClientID:     appConfig.SpotifyClientID,
		ClientSecret: appConfig.SpotifyClientSecret,
		SearchLimit:  appConfig.SearchLimit,
		Limiter:      rate.NewLimiter(rate.Limit(10), 20),
		Logger:       logger,
	})
	if err != nil {
		return err
	}

	artworkCache := artwork.NewCache(artwork.CacheConfig{
		MaxItems: appConfig.ArtworkMaxItems,
		MaxAge:   appConfig.ArtworkMaxAge,
		Logger:   logger,
	})

	entriesService, err := entries.NewService(entries.ServiceConfig{
		Database:   db,
		Clock:      time.Now,
		IDProvider: entries.NewUUIDProvider(),
		Logger:     logger,
	})
	if err != nil {
		return err
	}

	handler, err := server.NewHTTPHandler(server.Dependencies{
		Sessions:    sessionService,
		Users:       userService,
		Entries:     entriesService,
		Catalog:     catalogClient,
		Artwork:     artworkCache,
		SpotifyAuth: spotifyAuth,
		Logger:      logger,
	})
	if err != nil {
		return err
	}

	httpServer := &http.Server{
		Addr:    appConfig.HTTPAddress,
		Handler: handler,
	}

	signalCtx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		logger.Info("server starting", zap.String("address", appConfig.HTTPAddress))
		err := httpServer.ListenAndServe()
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case <-signalCtx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return httpServer.Shutdown(shutdownCtx)
	case err := <-errCh:
		return err
	}
}
