package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/openmind-crm/backend/internal/auth"
	"github.com/openmind-crm/backend/internal/config"
	"github.com/openmind-crm/backend/internal/database"
	"github.com/openmind-crm/backend/internal/logging"
	"github.com/openmind-crm/backend/internal/oauth"
	"github.com/openmind-crm/backend/internal/providers"
	"github.com/openmind-crm/backend/internal/server"
	"github.com/openmind-crm/backend/internal/session"
	"github.com/openmind-crm/backend/internal/users"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	"google.golang.org/api/calendar/v3"
	"google.golang.org/api/gmail/v1"
)

const shutdownTimeout = 10 * time.Second

var (
	cfgFile string
)

// googleScopes are the delegated scopes requested on the Google consent screen.
var googleScopes = []string{
	gmail.GmailReadonlyScope,
	calendar.CalendarEventsReadonlyScope,
}

func main() {
	rootCmd := &cobra.Command{
		Use:   "crm-api",
		Short: "OpenMind CRM backend service",
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
	flags := cmd.PersistentFlags()
	flags.StringVar(&cfgFile, "config", "", "Path to configuration file")
	flags.String("http-address", defaults.GetString("http.address"), "HTTP listen address")
	flags.StringSlice("allowed-origins", defaults.GetStringSlice("http.allowed_origins"), "CORS allowed origins")
	flags.String("database-driver", defaults.GetString("database.driver"), "Database driver (sqlite, mysql)")
	flags.String("database-dsn", defaults.GetString("database.dsn"), "Database DSN or SQLite path")
	flags.String("log-level", defaults.GetString("log.level"), "Log level (debug, info, warn, error)")
	flags.String("log-format", defaults.GetString("log.format"), "Log format (json, console)")
	flags.String("signing-secret", "", "Session signing secret (overrides env)")
	flags.Int("token-ttl-hours", defaults.GetInt("auth.token_ttl_hours"), "Session token TTL in hours")
	flags.String("google-client-id", defaults.GetString("google.client_id"), "Google OAuth client ID")
	flags.String("google-client-secret", "", "Google OAuth client secret (overrides env)")
	flags.String("google-redirect-uri", defaults.GetString("google.redirect_uri"), "Google OAuth redirect URI")
	flags.String("google-jwks-url", defaults.GetString("google.jwks_url"), "Google JWKS URL")
	flags.Bool("gateway-strict", defaults.GetBool("gateway.strict"), "Report upstream listing failures instead of empty results")

	bindFlag(cmd, "http.address", "http-address")
	bindFlag(cmd, "http.allowed_origins", "allowed-origins")
	bindFlag(cmd, "database.driver", "database-driver")
	bindFlag(cmd, "database.dsn", "database-dsn")
	bindFlag(cmd, "log.level", "log-level")
	bindFlag(cmd, "log.format", "log-format")
	bindFlag(cmd, "auth.signing_secret", "signing-secret")
	bindFlag(cmd, "auth.token_ttl_hours", "token-ttl-hours")
	bindFlag(cmd, "google.client_id", "google-client-id")
	bindFlag(cmd, "google.client_secret", "google-client-secret")
	bindFlag(cmd, "google.redirect_uri", "google-redirect-uri")
	bindFlag(cmd, "google.jwks_url", "google-jwks-url")
	bindFlag(cmd, "gateway.strict", "gateway-strict")
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

	logger, err := logging.NewLogger(appConfig.LogLevel, appConfig.LogFormat)
	if err != nil {
		return err
	}
	defer logger.Sync() //nolint:errcheck

	db, err := database.Open(database.Config{Driver: appConfig.DatabaseDriver, DSN: appConfig.DatabaseDSN}, logger)
	if err != nil {
		return err
	}
	sqlDB, err := db.DB()
	if err != nil {
		return err
	}
	defer sqlDB.Close()

	store, err := users.NewStore(users.StoreConfig{Database: db, Clock: time.Now, Logger: logger})
	if err != nil {
		return err
	}

	signingSecret := []byte(appConfig.SigningSecret)
	tokenIssuer, err := auth.NewTokenIssuer(auth.TokenIssuerConfig{
		SigningSecret: signingSecret,
		Issuer:        appConfig.TokenIssuer,
		Audience:      appConfig.TokenAudience,
		TokenTTL:      appConfig.TokenTTL,
	})
	if err != nil {
		return err
	}
	sessionValidator, err := auth.NewSessionValidator(auth.SessionValidatorConfig{
		SigningSecret: signingSecret,
		Issuer:        appConfig.TokenIssuer,
		Audience:      appConfig.TokenAudience,
	})
	if err != nil {
		return err
	}
	googleVerifier, err := auth.NewGoogleVerifier(auth.GoogleVerifierConfig{
		Audience:       appConfig.GoogleClientID,
		JWKSURL:        appConfig.GoogleJWKSURL,
		AllowedIssuers: []string{"https://accounts.google.com", "accounts.google.com"},
		Logger:         logger,
	})
	if err != nil {
		return err
	}

	sessionService, err := session.NewService(session.ServiceConfig{
		Store:     store,
		Hasher:    auth.NewBcryptHasher(appConfig.BcryptCost),
		Issuer:    tokenIssuer,
		Validator: sessionValidator,
		Google:    googleVerifier,
		Logger:    logger,
	})
	if err != nil {
		return err
	}

	registry, err := buildProviders(appConfig, store, signingSecret, logger)
	if err != nil {
		return err
	}

	handler, err := server.NewHTTPHandler(server.Dependencies{
		Sessions:       sessionService,
		Providers:      registry,
		AllowedOrigins: appConfig.AllowedOrigins,
		Logger:         logger,
	})
	if err != nil {
		return err
	}

	httpServer := &http.Server{
		Addr:              appConfig.HTTPAddress,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
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
		logger.Info("server shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return httpServer.Shutdown(shutdownCtx)
	case err := <-errCh:
		return err
	}
}

func buildProviders(appConfig config.AppConfig, store *users.Store, signingSecret []byte, logger *zap.Logger) (*providers.Registry, error) {
	stateCodec, err := oauth.NewStateCodec(oauth.StateCodecConfig{
		SigningSecret: signingSecret,
		TTL:           appConfig.StateTTL,
	})
	if err != nil {
		return nil, err
	}

	httpClient := &http.Client{Timeout: appConfig.GatewayRequestTimeout}
	googleManager, err := oauth.NewManager(oauth.ManagerConfig{
		Provider: users.ProviderGoogle,
		OAuth2: &oauth2.Config{
			ClientID:     appConfig.GoogleClientID,
			ClientSecret: appConfig.GoogleClientSecret,
			RedirectURL:  appConfig.GoogleRedirectURI,
			Endpoint:     google.Endpoint,
			Scopes:       googleScopes,
		},
		Store:           store,
		State:           stateCodec,
		SuccessRedirect: appConfig.GoogleSuccessRedirect,
		ErrorRedirect:   appConfig.GoogleErrorRedirect,
		HTTPClient:      httpClient,
		Logger:          logger.With(zap.String("provider", users.ProviderGoogle)),
	})
	if err != nil {
		return nil, err
	}

	googleProvider, err := providers.NewGoogleProvider(providers.GoogleConfig{
		Manager:          googleManager,
		Strict:           appConfig.GatewayStrict,
		FetchConcurrency: appConfig.GatewayFetchConcurrency,
		RequestTimeout:   appConfig.GatewayRequestTimeout,
		Logger:           logger,
	})
	if err != nil {
		return nil, err
	}

	microsoftProvider, err := providers.NewMicrosoftProvider(providers.MicrosoftConfig{
		ErrorRedirect: appConfig.MicrosoftErrorRedirect,
		Logger:        logger,
	})
	if err != nil {
		return nil, err
	}

	registry := providers.NewRegistry(googleProvider, microsoftProvider)
	logger.Info("providers registered", zap.Strings("providers", registry.Keys()))
	return registry, nil
}
