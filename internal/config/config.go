package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/openmind-crm/backend/internal/database"
	"github.com/spf13/viper"
)

const (
	envPrefix                 = "OPENMIND"
	defaultHTTPAddress        = "0.0.0.0:8001"
	defaultAllowedOrigin      = "http://localhost:4200"
	defaultDatabaseDriver     = database.DriverSQLite
	defaultDatabaseDSN        = "openmind.db"
	defaultLogLevel           = "info"
	defaultLogFormat          = "json"
	defaultTokenIssuer        = "OpenMindCRM"
	defaultTokenAudience      = "OpenMindCRM"
	defaultTokenTTLHours      = 24
	defaultBcryptCost         = 12
	defaultGoogleJWKSURL      = "https://www.googleapis.com/oauth2/v3/certs"
	defaultStateTTLMinutes    = 10
	defaultFetchConcurrency   = 4
	defaultGatewayTimeoutSecs = 30
)

// AppConfig captures runtime configuration for the API server.
type AppConfig struct {
	HTTPAddress    string
	AllowedOrigins []string

	DatabaseDriver string
	DatabaseDSN    string

	LogLevel  string
	LogFormat string

	SigningSecret string
	TokenIssuer   string
	TokenAudience string
	TokenTTL      time.Duration
	BcryptCost    int

	GoogleClientID        string
	GoogleClientSecret    string
	GoogleRedirectURI     string
	GoogleJWKSURL         string
	GoogleSuccessRedirect string
	GoogleErrorRedirect   string

	MicrosoftErrorRedirect string

	StateTTL time.Duration

	GatewayStrict           bool
	GatewayFetchConcurrency int
	GatewayRequestTimeout   time.Duration
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
	configViper.SetDefault("http.allowed_origins", []string{defaultAllowedOrigin})
	configViper.SetDefault("database.driver", defaultDatabaseDriver)
	configViper.SetDefault("database.dsn", defaultDatabaseDSN)
	configViper.SetDefault("log.level", defaultLogLevel)
	configViper.SetDefault("log.format", defaultLogFormat)
	configViper.SetDefault("auth.issuer", defaultTokenIssuer)
	configViper.SetDefault("auth.audience", defaultTokenAudience)
	configViper.SetDefault("auth.token_ttl_hours", defaultTokenTTLHours)
	configViper.SetDefault("auth.bcrypt_cost", defaultBcryptCost)
	configViper.SetDefault("google.jwks_url", defaultGoogleJWKSURL)
	configViper.SetDefault("oauth.state_ttl_minutes", defaultStateTTLMinutes)
	configViper.SetDefault("gateway.strict", false)
	configViper.SetDefault("gateway.fetch_concurrency", defaultFetchConcurrency)
	configViper.SetDefault("gateway.request_timeout_seconds", defaultGatewayTimeoutSecs)
}

// Load parses runtime configuration from viper.
func Load(configViper *viper.Viper) (AppConfig, error) {
	cfg := AppConfig{
		HTTPAddress:    configViper.GetString("http.address"),
		AllowedOrigins: splitList(configViper.GetStringSlice("http.allowed_origins")),

		DatabaseDriver: strings.ToLower(strings.TrimSpace(configViper.GetString("database.driver"))),
		DatabaseDSN:    configViper.GetString("database.dsn"),

		LogLevel:  configViper.GetString("log.level"),
		LogFormat: strings.ToLower(strings.TrimSpace(configViper.GetString("log.format"))),

		SigningSecret: configViper.GetString("auth.signing_secret"),
		TokenIssuer:   configViper.GetString("auth.issuer"),
		TokenAudience: configViper.GetString("auth.audience"),
		TokenTTL:      time.Duration(configViper.GetInt("auth.token_ttl_hours")) * time.Hour,
		BcryptCost:    configViper.GetInt("auth.bcrypt_cost"),

		GoogleClientID:        configViper.GetString("google.client_id"),
		GoogleClientSecret:    configViper.GetString("google.client_secret"),
		GoogleRedirectURI:     configViper.GetString("google.redirect_uri"),
		GoogleJWKSURL:         configViper.GetString("google.jwks_url"),
		GoogleSuccessRedirect: configViper.GetString("google.success_redirect"),
		GoogleErrorRedirect:   configViper.GetString("google.error_redirect"),

		MicrosoftErrorRedirect: configViper.GetString("microsoft.error_redirect"),

		StateTTL: time.Duration(configViper.GetInt("oauth.state_ttl_minutes")) * time.Minute,

		GatewayStrict:           configViper.GetBool("gateway.strict"),
		GatewayFetchConcurrency: configViper.GetInt("gateway.fetch_concurrency"),
		GatewayRequestTimeout:   time.Duration(configViper.GetInt("gateway.request_timeout_seconds")) * time.Second,
	}
	if strings.TrimSpace(cfg.MicrosoftErrorRedirect) == "" {
		cfg.MicrosoftErrorRedirect = cfg.GoogleErrorRedirect
	}

	if err := cfg.validate(); err != nil {
		return AppConfig{}, err
	}

	return cfg, nil
}

func (c AppConfig) validate() error {
	if strings.TrimSpace(c.SigningSecret) == "" {
		return fmt.Errorf("auth.signing_secret is required")
	}
	if c.DatabaseDriver != database.DriverSQLite && c.DatabaseDriver != database.DriverMySQL {
		return fmt.Errorf("database.driver must be %q or %q", database.DriverSQLite, database.DriverMySQL)
	}
	if strings.TrimSpace(c.DatabaseDSN) == "" {
		return fmt.Errorf("database.dsn is required")
	}
	if c.LogFormat != "json" && c.LogFormat != "console" {
		return fmt.Errorf("log.format must be json or console")
	}
	if c.TokenTTL <= 0 {
		return fmt.Errorf("auth.token_ttl_hours must be positive")
	}
	if strings.TrimSpace(c.GoogleClientID) == "" {
		return fmt.Errorf("google.client_id is required")
	}
	if strings.TrimSpace(c.GoogleRedirectURI) == "" {
		return fmt.Errorf("google.redirect_uri is required")
	}
	if strings.TrimSpace(c.GoogleSuccessRedirect) == "" || strings.TrimSpace(c.GoogleErrorRedirect) == "" {
		return fmt.Errorf("google.success_redirect and google.error_redirect are required")
	}
	if c.StateTTL <= 0 {
		return fmt.Errorf("oauth.state_ttl_minutes must be positive")
	}
	if c.GatewayFetchConcurrency <= 0 {
		return fmt.Errorf("gateway.fetch_concurrency must be positive")
	}
	if c.GatewayRequestTimeout <= 0 {
		return fmt.Errorf("gateway.request_timeout_seconds must be positive")
	}
	return nil
}

// splitList accepts both list values and comma-separated strings, as env vars deliver the latter.
func splitList(values []string) []string {
	out := make([]string, 0, len(values))
	for _, value := range values {
		for _, part := range strings.Split(value, ",") {
			if trimmed := strings.TrimSpace(part); trimmed != "" {
				out = append(out, trimmed)
			}
		}
	}
	return out
}
