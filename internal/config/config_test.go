package config

import (
	"strings"
	"testing"
	"time"

	"github.com/openmind-crm/backend/internal/database"
)

func validViper() map[string]any {
	return map[string]any{
		"auth.signing_secret":     "secret",
		"google.client_id":        "client-id",
		"google.redirect_uri":     "http://localhost:8001/oauth/google/callback",
		"google.success_redirect": "http://localhost:4200/settings?connected=google",
		"google.error_redirect":   "http://localhost:4200/settings?error=google",
	}
}

func TestLoadAppliesDefaults(t *testing.T) {
	configViper := NewViper()
	for key, value := range validViper() {
		configViper.Set(key, value)
	}

	cfg, err := Load(configViper)
	if err != nil {
		t.Fatalf("unexpected load error: %v", err)
	}
	if cfg.HTTPAddress != "0.0.0.0:8001" {
		t.Fatalf("unexpected address %s", cfg.HTTPAddress)
	}
	if len(cfg.AllowedOrigins) != 1 || cfg.AllowedOrigins[0] != "http://localhost:4200" {
		t.Fatalf("unexpected origins %v", cfg.AllowedOrigins)
	}
	if cfg.DatabaseDriver != database.DriverSQLite || cfg.DatabaseDSN != "openmind.db" {
		t.Fatalf("unexpected database config %s %s", cfg.DatabaseDriver, cfg.DatabaseDSN)
	}
	if cfg.TokenTTL != 24*time.Hour {
		t.Fatalf("unexpected token ttl %v", cfg.TokenTTL)
	}
	if cfg.StateTTL != 10*time.Minute {
		t.Fatalf("unexpected state ttl %v", cfg.StateTTL)
	}
	if cfg.GatewayFetchConcurrency != 4 || cfg.GatewayRequestTimeout != 30*time.Second || cfg.GatewayStrict {
		t.Fatalf("unexpected gateway config %+v", cfg)
	}
	if cfg.MicrosoftErrorRedirect != cfg.GoogleErrorRedirect {
		t.Fatalf("expected microsoft error redirect to fall back to google's, got %q", cfg.MicrosoftErrorRedirect)
	}
}

func TestLoadReadsEnvironment(t *testing.T) {
	t.Setenv("OPENMIND_AUTH_SIGNING_SECRET", "env-secret")
	t.Setenv("OPENMIND_HTTP_ALLOWED_ORIGINS", "http://a.example, http://b.example")
	t.Setenv("OPENMIND_GATEWAY_STRICT", "true")
	configViper := NewViper()
	for key, value := range validViper() {
		if key == "auth.signing_secret" {
			continue
		}
		configViper.Set(key, value)
	}

	cfg, err := Load(configViper)
	if err != nil {
		t.Fatalf("unexpected load error: %v", err)
	}
	if cfg.SigningSecret != "env-secret" {
		t.Fatalf("expected env signing secret, got %q", cfg.SigningSecret)
	}
	if strings.Join(cfg.AllowedOrigins, "|") != "http://a.example|http://b.example" {
		t.Fatalf("unexpected origins %v", cfg.AllowedOrigins)
	}
	if !cfg.GatewayStrict {
		t.Fatalf("expected strict gateway from env")
	}
}

func TestLoadRejectsInvalidConfig(t *testing.T) {
	cases := map[string]map[string]any{
		"missing secret":    {"auth.signing_secret": ""},
		"unknown driver":    {"database.driver": "postgres"},
		"missing client id": {"google.client_id": ""},
		"missing redirect":  {"google.error_redirect": ""},
		"bad log format":    {"log.format": "xml"},
	}
	for name, overrides := range cases {
		t.Run(name, func(t *testing.T) {
			configViper := NewViper()
			for key, value := range validViper() {
				configViper.Set(key, value)
			}
			for key, value := range overrides {
				configViper.Set(key, value)
			}
			if _, err := Load(configViper); err == nil {
				t.Fatalf("expected validation error")
			}
		})
	}
}
