package common

import (
	"bytes"
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestLoadConfigDefaults(t *testing.T) {
	t.Setenv("CONFIG_FILE", "")
	cfg, err := LoadConfig()
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}
	if cfg.Server.HTTPAddr != ":8080" {
		t.Errorf("HTTPAddr = %q", cfg.Server.HTTPAddr)
	}
	if cfg.Entitlement.FreeCharLimit != 2000 || cfg.Entitlement.ProCharLimit != 100000 {
		t.Errorf("char limits = %d/%d", cfg.Entitlement.FreeCharLimit, cfg.Entitlement.ProCharLimit)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("defaults should validate in development: %v", err)
	}
}

func TestLoadConfigEnvOverridesFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	yml := "server:\n  http_addr: \":7000\"\n  request_timeout: 90s\nllm:\n  model: file-model\n"
	if err := os.WriteFile(path, []byte(yml), 0o600); err != nil {
		t.Fatal(err)
	}
	t.Setenv("CONFIG_FILE", path)
	t.Setenv("OPENAI_MODEL", "env-model")
	t.Setenv("STRIPE_PRICE_ID_EUR_YEARLY", "price_eur_y")

	cfg, err := LoadConfig()
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}
	if cfg.Server.HTTPAddr != ":7000" {
		t.Errorf("HTTPAddr = %q, want file value", cfg.Server.HTTPAddr)
	}
	if cfg.Server.RequestTimeout != 90*time.Second {
		t.Errorf("RequestTimeout = %v", cfg.Server.RequestTimeout)
	}
	if cfg.LLM.Model != "env-model" {
		t.Errorf("Model = %q, want env value", cfg.LLM.Model)
	}
	if id, ok := cfg.PriceID("eur", "yearly"); !ok || id != "price_eur_y" {
		t.Errorf("PriceID = %q, %v", id, ok)
	}
}

func TestPriceIDFallback(t *testing.T) {
	cfg := defaultConfig()
	cfg.Billing.Prices["USD_MONTHLY"] = "price_usd_m"
	id, ok := cfg.PriceID("gbp", "weekly")
	if !ok || id != "price_usd_m" {
		t.Fatalf("fallback = %q, %v", id, ok)
	}
	cfg.Billing.Prices = map[string]string{}
	if _, ok := cfg.PriceID("usd", "monthly"); ok {
		t.Fatal("expected no price")
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(c *Config)
		wantErr string
	}{
		{
			name:    "production without webhook secret",
			mutate:  func(c *Config) { c.Env = "production" },
			wantErr: "STRIPE_WEBHOOK_SECRET",
		},
		{
			name: "production fully configured",
			mutate: func(c *Config) {
				c.Env = "production"
				c.Billing.WebhookSecret = "whsec_x"
				c.Billing.SecretKey = "sk_x"
				c.LLM.APIKey = "sk-openai"
				c.Identity.JWTSecret = "jwt"
				c.Entitlement.Store = "sqlite"
			},
		},
		{
			name:    "extract timeout not shorter than request",
			mutate:  func(c *Config) { c.Extract.Timeout = c.Server.RequestTimeout },
			wantErr: "EXTRACT_TIMEOUT",
		},
		{
			name:    "model timeout not shorter than request",
			mutate:  func(c *Config) { c.LLM.Timeout = 2 * c.Server.RequestTimeout },
			wantErr: "OPENAI_TIMEOUT",
		},
		{
			name:    "postgres without dsn",
			mutate:  func(c *Config) { c.Entitlement.Store = "postgres" },
			wantErr: "DB_URL",
		},
		{
			name:    "unknown store",
			mutate:  func(c *Config) { c.Entitlement.Store = "etcd" },
			wantErr: "ENTITLEMENT_STORE",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := defaultConfig()
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.wantErr == "" {
				if err != nil {
					t.Fatalf("unexpected error: %v", err)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Fatalf("error = %v, want mention of %s", err, tt.wantErr)
			}
			if !errors.Is(err, ErrConfig) {
				t.Errorf("expected ErrConfig in chain")
			}
		})
	}
}

func TestConfigLogValueHidesSecrets(t *testing.T) {
	cfg := defaultConfig()
	cfg.LLM.APIKey = "sk-very-secret-value"
	cfg.Billing.WebhookSecret = "whsec_very_secret"

	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, nil))
	logger.Info("config.loaded", "config", cfg)

	out := buf.String()
	if strings.Contains(out, "sk-very-secret-value") || strings.Contains(out, "whsec_very_secret") {
		t.Fatalf("secret leaked into log: %s", out)
	}
	if !strings.Contains(out, "openai_api_key=set") {
		t.Errorf("expected presence marker, got %s", out)
	}
}

func TestIdentityExpectedIssuer(t *testing.T) {
	tests := []struct {
		name string
		cfg  IdentityConfig
		want string
	}{
		{name: "nothing configured", cfg: IdentityConfig{}, want: ""},
		{name: "project url", cfg: IdentityConfig{URL: "https://abc.supabase.co"}, want: "https://abc.supabase.co/auth/v1"},
		{name: "trailing slash", cfg: IdentityConfig{URL: "https://abc.supabase.co/"}, want: "https://abc.supabase.co/auth/v1"},
		{name: "url already names the auth endpoint", cfg: IdentityConfig{URL: "https://abc.supabase.co/auth/v1"}, want: "https://abc.supabase.co/auth/v1"},
		{name: "explicit issuer wins", cfg: IdentityConfig{URL: "https://abc.supabase.co", Issuer: "https://id.example.com"}, want: "https://id.example.com"},
		{name: "check disabled", cfg: IdentityConfig{URL: "https://abc.supabase.co", Issuer: "-"}, want: ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.cfg.ExpectedIssuer(); got != tt.want {
				t.Errorf("ExpectedIssuer() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestLoadConfigIdentityIssuerFromEnv(t *testing.T) {
	t.Setenv("CONFIG_FILE", "")
	t.Setenv("IDENTITY_URL", "https://abc.supabase.co")
	t.Setenv("IDENTITY_ISSUER", "https://issuer.example.com/")
	cfg, err := LoadConfig()
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}
	if got := cfg.Identity.ExpectedIssuer(); got != "https://issuer.example.com/" {
		t.Errorf("ExpectedIssuer() = %q", got)
	}
}
