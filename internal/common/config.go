package common

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/joseph-ayodele/clauseguard/constants"
)

const EnvProduction = "production"

// Config holds all application configuration
type Config struct {
	Env         string            `yaml:"env"`
	Server      ServerConfig      `yaml:"server"`
	Log         LogConfig         `yaml:"log"`
	Database    DatabaseConfig    `yaml:"database"`
	SQLite      SQLiteConfig      `yaml:"sqlite"`
	Redis       RedisConfig       `yaml:"redis"`
	LLM         LLMConfig         `yaml:"llm"`
	Extract     ExtractConfig     `yaml:"extract"`
	Billing     BillingConfig     `yaml:"billing"`
	Identity    IdentityConfig    `yaml:"identity"`
	Entitlement EntitlementConfig `yaml:"entitlement"`
}

// ServerConfig holds server-related configuration
type ServerConfig struct {
	HTTPAddr        string        `yaml:"http_addr"`
	GRPCHealthAddr  string        `yaml:"grpc_health_addr"`
	BaseURL         string        `yaml:"base_url"`
	RequestTimeout  time.Duration `yaml:"request_timeout"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
	MaxUploadBytes  int64         `yaml:"max_upload_bytes"`
	AllowedOrigins  []string      `yaml:"allowed_origins"`
}

// DatabaseConfig holds database-related configuration
type DatabaseConfig struct {
	DSN              string        `yaml:"dsn"`
	MaxConns         int32         `yaml:"max_conns"`
	MinConns         int32         `yaml:"min_conns"`
	MaxConnLifetime  time.Duration `yaml:"max_conn_lifetime"`
	MaxConnIdleTime  time.Duration `yaml:"max_conn_idle_time"`
	DialTimeout      time.Duration `yaml:"dial_timeout"`
	StatementTimeout time.Duration `yaml:"statement_timeout"`
}

type SQLiteConfig struct {
	Path string `yaml:"path"`
}

type RedisConfig struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
	Channel  string `yaml:"channel"`
}

// LLMConfig holds LLM-related configuration
type LLMConfig struct {
	BaseURL        string        `yaml:"base_url"`
	Model          string        `yaml:"model"`
	APIKey         string        `yaml:"api_key"`
	Temperature    float32       `yaml:"temperature"`
	Timeout        time.Duration `yaml:"timeout"`
	OutputLanguage string        `yaml:"output_language"`
}

type ExtractConfig struct {
	Timeout   time.Duration `yaml:"timeout"`
	Pdftotext string        `yaml:"pdftotext"`
	MaxPages  int           `yaml:"max_pages"`
}

type BillingConfig struct {
	SecretKey        string        `yaml:"secret_key"`
	WebhookSecret    string        `yaml:"webhook_secret"`
	WebhookTolerance time.Duration `yaml:"webhook_tolerance"`
	// Prices maps CURRENCY_INTERVAL (e.g. USD_MONTHLY) to a provider price id.
	Prices map[string]string `yaml:"prices"`
}

type IdentityConfig struct {
	URL       string `yaml:"url"`
	// Issuer is the expected token "iss". Empty derives it from URL.
	Issuer    string `yaml:"issuer"`
	JWTSecret string `yaml:"jwt_secret"`
	PublicKey string `yaml:"public_key"`
	Audience  string `yaml:"audience"`
}

// ExpectedIssuer is Issuer when set, otherwise the Supabase-style "{URL}/auth/v1".
// "-" disables the issuer check.
func (c IdentityConfig) ExpectedIssuer() string {
	switch iss := strings.TrimSpace(c.Issuer); {
	case iss == "-":
		return ""
	case iss != "":
		return iss
	}
	base := strings.TrimRight(strings.TrimSpace(c.URL), "/")
	if base == "" {
		return ""
	}
	if strings.HasSuffix(base, "/auth/v1") {
		return base
	}
	return base + "/auth/v1"
}

type EntitlementConfig struct {
	Store         string `yaml:"store"` // memory | postgres | sqlite | redis
	FreeCharLimit int    `yaml:"free_char_limit"`
	ProCharLimit  int    `yaml:"pro_char_limit"`
}

const pricePrefix = "STRIPE_PRICE_ID_"

func defaultConfig() *Config {
	return &Config{
		Env: "development",
		Server: ServerConfig{
			HTTPAddr:        ":8080",
			GRPCHealthAddr:  ":9090",
			BaseURL:         "http://localhost:3000",
			RequestTimeout:  60 * time.Second,
			ShutdownTimeout: 10 * time.Second,
			MaxUploadBytes:  10 << 20,
			AllowedOrigins:  []string{"http://localhost:3000"},
		},
		Log: LogConfig{Level: "info", Format: "text"},
		Database: DatabaseConfig{
			MaxConns:        20,
			MinConns:        5,
			MaxConnLifetime: 30 * time.Minute,
			MaxConnIdleTime: 5 * time.Minute,
			DialTimeout:     3 * time.Second,
		},
		SQLite: SQLiteConfig{Path: "clauseguard.db"},
		Redis:  RedisConfig{Addr: "localhost:6379", Channel: "entitlements"},
		LLM: LLMConfig{
			BaseURL:        "https://api.openai.com/v1",
			Model:          "gpt-4o-mini",
			Timeout:        45 * time.Second,
			OutputLanguage: "English",
		},
		Extract: ExtractConfig{
			Timeout:   20 * time.Second,
			Pdftotext: "pdftotext",
		},
		Billing: BillingConfig{
			WebhookTolerance: 5 * time.Minute,
			Prices:           map[string]string{},
		},
		Identity: IdentityConfig{Audience: "authenticated"},
		Entitlement: EntitlementConfig{
			Store:         "memory",
			FreeCharLimit: constants.DefaultFreeCharLimit,
			ProCharLimit:  constants.DefaultProCharLimit,
		},
	}
}

// LoadConfig builds defaults, overlays the YAML file named by CONFIG_FILE (if any),
// then applies environment variables.
func LoadConfig() (*Config, error) {
	cfg := defaultConfig()
	if path := os.Getenv("CONFIG_FILE"); path != "" {
		if err := cfg.loadFile(path); err != nil {
			return nil, err
		}
	}
	cfg.applyEnv()
	return cfg, nil
}

func (c *Config) loadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return WrapError(err, "read config file")
	}
	if err := yaml.Unmarshal(data, c); err != nil {
		return WrapError(err, "parse config file")
	}
	if c.Billing.Prices == nil {
		c.Billing.Prices = map[string]string{}
	}
	return nil
}

func (c *Config) applyEnv() {
	c.Env = getEnv("APP_ENV", c.Env)

	c.Server.HTTPAddr = getEnv("HTTP_ADDR", c.Server.HTTPAddr)
	c.Server.GRPCHealthAddr = getEnvAllowEmpty("GRPC_HEALTH_ADDR", c.Server.GRPCHealthAddr)
	c.Server.BaseURL = strings.TrimRight(getEnv("BASE_URL", c.Server.BaseURL), "/")
	c.Server.RequestTimeout = getEnvAsDuration("REQUEST_TIMEOUT", c.Server.RequestTimeout)
	c.Server.ShutdownTimeout = getEnvAsDuration("SHUTDOWN_TIMEOUT", c.Server.ShutdownTimeout)
	c.Server.MaxUploadBytes = getEnvAsInt64("MAX_UPLOAD_BYTES", c.Server.MaxUploadBytes)
	if v := os.Getenv("CORS_ALLOWED_ORIGINS"); v != "" {
		c.Server.AllowedOrigins = splitList(v)
	}

	c.Log.Level = getEnv("LOG_LEVEL", c.Log.Level)
	c.Log.Format = getEnv("LOG_FORMAT", c.Log.Format)

	c.Database.DSN = getEnv("DB_URL", c.Database.DSN)
	c.Database.MaxConns = getEnvAsInt32("DB_MAX_CONNS", c.Database.MaxConns)
	c.Database.MinConns = getEnvAsInt32("DB_MIN_CONNS", c.Database.MinConns)
	c.Database.MaxConnLifetime = getEnvAsDuration("DB_MAX_CONN_LIFETIME", c.Database.MaxConnLifetime)
	c.Database.MaxConnIdleTime = getEnvAsDuration("DB_MAX_CONN_IDLE_TIME", c.Database.MaxConnIdleTime)
	c.Database.DialTimeout = getEnvAsDuration("DB_DIAL_TIMEOUT", c.Database.DialTimeout)
	c.Database.StatementTimeout = getEnvAsDuration("DB_STATEMENT_TIMEOUT", c.Database.StatementTimeout)

	c.SQLite.Path = getEnv("SQLITE_PATH", c.SQLite.Path)

	c.Redis.Addr = getEnv("REDIS_ADDR", c.Redis.Addr)
	c.Redis.Password = getEnv("REDIS_PASSWORD", c.Redis.Password)
	c.Redis.DB = getEnvAsInt("REDIS_DB", c.Redis.DB)
	c.Redis.Channel = getEnv("REDIS_CHANNEL", c.Redis.Channel)

	c.LLM.BaseURL = getEnv("OPENAI_BASE_URL", c.LLM.BaseURL)
	c.LLM.Model = getEnv("OPENAI_MODEL", c.LLM.Model)
	c.LLM.APIKey = getEnv("OPENAI_API_KEY", c.LLM.APIKey)
	c.LLM.Temperature = getEnvAsFloat32("OPENAI_TEMPERATURE", c.LLM.Temperature)
	c.LLM.Timeout = getEnvAsDuration("OPENAI_TIMEOUT", c.LLM.Timeout)
	c.LLM.OutputLanguage = getEnv("ANALYSIS_OUTPUT_LANGUAGE", c.LLM.OutputLanguage)

	c.Extract.Timeout = getEnvAsDuration("EXTRACT_TIMEOUT", c.Extract.Timeout)
	c.Extract.Pdftotext = getEnv("PDFTOTEXT_BIN", c.Extract.Pdftotext)
	c.Extract.MaxPages = getEnvAsInt("EXTRACT_MAX_PAGES", c.Extract.MaxPages)

	c.Billing.SecretKey = getEnv("STRIPE_SECRET_KEY", c.Billing.SecretKey)
	c.Billing.WebhookSecret = getEnv("STRIPE_WEBHOOK_SECRET", c.Billing.WebhookSecret)
	c.Billing.WebhookTolerance = getEnvAsDuration("STRIPE_WEBHOOK_TOLERANCE", c.Billing.WebhookTolerance)
	for _, kv := range os.Environ() {
		k, v, ok := strings.Cut(kv, "=")
		if !ok || !strings.HasPrefix(k, pricePrefix) || strings.TrimSpace(v) == "" {
			continue
		}
		c.Billing.Prices[strings.TrimPrefix(k, pricePrefix)] = strings.TrimSpace(v)
	}

	c.Identity.URL = getEnv("IDENTITY_URL", c.Identity.URL)
	c.Identity.Issuer = getEnv("IDENTITY_ISSUER", c.Identity.Issuer)
	c.Identity.JWTSecret = getEnv("IDENTITY_JWT_SECRET", c.Identity.JWTSecret)
	c.Identity.PublicKey = getEnv("IDENTITY_PUBLIC_KEY", c.Identity.PublicKey)
	c.Identity.Audience = getEnv("IDENTITY_AUDIENCE", c.Identity.Audience)

	c.Entitlement.Store = strings.ToLower(getEnv("ENTITLEMENT_STORE", c.Entitlement.Store))
	c.Entitlement.FreeCharLimit = getEnvAsInt("FREE_CHAR_LIMIT", c.Entitlement.FreeCharLimit)
	c.Entitlement.ProCharLimit = getEnvAsInt("PRO_CHAR_LIMIT", c.Entitlement.ProCharLimit)
}

// IsProduction reports whether hard configuration failures apply.
func (c *Config) IsProduction() bool {
	return strings.EqualFold(c.Env, EnvProduction)
}

// PriceID looks up CURRENCY_INTERVAL, falling back to USD_MONTHLY.
func (c *Config) PriceID(currency, interval string) (string, bool) {
	key := strings.ToUpper(currency) + "_" + strings.ToUpper(interval)
	if id, ok := c.Billing.Prices[key]; ok && id != "" {
		return id, true
	}
	id, ok := c.Billing.Prices["USD_MONTHLY"]
	return id, ok && id != ""
}

// Helper functions for environment variable parsing
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvAllowEmpty lets an explicitly empty variable switch a feature off.
func getEnvAllowEmpty(key, defaultValue string) string {
	if value, ok := os.LookupEnv(key); ok {
		return strings.TrimSpace(value)
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

func getEnvAsInt32(key string, defaultValue int32) int32 {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.ParseInt(value, 10, 32); err == nil {
			return int32(intVal)
		}
	}
	return defaultValue
}

func getEnvAsInt64(key string, defaultValue int64) int64 {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.ParseInt(value, 10, 64); err == nil {
			return intVal
		}
	}
	return defaultValue
}

func getEnvAsFloat32(key string, defaultValue float32) float32 {
	if value := os.Getenv(key); value != "" {
		if floatVal, err := strconv.ParseFloat(value, 32); err == nil {
			return float32(floatVal)
		}
	}
	return defaultValue
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}

func splitList(s string) []string {
	var out []string
	for _, p := range strings.Split(s, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// Validate validates the loaded configuration
func (c *Config) Validate() error {
	if c.Server.HTTPAddr == "" {
		return NewConfigError("HTTP_ADDR is required")
	}
	if c.Server.RequestTimeout <= 0 {
		return NewConfigError("REQUEST_TIMEOUT must be positive")
	}
	if c.Extract.Timeout <= 0 || c.Extract.Timeout >= c.Server.RequestTimeout {
		return NewConfigError("EXTRACT_TIMEOUT must be positive and shorter than REQUEST_TIMEOUT")
	}
	if c.LLM.Timeout <= 0 || c.LLM.Timeout >= c.Server.RequestTimeout {
		return NewConfigError("OPENAI_TIMEOUT must be positive and shorter than REQUEST_TIMEOUT")
	}
	if c.Entitlement.FreeCharLimit <= 0 || c.Entitlement.ProCharLimit < c.Entitlement.FreeCharLimit {
		return NewConfigError("FREE_CHAR_LIMIT must be positive and not above PRO_CHAR_LIMIT")
	}

	switch c.Entitlement.Store {
	case "memory":
	case "postgres":
		if c.Database.DSN == "" {
			return NewConfigError("DB_URL is required for the postgres entitlement store")
		}
	case "sqlite":
		if c.SQLite.Path == "" {
			return NewConfigError("SQLITE_PATH is required for the sqlite entitlement store")
		}
	case "redis":
		if c.Redis.Addr == "" {
			return NewConfigError("REDIS_ADDR is required for the redis entitlement store")
		}
	default:
		return NewConfigError(fmt.Sprintf("unknown ENTITLEMENT_STORE %q", c.Entitlement.Store))
	}

	if c.IsProduction() {
		if c.Billing.WebhookSecret == "" {
			return NewConfigError("STRIPE_WEBHOOK_SECRET is required in production")
		}
		if c.Billing.SecretKey == "" {
			return NewConfigError("STRIPE_SECRET_KEY is required in production")
		}
		if c.LLM.APIKey == "" {
			return NewConfigError("OPENAI_API_KEY is required in production")
		}
		if c.Identity.JWTSecret == "" && c.Identity.PublicKey == "" {
			return NewConfigError("IDENTITY_JWT_SECRET or IDENTITY_PUBLIC_KEY is required in production")
		}
		if c.Entitlement.Store == "memory" {
			return NewConfigError("the memory entitlement store is not allowed in production")
		}
	}
	return nil
}

// LogValue reports settings with secrets reduced to presence.
func (c *Config) LogValue() slog.Value {
	return slog.GroupValue(
		slog.String("env", c.Env),
		slog.String("http_addr", c.Server.HTTPAddr),
		slog.String("grpc_health_addr", c.Server.GRPCHealthAddr),
		slog.String("base_url", c.Server.BaseURL),
		slog.Duration("request_timeout", c.Server.RequestTimeout),
		slog.Duration("extract_timeout", c.Extract.Timeout),
		slog.Duration("model_timeout", c.LLM.Timeout),
		slog.String("model", c.LLM.Model),
		slog.String("entitlement_store", c.Entitlement.Store),
		slog.Int("prices", len(c.Billing.Prices)),
		slog.String("openai_api_key", Presence(c.LLM.APIKey)),
		slog.String("stripe_secret_key", Presence(c.Billing.SecretKey)),
		slog.String("stripe_webhook_secret", Presence(c.Billing.WebhookSecret)),
		slog.String("identity_issuer", c.Identity.ExpectedIssuer()),
		slog.String("identity_jwt_secret", Presence(c.Identity.JWTSecret)),
		slog.String("identity_public_key", Presence(c.Identity.PublicKey)),
		slog.String("db_url", Presence(c.Database.DSN)),
	)
}
