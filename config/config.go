package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"coffeefarm/utils"
)

// Config holds the service configuration.
type Config struct {
	AppID    string `yaml:"app_id"`
	Port     string `yaml:"port"`
	Timezone string `yaml:"timezone"`

	HTTP    HTTPConfig    `yaml:"http"`
	Store   StoreConfig   `yaml:"store"`
	Redis   RedisConfig   `yaml:"redis"`
	Auth    AuthConfig    `yaml:"auth"`
	Reports ReportsConfig `yaml:"reports"`
	Logging LoggingConfig `yaml:"logging"`
	State   StateConfig   `yaml:"state"`
}

type HTTPConfig struct {
	AllowedOrigins []string `yaml:"allowed_origins"`
	// RateLimit is sustained requests per second per client address.
	RateLimit float64 `yaml:"rate_limit"`
	RateBurst int     `yaml:"rate_burst"`
}

// StoreConfig selects the document store backend.
type StoreConfig struct {
	Backend       string `yaml:"backend"` // memory, sqlite, mongo
	MongoURI      string `yaml:"mongo_uri"`
	MongoDatabase string `yaml:"mongo_database"`
	SQLitePath    string `yaml:"sqlite_path"`
	ChangeFeed    string `yaml:"change_feed"` // local, redis, changestream
}

type RedisConfig struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
}

type AuthConfig struct {
	JWTSecret           string `yaml:"jwt_secret"`
	CustomTokenSecret   string `yaml:"custom_token_secret"`
	FirebaseCredentials string `yaml:"firebase_credentials"`
	SessionTTL          string `yaml:"session_ttl"`
	InitialToken        string `yaml:"-"`
}

type ReportsConfig struct {
	LogoPath  string `yaml:"logo_path"`
	PublicURL string `yaml:"public_url"`
}

type LoggingConfig struct {
	Level       string `yaml:"level"`
	Development bool   `yaml:"development"`
}

type StateConfig struct {
	IdleTimeout string `yaml:"idle_timeout"`
}

// DefaultJWTSecret is the built-in session signing secret. It is only fit
// for local development.
const DefaultJWTSecret = "change-me"

// Backends and change feeds accepted by Validate.
var (
	ValidBackends    = []string{"memory", "sqlite", "mongo"}
	ValidChangeFeeds = []string{"local", "redis", "changestream"}
)

// DefaultConfig returns the built-in defaults.
func DefaultConfig() *Config {
	return &Config{
		AppID:    "default-app-id",
		Port:     ":8080",
		Timezone: "America/Sao_Paulo",
		HTTP: HTTPConfig{
			AllowedOrigins: []string{"*"},
			RateLimit:      5,
			RateBurst:      20,
		},
		Store: StoreConfig{
			Backend:    "memory",
			MongoURI:   "mongodb://localhost:27017",
			SQLitePath: "coffeefarm.db",
		},
		Auth: AuthConfig{
			JWTSecret:  DefaultJWTSecret,
			SessionTTL: "12h",
		},
		Logging: LoggingConfig{Level: "info"},
		State:   StateConfig{IdleTimeout: "5m"},
	}
}

// Load reads .env (if present), then the YAML file at path (if present),
// then environment overrides.
func Load(path string) (*Config, error) {
	// .env is optional; a missing file is not an error
	_ = godotenv.Load()

	cfg := DefaultConfig()
	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case err == nil:
			if err := yaml.Unmarshal(data, cfg); err != nil {
				return nil, fmt.Errorf("failed to parse config: %w", err)
			}
		case !os.IsNotExist(err):
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
	}

	cfg.applyEnvOverrides()
	cfg.normalize()
	return cfg, nil
}

func (c *Config) applyEnvOverrides() {
	set := func(dst *string, key string) {
		if v := os.Getenv(key); v != "" {
			*dst = v
		}
	}
	set(&c.Port, "PORT")
	set(&c.AppID, "APP_ID")
	set(&c.Timezone, "TZ")
	set(&c.Store.Backend, "STORE_BACKEND")
	set(&c.Store.MongoURI, "MONGODB_URI")
	set(&c.Store.MongoDatabase, "MONGODB_DATABASE")
	set(&c.Store.SQLitePath, "SQLITE_PATH")
	set(&c.Store.ChangeFeed, "CHANGE_FEED")
	set(&c.Redis.Addr, "REDIS_ADDR")
	set(&c.Redis.Password, "REDIS_PASSWORD")
	set(&c.Auth.JWTSecret, "JWT_SECRET")
	set(&c.Auth.CustomTokenSecret, "CUSTOM_TOKEN_SECRET")
	set(&c.Auth.FirebaseCredentials, "FIREBASE_CREDENTIALS")
	set(&c.Auth.SessionTTL, "SESSION_TTL")
	set(&c.Auth.InitialToken, "INITIAL_AUTH_TOKEN")
	set(&c.Reports.LogoPath, "REPORT_LOGO")
	set(&c.Reports.PublicURL, "PUBLIC_URL")
	set(&c.Logging.Level, "LOG_LEVEL")
	set(&c.State.IdleTimeout, "STATE_IDLE_TIMEOUT")

	if v := os.Getenv("CORS_ORIGINS"); v != "" {
		c.HTTP.AllowedOrigins = strings.Split(v, ",")
	}
	if v := os.Getenv("RATE_LIMIT"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			c.HTTP.RateLimit = f
		}
	}
	if v := os.Getenv("REDIS_DB"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.Redis.DB = n
		}
	}
	if v := os.Getenv("LOG_DEV"); v != "" {
		c.Logging.Development = v == "true" || v == "1"
	}
}

func (c *Config) normalize() {
	if c.Port != "" && c.Port[0] != ':' {
		c.Port = ":" + c.Port
	}
	if c.Store.ChangeFeed == "" {
		switch {
		case c.Store.Backend == "mongo":
			c.Store.ChangeFeed = "changestream"
		case c.Redis.Addr != "":
			c.Store.ChangeFeed = "redis"
		default:
			c.Store.ChangeFeed = "local"
		}
	}
}

// Validate rejects combinations the service cannot start with.
func (c *Config) Validate() error {
	if !contains(ValidBackends, c.Store.Backend) {
		return fmt.Errorf("invalid store backend: %s (valid: %v)", c.Store.Backend, ValidBackends)
	}
	if !contains(ValidChangeFeeds, c.Store.ChangeFeed) {
		return fmt.Errorf("invalid change feed: %s (valid: %v)", c.Store.ChangeFeed, ValidChangeFeeds)
	}
	if c.Store.ChangeFeed == "changestream" && c.Store.Backend != "mongo" {
		return fmt.Errorf("change feed changestream requires the mongo backend")
	}
	if c.Store.ChangeFeed == "redis" && c.Redis.Addr == "" {
		return fmt.Errorf("change feed redis requires REDIS_ADDR")
	}
	if c.HTTP.RateLimit <= 0 {
		return fmt.Errorf("rate limit must be positive")
	}
	if c.Auth.JWTSecret == "" {
		return fmt.Errorf("JWT secret not configured (set JWT_SECRET)")
	}
	if _, err := time.LoadLocation(c.Timezone); err != nil {
		return fmt.Errorf("invalid timezone %q: %w", c.Timezone, err)
	}
	return nil
}

// Warnings lists settings that start but should not reach production.
func (c *Config) Warnings() []string {
	var out []string
	if c.Auth.JWTSecret == DefaultJWTSecret && !c.Logging.Development {
		out = append(out, "JWT_SECRET is the built-in default; session tokens can be forged")
	}
	return out
}

// Namespace is the app id made safe for storage paths: every
// non-alphanumeric rune becomes "_".
func (c *Config) Namespace() string {
	return utils.SafeKey(c.AppID)
}

// Location returns the configured time zone, falling back to UTC.
func (c *Config) Location() *time.Location {
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}

func (c *Config) GetSessionTTL() time.Duration {
	return parseDuration(c.Auth.SessionTTL, 12*time.Hour)
}

func (c *Config) GetIdleTimeout() time.Duration {
	return parseDuration(c.State.IdleTimeout, 5*time.Minute)
}

func parseDuration(s string, def time.Duration) time.Duration {
	d, err := time.ParseDuration(s)
	if err != nil || d <= 0 {
		return def
	}
	return d
}

func contains(list []string, v string) bool {
	for _, item := range list {
		if item == v {
			return true
		}
	}
	return false
}
