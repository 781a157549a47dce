package config

import (
	"fmt"
	"log"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

const configPathEnv = "ISSUE_SYNC_CONFIG"

// Config aggregates runtime configuration for the service.
type Config struct {
	App          AppConfig          `yaml:"app"`
	Postgres     PostgresConfig     `yaml:"postgres"`
	Redis        RedisConfig        `yaml:"redis"`
	Logger       LoggerConfig       `yaml:"logger"`
	Auth         AuthConfig         `yaml:"auth"`
	Backend      BackendConfig      `yaml:"backend"`
	Poller       PollerConfig       `yaml:"poller"`
	Enrichment   EnrichmentConfig   `yaml:"enrichment"`
	Geocoder     GeocoderConfig     `yaml:"geocoder"`
	Media        MediaConfig        `yaml:"media"`
	Store        StoreConfig        `yaml:"store"`
	Map          MapConfig          `yaml:"map"`
	Notification NotificationConfig `yaml:"notification"`
}

// AppConfig controls server level behavior.
type AppConfig struct {
	Name                  string `yaml:"name"`
	Env                   string `yaml:"env"`
	Host                  string `yaml:"host"`
	Port                  string `yaml:"port"`
	Version               string `yaml:"version"`
	RequestTimeoutSeconds int    `yaml:"requestTimeoutSeconds"`
}

// PostgresConfig holds DB connection values.
type PostgresConfig struct {
	DSN            string `yaml:"dsn"`
	MaxConns       int32  `yaml:"maxConns"`
	MinConns       int32  `yaml:"minConns"`
	RunMigrations  bool   `yaml:"runMigrations"`
	MigrationsDir  string `yaml:"migrationsDir"`
	ConnMaxIdleSec int32  `yaml:"connMaxIdleSeconds"`
	ConnMaxLifeSec int32  `yaml:"connMaxLifeSeconds"`
}

// RedisConfig holds Redis connection values.
type RedisConfig struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
}

// LoggerConfig configures logging behavior.
type LoggerConfig struct {
	Level string `yaml:"level"`
}

// AuthConfig defines bearer token verification for the API.
// An empty secret disables verification.
type AuthConfig struct {
	JWTSecret string `yaml:"jwtSecret"`
}

// BackendConfig points at the issue backend.
type BackendConfig struct {
	BaseURL        string `yaml:"baseUrl"`
	TimeoutSeconds int    `yaml:"timeoutSeconds"`
}

// PollerConfig controls refresh cadence and the new-issue highlight window.
type PollerConfig struct {
	IntervalSeconds int `yaml:"intervalSeconds"`
	FlagClearMillis int `yaml:"flagClearMillis"`
}

// EnrichmentConfig bounds the lookup fan-out.
type EnrichmentConfig struct {
	PoolSize          int `yaml:"poolSize"`
	CallTimeoutMillis int `yaml:"callTimeoutMillis"`
	CacheTTLSeconds   int `yaml:"cacheTtlSeconds"`
}

// GeocoderConfig configures the reverse geocoding service.
type GeocoderConfig struct {
	BaseURL        string `yaml:"baseUrl"`
	UserAgent      string `yaml:"userAgent"`
	AcceptLanguage string `yaml:"acceptLanguage"`
}

// MediaConfig configures S3-compatible signed image URLs.
type MediaConfig struct {
	Endpoint      string `yaml:"endpoint"`
	Region        string `yaml:"region"`
	Bucket        string `yaml:"bucket"`
	AccessKey     string `yaml:"accessKey"`
	SecretKey     string `yaml:"secretKey"`
	UseSSL        bool   `yaml:"useSsl"`
	ExpirySeconds int    `yaml:"expirySeconds"`
}

// StoreConfig controls retention of issues missing from the backend.
type StoreConfig struct {
	MaxMissedCycles int `yaml:"maxMissedCycles"`
}

// MapConfig is the bounding box for map consumers.
type MapConfig struct {
	MinLat float64 `yaml:"minLat"`
	MaxLat float64 `yaml:"maxLat"`
	MinLng float64 `yaml:"minLng"`
	MaxLng float64 `yaml:"maxLng"`
}

// NotificationConfig holds the optional webhook that receives store events.
type NotificationConfig struct {
	WebhookURL string `yaml:"webhookUrl"`
}

// Load reads configuration from environment variables, applying defaults where possible.
// A YAML file named by ISSUE_SYNC_CONFIG is applied on top of the defaults, then env overrides win.
func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := defaultConfig()

	if path := os.Getenv(configPathEnv); path != "" {
		raw, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read %s: %w", path, err)
		}
		if err := yaml.Unmarshal(raw, cfg); err != nil {
			return nil, fmt.Errorf("parse %s: %w", path, err)
		}
	}

	if err := cfg.applyEnv(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func defaultConfig() *Config {
	return &Config{
		App: AppConfig{
			Name:                  "issue-sync",
			Env:                   "development",
			Host:                  "0.0.0.0",
			Port:                  "8080",
			Version:               "dev",
			RequestTimeoutSeconds: 30,
		},
		Postgres: PostgresConfig{
			MaxConns:       10,
			MinConns:       2,
			RunMigrations:  true,
			MigrationsDir:  "migrations",
			ConnMaxIdleSec: 30,
			ConnMaxLifeSec: 300,
		},
		Redis:  RedisConfig{Addr: "127.0.0.1:6379"},
		Logger: LoggerConfig{Level: "info"},
		Backend: BackendConfig{
			BaseURL:        "http://localhost:8080",
			TimeoutSeconds: 15,
		},
		Poller: PollerConfig{
			IntervalSeconds: 10,
			FlagClearMillis: 1500,
		},
		Enrichment: EnrichmentConfig{
			PoolSize:          8,
			CallTimeoutMillis: 5000,
			CacheTTLSeconds:   86400,
		},
		Geocoder: GeocoderConfig{
			BaseURL:        "https://nominatim.openstreetmap.org",
			UserAgent:      "issue-sync/1.0",
			AcceptLanguage: "en",
		},
		Media: MediaConfig{
			Endpoint:      "s3.ap-south-1.amazonaws.com",
			Region:        "ap-south-1",
			UseSSL:        true,
			ExpirySeconds: 3600,
		},
		Map: MapConfig{MinLat: 22.60, MaxLat: 22.83, MinLng: 75.75, MaxLng: 75.95},
	}
}

func (c *Config) applyEnv() error {
	c.App.Name = getEnv("APP_NAME", c.App.Name)
	c.App.Env = getEnv("APP_ENV", c.App.Env)
	c.App.Host = getEnv("APP_HOST", c.App.Host)
	c.App.Port = getEnv("APP_PORT", c.App.Port)
	c.App.Version = getEnv("APP_VERSION", c.App.Version)
	c.App.RequestTimeoutSeconds = getEnvAsInt("HTTP_REQUEST_TIMEOUT_SECONDS", c.App.RequestTimeoutSeconds)

	c.Postgres.DSN = getEnv("POSTGRES_DSN", c.Postgres.DSN)
	c.Postgres.MaxConns = int32(getEnvAsInt("POSTGRES_MAX_CONNS", int(c.Postgres.MaxConns)))
	c.Postgres.MinConns = int32(getEnvAsInt("POSTGRES_MIN_CONNS", int(c.Postgres.MinConns)))
	c.Postgres.RunMigrations = getEnvAsBool("POSTGRES_RUN_MIGRATIONS", c.Postgres.RunMigrations)
	c.Postgres.MigrationsDir = getEnv("POSTGRES_MIGRATIONS_DIR", c.Postgres.MigrationsDir)
	c.Postgres.ConnMaxIdleSec = int32(getEnvAsInt("POSTGRES_CONN_MAX_IDLE_SECONDS", int(c.Postgres.ConnMaxIdleSec)))
	c.Postgres.ConnMaxLifeSec = int32(getEnvAsInt("POSTGRES_CONN_MAX_LIFE_SECONDS", int(c.Postgres.ConnMaxLifeSec)))

	c.Redis.Addr = getEnv("REDIS_ADDR", c.Redis.Addr)
	c.Redis.Password = getEnv("REDIS_PASSWORD", c.Redis.Password)
	if raw := os.Getenv("REDIS_DB"); raw != "" {
		redisDB, err := strconv.Atoi(raw)
		if err != nil {
			return fmt.Errorf("invalid REDIS_DB: %w", err)
		}
		c.Redis.DB = redisDB
	}

	c.Logger.Level = getEnv("LOG_LEVEL", c.Logger.Level)
	c.Auth.JWTSecret = getEnv("AUTH_JWT_SECRET", c.Auth.JWTSecret)

	c.Backend.BaseURL = getEnv("BACKEND_BASE_URL", c.Backend.BaseURL)
	c.Backend.TimeoutSeconds = getEnvAsInt("BACKEND_TIMEOUT_SECONDS", c.Backend.TimeoutSeconds)

	c.Poller.IntervalSeconds = getEnvAsInt("POLL_INTERVAL_SECONDS", c.Poller.IntervalSeconds)
	c.Poller.FlagClearMillis = getEnvAsInt("POLL_FLAG_CLEAR_MILLIS", c.Poller.FlagClearMillis)

	c.Enrichment.PoolSize = getEnvAsInt("ENRICH_POOL_SIZE", c.Enrichment.PoolSize)
	c.Enrichment.CallTimeoutMillis = getEnvAsInt("ENRICH_CALL_TIMEOUT_MILLIS", c.Enrichment.CallTimeoutMillis)
	c.Enrichment.CacheTTLSeconds = getEnvAsInt("ENRICH_CACHE_TTL_SECONDS", c.Enrichment.CacheTTLSeconds)

	c.Geocoder.BaseURL = getEnv("GEOCODER_BASE_URL", c.Geocoder.BaseURL)
	c.Geocoder.UserAgent = getEnv("GEOCODER_USER_AGENT", c.Geocoder.UserAgent)
	c.Geocoder.AcceptLanguage = getEnv("GEOCODER_ACCEPT_LANGUAGE", c.Geocoder.AcceptLanguage)

	c.Media.Endpoint = getEnv("MEDIA_ENDPOINT", c.Media.Endpoint)
	c.Media.Region = getEnv("MEDIA_REGION", c.Media.Region)
	c.Media.Bucket = getEnv("MEDIA_BUCKET", c.Media.Bucket)
	c.Media.AccessKey = getEnv("MEDIA_ACCESS_KEY", c.Media.AccessKey)
	c.Media.SecretKey = getEnv("MEDIA_SECRET_KEY", c.Media.SecretKey)
	c.Media.UseSSL = getEnvAsBool("MEDIA_USE_SSL", c.Media.UseSSL)
	c.Media.ExpirySeconds = getEnvAsInt("MEDIA_EXPIRY_SECONDS", c.Media.ExpirySeconds)

	c.Store.MaxMissedCycles = getEnvAsInt("STORE_MAX_MISSED_CYCLES", c.Store.MaxMissedCycles)
	c.Notification.WebhookURL = getEnv("NOTIFY_WEBHOOK_URL", c.Notification.WebhookURL)

	if c.Enrichment.PoolSize <= 0 {
		log.Printf("config: ENRICH_POOL_SIZE must be positive, using 8")
		c.Enrichment.PoolSize = 8
	}
	return nil
}

// Addr returns the HTTP bind address.
func (a AppConfig) Addr() string {
	return fmt.Sprintf("%s:%s", a.Host, a.Port)
}

// RequestTimeout returns the configured request timeout duration.
func (a AppConfig) RequestTimeout() time.Duration {
	if a.RequestTimeoutSeconds <= 0 {
		return 0
	}
	return time.Duration(a.RequestTimeoutSeconds) * time.Second
}

// Timeout returns the backend HTTP timeout.
func (b BackendConfig) Timeout() time.Duration {
	return secondsOr(b.TimeoutSeconds, 15*time.Second)
}

// Interval returns the poll period.
func (p PollerConfig) Interval() time.Duration {
	return secondsOr(p.IntervalSeconds, 10*time.Second)
}

// FlagClearDelay returns how long freshly merged issues stay highlighted.
func (p PollerConfig) FlagClearDelay() time.Duration {
	if p.FlagClearMillis <= 0 {
		return 1500 * time.Millisecond
	}
	return time.Duration(p.FlagClearMillis) * time.Millisecond
}

// CallTimeout returns the per-lookup budget.
func (e EnrichmentConfig) CallTimeout() time.Duration {
	if e.CallTimeoutMillis <= 0 {
		return 5 * time.Second
	}
	return time.Duration(e.CallTimeoutMillis) * time.Millisecond
}

// CacheTTL returns how long lookup results stay cached.
func (e EnrichmentConfig) CacheTTL() time.Duration {
	return secondsOr(e.CacheTTLSeconds, 24*time.Hour)
}

// Expiry returns the signed URL lifetime.
func (m MediaConfig) Expiry() time.Duration {
	return secondsOr(m.ExpirySeconds, time.Hour)
}

// Enabled reports whether signed URLs can be produced.
func (m MediaConfig) Enabled() bool {
	return m.Bucket != "" && m.AccessKey != "" && m.SecretKey != ""
}

func secondsOr(seconds int, fallback time.Duration) time.Duration {
	if seconds <= 0 {
		return fallback
	}
	return time.Duration(seconds) * time.Second
}

func getEnv(key, fallback string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return fallback
}

func getEnvAsInt(key string, fallback int) int {
	val := os.Getenv(key)
	if val == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(val)
	if err != nil {
		return fallback
	}
	return parsed
}

func getEnvAsBool(key string, fallback bool) bool {
	val := os.Getenv(key)
	if val == "" {
		return fallback
	}
	parsed, err := strconv.ParseBool(val)
	if err != nil {
		return fallback
	}
	return parsed
}
