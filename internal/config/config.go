// File: internal/config/config.go
package config

import (
	"errors"
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

type RuntimeConfig struct {
	Dev bool
}

type HTTPConfig struct {
	Addr           string        `yaml:"addr"`
	PublicBaseURL  string        `yaml:"public_base_url"` // origin the storefront API is reachable at
	AllowedOrigins []string      `yaml:"allowed_origins"` // SPA origins for CORS
	RequestTimeout time.Duration `yaml:"request_timeout"`
	SecureCookies  bool          `yaml:"secure_cookies"`
	SessionTTL     time.Duration `yaml:"session_ttl"`
}

type LogConfig struct {
	Level    string `yaml:"level"`    // trace|debug|info|warn|error
	Format   string `yaml:"format"`   // json|console
	Sampling bool   `yaml:"sampling"` // enable sampling in prod
}

type DatabaseConfig struct {
	URL          string `yaml:"url"` // empty in dev mode selects the in-memory store
	MaxConns     int32  `yaml:"max_conns"`
	RunMigration bool   `yaml:"run_migrations"`
}

type RedisConfig struct {
	URL      string        `yaml:"url"`
	Password string        `yaml:"password"`
	DB       int           `yaml:"db"`
	TTL      time.Duration `yaml:"ttl"` // document cache entries
}

type AuthConfig struct {
	JWTSecret  string `yaml:"jwt_secret"`
	CookieName string `yaml:"cookie_name"`
}

type AdminConfig struct {
	Username     string        `yaml:"username"`
	PasswordHash string        `yaml:"password_hash"` // bcrypt
	JWTSecret    string        `yaml:"jwt_secret"`
	SessionTTL   time.Duration `yaml:"session_ttl"`
}

type PaymentConfig struct {
	Pesapal struct {
		ConsumerKey       string        `yaml:"consumer_key"`
		ConsumerSecret    string        `yaml:"consumer_secret"`
		Environment       string        `yaml:"environment"` // sandbox|production
		BaseURL           string        `yaml:"base_url"`
		Timeout           time.Duration `yaml:"timeout"`
		RequestsPerSecond float64       `yaml:"requests_per_second"`
	} `yaml:"pesapal"`
}

type CheckoutConfig struct {
	Brand         string        `yaml:"brand"`
	CallbackPath  string        `yaml:"callback_path"`
	RedirectDelay time.Duration `yaml:"redirect_delay"`
	PendingTTL    time.Duration `yaml:"pending_ttl"`
}

type CallbackConfig struct {
	SettleDelay time.Duration `yaml:"settle_delay"`
	ClaimTTL    time.Duration `yaml:"claim_ttl"`
	ResultTTL   time.Duration `yaml:"result_ttl"`
}

type DownloadConfig struct {
	RateLimit  int           `yaml:"rate_limit"` // grants per user per window
	RateWindow time.Duration `yaml:"rate_window"`
}

type SchedulerConfig struct {
	StatsInterval time.Duration `yaml:"stats_interval"`
}

type SentryConfig struct {
	DSN         string  `yaml:"dsn"`
	Environment string  `yaml:"environment"`
	SampleRate  float64 `yaml:"sample_rate"`
}

type SecurityConfig struct {
	EncryptionKey string `yaml:"encryption_key"`
}

type Config struct {
	HTTP      HTTPConfig      `yaml:"http"`
	Log       LogConfig       `yaml:"log"`
	Database  DatabaseConfig  `yaml:"database"`
	Redis     RedisConfig     `yaml:"redis"`
	Auth      AuthConfig      `yaml:"auth"`
	Admin     AdminConfig     `yaml:"admin"`
	Payment   PaymentConfig   `yaml:"payment"`
	Checkout  CheckoutConfig  `yaml:"checkout"`
	Callback  CallbackConfig  `yaml:"callback"`
	Download  DownloadConfig  `yaml:"download"`
	Scheduler SchedulerConfig `yaml:"scheduler"`
	Sentry    SentryConfig    `yaml:"sentry"`
	Security  SecurityConfig  `yaml:"security"`

	Runtime RuntimeConfig `yaml:"-"`
}

// LoadConfig parses the command line flags and loads the configuration.
func LoadConfig() (*Config, error) {
	var configPath string
	var envPath string
	var dev bool
	flag.StringVar(&configPath, "config", "config.yaml", "path to config yaml")
	flag.StringVar(&envPath, "env", ".env", "optional dotenv file")
	flag.BoolVar(&dev, "dev", false, "development mode")
	flag.Parse()

	// .env is optional; real environment variables win over it.
	if err := godotenv.Load(envPath); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("load env: %w", err)
	}
	return Load(configPath, dev)
}

// Load reads the YAML file at path, applies environment overrides and
// defaults, and validates the result.
func Load(path string, dev bool) (*Config, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	var cfg Config
	if err := yaml.Unmarshal(b, &cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	cfg.Runtime.Dev = dev

	applyEnv(&cfg)
	applyDefaults(&cfg)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func applyEnv(cfg *Config) {
	override := func(dst *string, key string) {
		if v, ok := os.LookupEnv(key); ok && v != "" {
			*dst = v
		}
	}
	override(&cfg.Payment.Pesapal.ConsumerKey, "PESAPAL_CONSUMER_KEY")
	override(&cfg.Payment.Pesapal.ConsumerSecret, "PESAPAL_CONSUMER_SECRET")
	override(&cfg.Payment.Pesapal.Environment, "PESAPAL_ENV")
	override(&cfg.Auth.JWTSecret, "AUTH_JWT_SECRET")
	override(&cfg.Admin.JWTSecret, "ADMIN_JWT_SECRET")
	override(&cfg.Admin.PasswordHash, "ADMIN_PASSWORD_HASH")
	override(&cfg.Database.URL, "DATABASE_URL")
	override(&cfg.Redis.URL, "REDIS_URL")
	override(&cfg.Sentry.DSN, "SENTRY_DSN")
	override(&cfg.Security.EncryptionKey, "ENCRYPTION_KEY")
}

func applyDefaults(cfg *Config) {
	if cfg.HTTP.Addr == "" {
		cfg.HTTP.Addr = ":8080"
	}
	if cfg.HTTP.PublicBaseURL == "" {
		cfg.HTTP.PublicBaseURL = "http://localhost:8080"
	}
	cfg.HTTP.PublicBaseURL = strings.TrimRight(cfg.HTTP.PublicBaseURL, "/")
	if cfg.HTTP.RequestTimeout <= 0 {
		cfg.HTTP.RequestTimeout = 30 * time.Second
	}
	if cfg.HTTP.SessionTTL <= 0 {
		cfg.HTTP.SessionTTL = 30 * 24 * time.Hour
	}
	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}
	if cfg.Log.Format == "" {
		cfg.Log.Format = "json"
	}
	if cfg.Database.MaxConns <= 0 {
		cfg.Database.MaxConns = 10
	}
	cfg.Redis.TTL = normalizeTTL(cfg.Redis.TTL)
	if cfg.Auth.CookieName == "" {
		cfg.Auth.CookieName = "auth_token"
	}
	if cfg.Admin.Username == "" {
		cfg.Admin.Username = "admin"
	}
	if cfg.Admin.SessionTTL <= 0 {
		cfg.Admin.SessionTTL = 30 * time.Minute
	}
	if cfg.Payment.Pesapal.Environment == "" {
		cfg.Payment.Pesapal.Environment = "sandbox"
	}
	if cfg.Payment.Pesapal.Timeout <= 0 {
		cfg.Payment.Pesapal.Timeout = 15 * time.Second
	}
	if cfg.Checkout.Brand == "" {
		cfg.Checkout.Brand = "Luo Ancient Movies"
	}
	if cfg.Checkout.CallbackPath == "" {
		cfg.Checkout.CallbackPath = "/payment/callback"
	}
	if cfg.Checkout.RedirectDelay <= 0 {
		cfg.Checkout.RedirectDelay = 500 * time.Millisecond
	}
	if cfg.Checkout.PendingTTL <= 0 {
		cfg.Checkout.PendingTTL = 24 * time.Hour
	}
	if cfg.Callback.SettleDelay < 0 {
		cfg.Callback.SettleDelay = 0
	}
	if cfg.Callback.ClaimTTL <= 0 {
		cfg.Callback.ClaimTTL = time.Minute
	}
	if cfg.Callback.ResultTTL <= 0 {
		cfg.Callback.ResultTTL = 24 * time.Hour
	}
	if cfg.Download.RateLimit <= 0 {
		cfg.Download.RateLimit = 20
	}
	if cfg.Download.RateWindow <= 0 {
		cfg.Download.RateWindow = time.Hour
	}
	if cfg.Scheduler.StatsInterval <= 0 {
		cfg.Scheduler.StatsInterval = 5 * time.Minute
	}
	if cfg.Sentry.SampleRate <= 0 {
		cfg.Sentry.SampleRate = 1
	}
}

// Validate fails fast on settings the service cannot start without.
// Dev mode runs without a database and with the in-memory gateway.
func (c *Config) Validate() error {
	if c.Redis.URL == "" {
		return errors.New("redis.url is required")
	}
	if c.Auth.JWTSecret == "" {
		return errors.New("auth.jwt_secret is required")
	}
	if n := len(c.Security.EncryptionKey); n != 16 && n != 24 && n != 32 {
		return errors.New("security.encryption_key must be 16, 24 or 32 bytes")
	}
	if env := c.Payment.Pesapal.Environment; env != "sandbox" && env != "production" {
		return fmt.Errorf("payment.pesapal.environment must be sandbox or production, got %q", env)
	}
	if c.Runtime.Dev {
		return nil
	}
	if c.Database.URL == "" {
		return errors.New("database.url is required")
	}
	if c.Payment.Pesapal.ConsumerKey == "" || c.Payment.Pesapal.ConsumerSecret == "" {
		return errors.New("payment.pesapal consumer key and secret are required")
	}
	if c.Admin.JWTSecret == "" || c.Admin.PasswordHash == "" {
		return errors.New("admin.jwt_secret and admin.password_hash are required")
	}
	return nil
}

// CallbackURL is the absolute URL the gateway redirects back to.
func (c *Config) CallbackURL() string {
	return c.HTTP.PublicBaseURL + c.Checkout.CallbackPath
}

func normalizeTTL(d time.Duration) time.Duration {
	if d <= 0 {
		return time.Hour
	}
	return d
}
