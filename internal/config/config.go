package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
	"golang.org/x/crypto/bcrypt"
)

const (
	// DevAccessSecret and DevRefreshSecret are only acceptable outside production.
	DevAccessSecret  = "dev-access-secret-change-me"
	DevRefreshSecret = "dev-refresh-secret-change-me"

	envProduction = "production"
)

// Config captures application runtime configuration.
type Config struct {
	App         AppConfig         `koanf:"app"`
	Server      ServerConfig      `koanf:"server"`
	Database    DatabaseConfig    `koanf:"database"`
	Redis       RedisConfig       `koanf:"redis"`
	Log         LogConfig         `koanf:"log"`
	JWT         JWTConfig         `koanf:"jwt"`
	Hashing     HashingConfig     `koanf:"hashing"`
	Lockout     LockoutConfig     `koanf:"lockout"`
	PinLockout  LockoutConfig     `koanf:"pin_lockout"`
	RateLimit   RateLimitConfig   `koanf:"rate_limit"`
	Referral    ReferralConfig    `koanf:"referral"`
	Idempotency IdempotencyConfig `koanf:"idempotency"`
}

type AppConfig struct {
	Name        string `koanf:"name"`
	Environment string `koanf:"environment"`
}

type ServerConfig struct {
	Port            string        `koanf:"port"`
	ShutdownTimeout time.Duration `koanf:"shutdown_timeout"`
}

// DatabaseConfig selects the store backend: Postgres when URL is set,
// otherwise SQLite when SQLitePath is set, otherwise in-memory.
type DatabaseConfig struct {
	URL             string        `koanf:"url"`
	SQLitePath      string        `koanf:"sqlite_path"`
	MaxConns        int32         `koanf:"max_conns"`
	MinConns        int32         `koanf:"min_conns"`
	MaxConnLifetime time.Duration `koanf:"max_conn_lifetime"`
	ConnectTimeout  time.Duration `koanf:"connect_timeout"`
}

type RedisConfig struct {
	URL         string        `koanf:"url"`
	PoolSize    int           `koanf:"pool_size"`
	DialTimeout time.Duration `koanf:"dial_timeout"`
}

type LogConfig struct {
	Level  string `koanf:"level"`
	Format string `koanf:"format"`
}

type JWTConfig struct {
	AccessSecret  string        `koanf:"access_secret"`
	RefreshSecret string        `koanf:"refresh_secret"`
	AccessTTL     time.Duration `koanf:"access_ttl"`
	RefreshTTL    time.Duration `koanf:"refresh_ttl"`
}

type HashingConfig struct {
	PasswordCost int `koanf:"password_cost"`
	PinCost      int `koanf:"pin_cost"`
}

type LockoutConfig struct {
	MaxAttempts int           `koanf:"max_attempts"`
	Duration    time.Duration `koanf:"duration"`
}

type RateLimitConfig struct {
	LoginPerMinute int `koanf:"login_per_minute"`
}

type ReferralConfig struct {
	ClaimWindow      time.Duration `koanf:"claim_window"`
	StrictInvitation bool          `koanf:"strict_invitation"`
}

type IdempotencyConfig struct {
	TTL time.Duration `koanf:"ttl"`
}

// Load layers defaults, the optional YAML file at configPath and the
// environment, then validates the result.
func Load(configPath string) (Config, error) {
	k := koanf.New(".")

	if err := loadDefaults(k); err != nil {
		return Config{}, fmt.Errorf("load defaults: %w", err)
	}

	if configPath != "" {
		if err := k.Load(file.Provider(configPath), yaml.Parser()); err != nil {
			return Config{}, fmt.Errorf("load config file: %w", err)
		}
	}

	if err := k.Load(env.Provider("", ".", envKeyReplacer), nil); err != nil {
		return Config{}, fmt.Errorf("load env vars: %w", err)
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return Config{}, fmt.Errorf("unmarshal config: %w", err)
	}
	cfg.Log.Level = strings.ToLower(cfg.Log.Level)

	if err := validate(cfg); err != nil {
		return Config{}, fmt.Errorf("validate config: %w", err)
	}
	return cfg, nil
}

func loadDefaults(k *koanf.Koanf) error {
	defaults := map[string]any{
		"app.name":        "CongoPay Accounts",
		"app.environment": "development",

		"server.port":             "8080",
		"server.shutdown_timeout": "10s",

		"database.max_conns":         10,
		"database.min_conns":         1,
		"database.max_conn_lifetime": "1h",
		"database.connect_timeout":   "5s",

		"redis.pool_size":    10,
		"redis.dial_timeout": "3s",

		"log.level":  "info",
		"log.format": "json",

		"jwt.access_secret":  DevAccessSecret,
		"jwt.refresh_secret": DevRefreshSecret,
		"jwt.access_ttl":     "12h",
		"jwt.refresh_ttl":    "24h",

		"hashing.password_cost": 12,
		"hashing.pin_cost":      10,

		"lockout.max_attempts":     3,
		"lockout.duration":         "15m",
		"pin_lockout.max_attempts": 3,
		"pin_lockout.duration":     "15m",

		"rate_limit.login_per_minute": 5,

		"referral.claim_window":      "168h",
		"referral.strict_invitation": false,

		"idempotency.ttl": "24h",
	}

	for key, value := range defaults {
		if err := k.Set(key, value); err != nil {
			return fmt.Errorf("set default %s: %w", key, err)
		}
	}
	return nil
}

var envKeyMap = map[string]string{
	"APP_NAME":                 "app.name",
	"APP_ENV":                  "app.environment",
	"PORT":                     "server.port",
	"SHUTDOWN_TIMEOUT":         "server.shutdown_timeout",
	"DATABASE_URL":             "database.url",
	"SQLITE_PATH":              "database.sqlite_path",
	"DB_MAX_CONNS":             "database.max_conns",
	"DB_MIN_CONNS":             "database.min_conns",
	"DB_MAX_CONN_LIFETIME":     "database.max_conn_lifetime",
	"DB_CONNECT_TIMEOUT":       "database.connect_timeout",
	"REDIS_URL":                "redis.url",
	"REDIS_POOL_SIZE":          "redis.pool_size",
	"REDIS_DIAL_TIMEOUT":       "redis.dial_timeout",
	"LOG_LEVEL":                "log.level",
	"LOG_FORMAT":               "log.format",
	"JWT_ACCESS_SECRET":        "jwt.access_secret",
	"JWT_REFRESH_SECRET":       "jwt.refresh_secret",
	"JWT_ACCESS_TTL":           "jwt.access_ttl",
	"JWT_REFRESH_TTL":          "jwt.refresh_ttl",
	"BCRYPT_PASSWORD_COST":     "hashing.password_cost",
	"BCRYPT_PIN_COST":          "hashing.pin_cost",
	"LOCKOUT_MAX_ATTEMPTS":     "lockout.max_attempts",
	"LOCKOUT_DURATION":         "lockout.duration",
	"PIN_LOCKOUT_MAX_ATTEMPTS": "pin_lockout.max_attempts",
	"PIN_LOCKOUT_DURATION":     "pin_lockout.duration",
	"LOGIN_RATE_PER_MINUTE":    "rate_limit.login_per_minute",
	"REFERRAL_CLAIM_WINDOW":    "referral.claim_window",
	"STRICT_INVITATION":        "referral.strict_invitation",
	"IDEMPOTENCY_TTL":          "idempotency.ttl",
}

func envKeyReplacer(s string) string {
	if mapped, ok := envKeyMap[s]; ok {
		return mapped
	}
	return ""
}

func validate(c Config) error {
	for name, cost := range map[string]int{
		"BCRYPT_PASSWORD_COST": c.Hashing.PasswordCost,
		"BCRYPT_PIN_COST":      c.Hashing.PinCost,
	} {
		if cost < bcrypt.MinCost || cost > bcrypt.MaxCost {
			return fmt.Errorf("%s must be within [%d, %d], got %d", name, bcrypt.MinCost, bcrypt.MaxCost, cost)
		}
	}

	if c.JWT.AccessSecret == "" || c.JWT.RefreshSecret == "" {
		return errors.New("JWT_ACCESS_SECRET and JWT_REFRESH_SECRET must be set")
	}
	if c.JWT.AccessSecret == c.JWT.RefreshSecret {
		return errors.New("JWT_ACCESS_SECRET and JWT_REFRESH_SECRET must differ")
	}
	if c.Database.MinConns < 0 || c.Database.MaxConns < 1 || c.Database.MinConns > c.Database.MaxConns {
		return errors.New("DB_MIN_CONNS must be within [0, DB_MAX_CONNS] and DB_MAX_CONNS positive")
	}
	if c.Lockout.MaxAttempts <= 0 || c.PinLockout.MaxAttempts <= 0 {
		return errors.New("lockout max attempts must be positive")
	}
	if c.Lockout.Duration <= 0 || c.PinLockout.Duration <= 0 {
		return errors.New("lockout duration must be positive")
	}

	if c.IsProduction() {
		if c.Database.URL == "" {
			return errors.New("DATABASE_URL must be set")
		}
		if c.Redis.URL == "" {
			return errors.New("REDIS_URL must be set")
		}
		if c.JWT.AccessSecret == DevAccessSecret || c.JWT.RefreshSecret == DevRefreshSecret {
			return errors.New("development JWT secrets are not allowed in production")
		}
	}
	return nil
}

// IsProduction reports whether the service runs with production guards.
func (c Config) IsProduction() bool {
	return c.App.Environment == envProduction
}

// Address returns the listen address in the format Fiber expects.
func (c Config) Address() string {
	if strings.HasPrefix(c.Server.Port, ":") {
		return c.Server.Port
	}
	return fmt.Sprintf(":%s", c.Server.Port)
}
