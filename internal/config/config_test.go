package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Address() != ":8080" {
		t.Fatalf("address = %q", cfg.Address())
	}
	if cfg.JWT.AccessTTL != 12*time.Hour || cfg.JWT.RefreshTTL != 24*time.Hour {
		t.Fatalf("unexpected ttls %v %v", cfg.JWT.AccessTTL, cfg.JWT.RefreshTTL)
	}
	if cfg.Lockout.MaxAttempts != 3 || cfg.Lockout.Duration != 15*time.Minute {
		t.Fatalf("unexpected lockout %+v", cfg.Lockout)
	}
	if cfg.Referral.ClaimWindow != 7*24*time.Hour {
		t.Fatalf("claim window = %v", cfg.Referral.ClaimWindow)
	}
	if cfg.IsProduction() {
		t.Fatal("default env must not be production")
	}
}

func TestLoadEnvOverridesFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	yaml := "server:\n  port: \"9000\"\nlog:\n  level: DEBUG\nlockout:\n  max_attempts: 5\n"
	if err := os.WriteFile(path, []byte(yaml), 0o600); err != nil {
		t.Fatalf("write: %v", err)
	}
	t.Setenv("PORT", ":7000")
	t.Setenv("LOCKOUT_DURATION", "30m")
	t.Setenv("STRICT_INVITATION", "true")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Address() != ":7000" {
		t.Fatalf("env should win over file, got %q", cfg.Address())
	}
	if cfg.Log.Level != "debug" {
		t.Fatalf("log level = %q", cfg.Log.Level)
	}
	if cfg.Lockout.MaxAttempts != 5 || cfg.Lockout.Duration != 30*time.Minute {
		t.Fatalf("lockout = %+v", cfg.Lockout)
	}
	if !cfg.Referral.StrictInvitation {
		t.Fatal("strict invitation not applied")
	}
}

func TestLoadPoolSettings(t *testing.T) {
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Database.MaxConns != 10 || cfg.Database.ConnectTimeout != 5*time.Second {
		t.Fatalf("unexpected database defaults %+v", cfg.Database)
	}

	t.Setenv("DB_MAX_CONNS", "25")
	t.Setenv("DB_MAX_CONN_LIFETIME", "30m")
	t.Setenv("REDIS_POOL_SIZE", "7")
	t.Setenv("REDIS_DIAL_TIMEOUT", "1s")
	cfg, err = Load("")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Database.MaxConns != 25 || cfg.Database.MaxConnLifetime != 30*time.Minute {
		t.Fatalf("unexpected database overrides %+v", cfg.Database)
	}
	if cfg.Redis.PoolSize != 7 || cfg.Redis.DialTimeout != time.Second {
		t.Fatalf("unexpected redis overrides %+v", cfg.Redis)
	}
}

func TestLoadRejects(t *testing.T) {
	cases := []struct {
		name string
		env  map[string]string
		want string
	}{
		{"cost too low", map[string]string{"BCRYPT_PIN_COST": "2"}, "BCRYPT_PIN_COST"},
		{"min conns above max", map[string]string{"DB_MAX_CONNS": "2", "DB_MIN_CONNS": "5"}, "DB_MIN_CONNS"},
		{"equal secrets", map[string]string{"JWT_ACCESS_SECRET": "same", "JWT_REFRESH_SECRET": "same"}, "must differ"},
		{"production without database", map[string]string{"APP_ENV": "production"}, "DATABASE_URL"},
		{"production with dev secrets", map[string]string{
			"APP_ENV":      "production",
			"DATABASE_URL": "postgres://localhost/accounts",
			"REDIS_URL":    "redis://localhost:6379/0",
		}, "development JWT secrets"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			for k, v := range tc.env {
				t.Setenv(k, v)
			}
			_, err := Load("")
			if err == nil || !strings.Contains(err.Error(), tc.want) {
				t.Fatalf("expected error containing %q, got %v", tc.want, err)
			}
		})
	}
}

func TestLoadProduction(t *testing.T) {
	t.Setenv("APP_ENV", "production")
	t.Setenv("DATABASE_URL", "postgres://localhost/accounts")
	t.Setenv("REDIS_URL", "redis://localhost:6379/0")
	t.Setenv("JWT_ACCESS_SECRET", "prod-access")
	t.Setenv("JWT_REFRESH_SECRET", "prod-refresh")

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if !cfg.IsProduction() {
		t.Fatal("expected production")
	}
}
