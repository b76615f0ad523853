package config

import (
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadConfig_Defaults(t *testing.T) {
	cfg, err := LoadConfig("", []string{"--auth.jwt_secret=s3cret"})
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Cache.TTL != 5*time.Second {
		t.Fatalf("cache ttl = %v, want 5s", cfg.Cache.TTL)
	}
	if cfg.Cache.SweepInterval != time.Second {
		t.Fatalf("sweep interval = %v, want 1s", cfg.Cache.SweepInterval)
	}
	if cfg.Cache.Timeout != 200*time.Millisecond {
		t.Fatalf("cache timeout = %v, want 200ms", cfg.Cache.Timeout)
	}
	if cfg.Store.Driver != "mongo" || cfg.Cache.Driver != "redis" {
		t.Fatalf("unexpected drivers: store=%s cache=%s", cfg.Store.Driver, cfg.Cache.Driver)
	}
	if cfg.LogLevel.Level() != slog.LevelInfo {
		t.Fatalf("log level = %v", cfg.LogLevel.Level())
	}
}

func TestLoadConfig_FileAndEnvPrecedence(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	body := []byte("auth:\n  jwt_secret: from-file\nlog:\n  level: debug\ncache:\n  driver: memory\n")
	if err := os.WriteFile(path, body, 0o600); err != nil {
		t.Fatal(err)
	}
	t.Setenv("IM_CACHE_DRIVER", "none")

	cfg, err := LoadConfig(path, nil)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Auth.JWTSecret != "from-file" {
		t.Fatalf("secret = %q", cfg.Auth.JWTSecret)
	}
	if cfg.Cache.Driver != "none" {
		t.Fatalf("env should win over file, got %q", cfg.Cache.Driver)
	}
	if cfg.LogLevel.Level() != slog.LevelDebug {
		t.Fatalf("log level = %v", cfg.LogLevel.Level())
	}
}

func TestLoadConfig_Invalid(t *testing.T) {
	cases := map[string][]string{
		"missing secret": nil,
		"bad store":      {"--auth.jwt_secret=x", "--store.driver=postgres"},
		"bad cache":      {"--auth.jwt_secret=x", "--cache.driver=memcached"},
		"zero ttl":       {"--auth.jwt_secret=x", "--cache.ttl=0s"},
	}
	for name, args := range cases {
		t.Run(name, func(t *testing.T) {
			if _, err := LoadConfig("", args); err == nil {
				t.Fatal("expected error")
			}
		})
	}
}
