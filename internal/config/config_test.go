package config

import (
	"flag"
	"io"
	"os"
	"testing"
	"time"
)

func loadWithArgs(t *testing.T, args ...string) *Config {
	t.Helper()

	if len(args) == 0 {
		args = []string{"test"}
	}

	oldCommandLine := flag.CommandLine
	oldArgs := os.Args

	flag.CommandLine = flag.NewFlagSet(args[0], flag.ContinueOnError)
	flag.CommandLine.SetOutput(io.Discard)
	os.Args = args

	t.Cleanup(func() {
		flag.CommandLine = oldCommandLine
		os.Args = oldArgs
	})

	return Load()
}

func TestLoad_Defaults(t *testing.T) {
	cfg := loadWithArgs(t, "test")

	if cfg.Server.HTTPAddr != ":8080" {
		t.Errorf("HTTPAddr = %q, want :8080", cfg.Server.HTTPAddr)
	}
	if cfg.Database.Port != 5432 {
		t.Errorf("Database.Port = %d, want 5432", cfg.Database.Port)
	}
	if cfg.Cache.Backend != "memory" {
		t.Errorf("Cache.Backend = %q, want memory", cfg.Cache.Backend)
	}
	if cfg.Ingest.FetchTimeout != 30*time.Second {
		t.Errorf("FetchTimeout = %v, want 30s", cfg.Ingest.FetchTimeout)
	}
	if cfg.Auth.JWTIssuer != "feverd" {
		t.Errorf("JWTIssuer = %q, want feverd", cfg.Auth.JWTIssuer)
	}
}

func TestLoad_Flags(t *testing.T) {
	cfg := loadWithArgs(t, "test", "-http", ":9000", "-db-name", "fever_test", "-fetch-timeout", "5s")

	if cfg.Server.HTTPAddr != ":9000" {
		t.Errorf("HTTPAddr = %q, want :9000", cfg.Server.HTTPAddr)
	}
	if cfg.Database.Database != "fever_test" {
		t.Errorf("Database.Database = %q, want fever_test", cfg.Database.Database)
	}
	if cfg.Ingest.FetchTimeout != 5*time.Second {
		t.Errorf("FetchTimeout = %v, want 5s", cfg.Ingest.FetchTimeout)
	}
}

func TestLoad_EnvOverrides(t *testing.T) {
	t.Setenv("HTTP_ADDR", ":7070")
	t.Setenv("DB_PORT", "5433")
	t.Setenv("FETCH_TIMEOUT", "15s")
	t.Setenv("CACHE_BACKEND", "redis")

	cfg := loadWithArgs(t, "test")

	if cfg.Server.HTTPAddr != ":7070" {
		t.Errorf("HTTPAddr = %q, want :7070", cfg.Server.HTTPAddr)
	}
	if cfg.Database.Port != 5433 {
		t.Errorf("Database.Port = %d, want 5433", cfg.Database.Port)
	}
	if cfg.Ingest.FetchTimeout != 15*time.Second {
		t.Errorf("FetchTimeout = %v, want 15s", cfg.Ingest.FetchTimeout)
	}
	if cfg.Cache.Backend != "redis" {
		t.Errorf("Cache.Backend = %q, want redis", cfg.Cache.Backend)
	}
}

func TestLoad_EnvOverrides_InvalidValuesIgnored(t *testing.T) {
	t.Setenv("DB_PORT", "not-a-number")
	t.Setenv("FETCH_TIMEOUT", "soon")

	cfg := loadWithArgs(t, "test")

	if cfg.Database.Port != 5432 {
		t.Errorf("Database.Port = %d, want default 5432", cfg.Database.Port)
	}
	if cfg.Ingest.FetchTimeout != 30*time.Second {
		t.Errorf("FetchTimeout = %v, want default 30s", cfg.Ingest.FetchTimeout)
	}
}

func TestLoad_AuthTTLFromEnv(t *testing.T) {
	t.Setenv("AUTH_ACCESS_TOKEN_TTL", "1h")
	cfg := loadWithArgs(t, "test")
	if cfg.Auth.AccessTokenTTL != time.Hour {
		t.Errorf("AccessTokenTTL = %v, want 1h", cfg.Auth.AccessTokenTTL)
	}
}
