package config

import (
	"os"
	"path/filepath"
	"testing"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestLoadAppliesDefaults(t *testing.T) {
	path := writeConfig(t, "port: \"8080\"\n")
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.DataDir != "database_file" {
		t.Fatalf("unexpected data dir: %q", cfg.DataDir)
	}
	if cfg.StorageDriver != "file" {
		t.Fatalf("unexpected storage driver: %q", cfg.StorageDriver)
	}
	if cfg.AccessTokenExpireMinutes != 30 {
		t.Fatalf("unexpected token ttl: %d", cfg.AccessTokenExpireMinutes)
	}
	if cfg.JWTSecret != DefaultJWTSecret {
		t.Fatalf("expected fallback secret")
	}
}

func TestLoadRequiresPort(t *testing.T) {
	path := writeConfig(t, "logLevel: debug\n")
	if _, err := Load(path); err == nil {
		t.Fatalf("expected error for missing port")
	}
}

func TestLoadRejectsUnknownDriver(t *testing.T) {
	path := writeConfig(t, "port: \"8080\"\nstorageDriver: cassandra\n")
	if _, err := Load(path); err == nil {
		t.Fatalf("expected error for unknown storage driver")
	}
}

func TestLoadPostgresNeedsDSN(t *testing.T) {
	path := writeConfig(t, "port: \"8080\"\nstorageDriver: postgres\n")
	if _, err := Load(path); err == nil {
		t.Fatalf("expected error for postgres driver without databaseURL")
	}
}

func TestEnvOverrides(t *testing.T) {
	path := writeConfig(t, "port: \"8080\"\n")
	t.Setenv("SECRET_KEY", "from-env")
	t.Setenv("ACCESS_TOKEN_EXPIRE_MINUTES", "5")
	t.Setenv("REFBOOK_ALLOWED_ORIGINS", "http://a.example, http://b.example")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.JWTSecret != "from-env" {
		t.Fatalf("secret override not applied")
	}
	if cfg.AccessTokenExpireMinutes != 5 {
		t.Fatalf("ttl override not applied: %d", cfg.AccessTokenExpireMinutes)
	}
	if len(cfg.AllowedOrigins) != 2 || cfg.AllowedOrigins[1] != "http://b.example" {
		t.Fatalf("origins override not applied: %v", cfg.AllowedOrigins)
	}
}
