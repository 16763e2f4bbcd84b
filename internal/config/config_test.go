package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadDefaultsWithEnvSecret(t *testing.T) {
	t.Setenv("PTW_CONFIG", filepath.Join(t.TempDir(), "missing.yaml"))
	t.Setenv("JWT_SECRET", "env-secret")

	cfg, err := Load()
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Server.Port != 8080 {
		t.Errorf("default port = %d", cfg.Server.Port)
	}
	if cfg.Auth.JWTSecret != "env-secret" {
		t.Errorf("secret = %q", cfg.Auth.JWTSecret)
	}
	if cfg.Auth.TokenTTL != 24*time.Hour {
		t.Errorf("token ttl = %v", cfg.Auth.TokenTTL)
	}
}

func TestLoadRequiresSecret(t *testing.T) {
	t.Setenv("PTW_CONFIG", filepath.Join(t.TempDir(), "missing.yaml"))
	t.Setenv("JWT_SECRET", "")

	if _, err := Load(); err == nil {
		t.Fatal("expected error when no JWT secret is configured")
	}
}

func TestLoadFileWithOverrides(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	content := []byte(`
service:
  name: ptw-service
  environment: staging
server:
  port: 9090
database:
  host: db.internal
  port: 5433
  user: app
  password: pw
  database: permits
  ssl_mode: require
auth:
  jwt_secret: file-secret
`)
	if err := os.WriteFile(path, content, 0o600); err != nil {
		t.Fatal(err)
	}

	t.Setenv("PTW_CONFIG", path)
	t.Setenv("PORT", "7070")
	t.Setenv("JWT_SECRET", "")

	cfg, err := Load()
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Service.Environment != "staging" {
		t.Errorf("environment = %s", cfg.Service.Environment)
	}
	if cfg.Server.Port != 7070 {
		t.Errorf("env override lost: port = %d", cfg.Server.Port)
	}
	if cfg.Auth.JWTSecret != "file-secret" {
		t.Errorf("secret = %q", cfg.Auth.JWTSecret)
	}

	want := "postgres://app:pw@db.internal:5433/permits?sslmode=require"
	if dsn := cfg.Database.DSN(); dsn != want {
		t.Errorf("DSN = %s, want %s", dsn, want)
	}
}
