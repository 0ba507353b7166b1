package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

const testSecret = "0123456789abcdef0123456789abcdef"

// chdirTemp switches into a fresh temp directory for the duration of the test.
func chdirTemp(t *testing.T) string {
	t.Helper()
	tmpDir := t.TempDir()

	originalDir, err := os.Getwd()
	if err != nil {
		t.Fatalf("failed to get working directory: %v", err)
	}
	if err := os.Chdir(tmpDir); err != nil {
		t.Fatalf("failed to change directory: %v", err)
	}
	t.Cleanup(func() {
		os.Chdir(originalDir)
	})
	return tmpDir
}

func writeConfig(t *testing.T, dir, content string) {
	t.Helper()
	if err := os.WriteFile(filepath.Join(dir, ConfigFile), []byte(content), 0644); err != nil {
		t.Fatalf("failed to write test config: %v", err)
	}
}

func TestLoad_EnvOverridesYAML(t *testing.T) {
	dir := chdirTemp(t)
	writeConfig(t, dir, `
port: "3000"
env: "test"
database:
  host: "db.example.com"
  port: 5432
  user: "testuser"
  database: "testdb"
audit:
  retention_days: 90
`)

	os.Unsetenv("PGHOST")
	os.Unsetenv("BASE_URL")
	t.Setenv("JWT_SECRET", testSecret)
	t.Setenv("PORT", "4000")
	t.Setenv("ENVIRONMENT", "production")

	cfg, err := Load("test-version")
	if err != nil {
		t.Fatalf("Load() failed: %v", err)
	}

	if cfg.Port != "4000" {
		t.Errorf("expected Port=4000 (from env), got %s", cfg.Port)
	}
	if cfg.Env != "production" {
		t.Errorf("expected Env=production (from env), got %s", cfg.Env)
	}
	if cfg.Version != "test-version" {
		t.Errorf("expected Version=test-version, got %s", cfg.Version)
	}
	if cfg.BaseURL != "http://localhost:4000" {
		t.Errorf("expected BaseURL auto-derived from PORT, got %s", cfg.BaseURL)
	}
	if cfg.Database.Host != "db.example.com" {
		t.Errorf("expected Database.Host=db.example.com (from yaml), got %s", cfg.Database.Host)
	}
	if cfg.Audit.RetentionDays != 90 {
		t.Errorf("expected Audit.RetentionDays=90 (from yaml), got %d", cfg.Audit.RetentionDays)
	}
}

func TestLoad_Defaults(t *testing.T) {
	chdirTemp(t)
	t.Setenv("JWT_SECRET", testSecret)
	os.Unsetenv("BLOB_SIGNING_KEY")
	os.Unsetenv("JWT_ACCESS_TTL")
	os.Unsetenv("JWT_REFRESH_TTL")

	cfg, err := Load("dev")
	if err != nil {
		t.Fatalf("Load() failed without config.yaml: %v", err)
	}

	if cfg.Auth.AccessTokenTTL != 24*time.Hour {
		t.Errorf("expected access TTL 24h, got %v", cfg.Auth.AccessTokenTTL)
	}
	if cfg.Auth.RefreshTokenTTL != 7*24*time.Hour {
		t.Errorf("expected refresh TTL 168h, got %v", cfg.Auth.RefreshTokenTTL)
	}
	if cfg.Storage.MaxUploadBytes != 10*1024*1024 {
		t.Errorf("expected 10MiB upload limit, got %d", cfg.Storage.MaxUploadBytes)
	}
	if cfg.Storage.SigningKey != testSecret {
		t.Error("expected blob signing key to default to JWT secret")
	}
	if cfg.RateLimit.Requests != 100 || cfg.RateLimit.Window != 15*time.Minute {
		t.Errorf("unexpected rate limit defaults: %+v", cfg.RateLimit)
	}
	if cfg.Audit.RetentionDays != 365 {
		t.Errorf("expected 365 retention days, got %d", cfg.Audit.RetentionDays)
	}
}

func TestLoad_RequiresSecret(t *testing.T) {
	chdirTemp(t)
	t.Setenv("JWT_SECRET", "short")

	_, err := Load("dev")
	if err == nil || !strings.Contains(err.Error(), "JWT_SECRET") {
		t.Errorf("expected JWT_SECRET validation error, got %v", err)
	}
}

func TestLoad_DotEnv(t *testing.T) {
	dir := chdirTemp(t)
	if err := os.WriteFile(filepath.Join(dir, ".env"), []byte("JWT_SECRET="+testSecret+"\nCORS_ORIGINS=https://a.example, https://b.example\n"), 0644); err != nil {
		t.Fatalf("failed to write .env: %v", err)
	}
	os.Unsetenv("JWT_SECRET")
	os.Unsetenv("CORS_ORIGINS")
	t.Cleanup(func() {
		os.Unsetenv("JWT_SECRET")
		os.Unsetenv("CORS_ORIGINS")
	})

	cfg, err := Load("dev")
	if err != nil {
		t.Fatalf("Load() failed: %v", err)
	}

	origins := cfg.AllowedOrigins()
	if len(origins) != 2 || origins[1] != "https://b.example" {
		t.Errorf("unexpected origins: %v", origins)
	}
}

func TestDatabaseConfig_ConnectionString(t *testing.T) {
	c := DatabaseConfig{Host: "db", Port: 5433, User: "pv", Password: "p@ss word", Database: "plants", SSLMode: "require"}

	got := c.ConnectionString()
	want := "postgres://pv:p%40ss%20word@db:5433/plants?sslmode=require"
	if got != want {
		t.Errorf("expected %s, got %s", want, got)
	}
}
