package config

import (
	"testing"
	"time"
)

func TestLoadDetectsDriver(t *testing.T) {
	tests := []struct {
		name       string
		env        map[string]string
		wantDriver string
		wantDSN    string
	}{
		{name: "default sqlite", wantDriver: "sqlite", wantDSN: defaultSQLiteDSN},
		{
			name:       "postgres dsn",
			env:        map[string]string{"DATABASE_DSN": "postgres://app@db/groups"},
			wantDriver: "postgres",
			wantDSN:    "postgres://app@db/groups",
		},
		{
			name:       "postgres from parts",
			env:        map[string]string{"POSTGRES_HOST": "db", "POSTGRES_USER": "app", "POSTGRES_DB": "groups"},
			wantDriver: "postgres",
			wantDSN:    "postgres://app@db:5432/groups?sslmode=disable",
		},
		{name: "memory", env: map[string]string{"DB_DRIVER": "memory"}, wantDriver: "memory"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			for _, key := range []string{"DATABASE_DSN", "DB_DRIVER", "POSTGRES_HOST", "POSTGRES_USER", "POSTGRES_DB"} {
				t.Setenv(key, "")
			}
			for k, v := range tt.env {
				t.Setenv(k, v)
			}
			cfg := Load()
			if cfg.DBDriver != tt.wantDriver || cfg.DatabaseDSN != tt.wantDSN {
				t.Fatalf("got driver=%q dsn=%q", cfg.DBDriver, cfg.DatabaseDSN)
			}
		})
	}
}

func TestLoadParsesTypedSettings(t *testing.T) {
	t.Setenv("BCRYPT_COST", "12")
	t.Setenv("RELAY_INTERVAL", "250ms")
	t.Setenv("PASSWORD_GROUPS_REQUIRE_ACCOUNT", "true")
	t.Setenv("CORS_ORIGINS", "https://a.example, https://b.example,")
	t.Setenv("PUBLIC_BASE_URL", "https://groups.example/")

	cfg := Load()
	if cfg.BcryptCost != 12 || cfg.RelayInterval != 250*time.Millisecond || !cfg.RequireAccountForLocked {
		t.Fatalf("unexpected typed settings: %+v", cfg)
	}
	if len(cfg.CORSOrigins) != 2 || cfg.CORSOrigins[1] != "https://b.example" {
		t.Fatalf("unexpected origins: %v", cfg.CORSOrigins)
	}
	if cfg.PublicBaseURL != "https://groups.example" {
		t.Fatalf("trailing slash should be trimmed, got %q", cfg.PublicBaseURL)
	}

	t.Setenv("RELAY_INTERVAL", "soon")
	t.Setenv("BCRYPT_COST", "high")
	cfg = Load()
	if cfg.RelayInterval != 5*time.Second || cfg.BcryptCost != 0 {
		t.Fatalf("invalid values should fall back to defaults: %s %d", cfg.RelayInterval, cfg.BcryptCost)
	}
}

func TestValidate(t *testing.T) {
	ok := AppConfig{HTTPPort: "8080", DBDriver: "memory", JWTSecret: "s"}
	if err := ok.Validate(); err != nil {
		t.Fatalf("valid config rejected: %v", err)
	}
	bad := []AppConfig{
		{DBDriver: "memory", JWTSecret: "s"},
		{HTTPPort: "8080", DBDriver: "mysql", JWTSecret: "s"},
		{HTTPPort: "8080", DBDriver: "sqlite", JWTSecret: "s"},
		{HTTPPort: "8080", DBDriver: "memory"},
	}
	for i, cfg := range bad {
		if err := cfg.Validate(); err == nil {
			t.Fatalf("case %d: expected error", i)
		}
	}
}

func TestStorageFallsBackToMinioVars(t *testing.T) {
	t.Setenv("STORAGE_ENDPOINT", "")
	t.Setenv("MINIO_ENDPOINT", "minio:9000")
	t.Setenv("STORAGE_BUCKET", "avatars")
	t.Setenv("MINIO_BUCKET", "ignored")
	t.Setenv("MINIO_USE_SSL", "true")
	t.Setenv("STORAGE_ACCESS_KEY", "")
	t.Setenv("MINIO_ACCESS_KEY", "")

	s := Load().Storage
	if s.Endpoint != "minio:9000" || s.Bucket != "avatars" || !s.UseSSL {
		t.Fatalf("unexpected storage config %+v", s)
	}
	if s.Enabled() {
		t.Fatalf("storage without credentials must be disabled")
	}
}
