package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/elsanchez/imagine-gateway/internal/domain"
)

// clearGatewayEnv aísla cada caso del entorno del proceso
func clearGatewayEnv(t *testing.T) {
	t.Helper()
	keys := []string{
		"HOST", "PORT", "DEBUG", "API_KEY", "PROXY_URL", "HTTP_PROXY",
		"HTTPS_PROXY", "CF_CLEARANCE", "DEFAULT_IMAGE_COUNT",
		"DEFAULT_ASPECT_RATIO", "GENERATION_TIMEOUT", "SSO_FILE",
		"SSO_DAILY_LIMIT", "SSO_ROTATION_STRATEGY", "REDIS_ENABLED",
		"REDIS_URL", "DATA_DIR", "IMAGES_DIR", "BASE_URL", "ENV_FILE_PATH",
	}
	for _, k := range keys {
		t.Setenv(k, "")
		os.Unsetenv(k)
	}
}

func TestLoad_Defaults(t *testing.T) {
	clearGatewayEnv(t)
	t.Setenv("ENV_FILE_PATH", filepath.Join(t.TempDir(), "missing.env"))

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	if cfg.Port != 9563 {
		t.Errorf("Port = %d, want 9563", cfg.Port)
	}
	if cfg.DefaultImageCount != 4 {
		t.Errorf("DefaultImageCount = %d, want 4", cfg.DefaultImageCount)
	}
	if cfg.DefaultAspectRatio != "2:3" {
		t.Errorf("DefaultAspectRatio = %q, want 2:3", cfg.DefaultAspectRatio)
	}
	if cfg.GenerationTimeout != 120*time.Second {
		t.Errorf("GenerationTimeout = %s, want 120s", cfg.GenerationTimeout)
	}
	if cfg.RotationStrategy != domain.StrategyHybrid {
		t.Errorf("RotationStrategy = %q, want hybrid", cfg.RotationStrategy)
	}
	if cfg.DailyLimit != 10 {
		t.Errorf("DailyLimit = %d, want 10", cfg.DailyLimit)
	}
	if cfg.RedisEnabled {
		t.Error("RedisEnabled should default to false")
	}
}

func TestLoad_EnvOverridesDotenv(t *testing.T) {
	clearGatewayEnv(t)

	envFile := filepath.Join(t.TempDir(), ".env")
	if err := os.WriteFile(envFile, []byte("PORT=7000\nSSO_FILE=from-file.txt\n"), 0o600); err != nil {
		t.Fatalf("write env file: %v", err)
	}
	t.Setenv("ENV_FILE_PATH", envFile)
	t.Setenv("PORT", "8000")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	// El entorno del proceso gana; el .env rellena lo que falta
	if cfg.Port != 8000 {
		t.Errorf("Port = %d, want 8000 (process env wins)", cfg.Port)
	}
	if cfg.SSOFile != "from-file.txt" {
		t.Errorf("SSOFile = %q, want from-file.txt (from .env)", cfg.SSOFile)
	}
}

func TestLoad_InvalidStrategy(t *testing.T) {
	clearGatewayEnv(t)
	t.Setenv("ENV_FILE_PATH", filepath.Join(t.TempDir(), "missing.env"))
	t.Setenv("SSO_ROTATION_STRATEGY", "fastest")

	if _, err := Load(); err == nil {
		t.Fatal("expected error for unknown rotation strategy")
	}
}

func TestValidate(t *testing.T) {
	valid := func() *Config {
		return &Config{
			Port:              9563,
			DefaultImageCount: 4,
			GenerationTimeout: time.Minute,
			DailyLimit:        10,
			SSOFile:           "key.txt",
		}
	}

	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{"valid", func(*Config) {}, false},
		{"bad port", func(c *Config) { c.Port = 0 }, true},
		{"count too high", func(c *Config) { c.DefaultImageCount = 5 }, true},
		{"zero timeout", func(c *Config) { c.GenerationTimeout = 0 }, true},
		{"zero limit", func(c *Config) { c.DailyLimit = 0 }, true},
		{"empty sso file", func(c *Config) { c.SSOFile = "" }, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid()
			tt.mutate(cfg)
			err := cfg.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestPublicBaseURL(t *testing.T) {
	tests := []struct {
		name string
		cfg  Config
		want string
	}{
		{"explicit base url", Config{BaseURL: "https://img.example.com", Host: "0.0.0.0", Port: 9563}, "https://img.example.com"},
		{"wildcard host rewritten", Config{Host: "0.0.0.0", Port: 9563}, "http://127.0.0.1:9563"},
		{"concrete host kept", Config{Host: "10.0.0.5", Port: 8080}, "http://10.0.0.5:8080"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.cfg.PublicBaseURL(); got != tt.want {
				t.Errorf("PublicBaseURL() = %q, want %q", got, tt.want)
			}
		})
	}
}
