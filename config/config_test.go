package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadFrom_DefaultsWithoutFile(t *testing.T) {
	t.Setenv("AUTH_JWT_SECRET", "test-secret")

	cfg, err := LoadFrom(filepath.Join(t.TempDir(), "missing.json"))
	require.NoError(t, err)

	assert.Equal(t, 8080, cfg.ServerConfig.Port)
	assert.Equal(t, 15*time.Minute, cfg.AuthConfig.AccessTokenDuration)
	assert.Equal(t, 2000.0, cfg.DashboardConfig.ROIBaseline)
	assert.Equal(t, 2000.0, cfg.DashboardConfig.AdminCapital)
	assert.Equal(t, "all", cfg.DashboardConfig.ClientDefaultView)
	assert.Equal(t, "all", cfg.DashboardConfig.AdminDefaultView)
	assert.Equal(t, "memory", cfg.StorageConfig.Driver)
	assert.Equal(t, 25, cfg.DatabaseConfig.MaxConns)
	assert.True(t, cfg.LoggingConfig.JSONFormat)
}

func TestLoadFrom_FileThenEnv(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	body := `{
		"auth": {"jwt_secret": "from-file"},
		"dashboard": {"roi_baseline": 5000, "admin_default_view": "today"},
		"server": {"port": 9000}
	}`
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	t.Setenv("WEB_PORT", "9100")

	cfg, err := LoadFrom(path)
	require.NoError(t, err)

	assert.Equal(t, "from-file", cfg.AuthConfig.JWTSecret)
	assert.Equal(t, 5000.0, cfg.DashboardConfig.ROIBaseline)
	assert.Equal(t, "today", cfg.DashboardConfig.AdminDefaultView)
	assert.Equal(t, 9100, cfg.ServerConfig.Port)
}

func TestLoadFrom_MalformedFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	require.NoError(t, os.WriteFile(path, []byte("{"), 0o600))

	_, err := LoadFrom(path)
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	base := func() *Config {
		return &Config{
			AuthConfig:      AuthConfig{JWTSecret: "s"},
			DatabaseConfig:  DatabaseConfig{MaxConns: 5, MinConns: 1},
			DashboardConfig: DashboardConfig{ROIBaseline: 2000},
			StorageConfig:   StorageConfig{Driver: "memory"},
		}
	}

	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{"valid", func(*Config) {}, false},
		{"missing secret", func(c *Config) { c.AuthConfig.JWTSecret = "" }, true},
		{"zero pool", func(c *Config) { c.DatabaseConfig.MaxConns = 0 }, true},
		{"zero baseline", func(c *Config) { c.DashboardConfig.ROIBaseline = 0 }, true},
		{"zero baseline with user capital", func(c *Config) {
			c.DashboardConfig.ROIBaseline = 0
			c.DashboardConfig.ROIUseUserCapital = true
		}, false},
		{"s3 without bucket", func(c *Config) { c.StorageConfig.Driver = "s3" }, true},
		{"unknown driver", func(c *Config) { c.StorageConfig.Driver = "ftp" }, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := base()
			tt.mutate(c)
			err := c.Validate()
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}
