package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	ServerConfig    ServerConfig    `json:"server"`
	AuthConfig      AuthConfig      `json:"auth"`
	DatabaseConfig  DatabaseConfig  `json:"database"`
	RedisConfig     RedisConfig     `json:"redis"`
	VaultConfig     VaultConfig     `json:"vault"`
	StorageConfig   StorageConfig   `json:"storage"`
	LoggingConfig   LoggingConfig   `json:"logging"`
	DashboardConfig DashboardConfig `json:"dashboard"`
	AdminConfig     AdminConfig     `json:"admin"`
	SchedulerConfig SchedulerConfig `json:"scheduler"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level       string `json:"level"`
	Output      string `json:"output"`
	JSONFormat  bool   `json:"json_format"`
	IncludeFile bool   `json:"include_file"`
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Port            int    `json:"port"`
	Host            string `json:"host"`
	AllowedOrigins  string `json:"allowed_origins"`
	ReadTimeout     int    `json:"read_timeout"`     // Seconds
	WriteTimeout    int    `json:"write_timeout"`    // Seconds
	ShutdownTimeout int    `json:"shutdown_timeout"` // Seconds
	MaxUploadMB     int    `json:"max_upload_mb"`
	LoginRateLimit  int    `json:"login_rate_limit"` // Attempts per minute per IP
}

// AuthConfig holds authentication configuration
type AuthConfig struct {
	JWTSecret            string        `json:"jwt_secret"`
	AccessTokenDuration  time.Duration `json:"access_token_duration"`
	RefreshTokenDuration time.Duration `json:"refresh_token_duration"`
	MinPasswordLength    int           `json:"min_password_length"`
	MaxSessionsPerUser   int           `json:"max_sessions_per_user"`
}

// DatabaseConfig holds PostgreSQL connection settings
type DatabaseConfig struct {
	Host     string `json:"host"`
	Port     int    `json:"port"`
	User     string `json:"user"`
	Password string `json:"password"`
	Database string `json:"database"`
	SSLMode  string `json:"ssl_mode"`
	MaxConns int    `json:"max_conns"`
	MinConns int    `json:"min_conns"`
}

// RedisConfig holds Redis configuration for the dashboard cache
type RedisConfig struct {
	Enabled  bool          `json:"enabled"`
	Address  string        `json:"address"`
	Password string        `json:"password"`
	DB       int           `json:"db"`
	PoolSize int           `json:"pool_size"`
	TTL      time.Duration `json:"ttl"`
}

// VaultConfig holds HashiCorp Vault configuration
type VaultConfig struct {
	Enabled    bool   `json:"enabled"`
	Address    string `json:"address"`
	Token      string `json:"token"`
	MountPath  string `json:"mount_path"`
	SecretPath string `json:"secret_path"` // Path prefix for broker credentials
}

// StorageConfig selects and configures blob storage for KYC documents and avatars
type StorageConfig struct {
	Driver          string        `json:"driver"` // "s3" or "memory"
	Bucket          string        `json:"bucket"`
	Region          string        `json:"region"`
	Endpoint        string        `json:"endpoint"`
	AccessKeyID     string        `json:"access_key_id"`
	SecretAccessKey string        `json:"secret_access_key"`
	UsePathStyle    bool          `json:"use_path_style"`
	URLExpiry       time.Duration `json:"url_expiry"`
}

// DashboardConfig controls metric baselines and default history views
type DashboardConfig struct {
	// ROIBaseline is the capital each monthly ROI bar is measured against,
	// unless ROIUseUserCapital switches to the owning user's capital.
	ROIBaseline        float64 `json:"roi_baseline"`
	ROIUseUserCapital  bool    `json:"roi_use_user_capital"`
	AdminCapital       float64 `json:"admin_capital"`
	ClientDefaultView  string  `json:"client_default_view"`
	AdminDefaultView   string  `json:"admin_default_view"`
	DefaultUserCapital float64 `json:"default_user_capital"`
}

// AdminConfig seeds the first administrator
type AdminConfig struct {
	Email    string `json:"email"`
	Password string `json:"password"`
	Name     string `json:"name"`
}

// SchedulerConfig holds cron specs for background jobs
type SchedulerConfig struct {
	Enabled            bool   `json:"enabled"`
	SessionCleanupSpec string `json:"session_cleanup_spec"`
	HealthCheckSpec    string `json:"health_check_spec"`
}

// Load reads .env, then config.json, then applies environment overrides
func Load() (*Config, error) {
	return LoadFrom("config.json")
}

// LoadFrom is Load with an explicit config file path
func LoadFrom(filename string) (*Config, error) {
	// .env is optional
	_ = godotenv.Load()

	cfg, err := loadFromFile(filename)
	if err != nil {
		if !errors.Is(err, os.ErrNotExist) {
			return nil, err
		}
		cfg = &Config{}
	}

	applyEnvOverrides(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate rejects configurations the service cannot start with
func (c *Config) Validate() error {
	if c.AuthConfig.JWTSecret == "" {
		return errors.New("auth.jwt_secret (AUTH_JWT_SECRET) is required")
	}
	if c.DatabaseConfig.MaxConns <= 0 || c.DatabaseConfig.MinConns < 0 {
		return fmt.Errorf("invalid database pool size: max=%d min=%d", c.DatabaseConfig.MaxConns, c.DatabaseConfig.MinConns)
	}
	if c.DashboardConfig.ROIBaseline <= 0 && !c.DashboardConfig.ROIUseUserCapital {
		return fmt.Errorf("dashboard.roi_baseline must be positive: %v", c.DashboardConfig.ROIBaseline)
	}
	switch c.StorageConfig.Driver {
	case "memory":
	case "s3":
		if c.StorageConfig.Bucket == "" {
			return errors.New("storage.bucket is required for the s3 driver")
		}
	default:
		return fmt.Errorf("unknown storage driver %q", c.StorageConfig.Driver)
	}
	return nil
}

func applyEnvOverrides(cfg *Config) {
	// Logging config
	cfg.LoggingConfig.Level = getEnvOrDefault("LOG_LEVEL", orString(cfg.LoggingConfig.Level, "INFO"))
	cfg.LoggingConfig.Output = getEnvOrDefault("LOG_OUTPUT", orString(cfg.LoggingConfig.Output, "stdout"))
	cfg.LoggingConfig.JSONFormat = getEnvOrDefault("LOG_JSON", "true") == "true"
	cfg.LoggingConfig.IncludeFile = getEnvBoolOrDefault("LOG_INCLUDE_FILE", cfg.LoggingConfig.IncludeFile)

	// Server config
	cfg.ServerConfig.Port = getEnvIntOrDefault("WEB_PORT", orInt(cfg.ServerConfig.Port, 8080))
	cfg.ServerConfig.Host = getEnvOrDefault("WEB_HOST", orString(cfg.ServerConfig.Host, "0.0.0.0"))
	cfg.ServerConfig.AllowedOrigins = getEnvOrDefault("SERVER_ALLOWED_ORIGINS", orString(cfg.ServerConfig.AllowedOrigins, "*"))
	cfg.ServerConfig.ReadTimeout = getEnvIntOrDefault("SERVER_READ_TIMEOUT", orInt(cfg.ServerConfig.ReadTimeout, 30))
	cfg.ServerConfig.WriteTimeout = getEnvIntOrDefault("SERVER_WRITE_TIMEOUT", orInt(cfg.ServerConfig.WriteTimeout, 30))
	cfg.ServerConfig.ShutdownTimeout = getEnvIntOrDefault("SERVER_SHUTDOWN_TIMEOUT", orInt(cfg.ServerConfig.ShutdownTimeout, 10))
	cfg.ServerConfig.MaxUploadMB = getEnvIntOrDefault("SERVER_MAX_UPLOAD_MB", orInt(cfg.ServerConfig.MaxUploadMB, 10))
	cfg.ServerConfig.LoginRateLimit = getEnvIntOrDefault("SERVER_LOGIN_RATE_LIMIT", orInt(cfg.ServerConfig.LoginRateLimit, 10))

	// Auth config
	cfg.AuthConfig.JWTSecret = getEnvOrDefault("AUTH_JWT_SECRET", cfg.AuthConfig.JWTSecret)
	cfg.AuthConfig.AccessTokenDuration = getEnvDurationOrDefault("AUTH_ACCESS_TOKEN_DURATION", orDuration(cfg.AuthConfig.AccessTokenDuration, 15*time.Minute))
	cfg.AuthConfig.RefreshTokenDuration = getEnvDurationOrDefault("AUTH_REFRESH_TOKEN_DURATION", orDuration(cfg.AuthConfig.RefreshTokenDuration, 7*24*time.Hour))
	cfg.AuthConfig.MinPasswordLength = getEnvIntOrDefault("AUTH_MIN_PASSWORD_LENGTH", orInt(cfg.AuthConfig.MinPasswordLength, 8))
	cfg.AuthConfig.MaxSessionsPerUser = getEnvIntOrDefault("AUTH_MAX_SESSIONS_PER_USER", orInt(cfg.AuthConfig.MaxSessionsPerUser, 10))

	// Database config
	cfg.DatabaseConfig.Host = getEnvOrDefault("DB_HOST", orString(cfg.DatabaseConfig.Host, "localhost"))
	cfg.DatabaseConfig.Port = getEnvIntOrDefault("DB_PORT", orInt(cfg.DatabaseConfig.Port, 5432))
	cfg.DatabaseConfig.User = getEnvOrDefault("DB_USER", orString(cfg.DatabaseConfig.User, "dashboard"))
	cfg.DatabaseConfig.Password = getEnvOrDefault("DB_PASSWORD", cfg.DatabaseConfig.Password)
	cfg.DatabaseConfig.Database = getEnvOrDefault("DB_NAME", orString(cfg.DatabaseConfig.Database, "trade_dashboard"))
	cfg.DatabaseConfig.SSLMode = getEnvOrDefault("DB_SSLMODE", orString(cfg.DatabaseConfig.SSLMode, "disable"))
	cfg.DatabaseConfig.MaxConns = getEnvIntOrDefault("DB_MAX_CONNS", orInt(cfg.DatabaseConfig.MaxConns, 25))
	cfg.DatabaseConfig.MinConns = getEnvIntOrDefault("DB_MIN_CONNS", orInt(cfg.DatabaseConfig.MinConns, 5))

	// Redis config
	cfg.RedisConfig.Enabled = getEnvBoolOrDefault("REDIS_ENABLED", cfg.RedisConfig.Enabled)
	cfg.RedisConfig.Address = getEnvOrDefault("REDIS_ADDR", orString(cfg.RedisConfig.Address, "localhost:6379"))
	cfg.RedisConfig.Password = getEnvOrDefault("REDIS_PASSWORD", cfg.RedisConfig.Password)
	cfg.RedisConfig.DB = getEnvIntOrDefault("REDIS_DB", cfg.RedisConfig.DB)
	cfg.RedisConfig.PoolSize = getEnvIntOrDefault("REDIS_POOL_SIZE", orInt(cfg.RedisConfig.PoolSize, 10))
	cfg.RedisConfig.TTL = getEnvDurationOrDefault("REDIS_TTL", orDuration(cfg.RedisConfig.TTL, 5*time.Minute))

	// Vault config
	cfg.VaultConfig.Enabled = getEnvBoolOrDefault("VAULT_ENABLED", cfg.VaultConfig.Enabled)
	cfg.VaultConfig.Address = getEnvOrDefault("VAULT_ADDR", orString(cfg.VaultConfig.Address, "http://localhost:8200"))
	cfg.VaultConfig.Token = getEnvOrDefault("VAULT_TOKEN", cfg.VaultConfig.Token)
	cfg.VaultConfig.MountPath = getEnvOrDefault("VAULT_MOUNT_PATH", orString(cfg.VaultConfig.MountPath, "secret"))
	cfg.VaultConfig.SecretPath = getEnvOrDefault("VAULT_SECRET_PATH", orString(cfg.VaultConfig.SecretPath, "trade-dashboard/broker"))

	// Storage config
	cfg.StorageConfig.Driver = getEnvOrDefault("STORAGE_DRIVER", orString(cfg.StorageConfig.Driver, "memory"))
	cfg.StorageConfig.Bucket = getEnvOrDefault("STORAGE_BUCKET", cfg.StorageConfig.Bucket)
	cfg.StorageConfig.Region = getEnvOrDefault("STORAGE_REGION", orString(cfg.StorageConfig.Region, "us-east-1"))
	cfg.StorageConfig.Endpoint = getEnvOrDefault("STORAGE_ENDPOINT", cfg.StorageConfig.Endpoint)
	cfg.StorageConfig.AccessKeyID = getEnvOrDefault("STORAGE_ACCESS_KEY_ID", cfg.StorageConfig.AccessKeyID)
	cfg.StorageConfig.SecretAccessKey = getEnvOrDefault("STORAGE_SECRET_ACCESS_KEY", cfg.StorageConfig.SecretAccessKey)
	cfg.StorageConfig.UsePathStyle = getEnvBoolOrDefault("STORAGE_USE_PATH_STYLE", cfg.StorageConfig.UsePathStyle)
	cfg.StorageConfig.URLExpiry = getEnvDurationOrDefault("STORAGE_URL_EXPIRY", orDuration(cfg.StorageConfig.URLExpiry, 15*time.Minute))

	// Dashboard config
	cfg.DashboardConfig.ROIBaseline = getEnvFloatOrDefault("DASHBOARD_ROI_BASELINE", orFloat(cfg.DashboardConfig.ROIBaseline, 2000))
	cfg.DashboardConfig.ROIUseUserCapital = getEnvBoolOrDefault("DASHBOARD_ROI_USE_USER_CAPITAL", cfg.DashboardConfig.ROIUseUserCapital)
	cfg.DashboardConfig.AdminCapital = getEnvFloatOrDefault("DASHBOARD_ADMIN_CAPITAL", orFloat(cfg.DashboardConfig.AdminCapital, 2000))
	cfg.DashboardConfig.ClientDefaultView = getEnvOrDefault("DASHBOARD_CLIENT_DEFAULT_VIEW", orString(cfg.DashboardConfig.ClientDefaultView, "all"))
	cfg.DashboardConfig.AdminDefaultView = getEnvOrDefault("DASHBOARD_ADMIN_DEFAULT_VIEW", orString(cfg.DashboardConfig.AdminDefaultView, "all"))
	cfg.DashboardConfig.DefaultUserCapital = getEnvFloatOrDefault("DASHBOARD_DEFAULT_USER_CAPITAL", cfg.DashboardConfig.DefaultUserCapital)

	// Admin seed
	cfg.AdminConfig.Email = getEnvOrDefault("ADMIN_EMAIL", cfg.AdminConfig.Email)
	cfg.AdminConfig.Password = getEnvOrDefault("ADMIN_PASSWORD", cfg.AdminConfig.Password)
	cfg.AdminConfig.Name = getEnvOrDefault("ADMIN_NAME", orString(cfg.AdminConfig.Name, "Administrator"))

	// Scheduler config
	cfg.SchedulerConfig.Enabled = getEnvOrDefault("SCHEDULER_ENABLED", "true") == "true"
	cfg.SchedulerConfig.SessionCleanupSpec = getEnvOrDefault("SCHEDULER_SESSION_CLEANUP_SPEC", orString(cfg.SchedulerConfig.SessionCleanupSpec, "0 0 * * * *"))
	cfg.SchedulerConfig.HealthCheckSpec = getEnvOrDefault("SCHEDULER_HEALTH_CHECK_SPEC", orString(cfg.SchedulerConfig.HealthCheckSpec, "0 */5 * * * *"))
}

func loadFromFile(filename string) (*Config, error) {
	file, err := os.ReadFile(filename)
	if err != nil {
		return nil, fmt.Errorf("error reading config file: %w", err)
	}

	var config Config
	if err := json.Unmarshal(file, &config); err != nil {
		return nil, fmt.Errorf("error parsing config file: %w", err)
	}
	return &config, nil
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvBoolOrDefault(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return defaultValue
}

func getEnvIntOrDefault(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

func getEnvFloatOrDefault(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if floatVal, err := strconv.ParseFloat(value, 64); err == nil {
			return floatVal
		}
	}
	return defaultValue
}

func getEnvDurationOrDefault(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}

func orString(v, def string) string {
	if v == "" {
		return def
	}
	return v
}

func orInt(v, def int) int {
	if v == 0 {
		return def
	}
	return v
}

func orFloat(v, def float64) float64 {
	if v == 0 {
		return def
	}
	return v
}

func orDuration(v, def time.Duration) time.Duration {
	if v == 0 {
		return def
	}
	return v
}
