package database

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"
)

// ErrNotFound is returned by updates that matched no row.
var ErrNotFound = errors.New("record not found")

// DB wraps the PostgreSQL connection pool
type DB struct {
	Pool   *pgxpool.Pool
	logger zerolog.Logger
}

// Config holds database configuration
type Config struct {
	Host     string
	Port     int
	User     string
	Password string
	Database string
	SSLMode  string
	MaxConns int32
	MinConns int32
}

// DSN renders the libpq connection string for cfg
func (c Config) DSN() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.Database, c.SSLMode,
	)
}

// NewDB creates a new database connection pool and verifies it with a ping
func NewDB(ctx context.Context, cfg Config, logger zerolog.Logger) (*DB, error) {
	return Open(ctx, cfg.DSN(), cfg.MaxConns, cfg.MinConns, logger)
}

// Open is NewDB for an already rendered connection string
func Open(ctx context.Context, dsn string, maxConns, minConns int32, logger zerolog.Logger) (*DB, error) {
	poolConfig, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("unable to parse database config: %w", err)
	}

	if maxConns <= 0 {
		maxConns = 25
	}
	poolConfig.MaxConns = maxConns
	poolConfig.MinConns = minConns
	poolConfig.MaxConnLifetime = time.Hour
	poolConfig.MaxConnIdleTime = 30 * time.Minute
	poolConfig.HealthCheckPeriod = time.Minute

	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("unable to create connection pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("unable to ping database: %w", err)
	}

	l := logger.With().Str("component", "database").Logger()
	l.Info().Str("database", poolConfig.ConnConfig.Database).Msg("Connected to PostgreSQL")

	return &DB{Pool: pool, logger: l}, nil
}

// Close closes the database connection
func (db *DB) Close() {
	if db.Pool != nil {
		db.Pool.Close()
		db.logger.Info().Msg("Database connection closed")
	}
}

// RunMigrations executes database migrations
func (db *DB) RunMigrations(ctx context.Context) error {
	db.logger.Info().Msg("Running database migrations")

	migrations := []string{
		`CREATE TABLE IF NOT EXISTS users (
			id UUID PRIMARY KEY DEFAULT gen_random_uuid(),
			email VARCHAR(255) NOT NULL UNIQUE,
			password_hash VARCHAR(255) NOT NULL,
			name VARCHAR(255),
			is_admin BOOLEAN DEFAULT FALSE,
			suspended BOOLEAN DEFAULT FALSE,
			last_login_at TIMESTAMP,
			created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
			updated_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
		)`,
		`CREATE INDEX IF NOT EXISTS idx_users_email ON users(email)`,

		// Refresh-token sessions
		`CREATE TABLE IF NOT EXISTS user_sessions (
			id UUID PRIMARY KEY DEFAULT gen_random_uuid(),
			user_id UUID NOT NULL REFERENCES users(id) ON DELETE CASCADE,
			refresh_token_hash VARCHAR(255) NOT NULL,
			device_info VARCHAR(500),
			ip_address VARCHAR(45),
			user_agent TEXT,
			expires_at TIMESTAMP NOT NULL,
			revoked_at TIMESTAMP,
			created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
			last_used_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
		)`,
		`CREATE INDEX IF NOT EXISTS idx_sessions_user ON user_sessions(user_id)`,
		`CREATE INDEX IF NOT EXISTS idx_sessions_token ON user_sessions(refresh_token_hash)`,
		`CREATE INDEX IF NOT EXISTS idx_sessions_expires ON user_sessions(expires_at)`,

		// Client profiles; broker and MT5 passwords live in the secret store
		`CREATE TABLE IF NOT EXISTS user_profiles (
			user_id UUID PRIMARY KEY REFERENCES users(id) ON DELETE CASCADE,
			client_name VARCHAR(255) DEFAULT '',
			mobile_number VARCHAR(32) DEFAULT '',
			dob VARCHAR(32) DEFAULT '',
			city VARCHAR(128) DEFAULT '',
			service_name VARCHAR(255) DEFAULT '',
			client_api_code VARCHAR(128) DEFAULT '',
			mt5_account_id VARCHAR(64) DEFAULT '',
			mt5_server VARCHAR(128) DEFAULT '',
			broker_email VARCHAR(255) DEFAULT '',
			broker_credentials_set BOOLEAN DEFAULT FALSE,
			is_2fa_enabled BOOLEAN DEFAULT FALSE,
			kyc_status VARCHAR(32) DEFAULT 'Pending',
			capital DOUBLE PRECISION DEFAULT 0,
			avatar_key VARCHAR(512) DEFAULT '',
			created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
			updated_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
			CONSTRAINT valid_kyc_status CHECK (kyc_status IN ('Pending', 'PendingVerification', 'Verified', 'Rejected'))
		)`,

		// Closed trades; trade_date is NULL when the source date was unparseable
		`CREATE TABLE IF NOT EXISTS trades (
			id UUID PRIMARY KEY DEFAULT gen_random_uuid(),
			user_id UUID NOT NULL REFERENCES users(id) ON DELETE CASCADE,
			trade_date DATE,
			raw_date VARCHAR(64) DEFAULT '',
			symbol VARCHAR(64) DEFAULT '',
			trade_type VARCHAR(4) DEFAULT '',
			quantity DOUBLE PRECISION DEFAULT 0,
			entry_price DOUBLE PRECISION,
			exit_price DOUBLE PRECISION,
			profit DOUBLE PRECISION NOT NULL DEFAULT 0,
			source VARCHAR(20) NOT NULL DEFAULT 'ledger',
			created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
		)`,
		`CREATE INDEX IF NOT EXISTS idx_trades_user_date ON trades(user_id, trade_date)`,

		// KYC document references; the files themselves are in blob storage
		`CREATE TABLE IF NOT EXISTS kyc_documents (
			user_id UUID NOT NULL REFERENCES users(id) ON DELETE CASCADE,
			side VARCHAR(10) NOT NULL,
			object_key VARCHAR(512) NOT NULL,
			content_type VARCHAR(128) DEFAULT '',
			size_bytes BIGINT DEFAULT 0,
			uploaded_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
			PRIMARY KEY (user_id, side),
			CONSTRAINT valid_kyc_side CHECK (side IN ('front', 'back'))
		)`,
	}

	for i, migration := range migrations {
		if _, err := db.Pool.Exec(ctx, migration); err != nil {
			return fmt.Errorf("migration %d failed: %w", i+1, err)
		}
	}

	db.logger.Info().Int("count", len(migrations)).Msg("Database migrations completed")
	return nil
}
