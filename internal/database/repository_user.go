package database

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

// =====================================================
// USER CRUD OPERATIONS
// =====================================================

const userColumns = `id, email, password_hash, COALESCE(name, ''), is_admin, suspended, last_login_at, created_at, updated_at`

func scanUser(row pgx.Row) (*User, error) {
	user := &User{}
	err := row.Scan(
		&user.ID, &user.Email, &user.PasswordHash, &user.Name,
		&user.IsAdmin, &user.Suspended, &user.LastLoginAt,
		&user.CreatedAt, &user.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return user, nil
}

// CreateUser creates a new user
func (r *Repository) CreateUser(ctx context.Context, user *User) error {
	query := `
		INSERT INTO users (email, password_hash, name, is_admin)
		VALUES ($1, $2, $3, $4)
		RETURNING id, created_at, updated_at
	`

	err := r.db.Pool.QueryRow(ctx, query,
		user.Email, user.PasswordHash, user.Name, user.IsAdmin,
	).Scan(&user.ID, &user.CreatedAt, &user.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to create user: %w", err)
	}
	return nil
}

// CreateUserWithProfile inserts a user and its profile in one transaction
func (r *Repository) CreateUserWithProfile(ctx context.Context, user *User, profile *Profile) error {
	tx, err := r.db.Pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	err = tx.QueryRow(ctx, `
		INSERT INTO users (email, password_hash, name, is_admin)
		VALUES ($1, $2, $3, $4)
		RETURNING id, created_at, updated_at
	`, user.Email, user.PasswordHash, user.Name, user.IsAdmin).Scan(&user.ID, &user.CreatedAt, &user.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to create user: %w", err)
	}

	profile.UserID = user.ID
	if profile.KYCStatus == "" {
		profile.KYCStatus = KYCPending
	}
	err = tx.QueryRow(ctx, insertProfileQuery, profileArgs(profile)...).Scan(&profile.CreatedAt, &profile.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to create profile: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit user creation: %w", err)
	}
	return nil
}

// GetUserByID retrieves a user by ID. A malformed ID matches no user.
func (r *Repository) GetUserByID(ctx context.Context, userID string) (*User, error) {
	if _, err := uuid.Parse(userID); err != nil {
		return nil, nil
	}
	user, err := scanUser(r.db.Pool.QueryRow(ctx, `SELECT `+userColumns+` FROM users WHERE id = $1`, userID))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get user: %w", err)
	}
	return user, nil
}

// GetUserByEmail retrieves a user by email, case-insensitively
func (r *Repository) GetUserByEmail(ctx context.Context, email string) (*User, error) {
	user, err := scanUser(r.db.Pool.QueryRow(ctx, `SELECT `+userColumns+` FROM users WHERE LOWER(email) = LOWER($1)`, email))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get user by email: %w", err)
	}
	return user, nil
}

// EmailExists checks whether an account already uses email
func (r *Repository) EmailExists(ctx context.Context, email string) (bool, error) {
	var exists bool
	err := r.db.Pool.QueryRow(ctx, `SELECT EXISTS(SELECT 1 FROM users WHERE LOWER(email) = LOWER($1))`, email).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("failed to check email: %w", err)
	}
	return exists, nil
}

// UpdateUserPassword updates a user's password hash
func (r *Repository) UpdateUserPassword(ctx context.Context, userID, passwordHash string) error {
	query := `UPDATE users SET password_hash = $2, updated_at = CURRENT_TIMESTAMP WHERE id = $1`
	tag, err := r.db.Pool.Exec(ctx, query, userID, passwordHash)
	if err != nil {
		return fmt.Errorf("failed to update password: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// UpdateUserLastLogin stamps the last login time
func (r *Repository) UpdateUserLastLogin(ctx context.Context, userID string) error {
	query := `UPDATE users SET last_login_at = CURRENT_TIMESTAMP WHERE id = $1`
	if _, err := r.db.Pool.Exec(ctx, query, userID); err != nil {
		return fmt.Errorf("failed to update last login: %w", err)
	}
	return nil
}

// SetUserSuspended suspends or reactivates a user
func (r *Repository) SetUserSuspended(ctx context.Context, userID string, suspended bool) error {
	query := `UPDATE users SET suspended = $2, updated_at = CURRENT_TIMESTAMP WHERE id = $1`
	tag, err := r.db.Pool.Exec(ctx, query, userID, suspended)
	if err != nil {
		return fmt.Errorf("failed to update suspension: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// =====================================================
// SESSION CRUD OPERATIONS
// =====================================================

// CreateSession creates a new user session
func (r *Repository) CreateSession(ctx context.Context, session *UserSession) error {
	query := `
		INSERT INTO user_sessions (user_id, refresh_token_hash, device_info, ip_address, user_agent, expires_at)
		VALUES ($1, $2, $3, $4::VARCHAR, $5, $6)
		RETURNING id, created_at, last_used_at
	`

	var ipAddress interface{}
	if session.IPAddress != "" {
		ipAddress = session.IPAddress
	}

	err := r.db.Pool.QueryRow(ctx, query,
		session.UserID,
		session.RefreshTokenHash,
		session.DeviceInfo,
		ipAddress,
		session.UserAgent,
		session.ExpiresAt,
	).Scan(&session.ID, &session.CreatedAt, &session.LastUsedAt)
	if err != nil {
		return fmt.Errorf("failed to create session: %w", err)
	}
	return nil
}

// GetSessionByTokenHash retrieves a live session by refresh token hash
func (r *Repository) GetSessionByTokenHash(ctx context.Context, tokenHash string) (*UserSession, error) {
	query := `
		SELECT id, user_id, refresh_token_hash, COALESCE(device_info, ''), COALESCE(ip_address, ''),
			COALESCE(user_agent, ''), expires_at, revoked_at, created_at, last_used_at
		FROM user_sessions
		WHERE refresh_token_hash = $1 AND revoked_at IS NULL AND expires_at > CURRENT_TIMESTAMP
	`

	session := &UserSession{}
	err := r.db.Pool.QueryRow(ctx, query, tokenHash).Scan(
		&session.ID, &session.UserID, &session.RefreshTokenHash,
		&session.DeviceInfo, &session.IPAddress, &session.UserAgent,
		&session.ExpiresAt, &session.RevokedAt, &session.CreatedAt, &session.LastUsedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get session: %w", err)
	}
	return session, nil
}

// UpdateSessionLastUsed updates the last_used_at timestamp
func (r *Repository) UpdateSessionLastUsed(ctx context.Context, sessionID string) error {
	query := `UPDATE user_sessions SET last_used_at = CURRENT_TIMESTAMP WHERE id = $1`
	if _, err := r.db.Pool.Exec(ctx, query, sessionID); err != nil {
		return fmt.Errorf("failed to update session: %w", err)
	}
	return nil
}

// RevokeSession revokes a session
func (r *Repository) RevokeSession(ctx context.Context, sessionID string) error {
	query := `UPDATE user_sessions SET revoked_at = CURRENT_TIMESTAMP WHERE id = $1`
	if _, err := r.db.Pool.Exec(ctx, query, sessionID); err != nil {
		return fmt.Errorf("failed to revoke session: %w", err)
	}
	return nil
}

// RevokeAllUserSessions revokes all sessions for a user
func (r *Repository) RevokeAllUserSessions(ctx context.Context, userID string) error {
	query := `UPDATE user_sessions SET revoked_at = CURRENT_TIMESTAMP WHERE user_id = $1 AND revoked_at IS NULL`
	if _, err := r.db.Pool.Exec(ctx, query, userID); err != nil {
		return fmt.Errorf("failed to revoke all sessions: %w", err)
	}
	return nil
}

// PruneUserSessions revokes all but the newest keep live sessions of a user
func (r *Repository) PruneUserSessions(ctx context.Context, userID string, keep int) (int64, error) {
	query := `
		UPDATE user_sessions SET revoked_at = CURRENT_TIMESTAMP
		WHERE id IN (
			SELECT id FROM user_sessions
			WHERE user_id = $1 AND revoked_at IS NULL
			ORDER BY created_at DESC
			OFFSET $2
		)
	`
	tag, err := r.db.Pool.Exec(ctx, query, userID, keep)
	if err != nil {
		return 0, fmt.Errorf("failed to prune sessions: %w", err)
	}
	return tag.RowsAffected(), nil
}

// DeleteExpiredSessions removes expired and revoked sessions older than the given age
func (r *Repository) DeleteExpiredSessions(ctx context.Context, revokedOlderThan time.Duration) (int64, error) {
	query := `
		DELETE FROM user_sessions
		WHERE expires_at < CURRENT_TIMESTAMP
		   OR (revoked_at IS NOT NULL AND revoked_at < $1)
	`
	tag, err := r.db.Pool.Exec(ctx, query, time.Now().Add(-revokedOlderThan))
	if err != nil {
		return 0, fmt.Errorf("failed to delete expired sessions: %w", err)
	}
	return tag.RowsAffected(), nil
}
