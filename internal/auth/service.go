package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"trade-dashboard/internal/database"
)

// Store is the persistence the auth service needs
type Store interface {
	GetUserByID(ctx context.Context, userID string) (*database.User, error)
	GetUserByEmail(ctx context.Context, email string) (*database.User, error)
	EmailExists(ctx context.Context, email string) (bool, error)
	CreateUserWithProfile(ctx context.Context, user *database.User, profile *database.Profile) error
	UpdateUserPassword(ctx context.Context, userID, passwordHash string) error
	UpdateUserLastLogin(ctx context.Context, userID string) error
	EnsureProfile(ctx context.Context, userID string, capital float64) error

	CreateSession(ctx context.Context, session *database.UserSession) error
	GetSessionByTokenHash(ctx context.Context, tokenHash string) (*database.UserSession, error)
	RevokeSession(ctx context.Context, sessionID string) error
	RevokeAllUserSessions(ctx context.Context, userID string) error
	PruneUserSessions(ctx context.Context, userID string, keep int) (int64, error)
	DeleteExpiredSessions(ctx context.Context, revokedOlderThan time.Duration) (int64, error)
}

// Service handles authentication operations
type Service struct {
	store           Store
	jwtManager      *JWTManager
	passwordManager *PasswordManager
	config          Config
	logger          zerolog.Logger
}

// NewService creates a new authentication service
func NewService(store Store, config Config, logger zerolog.Logger) (*Service, error) {
	if config.JWTSecret == "" {
		return nil, errors.New("JWT secret is required")
	}
	if config.AccessTokenDuration == 0 {
		config.AccessTokenDuration = 15 * time.Minute
	}
	if config.RefreshTokenDuration == 0 {
		config.RefreshTokenDuration = 7 * 24 * time.Hour
	}

	return &Service{
		store:           store,
		jwtManager:      NewJWTManager(config.JWTSecret, config.AccessTokenDuration, config.RefreshTokenDuration),
		passwordManager: NewPasswordManager(config.BcryptCost, config.MinPasswordLength),
		config:          config,
		logger:          logger.With().Str("component", "auth").Logger(),
	}, nil
}

// GetJWTManager returns the JWT manager for use in middleware
func (s *Service) GetJWTManager() *JWTManager {
	return s.jwtManager
}

// NewAccount describes a user created by an administrator
type NewAccount struct {
	Email    string
	Password string
	Name     string
	IsAdmin  bool
	Profile  database.Profile
}

// CreateAccount creates a user and its profile. There is no self-registration.
func (s *Service) CreateAccount(ctx context.Context, acct NewAccount) (*database.User, error) {
	email := strings.TrimSpace(strings.ToLower(acct.Email))
	exists, err := s.store.EmailExists(ctx, email)
	if err != nil {
		return nil, fmt.Errorf("failed to check email: %w", err)
	}
	if exists {
		return nil, ErrEmailExists
	}

	if err := s.passwordManager.ValidatePasswordStrength(acct.Password); err != nil {
		return nil, AuthError{Code: ErrWeakPassword.Code, Message: err.Error()}
	}
	hash, err := s.passwordManager.HashPassword(acct.Password)
	if err != nil {
		return nil, err
	}

	user := &database.User{
		Email:        email,
		PasswordHash: hash,
		Name:         acct.Name,
		IsAdmin:      acct.IsAdmin,
	}
	profile := acct.Profile
	if profile.ClientName == "" {
		profile.ClientName = acct.Name
	}
	if profile.Capital == 0 {
		profile.Capital = s.config.DefaultCapital
	}
	if err := s.store.CreateUserWithProfile(ctx, user, &profile); err != nil {
		return nil, fmt.Errorf("failed to create account: %w", err)
	}

	s.logger.Info().Str("user_id", user.ID).Bool("is_admin", user.IsAdmin).Msg("Account created")
	return user, nil
}

// Login authenticates a user and returns tokens.
// A profile is created on first login when the account has none.
func (s *Service) Login(ctx context.Context, req LoginRequest, meta SessionMeta) (*LoginResponse, error) {
	user, err := s.store.GetUserByEmail(ctx, strings.TrimSpace(req.Email))
	if err != nil {
		return nil, fmt.Errorf("failed to get user: %w", err)
	}
	if user == nil {
		s.logger.Debug().Str("email", req.Email).Msg("Login for unknown email")
		return nil, ErrInvalidCredentials
	}

	if !s.passwordManager.VerifyPassword(req.Password, user.PasswordHash) {
		s.logger.Warn().Str("user_id", user.ID).Msg("Password verification failed")
		return nil, ErrInvalidCredentials
	}
	if user.Suspended {
		return nil, ErrAccountSuspended
	}

	if err := s.store.EnsureProfile(ctx, user.ID, s.config.DefaultCapital); err != nil {
		s.logger.Warn().Err(err).Str("user_id", user.ID).Msg("Failed to ensure profile")
	}

	pair, err := s.openSession(ctx, user, meta)
	if err != nil {
		return nil, err
	}

	if err := s.store.UpdateUserLastLogin(ctx, user.ID); err != nil {
		s.logger.Warn().Err(err).Str("user_id", user.ID).Msg("Failed to update last login")
	}

	s.logger.Info().Str("user_id", user.ID).Str("ip", meta.IPAddress).Msg("User logged in")
	return &LoginResponse{
		User:         toUserResponse(user),
		AccessToken:  pair.AccessToken,
		RefreshToken: pair.RefreshToken,
		ExpiresIn:    pair.ExpiresIn,
	}, nil
}

func (s *Service) openSession(ctx context.Context, user *database.User, meta SessionMeta) (*TokenPair, error) {
	pair, err := s.jwtManager.GenerateTokenPair(claimsFor(user))
	if err != nil {
		return nil, fmt.Errorf("failed to generate tokens: %w", err)
	}

	session := &database.UserSession{
		UserID:           user.ID,
		RefreshTokenHash: HashRefreshToken(pair.RefreshToken),
		IPAddress:        meta.IPAddress,
		UserAgent:        meta.UserAgent,
		ExpiresAt:        time.Now().Add(s.jwtManager.GetRefreshTokenDuration()),
	}
	if err := s.store.CreateSession(ctx, session); err != nil {
		return nil, fmt.Errorf("failed to create session: %w", err)
	}

	if s.config.MaxSessionsPerUser > 0 {
		if n, err := s.store.PruneUserSessions(ctx, user.ID, s.config.MaxSessionsPerUser); err != nil {
			s.logger.Warn().Err(err).Str("user_id", user.ID).Msg("Failed to prune sessions")
		} else if n > 0 {
			s.logger.Debug().Int64("revoked", n).Str("user_id", user.ID).Msg("Pruned old sessions")
		}
	}
	return pair, nil
}

// RefreshTokens rotates a refresh token: the old session is revoked and a new one opened
func (s *Service) RefreshTokens(ctx context.Context, refreshToken string) (*TokenPair, error) {
	session, err := s.store.GetSessionByTokenHash(ctx, HashRefreshToken(refreshToken))
	if err != nil {
		return nil, fmt.Errorf("failed to get session: %w", err)
	}
	if session == nil {
		return nil, ErrInvalidToken
	}
	if session.RevokedAt != nil {
		return nil, ErrSessionRevoked
	}
	if session.ExpiresAt.Before(time.Now()) {
		return nil, ErrTokenExpired
	}

	user, err := s.store.GetUserByID(ctx, session.UserID)
	if err != nil {
		return nil, fmt.Errorf("failed to get user: %w", err)
	}
	if user == nil {
		return nil, ErrUserNotFound
	}
	if user.Suspended {
		return nil, ErrAccountSuspended
	}

	if err := s.store.RevokeSession(ctx, session.ID); err != nil {
		return nil, fmt.Errorf("failed to revoke old session: %w", err)
	}
	return s.openSession(ctx, user, SessionMeta{IPAddress: session.IPAddress, UserAgent: session.UserAgent})
}

// Logout revokes the session behind a refresh token. Unknown tokens are ignored.
func (s *Service) Logout(ctx context.Context, refreshToken string) error {
	session, err := s.store.GetSessionByTokenHash(ctx, HashRefreshToken(refreshToken))
	if err != nil {
		return fmt.Errorf("failed to get session: %w", err)
	}
	if session == nil {
		return nil
	}
	return s.store.RevokeSession(ctx, session.ID)
}

// LogoutAll revokes all sessions for a user
func (s *Service) LogoutAll(ctx context.Context, userID string) error {
	return s.store.RevokeAllUserSessions(ctx, userID)
}

// ChangePassword changes a user's password and revokes every session
func (s *Service) ChangePassword(ctx context.Context, userID string, req ChangePasswordRequest) error {
	user, err := s.store.GetUserByID(ctx, userID)
	if err != nil {
		return fmt.Errorf("failed to get user: %w", err)
	}
	if user == nil {
		return ErrUserNotFound
	}
	if !s.passwordManager.VerifyPassword(req.CurrentPassword, user.PasswordHash) {
		return ErrInvalidCredentials
	}
	if err := s.passwordManager.ValidatePasswordStrength(req.NewPassword); err != nil {
		return AuthError{Code: ErrWeakPassword.Code, Message: err.Error()}
	}

	hash, err := s.passwordManager.HashPassword(req.NewPassword)
	if err != nil {
		return err
	}
	if err := s.store.UpdateUserPassword(ctx, userID, hash); err != nil {
		return fmt.Errorf("failed to update password: %w", err)
	}
	if err := s.store.RevokeAllUserSessions(ctx, userID); err != nil {
		s.logger.Warn().Err(err).Str("user_id", userID).Msg("Failed to revoke sessions after password change")
	}
	return nil
}

// GetUser returns the public view of a user
func (s *Service) GetUser(ctx context.Context, userID string) (*UserResponse, error) {
	user, err := s.store.GetUserByID(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to get user: %w", err)
	}
	if user == nil {
		return nil, ErrUserNotFound
	}
	resp := toUserResponse(user)
	return &resp, nil
}

// CleanupExpiredSessions deletes expired sessions and sessions revoked more than a day ago
func (s *Service) CleanupExpiredSessions(ctx context.Context) error {
	n, err := s.store.DeleteExpiredSessions(ctx, 24*time.Hour)
	if err != nil {
		return err
	}
	s.logger.Info().Int64("deleted", n).Msg("Expired sessions cleaned up")
	return nil
}

func claimsFor(user *database.User) UserClaims {
	return UserClaims{UserID: user.ID, Email: user.Email, IsAdmin: user.IsAdmin}
}

func toUserResponse(user *database.User) UserResponse {
	return UserResponse{
		ID:          user.ID,
		Email:       user.Email,
		Name:        user.Name,
		IsAdmin:     user.IsAdmin,
		CreatedAt:   user.CreatedAt,
		LastLoginAt: user.LastLoginAt,
	}
}
