package auth

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
)

// Limiter decides whether a keyed request may proceed
type Limiter interface {
	Allow(key string) bool
}

// Handlers contains the auth HTTP handlers
type Handlers struct {
	service      *Service
	loginLimiter Limiter
}

// NewHandlers creates a new Handlers instance. loginLimiter may be nil.
func NewHandlers(service *Service, loginLimiter Limiter) *Handlers {
	return &Handlers{service: service, loginLimiter: loginLimiter}
}

// RegisterRoutes mounts the public auth routes on public and the session routes on protected
func (h *Handlers) RegisterRoutes(public, protected *gin.RouterGroup) {
	public.POST("/login", h.Login)
	public.POST("/refresh", h.Refresh)
	public.POST("/logout", h.Logout)

	protected.GET("/me", h.Me)
	protected.POST("/logout-all", h.LogoutAll)
	protected.POST("/change-password", h.ChangePassword)
}

// StatusFor maps an auth error to an HTTP status
func StatusFor(err error) int {
	var authErr AuthError
	if !errors.As(err, &authErr) {
		return http.StatusInternalServerError
	}
	switch authErr.Code {
	case ErrAccountSuspended.Code, ErrForbidden.Code:
		return http.StatusForbidden
	case ErrEmailExists.Code:
		return http.StatusConflict
	case ErrWeakPassword.Code:
		return http.StatusBadRequest
	case ErrUserNotFound.Code:
		return http.StatusNotFound
	case ErrRateLimited.Code:
		return http.StatusTooManyRequests
	default:
		return http.StatusUnauthorized
	}
}

func writeError(c *gin.Context, err error, fallback string) {
	var authErr AuthError
	if errors.As(err, &authErr) {
		c.JSON(StatusFor(err), gin.H{"error": authErr.Code, "message": authErr.Message})
		return
	}
	c.JSON(http.StatusInternalServerError, gin.H{"error": "INTERNAL_ERROR", "message": fallback})
}

func validationError(c *gin.Context, err error) {
	c.JSON(http.StatusBadRequest, gin.H{"error": "VALIDATION_ERROR", "message": err.Error()})
}

// Login handles user login
// POST /api/auth/login
func (h *Handlers) Login(c *gin.Context) {
	if h.loginLimiter != nil && !h.loginLimiter.Allow("login:"+c.ClientIP()) {
		writeError(c, ErrRateLimited, "")
		return
	}

	var req LoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		validationError(c, err)
		return
	}

	resp, err := h.service.Login(c.Request.Context(), req, SessionMeta{
		IPAddress: c.ClientIP(),
		UserAgent: c.GetHeader("User-Agent"),
	})
	if err != nil {
		if StatusFor(err) == http.StatusInternalServerError {
			h.service.logger.Error().Err(err).Msg("Login failed")
		}
		writeError(c, err, "failed to login")
		return
	}
	c.JSON(http.StatusOK, resp)
}

// Refresh handles token refresh
// POST /api/auth/refresh
func (h *Handlers) Refresh(c *gin.Context) {
	var req RefreshRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		validationError(c, err)
		return
	}

	pair, err := h.service.RefreshTokens(c.Request.Context(), req.RefreshToken)
	if err != nil {
		writeError(c, err, "failed to refresh tokens")
		return
	}
	c.JSON(http.StatusOK, pair)
}

// Logout handles user logout
// POST /api/auth/logout
func (h *Handlers) Logout(c *gin.Context) {
	var req RefreshRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		validationError(c, err)
		return
	}
	if err := h.service.Logout(c.Request.Context(), req.RefreshToken); err != nil {
		writeError(c, err, "failed to logout")
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "logged out"})
}

// LogoutAll revokes every session of the caller
// POST /api/auth/logout-all
func (h *Handlers) LogoutAll(c *gin.Context) {
	if err := h.service.LogoutAll(c.Request.Context(), GetUserID(c)); err != nil {
		writeError(c, err, "failed to logout")
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "all sessions revoked"})
}

// ChangePassword handles a password change
// POST /api/auth/change-password
func (h *Handlers) ChangePassword(c *gin.Context) {
	var req ChangePasswordRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		validationError(c, err)
		return
	}
	if err := h.service.ChangePassword(c.Request.Context(), GetUserID(c), req); err != nil {
		writeError(c, err, "failed to change password")
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "password changed, please log in again"})
}

// Me returns the current user
// GET /api/auth/me
func (h *Handlers) Me(c *gin.Context) {
	user, err := h.service.GetUser(c.Request.Context(), GetUserID(c))
	if err != nil {
		writeError(c, err, "failed to get user")
		return
	}
	c.JSON(http.StatusOK, user)
}
