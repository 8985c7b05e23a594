package api

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"trade-dashboard/config"
	"trade-dashboard/internal/admin"
	"trade-dashboard/internal/analytics"
	"trade-dashboard/internal/auth"
	"trade-dashboard/internal/dashboard"
	"trade-dashboard/internal/database"
	"trade-dashboard/internal/events"
	"trade-dashboard/internal/logging"
	"trade-dashboard/internal/profile"
	"trade-dashboard/internal/storage"
)

// RateLimiter provides simple in-memory sliding window rate limiting per key
type RateLimiter struct {
	requests map[string][]time.Time
	mu       sync.Mutex
	limit    int           // max requests
	window   time.Duration // time window
	now      func() time.Time
}

// NewRateLimiter creates a new rate limiter
func NewRateLimiter(limit int, window time.Duration) *RateLimiter {
	return &RateLimiter{
		requests: make(map[string][]time.Time),
		limit:    limit,
		window:   window,
		now:      time.Now,
	}
}

// Allow checks if a request is allowed for the given key
func (r *RateLimiter) Allow(key string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := r.now()
	windowStart := now.Add(-r.window)

	// Filter out old requests
	var recent []time.Time
	for _, t := range r.requests[key] {
		if t.After(windowStart) {
			recent = append(recent, t)
		}
	}

	if len(recent) >= r.limit {
		r.requests[key] = recent
		return false
	}

	r.requests[key] = append(recent, now)
	return true
}

// DashboardService computes overview cards, charts and history tables
type DashboardService interface {
	Overview(ctx context.Context, userID string) dashboard.View
	AdminOverview(ctx context.Context) dashboard.View
	History(ctx context.Context, userID string, q dashboard.HistoryQuery) dashboard.History
	AdminHistory(ctx context.Context, q dashboard.HistoryQuery) dashboard.History
	PLChart(ctx context.Context, userID string) ([]byte, error)
	ROIChart(ctx context.Context, userID string) ([]byte, error)
}

// ProfileService manages client profiles and KYC
type ProfileService interface {
	Get(ctx context.Context, userID string) (*profile.View, error)
	Update(ctx context.Context, userID string, req profile.UpdateRequest) (*profile.View, error)
	UploadAvatar(ctx context.Context, userID string, file profile.Upload) (string, error)
	SubmitKYC(ctx context.Context, userID string, front, back *profile.Upload) (*profile.KYCView, error)
	KYC(ctx context.Context, userID string) (*profile.KYCView, error)
	SetKYCStatus(ctx context.Context, userID string, status database.KYCStatus) error
}

// AdminService provisions accounts and imports ledgers
type AdminService interface {
	ListClients(ctx context.Context) ([]*database.ClientSummary, error)
	CreateUser(ctx context.Context, req admin.CreateUserRequest) (*database.User, error)
	SetSuspended(ctx context.Context, userID string, suspended bool) error
	ImportProfiles(ctx context.Context, rows []analytics.RawTrade) (*admin.ProfileImportReport, error)
	ImportTrades(ctx context.Context, source analytics.Source, defaultUserID string, rows []analytics.RawTrade) (*admin.TradeImportReport, error)
	AddManualTrade(ctx context.Context, req admin.ManualTradeRequest) (*analytics.TradeRecord, error)
	UpdateTrade(ctx context.Context, userID, tradeID string, req admin.ManualTradeRequest) (*analytics.TradeRecord, error)
	DeleteTrade(ctx context.Context, userID, tradeID string) error
}

// HealthCheck probes one backend
type HealthCheck func(ctx context.Context) error

// Deps are the collaborators the server routes to. Auth may be nil when
// JWT is set directly; Blobs may be nil when files are served by presigned URL.
type Deps struct {
	Auth      *auth.Service
	JWT       *auth.JWTManager
	Dashboard DashboardService
	Profiles  ProfileService
	Admin     AdminService
	Blobs     storage.Store
	Bus       *events.EventBus
	Health    map[string]HealthCheck
}

// Server represents the HTTP API server
type Server struct {
	router       *gin.Engine
	httpServer   *http.Server
	config       config.ServerConfig
	deps         Deps
	jwt          *auth.JWTManager
	loginLimiter *RateLimiter
	hub          *UserWSHub
	logger       zerolog.Logger
	maxUpload    int64
}

// NewServer creates a new API server and subscribes its websocket hub to the bus
func NewServer(cfg config.ServerConfig, deps Deps, logger zerolog.Logger) *Server {
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(logging.GinMiddleware(logger))

	corsConfig := cors.DefaultConfig()
	if cfg.AllowedOrigins == "" || cfg.AllowedOrigins == "*" {
		corsConfig.AllowAllOrigins = true
	} else {
		corsConfig.AllowOrigins = strings.Split(cfg.AllowedOrigins, ",")
		corsConfig.AllowCredentials = true
	}
	corsConfig.AllowMethods = []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"}
	corsConfig.AllowHeaders = []string{"Origin", "Content-Type", "Authorization", logging.TraceHeader}
	corsConfig.ExposeHeaders = []string{"Content-Length", logging.TraceHeader}
	router.Use(cors.New(corsConfig))

	maxUpload := int64(cfg.MaxUploadMB) << 20
	if maxUpload <= 0 {
		maxUpload = 10 << 20
	}
	router.MaxMultipartMemory = maxUpload

	jwt := deps.JWT
	if jwt == nil && deps.Auth != nil {
		jwt = deps.Auth.GetJWTManager()
	}

	loginLimit := cfg.LoginRateLimit
	if loginLimit <= 0 {
		loginLimit = 10
	}

	s := &Server{
		router:       router,
		config:       cfg,
		deps:         deps,
		jwt:          jwt,
		loginLimiter: NewRateLimiter(loginLimit, time.Minute),
		logger:       logger.With().Str("component", "api").Logger(),
		maxUpload:    maxUpload,
	}

	s.hub = NewUserWSHub(s.logger)
	s.hub.Subscribe(deps.Bus)

	s.setupRoutes()
	return s
}

func (s *Server) setupRoutes() {
	s.router.GET("/health", s.handleHealth)

	public := s.router.Group("/api/auth")
	api := s.router.Group("/api")
	api.Use(auth.Middleware(s.jwt))

	if s.deps.Auth != nil {
		auth.NewHandlers(s.deps.Auth, s.loginLimiter).RegisterRoutes(public, api.Group("/auth"))
	}

	api.GET("/ws", s.handleUserWebSocket)
	api.GET("/files/*key", s.handleGetFile)

	api.GET("/dashboard/overview", s.handleOverview)
	api.GET("/dashboard/charts/pl.png", s.handlePLChart)
	api.GET("/dashboard/charts/roi.png", s.handleROIChart)
	api.GET("/trades", s.handleTradeHistory)

	api.GET("/profile", s.handleGetProfile)
	api.PUT("/profile", s.handleUpdateProfile)
	api.POST("/profile/avatar", s.handleUploadAvatar)
	api.GET("/kyc", s.handleGetKYC)
	api.POST("/kyc", s.handleSubmitKYC)

	adminGroup := api.Group("/admin")
	adminGroup.Use(auth.RequireAdmin())
	{
		adminGroup.GET("/clients", s.handleListClients)
		adminGroup.POST("/users", s.handleCreateUser)
		adminGroup.PUT("/users/:id/suspend", s.handleSetSuspended)
		adminGroup.POST("/profiles/import", s.handleImportProfiles)
		adminGroup.POST("/trades", s.handleAddManualTrade)
		adminGroup.POST("/trades/import", s.handleImportTrades)
		adminGroup.PUT("/trades/:user_id/:id", s.handleUpdateTrade)
		adminGroup.DELETE("/trades/:user_id/:id", s.handleDeleteTrade)
		adminGroup.GET("/trades", s.handleAdminTradeHistory)
		adminGroup.GET("/overview", s.handleAdminOverview)
		adminGroup.GET("/kyc/:user_id", s.handleAdminGetKYC)
		adminGroup.PUT("/kyc/:user_id", s.handleSetKYCStatus)
	}
}

// Handler returns the router, for tests and embedding
func (s *Server) Handler() http.Handler {
	return s.router
}

// Hub returns the websocket hub
func (s *Server) Hub() *UserWSHub {
	return s.hub
}

// Start starts the HTTP server and the websocket hub. It blocks until the server stops.
func (s *Server) Start() error {
	addr := fmt.Sprintf("%s:%d", s.config.Host, s.config.Port)

	s.httpServer = &http.Server{
		Addr:         addr,
		Handler:      s.router,
		ReadTimeout:  time.Duration(s.config.ReadTimeout) * time.Second,
		WriteTimeout: time.Duration(s.config.WriteTimeout) * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go s.hub.Run()

	s.logger.Info().Str("addr", addr).Msg("Starting HTTP server")

	if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("failed to start server: %w", err)
	}

	return nil
}

// Shutdown gracefully shuts down the server and closes websocket clients
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info().Msg("Shutting down HTTP server...")
	s.hub.Stop()

	if s.httpServer != nil {
		return s.httpServer.Shutdown(ctx)
	}

	return nil
}

// handleHealth returns server health status
func (s *Server) handleHealth(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
	defer cancel()

	status := "healthy"
	checks := gin.H{}
	for name, check := range s.deps.Health {
		if err := check(ctx); err != nil {
			checks[name] = "unhealthy"
			status = "unhealthy"
			continue
		}
		checks[name] = "healthy"
	}

	code := http.StatusOK
	if status != "healthy" {
		code = http.StatusServiceUnavailable
	}
	c.JSON(code, gin.H{
		"status": status,
		"checks": checks,
		"time":   time.Now().Format(time.RFC3339),
	})
}

// errorResponse is a helper to send error responses
func errorResponse(c *gin.Context, statusCode int, code, message string) {
	c.JSON(statusCode, gin.H{
		"error":   code,
		"message": message,
	})
}

// internalError logs err on the request logger and sends a 500
func internalError(c *gin.Context, err error, message string) {
	l := logging.FromContext(c.Request.Context())
	l.Error().Err(err).Msg(message)
	errorResponse(c, http.StatusInternalServerError, "INTERNAL_ERROR", message)
}
