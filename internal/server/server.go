// Package server sets up the HTTP server with all routes
package server

import (
	"context"
	"crypto/rand"
	"database/sql"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"os/signal"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	_ "github.com/lib/pq" // PostgreSQL driver

	"github.com/cardcore/authd/internal/account"
	"github.com/cardcore/authd/internal/auth"
	"github.com/cardcore/authd/internal/authorize"
	"github.com/cardcore/authd/internal/config"
	"github.com/cardcore/authd/internal/health"
	"github.com/cardcore/authd/internal/logging"
	"github.com/cardcore/authd/internal/metrics"
	"github.com/cardcore/authd/internal/money"
	"github.com/cardcore/authd/internal/notify"
	"github.com/cardcore/authd/internal/ratelimit"
	"github.com/cardcore/authd/internal/realtime"
	"github.com/cardcore/authd/internal/refdata"
	"github.com/cardcore/authd/internal/security"
	"github.com/cardcore/authd/internal/validation"
)

// -----------------------------------------------------------------------------
// Server
// -----------------------------------------------------------------------------

// Server wraps the HTTP server and dependencies
type Server struct {
	cfg          *config.Config
	engine       *authorize.Engine
	accounts     account.Store
	decisions    authorize.Store
	refdata      *refdata.Provider
	notifyStore  notify.Store
	dispatcher   *notify.Dispatcher
	emitter      *notify.Emitter
	feedHub      *realtime.Hub
	healthReg    *health.Registry
	rateLimiter  *ratelimit.Limiter
	db           *sql.DB // nil if using in-memory
	router       *gin.Engine
	httpSrv      *http.Server
	logger       *slog.Logger
	cancelRunCtx context.CancelFunc // cancels background goroutines started in Run

	// Health state
	ready   atomic.Bool
	healthy atomic.Bool
}

// Option configures the server
type Option func(*Server)

// WithLogger sets a custom logger
func WithLogger(logger *slog.Logger) Option {
	return func(s *Server) {
		s.logger = logger
	}
}

// WithAccountStore injects an account read model (for testing)
func WithAccountStore(store account.Store) Option {
	return func(s *Server) {
		s.accounts = store
	}
}

// WithRefdata injects a reference data provider (for testing)
func WithRefdata(p *refdata.Provider) Option {
	return func(s *Server) {
		s.refdata = p
	}
}

// New creates a new server instance
func New(cfg *config.Config, opts ...Option) (*Server, error) {
	s := &Server{
		cfg:    cfg,
		logger: logging.New(cfg.LogLevel, cfg.LogFormat),
	}

	// Apply options first (may set stores/logger)
	for _, opt := range opts {
		opt(s)
	}

	s.healthReg = health.NewRegistry()

	// Initialize storage (Postgres if DATABASE_URL set, otherwise in-memory)
	if cfg.DatabaseURL != "" {
		db, err := sql.Open("postgres", cfg.DatabaseURL)
		if err != nil {
			return nil, fmt.Errorf("failed to open database: %w", err)
		}

		// Configure connection pool
		db.SetMaxOpenConns(25)
		db.SetMaxIdleConns(5)
		db.SetConnMaxLifetime(5 * time.Minute)

		// Test connection
		if err := db.Ping(); err != nil {
			return nil, fmt.Errorf("failed to connect to database: %w", err)
		}

		s.db = db
		if s.accounts == nil {
			s.accounts = account.NewPostgresStore(db)
		}
		s.decisions = authorize.NewPostgresStore(db)
		s.notifyStore = notify.NewPostgresStore(db)
		s.healthReg.Register("database", health.Database("database", db))
		s.logger.Info("using PostgreSQL storage", "url", maskDSN(cfg.DatabaseURL))
	} else {
		if s.accounts == nil {
			s.accounts = account.NewMemoryStore()
		}
		s.decisions = authorize.NewMemoryStore()
		s.notifyStore = notify.NewMemoryStore()
		s.logger.Info("using in-memory storage (data will not persist)")
	}

	// Reference data: load the initial generation, refresh in background
	if s.refdata == nil {
		provider, err := refdata.NewProvider(cfg.BlacklistPath, cfg.PolicyPath, cfg.RefdataReload, s.logger)
		if err != nil {
			return nil, fmt.Errorf("failed to load reference data: %w", err)
		}
		s.refdata = provider
	}
	s.healthReg.Register("refdata", health.Refdata("refdata",
		func() time.Time { return s.refdata.Current().LoadedAt() },
		// Flag staleness past three missed reloads.
		3*cfg.RefdataReload,
	))

	loc, err := time.LoadLocation(cfg.VelocityTimezone)
	if err != nil {
		return nil, fmt.Errorf("invalid velocity timezone: %w", err)
	}

	tracker := authorize.NewTracker(authorize.VelocityConfig{
		DailyAmountCap: money.FromDecimal(cfg.DailyAmountCap),
		DailyCountCap:  cfg.DailyCountCap,
		Window:         cfg.VelocityWindow,
		Location:       loc,
		GeoMinInterval: cfg.GeoMinInterval,
	})

	scorer := authorize.NewScorer(authorize.FraudConfig{
		Threshold:       cfg.FraudThreshold,
		WeightAmount:    cfg.WeightAmount,
		WeightCategory:  cfg.WeightCategory,
		WeightGeo:       cfg.WeightGeo,
		WeightTimeOfDay: cfg.WeightTimeOfDay,
		AmountFloor:     money.FromDecimal(cfg.AmountFloor),
		AmountCeil:      money.FromDecimal(cfg.AmountCeil),
		RiskyCategories: cfg.RiskyCategories,
		NightStartHour:  cfg.NightStartHour,
		NightEndHour:    cfg.NightEndHour,
		Location:        loc,
	})

	// Notifications and the live decision feed observe every decision.
	s.dispatcher = notify.NewDispatcher(s.notifyStore)
	s.emitter = notify.NewEmitter(s.dispatcher, s.logger)
	s.feedHub = realtime.NewHub(s.logger)

	s.engine = authorize.NewEngine(s.accounts, s.refdata, tracker, scorer, s.logger).
		WithLockWait(cfg.LockWait).
		WithAudit(s.decisions).
		WithObserver(s.emitter.EmitDecision).
		WithObserver(s.feedHub.BroadcastDecision)

	// Configure gin
	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}

	s.router = gin.New()
	s.setupMiddleware()
	s.setupRoutes()

	s.healthy.Store(true)

	return s, nil
}

// maskDSN hides password in connection string for logging
func maskDSN(dsn string) string {
	u, err := url.Parse(dsn)
	if err != nil {
		return "***"
	}
	if u.User != nil {
		u.User = url.UserPassword(u.User.Username(), "***")
	}
	return u.String()
}

// -----------------------------------------------------------------------------
// Middleware
// -----------------------------------------------------------------------------

func (s *Server) setupMiddleware() {
	// Recovery with logging
	s.router.Use(gin.CustomRecovery(func(c *gin.Context, recovered interface{}) {
		logging.L(c.Request.Context()).Error("panic recovered",
			"error", recovered,
			"path", c.Request.URL.Path,
		)
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{
			"error":   "internal_error",
			"message": "An unexpected error occurred",
		})
	}))

	// Security headers
	s.router.Use(security.HeadersMiddleware())

	// CORS for fraud-ops tooling
	s.router.Use(security.CORSMiddleware([]string{"*"}))

	// Request size limit (1MB)
	s.router.Use(validation.RequestSizeMiddleware(validation.MaxRequestSize))

	// Rate limiting
	rlCfg := ratelimit.DefaultConfig()
	if s.cfg.RateLimitRPM > 0 {
		rlCfg.RequestsPerMinute = s.cfg.RateLimitRPM
	}
	s.rateLimiter = ratelimit.New(rlCfg)
	s.router.Use(s.rateLimiter.Middleware())

	// Prometheus metrics
	s.router.Use(metrics.Middleware())

	// Request ID
	s.router.Use(s.requestIDMiddleware())

	// Logging
	s.router.Use(s.loggingMiddleware())
}

func (s *Server) requestIDMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		// Check for existing request ID (from load balancer, etc.)
		requestID := c.GetHeader("X-Request-ID")
		if requestID == "" {
			requestID = generateRequestID()
		}

		// Add to context
		ctx := logging.WithRequestID(c.Request.Context(), requestID)
		ctx = logging.WithLogger(ctx, s.logger)
		c.Request = c.Request.WithContext(ctx)

		// Set response header
		c.Header("X-Request-ID", requestID)

		c.Next()
	}
}

func (s *Server) loggingMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path

		c.Next()

		latency := time.Since(start)
		status := c.Writer.Status()

		logger := logging.L(c.Request.Context())

		// Log level based on status code
		switch {
		case status >= 500:
			logger.Error("request completed",
				"method", c.Request.Method,
				"path", path,
				"status", status,
				"latency_ms", latency.Milliseconds(),
				"client_ip", c.ClientIP(),
			)
		case status >= 400:
			logger.Warn("request completed",
				"method", c.Request.Method,
				"path", path,
				"status", status,
				"latency_ms", latency.Milliseconds(),
			)
		default:
			logger.Info("request completed",
				"method", c.Request.Method,
				"path", path,
				"status", status,
				"latency_ms", latency.Milliseconds(),
			)
		}
	}
}

// -----------------------------------------------------------------------------
// Routes
// -----------------------------------------------------------------------------

func (s *Server) setupRoutes() {
	// Health & metrics endpoints
	s.router.GET("/health", s.healthHandler)
	s.router.GET("/health/live", s.livenessHandler)
	s.router.GET("/health/ready", s.readinessHandler)
	s.router.GET("/ready", s.readinessHandler) // load-balancer alias
	s.router.GET("/metrics", metrics.Handler())

	// WebSocket decision feed
	s.router.GET("/ws/decisions", func(c *gin.Context) {
		s.feedHub.HandleWebSocket(c.Writer, c.Request)
	})

	// API info
	s.router.GET("/api", s.infoHandler)

	// V1 API group
	v1 := s.router.Group("/v1")
	// Validate :id URL params on all v1 routes (no-op when param absent)
	v1.Use(validation.AccountParamMiddleware())

	// The decision endpoint
	v1.POST("/authorize", s.authorizeHandler)

	// Decision audit trail
	v1.GET("/accounts/:id/decisions", s.listDecisionsHandler)

	// Operational write surface; key-gated when OPS_API_KEYS is set.
	opsKey := auth.RequireKey(auth.NewKeyring(s.cfg.OpsAPIKeys))

	// Account read model (seeding and ops tooling; the engine never writes)
	v1.GET("/accounts/:id", s.getAccountHandler)
	v1.PUT("/accounts/:id", opsKey, s.putAccountHandler)

	// Notification subscriptions
	v1.POST("/subscriptions", opsKey, s.createSubscriptionHandler)
	v1.GET("/subscriptions", opsKey, s.listSubscriptionsHandler)
	v1.DELETE("/subscriptions/:subId", opsKey, s.deleteSubscriptionHandler)

	// Feed statistics
	v1.GET("/feed/stats", s.feedStatsHandler)
}

// -----------------------------------------------------------------------------
// Lifecycle
// -----------------------------------------------------------------------------

// Run starts the HTTP server with graceful shutdown
func (s *Server) Run(ctx context.Context) error {
	// Create a cancellable context for background goroutines so Shutdown() can stop them.
	runCtx, cancel := context.WithCancel(ctx)
	s.cancelRunCtx = cancel

	s.httpSrv = &http.Server{
		Addr:              ":" + s.cfg.Port,
		Handler:           s.router,
		ReadTimeout:       10 * time.Second,
		ReadHeaderTimeout: 5 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	// Channel to catch server errors
	errChan := make(chan error, 1)

	// Start server in goroutine
	go func() {
		s.logger.Info("starting server", "port", s.cfg.Port, "env", s.cfg.Env)
		if err := s.httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errChan <- err
		}
	}()

	// Start reference data reloader
	go s.refdata.Run(runCtx)

	// Start decision feed hub
	go s.feedHub.Run(runCtx)

	// Mark as ready after brief delay for startup
	go func() {
		time.Sleep(100 * time.Millisecond)
		s.ready.Store(true)
		s.logger.Info("server ready")
	}()

	// Wait for shutdown signal or error
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errChan:
		return fmt.Errorf("server error: %w", err)
	case sig := <-sigChan:
		s.logger.Info("shutdown signal received", "signal", sig.String())
	case <-ctx.Done():
		s.logger.Info("context cancelled")
	}

	return s.Shutdown()
}

// Shutdown gracefully stops the server
func (s *Server) Shutdown() error {
	s.ready.Store(false)
	s.logger.Info("starting graceful shutdown")

	// Cancel the context for all background goroutines (hub, refdata reloader)
	if s.cancelRunCtx != nil {
		s.cancelRunCtx()
	}

	// Give load balancers time to stop sending traffic
	time.Sleep(5 * time.Second)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := s.httpSrv.Shutdown(ctx); err != nil {
		s.logger.Error("shutdown error", "error", err)
		return err
	}

	// Stop rate limiter cleanup goroutine
	if s.rateLimiter != nil {
		s.rateLimiter.Stop()
		s.logger.Info("rate limiter stopped")
	}

	// Close database connection pool
	if s.db != nil {
		if err := s.db.Close(); err != nil {
			s.logger.Error("database close error", "error", err)
		} else {
			s.logger.Info("database connection closed")
		}
	}

	s.logger.Info("server stopped")
	return nil
}

// Router returns the gin router for testing
func (s *Server) Router() *gin.Engine {
	return s.router
}

// Engine returns the decision engine (batch replay shares it)
func (s *Server) Engine() *authorize.Engine {
	return s.engine
}

// -----------------------------------------------------------------------------
// Helpers
// -----------------------------------------------------------------------------

func generateRequestID() string {
	bytes := make([]byte, 16)
	if _, err := rand.Read(bytes); err != nil {
		// Fallback to timestamp-based ID
		return fmt.Sprintf("%d", time.Now().UnixNano())
	}
	return hex.EncodeToString(bytes)
}
