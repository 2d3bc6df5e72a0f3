// Package api provides the HTTP API for the slatrack server.
package api

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/MacJediWizard/slatrack/internal/api/handlers"
	"github.com/MacJediWizard/slatrack/internal/api/middleware"
	"github.com/MacJediWizard/slatrack/internal/db"
	"github.com/MacJediWizard/slatrack/internal/metrics"
)

// Config holds configuration for the API router.
type Config struct {
	// AllowedOrigins for CORS. Empty means all origins allowed in dev mode.
	AllowedOrigins []string
	// AdminToken guards all /api/v1 routes when set.
	AdminToken string
	// RateLimitEnabled toggles request rate limiting.
	RateLimitEnabled bool
	// RateLimitRequests is the number of requests allowed per period.
	RateLimitRequests int64
	// RateLimitPeriod is the rate limiting window.
	RateLimitPeriod time.Duration
	// RedisURL, when set, shares rate limit counters across replicas.
	RedisURL string
	// Version information for the version endpoint.
	Version   string
	Commit    string
	BuildDate string
	// EvaluationTrigger for manually triggering evaluation passes (optional).
	EvaluationTrigger handlers.EvaluationTrigger
}

// DefaultConfig returns a Config with sensible defaults for development.
func DefaultConfig() Config {
	return Config{
		AllowedOrigins:    []string{},
		RateLimitEnabled:  true,
		RateLimitRequests: 300,
		RateLimitPeriod:   time.Minute,
		Version:           "dev",
		Commit:            "unknown",
		BuildDate:         "unknown",
	}
}

// Router wraps a Gin engine with configured middleware and routes.
type Router struct {
	Engine *gin.Engine
	logger zerolog.Logger
	db     *db.DB
}

// NewRouter creates a new Router with the given dependencies.
func NewRouter(cfg Config, database *db.DB, logger zerolog.Logger) (*Router, error) {
	r := &Router{
		Engine: gin.New(),
		logger: logger.With().Str("component", "router").Logger(),
		db:     database,
	}

	// Global middleware
	r.Engine.Use(gin.Recovery())
	r.Engine.Use(middleware.RequestLogger(logger))
	r.Engine.Use(middleware.CORS(cfg.AllowedOrigins))

	// Rate limiting
	if cfg.RateLimitEnabled {
		var rateLimiter gin.HandlerFunc
		var err error
		if cfg.RedisURL != "" {
			rateLimiter, err = middleware.NewRedisRateLimiter(cfg.RedisURL, cfg.RateLimitRequests, cfg.RateLimitPeriod)
		} else {
			rateLimiter, err = middleware.NewRateLimiter(cfg.RateLimitRequests, cfg.RateLimitPeriod)
		}
		if err != nil {
			return nil, err
		}
		r.Engine.Use(rateLimiter)
	}

	// Health check endpoints (no auth required)
	healthHandler := handlers.NewHealthHandler(database, logger)
	healthHandler.RegisterPublicRoutes(r.Engine)

	// Prometheus metrics endpoint (no auth required)
	r.Engine.GET("/metrics", gin.WrapH(metrics.Handler()))

	// Version endpoint (no auth required)
	r.Engine.GET("/version", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"version":    cfg.Version,
			"commit":     cfg.Commit,
			"build_date": cfg.BuildDate,
		})
	})

	// API v1 routes (bearer token required when configured)
	apiV1 := r.Engine.Group("/api/v1")
	apiV1.Use(middleware.AdminToken(cfg.AdminToken, logger))

	rulesHandler := handlers.NewSLARulesHandler(database, logger)
	rulesHandler.RegisterRoutes(apiV1)

	itemsHandler := handlers.NewWorkItemsHandler(database, cfg.EvaluationTrigger, logger)
	itemsHandler.RegisterRoutes(apiV1)

	r.logger.Info().Msg("API router initialized")
	return r, nil
}
