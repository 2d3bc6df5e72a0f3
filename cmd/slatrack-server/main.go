// Package main is the entrypoint for the slatrack server.
package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"github.com/MacJediWizard/slatrack/internal/api"
	"github.com/MacJediWizard/slatrack/internal/config"
	"github.com/MacJediWizard/slatrack/internal/db"
	"github.com/MacJediWizard/slatrack/internal/notifications"
	"github.com/MacJediWizard/slatrack/internal/sla"
)

var (
	Version   = "dev"
	Commit    = "unknown"
	BuildDate = "unknown"
)

func main() {
	os.Exit(run())
}

func run() int {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Initialize logger
	logger := zerolog.New(os.Stdout).With().Timestamp().Str("version", Version).Logger()
	if os.Getenv("ENV") != string(config.EnvProduction) {
		logger = logger.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	}

	logger.Info().
		Str("version", Version).
		Str("commit", Commit).
		Str("build_date", BuildDate).
		Msg("Starting slatrack server")

	// Load configuration
	cfg, err := config.LoadServerConfig()
	if err != nil {
		logger.Error().Err(err).Msg("Invalid server configuration")
		return 1
	}

	// Connect to database
	database, err := db.New(ctx, db.DefaultConfig(cfg.DatabaseURL), logger)
	if err != nil {
		logger.Error().Err(err).Msg("Failed to connect to database")
		return 1
	}
	defer database.Close()

	// Run migrations
	if err := database.Migrate(ctx); err != nil {
		logger.Error().Err(err).Msg("Failed to run database migrations")
		return 1
	}

	// Seed rules for empty orgs
	if cfg.RuleSeedFile != "" {
		if err := seedRules(ctx, database, cfg.RuleSeedFile, logger); err != nil {
			logger.Error().Err(err).Str("file", cfg.RuleSeedFile).Msg("Failed to apply rule seed file")
			return 1
		}
	}

	// Notification service
	notifyCfg := notifications.DefaultConfig()
	if cfg.NotificationConfigFile != "" {
		notifyCfg, err = notifications.LoadConfig(cfg.NotificationConfigFile)
		if err != nil {
			logger.Error().Err(err).Str("file", cfg.NotificationConfigFile).Msg("Failed to load notification config")
			return 1
		}
	} else {
		logger.Warn().Msg("NOTIFICATION_CONFIG_FILE not set, escalations will fail into the delivery log")
	}

	notifier, err := notifications.NewService(notifyCfg, database, logger)
	if err != nil {
		logger.Error().Err(err).Msg("Failed to initialize notification service")
		return 1
	}
	defer notifier.Close()

	// Evaluation runner and scheduler
	runner := sla.NewRunner(database, notifier, cfg.WarningFraction, cfg.PageSize, logger)
	scheduler := sla.NewScheduler(runner, cfg.EvaluationInterval, logger)
	if err := scheduler.Start(ctx); err != nil {
		logger.Error().Err(err).Msg("Failed to start evaluation scheduler")
		return 1
	}

	// Build API router
	allowedOrigins := []string{}
	if v := os.Getenv("CORS_ORIGINS"); v != "" {
		allowedOrigins = strings.Split(v, ",")
	}

	routerCfg := api.Config{
		AllowedOrigins:    allowedOrigins,
		AdminToken:        cfg.AdminAPIToken,
		RateLimitEnabled:  cfg.RateLimitEnabled,
		RateLimitRequests: cfg.RateLimitCount,
		RateLimitPeriod:   cfg.RateLimitPeriod,
		RedisURL:          cfg.RedisURL,
		Version:           Version,
		Commit:            Commit,
		BuildDate:         BuildDate,
		EvaluationTrigger: scheduler,
	}

	router, err := api.NewRouter(routerCfg, database, logger)
	if err != nil {
		logger.Error().Err(err).Msg("Failed to initialize router")
		return 1
	}

	srv := &http.Server{
		Addr:              cfg.ListenAddr,
		Handler:           router.Engine,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      60 * time.Second,
	}

	// Start server in background
	go func() {
		logger.Info().Str("addr", cfg.ListenAddr).Msg("HTTP server listening")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal().Err(err).Msg("HTTP server error")
		}
	}()

	// Wait for shutdown signal
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigChan

	logger.Info().Str("signal", sig.String()).Msg("Shutting down server")

	// Stop taking new passes, let the in-flight one finish
	cancel()
	<-scheduler.Stop().Done()

	// Graceful shutdown with timeout
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("Server shutdown error")
		return 1
	}

	logger.Info().Msg("Server stopped gracefully")
	return 0
}

// seedRules applies a YAML rule seed file. Orgs that already have rules
// are left untouched so a restart never duplicates or clobbers admin
// edits.
func seedRules(ctx context.Context, database *db.DB, path string, logger zerolog.Logger) error {
	set, err := config.LoadRuleSeedFile(path)
	if err != nil {
		return err
	}

	existing, err := database.ListSLARules(ctx, set.OrgID)
	if err != nil {
		return err
	}
	if len(existing) > 0 {
		logger.Info().
			Str("org_id", set.OrgID.String()).
			Int("existing", len(existing)).
			Msg("Org already has rules, skipping seed file")
		return nil
	}

	for i := range set.BusinessHours {
		if err := database.CreateBusinessHours(ctx, &set.BusinessHours[i]); err != nil {
			return err
		}
	}
	for i := range set.Rules {
		if err := database.CreateSLARule(ctx, &set.Rules[i]); err != nil {
			return err
		}
	}

	logger.Info().
		Str("org_id", set.OrgID.String()).
		Int("rules", len(set.Rules)).
		Int("business_hours", len(set.BusinessHours)).
		Msg("Seeded SLA rules")
	return nil
}
