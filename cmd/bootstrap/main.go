package main

import (
	"context"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/noah-isme/grosir-api/internal/app"
	"github.com/noah-isme/grosir-api/internal/bootstrap"
	"github.com/noah-isme/grosir-api/internal/config"
	"github.com/noah-isme/grosir-api/internal/lock"
	"github.com/noah-isme/grosir-api/internal/migrations"
	"github.com/noah-isme/grosir-api/internal/obs"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic(err)
	}

	logFormat := envOrDefault("OBS_LOG_FORMAT", "json")
	logLevel := envOrDefault("OBS_LOG_LEVEL", "info")
	logger := obs.NewLogger(logFormat, logLevel).With().Str("component", "bootstrap").Str("shop", cfg.ShopifyShopDomain).Logger()

	if !cfg.AdminConfigured() {
		logger.Fatal().Msg("SHOPIFY_SHOP_DOMAIN and SHOPIFY_ADMIN_TOKEN are required for bootstrap")
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	ctx, cancel := context.WithTimeout(ctx, 5*time.Minute)
	defer cancel()

	redisClient, err := app.NewRedis(ctx, cfg.RedisURL, false, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("connect redis")
	}
	defer func() {
		if err := redisClient.Close(); err != nil {
			logger.Error().Err(err).Msg("close redis")
		}
	}()

	adminHTTP, _ := app.NewAdminHTTP(cfg, logger)
	admin, err := app.NewAdminClient(cfg, adminHTTP, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("initialise admin client")
	}

	runner := &bootstrap.Bootstrapper{
		Provisioner:    admin,
		Locker:         lock.Locker{R: redisClient, RetryBackoff: cfg.LockRetryBackoff, MaxWait: cfg.LockMaxWait},
		LockTTL:        cfg.LockTTL,
		Namespace:      cfg.MetafieldNamespace,
		DiscountTitle:  cfg.WholesaleDiscountTitle,
		FunctionHandle: cfg.WholesaleFunctionHandle,
		Migrate: func(context.Context) error {
			return migrations.Up(cfg.DatabaseURL)
		},
		Logger: logger,
	}

	report, err := runner.Run(ctx)
	if err != nil {
		logger.Fatal().Err(err).Interface("report", report).Msg("bootstrap failed")
	}
	logger.Info().
		Bool("migrated", report.Migrated).
		Strs("definitions_created", report.DefinitionsCreated).
		Strs("definitions_existing", report.DefinitionsExisting).
		Str("discount_id", report.DiscountID).
		Bool("discount_created", report.DiscountCreated).
		Msg("bootstrap complete")
}

func envOrDefault(key, fallback string) string {
	if val, ok := os.LookupEnv(key); ok {
		trimmed := strings.TrimSpace(val)
		if trimmed != "" {
			return trimmed
		}
	}
	return fallback
}
