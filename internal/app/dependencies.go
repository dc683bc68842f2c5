package app

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/hibiken/asynq"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/extra/redisotel/v9"
	redis "github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	limiter "github.com/ulule/limiter/v3"
	limiterredis "github.com/ulule/limiter/v3/drivers/store/redis"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/noah-isme/grosir-api/internal/attributes"
	"github.com/noah-isme/grosir-api/internal/catalog"
	"github.com/noah-isme/grosir-api/internal/compliance"
	"github.com/noah-isme/grosir-api/internal/config"
	"github.com/noah-isme/grosir-api/internal/obs"
	"github.com/noah-isme/grosir-api/internal/resilience"
	"github.com/noah-isme/grosir-api/internal/shopify"
)

// ApplicationName is reported to PostgreSQL and used as the service name.
const ApplicationName = "grosir-api"

// NewPool connects a traced pgx pool and verifies it with a ping.
func NewPool(ctx context.Context, databaseURL, appName string) (*pgxpool.Pool, error) {
	poolConfig, err := pgxpool.ParseConfig(databaseURL)
	if err != nil {
		return nil, fmt.Errorf("parse database config: %w", err)
	}
	poolConfig.ConnConfig.Tracer = obs.PGXTracer{}
	if poolConfig.ConnConfig.RuntimeParams == nil {
		poolConfig.ConnConfig.RuntimeParams = map[string]string{}
	}
	poolConfig.ConnConfig.RuntimeParams["application_name"] = appName

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("connect database: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}
	return pool, nil
}

// NewRedis builds an instrumented Redis client and verifies it with a ping.
// Instrumentation failures are logged, not fatal.
func NewRedis(ctx context.Context, redisURL string, metrics bool, logger zerolog.Logger) (*redis.Client, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	client := redis.NewClient(opts)
	if err := redisotel.InstrumentTracing(client); err != nil {
		logger.Error().Err(err).Msg("instrument redis tracing")
	}
	if metrics {
		if err := redisotel.InstrumentMetrics(client); err != nil {
			logger.Error().Err(err).Msg("instrument redis metrics")
		}
	}
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}
	return client, nil
}

// NewLimiterStore wires a rate limiter store backed by Redis.
func NewLimiterStore(rdb *redis.Client) (limiter.Store, error) {
	return limiterredis.NewStoreWithOptions(rdb, limiter.StoreOptions{Prefix: "grosir:ratelimit"})
}

// TaskRedisOpt converts the Redis URL into asynq connection options.
func TaskRedisOpt(redisURL string) (asynq.RedisConnOpt, error) {
	opt, err := asynq.ParseRedisURI(redisURL)
	if err != nil {
		return nil, fmt.Errorf("parse task redis url: %w", err)
	}
	return opt, nil
}

// NewTaskClient returns an asynq client used to enqueue background work.
func NewTaskClient(redisURL string) (*asynq.Client, error) {
	opt, err := TaskRedisOpt(redisURL)
	if err != nil {
		return nil, err
	}
	return asynq.NewClient(opt), nil
}

// NewTaskServer returns an asynq server consuming the compliance queue.
func NewTaskServer(redisURL string, concurrency int, logger zerolog.Logger) (*asynq.Server, error) {
	opt, err := TaskRedisOpt(redisURL)
	if err != nil {
		return nil, err
	}
	if concurrency <= 0 {
		concurrency = 5
	}
	return asynq.NewServer(opt, asynq.Config{
		Concurrency: concurrency,
		Queues:      map[string]int{compliance.QueueName: 1},
		Logger:      taskLogger{logger: logger.With().Str("component", "asynq").Logger()},
		ErrorHandler: asynq.ErrorHandlerFunc(func(ctx context.Context, task *asynq.Task, err error) {
			logger.Error().Err(err).Str("task", task.Type()).Msg("task failed")
		}),
	}), nil
}

// NewAdminHTTP builds the resilient transport for Admin API calls together
// with the breaker guarding it.
func NewAdminHTTP(cfg *config.Config, logger zerolog.Logger) (*resilience.HTTPClient, *resilience.Breaker) {
	breaker := resilience.NewBreaker(cfg.CircuitMinRequests, cfg.CircuitFailureRatio, cfg.CircuitOpenFor).
		WithTarget("shopify-admin").
		WithLogger(logger)
	return &resilience.HTTPClient{
		Client: &http.Client{
			Timeout:   cfg.StoreRequestTimeout + time.Second,
			Transport: otelhttp.NewTransport(http.DefaultTransport),
		},
		Breaker:     breaker,
		BaseBackoff: cfg.RetryBaseBackoff,
		MaxAttempts: cfg.RetryMaxAttempts,
		Jitter:      0.2,
		Timeout:     cfg.StoreRequestTimeout,
		MaxWait:     cfg.RetryMaxWait,
		Target:      "shopify-admin",
		Logger:      logger,
	}, breaker
}

// NewAdminClient builds the Admin GraphQL client from configuration.
func NewAdminClient(cfg *config.Config, hc *resilience.HTTPClient, logger zerolog.Logger) (*shopify.Client, error) {
	return shopify.NewClient(shopify.Config{
		ShopDomain:  cfg.ShopifyShopDomain,
		AccessToken: cfg.ShopifyAdminToken,
		APIVersion:  cfg.ShopifyAPIVersion,
		HTTP:        hc,
		Logger:      logger,
	})
}

// AttributeBackend groups the components derived from the configured
// attribute store.
type AttributeBackend struct {
	Store    attributes.Store
	Products catalog.ProductSource
	// Overlay is set when attributes live outside the product source.
	Overlay attributes.Reader
	// Purgers remove shop data on shop/redact.
	Purgers map[string]compliance.ShopPurger
}

// NewAttributeBackend selects the attribute store. The product listing always
// comes from the Admin API when it is configured.
func NewAttributeBackend(cfg *config.Config, pool *pgxpool.Pool, admin *shopify.Client) (AttributeBackend, error) {
	var metafields *shopify.MetafieldStore
	if admin != nil {
		metafields = shopify.NewMetafieldStore(admin, cfg.MetafieldNamespace, cfg.CurrencyCode)
	}
	switch cfg.AttributeStore {
	case config.StoreShopify:
		if metafields == nil {
			return AttributeBackend{}, fmt.Errorf("attribute store %q requires admin credentials", cfg.AttributeStore)
		}
		return AttributeBackend{Store: metafields, Products: metafields, Purgers: map[string]compliance.ShopPurger{}}, nil
	case config.StorePostgres:
		if pool == nil {
			return AttributeBackend{}, fmt.Errorf("attribute store %q requires a database", cfg.AttributeStore)
		}
		pg := attributes.NewPGStore(pool, cfg.ShopifyShopDomain)
		backend := AttributeBackend{
			Store:   pg,
			Overlay: pg,
			Purgers: map[string]compliance.ShopPurger{"attributes": pg},
		}
		if metafields != nil {
			backend.Products = metafields
		}
		return backend, nil
	default:
		return AttributeBackend{}, fmt.Errorf("unknown attribute store %q", cfg.AttributeStore)
	}
}

// taskLogger adapts zerolog to the asynq.Logger interface.
type taskLogger struct {
	logger zerolog.Logger
}

func (l taskLogger) Debug(args ...any) { l.logger.Debug().Msg(fmt.Sprint(args...)) }
func (l taskLogger) Info(args ...any)  { l.logger.Info().Msg(fmt.Sprint(args...)) }
func (l taskLogger) Warn(args ...any)  { l.logger.Warn().Msg(fmt.Sprint(args...)) }
func (l taskLogger) Error(args ...any) { l.logger.Error().Msg(fmt.Sprint(args...)) }
func (l taskLogger) Fatal(args ...any) { l.logger.Fatal().Msg(fmt.Sprint(args...)) }
