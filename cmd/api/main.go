package main

import (
	"context"
	"crypto/subtle"
	"errors"
	"net/http"
	"net/http/pprof"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	redis "github.com/redis/go-redis/v9"

	"github.com/noah-isme/grosir-api/internal/app"
	"github.com/noah-isme/grosir-api/internal/audit"
	"github.com/noah-isme/grosir-api/internal/auth"
	"github.com/noah-isme/grosir-api/internal/catalog"
	"github.com/noah-isme/grosir-api/internal/common"
	"github.com/noah-isme/grosir-api/internal/compliance"
	"github.com/noah-isme/grosir-api/internal/config"
	"github.com/noah-isme/grosir-api/internal/discount"
	"github.com/noah-isme/grosir-api/internal/health"
	"github.com/noah-isme/grosir-api/internal/migrations"
	"github.com/noah-isme/grosir-api/internal/obs"
	"github.com/noah-isme/grosir-api/internal/ratelimit"
	"github.com/noah-isme/grosir-api/internal/security"
	"github.com/noah-isme/grosir-api/internal/shopify"
	"github.com/noah-isme/grosir-api/internal/wholesale"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic(err)
	}

	logFormat := envOrDefault("OBS_LOG_FORMAT", "json")
	logLevel := envOrDefault("OBS_LOG_LEVEL", "info")
	logger := obs.NewLogger(logFormat, logLevel).With().Str("env", cfg.AppEnv).Logger()

	metricsNamespace := envOrDefault("OBS_METRICS_NAMESPACE", "grosir")
	metricsEnabled := envBool("OBS_ENABLE_PROMETHEUS", true)
	obs.MustRegisterDomainMetrics(metricsNamespace, nil)

	tracingEnabled := envBool("OBS_ENABLE_TRACING", true)
	if tracingEnabled {
		sampling := envFloat("OBS_TRACING_SAMPLING_RATIO", 1.0)
		shutdown, err := obs.InitTracer(context.Background(), obs.TracingConfig{
			ServiceName:   app.ApplicationName,
			Endpoint:      envOrDefault("OBS_OTLP_ENDPOINT", ""),
			Exporter:      envOrDefault("OBS_TRACING_EXPORTER", "otlp"),
			SamplingRatio: sampling,
			Environment:   cfg.AppEnv,
		})
		if err != nil {
			logger.Error().Err(err).Msg("initialise tracing")
			tracingEnabled = false
		} else {
			defer func() {
				if err := shutdown(context.Background()); err != nil {
					logger.Error().Err(err).Msg("shutdown tracer")
				}
			}()
		}
	}

	if cfg.MigrationsAuto {
		if err := migrations.Up(cfg.DatabaseURL); err != nil {
			logger.Fatal().Err(err).Msg("run migrations")
		}
		logger.Info().Msg("migrations applied")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	pool, err := app.NewPool(ctx, cfg.DatabaseURL, app.ApplicationName)
	if err != nil {
		logger.Fatal().Err(err).Msg("connect database")
	}
	defer pool.Close()

	redisClient, err := app.NewRedis(ctx, cfg.RedisURL, metricsEnabled, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("connect redis")
	}
	defer func() {
		if err := redisClient.Close(); err != nil {
			logger.Error().Err(err).Msg("close redis")
		}
	}()

	taskClient, err := app.NewTaskClient(cfg.RedisURL)
	if err != nil {
		logger.Fatal().Err(err).Msg("initialise task client")
	}
	defer func() {
		if err := taskClient.Close(); err != nil {
			logger.Error().Err(err).Msg("close task client")
		}
	}()

	adminHTTP, breaker := app.NewAdminHTTP(cfg, logger)
	var adminClient *shopify.Client
	if cfg.AdminConfigured() {
		adminClient, err = app.NewAdminClient(cfg, adminHTTP, logger)
		if err != nil {
			logger.Fatal().Err(err).Msg("initialise admin client")
		}
	}
	backend, err := app.NewAttributeBackend(cfg, pool, adminClient)
	if err != nil {
		logger.Fatal().Err(err).Msg("initialise attribute store")
	}
	logger.Info().Str("store", cfg.AttributeStore).Bool("admin", adminClient != nil).Msg("attribute store ready")

	validate := common.NewValidator()

	var catalogService *catalog.Service
	if backend.Products != nil {
		catalogService, err = catalog.NewService(catalog.ServiceConfig{
			Source:       backend.Products,
			Overlay:      backend.Overlay,
			Cache:        catalog.NewCache(redisClient, cfg.ProductsCacheTTL),
			DefaultShop:  cfg.ShopifyShopDomain,
			DefaultLimit: cfg.ProductsPageSize,
			MaxLimit:     250,
			Logger:       logger,
		})
		if err != nil {
			logger.Fatal().Err(err).Msg("initialise catalog service")
		}
	}
	catalogHandler := catalog.NewHandler(catalog.HandlerConfig{Service: catalogService})

	auditStore := audit.PGStore{DB: pool}
	auditService := audit.Service{
		Store:        auditStore,
		Enabled:      cfg.AuditEnabled,
		SamplingRate: cfg.AuditSamplingRate,
		DefaultShop:  cfg.ShopifyShopDomain,
	}
	auditHandler := audit.Handler{Store: auditStore, DefaultShop: cfg.ShopifyShopDomain}

	wholesaleService := &wholesale.Service{
		Reconciler: wholesale.NewReconciler(backend.Store, cfg.StoreRequestTimeout, logger),
		MaxBatch:   cfg.WholesaleMaxBatch,
		Audit:      auditService,
		Logger:     logger,
	}
	if catalogService != nil {
		wholesaleService.Cache = catalogService
	}
	wholesaleHandler := wholesale.NewHandler(wholesale.HandlerConfig{Service: wholesaleService, Validator: validate})

	discountHandler := discount.NewHandler(discount.HandlerConfig{
		Label: cfg.WholesaleDiscountLabel,
		Supplier: &discount.Supplier{
			Reader:       backend.Store,
			EligibleTags: cfg.WholesaleCustomerTags,
		},
		Validator: validate,
		Logger:    logger,
	})

	complianceWebhook := compliance.Webhook{
		Secret:    []byte(cfg.ShopifyAPISecret),
		Tasks:     taskClient,
		Replay:    compliance.RedisReplayGuard{Client: redisClient},
		ReplayTTL: cfg.WebhookReplayTTL,
		Logger:    logger,
	}

	authMiddleware := auth.Middleware{Verifier: &auth.SessionVerifier{
		APIKey:    cfg.ShopifyAPIKey,
		Secret:    []byte(cfg.ShopifyAPISecret),
		ClockSkew: cfg.SessionClockSkew,
	}}

	idem := common.Idem{R: redisClient, TTL: cfg.IdempotencyTTL}
	saveLimiter, err := newRateLimiter(cfg, redisClient)
	if err != nil {
		logger.Fatal().Err(err).Msg("initialise rate limiter")
	}
	saveRateLimit := ratelimit.Handler{
		Limiter: saveLimiter,
		Config: ratelimit.Config{
			Key:    ratelimit.ByShop("wholesale:save:"),
			Window: cfg.RateLimitWindow,
			Max:    cfg.RateLimitMax,
		},
		OnError: func(err error) {
			logger.Warn().Err(err).Msg("rate limiter unavailable")
		},
	}

	var httpMetrics *obs.HTTPMetrics
	if metricsEnabled {
		buckets := obs.ParseBucketsCSV(envOrDefault("OBS_METRICS_BUCKETS_MS", ""))
		httpMetrics = obs.NewHTTPMetrics(metricsNamespace, buckets, nil)
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	if tracingEnabled {
		r.Use(obs.TracingMiddleware)
	}
	if metricsEnabled && httpMetrics != nil {
		r.Use(obs.HTTPObs{Metrics: httpMetrics}.Middleware)
	}
	r.Use(obs.RequestLogger{Logger: logger}.Middleware)
	r.Use(security.Headers{
		Enable:                envBool("SECURE_HEADERS_ENABLE", true),
		EnableHSTS:            envBool("SECURE_HSTS_ENABLE", cfg.AppEnv == "production"),
		HSTSIncludeSubdomains: true,
		Embedded:              true,
	}.Middleware)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   allowedOrigins(cfg),
		AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", common.IdempotencyHeader},
		ExposedHeaders:   []string{"X-Request-ID", "X-RateLimit-Remaining", "Retry-After"},
		AllowCredentials: false,
		MaxAge:           300,
	}))
	r.Use(security.BodyLimit{Max: int64(envInt("SECURE_MAX_BODY_BYTES", 1<<20))}.Middleware)

	if metricsEnabled {
		r.Handle("/metrics", promhttp.Handler())
	}
	if envBool("OBS_ENABLE_PPROF", false) {
		user := envOrDefault("SECURE_PPROF_BASIC_AUTH_USER", "")
		pass := envOrDefault("SECURE_PPROF_BASIC_AUTH_PASS", "")
		r.Mount("/debug/pprof", protectPprof(newPprofMux(), user, pass))
	}

	healthHandler := health.Handler{
		Checks: map[string]health.Check{
			"db":    pingDB(pool),
			"redis": pingRedis(redisClient),
		},
		Circuits: map[string]func() string{
			breaker.Target(): func() string { return breaker.State().String() },
		},
		Timeout: envDurationMillis("HEALTH_READY_TIMEOUT_MS", 500),
	}
	r.Get("/health/live", healthHandler.Live)
	r.Get("/health/ready", healthHandler.Ready)

	r.Post("/webhooks", complianceWebhook.Handle)

	r.Route("/api/v1", func(v chi.Router) {
		v.Use(authMiddleware.RequireSession)

		v.Route("/wholesale", func(ws chi.Router) {
			ws.Get("/products", catalogHandler.Products)
			ws.Get("/audit", auditHandler.List)
			ws.With(saveRateLimit.Middleware, idem.Middleware).Post("/save", wholesaleHandler.Save)
		})

		v.Route("/discounts/wholesale", func(d chi.Router) {
			d.Post("/run", discountHandler.Run)
			d.Post("/quote", discountHandler.Quote)
		})
	})

	srv := &http.Server{
		Addr:              cfg.HTTPAddr(),
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	sigCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	go func() {
		<-sigCtx.Done()
		health.SetReady(false)
		shutdownCtx, cancel := context.WithTimeout(context.Background(), envDurationMillis("SHUTDOWN_TIMEOUT_MS", 15000))
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Error().Err(err).Msg("shutdown server")
		}
	}()

	logger.Info().Str("addr", srv.Addr).Msg("server starting")
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Fatal().Err(err).Msg("server exited unexpectedly")
	}
	logger.Info().Msg("server stopped")
}

func newRateLimiter(cfg *config.Config, client *redis.Client) (ratelimit.Limiter, error) {
	switch cfg.RateLimitBackend {
	case "fixed":
		store, err := app.NewLimiterStore(client)
		if err != nil {
			return nil, err
		}
		return ratelimit.FixedWindow{Store: store}, nil
	default:
		return ratelimit.SlidingWindow{Client: client, Prefix: "grosir:ratelimit:"}, nil
	}
}

func allowedOrigins(cfg *config.Config) []string {
	if len(cfg.CORSAllowedOrigins) == 0 {
		return []string{"https://admin.shopify.com", "https://*.myshopify.com"}
	}
	return cfg.CORSAllowedOrigins
}

func pingDB(pool *pgxpool.Pool) health.Check {
	return func(ctx context.Context, timeout time.Duration) error {
		if pool == nil {
			return errors.New("db not configured")
		}
		ctx, cancel := context.WithTimeout(ctx, timeout)
		defer cancel()
		return pool.Ping(ctx)
	}
}

func pingRedis(client *redis.Client) health.Check {
	return func(ctx context.Context, timeout time.Duration) error {
		if client == nil {
			return errors.New("redis not configured")
		}
		ctx, cancel := context.WithTimeout(ctx, timeout)
		defer cancel()
		return client.Ping(ctx).Err()
	}
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

func envBool(key string, fallback bool) bool {
	if val, ok := os.LookupEnv(key); ok {
		switch strings.ToLower(strings.TrimSpace(val)) {
		case "1", "t", "true", "yes", "on":
			return true
		case "0", "f", "false", "no", "off":
			return false
		}
	}
	return fallback
}

func envFloat(key string, fallback float64) float64 {
	if val, ok := os.LookupEnv(key); ok {
		if parsed, err := strconv.ParseFloat(strings.TrimSpace(val), 64); err == nil {
			return parsed
		}
	}
	return fallback
}

func envInt(key string, fallback int) int {
	if val, ok := os.LookupEnv(key); ok {
		if parsed, err := strconv.Atoi(strings.TrimSpace(val)); err == nil {
			return parsed
		}
	}
	return fallback
}

func envDurationMillis(key string, fallback int) time.Duration {
	return time.Duration(envInt(key, fallback)) * time.Millisecond
}

func newPprofMux() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/", pprof.Index)
	mux.HandleFunc("/cmdline", pprof.Cmdline)
	mux.HandleFunc("/profile", pprof.Profile)
	mux.HandleFunc("/symbol", pprof.Symbol)
	mux.HandleFunc("/trace", pprof.Trace)
	mux.Handle("/allocs", pprof.Handler("allocs"))
	mux.Handle("/goroutine", pprof.Handler("goroutine"))
	mux.Handle("/heap", pprof.Handler("heap"))
	return mux
}

func protectPprof(handler http.Handler, user, pass string) http.Handler {
	user = strings.TrimSpace(user)
	pass = strings.TrimSpace(pass)
	if user == "" {
		return handler
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		u, p, ok := r.BasicAuth()
		if !ok || subtle.ConstantTimeCompare([]byte(u), []byte(user)) != 1 || subtle.ConstantTimeCompare([]byte(p), []byte(pass)) != 1 {
			w.Header().Set("WWW-Authenticate", "Basic realm=restricted")
			http.Error(w, "unauthorised", http.StatusUnauthorized)
			return
		}
		handler.ServeHTTP(w, r)
	})
}
