// Package app wires configuration, storage, the pricing engine, and the HTTP
// server into a runnable service.
package app

import (
	"context"
	"net/http"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/app"
	"github.com/go-faster/sdk/zctx"
	"github.com/go-redis/redis/v8"
	"go.uber.org/zap"

	"github.com/borhen68/framatale-sub001/internal/analytics"
	"github.com/borhen68/framatale-sub001/internal/domain/costplus"
	"github.com/borhen68/framatale-sub001/internal/domain/pricing"
	"github.com/borhen68/framatale-sub001/internal/domain/ruleops"
	"github.com/borhen68/framatale-sub001/internal/handler"
	"github.com/borhen68/framatale-sub001/internal/pricecache"
	"github.com/borhen68/framatale-sub001/internal/rates"
	"github.com/borhen68/framatale-sub001/internal/storage/postgres"
	"github.com/borhen68/framatale-sub001/pkg/health"
	"github.com/borhen68/framatale-sub001/pkg/httpmiddleware"
)

// Run creates all dependencies, starts the HTTP server, and handles graceful
// shutdown. It is the single wiring point for the application.
func Run(ctx context.Context, lg *zap.Logger, _ *app.Telemetry, cfg *Config) error {
	lg.Info("Initializing", zap.String("addr", cfg.Addr))

	// PostgreSQL pool + migrations.
	pool, err := postgres.NewPool(ctx, cfg.DatabaseURL)
	if err != nil {
		return errors.Wrap(err, "create db pool")
	}
	defer pool.Close()

	if err := postgres.RunMigrations(ctx, pool); err != nil {
		return errors.Wrap(err, "run migrations")
	}

	// Health check service.
	healthSvc := health.New()
	healthSvc.AddReadinessCheck("postgres", 5*time.Second, func(ctx context.Context) error {
		return pool.Ping(ctx)
	})
	healthSvc.AddLivenessCheck("goroutines", time.Second, health.GoroutineCountCheck(10000))
	healthSvc.Start(ctx, 10*time.Second)
	healthSvc.SetReady(true)

	// Stores.
	ruleStore := postgres.NewRuleStore(pool)
	costCatalog := postgres.NewCostCatalog(pool)
	apikeyRepo := postgres.NewAPIKeyRepository(pool)

	// Tax and shipping rates.
	var provider rates.Provider
	if cfg.Rates.URL != "" {
		provider = rates.NewHTTPProvider(cfg.Rates.URL, cfg.Rates.Environment, cfg.Rates.Timeout)
	} else {
		lg.Warn("No rate service configured, taxes and shipping resolve to zero")
		provider = rates.NewStatic(nil)
	}

	// Price cache: Redis when configured, in-process otherwise.
	var cache pricing.Cache
	if cfg.Cache.RedisAddr != "" {
		client := redis.NewClient(&redis.Options{
			Addr:     cfg.Cache.RedisAddr,
			Password: cfg.Cache.RedisPassword,
			DB:       cfg.Cache.RedisDB,
		})
		defer client.Close()
		if err := client.Ping(ctx).Err(); err != nil {
			return errors.Wrap(err, "ping redis")
		}
		cache = pricecache.NewRedis(client, lg)
		healthSvc.AddReadinessCheck("redis", 2*time.Second, func(ctx context.Context) error {
			return client.Ping(ctx).Err()
		})
	} else {
		mem := pricecache.NewMemory(cfg.Cache.SweepEvery)
		defer mem.Close()
		cache = mem
	}

	// Pricing event analytics.
	var sink analytics.Sink = analytics.Nop{}
	if len(cfg.Analytics.KafkaBrokers) > 0 {
		kafkaSink := analytics.NewKafka(cfg.Analytics.KafkaBrokers, cfg.Analytics.KafkaTopic)
		defer kafkaSink.Close()
		async := analytics.NewAsync(kafkaSink, lg, cfg.Analytics.QueueSize)
		defer async.Close()
		sink = async
	}

	// Domain services.
	engine := pricing.NewEngine(ruleStore, provider, cache, sink, lg)
	calculator := costplus.NewCalculator(costCatalog)
	ruleSvc := ruleops.NewService(ruleStore, engine, lg)

	// HTTP handlers.
	var authn *handler.Authenticator
	if cfg.APIKeyPepper != "" {
		authn = handler.NewAuthenticator(apikeyRepo, []byte(cfg.APIKeyPepper))
	} else {
		lg.Warn("No API key pepper configured, rule mutation endpoints are open")
	}
	h := handler.NewHandler(engine, calculator, ruleSvc, authn)

	mux := http.NewServeMux()
	mux.HandleFunc("/livez", healthSvc.LiveEndpoint)
	mux.HandleFunc("/readyz", healthSvc.ReadyEndpoint)
	h.Register(mux)

	server := &http.Server{
		ReadHeaderTimeout: time.Second,
		ReadTimeout:       5 * time.Second,
		WriteTimeout:      10 * time.Second,
		IdleTimeout:       120 * time.Second,
		MaxHeaderBytes:    1 << 20,
		Addr:              cfg.Addr,
		Handler: httpmiddleware.Wrap(mux,
			httpmiddleware.Recovery(),
			httpmiddleware.CORS(httpmiddleware.CORSConfig{
				AllowOrigins:     cfg.CORS.Origins,
				AllowHeaders:     []string{"Content-Type", "Authorization", "api_key"},
				AllowCredentials: cfg.CORS.AllowCredentials,
				MaxAge:           86400,
			}),
			httpmiddleware.RateLimitWithCleanup(ctx, httpmiddleware.RateLimitConfig{
				Max:    cfg.RateLimit.Max,
				Window: cfg.RateLimit.Window,
			}),
			httpmiddleware.RequestID(),
			httpmiddleware.InjectLogger(zctx.From(ctx)),
			httpmiddleware.LogRequests(),
		),
	}

	// Graceful shutdown: wait for context cancellation, drain, then stop.
	shutdownDone := make(chan struct{})
	go func() {
		<-ctx.Done()
		healthSvc.SetReady(false)
		lg.Info("Readiness set to false, draining", zap.Duration("delay", cfg.Graceful.ReadinessDelay))
		time.Sleep(cfg.Graceful.ReadinessDelay)

		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Graceful.ShutdownTimeout)
		defer cancel()

		lg.Info("Shutting down server", zap.Duration("timeout", cfg.Graceful.ShutdownTimeout))
		if err := server.Shutdown(shutdownCtx); err != nil {
			lg.Error("Server shutdown error", zap.Error(err))
		}
		healthSvc.Stop()
		close(shutdownDone)
	}()

	lg.Info("Server listening", zap.String("addr", cfg.Addr))
	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return errors.Wrap(err, "server")
	}
	<-shutdownDone
	return nil
}
