package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/kailas-cloud/placedex/internal/config"
	dbRedis "github.com/kailas-cloud/placedex/internal/db/redis"
	logpkg "github.com/kailas-cloud/placedex/internal/logger"
	"github.com/kailas-cloud/placedex/internal/metrics"
	indexrepo "github.com/kailas-cloud/placedex/internal/repository/index"
	"github.com/kailas-cloud/placedex/internal/repository/negcache"
	placerepo "github.com/kailas-cloud/placedex/internal/repository/place"
	"github.com/kailas-cloud/placedex/internal/repository/quota"
	"github.com/kailas-cloud/placedex/internal/resilience"
	chiTransport "github.com/kailas-cloud/placedex/internal/transport/chi"
	"github.com/kailas-cloud/placedex/internal/transport/googleplaces"
	autocompleteuc "github.com/kailas-cloud/placedex/internal/usecase/autocomplete"
	cataloguc "github.com/kailas-cloud/placedex/internal/usecase/catalog"
	healthuc "github.com/kailas-cloud/placedex/internal/usecase/health"
	searchuc "github.com/kailas-cloud/placedex/internal/usecase/search"
	usageuc "github.com/kailas-cloud/placedex/internal/usecase/usage"
	"github.com/kailas-cloud/placedex/internal/version"
)

func main() {
	// Load configuration based on ENV
	env := config.GetEnv()

	cfg, err := config.Load(env)
	if err != nil {
		panic("failed to load config: " + err.Error())
	}

	logger, err := logpkg.NewLogger(env, cfg.Logging.Level)
	if err != nil {
		panic("failed to create logger: " + err.Error())
	}
	defer func() { _ = logger.Sync() }()

	logger.Info("Starting placedex API server",
		zap.String("version", version.Version),
		zap.String("commit", version.Commit),
		zap.String("env", env),
		zap.Int("http_port", cfg.HTTP.Port),
		zap.Strings("redis_addrs", cfg.Database.Addrs),
		zap.String("data_dir", cfg.Storage.DataDir),
	)

	// Fast index / KV store (Redis via rueidis)
	kv, err := dbRedis.NewStore(dbRedis.Config{
		Addrs:    cfg.Database.Addrs,
		Password: cfg.Database.Password,
	})
	if err != nil {
		logger.Fatal("Failed to create index store", zap.Error(err))
	}
	defer kv.Close()

	ctx := context.Background()
	if err := kv.WaitForReady(ctx, time.Duration(cfg.Database.ReadinessTimeout)*time.Second); err != nil {
		logger.Fatal("Index store not ready", zap.Error(err))
	}
	logger.Info("Connected to index store")

	// Durable record store (SQLite)
	store, err := placerepo.Open(cfg.Storage.DataDir)
	if err != nil {
		logger.Fatal("Failed to open record store", zap.Error(err))
	}
	defer store.Close()

	metrics.RegisterCoreMetrics()

	// Repositories
	index := indexrepo.New(kv, cfg.Storage.KeyPrefix)
	if err := index.EnsureIndexes(ctx); err != nil {
		logger.Fatal("Failed to ensure search indexes", zap.Error(err))
	}
	negCache := negcache.New(kv, cfg.Storage.KeyPrefix,
		time.Duration(cfg.Resolver.NegativeCacheTTLSec)*time.Second)
	quotaCounter := quota.New(kv, cfg.Storage.KeyPrefix)

	// Breakers — one per external dependency, state exported as a gauge.
	breakers := resilience.NewRegistry(resilience.BreakerSettings{
		FailureThreshold: cfg.Provider.Breaker.FailureThreshold,
		Timeout:          time.Duration(cfg.Provider.Breaker.TimeoutSec) * time.Second,
		HalfOpenMaxCalls: cfg.Provider.Breaker.HalfOpenMaxCalls,
	}).OnStateChange(func(name string, _, to resilience.State) {
		metrics.BreakerState.WithLabelValues(name).Set(float64(to))
		logger.Warn("breaker state change", zap.String("dependency", name), zap.Stringer("state", to))
	})

	// External places provider
	provider := googleplaces.NewClient(&googleplaces.Config{
		BaseURL:          cfg.Provider.BaseURL,
		APIKey:           cfg.Provider.APIKey,
		Provider:         cfg.Provider.Name,
		Timeout:          time.Duration(cfg.Provider.TimeoutSec) * time.Second,
		GeohashPrecision: cfg.Resolver.GeohashPrecision,
		Breaker:          breakers.Get(cfg.Provider.Name),
		Retry: resilience.RetryPolicy{
			MaxRetries: cfg.Provider.Retry.MaxRetries,
			BaseDelay:  time.Duration(cfg.Provider.Retry.BaseDelayMS) * time.Millisecond,
			MaxDelay:   time.Duration(cfg.Provider.Retry.MaxDelayMS) * time.Millisecond,
			Multiplier: cfg.Provider.Retry.Multiplier,
		},
		Logger: logger,
	})

	// Use case services
	catalogSvc := cataloguc.New(store, index, logger)
	searchSvc := searchuc.New(index, store, provider, catalogSvc, searchuc.Options{
		MinResults:   cfg.Resolver.MinResultsSearch,
		DefaultLimit: cfg.Resolver.DefaultLimit,
		MaxLimit:     cfg.Resolver.MaxLimit,
		Deadline:     time.Duration(cfg.Resolver.RequestDeadlineSec) * time.Second,
	}, logger)
	autocompleteSvc := autocompleteuc.New(index, store, provider, negCache, quotaCounter, catalogSvc,
		autocompleteuc.Options{
			MinResults:     cfg.Resolver.MinResultsAutocomplete,
			DefaultLimit:   cfg.Resolver.DefaultLimit,
			MaxLimit:       cfg.Resolver.MaxLimit,
			DailyCallLimit: cfg.Provider.DailyCallLimit,
		}, logger)
	usageSvc := usageuc.New(quotaCounter, cfg.Provider.DailyCallLimit)
	healthSvc := healthuc.New(store, index)

	server := chiTransport.NewServer(searchSvc, autocompleteSvc, catalogSvc, usageSvc, healthSvc, logger)

	r := chi.NewRouter()
	r.Use(jsonRecoverer(logger))
	r.Use(chiMiddleware.RequestID)
	r.Use(wideEventMiddleware(logger))
	r.Use(chiTransport.BearerAuthMiddleware(cfg.Auth.APIKeys))
	r.Use(metrics.Middleware())
	r.Mount("/", server.Routes())

	addr := fmt.Sprintf(":%d", cfg.HTTP.Port)
	srv := &http.Server{
		Addr:         addr,
		Handler:      r,
		ReadTimeout:  time.Duration(cfg.HTTP.ReadTimeoutSec) * time.Second,
		WriteTimeout: time.Duration(cfg.HTTP.WriteTimeoutSec) * time.Second,
	}

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)

	go func() {
		logger.Info("Starting HTTP server", zap.String("addr", addr))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("HTTP server error", zap.Error(err))
		}
	}()

	<-quit
	logger.Info("Received shutdown signal")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), time.Duration(cfg.HTTP.ShutdownSec)*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("Error during shutdown", zap.Error(err))
	}

	logger.Info("Server stopped gracefully")
}

// jsonRecoverer is a recovery middleware that returns JSON instead of a plain text stacktrace.
func jsonRecoverer(logger *zap.Logger) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				if rvr := recover(); rvr != nil {
					logger.Error("panic recovered",
						zap.Any("panic", rvr),
						zap.Stack("stacktrace"),
					)
					w.Header().Set("Content-Type", "application/json")
					w.WriteHeader(http.StatusInternalServerError)
					_ = json.NewEncoder(w).Encode(map[string]string{
						"code":    "internal_error",
						"message": "internal error",
					})
				}
			}()
			next.ServeHTTP(w, r)
		})
	}
}

// wideEventMiddleware emits a canonical log line per request and propagates X-Request-ID.
func wideEventMiddleware(logger *zap.Logger) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()

			// chi.middleware.RequestID already placed request_id in context
			requestID := chiMiddleware.GetReqID(r.Context())

			// Set X-Request-ID in response header
			if requestID != "" {
				w.Header().Set("X-Request-ID", requestID)
			}

			// Per-request logger with request_id
			reqLogger := logger.With(zap.String("request_id", requestID))
			ctx := logpkg.ContextWithLogger(r.Context(), reqLogger)

			ww := chiMiddleware.NewWrapResponseWriter(w, r.ProtoMajor)
			next.ServeHTTP(ww, r.WithContext(ctx))

			// Canonical log line — one line per request
			reqLogger.Info("http_request",
				zap.String("method", r.Method),
				zap.String("path", r.URL.Path),
				zap.Int("status", ww.Status()),
				zap.Duration("latency", time.Since(start)),
				zap.String("ip", r.RemoteAddr),
				zap.Int64("content_length", r.ContentLength),
				zap.String("user_agent", r.UserAgent()),
				zap.Int("response_bytes", ww.BytesWritten()),
			)
		})
	}
}
