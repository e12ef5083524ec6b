// Package main provides the entry point for the Clixy redirect service.
//
//	@title			Clixy Redirect API
//	@version		1.0.0
//	@description	Tracking link redirects with background click capture and per-link statistics.
//
//	@license.name	MIT
//	@license.url	https://opensource.org/licenses/MIT
//
//	@host		localhost:8080
//	@BasePath	/
//
//	@securityDefinitions.apikey	BearerAuth
//	@in							header
//	@name						Authorization
//	@description				JWT Authorization header. Format: "Bearer {token}"
package main

import (
	"Clixy-Backend/internal/analytics"
	"Clixy-Backend/internal/auth"
	"Clixy-Backend/internal/config"
	"Clixy-Backend/internal/database"
	"Clixy-Backend/internal/geo"
	httpHandler "Clixy-Backend/internal/handler/http"
	"Clixy-Backend/internal/ratelimit"
	"Clixy-Backend/internal/repository/cache"
	"Clixy-Backend/internal/repository/postgres"
	"Clixy-Backend/internal/service"
	"Clixy-Backend/pkg/logger"
	"Clixy-Backend/pkg/useragent"
	"context"
	"errors"
	lg "log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/automaxprocs/maxprocs"
	"go.uber.org/zap"

	_ "Clixy-Backend/docs" // Import swagger docs
)

func main() {
	cfg := config.MustLoad()
	log := logger.New(cfg.Env)
	defer func() {
		if err := log.Sync(); err != nil {
			lg.Printf("ERROR: failed to sync zap logger: %v\n", err)
		}
	}()

	undoMaxprocs, err := maxprocs.Set(maxprocs.Logger(log.Sugar().Infof))
	if err != nil {
		log.Warn("failed to set GOMAXPROCS", zap.Error(err))
	}
	defer undoMaxprocs()

	log.Info("starting Clixy redirect service", zap.String("env", cfg.Env))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Initialize database connection
	db, err := database.NewConnection(&cfg.Database, log)
	if err != nil {
		log.Fatal("failed to connect to database", zap.Error(err))
	}
	defer func() {
		if err := database.Close(db, log); err != nil {
			log.Error("failed to close database connection", zap.Error(err))
		}
	}()

	if cfg.Database.AutoMigrate {
		log.Info("running database migrations (auto_migrate: true)")
		if err := database.AutoMigrate(db, log); err != nil {
			log.Fatal("failed to run database migrations", zap.Error(err))
		}
	} else {
		log.Info("skipping database migrations (auto_migrate: false)")
	}

	if cfg.Database.SeedData {
		slug, err := database.SeedData(ctx, db, log)
		if err != nil {
			log.Fatal("failed to seed database", zap.Error(err))
		}
		if slug != "" {
			log.Info("demo link available", zap.String("path", "/r/"+slug))
		}
	}

	rdb := newRedisClient(ctx, cfg, log)
	if rdb != nil {
		defer func() {
			if err := rdb.Close(); err != nil {
				log.Error("failed to close redis client", zap.Error(err))
			}
		}()
	}

	uaParser, err := useragent.NewParser(cfg.UserAgent.RegexesPath, log)
	if err != nil {
		log.Warn("failed to initialize User-Agent parser, using fallback", zap.Error(err))
		uaParser = useragent.NewFallbackParser(log)
	}

	resolver, err := geo.NewResolver(geo.Config{
		TrustEdgeHeaders:  !cfg.Geo.DisableEdgeHeaders,
		EdgeHeaders:       cfg.Geo.EdgeHeaders,
		Endpoint:          cfg.Geo.Endpoint,
		Timeout:           cfg.Geo.Timeout,
		RequestsPerMinute: cfg.Geo.RequestsPerMinute,
		MMDBPath:          cfg.Geo.MMDBPath,
	}, log.Named("geo"))
	if err != nil {
		log.Fatal("failed to initialize country resolver", zap.Error(err))
	}
	defer resolver.Close()

	limiter := newLimiter(ctx, cfg, rdb, log)

	storage := postgres.New(db, log)
	links := cache.NewLinkCache(storage, rdb, cfg.Redis.LinkCacheTTL, log.Named("cache"))

	processor := analytics.NewProcessor(
		storage,
		analytics.NewClassifier(uaParser),
		resolver,
		log.Named("analytics"),
		analytics.ProcessorConfig{
			WorkerCount:     cfg.Analytics.WorkerCount,
			BufferSize:      cfg.Analytics.BufferSize,
			RetryAttempts:   cfg.Analytics.RetryAttempts,
			RetryDelay:      cfg.Analytics.RetryDelay,
			WriteTimeout:    cfg.Analytics.WriteTimeout,
			ShutdownTimeout: cfg.Analytics.ShutdownTimeout,
			VisitorSalt:     cfg.Analytics.VisitorSalt,
		},
	)
	if err := processor.Start(); err != nil {
		log.Fatal("failed to start analytics processor", zap.Error(err))
	}

	if cfg.Auth.JWTSecret == "" {
		log.Warn("auth.jwt_secret is empty, the stats API will reject every request")
	}
	jwtService := auth.NewJWTService(&auth.JWTConfig{
		SecretKey: []byte(cfg.Auth.JWTSecret),
		Issuer:    cfg.Auth.Issuer,
	})

	server := httpHandler.NewServer(
		httpHandler.NewRedirectHandler(links, limiter, processor, log),
		httpHandler.NewHealthHandler(storage, processor, log),
		httpHandler.NewStatsHandler(service.NewStatsService(storage, log), log),
		auth.NewMiddleware(jwtService, cfg.Auth.AllowedOrigins, log),
		log,
	)

	httpServer := &http.Server{
		Addr:         cfg.HTTPServer.Address,
		Handler:      server.SetupRoutes(),
		ReadTimeout:  cfg.HTTPServer.ReadTimeout,
		WriteTimeout: cfg.HTTPServer.WriteTimeout,
		IdleTimeout:  cfg.HTTPServer.IdleTimeout,

		MaxHeaderBytes: cfg.HTTPServer.MaxHeaderBytes,
	}

	go func() {
		log.Info("starting HTTP server", zap.String("address", httpServer.Addr))
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("HTTP server failed", zap.Error(err))
			stop()
		}
	}()

	<-ctx.Done()
	log.Info("shutting down Clixy redirect service...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.HTTPServer.ShutdownTimeout)
	defer shutdownCancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		log.Error("failed to shutdown HTTP server", zap.Error(err))
	} else {
		log.Info("HTTP server stopped")
	}

	// Clicks from requests served before shutdown are still queued.
	if err := processor.Stop(); err != nil {
		log.Warn("analytics processor did not stop cleanly", zap.Error(err))
	}
}

// newRedisClient returns nil when Redis is not configured. An unreachable Redis
// is fatal only when the rate limiter depends on it.
func newRedisClient(ctx context.Context, cfg *config.Config, log *zap.Logger) *redis.Client {
	if cfg.Redis.Addr == "" {
		return nil
	}

	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if err := rdb.Ping(pingCtx).Err(); err != nil {
		if cfg.RateLimit.Backend == "redis" {
			log.Fatal("failed to connect to redis", zap.String("addr", cfg.Redis.Addr), zap.Error(err))
		}
		log.Warn("redis unavailable, link cache disabled", zap.String("addr", cfg.Redis.Addr), zap.Error(err))
		_ = rdb.Close()
		return nil
	}

	log.Info("connected to redis", zap.String("addr", cfg.Redis.Addr))
	return rdb
}

func newLimiter(ctx context.Context, cfg *config.Config, rdb *redis.Client, log *zap.Logger) ratelimit.Limiter {
	limit := ratelimit.Limit{MaxHits: cfg.RateLimit.MaxHits, Window: cfg.RateLimit.Window}

	if cfg.RateLimit.Backend == "redis" {
		log.Info("using redis rate limiter", zap.Int64("max_hits", limit.MaxHits), zap.Duration("window", limit.Window))
		return ratelimit.NewRedisLimiter(rdb, limit)
	}

	limiter, err := ratelimit.NewMemoryLimiter(limit, cfg.RateLimit.MaxKeys)
	if err != nil {
		log.Fatal("failed to create rate limiter", zap.Error(err))
	}
	go limiter.RunJanitor(ctx, cfg.RateLimit.SweepInterval, log.Named("ratelimit"))

	log.Info("using in-memory rate limiter",
		zap.Int64("max_hits", limit.MaxHits),
		zap.Duration("window", limit.Window),
		zap.Int("max_keys", cfg.RateLimit.MaxKeys))
	return limiter
}
