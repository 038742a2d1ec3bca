package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/robfig/cron/v3"

	"campusguard/internal/config"
	handlers "campusguard/internal/handlers/shared"
	"campusguard/internal/middleware"
	"campusguard/internal/repositories/mongodb"
	"campusguard/internal/services"
	"campusguard/pkg/cache"
	"campusguard/pkg/database"
	"campusguard/pkg/logger"
	"campusguard/pkg/websocket"
	"campusguard/routes"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	appLogger, err := logger.NewLogger(&logger.Config{
		Level:   logger.LogLevel(cfg.App.LogLevel),
		Format:  cfg.App.LogFormat,
		Output:  "stdout",
		AppName: cfg.App.Name,
		Version: cfg.App.Version,
	})
	if err != nil {
		log.Fatalf("Failed to create logger: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Mongo is a mirror, not a dependency of the request path. Start even if it is down.
	db, err := database.Connect(&database.DatabaseConfig{
		URI:            cfg.Database.URI,
		Database:       cfg.Database.Database,
		MaxPoolSize:    cfg.Database.MaxPoolSize,
		MinPoolSize:    cfg.Database.MinPoolSize,
		ConnectTimeout: cfg.Database.ConnectTimeout,
		SocketTimeout:  cfg.Database.SocketTimeout,
	})
	if err != nil {
		appLogger.WithError(err).Fatal("Failed to create MongoDB client")
	}
	defer db.Close()

	// retried by the persistence job until it succeeds once
	migrator := database.NewMigrator(db.Database, appLogger)
	if err := db.Ping(ctx); err != nil {
		appLogger.WithError(err).Warn("MongoDB unreachable, running without durable mirror until it recovers")
	} else if err := migrator.UpOnce(ctx); err != nil {
		appLogger.WithError(err).Warn("Failed to run migrations, will retry")
	}

	redisCache := connectRedis(cfg, appLogger)
	if redisCache != nil {
		defer redisCache.Close()
	}

	hub := websocket.NewHub(appLogger)
	engine := buildEngine(cfg, db, redisCache, hub, appLogger)
	defer engine.shutdown()

	go hub.Run(ctx)
	go engine.persister.Run(ctx)

	if err := engine.service.Restore(ctx); err != nil {
		appLogger.WithError(err).Warn("Failed to restore engine state, starting empty")
	}

	scheduler := cron.New(cron.WithChain(cron.Recover(cron.DefaultLogger)))
	if err := scheduleJobs(scheduler, cfg, engine, migrator, appLogger); err != nil {
		appLogger.WithError(err).Fatal("Failed to schedule background jobs")
	}
	scheduler.Start()
	defer func() { <-scheduler.Stop().Done() }()

	router := setupRouter(cfg, engine, hub, redisCache, appLogger)

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.App.Port),
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		appLogger.Infof("Starting server on port %d", cfg.App.Port)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			appLogger.WithError(err).Fatal("Server failed")
		}
	}()

	<-ctx.Done()
	appLogger.Info("Shutting down server")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		appLogger.WithError(err).Error("Server forced to shutdown")
	}

	if n, err := engine.persister.Flush(shutdownCtx); err != nil {
		appLogger.WithError(err).WithField("remaining", engine.persister.Pending()).Warn("Final persistence flush incomplete")
	} else {
		appLogger.WithField("flushed", n).Info("Final persistence flush done")
	}
}

// connectRedis returns nil when Redis is unreachable; callers fall back to memory.
func connectRedis(cfg *config.Config, log *logger.Logger) *cache.RedisCache {
	redisCache, err := cache.NewRedisCache(&cache.RedisConfig{
		Host:         cfg.Redis.Host,
		Port:         cfg.Redis.Port,
		Password:     cfg.Redis.Password,
		DB:           cfg.Redis.DB,
		PoolSize:     cfg.Redis.PoolSize,
		MinIdleConns: cfg.Redis.MinIdleConns,
		IdleTimeout:  cfg.Redis.IdleTimeout,
		DialTimeout:  cfg.Redis.DialTimeout,
		ReadTimeout:  cfg.Redis.ReadTimeout,
		WriteTimeout: cfg.Redis.WriteTimeout,
	})
	if err != nil {
		log.WithError(err).Warn("Redis unavailable, using in-memory state")
		return nil
	}
	return redisCache
}

func scheduleJobs(c *cron.Cron, cfg *config.Config, e *engine, migrator *database.Migrator, log *logger.Logger) error {
	if _, err := c.AddFunc(cfg.Emergency.PersistRetrySpec, func() {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if err := migrator.UpOnce(ctx); err != nil {
			log.WithError(err).Debug("Migrations still pending")
		}
		if _, err := e.persister.Flush(ctx); err != nil {
			log.WithError(err).Debug("Persistence retry incomplete")
		}
	}); err != nil {
		return fmt.Errorf("persist retry schedule: %w", err)
	}

	if _, err := c.AddFunc(cfg.Emergency.StaleSweepSpec, func() {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		n, err := e.directory.SweepStale(ctx, cfg.Emergency.GuardianStaleAfter)
		if err != nil {
			log.WithError(err).Warn("Stale guardian sweep failed")
			return
		}
		if n > 0 {
			log.WithField("stale", n).Info("Flagged stale guardians")
		}
	}); err != nil {
		return fmt.Errorf("stale sweep schedule: %w", err)
	}

	return nil
}

func setupRouter(cfg *config.Config, e *engine, hub *websocket.Hub, redisCache *cache.RedisCache, log *logger.Logger) *gin.Engine {
	if !cfg.App.Debug {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(middleware.RequestIDMiddleware())
	router.Use(middleware.CORSMiddleware(cfg.Security.CORSAllowedOrigins))
	router.Use(middleware.LoggingMiddleware(log))
	if len(cfg.Security.TrustedProxies) > 0 {
		if err := router.SetTrustedProxies(cfg.Security.TrustedProxies); err != nil {
			log.WithError(err).Warn("Invalid trusted proxies")
		}
	}

	limiter := middleware.NewMemoryRateLimiter(cfg.Security.RateLimitPerMinute, log)
	if redisCache != nil {
		redisLimiter, err := middleware.NewRedisRateLimiter(redisCache.Client(), cfg.Security.RateLimitPerMinute, log)
		if err != nil {
			log.WithError(err).Warn("Redis rate limiter unavailable, limiting per instance")
		} else {
			limiter = redisLimiter
		}
	}

	wsHandler := websocket.NewHandler(hub, websocket.HandlerConfig{
		ReadBufferSize:    cfg.WebSocket.ReadBufferSize,
		WriteBufferSize:   cfg.WebSocket.WriteBufferSize,
		HandshakeTimeout:  cfg.WebSocket.HandshakeTimeout,
		EnableCompression: cfg.WebSocket.EnableCompression,
		AllowedOrigins:    cfg.WebSocket.AllowedOrigins,
	}, routes.WebSocketIdentity, log)

	v1 := router.Group("/api/v1")
	v1.Use(limiter.Middleware())
	routes.SetupEmergencyRoutes(v1, routes.Handlers{
		SOS:       handlers.NewSOSHandler(e.service),
		Escort:    handlers.NewEscortHandler(e.service),
		Guardian:  handlers.NewGuardianHandler(e.directory, e.service),
		WebSocket: wsHandler,
	}, cfg.Security.JWTSecret, log)

	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status":              "healthy",
			"version":             cfg.App.Version,
			"state_backend":       e.backend,
			"pending_persistence": e.persister.Pending(),
			"realtime_sessions":   hub.SessionCount(),
		})
	})
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	return router
}

// repositories are built here so the services package only sees interfaces.
func newPersister(db *database.MongoDB, log *logger.Logger) *services.Persister {
	return services.NewPersister(
		mongodb.NewAlertRepository(db.Database),
		mongodb.NewGuardianRepository(db.Database),
		log,
	)
}
