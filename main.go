package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"

	"push-dispatch-go/internal/config"
	"push-dispatch-go/internal/handlers"
	"push-dispatch-go/internal/logging"
	"push-dispatch-go/internal/push"
	"push-dispatch-go/internal/store"
)

const name = "push-dispatch"

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load()
	if err != nil {
		// The logger level comes from config, so fall back to a default one here.
		logger, cleanup := logging.InitializeLogger(name, "info")
		logger.Errorw("failed to load configuration", "error", err)
		cleanup()
		os.Exit(1)
	}

	logger, cleanup := logging.InitializeLogger(name, cfg.LogLevel)
	defer cleanup()

	// Initialize PostgreSQL store (subscriptions and notification records)
	pgStore, err := store.NewPostgresStore(cfg.DatabaseURL)
	if err != nil {
		logger.Fatalw("failed to connect to PostgreSQL", "error", err)
	}
	defer pgStore.Close()

	if err := pgStore.RunMigrations(ctx); err != nil {
		logger.Fatalw("failed to run migrations", "error", err)
	}
	logger.Info("database migrations completed")

	// Redis is optional: shared dedup and the dispatch event stream.
	var redisStore *store.RedisStore
	if cfg.RedisAddr != "" {
		redisStore = store.NewRedisStore(&redis.Options{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		})
		defer redisStore.Close()

		pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		err := redisStore.Ping(pingCtx)
		cancel()
		if err != nil {
			logger.Fatalw("failed to connect to Redis", "addr", cfg.RedisAddr, "error", err)
		}
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	metrics := push.NewMetrics(reg)

	creds := push.NewCredentialManager(os.LookupEnv)
	if !creds.EnsureReady() {
		logger.Warnw("VAPID keys not found in environment; push routes will answer 503",
			"hint", "set VAPID_PUBLIC_KEY and VAPID_PRIVATE_KEY")
	}

	sender := push.NewWebPushSender(creds, cfg.PushTTLSeconds, cfg.PushSendTimeout)
	dispatcher := push.NewDispatcher(pgStore, sender, logger, push.DispatcherOptions{
		Metrics:     metrics,
		Concurrency: cfg.PushMaxConcurrency,
	})

	deps := handlers.Deps{
		Subscriptions: pgStore,
		Notifications: pgStore,
		Dispatcher:    dispatcher,
		Dedup:         push.NewDedupCache(),
		Credentials:   creds,
		Auth:          handlers.NewAuthenticator(cfg.JWTSecret, cfg.JWTIssuer),
		Metrics:       metrics,
		Logger:        logger,
		WebhookSecret: cfg.WebhookSecret,
	}
	if redisStore != nil {
		deps.Events = redisStore
		deps.Stream = redisStore
		if cfg.DedupBackend == config.DedupRedis {
			deps.Dedup = push.NewSharedDedup(redisStore, logger)
		}
	}
	if cfg.WebhookSecret == "" {
		logger.Warn("WEBHOOK_SECRET is not set; the webhook route rejects every call")
	}

	h := handlers.NewHandler(deps)

	mux := http.NewServeMux()
	h.Register(mux)
	mux.Handle("GET /metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg}))

	server := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           handlers.CorsSettings(cfg.CORSAllowedOrigins).Handler(mux),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		logger.Infow("listening", "addr", server.Addr, "dedup_backend", cfg.DedupBackend)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatalw("server failed", "error", err)
		}
	}()

	<-ctx.Done()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	logger.Info("shutting down server")
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Errorw("failed to shutdown server", "error", err)
	}
}
