package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"shareit/internal/api"
	"shareit/internal/config"
	"shareit/internal/database"
	"shareit/internal/domain"
	"shareit/internal/events"
	"shareit/internal/export"
	"shareit/internal/logging"
	"shareit/internal/metrics"
	"shareit/internal/repository"
	"shareit/internal/seed"
	"shareit/internal/service"
	"shareit/internal/worker"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

const (
	healthInterval = 15 * time.Second
	sweepInterval  = time.Minute
)

func main() {
	if err := run(); err != nil {
		log.Fatalf("Fatal error: %v", err)
	}
}

func run() error {
	cfg, logger, closer, err := loadConfigAndLogger()
	if err != nil {
		return err
	}
	if closer != nil {
		defer (func() { _ = closer.Close() })()
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	db, err := initDatabase(ctx, cfg, &logger)
	if err != nil {
		return err
	}
	defer db.Close()

	if !cfg.API.Enabled {
		logger.Warn().Msg("API is disabled in config, but starting API application. Check your config.")
	}

	redisClient := initRedis(ctx, cfg, &logger)
	if redisClient != nil {
		defer redisClient.Close()
	}

	bus := events.NewEventBus()
	stopForwarder := startForwarder(cfg, redisClient, bus, &logger)

	svc := buildServices(ctx, cfg, db, redisClient, bus, &logger)

	backups := database.NewBackupService(db, cfg.Backup, logging.Component(&logger, "backup"))
	if backups.Enabled() {
		go backups.Start(ctx)
	}

	startMetrics(ctx, cfg, &logger)

	var grpcServer *api.GRPCServer
	if cfg.API.GRPC.Enabled {
		grpcServer, err = api.NewGRPCServer(cfg.API, db.Ping, &logger)
		if err != nil {
			logger.Error().Err(err).Msg("create grpc server")
			return err
		}
		go grpcServer.WatchHealth(ctx, healthInterval)
	}

	httpServer := api.NewHTTPServer(cfg.API, api.NewRouter(cfg.API, svc, &logger), &logger)

	return startServers(ctx, grpcServer, httpServer, stopForwarder, cfg, &logger)
}

func loadConfigAndLogger() (*config.Config, zerolog.Logger, io.Closer, error) {
	configPath := os.Getenv("CONFIG_PATH")
	if configPath == "" {
		configPath = "configs/config.yaml"
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, zerolog.Logger{}, nil, fmt.Errorf("load config: %w", err)
	}

	baseLogger, closer, err := logging.New(cfg.Logging, cfg.App)
	if err != nil {
		return nil, zerolog.Logger{}, nil, fmt.Errorf("init logger: %w", err)
	}
	logger := baseLogger.With().Str("component", "api-main").Logger()

	return cfg, logger, closer, nil
}

func initDatabase(ctx context.Context, cfg *config.Config, logger *zerolog.Logger) (*database.DB, error) {
	db, err := database.Open(cfg.Database.Driver, cfg.Database.DSN(), logger)
	if err != nil {
		logger.Error().Err(err).Str("driver", cfg.Database.Driver).Msg("init database")
		return nil, err
	}

	seedPath := os.Getenv("SEED_PATH")
	if seedPath == "" {
		seedPath = cfg.SeedFile
	}
	if seedPath == "" {
		return db, nil
	}

	fixtures, err := seed.Read(seedPath)
	if err != nil {
		_ = db.Close()
		logger.Error().Err(err).Str("seed_path", seedPath).Msg("read seed")
		return nil, err
	}
	if _, err := seed.Apply(ctx, db, fixtures, logging.Component(logger, "seed")); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("apply seed: %w", err)
	}
	return db, nil
}

func initRedis(ctx context.Context, cfg *config.Config, logger *zerolog.Logger) *redis.Client {
	if cfg.Redis.Address == "" {
		return nil
	}

	redisClient := repository.NewRedisClient(cfg.Redis)
	if err := repository.Ping(ctx, redisClient); err != nil {
		logger.Warn().Err(err).Msg("redis connection failed, continuing without redis")
		_ = redisClient.Close()
		return nil
	}

	logger.Info().Str("addr", cfg.Redis.Address).Msg("redis connected")
	return redisClient
}

// startForwarder runs outside the signal context: it is stopped only after the servers
// have drained, so events from in-flight requests still reach redis.
func startForwarder(cfg *config.Config, redisClient *redis.Client, bus *events.EventBus, logger *zerolog.Logger) (stop func()) {
	if !cfg.Events.Enabled {
		return func() {}
	}
	if redisClient == nil {
		logger.Warn().Msg("events enabled but redis is unavailable, lifecycle events stay in-process")
		return func() {}
	}

	forwarder := worker.NewEventForwarder(redisClient, cfg.Events, logging.Component(logger, "event-forwarder"))
	forwarder.Attach(bus)
	return forwarder.Run()
}

func buildServices(
	ctx context.Context,
	cfg *config.Config,
	db *database.DB,
	redisClient *redis.Client,
	bus *events.EventBus,
	logger *zerolog.Logger,
) api.Services {
	memory := repository.NewMemoryRateLimiter()
	go sweepRateLimits(ctx, memory)

	var limiter domain.RateLimiter = memory
	if redisClient != nil {
		limiter = repository.NewFailoverRateLimiter(
			repository.NewRedisRateLimiter(redisClient, ""),
			memory,
			logging.Component(logger, "rate-limit"),
		)
	}

	svcLogger := logging.Component(logger, "service")
	availability := service.NewAvailabilityService(db, cfg.Booking.ProjectionExcludeRejected, svcLogger)
	bookings := service.NewBookingService(db, bus, cfg.Booking, svcLogger)

	return api.Services{
		Users:        service.NewUserService(db, svcLogger),
		Items:        service.NewItemService(db, availability, svcLogger),
		Bookings:     bookings,
		Availability: availability,
		Requests:     service.NewRequestService(db, svcLogger),
		Report:       export.NewOwnerReport(bookings, cfg.Exports.MaxRows, logging.Component(logger, "export")),
		RateLimit:    service.NewRateLimitService(limiter, cfg.RateLimit.Requests, cfg.RateLimit.Window, svcLogger),
		Health:       db.Ping,
	}
}

func sweepRateLimits(ctx context.Context, limiter *repository.MemoryRateLimiter) {
	ticker := time.NewTicker(sweepInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			limiter.Sweep()
		}
	}
}

func startMetrics(ctx context.Context, cfg *config.Config, logger *zerolog.Logger) {
	if !cfg.Monitoring.PrometheusEnabled {
		return
	}

	metrics.Register()
	go startMetricsServer(ctx, cfg.Monitoring.PrometheusPort, logger)
}

func startServers(
	ctx context.Context,
	grpcServer *api.GRPCServer,
	httpServer *api.HTTPServer,
	stopForwarder func(),
	cfg *config.Config,
	logger *zerolog.Logger,
) error {
	if grpcServer != nil {
		go func() {
			if err := grpcServer.Serve(); err != nil {
				logger.Error().Err(err).Msg("grpc server stopped")
			}
		}()
	}

	go func() {
		if !cfg.API.HTTP.Enabled {
			return
		}
		if err := httpServer.Start(); err != nil {
			logger.Error().Err(err).Msg("http server stopped")
		}
	}()

	logger.Info().
		Bool("grpc", grpcServer != nil).
		Int("http_port", cfg.API.HTTP.Port).
		Msg("API server started")

	<-ctx.Done()
	logger.Info().Msg("shutdown signal received")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if grpcServer != nil {
		grpcServer.Shutdown(shutdownCtx)
	}
	_ = httpServer.Shutdown(shutdownCtx)
	stopForwarder()

	logger.Info().Msg("API server stopped")
	return nil
}

func startMetricsServer(ctx context.Context, port int, logger *zerolog.Logger) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())

	srv := &http.Server{Addr: fmt.Sprintf(":%d", port), Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		<-ctx.Done()
		ctxShutdown, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer cancel()
		_ = srv.Shutdown(ctxShutdown)
	}()
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Error().Err(err).Msg("metrics server error")
	}
}
