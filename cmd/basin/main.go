package main

import (
	"context"
	"database/sql"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/go-redis/redis/v8"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/robfig/cron/v3"
	"golang.org/x/sync/errgroup"

	"github.com/basinhq/basin/pkg/api"
	"github.com/basinhq/basin/pkg/authz"
	"github.com/basinhq/basin/pkg/config"
	"github.com/basinhq/basin/pkg/connectors"
	"github.com/basinhq/basin/pkg/middleware"
	"github.com/basinhq/basin/pkg/observability"
	"github.com/basinhq/basin/pkg/pools"
	"github.com/basinhq/basin/pkg/projects"
	"github.com/basinhq/basin/pkg/storage/postgres"
)

func main() {
	cfg, err := config.LoadConfig()
	if err != nil {
		observability.NewLogger(observability.ErrorLevel, os.Stderr).
			WithError(err).Error("failed to load configuration")
		os.Exit(1)
	}

	logger := observability.NewLogger(cfg.Observability.LogLevel, os.Stdout)

	if err := run(cfg, logger); err != nil {
		logger.WithError(err).Error("server exited with error")
		os.Exit(1)
	}
}

func run(cfg *config.Config, logger *observability.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	db, err := postgres.Connect(ctx, cfg.Database)
	if err != nil {
		return err
	}
	defer db.Close()

	for _, migrate := range []func(context.Context, *sql.DB) error{
		pools.RunMigrations,
		projects.RunMigrations,
		connectors.RunMigrations,
	} {
		if err := migrate(ctx, db); err != nil {
			return err
		}
	}
	logger.Info("database migrations applied")

	var redisClient *redis.Client
	if cfg.Authz.CacheEnabled {
		redisClient, err = postgres.ConnectRedis(ctx, cfg.Redis)
		if err != nil {
			return err
		}
		defer redisClient.Close()
	}

	registry := prometheus.NewRegistry()
	var metrics *observability.Metrics
	if cfg.Observability.MetricsEnabled {
		metrics = observability.NewMetrics(registry)
	}

	var az authz.Authorizer = authz.NewClient(cfg.Authz.OracleURL)
	var cached *authz.CachedAuthorizer
	if cfg.Authz.CacheEnabled {
		cached, err = authz.NewCachedAuthorizer(az, redisClient, cfg.Authz.L1CacheSize, cfg.Authz.CacheTTL)
		if err != nil {
			return err
		}
		az = cached.WithMetrics(metrics)
	}
	az = authz.NewInstrumented(az, metrics)

	resolver, err := middleware.NewCallerResolver(ctx, cfg.Auth)
	if err != nil {
		return err
	}

	server := api.NewServer(api.Deps{
		Logger:     logger,
		Metrics:    metrics,
		Resolver:   resolver,
		Projects:   projects.NewService(db, az),
		Connectors: connectors.NewService(db, az),
		Pools:      pools.NewService(db),
	})

	apiServer := &http.Server{
		Addr:         cfg.Server.Host + ":" + cfg.Server.Port,
		Handler:      server,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	healthMux := http.NewServeMux()
	observability.RegisterHealthRoutes(healthMux, observability.NewHealthChecker(db, redisClient))
	if cfg.Observability.MetricsEnabled {
		observability.RegisterMetricsEndpoint(healthMux, registry)
	}
	healthServer := &http.Server{
		Addr:    cfg.Server.Host + ":" + cfg.Server.HealthPort,
		Handler: healthMux,
	}

	scheduler := cron.New()
	if cached != nil {
		if _, err := scheduler.AddFunc(cfg.Authz.SweepSchedule, func() {
			removed := cached.SweepExpired()
			logger.WithField("removed", removed).Debug("swept expired authz decisions")
		}); err != nil {
			return err
		}
	}
	if metrics != nil {
		if _, err := scheduler.AddFunc("@every 15s", func() {
			postgres.UpdatePoolMetrics(db, metrics)
		}); err != nil {
			return err
		}
	}
	scheduler.Start()
	defer scheduler.Stop()

	group, groupCtx := errgroup.WithContext(ctx)

	group.Go(func() error {
		logger.WithField("addr", apiServer.Addr).Info("starting API server")
		if err := apiServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	group.Go(func() error {
		logger.WithField("addr", healthServer.Addr).Info("starting health server")
		if err := healthServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	group.Go(func() error {
		<-groupCtx.Done()
		logger.Info("shutting down")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()

		if err := apiServer.Shutdown(shutdownCtx); err != nil {
			return err
		}
		return healthServer.Shutdown(shutdownCtx)
	})

	return group.Wait()
}
