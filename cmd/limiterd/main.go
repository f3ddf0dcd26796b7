package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"action-limiter/actionlimit"
	"action-limiter/actionlimit/application"
	"action-limiter/actionlimit/domain"
	"action-limiter/actionlimit/infra"
	"action-limiter/internal/config"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
)

func main() {
	if err := config.LoadDotEnv(); err != nil {
		slog.Error("dotenv error", slog.Any("error", err))
		os.Exit(1)
	}
	cfg, err := config.Load()
	if err != nil {
		slog.Error("config error", slog.Any("error", err))
		os.Exit(1)
	}

	logger := config.NewLogger(os.Stderr, cfg.LogLevel, cfg.LogFormat)
	slog.SetDefault(logger)

	if err := run(cfg, logger); err != nil {
		logger.Error("limiterd stopped", slog.Any("error", err))
		os.Exit(1)
	}
}

func run(cfg config.Config, logger *slog.Logger) error {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	var rdb *redis.Client
	if cfg.RedisAddr != "" {
		rdb = redis.NewClient(&redis.Options{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		})
		defer func() { _ = rdb.Close() }()

		pingCtx, pingCancel := context.WithTimeout(ctx, 2*time.Second)
		_, err := rdb.Ping(pingCtx).Result()
		pingCancel()
		if err != nil {
			return fmt.Errorf("redis ping: %w", err)
		}
	}

	store, closeStore, err := openStore(cfg, rdb)
	if err != nil {
		return err
	}
	defer closeStore()

	var stats []domain.StatsStore
	if cfg.StatsEnabled {
		stats = append(stats, infra.NewRedisStatsStore(
			rdb,
			infra.WithStatsPrefix(cfg.StatsPrefix),
			infra.WithStatsTTL(cfg.StatsTTL),
			infra.WithStatsBucket(cfg.StatsBucket),
		))
	}
	if cfg.MetricsEnabled {
		prom, err := infra.NewPrometheusStatsStore(prometheus.DefaultRegisterer)
		if err != nil {
			return err
		}
		stats = append(stats, prom)
	}

	svc := application.New(
		application.WithPolicies(cfg.Policies),
		application.WithStore(store),
		application.WithStats(infra.FanOutStats(stats...)),
		application.WithKeyPrefix(cfg.KeyPrefix),
		application.WithLogger(logger),
	)

	application.Refresher{
		Service: svc,
		Every:   cfg.RefreshEvery,
		OnRefresh: func(states []domain.State) {
			for _, st := range states {
				if !st.CanPerform {
					logger.Debug("category throttled",
						slog.String("category", string(st.Category)),
						slog.Time("reset", st.ResetTime))
				}
			}
		},
	}.Start(ctx)

	router := actionlimit.NewRouter(svc, actionlimit.WithRouterLogger(logger))
	if cfg.MetricsEnabled {
		router.Handle("/metrics", promhttp.Handler())
	}

	srv := &http.Server{
		Addr:              cfg.ListenAddr,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       90 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	logger.Info("limiterd listening",
		slog.String("addr", cfg.ListenAddr),
		slog.String("store", cfg.Store),
		slog.String("keyPrefix", cfg.KeyPrefix),
		slog.Int("categories", len(cfg.Policies)),
		slog.Duration("refreshEvery", cfg.RefreshEvery),
		slog.Bool("stats", cfg.StatsEnabled),
		slog.Bool("metrics", cfg.MetricsEnabled))

	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func openStore(cfg config.Config, rdb *redis.Client) (domain.HistoryStore, func(), error) {
	switch cfg.Store {
	case config.StoreRedis:
		return infra.NewRedisStore(rdb, infra.WithHistoryTTL(cfg.MaxWindow())), func() {}, nil
	case config.StoreSQLite:
		s, err := infra.OpenSQLiteStore(cfg.SQLitePath)
		if err != nil {
			return nil, nil, err
		}
		return s, func() { _ = s.Close() }, nil
	default:
		return infra.NewMemoryStore(), func() {}, nil
	}
}
