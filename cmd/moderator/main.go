package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/af-corp/chatfilter/internal/config"
	"github.com/af-corp/chatfilter/internal/disposition"
	"github.com/af-corp/chatfilter/internal/gateway"
	"github.com/af-corp/chatfilter/internal/messaging"
	"github.com/af-corp/chatfilter/internal/moderation"
	"github.com/af-corp/chatfilter/internal/probe"
	"github.com/af-corp/chatfilter/internal/store"
	"github.com/af-corp/chatfilter/internal/telemetry"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
)

var version = "dev"

func main() {
	configDir := flag.String("config", "configs", "path to configuration directory")
	flag.Parse()

	// Bootstrap logger until the configured one is known.
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))
	slog.SetDefault(logger)

	loader := config.NewLoader(*configDir, logger)
	if err := loader.Load(); err != nil {
		logger.Error("failed to load configuration", "error", err)
		os.Exit(1)
	}
	cfg := loader.Config()

	logger = newLogger(cfg.Telemetry)
	slog.SetDefault(logger)

	ctx, stop := context.WithCancel(context.Background())
	defer stop()

	metrics := telemetry.NewMetrics(prometheus.DefaultRegisterer)

	// Settings and rules source
	var (
		source store.Source
		dbPool *pgxpool.Pool
	)
	switch cfg.Moderation.RuleSource {
	case config.RuleSourceFile:
		source = store.NewFileSource(loader.Rules)
		logger.Info("serving rules from file", "path", loader.RulesPath(cfg))
	default:
		pool, err := newPool(ctx, cfg.Database)
		if err != nil {
			logger.Error("failed to connect to database", "error", err)
			os.Exit(1)
		}
		defer pool.Close()
		if err := pool.Ping(ctx); err != nil {
			logger.Warn("database not reachable (filter will use fallback settings)", "error", err)
		} else {
			logger.Info("database connected")
		}
		dbPool = pool
		source = store.NewPostgresSource(pool, cfg.Moderation.SettingsKey)
	}

	var rdb *redis.Client
	if dbPool != nil && len(cfg.Redis.Addresses) > 0 && cfg.Redis.Addresses[0] != "" {
		rdb = redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addresses[0],
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
			PoolSize: cfg.Redis.PoolSize,
		})
		if err := rdb.Ping(ctx).Err(); err != nil {
			logger.Warn("redis not reachable (snapshot cache disabled)", "error", err)
			rdb.Close()
			rdb = nil
		} else {
			logger.Info("redis connected")
			defer rdb.Close()
		}
	}

	cached := store.NewCachedSource(source, rdb, cfg.Moderation.SettingsKey, cfg.Store.CacheTTL)
	breaker := store.NewCircuitBreaker(
		cfg.Store.CircuitBreaker.FailureThreshold,
		cfg.Store.CircuitBreaker.RecoveryProbeInterval,
	)
	guarded := store.NewGuardedSource(cached, breaker)

	// Filter
	var compileCache *moderation.CompileCache
	if cfg.Moderation.CompileCache {
		compileCache = moderation.NewCompileCache()
		cached.OnChange(func() {
			compileCache.Reset()
			logger.Info("rule set changed, compile cache reset")
		})
	}
	filter := moderation.NewFilter(guarded, guarded,
		moderation.WithCompileCache(compileCache),
		moderation.WithObserver(metrics),
	)

	// Disposition policy
	evaluator := disposition.NewEvaluator(func() config.PolicyConfig {
		return loader.Config().Policy
	})
	if err := evaluator.Load(); err != nil {
		logger.Warn("failed to load disposition policy (using built-in mapping)", "error", err)
	}

	loader.OnReload(func() {
		if compileCache != nil {
			compileCache.Reset()
		}
		breaker.Reset()
		if err := cached.Invalidate(context.Background()); err != nil {
			logger.Warn("failed to invalidate snapshot cache", "error", err)
		}
		if err := evaluator.Load(); err != nil {
			logger.Error("failed to reload disposition policy", "error", err)
		}
		logger.Info("moderation config reloaded")
	})
	if err := loader.Watch(); err != nil {
		logger.Warn("failed to start config watcher", "error", err)
	}

	service := gateway.NewService(filter, evaluator, func() config.ModerationConfig {
		return loader.Config().Moderation
	}, metrics)
	service.UseRuleSnapshot(guarded)

	// Readiness probes the store itself until it has answered once.
	ready := func() bool {
		if guarded.Ready() {
			return true
		}
		probeCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_, _, err := guarded.FilterSettings(probeCtx)
		return err == nil && guarded.Ready()
	}
	if !ready() {
		logger.Warn("settings store not ready at startup", "circuit", guarded.State().String())
	}

	// NATS worker
	if cfg.NATS.Enabled {
		client, err := messaging.NewClient(messaging.ClientConfig{
			URL:           cfg.NATS.URL,
			Name:          "chatfilter-" + version,
			MaxReconnects: -1,
		}, logger)
		if err != nil {
			logger.Error("failed to connect to nats", "error", err)
			os.Exit(1)
		}
		defer client.Close()

		worker := messaging.NewWorker(client, service, func() config.NATSConfig {
			return loader.Config().NATS
		})
		if err := worker.Start(client); err != nil {
			logger.Error("failed to start moderation worker", "error", err)
			os.Exit(1)
		}

		storeReady := ready
		ready = func() bool { return storeReady() && client.Connected() }
	}

	handler := gateway.NewHandler(service, ready, version)
	r := gateway.NewRouter(handler, promhttp.Handler(), cfg.Telemetry.MetricsPath)

	// gRPC health probe
	if cfg.GRPC.Enabled {
		lis, err := net.Listen("tcp", fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.GRPC.Port))
		if err != nil {
			logger.Error("failed to listen for grpc", "error", err)
			os.Exit(1)
		}
		health := probe.NewServer()
		go health.Watch(ctx, 5*time.Second, ready)
		go func() {
			logger.Info("health probe starting", "addr", lis.Addr().String())
			if err := health.Serve(lis); err != nil {
				logger.Error("health probe stopped", "error", err)
			}
		}()
		defer health.Stop()
	}

	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	srv := &http.Server{
		Addr:         addr,
		Handler:      r,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	// Graceful shutdown
	errCh := make(chan error, 1)
	go func() {
		logger.Info("moderator starting", "addr", addr, "version", version, "rule_source", cfg.Moderation.RuleSource)
		errCh <- srv.ListenAndServe()
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-quit:
		logger.Info("received shutdown signal", "signal", sig)
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("server error", "error", err)
			os.Exit(1)
		}
	}
	stop()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.GracefulShutdown)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("graceful shutdown failed", "error", err)
		os.Exit(1)
	}
	logger.Info("moderator stopped")
}

func newPool(ctx context.Context, db config.DatabaseConfig) (*pgxpool.Pool, error) {
	poolCfg, err := pgxpool.ParseConfig(db.DSN())
	if err != nil {
		return nil, fmt.Errorf("parse database config: %w", err)
	}
	if db.MaxOpenConns > 0 {
		poolCfg.MaxConns = int32(db.MaxOpenConns)
	}
	if db.ConnMaxLifetime > 0 {
		poolCfg.MaxConnLifetime = db.ConnMaxLifetime
	}
	return pgxpool.NewWithConfig(ctx, poolCfg)
}

func newLogger(cfg config.TelemetryConfig) *slog.Logger {
	var level slog.Level
	if err := level.UnmarshalText([]byte(cfg.LogLevel)); err != nil {
		level = slog.LevelInfo
	}
	opts := &slog.HandlerOptions{Level: level}
	if strings.EqualFold(cfg.LogFormat, "text") {
		return slog.New(slog.NewTextHandler(os.Stdout, opts))
	}
	return slog.New(slog.NewJSONHandler(os.Stdout, opts))
}
