package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/sentinelstack/sentinel/internal/api"
	"github.com/sentinelstack/sentinel/internal/cache"
	"github.com/sentinelstack/sentinel/internal/config"
	"github.com/sentinelstack/sentinel/internal/engine"
	"github.com/sentinelstack/sentinel/internal/ingest"
	"github.com/sentinelstack/sentinel/internal/metrics"
	"github.com/sentinelstack/sentinel/internal/notify"
	"github.com/sentinelstack/sentinel/internal/policy"
	"github.com/sentinelstack/sentinel/internal/services"
	"github.com/sentinelstack/sentinel/internal/state"
	"github.com/sentinelstack/sentinel/internal/store"
	"github.com/sentinelstack/sentinel/internal/utils"
)

func main() {
	var configPath string
	flag.StringVar(&configPath, "config", "", "Path to configuration file")
	flag.Parse()

	cfg, err := config.Load(configPath)
	if err != nil {
		slog.Error("failed to load config", slog.String("path", configPath), slog.Any("error", err))
		os.Exit(1)
	}

	logger := utils.NewLogger(cfg.Logging.Level, cfg.Logging.JSON)
	logger.Info("starting sentineld", slog.String("address", cfg.Server.Address))

	if err := metrics.Register(prometheus.DefaultRegisterer); err != nil {
		logger.Error("failed to register metrics", slog.Any("error", err))
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var cacheProvider cache.Provider = cache.NoopProvider{}
	var cacheErr error
	if cfg.Cache.Enabled && cfg.Cache.Addr != "" {
		provider, err := cache.NewValkeyProvider(cache.ValkeyConfig{
			Addr:         cfg.Cache.Addr,
			Username:     cfg.Cache.Username,
			Password:     cfg.Cache.Password,
			DB:           cfg.Cache.DB,
			DialTimeout:  cfg.Cache.DialTimeout,
			ReadTimeout:  cfg.Cache.ReadTimeout,
			WriteTimeout: cfg.Cache.WriteTimeout,
			MaxRetries:   cfg.Cache.MaxRetries,
			TLS:          cfg.Cache.TLS,
		})
		if err != nil {
			cacheErr = err
			logger.Warn("valkey unavailable", slog.Any("error", err))
		} else {
			cacheProvider = provider
			defer provider.Close()
		}
	}

	states, err := selectStateStore(cfg.State.Backend, cacheProvider, cacheErr)
	if err != nil {
		logger.Error("failed to open state store", slog.Any("error", err))
		os.Exit(1)
	}
	defer states.Close()

	var samples store.SampleStore
	switch cfg.Store.Backend {
	case "postgres":
		pg, err := store.NewPostgresStore(ctx, cfg.Store.Postgres)
		if err != nil {
			logger.Error("failed to open sample store", slog.Any("error", err))
			os.Exit(1)
		}
		samples = pg
	case "", "memory":
		samples = store.NewMemoryStore()
	default:
		logger.Error("unknown store backend", slog.String("backend", cfg.Store.Backend))
		os.Exit(1)
	}
	defer samples.Close()

	registry, err := policy.NewRegistry(cfg.Policies.Path, logger)
	if err != nil {
		logger.Error("failed to load policy pack", slog.Any("error", err))
		os.Exit(1)
	}
	logger.Info("policy pack loaded",
		slog.String("path", cfg.Policies.Path), slog.Int("signals", registry.Len()))
	logger.Debug("signals registered", slog.Any("keys", registry.Keys()))
	if cfg.Policies.Watch {
		go func() {
			if err := registry.Watch(ctx); err != nil {
				logger.Error("policy pack watcher stopped", slog.Any("error", err))
			}
		}()
	}

	sinks := []notify.Sink{notify.NewLogSink(logger)}
	if len(cfg.Kafka.Brokers) > 0 && cfg.Kafka.NotificationsTopic != "" {
		kafkaSink, err := notify.NewKafkaSink(cfg.Kafka.Brokers, cfg.Kafka.NotificationsTopic, cfg.Kafka.WriteTimeout)
		if err != nil {
			logger.Error("failed to create notification sink", slog.Any("error", err))
			os.Exit(1)
		}
		defer kafkaSink.Close()
		sinks = append(sinks, kafkaSink)
	}

	resolver := notify.NewConfigResolver(cfg.Recipients)
	dispatcher := notify.NewDispatcher(utils.ComponentLogger(logger, "notify"), resolver, sinks...)

	evaluator := engine.NewEvaluator(samples, cfg.Alerting.BaseToleranceInterval, logger)
	tracker := engine.NewTracker(states)
	pipeline := engine.NewPipeline(logger, samples, evaluator, tracker)
	writeService := services.NewWriteService(logger, registry, pipeline, dispatcher)

	if len(cfg.Kafka.Brokers) > 0 && cfg.Kafka.SamplesTopic != "" {
		consumer, err := ingest.NewConsumer(utils.ComponentLogger(logger, "ingest"), ingest.Config{
			Brokers: cfg.Kafka.Brokers,
			Topic:   cfg.Kafka.SamplesTopic,
			GroupID: cfg.Kafka.GroupID,
		}, writeService)
		if err != nil {
			logger.Error("failed to create sample consumer", slog.Any("error", err))
			os.Exit(1)
		}
		defer consumer.Close()
		go func() {
			if err := consumer.Run(ctx); err != nil {
				logger.Error("sample consumer exited", slog.Any("error", err))
				stop()
			}
		}()
	}

	server, err := api.NewServer(cfg.Server)
	if err != nil {
		logger.Error("failed to create gRPC server", slog.Any("error", err))
		os.Exit(1)
	}

	var metricsServer *http.Server
	if cfg.Server.MetricsAddress != "" {
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.Handler())
		metricsServer = &http.Server{
			Addr:         cfg.Server.MetricsAddress,
			Handler:      mux,
			ReadTimeout:  5 * time.Second,
			WriteTimeout: 15 * time.Second,
		}
		go func() {
			logger.Info("metrics server listening", slog.String("address", cfg.Server.MetricsAddress))
			if err := metricsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.Error("metrics server exited", slog.Any("error", err))
				stop()
			}
		}()
	}

	go func() {
		if serveErr := server.Start(); serveErr != nil {
			logger.Error("gRPC server exited", slog.Any("error", serveErr))
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("shutdown signal received")
	server.SetServing(false)

	shutdownCtx, cancel := context.WithTimeout(context.Background(), server.GracefulTimeout())
	defer cancel()
	server.Shutdown(shutdownCtx)

	if metricsServer != nil {
		metricsCtx, cancelMetrics := context.WithTimeout(context.Background(), 5*time.Second)
		if err := metricsServer.Shutdown(metricsCtx); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Warn("metrics server shutdown", slog.Any("error", err))
		}
		cancelMetrics()
	}

	// Give remaining goroutines time to finish logging
	time.Sleep(100 * time.Millisecond)
	logger.Info("sentineld stopped")
}

// selectStateStore wires the health-flag backend. The valkey backend holds
// the authoritative alert state, not a cache: starting without a reachable
// provider would reset every signal to healthy and re-fire problem
// notifications, so a missing or failed provider is a startup error.
func selectStateStore(backend string, provider cache.Provider, providerErr error) (state.Store, error) {
	switch backend {
	case "valkey":
		if providerErr != nil {
			return nil, fmt.Errorf("state backend valkey: %w", providerErr)
		}
		if _, noop := provider.(cache.NoopProvider); noop {
			return nil, errors.New("state backend valkey requires cache.enabled and cache.addr")
		}
		return state.NewCacheStore(provider), nil
	case "", "memory":
		return state.NewMemoryStore(), nil
	default:
		return nil, fmt.Errorf("unknown state backend %q", backend)
	}
}
