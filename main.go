package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.temporal.io/sdk/client"
	"go.temporal.io/sdk/worker"
	"go.uber.org/zap"

	"github.com/jh941213/storm-orchestrator/internal/activities"
	"github.com/jh941213/storm-orchestrator/internal/agents"
	"github.com/jh941213/storm-orchestrator/internal/config"
	"github.com/jh941213/storm-orchestrator/internal/health"
	"github.com/jh941213/storm-orchestrator/internal/httpapi"
	"github.com/jh941213/storm-orchestrator/internal/llm"
	"github.com/jh941213/storm-orchestrator/internal/search"
	"github.com/jh941213/storm-orchestrator/internal/session"
	"github.com/jh941213/storm-orchestrator/internal/streaming"
	"github.com/jh941213/storm-orchestrator/internal/workflows"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(1)
	}

	logger, err := newLogger(cfg.Logging)
	if err != nil {
		fmt.Fprintf(os.Stderr, "logger: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = logger.Sync() }()

	if cfg.LLM.APIKey == "" {
		logger.Fatal("OPENAI_API_KEY is required")
	}

	provider, err := llm.NewOpenAI(cfg.LLM, cfg.LLM.Model)
	if err != nil {
		logger.Fatal("llm provider init failed", zap.Error(err))
	}
	longProvider, err := llm.NewOpenAI(cfg.LLM, cfg.LLM.LongContextModel)
	if err != nil {
		logger.Fatal("long-context llm provider init failed", zap.Error(err))
	}
	searcher := search.NewProvider(cfg.Search.TavilyAPIKey, logger)

	streams := streaming.NewManager(cfg.Streaming.RingCapacity)
	registry := activities.NewInteractionRegistry()
	sessions := session.NewManager(cfg.Session.RedisAddr, cfg.Session.TTL, logger)
	defer func() { _ = sessions.Close() }()

	temporalClient, err := dialTemporal(cfg.Temporal, logger)
	if err != nil {
		logger.Fatal("temporal dial failed", zap.Error(err))
	}
	defer temporalClient.Close()

	acts := activities.NewActivities(provider, longProvider, searcher, streams, registry, cfg.Research, logger)
	wk := worker.New(temporalClient, cfg.Temporal.TaskQueue, worker.Options{})
	wk.RegisterWorkflow(workflows.ResearchWorkflow)
	wk.RegisterActivity(acts)
	if err := wk.Start(); err != nil {
		logger.Fatal("worker start failed", zap.Error(err))
	}
	defer wk.Stop()
	logger.Info("worker started", zap.String("task_queue", cfg.Temporal.TaskQueue))

	mux := http.NewServeMux()
	researchHandler := httpapi.NewResearchHandler(temporalClient, *cfg, logger)
	researchHandler.RegisterRoutes(mux)
	httpapi.NewInteractionHandler(temporalClient, registry, logger).RegisterRoutes(mux)
	httpapi.NewStreamHandler(streams, logger).RegisterRoutes(mux)
	httpapi.NewWSHandler(streams, logger).RegisterRoutes(mux)
	httpapi.NewChatHandler(
		agents.NewClassifier(provider, logger),
		agents.NewRegistry(provider),
		sessions,
		researchHandler,
		logger,
	).RegisterRoutes(mux)
	health.NewHandler(logger,
		health.Check{Name: "redis", Probe: sessions.Ping},
		health.Check{Name: "temporal", Probe: func(ctx context.Context) error {
			_, err := temporalClient.CheckHealth(ctx, &client.CheckHealthRequest{})
			return err
		}},
	).RegisterRoutes(mux)

	apiServer := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Server.HTTPPort),
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		logger.Info("http server listening", zap.Int("port", cfg.Server.HTTPPort))
		if err := apiServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("http server failed", zap.Error(err))
		}
	}()

	metricsMux := http.NewServeMux()
	metricsMux.Handle("/metrics", promhttp.Handler())
	metricsServer := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Server.MetricsPort),
		Handler:           metricsMux,
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		logger.Info("metrics server listening", zap.Int("port", cfg.Server.MetricsPort))
		if err := metricsServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("metrics server failed", zap.Error(err))
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	_ = apiServer.Shutdown(shutdownCtx)
	_ = metricsServer.Shutdown(shutdownCtx)
}

func newLogger(cfg config.LoggingConfig) (*zap.Logger, error) {
	zc := zap.NewProductionConfig()
	if cfg.Format == "console" {
		zc = zap.NewDevelopmentConfig()
	}
	if cfg.Level != "" {
		lvl, err := zap.ParseAtomicLevel(cfg.Level)
		if err != nil {
			return nil, err
		}
		zc.Level = lvl
	}
	return zc.Build()
}

// dialTemporal retries for a while so the service survives starting before
// the Temporal server in compose environments.
func dialTemporal(cfg config.TemporalConfig, logger *zap.Logger) (client.Client, error) {
	var c client.Client
	var err error
	for attempt := 1; attempt <= 5; attempt++ {
		c, err = client.Dial(client.Options{
			HostPort:  cfg.HostPort,
			Namespace: cfg.Namespace,
		})
		if err == nil {
			return c, nil
		}
		logger.Warn("temporal not ready, retrying",
			zap.Int("attempt", attempt), zap.String("host_port", cfg.HostPort), zap.Error(err))
		time.Sleep(time.Duration(attempt) * time.Second)
	}
	return nil, err
}
