// Package main is the entry point for the gateway's background worker: it
// consumes the ccu:scan, policy:refresh and ccu:presence tasks the
// scheduler process and the gateway's Enrichment filter enqueue.
package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"net/http"

	"github.com/hibiken/asynq"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"

	"github.com/iruldev/edge-gateway/internal/cache"
	"github.com/iruldev/edge-gateway/internal/ccu"
	"github.com/iruldev/edge-gateway/internal/config"
	"github.com/iruldev/edge-gateway/internal/observability"
	"github.com/iruldev/edge-gateway/internal/policy"
	"github.com/iruldev/edge-gateway/internal/worker"
	"github.com/iruldev/edge-gateway/internal/worker/idempotency"
	"github.com/iruldev/edge-gateway/internal/worker/tasks"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("configuration error: %v", err)
	}

	zapLogger, err := observability.NewLogger(&cfg.Log, cfg.App.Env)
	if err != nil {
		log.Fatalf("logger initialization error: %v", err)
	}
	logger := observability.NewZapLogger(zapLogger)
	defer logger.Sync()
	logger.Info("configuration loaded", observability.String("config", cfg.Redacted()))

	store, err := cache.NewRedisStore(cfg.Redis)
	if err != nil {
		logger.Error("cache store unavailable at startup", observability.Err(err))
		os.Exit(1)
	}
	defer store.Close()

	policySource := policy.NewFileSource(policyFilePath())
	policyManager, err := policy.New(context.Background(), policySource)
	if err != nil {
		logger.Error("policy manager failed initial load", observability.Err(err))
		os.Exit(1)
	}

	scanner := ccu.NewScanner(store, 200)
	presenceWriter := ccu.NewWriter(store)

	// The CCU gauge is computed in this process; expose it on a
	// loopback-bound metrics listener.
	registry := prometheus.NewRegistry()
	ccu.RegisterMetrics(registry)
	metricsMux := http.NewServeMux()
	metricsMux.Handle("/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))
	go func() {
		if err := http.ListenAndServe("127.0.0.1:8082", metricsMux); err != nil && err != http.ErrServerClosed {
			logger.Warn("worker metrics listener error", observability.Err(err))
		}
	}()

	redisOpt := asynq.RedisClientOpt{
		Addr:     fmt.Sprintf("%s:%d", cfg.Redis.Host, cfg.Redis.Port),
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	}

	idempotencyClient := redis.NewClient(&redis.Options{
		Addr:     fmt.Sprintf("%s:%d", cfg.Redis.Host, cfg.Redis.Port),
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	defer idempotencyClient.Close()
	idempotencyStore := idempotency.NewRedisStore(idempotencyClient, "idempotency:worker:",
		idempotency.WithFailMode(idempotency.FailOpen),
		idempotency.WithLogger(zapLogger),
	)

	// ccu:presence tasks are enqueued fire-and-forget on every authenticated
	// request; a short dedup window collapses redundant touches from bursty
	// traffic for the same user into a single Redis write per window.
	presenceHandler := idempotency.IdempotentHandler(
		idempotencyStore,
		func(t *asynq.Task) string { return "ccu:presence:" + string(t.Payload()) },
		30*time.Second,
		tasks.NewPresenceHandler(presenceWriter, time.Duration(cfg.CCU.OnlineTTLMinutes)*time.Minute, zapLogger).Handle,
		idempotency.WithHandlerLogger(zapLogger),
		idempotency.WithHandlerFailMode(idempotency.FailOpen),
	)

	srv := worker.NewServer(redisOpt, cfg.Asynq)
	srv.HandleFunc(tasks.TypeCCUScan, tasks.NewCCUScanHandler(scanner, zapLogger).Handle)
	srv.HandleFunc(tasks.TypePolicyRefresh, tasks.NewPolicyRefreshHandler(policyManager, zapLogger).Handle)
	srv.HandleFunc(tasks.TypeCCUPresence, presenceHandler)

	go func() {
		if err := srv.Start(); err != nil {
			logger.Error("worker server error", observability.Err(err))
			os.Exit(1)
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	logger.Info("worker shutting down")
	srv.Shutdown()
}

func policyFilePath() string {
	if p := os.Getenv("GATEWAY_POLICY_FILE"); p != "" {
		return p
	}
	return "config/policy.yaml"
}
