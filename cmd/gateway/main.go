// Package main is the entry point for the gateway process: the public
// listener that runs the full filter chain and proxies to upstream
// services, plus an internal listener for health and metrics.
package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/hibiken/asynq"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/iruldev/edge-gateway/internal/app"
	"github.com/iruldev/edge-gateway/internal/auth"
	"github.com/iruldev/edge-gateway/internal/cache"
	"github.com/iruldev/edge-gateway/internal/config"
	"github.com/iruldev/edge-gateway/internal/filters"
	"github.com/iruldev/edge-gateway/internal/observability"
	"github.com/iruldev/edge-gateway/internal/permission"
	"github.com/iruldev/edge-gateway/internal/policy"
	"github.com/iruldev/edge-gateway/internal/ratelimit"
	"github.com/iruldev/edge-gateway/internal/resilience"
	"github.com/iruldev/edge-gateway/internal/router"
	"github.com/iruldev/edge-gateway/internal/session"
	"github.com/iruldev/edge-gateway/internal/worker"
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

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	tracerProvider, tracerShutdown, err := observability.NewTracerProvider(ctx, &cfg.Observability)
	cancel()
	if err != nil {
		logger.Warn("tracer provider init failed, continuing without tracing", observability.Err(err))
	}
	_ = tracerProvider

	store, err := cache.NewRedisStore(cfg.Redis)
	if err != nil {
		logger.Error("cache store unavailable at startup", observability.Err(err))
		os.Exit(app.ExitCacheUnreachable)
	}
	defer store.Close()

	limiter := ratelimit.NewLimiter(store, int64(cfg.RateLimit.AnonymousCapacity), int64(cfg.RateLimit.AuthenticatedCapacity), int64(cfg.RateLimit.PremiumCapacity))

	sessions := session.New(store, cfg.Session.L1Max, cfg.Session.L1TTL, 5*time.Minute)
	go sessions.Listen(context.Background())

	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	resilienceCfg := resilience.NewResilienceConfig(cfg)

	cbMetrics := resilience.NewCircuitBreakerMetrics(registry)
	retryMetrics := resilience.NewRetryMetrics(registry)
	bulkheadMetrics := resilience.NewBulkheadMetrics(registry)
	timeoutMetrics := resilience.NewTimeoutMetrics(registry)

	cbPresets := resilience.NewCircuitBreakerPresets(resilienceCfg.CircuitBreaker,
		resilience.WithMetrics(cbMetrics))
	bulkheadPresets := resilience.NewBulkheadPresets(resilienceCfg.Bulkhead,
		resilience.WithBulkheadMetrics(bulkheadMetrics))
	timeoutPresets := resilience.NewTimeoutPresets(resilienceCfg.Timeout,
		resilience.WithTimeoutMetrics(timeoutMetrics))

	upstreamWrapper := resilience.NewResilienceWrapper(
		resilience.WithCircuitBreakerFactory(cbPresets.Factory()),
		resilience.WithWrapperRetrier(resilience.NewRetrier("upstream", resilienceCfg.Retry,
			resilience.WithRetryMetrics(retryMetrics))),
		resilience.WithWrapperTimeout(timeoutPresets.ForUpstream()),
		resilience.WithWrapperBulkhead(bulkheadPresets.ForUpstream()),
	)

	identityWrapper := resilience.NewResilienceWrapper(
		resilience.WithCircuitBreakerFactory(cbPresets.Factory()),
		resilience.WithWrapperRetrier(resilience.NewRetrier("identity", resilienceCfg.Retry,
			resilience.WithRetryMetrics(retryMetrics))),
		resilience.WithWrapperTimeout(timeoutPresets.ForIdentity()),
		resilience.WithWrapperBulkhead(bulkheadPresets.ForIdentity()),
	)

	identityClient := permission.NewHTTPIdentityClient(cfg.Identity, cfg.Upstream)
	permissions := permission.New(store, identityClient, identityWrapper, 10000, 5*time.Minute)

	policySource := policy.NewFileSource(policyFilePath())
	policyManager, err := policy.New(context.Background(), policySource)
	if err != nil {
		logger.Error("policy manager failed initial load", observability.Err(err))
		os.Exit(1)
	}

	redisOpt := asynq.RedisClientOpt{Addr: fmt.Sprintf("%s:%d", cfg.Redis.Host, cfg.Redis.Port), Password: cfg.Redis.Password, DB: cfg.Redis.DB}
	asynqClient := worker.NewClient(redisOpt)

	routeEntries, staticInstances, err := router.LoadRoutesFile(routesFilePath())
	if err != nil {
		logger.Error("route table load failed", observability.Err(err))
		os.Exit(1)
	}
	routeTable, err := router.NewStaticRouteTable(routeEntries)
	if err != nil {
		logger.Error("route table compile failed", observability.Err(err))
		os.Exit(1)
	}
	discovery := router.NewStaticDiscovery(staticInstances)
	proxy := router.New(discovery, routeTable, upstreamWrapper, nil)

	r := chi.NewRouter()
	filters.Mount(r, filters.Deps{
		Store:       store,
		Limiter:     limiter,
		Sessions:    sessions,
		Policies:    policyManager,
		Permissions: permissions,
		Enqueuer:    asynqClient,
		Logger:      zapLogger,
		TracerName:  "edge-gateway",
		Registerer:  registry,
	})

	var authenticator *auth.Authenticator
	if cfg.OIDC.Enabled {
		authenticator, err = auth.NewAuthenticator(context.Background(), cfg.OIDC, sessions, cfg.Session.RefreshTTL, zapLogger)
		if err != nil {
			logger.Error("oidc authenticator init failed", observability.Err(err))
			os.Exit(1)
		}
	}
	var refresher auth.TokenRefresher
	if authenticator != nil {
		refresher = authenticator
	}
	authHandler := auth.NewHandler(sessions, refresher, cfg.Session.RefreshTTL, zapLogger)
	auth.Mount(r, authHandler, authenticator)

	r.Mount("/", proxy)

	// The coordinator fronts the whole handler so SIGTERM stops admitting
	// new requests and drains in-flight ones before the listener closes.
	coordinator := resilience.NewShutdownCoordinator(resilienceCfg.Shutdown,
		resilience.WithShutdownMetrics(resilience.NewShutdownMetrics(registry)))

	server := &http.Server{
		Addr:         cfg.App.ListenAddr,
		Handler:      trackInFlight(coordinator, r),
		ReadTimeout:  cfg.App.RequestTimeout,
		WriteTimeout: cfg.App.RequestTimeout,
	}

	internalMux := http.NewServeMux()
	internalMux.Handle("/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))
	internalMux.HandleFunc("/health/live", func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusOK) })
	internalMux.HandleFunc("/health/ready", func(w http.ResponseWriter, r *http.Request) {
		if err := store.Ping(r.Context()); err != nil {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
	})
	internalServer := &http.Server{Addr: cfg.App.InternalListenAddr, Handler: internalMux}

	go func() {
		logger.Info("gateway listening", observability.String("addr", cfg.App.ListenAddr))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("gateway server error", observability.Err(err))
			os.Exit(app.ExitListenerError)
		}
	}()
	go func() {
		logger.Info("internal listener starting", observability.String("addr", cfg.App.InternalListenAddr))
		if err := internalServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("internal server error", observability.Err(err))
		}
	}()

	done := make(chan error, 1)
	go app.GracefulShutdown(server, coordinator, done)

	if err := <-done; err != nil {
		logger.Error("gateway shutdown error", observability.Err(err))
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.App.ShutdownTimeout)
	_ = internalServer.Shutdown(shutdownCtx)
	shutdownCancel()

	if tracerShutdown != nil {
		tctx, tcancel := context.WithTimeout(context.Background(), 5*time.Second)
		_ = tracerShutdown(tctx)
		tcancel()
	}

	logger.Info("gateway shutdown complete")
	os.Exit(app.ExitOK)
}

// trackInFlight counts each request in the shutdown coordinator so a drain
// knows when the gateway is idle; once shutdown starts, new requests are
// turned away instead of queued behind a closing listener.
func trackInFlight(coordinator resilience.ShutdownCoordinator, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !coordinator.IncrementActive() {
			w.Header().Set("Retry-After", "5")
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		defer coordinator.DecrementActive()
		next.ServeHTTP(w, r)
	})
}

// policyFilePath resolves where the Policy Manager's rule file lives.
func policyFilePath() string {
	if p := os.Getenv("GATEWAY_POLICY_FILE"); p != "" {
		return p
	}
	return "config/policy.yaml"
}

// routesFilePath resolves where the route table and discovery seed list
// live.
func routesFilePath() string {
	if p := os.Getenv("GATEWAY_ROUTES_FILE"); p != "" {
		return p
	}
	return "config/routes.yaml"
}
