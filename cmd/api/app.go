package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/cloudwatch"
	"github.com/redis/go-redis/v9"

	"astroscope/internal/api/handlers"
	"astroscope/internal/chart"
	"astroscope/internal/config"
	"astroscope/internal/core"
	"astroscope/internal/db"
	"astroscope/internal/ephemeris"
	"astroscope/internal/external"
	"astroscope/internal/observability"
	"astroscope/internal/savedsearch"
	"astroscope/internal/transit"
	"astroscope/internal/types"
)

// metricsSink is everything the application records.
type metricsSink interface {
	core.MetricsCollector
	transit.Metrics
	ephemeris.CacheMetrics
}

// appDeps overrides collaborators that would otherwise be built from
// configuration. Zero values select the production implementations.
type appDeps struct {
	Provider ephemeris.Provider
	Redis    *redis.Client
}

// app is the fully wired service.
type app struct {
	server    *core.Server
	collector *observability.Collector

	stopMetrics context.CancelFunc
	metricsDone chan struct{}
}

// newApp wires every component described by cfg. Optional infrastructure
// (Redis, the saved-search store, CloudWatch) degrades instead of failing
// startup; only an invalid core setup is an error.
func newApp(ctx context.Context, cfg *config.Config, logger *slog.Logger, deps appDeps) (*app, error) {
	srv, err := core.NewServer(cfg, logger)
	if err != nil {
		return nil, fmt.Errorf("creating server: %w", err)
	}
	a := &app{server: srv}

	var metrics metricsSink = observability.Nop{}
	if cfg.Observability.EnableMetrics {
		collector, err := newCollector(ctx, cfg, logger)
		if err != nil {
			logger.Warn("metrics disabled", "error", err)
		} else {
			a.startCollector(ctx, collector)
			metrics = collector
		}
	}
	srv.Metrics = metrics

	rdb := deps.Redis
	if rdb == nil {
		rdb = connectRedis(ctx, cfg, logger)
		if rdb != nil {
			srv.Closers = append(srv.Closers, rdb)
		}
	}

	// Ephemeris: Horizons behind the optional Redis cache. Health probes
	// the uncached provider so a warm cache cannot hide an upstream outage.
	base := deps.Provider
	if base == nil {
		base = newHorizonsProvider(cfg, logger)
	}
	provider := base
	if rdb != nil {
		provider = ephemeris.NewCachedProvider(base, ephemeris.NewRedisCache(rdb), cfg.Ephemeris.CacheTTL, metrics, logger)
	}

	scanner := transit.NewScanner(provider, transit.Config{
		ChunkDays:       cfg.Scan.ChunkDays,
		Workers:         cfg.Scan.Workers,
		MaxYears:        cfg.Scan.MaxYears,
		Timeout:         cfg.Scan.Timeout,
		RefineEntry:     cfg.Scan.RefineEntry,
		RefinePrecision: cfg.Scan.RefinePrecision,
	}, metrics, logger)
	calculator := chart.NewCalculator(provider, logger)

	searches := openSavedSearches(ctx, cfg, srv, logger)

	if rdb != nil {
		srv.RateLimitStore = core.NewRedisRateLimitStore(rdb)
		srv.IdempotencyStore = core.NewRedisIdempotencyStore(rdb, cfg.Security.IdempotencyTTL)
	} else {
		srv.RateLimitStore = core.NewMemoryRateLimitStore()
		srv.IdempotencyStore = core.NewMemoryIdempotencyStore(cfg.Security.IdempotencyTTL)
	}

	srv.HealthProbes = append(srv.HealthProbes,
		ephemeris.NewHealthProbe(base),
		savedsearch.NewHealthProbe(searches),
	)
	if rdb != nil {
		srv.HealthProbes = append(srv.HealthProbes, core.NewRedisHealthProbe(rdb))
	}

	maxBody := srv.MaxBodyBytes()
	astrology := handlers.NewAstrologyHandler(scanner, calculator, srv.Validator, logger, maxBody)
	saved := handlers.NewSavedSearchHandler(searches, logger, maxBody)
	srv.APIRouteRegistrars = append(srv.APIRouteRegistrars,
		astrology.RegisterRoutes,
		saved.RegisterRoutes,
	)

	srv.MountRoutes()
	return a, nil
}

func newHorizonsProvider(cfg *config.Config, logger *slog.Logger) *ephemeris.HorizonsProvider {
	retry := external.DefaultRetryPolicy()
	retry.MaxRetries = cfg.Ephemeris.MaxRetries

	client := external.NewBaseClient(
		&http.Client{Timeout: cfg.Ephemeris.RequestTimeout},
		external.DefaultBreakerSettings(ephemeris.HorizonsProviderName),
		retry,
		cfg.Build.UserAgent(cfg.Service),
		external.WithUpstreamErrorCode(types.ErrCodeUpstreamEphemeris),
	)
	return ephemeris.NewHorizonsProvider(client, ephemeris.HorizonsConfig{
		BaseURL:  cfg.Ephemeris.HorizonsURL,
		SpeedLag: cfg.Ephemeris.SpeedLag,
	}, logger)
}

// connectRedis returns nil when Redis is not configured or unreachable at
// startup. Callers then fall back to in-process stores and skip caching.
func connectRedis(ctx context.Context, cfg *config.Config, logger *slog.Logger) *redis.Client {
	url := cfg.Redis.URL.Unmask()
	if url == "" {
		return nil
	}
	opts, err := redis.ParseURL(url)
	if err != nil {
		logger.Warn("invalid REDIS_URL, continuing without redis", "error", err)
		return nil
	}

	client := redis.NewClient(opts)
	pingCtx, cancel := context.WithTimeout(ctx, cfg.Store.OpenTimeout)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		logger.Warn("redis unreachable, continuing without redis", "addr", opts.Addr, "error", err)
		_ = client.Close()
		return nil
	}
	logger.Info("redis connected", "addr", opts.Addr)
	return client
}

// openSavedSearches builds the saved-search service for the configured
// driver. A store that fails to open leaves the service unavailable rather
// than aborting startup.
func openSavedSearches(ctx context.Context, cfg *config.Config, srv *core.Server, logger *slog.Logger) *savedsearch.Service {
	svcCfg := savedsearch.Config{Namespace: cfg.Store.Namespace, ListLimit: cfg.Store.ListLimit}

	openCtx, cancel := context.WithTimeout(ctx, cfg.Store.OpenTimeout)
	defer cancel()

	var store savedsearch.Store
	switch cfg.Store.Driver {
	case config.StoreDriverPostgres:
		pool, err := db.OpenPostgres(openCtx, cfg.Store.URL.Unmask(), db.PoolOptions{
			MaxConns:        cfg.Store.MaxConns,
			MaxConnLifetime: cfg.Store.MaxConnLifetime,
		})
		if err != nil {
			return unavailableStore(logger, err)
		}
		srv.Closers = append(srv.Closers, closerFunc(func() error {
			pool.Close()
			return nil
		}))
		store = db.NewSavedSearchRepository(pool)
	case config.StoreDriverSQLite:
		sqlite, err := db.OpenSQLite(openCtx, cfg.Store.SQLitePath)
		if err != nil {
			return unavailableStore(logger, err)
		}
		srv.Closers = append(srv.Closers, sqlite)
		store = sqlite
	case config.StoreDriverMemory:
		store = db.NewMemoryStore()
	default:
		return savedsearch.NewUnavailable("", logger)
	}

	logger.Info("saved-search store ready", "driver", cfg.Store.Driver)
	return savedsearch.New(store, svcCfg, logger)
}

func unavailableStore(logger *slog.Logger, err error) *savedsearch.Service {
	logger.Error("saved-search store failed to open", "error", err)
	return savedsearch.NewUnavailable(err.Error(), logger)
}

func newCollector(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*observability.Collector, error) {
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(cfg.AWS.Region))
	if err != nil {
		return nil, fmt.Errorf("loading AWS config: %w", err)
	}
	client := cloudwatch.NewFromConfig(awsCfg, func(o *cloudwatch.Options) {
		if cfg.AWS.EndpointURL != "" {
			o.BaseEndpoint = &cfg.AWS.EndpointURL
		}
	})
	return observability.NewCollector(client, observability.Config{
		Namespace:     cfg.Observability.MetricNamespace,
		FlushInterval: cfg.Observability.FlushInterval,
	}, logger), nil
}

func (a *app) startCollector(ctx context.Context, c *observability.Collector) {
	runCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	a.collector = c
	a.stopMetrics = cancel
	a.metricsDone = make(chan struct{})
	go func() {
		defer close(a.metricsDone)
		c.Run(runCtx)
	}()
}

// Flush publishes buffered metrics. Lambda calls it after every invocation
// since the sandbox may be frozen before the next tick.
func (a *app) Flush(ctx context.Context) {
	if a.collector != nil {
		a.collector.Flush(ctx)
	}
}

// Close stops the metrics loop after its final flush and releases server
// resources.
func (a *app) Close(ctx context.Context) error {
	var errs []error
	if a.stopMetrics != nil {
		a.stopMetrics()
		select {
		case <-a.metricsDone:
		case <-ctx.Done():
			errs = append(errs, fmt.Errorf("waiting for metrics flush: %w", ctx.Err()))
		}
	}
	if err := a.server.Shutdown(ctx); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}
