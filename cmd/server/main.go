// Command server starts the HostPulse API process: the binary uplink from
// the polling fleet, the operator query endpoints, and the customer API.
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

	"github.com/redis/go-redis/v9"

	httpserver "github.com/hostpulse/hostpulse/internal/adapter/httpserver"
	"github.com/hostpulse/hostpulse/internal/adapter/observability"
	"github.com/hostpulse/hostpulse/internal/adapter/queue/redpanda"
	"github.com/hostpulse/hostpulse/internal/adapter/repo/postgres"
	"github.com/hostpulse/hostpulse/internal/app"
	"github.com/hostpulse/hostpulse/internal/config"
	"github.com/hostpulse/hostpulse/internal/ingest"
	"github.com/hostpulse/hostpulse/internal/plot"
	"github.com/hostpulse/hostpulse/internal/service/ratelimiter"
	"github.com/hostpulse/hostpulse/internal/usecase"
)

// redisAdapter narrows *redis.Client to the readiness probe interface.
type redisAdapter struct{ *redis.Client }

func (r redisAdapter) Ping(ctx context.Context) app.RedisPingResult {
	return r.Client.Ping(ctx)
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic(err)
	}

	logger := observability.SetupLogger(cfg)
	slog.SetDefault(logger)

	observability.InitMetrics()

	shutdownTracer, err := observability.SetupTracing(cfg)
	if err != nil {
		slog.Error("failed to setup tracing", slog.Any("error", err))
	}
	defer func() {
		if shutdownTracer != nil {
			_ = shutdownTracer(context.Background())
		}
	}()

	ctx := context.Background()
	pool, err := postgres.NewPool(ctx, cfg.DBURL)
	if err != nil {
		slog.Error("db connect failed", slog.Any("error", err))
		os.Exit(1)
	}
	defer pool.Close()
	if err := postgres.EnsureSchema(ctx, pool); err != nil {
		slog.Error("schema bootstrap failed", slog.Any("error", err))
		os.Exit(1)
	}

	latencyRepo := postgres.NewLatencyRepo(pool)
	serverRepo := postgres.NewServerRepo(pool)
	regionRepo := postgres.NewRegionRepo(pool)
	monitorRepo := postgres.NewMonitorRepo(pool)
	customerRepo := postgres.NewCustomerRepo(pool)

	if cfg.SeedFile != "" {
		if err := seedCatalog(ctx, cfg.SeedFile, regionRepo, serverRepo, customerRepo, monitorRepo); err != nil {
			slog.Error("catalog seeding failed", slog.String("file", cfg.SeedFile), slog.Any("error", err))
			os.Exit(1)
		}
	}

	// Redis backs the per-customer rate limiter. The limiter fails open, so
	// a missing Redis only disables throttling.
	var rdb *redis.Client
	if opts, err := redis.ParseURL(cfg.RedisURL); err != nil {
		slog.Warn("redis url unusable, rate limiting disabled", slog.Any("error", err))
	} else {
		rdb = redis.NewClient(opts)
		defer func() { _ = rdb.Close() }()
	}
	limiter := ratelimiter.NewRedisLuaLimiter(rdb, ratelimiter.NewBucketConfigFromPerMinute(cfg.CustomerRatePerMin))

	// Ingest workers live on their own context so the HTTP server can stop
	// accepting uploads first and the queues drain afterwards.
	ingestCtx, stopIngest := context.WithCancel(ctx)
	router := ingest.NewRouter(ingestCtx, latencyRepo, ingest.Options{
		CheckInterval:      cfg.IngestCheckInterval,
		MaxCached:          cfg.IngestMaxCached,
		ForcedCommitCycles: cfg.IngestForcedCommitCycles,
		MaxRowsPerTx:       cfg.IngestMaxRowsPerTx,
		RetryInterval:      cfg.IngestRetryInterval,
		DrainTimeout:       cfg.IngestDrainTimeout,
	})

	producer, err := redpanda.NewProducer(cfg.KafkaBrokers)
	if err != nil {
		slog.Error("queue producer connect failed", slog.Any("error", err))
		os.Exit(1)
	}
	defer producer.Close()

	latencySvc := usecase.NewLatencyService(latencyRepo)
	ingestSvc := usecase.NewIngestService(serverRepo, router)
	purgeSvc := usecase.NewPurgeService(nil, producer, nil, "")
	customerSvc := usecase.NewCustomerService(customerRepo)

	plotCtx, stopPlots := context.WithCancel(ctx)
	plots := plot.NewWorker(latencySvc, cfg.PlotQueueDepth)
	plotsDone := make(chan struct{})
	go func() { defer close(plotsDone); plots.Run(plotCtx) }()

	srv := httpserver.NewServer(cfg, ingestSvc, latencySvc, purgeSvc, customerSvc, plots, limiter)
	var redisProbe app.RedisClient
	if rdb != nil {
		redisProbe = redisAdapter{rdb}
	}
	srv.DBCheck, srv.RedisCheck, srv.QueueCheck = app.BuildReadinessChecks(pool, redisProbe, producer)

	handler := app.BuildRouter(cfg, srv)
	srvHTTP := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           handler,
		ReadTimeout:       cfg.HTTPReadTimeout,
		WriteTimeout:      cfg.HTTPWriteTimeout,
		IdleTimeout:       cfg.HTTPIdleTimeout,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("http server starting", slog.Int("port", cfg.Port))
		errCh <- srvHTTP.ListenAndServe()
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigCh:
		slog.Info("shutdown signal received", slog.String("signal", sig.String()))
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("server error", slog.Any("error", err))
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ServerShutdownTimeout)
	defer cancel()
	_ = srvHTTP.Shutdown(shutdownCtx)

	// Uploads have stopped; drain what the ingest queues still hold.
	stopIngest()
	if err := router.Wait(); err != nil {
		slog.Error("ingest drain failed", slog.Any("error", err))
	}
	stopPlots()
	<-plotsDone
}
