// Command worker runs the background half of HostPulse: the aggregation
// tiers, the purge task consumer, and the outbound notification
// dispatchers. It exposes its own metrics listener, which also carries the
// aggregation retune endpoint.
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

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"

	httpserver "github.com/hostpulse/hostpulse/internal/adapter/httpserver"
	"github.com/hostpulse/hostpulse/internal/adapter/observability"
	"github.com/hostpulse/hostpulse/internal/adapter/queue/redpanda"
	"github.com/hostpulse/hostpulse/internal/adapter/repo/postgres"
	"github.com/hostpulse/hostpulse/internal/aggregate"
	"github.com/hostpulse/hostpulse/internal/config"
	"github.com/hostpulse/hostpulse/internal/dispatch"
	"github.com/hostpulse/hostpulse/internal/usecase"
)

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

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

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

	tiers, err := cfg.Tiers()
	if err != nil {
		slog.Error("aggregation tiers unusable", slog.Any("error", err))
		os.Exit(1)
	}
	aggregators := make([]*aggregate.Aggregator, 0, len(tiers))
	for i, tier := range tiers {
		p := aggregate.Params{
			Period:         tier.Period,
			MaxAge:         tier.MaxAge,
			FromAggregated: i > 0,
		}
		// The retention sweep rides on the coarsest tier's cadence.
		if i == len(tiers)-1 {
			p.ExpungePeriod = cfg.ExpungePeriod
		}
		if err := p.Validate(); err != nil {
			slog.Error("aggregation tier unusable", slog.Int("tier", i), slog.Any("error", err))
			os.Exit(1)
		}
		aggregators = append(aggregators, aggregate.New(latencyRepo, p))
		slog.Info("aggregation tier configured",
			slog.Int("tier", i),
			slog.Duration("period", p.Period),
			slog.Duration("max_age", p.MaxAge),
			slog.Bool("from_aggregated", p.FromAggregated))
	}

	g, gctx := errgroup.WithContext(ctx)

	factory := dispatch.NewFactory(gctx, dispatch.Options{
		RetryInterval:  cfg.DispatchRetryInterval,
		MaxIdle:        cfg.DispatchMaxIdle,
		GarbageCollect: true,
	})

	purgeSvc := usecase.NewPurgeService(latencyRepo, nil, factory, cfg.WebsiteNotifyURL)
	consumer, err := redpanda.NewConsumer(cfg.KafkaBrokers, "hostpulse-workers", purgeSvc)
	if err != nil {
		slog.Error("purge consumer connect failed", slog.Any("error", err))
		os.Exit(1)
	}
	defer consumer.Close()

	for i, ag := range aggregators {
		g.Go(func() error {
			ag.Run(gctx)
			slog.Info("aggregation tier stopped", slog.Int("tier", i))
			return nil
		})
	}
	g.Go(func() error {
		return consumer.Run(gctx)
	})

	// Metrics listener; the aggregation endpoints live here because the
	// tiers run in this process.
	r := chi.NewRouter()
	r.Get("/metrics", func(w http.ResponseWriter, req *http.Request) { promhttp.Handler().ServeHTTP(w, req) })
	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) { w.WriteHeader(http.StatusOK) })
	aggAPI := &httpserver.AggregationAPI{Tiers: aggregators}
	r.Group(func(or chi.Router) {
		if cfg.OperatorAuthEnabled() {
			or.Use(httpserver.OperatorAuth(cfg))
		}
		or.Get("/latency/aggregation", aggAPI.GetHandler())
		or.Post("/latency/aggregation", aggAPI.RetuneHandler())
	})
	metricsSrv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.MetricsPort),
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}
	g.Go(func() error {
		slog.Info("worker metrics listener starting", slog.Int("port", cfg.MetricsPort))
		if err := metricsSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ServerShutdownTimeout)
		defer cancel()
		return metricsSrv.Shutdown(shutdownCtx)
	})

	slog.Info("worker started", slog.Int("tiers", len(aggregators)))
	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		slog.Error("worker error", slog.Any("error", err))
	}
	if err := factory.Wait(); err != nil {
		slog.Error("dispatch drain failed", slog.Any("error", err))
	}
	slog.Info("worker stopped")
}
