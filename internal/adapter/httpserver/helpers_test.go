package httpserver_test

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	httpserver "github.com/hostpulse/hostpulse/internal/adapter/httpserver"
	"github.com/hostpulse/hostpulse/internal/config"
	"github.com/hostpulse/hostpulse/internal/domain"
	"github.com/hostpulse/hostpulse/internal/plot"
	"github.com/hostpulse/hostpulse/internal/usecase"
)

type stubServers struct {
	server    domain.Server
	missing   bool
	telemetry []domain.ServerTelemetry
}

func (s *stubServers) ByID(_ domain.Context, _ domain.ServerID) (domain.Server, error) {
	return s.server, nil
}

func (s *stubServers) ByIdentifier(_ domain.Context, identifier string) (domain.Server, error) {
	if s.missing {
		return domain.Server{}, fmt.Errorf("server %q: %w", identifier, domain.ErrNotFound)
	}
	return s.server, nil
}

func (s *stubServers) All(_ domain.Context) ([]domain.Server, error) {
	return []domain.Server{s.server}, nil
}

func (s *stubServers) UpdateTelemetry(_ domain.Context, _ domain.ServerID, t domain.ServerTelemetry) error {
	s.telemetry = append(s.telemetry, t)
	return nil
}

type stubSink struct {
	region  domain.RegionID
	samples []domain.Sample
}

func (s *stubSink) Add(region domain.RegionID, samples []domain.Sample) {
	s.region = region
	s.samples = append(s.samples, samples...)
}

type stubLatencyRepo struct {
	raw        []domain.Sample
	aggregated []domain.AggregatedSample
	summary    domain.AggregatedSample
	lastQuery  domain.LatencyQuery
}

func (s *stubLatencyRepo) CommitRaw(_ domain.Context, _ []domain.Sample) (int, error) {
	return 0, nil
}

func (s *stubLatencyRepo) RecentEntries(_ domain.Context, q domain.LatencyQuery) ([]domain.Sample, error) {
	s.lastQuery = q
	return s.raw, nil
}

func (s *stubLatencyRepo) AggregatedEntries(_ domain.Context, q domain.LatencyQuery) ([]domain.AggregatedSample, error) {
	s.lastQuery = q
	return s.aggregated, nil
}

func (s *stubLatencyRepo) RawSummary(_ domain.Context, q domain.LatencyQuery) (domain.AggregatedSample, error) {
	s.lastQuery = q
	return s.summary, nil
}

type stubQueue struct {
	task domain.PurgeTask
	err  error
}

func (s *stubQueue) EnqueuePurge(_ domain.Context, task domain.PurgeTask) (string, error) {
	if s.err != nil {
		return "", s.err
	}
	s.task = task
	return "task-1", nil
}

type stubCustomers struct {
	caps domain.CustomerCapabilities
	err  error
}

func (s *stubCustomers) CapabilitiesByID(_ domain.Context, id domain.CustomerID) (domain.CustomerCapabilities, error) {
	if s.err != nil {
		return domain.CustomerCapabilities{}, s.err
	}
	caps := s.caps
	caps.Customer = id
	return caps, nil
}

type stubLimiter struct {
	deny       bool
	retryAfter time.Duration
}

func (s *stubLimiter) Allow(_ context.Context, _ string, _ int64) (bool, time.Duration, error) {
	if s.deny {
		return false, s.retryAfter, nil
	}
	return true, 0, nil
}

func activeCaps() domain.CustomerCapabilities {
	return domain.CustomerCapabilities{
		PollingIntervalSec: 60,
		MaxMonitors:        10,
		RetentionDays:      30,
		Flags:              domain.CapActive | domain.CapLatencyTracking,
	}
}

type testEnv struct {
	servers   *stubServers
	sink      *stubSink
	repo      *stubLatencyRepo
	queue     *stubQueue
	customers *stubCustomers
	limiter   *stubLimiter
	srv       *httpserver.Server
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	env := &testEnv{
		servers: &stubServers{server: domain.Server{
			ID: 3, Region: 1, Identifier: "198.51.100.7", Status: domain.ServerActive,
		}},
		sink:      &stubSink{},
		repo:      &stubLatencyRepo{},
		queue:     &stubQueue{},
		customers: &stubCustomers{caps: activeCaps()},
		limiter:   &stubLimiter{},
	}

	latency := usecase.NewLatencyService(env.repo)
	worker := plot.NewWorker(latency, 4)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() { defer close(done); worker.Run(ctx) }()
	t.Cleanup(func() { cancel(); <-done })

	cfg := config.Config{AppEnv: "dev", MaxUploadMB: 4}
	env.srv = httpserver.NewServer(cfg,
		usecase.NewIngestService(env.servers, env.sink),
		latency,
		usecase.NewPurgeService(nil, env.queue, nil, ""),
		usecase.NewCustomerService(env.customers),
		worker,
		env.limiter,
	)
	return env
}

func postJSON(h http.Handler, body string, headers map[string]string) *httptest.ResponseRecorder {
	r := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(body))
	r.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		r.Header.Set(k, v)
	}
	w := httptest.NewRecorder()
	h.ServeHTTP(w, r)
	return w
}

func decodeBody(t *testing.T, w *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var m map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &m))
	return m
}
