// Package usecase holds the application services between the HTTP and
// queue adapters and the domain ports.
package usecase

import (
	"log/slog"

	"github.com/hostpulse/hostpulse/internal/domain"
)

// IngestService turns one decoded worker report into a telemetry update and
// queued samples.
type IngestService struct {
	Servers domain.ServerCatalog
	Sink    domain.IngestSink
}

// NewIngestService constructs an IngestService.
func NewIngestService(servers domain.ServerCatalog, sink domain.IngestSink) IngestService {
	return IngestService{Servers: servers, Sink: sink}
}

// Record resolves the reporting server by the address in the report header,
// stores its telemetry, and queues the samples on the server's region.
// Samples arrive without a server id; the resolved server stamps them.
// A failed telemetry update does not block the samples: the region queue
// holds them until the store catches up.
func (s IngestService) Record(ctx domain.Context, identifier string, telemetry domain.ServerTelemetry, samples []domain.Sample) (int, error) {
	server, err := s.Servers.ByIdentifier(ctx, identifier)
	if err != nil {
		return 0, err
	}
	if err := s.Servers.UpdateTelemetry(ctx, server.ID, telemetry); err != nil {
		slog.Warn("server telemetry update failed",
			slog.Uint64("server_id", uint64(server.ID)),
			slog.Any("error", err))
	}
	if len(samples) == 0 {
		return 0, nil
	}
	for i := range samples {
		samples[i].Server = server.ID
	}
	s.Sink.Add(server.Region, samples)
	return len(samples), nil
}
