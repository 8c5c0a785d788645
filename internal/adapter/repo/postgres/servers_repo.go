package postgres

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5"
	"go.opentelemetry.io/otel"

	"github.com/hostpulse/hostpulse/internal/domain"
)

// ServerRepo reads and updates the polling server catalog.
type ServerRepo struct{ Pool PgxPool }

// NewServerRepo constructs a ServerRepo with the given pool.
func NewServerRepo(p PgxPool) *ServerRepo { return &ServerRepo{Pool: p} }

const serverColumns = `server_id, region_id, identifier, status, monitors_per_second, cpu_loading, memory_loading, last_seen`

// ByID loads one server. An unknown id yields the zero Server wrapped with
// ErrInvalidValue.
func (r *ServerRepo) ByID(ctx domain.Context, id domain.ServerID) (domain.Server, error) {
	tracer := otel.Tracer("repo.server")
	ctx, span := tracer.Start(ctx, "server.ByID")
	defer span.End()
	row := r.Pool.QueryRow(ctx, `SELECT `+serverColumns+` FROM servers WHERE server_id = $1`, int64(id))
	s, err := scanServer(row)
	if err != nil {
		if err == pgx.ErrNoRows {
			slog.Warn("unknown server", slog.Uint64("server_id", uint64(id)))
			return domain.Server{}, fmt.Errorf("op=server.by_id: id=%d: %w", id, domain.ErrInvalidValue)
		}
		return domain.Server{}, fmt.Errorf("op=server.by_id: %w", err)
	}
	return s, nil
}

// ByIdentifier resolves a server by the address it reports from. Unknown
// identifiers are invalid input: uploads from unregistered workers are
// rejected, never auto-registered.
func (r *ServerRepo) ByIdentifier(ctx domain.Context, identifier string) (domain.Server, error) {
	tracer := otel.Tracer("repo.server")
	ctx, span := tracer.Start(ctx, "server.ByIdentifier")
	defer span.End()
	row := r.Pool.QueryRow(ctx, `SELECT `+serverColumns+` FROM servers WHERE identifier = $1`, identifier)
	s, err := scanServer(row)
	if err != nil {
		if err == pgx.ErrNoRows {
			slog.Warn("unknown server identifier", slog.String("identifier", identifier))
			return domain.Server{}, fmt.Errorf("op=server.by_identifier: identifier=%q: %w", identifier, domain.ErrInvalidValue)
		}
		return domain.Server{}, fmt.Errorf("op=server.by_identifier: %w", err)
	}
	return s, nil
}

// All returns every server ordered by id.
func (r *ServerRepo) All(ctx domain.Context) ([]domain.Server, error) {
	tracer := otel.Tracer("repo.server")
	ctx, span := tracer.Start(ctx, "server.All")
	defer span.End()
	rows, err := r.Pool.Query(ctx, `SELECT `+serverColumns+` FROM servers ORDER BY server_id`)
	if err != nil { return nil, fmt.Errorf("op=server.all: %w", err) }
	defer rows.Close()
	var out []domain.Server
	for rows.Next() {
		s, err := scanServer(rows)
		if err != nil { return nil, fmt.Errorf("op=server.all: %w", err) }
		out = append(out, s)
	}
	if err := rows.Err(); err != nil { return nil, fmt.Errorf("op=server.all: %w", err) }
	return out, nil
}

// UpdateTelemetry stores the header block of a worker report and refreshes
// last_seen. Updating an unregistered server is invalid input.
func (r *ServerRepo) UpdateTelemetry(ctx domain.Context, id domain.ServerID, t domain.ServerTelemetry) error {
	tracer := otel.Tracer("repo.server")
	ctx, span := tracer.Start(ctx, "server.UpdateTelemetry")
	defer span.End()
	q := `UPDATE servers SET status = $2, monitors_per_second = $3, cpu_loading = $4, memory_loading = $5, last_seen = now() WHERE server_id = $1`
	tag, err := r.Pool.Exec(ctx, q, int64(id), int64(t.Status), t.MonitorsPerSecond, t.CPULoad, t.MemoryLoad)
	if err != nil { return fmt.Errorf("op=server.update_telemetry: %w", err) }
	if tag.RowsAffected() == 0 {
		slog.Warn("telemetry for unknown server", slog.Uint64("server_id", uint64(id)))
		return fmt.Errorf("op=server.update_telemetry: id=%d: %w", id, domain.ErrInvalidValue)
	}
	return nil
}

// Upsert registers or updates one server. Used by catalog seeding.
func (r *ServerRepo) Upsert(ctx domain.Context, s domain.Server) error {
	tracer := otel.Tracer("repo.server")
	ctx, span := tracer.Start(ctx, "server.Upsert")
	defer span.End()
	q := `INSERT INTO servers (server_id, region_id, identifier, status) VALUES ($1,$2,$3,$4) ON CONFLICT (server_id) DO UPDATE SET region_id = EXCLUDED.region_id, identifier = EXCLUDED.identifier, status = EXCLUDED.status`
	_, err := r.Pool.Exec(ctx, q, int64(s.ID), int64(s.Region), s.Identifier, int64(s.Status))
	if err != nil { return fmt.Errorf("op=server.upsert: %w", err) }
	return nil
}

func scanServer(row pgx.Row) (domain.Server, error) {
	var (
		sid, rid, status int64
		identifier       string
		mps, cpu, mem    float64
		lastSeen         time.Time
	)
	if err := row.Scan(&sid, &rid, &identifier, &status, &mps, &cpu, &mem, &lastSeen); err != nil {
		return domain.Server{}, err
	}
	return domain.Server{
		ID:                domain.ServerID(sid),
		Region:            domain.RegionID(rid),
		Identifier:        identifier,
		Status:            domain.ServerStatus(status),
		MonitorsPerSecond: mps,
		CPULoad:           cpu,
		MemoryLoad:        mem,
		LastSeen:          lastSeen,
	}, nil
}
