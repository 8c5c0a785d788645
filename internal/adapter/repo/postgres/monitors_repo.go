package postgres

import (
	"fmt"
	"log/slog"

	"github.com/jackc/pgx/v5"
	"go.opentelemetry.io/otel"

	"github.com/hostpulse/hostpulse/internal/domain"
)

// MonitorRepo reads the monitor catalog.
type MonitorRepo struct{ Pool PgxPool }

// NewMonitorRepo constructs a MonitorRepo with the given pool.
func NewMonitorRepo(p PgxPool) *MonitorRepo { return &MonitorRepo{Pool: p} }

const monitorColumns = `monitor_id, customer_id, host_scheme_id, url`

// ByID loads one monitor. An unknown id yields the zero Monitor wrapped with
// ErrInvalidValue.
func (r *MonitorRepo) ByID(ctx domain.Context, id domain.MonitorID) (domain.Monitor, error) {
	tracer := otel.Tracer("repo.monitor")
	ctx, span := tracer.Start(ctx, "monitor.ByID")
	defer span.End()
	row := r.Pool.QueryRow(ctx, `SELECT `+monitorColumns+` FROM monitor WHERE monitor_id = $1`, int64(id))
	m, err := scanMonitor(row)
	if err != nil {
		if err == pgx.ErrNoRows {
			slog.Warn("unknown monitor", slog.Uint64("monitor_id", uint64(id)))
			return domain.Monitor{}, fmt.Errorf("op=monitor.by_id: id=%d: %w", id, domain.ErrInvalidValue)
		}
		return domain.Monitor{}, fmt.Errorf("op=monitor.by_id: %w", err)
	}
	return m, nil
}

// All returns every monitor ordered by id.
func (r *MonitorRepo) All(ctx domain.Context) ([]domain.Monitor, error) {
	tracer := otel.Tracer("repo.monitor")
	ctx, span := tracer.Start(ctx, "monitor.All")
	defer span.End()
	rows, err := r.Pool.Query(ctx, `SELECT `+monitorColumns+` FROM monitor ORDER BY monitor_id`)
	if err != nil { return nil, fmt.Errorf("op=monitor.all: %w", err) }
	defer rows.Close()
	var out []domain.Monitor
	for rows.Next() {
		m, err := scanMonitor(rows)
		if err != nil { return nil, fmt.Errorf("op=monitor.all: %w", err) }
		out = append(out, m)
	}
	if err := rows.Err(); err != nil { return nil, fmt.Errorf("op=monitor.all: %w", err) }
	return out, nil
}

// Upsert inserts or updates one monitor. Used by catalog seeding.
func (r *MonitorRepo) Upsert(ctx domain.Context, m domain.Monitor) error {
	tracer := otel.Tracer("repo.monitor")
	ctx, span := tracer.Start(ctx, "monitor.Upsert")
	defer span.End()
	q := `INSERT INTO monitor (monitor_id, customer_id, host_scheme_id, url) VALUES ($1,$2,$3,$4) ON CONFLICT (monitor_id) DO UPDATE SET customer_id = EXCLUDED.customer_id, host_scheme_id = EXCLUDED.host_scheme_id, url = EXCLUDED.url`
	_, err := r.Pool.Exec(ctx, q, int64(m.ID), int64(m.Customer), int64(m.HostScheme), m.URL)
	if err != nil { return fmt.Errorf("op=monitor.upsert: %w", err) }
	return nil
}

func scanMonitor(row pgx.Row) (domain.Monitor, error) {
	var (
		mid, cid, hid int64
		url           string
	)
	if err := row.Scan(&mid, &cid, &hid, &url); err != nil {
		return domain.Monitor{}, err
	}
	return domain.Monitor{
		ID:         domain.MonitorID(mid),
		Customer:   domain.CustomerID(cid),
		HostScheme: domain.HostSchemeID(hid),
		URL:        url,
	}, nil
}
