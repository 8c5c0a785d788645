package postgres

import (
	"fmt"
	"log/slog"

	"github.com/jackc/pgx/v5"
	"go.opentelemetry.io/otel"

	"github.com/hostpulse/hostpulse/internal/domain"
)

// CustomerRepo reads customer accounts and the plan capabilities gating
// their API access.
type CustomerRepo struct{ Pool PgxPool }

// NewCustomerRepo constructs a CustomerRepo with the given pool.
func NewCustomerRepo(p PgxPool) *CustomerRepo { return &CustomerRepo{Pool: p} }

// CapabilitiesByID loads a customer's capability row. An unknown id yields
// the zero value wrapped with ErrInvalidValue, which callers surface as a
// denied request rather than a 404.
func (r *CustomerRepo) CapabilitiesByID(ctx domain.Context, id domain.CustomerID) (domain.CustomerCapabilities, error) {
	tracer := otel.Tracer("repo.customer")
	ctx, span := tracer.Start(ctx, "customer.CapabilitiesByID")
	defer span.End()
	q := `SELECT customer_id, polling_interval_sec, max_monitors, retention_days, capability_flags FROM customer WHERE customer_id = $1`
	row := r.Pool.QueryRow(ctx, q, int64(id))
	var cid, interval, maxMonitors, retention, flags int64
	if err := row.Scan(&cid, &interval, &maxMonitors, &retention, &flags); err != nil {
		if err == pgx.ErrNoRows {
			slog.Warn("unknown customer", slog.Uint64("customer_id", uint64(id)))
			return domain.CustomerCapabilities{}, fmt.Errorf("op=customer.capabilities: id=%d: %w", id, domain.ErrInvalidValue)
		}
		return domain.CustomerCapabilities{}, fmt.Errorf("op=customer.capabilities: %w", err)
	}
	return domain.CustomerCapabilities{
		Customer:           domain.CustomerID(cid),
		PollingIntervalSec: uint32(interval),
		MaxMonitors:        uint32(maxMonitors),
		RetentionDays:      uint32(retention),
		Flags:              domain.CapabilityFlags(flags),
	}, nil
}

// Upsert inserts or updates one customer and its capabilities. Used by
// catalog seeding.
func (r *CustomerRepo) Upsert(ctx domain.Context, c domain.Customer, caps domain.CustomerCapabilities) error {
	tracer := otel.Tracer("repo.customer")
	ctx, span := tracer.Start(ctx, "customer.Upsert")
	defer span.End()
	q := `INSERT INTO customer (customer_id, name, polling_interval_sec, max_monitors, retention_days, capability_flags) VALUES ($1,$2,$3,$4,$5,$6) ON CONFLICT (customer_id) DO UPDATE SET name = EXCLUDED.name, polling_interval_sec = EXCLUDED.polling_interval_sec, max_monitors = EXCLUDED.max_monitors, retention_days = EXCLUDED.retention_days, capability_flags = EXCLUDED.capability_flags`
	_, err := r.Pool.Exec(ctx, q, int64(c.ID), c.Name, int64(caps.PollingIntervalSec), int64(caps.MaxMonitors), int64(caps.RetentionDays), int64(caps.Flags))
	if err != nil { return fmt.Errorf("op=customer.upsert: %w", err) }
	return nil
}
