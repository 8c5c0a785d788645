package postgres

import (
	"fmt"
	"log/slog"

	"github.com/jackc/pgx/v5"
	"go.opentelemetry.io/otel"

	"github.com/hostpulse/hostpulse/internal/domain"
)

// RegionRepo reads the region catalog. Lookups hit the database on every call
// so admin edits are visible to the very next request.
type RegionRepo struct{ Pool PgxPool }

// NewRegionRepo constructs a RegionRepo with the given pool.
func NewRegionRepo(p PgxPool) *RegionRepo { return &RegionRepo{Pool: p} }

// ByID loads one region. An unknown id yields the zero Region wrapped with
// ErrInvalidValue: callers treat it as bad input, not a missing record.
func (r *RegionRepo) ByID(ctx domain.Context, id domain.RegionID) (domain.Region, error) {
	tracer := otel.Tracer("repo.region")
	ctx, span := tracer.Start(ctx, "region.ByID")
	defer span.End()
	row := r.Pool.QueryRow(ctx, `SELECT region_id, name FROM region WHERE region_id = $1`, int64(id))
	var (
		rid  int64
		name string
	)
	if err := row.Scan(&rid, &name); err != nil {
		if err == pgx.ErrNoRows {
			slog.Warn("unknown region", slog.Uint64("region_id", uint64(id)))
			return domain.Region{}, fmt.Errorf("op=region.by_id: id=%d: %w", id, domain.ErrInvalidValue)
		}
		return domain.Region{}, fmt.Errorf("op=region.by_id: %w", err)
	}
	return domain.Region{ID: domain.RegionID(rid), Name: name}, nil
}

// All returns every region ordered by id.
func (r *RegionRepo) All(ctx domain.Context) ([]domain.Region, error) {
	tracer := otel.Tracer("repo.region")
	ctx, span := tracer.Start(ctx, "region.All")
	defer span.End()
	rows, err := r.Pool.Query(ctx, `SELECT region_id, name FROM region ORDER BY region_id`)
	if err != nil { return nil, fmt.Errorf("op=region.all: %w", err) }
	defer rows.Close()
	var out []domain.Region
	for rows.Next() {
		var (
			rid  int64
			name string
		)
		if err := rows.Scan(&rid, &name); err != nil { return nil, fmt.Errorf("op=region.all: %w", err) }
		out = append(out, domain.Region{ID: domain.RegionID(rid), Name: name})
	}
	if err := rows.Err(); err != nil { return nil, fmt.Errorf("op=region.all: %w", err) }
	return out, nil
}

// Upsert inserts or updates one region. Used by catalog seeding.
func (r *RegionRepo) Upsert(ctx domain.Context, region domain.Region) error {
	tracer := otel.Tracer("repo.region")
	ctx, span := tracer.Start(ctx, "region.Upsert")
	defer span.End()
	q := `INSERT INTO region (region_id, name) VALUES ($1,$2) ON CONFLICT (region_id) DO UPDATE SET name = EXCLUDED.name`
	_, err := r.Pool.Exec(ctx, q, int64(region.ID), region.Name)
	if err != nil { return fmt.Errorf("op=region.upsert: %w", err) }
	return nil
}
