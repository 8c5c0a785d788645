package postgres

import (
	"fmt"

	"github.com/jackc/pgx/v5"
	"go.opentelemetry.io/otel"

	"github.com/hostpulse/hostpulse/internal/adapter/observability"
	"github.com/hostpulse/hostpulse/internal/domain"
)

// LatencyRepo stores raw and aggregated latency samples in PostgreSQL. It
// backs both the serving reads and the background aggregation passes.
type LatencyRepo struct{ Pool PgxPool }

// NewLatencyRepo constructs a LatencyRepo with the given pool.
func NewLatencyRepo(p PgxPool) *LatencyRepo { return &LatencyRepo{Pool: p} }

const rawColumns = `monitor_id, server_id, "timestamp", latency`

const aggregatedColumns = `monitor_id, server_id, "timestamp", latency, start_timestamp, end_timestamp, mean_latency, variance_latency, minimum_latency, maximum_latency, number_samples`

// CommitRaw writes one sub-batch of raw samples inside a single transaction.
// Samples with an over-cap latency or an unknown monitor or server are
// dropped rather than failing the batch, and duplicate (monitor, server,
// timestamp) rows are ignored so upload retries stay safe.
func (r *LatencyRepo) CommitRaw(ctx domain.Context, samples []domain.Sample) (int, error) {
	tracer := otel.Tracer("repo.latency")
	ctx, span := tracer.Start(ctx, "latency.CommitRaw")
	defer span.End()
	if len(samples) == 0 {
		return 0, nil
	}
	tx, err := r.Pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil { return 0, fmt.Errorf("op=latency.commit_raw: %w", err) }
	defer func() { _ = tx.Rollback(ctx) }()
	monitors, err := knownMonitors(ctx, tx)
	if err != nil { return 0, fmt.Errorf("op=latency.commit_raw: %w", err) }
	servers, err := knownServers(ctx, tx)
	if err != nil { return 0, fmt.Errorf("op=latency.commit_raw: %w", err) }
	inserted := 0
	q := `INSERT INTO latency_seconds (` + rawColumns + `) VALUES ($1,$2,$3,$4) ON CONFLICT DO NOTHING`
	for _, s := range filterValid(samples, monitors, servers) {
		tag, err := tx.Exec(ctx, q, int64(s.Monitor), int64(s.Server), int64(s.Timestamp), int64(s.LatencyMicros))
		if err != nil { return 0, fmt.Errorf("op=latency.commit_raw: %w", err) }
		inserted += int(tag.RowsAffected())
	}
	if err := tx.Commit(ctx); err != nil { return 0, fmt.Errorf("op=latency.commit_raw: %w", err) }
	return inserted, nil
}

// RecentEntries returns raw samples matching q in time order.
func (r *LatencyRepo) RecentEntries(ctx domain.Context, q domain.LatencyQuery) ([]domain.Sample, error) {
	tracer := otel.Tracer("repo.latency")
	ctx, span := tracer.Start(ctx, "latency.RecentEntries")
	defer span.End()
	where, args := buildFilter(q)
	rows, err := r.Pool.Query(ctx, `SELECT `+rawColumns+` FROM latency_seconds`+where+` ORDER BY "timestamp", monitor_id, server_id`, args...)
	if err != nil { return nil, fmt.Errorf("op=latency.recent: %w", err) }
	defer rows.Close()
	var out []domain.Sample
	for rows.Next() {
		s, err := scanSample(rows)
		if err != nil { return nil, fmt.Errorf("op=latency.recent: %w", err) }
		out = append(out, s)
	}
	if err := rows.Err(); err != nil { return nil, fmt.Errorf("op=latency.recent: %w", err) }
	return out, nil
}

// AggregatedEntries returns aggregated windows matching q ordered by window
// start.
func (r *LatencyRepo) AggregatedEntries(ctx domain.Context, q domain.LatencyQuery) ([]domain.AggregatedSample, error) {
	tracer := otel.Tracer("repo.latency")
	ctx, span := tracer.Start(ctx, "latency.AggregatedEntries")
	defer span.End()
	where, args := buildFilter(q)
	rows, err := r.Pool.Query(ctx, `SELECT `+aggregatedColumns+` FROM latency_aggregated`+where+` ORDER BY start_timestamp, monitor_id, server_id`, args...)
	if err != nil { return nil, fmt.Errorf("op=latency.aggregated: %w", err) }
	defer rows.Close()
	var out []domain.AggregatedSample
	for rows.Next() {
		a, err := scanAggregated(rows)
		if err != nil { return nil, fmt.Errorf("op=latency.aggregated: %w", err) }
		out = append(out, a)
	}
	if err := rows.Err(); err != nil { return nil, fmt.Errorf("op=latency.aggregated: %w", err) }
	return out, nil
}

// RawSummary folds the raw rows matching q into one summary SQL-side. A zero
// Count means no rows matched; that is not an error here.
func (r *LatencyRepo) RawSummary(ctx domain.Context, q domain.LatencyQuery) (domain.AggregatedSample, error) {
	tracer := otel.Tracer("repo.latency")
	ctx, span := tracer.Start(ctx, "latency.RawSummary")
	defer span.End()
	where, args := buildFilter(q)
	row := r.Pool.QueryRow(ctx, `SELECT COALESCE(AVG(latency), 0)::double precision, COALESCE(VAR_POP(latency), 0)::double precision, COALESCE(MIN(latency), 0), COALESCE(MAX(latency), 0), COUNT(*) FROM latency_seconds`+where, args...)
	var mean, variance float64
	var minL, maxL, count int64
	if err := row.Scan(&mean, &variance, &minL, &maxL, &count); err != nil {
		return domain.AggregatedSample{}, fmt.Errorf("op=latency.raw_summary: %w", err)
	}
	return domain.AggregatedSample{
		Mean:     mean,
		Variance: variance,
		Min:      uint32(minL),
		Max:      uint32(maxL),
		Count:    uint32(count),
	}, nil
}

// EligibleRaw returns raw samples strictly older than before in aggregation
// order (monitor, server, timestamp).
func (r *LatencyRepo) EligibleRaw(ctx domain.Context, before domain.ZoranTime) ([]domain.Sample, error) {
	tracer := otel.Tracer("repo.latency")
	ctx, span := tracer.Start(ctx, "latency.EligibleRaw")
	defer span.End()
	rows, err := r.Pool.Query(ctx, `SELECT `+rawColumns+` FROM latency_seconds WHERE "timestamp" < $1 ORDER BY monitor_id, server_id, "timestamp"`, int64(before))
	if err != nil { return nil, fmt.Errorf("op=latency.eligible_raw: %w", err) }
	defer rows.Close()
	var out []domain.Sample
	for rows.Next() {
		s, err := scanSample(rows)
		if err != nil { return nil, fmt.Errorf("op=latency.eligible_raw: %w", err) }
		out = append(out, s)
	}
	if err := rows.Err(); err != nil { return nil, fmt.Errorf("op=latency.eligible_raw: %w", err) }
	return out, nil
}

// EligibleAggregated returns aggregated rows whose representative timestamp
// is strictly older than before, in aggregation order.
func (r *LatencyRepo) EligibleAggregated(ctx domain.Context, before domain.ZoranTime) ([]domain.AggregatedSample, error) {
	tracer := otel.Tracer("repo.latency")
	ctx, span := tracer.Start(ctx, "latency.EligibleAggregated")
	defer span.End()
	rows, err := r.Pool.Query(ctx, `SELECT `+aggregatedColumns+` FROM latency_aggregated WHERE "timestamp" < $1 ORDER BY monitor_id, server_id, "timestamp"`, int64(before))
	if err != nil { return nil, fmt.Errorf("op=latency.eligible_aggregated: %w", err) }
	defer rows.Close()
	var out []domain.AggregatedSample
	for rows.Next() {
		a, err := scanAggregated(rows)
		if err != nil { return nil, fmt.Errorf("op=latency.eligible_aggregated: %w", err) }
		out = append(out, a)
	}
	if err := rows.Err(); err != nil { return nil, fmt.Errorf("op=latency.eligible_aggregated: %w", err) }
	return out, nil
}

// CommitWindows replaces this pass's input rows with their window summaries.
// Deleting the inputs before inserting, inside one transaction, keeps
// re-aggregation correct when input and output are the same table.
func (r *LatencyRepo) CommitWindows(ctx domain.Context, before domain.ZoranTime, fromAggregated bool, rows []domain.AggregatedSample) (int, error) {
	tracer := otel.Tracer("repo.latency")
	ctx, span := tracer.Start(ctx, "latency.CommitWindows")
	defer span.End()
	tx, err := r.Pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil { return 0, fmt.Errorf("op=latency.commit_windows: %w", err) }
	defer func() { _ = tx.Rollback(ctx) }()
	input := "latency_seconds"
	if fromAggregated {
		input = "latency_aggregated"
	}
	if _, err := tx.Exec(ctx, `DELETE FROM `+input+` WHERE "timestamp" < $1`, int64(before)); err != nil {
		return 0, fmt.Errorf("op=latency.commit_windows: %w", err)
	}
	inserted := 0
	q := `INSERT INTO latency_aggregated (` + aggregatedColumns + `) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11) ON CONFLICT DO NOTHING`
	for _, a := range rows {
		tag, err := tx.Exec(ctx, q,
			int64(a.Monitor), int64(a.Server), int64(a.Timestamp), int64(a.LatencyMicros),
			int64(a.Start), int64(a.End), a.Mean, a.Variance,
			int64(a.Min), int64(a.Max), int64(a.Count))
		if err != nil { return 0, fmt.Errorf("op=latency.commit_windows: %w", err) }
		inserted += int(tag.RowsAffected())
	}
	if err := tx.Commit(ctx); err != nil { return 0, fmt.Errorf("op=latency.commit_windows: %w", err) }
	return inserted, nil
}

// ExpungeBefore removes rows past the retention horizon from both tables.
// Each table is attempted even if the other fails.
func (r *LatencyRepo) ExpungeBefore(ctx domain.Context, before domain.ZoranTime) (int64, int64, error) {
	tracer := otel.Tracer("repo.latency")
	ctx, span := tracer.Start(ctx, "latency.ExpungeBefore")
	defer span.End()
	var raw, agg int64
	tag, rawErr := r.Pool.Exec(ctx, `DELETE FROM latency_seconds WHERE "timestamp" < $1`, int64(before))
	if rawErr == nil {
		raw = tag.RowsAffected()
	}
	tag, aggErr := r.Pool.Exec(ctx, `DELETE FROM latency_aggregated WHERE "timestamp" < $1`, int64(before))
	if aggErr == nil {
		agg = tag.RowsAffected()
	}
	if rawErr != nil { return raw, agg, fmt.Errorf("op=latency.expunge: %w", rawErr) }
	if aggErr != nil { return raw, agg, fmt.Errorf("op=latency.expunge: %w", aggErr) }
	return raw, agg, nil
}

// DeleteByCustomers drops every latency row owned by the given customers in
// one transaction. Safe to re-run; missing customers simply match nothing.
func (r *LatencyRepo) DeleteByCustomers(ctx domain.Context, customers []domain.CustomerID) (int64, error) {
	tracer := otel.Tracer("repo.latency")
	ctx, span := tracer.Start(ctx, "latency.DeleteByCustomers")
	defer span.End()
	if len(customers) == 0 {
		return 0, nil
	}
	ids := make([]int64, 0, len(customers))
	for _, c := range customers {
		ids = append(ids, int64(c))
	}
	tx, err := r.Pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil { return 0, fmt.Errorf("op=latency.delete_by_customers: %w", err) }
	defer func() { _ = tx.Rollback(ctx) }()
	var removed int64
	for _, table := range []string{"latency_seconds", "latency_aggregated"} {
		tag, err := tx.Exec(ctx, `DELETE FROM `+table+` WHERE monitor_id IN (SELECT monitor_id FROM monitor WHERE customer_id = ANY($1))`, ids)
		if err != nil { return 0, fmt.Errorf("op=latency.delete_by_customers: %w", err) }
		removed += tag.RowsAffected()
	}
	if err := tx.Commit(ctx); err != nil { return 0, fmt.Errorf("op=latency.delete_by_customers: %w", err) }
	return removed, nil
}

// filterValid drops samples the schema would reject. Drop counts are exported
// per reason so data loss is visible without log digging.
func filterValid(samples []domain.Sample, monitors map[domain.MonitorID]struct{}, servers map[domain.ServerID]struct{}) []domain.Sample {
	kept := make([]domain.Sample, 0, len(samples))
	var overCap, unknownMonitor, unknownServer int
	for _, s := range samples {
		if !s.LatencyOK() {
			overCap++
			continue
		}
		if _, ok := monitors[s.Monitor]; !ok {
			unknownMonitor++
			continue
		}
		if _, ok := servers[s.Server]; !ok {
			unknownServer++
			continue
		}
		kept = append(kept, s)
	}
	observability.DropSamples("latency", overCap)
	observability.DropSamples("unknown_monitor", unknownMonitor)
	observability.DropSamples("unknown_server", unknownServer)
	return kept
}

func knownMonitors(ctx domain.Context, tx pgx.Tx) (map[domain.MonitorID]struct{}, error) {
	rows, err := tx.Query(ctx, `SELECT monitor_id FROM monitor`)
	if err != nil { return nil, err }
	defer rows.Close()
	ids := make(map[domain.MonitorID]struct{})
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil { return nil, err }
		ids[domain.MonitorID(id)] = struct{}{}
	}
	return ids, rows.Err()
}

func knownServers(ctx domain.Context, tx pgx.Tx) (map[domain.ServerID]struct{}, error) {
	rows, err := tx.Query(ctx, `SELECT server_id FROM servers`)
	if err != nil { return nil, err }
	defer rows.Close()
	ids := make(map[domain.ServerID]struct{})
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil { return nil, err }
		ids[domain.ServerID(id)] = struct{}{}
	}
	return ids, rows.Err()
}

func scanSample(rows pgx.Rows) (domain.Sample, error) {
	var monitor, server, ts, latency int64
	if err := rows.Scan(&monitor, &server, &ts, &latency); err != nil {
		return domain.Sample{}, err
	}
	return domain.Sample{
		ShortSample: domain.ShortSample{Timestamp: domain.ZoranTime(ts), LatencyMicros: uint32(latency)},
		Monitor:     domain.MonitorID(monitor),
		Server:      domain.ServerID(server),
	}, nil
}

func scanAggregated(rows pgx.Rows) (domain.AggregatedSample, error) {
	var monitor, server, ts, latency, start, end, minL, maxL, count int64
	var mean, variance float64
	if err := rows.Scan(&monitor, &server, &ts, &latency, &start, &end, &mean, &variance, &minL, &maxL, &count); err != nil {
		return domain.AggregatedSample{}, err
	}
	return domain.AggregatedSample{
		Sample: domain.Sample{
			ShortSample: domain.ShortSample{Timestamp: domain.ZoranTime(ts), LatencyMicros: uint32(latency)},
			Monitor:     domain.MonitorID(monitor),
			Server:      domain.ServerID(server),
		},
		Start:    domain.ZoranTime(start),
		End:      domain.ZoranTime(end),
		Mean:     mean,
		Variance: variance,
		Min:      uint32(minL),
		Max:      uint32(maxL),
		Count:    uint32(count),
	}, nil
}
