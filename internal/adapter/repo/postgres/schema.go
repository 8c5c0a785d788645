package postgres

import (
	"context"
	"fmt"
)

// schemaStatements bootstrap the tables this service owns. Everything is
// idempotent so startup can run them unconditionally. Catalog rows are
// written by the admin surfaces; this service only needs the shapes.
var schemaStatements = []string{
	`CREATE TABLE IF NOT EXISTS region (
		region_id integer PRIMARY KEY,
		name      text NOT NULL DEFAULT ''
	)`,
	`CREATE TABLE IF NOT EXISTS servers (
		server_id           integer PRIMARY KEY,
		region_id           integer NOT NULL REFERENCES region(region_id),
		identifier          text NOT NULL UNIQUE,
		status              smallint NOT NULL DEFAULT 0,
		monitors_per_second double precision NOT NULL DEFAULT 0,
		cpu_loading         double precision NOT NULL DEFAULT 0,
		memory_loading      double precision NOT NULL DEFAULT 0,
		last_seen           timestamptz NOT NULL DEFAULT now()
	)`,
	`CREATE TABLE IF NOT EXISTS customer (
		customer_id          bigint PRIMARY KEY,
		name                 text NOT NULL DEFAULT '',
		polling_interval_sec bigint NOT NULL DEFAULT 60,
		max_monitors         bigint NOT NULL DEFAULT 10,
		retention_days       bigint NOT NULL DEFAULT 90,
		capability_flags     integer NOT NULL DEFAULT 0
	)`,
	`CREATE TABLE IF NOT EXISTS monitor (
		monitor_id     bigint PRIMARY KEY,
		customer_id    bigint NOT NULL REFERENCES customer(customer_id) ON DELETE CASCADE,
		host_scheme_id bigint NOT NULL DEFAULT 0,
		url            text NOT NULL DEFAULT ''
	)`,
	`CREATE INDEX IF NOT EXISTS monitor_customer_idx ON monitor (customer_id)`,
	`CREATE INDEX IF NOT EXISTS monitor_host_scheme_idx ON monitor (host_scheme_id)`,
	`CREATE TABLE IF NOT EXISTS latency_seconds (
		monitor_id  bigint  NOT NULL REFERENCES monitor(monitor_id) ON DELETE CASCADE,
		server_id   integer NOT NULL REFERENCES servers(server_id) ON DELETE CASCADE,
		"timestamp" bigint  NOT NULL,
		latency     bigint  NOT NULL,
		PRIMARY KEY (monitor_id, server_id, "timestamp")
	)`,
	`CREATE INDEX IF NOT EXISTS latency_seconds_ts_idx ON latency_seconds ("timestamp")`,
	`CREATE TABLE IF NOT EXISTS latency_aggregated (
		monitor_id       bigint  NOT NULL REFERENCES monitor(monitor_id) ON DELETE CASCADE,
		server_id        integer NOT NULL REFERENCES servers(server_id) ON DELETE CASCADE,
		"timestamp"      bigint  NOT NULL,
		latency          bigint  NOT NULL,
		start_timestamp  bigint  NOT NULL,
		end_timestamp    bigint  NOT NULL,
		mean_latency     double precision NOT NULL,
		variance_latency double precision NOT NULL,
		minimum_latency  bigint  NOT NULL,
		maximum_latency  bigint  NOT NULL,
		number_samples   bigint  NOT NULL,
		PRIMARY KEY (monitor_id, server_id, start_timestamp)
	)`,
	`CREATE INDEX IF NOT EXISTS latency_aggregated_ts_idx ON latency_aggregated ("timestamp")`,
}

// EnsureSchema creates the tables and indexes if they do not exist.
func EnsureSchema(ctx context.Context, pool PgxPool) error {
	for _, stmt := range schemaStatements {
		if _, err := pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("op=schema.ensure: %w", err)
		}
	}
	return nil
}
