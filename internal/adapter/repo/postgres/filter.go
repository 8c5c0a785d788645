package postgres

import (
	"strconv"
	"strings"

	"github.com/hostpulse/hostpulse/internal/domain"
)

// buildFilter renders q as a WHERE clause over either latency table. The
// most specific monitor-side predicate wins (monitor over host scheme over
// customer), then the most specific server-side predicate (server over
// region), then the time bounds. Returns an empty string when q has no
// predicates.
func buildFilter(q domain.LatencyQuery) (string, []any) {
	var (
		conds []string
		args  []any
	)
	arg := func(v any) string {
		args = append(args, v)
		return "$" + strconv.Itoa(len(args))
	}

	switch {
	case q.Monitor.Valid():
		conds = append(conds, "monitor_id = "+arg(int64(q.Monitor)))
	case q.HostScheme.Valid():
		conds = append(conds, "monitor_id IN (SELECT monitor_id FROM monitor WHERE host_scheme_id = "+arg(int64(q.HostScheme))+")")
	case q.Customer.Valid():
		conds = append(conds, "monitor_id IN (SELECT monitor_id FROM monitor WHERE customer_id = "+arg(int64(q.Customer))+")")
	}

	switch {
	case q.Server.Valid():
		conds = append(conds, "server_id = "+arg(int64(q.Server)))
	case q.Region.Valid():
		conds = append(conds, "server_id IN (SELECT server_id FROM servers WHERE region_id = "+arg(int64(q.Region))+")")
	}

	if q.Start > 0 {
		conds = append(conds, `"timestamp" >= `+arg(int64(q.Start)))
	}
	if q.End > 0 {
		conds = append(conds, `"timestamp" <= `+arg(int64(q.End)))
	}

	if len(conds) == 0 {
		return "", nil
	}
	return " WHERE " + strings.Join(conds, " AND "), args
}
