package domain

// MaxLatencyMicros is the largest plausible reading. Anything above it is a
// bad measurement and is dropped at ingest.
const MaxLatencyMicros uint32 = 60_000_000

// ShortSample is one observation as a worker reports it.
type ShortSample struct {
	Timestamp     ZoranTime
	LatencyMicros uint32
}

// LatencyOK reports whether the reading is within the plausible range.
func (s ShortSample) LatencyOK() bool { return s.LatencyMicros <= MaxLatencyMicros }

// Sample attributes an observation to a monitor and the server that took it.
type Sample struct {
	ShortSample
	Monitor MonitorID
	Server  ServerID
}

// Less orders by (monitor, server, timestamp), the storage order.
func (s Sample) Less(o Sample) bool {
	if s.Monitor != o.Monitor {
		return s.Monitor < o.Monitor
	}
	if s.Server != o.Server {
		return s.Server < o.Server
	}
	return s.Timestamp < o.Timestamp
}

// AggregatedSample summarizes one aggregation window. The embedded Sample is
// a representative raw observation chosen uniformly from the window, so
// display code can overlay exemplars on aggregates without special cases.
// Latencies are microseconds; Variance is microseconds squared (population).
type AggregatedSample struct {
	Sample
	Start    ZoranTime
	End      ZoranTime
	Mean     float64
	Variance float64
	Min      uint32
	Max      uint32
	Count    uint32
}

// Valid reports whether the row summarizes at least one observation. The
// zero value doubles as the "no data" sentinel.
func (a AggregatedSample) Valid() bool { return a.Count > 0 }
