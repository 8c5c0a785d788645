package domain

import "testing"

func TestShortSampleLatencyOK(t *testing.T) {
	tests := []struct {
		name    string
		latency uint32
		want    bool
	}{
		{"zero", 0, true},
		{"typical", 250_000, true},
		{"at limit", 60_000_000, true},
		{"just over limit", 60_000_001, false},
		{"far over limit", 4_000_000_000, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := ShortSample{Timestamp: 1000, LatencyMicros: tt.latency}
			if got := s.LatencyOK(); got != tt.want {
				t.Errorf("LatencyOK() with latency %d = %v, want %v", tt.latency, got, tt.want)
			}
		})
	}
}

func TestSampleLess(t *testing.T) {
	mk := func(m MonitorID, srv ServerID, ts ZoranTime) Sample {
		return Sample{ShortSample: ShortSample{Timestamp: ts}, Monitor: m, Server: srv}
	}

	tests := []struct {
		name string
		a, b Sample
		want bool
	}{
		{"monitor wins", mk(1, 9, 9), mk(2, 1, 1), true},
		{"server breaks monitor tie", mk(3, 1, 9), mk(3, 2, 1), true},
		{"timestamp breaks server tie", mk(3, 2, 1), mk(3, 2, 2), true},
		{"equal is not less", mk(3, 2, 1), mk(3, 2, 1), false},
		{"reversed", mk(2, 1, 1), mk(1, 9, 9), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.a.Less(tt.b); got != tt.want {
				t.Errorf("Less = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestAggregatedSampleValid(t *testing.T) {
	var zero AggregatedSample
	if zero.Valid() {
		t.Error("zero value must be invalid")
	}

	a := AggregatedSample{Count: 1, Mean: 100, Min: 100, Max: 100}
	if !a.Valid() {
		t.Error("one-observation summary must be valid")
	}
}
