// Package httpserver carries the HTTP surface of the service: the binary
// worker upload, the operator and customer JSON APIs, and the middleware
// they share. Business failures travel as a human-readable status string
// with HTTP 200; only a malformed request envelope earns a bare 400.
package httpserver

import (
	"encoding/json"
	"net/http"

	"github.com/hostpulse/hostpulse/internal/domain"
)

const statusOK = "OK"

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// writeOK replies with the standard success envelope plus any extra keys.
func writeOK(w http.ResponseWriter, extra map[string]any) {
	body := map[string]any{"status": statusOK}
	for k, v := range extra {
		body[k] = v
	}
	writeJSON(w, http.StatusOK, body)
}

// writeFailed reports a business failure. The transport succeeded, so the
// HTTP status stays 200 and the envelope carries the reason.
func writeFailed(w http.ResponseWriter, why string) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "failed, " + why})
}

// writeBare replies with a status code and no body. Used for envelope
// violations and failed authentication.
func writeBare(w http.ResponseWriter, status int) {
	w.WriteHeader(status)
}

// Latencies are stored in microseconds and served in seconds; variance
// converts by the square of the scale.
func secondsFromMicros(v float64) float64 { return v / 1e6 }

func secondsSquaredFromMicros(v float64) float64 { return v / 1e12 }

type recentRow struct {
	MonitorID      uint32  `json:"monitor_id"`
	ServerID       uint16  `json:"server_id,omitempty"`
	Timestamp      int64   `json:"timestamp"`
	LatencySeconds float64 `json:"latency_seconds"`
}

type aggregatedRow struct {
	recentRow
	Average        float64 `json:"average"`
	Variance       float64 `json:"variance"`
	Minimum        float64 `json:"minimum"`
	Maximum        float64 `json:"maximum"`
	NumberSamples  uint32  `json:"number_samples"`
	StartTimestamp int64   `json:"start_timestamp"`
	EndTimestamp   int64   `json:"end_timestamp"`
}

type latencyResponse struct {
	Status     string          `json:"status"`
	Recent     []recentRow     `json:"recent"`
	Aggregated []aggregatedRow `json:"aggregated"`
}

type statisticsResponse struct {
	Status         string  `json:"status"`
	Average        float64 `json:"average"`
	Variance       float64 `json:"variance"`
	Minimum        float64 `json:"minimum"`
	Maximum        float64 `json:"maximum"`
	NumberSamples  uint32  `json:"number_samples"`
	StartTimestamp int64   `json:"start_timestamp"`
	EndTimestamp   int64   `json:"end_timestamp"`
}

func recentRows(samples []domain.Sample) []recentRow {
	rows := make([]recentRow, 0, len(samples))
	for _, s := range samples {
		rows = append(rows, recentRow{
			MonitorID:      uint32(s.Monitor),
			ServerID:       uint16(s.Server),
			Timestamp:      s.Timestamp.Unix(),
			LatencySeconds: secondsFromMicros(float64(s.LatencyMicros)),
		})
	}
	return rows
}

func aggregatedRows(samples []domain.AggregatedSample) []aggregatedRow {
	rows := make([]aggregatedRow, 0, len(samples))
	for _, a := range samples {
		rows = append(rows, aggregatedRow{
			recentRow: recentRow{
				MonitorID:      uint32(a.Monitor),
				ServerID:       uint16(a.Server),
				Timestamp:      a.Timestamp.Unix(),
				LatencySeconds: secondsFromMicros(float64(a.LatencyMicros)),
			},
			Average:        secondsFromMicros(a.Mean),
			Variance:       secondsSquaredFromMicros(a.Variance),
			Minimum:        secondsFromMicros(float64(a.Min)),
			Maximum:        secondsFromMicros(float64(a.Max)),
			NumberSamples:  a.Count,
			StartTimestamp: a.Start.Unix(),
			EndTimestamp:   a.End.Unix(),
		})
	}
	return rows
}
