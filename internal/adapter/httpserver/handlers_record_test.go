package httpserver_test

import (
	"bytes"
	"net/http"
	"net/http/httptest"
	"net/netip"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hostpulse/hostpulse/internal/adapter/uplink"
	"github.com/hostpulse/hostpulse/internal/domain"
)

func postBinary(h http.Handler, body []byte) *httptest.ResponseRecorder {
	r := httptest.NewRequest(http.MethodPost, "/latency/record", bytes.NewReader(body))
	r.Header.Set("Content-Type", "application/octet-stream")
	w := httptest.NewRecorder()
	h.ServeHTTP(w, r)
	return w
}

func workerFrame(samples ...uplink.ReportSample) []byte {
	return uplink.EncodeReport(uplink.Report{
		IPv4: netip.MustParseAddr("198.51.100.7"),
		Telemetry: domain.ServerTelemetry{
			Status:            domain.ServerActive,
			MonitorsPerSecond: 2.5,
			CPULoad:           0.5,
			MemoryLoad:        0.25,
		},
		Samples: samples,
	})
}

func TestRecordHandler_TruncatedFrameIsRejected(t *testing.T) {
	env := newTestEnv(t)

	w := postBinary(env.srv.RecordHandler(), make([]byte, 63))

	require.Equal(t, http.StatusBadRequest, w.Code)
	assert.Zero(t, w.Body.Len(), "envelope violations carry no body")
	assert.Empty(t, env.sink.samples)
}

func TestRecordHandler_RaggedSampleBlockIsRejected(t *testing.T) {
	env := newTestEnv(t)

	w := postBinary(env.srv.RecordHandler(), make([]byte, 64+13))

	require.Equal(t, http.StatusBadRequest, w.Code)
	assert.Zero(t, w.Body.Len())
	assert.Empty(t, env.sink.samples)
}

func TestRecordHandler_QueuesSamplesAndTelemetry(t *testing.T) {
	env := newTestEnv(t)

	body := workerFrame(
		uplink.ReportSample{Monitor: 7, ShortSample: domain.ShortSample{Timestamp: 1000, LatencyMicros: 500_000}},
		uplink.ReportSample{Monitor: 8, ShortSample: domain.ShortSample{Timestamp: 1010, LatencyMicros: 250_000}},
	)
	w := postBinary(env.srv.RecordHandler(), body)

	require.Equal(t, http.StatusOK, w.Code)
	resp := decodeBody(t, w)
	assert.Equal(t, "OK", resp["status"])
	assert.EqualValues(t, 2, resp["queued"])

	require.Len(t, env.sink.samples, 2)
	assert.Equal(t, domain.RegionID(1), env.sink.region)
	assert.Equal(t, domain.ServerID(3), env.sink.samples[0].Server, "samples are stamped with the resolved server")
	assert.Equal(t, domain.MonitorID(7), env.sink.samples[0].Monitor)

	require.Len(t, env.servers.telemetry, 1)
	assert.Equal(t, domain.ServerActive, env.servers.telemetry[0].Status)
	assert.InDelta(t, 2.5, env.servers.telemetry[0].MonitorsPerSecond, 1.0/256)
}

func TestRecordHandler_UnknownServerQueuesNothing(t *testing.T) {
	env := newTestEnv(t)
	env.servers.missing = true

	body := workerFrame(
		uplink.ReportSample{Monitor: 7, ShortSample: domain.ShortSample{Timestamp: 1000, LatencyMicros: 500_000}},
	)
	w := postBinary(env.srv.RecordHandler(), body)

	require.Equal(t, http.StatusOK, w.Code)
	resp := decodeBody(t, w)
	assert.Equal(t, "failed, unknown server", resp["status"])
	assert.Empty(t, env.sink.samples)
}

func TestRecordHandler_TelemetryOnlyFrame(t *testing.T) {
	env := newTestEnv(t)

	w := postBinary(env.srv.RecordHandler(), workerFrame())

	require.Equal(t, http.StatusOK, w.Code)
	resp := decodeBody(t, w)
	assert.Equal(t, "OK", resp["status"])
	assert.EqualValues(t, 0, resp["queued"])
	require.Len(t, env.servers.telemetry, 1)
}
