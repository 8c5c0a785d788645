//go:build e2e

// Package e2e_test drives a running HostPulse deployment over HTTP. Point
// E2E_BASE_URL at the API process; set E2E_UPLOAD_SECRET and
// E2E_OPERATOR_SECRET to match its configuration when auth is enabled.
package e2e_test

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"os"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

var (
	baseURL        = getenv("E2E_BASE_URL", "http://localhost:8080")
	uploadSecret   = getenv("E2E_UPLOAD_SECRET", "")
	operatorSecret = getenv("E2E_OPERATOR_SECRET", "")
)

// getenv returns the value of the environment variable k or def if empty.
func getenv(k, def string) string { if v := os.Getenv(k); v != "" { return v }; return def }

// skipUnlessUp probes /healthz and skips the test when the deployment is
// not reachable, so the suite is safe to run unconditionally in CI.
func skipUnlessUp(t *testing.T, client *http.Client) {
	t.Helper()
	resp, err := client.Get(baseURL + "/healthz")
	if err != nil || resp.StatusCode != http.StatusOK {
		if resp != nil {
			_ = resp.Body.Close()
		}
		t.Skip("deployment not reachable; skipping")
	}
	_ = resp.Body.Close()
}

// operatorPost sends a JSON request to an operator endpoint, attaching the
// bearer secret when one is configured.
func operatorPost(t *testing.T, client *http.Client, path, body string) *http.Response {
	t.Helper()
	req, err := http.NewRequest(http.MethodPost, baseURL+path, strings.NewReader(body))
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	if operatorSecret != "" {
		req.Header.Set("Authorization", "Bearer "+operatorSecret)
	}
	resp, err := client.Do(req)
	require.NoError(t, err)
	return resp
}

// uploadReport posts a binary worker report, signing it when the shared
// secret is configured.
func uploadReport(t *testing.T, client *http.Client, body []byte, sign func([]byte) string) *http.Response {
	t.Helper()
	req, err := http.NewRequest(http.MethodPost, baseURL+"/latency/record", bytes.NewReader(body))
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/octet-stream")
	if sign != nil {
		req.Header.Set("X-Upload-Signature", sign(body))
	}
	resp, err := client.Do(req)
	require.NoError(t, err)
	return resp
}

// decodeBody closes resp and returns its JSON object body.
func decodeBody(t *testing.T, resp *http.Response) map[string]any {
	t.Helper()
	defer func() { _ = resp.Body.Close() }()
	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	var out map[string]any
	require.NoError(t, json.Unmarshal(raw, &out), "body: %s", string(raw))
	return out
}

// drain closes resp and returns the raw body.
func drain(t *testing.T, resp *http.Response) []byte {
	t.Helper()
	defer func() { _ = resp.Body.Close() }()
	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return raw
}
