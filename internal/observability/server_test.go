// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Groupomania Contributors

package observability

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func get(t *testing.T, h http.Handler, path string) (int, string) {
	t.Helper()
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
	return rec.Code, rec.Body.String()
}

func TestServer_MetricsEndpoint(t *testing.T) {
	server := NewServer("127.0.0.1:0", nil, nil)
	m := server.Metrics()
	m.RecordAuth("login", nil)
	m.RecordAuth("login", errors.New("denied"))
	m.HTTPRequests.WithLabelValues("/api/users/login", "200").Inc()
	m.ObserveHash(30 * time.Millisecond)

	code, body := get(t, server.Handler(), "/metrics")
	assert.Equal(t, http.StatusOK, code)
	assert.Contains(t, body, "go_")
	assert.Contains(t, body, "process_")
	assert.Contains(t, body, `groupomania_auth_operations_total{operation="login",outcome="success"} 1`)
	assert.Contains(t, body, `groupomania_auth_operations_total{operation="login",outcome="failure"} 1`)
	assert.Contains(t, body, "groupomania_http_requests_total")
	assert.Contains(t, body, "groupomania_password_hash_duration_seconds_count 1")
}

func TestServer_Liveness(t *testing.T) {
	code, body := get(t, NewServer("", nil, nil).Handler(), "/healthz/liveness")
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, "ok", strings.TrimSpace(body))
}

func TestServer_Readiness(t *testing.T) {
	ok := func(context.Context) error { return nil }
	down := func(context.Context) error { return errors.New("connection refused") }

	tests := []struct {
		name     string
		checks   map[string]Check
		wantCode int
		wantBody string
	}{
		{"no checks", nil, http.StatusOK, "ok"},
		{"all pass", map[string]Check{"database": ok, "redis": ok}, http.StatusOK, "ok"},
		{"one fails", map[string]Check{"database": ok, "redis": down}, http.StatusServiceUnavailable, "not ready: redis"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			code, body := get(t, NewServer("", tt.checks, nil).Handler(), "/healthz/readiness")
			assert.Equal(t, tt.wantCode, code)
			assert.Equal(t, tt.wantBody, strings.TrimSpace(body))
		})
	}
}

func TestServer_ReadinessCheckHasDeadline(t *testing.T) {
	var hadDeadline bool
	checks := map[string]Check{"database": func(ctx context.Context) error {
		_, hadDeadline = ctx.Deadline()
		return nil
	}}
	code, _ := get(t, NewServer("", checks, nil).Handler(), "/healthz/readiness")
	assert.Equal(t, http.StatusOK, code)
	assert.True(t, hadDeadline)
}

func TestServer_StartStop(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreTopFunction("net/http.(*persistConn).writeLoop"),
		goleak.IgnoreTopFunction("internal/poll.runtime_pollWait"))

	server := NewServer("127.0.0.1:0", nil, nil)
	errCh, err := server.Start()
	require.NoError(t, err)
	require.NotEmpty(t, server.Addr())

	_, err = server.Start()
	require.Error(t, err, "second start must fail")

	client := &http.Client{Transport: &http.Transport{DisableKeepAlives: true}}
	resp, err := client.Get("http://" + server.Addr() + "/healthz/liveness")
	require.NoError(t, err)
	_, _ = io.Copy(io.Discard, resp.Body)
	_ = resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, server.Stop(ctx))
	require.NoError(t, server.Stop(ctx), "stop is idempotent")

	_, open := <-errCh
	assert.False(t, open, "error channel closes on graceful stop")
}

func TestServer_StartFailsOnBadAddress(t *testing.T) {
	server := NewServer("256.0.0.1:bad", nil, nil)
	_, err := server.Start()
	require.Error(t, err)
}

func TestMetrics_RecordAuth(t *testing.T) {
	m := NewMetrics(prometheus.NewRegistry())
	m.RecordAuth("signup", nil)
	m.RecordAuth("signup", nil)
	m.RecordAuth("refresh", errors.New("expired"))

	assert.InDelta(t, 2, testutil.ToFloat64(m.AuthOperations.WithLabelValues("signup", OutcomeSuccess)), 0)
	assert.InDelta(t, 1, testutil.ToFloat64(m.AuthOperations.WithLabelValues("refresh", OutcomeFailure)), 0)
}
