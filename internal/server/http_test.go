package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type pingFunc func(ctx context.Context) error

func (f pingFunc) Ping(ctx context.Context) error { return f(ctx) }

func serveHealth(t *testing.T, handler http.Handler) (int, healthResponse) {
	t.Helper()
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/health", nil))

	var resp healthResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	return w.Code, resp
}

func TestHealthEndpoint(t *testing.T) {
	status, resp := serveHealth(t, NewHealthHandler(nil))

	assert.Equal(t, http.StatusOK, status)
	assert.Equal(t, "ok", resp.Status)
	assert.Empty(t, resp.Checks)
}

func TestHealthEndpoint_Checks(t *testing.T) {
	healthy := pingFunc(func(context.Context) error { return nil })
	failing := pingFunc(func(context.Context) error { return errors.New("dial tcp: connection refused") })

	t.Run("all_ok", func(t *testing.T) {
		status, resp := serveHealth(t, NewHealthHandler(map[string]Pinger{"storage": healthy, "cache": healthy}))

		assert.Equal(t, http.StatusOK, status)
		assert.Equal(t, "ok", resp.Status)
		assert.Equal(t, map[string]string{"storage": "ok", "cache": "ok"}, resp.Checks)
	})

	t.Run("one_failing", func(t *testing.T) {
		logs := captureLogs(t, "warn")
		status, resp := serveHealth(t, NewHealthHandler(map[string]Pinger{"storage": healthy, "cache": failing}))

		assert.Equal(t, http.StatusServiceUnavailable, status)
		assert.Equal(t, "degraded", resp.Status)
		assert.Equal(t, map[string]string{"storage": "ok", "cache": "unavailable"}, resp.Checks)
		assert.Contains(t, logs.String(), "connection refused")
	})

	t.Run("checks_get_a_deadline", func(t *testing.T) {
		var hadDeadline bool
		probe := pingFunc(func(ctx context.Context) error {
			_, hadDeadline = ctx.Deadline()
			return nil
		})
		serveHealth(t, NewHealthHandler(map[string]Pinger{"storage": probe}))
		assert.True(t, hadDeadline)
	})
}

func TestNewHTTPServer(t *testing.T) {
	srv := NewHTTPServer(NewHealthHandler(nil), ":0")
	assert.Equal(t, ":0", srv.Addr())
}
