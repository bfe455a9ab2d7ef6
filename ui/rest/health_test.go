package rest

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func okPing(ctx context.Context) error { return nil }

func TestHealthAllUp(t *testing.T) {
	app := newTestApp()
	InitRestHealth(app, "azmsg-1", PingFunc(okPing), PingFunc(okPing))

	resp, body := doRequest(t, app, httptest.NewRequest(http.MethodGet, "/health", nil))
	require.Equal(t, http.StatusOK, resp.StatusCode)

	results := decodeEnvelope(t, body).Results.(map[string]any)
	assert.Equal(t, "azmsg-1", results["server_id"])
	components := results["components"].(map[string]any)
	assert.Equal(t, "up", components["database"].(map[string]any)["status"])
	assert.Equal(t, "up", components["valkey"].(map[string]any)["status"])
}

func TestHealthValkeyDisabled(t *testing.T) {
	app := newTestApp()
	InitRestHealth(app, "azmsg-1", PingFunc(okPing), nil)

	resp, body := doRequest(t, app, httptest.NewRequest(http.MethodGet, "/health", nil))
	require.Equal(t, http.StatusOK, resp.StatusCode)

	components := decodeEnvelope(t, body).Results.(map[string]any)["components"].(map[string]any)
	assert.Equal(t, "disabled", components["valkey"].(map[string]any)["status"])
}

func TestHealthDatabaseDown(t *testing.T) {
	app := newTestApp()
	InitRestHealth(app, "azmsg-1", PingFunc(func(ctx context.Context) error {
		return errors.New("connection refused")
	}), nil)

	resp, body := doRequest(t, app, httptest.NewRequest(http.MethodGet, "/health", nil))

	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
	assert.Contains(t, string(body), "connection refused")
}
