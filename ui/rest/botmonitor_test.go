package rest

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/AzielCF/az-messenger/pkg/botmonitor"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGetMonitorStats_Uninitialized(t *testing.T) {
	app := newTestApp()
	InitRestBotMonitor(app, nil)

	resp, _ := doRequest(t, app, httptest.NewRequest(http.MethodGet, "/monitor", nil))

	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
}

func TestGetMonitorStats(t *testing.T) {
	monitor := botmonitor.New(10, 0)
	monitor.Record(botmonitor.Event{TraceID: "T1", BotID: "B1", SenderID: "U1", Stage: botmonitor.StageInbound, Status: botmonitor.StatusOK})
	monitor.Record(botmonitor.Event{TraceID: "T1", BotID: "B1", SenderID: "U1", Stage: botmonitor.StageBackendReply, Status: botmonitor.StatusError, Error: "timeout"})

	app := newTestApp()
	InitRestBotMonitor(app, monitor)

	resp, body := doRequest(t, app, httptest.NewRequest(http.MethodGet, "/monitor", nil))
	require.Equal(t, http.StatusOK, resp.StatusCode)

	results := decodeEnvelope(t, body).Results.(map[string]any)
	assert.Equal(t, float64(1), results["total_inbound"])
	assert.Equal(t, float64(1), results["total_errors"])
	events := results["recent_events"].([]any)
	require.Len(t, events, 2)
	assert.Equal(t, "timeout", events[1].(map[string]any)["error"])
}
