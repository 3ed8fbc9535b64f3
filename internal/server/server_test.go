package server

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/NJTYTYTY/Backend-depa/internal/config"
	apperrors "github.com/NJTYTYTY/Backend-depa/internal/errors"
	"github.com/NJTYTYTY/Backend-depa/internal/eventsource"
	"github.com/NJTYTYTY/Backend-depa/internal/realtime"
)

const testIngestSecret = "test-ingest-secret"

type testEnv struct {
	ts  *httptest.Server
	hub *realtime.Hub
}

func newTestEnv(t *testing.T, mutate func(cfg *config.Config)) *testEnv {
	t.Helper()

	cfg := &config.Config{
		Port:                     "0",
		HeartbeatInterval:        time.Hour,
		HeartbeatMissedThreshold: time.Hour,
		HeartbeatGraceWindow:     time.Hour,
		SendTimeout:              2 * time.Second,
		MaxClientsPerPond:        50,
		MaxWebSocketConnections:  100,
		EventQueueSize:           64,
		WSRateLimit:              1000,
		WSRateBurst:              1000,
		EventIngestSecret:        testIngestSecret,
		ShutdownTimeout:          2 * time.Second,
	}
	if mutate != nil {
		mutate(cfg)
	}

	clock := clockwork.NewRealClock()
	hub := realtime.NewHub(realtime.HubConfig{
		HeartbeatInterval:        cfg.HeartbeatInterval,
		HeartbeatMissedThreshold: cfg.HeartbeatMissedThreshold,
		HeartbeatGraceWindow:     cfg.HeartbeatGraceWindow,
		SendTimeout:              cfg.SendTimeout,
		MaxClientsPerPond:        cfg.MaxClientsPerPond,
		MaxConnections:           cfg.MaxWebSocketConnections,
	}, clock)
	notifier := eventsource.NewNotifier(hub, clock, cfg.EventQueueSize)

	srv := NewServer(cfg, hub, notifier)
	ts := httptest.NewServer(srv.echo)

	t.Cleanup(func() {
		ts.Close()
		notifier.Close()
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = hub.Shutdown(ctx)
	})

	return &testEnv{ts: ts, hub: hub}
}

func (env *testEnv) wsURL(path string) string {
	return strings.Replace(env.ts.URL, "http://", "ws://", 1) + path
}

func (env *testEnv) dial(t *testing.T, pondID string) *websocket.Conn {
	t.Helper()
	conn, _, err := websocket.DefaultDialer.Dial(env.wsURL("/ws/"+pondID), nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

func readJSON(t *testing.T, conn *websocket.Conn) map[string]any {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, data, err := conn.ReadMessage()
	require.NoError(t, err)
	var frame map[string]any
	require.NoError(t, json.Unmarshal(data, &frame))
	return frame
}

func (env *testEnv) postEvent(t *testing.T, secret string, body any) *http.Response {
	t.Helper()
	data, err := json.Marshal(body)
	require.NoError(t, err)

	req, err := http.NewRequest(http.MethodPost, env.ts.URL+"/internal/events", bytes.NewReader(data))
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	if secret != "" {
		req.Header.Set("X-Event-Secret", secret)
	}

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func TestWebSocketIntegration_WelcomeFrame(t *testing.T) {
	env := newTestEnv(t, nil)
	conn := env.dial(t, "pond-1")

	frame := readJSON(t, conn)
	assert.Equal(t, "pond_update", frame["eventType"])
	assert.Equal(t, "pond-1", frame["pondId"])
	payload := frame["payload"].(map[string]any)
	assert.Equal(t, "connected", payload["status"])

	assert.Equal(t, 1, env.hub.ClientCount("pond-1"))
}

func TestWebSocketIntegration_EventIngestReachesSubscriber(t *testing.T) {
	env := newTestEnv(t, nil)
	conn := env.dial(t, "pond-1")
	readJSON(t, conn) // welcome

	resp := env.postEvent(t, testIngestSecret, map[string]any{
		"pondId":    "pond-1",
		"eventType": "sensor_update",
		"payload":   map[string]any{"temp": 27.5, "ph": 7.2},
	})
	assert.Equal(t, http.StatusAccepted, resp.StatusCode)

	frame := readJSON(t, conn)
	assert.Equal(t, "sensor_update", frame["eventType"])
	assert.Equal(t, "pond-1", frame["pondId"])
	payload := frame["payload"].(map[string]any)
	assert.Equal(t, 27.5, payload["temp"])
	assert.Equal(t, 7.2, payload["ph"])
	assert.NotEmpty(t, frame["timestamp"])
}

func TestWebSocketIntegration_PondIsolation(t *testing.T) {
	env := newTestEnv(t, nil)
	conn1 := env.dial(t, "pond-1")
	conn2 := env.dial(t, "pond-2")
	readJSON(t, conn1)
	readJSON(t, conn2)

	env.postEvent(t, testIngestSecret, map[string]any{
		"pondId":    "pond-1",
		"eventType": "pond_update",
		"payload":   map[string]any{"fish_count": 1200},
	})

	frame := readJSON(t, conn1)
	assert.Equal(t, "pond-1", frame["pondId"])

	// pond-2 must see nothing.
	require.NoError(t, conn2.SetReadDeadline(time.Now().Add(300*time.Millisecond)))
	_, _, err := conn2.ReadMessage()
	require.Error(t, err)
	assert.True(t, strings.Contains(err.Error(), "timeout") || websocket.IsUnexpectedCloseError(err))
}

func TestWebSocketIntegration_WildcardFansOutToAllPonds(t *testing.T) {
	env := newTestEnv(t, nil)
	conn1 := env.dial(t, "pond-1")
	conn2 := env.dial(t, "pond-2")
	readJSON(t, conn1)
	readJSON(t, conn2)

	resp := env.postEvent(t, testIngestSecret, map[string]any{
		"pondId":    "*",
		"eventType": "system_alert",
		"payload":   map[string]any{"message": "scheduled maintenance"},
	})
	assert.Equal(t, http.StatusAccepted, resp.StatusCode)

	for _, conn := range []*websocket.Conn{conn1, conn2} {
		frame := readJSON(t, conn)
		assert.Equal(t, "system_alert", frame["eventType"])
	}
}

func TestWebSocketIntegration_PingPong(t *testing.T) {
	env := newTestEnv(t, nil)
	conn := env.dial(t, "pond-1")
	readJSON(t, conn) // welcome

	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte(`{"type":"ping"}`)))

	frame := readJSON(t, conn)
	assert.Equal(t, "pong", frame["type"])
}

func TestWebSocketIntegration_DisconnectDropsCount(t *testing.T) {
	env := newTestEnv(t, nil)
	conn := env.dial(t, "pond-1")
	readJSON(t, conn)
	require.Equal(t, 1, env.hub.ClientCount("pond-1"))

	conn.Close()

	assert.Eventually(t, func() bool {
		return env.hub.ClientCount("pond-1") == 0
	}, 2*time.Second, 10*time.Millisecond)
}

func TestWebSocketIntegration_PondCapClosesExcessClient(t *testing.T) {
	env := newTestEnv(t, func(cfg *config.Config) {
		cfg.MaxClientsPerPond = 1
	})

	conn1 := env.dial(t, "pond-1")
	readJSON(t, conn1)

	// The upgrade succeeds but the hub rejects admission and closes the
	// socket without a welcome frame.
	conn2 := env.dial(t, "pond-1")
	require.NoError(t, conn2.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, _, err := conn2.ReadMessage()
	require.Error(t, err)

	assert.Equal(t, 1, env.hub.ClientCount("pond-1"))
}

func TestWebSocketIntegration_RateLimitedDialRejected(t *testing.T) {
	env := newTestEnv(t, func(cfg *config.Config) {
		cfg.WSRateLimit = 1
		cfg.WSRateBurst = 1
	})

	conn := env.dial(t, "pond-1")
	readJSON(t, conn)

	_, resp, err := websocket.DefaultDialer.Dial(env.wsURL("/ws/pond-1"), nil)
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusTooManyRequests, resp.StatusCode)
}

func TestIngestEvent_RejectsBadSecret(t *testing.T) {
	env := newTestEnv(t, nil)

	body := map[string]any{"pondId": "pond-1", "eventType": "sensor_update"}

	resp := env.postEvent(t, "wrong-secret", body)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	resp = env.postEvent(t, "", body)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestIngestEvent_RejectsMissingFields(t *testing.T) {
	env := newTestEnv(t, nil)

	resp := env.postEvent(t, testIngestSecret, map[string]any{"pondId": "pond-1"})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	var errResp apperrors.ErrorResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&errResp))
	assert.Equal(t, apperrors.TypeValidation, errResp.Type)

	resp = env.postEvent(t, testIngestSecret, map[string]any{"eventType": "sensor_update"})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestStatsEndpoint(t *testing.T) {
	env := newTestEnv(t, nil)
	conn := env.dial(t, "pond-1")
	readJSON(t, conn)

	resp, err := http.Get(env.ts.URL + "/ws/stats")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var stats realtime.Stats
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&stats))
	assert.Equal(t, 1, stats.ActiveConnections)
	assert.Equal(t, 1, stats.PondsWithConnections)
	assert.Equal(t, int64(1), stats.TotalAdmissions)
}

func TestHealthEndpoints(t *testing.T) {
	env := newTestEnv(t, nil)

	for _, path := range []string{"/health/live", "/health/ready"} {
		resp, err := http.Get(env.ts.URL + path)
		require.NoError(t, err)
		assert.Equal(t, http.StatusOK, resp.StatusCode, path)
		resp.Body.Close()
	}
}

func TestMetricsEndpoint(t *testing.T) {
	env := newTestEnv(t, nil)

	resp, err := http.Get(env.ts.URL + "/metrics")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}
