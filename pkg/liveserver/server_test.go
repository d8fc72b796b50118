package liveserver

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestServer(t *testing.T, opts Options) (*Server, *Hub, string) {
	t.Helper()
	hub := NewHub(nil)
	runHub(t, hub)

	server := NewServer(hub, nil, opts)
	ts := httptest.NewServer(server.Handler())
	t.Cleanup(ts.Close)
	return server, hub, ts.URL
}

func dialWS(baseURL, origin string) (*websocket.Conn, *http.Response, error) {
	header := http.Header{}
	if origin != "" {
		header.Set("Origin", origin)
	}
	return websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(baseURL, "http")+"/ws", header)
}

func TestServerWebSocketLifecycle(t *testing.T) {
	_, hub, url := newTestServer(t, Options{AllowedOrigins: []string{"http://localhost:4200"}})

	ws, _, err := dialWS(url, "http://localhost:4200")
	require.NoError(t, err)

	require.Eventually(t, func() bool { return hub.ClientCount() == 1 }, time.Second, 5*time.Millisecond)

	hub.Broadcast(NewMessage(TypeConnection, map[string]string{"market": "connected"}))

	_ = ws.SetReadDeadline(time.Now().Add(time.Second))
	var msg Message
	require.NoError(t, ws.ReadJSON(&msg))
	assert.Equal(t, TypeConnection, msg.Type)
	assert.Equal(t, map[string]interface{}{"market": "connected"}, msg.Data)

	ws.Close()
	require.Eventually(t, func() bool { return hub.ClientCount() == 0 }, time.Second, 5*time.Millisecond)
}

func TestServerSnapshotOnConnect(t *testing.T) {
	_, hub, url := newTestServer(t, Options{AllowedOrigins: []string{"*"}})
	hub.SetSnapshot(func() []Message {
		return []Message{NewMessage(TypeView, map[string]int{"legs": 0})}
	})

	ws, _, err := dialWS(url, "http://anything.test")
	require.NoError(t, err)
	defer ws.Close()

	_ = ws.SetReadDeadline(time.Now().Add(time.Second))
	var msg Message
	require.NoError(t, ws.ReadJSON(&msg))
	assert.Equal(t, TypeView, msg.Type)
}

func TestServerOriginCheck(t *testing.T) {
	tests := []struct {
		name    string
		opts    Options
		origin  string
		allowed bool
	}{
		{"allowed origin", Options{AllowedOrigins: []string{"http://localhost:4200"}}, "http://localhost:4200", true},
		{"origin with path", Options{AllowedOrigins: []string{"http://localhost:4200"}}, "http://localhost:4200/app", true},
		{"unknown origin", Options{AllowedOrigins: []string{"http://localhost:4200"}}, "http://evil.test", false},
		{"missing origin", Options{AllowedOrigins: []string{"*"}}, "", false},
		{"wildcard in development", Options{AllowedOrigins: []string{"*"}}, "http://evil.test", true},
		{"wildcard in production", Options{AllowedOrigins: []string{"*"}, Production: true}, "http://evil.test", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, _, url := newTestServer(t, tt.opts)
			ws, resp, err := dialWS(url, tt.origin)
			if tt.allowed {
				require.NoError(t, err)
				ws.Close()
				return
			}
			require.Error(t, err)
			require.NotNil(t, resp)
			assert.Equal(t, http.StatusForbidden, resp.StatusCode)
		})
	}
}

func TestServer_GlobalConnectionLimit(t *testing.T) {
	_, hub, url := newTestServer(t, Options{AllowedOrigins: []string{"*"}, MaxConnections: 2})

	conn1, _, err := dialWS(url, "http://localhost")
	require.NoError(t, err)
	defer conn1.Close()

	conn2, _, err := dialWS(url, "http://localhost")
	require.NoError(t, err)
	defer conn2.Close()

	require.Eventually(t, func() bool { return hub.ClientCount() == 2 }, time.Second, 5*time.Millisecond)

	conn3, resp, err := dialWS(url, "http://localhost")
	require.Error(t, err)
	if conn3 != nil {
		conn3.Close()
	}
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
}

func TestServer_IPRateLimit(t *testing.T) {
	_, _, url := newTestServer(t, Options{AllowedOrigins: []string{"*"}, RateLimit: 1, RateBurst: 1})

	conn1, _, err := dialWS(url, "http://localhost")
	require.NoError(t, err)
	defer conn1.Close()

	conn2, resp, err := dialWS(url, "http://localhost")
	require.Error(t, err)
	if conn2 != nil {
		conn2.Close()
	}
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusTooManyRequests, resp.StatusCode)
}

func TestServerHealth(t *testing.T) {
	server, _, url := newTestServer(t, Options{AllowedOrigins: []string{"*"}})

	resp, err := http.Get(url + "/health")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	server.SetHealthCheck(func() (bool, map[string]string) {
		return false, map[string]string{"payoff_stream": "Unhealthy: stream is reconnecting"}
	})

	resp, err = http.Get(url + "/health")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)

	var body struct {
		Status     string            `json:"status"`
		Components map[string]string `json:"components"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.Equal(t, "degraded", body.Status)
	assert.Contains(t, body.Components["payoff_stream"], "reconnecting")
}

func TestServerMetricsAndCORS(t *testing.T) {
	server, _, url := newTestServer(t, Options{AllowedOrigins: []string{"http://localhost:4200"}})
	server.Router().HandleFunc("/api/v1/ping", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}).Methods(http.MethodGet)

	resp, err := http.Get(url + "/metrics")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	req, _ := http.NewRequest(http.MethodGet, url+"/api/v1/ping", nil)
	req.Header.Set("Origin", "http://localhost:4200")
	resp, err = http.DefaultClient.Do(req)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)
	assert.Equal(t, "http://localhost:4200", resp.Header.Get("Access-Control-Allow-Origin"))
}

func TestServerMetricsDisabled(t *testing.T) {
	_, _, url := newTestServer(t, Options{AllowedOrigins: []string{"*"}, DisableMetrics: true})

	resp, err := http.Get(url + "/metrics")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestServerStartStop(t *testing.T) {
	hub := NewHub(nil)
	runHub(t, hub)
	server := NewServer(hub, nil, Options{})

	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() { errCh <- server.Start(ctx, "127.0.0.1:0") }()

	require.Eventually(t, func() bool { return server.Address() != "" }, time.Second, 5*time.Millisecond)

	cancel()
	select {
	case err := <-errCh:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("server did not stop")
	}
	assert.Equal(t, "", server.Address())
}
