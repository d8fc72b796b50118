package websocket

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"hedgedesk/internal/core"
	"hedgedesk/pkg/logging"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConnection_EchoAndHeartbeat(t *testing.T) {
	var pings int32
	upgrader := websocket.Upgrader{}
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()

		conn.SetPingHandler(func(string) error {
			atomic.AddInt32(&pings, 1)
			return conn.WriteControl(websocket.PongMessage, []byte{}, time.Now().Add(time.Second))
		})

		for {
			mt, msg, err := conn.ReadMessage()
			if err != nil {
				return
			}
			if err := conn.WriteMessage(mt, msg); err != nil {
				return
			}
		}
	}))
	defer server.Close()

	url := "ws" + strings.TrimPrefix(server.URL, "http")
	received := make(chan string, 1)

	c := NewConnection(Config{
		Name:         "payoff",
		URL:          url,
		PingInterval: 50 * time.Millisecond,
		PingWait:     50 * time.Millisecond,
		PongWait:     time.Second,
	}, func(message []byte) {
		received <- string(message)
	}, logging.NewNopLogger())
	defer c.Disconnect()

	c.Connect()
	require.Eventually(t, func() bool { return c.State() == core.StateConnected },
		2*time.Second, 10*time.Millisecond)

	require.NoError(t, c.Send(map[string]string{"type": "request_update"}))

	select {
	case msg := <-received:
		assert.JSONEq(t, `{"type":"request_update"}`, msg)
	case <-time.After(2 * time.Second):
		t.Fatal("echo not received")
	}

	require.Eventually(t, func() bool { return atomic.LoadInt32(&pings) >= 2 },
		2*time.Second, 10*time.Millisecond)
}

func TestConnection_ServerCloseTriggersReconnect(t *testing.T) {
	var connections int32
	upgrader := websocket.Upgrader{}
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		n := atomic.AddInt32(&connections, 1)
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		if n == 1 {
			return
		}
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}))
	defer server.Close()

	url := "ws" + strings.TrimPrefix(server.URL, "http")
	c := NewConnection(Config{Name: "market", URL: url, ReconnectDelay: 20 * time.Millisecond},
		nil, logging.NewNopLogger())
	defer c.Disconnect()

	c.Connect()
	require.Eventually(t, func() bool {
		return atomic.LoadInt32(&connections) >= 2 && c.State() == core.StateConnected
	}, 2*time.Second, 10*time.Millisecond)
}
