package alert

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"hedgedesk/pkg/logging"

	"github.com/benbjohnson/clock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type mockAlertChannel struct {
	name     string
	sent     []AlertPayload
	sendFunc func(ctx context.Context, alert AlertPayload) error
	mu       sync.Mutex
}

func (m *mockAlertChannel) Name() string {
	return m.name
}

func (m *mockAlertChannel) Send(ctx context.Context, alert AlertPayload) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sent = append(m.sent, alert)
	if m.sendFunc != nil {
		return m.sendFunc(ctx, alert)
	}
	return nil
}

func (m *mockAlertChannel) getSent() []AlertPayload {
	m.mu.Lock()
	defer m.mu.Unlock()
	res := make([]AlertPayload, len(m.sent))
	copy(res, m.sent)
	return res
}

func TestAlertManager_Alert(t *testing.T) {
	mock := clock.NewMock()
	am := NewAlertManager(logging.NewNopLogger(), mock)
	assert.False(t, am.Enabled())

	ch1 := &mockAlertChannel{name: "mock1"}
	ch2 := &mockAlertChannel{name: "mock2", sendFunc: func(context.Context, AlertPayload) error {
		return errors.New("boom")
	}}
	am.AddChannel(ch1)
	am.AddChannel(ch2)
	assert.True(t, am.Enabled())

	am.Alert(context.Background(), "Test Alert", "This is a test", Info, map[string]string{"key": "value"})
	am.Wait()

	require.Len(t, ch1.getSent(), 1)
	require.Len(t, ch2.getSent(), 1)

	payload := ch1.getSent()[0]
	assert.Equal(t, "Test Alert", payload.Title)
	assert.Equal(t, Info, payload.Level)
	assert.Equal(t, "value", payload.Fields["key"])
	assert.Equal(t, mock.Now(), payload.Timestamp)
}

func TestAlertManager_CancelledCallerStillDelivers(t *testing.T) {
	am := NewAlertManager(logging.NewNopLogger(), nil)
	ch := &mockAlertChannel{name: "mock", sendFunc: func(ctx context.Context, _ AlertPayload) error {
		return ctx.Err()
	}}
	am.AddChannel(ch)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	am.Alert(ctx, "t", "m", Warning, nil)
	am.Wait()

	assert.Len(t, ch.getSent(), 1)
}

func TestSlackChannel_Send(t *testing.T) {
	var body map[string]interface{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
	}))
	defer srv.Close()

	ch := NewSlackChannel(srv.URL)
	err := ch.Send(context.Background(), AlertPayload{
		Level: Error, Title: "Stream down", Message: "market", Timestamp: time.Unix(1700000000, 0),
		Fields: map[string]string{"stream": "market"},
	})
	require.NoError(t, err)

	attachments := body["attachments"].([]interface{})
	first := attachments[0].(map[string]interface{})
	assert.Equal(t, "#ff0000", first["color"])
	assert.Equal(t, "[ERROR] Stream down", first["pretext"])
	assert.Equal(t, "hedgedesk", first["footer"])
}

func TestSlackChannel_Errors(t *testing.T) {
	assert.NoError(t, NewSlackChannel("").Send(context.Background(), AlertPayload{}))

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
	}))
	defer srv.Close()

	err := NewSlackChannel(srv.URL).Send(context.Background(), AlertPayload{Level: Info})
	assert.ErrorIs(t, err, ErrDeliveryFailed)
}

func TestTelegramChannel_Send(t *testing.T) {
	var body map[string]interface{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/botTOKEN/sendMessage", r.URL.Path)
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
	}))
	defer srv.Close()

	ch := NewTelegramChannel("TOKEN", "42")
	ch.apiBase = srv.URL
	err := ch.Send(context.Background(), AlertPayload{
		Level: Warning, Title: "T", Message: "M",
		Fields: map[string]string{"b": "2", "a": "1"},
	})
	require.NoError(t, err)

	assert.Equal(t, "42", body["chat_id"])
	assert.Equal(t, "Markdown", body["parse_mode"])
	assert.Contains(t, body["text"], "*[WARNING] T*\n\nM\n\n- *a*: 1\n- *b*: 2")
}

func TestTelegramChannel_Unconfigured(t *testing.T) {
	assert.NoError(t, NewTelegramChannel("", "42").Send(context.Background(), AlertPayload{}))
	assert.NoError(t, NewTelegramChannel("TOKEN", "").Send(context.Background(), AlertPayload{}))
}
