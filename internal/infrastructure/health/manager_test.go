package health

import (
	"fmt"
	"testing"

	"hedgedesk/internal/core"
	"hedgedesk/pkg/concurrency"
	"hedgedesk/pkg/logging"

	"github.com/stretchr/testify/assert"
)

func TestHealthManager_Aggregation(t *testing.T) {
	hm := NewHealthManager(nil)

	assert.True(t, hm.IsHealthy(), "empty health manager should be healthy")

	hm.Register("comp1", func() error { return nil })
	assert.True(t, hm.IsHealthy())

	hm.Register("comp2", func() error { return fmt.Errorf("failed") })
	assert.False(t, hm.IsHealthy())

	status := hm.GetStatus()
	assert.Equal(t, "Healthy", status["comp1"])
	assert.Equal(t, "Unhealthy: failed", status["comp2"])
	assert.Equal(t, []string{"comp1", "comp2"}, hm.Components())
}

type stubStream struct {
	state core.ConnectionState
}

func (s *stubStream) Send(interface{}) error                          { return nil }
func (s *stubStream) Connect()                                        {}
func (s *stubStream) Disconnect()                                     {}
func (s *stubStream) State() core.ConnectionState                     { return s.state }
func (s *stubStream) OnStateChange(func(core.ConnectionState)) func() { return func() {} }

func TestHealthManager_RegisterStream(t *testing.T) {
	hm := NewHealthManager(logging.NewNopLogger())
	stream := &stubStream{state: core.StateReconnecting}
	hm.RegisterStream("market_stream", stream)

	assert.False(t, hm.IsHealthy())
	assert.Equal(t, "Unhealthy: stream is reconnecting", hm.GetStatus()["market_stream"])

	stream.state = core.StateConnected
	assert.True(t, hm.IsHealthy())
}

func TestHealthManager_LookupPoolCheck(t *testing.T) {
	hm := NewHealthManager(logging.NewNopLogger())
	pool := concurrency.NewWorkerPool(concurrency.PoolConfig{Name: "lookup"}, logging.NewNopLogger())
	hm.Register("lookup_pool", pool.Check)

	assert.True(t, hm.IsHealthy())
	assert.Equal(t, "Healthy", hm.GetStatus()["lookup_pool"])

	pool.Stop()
	assert.False(t, hm.IsHealthy())
	assert.Equal(t, "Unhealthy: worker pool 'lookup' is stopped", hm.GetStatus()["lookup_pool"])
}
