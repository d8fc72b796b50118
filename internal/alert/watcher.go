package alert

import (
	"context"
	"fmt"
	"sync"
	"time"

	"hedgedesk/internal/core"

	"github.com/benbjohnson/clock"
)

// StreamWatcher raises an alert when a push channel stays away from Connected
// longer than a threshold, and a recovery notice once it is back.
// An explicit Disconnect is not an outage.
type StreamWatcher struct {
	manager   *AlertManager
	threshold time.Duration
	clock     clock.Clock
	logger    core.ILogger
}

func NewStreamWatcher(manager *AlertManager, threshold time.Duration, clk clock.Clock, logger core.ILogger) *StreamWatcher {
	if clk == nil {
		clk = clock.New()
	}
	return &StreamWatcher{
		manager:   manager,
		threshold: threshold,
		clock:     clk,
		logger:    logger.WithField("component", "stream_watcher"),
	}
}

type outage struct {
	mu      sync.Mutex
	name    string
	since   time.Time
	timer   *clock.Timer
	gen     uint64
	alerted bool
}

// Watch follows stream's state until the returned cancel is called
func (w *StreamWatcher) Watch(name string, stream core.IStream) (cancel func()) {
	o := &outage{name: name}
	unsubscribe := stream.OnStateChange(func(state core.ConnectionState) {
		w.observe(o, state)
	})
	return func() {
		unsubscribe()
		o.mu.Lock()
		o.stop()
		o.mu.Unlock()
	}
}

func (w *StreamWatcher) observe(o *outage, state core.ConnectionState) {
	o.mu.Lock()
	defer o.mu.Unlock()

	switch state {
	case core.StateConnected:
		downtime := w.clock.Since(o.since)
		alerted := o.alerted
		o.stop()
		if alerted {
			w.manager.Alert(context.Background(), "Stream recovered",
				fmt.Sprintf("%s stream reconnected after %s", o.name, downtime.Round(time.Second)),
				Info, map[string]string{"stream": o.name, "downtime": downtime.Round(time.Second).String()})
		}
	case core.StateConnecting, core.StateReconnecting:
		if o.timer != nil || o.alerted || w.threshold <= 0 {
			return
		}
		o.since = w.clock.Now()
		gen := o.gen
		o.timer = w.clock.AfterFunc(w.threshold, func() { w.fire(o, gen) })
	case core.StateDisconnected:
		o.stop()
	}
}

func (w *StreamWatcher) fire(o *outage, gen uint64) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if gen != o.gen || o.alerted {
		return
	}
	o.alerted = true
	o.timer = nil
	w.logger.Warn("Stream outage", "stream", o.name, "since", o.since)
	w.manager.Alert(context.Background(), "Stream down",
		fmt.Sprintf("%s stream has been disconnected for more than %s", o.name, w.threshold),
		Error, map[string]string{"stream": o.name, "since": o.since.UTC().Format(time.RFC3339)})
}

// stop must be called with mu held
func (o *outage) stop() {
	if o.timer != nil {
		o.timer.Stop()
		o.timer = nil
	}
	o.gen++
	o.alerted = false
}
