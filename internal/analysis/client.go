// Package analysis calls the payoff server's scenario endpoints
package analysis

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"hedgedesk/internal/core"
	apphttp "hedgedesk/pkg/http"
	"hedgedesk/pkg/reactive"
)

// SimulationResult is the raw JSON document returned by /run_simulation.
// Its shape is owned by the server.
type SimulationResult = json.RawMessage

// Client wraps the analysis endpoints and keeps the latest simulation result
type Client struct {
	client *apphttp.Client
	logger core.ILogger
	result *reactive.Value[SimulationResult]
}

// NewClient creates a client for baseURL
func NewClient(baseURL string, opts apphttp.Options, logger core.ILogger) *Client {
	return &Client{
		client: apphttp.NewClient(strings.TrimRight(baseURL, "/"), opts),
		logger: logger.WithField("component", "analysis"),
		result: reactive.NewValue[SimulationResult](nil),
	}
}

// UpdateLotSize posts the lot size used by scenario analysis
func (c *Client) UpdateLotSize(ctx context.Context, lotSize float64) error {
	if lotSize <= 0 {
		return fmt.Errorf("lot size %v must be positive", lotSize)
	}
	if err := c.client.PostJSON(ctx, "/update_lotsize", map[string]float64{"lot_size": lotSize}, nil); err != nil {
		return fmt.Errorf("update lot size: %w", err)
	}
	c.logger.Info("Lot size updated", "lot_size", lotSize)
	return nil
}

// ClearScenario drops the server-side scenario
func (c *Client) ClearScenario(ctx context.Context) error {
	if err := c.client.PostJSON(ctx, "/clear_scenario", struct{}{}, nil); err != nil {
		return fmt.Errorf("clear scenario: %w", err)
	}
	c.result.Set(nil)
	return nil
}

// RunSimulation runs the server's simulation and stores the result
func (c *Client) RunSimulation(ctx context.Context) (SimulationResult, error) {
	var result json.RawMessage
	if err := c.client.PostJSON(ctx, "/run_simulation", struct{}{}, &result); err != nil {
		return nil, fmt.Errorf("run simulation: %w", err)
	}
	c.result.Set(result)
	c.logger.Info("Simulation completed", "bytes", len(result))
	return result, nil
}

// LatestResult returns the last simulation result, or nil
func (c *Client) LatestResult() SimulationResult {
	return c.result.Get()
}

// Subscribe registers fn for every new result
func (c *Client) Subscribe(fn func(SimulationResult)) (cancel func()) {
	return c.result.Subscribe(fn)
}
