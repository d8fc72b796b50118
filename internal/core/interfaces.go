// Package core defines the shared types and interfaces of the dashboard core
package core

import (
	"context"
)

// ISender transmits one structured protocol message
type ISender interface {
	Send(message interface{}) error
}

// IStream is a push-channel endpoint with an explicit lifecycle
type IStream interface {
	ISender
	Connect()
	Disconnect()
	State() ConnectionState
	OnStateChange(fn func(ConnectionState)) (cancel func())
}

// IContractLookup resolves the live contract symbols for a coin and an ISO expiry date
type IContractLookup interface {
	LookupContracts(ctx context.Context, coin, expiry string) ([]string, error)
}

// IChainReader exposes read access to the aggregated options chain
type IChainReader interface {
	Snapshot() []StrikeRow
	Underlying() *Tick
}

// IHealthMonitor defines the interface for health monitoring
type IHealthMonitor interface {
	Register(component string, check func() error)
	GetStatus() map[string]string
	IsHealthy() bool
}

// ILogger defines the interface for logging
type ILogger interface {
	Debug(msg string, fields ...interface{})
	Info(msg string, fields ...interface{})
	Warn(msg string, fields ...interface{})
	Error(msg string, fields ...interface{})
	Fatal(msg string, fields ...interface{})
	WithField(key string, value interface{}) ILogger
	WithFields(fields map[string]interface{}) ILogger
}
