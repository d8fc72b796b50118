package apperrors

import "errors"

// Stream errors
var (
	ErrNotConnected       = errors.New("stream not connected")
	ErrUnknownMessageType = errors.New("unknown message type")
	ErrMalformedMessage   = errors.New("malformed message")
)

// Domain errors
var (
	ErrInvalidSymbol       = errors.New("invalid contract symbol")
	ErrInvalidExpiry       = errors.New("invalid expiry date")
	ErrInvalidContractKind = errors.New("invalid contract kind")
	ErrInvalidAction       = errors.New("invalid position action")
	ErrLegNotFound         = errors.New("leg not found")
)

// Collaborator errors
var (
	ErrLookupFailed        = errors.New("contract lookup failed")
	ErrUnsupportedExchange = errors.New("unsupported exchange")
	ErrUnsupportedCoin     = errors.New("coin not listed for exchange")
)
