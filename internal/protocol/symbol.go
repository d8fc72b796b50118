package protocol

import (
	"fmt"
	"strings"
	"time"

	"hedgedesk/internal/core"
	apperrors "hedgedesk/pkg/errors"

	"github.com/shopspring/decimal"
)

const (
	isoDateLayout = "2006-01-02"
	expiryLayout  = "020106"
)

// ExpiryCode converts an ISO YYYY-MM-DD date to the DDMMYY form used in symbols.
func ExpiryCode(expiry string) (string, error) {
	t, err := time.Parse(isoDateLayout, strings.TrimSpace(expiry))
	if err != nil {
		return "", fmt.Errorf("%w: %q", apperrors.ErrInvalidExpiry, expiry)
	}
	return t.Format(expiryLayout), nil
}

// FormatSymbol builds the canonical protocol symbol {C|P}-{underlying}-{strike}-{ddmmyy}.
func FormatSymbol(kind core.ContractKind, strike decimal.Decimal, underlying, expiry string) (string, error) {
	var prefix string
	switch kind {
	case core.KindCall:
		prefix = "C"
	case core.KindPut:
		prefix = "P"
	default:
		return "", fmt.Errorf("%w: %q has no option symbol", apperrors.ErrInvalidContractKind, kind)
	}
	if underlying == "" {
		return "", fmt.Errorf("%w: empty underlying", apperrors.ErrInvalidSymbol)
	}
	code, err := ExpiryCode(expiry)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%s-%s-%s-%s", prefix, underlying, strike.String(), code), nil
}

// Symbol is a parsed {X}-{COIN}-{STRIKE}-{DDMMYY} contract symbol
type Symbol struct {
	Prefix     string
	Underlying string
	Strike     decimal.Decimal
	ExpiryCode string
}

// Kind maps the prefix to a contract kind
func (s Symbol) Kind() (core.ContractKind, error) {
	switch s.Prefix {
	case "C":
		return core.KindCall, nil
	case "P":
		return core.KindPut, nil
	default:
		return "", fmt.Errorf("%w: prefix %q", apperrors.ErrInvalidContractKind, s.Prefix)
	}
}

// ParseSymbol splits a four-part option symbol.
func ParseSymbol(symbol string) (Symbol, error) {
	parts := strings.Split(symbol, "-")
	if len(parts) != 4 {
		return Symbol{}, fmt.Errorf("%w: %q", apperrors.ErrInvalidSymbol, symbol)
	}
	strike, err := decimal.NewFromString(parts[2])
	if err != nil {
		return Symbol{}, fmt.Errorf("%w: %q strike: %v", apperrors.ErrInvalidSymbol, symbol, err)
	}
	if _, err := time.Parse(expiryLayout, parts[3]); err != nil {
		return Symbol{}, fmt.Errorf("%w: %q expiry: %v", apperrors.ErrInvalidSymbol, symbol, err)
	}
	return Symbol{
		Prefix:     parts[0],
		Underlying: parts[1],
		Strike:     strike,
		ExpiryCode: parts[3],
	}, nil
}
