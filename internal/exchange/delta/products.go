// Package delta lists live option contracts from the Delta Exchange REST API
package delta

import (
	"context"
	"fmt"
	"net/url"
	"strings"

	"hedgedesk/internal/core"
	"hedgedesk/internal/protocol"
	apperrors "hedgedesk/pkg/errors"
	apphttp "hedgedesk/pkg/http"
)

const (
	ExchangeName   = "Delta Exchange"
	DefaultBaseURL = "https://api.india.delta.exchange"
	productsPath   = "/v2/products"
)

// Product is the subset of a product record the dashboard uses
type Product struct {
	Symbol       string `json:"symbol"`
	ContractType string `json:"contract_type"`
	StrikePrice  string `json:"strike_price"`
}

type productsResponse struct {
	Success bool      `json:"success"`
	Result  []Product `json:"result"`
}

// ProductsClient implements core.IContractLookup against /v2/products
type ProductsClient struct {
	client *apphttp.Client
	logger core.ILogger
}

// NewProductsClient creates a client for baseURL
func NewProductsClient(baseURL string, opts apphttp.Options, logger core.ILogger) *ProductsClient {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	return &ProductsClient{
		client: apphttp.NewClient(strings.TrimRight(baseURL, "/"), opts),
		logger: logger.WithField("exchange", ExchangeName),
	}
}

// LiveOptions returns every live call and put product
func (c *ProductsClient) LiveOptions(ctx context.Context) ([]Product, error) {
	params := url.Values{}
	params.Set("contract_types", "call_options,put_options")
	params.Set("states", "live")

	var resp productsResponse
	if err := c.client.GetJSON(ctx, productsPath, params, &resp); err != nil {
		return nil, fmt.Errorf("%w: %v", apperrors.ErrLookupFailed, err)
	}
	if !resp.Success {
		return nil, fmt.Errorf("%w: exchange returned an unsuccessful response", apperrors.ErrLookupFailed)
	}
	return resp.Result, nil
}

// LookupContracts returns the live option symbols for coin expiring on the
// ISO date expiry, in the order the exchange lists them.
func (c *ProductsClient) LookupContracts(ctx context.Context, coin, expiry string) ([]string, error) {
	code, err := protocol.ExpiryCode(expiry)
	if err != nil {
		return nil, err
	}

	products, err := c.LiveOptions(ctx)
	if err != nil {
		return nil, err
	}

	symbols := FilterSymbols(products, coin, code)
	c.logger.Debug("Contracts resolved", "coin", coin, "expiry", expiry,
		"listed", len(products), "matched", len(symbols))
	return symbols, nil
}

// FilterSymbols keeps four-part symbols whose underlying is the first three
// letters of coin and whose expiry part equals expiryCode
func FilterSymbols(products []Product, coin, expiryCode string) []string {
	underlying := coin
	if len(underlying) > 3 {
		underlying = underlying[:3]
	}

	out := make([]string, 0)
	for _, p := range products {
		parts := strings.Split(p.Symbol, "-")
		if len(parts) != 4 {
			continue
		}
		if parts[1] != underlying || parts[3] != expiryCode {
			continue
		}
		out = append(out, p.Symbol)
	}
	return out
}
