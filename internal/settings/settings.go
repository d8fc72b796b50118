// Package settings holds the user's exchange, coin and expiry selection and
// the catalogue of coins each exchange offers.
package settings

import (
	"fmt"
	"sort"

	"hedgedesk/internal/protocol"
	apperrors "hedgedesk/pkg/errors"
	"hedgedesk/pkg/reactive"
)

// Catalogue maps exchange names to their tradable coins
type Catalogue map[string][]string

// DefaultCatalogue lists the exchanges the dashboard knows about
func DefaultCatalogue() Catalogue {
	return Catalogue{
		"Binance":        {"SOLUSDT", "BTCUSDT", "ETHUSDT", "BNBUSDT", "XRPUSDT", "DOGEUSDT"},
		"Delta Exchange": {"BTCUSD", "ETHUSD"},
	}
}

// Exchanges returns the exchange names, sorted
func (c Catalogue) Exchanges() []string {
	names := make([]string, 0, len(c))
	for name := range c {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Coins returns the coins listed for exchange
func (c Catalogue) Coins(exchange string) ([]string, error) {
	coins, ok := c[exchange]
	if !ok {
		return nil, fmt.Errorf("%w: %q", apperrors.ErrUnsupportedExchange, exchange)
	}
	return append([]string(nil), coins...), nil
}

// Validate checks that coin is listed for exchange. An empty coin is allowed.
func (c Catalogue) Validate(exchange, coin string) error {
	coins, err := c.Coins(exchange)
	if err != nil {
		return err
	}
	if coin == "" {
		return nil
	}
	for _, listed := range coins {
		if listed == coin {
			return nil
		}
	}
	return fmt.Errorf("%w: %s on %s", apperrors.ErrUnsupportedCoin, coin, exchange)
}

// Values is one (exchange, coin, expiry) selection. Empty coin or expiry
// means "not selected".
type Values struct {
	Exchange string `json:"exchange"`
	Coin     string `json:"coin"`
	Expiry   string `json:"expiry"`
}

// Complete reports whether both coin and expiry are set
func (v Values) Complete() bool {
	return v.Coin != "" && v.Expiry != ""
}

// Settings owns the reactive selection. The three fields are published
// together so observers never see a half-applied change.
type Settings struct {
	catalogue Catalogue
	values    *reactive.Value[Values]
}

// New creates settings holding initial. initial is not validated so a
// partially configured start is possible.
func New(catalogue Catalogue, initial Values) *Settings {
	if catalogue == nil {
		catalogue = DefaultCatalogue()
	}
	return &Settings{
		catalogue: catalogue,
		values:    reactive.NewValue(initial),
	}
}

// Catalogue returns the exchange catalogue
func (s *Settings) Catalogue() Catalogue {
	return s.catalogue
}

// Current returns the current selection
func (s *Settings) Current() Values {
	return s.values.Get()
}

// Apply validates v and publishes it once if any field changed
func (s *Settings) Apply(v Values) error {
	if err := s.catalogue.Validate(v.Exchange, v.Coin); err != nil {
		return err
	}
	if v.Expiry != "" {
		if _, err := protocol.ExpiryCode(v.Expiry); err != nil {
			return err
		}
	}

	if s.Current() == v {
		return nil
	}
	s.values.Set(v)
	return nil
}

// Subscribe registers fn for every applied change
func (s *Settings) Subscribe(fn func(Values)) (cancel func()) {
	return s.values.Subscribe(fn)
}
