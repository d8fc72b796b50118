package protocol

import (
	"encoding/json"
	"fmt"

	"hedgedesk/internal/core"
	apperrors "hedgedesk/pkg/errors"

	"github.com/shopspring/decimal"
	"github.com/tidwall/gjson"
)

// Envelope is one decoded inbound message. Exactly one payload field is set,
// except for subscription acknowledgements which carry none.
type Envelope struct {
	Type         string
	Tick         *core.Tick
	Payoff       *core.PayoffCurve
	Confirmation *core.Confirmation
}

// Decode parses a raw frame. Frames with an unrecognized type return an error
// wrapping ErrUnknownMessageType; undecodable frames wrap ErrMalformedMessage.
func Decode(raw []byte) (Envelope, error) {
	if !gjson.ValidBytes(raw) {
		return Envelope{}, fmt.Errorf("%w: invalid json", apperrors.ErrMalformedMessage)
	}

	msgType := gjson.GetBytes(raw, "type").String()
	env := Envelope{Type: msgType}

	switch msgType {
	case TypeTickerV2, TypeTicker:
		tick, err := decodeTick(raw)
		if err != nil {
			return env, err
		}
		env.Tick = &tick
	case TypePayoffUpdate:
		var msg struct {
			Data *core.PayoffCurve `json:"data"`
		}
		if err := json.Unmarshal(raw, &msg); err != nil {
			return env, fmt.Errorf("%w: payoff_update: %v", apperrors.ErrMalformedMessage, err)
		}
		if msg.Data == nil {
			return env, fmt.Errorf("%w: payoff_update without data", apperrors.ErrMalformedMessage)
		}
		if err := msg.Data.Validate(); err != nil {
			return env, err
		}
		env.Payoff = msg.Data
	case TypeConfirmation:
		var conf core.Confirmation
		if err := json.Unmarshal(raw, &conf); err != nil {
			return env, fmt.Errorf("%w: confirmation: %v", apperrors.ErrMalformedMessage, err)
		}
		if conf.SelectedContracts == nil {
			conf.SelectedContracts = map[string]string{}
		}
		env.Confirmation = &conf
	case TypeSubscriptions:
	default:
		return env, fmt.Errorf("%w: %q", apperrors.ErrUnknownMessageType, msgType)
	}

	return env, nil
}

func decodeTick(raw []byte) (core.Tick, error) {
	fields := gjson.GetManyBytes(raw,
		"symbol", "contract_type", "strike_price", "mark_price",
		"best_bid", "best_ask", "quotes.best_bid", "quotes.best_ask", "timestamp")

	symbol := fields[0].String()
	if symbol == "" {
		return core.Tick{}, fmt.Errorf("%w: ticker without symbol", apperrors.ErrMalformedMessage)
	}

	kind, err := kindFromContractType(fields[1].String())
	if err != nil {
		return core.Tick{}, err
	}

	tick := core.Tick{
		Symbol:    symbol,
		Kind:      kind,
		Timestamp: fields[8].Int(),
	}

	if tick.Strike, err = nullDecimal(fields[2]); err != nil {
		return core.Tick{}, fmt.Errorf("%w: %s strike_price: %v", apperrors.ErrMalformedMessage, symbol, err)
	}
	if kind.IsOption() && !tick.Strike.Valid {
		return core.Tick{}, fmt.Errorf("%w: %s option without strike_price", apperrors.ErrMalformedMessage, symbol)
	}
	if tick.MarkPrice, err = nullDecimal(fields[3]); err != nil {
		return core.Tick{}, fmt.Errorf("%w: %s mark_price: %v", apperrors.ErrMalformedMessage, symbol, err)
	}

	bid, ask := fields[4], fields[5]
	if !bid.Exists() && !ask.Exists() {
		bid, ask = fields[6], fields[7]
	}
	if tick.BestBid, err = nullDecimal(bid); err != nil {
		return core.Tick{}, fmt.Errorf("%w: %s best_bid: %v", apperrors.ErrMalformedMessage, symbol, err)
	}
	if tick.BestAsk, err = nullDecimal(ask); err != nil {
		return core.Tick{}, fmt.Errorf("%w: %s best_ask: %v", apperrors.ErrMalformedMessage, symbol, err)
	}

	return tick, nil
}

func kindFromContractType(ct string) (core.ContractKind, error) {
	switch ct {
	case "call_options":
		return core.KindCall, nil
	case "put_options":
		return core.KindPut, nil
	case "perpetual_futures":
		return core.KindPerpetual, nil
	default:
		return "", fmt.Errorf("%w: contract_type %q", apperrors.ErrMalformedMessage, ct)
	}
}

// nullDecimal accepts both string and number encodings; missing, null and
// empty values are reported as absent.
func nullDecimal(r gjson.Result) (decimal.NullDecimal, error) {
	if !r.Exists() || r.Type == gjson.Null {
		return decimal.NullDecimal{}, nil
	}
	s := r.String()
	if s == "" {
		return decimal.NullDecimal{}, nil
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.NullDecimal{}, err
	}
	return decimal.NewNullDecimal(d), nil
}
