package session

import (
	"encoding/json"

	"hedgedesk/internal/core"
	"hedgedesk/internal/settings"
)

// Update topics
const (
	TopicChain        = "chain"
	TopicUnderlying   = "underlying"
	TopicLegs         = "legs"
	TopicPayoff       = "payoff"
	TopicConfirmation = "confirmation"
	TopicConnection   = "connection"
	TopicSubscription = "subscription"
	TopicSettings     = "settings"
	TopicSimulation   = "simulation"
)

// Update is one incremental change to the view
type Update struct {
	Topic string
	Data  interface{}
}

// View is everything the dashboard renders
type View struct {
	Settings     settings.Values                 `json:"settings"`
	Catalogue    settings.Catalogue              `json:"catalogue"`
	Subscription []string                        `json:"subscription"`
	Chain        []core.StrikeRow                `json:"chain"`
	Underlying   *core.Tick                      `json:"underlying"`
	Legs         []core.LiveLeg                  `json:"legs"`
	Payoff       core.PayoffCurve                `json:"payoff"`
	Confirmation *core.Confirmation              `json:"confirmation,omitempty"`
	Connections  map[string]core.ConnectionState `json:"connections"`
	Simulation   json.RawMessage                 `json:"simulation,omitempty"`
}
