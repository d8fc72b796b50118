package liveserver

// Message is one frame pushed to dashboard clients
type Message struct {
	Type string      `json:"type"`
	Data interface{} `json:"data"`
}

// Message types pushed to dashboard clients
const (
	TypeView         = "view"
	TypeChain        = "chain"
	TypeUnderlying   = "underlying"
	TypeLegs         = "legs"
	TypePayoff       = "payoff"
	TypeConfirmation = "confirmation"
	TypeConnection   = "connection"
	TypeSubscription = "subscription"
	TypeSimulation   = "simulation"
	TypeSettings     = "settings"
)

// NewMessage creates a Message
func NewMessage(msgType string, data interface{}) Message {
	return Message{Type: msgType, Data: data}
}
