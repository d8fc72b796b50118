package dashboard

import (
	"hedgedesk/internal/infrastructure/health"
	"hedgedesk/internal/session"
	"hedgedesk/pkg/liveserver"
)

// ViewSource is the read side of a session
type ViewSource interface {
	View() session.View
	OnUpdate(fn func(session.Update)) (cancel func())
}

var topicTypes = map[string]string{
	session.TopicChain:        liveserver.TypeChain,
	session.TopicUnderlying:   liveserver.TypeUnderlying,
	session.TopicLegs:         liveserver.TypeLegs,
	session.TopicPayoff:       liveserver.TypePayoff,
	session.TopicConfirmation: liveserver.TypeConfirmation,
	session.TopicConnection:   liveserver.TypeConnection,
	session.TopicSubscription: liveserver.TypeSubscription,
	session.TopicSettings:     liveserver.TypeSettings,
	session.TopicSimulation:   liveserver.TypeSimulation,
}

// Bridge forwards session updates to the hub and gives every new dashboard
// client the full view first
func Bridge(src ViewSource, hub *liveserver.Hub) (cancel func()) {
	hub.SetSnapshot(func() []liveserver.Message {
		return []liveserver.Message{liveserver.NewMessage(liveserver.TypeView, src.View())}
	})
	return src.OnUpdate(func(u session.Update) {
		msgType, ok := topicTypes[u.Topic]
		if !ok {
			return
		}
		hub.Broadcast(liveserver.NewMessage(msgType, u.Data))
	})
}

// HealthFunc adapts a health manager to the server's /health hook
func HealthFunc(hm *health.HealthManager) liveserver.HealthFunc {
	return func() (bool, map[string]string) {
		status := hm.GetStatus()
		healthy := true
		for _, s := range status {
			if s != "Healthy" {
				healthy = false
				break
			}
		}
		return healthy, status
	}
}
