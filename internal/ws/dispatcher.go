package ws

import (
	"encoding/json"

	"socialchat/internal/metrics"
	"socialchat/internal/service"

	"github.com/rs/zerolog/log"
)

// Dispatcher 把领域事件编码后交给 hub，目的地只由事件内容决定。
type Dispatcher struct {
	hub *Hub
}

var _ service.Dispatcher = (*Dispatcher)(nil)

func NewDispatcher(hub *Hub) *Dispatcher { return &Dispatcher{hub: hub} }

func (d *Dispatcher) PublishMessage(m service.MessageDTO) {
	d.publish("message", ConversationTopic(m.ConversationID), m)
}

func (d *Dispatcher) PublishTyping(e service.TypingDTO) {
	d.publish("typing", TypingTopic(e.ConversationID), e)
}

func (d *Dispatcher) PublishPresence(p service.PresenceDTO) {
	d.publish("presence", PresenceTopic(p.UserID), p)
}

func (d *Dispatcher) PublishNotification(n service.NotificationDTO) {
	d.publish("notification", UserQueue(n.UserID, NotificationQueue), n)
}

func (d *Dispatcher) publish(kind, dest string, v any) {
	payload, err := json.Marshal(v)
	if err != nil {
		log.Warn().Err(err).Str("kind", kind).Str("destination", dest).Msg("push marshal failed")
		return
	}
	if !d.hub.Publish(dest, payload) {
		log.Warn().Str("kind", kind).Str("destination", dest).Msg("push dropped: hub backlog full or stopped")
		return
	}
	metrics.PushesTotal.WithLabelValues(kind).Inc()
}
