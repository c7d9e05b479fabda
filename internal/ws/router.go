package ws

import (
	"context"
	"encoding/json"
	"strings"

	"socialchat/internal/auth"
	"socialchat/internal/service"

	"github.com/rs/zerolog/log"
)

type ChatService interface {
	SendMessage(ctx context.Context, senderID, conversationID uint, text string) (service.MessageDTO, error)
	Typing(ctx context.Context, identityID uint, username string, conversationID uint, isTyping bool) error
	Authorize(ctx context.Context, conversationID, userID uint) error
}

type PresenceSetter interface {
	SetOnline(ctx context.Context, userID uint, online bool) (service.PresenceDTO, error)
}

type NotificationPusher interface {
	PushToSelf(requester uint, n service.NotificationDTO) error
}

// Router 把会话内的 SUBSCRIBE / SEND 帧映射到业务服务。
type Router struct {
	chat     ChatService
	presence PresenceSetter
	notify   NotificationPusher
}

func NewRouter(chat ChatService, presence PresenceSetter, notify NotificationPusher) *Router {
	return &Router{chat: chat, presence: presence, notify: notify}
}

// Resolve 校验订阅权限并返回 hub 内部使用的目的地名称。
func (r *Router) Resolve(ctx context.Context, id auth.Identity, dest string) (string, error) {
	if dest == "" || len(dest) > maxDestinationLength {
		return "", errUnknownDestination
	}
	if queue, ok := strings.CutPrefix(dest, userQueuePrefix); ok {
		if queue != NotificationQueue {
			return "", errUnknownDestination
		}
		return UserQueue(id.UserID, queue), nil
	}
	if cid, ok := parseID(dest, conversationPrefix, ""); ok {
		if err := r.chat.Authorize(ctx, cid, id.UserID); err != nil {
			return "", err
		}
		return ConversationTopic(cid), nil
	}
	if cid, ok := parseID(dest, conversationPrefix, typingSuffix); ok {
		if err := r.chat.Authorize(ctx, cid, id.UserID); err != nil {
			return "", err
		}
		return TypingTopic(cid), nil
	}
	if uid, ok := parseID(dest, presencePrefix, ""); ok {
		return PresenceTopic(uid), nil
	}
	return "", errUnknownDestination
}

// Handle 执行一条 SEND 帧。
func (r *Router) Handle(ctx context.Context, id auth.Identity, dest string, body json.RawMessage) error {
	switch dest {
	case AppPresenceOnline:
		_, err := r.presence.SetOnline(ctx, id.UserID, true)
		return err
	case AppPresenceOffline:
		_, err := r.presence.SetOnline(ctx, id.UserID, false)
		return err
	case AppNotificationSend:
		var n service.NotificationDTO
		if err := decodeBody(body, &n); err != nil {
			return err
		}
		return r.notify.PushToSelf(id.UserID, n)
	}

	if cid, ok := parseID(dest, appChatPrefix, appMessageSuffix); ok {
		var in struct {
			Content string `json:"content"`
		}
		if err := decodeBody(body, &in); err != nil {
			return err
		}
		_, err := r.chat.SendMessage(ctx, id.UserID, cid, in.Content)
		return err
	}
	if cid, ok := parseID(dest, appChatPrefix, appTypingSuffix); ok {
		var in struct {
			IsTyping bool `json:"isTyping"`
		}
		if err := decodeBody(body, &in); err != nil {
			return err
		}
		return r.chat.Typing(ctx, id.UserID, id.Username, cid, in.IsTyping)
	}
	return errUnknownDestination
}

// Connected 在 CONNECT 成功后标记用户在线。
func (r *Router) Connected(ctx context.Context, id auth.Identity) {
	if _, err := r.presence.SetOnline(ctx, id.UserID, true); err != nil {
		log.Warn().Err(err).Uint("user_id", id.UserID).Msg("presence online on connect")
	}
}

// Disconnected 是默认的断开观察者，标记用户离线。
func (r *Router) Disconnected(ctx context.Context, id auth.Identity) {
	if _, err := r.presence.SetOnline(ctx, id.UserID, false); err != nil {
		log.Warn().Err(err).Uint("user_id", id.UserID).Msg("presence offline on disconnect")
	}
}

func decodeBody(body json.RawMessage, v any) error {
	if len(body) == 0 || string(body) == "null" {
		return nil
	}
	if err := json.Unmarshal(body, v); err != nil {
		return errMalformedBody
	}
	return nil
}
