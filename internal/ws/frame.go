package ws

import (
	"encoding/json"
	"strconv"
	"strings"

	"github.com/rs/zerolog/log"
)

// 帧协议命令。客户端发送前五种，服务端回复后四种。
const (
	CmdConnect     = "CONNECT"
	CmdSubscribe   = "SUBSCRIBE"
	CmdUnsubscribe = "UNSUBSCRIBE"
	CmdSend        = "SEND"
	CmdDisconnect  = "DISCONNECT"

	CmdConnected = "CONNECTED"
	CmdMessage   = "MESSAGE"
	CmdReceipt   = "RECEIPT"
	CmdError     = "ERROR"
)

// Frame 是一条 JSON 文本帧。
type Frame struct {
	Command     string            `json:"command"`
	Destination string            `json:"destination,omitempty"`
	ID          string            `json:"id,omitempty"`
	Headers     map[string]string `json:"headers,omitempty"`
	Body        json.RawMessage   `json:"body,omitempty"`
}

func (f Frame) header(name string) string {
	if f.Headers == nil {
		return ""
	}
	if v, ok := f.Headers[name]; ok {
		return v
	}
	for k, v := range f.Headers {
		if strings.EqualFold(k, name) {
			return v
		}
	}
	return ""
}

func encode(f Frame) []byte {
	b, err := json.Marshal(f)
	if err != nil {
		log.Warn().Err(err).Str("command", f.Command).Msg("ws encode frame")
		return nil
	}
	return b
}

func errorFrame(message string) []byte {
	body, _ := json.Marshal(map[string]string{"message": message})
	return encode(Frame{Command: CmdError, Body: body})
}

// 出站目的地。命名只由事件中的 id 决定。
const (
	conversationPrefix = "/topic/conversation/"
	presencePrefix     = "/topic/presence/"
	typingSuffix       = "/typing"

	// 客户端订阅的私有队列别名，服务端按会话身份解析为 /user/{id}/queue/...
	userQueuePrefix = "/user/queue/"
)

func ConversationTopic(conversationID uint) string {
	return conversationPrefix + strconv.FormatUint(uint64(conversationID), 10)
}

func TypingTopic(conversationID uint) string {
	return ConversationTopic(conversationID) + typingSuffix
}

func PresenceTopic(userID uint) string {
	return presencePrefix + strconv.FormatUint(uint64(userID), 10)
}

// UserQueue 返回用户私有队列的内部名称。
func UserQueue(userID uint, queue string) string {
	return "/user/" + strconv.FormatUint(uint64(userID), 10) + "/queue/" + queue
}

const NotificationQueue = "notifications"

// 入站应用目的地。
const (
	appChatPrefix        = "/app/chat/"
	appMessageSuffix     = "/message"
	appTypingSuffix      = "/typing"
	AppPresenceOnline    = "/app/presence/online"
	AppPresenceOffline   = "/app/presence/offline"
	AppNotificationSend  = "/app/notification/send"
	maxDestinationLength = 256
)

func AppChatMessage(conversationID uint) string {
	return appChatPrefix + strconv.FormatUint(uint64(conversationID), 10) + appMessageSuffix
}

func AppChatTyping(conversationID uint) string {
	return appChatPrefix + strconv.FormatUint(uint64(conversationID), 10) + appTypingSuffix
}

// parseID 解析 prefix{id}suffix 形式的目的地。
func parseID(dest, prefix, suffix string) (uint, bool) {
	rest, ok := strings.CutPrefix(dest, prefix)
	if !ok {
		return 0, false
	}
	rest, ok = strings.CutSuffix(rest, suffix)
	if !ok || rest == "" || strings.Contains(rest, "/") {
		return 0, false
	}
	id, err := strconv.ParseUint(rest, 10, 64)
	if err != nil || id == 0 {
		return 0, false
	}
	return uint(id), true
}
