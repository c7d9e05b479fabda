package service

//go:generate mockgen -destination=../mocks/mock_dispatcher.go -package=mocks socialchat/internal/service Dispatcher

// Dispatcher 把领域事件尽力推送给在线订阅者。实现不得阻塞调用方，也不返回错误。
type Dispatcher interface {
	PublishMessage(msg MessageDTO)
	PublishTyping(evt TypingDTO)
	PublishPresence(p PresenceDTO)
	PublishNotification(n NotificationDTO)
}
