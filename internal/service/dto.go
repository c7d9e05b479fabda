package service

import (
	"time"

	"socialchat/internal/models"
)

// MessageDTO 是聊天消息的推送与查询载荷。
type MessageDTO struct {
	ID             uint       `json:"id"`
	ConversationID uint       `json:"conversationId"`
	SenderID       uint       `json:"senderId"`
	SenderUsername string     `json:"senderUsername"`
	SenderPhotoURL string     `json:"senderPhotoUrl"`
	Content        string     `json:"content"`
	CreatedAt      time.Time  `json:"createdAt"`
	Type           string     `json:"type"`
	Read           bool       `json:"read"`
	ReadAt         *time.Time `json:"readAt,omitempty"`
}

const MessageTypeChat = "MESSAGE"

// ConversationSummary 是会话列表中的一项，站在请求者视角描述对方。
type ConversationSummary struct {
	ID                     uint       `json:"id"`
	ParticipantID          uint       `json:"participantId"`
	ParticipantUsername    string     `json:"participantUsername"`
	ParticipantDisplayName string     `json:"participantDisplayName"`
	ParticipantPhotoURL    string     `json:"participantPhotoUrl"`
	LastMessage            string     `json:"lastMessage"`
	LastMessageTime        *time.Time `json:"lastMessageTime"`
	Unread                 bool       `json:"unread"`
	CreatedAt              time.Time  `json:"createdAt"`
	UpdatedAt              time.Time  `json:"updatedAt"`
}

type TypingDTO struct {
	ConversationID uint   `json:"conversationId"`
	UserID         uint   `json:"userId"`
	Username       string `json:"username"`
	IsTyping       bool   `json:"isTyping"`
}

type PresenceDTO struct {
	UserID          uint      `json:"userId"`
	Username        string    `json:"username"`
	DisplayName     string    `json:"displayName"`
	ProfilePhotoURL string    `json:"profilePhotoUrl"`
	Online          bool      `json:"online"`
	LastSeen        time.Time `json:"lastSeen"`
}

type NotificationDTO struct {
	ID                    uint                    `json:"id"`
	UserID                uint                    `json:"userId"`
	SenderID              *uint                   `json:"senderId,omitempty"`
	SenderUsername        string                  `json:"senderUsername,omitempty"`
	SenderDisplayName     string                  `json:"senderDisplayName,omitempty"`
	SenderProfilePhotoURL string                  `json:"senderProfilePhotoUrl,omitempty"`
	Type                  models.NotificationType `json:"type"`
	Title                 string                  `json:"title"`
	Message               string                  `json:"message"`
	RelatedPostID         *uint                   `json:"relatedPostId,omitempty"`
	RelatedRequestID      *uint                   `json:"relatedRequestId,omitempty"`
	IsRead                bool                    `json:"isRead"`
	CreatedAt             time.Time               `json:"createdAt"`
	ReadAt                *time.Time              `json:"readAt,omitempty"`
}

func messageDTO(m models.Message, sender models.User) MessageDTO {
	return MessageDTO{
		ID:             m.ID,
		ConversationID: m.ConversationID,
		SenderID:       m.SenderID,
		SenderUsername: sender.Username,
		SenderPhotoURL: sender.ProfilePhotoURL,
		Content:        m.Text,
		CreatedAt:      m.CreatedAt,
		Type:           MessageTypeChat,
		Read:           m.ReadAt != nil,
		ReadAt:         m.ReadAt,
	}
}

func presenceDTO(u models.User, online bool, lastSeen time.Time) PresenceDTO {
	return PresenceDTO{
		UserID:          u.ID,
		Username:        u.Username,
		DisplayName:     u.DisplayName,
		ProfilePhotoURL: u.ProfilePhotoURL,
		Online:          online,
		LastSeen:        lastSeen,
	}
}

// notificationDTO 的 sender 可能为 nil（系统通知或发送者已不存在）。
func notificationDTO(n models.Notification, sender *models.User) NotificationDTO {
	out := NotificationDTO{
		ID:               n.ID,
		UserID:           n.UserID,
		SenderID:         n.SenderID,
		Type:             n.Type,
		Title:            n.Title,
		Message:          n.Message,
		RelatedPostID:    n.RelatedPostID,
		RelatedRequestID: n.RelatedRequestID,
		IsRead:           n.IsRead,
		CreatedAt:        n.CreatedAt,
		ReadAt:           n.ReadAt,
	}
	if sender != nil {
		out.SenderUsername = sender.Username
		out.SenderDisplayName = sender.DisplayName
		out.SenderProfilePhotoURL = sender.ProfilePhotoURL
	}
	return out
}
