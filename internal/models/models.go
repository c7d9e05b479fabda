package models

import "time"

// User 是实时核心通过用户目录读取的最小资料记录。
type User struct {
	ID              uint   `gorm:"primaryKey"`
	Username        string `gorm:"uniqueIndex;size:64;not null"`
	DisplayName     string `gorm:"size:128"`
	ProfilePhotoURL string `gorm:"size:512"`
	PasswordHash    string `gorm:"not null"`
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// Conversation 是两人会话，参与者按 User1ID < User2ID 归一化存储，
// 复合唯一索引保证同一对用户只有一行。
type Conversation struct {
	ID        uint      `gorm:"primaryKey"`
	User1ID   uint      `gorm:"not null;uniqueIndex:ux_conversation_pair,priority:1;index:idx_conv_user1"`
	User2ID   uint      `gorm:"not null;uniqueIndex:ux_conversation_pair,priority:2;index:idx_conv_user2"`
	CreatedAt time.Time `gorm:"not null"`
	UpdatedAt time.Time `gorm:"not null;index"`
}

// Counterpart 返回 userID 之外的另一位参与者。
func (c Conversation) Counterpart(userID uint) uint {
	if c.User1ID == userID {
		return c.User2ID
	}
	return c.User1ID
}

func (c Conversation) HasParticipant(userID uint) bool {
	return c.User1ID == userID || c.User2ID == userID
}

type Message struct {
	ID             uint      `gorm:"primaryKey"`
	ConversationID uint      `gorm:"not null;index:idx_msg_conv_created,priority:1"`
	SenderID       uint      `gorm:"not null;index"`
	Text           string    `gorm:"type:text;not null"`
	CreatedAt      time.Time `gorm:"not null;index:idx_msg_conv_created,priority:2"`
	ReadAt         *time.Time
}

type UserPresence struct {
	ID        uint      `gorm:"primaryKey"`
	UserID    uint      `gorm:"uniqueIndex;not null"`
	IsOnline  bool      `gorm:"not null;default:false"`
	LastSeen  time.Time `gorm:"not null"`
	UpdatedAt time.Time `gorm:"not null;index"`
}

func (UserPresence) TableName() string { return "user_presence" }

type TokenRevocation struct {
	ID        uint      `gorm:"primaryKey"`
	Token     string    `gorm:"type:text;uniqueIndex;not null"`
	UserID    uint      `gorm:"not null;index"`
	CreatedAt time.Time `gorm:"not null"`
	ExpiresAt time.Time `gorm:"not null;index"`
}

type NotificationType string

const (
	NotificationFriendRequest         NotificationType = "FRIEND_REQUEST"
	NotificationFriendRequestAccepted NotificationType = "FRIEND_REQUEST_ACCEPTED"
	NotificationPostLike              NotificationType = "POST_LIKE"
	NotificationPostComment           NotificationType = "POST_COMMENT"
	NotificationMessage               NotificationType = "MESSAGE"
	NotificationMention               NotificationType = "MENTION"
)

func (t NotificationType) Valid() bool {
	switch t {
	case NotificationFriendRequest, NotificationFriendRequestAccepted, NotificationPostLike,
		NotificationPostComment, NotificationMessage, NotificationMention:
		return true
	}
	return false
}

type Notification struct {
	ID               uint             `gorm:"primaryKey"`
	UserID           uint             `gorm:"not null;index:idx_notif_user_created,priority:1"`
	SenderID         *uint            `gorm:"index"`
	Type             NotificationType `gorm:"size:32;not null"`
	Title            string           `gorm:"size:255;not null"`
	Message          string           `gorm:"type:text;not null"`
	RelatedPostID    *uint
	RelatedRequestID *uint
	IsRead           bool      `gorm:"not null;default:false;index"`
	CreatedAt        time.Time `gorm:"not null;index:idx_notif_user_created,priority:2"`
	ReadAt           *time.Time
}
