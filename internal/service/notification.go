package service

import (
	"context"
	"errors"
	"fmt"

	"socialchat/internal/models"

	"github.com/rs/zerolog/log"
	"gorm.io/gorm"
)

// UnknownSender 是发送者资料不可用时通知文案中使用的名字。
const UnknownSender = "Unknown User"

// NotifyInput 描述一条待创建的通知。
type NotifyInput struct {
	Recipient        uint
	Sender           *uint
	Type             models.NotificationType
	Title            string
	Message          string
	RelatedPostID    *uint
	RelatedRequestID *uint
}

// NotificationService 把领域事件转换为持久化通知并推送给接收者。
type NotificationService struct {
	db       *gorm.DB
	users    UserDirectory
	dispatch Dispatcher
	opts     options
}

func NewNotificationService(db *gorm.DB, users UserDirectory, dispatch Dispatcher, opts ...Option) *NotificationService {
	return &NotificationService{db: db, users: users, dispatch: dispatch, opts: buildOptions(opts)}
}

// Notify 写入一条通知，然后推送到接收者的私有队列。
func (s *NotificationService) Notify(ctx context.Context, in NotifyInput) (NotificationDTO, error) {
	if !in.Type.Valid() {
		return NotificationDTO{}, ErrInvalidNotificationType
	}
	if _, err := s.users.FindUser(ctx, in.Recipient); err != nil {
		return NotificationDTO{}, err
	}
	n := models.Notification{
		UserID:           in.Recipient,
		SenderID:         in.Sender,
		Type:             in.Type,
		Title:            in.Title,
		Message:          in.Message,
		RelatedPostID:    in.RelatedPostID,
		RelatedRequestID: in.RelatedRequestID,
		CreatedAt:        s.opts.now(),
	}
	if err := s.db.WithContext(ctx).Create(&n).Error; err != nil {
		return NotificationDTO{}, fmt.Errorf("create notification: %w", err)
	}
	var sender *models.User
	if in.Sender != nil {
		if u, err := s.users.FindUser(ctx, *in.Sender); err == nil {
			sender = &u
		}
	}
	dto := notificationDTO(n, sender)
	s.dispatch.PublishNotification(dto)
	return dto, nil
}

// senderName 优先使用显示名，其次用户名，查不到时使用占位名。
func (s *NotificationService) senderName(ctx context.Context, senderID uint) string {
	u, err := s.users.FindUser(ctx, senderID)
	if err != nil {
		if !errors.Is(err, ErrNotFound) {
			log.Warn().Err(err).Uint("sender_id", senderID).Msg("notification sender lookup")
		}
		return UnknownSender
	}
	if u.DisplayName != "" {
		return u.DisplayName
	}
	if u.Username != "" {
		return u.Username
	}
	return UnknownSender
}

func (s *NotificationService) fromEvent(ctx context.Context, recipient, sender uint, typ models.NotificationType, title, format string, postID, requestID *uint) (NotificationDTO, error) {
	if recipient == sender {
		return NotificationDTO{}, ErrSelfNotification
	}
	return s.Notify(ctx, NotifyInput{
		Recipient:        recipient,
		Sender:           &sender,
		Type:             typ,
		Title:            title,
		Message:          fmt.Sprintf(format, s.senderName(ctx, sender)),
		RelatedPostID:    postID,
		RelatedRequestID: requestID,
	})
}

// FriendRequestReceived 通知 recipient 收到了 sender 的好友请求。
func (s *NotificationService) FriendRequestReceived(ctx context.Context, recipient, sender, requestID uint) (NotificationDTO, error) {
	return s.fromEvent(ctx, recipient, sender, models.NotificationFriendRequest,
		"Friend Request", "%s sent you a friend request", nil, &requestID)
}

// FriendRequestAccepted 通知请求发起者 recipient，accepter 已接受请求。
func (s *NotificationService) FriendRequestAccepted(ctx context.Context, recipient, accepter, requestID uint) (NotificationDTO, error) {
	return s.fromEvent(ctx, recipient, accepter, models.NotificationFriendRequestAccepted,
		"Friend Request Accepted", "%s accepted your friend request", nil, &requestID)
}

func (s *NotificationService) PostLiked(ctx context.Context, postOwner, liker, postID uint) (NotificationDTO, error) {
	return s.fromEvent(ctx, postOwner, liker, models.NotificationPostLike,
		"Post Liked", "%s liked your post", &postID, nil)
}

func (s *NotificationService) PostCommented(ctx context.Context, postOwner, commenter, postID uint) (NotificationDTO, error) {
	return s.fromEvent(ctx, postOwner, commenter, models.NotificationPostComment,
		"Post Comment", "%s commented on your post", &postID, nil)
}

// List 按创建时间倒序分页，unreadOnly 时只返回未读。
func (s *NotificationService) List(ctx context.Context, userID uint, req PageRequest, unreadOnly bool) (Page[NotificationDTO], error) {
	scope := func(tx *gorm.DB) *gorm.DB {
		tx = tx.Where("user_id = ?", userID)
		if unreadOnly {
			tx = tx.Where("is_read = ?", false)
		}
		return tx
	}
	q := s.db.WithContext(ctx)
	var total int64
	if err := q.Model(&models.Notification{}).Scopes(scope).Count(&total).Error; err != nil {
		return Page[NotificationDTO]{}, fmt.Errorf("count notifications: %w", err)
	}
	var rows []models.Notification
	if err := q.Scopes(scope).Order("created_at desc").Order("id desc").Offset(req.offset()).Limit(req.Size).Find(&rows).Error; err != nil {
		return Page[NotificationDTO]{}, fmt.Errorf("list notifications: %w", err)
	}

	senderIDs := make([]uint, 0, len(rows))
	for _, n := range rows {
		if n.SenderID != nil {
			senderIDs = append(senderIDs, *n.SenderID)
		}
	}
	senders, err := s.users.FindUsers(ctx, senderIDs)
	if err != nil {
		return Page[NotificationDTO]{}, err
	}
	out := make([]NotificationDTO, 0, len(rows))
	for _, n := range rows {
		var sender *models.User
		if n.SenderID != nil {
			if u, ok := senders[*n.SenderID]; ok {
				sender = &u
			}
		}
		out = append(out, notificationDTO(n, sender))
	}
	return newPage(out, req, total), nil
}

func (s *NotificationService) UnreadCount(ctx context.Context, userID uint) (int64, error) {
	var n int64
	err := s.db.WithContext(ctx).Model(&models.Notification{}).
		Where("user_id = ? AND is_read = ?", userID, false).Count(&n).Error
	if err != nil {
		return 0, fmt.Errorf("count unread notifications: %w", err)
	}
	return n, nil
}

func (s *NotificationService) owned(tx *gorm.DB, id, requester uint) (models.Notification, error) {
	var n models.Notification
	if err := tx.First(&n, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return models.Notification{}, ErrNotificationNotFound
		}
		return models.Notification{}, fmt.Errorf("load notification %d: %w", id, err)
	}
	if n.UserID != requester {
		return models.Notification{}, ErrNotOwner
	}
	return n, nil
}

// MarkRead 标记单条通知为已读；已读的通知不会被重新打时间戳。
func (s *NotificationService) MarkRead(ctx context.Context, id, requester uint) (NotificationDTO, error) {
	tx := s.db.WithContext(ctx)
	n, err := s.owned(tx, id, requester)
	if err != nil {
		return NotificationDTO{}, err
	}
	if !n.IsRead {
		now := s.opts.now()
		res := tx.Model(&models.Notification{}).
			Where("id = ? AND is_read = ?", n.ID, false).
			UpdateColumns(map[string]interface{}{"is_read": true, "read_at": now})
		if res.Error != nil {
			return NotificationDTO{}, fmt.Errorf("mark notification read: %w", res.Error)
		}
		if res.RowsAffected == 1 {
			n.IsRead = true
			n.ReadAt = &now
		} else if err := tx.First(&n, n.ID).Error; err != nil {
			return NotificationDTO{}, fmt.Errorf("reload notification %d: %w", n.ID, err)
		}
	}
	var sender *models.User
	if n.SenderID != nil {
		if u, err := s.users.FindUser(ctx, *n.SenderID); err == nil {
			sender = &u
		}
	}
	return notificationDTO(n, sender), nil
}

// MarkAllRead 用一条 UPDATE 把用户所有未读通知标记为已读，返回更新条数。
func (s *NotificationService) MarkAllRead(ctx context.Context, requester uint) (int64, error) {
	res := s.db.WithContext(ctx).Model(&models.Notification{}).
		Where("user_id = ? AND is_read = ?", requester, false).
		UpdateColumns(map[string]interface{}{"is_read": true, "read_at": s.opts.now()})
	if res.Error != nil {
		return 0, fmt.Errorf("mark all notifications read: %w", res.Error)
	}
	return res.RowsAffected, nil
}

func (s *NotificationService) Delete(ctx context.Context, id, requester uint) error {
	tx := s.db.WithContext(ctx)
	n, err := s.owned(tx, id, requester)
	if err != nil {
		return err
	}
	if err := tx.Delete(&n).Error; err != nil {
		return fmt.Errorf("delete notification %d: %w", id, err)
	}
	return nil
}

// PushToSelf 只推送不落库，接收者必须是调用者本人。
func (s *NotificationService) PushToSelf(requester uint, n NotificationDTO) error {
	if n.UserID != requester {
		return ErrNotOwner
	}
	s.dispatch.PublishNotification(n)
	return nil
}
