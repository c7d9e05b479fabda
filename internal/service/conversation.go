package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"socialchat/internal/metrics"
	"socialchat/internal/models"

	"github.com/rs/zerolog/log"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// ConversationService 负责一对一会话与消息的持久化，写入成功后再推送。
type ConversationService struct {
	db       *gorm.DB
	users    UserDirectory
	dispatch Dispatcher
	opts     options
}

func NewConversationService(db *gorm.DB, users UserDirectory, dispatch Dispatcher, opts ...Option) *ConversationService {
	return &ConversationService{db: db, users: users, dispatch: dispatch, opts: buildOptions(opts)}
}

func orderedPair(a, b uint) (uint, uint) {
	if a < b {
		return a, b
	}
	return b, a
}

// GetOrCreate 返回两人之间唯一的会话，不存在时创建。
// 并发首次联系依赖 (user1_id, user2_id) 唯一索引与 ON CONFLICT DO NOTHING。
func (s *ConversationService) GetOrCreate(ctx context.Context, userA, userB uint) (models.Conversation, error) {
	if userA == userB {
		return models.Conversation{}, ErrSelfConversation
	}
	if _, err := s.users.FindUser(ctx, userB); err != nil {
		return models.Conversation{}, err
	}
	lo, hi := orderedPair(userA, userB)
	tx := s.db.WithContext(ctx)

	var conv models.Conversation
	err := tx.Where("user1_id = ? AND user2_id = ?", lo, hi).First(&conv).Error
	if err == nil {
		return conv, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return models.Conversation{}, fmt.Errorf("lookup conversation: %w", err)
	}

	now := s.opts.now()
	fresh := models.Conversation{User1ID: lo, User2ID: hi, CreatedAt: now, UpdatedAt: now}
	if err := tx.Clauses(clause.OnConflict{DoNothing: true}).Create(&fresh).Error; err != nil {
		return models.Conversation{}, fmt.Errorf("create conversation: %w", err)
	}
	if err := tx.Where("user1_id = ? AND user2_id = ?", lo, hi).First(&conv).Error; err != nil {
		return models.Conversation{}, fmt.Errorf("reload conversation: %w", err)
	}
	return conv, nil
}

// Start 是 GetOrCreate 的请求层入口，返回请求者视角的会话摘要。
func (s *ConversationService) Start(ctx context.Context, requester, participant uint) (ConversationSummary, error) {
	conv, err := s.GetOrCreate(ctx, requester, participant)
	if err != nil {
		return ConversationSummary{}, err
	}
	out, err := s.summaries(ctx, []models.Conversation{conv}, requester)
	if err != nil {
		return ConversationSummary{}, err
	}
	return out[0], nil
}

func (s *ConversationService) load(tx *gorm.DB, conversationID, requester uint) (models.Conversation, error) {
	var conv models.Conversation
	if err := tx.First(&conv, conversationID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return models.Conversation{}, ErrConversationNotFound
		}
		return models.Conversation{}, fmt.Errorf("load conversation %d: %w", conversationID, err)
	}
	if !conv.HasParticipant(requester) {
		return models.Conversation{}, ErrNotParticipant
	}
	return conv, nil
}

// Authorize 检查 userID 是否为会话参与者，用于订阅会话 topic 前的校验。
func (s *ConversationService) Authorize(ctx context.Context, conversationID, userID uint) error {
	_, err := s.load(s.db.WithContext(ctx), conversationID, userID)
	return err
}

// SendMessage 追加一条未读消息并推进会话 updated_at，提交后推送到会话 topic。
func (s *ConversationService) SendMessage(ctx context.Context, senderID, conversationID uint, text string) (MessageDTO, error) {
	if strings.TrimSpace(text) == "" {
		return MessageDTO{}, ErrEmptyMessage
	}
	var msg models.Message
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		conv, err := s.load(tx, conversationID, senderID)
		if err != nil {
			return err
		}
		now := s.opts.now()
		msg = models.Message{ConversationID: conv.ID, SenderID: senderID, Text: text, CreatedAt: now}
		if err := tx.Create(&msg).Error; err != nil {
			return fmt.Errorf("create message: %w", err)
		}
		if err := tx.Model(&models.Conversation{}).Where("id = ?", conv.ID).UpdateColumn("updated_at", now).Error; err != nil {
			return fmt.Errorf("touch conversation: %w", err)
		}
		return nil
	})
	if err != nil {
		return MessageDTO{}, err
	}
	metrics.WsMessagesTotal.Inc()

	sender, err := s.users.FindUser(ctx, senderID)
	if err != nil {
		// 消息已提交，用现有信息推送
		log.Warn().Err(err).Uint("sender_id", senderID).Msg("send message: sender lookup")
		sender = models.User{ID: senderID}
	}
	dto := messageDTO(msg, sender)
	s.dispatch.PublishMessage(dto)
	return dto, nil
}

// ListMessages 按时间倒序分页返回消息，同时把本页中对方发来的未读消息标记为已读。
// 已读标记只会写一次，重复查询不会改变 read_at，也不会触发推送。
func (s *ConversationService) ListMessages(ctx context.Context, conversationID, requester uint, req PageRequest) (Page[MessageDTO], error) {
	tx := s.db.WithContext(ctx)
	conv, err := s.load(tx, conversationID, requester)
	if err != nil {
		return Page[MessageDTO]{}, err
	}

	var total int64
	if err := tx.Model(&models.Message{}).Where("conversation_id = ?", conv.ID).Count(&total).Error; err != nil {
		return Page[MessageDTO]{}, fmt.Errorf("count messages: %w", err)
	}
	var msgs []models.Message
	if err := tx.Where("conversation_id = ?", conv.ID).
		Order("created_at desc").Order("id desc").
		Offset(req.offset()).Limit(req.Size).
		Find(&msgs).Error; err != nil {
		return Page[MessageDTO]{}, fmt.Errorf("list messages: %w", err)
	}

	var unread []uint
	for _, m := range msgs {
		if m.ReadAt == nil && m.SenderID != requester {
			unread = append(unread, m.ID)
		}
	}
	if len(unread) > 0 {
		if err := tx.Model(&models.Message{}).
			Where("id IN ? AND read_at IS NULL AND sender_id <> ?", unread, requester).
			UpdateColumn("read_at", s.opts.now()).Error; err != nil {
			return Page[MessageDTO]{}, fmt.Errorf("mark messages read: %w", err)
		}
		// 并发查询可能抢先写入 read_at，以库中的值为准
		var stamped []models.Message
		if err := tx.Select("id", "read_at").Where("id IN ?", unread).Find(&stamped).Error; err != nil {
			return Page[MessageDTO]{}, fmt.Errorf("reload read_at: %w", err)
		}
		readAt := make(map[uint]*time.Time, len(stamped))
		for _, m := range stamped {
			readAt[m.ID] = m.ReadAt
		}
		for i := range msgs {
			if at, ok := readAt[msgs[i].ID]; ok {
				msgs[i].ReadAt = at
			}
		}
	}

	senders, err := s.users.FindUsers(ctx, []uint{conv.User1ID, conv.User2ID})
	if err != nil {
		return Page[MessageDTO]{}, err
	}
	out := make([]MessageDTO, 0, len(msgs))
	for _, m := range msgs {
		out = append(out, messageDTO(m, senders[m.SenderID]))
	}
	return newPage(out, req, total), nil
}

// ListConversations 按最近活跃倒序列出用户参与的会话。
func (s *ConversationService) ListConversations(ctx context.Context, userID uint, req PageRequest) (Page[ConversationSummary], error) {
	tx := s.db.WithContext(ctx)
	var total int64
	if err := tx.Model(&models.Conversation{}).Where("user1_id = ? OR user2_id = ?", userID, userID).Count(&total).Error; err != nil {
		return Page[ConversationSummary]{}, fmt.Errorf("count conversations: %w", err)
	}
	var convs []models.Conversation
	if err := tx.Where("user1_id = ? OR user2_id = ?", userID, userID).
		Order("updated_at desc").Order("id desc").
		Offset(req.offset()).Limit(req.Size).
		Find(&convs).Error; err != nil {
		return Page[ConversationSummary]{}, fmt.Errorf("list conversations: %w", err)
	}
	out, err := s.summaries(ctx, convs, userID)
	if err != nil {
		return Page[ConversationSummary]{}, err
	}
	return newPage(out, req, total), nil
}

func (s *ConversationService) summaries(ctx context.Context, convs []models.Conversation, userID uint) ([]ConversationSummary, error) {
	tx := s.db.WithContext(ctx)
	ids := make([]uint, 0, len(convs))
	for _, c := range convs {
		ids = append(ids, c.Counterpart(userID))
	}
	counterparts, err := s.users.FindUsers(ctx, ids)
	if err != nil {
		return nil, err
	}

	out := make([]ConversationSummary, 0, len(convs))
	for _, c := range convs {
		other := counterparts[c.Counterpart(userID)]
		sum := ConversationSummary{
			ID:                     c.ID,
			ParticipantID:          c.Counterpart(userID),
			ParticipantUsername:    other.Username,
			ParticipantDisplayName: other.DisplayName,
			ParticipantPhotoURL:    other.ProfilePhotoURL,
			CreatedAt:              c.CreatedAt,
			UpdatedAt:              c.UpdatedAt,
		}
		var last models.Message
		err := tx.Where("conversation_id = ?", c.ID).Order("created_at desc").Order("id desc").Limit(1).Take(&last).Error
		switch {
		case err == nil:
			t := last.CreatedAt
			sum.LastMessage = last.Text
			sum.LastMessageTime = &t
			sum.Unread = last.ReadAt == nil && last.SenderID != userID
		case errors.Is(err, gorm.ErrRecordNotFound):
		default:
			return nil, fmt.Errorf("last message of conversation %d: %w", c.ID, err)
		}
		out = append(out, sum)
	}
	return out, nil
}

// Delete 删除会话及其全部消息，仅参与者可操作。
func (s *ConversationService) Delete(ctx context.Context, conversationID, requester uint) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		conv, err := s.load(tx, conversationID, requester)
		if err != nil {
			return err
		}
		if err := tx.Where("conversation_id = ?", conv.ID).Delete(&models.Message{}).Error; err != nil {
			return fmt.Errorf("delete messages: %w", err)
		}
		if err := tx.Delete(&conv).Error; err != nil {
			return fmt.Errorf("delete conversation: %w", err)
		}
		return nil
	})
}

// Typing 校验参与者身份后转发输入状态，不落库。
func (s *ConversationService) Typing(ctx context.Context, identityID uint, username string, conversationID uint, isTyping bool) error {
	if _, err := s.load(s.db.WithContext(ctx), conversationID, identityID); err != nil {
		return err
	}
	s.dispatch.PublishTyping(TypingDTO{
		ConversationID: conversationID,
		UserID:         identityID,
		Username:       username,
		IsTyping:       isTyping,
	})
	return nil
}
