package service

import (
	"context"
	"errors"
	"fmt"

	"socialchat/internal/models"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// PresenceService 是在线状态的唯一数据源。每个用户一行，只做 upsert。
//
// 同一用户的多个会话各自翻转同一个布尔值：关闭其中一个会话就会把用户标记为离线。
// 并发的上下线推送也不保证到达顺序。
type PresenceService struct {
	db       *gorm.DB
	users    UserDirectory
	dispatch Dispatcher
	opts     options
}

func NewPresenceService(db *gorm.DB, users UserDirectory, dispatch Dispatcher, opts ...Option) *PresenceService {
	return &PresenceService{db: db, users: users, dispatch: dispatch, opts: buildOptions(opts)}
}

// SetOnline 原子地写入在线状态并刷新 last_seen，然后无条件推送快照。
func (s *PresenceService) SetOnline(ctx context.Context, userID uint, online bool) (PresenceDTO, error) {
	user, err := s.users.FindUser(ctx, userID)
	if err != nil {
		return PresenceDTO{}, err
	}
	now := s.opts.now()
	row := models.UserPresence{UserID: userID, IsOnline: online, LastSeen: now, UpdatedAt: now}
	err = s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "user_id"}},
		DoUpdates: clause.Assignments(map[string]interface{}{
			"is_online":  online,
			"last_seen":  now,
			"updated_at": now,
		}),
	}).Create(&row).Error
	if err != nil {
		return PresenceDTO{}, fmt.Errorf("upsert presence for user %d: %w", userID, err)
	}
	dto := presenceDTO(user, online, now)
	s.dispatch.PublishPresence(dto)
	return dto, nil
}

// IsOnline 没有记录的用户视为离线。
func (s *PresenceService) IsOnline(ctx context.Context, userID uint) (bool, error) {
	row, ok, err := s.find(ctx, userID)
	if err != nil || !ok {
		return false, err
	}
	return row.IsOnline, nil
}

// GetPresence 返回快照；没有记录时合成一个离线、last_seen 为当前时间的快照，但不落库。
func (s *PresenceService) GetPresence(ctx context.Context, userID uint) (PresenceDTO, error) {
	user, err := s.users.FindUser(ctx, userID)
	if err != nil {
		return PresenceDTO{}, err
	}
	row, ok, err := s.find(ctx, userID)
	if err != nil {
		return PresenceDTO{}, err
	}
	if !ok {
		return presenceDTO(user, false, s.opts.now()), nil
	}
	return presenceDTO(user, row.IsOnline, row.LastSeen), nil
}

func (s *PresenceService) find(ctx context.Context, userID uint) (models.UserPresence, bool, error) {
	var row models.UserPresence
	err := s.db.WithContext(ctx).Where("user_id = ?", userID).Take(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return models.UserPresence{}, false, nil
	}
	if err != nil {
		return models.UserPresence{}, false, fmt.Errorf("load presence for user %d: %w", userID, err)
	}
	return row, true, nil
}
