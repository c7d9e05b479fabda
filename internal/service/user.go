package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"socialchat/internal/auth"
	"socialchat/internal/models"

	"gorm.io/gorm"
)

// UserDirectory 是实时核心对用户资料的只读视图。
type UserDirectory interface {
	FindUser(ctx context.Context, id uint) (models.User, error)
	FindUsers(ctx context.Context, ids []uint) (map[uint]models.User, error)
}

// Revoker 是登出与刷新流程对吊销存储的依赖。
type Revoker interface {
	Revoke(ctx context.Context, token string, userID uint, expiresAt time.Time) error
	IsRevoked(ctx context.Context, token string) (bool, error)
}

// UserService 封装用户目录与认证流程。
type UserService struct {
	db      *gorm.DB
	issuer  *auth.Issuer
	revoker Revoker
	opts    options
}

func NewUserService(db *gorm.DB, issuer *auth.Issuer, revoker Revoker, opts ...Option) *UserService {
	return &UserService{db: db, issuer: issuer, revoker: revoker, opts: buildOptions(opts)}
}

func (s *UserService) FindUser(ctx context.Context, id uint) (models.User, error) {
	var u models.User
	if err := s.db.WithContext(ctx).First(&u, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return models.User{}, ErrUserNotFound
		}
		return models.User{}, fmt.Errorf("find user %d: %w", id, err)
	}
	return u, nil
}

// FindUsers 批量查询用户，不存在的 id 不会出现在结果中。
func (s *UserService) FindUsers(ctx context.Context, ids []uint) (map[uint]models.User, error) {
	out := make(map[uint]models.User, len(ids))
	if len(ids) == 0 {
		return out, nil
	}
	seen := make(map[uint]struct{}, len(ids))
	uniq := make([]uint, 0, len(ids))
	for _, id := range ids {
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		uniq = append(uniq, id)
	}
	var users []models.User
	if err := s.db.WithContext(ctx).Where("id IN ?", uniq).Find(&users).Error; err != nil {
		return nil, fmt.Errorf("find users: %w", err)
	}
	for _, u := range users {
		out[u.ID] = u
	}
	return out, nil
}

// RegisterResult 注册成功后返回的数据。
type RegisterResult struct {
	ID          uint   `json:"id"`
	Username    string `json:"username"`
	DisplayName string `json:"displayName"`
}

// Register 注册新用户；displayName 为空时使用用户名。
func (s *UserService) Register(ctx context.Context, username, password, displayName string) (*RegisterResult, error) {
	username = strings.TrimSpace(username)
	if len(username) < 2 || len(username) > 64 {
		return nil, ErrInvalidUsername
	}
	if len(password) < 4 || len(password) > 72 {
		return nil, ErrInvalidPassword
	}
	displayName = strings.TrimSpace(displayName)
	if displayName == "" {
		displayName = username
	}

	var count int64
	if err := s.db.WithContext(ctx).Model(&models.User{}).Where("username = ?", username).Count(&count).Error; err != nil {
		return nil, fmt.Errorf("register count: %w", err)
	}
	if count > 0 {
		return nil, ErrUsernameTaken
	}
	hash, err := auth.HashPassword(password)
	if err != nil {
		return nil, fmt.Errorf("register hash password: %w", err)
	}
	user := models.User{Username: username, DisplayName: displayName, PasswordHash: hash}
	if err := s.db.WithContext(ctx).Create(&user).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return nil, ErrUsernameTaken
		}
		return nil, fmt.Errorf("register create user: %w", err)
	}
	return &RegisterResult{ID: user.ID, Username: user.Username, DisplayName: user.DisplayName}, nil
}

// TokenPair 是登录与刷新的返回值。
type TokenPair struct {
	AccessToken  string      `json:"accessToken"`
	RefreshToken string      `json:"refreshToken"`
	ExpiresAt    time.Time   `json:"expiresAt"`
	User         models.User `json:"-"`
}

// Login 校验用户名密码并签发 access/refresh 凭证对。
func (s *UserService) Login(ctx context.Context, username, password string) (*TokenPair, error) {
	var user models.User
	if err := s.db.WithContext(ctx).Where("username = ?", strings.TrimSpace(username)).First(&user).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrInvalidCredentials
		}
		return nil, fmt.Errorf("login query user: %w", err)
	}
	if !auth.VerifyPassword(user.PasswordHash, password) {
		return nil, ErrInvalidCredentials
	}
	at, exp, err := s.issuer.Issue(user.ID, user.Username, auth.PurposeAccess)
	if err != nil {
		return nil, fmt.Errorf("login issue access token: %w", err)
	}
	rt, _, err := s.issuer.Issue(user.ID, user.Username, auth.PurposeRefresh)
	if err != nil {
		return nil, fmt.Errorf("login issue refresh token: %w", err)
	}
	return &TokenPair{AccessToken: at, RefreshToken: rt, ExpiresAt: exp, User: user}, nil
}

// Refresh 用未吊销的 refresh 凭证换取新的 access 凭证，refresh 凭证原样返回。
func (s *UserService) Refresh(ctx context.Context, refreshToken string) (*TokenPair, error) {
	claims, err := s.issuer.ParsePurpose(refreshToken, auth.PurposeRefresh)
	if err != nil {
		return nil, ErrInvalidCredentials
	}
	revoked, err := s.revoker.IsRevoked(ctx, refreshToken)
	if err != nil {
		return nil, fmt.Errorf("refresh revocation lookup: %w", err)
	}
	if revoked {
		return nil, ErrInvalidCredentials
	}
	user, err := s.FindUser(ctx, claims.UserID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, ErrInvalidCredentials
		}
		return nil, err
	}
	at, exp, err := s.issuer.Issue(user.ID, user.Username, auth.PurposeAccess)
	if err != nil {
		return nil, fmt.Errorf("refresh issue access token: %w", err)
	}
	return &TokenPair{AccessToken: at, RefreshToken: refreshToken, ExpiresAt: exp, User: user}, nil
}

// Logout 吊销调用方提交的凭证，吊销记录在凭证自然过期后由清理任务删除。
// 不属于 userID 或已失效的凭证直接忽略。
func (s *UserService) Logout(ctx context.Context, userID uint, tokens ...string) error {
	for _, tok := range tokens {
		if tok == "" {
			continue
		}
		claims, err := s.issuer.Parse(tok)
		if err != nil || claims.UserID != userID {
			continue
		}
		if err := s.revoker.Revoke(ctx, tok, userID, claims.ExpiresAt.Time); err != nil {
			return fmt.Errorf("logout: %w", err)
		}
	}
	return nil
}
