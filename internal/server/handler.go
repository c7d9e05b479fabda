package server

import (
	"errors"
	"net/http"
	"strconv"

	"socialchat/internal/auth"
	"socialchat/internal/service"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"
)

// Handler 聚合所有 HTTP handler，依赖注入 service 层。
type Handler struct {
	users         *service.UserService
	conversations *service.ConversationService
	presence      *service.PresenceService
	notifications *service.NotificationService
}

func NewHandler(users *service.UserService, conversations *service.ConversationService, presence *service.PresenceService, notifications *service.NotificationService) *Handler {
	return &Handler{users: users, conversations: conversations, presence: presence, notifications: notifications}
}

// writeError 按错误类别映射状态码；未分类的错误只写日志，客户端看到 internal error。
func writeError(c *gin.Context, err error, op string) {
	var status int
	switch {
	case errors.Is(err, service.ErrValidation):
		status = http.StatusBadRequest
	case errors.Is(err, service.ErrUnauthenticated):
		status = http.StatusUnauthorized
	case errors.Is(err, service.ErrForbidden):
		status = http.StatusForbidden
	case errors.Is(err, service.ErrNotFound):
		status = http.StatusNotFound
	case errors.Is(err, service.ErrConflict):
		status = http.StatusConflict
	default:
		log.Error().Err(err).Str("op", op).Str("path", c.FullPath()).Msg("request failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
		return
	}
	c.JSON(status, gin.H{"error": err.Error()})
}

func currentUser(c *gin.Context) (auth.Identity, bool) {
	id, ok := auth.IdentityFrom(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
	}
	return id, ok
}

func pathID(c *gin.Context, name string) (uint, bool) {
	v, err := strconv.ParseUint(c.Param(name), 10, 64)
	if err != nil || v == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid " + name})
		return 0, false
	}
	return uint(v), true
}

// pageRequest 读取 page/size 查询参数，非法值按默认值处理。
func pageRequest(c *gin.Context, defaultSize int) service.PageRequest {
	page, _ := strconv.Atoi(c.Query("page"))
	size, _ := strconv.Atoi(c.Query("size"))
	return service.NewPageRequest(page, size, defaultSize)
}

// Register 处理用户注册请求。
func (h *Handler) Register(c *gin.Context) {
	var req struct {
		Username    string `json:"username"`
		Password    string `json:"password"`
		DisplayName string `json:"displayName"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid payload"})
		return
	}
	result, err := h.users.Register(c.Request.Context(), req.Username, req.Password, req.DisplayName)
	if err != nil {
		writeError(c, err, "register")
		return
	}
	c.JSON(http.StatusCreated, result)
}

// Login 处理用户登录请求。
func (h *Handler) Login(c *gin.Context) {
	var req struct {
		Username string `json:"username"`
		Password string `json:"password"`
	}
	if err := c.ShouldBindJSON(&req); err != nil || req.Username == "" || req.Password == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid payload"})
		return
	}
	pair, err := h.users.Login(c.Request.Context(), req.Username, req.Password)
	if err != nil {
		writeError(c, err, "login")
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"accessToken":  pair.AccessToken,
		"refreshToken": pair.RefreshToken,
		"expiresAt":    pair.ExpiresAt,
		"user": gin.H{
			"id":          pair.User.ID,
			"username":    pair.User.Username,
			"displayName": pair.User.DisplayName,
		},
	})
}

// Refresh 处理 token 刷新请求。
func (h *Handler) Refresh(c *gin.Context) {
	var req struct {
		RefreshToken string `json:"refreshToken"`
	}
	if err := c.ShouldBindJSON(&req); err != nil || req.RefreshToken == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid payload"})
		return
	}
	pair, err := h.users.Refresh(c.Request.Context(), req.RefreshToken)
	if err != nil {
		writeError(c, err, "refresh")
		return
	}
	c.JSON(http.StatusOK, pair)
}

// Logout 吊销当前 access 凭证，请求体里带了 refresh 凭证时一并吊销。
func (h *Handler) Logout(c *gin.Context) {
	id, ok := currentUser(c)
	if !ok {
		return
	}
	var req struct {
		RefreshToken string `json:"refreshToken"`
	}
	// 请求体可选
	_ = c.ShouldBindJSON(&req)
	if err := h.users.Logout(c.Request.Context(), id.UserID, auth.CredentialFrom(c), req.RefreshToken); err != nil {
		writeError(c, err, "logout")
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *Handler) StartConversation(c *gin.Context) {
	id, ok := currentUser(c)
	if !ok {
		return
	}
	participant, ok := pathID(c, "participantId")
	if !ok {
		return
	}
	summary, err := h.conversations.Start(c.Request.Context(), id.UserID, participant)
	if err != nil {
		writeError(c, err, "start conversation")
		return
	}
	c.JSON(http.StatusOK, summary)
}

func (h *Handler) ListConversations(c *gin.Context) {
	id, ok := currentUser(c)
	if !ok {
		return
	}
	page, err := h.conversations.ListConversations(c.Request.Context(), id.UserID, pageRequest(c, service.DefaultPageSize))
	if err != nil {
		writeError(c, err, "list conversations")
		return
	}
	c.JSON(http.StatusOK, page)
}

// SendMessage 是 WebSocket 之外的发送入口，落库与推送逻辑相同。
func (h *Handler) SendMessage(c *gin.Context) {
	id, ok := currentUser(c)
	if !ok {
		return
	}
	convID, ok := pathID(c, "id")
	if !ok {
		return
	}
	var req struct {
		Content string `json:"content"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid payload"})
		return
	}
	msg, err := h.conversations.SendMessage(c.Request.Context(), id.UserID, convID, req.Content)
	if err != nil {
		writeError(c, err, "send message")
		return
	}
	c.JSON(http.StatusCreated, msg)
}

func (h *Handler) ListMessages(c *gin.Context) {
	id, ok := currentUser(c)
	if !ok {
		return
	}
	convID, ok := pathID(c, "id")
	if !ok {
		return
	}
	page, err := h.conversations.ListMessages(c.Request.Context(), convID, id.UserID, pageRequest(c, service.DefaultMessagePageSize))
	if err != nil {
		writeError(c, err, "list messages")
		return
	}
	c.JSON(http.StatusOK, page)
}

func (h *Handler) DeleteConversation(c *gin.Context) {
	id, ok := currentUser(c)
	if !ok {
		return
	}
	convID, ok := pathID(c, "id")
	if !ok {
		return
	}
	if err := h.conversations.Delete(c.Request.Context(), convID, id.UserID); err != nil {
		writeError(c, err, "delete conversation")
		return
	}
	c.Status(http.StatusNoContent)
}

// SetPresence 返回设置 online 状态的 handler。
func (h *Handler) SetPresence(online bool) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := currentUser(c)
		if !ok {
			return
		}
		p, err := h.presence.SetOnline(c.Request.Context(), id.UserID, online)
		if err != nil {
			writeError(c, err, "set presence")
			return
		}
		c.JSON(http.StatusOK, p)
	}
}

func (h *Handler) GetPresence(c *gin.Context) {
	userID, ok := pathID(c, "userId")
	if !ok {
		return
	}
	p, err := h.presence.GetPresence(c.Request.Context(), userID)
	if err != nil {
		writeError(c, err, "get presence")
		return
	}
	c.JSON(http.StatusOK, p)
}

func (h *Handler) IsOnline(c *gin.Context) {
	userID, ok := pathID(c, "userId")
	if !ok {
		return
	}
	online, err := h.presence.IsOnline(c.Request.Context(), userID)
	if err != nil {
		writeError(c, err, "is online")
		return
	}
	c.JSON(http.StatusOK, gin.H{"userId": userID, "online": online})
}

// ListNotifications 列出通知；unreadOnly 为 true 时忽略 unread 查询参数。
func (h *Handler) ListNotifications(unreadOnly bool) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := currentUser(c)
		if !ok {
			return
		}
		only := unreadOnly || c.Query("unread") == "true"
		page, err := h.notifications.List(c.Request.Context(), id.UserID, pageRequest(c, service.DefaultPageSize), only)
		if err != nil {
			writeError(c, err, "list notifications")
			return
		}
		c.JSON(http.StatusOK, page)
	}
}

func (h *Handler) UnreadCount(c *gin.Context) {
	id, ok := currentUser(c)
	if !ok {
		return
	}
	n, err := h.notifications.UnreadCount(c.Request.Context(), id.UserID)
	if err != nil {
		writeError(c, err, "unread count")
		return
	}
	c.JSON(http.StatusOK, gin.H{"count": n})
}

func (h *Handler) MarkRead(c *gin.Context) {
	id, ok := currentUser(c)
	if !ok {
		return
	}
	nid, ok := pathID(c, "id")
	if !ok {
		return
	}
	n, err := h.notifications.MarkRead(c.Request.Context(), nid, id.UserID)
	if err != nil {
		writeError(c, err, "mark read")
		return
	}
	c.JSON(http.StatusOK, n)
}

func (h *Handler) MarkAllRead(c *gin.Context) {
	id, ok := currentUser(c)
	if !ok {
		return
	}
	updated, err := h.notifications.MarkAllRead(c.Request.Context(), id.UserID)
	if err != nil {
		writeError(c, err, "mark all read")
		return
	}
	c.JSON(http.StatusOK, gin.H{"updated": updated})
}

func (h *Handler) DeleteNotification(c *gin.Context) {
	id, ok := currentUser(c)
	if !ok {
		return
	}
	nid, ok := pathID(c, "id")
	if !ok {
		return
	}
	if err := h.notifications.Delete(c.Request.Context(), nid, id.UserID); err != nil {
		writeError(c, err, "delete notification")
		return
	}
	c.Status(http.StatusNoContent)
}
