package server

import (
	"net/http"

	"socialchat/internal/auth"
	"socialchat/internal/config"
	"socialchat/internal/metrics"
	"socialchat/internal/mw"
	"socialchat/internal/ws"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Deps 是路由需要的全部已构造组件，由 main 负责创建和关闭。
type Deps struct {
	Gateway  *auth.Gateway
	Handler  *Handler
	Endpoint *ws.Endpoint
	Limiter  *mw.RL
	Hub      *ws.Hub
}

// SetupRouter 统一初始化 Gin 中间件、REST API 以及 WebSocket 端点。
func SetupRouter(cfg config.Config, d Deps) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(metrics.GinMiddleware())
	// 控制单个 IP+路由的速率。
	r.Use(mw.RateLimit(d.Limiter))
	r.Use(mw.CORS(cfg.Env, cfg.WSAllowedOrigins))

	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok", "sessions": d.Hub.Sessions()})
	})
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))
	r.GET("/ws/chat", d.Endpoint.Serve)

	h := d.Handler
	api := r.Group("/api/v1")
	api.POST("/auth/register", h.Register)
	api.POST("/auth/login", h.Login)
	api.POST("/auth/refresh", h.Refresh)

	// 需要 Bearer Token 的业务接口。
	authed := api.Group("")
	authed.Use(auth.RequireIdentity(d.Gateway))

	authed.POST("/auth/logout", h.Logout)

	authed.POST("/conversations/with/:participantId", h.StartConversation)
	authed.GET("/conversations", h.ListConversations)
	authed.POST("/conversations/:id/messages", h.SendMessage)
	authed.GET("/conversations/:id/messages", h.ListMessages)
	authed.DELETE("/conversations/:id", h.DeleteConversation)

	authed.POST("/presence/online", h.SetPresence(true))
	authed.POST("/presence/offline", h.SetPresence(false))
	authed.GET("/presence/:userId", h.GetPresence)
	authed.GET("/presence/:userId/online", h.IsOnline)

	authed.GET("/notifications", h.ListNotifications(false))
	authed.GET("/notifications/unread", h.ListNotifications(true))
	authed.GET("/notifications/unread/count", h.UnreadCount)
	authed.PUT("/notifications/read-all", h.MarkAllRead)
	authed.PUT("/notifications/:id/read", h.MarkRead)
	authed.DELETE("/notifications/:id", h.DeleteNotification)

	return r
}
