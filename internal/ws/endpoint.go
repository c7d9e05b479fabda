package ws

import (
	"context"
	"net/http"
	"sync"
	"time"

	"socialchat/internal/auth"
	"socialchat/internal/mw"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
)

const observerTimeout = 5 * time.Second

type Authenticator interface {
	Authenticate(ctx context.Context, credential string) (auth.Identity, error)
}

// DisconnectObserver 在会话结束时调用，每个完成 CONNECT 的会话恰好一次。
type DisconnectObserver func(ctx context.Context, id auth.Identity)

// Endpoint 负责握手认证并为每条连接启动读写协程。
type Endpoint struct {
	hub      *Hub
	auth     Authenticator
	router   *Router
	limiter  *mw.RL
	upgrader websocket.Upgrader

	mu        sync.RWMutex
	observers []DisconnectObserver
	sessions  sync.WaitGroup
}

// NewEndpoint 创建端点；limiter 为 nil 时不限制入站帧速率。
func NewEndpoint(hub *Hub, authn Authenticator, router *Router, limiter *mw.RL, env string, allowedOrigins []string) *Endpoint {
	e := &Endpoint{hub: hub, auth: authn, router: router, limiter: limiter}
	e.upgrader = websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin: func(r *http.Request) bool {
			return mw.OriginAllowed(env, allowedOrigins, r.Header.Get("Origin"), r.Host)
		},
	}
	e.OnDisconnect(router.Disconnected)
	return e
}

func (e *Endpoint) OnDisconnect(fn DisconnectObserver) {
	e.mu.Lock()
	e.observers = append(e.observers, fn)
	e.mu.Unlock()
}

// Serve 是 GET /ws/chat 的处理函数。
func (e *Endpoint) Serve(c *gin.Context) {
	e.sessions.Add(1)
	defer e.sessions.Done()

	identity, err := e.auth.Authenticate(c.Request.Context(), auth.CredentialFromRequest(c.Request))
	if err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}

	conn, err := e.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		log.Debug().Err(err).Uint("user_id", identity.UserID).Msg("ws upgrade failed")
		return
	}
	client := &Client{
		hub:      e.hub,
		ep:       e,
		conn:     conn,
		send:     make(chan []byte, sendBuffer),
		id:       uuid.NewString(),
		identity: identity,
		subs:     make(map[string]string),
	}
	if !e.hub.Register(client) {
		_ = conn.Close()
		return
	}
	log.Debug().Str("session", client.id).Uint("user_id", identity.UserID).Msg("ws session opened")

	go client.writePump()
	client.readPump()
}

// Drain 等待所有会话退出并执行完断开观察者，ctx 到期时返回其错误。
// 应在 http.Server.Shutdown 与 Hub.Stop 之后调用。
func (e *Endpoint) Drain(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		e.sessions.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (e *Endpoint) disconnected(c *Client) {
	if !c.connected {
		return
	}
	c.teardown.Do(func() {
		ctx, cancel := context.WithTimeout(context.Background(), observerTimeout)
		defer cancel()

		e.mu.RLock()
		observers := append([]DisconnectObserver(nil), e.observers...)
		e.mu.RUnlock()
		for _, fn := range observers {
			fn(ctx, c.identity)
		}
		log.Debug().Str("session", c.id).Uint("user_id", c.identity.UserID).Msg("ws session closed")
	})
}
