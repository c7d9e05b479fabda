package ws

import (
	"context"
	"encoding/json"
	"errors"
	"strconv"
	"sync"
	"time"

	"socialchat/internal/auth"
	"socialchat/internal/metrics"
	"socialchat/internal/service"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
)

const (
	writeWait     = 10 * time.Second
	pongWait      = 60 * time.Second
	pingPeriod    = 30 * time.Second
	maxFrameSize  = 1 << 20 // 1MB
	sendBuffer    = 256
	handleTimeout = 10 * time.Second
)

// Client 是一条已通过握手认证的 WebSocket 会话。
// send 只由 hub 写入和关闭；subs 与 connected 只在读协程中访问。
type Client struct {
	hub      *Hub
	ep       *Endpoint
	conn     *websocket.Conn
	send     chan []byte
	id       string
	identity auth.Identity

	connected bool
	subs      map[string]string // 订阅 id -> 解析后的目的地
	teardown  sync.Once
}

// clientError 的文本可以原样回给客户端。
type clientError string

func (e clientError) Error() string { return string(e) }

const (
	errMalformedFrame      clientError = "malformed frame"
	errMalformedBody       clientError = "malformed frame body"
	errExpectedConnect     clientError = "expected CONNECT"
	errAlreadyConnected    clientError = "already connected"
	errUnknownCommand      clientError = "unknown command"
	errUnknownDestination  clientError = "unknown destination"
	errUnknownSubscription clientError = "unknown subscription"
	errUnauthorized        clientError = "unauthorized"
)

func (c *Client) readPump() {
	defer func() {
		c.hub.Unregister(c)
		c.ep.disconnected(c)
	}()
	c.conn.SetReadLimit(maxFrameSize)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})
	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				log.Debug().Err(err).Str("session", c.id).Msg("ws read")
			}
			return
		}
		if !c.handle(data) {
			return
		}
	}
}

// writePump 是唯一写连接的协程，send 关闭后发送 close 帧并关闭连接。
func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		_ = c.conn.Close()
	}()
	for {
		select {
		case message, ok := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			w, err := c.conn.NextWriter(websocket.TextMessage)
			if err != nil {
				return
			}
			_, _ = w.Write(message)
			if err := w.Close(); err != nil {
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// handle 处理一帧入站数据，返回 false 表示会话应当结束。
func (c *Client) handle(data []byte) bool {
	var f Frame
	if err := json.Unmarshal(data, &f); err != nil || f.Command == "" {
		metrics.WsFramesDropped.WithLabelValues("malformed").Inc()
		c.fail(errMalformedFrame)
		return c.connected
	}
	if !c.connected {
		if f.Command != CmdConnect {
			c.fail(errExpectedConnect)
			return false
		}
		return c.connect(f)
	}
	if c.ep.limiter != nil && !c.ep.limiter.Allow("user:"+strconv.FormatUint(uint64(c.identity.UserID), 10)) {
		metrics.WsFramesDropped.WithLabelValues("rate_limited").Inc()
		return true
	}

	ctx, cancel := context.WithTimeout(context.Background(), handleTimeout)
	defer cancel()

	var err error
	switch f.Command {
	case CmdConnect:
		err = errAlreadyConnected
	case CmdSubscribe:
		err = c.subscribe(ctx, f)
	case CmdUnsubscribe:
		err = c.unsubscribe(f)
	case CmdSend:
		err = c.ep.router.Handle(ctx, c.identity, f.Destination, f.Body)
	case CmdDisconnect:
		c.receipt(f)
		return false
	default:
		err = errUnknownCommand
	}
	if err != nil {
		c.fail(err)
		return true
	}
	c.receipt(f)
	return true
}

func (c *Client) connect(f Frame) bool {
	cred := auth.BearerToken(f.header("authorization"))
	if cred == "" {
		log.Warn().Str("session", c.id).Uint("user_id", c.identity.UserID).Msg("ws CONNECT without bearer credential")
		c.fail(errUnauthorized)
		return false
	}
	ctx, cancel := context.WithTimeout(context.Background(), handleTimeout)
	id, err := c.ep.auth.Authenticate(ctx, cred)
	cancel()
	if err != nil || id.UserID != c.identity.UserID {
		log.Warn().Str("session", c.id).Uint("user_id", c.identity.UserID).Msg("ws CONNECT credential rejected")
		c.fail(errUnauthorized)
		return false
	}
	c.connected = true
	c.reply(encode(Frame{Command: CmdConnected, Headers: map[string]string{
		"session":   c.id,
		"user-name": c.identity.Username,
	}}))

	ctx, cancel = context.WithTimeout(context.Background(), handleTimeout)
	defer cancel()
	c.ep.router.Connected(ctx, c.identity)
	return true
}

func (c *Client) subscribe(ctx context.Context, f Frame) error {
	dest, err := c.ep.router.Resolve(ctx, c.identity, f.Destination)
	if err != nil {
		return err
	}
	id := f.ID
	if id == "" {
		id = f.Destination
	}
	if prev, ok := c.subs[id]; ok && prev != dest {
		c.hub.Unsubscribe(c, prev, id)
	}
	c.subs[id] = dest
	c.hub.Subscribe(c, dest, f.Destination, id)
	return nil
}

func (c *Client) unsubscribe(f Frame) error {
	id := f.ID
	if id == "" {
		id = f.Destination
	}
	dest, ok := c.subs[id]
	if !ok {
		return errUnknownSubscription
	}
	delete(c.subs, id)
	c.hub.Unsubscribe(c, dest, id)
	return nil
}

func (c *Client) reply(frame []byte) { c.hub.Send(c, frame) }

func (c *Client) receipt(f Frame) {
	if r := f.header("receipt"); r != "" {
		c.reply(encode(Frame{Command: CmdReceipt, Headers: map[string]string{"receipt-id": r}}))
	}
}

// fail 回复 ERROR 帧；只有业务错误的文本会透出，其余统一为 internal error。
func (c *Client) fail(err error) {
	msg := "internal error"
	var ce clientError
	switch {
	case errors.As(err, &ce):
		msg = ce.Error()
	case errors.Is(err, service.ErrNotFound),
		errors.Is(err, service.ErrForbidden),
		errors.Is(err, service.ErrValidation),
		errors.Is(err, service.ErrConflict):
		msg = err.Error()
	default:
		log.Error().Err(err).Str("session", c.id).Uint("user_id", c.identity.UserID).Msg("ws frame failed")
	}
	c.reply(errorFrame(msg))
}
