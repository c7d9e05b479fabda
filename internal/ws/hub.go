package ws

import (
	"sync/atomic"

	"socialchat/internal/metrics"

	"github.com/rs/zerolog/log"
)

type subscription struct {
	client *Client
	dest   string // 解析后的目的地
	alias  string // 客户端原样写入的目的地
	id     string
}

type envelope struct {
	dest    string
	payload []byte
}

type direct struct {
	client *Client
	frame  []byte
}

// Hub 由单个 goroutine 持有全部订阅关系，其余 goroutine 只通过 channel 与之交互。
// 投递从不阻塞：发送缓冲已满的会话会被直接断开。
type Hub struct {
	subs    map[string]map[*Client]subscription
	clients map[*Client]map[string]struct{}

	register    chan *Client
	unregister  chan *Client
	subscribe   chan subscription
	unsubscribe chan subscription
	send        chan direct
	broadcast   chan envelope
	count       chan countQuery
	done        chan struct{}
	stopped     atomic.Bool

	sessions int32
}

type countQuery struct {
	dest  string
	reply chan int
}

func NewHub() *Hub {
	return &Hub{
		subs:        make(map[string]map[*Client]subscription),
		clients:     make(map[*Client]map[string]struct{}),
		register:    make(chan *Client),
		unregister:  make(chan *Client),
		subscribe:   make(chan subscription),
		unsubscribe: make(chan subscription),
		send:        make(chan direct),
		broadcast:   make(chan envelope, 256),
		count:       make(chan countQuery),
		done:        make(chan struct{}),
	}
}

// Run 处理所有订阅变更与投递，直到 Stop 被调用；退出时关闭全部会话。
func (h *Hub) Run() {
	for {
		select {
		case c := <-h.register:
			if _, ok := h.clients[c]; !ok {
				h.clients[c] = make(map[string]struct{})
				atomic.StoreInt32(&h.sessions, int32(len(h.clients)))
				metrics.WsConnections.Inc()
			}
		case c := <-h.unregister:
			h.remove(c)
		case s := <-h.subscribe:
			dests, ok := h.clients[s.client]
			if !ok {
				continue
			}
			set := h.subs[s.dest]
			if set == nil {
				set = make(map[*Client]subscription)
				h.subs[s.dest] = set
			}
			set[s.client] = s
			dests[s.dest] = struct{}{}
		case s := <-h.unsubscribe:
			h.drop(s.client, s.dest, s.id)
		case d := <-h.send:
			if _, ok := h.clients[d.client]; ok {
				h.deliver(d.client, d.frame)
			}
		case e := <-h.broadcast:
			set := h.subs[e.dest]
			if len(set) == 0 {
				log.Debug().Str("destination", e.dest).Msg("push without subscribers")
				continue
			}
			for c, s := range set {
				h.deliver(c, encode(Frame{Command: CmdMessage, Destination: s.alias, ID: s.id, Body: e.payload}))
			}
		case q := <-h.count:
			q.reply <- len(h.subs[q.dest])
		case <-h.done:
			for c := range h.clients {
				h.remove(c)
			}
			return
		}
	}
}

// deliver 非阻塞地写入会话缓冲区；缓冲区满说明对端消费过慢，直接断开。
func (h *Hub) deliver(c *Client, frame []byte) {
	if frame == nil {
		return
	}
	select {
	case c.send <- frame:
	default:
		metrics.SlowConsumersDropped.Inc()
		log.Warn().Str("session", c.id).Uint("user_id", c.identity.UserID).Msg("dropping slow websocket consumer")
		h.remove(c)
	}
}

func (h *Hub) remove(c *Client) {
	dests, ok := h.clients[c]
	if !ok {
		return
	}
	for d := range dests {
		if set := h.subs[d]; set != nil {
			delete(set, c)
			if len(set) == 0 {
				delete(h.subs, d)
			}
		}
	}
	delete(h.clients, c)
	close(c.send)
	atomic.StoreInt32(&h.sessions, int32(len(h.clients)))
	metrics.WsConnections.Dec()
}

// drop 取消订阅；id 非空时只在订阅 id 匹配时生效。
func (h *Hub) drop(c *Client, dest, id string) {
	set := h.subs[dest]
	s, ok := set[c]
	if !ok || (id != "" && s.id != id) {
		return
	}
	delete(set, c)
	if len(set) == 0 {
		delete(h.subs, dest)
	}
	delete(h.clients[c], dest)
}

// Register 登记会话；hub 已停止时返回 false。
func (h *Hub) Register(c *Client) bool {
	select {
	case h.register <- c:
		return true
	case <-h.done:
		return false
	}
}

func (h *Hub) Unregister(c *Client) {
	select {
	case h.unregister <- c:
	case <-h.done:
	}
}

func (h *Hub) Subscribe(c *Client, dest, alias, id string) {
	select {
	case h.subscribe <- subscription{client: c, dest: dest, alias: alias, id: id}:
	case <-h.done:
	}
}

func (h *Hub) Unsubscribe(c *Client, dest, id string) {
	select {
	case h.unsubscribe <- subscription{client: c, dest: dest, id: id}:
	case <-h.done:
	}
}

// Send 向单个会话投递一帧，会话已断开时静默丢弃。
func (h *Hub) Send(c *Client, frame []byte) {
	select {
	case h.send <- direct{client: c, frame: frame}:
	case <-h.done:
	}
}

// Publish 把已编码的载荷交给 hub 扇出，不等待投递。
// 广播队列已满或 hub 已停止时返回 false。
func (h *Hub) Publish(dest string, payload []byte) bool {
	select {
	case <-h.done:
		return false
	default:
	}
	select {
	case h.broadcast <- envelope{dest: dest, payload: payload}:
		return true
	default:
		return false
	}
}

// Subscribers 返回 dest 当前的订阅会话数。
func (h *Hub) Subscribers(dest string) int {
	q := countQuery{dest: dest, reply: make(chan int, 1)}
	select {
	case h.count <- q:
		return <-q.reply
	case <-h.done:
		return 0
	}
}

// Sessions 返回当前注册的会话数，供健康检查与测试复用。
func (h *Hub) Sessions() int { return int(atomic.LoadInt32(&h.sessions)) }

// Stop 停止 Run 循环并关闭所有会话，可重复调用。
func (h *Hub) Stop() {
	if h.stopped.CompareAndSwap(false, true) {
		close(h.done)
	}
}
