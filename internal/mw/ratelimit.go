package mw

import (
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"golang.org/x/time/rate"
)

type keyLimiter struct {
	lim *rate.Limiter
	ts  time.Time
}

// RL 是按 key 分桶的令牌桶限速器，HTTP 按 IP+路由分桶，WebSocket 按用户分桶。
type RL struct {
	mu   sync.Mutex
	m    map[string]*keyLimiter
	r    rate.Limit
	b    int
	ttl  time.Duration
	stop chan struct{}
	once sync.Once
}

func NewRateLimiter(r rate.Limit, burst int, ttl time.Duration) *RL {
	return &RL{m: make(map[string]*keyLimiter), r: r, b: burst, ttl: ttl, stop: make(chan struct{})}
}

func (rl *RL) get(key string) *rate.Limiter {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	kl, ok := rl.m[key]
	if ok {
		kl.ts = time.Now()
		return kl.lim
	}
	lim := rate.NewLimiter(rl.r, rl.b)
	rl.m[key] = &keyLimiter{lim: lim, ts: time.Now()}
	return lim
}

// Allow 消耗 key 对应桶中的一个令牌。
func (rl *RL) Allow(key string) bool {
	return rl.get(key).Allow()
}

// Start 启动回收长时间未使用的桶的 GC goroutine，重复调用无效果。
func (rl *RL) Start() {
	rl.once.Do(func() { go rl.gc() })
}

func (rl *RL) gc() {
	ticker := time.NewTicker(30 * time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-rl.stop:
			return
		case <-ticker.C:
			rl.sweep(time.Now())
		}
	}
}

func (rl *RL) sweep(now time.Time) {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	for k, v := range rl.m {
		if now.Sub(v.ts) > rl.ttl {
			delete(rl.m, k)
		}
	}
}

func (rl *RL) size() int {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	return len(rl.m)
}

// Stop 停止 GC goroutine，用于优雅停服。
func (rl *RL) Stop() {
	select {
	case <-rl.stop:
	default:
		close(rl.stop)
	}
}

// RateLimit 返回一个基于 IP+路径的令牌桶限速中间件。
func RateLimit(rl *RL) gin.HandlerFunc {
	rl.Start()
	return func(c *gin.Context) {
		ip := clientIP(c.Request.RemoteAddr)
		key := ip + "|" + c.FullPath()
		if c.FullPath() == "" {
			key = ip + "|" + c.Request.URL.Path
		}
		if !rl.Allow(key) {
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{"error": "too many requests"})
			return
		}
		c.Next()
	}
}

func clientIP(remote string) string {
	host, _, err := net.SplitHostPort(remote)
	if err != nil {
		return remote
	}
	return host
}
