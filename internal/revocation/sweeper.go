package revocation

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"socialchat/internal/metrics"

	"github.com/rs/zerolog/log"
)

type sweepable interface {
	Sweep(ctx context.Context, now time.Time) (int64, error)
}

// Sweeper 按固定周期清理过期的吊销记录，由 main 启动并在停服时停止。
type Sweeper struct {
	store    sweepable
	interval time.Duration
	now      func() time.Time
	stop     chan struct{}
	done     chan struct{}
	once     sync.Once
	started  atomic.Bool
}

func NewSweeper(store sweepable, interval time.Duration) *Sweeper {
	return &Sweeper{
		store:    store,
		interval: interval,
		now:      time.Now,
		stop:     make(chan struct{}),
		done:     make(chan struct{}),
	}
}

// Start 启动后台 goroutine，重复调用无效果。
func (sw *Sweeper) Start() {
	if !sw.started.CompareAndSwap(false, true) {
		return
	}
	go sw.loop()
}

func (sw *Sweeper) loop() {
	defer close(sw.done)
	ticker := time.NewTicker(sw.interval)
	defer ticker.Stop()
	for {
		select {
		case <-sw.stop:
			return
		case <-ticker.C:
			sw.RunOnce(context.Background())
		}
	}
}

// RunOnce 执行一次清理；出错只记录日志，下个周期继续。
func (sw *Sweeper) RunOnce(ctx context.Context) int64 {
	ctx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()
	n, err := sw.store.Sweep(ctx, sw.now())
	if err != nil {
		log.Error().Err(err).Msg("revocation sweep")
		return 0
	}
	metrics.RevocationsSwept.Add(float64(n))
	log.Info().Int64("removed", n).Msg("revocation sweep")
	return n
}

// Stop 停止后台 goroutine 并等待其退出，可重复调用。
func (sw *Sweeper) Stop() {
	sw.once.Do(func() {
		close(sw.stop)
	})
	if sw.started.Load() {
		<-sw.done
	}
}
