package service

import (
	"time"

	"socialchat/internal/db"
)

type options struct {
	now func() time.Time
}

// Option 调整 service 的可替换依赖。
type Option func(*options)

// WithClock 替换时间来源，时间统一按 UTC 微秒精度存储。
func WithClock(now func() time.Time) Option {
	return func(o *options) {
		o.now = func() time.Time { return now().UTC().Truncate(time.Microsecond) }
	}
}

func buildOptions(opts []Option) options {
	o := options{now: db.Now}
	for _, fn := range opts {
		fn(&o)
	}
	return o
}
