package health

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/redis/go-redis/v9"
)

// DefaultRedisSlowThreshold 单次 PING 往返超过该值视为降级
const DefaultRedisSlowThreshold = 200 * time.Millisecond

// RedisChecker 上传队列所用 Redis 的连通性检查。
// Redis 异常只影响上传，称重与读卡照常，因此最差结果为降级
type RedisChecker struct {
	client *redis.Client
	slow   time.Duration

	lastTimeouts atomic.Uint64
}

// RedisCheckerOption 检查器选项
type RedisCheckerOption func(*RedisChecker)

// WithSlowThreshold PING 慢阈值
func WithSlowThreshold(d time.Duration) RedisCheckerOption {
	return func(c *RedisChecker) {
		if d > 0 {
			c.slow = d
		}
	}
}

// NewRedisChecker 创建检查器
func NewRedisChecker(client *redis.Client, opts ...RedisCheckerOption) *RedisChecker {
	c := &RedisChecker{client: client, slow: DefaultRedisSlowThreshold}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *RedisChecker) Name() string { return "redis" }

// Check PING 往返 + 连接池取连接超时增量
func (c *RedisChecker) Check(ctx context.Context) CheckResult {
	start := time.Now()
	err := c.client.Ping(ctx).Err()
	rtt := time.Since(start)

	stats := c.client.PoolStats()
	cur := uint64(stats.Timeouts)
	newTimeouts := cur - c.lastTimeouts.Swap(cur)

	res := CheckResult{
		Status:  StatusHealthy,
		Message: "ok",
		Latency: rtt,
		Details: map[string]interface{}{
			"rtt_ms":       rtt.Milliseconds(),
			"total_conns":  stats.TotalConns,
			"idle_conns":   stats.IdleConns,
			"new_timeouts": newTimeouts,
		},
	}
	switch {
	case err != nil:
		res.Status = StatusDegraded
		res.Message = fmt.Sprintf("ping failed: %v", err)
	case rtt > c.slow:
		res.Status = StatusDegraded
		res.Message = fmt.Sprintf("slow ping: %s", rtt)
	case newTimeouts > 0:
		res.Status = StatusDegraded
		res.Message = "connection pool timeouts"
	}
	return res
}
