package upload

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const (
	// DefaultDedupTTL 已推送标记保留时长
	DefaultDedupTTL = time.Hour
	// defaultClaimTTL 推送中占位的保留时长，进程崩溃后占位自动过期
	defaultClaimTTL = 2 * time.Minute
)

// 标记取值
const (
	DedupNone    = ""
	DedupPending = "pending"
	DedupPushed  = "pushed"
)

var ErrDeduperNotInitialized = errors.New("deduper not initialized")

// releaseScript 只删除推送中的占位，已推送标记保留
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// Deduper 按 event_id 在 Redis 中记录推送状态：Claim 占位 → Confirm 标记已推送 / Release 释放。
// 队列重放或重复入队的同一刷卡事件只推送一次
type Deduper struct {
	redis    *redis.Client
	logger   *zap.Logger
	prefix   string
	ttl      time.Duration
	claimTTL time.Duration
}

// NewDeduper 创建去重器，ttl<=0 时使用 DefaultDedupTTL
func NewDeduper(redisClient *redis.Client, prefix string, ttl time.Duration, logger *zap.Logger) *Deduper {
	if ttl <= 0 {
		ttl = DefaultDedupTTL
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	claim := defaultClaimTTL
	if claim > ttl {
		claim = ttl
	}
	return &Deduper{redis: redisClient, logger: logger, prefix: prefix + ":dedup:", ttl: ttl, claimTTL: claim}
}

func (d *Deduper) ready(eventID string) error {
	if d == nil || d.redis == nil {
		return ErrDeduperNotInitialized
	}
	if eventID == "" {
		return fmt.Errorf("event_id is empty")
	}
	return nil
}

// Claim 无标记时占位并返回 true；推送中或已推送返回 false
func (d *Deduper) Claim(ctx context.Context, eventID string) (bool, error) {
	if err := d.ready(eventID); err != nil {
		return false, err
	}
	ok, err := d.redis.SetNX(ctx, d.prefix+eventID, DedupPending, d.claimTTL).Result()
	if err != nil {
		return false, fmt.Errorf("redis setnx: %w", err)
	}
	if !ok {
		d.logger.Debug("duplicate scan event skipped", zap.String("event_id", eventID))
	}
	return ok, nil
}

// Confirm 推送成功，标记保留 ttl
func (d *Deduper) Confirm(ctx context.Context, eventID string) error {
	if err := d.ready(eventID); err != nil {
		return err
	}
	return d.redis.Set(ctx, d.prefix+eventID, DedupPushed, d.ttl).Err()
}

// Release 推送失败时释放占位，允许重试
func (d *Deduper) Release(ctx context.Context, eventID string) error {
	if err := d.ready(eventID); err != nil {
		return err
	}
	return releaseScript.Run(ctx, d.redis, []string{d.prefix + eventID}, DedupPending).Err()
}

// State 当前标记：DedupNone / DedupPending / DedupPushed
func (d *Deduper) State(ctx context.Context, eventID string) (string, error) {
	if err := d.ready(eventID); err != nil {
		return DedupNone, err
	}
	v, err := d.redis.Get(ctx, d.prefix+eventID).Result()
	if errors.Is(err, redis.Nil) {
		return DedupNone, nil
	}
	if err != nil {
		return DedupNone, fmt.Errorf("redis get: %w", err)
	}
	return v, nil
}
