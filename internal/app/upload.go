package app

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	cfgpkg "github.com/taoyao-code/scan-scale/internal/config"
	"github.com/taoyao-code/scan-scale/internal/health"
	"github.com/taoyao-code/scan-scale/internal/metrics"
	"github.com/taoyao-code/scan-scale/internal/upload"
)

// Uploader 上传管道：内存缓冲 → 直推或 Redis 队列
type Uploader struct {
	Dispatcher *upload.Dispatcher
	Queue      *upload.RedisQueue
	Redis      *redis.Client
	Breaker    *upload.Breaker

	workers int
}

// NewUploader 按配置组装上传管道；未启用时返回 nil
func NewUploader(cfg *cfgpkg.Config, logger *zap.Logger, m *metrics.AppMetrics, onLink upload.LinkFunc) (*Uploader, error) {
	uc := cfg.Upload
	if !uc.Enable {
		logger.Info("upload disabled")
		return nil, nil
	}

	log := logger.Named("upload")
	breaker := upload.NewBreaker(uc.BreakerThreshold, uc.BreakerCooldown).
		OnStateChange(func(from, to upload.BreakerState) {
			log.Warn("webhook circuit state changed",
				zap.Stringer("from", from), zap.Stringer("to", to))
			if m != nil {
				m.UploadCircuit.Set(float64(to))
			}
			if to == upload.BreakerOpen && onLink != nil {
				onLink(false)
			}
		})
	pusher := upload.NewPusher(&http.Client{Timeout: uc.Timeout}, uc.APIKey, uc.Secret).
		WithRateLimit(uc.RateLimit, uc.Burst).
		WithBreaker(breaker)
	if uc.Retries > 0 {
		pusher.Retries = uc.Retries
	}

	u := &Uploader{workers: uc.Workers, Breaker: breaker}
	var backend upload.Backend
	switch uc.Mode {
	case "redis":
		client, err := NewRedisClient(cfg.Redis, log)
		if err != nil {
			return nil, err
		}
		u.Redis = client
		prefix := cfg.Redis.KeyPrefix
		if prefix == "" {
			prefix = upload.DefaultKeyPrefix
		}
		opts := []upload.QueueOption{
			upload.WithKeyPrefix(prefix),
			upload.WithQueueMetrics(m),
			upload.WithQueueLink(onLink),
		}
		if uc.MaxRetries > 0 {
			opts = append(opts, upload.WithRetry(uc.MaxRetries, 0))
		}
		if uc.DedupTTL > 0 {
			opts = append(opts, upload.WithDeduper(upload.NewDeduper(client, prefix, uc.DedupTTL, log)))
		}
		u.Queue = upload.NewRedisQueue(client, pusher, uc.URL, log, opts...)
		backend = u.Queue
	case "direct", "":
		backend = upload.NewDirect(pusher, uc.URL, log, m, onLink)
	default:
		return nil, fmt.Errorf("unknown upload mode %q", uc.Mode)
	}

	u.Dispatcher = upload.NewDispatcher(backend, uc.MemoryQueue, uc.Timeout, log, m)
	log.Info("upload enabled", zap.String("mode", uc.Mode), zap.String("url", uc.URL))
	return u, nil
}

// Submit 实现 Submitter
func (u *Uploader) Submit(ev *upload.ScanEvent) bool {
	return u.Dispatcher.Submit(ev)
}

// RunQueue 运行 Redis 队列消费者；直推模式直接等待 ctx
func (u *Uploader) RunQueue(ctx context.Context) error {
	if u.Queue == nil {
		<-ctx.Done()
		return ctx.Err()
	}
	return u.Queue.Run(ctx, u.workers)
}

// Check 上传链路健康：熔断或本地缓冲积压视为降级，不影响称重读卡
func (u *Uploader) Check(ctx context.Context) health.CheckResult {
	start := time.Now()
	stats := u.Breaker.Stats()
	details := map[string]interface{}{
		"circuit":  stats.State,
		"failures": stats.Failures,
		"trips":    stats.Trips,
		"pending":  u.Dispatcher.Pending(),
	}
	if u.Queue != nil {
		if n, err := u.Queue.QueueLength(ctx); err == nil {
			details["queue"] = n
		}
		if n, err := u.Queue.DLQLength(ctx); err == nil {
			details["dlq"] = n
		}
	}

	status, message := health.StatusHealthy, "ok"
	if stats.State != upload.BreakerClosed.String() {
		status, message = health.StatusDegraded, "webhook circuit "+stats.State
	}
	return health.CheckResult{Status: status, Message: message, Details: details, Latency: time.Since(start)}
}

// Close 释放 Redis 连接
func (u *Uploader) Close() {
	if u.Redis != nil {
		_ = u.Redis.Close()
	}
}
