package upload

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/taoyao-code/scan-scale/internal/metrics"
)

const (
	DefaultKeyPrefix  = "scanscale:upload"
	defaultMaxRetries = 5
	defaultRetryBase  = time.Second
	defaultPopTimeout = 5 * time.Second
	retryTTL          = 24 * time.Hour
)

var ErrQueueNotInitialized = errors.New("upload queue not initialized")

// DLQRecord 死信记录
type DLQRecord struct {
	EventData string `json:"event_data"`
	Reason    string `json:"reason"`
	Timestamp int64  `json:"timestamp"`
}

// RedisQueue Redis List 持久化的上传队列：RPush 入队，BLPop 消费，超过重试次数进入死信队列
type RedisQueue struct {
	recorder
	redis    *redis.Client
	pusher   *Pusher
	endpoint string
	dedup    *Deduper

	queueKey string
	dlqKey   string
	retryKey string

	maxRetries int
	retryBase  time.Duration
	popTimeout time.Duration
}

// QueueOption 队列选项
type QueueOption func(*RedisQueue)

// WithKeyPrefix Redis key 前缀
func WithKeyPrefix(prefix string) QueueOption {
	return func(q *RedisQueue) {
		if prefix != "" {
			q.setKeys(prefix)
		}
	}
}

// WithDeduper 推送前去重
func WithDeduper(d *Deduper) QueueOption {
	return func(q *RedisQueue) { q.dedup = d }
}

// WithRetry 最大重试次数与退避基数（1x,2x,4x...）
func WithRetry(maxRetries int, base time.Duration) QueueOption {
	return func(q *RedisQueue) {
		if maxRetries > 0 {
			q.maxRetries = maxRetries
		}
		if base > 0 {
			q.retryBase = base
		}
	}
}

// WithPopTimeout BLPop 超时
func WithPopTimeout(d time.Duration) QueueOption {
	return func(q *RedisQueue) {
		if d > 0 {
			q.popTimeout = d
		}
	}
}

// WithQueueMetrics 指标
func WithQueueMetrics(m *metrics.AppMetrics) QueueOption {
	return func(q *RedisQueue) { q.metrics = m }
}

// WithQueueLink 链路状态回调
func WithQueueLink(fn LinkFunc) QueueOption {
	return func(q *RedisQueue) { q.onLink = fn }
}

// NewRedisQueue 创建队列
func NewRedisQueue(client *redis.Client, pusher *Pusher, endpoint string, logger *zap.Logger, opts ...QueueOption) *RedisQueue {
	if logger == nil {
		logger = zap.NewNop()
	}
	q := &RedisQueue{
		recorder:   recorder{logger: logger},
		redis:      client,
		pusher:     pusher,
		endpoint:   endpoint,
		maxRetries: defaultMaxRetries,
		retryBase:  defaultRetryBase,
		popTimeout: defaultPopTimeout,
	}
	q.setKeys(DefaultKeyPrefix)
	for _, opt := range opts {
		opt(q)
	}
	return q
}

func (q *RedisQueue) setKeys(prefix string) {
	q.queueKey = prefix + ":queue"
	q.dlqKey = prefix + ":dlq"
	q.retryKey = prefix + ":retry:"
}

// Deliver 实现 Backend：入队即返回
func (q *RedisQueue) Deliver(ctx context.Context, ev *ScanEvent) error {
	return q.Enqueue(ctx, ev)
}

// Enqueue 入队事件
func (q *RedisQueue) Enqueue(ctx context.Context, ev *ScanEvent) error {
	if q == nil || q.redis == nil {
		return ErrQueueNotInitialized
	}
	data, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}
	if err := q.redis.RPush(ctx, q.queueKey, data).Err(); err != nil {
		q.logger.Error("failed to enqueue event", zap.String("event_id", ev.EventID), zap.Error(err))
		return fmt.Errorf("redis rpush: %w", err)
	}
	q.logger.Debug("event enqueued", zap.String("event_id", ev.EventID), zap.Uint64("tag_id", ev.TagID))
	q.updateGauges(ctx)
	return nil
}

// Run 启动 workers 个消费者，阻塞直到 ctx 取消
func (q *RedisQueue) Run(ctx context.Context, workers int) error {
	if q == nil || q.redis == nil || q.pusher == nil {
		return ErrQueueNotInitialized
	}
	if workers < 1 {
		workers = 1
	}
	q.logger.Info("starting upload queue workers", zap.Int("worker_count", workers), zap.String("endpoint", q.endpoint))

	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(id int) {
			defer wg.Done()
			q.worker(ctx, id)
		}(i + 1)
	}
	wg.Wait()
	return ctx.Err()
}

func (q *RedisQueue) worker(ctx context.Context, workerID int) {
	logger := q.logger.With(zap.Int("worker_id", workerID))
	logger.Info("upload queue worker started")
	defer logger.Info("upload queue worker stopped")

	for ctx.Err() == nil {
		if _, err := q.ProcessOne(ctx); err != nil && ctx.Err() == nil {
			logger.Error("redis blpop error", zap.Error(err))
			if !sleepWithContext(ctx, time.Second) {
				return
			}
		}
	}
}

// ProcessOne 取出并处理一个事件；队列为空（超时）返回 false
func (q *RedisQueue) ProcessOne(ctx context.Context) (bool, error) {
	result, err := q.redis.BLPop(ctx, q.popTimeout, q.queueKey).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return false, nil
		}
		return false, err
	}
	if len(result) < 2 {
		return false, nil
	}
	q.process(ctx, result[1])
	q.updateGauges(ctx)
	return true, nil
}

func (q *RedisQueue) process(ctx context.Context, data string) {
	var ev ScanEvent
	if err := json.Unmarshal([]byte(data), &ev); err != nil {
		q.logger.Error("failed to unmarshal event, dropping", zap.Error(err))
		q.moveToDLQ(ctx, data, "malformed")
		return
	}

	retries, err := q.retryCount(ctx, ev.EventID)
	if err != nil {
		q.logger.Warn("failed to get retry count", zap.String("event_id", ev.EventID), zap.Error(err))
	}
	if retries >= q.maxRetries {
		q.logger.Warn("event exceeded max retries, moving to DLQ",
			zap.String("event_id", ev.EventID), zap.Int("retry_count", retries))
		q.moveToDLQ(ctx, data, "max_retries_exceeded")
		return
	}

	if q.dedup != nil {
		first, err := q.dedup.Claim(ctx, ev.EventID)
		if err != nil {
			q.logger.Warn("dedup check failed, pushing anyway", zap.String("event_id", ev.EventID), zap.Error(err))
		} else if !first {
			if q.metrics != nil {
				q.metrics.DedupHitTotal.Inc()
			}
			return
		}
	}

	started := time.Now()
	code, _, err := q.pusher.SendJSON(ctx, q.endpoint, &ev)
	// 推送结束后的登记不受关闭影响，否则占位与事件都会丢失
	bctx := context.WithoutCancel(ctx)
	if err != nil && ctx.Err() != nil {
		// 关闭中断了推送：不计重试次数，原样放回队尾，下次启动再推
		q.releaseClaim(bctx, ev.EventID)
		q.logger.Info("push interrupted by shutdown, event requeued", zap.String("event_id", ev.EventID))
		q.result("canceled")
		q.requeue(bctx, &ev, data, 0)
		return
	}
	if errors.Is(err, ErrCircuitOpen) {
		// 熔断期间不计重试次数，原样放回队尾
		q.releaseClaim(bctx, ev.EventID)
		q.result("circuit_open")
		q.requeue(ctx, &ev, data, q.retryBase)
		return
	}
	q.pushed(&ev, code, started, err)
	if err == nil {
		q.redis.Del(bctx, q.retryKey+ev.EventID)
		if q.dedup != nil {
			if err := q.dedup.Confirm(bctx, ev.EventID); err != nil {
				q.logger.Warn("failed to mark event pushed", zap.String("event_id", ev.EventID), zap.Error(err))
			}
		}
		return
	}
	q.releaseClaim(bctx, ev.EventID)

	if !Retryable(err) {
		q.moveToDLQ(bctx, data, fmt.Sprintf("client_error_%d", code))
		return
	}

	q.incrRetry(bctx, ev.EventID)
	q.requeue(ctx, &ev, data, q.retryBase*time.Duration(1<<uint(retries)))
}

func (q *RedisQueue) releaseClaim(ctx context.Context, eventID string) {
	if q.dedup == nil {
		return
	}
	if err := q.dedup.Release(ctx, eventID); err != nil {
		q.logger.Warn("failed to release dedup claim", zap.String("event_id", eventID), zap.Error(err))
	}
}

// requeue 退避后放回队尾；关闭中不等待，直接放回
func (q *RedisQueue) requeue(ctx context.Context, ev *ScanEvent, data string, backoff time.Duration) {
	if !sleepWithContext(ctx, backoff) {
		ctx = context.WithoutCancel(ctx)
	}
	if err := q.redis.RPush(ctx, q.queueKey, data).Err(); err != nil {
		q.logger.Error("failed to re-enqueue event", zap.String("event_id", ev.EventID), zap.Error(err))
		q.moveToDLQ(ctx, data, "re_enqueue_failed")
	}
}

func (q *RedisQueue) moveToDLQ(ctx context.Context, data, reason string) {
	rec, _ := json.Marshal(DLQRecord{EventData: data, Reason: reason, Timestamp: time.Now().Unix()})
	if err := q.redis.RPush(context.WithoutCancel(ctx), q.dlqKey, rec).Err(); err != nil {
		q.logger.Error("failed to move event to DLQ", zap.Error(err))
		return
	}
	q.result("dlq")
}

func (q *RedisQueue) retryCount(ctx context.Context, eventID string) (int, error) {
	val, err := q.redis.Get(ctx, q.retryKey+eventID).Result()
	if errors.Is(err, redis.Nil) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	return strconv.Atoi(val)
}

func (q *RedisQueue) incrRetry(ctx context.Context, eventID string) {
	key := q.retryKey + eventID
	if err := q.redis.Incr(ctx, key).Err(); err != nil {
		q.logger.Error("failed to increment retry count", zap.String("event_id", eventID), zap.Error(err))
		return
	}
	q.redis.Expire(ctx, key, retryTTL)
}

// QueueLength 主队列长度
func (q *RedisQueue) QueueLength(ctx context.Context) (int64, error) {
	if q == nil || q.redis == nil {
		return 0, ErrQueueNotInitialized
	}
	return q.redis.LLen(ctx, q.queueKey).Result()
}

// DLQLength 死信队列长度
func (q *RedisQueue) DLQLength(ctx context.Context) (int64, error) {
	if q == nil || q.redis == nil {
		return 0, ErrQueueNotInitialized
	}
	return q.redis.LLen(ctx, q.dlqKey).Result()
}

// DLQEvents 读取死信记录（人工处理）
func (q *RedisQueue) DLQEvents(ctx context.Context, start, stop int64) ([]DLQRecord, error) {
	if q == nil || q.redis == nil {
		return nil, ErrQueueNotInitialized
	}
	raw, err := q.redis.LRange(ctx, q.dlqKey, start, stop).Result()
	if err != nil {
		return nil, err
	}
	out := make([]DLQRecord, 0, len(raw))
	for _, r := range raw {
		var rec DLQRecord
		if err := json.Unmarshal([]byte(r), &rec); err == nil {
			out = append(out, rec)
		}
	}
	return out, nil
}

// Ping Redis 连通性（健康检查）
func (q *RedisQueue) Ping(ctx context.Context) error {
	if q == nil || q.redis == nil {
		return ErrQueueNotInitialized
	}
	return q.redis.Ping(ctx).Err()
}

func (q *RedisQueue) updateGauges(ctx context.Context) {
	if q.metrics == nil {
		return
	}
	if n, err := q.QueueLength(ctx); err == nil {
		q.metrics.UploadQueueSize.WithLabelValues("main").Set(float64(n))
	}
	if n, err := q.DLQLength(ctx); err == nil {
		q.metrics.UploadQueueSize.WithLabelValues("dlq").Set(float64(n))
	}
}

func sleepWithContext(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return true
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
