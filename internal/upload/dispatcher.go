package upload

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/taoyao-code/scan-scale/internal/metrics"
)

const (
	defaultMemoryQueue    = 32
	defaultDeliverTimeout = 10 * time.Second
)

// Dispatcher 内存缓冲 + 单 worker。Submit 永不阻塞，缓冲满时丢弃
type Dispatcher struct {
	backend Backend
	logger  *zap.Logger
	metrics *metrics.AppMetrics
	timeout time.Duration
	ch      chan *ScanEvent
}

// NewDispatcher 创建分发器
func NewDispatcher(backend Backend, size int, timeout time.Duration, logger *zap.Logger, m *metrics.AppMetrics) *Dispatcher {
	if size <= 0 {
		size = defaultMemoryQueue
	}
	if timeout <= 0 {
		timeout = defaultDeliverTimeout
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Dispatcher{backend: backend, logger: logger, metrics: m, timeout: timeout, ch: make(chan *ScanEvent, size)}
}

// Submit 非阻塞提交
func (d *Dispatcher) Submit(ev *ScanEvent) bool {
	select {
	case d.ch <- ev:
		d.gauge()
		return true
	default:
		d.logger.Warn("upload buffer full, dropping event",
			zap.String("event_id", ev.EventID), zap.Uint64("tag_id", ev.TagID))
		if d.metrics != nil {
			d.metrics.UploadTotal.WithLabelValues("dropped").Inc()
		}
		return false
	}
}

// Pending 缓冲中的事件数
func (d *Dispatcher) Pending() int { return len(d.ch) }

// Run 消费缓冲直到 ctx 取消；退出前尽量投递剩余事件
func (d *Dispatcher) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			d.flush()
			return ctx.Err()
		case ev := <-d.ch:
			d.gauge()
			d.deliver(ctx, ev)
		}
	}
}

func (d *Dispatcher) deliver(parent context.Context, ev *ScanEvent) {
	ctx, cancel := context.WithTimeout(parent, d.timeout)
	defer cancel()
	if err := d.backend.Deliver(ctx, ev); err != nil {
		d.logger.Debug("deliver failed", zap.String("event_id", ev.EventID), zap.Error(err))
	}
}

func (d *Dispatcher) flush() {
	ctx, cancel := context.WithTimeout(context.Background(), d.timeout)
	defer cancel()
	for {
		select {
		case ev := <-d.ch:
			d.deliver(ctx, ev)
		default:
			d.gauge()
			return
		}
	}
}

func (d *Dispatcher) gauge() {
	if d.metrics != nil {
		d.metrics.UploadQueueSize.WithLabelValues("memory").Set(float64(len(d.ch)))
	}
}
