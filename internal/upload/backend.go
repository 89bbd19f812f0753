package upload

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/taoyao-code/scan-scale/internal/metrics"
)

// Backend 事件投递方式
type Backend interface {
	Deliver(ctx context.Context, ev *ScanEvent) error
}

// LinkFunc 上传链路状态回调（显示屏 link on）
type LinkFunc func(up bool)

// recorder 推送结果统一记录：日志、指标、链路状态
type recorder struct {
	logger  *zap.Logger
	metrics *metrics.AppMetrics
	onLink  LinkFunc
}

func (r *recorder) pushed(ev *ScanEvent, code int, started time.Time, err error) {
	if r.metrics != nil {
		r.metrics.UploadDuration.Observe(time.Since(started).Seconds())
	}
	if err != nil {
		r.logger.Warn("event push failed",
			zap.String("event_id", ev.EventID),
			zap.String("event_type", string(ev.EventType)),
			zap.Uint64("tag_id", ev.TagID),
			zap.Int("status_code", code),
			zap.Error(err))
		r.result("failed")
		r.link(false)
		return
	}
	r.logger.Info("event pushed",
		zap.String("event_id", ev.EventID),
		zap.String("event_type", string(ev.EventType)),
		zap.Uint64("tag_id", ev.TagID),
		zap.Int("status_code", code))
	r.result("success")
	r.link(true)
}

func (r *recorder) result(result string) {
	if r.metrics != nil {
		r.metrics.UploadTotal.WithLabelValues(result).Inc()
	}
}

func (r *recorder) link(up bool) {
	if r.onLink != nil {
		r.onLink(up)
	}
}

// Direct 直接推送，失败即丢弃（与单片机版本一致，只上传一次）
type Direct struct {
	recorder
	pusher   *Pusher
	endpoint string
}

// NewDirect 创建直推后端
func NewDirect(pusher *Pusher, endpoint string, logger *zap.Logger, m *metrics.AppMetrics, onLink LinkFunc) *Direct {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Direct{
		recorder: recorder{logger: logger, metrics: m, onLink: onLink},
		pusher:   pusher,
		endpoint: endpoint,
	}
}

// Deliver 实现 Backend
func (d *Direct) Deliver(ctx context.Context, ev *ScanEvent) error {
	started := time.Now()
	code, _, err := d.pusher.SendJSON(ctx, d.endpoint, ev)
	if errors.Is(err, ErrCircuitOpen) {
		d.logger.Debug("webhook circuit open, dropping event", zap.String("event_id", ev.EventID))
		d.result("circuit_open")
		return err
	}
	d.pushed(ev, code, started, err)
	return err
}
