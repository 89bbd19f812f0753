package app

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/taoyao-code/scan-scale/internal/metrics"
	"github.com/taoyao-code/scan-scale/internal/protocol/rdm6300"
	"github.com/taoyao-code/scan-scale/internal/reader"
	"github.com/taoyao-code/scan-scale/internal/scansession"
)

// DefaultPollInterval 控制循环空闲间隔
const DefaultPollInterval = 5 * time.Millisecond

// Controller 单协程协作式控制循环：逐字节喂给帧组装器与会话状态机，
// 解码完整帧，推进基于时间的迁移。称重读取在采样线程上，不在此循环中
type Controller struct {
	source  reader.Source
	asm     *rdm6300.Assembler
	machine *scansession.Machine
	poll    time.Duration
	logger  *zap.Logger
	metrics *metrics.AppMetrics
}

// ControllerOption 选项
type ControllerOption func(*Controller)

// WithPollInterval 空闲间隔
func WithPollInterval(d time.Duration) ControllerOption {
	return func(c *Controller) {
		if d > 0 {
			c.poll = d
		}
	}
}

// WithLogger 日志
func WithLogger(l *zap.Logger) ControllerOption {
	return func(c *Controller) {
		if l != nil {
			c.logger = l
		}
	}
}

// WithMetrics 指标
func WithMetrics(m *metrics.AppMetrics) ControllerOption {
	return func(c *Controller) { c.metrics = m }
}

// NewController 创建控制循环
func NewController(source reader.Source, machine *scansession.Machine, opts ...ControllerOption) *Controller {
	c := &Controller{
		source:  source,
		asm:     rdm6300.NewAssembler(),
		machine: machine,
		poll:    DefaultPollInterval,
		logger:  zap.NewNop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Run 循环直到 ctx 取消
func (c *Controller) Run(ctx context.Context) error {
	c.logger.Info("control loop started", zap.Duration("poll_interval", c.poll))
	t := time.NewTicker(c.poll)
	defer t.Stop()
	for {
		c.Step()
		select {
		case <-ctx.Done():
			c.logger.Info("control loop stopped")
			return ctx.Err()
		case <-t.C:
		}
	}
}

// Step 读完当前可用的全部字节并推进状态机，返回处理的字节数。
// 没有数据时只推进时间，不改变组装器状态
func (c *Controller) Step() int {
	n := 0
	for {
		b, ok := c.source.TryRead()
		if !ok {
			break
		}
		n++
		now := c.machine.Now()
		c.machine.OnByte(now)

		res, frame := c.asm.Feed(b)
		switch res {
		case rdm6300.Incomplete:
		case rdm6300.Frame:
			c.onFrame(frame, now)
		default:
			c.logger.Debug("frame dropped", zap.Stringer("result", res), zap.Error(res.Err()))
			c.count(func(m *metrics.AppMetrics) { m.FrameTotal.WithLabelValues(res.String()).Inc() })
		}
	}
	c.machine.Tick(c.machine.Now())
	return n
}

func (c *Controller) onFrame(f rdm6300.RawFrame, now time.Time) {
	c.count(func(m *metrics.AppMetrics) { m.FrameTotal.WithLabelValues(rdm6300.Frame.String()).Inc() })

	tag := rdm6300.Decode(f)
	result := "ok"
	switch {
	case errors.Is(tag.Fault, rdm6300.ErrInvalidHex):
		result = "invalid_hex"
	case !tag.ChecksumOK:
		result = "checksum_mismatch"
	}
	c.count(func(m *metrics.AppMetrics) { m.DecodeTotal.WithLabelValues(result).Inc() })

	if tag.ChecksumOK {
		c.logger.Debug("tag decoded", zap.Uint64("tag_id", tag.TagID), zap.Uint16("version", tag.Version))
	} else {
		c.logger.Debug("tag rejected", zap.String("frame", f.String()), zap.String("result", result))
	}
	c.machine.OnTag(tag, now)
}

func (c *Controller) count(fn func(*metrics.AppMetrics)) {
	if c.metrics != nil {
		fn(c.metrics)
	}
}
