package loadcell

import (
	"context"
	"errors"
	"runtime"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/taoyao-code/scan-scale/internal/metrics"
)

const defaultRefreshPeriod = 20 * time.Millisecond

// WeightSample 一次称重结果，按固定周期刷新，不持久化
type WeightSample struct {
	Raw   int32     `json:"raw"`
	Grams float32   `json:"grams"`
	At    time.Time `json:"at"`
}

// Health 传感器健康状态
type Health struct {
	ConsecutiveFaults int       `json:"consecutive_faults"`
	LastSuccess       time.Time `json:"last_success"`
	LastError         string    `json:"last_error,omitempty"`
}

// Sampler 在独占 OS 线程上周期读取称重模块并缓存最新样本。
// 去皮请求也在该线程上执行，控制循环只读取缓存
type Sampler struct {
	driver  *Driver
	period  time.Duration
	logger  *zap.Logger
	metrics *metrics.AppMetrics

	tareReq  chan struct{}
	onSample func(WeightSample)
	onTare   func(error)

	mu     sync.RWMutex
	latest WeightSample
	has    bool
	health Health
}

// SamplerOption 采样器选项
type SamplerOption func(*Sampler)

// WithPeriod 刷新周期
func WithPeriod(d time.Duration) SamplerOption {
	return func(s *Sampler) {
		if d > 0 {
			s.period = d
		}
	}
}

// WithLogger 日志
func WithLogger(l *zap.Logger) SamplerOption {
	return func(s *Sampler) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithMetrics 指标
func WithMetrics(m *metrics.AppMetrics) SamplerOption {
	return func(s *Sampler) { s.metrics = m }
}

// WithSampleHook 每次成功刷新后回调（显示屏刷新）
func WithSampleHook(fn func(WeightSample)) SamplerOption {
	return func(s *Sampler) { s.onSample = fn }
}

// WithTareHook 每次去皮完成后回调
func WithTareHook(fn func(error)) SamplerOption {
	return func(s *Sampler) { s.onTare = fn }
}

// NewSampler 创建采样器
func NewSampler(driver *Driver, opts ...SamplerOption) *Sampler {
	s := &Sampler{
		driver:  driver,
		period:  defaultRefreshPeriod,
		logger:  zap.NewNop(),
		tareReq: make(chan struct{}, 1),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Run 阻塞运行直到 ctx 取消
func (s *Sampler) Run(ctx context.Context) error {
	runtime.LockOSThread()
	defer runtime.UnlockOSThread()

	ticker := time.NewTicker(s.period)
	defer ticker.Stop()

	s.logger.Info("load cell sampler started", zap.Duration("period", s.period))
	for {
		select {
		case <-ctx.Done():
			s.logger.Info("load cell sampler stopped")
			return ctx.Err()
		case <-s.tareReq:
			_ = s.TareNow(ctx)
		case <-ticker.C:
			_ = s.Refresh(ctx)
		}
	}
}

// Tare 请求去皮（非阻塞，多次请求合并为一次）
func (s *Sampler) Tare() {
	select {
	case s.tareReq <- struct{}{}:
	default:
	}
}

// TareNow 同步去皮
func (s *Sampler) TareNow(ctx context.Context) error {
	err := s.driver.Tare(ctx)
	if err != nil {
		s.logger.Warn("tare failed, keeping previous offset", zap.Error(err))
		s.count(func(m *metrics.AppMetrics) { m.TareTotal.WithLabelValues("error").Inc() })
	} else {
		s.logger.Info("scale tared", zap.Int32("tare_offset", s.driver.Calibration().TareOffset))
		s.count(func(m *metrics.AppMetrics) { m.TareTotal.WithLabelValues("ok").Inc() })
	}
	if s.onTare != nil {
		s.onTare(err)
	}
	return err
}

// Refresh 读取一次；失败时保留上一次有效样本
func (s *Sampler) Refresh(ctx context.Context) error {
	sample, err := s.driver.Weigh(ctx)
	if err != nil {
		s.recordFault(err)
		return err
	}

	s.mu.Lock()
	s.latest = sample
	s.has = true
	s.health.ConsecutiveFaults = 0
	s.health.LastSuccess = sample.At
	s.health.LastError = ""
	s.mu.Unlock()

	s.count(func(m *metrics.AppMetrics) {
		m.SensorReadTotal.WithLabelValues("ok").Inc()
		m.WeightGrams.Set(float64(sample.Grams))
	})
	if s.onSample != nil {
		s.onSample(sample)
	}
	return nil
}

// Latest 最近一次有效样本
func (s *Sampler) Latest() (WeightSample, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.latest, s.has
}

// Health 健康信息
func (s *Sampler) Health() Health {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.health
}

// PowerUp 复位称重芯片，须在 Run 之前调用
func (s *Sampler) PowerUp() {
	s.driver.PowerUp()
}

// Calibration 当前校准参数
func (s *Sampler) Calibration() Calibration {
	return s.driver.Calibration()
}

func (s *Sampler) recordFault(err error) {
	s.mu.Lock()
	s.health.ConsecutiveFaults++
	s.health.LastError = err.Error()
	first := s.health.ConsecutiveFaults == 1
	s.mu.Unlock()

	result := "error"
	switch {
	case errors.Is(err, ErrSensorTimeout):
		result = "timeout"
	case errors.Is(err, ErrPinFault):
		result = "pin_fault"
	}
	s.count(func(m *metrics.AppMetrics) { m.SensorReadTotal.WithLabelValues(result).Inc() })

	// 连续故障只在第一次打 warn
	if first {
		s.logger.Warn("load cell read failed, keeping last sample", zap.Error(err))
	} else {
		s.logger.Debug("load cell read failed", zap.Error(err))
	}
}

func (s *Sampler) count(fn func(*metrics.AppMetrics)) {
	if s.metrics != nil {
		fn(s.metrics)
	}
}
