package reader

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/tarm/serial"
	"go.uber.org/zap"

	"github.com/taoyao-code/scan-scale/internal/metrics"
)

const (
	DefaultBaud        = 9600
	defaultReadTimeout = 250 * time.Millisecond
	defaultReopenDelay = 900 * time.Millisecond
	defaultRetryDelay  = 400 * time.Millisecond
	defaultBufferSize  = 256
)

// Port 已打开的串口
type Port interface {
	io.ReadCloser
}

// Opener 打开串口，测试中可替换
type Opener func(cfg *serial.Config) (Port, error)

func openTarm(cfg *serial.Config) (Port, error) {
	return serial.OpenPort(cfg)
}

// SerialConfig 串口参数
type SerialConfig struct {
	Device      string
	Baud        int
	ReadTimeout time.Duration
	ReopenDelay time.Duration
	BufferSize  int
}

// Serial 基于 tarm/serial 的字节源，断线后自动重开
type Serial struct {
	cfg     SerialConfig
	open    Opener
	logger  *zap.Logger
	metrics *metrics.AppMetrics

	ch chan byte

	mu     sync.Mutex
	status Status
}

// SerialOption 选项
type SerialOption func(*Serial)

// WithOpener 替换串口打开方式
func WithOpener(o Opener) SerialOption {
	return func(s *Serial) {
		if o != nil {
			s.open = o
		}
	}
}

// WithLogger 日志
func WithLogger(l *zap.Logger) SerialOption {
	return func(s *Serial) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithMetrics 指标
func WithMetrics(m *metrics.AppMetrics) SerialOption {
	return func(s *Serial) { s.metrics = m }
}

// NewSerial 创建串口字节源，需调用 Run 启动
func NewSerial(cfg SerialConfig, opts ...SerialOption) *Serial {
	if cfg.Baud <= 0 {
		cfg.Baud = DefaultBaud
	}
	if cfg.ReadTimeout <= 0 {
		cfg.ReadTimeout = defaultReadTimeout
	}
	if cfg.ReopenDelay <= 0 {
		cfg.ReopenDelay = defaultReopenDelay
	}
	if cfg.BufferSize <= 0 {
		cfg.BufferSize = defaultBufferSize
	}
	s := &Serial{
		cfg:    cfg,
		open:   openTarm,
		logger: zap.NewNop(),
		ch:     make(chan byte, cfg.BufferSize),
		status: Status{Device: cfg.Device},
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// TryRead 实现 Source
func (s *Serial) TryRead() (byte, bool) {
	select {
	case b := <-s.ch:
		return b, true
	default:
		return 0, false
	}
}

// Status 当前状态
func (s *Serial) Status() Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.status
}

// Run 打开串口并持续读取，直到 ctx 取消
func (s *Serial) Run(ctx context.Context) error {
	s.logger.Info("serial reader start", zap.String("device", s.cfg.Device), zap.Int("baud", s.cfg.Baud))
	for {
		if ctx.Err() != nil {
			return ctx.Err()
		}

		port, err := s.open(&serial.Config{Name: s.cfg.Device, Baud: s.cfg.Baud, ReadTimeout: s.cfg.ReadTimeout})
		if err != nil {
			s.setError(fmt.Errorf("open %s: %w", s.cfg.Device, err))
			s.count(func(m *metrics.AppMetrics) { m.SerialOpenTotal.WithLabelValues("error").Inc() })
			s.logger.Warn("serial open failed", zap.String("device", s.cfg.Device), zap.Error(err))
			if !sleepWithContext(ctx, s.cfg.ReopenDelay) {
				return ctx.Err()
			}
			continue
		}

		s.setConnected()
		s.count(func(m *metrics.AppMetrics) { m.SerialOpenTotal.WithLabelValues("ok").Inc() })
		s.logger.Info("serial port opened", zap.String("device", s.cfg.Device))

		err = s.stream(ctx, port)
		_ = port.Close()
		if ctx.Err() != nil {
			s.setDisconnected(nil)
			return ctx.Err()
		}
		s.setDisconnected(err)
		s.logger.Warn("serial stream ended, reopening", zap.String("device", s.cfg.Device), zap.Error(err))
		if !sleepWithContext(ctx, defaultRetryDelay) {
			return ctx.Err()
		}
	}
}

func (s *Serial) stream(ctx context.Context, port Port) error {
	buf := make([]byte, 64)
	for {
		if ctx.Err() != nil {
			return nil
		}
		n, err := port.Read(buf)
		// 读超时返回 0 字节（部分平台伴随 io.EOF），视为无数据
		if err != nil && !(errors.Is(err, io.EOF) && n == 0) {
			return err
		}
		if n == 0 {
			continue
		}
		s.push(buf[:n])
	}
}

func (s *Serial) push(data []byte) {
	var dropped uint64
	for _, b := range data {
		select {
		case s.ch <- b:
		default:
			dropped++
		}
	}

	s.mu.Lock()
	s.status.Bytes += uint64(len(data))
	s.status.Dropped += dropped
	s.mu.Unlock()

	s.count(func(m *metrics.AppMetrics) {
		m.SerialBytes.Add(float64(len(data)))
		if dropped > 0 {
			m.SerialDropped.Add(float64(dropped))
		}
	})
}

func (s *Serial) setConnected() {
	s.mu.Lock()
	s.status.Connected = true
	s.status.Opens++
	s.status.LastError = ""
	s.mu.Unlock()
}

func (s *Serial) setDisconnected(err error) {
	s.mu.Lock()
	s.status.Connected = false
	if err != nil {
		s.status.LastError = err.Error()
	}
	s.mu.Unlock()
}

func (s *Serial) setError(err error) {
	s.mu.Lock()
	s.status.Connected = false
	s.status.LastError = err.Error()
	s.mu.Unlock()
}

func (s *Serial) count(fn func(*metrics.AppMetrics)) {
	if s.metrics != nil {
		fn(s.metrics)
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
