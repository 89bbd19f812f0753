// Package loadcell HX711 两线同步 ADC 驱动与称重校准
package loadcell

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/taoyao-code/scan-scale/internal/hal"
)

var (
	// ErrSensorTimeout 等待 DOUT 就绪超时
	ErrSensorTimeout = errors.New("load cell sensor timeout")
	// ErrPinFault 时序期间 GPIO 写入失败，本次读数不可信
	ErrPinFault = errors.New("load cell gpio fault")
	// ErrInvalidDivisor 比例系数不能为0
	ErrInvalidDivisor = errors.New("scale divisor must not be zero")
)

const (
	rawBits = 24

	defaultReadTimeout  = 500 * time.Millisecond
	defaultPollInterval = 100 * time.Microsecond
	defaultScaleDivisor = 100
	defaultGainPulses   = 1 // 通道A，增益128
	powerUpPulse        = 100 * time.Microsecond
)

// Calibration 称重校准参数，进程生命周期内有效
type Calibration struct {
	TareOffset   int32 `json:"tare_offset"`
	ScaleDivisor int32 `json:"scale_divisor"`
}

// Driver HX711 驱动。时序序列与校准参数由同一把锁串行化
type Driver struct {
	mu   sync.Mutex
	dout hal.InputPin
	sck  hal.OutputPin
	cal  Calibration

	readTimeout  time.Duration
	pollInterval time.Duration
	gainPulses   int

	now   func() time.Time
	sleep func(time.Duration)
}

// Option 驱动选项
type Option func(*Driver)

// WithReadTimeout 等待就绪的上限
func WithReadTimeout(d time.Duration) Option {
	return func(dr *Driver) {
		if d > 0 {
			dr.readTimeout = d
		}
	}
}

// WithPollInterval 就绪轮询间隔
func WithPollInterval(d time.Duration) Option {
	return func(dr *Driver) {
		if d > 0 {
			dr.pollInterval = d
		}
	}
}

// WithScaleDivisor 初始比例系数
func WithScaleDivisor(div int32) Option {
	return func(dr *Driver) {
		if div != 0 {
			dr.cal.ScaleDivisor = div
		}
	}
}

// WithClock 注入时钟（测试用）
func WithClock(now func() time.Time, sleep func(time.Duration)) Option {
	return func(dr *Driver) {
		if now != nil {
			dr.now = now
		}
		if sleep != nil {
			dr.sleep = sleep
		}
	}
}

// NewDriver 创建驱动
func NewDriver(dout hal.InputPin, sck hal.OutputPin, opts ...Option) *Driver {
	d := &Driver{
		dout:         dout,
		sck:          sck,
		cal:          Calibration{ScaleDivisor: defaultScaleDivisor},
		readTimeout:  defaultReadTimeout,
		pollInterval: defaultPollInterval,
		gainPulses:   defaultGainPulses,
		now:          time.Now,
		sleep:        time.Sleep,
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// PowerUp SCK 拉高超过60µs后拉低，使芯片复位上电
func (d *Driver) PowerUp() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.sck.Set(true)
	d.sleep(powerUpPulse)
	d.sck.Set(false)
}

// ReadRaw 读取一次24位原始值（有符号）
func (d *Driver) ReadRaw(ctx context.Context) (int32, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.readRawLocked(ctx)
}

// Tare 以当前读数作为零点；读取失败时保留原零点
func (d *Driver) Tare(ctx context.Context) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	raw, err := d.readRawLocked(ctx)
	if err != nil {
		return fmt.Errorf("tare: %w", err)
	}
	d.cal.TareOffset = raw
	return nil
}

// ReadWeight 返回 (raw - tare_offset) / scale_divisor，保持驱动极性
func (d *Driver) ReadWeight(ctx context.Context) (float32, error) {
	s, err := d.Weigh(ctx)
	if err != nil {
		return 0, err
	}
	return s.Grams, nil
}

// Weigh 读取一次并生成重量样本
func (d *Driver) Weigh(ctx context.Context) (WeightSample, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	raw, err := d.readRawLocked(ctx)
	if err != nil {
		return WeightSample{}, err
	}
	return WeightSample{
		Raw:   raw,
		Grams: d.cal.grams(raw),
		At:    d.now(),
	}, nil
}

// Calibration 当前校准参数
func (d *Driver) Calibration() Calibration {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.cal
}

// SetScaleDivisor 修改比例系数
func (d *Driver) SetScaleDivisor(div int32) error {
	if div == 0 {
		return ErrInvalidDivisor
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	d.cal.ScaleDivisor = div
	return nil
}

func (c Calibration) grams(raw int32) float32 {
	if c.ScaleDivisor == 0 {
		return 0
	}
	return float32(int64(raw)-int64(c.TareOffset)) / float32(c.ScaleDivisor)
}

// readRawLocked 时序：等待 DOUT 低电平，24个时钟高电平期间采样（MSB先），
// 再补 gainPulses 个脉冲选择下一次的通道/增益
func (d *Driver) readRawLocked(ctx context.Context) (int32, error) {
	if err := d.waitReady(ctx); err != nil {
		return 0, err
	}

	var v uint32
	for i := 0; i < rawBits; i++ {
		d.sck.Set(true)
		bit := d.dout.Read()
		d.sck.Set(false)
		v <<= 1
		if bit {
			v |= 1
		}
	}
	for i := 0; i < d.gainPulses; i++ {
		d.sck.Set(true)
		d.sck.Set(false)
	}
	if err := d.takePinErr(); err != nil {
		return 0, err
	}
	return signExtend24(v), nil
}

// takePinErr 取出 SCK 写入错误（含上电复位期间的）
func (d *Driver) takePinErr() error {
	f, ok := d.sck.(hal.Faulter)
	if !ok {
		return nil
	}
	if err := f.TakeErr(); err != nil {
		return fmt.Errorf("%w: %v", ErrPinFault, err)
	}
	return nil
}

// waitReady 有界轮询 DOUT，截止时间取 ctx 与 readTimeout 中较早者
func (d *Driver) waitReady(ctx context.Context) error {
	deadline := d.now().Add(d.readTimeout)
	if dl, ok := ctx.Deadline(); ok && dl.Before(deadline) {
		deadline = dl
	}
	for {
		if !d.dout.Read() {
			return nil
		}
		if err := ctx.Err(); err != nil {
			if errors.Is(err, context.DeadlineExceeded) {
				return ErrSensorTimeout
			}
			return err
		}
		if !d.now().Before(deadline) {
			return ErrSensorTimeout
		}
		d.sleep(d.pollInterval)
	}
}

func signExtend24(v uint32) int32 {
	return int32(v<<(32-rawBits)) >> (32 - rawBits)
}
