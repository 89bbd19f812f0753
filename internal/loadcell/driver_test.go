package loadcell

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/taoyao-code/scan-scale/internal/hal/halsim"
)

type fakeClock struct {
	now time.Time
}

func newFakeClock() *fakeClock { return &fakeClock{now: time.Unix(0, 0)} }

func (c *fakeClock) Now() time.Time          { return c.now }
func (c *fakeClock) Sleep(d time.Duration)   { c.now = c.now.Add(d) }
func (c *fakeClock) Advance(d time.Duration) { c.now = c.now.Add(d) }

func newTestDriver(chip *halsim.HX711, opts ...Option) *Driver {
	clock := newFakeClock()
	opts = append([]Option{WithClock(clock.Now, clock.Sleep)}, opts...)
	return NewDriver(chip.Dout(), chip.Sck(), opts...)
}

func TestReadRaw_SignedValues(t *testing.T) {
	tests := []struct {
		name  string
		value int32
	}{
		{"零", 0},
		{"正数", 123456},
		{"负数", -123456},
		{"最大值", 0x7FFFFF},
		{"最小值", -0x800000},
		{"负一", -1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			chip := halsim.NewHX711(tt.value)
			d := newTestDriver(chip)

			raw, err := d.ReadRaw(context.Background())
			require.NoError(t, err)
			assert.Equal(t, tt.value, raw)
			assert.Equal(t, 1, chip.Conversions())
			// 24个数据位 + 1个增益脉冲
			assert.Equal(t, 25, chip.Pulses())
		})
	}
}

func TestReadRaw_Timeout(t *testing.T) {
	chip := halsim.NewHX711(42)
	chip.SetReady(false)
	d := newTestDriver(chip, WithReadTimeout(50*time.Millisecond), WithPollInterval(time.Millisecond))

	_, err := d.ReadRaw(context.Background())
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrSensorTimeout))
	assert.Equal(t, 0, chip.Pulses(), "no clock pulses while waiting for ready")
}

func TestReadRaw_PinFault(t *testing.T) {
	chip := halsim.NewHX711(1234)
	d := newTestDriver(chip)
	ctx := context.Background()

	chip.SetWriteError(errors.New("sck line broken"))
	_, err := d.ReadRaw(ctx)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrPinFault)
	assert.Contains(t, err.Error(), "sck line broken")

	// 故障期间去皮失败，零点保持不变
	assert.ErrorIs(t, d.Tare(ctx), ErrPinFault)
	assert.Equal(t, int32(0), d.Calibration().TareOffset)

	chip.SetWriteError(nil)
	raw, err := d.ReadRaw(ctx)
	require.NoError(t, err)
	assert.Equal(t, int32(1234), raw)
}

func TestReadRaw_ContextCanceled(t *testing.T) {
	chip := halsim.NewHX711(42)
	chip.SetReady(false)
	d := newTestDriver(chip)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := d.ReadRaw(ctx)
	assert.True(t, errors.Is(err, context.Canceled))
}

func TestTare_ThenWeightNearZero(t *testing.T) {
	chip := halsim.NewHX711(81234)
	d := newTestDriver(chip)
	ctx := context.Background()

	require.NoError(t, d.Tare(ctx))
	assert.Equal(t, int32(81234), d.Calibration().TareOffset)

	w, err := d.ReadWeight(ctx)
	require.NoError(t, err)
	assert.InDelta(t, 0, w, 1e-6)
}

func TestReadWeight_Scaled(t *testing.T) {
	chip := halsim.NewHX711(1000)
	d := newTestDriver(chip, WithScaleDivisor(100))
	ctx := context.Background()
	require.NoError(t, d.Tare(ctx))

	chip.SetValue(1000 + 25000)
	w, err := d.ReadWeight(ctx)
	require.NoError(t, err)
	assert.InDelta(t, 250, w, 1e-3)

	// 驱动不翻转极性
	chip.SetValue(1000 - 5000)
	w, err = d.ReadWeight(ctx)
	require.NoError(t, err)
	assert.InDelta(t, -50, w, 1e-3)
}

func TestTare_FailureKeepsOffset(t *testing.T) {
	chip := halsim.NewHX711(500)
	d := newTestDriver(chip, WithReadTimeout(10*time.Millisecond))
	ctx := context.Background()
	require.NoError(t, d.Tare(ctx))

	chip.SetReady(false)
	err := d.Tare(ctx)
	assert.True(t, errors.Is(err, ErrSensorTimeout))
	assert.Equal(t, int32(500), d.Calibration().TareOffset)
}

func TestSetScaleDivisor(t *testing.T) {
	d := newTestDriver(halsim.NewHX711(0))
	assert.True(t, errors.Is(d.SetScaleDivisor(0), ErrInvalidDivisor))
	require.NoError(t, d.SetScaleDivisor(-420))
	assert.Equal(t, int32(-420), d.Calibration().ScaleDivisor)
}

func TestPowerUp(t *testing.T) {
	clock := newFakeClock()
	chip := halsim.NewHX711(-777)
	chip.SetClock(clock.Now)
	d := NewDriver(chip.Dout(), chip.Sck(), WithClock(clock.Now, clock.Sleep))

	d.PowerUp()
	assert.Equal(t, 1, chip.Resets())

	raw, err := d.ReadRaw(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int32(-777), raw)
}

func TestSignExtend24(t *testing.T) {
	assert.Equal(t, int32(-1), signExtend24(0xFFFFFF))
	assert.Equal(t, int32(-0x800000), signExtend24(0x800000))
	assert.Equal(t, int32(0x7FFFFF), signExtend24(0x7FFFFF))
	assert.Equal(t, int32(1), signExtend24(1))
}
