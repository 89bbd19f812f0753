package loadcell

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/taoyao-code/scan-scale/internal/hal/halsim"
	"github.com/taoyao-code/scan-scale/internal/metrics"
)

func TestSampler_RefreshKeepsLastGoodSample(t *testing.T) {
	chip := halsim.NewHX711(2000)
	d := newTestDriver(chip, WithReadTimeout(5*time.Millisecond))
	m := metrics.NewAppMetrics(prometheus.NewRegistry())

	var hooked []WeightSample
	s := NewSampler(d, WithMetrics(m), WithSampleHook(func(ws WeightSample) { hooked = append(hooked, ws) }))
	ctx := context.Background()

	_, ok := s.Latest()
	assert.False(t, ok)

	require.NoError(t, s.Refresh(ctx))
	first, ok := s.Latest()
	require.True(t, ok)
	assert.Equal(t, int32(2000), first.Raw)
	assert.InDelta(t, 20, first.Grams, 1e-4)

	chip.SetReady(false)
	err := s.Refresh(ctx)
	assert.ErrorIs(t, err, ErrSensorTimeout)
	err = s.Refresh(ctx)
	assert.ErrorIs(t, err, ErrSensorTimeout)

	kept, ok := s.Latest()
	require.True(t, ok)
	assert.Equal(t, first, kept)

	h := s.Health()
	assert.Equal(t, 2, h.ConsecutiveFaults)
	assert.NotEmpty(t, h.LastError)
	assert.Equal(t, 2.0, testutil.ToFloat64(m.SensorReadTotal.WithLabelValues("timeout")))

	chip.SetReady(true)
	require.NoError(t, s.Refresh(ctx))
	assert.Equal(t, 0, s.Health().ConsecutiveFaults)
	assert.Len(t, hooked, 2)
}

func TestSampler_PinFaultCounted(t *testing.T) {
	chip := halsim.NewHX711(2000)
	d := newTestDriver(chip)
	m := metrics.NewAppMetrics(prometheus.NewRegistry())
	s := NewSampler(d, WithMetrics(m))
	ctx := context.Background()

	require.NoError(t, s.Refresh(ctx))
	chip.SetWriteError(errors.New("gpio busy"))
	assert.ErrorIs(t, s.Refresh(ctx), ErrPinFault)

	ws, ok := s.Latest()
	require.True(t, ok)
	assert.Equal(t, int32(2000), ws.Raw, "保留上一次有效读数")
	assert.Equal(t, 1, s.Health().ConsecutiveFaults)
	assert.Contains(t, s.Health().LastError, "gpio busy")
	assert.Equal(t, 1.0, testutil.ToFloat64(m.SensorReadTotal.WithLabelValues("pin_fault")))
}

func TestSampler_TareNow(t *testing.T) {
	chip := halsim.NewHX711(3000)
	d := newTestDriver(chip)

	var tareErr error
	tared := 0
	s := NewSampler(d, WithTareHook(func(err error) { tared++; tareErr = err }))
	ctx := context.Background()

	require.NoError(t, s.TareNow(ctx))
	require.NoError(t, s.Refresh(ctx))
	ws, _ := s.Latest()
	assert.InDelta(t, 0, ws.Grams, 1e-6)
	assert.Equal(t, 1, tared)
	assert.NoError(t, tareErr)
	assert.Equal(t, int32(3000), s.Calibration().TareOffset)
}

func TestSampler_RunServesTareRequests(t *testing.T) {
	chip := halsim.NewHX711(4000)
	d := NewDriver(chip.Dout(), chip.Sck())

	done := make(chan error, 1)
	s := NewSampler(d, WithPeriod(time.Millisecond), WithTareHook(func(err error) { done <- err }))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = s.Run(ctx) }()

	// 多次请求合并
	s.Tare()
	s.Tare()

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("tare request not served")
	}
	assert.Equal(t, int32(4000), s.Calibration().TareOffset)

	require.Eventually(t, func() bool {
		ws, ok := s.Latest()
		return ok && ws.Grams == 0
	}, 2*time.Second, 5*time.Millisecond)
}
