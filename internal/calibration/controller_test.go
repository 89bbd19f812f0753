package calibration

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/taoyao-code/scan-scale/internal/hal/halsim"
	"github.com/taoyao-code/scan-scale/internal/loadcell"
	"github.com/taoyao-code/scan-scale/internal/protocol/rdm6300"
	"github.com/taoyao-code/scan-scale/internal/scansession"
)

type countingTarer struct{ n int }

func (t *countingTarer) Tare() { t.n++ }

func TestController_Forwards(t *testing.T) {
	tarer := &countingTarer{}
	c := New(tarer, 10622595, zap.NewNop())

	assert.True(t, c.LastRequest().IsZero())
	c.Tare()
	assert.Equal(t, 1, tarer.n)
	assert.Equal(t, int64(1), c.Requests())
	assert.False(t, c.LastRequest().IsZero())
	assert.Equal(t, uint64(10622595), c.Sentinel())
}

// 去皮卡经过状态机触发真实驱动去皮
func TestController_SentinelRezeroesDriver(t *testing.T) {
	chip := halsim.NewHX711(5000)
	driver := loadcell.NewDriver(chip.Dout(), chip.Sck())
	sampler := loadcell.NewSampler(driver)

	ctrl := New(scansession.TarerFunc(func() {
		require.NoError(t, sampler.TareNow(context.Background()))
	}), 10622595, nil)

	now := time.Unix(0, 0)
	m := scansession.NewMachine(scansession.WithTarer(ctrl), scansession.WithNow(func() time.Time { return now }))

	f := rdm6300.Encode(0x01, 10622595)
	m.OnByte(now)
	m.OnTag(rdm6300.Decode(f), now)

	assert.Equal(t, int64(1), ctrl.Requests())
	assert.Equal(t, int32(5000), driver.Calibration().TareOffset)

	w, err := driver.ReadWeight(context.Background())
	require.NoError(t, err)
	assert.InDelta(t, 0, w, 1e-6)
}
