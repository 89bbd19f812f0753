package display

import (
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"github.com/taoyao-code/scan-scale/internal/loadcell"
	"github.com/taoyao-code/scan-scale/internal/scansession"
)

func TestBoard_SessionScreens(t *testing.T) {
	b := NewBoard()
	assert.True(t, b.Ready())
	assert.Equal(t, LineReady, b.Snapshot().Lines[0])

	b.ShowState(scansession.Accumulating)
	assert.False(t, b.Ready())
	assert.Empty(t, b.Snapshot().Lines[0])

	b.ShowScan(Scan{TagID: 10600000, Grams: 250, HasWeight: true, Item: "Pokemon cards", Count: 143})
	b.ShowState(scansession.Expired)
	s := b.Snapshot()
	assert.Equal(t, "Pokemon cards x143", s.Lines[0])
	assert.Equal(t, LineRemove, s.Lines[1])
	assert.Equal(t, "uploading 10600000", s.Lines[2])
	assert.Equal(t, "250 g", s.Lines[3])
	assert.False(t, s.Ready)

	b.ShowState(scansession.Idle)
	s = b.Snapshot()
	assert.Equal(t, LineReady, s.Lines[0])
	assert.Empty(t, s.Lines[1])
	assert.Empty(t, s.Lines[2])
	assert.True(t, s.Ready)
}

func TestBoard_WeightLine(t *testing.T) {
	tests := []struct {
		name   string
		invert bool
		grams  float32
		link   bool
		want   string
	}{
		{"正常", false, 12.6, false, "13 g"},
		{"极性翻转", true, 12.4, false, "-12 g"},
		{"链路在线", false, 5, true, "5 g      link on"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b := NewBoard(WithInvert(tt.invert))
			b.SetLink(tt.link)
			b.ShowWeight(loadcell.WeightSample{Grams: tt.grams})
			assert.Equal(t, tt.want, b.Snapshot().Lines[3])
		})
	}
}

func TestBoard_TruncatesToWidth(t *testing.T) {
	b := NewBoard()
	tests := []struct {
		name string
		item string
		want string
	}{
		{"英文名称", "a very long item label indeed", "a very long item  x3"},
		{"中文名称按字符截断", "十字螺丝刀套装精密维修工具箱组合加长款", "十字螺丝刀套装精密维修工具箱组合加 x3"},
		{"短名称不截断", "螺丝", "螺丝 x3"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b := NewBoard()
			b.ShowScan(Scan{TagID: 1, Item: tt.item, Count: 3})
			line := b.Snapshot().Lines[0]
			assert.Equal(t, tt.want, line)
			assert.True(t, utf8.ValidString(line))
			assert.LessOrEqual(t, utf8.RuneCountInString(line), Cols)
		})
	}

	b = NewBoard()
	b.ShowScan(Scan{TagID: 12345678901234567890, Item: "x"})
	assert.Equal(t, Cols, utf8.RuneCountInString(b.Snapshot().Lines[2]))
}

func TestMultiAndLog(t *testing.T) {
	core, logs := observer.New(zap.InfoLevel)
	b := NewBoard()
	d := Multi(b, NewLog(zap.New(core), true))

	d.ShowState(scansession.Accumulating)
	d.ShowWeight(loadcell.WeightSample{Grams: 1})
	d.ShowScan(Scan{TagID: 9})

	assert.False(t, b.Ready())
	assert.Equal(t, 1, logs.FilterMessage("session state").Len())
	assert.Equal(t, 1, logs.FilterMessage("uploading").Len())
	assert.Equal(t, 0, logs.FilterMessage("weight").Len(), "weight logged at debug only")
}
