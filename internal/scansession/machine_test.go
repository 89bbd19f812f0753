package scansession

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/taoyao-code/scan-scale/internal/loadcell"
	"github.com/taoyao-code/scan-scale/internal/protocol/rdm6300"
)

type fakeClock struct {
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Unix(1000, 0)}
}

func (c *fakeClock) Now() time.Time {
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.now = c.now.Add(d)
}

type fixedWeight struct {
	sample loadcell.WeightSample
	ok     bool
}

func (w *fixedWeight) Latest() (loadcell.WeightSample, bool) { return w.sample, w.ok }

type harness struct {
	clock  *fakeClock
	m      *Machine
	events []ScanComplete
	tares  int
	trans  [][2]State
}

func newHarness(t *testing.T, opts ...Option) *harness {
	t.Helper()
	h := &harness{clock: newFakeClock()}
	base := []Option{
		WithNow(h.clock.Now),
		WithDebounce(100 * time.Millisecond),
		WithSink(SinkFunc(func(ev ScanComplete) { h.events = append(h.events, ev) })),
		WithTarer(TarerFunc(func() { h.tares++ })),
		WithTransitionHook(func(from, to State, _ Session) { h.trans = append(h.trans, [2]State{from, to}) }),
	}
	h.m = NewMachine(append(base, opts...)...)
	return h
}

// read 模拟读卡器发送一整帧
func (h *harness) read(tag uint32) {
	f := rdm6300.Encode(0x01, tag)
	for range f.Bytes() {
		h.m.OnByte(h.clock.Now())
	}
	h.m.OnTag(rdm6300.Decode(f), h.clock.Now())
}

func (h *harness) readCorrupt(tag uint32) {
	f := rdm6300.Encode(0x01, tag)
	f[11], f[12] = 'F', 'F'
	h.m.OnByte(h.clock.Now())
	h.m.OnTag(rdm6300.Decode(f), h.clock.Now())
}

// silence 读卡器静默，控制循环每10ms推进一次
func (h *harness) silence(d time.Duration) {
	for elapsed := time.Duration(0); elapsed < d; elapsed += 10 * time.Millisecond {
		h.clock.Advance(10 * time.Millisecond)
		h.m.Tick(h.clock.Now())
	}
}

func TestMachine_RepeatedReadsEmitOnce(t *testing.T) {
	for _, n := range []int{1, 2, 5, 30} {
		h := newHarness(t)
		for i := 0; i < n; i++ {
			h.read(0x00A1B2C3)
			h.clock.Advance(60 * time.Millisecond) // 小于静默间隔
			h.m.Tick(h.clock.Now())
		}
		h.silence(2500 * time.Millisecond)

		require.Len(t, h.events, 1, "n=%d", n)
		assert.Equal(t, uint64(0x00A1B2C3), h.events[0].TagID)
		assert.Equal(t, Idle, h.m.Snapshot().State)
	}
}

func TestMachine_WindowBoundaryNotTagEquality(t *testing.T) {
	h := newHarness(t)
	// 卡片持续停留 3 秒：窗口结束时上报一次，之后的重发全部忽略
	for i := 0; i < 60; i++ {
		h.read(42)
		h.clock.Advance(50 * time.Millisecond)
		h.m.Tick(h.clock.Now())
	}
	require.Len(t, h.events, 1)
	assert.Equal(t, Expired, h.m.Snapshot().State)

	h.silence(200 * time.Millisecond)
	assert.Equal(t, Idle, h.m.Snapshot().State)
	assert.Len(t, h.events, 1)

	// 再次放卡是新的会话
	h.read(42)
	h.silence(2100 * time.Millisecond)
	assert.Len(t, h.events, 2)
}

func TestMachine_LastValidReadWins(t *testing.T) {
	h := newHarness(t)
	h.read(1)
	h.clock.Advance(20 * time.Millisecond)
	h.read(2)
	h.clock.Advance(20 * time.Millisecond)
	h.readCorrupt(3)
	h.silence(2100 * time.Millisecond)

	require.Len(t, h.events, 1)
	assert.Equal(t, uint64(2), h.events[0].TagID)
}

func TestMachine_SentinelTriggersTareOnly(t *testing.T) {
	h := newHarness(t, WithSentinel(10622595))
	for i := 0; i < 10; i++ {
		h.read(10622595)
		h.clock.Advance(50 * time.Millisecond)
		h.m.Tick(h.clock.Now())
	}
	h.silence(2500 * time.Millisecond)

	assert.Equal(t, 1, h.tares)
	assert.Empty(t, h.events)
}

func TestMachine_SentinelDoesNotReplaceCapture(t *testing.T) {
	h := newHarness(t, WithSentinel(99))
	h.read(7)
	h.read(99)
	h.silence(2100 * time.Millisecond)

	assert.Equal(t, 1, h.tares)
	require.Len(t, h.events, 1)
	assert.Equal(t, uint64(7), h.events[0].TagID)
}

func TestMachine_InvalidChecksumNeverCaptured(t *testing.T) {
	var records []string
	h := newHarness(t, WithObserver(ObserverFunc(func(op, status string) {
		records = append(records, op+":"+status)
	})))

	h.readCorrupt(5)
	state := h.m.Snapshot()
	assert.Equal(t, Accumulating, state.State, "byte arrival opens the session")
	assert.False(t, state.HasCapture)

	transitions := len(h.trans)
	h.readCorrupt(5)
	assert.Len(t, h.trans, transitions, "invalid tag causes no transition")

	h.silence(2500 * time.Millisecond)
	assert.Empty(t, h.events)
	assert.Contains(t, records, "tag:invalid")
	assert.Contains(t, records, "scan:empty")
}

func TestMachine_SilenceInsideWindowKeepsSession(t *testing.T) {
	h := newHarness(t)
	h.read(11)
	h.silence(500 * time.Millisecond) // 远超静默间隔，但仍在窗口内
	assert.Equal(t, Accumulating, h.m.Snapshot().State)

	h.silence(1600 * time.Millisecond)
	require.Len(t, h.events, 1)
	assert.Equal(t, Idle, h.m.Snapshot().State)
}

func TestMachine_ExpiredUntilReaderSilent(t *testing.T) {
	h := newHarness(t, WithDebounce(time.Second))
	h.read(11)
	for i := 0; i < 4; i++ {
		h.clock.Advance(500 * time.Millisecond)
		h.read(11)
	}
	h.clock.Advance(time.Millisecond)
	h.read(12) // 窗口已过：触发上报，12 不参与关联
	require.Len(t, h.events, 1)
	assert.Equal(t, uint64(11), h.events[0].TagID)
	assert.Equal(t, Expired, h.m.Snapshot().State)

	h.clock.Advance(900 * time.Millisecond)
	h.m.Tick(h.clock.Now())
	assert.Equal(t, Expired, h.m.Snapshot().State)

	h.clock.Advance(200 * time.Millisecond)
	h.m.Tick(h.clock.Now())
	assert.Equal(t, Idle, h.m.Snapshot().State)
}

func TestMachine_ByteAfterSilenceStartsNewSession(t *testing.T) {
	h := newHarness(t)
	h.read(1)
	h.clock.Advance(2500 * time.Millisecond)
	// 没有 Tick：下一个字节到达时先完成过期与静默判定
	h.read(2)
	h.silence(2100 * time.Millisecond)

	require.Len(t, h.events, 2)
	assert.Equal(t, uint64(1), h.events[0].TagID)
	assert.Equal(t, uint64(2), h.events[1].TagID)
}

func TestMachine_PairsLatestWeight(t *testing.T) {
	w := &fixedWeight{sample: loadcell.WeightSample{Raw: 1234, Grams: 12.34}, ok: true}
	h := newHarness(t, WithWeightSource(w))
	h.read(77)
	w.sample.Grams = 56.78
	h.silence(2100 * time.Millisecond)

	require.Len(t, h.events, 1)
	assert.True(t, h.events[0].HasWeight)
	assert.InDelta(t, 56.78, h.events[0].Weight.Grams, 1e-4)
}

func TestMachine_TransitionsAndReset(t *testing.T) {
	h := newHarness(t)
	h.read(1)
	h.silence(2200 * time.Millisecond)

	assert.Equal(t, [][2]State{
		{Idle, Accumulating},
		{Accumulating, Expired},
		{Expired, Idle},
	}, h.trans)

	h.read(1)
	h.m.Reset()
	assert.Equal(t, Idle, h.m.Snapshot().State)
	assert.Equal(t, [2]State{Accumulating, Idle}, h.trans[len(h.trans)-1])
	h.silence(2500 * time.Millisecond)
	assert.Len(t, h.events, 1)
}

func TestStateString(t *testing.T) {
	assert.Equal(t, "idle", Idle.String())
	assert.Equal(t, "accumulating", Accumulating.String())
	assert.Equal(t, "expired", Expired.String())
	assert.Equal(t, "unknown", State(9).String())
}
