// Package scansession 刷卡会话状态机：读卡器在卡片停留期间会连续重发同一张卡，
// 会话在首个字节后开启 2 秒采集窗口，窗口结束时只上报一次 ScanComplete，
// 读卡器静默超过去抖间隔后回到空闲。
package scansession

import (
	"sync"
	"time"

	"github.com/taoyao-code/scan-scale/internal/loadcell"
	"github.com/taoyao-code/scan-scale/internal/protocol/rdm6300"
)

const (
	DefaultWindow   = 2000 * time.Millisecond
	DefaultDebounce = 1000 * time.Millisecond
	// DefaultSentinelTag 去皮卡
	DefaultSentinelTag uint64 = 10622595
)

// State 会话状态
type State int

const (
	Idle         State = iota // 无读卡
	Accumulating              // 采集窗口内
	Expired                   // 窗口已结束，等待读卡器静默
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Accumulating:
		return "accumulating"
	case Expired:
		return "expired"
	default:
		return "unknown"
	}
}

// MarshalText 状态以名称序列化
func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// Session 会话快照
type Session struct {
	State        State     `json:"state"`
	SessionStart time.Time `json:"session_start"`
	LastByte     time.Time `json:"last_byte"`
	CapturedTag  uint64    `json:"captured_tag"`
	HasCapture   bool      `json:"has_capture"`
	Tared        bool      `json:"tared"`
}

// ScanComplete 一次物理刷卡的最终结果
type ScanComplete struct {
	TagID     uint64                `json:"tag_id"`
	Weight    loadcell.WeightSample `json:"weight"`
	HasWeight bool                  `json:"has_weight"`
	At        time.Time             `json:"at"`
}

// Sink 接收 ScanComplete（上传协作方）
type Sink interface {
	Submit(ScanComplete)
}

// SinkFunc 函数适配
type SinkFunc func(ScanComplete)

func (f SinkFunc) Submit(ev ScanComplete) {
	if f != nil {
		f(ev)
	}
}

// Tarer 去皮动作（校准控制器）
type Tarer interface {
	Tare()
}

// TarerFunc 函数适配
type TarerFunc func()

func (f TarerFunc) Tare() {
	if f != nil {
		f()
	}
}

// WeightSource 最新重量来源
type WeightSource interface {
	Latest() (loadcell.WeightSample, bool)
}

// Observer 计数/日志观察者
type Observer interface {
	Record(operation, status string)
}

// ObserverFunc 函数适配
type ObserverFunc func(operation, status string)

func (f ObserverFunc) Record(operation, status string) {
	if f != nil {
		f(operation, status)
	}
}

// NopObserver 空观察者
func NopObserver() Observer {
	return ObserverFunc(func(string, string) {})
}

// TransitionHook 状态迁移回调，snapshot 为迁移后的会话
type TransitionHook func(from, to State, snapshot Session)

// Machine 会话状态机。所有回调在释放锁之后执行
type Machine struct {
	mu sync.Mutex
	s  Session

	window   time.Duration
	debounce time.Duration
	sentinel uint64

	sink     Sink
	tarer    Tarer
	weights  WeightSource
	observer Observer
	hook     TransitionHook
	now      func() time.Time
}

// Option 状态机选项
type Option func(*Machine)

// WithWindow 采集窗口
func WithWindow(d time.Duration) Option {
	return func(m *Machine) {
		if d > 0 {
			m.window = d
		}
	}
}

// WithDebounce 读卡器静默间隔
func WithDebounce(d time.Duration) Option {
	return func(m *Machine) {
		if d > 0 {
			m.debounce = d
		}
	}
}

// WithSentinel 去皮卡卡号
func WithSentinel(tag uint64) Option {
	return func(m *Machine) { m.sentinel = tag }
}

// WithSink 上传协作方
func WithSink(s Sink) Option {
	return func(m *Machine) { m.sink = s }
}

// WithTarer 去皮动作
func WithTarer(t Tarer) Option {
	return func(m *Machine) { m.tarer = t }
}

// WithWeightSource 重量来源
func WithWeightSource(w WeightSource) Option {
	return func(m *Machine) { m.weights = w }
}

// WithObserver 观察者
func WithObserver(o Observer) Option {
	return func(m *Machine) {
		if o != nil {
			m.observer = o
		}
	}
}

// WithTransitionHook 状态迁移回调
func WithTransitionHook(h TransitionHook) Option {
	return func(m *Machine) { m.hook = h }
}

// WithNow 注入时钟
func WithNow(now func() time.Time) Option {
	return func(m *Machine) {
		if now != nil {
			m.now = now
		}
	}
}

// NewMachine 创建状态机
func NewMachine(opts ...Option) *Machine {
	m := &Machine{
		window:   DefaultWindow,
		debounce: DefaultDebounce,
		sentinel: DefaultSentinelTag,
		observer: NopObserver(),
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Now 状态机使用的时钟
func (m *Machine) Now() time.Time { return m.now() }

// OnByte 读卡器每收到一个字节调用一次
func (m *Machine) OnByte(now time.Time) {
	m.mu.Lock()
	effects := m.advanceLocked(now)
	if m.s.State == Idle {
		m.s = Session{SessionStart: now, LastByte: now}
		effects = append(effects, m.transitionLocked(Accumulating))
	}
	m.s.LastByte = now
	m.mu.Unlock()

	run(effects)
}

// OnTag 处理一次解码结果
func (m *Machine) OnTag(tag rdm6300.DecodedTag, now time.Time) {
	m.mu.Lock()
	effects := m.advanceLocked(now)

	switch {
	case !tag.ChecksumOK:
		m.observer.Record("tag", "invalid")
	case m.s.State != Accumulating:
		m.observer.Record("tag", "ignored")
	case tag.TagID == m.sentinel:
		if m.s.Tared {
			m.observer.Record("tag", "sentinel_repeat")
			break
		}
		m.s.Tared = true
		m.observer.Record("tag", "sentinel")
		if m.tarer != nil {
			effects = append(effects, m.tarer.Tare)
		}
	default:
		m.s.CapturedTag = tag.TagID
		m.s.HasCapture = true
		m.observer.Record("tag", "captured")
	}
	m.mu.Unlock()

	run(effects)
}

// Tick 推进基于时间的迁移
func (m *Machine) Tick(now time.Time) {
	m.mu.Lock()
	effects := m.advanceLocked(now)
	m.mu.Unlock()

	run(effects)
}

// Snapshot 当前会话拷贝
func (m *Machine) Snapshot() Session {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.s
}

// Reset 强制回到空闲
func (m *Machine) Reset() {
	m.mu.Lock()
	var effects []func()
	from := m.s.State
	m.s = Session{State: from}
	if from != Idle {
		effects = append(effects, m.transitionLocked(Idle))
	}
	m.mu.Unlock()

	run(effects)
}

// advanceLocked 窗口到期：Accumulating → Expired（有卡号则上报一次）；
// 静默超时：Expired → Idle。采集窗口内静默不会结束会话
func (m *Machine) advanceLocked(now time.Time) []func() {
	var effects []func()

	if m.s.State == Accumulating && now.Sub(m.s.SessionStart) > m.window {
		effects = append(effects, m.transitionLocked(Expired))
		if m.s.HasCapture {
			ev := ScanComplete{TagID: m.s.CapturedTag, At: now}
			if m.weights != nil {
				ev.Weight, ev.HasWeight = m.weights.Latest()
			}
			m.observer.Record("scan", "complete")
			if m.sink != nil {
				sink := m.sink
				effects = append(effects, func() { sink.Submit(ev) })
			}
		} else {
			m.observer.Record("scan", "empty")
		}
	}

	if m.s.State == Expired && now.Sub(m.s.LastByte) > m.debounce {
		m.s = Session{State: Expired}
		effects = append(effects, m.transitionLocked(Idle))
	}

	return effects
}

func (m *Machine) transitionLocked(to State) func() {
	from := m.s.State
	m.s.State = to
	m.observer.Record("transition", from.String()+"->"+to.String())
	if m.hook == nil {
		return func() {}
	}
	hook, snap := m.hook, m.s
	return func() { hook(from, to, snap) }
}

func run(effects []func()) {
	for _, fn := range effects {
		fn()
	}
}
