package upload

import (
	"errors"
	"sync"
	"time"
)

// BreakerState 熔断器状态
type BreakerState int

const (
	BreakerClosed   BreakerState = iota // 正常推送
	BreakerOpen                         // 熔断，推送直接失败
	BreakerHalfOpen                     // 冷却结束，放行一次试探
)

func (s BreakerState) String() string {
	switch s {
	case BreakerClosed:
		return "closed"
	case BreakerOpen:
		return "open"
	case BreakerHalfOpen:
		return "half_open"
	default:
		return "unknown"
	}
}

// ErrCircuitOpen Webhook 熔断中
var ErrCircuitOpen = errors.New("webhook circuit open")

const (
	defaultBreakerThreshold = 5
	defaultBreakerCooldown  = 30 * time.Second
)

// Breaker Webhook 熔断器：连续 threshold 次可重试失败后熔断 cooldown，
// 冷却后只放行一次试探，试探成功恢复，失败重新熔断
type Breaker struct {
	mu       sync.Mutex
	state    BreakerState
	failures int
	openedAt time.Time
	probing  bool
	trips    int64

	threshold int
	cooldown  time.Duration
	now       func() time.Time
	onChange  func(from, to BreakerState)
}

// BreakerStats 熔断器统计
type BreakerStats struct {
	State    string    `json:"state"`
	Failures int       `json:"failures"`
	Trips    int64     `json:"trips"`
	OpenedAt time.Time `json:"opened_at,omitempty"`
}

// NewBreaker 创建熔断器
func NewBreaker(threshold int, cooldown time.Duration) *Breaker {
	if threshold <= 0 {
		threshold = defaultBreakerThreshold
	}
	if cooldown <= 0 {
		cooldown = defaultBreakerCooldown
	}
	return &Breaker{threshold: threshold, cooldown: cooldown, now: time.Now}
}

// WithNow 注入时钟（测试）
func (b *Breaker) WithNow(now func() time.Time) *Breaker {
	if now != nil {
		b.now = now
	}
	return b
}

// OnStateChange 状态变化回调，在锁外同步调用
func (b *Breaker) OnStateChange(fn func(from, to BreakerState)) *Breaker {
	b.mu.Lock()
	b.onChange = fn
	b.mu.Unlock()
	return b
}

// Allow 推送前检查
func (b *Breaker) Allow() error {
	b.mu.Lock()
	var notify func()
	defer func() {
		b.mu.Unlock()
		if notify != nil {
			notify()
		}
	}()

	switch b.state {
	case BreakerOpen:
		if b.now().Sub(b.openedAt) < b.cooldown {
			return ErrCircuitOpen
		}
		notify = b.transitionLocked(BreakerHalfOpen)
		b.probing = true
		return nil
	case BreakerHalfOpen:
		if b.probing {
			return ErrCircuitOpen
		}
		b.probing = true
		return nil
	default:
		return nil
	}
}

// Record 记录推送结果；只有网络错误与 5xx 计入失败
func (b *Breaker) Record(err error) {
	b.mu.Lock()
	var notify func()
	defer func() {
		b.mu.Unlock()
		if notify != nil {
			notify()
		}
	}()

	b.probing = false
	if err == nil || !Retryable(err) {
		b.failures = 0
		if b.state != BreakerClosed {
			notify = b.transitionLocked(BreakerClosed)
		}
		return
	}

	b.failures++
	if b.state == BreakerHalfOpen || b.failures >= b.threshold {
		b.openedAt = b.now()
		if b.state != BreakerOpen {
			b.trips++
			notify = b.transitionLocked(BreakerOpen)
		}
	}
}

// Abort 推送被取消：释放半开试探名额，不计成功也不计失败
func (b *Breaker) Abort() {
	b.mu.Lock()
	b.probing = false
	b.mu.Unlock()
}

// State 当前状态
func (b *Breaker) State() BreakerState {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}

// Cooldown 熔断时长
func (b *Breaker) Cooldown() time.Duration { return b.cooldown }

// Stats 统计信息
func (b *Breaker) Stats() BreakerStats {
	b.mu.Lock()
	defer b.mu.Unlock()
	return BreakerStats{State: b.state.String(), Failures: b.failures, Trips: b.trips, OpenedAt: b.openedAt}
}

func (b *Breaker) transitionLocked(to BreakerState) func() {
	from := b.state
	b.state = to
	if b.onChange == nil || from == to {
		return nil
	}
	fn := b.onChange
	return func() { fn(from, to) }
}
