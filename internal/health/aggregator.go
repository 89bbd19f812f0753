package health

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"
)

const defaultCheckTimeout = 2 * time.Second

// Aggregator 健康检查聚合器。每个检查器单独限时，超时记为不健康
type Aggregator struct {
	mu       sync.RWMutex
	checkers []Checker
	timeout  time.Duration
	now      func() time.Time
}

// NewAggregator 创建聚合器
func NewAggregator(checkers ...Checker) *Aggregator {
	return &Aggregator{checkers: checkers, timeout: defaultCheckTimeout, now: time.Now}
}

// WithTimeout 单个检查的超时
func (a *Aggregator) WithTimeout(d time.Duration) *Aggregator {
	if d > 0 {
		a.timeout = d
	}
	return a
}

// AddChecker 添加检查器
func (a *Aggregator) AddChecker(checker Checker) {
	if checker == nil {
		return
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	a.checkers = append(a.checkers, checker)
}

// CheckAll 并发执行所有检查
func (a *Aggregator) CheckAll(ctx context.Context) map[string]CheckResult {
	a.mu.RLock()
	checkers := append([]Checker(nil), a.checkers...)
	a.mu.RUnlock()

	results := make(map[string]CheckResult, len(checkers))
	var (
		resultsMu sync.Mutex
		wg        sync.WaitGroup
	)
	for _, checker := range checkers {
		wg.Add(1)
		go func(c Checker) {
			defer wg.Done()
			result := a.checkOne(ctx, c)
			resultsMu.Lock()
			results[c.Name()] = result
			resultsMu.Unlock()
		}(checker)
	}
	wg.Wait()
	return results
}

func (a *Aggregator) checkOne(parent context.Context, c Checker) CheckResult {
	ctx, cancel := context.WithTimeout(parent, a.timeout)
	defer cancel()

	done := make(chan CheckResult, 1)
	go func() { done <- c.Check(ctx) }()

	select {
	case r := <-done:
		return r
	case <-ctx.Done():
		return CheckResult{
			Status:  StatusUnhealthy,
			Message: fmt.Sprintf("check timed out after %s", a.timeout),
			Latency: a.timeout,
		}
	}
}

// Report 一次检查生成完整报告
func (a *Aggregator) Report(ctx context.Context) HealthReport {
	checks := a.CheckAll(ctx)
	return HealthReport{Status: Overall(checks), Timestamp: a.now(), Checks: checks}
}

// OverallStatus 计算总体健康状态
func (a *Aggregator) OverallStatus(ctx context.Context) Status {
	return Overall(a.CheckAll(ctx))
}

// Overall 取各组件中最差的状态
func Overall(results map[string]CheckResult) Status {
	worst := StatusHealthy
	for _, r := range results {
		if r.Status.rank() > worst.rank() {
			worst = r.Status
		}
	}
	return worst
}

// Ready 降级仍然就绪，只有不健康才不就绪
func (a *Aggregator) Ready(ctx context.Context) bool {
	return a.OverallStatus(ctx) != StatusUnhealthy
}

// Alive 进程能响应即存活
func (a *Aggregator) Alive() bool {
	return true
}

// HealthReport 健康报告
type HealthReport struct {
	Status    Status                 `json:"status"`
	Timestamp time.Time              `json:"timestamp"`
	Checks    map[string]CheckResult `json:"checks"`
}

// Failing 非健康组件名，按名称排序
func (r HealthReport) Failing() []string {
	out := []string{}
	for name, res := range r.Checks {
		if res.Status != StatusHealthy {
			out = append(out, name)
		}
	}
	sort.Strings(out)
	return out
}
