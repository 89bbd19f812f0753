package health

import (
	"context"
	"fmt"
	"time"

	"github.com/taoyao-code/scan-scale/internal/loadcell"
)

// SensorSource 称重模块健康来源（loadcell.Sampler）
type SensorSource interface {
	Health() loadcell.Health
}

// SensorChecker 称重模块健康检查器
type SensorChecker struct {
	source SensorSource
	// 连续故障达到该值视为不健康
	unhealthyAfter int
	now            func() time.Time
}

// NewSensorChecker 创建称重模块检查器
func NewSensorChecker(source SensorSource, unhealthyAfter int) *SensorChecker {
	if unhealthyAfter <= 0 {
		unhealthyAfter = 50
	}
	return &SensorChecker{source: source, unhealthyAfter: unhealthyAfter, now: time.Now}
}

// Name 返回检查器名称
func (c *SensorChecker) Name() string {
	return "loadcell"
}

// Check 执行健康检查
func (c *SensorChecker) Check(ctx context.Context) CheckResult {
	start := c.now()
	h := c.source.Health()

	details := map[string]interface{}{
		"consecutive_faults": h.ConsecutiveFaults,
	}
	if !h.LastSuccess.IsZero() {
		details["last_success"] = h.LastSuccess
	}
	if h.LastError != "" {
		details["last_error"] = h.LastError
	}

	status := StatusHealthy
	message := "ok"
	switch {
	case h.ConsecutiveFaults >= c.unhealthyAfter:
		status = StatusUnhealthy
		message = fmt.Sprintf("%d consecutive read faults", h.ConsecutiveFaults)
	case h.ConsecutiveFaults > 0:
		status = StatusDegraded
		message = "serving last good sample"
	case h.LastSuccess.IsZero():
		status = StatusDegraded
		message = "no sample yet"
	}

	return CheckResult{Status: status, Message: message, Details: details, Latency: c.now().Sub(start)}
}
