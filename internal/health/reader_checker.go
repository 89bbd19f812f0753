package health

import (
	"context"
	"time"

	"github.com/taoyao-code/scan-scale/internal/reader"
)

// ReaderSource 读卡器状态来源
type ReaderSource interface {
	Status() reader.Status
}

// ReaderChecker 读卡器串口健康检查器
type ReaderChecker struct {
	source ReaderSource
}

// NewReaderChecker 创建读卡器检查器
func NewReaderChecker(source ReaderSource) *ReaderChecker {
	return &ReaderChecker{source: source}
}

// Name 返回检查器名称
func (c *ReaderChecker) Name() string {
	return "reader"
}

// Check 串口未打开视为不健康：没有读卡器就无法刷卡
func (c *ReaderChecker) Check(ctx context.Context) CheckResult {
	start := time.Now()
	st := c.source.Status()

	details := map[string]interface{}{
		"device":  st.Device,
		"opens":   st.Opens,
		"bytes":   st.Bytes,
		"dropped": st.Dropped,
	}

	result := CheckResult{Status: StatusHealthy, Message: "ok", Details: details}
	switch {
	case !st.Connected:
		result.Status = StatusUnhealthy
		result.Message = "serial port not open"
		if st.LastError != "" {
			result.Message += ": " + st.LastError
		}
	case st.Dropped > 0:
		result.Status = StatusDegraded
		result.Message = "bytes dropped"
	}
	result.Latency = time.Since(start)
	return result
}
