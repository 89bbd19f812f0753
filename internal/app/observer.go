package app

import (
	"strings"

	"go.uber.org/zap"

	"github.com/taoyao-code/scan-scale/internal/display"
	"github.com/taoyao-code/scan-scale/internal/metrics"
	"github.com/taoyao-code/scan-scale/internal/scansession"
)

// NewSessionObserver 会话事件 → 指标与 debug 日志
func NewSessionObserver(m *metrics.AppMetrics, logger *zap.Logger) scansession.Observer {
	if logger == nil {
		logger = zap.NewNop()
	}
	return scansession.ObserverFunc(func(operation, status string) {
		switch operation {
		case "transition":
			if m != nil {
				from, to, _ := strings.Cut(status, "->")
				m.SessionTransition.WithLabelValues(from, to).Inc()
			}
		case "scan":
			if status == "complete" && m != nil {
				m.ScanComplete.Inc()
			}
		}
		logger.Debug("session event", zap.String("operation", operation), zap.String("status", status))
	})
}

// NewTransitionHook 状态迁移 → 显示屏与日志
func NewTransitionHook(d display.Display, logger *zap.Logger) scansession.TransitionHook {
	if logger == nil {
		logger = zap.NewNop()
	}
	return func(from, to scansession.State, snap scansession.Session) {
		switch to {
		case scansession.Expired:
			logger.Info("read window closed, waiting for reader to go quiet",
				zap.Bool("captured", snap.HasCapture))
		case scansession.Idle:
			logger.Info("read ended, ready for the next one")
		}
		if d != nil {
			d.ShowState(to)
		}
	}
}
