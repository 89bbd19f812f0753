package app

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/taoyao-code/scan-scale/internal/metrics"
)

// NewMetrics 初始化注册表与应用指标。deviceID 非空时所有应用指标带 device_id 常量标签，
// 便于多台秤汇聚到同一 Prometheus
func NewMetrics(deviceID string) (*prometheus.Registry, *metrics.AppMetrics) {
	reg := metrics.NewRegistry()
	var r prometheus.Registerer = reg
	if deviceID != "" {
		r = prometheus.WrapRegistererWith(prometheus.Labels{"device_id": deviceID}, reg)
	}
	return reg, metrics.NewAppMetrics(r)
}
