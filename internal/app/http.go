package app

import (
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	cfgpkg "github.com/taoyao-code/scan-scale/internal/config"
	"github.com/taoyao-code/scan-scale/internal/httpserver"
	"github.com/taoyao-code/scan-scale/internal/metrics"
)

// NewHTTPServer 根据配置组装本地 HTTP 服务；metrics.enable 为 false 时不挂载 /metrics
func NewHTTPServer(cfg *cfgpkg.Config, reg *prometheus.Registry, ready httpserver.Readiness, logger *zap.Logger, routes ...httpserver.RegisterFunc) *httpserver.Server {
	opts := []httpserver.Option{
		httpserver.WithReadiness(ready),
		httpserver.WithLogger(logger.Named("http")),
		httpserver.WithRoutes(routes...),
	}
	if cfg.Metrics.Enable && reg != nil {
		opts = append(opts, httpserver.WithMetrics(cfg.Metrics.Path, metrics.Handler(reg)))
	}
	return httpserver.New(cfg.HTTP, opts...)
}
