// Package httpserver 称重终端的本地 HTTP 服务：存活/就绪探针、指标与业务路由
package httpserver

import (
	"context"
	"errors"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	cfgpkg "github.com/taoyao-code/scan-scale/internal/config"
)

// RegisterFunc 额外路由注册（/api、/health 等）
type RegisterFunc func(r *gin.Engine)

// Readiness 就绪来源，Pending 列出尚未就绪的部件
type Readiness interface {
	Ready() bool
	Pending() []string
}

type options struct {
	metricsPath    string
	metricsHandler http.Handler
	readiness      Readiness
	logger         *zap.Logger
	routes         []RegisterFunc
}

// Option 服务选项
type Option func(*options)

// WithMetrics 挂载 Prometheus 处理器，path 为空时使用 /metrics
func WithMetrics(path string, h http.Handler) Option {
	return func(o *options) {
		if path != "" {
			o.metricsPath = path
		}
		o.metricsHandler = h
	}
}

// WithReadiness /readyz 的就绪来源，未设置时始终就绪
func WithReadiness(r Readiness) Option {
	return func(o *options) { o.readiness = r }
}

// WithLogger 访问日志
func WithLogger(l *zap.Logger) Option {
	return func(o *options) { o.logger = l }
}

// WithRoutes 业务路由
func WithRoutes(fns ...RegisterFunc) Option {
	return func(o *options) { o.routes = append(o.routes, fns...) }
}

// Server HTTP 服务封装
type Server struct {
	srv *http.Server
}

// New 创建 Gin 引擎与 http.Server
func New(cfg cfgpkg.HTTPConfig, opts ...Option) *Server {
	o := options{metricsPath: "/metrics"}
	for _, opt := range opts {
		opt(&o)
	}

	gin.SetMode(gin.ReleaseMode)
	r := gin.New()
	r.Use(gin.Recovery())
	if o.logger != nil {
		r.Use(accessLog(o.logger, o.metricsPath))
	}

	r.GET("/healthz", func(c *gin.Context) {
		c.String(http.StatusOK, "ok")
	})
	r.GET("/readyz", func(c *gin.Context) {
		if o.readiness == nil || o.readiness.Ready() {
			c.String(http.StatusOK, "ready")
			return
		}
		c.String(http.StatusServiceUnavailable, "not-ready: "+strings.Join(o.readiness.Pending(), ","))
	})
	if o.metricsHandler != nil {
		r.GET(o.metricsPath, gin.WrapH(o.metricsHandler))
	}
	for _, fn := range o.routes {
		if fn != nil {
			fn(r)
		}
	}

	return &Server{srv: &http.Server{
		Addr:              cfg.Addr,
		Handler:           r,
		ReadTimeout:       cfg.ReadTimeout,
		ReadHeaderTimeout: cfg.ReadTimeout,
		WriteTimeout:      cfg.WriteTimeout,
	}}
}

// accessLog 探针与指标抓取记 debug，其余请求记 info，5xx 记 warn
func accessLog(logger *zap.Logger, metricsPath string) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		path := c.Request.URL.Path
		fields := []zap.Field{
			zap.String("method", c.Request.Method),
			zap.String("path", path),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("latency", time.Since(start)),
			zap.String("remote_addr", c.ClientIP()),
		}
		switch {
		case c.Writer.Status() >= http.StatusInternalServerError:
			logger.Warn("http request", fields...)
		case path == "/healthz" || path == "/readyz" || path == metricsPath || strings.HasPrefix(path, "/health/"):
			logger.Debug("http request", fields...)
		default:
			logger.Info("http request", fields...)
		}
	}
}

// Handler 路由（测试用）
func (s *Server) Handler() http.Handler {
	return s.srv.Handler
}

// Start 监听配置地址并阻塞，正常关闭时返回 nil
func (s *Server) Start() error {
	return ignoreClosed(s.srv.ListenAndServe())
}

// Serve 在已有监听上提供服务
func (s *Server) Serve(ln net.Listener) error {
	return ignoreClosed(s.srv.Serve(ln))
}

// Shutdown 优雅关闭
func (s *Server) Shutdown(ctx context.Context) error {
	return s.srv.Shutdown(ctx)
}

func ignoreClosed(err error) error {
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}
