// Package calibration 去皮卡与称重模块去皮动作之间的绑定
package calibration

import (
	"sync/atomic"
	"time"

	"go.uber.org/zap"
)

// Tarer 去皮执行者（生产环境为 loadcell.Sampler，请求在采样线程上执行）
type Tarer interface {
	Tare()
}

// Controller 校准控制器，无独立状态，只做转发与记录
type Controller struct {
	tarer    Tarer
	sentinel uint64
	logger   *zap.Logger

	requests atomic.Int64
	lastAt   atomic.Int64 // unix nano
}

// New 创建控制器
func New(tarer Tarer, sentinel uint64, logger *zap.Logger) *Controller {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Controller{tarer: tarer, sentinel: sentinel, logger: logger}
}

// Tare 去皮卡命中或手动触发
func (c *Controller) Tare() {
	c.requests.Add(1)
	c.lastAt.Store(time.Now().UnixNano())
	c.logger.Info("tare requested", zap.Uint64("sentinel_tag", c.sentinel))
	if c.tarer != nil {
		c.tarer.Tare()
	}
}

// Sentinel 去皮卡卡号
func (c *Controller) Sentinel() uint64 { return c.sentinel }

// Requests 累计去皮请求次数
func (c *Controller) Requests() int64 { return c.requests.Load() }

// LastRequest 最近一次请求时间
func (c *Controller) LastRequest() time.Time {
	ns := c.lastAt.Load()
	if ns == 0 {
		return time.Time{}
	}
	return time.Unix(0, ns)
}
