package health

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// RegisterHTTPRoutes 注册健康检查HTTP路由
//
//	GET /health/ready  就绪探针，failing 列出非健康组件
//	GET /health/live   存活探针
//	GET /health        各组件详情
func RegisterHTTPRoutes(r *gin.Engine, aggregator *Aggregator) {
	r.GET("/health/ready", func(c *gin.Context) {
		report := aggregator.Report(c.Request.Context())
		failing := report.Failing()
		if report.Status == StatusUnhealthy {
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": report.Status, "ready": false, "failing": failing})
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": report.Status, "ready": true, "failing": failing})
	})

	r.GET("/health/live", func(c *gin.Context) {
		if !aggregator.Alive() {
			c.JSON(http.StatusServiceUnavailable, gin.H{"alive": false})
			return
		}
		c.JSON(http.StatusOK, gin.H{"alive": true})
	})

	r.GET("/health", func(c *gin.Context) {
		report := aggregator.Report(c.Request.Context())
		code := http.StatusOK
		// 降级仍返回200
		if report.Status == StatusUnhealthy {
			code = http.StatusServiceUnavailable
		}
		c.JSON(code, report)
	})
}
