package api

import (
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/taoyao-code/scan-scale/internal/api/middleware"
)

// RegisterRoutes 注册 /api 路由。去皮接口需认证并限流
func RegisterRoutes(r *gin.Engine, h *Handler, authCfg middleware.AuthConfig, tareLimit middleware.RateLimitConfig, logger *zap.Logger) {
	if r == nil || h == nil {
		return
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	api := r.Group("/api")
	api.GET("/status", h.Status)

	scale := api.Group("/scale")
	if authCfg.Enabled {
		scale.Use(middleware.APIKeyAuth(authCfg, logger))
		logger.Info("api authentication enabled", zap.Int("api_keys_count", len(authCfg.APIKeys)))
	} else {
		logger.Warn("api authentication disabled - only for development!")
	}
	scale.POST("/tare", middleware.RateLimit(tareLimit), h.Tare)
}
