package app

import (
	cfgpkg "github.com/taoyao-code/scan-scale/internal/config"
	"github.com/taoyao-code/scan-scale/internal/health"
	"github.com/taoyao-code/scan-scale/internal/loadcell"
)

// NewHealthAggregator 称重模块与读卡器必选；启用上传时追加上传链路，Redis 模式再追加 Redis。
// Redis PING 慢阈值取 redis.readTimeout 的一半
func NewHealthAggregator(cfg *cfgpkg.Config, sampler *loadcell.Sampler, rd health.ReaderSource, u *Uploader) *health.Aggregator {
	agg := health.NewAggregator(
		health.NewSensorChecker(sampler, cfg.LoadCell.MaxConsecutiveFaults),
		health.NewReaderChecker(rd),
	)
	if u == nil {
		return agg
	}
	agg.AddChecker(health.CheckerFunc("upload", u.Check))
	if u.Redis != nil {
		agg.AddChecker(health.NewRedisChecker(u.Redis, health.WithSlowThreshold(cfg.Redis.ReadTimeout/2)))
	}
	return agg
}
