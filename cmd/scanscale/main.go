package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"

	"github.com/taoyao-code/scan-scale/internal/app/bootstrap"
	cfgpkg "github.com/taoyao-code/scan-scale/internal/config"
	"github.com/taoyao-code/scan-scale/internal/logging"
)

func main() {
	configPath := flag.String("config", "", "config file path (default $SCANSCALE_CONFIG or configs/example.yaml)")
	flag.Parse()

	// 1) 加载配置
	cfg, err := cfgpkg.Load(*configPath)
	if err != nil {
		panic(err)
	}

	// 2) 初始化日志
	logger, err := logging.InitLogger(cfg.Logging,
		zap.String("app", cfg.App.Name),
		zap.String("device_id", cfg.App.DeviceID))
	if err != nil {
		panic(err)
	}
	defer func() { _ = logger.Sync() }()
	zap.ReplaceGlobals(logger)

	// 3) 信号处理，优雅关闭
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := bootstrap.Run(ctx, cfg, zap.L()); err != nil {
		zap.L().Error("scan scale exited", zap.Error(err))
		_ = logger.Sync()
		os.Exit(1)
	}
}
