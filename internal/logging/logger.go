package logging

import (
	"os"
	"strings"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/natefinch/lumberjack.v2"

	cfgpkg "github.com/taoyao-code/scan-scale/internal/config"
)

// InitLogger 初始化 zap 日志器：控制台 + lumberjack 滚动文件，按秒采样。
// fields 附加到每条日志（设备号等）
func InitLogger(cfg cfgpkg.LoggingConfig, fields ...zap.Field) (*zap.Logger, error) {
	var encoder zapcore.Encoder
	if strings.ToLower(cfg.Format) == "console" {
		encoder = zapcore.NewConsoleEncoder(encoderConfig())
	} else {
		encoder = zapcore.NewJSONEncoder(encoderConfig())
	}

	core := zapcore.NewCore(encoder, writeSyncer(cfg.File), parseLevel(cfg.Level))
	// 称重刷新与读卡字节都是高频事件，同一消息每秒只保留前 Initial 条，之后每 Thereafter 条记一条
	if cfg.Sampling.Initial > 0 {
		core = zapcore.NewSamplerWithOptions(core, time.Second, cfg.Sampling.Initial, cfg.Sampling.Thereafter)
	}

	return zap.New(core, zap.AddCaller(), zap.Fields(fields...)), nil
}

func parseLevel(s string) zapcore.Level {
	switch strings.ToLower(s) {
	case "debug":
		return zapcore.DebugLevel
	case "warn", "warning":
		return zapcore.WarnLevel
	case "error":
		return zapcore.ErrorLevel
	default:
		return zapcore.InfoLevel
	}
}

func encoderConfig() zapcore.EncoderConfig {
	return zapcore.EncoderConfig{
		TimeKey:        "ts",
		LevelKey:       "level",
		NameKey:        "logger",
		CallerKey:      "caller",
		MessageKey:     "msg",
		StacktraceKey:  "stack",
		LineEnding:     zapcore.DefaultLineEnding,
		EncodeLevel:    zapcore.LowercaseLevelEncoder,
		EncodeTime:     zapcore.TimeEncoderOfLayout(time.RFC3339Nano),
		EncodeDuration: zapcore.MillisDurationEncoder,
		EncodeCaller:   zapcore.ShortCallerEncoder,
		EncodeName:     zapcore.FullNameEncoder,
	}
}

// writeSyncer 未配置文件名时只写控制台
func writeSyncer(file cfgpkg.LumberjackConfig) zapcore.WriteSyncer {
	ws := zapcore.AddSync(os.Stdout)
	if file.Filename == "" {
		return ws
	}
	return zapcore.NewMultiWriteSyncer(ws, zapcore.AddSync(&lumberjack.Logger{
		Filename:   file.Filename,
		MaxSize:    file.MaxSizeMB,
		MaxBackups: file.MaxBackups,
		MaxAge:     file.MaxAgeDays,
		Compress:   file.Compress,
	}))
}
