package app

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	cfgpkg "github.com/taoyao-code/scan-scale/internal/config"
	"github.com/taoyao-code/scan-scale/internal/hal"
	"github.com/taoyao-code/scan-scale/internal/hal/halsim"
	"github.com/taoyao-code/scan-scale/internal/hal/periph"
	"github.com/taoyao-code/scan-scale/internal/loadcell"
	"github.com/taoyao-code/scan-scale/internal/metrics"
	"github.com/taoyao-code/scan-scale/internal/reader"
)

// ReaderHandle 读卡器：字节源、状态与后台任务
type ReaderHandle struct {
	Source reader.Source
	Status interface{ Status() reader.Status }
	Run    func(ctx context.Context) error
}

// NewReader 按配置创建串口或模拟读卡器
func NewReader(cfg cfgpkg.ReaderConfig, logger *zap.Logger, m *metrics.AppMetrics) (*ReaderHandle, error) {
	switch cfg.Driver {
	case "serial":
		s := reader.NewSerial(reader.SerialConfig{
			Device:      cfg.Device,
			Baud:        cfg.Baud,
			ReadTimeout: cfg.ReadTimeout,
			ReopenDelay: cfg.ReopenDelay,
			BufferSize:  cfg.BufferSize,
		}, reader.WithLogger(logger.Named("reader")), reader.WithMetrics(m))
		return &ReaderHandle{Source: s, Status: s, Run: s.Run}, nil
	case "simulator":
		sim := reader.NewSimulator()
		script := reader.Script{
			Tags:       cfg.Simulator.Tags,
			Hold:       cfg.Simulator.Hold,
			FrameEvery: cfg.Simulator.FrameEvery,
			Gap:        cfg.Simulator.Gap,
			Loop:       cfg.Simulator.Loop,
		}
		logger.Warn("using simulated RFID reader", zap.Int("tags", len(script.Tags)))
		return &ReaderHandle{Source: sim, Status: sim, Run: func(ctx context.Context) error {
			return sim.Play(ctx, script)
		}}, nil
	default:
		return nil, fmt.Errorf("unknown reader driver %q", cfg.Driver)
	}
}

// NewLoadCell 按配置打开 GPIO（或模拟芯片），创建驱动与采样器
func NewLoadCell(cfg cfgpkg.LoadCellConfig, logger *zap.Logger, m *metrics.AppMetrics, opts ...loadcell.SamplerOption) (*loadcell.Sampler, error) {
	var (
		dout hal.InputPin
		sck  hal.OutputPin
	)
	switch cfg.Driver {
	case "periph":
		in, out, err := periph.Open(cfg.DoutPin, cfg.SckPin)
		if err != nil {
			return nil, err
		}
		dout, sck = in, out
	case "simulator":
		chip := halsim.NewHX711(cfg.SimulatedRaw)
		dout, sck = chip.Dout(), chip.Sck()
		logger.Warn("using simulated load cell", zap.Int32("raw", cfg.SimulatedRaw))
	default:
		return nil, fmt.Errorf("unknown loadcell driver %q", cfg.Driver)
	}

	driver := loadcell.NewDriver(dout, sck,
		loadcell.WithReadTimeout(cfg.ReadTimeout),
		loadcell.WithScaleDivisor(cfg.ScaleDivisor),
	)
	base := []loadcell.SamplerOption{
		loadcell.WithPeriod(cfg.RefreshPeriod),
		loadcell.WithLogger(logger.Named("loadcell")),
		loadcell.WithMetrics(m),
	}
	return loadcell.NewSampler(driver, append(base, opts...)...), nil
}

// PrepareScale 上电复位后去皮（启动时执行一次）
func PrepareScale(ctx context.Context, sampler *loadcell.Sampler, tare bool) error {
	sampler.PowerUp()
	if !tare {
		return nil
	}
	if err := sampler.TareNow(ctx); err != nil {
		return fmt.Errorf("initial tare: %w", err)
	}
	return nil
}
