package app

import (
	"go.uber.org/zap"

	"github.com/taoyao-code/scan-scale/internal/catalog"
	"github.com/taoyao-code/scan-scale/internal/display"
	"github.com/taoyao-code/scan-scale/internal/scansession"
	"github.com/taoyao-code/scan-scale/internal/upload"
)

// Submitter 非阻塞上传入口（upload.Dispatcher）
type Submitter interface {
	Submit(ev *upload.ScanEvent) bool
}

// ScanSink ScanComplete → 目录查询 → 显示 → 上传。在控制循环上调用，不得阻塞
type ScanSink struct {
	deviceID string
	invert   bool
	catalog  *catalog.Catalog
	display  display.Display
	uploader Submitter
	logger   *zap.Logger
}

// NewScanSink 创建刷卡结果处理器；catalog/display/uploader 均可为空
func NewScanSink(deviceID string, invert bool, cat *catalog.Catalog, d display.Display, up Submitter, logger *zap.Logger) *ScanSink {
	if cat == nil {
		cat = catalog.Empty()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ScanSink{deviceID: deviceID, invert: invert, catalog: cat, display: d, uploader: up, logger: logger}
}

// Submit 实现 scansession.Sink
func (s *ScanSink) Submit(ev scansession.ScanComplete) {
	grams := float64(ev.Weight.Grams)
	if s.invert {
		grams = -grams
	}
	entry := s.catalog.Resolve(ev.TagID, grams)

	s.logger.Info("scan complete",
		zap.Uint64("tag_id", ev.TagID),
		zap.Bool("has_weight", ev.HasWeight),
		zap.Float64("grams", grams),
		zap.String("item", entry.Item),
		zap.Int("count", entry.Count),
	)

	if s.display != nil {
		// 显示端按同一配置自行翻转极性
		s.display.ShowScan(display.Scan{
			TagID:     ev.TagID,
			Grams:     ev.Weight.Grams,
			HasWeight: ev.HasWeight,
			Item:      entry.Item,
			Count:     entry.Count,
		})
	}

	if s.uploader != nil {
		s.uploader.Submit(upload.NewScanEvent(s.deviceID, upload.Scan{
			TagID:     ev.TagID,
			Grams:     grams,
			HasWeight: ev.HasWeight,
			Item:      entry.Item,
			Count:     entry.Count,
			At:        ev.At,
		}))
	}
}
