// Package display 称重台 20x4 字符屏：显示会话状态、实时重量与刷卡结果
package display

import (
	"go.uber.org/zap"

	"github.com/taoyao-code/scan-scale/internal/loadcell"
	"github.com/taoyao-code/scan-scale/internal/scansession"
)

const (
	Rows = 4
	Cols = 20
)

const (
	LineReady  = "Ready to read tag"
	LineRemove = "Please remove box."
	LineLink   = "link on"
)

// Scan 一次刷卡的显示内容
type Scan struct {
	TagID     uint64
	Grams     float32
	HasWeight bool
	Item      string
	Count     int
}

// Display 显示协作方
type Display interface {
	ShowState(state scansession.State)
	ShowWeight(sample loadcell.WeightSample)
	ShowScan(scan Scan)
}

// Multi 同时输出到多个显示
func Multi(ds ...Display) Display {
	return multi(ds)
}

type multi []Display

func (m multi) ShowState(s scansession.State) {
	for _, d := range m {
		d.ShowState(s)
	}
}

func (m multi) ShowWeight(w loadcell.WeightSample) {
	for _, d := range m {
		d.ShowWeight(w)
	}
}

func (m multi) ShowScan(s Scan) {
	for _, d := range m {
		d.ShowScan(s)
	}
}

// Log 把显示事件写入日志，重量只在 debug 级别输出
type Log struct {
	logger *zap.Logger
	invert bool
}

// NewLog 创建日志显示，invert 与 Board 一致
func NewLog(logger *zap.Logger, invert bool) *Log {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Log{logger: logger.Named("display"), invert: invert}
}

func (l *Log) grams(g float32) float32 {
	if l.invert {
		return -g
	}
	return g
}

func (l *Log) ShowState(s scansession.State) {
	l.logger.Info("session state", zap.Stringer("state", s))
}

func (l *Log) ShowWeight(w loadcell.WeightSample) {
	l.logger.Debug("weight", zap.Int32("raw", w.Raw), zap.Float32("grams", l.grams(w.Grams)))
}

func (l *Log) ShowScan(s Scan) {
	l.logger.Info("uploading",
		zap.Uint64("tag_id", s.TagID),
		zap.Float32("grams", l.grams(s.Grams)),
		zap.Bool("has_weight", s.HasWeight),
		zap.String("item", s.Item),
		zap.Int("count", s.Count),
	)
}
