package display

import (
	"fmt"
	"math"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/taoyao-code/scan-scale/internal/loadcell"
	"github.com/taoyao-code/scan-scale/internal/scansession"
)

// Snapshot 屏幕内容与指示灯
type Snapshot struct {
	Lines     [Rows]string `json:"lines"`
	Ready     bool         `json:"ready"`
	Grams     float32      `json:"grams"`
	Link      bool         `json:"link"`
	UpdatedAt time.Time    `json:"updated_at"`
}

// Board 内存中的字符屏模型。第 4 行左侧为重量，右侧为上传链路状态
type Board struct {
	mu     sync.RWMutex
	snap   Snapshot
	invert bool
	now    func() time.Time
}

// BoardOption 选项
type BoardOption func(*Board)

// WithInvert 显示重量取反（称重模块反装时使用）
func WithInvert(invert bool) BoardOption {
	return func(b *Board) { b.invert = invert }
}

// WithNow 注入时钟
func WithNow(now func() time.Time) BoardOption {
	return func(b *Board) {
		if now != nil {
			b.now = now
		}
	}
}

// NewBoard 创建显示屏，初始为就绪画面
func NewBoard(opts ...BoardOption) *Board {
	b := &Board{now: time.Now}
	for _, opt := range opts {
		opt(b)
	}
	b.snap.Lines[0] = LineReady
	b.snap.Ready = true
	b.snap.UpdatedAt = b.now()
	return b
}

func (b *Board) ShowState(s scansession.State) {
	b.mu.Lock()
	defer b.mu.Unlock()
	switch s {
	case scansession.Idle:
		b.snap.Lines[0] = LineReady
		b.snap.Lines[1] = ""
		b.snap.Lines[2] = ""
		b.snap.Ready = true
	case scansession.Accumulating:
		b.snap.Lines[0] = ""
		b.snap.Lines[1] = ""
		b.snap.Lines[2] = ""
		b.snap.Ready = false
	case scansession.Expired:
		b.snap.Lines[1] = LineRemove
		b.snap.Ready = false
	}
	b.snap.UpdatedAt = b.now()
}

func (b *Board) ShowWeight(w loadcell.WeightSample) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.snap.Grams = b.display(w.Grams)
	b.renderStatusLineLocked()
	b.snap.UpdatedAt = b.now()
}

func (b *Board) ShowScan(s Scan) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if s.Item != "" {
		b.snap.Lines[0] = fitLabel(s.Item, fmt.Sprintf(" x%d", s.Count))
	}
	b.snap.Lines[2] = fit(fmt.Sprintf("uploading %d", s.TagID))
	if s.HasWeight {
		b.snap.Grams = b.display(s.Grams)
		b.renderStatusLineLocked()
	}
	b.snap.UpdatedAt = b.now()
}

// SetLink 上传链路状态
func (b *Board) SetLink(up bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.snap.Link = up
	b.renderStatusLineLocked()
	b.snap.UpdatedAt = b.now()
}

// Ready 就绪指示灯
func (b *Board) Ready() bool {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.snap.Ready
}

// Snapshot 当前屏幕
func (b *Board) Snapshot() Snapshot {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.snap
}

// String 多行文本形式
func (b *Board) String() string {
	s := b.Snapshot()
	return strings.Join(s.Lines[:], "\n")
}

func (b *Board) display(grams float32) float32 {
	if b.invert {
		return -grams
	}
	return grams
}

func (b *Board) renderStatusLineLocked() {
	line := fmt.Sprintf("%-9s", FormatGrams(b.snap.Grams))
	if b.snap.Link {
		line += LineLink
	}
	b.snap.Lines[3] = fit(line)
}

// FormatGrams 整数克显示
func FormatGrams(g float32) string {
	return fmt.Sprintf("%d g", int64(math.Round(float64(g))))
}

// fit 按字符截断到 Cols
func fit(s string) string {
	if utf8.RuneCountInString(s) <= Cols {
		return s
	}
	return string([]rune(s)[:Cols])
}

// fitLabel 截断名称，保证数量后缀完整显示
func fitLabel(label, suffix string) string {
	room := Cols - utf8.RuneCountInString(suffix)
	if room <= 0 {
		return fit(suffix)
	}
	if r := []rune(label); len(r) > room {
		label = string(r[:room])
	}
	return label + suffix
}
