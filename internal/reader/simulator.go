package reader

import (
	"context"
	"sync"
	"time"

	"github.com/taoyao-code/scan-scale/internal/protocol/rdm6300"
)

// Script 模拟刷卡脚本：每张卡停留 Hold，停留期间每 FrameEvery 重发一帧，卡与卡之间间隔 Gap
type Script struct {
	Tags       []uint32
	Version    uint16
	Hold       time.Duration
	FrameEvery time.Duration
	Gap        time.Duration
	Loop       bool
}

// Simulator 内存字节源，用于测试和无读卡器运行
type Simulator struct {
	mu    sync.Mutex
	queue []byte
	total uint64
}

// NewSimulator 创建模拟读卡器
func NewSimulator() *Simulator {
	return &Simulator{}
}

// Write 追加原始字节
func (s *Simulator) Write(p []byte) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.queue = append(s.queue, p...)
	s.total += uint64(len(p))
	return len(p), nil
}

// Present 追加 repeats 个完整帧
func (s *Simulator) Present(version uint16, tag uint32, repeats int) {
	f := rdm6300.Encode(version, tag)
	for i := 0; i < repeats; i++ {
		_, _ = s.Write(f.Bytes())
	}
}

// TryRead 实现 Source
func (s *Simulator) TryRead() (byte, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.queue) == 0 {
		return 0, false
	}
	b := s.queue[0]
	s.queue = s.queue[1:]
	return b, true
}

// Pending 未读字节数
func (s *Simulator) Pending() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.queue)
}

// Status 实现状态查询
func (s *Simulator) Status() Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	return Status{Connected: true, Device: "simulator", Opens: 1, Bytes: s.total}
}

// Play 按脚本实时注入帧，直到脚本结束或 ctx 取消
func (s *Simulator) Play(ctx context.Context, sc Script) error {
	if sc.FrameEvery <= 0 {
		sc.FrameEvery = 100 * time.Millisecond
	}
	if sc.Hold <= 0 {
		sc.Hold = time.Second
	}
	if sc.Version == 0 {
		sc.Version = 0x01
	}
	for {
		for _, tag := range sc.Tags {
			frames := int(sc.Hold / sc.FrameEvery)
			if frames < 1 {
				frames = 1
			}
			for i := 0; i < frames; i++ {
				s.Present(sc.Version, tag, 1)
				if !sleepWithContext(ctx, sc.FrameEvery) {
					return ctx.Err()
				}
			}
			if !sleepWithContext(ctx, sc.Gap) {
				return ctx.Err()
			}
		}
		if !sc.Loop || len(sc.Tags) == 0 {
			return nil
		}
	}
}
