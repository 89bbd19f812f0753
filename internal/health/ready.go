package health

import "sync/atomic"

// Readiness 启动就绪：称重模块完成上电去皮、控制循环已运行
type Readiness struct {
	scaleReady atomic.Bool
	loopReady  atomic.Bool
}

func New() *Readiness { return &Readiness{} }

func (r *Readiness) SetScaleReady(v bool) { r.scaleReady.Store(v) }
func (r *Readiness) SetLoopReady(v bool)  { r.loopReady.Store(v) }

// Ready 称重与控制循环均已就绪
func (r *Readiness) Ready() bool {
	return len(r.Pending()) == 0
}

// Pending 尚未就绪的部件名
func (r *Readiness) Pending() []string {
	var out []string
	if !r.scaleReady.Load() {
		out = append(out, "scale")
	}
	if !r.loopReady.Load() {
		out = append(out, "loop")
	}
	return out
}
