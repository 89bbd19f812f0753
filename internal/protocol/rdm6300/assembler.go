package rdm6300

import "errors"

var (
	// ErrBufferOverflow 帧超出预期长度
	ErrBufferOverflow = errors.New("frame buffer overflow")
	// ErrMalformedFrame 帧尾到达时长度或帧头不正确
	ErrMalformedFrame = errors.New("malformed frame")
)

// Result 单字节喂入结果
type Result int

const (
	Incomplete Result = iota // 帧未结束
	Frame                    // 得到完整帧
	Overflow                 // 缓冲溢出，已重置
	Malformed                // 帧格式错误，已重置
)

func (r Result) String() string {
	switch r {
	case Incomplete:
		return "incomplete"
	case Frame:
		return "frame"
	case Overflow:
		return "overflow"
	case Malformed:
		return "malformed"
	default:
		return "unknown"
	}
}

// Err 诊断用错误，Incomplete/Frame 返回 nil
func (r Result) Err() error {
	switch r {
	case Overflow:
		return ErrBufferOverflow
	case Malformed:
		return ErrMalformedFrame
	default:
		return nil
	}
}

// Assembler 按字节组帧。固定容量缓冲 + 写游标，不阻塞
type Assembler struct {
	buf    RawFrame
	cursor int
}

// NewAssembler 创建组帧器
func NewAssembler() *Assembler { return &Assembler{} }

// Reset 丢弃未完成的帧
func (a *Assembler) Reset() { a.cursor = 0 }

// Pending 当前已缓存的字节数
func (a *Assembler) Pending() int { return a.cursor }

// Feed 喂入一个字节
// 帧头到达时丢弃进行中的帧重新同步；帧尾到达时长度必须恰好为 FrameLen
func (a *Assembler) Feed(b byte) (Result, RawFrame) {
	if b == StartMarker {
		a.cursor = 0
	}

	if a.cursor >= FrameLen {
		a.cursor = 0
		return Overflow, RawFrame{}
	}

	a.buf[a.cursor] = b
	a.cursor++

	if b != EndMarker {
		return Incomplete, RawFrame{}
	}

	n := a.cursor
	a.cursor = 0
	if n != FrameLen || a.buf[0] != StartMarker {
		return Malformed, RawFrame{}
	}
	return Frame, a.buf
}
