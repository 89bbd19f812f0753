package rdm6300

import "fmt"

// RDM630/RDM6300 帧格式（14字节 ASCII）：
// head(1)=0x02 + version(2) + tag(8) + checksum(2) + tail(1)=0x03
// version/tag/checksum 均为 ASCII 十六进制字符
const (
	StartMarker byte = 0x02 // 帧头
	EndMarker   byte = 0x03 // 帧尾
	FrameLen         = 14   // 帧总长度

	versionOffset  = 1
	versionLen     = 2
	tagOffset      = 3
	tagLen         = 8
	checksumOffset = 11
	checksumLen    = 2
	dataOffset     = versionOffset
	dataLen        = versionLen + tagLen // 数据区：version + tag
	cellLen        = 2                   // 校验折叠单元长度
)

// RawFrame 一个完整的原始帧
type RawFrame [FrameLen]byte

// Head 帧头字节
func (f RawFrame) Head() byte { return f[0] }

// Tail 帧尾字节
func (f RawFrame) Tail() byte { return f[FrameLen-1] }

// Version 版本字段（2字节 ASCII hex）
func (f RawFrame) Version() []byte { return f.field(versionOffset, versionLen) }

// Tag 卡号字段（8字节 ASCII hex）
func (f RawFrame) Tag() []byte { return f.field(tagOffset, tagLen) }

// Checksum 校验字段（2字节 ASCII hex）
func (f RawFrame) Checksum() []byte { return f.field(checksumOffset, checksumLen) }

// Data 数据区（version + tag，共10字节）
func (f RawFrame) Data() []byte { return f.field(dataOffset, dataLen) }

// Delimited 帧头帧尾是否正确
func (f RawFrame) Delimited() bool {
	return f.Head() == StartMarker && f.Tail() == EndMarker
}

// String 便于日志输出（不含不可见的帧头帧尾）
func (f RawFrame) String() string {
	return fmt.Sprintf("ver=%s tag=%s sum=%s", f.Version(), f.Tag(), f.Checksum())
}

func (f RawFrame) field(offset, length int) []byte {
	out := make([]byte, length)
	copy(out, f[offset:offset+length])
	return out
}

// cells 按位置顺序切分数据区为5个2字节单元
func (f RawFrame) cells() [dataLen / cellLen][]byte {
	var out [dataLen / cellLen][]byte
	data := f.Data()
	for i := range out {
		out[i] = data[i*cellLen : (i+1)*cellLen]
	}
	return out
}

// Encode 构造一个校验正确的帧（模拟器与测试使用）
func Encode(version uint16, tag uint32) RawFrame {
	var f RawFrame
	f[0] = StartMarker
	copy(f[versionOffset:], fmt.Sprintf("%02X", version&0xFF))
	copy(f[tagOffset:], fmt.Sprintf("%08X", tag))
	copy(f[checksumOffset:], fmt.Sprintf("%02X", foldChecksum(f)))
	f[FrameLen-1] = EndMarker
	return f
}

// Bytes 帧的字节切片拷贝
func (f RawFrame) Bytes() []byte {
	out := make([]byte, FrameLen)
	copy(out, f[:])
	return out
}
