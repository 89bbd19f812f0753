package rdm6300

import "errors"

var (
	// ErrInvalidHex 字段包含非十六进制字符
	ErrInvalidHex = errors.New("invalid hex digit")
	// ErrChecksumMismatch 校验失败
	ErrChecksumMismatch = errors.New("checksum mismatch")
)

// parseHex 解析 ASCII 十六进制字段，只接受 [0-9A-Fa-f]
// 非法字符时返回 0, false
func parseHex(field []byte) (uint64, bool) {
	if len(field) == 0 {
		return 0, false
	}
	var v uint64
	for _, c := range field {
		var d byte
		switch {
		case c >= '0' && c <= '9':
			d = c - '0'
		case c >= 'A' && c <= 'F':
			d = c - 'A' + 10
		case c >= 'a' && c <= 'f':
			d = c - 'a' + 10
		default:
			return 0, false
		}
		v = v<<4 | uint64(d)
	}
	return v, true
}

// foldChecksumOK 按位置顺序对数据区5个单元做异或折叠
// 非法单元按0参与折叠，同时返回 ok=false
func foldChecksumOK(f RawFrame) (byte, bool) {
	var sum uint64
	ok := true
	for _, cell := range f.cells() {
		v, valid := parseHex(cell)
		if !valid {
			ok = false
		}
		sum ^= v
	}
	return byte(sum), ok
}

func foldChecksum(f RawFrame) byte {
	sum, _ := foldChecksumOK(f)
	return sum
}

// VerifyChecksum 校验帧的异或折叠
func VerifyChecksum(f RawFrame) error {
	computed, cellsOK := foldChecksumOK(f)
	received, sumOK := parseHex(f.Checksum())
	if !cellsOK || !sumOK {
		return ErrInvalidHex
	}
	if uint64(computed) != received {
		return ErrChecksumMismatch
	}
	return nil
}
