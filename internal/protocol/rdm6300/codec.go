package rdm6300

// DecodedTag 一帧的解码结果，创建后不可变
type DecodedTag struct {
	TagID      uint64 // 卡号（8位十六进制，32位数值）
	Version    uint16 // 版本字段
	ChecksumOK bool   // 校验是否通过
	Fault      error  // ErrInvalidHex / ErrChecksumMismatch / nil
}

// Decode 解码一帧。总是返回结果，错误只体现在 ChecksumOK/Fault 上
func Decode(f RawFrame) DecodedTag {
	version, verOK := parseHex(f.Version())
	tag, tagOK := parseHex(f.Tag())

	out := DecodedTag{
		TagID:   tag,
		Version: uint16(version),
	}

	if !verOK || !tagOK {
		out.Fault = ErrInvalidHex
		return out
	}
	if err := VerifyChecksum(f); err != nil {
		out.Fault = err
		return out
	}
	out.ChecksumOK = true
	return out
}
