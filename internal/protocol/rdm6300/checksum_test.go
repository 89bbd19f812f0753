package rdm6300

import (
	"errors"
	"testing"
)

func TestParseHex(t *testing.T) {
	tests := []struct {
		name  string
		in    string
		want  uint64
		valid bool
	}{
		{name: "大写", in: "A1B2C3", want: 0xA1B2C3, valid: true},
		{name: "小写", in: "a1b2c3", want: 0xA1B2C3, valid: true},
		{name: "全零", in: "00000000", want: 0, valid: true},
		{name: "非法字符", in: "0G", want: 0, valid: false},
		{name: "空格", in: " 1", want: 0, valid: false},
		{name: "符号", in: "-1", want: 0, valid: false},
		{name: "空字段", in: "", want: 0, valid: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := parseHex([]byte(tt.in))
			if ok != tt.valid || got != tt.want {
				t.Errorf("parseHex(%q) = 0x%X,%v expected 0x%X,%v", tt.in, got, ok, tt.want, tt.valid)
			}
		})
	}
}

func TestVerifyChecksum(t *testing.T) {
	good := Encode(0x01, 0x00A1B2C3)
	if err := VerifyChecksum(good); err != nil {
		t.Fatalf("VerifyChecksum(good) = %v", err)
	}

	// 0x01 ^ 0x00 ^ 0xA1 ^ 0xB2 ^ 0xC3 = 0xD1
	if got := string(good.Checksum()); got != "D1" {
		t.Fatalf("checksum field = %s, expected D1", got)
	}

	bad := good
	bad[11], bad[12] = 'F', 'F'
	if err := VerifyChecksum(bad); !errors.Is(err, ErrChecksumMismatch) {
		t.Fatalf("expected ErrChecksumMismatch, got %v", err)
	}

	hexBad := good
	hexBad[5] = 'Z'
	if err := VerifyChecksum(hexBad); !errors.Is(err, ErrInvalidHex) {
		t.Fatalf("expected ErrInvalidHex, got %v", err)
	}
}

func TestVerifyChecksumLowercaseField(t *testing.T) {
	f := Encode(0x0A, 0x0000BEEF)
	copy(f[checksumOffset:], []byte(toLower(string(f.Checksum()))))
	if err := VerifyChecksum(f); err != nil {
		t.Fatalf("lowercase checksum rejected: %v", err)
	}
}

func toLower(s string) string {
	b := []byte(s)
	for i, c := range b {
		if c >= 'A' && c <= 'F' {
			b[i] = c + ('a' - 'A')
		}
	}
	return string(b)
}
