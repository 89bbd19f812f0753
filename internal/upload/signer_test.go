package upload

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSignHMAC(t *testing.T) {
	got := SignHMAC("key", "The quick brown fox jumps over the lazy dog")
	assert.Equal(t, "f7bc83f430538424b13298e6aa6fb143ef4d59a14946175997479dbc2d1a3cd8", got)
}

func TestSignHMAC_DependsOnSecret(t *testing.T) {
	sig := SignHMAC("s", "c")
	assert.Len(t, sig, 64)
	assert.Equal(t, sig, SignHMAC("s", "c"))
	assert.NotEqual(t, sig, SignHMAC("s2", "c"))
}

func TestBuildCanonical(t *testing.T) {
	got := buildCanonical("post", "/hook", 1700000000, "0000abcd", hashHex(nil))
	assert.Equal(t, "POST\n/hook\n1700000000\n0000abcd\ne3b0c44298fc1c149afbf4c8996fb92427ae41e4649b934ca495991b7852b855", got)
}
