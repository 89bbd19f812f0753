package catalog

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sample = `
tags:
  - id: 10600000
    label: Pokemon cards
    unit_grams: 1.75
  - id: 42
    label: Loose box
`

func TestLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "catalog.yaml")
	require.NoError(t, os.WriteFile(path, []byte(sample), 0o644))

	c, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 2, c.Len())

	it, ok := c.Lookup(10600000)
	require.True(t, ok)
	assert.Equal(t, "Pokemon cards", it.Label)

	_, ok = c.Lookup(7)
	assert.False(t, ok)
}

func TestLoad_EmptyPath(t *testing.T) {
	c, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, 0, c.Len())
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
}

func TestParse_Rejects(t *testing.T) {
	_, err := Parse([]byte("tags:\n  - id: 1\n  - id: 1\n"))
	assert.ErrorIs(t, err, ErrDuplicateTag)

	_, err = Parse([]byte("tags:\n  - id: 1\n    unit_grams: -2\n"))
	assert.ErrorIs(t, err, ErrInvalidUnit)

	_, err = Parse([]byte("tags: [oops"))
	assert.Error(t, err)
}

func TestResolve(t *testing.T) {
	c, err := Parse([]byte(sample))
	require.NoError(t, err)

	tests := []struct {
		name  string
		tag   uint64
		grams float64
		want  Entry
	}{
		{"按单件重量计数", 10600000, 250, Entry{Item: "Pokemon cards", Count: 143, Known: true}},
		{"未配置单件重量", 42, 250, Entry{Item: "Loose box", Known: true}},
		{"负重量", 10600000, -3, Entry{Item: "Pokemon cards", Known: true}},
		{"未知卡号", 5, 250, Entry{}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, c.Resolve(tt.tag, tt.grams))
		})
	}
}
