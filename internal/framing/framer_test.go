package framing

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFramer_SingleChunk(t *testing.T) {
	var f Framer
	lines := f.Push([]byte("Temp: 25\nERROR: overheat\n"))
	assert.Equal(t, []string{"Temp: 25", "ERROR: overheat"}, lines)
	assert.Equal(t, 0, f.Pending())
}

func TestFramer_PartialChunkGrowsBuffer(t *testing.T) {
	var f Framer
	assert.Empty(t, f.Push([]byte("Temp: ")))
	assert.Equal(t, 6, f.Pending())

	lines := f.Push([]byte("25\n"))
	assert.Equal(t, []string{"Temp: 25"}, lines)
	assert.Equal(t, 0, f.Pending())
}

func TestFramer_TrimsAndDropsEmptyLines(t *testing.T) {
	var f Framer
	lines := f.Push([]byte("\n  \n\t\r\n  spaced out  \r\n"))
	assert.Equal(t, []string{"spaced out"}, lines)
}

func TestFramer_CarriesTailAcrossPushes(t *testing.T) {
	var f Framer
	lines := f.Push([]byte("first\nsecond part"))
	assert.Equal(t, []string{"first"}, lines)

	lines = f.Push([]byte(" done\n"))
	assert.Equal(t, []string{"second part done"}, lines)
}

// Chunk boundaries must not change the framed output, even when they split
// a multi-byte character.
func TestFramer_ChunkingIsTransparent(t *testing.T) {
	streams := map[string][]byte{
		"ascii":     []byte("Temp: 25\nERROR: overheat\npartial tail"),
		"crlf":      []byte("one\r\ntwo\r\n\r\nthree\r\n"),
		"utf8":      []byte("温度: 25\n错误: 过热\n"),
		"gbk":       {0xD6, 0xD0, 0xCE, 0xC4, '\n', 'o', 'k', '\n'},
		"gbk mixed": {'v', '=', '1', ' ', 0xD6, 0xD0, '\n'},
	}

	for name, stream := range streams {
		t.Run(name, func(t *testing.T) {
			var whole Framer
			want := whole.Push(stream)

			var byteWise Framer
			var got []string
			for _, b := range stream {
				got = append(got, byteWise.Push([]byte{b})...)
			}

			assert.Equal(t, want, got)
			assert.Equal(t, whole.Pending(), byteWise.Pending())
		})
	}
}

func TestDecode(t *testing.T) {
	tests := []struct {
		name string
		raw  []byte
		want string
	}{
		{"ascii", []byte("hello"), "hello"},
		{"utf8 passthrough", []byte("温度 25°C"), "温度 25°C"},
		{"gbk fallback", []byte{0xD6, 0xD0, 0xCE, 0xC4}, "中文"},
		{"gbk with ascii prefix", []byte{'v', '=', 0xD6, 0xD0}, "v=中"},
		{"invalid bytes skipped", []byte{'o', 'k', 0xFF, 0xFF}, "ok"},
		{"empty", nil, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Decode(tt.raw))
		})
	}
}

func TestFramer_GBKCharacterSplitAcrossReads(t *testing.T) {
	var f Framer
	require.Empty(t, f.Push([]byte{0xD6}))
	lines := f.Push([]byte{0xD0, '\n'})
	assert.Equal(t, []string{"中"}, lines)
}
