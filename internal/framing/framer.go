// Package framing converts a raw serial byte stream into trimmed text lines.
package framing

import (
	"bytes"
	"strings"
	"unicode/utf8"

	"golang.org/x/text/encoding/simplifiedchinese"
)

// Framer assembles newline-terminated lines from byte chunks of arbitrary
// size. Carried-over bytes stay raw until a full line is available, so a
// multi-byte character split across reads decodes the same as if it had
// arrived in one chunk. Not safe for concurrent use; each read loop owns
// its own framer.
type Framer struct {
	buf []byte
}

// Push appends a chunk and returns the completed lines it unlocked, in
// stream order. Lines are whitespace-trimmed; lines that trim to empty are
// dropped. A chunk without a newline returns nil and only grows the buffer.
func (f *Framer) Push(chunk []byte) []string {
	f.buf = append(f.buf, chunk...)

	var lines []string
	for {
		i := bytes.IndexByte(f.buf, '\n')
		if i < 0 {
			return lines
		}
		raw := f.buf[:i]
		f.buf = f.buf[i+1:]

		if line := strings.TrimSpace(Decode(raw)); line != "" {
			lines = append(lines, line)
		}
	}
}

// Pending returns the number of buffered bytes awaiting a newline.
func (f *Framer) Pending() int {
	return len(f.buf)
}

// Decode interprets raw line bytes as UTF-8, falling back to GBK for
// devices that emit legacy regional encodings. Bytes invalid under both
// encodings are skipped rather than surfaced as replacement runes.
func Decode(raw []byte) string {
	if utf8.Valid(raw) {
		return string(raw)
	}
	if decoded, err := simplifiedchinese.GBK.NewDecoder().Bytes(raw); err == nil {
		return strings.ReplaceAll(string(decoded), "�", "")
	}
	return strings.ToValidUTF8(string(raw), "")
}
