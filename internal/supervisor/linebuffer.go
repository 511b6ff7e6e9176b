package supervisor

import (
	"bytes"
	"strings"
)

// lineBuffer accumulates a byte stream and hands back whole lines only.
// Text after the last newline stays buffered until the next chunk completes it.
type lineBuffer struct {
	buf []byte
}

// Write appends chunk and returns every line completed by it, without the
// trailing newline. The returned lines never contain '\n'.
func (b *lineBuffer) Write(chunk []byte) []string {
	b.buf = append(b.buf, chunk...)

	i := bytes.LastIndexByte(b.buf, '\n')
	if i < 0 {
		return nil
	}

	complete := string(b.buf[:i])
	rest := make([]byte, len(b.buf)-i-1)
	copy(rest, b.buf[i+1:])
	b.buf = rest

	return strings.Split(complete, "\n")
}

// Pending returns the buffered partial line
func (b *lineBuffer) Pending() string {
	return string(b.buf)
}

// Flush returns and clears the buffered partial line, if any
func (b *lineBuffer) Flush() (string, bool) {
	if len(b.buf) == 0 {
		return "", false
	}
	line := string(b.buf)
	b.buf = nil
	return line, true
}
