package runtime

import "strings"

// Bytes of command output kept for error messages.
const tailSize = 4 << 10

// Writer that keeps only the last tailSize bytes written to it.
type limitedBuffer struct {
	buf []byte
}

func (b *limitedBuffer) Write(p []byte) (int, error) {
	b.buf = append(b.buf, p...)
	if over := len(b.buf) - tailSize; over > 0 {
		b.buf = b.buf[over:]
	}
	return len(p), nil
}

// Returns the retained output with surrounding whitespace trimmed.
func (b *limitedBuffer) String() string {
	return strings.TrimSpace(string(b.buf))
}

// Returns the last tailSize bytes of s, trimmed.
func tail(s string) string {
	var b limitedBuffer
	b.Write([]byte(s))
	return b.String()
}
