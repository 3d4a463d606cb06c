package sandbox

import (
	"bytes"
	"context"
	"errors"
	"time"
	"unicode/utf8"
)

// ErrOutputLimit is returned when a bounded writer exceeds its configured cap.
var ErrOutputLimit = errors.New("OUTPUT_LIMIT")

// BoundedBuffer is an io.Writer implementation that caps total bytes written.
// When the cap is exceeded, it truncates additional input and returns ErrOutputLimit.
//
// Note: The writer never grows beyond the configured capacity in memory.
// A zero or negative maxKB defaults to 4 KiB, which is already more than a
// single chat message can carry.
type BoundedBuffer struct {
	buf       bytes.Buffer
	capBytes  int
	truncated bool
}

// NewBoundedBuffer creates a new BoundedBuffer with the provided maxKB capacity.
func NewBoundedBuffer(maxKB int) *BoundedBuffer {
	if maxKB <= 0 {
		maxKB = 4
	}
	return &BoundedBuffer{capBytes: maxKB * 1024}
}

// Write appends p to the buffer up to the capacity. If the write causes
// the capacity to be exceeded, the write is truncated at the last complete
// UTF-8 sequence and ErrOutputLimit is returned. Once truncated, the buffer
// accepts nothing more.
func (b *BoundedBuffer) Write(p []byte) (int, error) {
	remaining := b.capBytes - b.buf.Len()
	if b.truncated || remaining <= 0 {
		b.truncated = true
		return 0, ErrOutputLimit
	}
	if len(p) > remaining {
		cut := remaining
		for cut > 0 && !utf8.RuneStart(p[cut]) {
			cut--
		}
		_, _ = b.buf.Write(p[:cut])
		b.truncated = true
		return cut, ErrOutputLimit
	}
	return b.buf.Write(p)
}

// WriteString is Write for strings.
func (b *BoundedBuffer) WriteString(s string) (int, error) {
	return b.Write([]byte(s))
}

// Len returns the number of buffered bytes.
func (b *BoundedBuffer) Len() int { return b.buf.Len() }

// String returns the current contents as string (may be truncated).
func (b *BoundedBuffer) String() string { return b.buf.String() }

// Truncated reports whether any write exceeded the cap.
func (b *BoundedBuffer) Truncated() bool { return b.truncated }

// WithWallTimeout returns a derived context that is canceled after d.
// If d <= 0, a conservative default of 5s is used.
func WithWallTimeout(parent context.Context, d time.Duration) (context.Context, context.CancelFunc) {
	if d <= 0 {
		d = DefaultTimeout
	}
	return context.WithTimeout(parent, d)
}
