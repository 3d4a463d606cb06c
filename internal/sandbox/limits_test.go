package sandbox

import (
	"context"
	"strings"
	"testing"
	"time"
	"unicode/utf8"
)

func TestBoundedBuffer_TruncatesAndSignals(t *testing.T) {
	buf := NewBoundedBuffer(1) // 1 KiB
	payload := strings.Repeat("A", 1536)
	n, err := buf.Write([]byte(payload))
	if err != ErrOutputLimit {
		t.Fatalf("expected ErrOutputLimit, got %v", err)
	}
	if n != 1024 {
		t.Fatalf("expected partial write of 1024, got %d", n)
	}
	if !buf.Truncated() {
		t.Fatalf("expected truncated=true")
	}
	if buf.Len() != 1024 {
		t.Fatalf("expected buffer length 1024, got %d", buf.Len())
	}
	if _, err := buf.WriteString("more"); err != ErrOutputLimit {
		t.Fatalf("expected ErrOutputLimit on full buffer, got %v", err)
	}
}

func TestBoundedBuffer_TruncatesOnRuneBoundary(t *testing.T) {
	buf := NewBoundedBuffer(1)
	n, err := buf.WriteString("a" + strings.Repeat("é", 600))
	if err != ErrOutputLimit {
		t.Fatalf("expected ErrOutputLimit, got %v", err)
	}
	if n != 1023 {
		t.Fatalf("expected the split rune to be dropped, wrote %d", n)
	}
	if !utf8.ValidString(buf.String()) {
		t.Fatalf("buffer holds invalid UTF-8: %q", buf.String()[buf.Len()-4:])
	}
	if _, err := buf.WriteString("b"); err != ErrOutputLimit {
		t.Fatalf("expected writes after truncation to be refused, got %v", err)
	}
	if buf.Len() != 1023 {
		t.Fatalf("expected length to stay 1023, got %d", buf.Len())
	}
}

func TestBoundedBuffer_FitsWithinCap(t *testing.T) {
	buf := NewBoundedBuffer(2) // 2 KiB
	payload := strings.Repeat("B", 1500)
	n, err := buf.Write([]byte(payload))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if n != 1500 {
		t.Fatalf("expected full write of 1500, got %d", n)
	}
	if buf.Truncated() {
		t.Fatalf("did not expect truncation")
	}
	if buf.String() != payload {
		t.Fatalf("buffer content mismatch")
	}
}

func TestBoundedBuffer_DefaultCap(t *testing.T) {
	buf := NewBoundedBuffer(0)
	n, _ := buf.Write([]byte(strings.Repeat("C", 5000)))
	if n != 4096 {
		t.Fatalf("expected default cap of 4096, got %d", n)
	}
}

func TestWithWallTimeout_TimesOutRoughlyOnBudget(t *testing.T) {
	ctx, cancel := WithWallTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	start := time.Now()
	<-ctx.Done()
	elapsed := time.Since(start)
	if elapsed < 40*time.Millisecond || elapsed > 250*time.Millisecond {
		t.Fatalf("expected ~50ms timeout, got %v", elapsed)
	}
}
