package iobuf

import (
	"bytes"
	"testing"
)

func TestAppendGrowsLazily(t *testing.T) {
	b := New(0, nil)
	if b.Cap() != 0 {
		t.Fatalf("expected new buffer to have zero cap")
	}
	if err := b.Append([]byte("hello")); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !bytes.Equal(b.Bytes(), []byte("hello")) {
		t.Fatalf("got %q", b.Bytes())
	}
}

func TestAppendOverflow(t *testing.T) {
	b := New(4, nil)
	if err := b.Append([]byte("hello")); err != ErrOverflow {
		t.Fatalf("expected ErrOverflow, got %v", err)
	}
}

func TestStaticNeverGrows(t *testing.T) {
	fixed := make([]byte, 4)
	b := Static(fixed)
	if err := b.Append([]byte("ab")); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := b.Append([]byte("cde")); err != ErrOverflow {
		t.Fatalf("expected ErrOverflow on static buffer, got %v", err)
	}
}

func TestTruncateAndReset(t *testing.T) {
	b := New(0, nil)
	_ = b.Append([]byte("abcdef"))
	b.Truncate(3)
	if !bytes.Equal(b.Bytes(), []byte("abc")) {
		t.Fatalf("got %q", b.Bytes())
	}
	b.Reset()
	if b.Len() != 0 {
		t.Fatalf("expected empty buffer after reset")
	}
}
