// Package iobuf provides the minimal growable byte buffer that the socket
// layer's readb/readline/expect/writeb operations build on.
//
// The buffer-growth helper is explicitly an external collaborator per the
// runtime's scope (see SPEC_FULL.md §1): this package deliberately stays
// thin — size, ptr-equivalent slice, append, grow, and a pluggable growth
// policy — rather than reproducing a full allocator class table.
package iobuf

// GrowthPolicy computes the next capacity given the current capacity and
// the number of additional bytes requested. The default doubles until the
// requested size is reached.
type GrowthPolicy func(curCap, requested int) int

// DefaultGrowth doubles the capacity until it covers the request.
func DefaultGrowth(curCap, requested int) int {
	if curCap == 0 {
		curCap = 64
	}
	for curCap < requested {
		curCap <<= 1
	}
	return curCap
}

// Buffer is a growable byte region. Zero value is usable; it allocates
// lazily on first write.
type Buffer struct {
	buf    []byte
	maxLen int // 0 表示不限
	growth GrowthPolicy
}

// New returns a Buffer with an optional max size (0 = unbounded) and growth
// policy (nil = DefaultGrowth).
func New(maxLen int, growth GrowthPolicy) *Buffer {
	if growth == nil {
		growth = DefaultGrowth
	}
	return &Buffer{maxLen: maxLen, growth: growth}
}

// Bytes returns the current contents.
func (b *Buffer) Bytes() []byte { return b.buf }

// Len returns the number of bytes currently held.
func (b *Buffer) Len() int { return len(b.buf) }

// Cap returns the current capacity.
func (b *Buffer) Cap() int { return cap(b.buf) }

// Reset empties the buffer without releasing its backing array.
func (b *Buffer) Reset() { b.buf = b.buf[:0] }

// Grow ensures the buffer can hold n additional bytes without reallocating,
// applying the growth policy. Returns ErrOverflow if maxLen would be
// exceeded.
func (b *Buffer) Grow(n int) error {
	want := len(b.buf) + n
	if b.maxLen > 0 && want > b.maxLen {
		return ErrOverflow
	}
	if want <= cap(b.buf) {
		return nil
	}
	growth := b.growth
	if growth == nil {
		growth = DefaultGrowth
	}
	newCap := growth(cap(b.buf), want)
	if b.maxLen > 0 && newCap > b.maxLen {
		newCap = b.maxLen
	}
	nb := make([]byte, len(b.buf), newCap)
	copy(nb, b.buf)
	b.buf = nb
	return nil
}

// Append grows as needed and appends p, returning ErrOverflow if the
// resulting length would exceed maxLen.
func (b *Buffer) Append(p []byte) error {
	if err := b.Grow(len(p)); err != nil {
		return err
	}
	b.buf = append(b.buf, p...)
	return nil
}

// Truncate cuts the buffer down to n bytes, keeping the backing array.
func (b *Buffer) Truncate(n int) {
	if n < 0 || n > len(b.buf) {
		return
	}
	b.buf = b.buf[:n]
}

// Static wraps a fixed, non-owned byte slice that never grows, for
// callers that want overflow errors instead of silent reallocation.
func Static(fixed []byte) *Buffer {
	return &Buffer{buf: fixed[:0], maxLen: cap(fixed), growth: func(c, r int) int { return c }}
}
