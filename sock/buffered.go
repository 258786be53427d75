package sock

import (
	"bytes"

	"github.com/legamerdc/corio"
	"github.com/legamerdc/corio/internal/ring"
	"github.com/legamerdc/corio/iobuf"
	"github.com/legamerdc/corio/poller"
)

const readScratchSize = 64 << 10

// rxRing returns the socket's internal accumulation buffer used to stage
// raw bytes for readline/expect scanning, allocating it lazily so a
// socket that never calls ReadLine/Expect never pays for one.
func (s *Socket) rxRing() *ring.Buffer {
	if s.rx == nil {
		s.rx = ring.New(4096)
	}
	return s.rx
}

// ReadB appends whatever one read syscall returns onto buf, growing it as
// needed; 0 bytes with a nil error means the peer closed its side.
func (s *Socket) ReadB(buf *iobuf.Buffer) (int, error) {
	var scratch [readScratchSize]byte
	n, err := s.ioLoop(poller.In, func() (int, error) { return s.class.Read(s.fd, scratch[:]) })
	if n > 0 {
		if aerr := buf.Append(scratch[:n]); aerr != nil {
			return n, aerr
		}
	}
	return n, err
}

// ReadLine accumulates bytes into buf, via the internal ring, until
// delim (which may be multi-byte) is seen or the accumulated length
// reaches exactly max, in which case it appends those max bytes to buf
// and fails with corio.ErrOverflow. Each round rescans only the bytes
// that could not yet contain delim, and each fill is bounded so the
// ring never accumulates past max in the first place.
func (s *Socket) ReadLine(buf *iobuf.Buffer, delim []byte, max int) (int, error) {
	rx := s.rxRing()
	scanned := 0
	for {
		data := rx.Bytes()
		from := scanned - len(delim) + 1
		if from < 0 {
			from = 0
		}
		if idx := bytes.Index(data[from:], delim); idx >= 0 {
			total := from + idx + len(delim)
			line := rx.Peek(total)
			if err := buf.Append(line); err != nil {
				return 0, err
			}
			rx.Discard(total)
			return total, nil
		}
		scanned = len(data)
		if scanned >= max {
			line := rx.Peek(max)
			if err := buf.Append(line); err != nil {
				return 0, err
			}
			rx.Discard(max)
			return max, corio.ErrOverflow
		}

		n, err := s.fillRXInto(rx, max-scanned)
		if err != nil {
			return 0, err
		}
		if n == 0 {
			return 0, nil
		}
	}
}

// Expect consumes exactly len(expected) bytes and compares them
// prefix-wise against expected, failing with corio.ErrMismatch on the
// first differing byte without consuming anything.
func (s *Socket) Expect(buf *iobuf.Buffer, expected []byte) (int, error) {
	rx := s.rxRing()
	for {
		data := rx.Bytes()
		n := len(expected)
		if len(data) < n {
			n = len(data)
		}
		for i := 0; i < n; i++ {
			if data[i] != expected[i] {
				return 0, corio.ErrMismatch
			}
		}
		if len(data) >= len(expected) {
			line := rx.Peek(len(expected))
			if err := buf.Append(line); err != nil {
				return 0, err
			}
			rx.Discard(len(expected))
			return len(expected), nil
		}

		rn, err := s.fillRXInto(rx, readScratchSize)
		if err != nil {
			return 0, err
		}
		if rn == 0 {
			return 0, nil
		}
	}
}

// fillRXInto reads one syscall's worth of bytes into rx, capped at limit
// so a caller with a hard ceiling (ReadLine's max) never pulls in more
// than it can keep; Expect has no such ceiling and passes
// readScratchSize to read as much as is available.
func (s *Socket) fillRXInto(rx *ring.Buffer, limit int) (int, error) {
	if limit <= 0 || limit > readScratchSize {
		limit = readScratchSize
	}
	var scratch [readScratchSize]byte
	n, err := s.ioLoop(poller.In, func() (int, error) { return s.class.Read(s.fd, scratch[:limit]) })
	if n > 0 {
		rx.Grow(n)
		_, _ = rx.Write(scratch[:n])
	}
	return n, err
}
