package sock

import (
	"errors"

	"golang.org/x/sys/unix"

	"github.com/legamerdc/corio"
	"github.com/legamerdc/corio/internal/netutil"
	"github.com/legamerdc/corio/internal/rlog"
	"github.com/legamerdc/corio/netaddr"
	"github.com/legamerdc/corio/poller"
)

// Connect issues a non-blocking connect on an already-open socket (see
// New) and parks on writable readiness until it completes, times out
// (if SetTimeout was called first), or is refused. Grounded on the
// teacher's non-blocking connect pattern (EINPROGRESS then select-for-
// writable); here that is the poller's Out event instead of select.
func (s *Socket) Connect(dst netaddr.Addr) error {
	if s.closed {
		return corio.ErrClosed
	}
	sa, err := dst.ToSockaddr()
	if err != nil {
		return err
	}
	err = unix.Connect(s.fd, sa)
	if err == nil {
		return nil
	}
	if !errors.Is(err, unix.EINPROGRESS) {
		return translateErrno(err)
	}

	for {
		wake, perr := s.park(poller.Out)
		if perr != nil && wake == corio.WakeNone {
			return perr
		}
		switch wake {
		case corio.WakeTimeout:
			return corio.ErrTimeout
		case corio.WakeCancelled:
			return corio.ErrCancelled
		}
		errno, gerr := unix.GetsockoptInt(s.fd, unix.SOL_SOCKET, unix.SO_ERROR)
		if gerr != nil {
			return translateErrno(gerr)
		}
		if errno == 0 {
			return nil
		}
		e := unix.Errno(errno)
		if e == unix.EINPROGRESS {
			continue
		}
		return translateErrno(e)
	}
}

// DialTCP is the common-case convenience: open a TCP socket, optionally
// arm a deadline via SetTimeout (which stays in effect for later
// operations on the returned socket), and connect it to dst, closing the
// socket on any failure so callers never leak a half-open fd.
func DialTCP(sched *corio.Scheduler, owner *corio.Task, class TCPClass, dst netaddr.Addr, timeoutMs int) (*Socket, error) {
	s, err := New(sched, owner, class)
	if err != nil {
		return nil, err
	}
	if timeoutMs > 0 {
		s.SetTimeout(timeoutMs)
	}
	if err := s.Connect(dst); err != nil {
		_ = s.Close()
		return nil, err
	}
	return s, nil
}

// Listen opens, binds and listens a TCP socket; it never blocks.
func Listen(sched *corio.Scheduler, owner *corio.Task, class TCPClass, addr netaddr.Addr, backlog int, reusePort bool) (*Socket, error) {
	fd, err := listenTCP(class, addr, backlog, reusePort)
	if err != nil {
		return nil, translateErrno(err)
	}
	s := &Socket{sched: sched, owner: owner, class: class, fd: fd}
	s.node = corio.NewSchedNode(sched, fd, owner)
	owner.AddExitHook(func() { _ = s.Close() })
	return s, nil
}

// ListenUDP opens and binds a UDP socket; it never blocks.
func ListenUDP(sched *corio.Scheduler, owner *corio.Task, class UDPClass, addr netaddr.Addr) (*Socket, error) {
	fd, err := bindUDP(class, addr)
	if err != nil {
		return nil, translateErrno(err)
	}
	s := &Socket{sched: sched, owner: owner, class: class, fd: fd}
	s.node = corio.NewSchedNode(sched, fd, owner)
	owner.AddExitHook(func() { _ = s.Close() })
	return s, nil
}

// LocalAddr returns the address the socket is bound to, mainly useful
// right after Listen/ListenUDP when the caller asked for an ephemeral
// port (":0") and needs to learn which one the kernel picked.
func (s *Socket) LocalAddr() (netaddr.Addr, error) {
	sa, err := unix.Getsockname(s.fd)
	if err != nil {
		return netaddr.Addr{}, translateErrno(err)
	}
	return netaddr.FromSockaddr(sa)
}

// Accept parks on readable readiness until a new connection arrives on
// the listener, then wraps its fd in a Socket owned by acceptOwner (which
// may be the listener's own owner, or a freshly spawned task).
func (s *Socket) Accept(acceptOwner *corio.Task) (*Socket, netaddr.Addr, error) {
	if s.closed {
		return nil, netaddr.Addr{}, corio.ErrClosed
	}
	for {
		fd, sa, err := unix.Accept4(s.fd, unix.SOCK_NONBLOCK|unix.SOCK_CLOEXEC)
		if err == nil {
			addr, _ := netaddr.FromSockaddr(sa)
			_ = netutil.SetNoDelay(fd, true)
			return fromAccepted(s.sched, acceptOwner, s.class, fd, s), addr, nil
		}
		if !isWouldBlock(err) {
			rlog.Printf("sock", "accept fd=%d err=%v", s.fd, err)
			return nil, netaddr.Addr{}, translateErrno(err)
		}
		wake, perr := s.park(poller.In)
		if perr != nil {
			return nil, netaddr.Addr{}, perr
		}
		switch wake {
		case corio.WakeTimeout:
			return nil, netaddr.Addr{}, corio.ErrTimeout
		case corio.WakeCancelled:
			return nil, netaddr.Addr{}, corio.ErrCancelled
		}
	}
}

// Read performs one logical read, parking and retrying on would-block
// until at least one byte arrives, EOF (0, nil) is seen, or the wait
// ends in timeout/cancellation.
func (s *Socket) Read(buf []byte) (int, error) {
	return s.ioLoop(poller.In, func() (int, error) { return s.class.Read(s.fd, buf) })
}

// RecvFrom is Read's datagram counterpart, also yielding the sender.
func (s *Socket) RecvFrom(buf []byte) (int, netaddr.Addr, error) {
	var from netaddr.Addr
	n, err := s.ioLoop(poller.In, func() (int, error) {
		nr, addr, rerr := s.class.RecvFrom(s.fd, buf)
		from = addr
		return nr, rerr
	})
	return n, from, err
}

// Write performs one logical write, which may be short.
func (s *Socket) Write(buf []byte) (int, error) {
	return s.ioLoop(poller.Out, func() (int, error) { return s.class.Write(s.fd, buf) })
}

// SendTo is Write's datagram counterpart.
func (s *Socket) SendTo(buf []byte, dst netaddr.Addr) (int, error) {
	return s.ioLoop(poller.Out, func() (int, error) { return s.class.SendTo(s.fd, buf, dst) })
}

// SendFile streams count bytes from src starting at offset.
func (s *Socket) SendFile(src int, offset int64, count int) (int, error) {
	sent := 0
	for sent < count {
		n, err := s.ioLoop(poller.Out, func() (int, error) {
			return s.class.SendFile(s.fd, src, offset+int64(sent), count-sent)
		})
		sent += n
		if err != nil {
			return sent, err
		}
		if n == 0 {
			return sent, nil
		}
	}
	return sent, nil
}

// Writev drains an ordered sequence of buffers, re-parking on a short
// write until every buffer is fully sent or an error occurs.
func (s *Socket) Writev(bufs [][]byte) (int, error) {
	total := 0
	remaining := make([][]byte, len(bufs))
	copy(remaining, bufs)
	for len(remaining) > 0 {
		n, err := s.ioLoop(poller.Out, func() (int, error) { return s.class.Writev(s.fd, remaining) })
		total += n
		if err != nil {
			return total, err
		}
		remaining = advance(remaining, n)
	}
	return total, nil
}

// advance drops n bytes' worth of fully-sent buffers from the front of
// bufs, trimming a partially-sent buffer in place.
func advance(bufs [][]byte, n int) [][]byte {
	for n > 0 && len(bufs) > 0 {
		if n >= len(bufs[0]) {
			n -= len(bufs[0])
			bufs = bufs[1:]
			continue
		}
		bufs[0] = bufs[0][n:]
		n = 0
	}
	return bufs
}

// WriteB writes buf to completion, re-parking on short writes, unlike
// Write which may return after a single short attempt.
func (s *Socket) WriteB(buf []byte) (int, error) {
	n, err := s.Writev([][]byte{buf})
	return n, err
}
