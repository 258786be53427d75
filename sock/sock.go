// Package sock layers the cooperative socket abstraction on top of
// corio.Scheduler: a file descriptor, a SchedNode, a pluggable Class
// dispatch table, and the suspension protocol that turns "would block"
// into a park/resume cycle instead of a blocking syscall.
//
// 本包在 corio.Scheduler 之上实现协作式套接字抽象：文件描述符、
// SchedNode、可插拔的 Class 分发表，以及把“会阻塞”转换为
// park/resume 循环而非真正阻塞系统调用的挂起协议。
package sock

import (
	"errors"
	"fmt"
	"syscall"

	"golang.org/x/sys/unix"

	"github.com/legamerdc/corio"
	"github.com/legamerdc/corio/internal/ring"
	"github.com/legamerdc/corio/netaddr"
	"github.com/legamerdc/corio/poller"
)

// Class is the per-variant dispatch table every Socket delegates its raw
// I/O to. TCPClass and UDPClass are the defaults; an embedder may wrap
// either (e.g. a TLS class that encrypts Write and decrypts Read) and
// delegate the rest unchanged.
//
// Every method receives the raw fd and must not block: it performs one
// non-blocking syscall attempt and returns unix.EAGAIN/EWOULDBLOCK
// untranslated so the suspension protocol in Socket can recognize it.
type Class interface {
	// Open creates a fresh non-blocking fd of the class's socket type.
	Open() (int, error)
	Close(fd int) error
	Dup(fd int) (int, error)
	Read(fd int, buf []byte) (int, error)
	RecvFrom(fd int, buf []byte) (int, netaddr.Addr, error)
	Write(fd int, buf []byte) (int, error)
	Writev(fd int, bufs [][]byte) (int, error)
	SendTo(fd int, buf []byte, dst netaddr.Addr) (int, error)
	SendFile(fd int, src int, offset int64, count int) (int, error)
}

// Socket is a file descriptor wrapped with a SchedNode, a Class, and the
// io_calls counter the suspension protocol uses to avoid starving peers.
type Socket struct {
	sched *corio.Scheduler
	owner *corio.Task
	node  *corio.SchedNode
	class Class

	fd     int
	closed bool

	ioCalls    int
	timeoutMs  int64
	hasTimeout bool

	parent *Socket

	rx *ring.Buffer
}

// New creates a Socket on a fresh fd from class.Open, not yet connected
// or bound, attached to sched and owner, and registers
// an exit hook on owner so the socket is closed if the task returns
// without closing it explicitly — a leaked fd on task exit is always a
// bug, never intended behavior.
func New(sched *corio.Scheduler, owner *corio.Task, class Class) (*Socket, error) {
	fd, err := class.Open()
	if err != nil {
		return nil, translateErrno(err)
	}
	s := &Socket{
		sched: sched,
		owner: owner,
		class: class,
		fd:    fd,
	}
	s.node = corio.NewSchedNode(sched, fd, owner)
	owner.AddExitHook(func() { _ = s.Close() })
	return s, nil
}

// fromAccepted wraps an already-open fd (returned by accept) with its own
// node, tracking listener as parent for accounting only.
func fromAccepted(sched *corio.Scheduler, owner *corio.Task, class Class, fd int, listener *Socket) *Socket {
	s := &Socket{
		sched:  sched,
		owner:  owner,
		class:  class,
		fd:     fd,
		parent: listener,
	}
	s.node = corio.NewSchedNode(sched, fd, owner)
	owner.AddExitHook(func() { _ = s.Close() })
	return s
}

// FD returns the underlying file descriptor.
func (s *Socket) FD() int { return s.fd }

// Parent returns the listener a socket was accepted from, or nil.
func (s *Socket) Parent() *Socket { return s.parent }

// SetTimeout arms a deadline of ms milliseconds for every wait a blocking
// operation on this socket makes, measured from the moment it parks; it
// stays in effect for later operations until SetTimeout is called again,
// and 0 disables it. A wait that is already parked keeps the deadline it
// was armed with.
func (s *Socket) SetTimeout(ms int) {
	if ms <= 0 {
		s.hasTimeout = false
		s.timeoutMs = 0
		return
	}
	s.hasTimeout = true
	s.timeoutMs = int64(ms)
}

// Close removes the node from the poller (if registered) and releases
// the fd. Safe to call more than once.
func (s *Socket) Close() error {
	if s.closed {
		return nil
	}
	s.closed = true
	_ = s.sched.Poller().Remove(s.fd)
	return translateErrno(s.class.Close(s.fd))
}

// Dup duplicates the socket's fd and wraps it in a new Socket registered
// on destSched, owned by destOwner.
func (s *Socket) Dup(destSched *corio.Scheduler, destOwner *corio.Task) (*Socket, error) {
	nfd, err := s.class.Dup(s.fd)
	if err != nil {
		return nil, translateErrno(err)
	}
	ns := &Socket{sched: destSched, owner: destOwner, class: s.class, fd: nfd}
	ns.node = corio.NewSchedNode(destSched, nfd, destOwner)
	destOwner.AddExitHook(func() { _ = ns.Close() })
	return ns, nil
}

func isWouldBlock(err error) bool {
	return errors.Is(err, unix.EAGAIN) || errors.Is(err, unix.EWOULDBLOCK) || errors.Is(err, unix.EINPROGRESS)
}

func translateErrno(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, unix.ECONNREFUSED):
		return corio.ErrRefused
	case errors.Is(err, unix.EPIPE), errors.Is(err, unix.ECONNRESET):
		return corio.ErrEPipe
	}
	var errno syscall.Errno
	if errors.As(err, &errno) {
		return fmt.Errorf("%w: %w", corio.ErrSyscall, err)
	}
	return err
}

// park suspends the calling task on this socket's node for events,
// honoring any deadline armed by SetTimeout, and removes the node's
// poller registration unconditionally before returning — so a blocking
// op never leaves its socket registered for the wait it just finished.
// The caller need not be the task that created the socket: a handler
// task spawned to serve an accepted connection parks here too.
func (s *Socket) park(events poller.Event) (corio.WakeCause, error) {
	var timeoutMs int64
	hasDeadline := s.hasTimeout
	if hasDeadline {
		timeoutMs = s.timeoutMs
	}
	return s.sched.Park(s.node, events, timeoutMs, hasDeadline)
}

// ioLoop performs attempt non-blockingly, parking on events and retrying
// on would-block until it either completes or the wait ends in timeout
// or cancellation. If MAX_IO_CALLS retries pass without transferring a
// single byte, it yields once to the tail of the run queue and resets
// the counter, so one hot socket cannot starve its peers.
func (s *Socket) ioLoop(events poller.Event, attempt func() (int, error)) (int, error) {
	if s.closed {
		return 0, corio.ErrClosed
	}
	progressed := false
	for {
		n, err := attempt()
		if n > 0 {
			progressed = true
		}
		if err == nil {
			s.ioCalls = 0
			return n, nil
		}
		if !isWouldBlock(err) {
			s.ioCalls = 0
			return n, translateErrno(err)
		}

		wake, perr := s.park(events)
		if perr != nil {
			return n, perr
		}
		switch wake {
		case corio.WakeTimeout:
			s.ioCalls = 0
			return n, corio.ErrTimeout
		case corio.WakeCancelled:
			s.ioCalls = 0
			return n, corio.ErrCancelled
		}

		s.ioCalls++
		maxCalls := s.sched.Config().MaxIOCalls
		if maxCalls <= 0 {
			maxCalls = corio.DefaultConfig().MaxIOCalls
		}
		if s.ioCalls >= maxCalls && !progressed {
			s.ioCalls = 0
			s.sched.Current().Wait(0)
		}
	}
}
