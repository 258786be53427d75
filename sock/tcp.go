package sock

import (
	"golang.org/x/sys/unix"

	"github.com/legamerdc/corio/internal/netutil"
	"github.com/legamerdc/corio/netaddr"
)

// TCPClass is the default stream class: a non-blocking, close-on-exec
// AF_INET/AF_INET6 SOCK_STREAM socket with TCP_NODELAY set, delegating
// every data-path method straight to the read/write/writev/sendfile
// syscalls.
type TCPClass struct {
	// Family fixes which address family Open creates; defaults to
	// unix.AF_INET when zero.
	Family int
	// RecvBufSize/SendBufSize, when non-zero, set SO_RCVBUF/SO_SNDBUF on
	// every socket this class opens, overriding the kernel default.
	RecvBufSize int
	SendBufSize int
}

func (c TCPClass) family() int {
	if c.Family == 0 {
		return unix.AF_INET
	}
	return c.Family
}

func (c TCPClass) applyBufSizes(fd int) {
	if c.RecvBufSize > 0 {
		_ = netutil.SetRecvBuf(fd, c.RecvBufSize)
	}
	if c.SendBufSize > 0 {
		_ = netutil.SetSendBuf(fd, c.SendBufSize)
	}
}

func (c TCPClass) Open() (int, error) {
	fd, err := unix.Socket(c.family(), unix.SOCK_STREAM|unix.SOCK_CLOEXEC, unix.IPPROTO_TCP)
	if err != nil {
		return -1, err
	}
	if err := netutil.SetNonblock(fd, true); err != nil {
		unix.Close(fd)
		return -1, err
	}
	_ = netutil.SetNoDelay(fd, true)
	c.applyBufSizes(fd)
	return fd, nil
}

func (c TCPClass) Close(fd int) error { return unix.Close(fd) }

func (c TCPClass) Dup(fd int) (int, error) {
	nfd, err := unix.Dup(fd)
	if err != nil {
		return -1, err
	}
	if err := netutil.SetNonblock(nfd, true); err != nil {
		unix.Close(nfd)
		return -1, err
	}
	return nfd, nil
}

func (c TCPClass) Read(fd int, buf []byte) (int, error) { return unix.Read(fd, buf) }

func (c TCPClass) RecvFrom(fd int, buf []byte) (int, netaddr.Addr, error) {
	n, sa, err := unix.Recvfrom(fd, buf, 0)
	if err != nil || sa == nil {
		return n, netaddr.Addr{}, err
	}
	addr, aerr := netaddr.FromSockaddr(sa)
	return n, addr, aerr
}

func (c TCPClass) Write(fd int, buf []byte) (int, error) { return unix.Write(fd, buf) }

func (c TCPClass) Writev(fd int, bufs [][]byte) (int, error) {
	total := 0
	for _, b := range bufs {
		n, err := unix.Write(fd, b)
		if err != nil {
			if total > 0 && isWouldBlock(err) {
				return total, nil
			}
			return total, err
		}
		total += n
		if n < len(b) {
			return total, nil
		}
	}
	return total, nil
}

func (c TCPClass) SendTo(fd int, buf []byte, dst netaddr.Addr) (int, error) {
	sa, err := dst.ToSockaddr()
	if err != nil {
		return 0, err
	}
	if err := unix.Sendto(fd, buf, 0, sa); err != nil {
		return 0, err
	}
	return len(buf), nil
}

func (c TCPClass) SendFile(fd int, src int, offset int64, count int) (int, error) {
	off := offset
	return unix.Sendfile(fd, src, &off, count)
}

// listenTCP creates, binds and listens a TCPClass fd on addr, returning
// the raw listener fd.
func listenTCP(class TCPClass, addr netaddr.Addr, backlog int, reusePort bool) (int, error) {
	fam := unix.AF_INET
	if addr.Family == netaddr.IPv6 {
		fam = unix.AF_INET6
	}
	fd, err := unix.Socket(fam, unix.SOCK_STREAM, unix.IPPROTO_TCP)
	if err != nil {
		return -1, err
	}
	_ = netutil.SetReuseAddr(fd, true)
	if reusePort {
		_ = netutil.SetReusePort(fd, true)
	}
	class.applyBufSizes(fd)
	if err := netutil.SetNonblock(fd, true); err != nil {
		unix.Close(fd)
		return -1, err
	}
	sa, err := addr.ToSockaddr()
	if err != nil {
		unix.Close(fd)
		return -1, err
	}
	if err := unix.Bind(fd, sa); err != nil {
		unix.Close(fd)
		return -1, err
	}
	if backlog <= 0 {
		backlog = 1024
	}
	if err := unix.Listen(fd, backlog); err != nil {
		unix.Close(fd)
		return -1, err
	}
	return fd, nil
}
