package sock

import (
	"golang.org/x/sys/unix"

	"github.com/legamerdc/corio/internal/netutil"
	"github.com/legamerdc/corio/netaddr"
)

// UDPClass is the default datagram class: a non-blocking AF_INET/
// AF_INET6 SOCK_DGRAM socket. Writev has no natural datagram meaning, so
// it sends each buffer as its own datagram, matching the common
// sendmmsg-less fallback.
type UDPClass struct {
	Family int
	// RecvBufSize/SendBufSize, when non-zero, set SO_RCVBUF/SO_SNDBUF on
	// every socket this class opens or binds, overriding the kernel
	// default — useful for a UDP class expecting bursty datagram traffic.
	RecvBufSize int
	SendBufSize int
}

func (c UDPClass) family() int {
	if c.Family == 0 {
		return unix.AF_INET
	}
	return c.Family
}

func (c UDPClass) applyBufSizes(fd int) {
	if c.RecvBufSize > 0 {
		_ = netutil.SetRecvBuf(fd, c.RecvBufSize)
	}
	if c.SendBufSize > 0 {
		_ = netutil.SetSendBuf(fd, c.SendBufSize)
	}
}

func (c UDPClass) Open() (int, error) {
	fd, err := unix.Socket(c.family(), unix.SOCK_DGRAM, unix.IPPROTO_UDP)
	if err != nil {
		return -1, err
	}
	if err := netutil.SetNonblock(fd, true); err != nil {
		unix.Close(fd)
		return -1, err
	}
	c.applyBufSizes(fd)
	return fd, nil
}

func (c UDPClass) Close(fd int) error { return unix.Close(fd) }

func (c UDPClass) Dup(fd int) (int, error) {
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

func (c UDPClass) Read(fd int, buf []byte) (int, error) { return unix.Read(fd, buf) }

func (c UDPClass) RecvFrom(fd int, buf []byte) (int, netaddr.Addr, error) {
	n, sa, err := unix.Recvfrom(fd, buf, 0)
	if err != nil || sa == nil {
		return n, netaddr.Addr{}, err
	}
	addr, aerr := netaddr.FromSockaddr(sa)
	return n, addr, aerr
}

func (c UDPClass) Write(fd int, buf []byte) (int, error) { return unix.Write(fd, buf) }

func (c UDPClass) Writev(fd int, bufs [][]byte) (int, error) {
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
	}
	return total, nil
}

func (c UDPClass) SendTo(fd int, buf []byte, dst netaddr.Addr) (int, error) {
	sa, err := dst.ToSockaddr()
	if err != nil {
		return 0, err
	}
	if err := unix.Sendto(fd, buf, 0, sa); err != nil {
		return 0, err
	}
	return len(buf), nil
}

func (c UDPClass) SendFile(fd int, src int, offset int64, count int) (int, error) {
	off := offset
	return unix.Sendfile(fd, src, &off, count)
}

func bindUDP(class UDPClass, addr netaddr.Addr) (int, error) {
	fam := unix.AF_INET
	if addr.Family == netaddr.IPv6 {
		fam = unix.AF_INET6
	}
	fd, err := unix.Socket(fam, unix.SOCK_DGRAM, unix.IPPROTO_UDP)
	if err != nil {
		return -1, err
	}
	_ = netutil.SetReuseAddr(fd, true)
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
	return fd, nil
}
