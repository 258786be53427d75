//go:build linux

package poller

import (
	"errors"

	"golang.org/x/sys/unix"
)

func toEpollEvents(e Event) uint32 {
	var flag uint32 = unix.EPOLLET
	if e.Readable() {
		flag |= unix.EPOLLIN
	}
	if e.Writable() {
		flag |= unix.EPOLLOUT
	}
	return flag
}

type epollPoller struct {
	efd    int
	wfd    int // eventfd，用于跨 goroutine 唤醒
	closed bool
	reg    map[FD]Event // 当前在 epoll 中注册的事件集合，供 Modify 做空操作判断
}

// New 创建一个基于 epoll 的 Poller。
func New() (Poller, error) {
	efd, err := unix.EpollCreate1(unix.EPOLL_CLOEXEC)
	if err != nil {
		return nil, err
	}
	wfd, err := unix.Eventfd(0, unix.EFD_NONBLOCK|unix.EFD_CLOEXEC)
	if err != nil {
		unix.Close(efd)
		return nil, err
	}
	p := &epollPoller{efd: efd, wfd: wfd, reg: make(map[FD]Event)}
	ev := &unix.EpollEvent{Events: unix.EPOLLIN | unix.EPOLLET, Fd: int32(wfd)}
	if err := unix.EpollCtl(efd, unix.EPOLL_CTL_ADD, wfd, ev); err != nil {
		unix.Close(wfd)
		unix.Close(efd)
		return nil, err
	}
	return p, nil
}

func (p *epollPoller) Add(fd FD, events Event) error {
	if _, ok := p.reg[fd]; ok {
		return ErrAlreadyAdded
	}
	ev := &unix.EpollEvent{Events: toEpollEvents(events), Fd: int32(fd)}
	if err := unix.EpollCtl(p.efd, unix.EPOLL_CTL_ADD, fd, ev); err != nil {
		return err
	}
	p.reg[fd] = events
	return nil
}

func (p *epollPoller) Modify(fd FD, events Event) error {
	if cur, ok := p.reg[fd]; ok && cur == events {
		return nil // 空操作
	}
	ev := &unix.EpollEvent{Events: toEpollEvents(events), Fd: int32(fd)}
	if err := unix.EpollCtl(p.efd, unix.EPOLL_CTL_MOD, fd, ev); err != nil {
		return err
	}
	p.reg[fd] = events
	return nil
}

func (p *epollPoller) Remove(fd FD) error {
	delete(p.reg, fd)
	err := unix.EpollCtl(p.efd, unix.EPOLL_CTL_DEL, fd, nil)
	if err == unix.ENOENT {
		return nil
	}
	return err
}

func (p *epollPoller) Wake() error {
	var buf [8]byte
	buf[0] = 1
	_, err := unix.Write(p.wfd, buf[:])
	if err == unix.EAGAIN {
		return nil
	}
	return err
}

func (p *epollPoller) Close() error {
	p.closed = true
	unix.Close(p.wfd)
	return unix.Close(p.efd)
}

func (p *epollPoller) Wait(timeoutMs int) ([]Ready, error) {
	events := make([]unix.EpollEvent, 1024)
	n, err := unix.EpollWait(p.efd, events, timeoutMs)
	if err != nil {
		if err == unix.EINTR {
			return nil, nil
		}
		return nil, err
	}
	ready := make([]Ready, 0, n)
	var efdBuf [8]byte
	for i := 0; i < n; i++ {
		ev := events[i]
		fd := int(ev.Fd)
		if fd == p.wfd {
			for {
				_, rerr := unix.Read(p.wfd, efdBuf[:])
				if rerr == unix.EAGAIN {
					break
				}
				if rerr != nil {
					break
				}
			}
			continue
		}
		r := Ready{FD: fd}
		if (ev.Events & (unix.EPOLLERR | unix.EPOLLHUP)) != 0 {
			r.Err = errors.New("poller: epoll err|hup")
		}
		if (ev.Events & unix.EPOLLIN) != 0 {
			r.Events |= In
		}
		if (ev.Events & unix.EPOLLOUT) != 0 {
			r.Events |= Out
		}
		ready = append(ready, r)
	}
	return ready, nil
}
