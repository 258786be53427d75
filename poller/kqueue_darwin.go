//go:build darwin

package poller

import (
	"errors"

	"golang.org/x/sys/unix"
)

type kqueuePoller struct {
	kq     int
	wfd    int // 写端，用于唤醒
	rfd    int // 读端，注册到 kqueue
	closed bool
	reg    map[FD]Event
}

// New 创建一个基于 kqueue 的 Poller。
func New() (Poller, error) {
	kq, err := unix.Kqueue()
	if err != nil {
		return nil, err
	}
	var pp [2]int
	if err := unix.Pipe(pp[:]); err != nil {
		unix.Close(kq)
		return nil, err
	}
	rfd, wfd := pp[0], pp[1]
	_ = unix.SetNonblock(rfd, true)
	_ = unix.SetNonblock(wfd, true)
	kev := unix.Kevent_t{
		Ident:  uint64(rfd),
		Filter: unix.EVFILT_READ,
		Flags:  unix.EV_ADD | unix.EV_CLEAR,
	}
	if _, err = unix.Kevent(kq, []unix.Kevent_t{kev}, nil, nil); err != nil {
		unix.Close(rfd)
		unix.Close(wfd)
		unix.Close(kq)
		return nil, err
	}
	return &kqueuePoller{kq: kq, wfd: wfd, rfd: rfd, reg: make(map[FD]Event)}, nil
}

func (p *kqueuePoller) changesFor(fd FD, events Event) []unix.Kevent_t {
	cur := p.reg[fd]
	var changes []unix.Kevent_t
	if events.Readable() {
		changes = append(changes, unix.Kevent_t{Ident: uint64(fd), Filter: unix.EVFILT_READ, Flags: unix.EV_ADD | unix.EV_CLEAR})
	} else if cur.Readable() {
		changes = append(changes, unix.Kevent_t{Ident: uint64(fd), Filter: unix.EVFILT_READ, Flags: unix.EV_DELETE})
	}
	if events.Writable() {
		changes = append(changes, unix.Kevent_t{Ident: uint64(fd), Filter: unix.EVFILT_WRITE, Flags: unix.EV_ADD | unix.EV_CLEAR})
	} else if cur.Writable() {
		changes = append(changes, unix.Kevent_t{Ident: uint64(fd), Filter: unix.EVFILT_WRITE, Flags: unix.EV_DELETE})
	}
	return changes
}

func (p *kqueuePoller) Add(fd FD, events Event) error {
	if _, ok := p.reg[fd]; ok {
		return ErrAlreadyAdded
	}
	if _, err := unix.Kevent(p.kq, p.changesFor(fd, events), nil, nil); err != nil {
		return err
	}
	p.reg[fd] = events
	return nil
}

func (p *kqueuePoller) Modify(fd FD, events Event) error {
	if cur, ok := p.reg[fd]; ok && cur == events {
		return nil
	}
	if _, err := unix.Kevent(p.kq, p.changesFor(fd, events), nil, nil); err != nil {
		return err
	}
	p.reg[fd] = events
	return nil
}

func (p *kqueuePoller) Remove(fd FD) error {
	changes := p.changesFor(fd, 0)
	delete(p.reg, fd)
	if len(changes) == 0 {
		return nil
	}
	_, err := unix.Kevent(p.kq, changes, nil, nil)
	if err == unix.ENOENT {
		return nil
	}
	return err
}

func (p *kqueuePoller) Wake() error {
	var b [1]byte
	b[0] = 1
	_, err := unix.Write(p.wfd, b[:])
	if err == unix.EAGAIN {
		return nil
	}
	return err
}

func (p *kqueuePoller) Close() error {
	p.closed = true
	unix.Close(p.rfd)
	unix.Close(p.wfd)
	return unix.Close(p.kq)
}

// msToTimespec 将毫秒超时转换为 kevent 所需的 Timespec；负数表示永久阻塞。
func msToTimespec(timeoutMs int) *unix.Timespec {
	if timeoutMs < 0 {
		return nil
	}
	ts := unix.NsecToTimespec(int64(timeoutMs) * 1e6)
	return &ts
}

func (p *kqueuePoller) Wait(timeoutMs int) ([]Ready, error) {
	events := make([]unix.Kevent_t, 1024)
	n, err := unix.Kevent(p.kq, nil, events, msToTimespec(timeoutMs))
	if err != nil {
		if err == unix.EINTR {
			return nil, nil
		}
		return nil, err
	}
	byFD := make(map[FD]*Ready, n)
	order := make([]FD, 0, n)
	buf := make([]byte, 16)
	for i := 0; i < n; i++ {
		ev := events[i]
		fd := int(ev.Ident)
		if fd == p.rfd {
			for {
				_, rerr := unix.Read(p.rfd, buf)
				if rerr == unix.EAGAIN {
					break
				}
				if rerr != nil {
					break
				}
			}
			continue
		}
		r, ok := byFD[fd]
		if !ok {
			r = &Ready{FD: fd}
			byFD[fd] = r
			order = append(order, fd)
		}
		if ev.Filter == unix.EVFILT_READ {
			r.Events |= In
		}
		if ev.Filter == unix.EVFILT_WRITE {
			r.Events |= Out
		}
		if (ev.Flags & unix.EV_EOF) != 0 {
			r.Err = errors.New("poller: kqueue eof")
		}
	}
	ready := make([]Ready, 0, len(order))
	for _, fd := range order {
		ready = append(ready, *byFD[fd])
	}
	return ready, nil
}
