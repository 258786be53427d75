package poller

import (
	"testing"
	"time"

	"golang.org/x/sys/unix"
)

// newPipe returns a non-blocking pipe (read end, write end), matching the
// nonblocking contract every Poller assumes its fds already satisfy.
func newPipe(t *testing.T) (int, int) {
	t.Helper()
	var fds [2]int
	if err := unix.Pipe(fds[:]); err != nil {
		t.Fatalf("pipe: %v", err)
	}
	if err := unix.SetNonblock(fds[0], true); err != nil {
		t.Fatalf("set nonblock: %v", err)
	}
	if err := unix.SetNonblock(fds[1], true); err != nil {
		t.Fatalf("set nonblock: %v", err)
	}
	t.Cleanup(func() {
		unix.Close(fds[0])
		unix.Close(fds[1])
	})
	return fds[0], fds[1]
}

func TestAddWaitReadable(t *testing.T) {
	p, err := New()
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer p.Close()

	rfd, wfd := newPipe(t)
	if err := p.Add(rfd, In); err != nil {
		t.Fatalf("Add: %v", err)
	}

	if _, err := unix.Write(wfd, []byte("x")); err != nil {
		t.Fatalf("write: %v", err)
	}

	readies, err := p.Wait(1000)
	if err != nil {
		t.Fatalf("Wait: %v", err)
	}
	if len(readies) != 1 || readies[0].FD != rfd || !readies[0].Events.Readable() {
		t.Fatalf("unexpected readies: %+v", readies)
	}
}

func TestAddTwiceErrors(t *testing.T) {
	p, err := New()
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer p.Close()

	rfd, _ := newPipe(t)
	if err := p.Add(rfd, In); err != nil {
		t.Fatalf("Add: %v", err)
	}
	if err := p.Add(rfd, In); err == nil {
		t.Fatalf("expected error re-adding the same fd")
	}
}

func TestModifyIsIdempotent(t *testing.T) {
	p, err := New()
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer p.Close()

	rfd, _ := newPipe(t)
	if err := p.Add(rfd, In); err != nil {
		t.Fatalf("Add: %v", err)
	}
	// Same event set twice in a row must be a no-op, not an error, even
	// though the second call has nothing new to tell the kernel.
	if err := p.Modify(rfd, In); err != nil {
		t.Fatalf("Modify (no-op): %v", err)
	}
	if err := p.Modify(rfd, In|Out); err != nil {
		t.Fatalf("Modify (widen): %v", err)
	}
}

func TestRemoveIsSafeWhenUnregistered(t *testing.T) {
	p, err := New()
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer p.Close()

	rfd, _ := newPipe(t)
	// Removing a never-added fd must not error, mirroring the contract
	// every caller relies on when cleaning up after a failed Add.
	if err := p.Remove(rfd); err != nil {
		t.Fatalf("Remove unregistered: %v", err)
	}

	if err := p.Add(rfd, In); err != nil {
		t.Fatalf("Add: %v", err)
	}
	if err := p.Remove(rfd); err != nil {
		t.Fatalf("Remove: %v", err)
	}
	if err := p.Remove(rfd); err != nil {
		t.Fatalf("Remove twice: %v", err)
	}
}

func TestWakeUnblocksWait(t *testing.T) {
	p, err := New()
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer p.Close()

	done := make(chan struct{})
	go func() {
		defer close(done)
		if _, err := p.Wait(-1); err != nil {
			t.Errorf("Wait: %v", err)
		}
	}()

	time.Sleep(20 * time.Millisecond)
	if err := p.Wake(); err != nil {
		t.Fatalf("Wake: %v", err)
	}

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Wake did not unblock Wait")
	}
}
