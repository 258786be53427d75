package sock_test

import (
	"fmt"
	"sync/atomic"
	"testing"
	"time"

	"github.com/legamerdc/corio"
	"github.com/legamerdc/corio/iobuf"
	"github.com/legamerdc/corio/netaddr"
	"github.com/legamerdc/corio/sock"
)

func TestEchoLoopback(t *testing.T) {
	sched, err := corio.New(corio.DefaultConfig())
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer sched.Close()

	addr, err := netaddr.Parse("127.0.0.1:0")
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}

	var serverAddr netaddr.Addr
	var serverErr, clientErr error
	var got string

	if _, err := sched.Spawn(func(task *corio.Task, _ any) {
		ln, lerr := sock.Listen(sched, task, sock.TCPClass{}, addr, 8, false)
		if lerr != nil {
			serverErr = lerr
			return
		}
		serverAddr, _ = ln.LocalAddr()
		conn, _, aerr := ln.Accept(task)
		if aerr != nil {
			serverErr = aerr
			return
		}
		buf := make([]byte, 64)
		n, rerr := conn.Read(buf)
		if rerr != nil {
			serverErr = rerr
			return
		}
		if _, werr := conn.Write(buf[:n]); werr != nil {
			serverErr = werr
		}
	}, nil); err != nil {
		t.Fatalf("spawn server: %v", err)
	}

	if _, err := sched.Spawn(func(task *corio.Task, _ any) {
		conn, cerr := sock.DialTCP(sched, task, sock.TCPClass{}, serverAddr, 0)
		if cerr != nil {
			clientErr = cerr
			return
		}
		if _, werr := conn.Write([]byte("hello")); werr != nil {
			clientErr = werr
			return
		}
		buf := make([]byte, 64)
		n, rerr := conn.Read(buf)
		if rerr != nil {
			clientErr = rerr
			return
		}
		got = string(buf[:n])
	}, nil); err != nil {
		t.Fatalf("spawn client: %v", err)
	}

	if err := sched.Loop(); err != nil {
		t.Fatalf("loop: %v", err)
	}
	if serverErr != nil {
		t.Fatalf("server: %v", serverErr)
	}
	if clientErr != nil {
		t.Fatalf("client: %v", clientErr)
	}
	if got != "hello" {
		t.Fatalf("want %q got %q", "hello", got)
	}
}

func TestConnectUnroutableTimesOut(t *testing.T) {
	sched, err := corio.New(corio.DefaultConfig())
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer sched.Close()

	// 10.255.255.1 is non-routable from most sandboxes and will not
	// complete or refuse quickly, so a short socket_timeout must fire.
	dst, err := netaddr.Parse("10.255.255.1:9")
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}

	var gotErr error
	if _, err := sched.Spawn(func(task *corio.Task, _ any) {
		_, gotErr = sock.DialTCP(sched, task, sock.TCPClass{}, dst, 200)
	}, nil); err != nil {
		t.Fatalf("spawn: %v", err)
	}

	done := make(chan error, 1)
	go func() { done <- sched.Loop() }()

	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("loop: %v", err)
		}
	case <-time.After(5 * time.Second):
		sched.Stop()
		<-done
		t.Fatal("DialTCP with a 200ms deadline did not return within 5s")
	}
	if gotErr != corio.ErrTimeout && gotErr != corio.ErrRefused {
		t.Fatalf("want timeout or refused, got %v", gotErr)
	}
}

// TestEchoHundredConnections drives many concurrent client tasks against
// one listener on a single scheduler, checking that the accept loop and
// every spawned per-connection handler interleave correctly under load
// rather than only in the trivial one-client case.
func TestEchoHundredConnections(t *testing.T) {
	const clients = 100

	sched, err := corio.New(corio.DefaultConfig())
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer sched.Close()

	addr, err := netaddr.Parse("127.0.0.1:0")
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}

	var serverAddr netaddr.Addr
	var serverErr error
	var accepted atomic.Int32
	var handled atomic.Int32

	if _, err := sched.Spawn(func(task *corio.Task, _ any) {
		ln, lerr := sock.Listen(sched, task, sock.TCPClass{}, addr, 256, false)
		if lerr != nil {
			serverErr = lerr
			return
		}
		serverAddr, _ = ln.LocalAddr()
		for i := 0; i < clients; i++ {
			conn, _, aerr := ln.Accept(task)
			if aerr != nil {
				serverErr = aerr
				return
			}
			if _, serr := sched.Spawn(func(handlerTask *corio.Task, _ any) {
				defer handled.Add(1)
				defer conn.Close()
				buf := make([]byte, 64)
				n, rerr := conn.Read(buf)
				if rerr != nil {
					return
				}
				_, _ = conn.Write(buf[:n])
				accepted.Add(1)
			}, nil); serr != nil {
				serverErr = serr
				return
			}
		}
		// Every accepted socket is owned by this task and closed by its
		// exit hooks, so stay alive until each handler is done with its
		// connection.
		for handled.Load() < clients {
			task.Wait(1)
		}
	}, nil); err != nil {
		t.Fatalf("spawn server: %v", err)
	}

	var failed atomic.Int32
	for i := 0; i < clients; i++ {
		i := i
		if _, err := sched.Spawn(func(task *corio.Task, _ any) {
			// The listener task runs to its first Accept park before any
			// client task gets a turn (FIFO spawn order), so serverAddr
			// is already populated by the time this closure runs.
			conn, cerr := sock.DialTCP(sched, task, sock.TCPClass{}, serverAddr, 2000)
			if cerr != nil {
				failed.Add(1)
				return
			}
			defer conn.Close()
			msg := fmt.Sprintf("client-%03d", i)
			if _, werr := conn.Write([]byte(msg)); werr != nil {
				failed.Add(1)
				return
			}
			buf := make([]byte, 64)
			n, rerr := conn.Read(buf)
			if rerr != nil || string(buf[:n]) != msg {
				failed.Add(1)
			}
		}, nil); err != nil {
			t.Fatalf("spawn client %d: %v", i, err)
		}
	}

	if err := sched.Loop(); err != nil {
		t.Fatalf("loop: %v", err)
	}
	if serverErr != nil {
		t.Fatalf("server: %v", serverErr)
	}
	if failed.Load() != 0 {
		t.Fatalf("%d/%d clients failed", failed.Load(), clients)
	}
	if accepted.Load() != clients {
		t.Fatalf("accepted = %d, want %d", accepted.Load(), clients)
	}
}

func TestReadLineOverflow(t *testing.T) {
	sched, err := corio.New(corio.DefaultConfig())
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer sched.Close()

	addr, _ := netaddr.Parse("127.0.0.1:0")
	var serverAddr netaddr.Addr
	var serverErr error

	if _, err := sched.Spawn(func(task *corio.Task, _ any) {
		ln, lerr := sock.Listen(sched, task, sock.TCPClass{}, addr, 8, false)
		if lerr != nil {
			serverErr = lerr
			return
		}
		serverAddr, _ = ln.LocalAddr()
		conn, _, aerr := ln.Accept(task)
		if aerr != nil {
			serverErr = aerr
			return
		}
		buf := iobuf.New(0, nil)
		n, rerr := conn.ReadLine(buf, []byte("\n"), 4)
		if rerr != corio.ErrOverflow {
			serverErr = rerr
			return
		}
		if n != 4 {
			serverErr = fmt.Errorf("n = %d, want 4", n)
			return
		}
		if got := string(buf.Bytes()); got != "abcd" {
			serverErr = fmt.Errorf("buf = %q, want %q", got, "abcd")
		}
	}, nil); err != nil {
		t.Fatalf("spawn server: %v", err)
	}

	if _, err := sched.Spawn(func(task *corio.Task, _ any) {
		conn, cerr := sock.DialTCP(sched, task, sock.TCPClass{}, serverAddr, 0)
		if cerr != nil {
			return
		}
		_, _ = conn.Write([]byte("abcdefgh"))
	}, nil); err != nil {
		t.Fatalf("spawn client: %v", err)
	}

	if err := sched.Loop(); err != nil {
		t.Fatalf("loop: %v", err)
	}
	if serverErr != nil {
		t.Fatalf("server: %v", serverErr)
	}
}
