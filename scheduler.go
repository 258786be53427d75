// Package corio implements a single-threaded cooperative I/O scheduler: a
// readiness-based event loop that multiplexes many Tasks onto one poller
// and one timer wheel through an explicit suspend/resume protocol, so
// that arbitrary blocking operations — not just accept/read/write — can
// park a task and be resumed in FIFO, deadline-ordered fashion.
package corio

import (
	"errors"
	"math"
	"time"

	"github.com/eapache/queue"

	"github.com/legamerdc/corio/internal/rlog"
	"github.com/legamerdc/corio/poller"
	"github.com/legamerdc/corio/timerwheel"
)

// Scheduler owns a run queue, a timer wheel, a poller, and every task and
// socket node registered with it. All of its fields are touched only from
// the scheduler's own driver goroutine (or from a task's goroutine during
// its exclusive turn, which is equivalent) — the sole exception is
// stopping, which is set atomically so Stop can be called cross-goroutine.
type Scheduler struct {
	cfg Config

	runq   *queue.Queue
	timers *timerwheel.Wheel
	poller poller.Poller

	nodeByFD map[poller.FD]*SchedNode

	current    *Task
	tasksAlive int
	now        int64 // 单调毫秒，每轮迭代刷新一次

	stopping boolFlag
}

// New creates a Scheduler with its own poller instance for the current
// platform.
func New(cfg Config) (*Scheduler, error) {
	if cfg.MaxIOCalls <= 0 {
		cfg.MaxIOCalls = DefaultConfig().MaxIOCalls
	}
	p, err := poller.New()
	if err != nil {
		return nil, err
	}
	return &Scheduler{
		cfg:      cfg,
		runq:     queue.New(),
		timers:   timerwheel.New(),
		poller:   p,
		nodeByFD: make(map[poller.FD]*SchedNode),
	}, nil
}

// Config returns the scheduler's configuration.
func (s *Scheduler) Config() Config { return s.cfg }

// Current returns the task currently running, or nil when the driver
// itself has control.
func (s *Scheduler) Current() *Task { return s.current }

// Poller exposes the underlying poller, mainly so the socket layer can
// unregister sockets outside of the park/suspend protocol (e.g. when a
// socket is closed) without the runtime package needing to know about
// sockets at all.
func (s *Scheduler) Poller() poller.Poller { return s.poller }

// NowMs returns the epoch cached at the start of the current loop
// iteration; it only advances once per iteration.
func (s *Scheduler) NowMs() int64 { return s.now }

// Spawn allocates a stack (a goroutine, in this realization), primes
// entry, and enqueues the new task as runnable. It returns before entry
// runs.
func (s *Scheduler) Spawn(entry func(*Task, any), arg any) (*Task, error) {
	if s.stopping.Load() {
		return nil, ErrStopped
	}
	t := &Task{
		sched:      s,
		entry:      entry,
		arg:        arg,
		state:      TaskRunnable,
		resumeCh:   make(chan struct{}),
		turnDoneCh: make(chan struct{}),
	}
	s.tasksAlive++
	s.enqueueRunnable(t)
	go t.run()
	return t, nil
}

// Stop marks the scheduler as stopping; every parked task is woken with
// WakeCancelled on the next loop iteration. Safe to call from any
// goroutine.
func (s *Scheduler) Stop() {
	s.stopping.Store(true)
	_ = s.poller.Wake()
}

// trackNode adds n.fd to the poller for events and records n as the node
// the scheduler tracks for that fd. Park calls it on every park cycle; the
// wake paths undo it through untrackNode.
func (s *Scheduler) trackNode(n *SchedNode, events poller.Event) error {
	if err := s.poller.Add(n.fd, events); err != nil {
		if errors.Is(err, poller.ErrAlreadyAdded) {
			return ErrAlreadyRegistered
		}
		return err
	}
	n.registered = events
	n.pollRegistered = true
	s.nodeByFD[n.fd] = n
	return nil
}

func (s *Scheduler) untrackNode(n *SchedNode) {
	if !n.pollRegistered {
		return
	}
	_ = s.poller.Remove(n.fd)
	delete(s.nodeByFD, n.fd)
	n.pollRegistered = false
}

// Park registers n.fd for events (adding a timer entry too when
// hasDeadline), then suspends the calling task — s.current, not n.Owner()
// — until it is woken by readiness, timeout, or cancellation. A node can
// outlive many parks across many different tasks (accept hands a node to
// one task, a spawned handler then parks on it), so the task to wake is
// recorded fresh on every call, never read from the node's original
// owner. Returns the wake cause and, for io-ready wakeups, any error the
// poller attached to the event (EPOLLERR/HUP and the like).
//
// A failed registration leaves the node unregistered (only its waiter is
// updated) and returns the poller's error, with an fd that is already
// added reported as ErrAlreadyRegistered; the caller never ends up parked
// on a node that isn't actually registered.
func (s *Scheduler) Park(n *SchedNode, events poller.Event, timeoutMs int64, hasDeadline bool) (WakeCause, error) {
	t := s.current
	n.waiter = t
	if err := s.trackNode(n, events); err != nil {
		return WakeNone, err
	}
	if hasDeadline {
		t.hasTimer = true
		t.timerHandle = s.timers.Insert(s.now+timeoutMs, &parkWait{task: t, node: n})
		t.state = TaskParkedBoth
	} else {
		t.state = TaskParkedIO
	}
	t.Release()
	t.hasTimer = false
	if t.wake != WakeIOReady {
		return t.wake, nil
	}
	return t.wake, t.ioErr
}

// enqueueRunnable marks t runnable and appends it to the FIFO run queue.
func (s *Scheduler) enqueueRunnable(t *Task) {
	t.state = TaskRunnable
	s.runq.Add(t)
}

func (s *Scheduler) dequeueRunnable() *Task {
	if s.runq.Length() == 0 {
		return nil
	}
	return s.runq.Remove().(*Task)
}

// runTask hands t its turn and blocks until it suspends or finishes.
func (s *Scheduler) runTask(t *Task) {
	t.state = TaskRunning
	s.current = t
	t.resumeCh <- struct{}{}
	<-t.turnDoneCh
	s.current = nil
	if t.finished {
		s.tasksAlive--
		for i := len(t.exitHooks) - 1; i >= 0; i-- {
			t.exitHooks[i]()
		}
	}
}

// drainDueTimers implements loop step 2: pop everything due, mark
// wake-cause timeout, drop any paired poller registration, enqueue.
func (s *Scheduler) drainDueTimers() {
	for _, e := range s.timers.PopDue(s.now) {
		pw := e.Payload.(*parkWait)
		t := pw.task
		t.hasTimer = false
		t.wake = WakeTimeout
		if pw.node != nil {
			s.untrackNode(pw.node)
		}
		t.Resume()
	}
}

// cancelAllParked implements scheduler_stop's broadcast: every task
// parked in the poller registry or the timer wheel is woken with
// WakeCancelled. Idempotent — once the tables are empty, subsequent calls
// are no-ops, so it is safe to call on every iteration while stopping.
func (s *Scheduler) cancelAllParked() {
	seen := make(map[*Task]bool, len(s.nodeByFD))
	for fd, n := range s.nodeByFD {
		_ = s.poller.Remove(fd)
		n.pollRegistered = false
		t := n.waiter
		if seen[t] {
			continue
		}
		seen[t] = true
		t.hasTimer = false
		t.wake = WakeCancelled
		t.Resume()
	}
	s.nodeByFD = make(map[poller.FD]*SchedNode)

	for _, e := range s.timers.PopDue(math.MaxInt64) {
		pw := e.Payload.(*parkWait)
		t := pw.task
		t.hasTimer = false
		if seen[t] {
			continue
		}
		seen[t] = true
		t.wake = WakeCancelled
		t.Resume()
	}
}

// computeTimeoutMs picks poller.Wait's timeout: time to the next
// deadline, clamped by PollTimeoutCap so the driver periodically rechecks
// the stopping flag even with nothing due.
func (s *Scheduler) computeTimeoutMs() int {
	capMs := -1
	if s.cfg.PollTimeoutCap > 0 {
		capMs = int(s.cfg.PollTimeoutCap / time.Millisecond)
	}
	deadline, ok := s.timers.NextDeadline()
	if !ok {
		return capMs
	}
	t := int(deadline - s.now)
	if t < 0 {
		t = 0
	}
	if capMs >= 0 && t > capMs {
		t = capMs
	}
	return t
}

func (s *Scheduler) processReadies(readies []poller.Ready) {
	for _, r := range readies {
		n, ok := s.nodeByFD[r.FD]
		if !ok {
			continue
		}
		t := n.waiter
		if t.hasTimer {
			s.timers.Cancel(t.timerHandle)
			t.hasTimer = false
		}
		t.wake = WakeIOReady
		t.readyEvents = r.Events
		t.ioErr = r.Err
		s.untrackNode(n)
		t.Resume()
	}
}

// Loop runs the scheduler's driver until the run queue empties and no
// tasks remain parked, or until Stop is called and every task unwinds.
func (s *Scheduler) Loop() error {
	for {
		s.now = nowMonoMs()

		if s.stopping.Load() {
			s.cancelAllParked()
		} else {
			s.drainDueTimers()
		}

		if t := s.dequeueRunnable(); t != nil {
			s.runTask(t)
			continue
		}

		if s.tasksAlive == 0 {
			return nil
		}

		timeoutMs := s.computeTimeoutMs()
		readies, err := s.poller.Wait(timeoutMs)
		if err != nil {
			rlog.Printf("corio", "poller wait failed: %v", err)
			return err
		}
		s.processReadies(readies)
	}
}

// Close releases the scheduler's poller. Call after Loop returns.
func (s *Scheduler) Close() error {
	return s.poller.Close()
}

// bootTime anchors the runtime's monotonic clock; time.Since retains the
// monotonic reading carried on time.Time values derived from time.Now,
// so elapsed-ms comparisons stay correct across wall-clock adjustments.
var bootTime = time.Now()

func nowMonoMs() int64 {
	return time.Since(bootTime).Milliseconds()
}
