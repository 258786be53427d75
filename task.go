package corio

import (
	"github.com/legamerdc/corio/poller"
	"github.com/legamerdc/corio/timerwheel"
)

// WakeCause is the reason a task was re-enqueued after parking.
type WakeCause int32

const (
	WakeNone WakeCause = iota
	WakeIOReady
	WakeTimeout
	WakeCancelled
)

func (w WakeCause) String() string {
	switch w {
	case WakeIOReady:
		return "io-ready"
	case WakeTimeout:
		return "timeout"
	case WakeCancelled:
		return "cancelled"
	default:
		return "none"
	}
}

// TaskState is the task lifecycle:
// runnable -> running -> (parked-io | parked-timer | parked-both) -> runnable -> ... -> finished.
type TaskState int32

const (
	TaskRunnable TaskState = iota
	TaskRunning
	TaskParkedIO
	TaskParkedTimer
	TaskParkedBoth
	TaskFinished
)

// Task is a cooperative routine owned by exactly one Scheduler. It is
// realized as a goroutine that only ever runs while the owning Scheduler's
// driver has explicitly handed it the turn — the two sides rendezvous on
// resumeCh/turnDoneCh so that at most one task is ever "current" and no
// locking is needed on scheduler-owned structures.
type Task struct {
	sched *Scheduler
	entry func(*Task, any)
	arg   any

	state TaskState
	wake  WakeCause

	readyEvents poller.Event
	ioErr       error

	hasTimer    bool
	timerHandle timerwheel.Handle

	exitHooks []func()

	resumeCh   chan struct{}
	turnDoneCh chan struct{}
	finished   bool
}

// Scheduler returns the owning scheduler.
func (t *Task) Scheduler() *Scheduler { return t.sched }

// State returns the task's current state.
func (t *Task) State() TaskState { return t.state }

// WakeCause returns why the task was last resumed.
func (t *Task) WakeCause() WakeCause { return t.wake }

// ReadyEvents returns the poller event set observed on the most recent
// io-ready wakeup.
func (t *Task) ReadyEvents() poller.Event { return t.readyEvents }

// IOErr returns any error attached by the poller to the most recent
// io-ready wakeup (e.g. EPOLLERR/EPOLLHUP translated to an error).
func (t *Task) IOErr() error { return t.ioErr }

// AddExitHook registers a cleanup function run, most-recently-added first,
// when the task's entry function returns. The socket layer uses this to
// close a task-owned socket automatically on task exit.
func (t *Task) AddExitHook(f func()) { t.exitHooks = append(t.exitHooks, f) }

// run is the task's goroutine body: it blocks until the driver hands it
// its first turn, executes entry to completion, then reports finished.
func (t *Task) run() {
	<-t.resumeCh
	t.entry(t, t.arg)
	t.finished = true
	t.state = TaskFinished
	t.turnDoneCh <- struct{}{}
}

// suspend hands control back to the driver and blocks until the driver
// grants another turn. Must only be called from within the task's own
// goroutine, at one of the defined suspension points.
func (t *Task) suspend() {
	t.turnDoneCh <- struct{}{}
	<-t.resumeCh
}

// Wait yields the current task; it is resumed after at least ms
// milliseconds. ms == 0 yields to the tail of the run queue.
func (t *Task) Wait(ms int) {
	if ms <= 0 {
		t.state = TaskRunnable
		t.sched.enqueueRunnable(t)
	} else {
		deadline := t.sched.now + int64(ms)
		t.hasTimer = true
		t.timerHandle = t.sched.timers.Insert(deadline, &parkWait{task: t})
		t.state = TaskParkedTimer
	}
	t.Release()
	t.hasTimer = false
}

// Release is the suspension primitive every blocking operation bottoms
// out on: it hands control back to the driver and blocks until some
// other code calls Resume on this task. It registers nothing itself —
// the caller (Scheduler.Park for socket ops, Wait for timer-only waits)
// must already have arranged a poller registration, a timer-wheel entry,
// or a self-enqueue before calling Release, or this task will never run
// again.
func (t *Task) Release() {
	t.suspend()
}

// Resume re-enqueues task as runnable; it is how the driver wakes a task
// parked via Release, whether the wakeup came from poller readiness, a
// fired timer, or scheduler_stop's cancellation broadcast.
func (t *Task) Resume() {
	t.sched.enqueueRunnable(t)
}
