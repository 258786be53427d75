package corio

import (
	"github.com/legamerdc/corio/poller"
)

// SchedNode is the per-object scheduling record every socket carries: an
// owning Scheduler, the task that created it, the task currently parked
// on it, and the currently-registered event set. Timer-only waits carry no
// node, and the timer-wheel handle of a deadline lives on the parked Task,
// not here.
//
// owner is fixed at construction and is purely a lifecycle concern (it is
// who the socket layer's exit hooks belong to); it is NOT necessarily the
// task blocked on the node at any given moment — a task can accept a
// connection and hand it to a freshly spawned task to serve, in which case
// the handler, not the accepting task, is the one that parks on reads and
// writes. waiter tracks that: Park sets it to whichever task is actually
// calling Park right before registering, and every wake path resumes
// waiter, never owner.
//
// SchedNode 是每个套接字携带的调度记录：所属调度器、创建者任务、当前
// 等待任务，以及实际注册的事件集合。纯定时等待不携带节点；截止时间对应
// 的时间轮句柄保存在 Task 上而非节点中。owner 只用于生命周期（exit hook
// 归属），真正会被唤醒的任务是 waiter，在每次 Park 时刷新为当前任务。
type SchedNode struct {
	sched  *Scheduler
	fd     poller.FD
	owner  *Task
	waiter *Task

	registered     poller.Event
	pollRegistered bool
}

// NewSchedNode allocates a node for fd, owned by task, on the given
// scheduler.
func NewSchedNode(s *Scheduler, fd poller.FD, owner *Task) *SchedNode {
	return &SchedNode{sched: s, fd: fd, owner: owner}
}

// FD returns the node's file descriptor.
func (n *SchedNode) FD() poller.FD { return n.fd }

// Owner returns the task that created this node, for lifecycle purposes
// (e.g. exit-hook auto-close). It is not necessarily the task currently
// parked on the node — see Waiter.
func (n *SchedNode) Owner() *Task { return n.owner }

// Waiter returns the task currently parked on this node, or nil if none
// has parked on it yet.
func (n *SchedNode) Waiter() *Task { return n.waiter }

// parkWait is the payload stored in the timer wheel for any deadline —
// bare task_wait deadlines carry a nil node, socket deadlines carry the
// node so the driver can also drop the poller registration on timeout.
type parkWait struct {
	task *Task
	node *SchedNode
}
