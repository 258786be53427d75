// Package timerwheel implements the scheduler's deadline-ordered structure:
// insert/cancel/pop-due, each amortized sub-linear, ties broken by
// insertion order.
//
// 本包实现调度器用到的按到期时间排序的结构：insert/cancel/pop-due，
// 均摊复杂度优于线性；相同到期时间按插入顺序排列。
package timerwheel

import "container/heap"

// Handle 标识一次 Insert 返回的条目，用于后续 Cancel。
type Handle int

// Entry 是时间轮中的一个条目：到期时间、关联的任意载荷（corio 存入的是
// 记录等待任务及其节点的等待记录）
// 以及插入序号（用于打破同一到期时间的顺序）。
type Entry struct {
	Deadline int64 // 绝对单调毫秒
	Payload  any
	seq      int64
	index    int    // heap 内部索引，-1 表示已移除
	handle   Handle // 回指自身句柄，便于 PopDue 时 O(1) 清理映射
}

type entryHeap []*Entry

func (h entryHeap) Len() int { return len(h) }
func (h entryHeap) Less(i, j int) bool {
	if h[i].Deadline != h[j].Deadline {
		return h[i].Deadline < h[j].Deadline
	}
	return h[i].seq < h[j].seq
}
func (h entryHeap) Swap(i, j int) {
	h[i], h[j] = h[j], h[i]
	h[i].index, h[j].index = i, j
}
func (h *entryHeap) Push(x any) {
	e := x.(*Entry)
	e.index = len(*h)
	*h = append(*h, e)
}
func (h *entryHeap) Pop() any {
	old := *h
	n := len(old)
	e := old[n-1]
	old[n-1] = nil
	e.index = -1
	*h = old[:n-1]
	return e
}

// Wheel 是一个按到期时间排序的堆，支持插入、按条目取消与批量弹出到期项。
type Wheel struct {
	h       entryHeap
	byHand  map[Handle]*Entry
	nextID  Handle
	nextSeq int64
}

// New 返回一个空的 Wheel。
func New() *Wheel {
	return &Wheel{byHand: make(map[Handle]*Entry)}
}

// Insert 添加一个在 deadline（绝对单调毫秒）到期、携带 payload 的条目，
// 返回可用于 Cancel 的句柄。
func (w *Wheel) Insert(deadline int64, payload any) Handle {
	e := &Entry{Deadline: deadline, Payload: payload, seq: w.nextSeq}
	w.nextSeq++
	heap.Push(&w.h, e)
	w.nextID++
	h := w.nextID
	e.handle = h
	w.byHand[h] = e
	return h
}

// Cancel 移除 handle 对应的条目，不影响其余条目的顺序。对不存在的句柄
// 调用是安全的空操作。
func (w *Wheel) Cancel(handle Handle) {
	e, ok := w.byHand[handle]
	if !ok {
		return
	}
	delete(w.byHand, handle)
	if e.index < 0 {
		return // 已经在 PopDue 中被取出
	}
	heap.Remove(&w.h, e.index)
}

// NextDeadline 返回最小的到期时间；若为空，ok 为 false。
func (w *Wheel) NextDeadline() (deadline int64, ok bool) {
	if len(w.h) == 0 {
		return 0, false
	}
	return w.h[0].Deadline, true
}

// Len 返回当前条目数。
func (w *Wheel) Len() int { return len(w.h) }

// PopDue 按到期时间升序移除并返回所有 deadline <= now 的条目。
func (w *Wheel) PopDue(now int64) []*Entry {
	var due []*Entry
	for len(w.h) > 0 && w.h[0].Deadline <= now {
		e := heap.Pop(&w.h).(*Entry)
		delete(w.byHand, e.handle)
		due = append(due, e)
	}
	return due
}
