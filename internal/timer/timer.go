// Package timer implements the deadline-ordered callback scheduler the
// run loop drains on every dispatch: a handle-based priority queue
// with a Push/PeepMin/PopMin/Size shape, built on container/heap.
package timer

import "container/heap"

// Handle identifies a scheduled timer so it can later be cancelled.
type Handle uint64

// Callback is invoked when a timer fires, receiving the network time
// at which it fired (which may be later than its scheduled deadline).
type Callback func(now float64)

type entry struct {
	deadline float64
	handle   Handle
	cb       Callback
	canceled bool
	seq      uint64 // tiebreak for stable FIFO among equal deadlines
}

type entryHeap []*entry

func (h entryHeap) Len() int { return len(h) }
func (h entryHeap) Less(i, j int) bool {
	if h[i].deadline != h[j].deadline {
		return h[i].deadline < h[j].deadline
	}
	return h[i].seq < h[j].seq
}
func (h entryHeap) Swap(i, j int) { h[i], h[j] = h[j], h[i] }
func (h *entryHeap) Push(x any)   { *h = append(*h, x.(*entry)) }
func (h *entryHeap) Pop() any {
	old := *h
	n := len(old)
	e := old[n-1]
	*h = old[:n-1]
	return e
}

// Manager is a min-heap of deadlines in network time, draining up to a
// bounded budget of expired entries per Advance call.
type Manager struct {
	heap    entryHeap
	byHandle map[Handle]*entry
	nextHandle Handle
	nextSeq    uint64
	time       float64
}

// NewManager returns an empty Manager.
func NewManager() *Manager {
	return &Manager{byHandle: make(map[Handle]*entry)}
}

// Time returns the manager's notion of current time: the deadline of
// the last entry fired via Advance, or 0 before anything has fired.
func (m *Manager) Time() float64 { return m.time }

// Size returns the count of live (non-canceled) scheduled timers.
func (m *Manager) Size() int { return len(m.byHandle) }

// Schedule queues cb to fire no earlier than network time `at`.
func (m *Manager) Schedule(at float64, cb Callback) Handle {
	m.nextHandle++
	h := m.nextHandle
	m.nextSeq++
	e := &entry{deadline: at, handle: h, cb: cb, seq: m.nextSeq}
	heap.Push(&m.heap, e)
	m.byHandle[h] = e
	return h
}

// Cancel removes a previously scheduled timer. Canceling a handle that
// already fired or was already canceled is a no-op.
func (m *Manager) Cancel(h Handle) {
	e, ok := m.byHandle[h]
	if !ok {
		return
	}
	e.canceled = true
	delete(m.byHandle, h)
}

// peepMin returns the deadline of the next live entry without removing
// it, mirroring QuantumQueue's PeepMin.
func (m *Manager) peepMin() (float64, bool) {
	for len(m.heap) > 0 {
		top := m.heap[0]
		if top.canceled {
			heap.Pop(&m.heap)
			continue
		}
		return top.deadline, true
	}
	return 0, false
}

// Advance fires, in deadline order, every live timer whose deadline is
// <= now, up to budget entries, and returns the count fired.
func (m *Manager) Advance(now float64, budget int) int {
	fired := 0
	for fired < budget {
		deadline, ok := m.peepMin()
		if !ok || deadline > now {
			break
		}
		e := heap.Pop(&m.heap).(*entry)
		if e.canceled {
			continue
		}
		delete(m.byHandle, e.handle)
		m.time = e.deadline
		e.cb(now)
		fired++
	}
	return fired
}
