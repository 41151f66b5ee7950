package frame

import (
	"sync"

	"wireloop/internal/trigger"
)

// Arena is an integer-handle-indexed store of delayed frames, used so a
// Trigger can reference the frame it will resume without holding a
// live Go pointer across the Frame/Trigger/CallExpr cycle.
type Arena struct {
	mu     sync.Mutex
	frames map[trigger.FrameHandle]*Frame
	next   trigger.FrameHandle
}

// NewArena returns an empty frame arena.
func NewArena() *Arena {
	return &Arena{frames: make(map[trigger.FrameHandle]*Frame)}
}

// Put stores f and returns a handle to it.
func (a *Arena) Put(f *Frame) trigger.FrameHandle {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.next++
	h := a.next
	a.frames[h] = f
	return h
}

// Get returns the frame for h, if still live.
func (a *Arena) Get(h trigger.FrameHandle) (*Frame, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	f, ok := a.frames[h]
	return f, ok
}

// Delete releases the arena's reference to h's frame.
func (a *Arena) Delete(h trigger.FrameHandle) {
	a.mu.Lock()
	defer a.mu.Unlock()
	delete(a.frames, h)
}
