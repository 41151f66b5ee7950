// Package trigger implements the suspended-condition bookkeeping that
// resumes a delayed Frame once its awaited condition resolves.
//
// Frame and Trigger are cyclic in the domain they model (a Frame can be
// bound to a Trigger awaiting resolution, and a Trigger owns the Frame
// it will resume) but must not be cyclic in the Go type graph. Per the
// back-reference design this package follows: Frame holds a non-owning
// Handle into this package's Arena; the Arena holds only an opaque
// FrameHandle, resolved against a separate frame arena (frame.Arena) by
// whichever caller holds both arenas. No package here imports the
// frame package, so the two types never form a reference cycle — Go's
// GC, not manual refcounting, reclaims both once nothing holds their
// handles anymore.
package trigger

import "sync"

// Handle is a non-owning reference to a Trigger, safe for a Frame to
// hold without creating ownership cycles.
type Handle uint64

// FrameHandle is an opaque reference into a frame arena (internal/frame),
// kept here as a bare integer so this package never imports the frame
// package.
type FrameHandle uint64

// Trigger represents a condition awaiting resolution. Once Resolve is
// called, the delayed frame it was holding becomes available to the
// caller for resumption.
type Trigger struct {
	id       Handle
	delayed  FrameHandle
	resolved bool
}

// Delayed returns the frame handle this trigger will resume.
func (t *Trigger) Delayed() FrameHandle { return t.delayed }

// Resolved reports whether this trigger has already fired.
func (t *Trigger) Resolved() bool { return t.resolved }

// Arena owns the set of live triggers, indexed by Handle.
type Arena struct {
	mu       sync.Mutex
	triggers map[Handle]*Trigger
	next     Handle
}

// NewArena returns an empty trigger arena.
func NewArena() *Arena {
	return &Arena{triggers: make(map[Handle]*Trigger)}
}

// New creates a trigger that, when resolved, will resume the frame
// identified by delayed. Returns a non-owning handle suitable for a
// Frame to store via SetTrigger.
func (a *Arena) New(delayed FrameHandle) Handle {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.next++
	h := a.next
	a.triggers[h] = &Trigger{id: h, delayed: delayed}
	return h
}

// Get returns the trigger for h, if it is still live.
func (a *Arena) Get(h Handle) (*Trigger, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	t, ok := a.triggers[h]
	return t, ok
}

// Resolve marks h as resolved and returns the frame handle it was
// delaying, then releases the arena's owning reference to it. Resolving
// an already-resolved or unknown handle is a no-op returning false.
func (a *Arena) Resolve(h Handle) (FrameHandle, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	t, ok := a.triggers[h]
	if !ok || t.resolved {
		return 0, false
	}
	t.resolved = true
	delayed := t.delayed
	delete(a.triggers, h)
	return delayed, true
}

// Size reports the number of triggers still awaiting resolution.
func (a *Arena) Size() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.triggers)
}
