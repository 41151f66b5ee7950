// Package frame implements the indexed slot array that backs one
// function activation (Frame) and the closure-capture subsystem built
// on top of it (ClosureFrame).
package frame

import (
	"fmt"

	"wireloop/internal/trigger"
)

// Value is a frame slot's contents. nil represents an unset slot.
type Value = any

// Cloneable lets a slot value customize its own deep copy. Values that
// don't implement it are copied by Go value-assignment, which is a
// correct deep copy for anything that isn't itself a pointer/reference
// type.
type Cloneable interface {
	Clone() Value
}

// Frame is a fixed-size indexed slot array backing a single function
// activation.
type Frame struct {
	size     int
	slots    []Value
	function *Function
	args     []Value

	nextStmt            any
	breakBeforeNextStmt bool
	breakOnReturn       bool

	trig    trigger.Handle
	hasTrig bool

	call    any
	delayed bool

	// isView is a tagged discriminant, not a subtype: a view frame
	// aliases another frame's backing slice and must never release it.
	isView bool
}

// New allocates a frame of size slots, all nil, for one activation of
// fn with the given call arguments.
func New(size int, fn *Function, args []Value) *Frame {
	return &Frame{
		size:     size,
		slots:    make([]Value, size),
		function: fn,
		args:     args,
	}
}

// NewView returns a frame that aliases other's backing slot array.
// Releasing a view must never free the slots.
func NewView(other *Frame) *Frame {
	return &Frame{
		size:     other.size,
		slots:    other.slots,
		function: other.function,
		args:     other.args,
		isView:   true,
	}
}

// Size returns the number of slots in the frame.
func (f *Frame) Size() int { return f.size }

// IsView reports whether this frame aliases another's slot array.
func (f *Frame) IsView() bool { return f.isView }

// Function returns the owning function reference.
func (f *Frame) Function() *Function { return f.function }

// Args returns the captured call arguments.
func (f *Frame) Args() []Value { return f.args }

func (f *Frame) checkRange(n int) {
	if n < 0 || n >= f.size {
		panic(fmt.Sprintf("frame: slot index %d out of range [0,%d)", n, f.size))
	}
}

// NthElement returns slot n without transferring ownership.
func (f *Frame) NthElement(n int) Value {
	f.checkRange(n)
	return f.slots[n]
}

// SetElement replaces slot n with v, releasing the previous occupant
// unless the frame is a view (it still overwrites the shared slot in
// that case, since the array itself is aliased, but ownership of the
// prior value was never this frame's to release).
func (f *Frame) SetElement(n int, v Value) {
	f.checkRange(n)
	f.slots[n] = v
}

func (f *Frame) offsetFor(id *Identifier) int {
	if f.function == nil || id.Scope != f.function.Scope {
		panic(fmt.Sprintf("frame: identifier %q is not in this frame's owning scope", id.Name))
	}
	return id.Offset
}

// SetElementByID looks up id's offset in the owning function's scope
// and sets that slot.
func (f *Frame) SetElementByID(id *Identifier, v Value) {
	f.SetElement(f.offsetFor(id), v)
}

// GetElementByID returns the slot at id's offset.
func (f *Frame) GetElementByID(id *Identifier) Value {
	return f.NthElement(f.offsetFor(id))
}

// AddElement is SetElementByID with the intent of first initialization.
func (f *Frame) AddElement(id *Identifier, v Value) {
	f.SetElementByID(id, v)
}

// Reset clears slots [startIdx, size).
func (f *Frame) Reset(startIdx int) {
	if startIdx < 0 {
		startIdx = 0
	}
	for i := startIdx; i < f.size; i++ {
		f.slots[i] = nil
	}
}

func cloneValue(v Value) Value {
	if v == nil {
		return nil
	}
	if c, ok := v.(Cloneable); ok {
		return c.Clone()
	}
	return v
}

// Clone deep-copies all live values into a new, non-view frame.
func (f *Frame) Clone() *Frame {
	out := &Frame{
		size:     f.size,
		slots:    make([]Value, f.size),
		function: f.function,
		args:     f.args,
	}
	for i, v := range f.slots {
		out.slots[i] = cloneValue(v)
	}
	return out
}

// SelectiveClone deep-copies only the slots named by ids, leaving every
// other slot nil. The result is never a view.
func (f *Frame) SelectiveClone(ids []*Identifier) *Frame {
	out := &Frame{
		size:     f.size,
		slots:    make([]Value, f.size),
		function: f.function,
		args:     f.args,
	}
	for _, id := range ids {
		off := f.offsetFor(id)
		out.slots[off] = cloneValue(f.slots[off])
	}
	return out
}

// SetNextStmt records the statement the debugger should execute next.
func (f *Frame) SetNextStmt(s any) { f.nextStmt = s }

// NextStmt returns the statement previously set by SetNextStmt.
func (f *Frame) NextStmt() any { return f.nextStmt }

// SetBreakBeforeNextStmt toggles the debugger's pre-statement breakpoint.
func (f *Frame) SetBreakBeforeNextStmt(b bool) { f.breakBeforeNextStmt = b }

// BreakBeforeNextStmt reports the pre-statement breakpoint flag.
func (f *Frame) BreakBeforeNextStmt() bool { return f.breakBeforeNextStmt }

// SetBreakOnReturn toggles the debugger's break-on-return flag.
func (f *Frame) SetBreakOnReturn(b bool) { f.breakOnReturn = b }

// BreakOnReturn reports the break-on-return flag.
func (f *Frame) BreakOnReturn() bool { return f.breakOnReturn }

// SetTrigger associates the activation with a condition awaiting
// resolution. The handle is non-owning: the trigger arena, not this
// frame, owns the Trigger (see internal/trigger).
func (f *Frame) SetTrigger(h trigger.Handle) {
	f.trig = h
	f.hasTrig = true
}

// ClearTrigger removes any trigger binding from this frame.
func (f *Frame) ClearTrigger() {
	f.trig = 0
	f.hasTrig = false
}

// Trigger returns the bound trigger handle and whether one is set.
func (f *Frame) Trigger() (trigger.Handle, bool) { return f.trig, f.hasTrig }

// SetDelayed marks this activation as having yielded control awaiting
// trigger resolution.
func (f *Frame) SetDelayed() { f.delayed = true }

// HasDelayed reports whether this activation is delayed.
func (f *Frame) HasDelayed() bool { return f.delayed }

// SetCall records the originating call expression (opaque to this
// package; owned by the interpreter, not released here).
func (f *Frame) SetCall(c any) { f.call = c }

// Call returns the originating call expression, if any.
func (f *Frame) Call() any { return f.call }
