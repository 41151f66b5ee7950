package frame

import "fmt"

// ClosureFrame wraps a body frame and a captured enclosing frame,
// routing identity-keyed lookups for a named subset of identifiers to
// the enclosing activation rather than to its own slot array.
type ClosureFrame struct {
	body     *Frame
	closure  *ClosureFrame
	captured map[string]struct{}
}

// NewClosureFrame builds a ClosureFrame over body, capturing the names
// listed in capturedNames from the enclosing closure frame.
func NewClosureFrame(body *Frame, closure *ClosureFrame, capturedNames []string) *ClosureFrame {
	set := make(map[string]struct{}, len(capturedNames))
	for _, n := range capturedNames {
		set[n] = struct{}{}
	}
	return &ClosureFrame{body: body, closure: closure, captured: set}
}

// Body returns the inner activation frame being executed.
func (c *ClosureFrame) Body() *Frame { return c.body }

// Closure returns the enclosing activation's closure frame, or nil at
// the outermost level.
func (c *ClosureFrame) Closure() *ClosureFrame { return c.closure }

// isCaptured reports whether name is in this frame's captured set.
func (c *ClosureFrame) isCaptured(name string) bool {
	_, ok := c.captured[name]
	return ok
}

// definesDirectly reports whether this ClosureFrame's body frame is the
// one that declared id (i.e. id's home scope is this body's function
// scope).
func (c *ClosureFrame) definesDirectly(id *Identifier) bool {
	return c.body.function != nil && c.body.function.Scope == id.Scope
}

// resolveCaptured walks the chain of enclosing closure frames until one
// directly defines id: exactly one frame in the chain defines a slot
// for a captured identifier, and the search terminates there.
func (c *ClosureFrame) resolveCaptured(id *Identifier) *Frame {
	for cur := c.closure; cur != nil; cur = cur.closure {
		if cur.definesDirectly(id) {
			return cur.body
		}
	}
	return nil
}

// GetElement returns id's value: for a captured name, from the defining
// enclosing frame; otherwise from the body frame.
func (c *ClosureFrame) GetElement(id *Identifier) Value {
	if c.isCaptured(id.Name) {
		defining := c.resolveCaptured(id)
		if defining == nil {
			panic(fmt.Sprintf("closure: no enclosing frame defines captured identifier %q", id.Name))
		}
		return defining.GetElementByID(id)
	}
	return c.body.GetElementByID(id)
}

// SetElement writes id's value: for a captured name, through to the
// defining enclosing frame; otherwise to the body frame.
func (c *ClosureFrame) SetElement(id *Identifier, v Value) {
	if c.isCaptured(id.Name) {
		defining := c.resolveCaptured(id)
		if defining == nil {
			panic(fmt.Sprintf("closure: no enclosing frame defines captured identifier %q", id.Name))
		}
		defining.SetElementByID(id, v)
		return
	}
	c.body.SetElementByID(id, v)
}

// The remaining operations all act on the body frame.

func (c *ClosureFrame) NthElement(n int) Value    { return c.body.NthElement(n) }
func (c *ClosureFrame) SetElementAt(n int, v Value) { c.body.SetElement(n, v) }
func (c *ClosureFrame) Size() int                 { return c.body.Size() }
func (c *ClosureFrame) Reset(startIdx int)        { c.body.Reset(startIdx) }

func (c *ClosureFrame) SetNextStmt(s any)            { c.body.SetNextStmt(s) }
func (c *ClosureFrame) NextStmt() any                { return c.body.NextStmt() }
func (c *ClosureFrame) SetBreakBeforeNextStmt(b bool) { c.body.SetBreakBeforeNextStmt(b) }
func (c *ClosureFrame) BreakBeforeNextStmt() bool     { return c.body.BreakBeforeNextStmt() }
func (c *ClosureFrame) SetBreakOnReturn(b bool)       { c.body.SetBreakOnReturn(b) }
func (c *ClosureFrame) BreakOnReturn() bool           { return c.body.BreakOnReturn() }

func (c *ClosureFrame) SetDelayed()     { c.body.SetDelayed() }
func (c *ClosureFrame) HasDelayed() bool { return c.body.HasDelayed() }

// Clone produces a standalone body clone plus an unchanged closure
// reference.
func (c *ClosureFrame) Clone() *ClosureFrame {
	return &ClosureFrame{body: c.body.Clone(), closure: c.closure, captured: c.captured}
}

// SelectiveClone is like Clone but restricted to the named slots.
func (c *ClosureFrame) SelectiveClone(ids []*Identifier) *ClosureFrame {
	return &ClosureFrame{body: c.body.SelectiveClone(ids), closure: c.closure, captured: c.captured}
}
