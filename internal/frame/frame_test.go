package frame

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"wireloop/internal/trigger"
)

func TestSetThenGetReturnsValue(t *testing.T) {
	fn := NewFunction("f")
	f := New(3, fn, nil)
	f.SetElement(1, "hello")
	assert.Equal(t, "hello", f.NthElement(1))
}

func TestOutOfRangeAccessPanics(t *testing.T) {
	fn := NewFunction("f")
	f := New(2, fn, nil)
	assert.Panics(t, func() { f.NthElement(2) })
	assert.Panics(t, func() { f.SetElement(-1, 1) })
}

func TestViewFrameAliasesSlots(t *testing.T) {
	fn := NewFunction("f")
	owner := New(2, fn, nil)
	owner.SetElement(0, "owned")

	view := NewView(owner)
	assert.True(t, view.IsView())
	assert.Equal(t, "owned", view.NthElement(0))

	view.SetElement(0, "mutated-through-view")
	assert.Equal(t, "mutated-through-view", owner.NthElement(0))
}

func TestCloneIsDeepNotIdentical(t *testing.T) {
	fn := NewFunction("f")
	f := New(2, fn, nil)
	f.SetElement(0, &cloneableBox{v: 7})

	clone := f.Clone()
	assert.False(t, clone.IsView())
	orig := f.NthElement(0).(*cloneableBox)
	cloned := clone.NthElement(0).(*cloneableBox)
	assert.Equal(t, orig.v, cloned.v)
	assert.NotSame(t, orig, cloned)
}

func TestSelectiveCloneLeavesOthersNil(t *testing.T) {
	fn := NewFunction("f")
	scope := fn.Scope
	a := scope.Declare("a")
	b := scope.Declare("b")
	c := scope.Declare("c")

	f := New(scope.Size(), fn, nil)
	f.SetElementByID(a, 1)
	f.SetElementByID(b, 2)
	f.SetElementByID(c, 3)

	clone := f.SelectiveClone([]*Identifier{a, c})
	assert.Equal(t, 1, clone.GetElementByID(a))
	assert.Equal(t, 3, clone.GetElementByID(c))
	assert.Nil(t, clone.GetElementByID(b))
}

func TestSetElementByIDRejectsForeignIdentifier(t *testing.T) {
	fnA := NewFunction("a")
	fnB := NewFunction("b")
	idFromB := fnB.Scope.Declare("x")

	f := New(1, fnA, nil)
	assert.Panics(t, func() { f.SetElementByID(idFromB, 1) })
}

func TestClosureCaptureChainReadsOuterX(t *testing.T) {
	// outer(x) returns a function that returns a function that reads x.
	outerFn := NewFunction("outer")
	xID := outerFn.Scope.Declare("x")
	outerBody := New(outerFn.Scope.Size(), outerFn, nil)
	outerBody.SetElementByID(xID, 42)
	outerClosure := NewClosureFrame(outerBody, nil, nil)

	middleFn := NewFunction("middle")
	middleBody := New(middleFn.Scope.Size(), middleFn, nil)
	middleClosure := NewClosureFrame(middleBody, outerClosure, []string{"x"})

	innerFn := NewFunction("inner")
	innerBody := New(innerFn.Scope.Size(), innerFn, nil)
	innerClosure := NewClosureFrame(innerBody, middleClosure, []string{"x"})

	require.Equal(t, 42, innerClosure.GetElement(xID))

	innerClosure.SetElement(xID, 99)
	assert.Equal(t, 99, outerBody.GetElementByID(xID))
	assert.Equal(t, 99, innerClosure.GetElement(xID))
}

func TestClosureUncapturedIdentifierHitsBody(t *testing.T) {
	outerFn := NewFunction("outer")
	outerBody := New(0, outerFn, nil)
	outerClosure := NewClosureFrame(outerBody, nil, nil)

	innerFn := NewFunction("inner")
	yID := innerFn.Scope.Declare("y")
	innerBody := New(innerFn.Scope.Size(), innerFn, nil)
	innerClosure := NewClosureFrame(innerBody, outerClosure, nil) // y not captured

	innerClosure.SetElement(yID, "local")
	assert.Equal(t, "local", innerClosure.GetElement(yID))
}

func TestFrameTriggerBindingIsNonOwning(t *testing.T) {
	fn := NewFunction("f")
	f := New(1, fn, nil)
	arena := trigger.NewArena()
	farena := NewArena()

	fh := farena.Put(f)
	h := arena.New(fh)
	f.SetTrigger(h)
	f.SetDelayed()

	got, ok := f.Trigger()
	require.True(t, ok)
	assert.Equal(t, h, got)
	assert.True(t, f.HasDelayed())
	assert.Equal(t, 1, arena.Size())

	delayed, ok := arena.Resolve(h)
	require.True(t, ok)
	resumed, ok := farena.Get(delayed)
	require.True(t, ok)
	assert.Same(t, f, resumed)
	assert.Equal(t, 0, arena.Size())

	_, ok = arena.Resolve(h)
	assert.False(t, ok, "resolving an already-resolved handle is a no-op")
}

type cloneableBox struct{ v int }

func (b *cloneableBox) Clone() Value { return &cloneableBox{v: b.v} }
