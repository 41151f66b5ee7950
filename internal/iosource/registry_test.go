package iosource

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
)

type fakePktSrc struct {
	tag  string
	open bool
}

func (f *fakePktSrc) Tag() string                 { return f.tag }
func (f *fakePktSrc) Process(ctx context.Context) error { return nil }
func (f *fakePktSrc) IsOpen() bool                { return f.open }
func (f *fakePktSrc) IsLive() bool                { return false }
func (f *fakePktSrc) Path() string                { return f.tag }
func (f *fakePktSrc) Statistics() Stats           { return Stats{} }
func (f *fakePktSrc) ContinueAfterSuspend()       {}
func (f *fakePktSrc) ErrorMsg() string            { return "" }
func (f *fakePktSrc) Close()                      { f.open = false }

func TestRegistryFindReadySkipsClosedSources(t *testing.T) {
	r := NewRegistry(nil)
	open := &fakePktSrc{tag: "open", open: true}
	closed := &fakePktSrc{tag: "closed", open: false}
	r.Add(open)
	r.Add(closed)

	ready := r.FindReady(context.Background())
	assert.Len(t, ready, 1)
	assert.Equal(t, "open", ready[0].Tag())
}

func TestRegistryRemoveDropsSourceAndClearsPktSrc(t *testing.T) {
	r := NewRegistry(nil)
	src := &fakePktSrc{tag: "only", open: true}
	r.Add(src)

	assert.Equal(t, 1, r.TotalSize())
	assert.Same(t, src, r.GetPktSrc())

	r.Remove(src)

	assert.Equal(t, 0, r.TotalSize())
	assert.Nil(t, r.GetPktSrc())
}

func TestRegistrySizeCountsOnlyOpenPacketSources(t *testing.T) {
	r := NewRegistry(nil)
	r.Add(&fakePktSrc{tag: "open", open: true})
	r.Add(&fakePktSrc{tag: "closed", open: false})

	assert.Equal(t, 1, r.Size())
	assert.Equal(t, 2, r.TotalSize())
}

func TestRegistryGetPktSrcReturnsFirstAdded(t *testing.T) {
	r := NewRegistry(nil)
	first := &fakePktSrc{tag: "first", open: true}
	r.Add(first)
	r.Add(&fakePktSrc{tag: "second", open: true})
	assert.Equal(t, first, r.GetPktSrc())
}

func TestRegistryRemoveClearsPktSrc(t *testing.T) {
	r := NewRegistry(nil)
	first := &fakePktSrc{tag: "first", open: true}
	r.Add(first)
	r.Remove(first)
	assert.Nil(t, r.GetPktSrc())
	assert.Equal(t, 0, r.TotalSize())
}
