package iosource

import (
	"context"
	"sync"
)

// Registry is the polled set of readiness sources the run loop
// consults each iteration.
type Registry struct {
	mu      sync.Mutex
	sources []Source
	pktSrc  PacketSource
	onPkt   PacketHandler
}

// NewRegistry returns an empty Registry. onPkt is wired into every
// packet source opened through OpenPktSrc.
func NewRegistry(onPkt PacketHandler) *Registry {
	return &Registry{onPkt: onPkt}
}

// Add registers an already-open source.
func (r *Registry) Add(s Source) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sources = append(r.sources, s)
	if ps, ok := s.(PacketSource); ok && r.pktSrc == nil {
		r.pktSrc = ps
	}
}

// Remove unregisters s.
func (r *Registry) Remove(s Source) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i, existing := range r.sources {
		if existing == s {
			r.sources = append(r.sources[:i], r.sources[i+1:]...)
			break
		}
	}
	if r.pktSrc == s {
		r.pktSrc = nil
	}
}

// FindReady returns the sources currently worth calling Process on.
// Packet sources are considered ready whenever they are still open;
// Process itself bounds how long it blocks (the live handle's read
// timeout, or immediate EOF detection for files), so readiness here is
// a coarse "has more to give" signal rather than a true select(2) over
// file descriptors.
func (r *Registry) FindReady(ctx context.Context) []Source {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Source, 0, len(r.sources))
	for _, s := range r.sources {
		if ps, ok := s.(PacketSource); ok && !ps.IsOpen() {
			continue
		}
		out = append(out, s)
	}
	return out
}

// Size returns the count of currently open packet sources.
func (r *Registry) Size() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, s := range r.sources {
		if ps, ok := s.(PacketSource); ok && ps.IsOpen() {
			n++
		}
	}
	return n
}

// TotalSize returns the count of all registered sources, packet or not.
func (r *Registry) TotalSize() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.sources)
}

// GetPktSrc returns the primary packet source, if any.
func (r *Registry) GetPktSrc() PacketSource {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.pktSrc
}

// OpenPktSrc opens either a live interface or an offline trace file and
// registers it.
func (r *Registry) OpenPktSrc(path string, live bool, pseudoRealtime float64) (PacketSource, error) {
	var ps PacketSource
	var err error
	if live {
		ps, err = OpenPcapLive(path, "", 0, r.onPkt)
	} else {
		ps, err = OpenPcapFile(path, pseudoRealtime, r.onPkt)
	}
	if err != nil {
		return nil, err
	}
	r.Add(ps)
	return ps, nil
}

// OpenPktDumper opens a packet dumper for writing. It is not itself a
// registered Source.
func (r *Registry) OpenPktDumper(path string, appendFile bool) (Dumper, error) {
	return OpenPcapDumper(path, appendFile)
}
