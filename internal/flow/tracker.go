package flow

import (
	"fmt"
	"sync"
)

// TCPState is a simplified connection-state label derived from observed
// flag sequences, not a full TCP state machine.
type TCPState string

const (
	TCPStateNew         TCPState = "NEW"
	TCPStateSynSent     TCPState = "SYN_SENT"
	TCPStateSynReceived TCPState = "SYN_RECEIVED"
	TCPStateEstablished TCPState = "ESTABLISHED"
	TCPStateFinWait     TCPState = "FIN_WAIT"
	TCPStateClosed      TCPState = "CLOSED"
)

// FlowKey is a direction-normalized 5-tuple: both (A->B) and (B->A)
// packets of the same conversation hash to the same key.
type FlowKey struct {
	IP1      string
	IP2      string
	Port1    uint16
	Port2    uint16
	Protocol string
}

// MakeFlowKey normalizes a 5-tuple so either direction of a conversation
// resolves to the same key: lexicographically smaller IP first, ties
// broken on port.
func MakeFlowKey(srcIP, dstIP string, srcPort, dstPort uint16, protocol string) FlowKey {
	if forward(srcIP, srcPort, dstIP, dstPort) {
		return FlowKey{IP1: srcIP, IP2: dstIP, Port1: srcPort, Port2: dstPort, Protocol: protocol}
	}
	return FlowKey{IP1: dstIP, IP2: srcIP, Port1: dstPort, Port2: srcPort, Protocol: protocol}
}

func forward(ip1 string, port1 uint16, ip2 string, port2 uint16) bool {
	return ip1 < ip2 || (ip1 == ip2 && port1 < port2)
}

// Flow holds running statistics for one conversation.
type Flow struct {
	ID          uint64   `json:"id"`
	SrcIP       string   `json:"srcIp"`
	DstIP       string   `json:"dstIp"`
	SrcPort     uint16   `json:"srcPort"`
	DstPort     uint16   `json:"dstPort"`
	Protocol    string   `json:"protocol"`
	PacketCount int      `json:"packetCount"`
	ByteCount   int64    `json:"byteCount"`
	FirstSeen   int64    `json:"firstSeen"` // network-time ms
	LastSeen    int64    `json:"lastSeen"`  // network-time ms
	TCPState    TCPState `json:"tcpState,omitempty"`
	FwdPackets  int      `json:"fwdPackets"`
	FwdBytes    int64    `json:"fwdBytes"`
	RevPackets  int      `json:"revPackets"`
	RevBytes    int64    `json:"revBytes"`
}

// TCPFlags holds the flag bits a caller cares about for state tracking.
type TCPFlags struct {
	SYN bool
	ACK bool
	FIN bool
	RST bool
	PSH bool
}

const (
	defaultMaxFlows   = 10000
	defaultIdleExpiry = 5 * 60 * 1000 // ms
)

// Tracker is the process-wide flow table. Every timestamp it accepts or
// stores is the run loop's network time in milliseconds, not wall-clock
// time — replaying the same trace twice must produce the same table.
type Tracker struct {
	mu         sync.Mutex
	flows      map[FlowKey]*Flow
	nextID     uint64
	maxFlows   int
	idleExpiry int64
}

// NewTracker creates an empty flow table.
func NewTracker() *Tracker {
	return &Tracker{
		flows:      make(map[FlowKey]*Flow),
		maxFlows:   defaultMaxFlows,
		idleExpiry: defaultIdleExpiry,
	}
}

// Lookup returns a snapshot of the flow for a 5-tuple without creating
// or mutating it, so a caller can compare TCP state before and after a
// Track call.
func (t *Tracker) Lookup(srcIP, dstIP string, srcPort, dstPort uint16, protocol string) (*Flow, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	f, ok := t.flows[MakeFlowKey(srcIP, dstIP, srcPort, dstPort, protocol)]
	if !ok {
		return nil, false
	}
	cp := *f
	return &cp, true
}

// Track records one packet against its flow, creating the flow on first
// sight, and returns the flow's ID and current state. now is network
// time in milliseconds.
func (t *Tracker) Track(now int64, srcIP, dstIP string, srcPort, dstPort uint16, protocol string, length int, flags TCPFlags) (uint64, *Flow) {
	key := MakeFlowKey(srcIP, dstIP, srcPort, dstPort, protocol)

	t.mu.Lock()
	defer t.mu.Unlock()

	if len(t.flows) >= t.maxFlows {
		t.evictOlderThan(now - t.idleExpiry)
	}

	f, ok := t.flows[key]
	if !ok {
		t.nextID++
		f = &Flow{
			ID:        t.nextID,
			SrcIP:     srcIP,
			DstIP:     dstIP,
			SrcPort:   srcPort,
			DstPort:   dstPort,
			Protocol:  protocol,
			FirstSeen: now,
			TCPState:  TCPStateNew,
		}
		t.flows[key] = f
	}

	f.PacketCount++
	f.ByteCount += int64(length)
	f.LastSeen = now

	if srcIP == f.SrcIP && srcPort == f.SrcPort {
		f.FwdPackets++
		f.FwdBytes += int64(length)
	} else {
		f.RevPackets++
		f.RevBytes += int64(length)
	}

	if protocol == "TCP" || protocol == "tcp" {
		f.TCPState = nextTCPState(f.TCPState, flags)
	}

	return f.ID, f
}

// GetFlows returns a snapshot of every tracked flow.
func (t *Tracker) GetFlows() []*Flow {
	t.mu.Lock()
	defer t.mu.Unlock()

	out := make([]*Flow, 0, len(t.flows))
	for _, f := range t.flows {
		cp := *f
		out = append(out, &cp)
	}
	return out
}

// Reset drops every tracked flow and restarts ID assignment.
func (t *Tracker) Reset() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.flows = make(map[FlowKey]*Flow)
	t.nextID = 0
}

func (t *Tracker) evictOlderThan(cutoffMs int64) {
	for key, f := range t.flows {
		if f.LastSeen < cutoffMs {
			delete(t.flows, key)
		}
	}
}

// tcpTransition is one edge of the simplified TCP state machine: from
// state, on the named flag, advance to state.
type tcpTransition struct {
	from TCPState
	flag func(TCPFlags) bool
	to   TCPState
}

var tcpTransitions = []tcpTransition{
	{TCPStateNew, func(f TCPFlags) bool { return f.SYN && !f.ACK }, TCPStateSynSent},
	{TCPStateSynSent, func(f TCPFlags) bool { return f.SYN && f.ACK }, TCPStateSynReceived},
	{TCPStateSynReceived, func(f TCPFlags) bool { return f.ACK && !f.SYN }, TCPStateEstablished},
	{TCPStateEstablished, func(f TCPFlags) bool { return f.FIN }, TCPStateFinWait},
	{TCPStateFinWait, func(f TCPFlags) bool { return f.FIN || f.ACK }, TCPStateClosed},
}

func nextTCPState(current TCPState, flags TCPFlags) TCPState {
	if flags.RST {
		return TCPStateClosed
	}
	for _, tr := range tcpTransitions {
		if tr.from == current && tr.flag(flags) {
			return tr.to
		}
	}
	return current
}

// String returns a one-line summary of the flow, for log lines.
func (f *Flow) String() string {
	return fmt.Sprintf("Flow#%d %s:%d <-> %s:%d [%s] pkts=%d bytes=%d",
		f.ID, f.SrcIP, f.SrcPort, f.DstIP, f.DstPort, f.Protocol, f.PacketCount, f.ByteCount)
}
