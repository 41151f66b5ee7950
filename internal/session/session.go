// Package session is the entry point every dispatched packet passes
// through before the run loop drains the event queue: it tracks flow
// state, feeds TCP stream reassembly, builds the packet identity
// reporter/broker payloads use, and enqueues script-visible events onto
// an event.Manager.
package session

import (
	"time"

	"github.com/google/gopacket"

	"wireloop/internal/event"
	"wireloop/internal/flow"
	"wireloop/internal/models"
	"wireloop/internal/parser"
	"wireloop/internal/stream"
)

// Handler is called once per packet_seen/connection_established/
// connection_closed event drained from the event.Manager.
type Handler func(args ...any)

// Session ties flow tracking, stream reassembly and layer decoding
// together behind one NextPacket call.
type Session struct {
	Flows   *flow.Tracker
	Streams *stream.Manager
	events  *event.Manager

	startTime time.Time
	packetNo  int

	onPacketSeen      func(t float64, info models.PacketInfo)
	onConnEstablished func(t float64, f *flow.Flow)
	onConnClosed      func(t float64, f *flow.Flow)
}

// New returns a Session that enqueues events onto events and publishes
// recognized HTTP transactions through broadcaster (may be nil).
func New(events *event.Manager, broadcaster stream.Broadcaster) *Session {
	s := &Session{
		Flows:   flow.NewTracker(),
		Streams: stream.NewManager(broadcaster),
		events:  events,
	}
	s.Streams.Start()
	return s
}

// NextPacket is the run loop's per-packet dispatch hook: t is network
// time in seconds, matching clock.Clock.NetworkTime.
func (s *Session) NextPacket(t float64, pkt gopacket.Packet) {
	s.packetNo++
	if s.startTime.IsZero() {
		s.startTime = pkt.Metadata().Timestamp
	}

	tuple := parser.ExtractFlowTuple(pkt)
	var flowID uint64
	var prevState flow.TCPState
	var f *flow.Flow
	if tuple.Valid {
		nowMs := int64(t * 1000)
		before, existed := s.Flows.Lookup(tuple.SrcIP, tuple.DstIP, tuple.SrcPort, tuple.DstPort, tuple.Protocol)
		if existed {
			prevState = before.TCPState
		}
		flowID, f = s.Flows.Track(nowMs, tuple.SrcIP, tuple.DstIP, tuple.SrcPort, tuple.DstPort, tuple.Protocol, pkt.Metadata().Length, tuple.Flags)
	}

	var streamID uint64
	if tuple.Protocol == "TCP" {
		s.Streams.Feed(pkt)
		if netLayer := pkt.NetworkLayer(); netLayer != nil {
			if tcpLayer := pkt.TransportLayer(); tcpLayer != nil {
				streamID = s.Streams.GetStreamID(netLayer.NetworkFlow(), tcpLayer.TransportFlow())
			}
		}
	}

	info := parser.Parse(pkt, s.packetNo, s.startTime)
	info.FlowID = flowID
	info.StreamID = streamID

	s.emitPacketSeen(t, info)
	if f != nil {
		s.emitStateTransition(t, f, prevState)
	}
}

// OnPacketSeen registers handler to be invoked, with the decoded
// models.PacketInfo, every time a packet_seen event drains.
func (s *Session) OnPacketSeen(handler func(t float64, info models.PacketInfo)) {
	s.onPacketSeen = handler
}

// OnConnectionEstablished registers handler for connection_established
// transitions (TCP handshake completion).
func (s *Session) OnConnectionEstablished(handler func(t float64, f *flow.Flow)) {
	s.onConnEstablished = handler
}

// OnConnectionClosed registers handler for connection_closed transitions
// (RST or FIN/ACK teardown).
func (s *Session) OnConnectionClosed(handler func(t float64, f *flow.Flow)) {
	s.onConnClosed = handler
}

func (s *Session) emitPacketSeen(t float64, info models.PacketInfo) {
	if s.onPacketSeen == nil {
		return
	}
	s.events.Enqueue(func(args ...any) {
		s.onPacketSeen(args[0].(float64), args[1].(models.PacketInfo))
	}, t, info)
}

func (s *Session) emitStateTransition(t float64, f *flow.Flow, prev flow.TCPState) {
	if prev == f.TCPState {
		return
	}
	switch f.TCPState {
	case flow.TCPStateEstablished:
		if s.onConnEstablished == nil {
			return
		}
		cp := *f
		s.events.Enqueue(func(args ...any) {
			s.onConnEstablished(args[0].(float64), args[1].(*flow.Flow))
		}, t, &cp)
	case flow.TCPStateClosed:
		if s.onConnClosed == nil {
			return
		}
		cp := *f
		s.events.Enqueue(func(args ...any) {
			s.onConnClosed(args[0].(float64), args[1].(*flow.Flow))
		}, t, &cp)
	}
}

// Reset clears all session state: flows, streams and the packet counter.
func (s *Session) Reset() {
	s.Flows.Reset()
	s.Streams.Reset()
	s.packetNo = 0
	s.startTime = time.Time{}
}

// Close stops the reassembly goroutine. Call once, at delete_run.
func (s *Session) Close() {
	s.Streams.Stop()
}
