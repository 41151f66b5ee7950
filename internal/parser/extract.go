package parser

import (
	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"

	"wireloop/internal/flow"
)

// FlowTuple holds the 5-tuple and TCP flags session.NextPacket needs to
// look up or create a flow, extracted in a single pass over the
// packet's decoded layers rather than re-walking it per field.
type FlowTuple struct {
	SrcIP    string
	DstIP    string
	SrcPort  uint16
	DstPort  uint16
	Protocol string
	Flags    flow.TCPFlags
	Valid    bool
}

// ExtractFlowTuple reads the network and transport layers gopacket has
// already decoded; it does no parsing of its own.
func ExtractFlowTuple(pkt gopacket.Packet) FlowTuple {
	var tuple FlowTuple
	for _, l := range pkt.Layers() {
		switch v := l.(type) {
		case *layers.IPv4:
			tuple.SrcIP, tuple.DstIP = v.SrcIP.String(), v.DstIP.String()
			tuple.Protocol, tuple.Valid = v.Protocol.String(), true
		case *layers.IPv6:
			tuple.SrcIP, tuple.DstIP = v.SrcIP.String(), v.DstIP.String()
			tuple.Protocol, tuple.Valid = v.NextHeader.String(), true
		case *layers.TCP:
			tuple.SrcPort, tuple.DstPort, tuple.Protocol = uint16(v.SrcPort), uint16(v.DstPort), "TCP"
			tuple.Flags = flow.TCPFlags{SYN: v.SYN, ACK: v.ACK, FIN: v.FIN, RST: v.RST, PSH: v.PSH}
		case *layers.UDP:
			tuple.SrcPort, tuple.DstPort, tuple.Protocol = uint16(v.SrcPort), uint16(v.DstPort), "UDP"
		case *layers.SCTP:
			tuple.SrcPort, tuple.DstPort, tuple.Protocol = uint16(v.SrcPort), uint16(v.DstPort), "SCTP"
		}
	}
	return tuple
}
