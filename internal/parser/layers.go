package parser

import (
	"fmt"
	"strings"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
)

// summarize builds the one-line protocol/address/info identity used for
// log lines and broker payloads. It walks the packet's decoded layers
// once, letting the highest layer present win the protocol name.
func summarize(pkt gopacket.Packet) (protocol, src, dst, info string) {
	protocol = "Unknown"

	for _, l := range pkt.Layers() {
		switch v := l.(type) {
		case *layers.Ethernet:
			if src == "" {
				src = v.SrcMAC.String()
			}
			if dst == "" {
				dst = v.DstMAC.String()
			}
		case *layers.ARP:
			protocol = "ARP"
			src, dst = ipv4String(v.SourceProtAddress), ipv4String(v.DstProtAddress)
			if v.Operation == layers.ARPRequest {
				info = fmt.Sprintf("Who has %s? Tell %s", dst, src)
			} else {
				info = fmt.Sprintf("%s is at %x", src, v.SourceHwAddress)
			}
		case *layers.IPv4:
			src, dst = v.SrcIP.String(), v.DstIP.String()
			if protocol == "Unknown" {
				protocol = "IPv4"
			}
		case *layers.IPv6:
			src, dst = v.SrcIP.String(), v.DstIP.String()
			if protocol == "Unknown" {
				protocol = "IPv6"
			}
		case *layers.ICMPv4:
			protocol = "ICMP"
			info = v.TypeCode.String()
		case *layers.TCP:
			protocol = "TCP"
			src = fmt.Sprintf("%s:%d", src, v.SrcPort)
			dst = fmt.Sprintf("%s:%d", dst, v.DstPort)
			info = tcpSummary(v)
		case *layers.UDP:
			protocol = "UDP"
			src = fmt.Sprintf("%s:%d", src, v.SrcPort)
			dst = fmt.Sprintf("%s:%d", dst, v.DstPort)
			info = fmt.Sprintf("%d -> %d Len=%d", v.SrcPort, v.DstPort, v.Length)
		case *layers.DNS:
			protocol = "DNS"
			info = dnsSummary(v)
		}
	}

	if app := pkt.ApplicationLayer(); app != nil && isHTTP(app.Payload()) {
		protocol = "HTTP"
		info = firstLine(app.Payload())
	}

	return protocol, src, dst, info
}

func tcpSummary(tcp *layers.TCP) string {
	var flags []string
	for _, f := range []struct {
		set  bool
		name string
	}{
		{tcp.SYN, "SYN"}, {tcp.ACK, "ACK"}, {tcp.FIN, "FIN"}, {tcp.RST, "RST"}, {tcp.PSH, "PSH"},
	} {
		if f.set {
			flags = append(flags, f.name)
		}
	}
	return fmt.Sprintf("%d -> %d [%s] Seq=%d Ack=%d Win=%d Len=%d",
		tcp.SrcPort, tcp.DstPort, strings.Join(flags, ","), tcp.Seq, tcp.Ack, tcp.Window, len(tcp.Payload))
}

func dnsSummary(dns *layers.DNS) string {
	kind := "Standard query"
	if dns.QR {
		kind = "Standard query response"
	}
	for _, q := range dns.Questions {
		kind += " " + string(q.Name) + " " + q.Type.String()
	}
	return kind
}

func isHTTP(data []byte) bool {
	if len(data) < 4 {
		return false
	}
	switch string(data[:4]) {
	case "GET ", "POST", "PUT ", "DELE", "HEAD", "HTTP", "PATC", "OPTI":
		return true
	default:
		return false
	}
}

func firstLine(data []byte) string {
	if i := strings.Index(string(data), "\r\n"); i >= 0 {
		return string(data[:i])
	}
	return string(data)
}

func ipv4String(b []byte) string {
	if len(b) != 4 {
		return ""
	}
	return fmt.Sprintf("%d.%d.%d.%d", b[0], b[1], b[2], b[3])
}
