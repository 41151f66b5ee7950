// Package parser builds the minimal packet identity the session layer
// hands to its subscribers: a flow 5-tuple for tracking, plus a
// one-line protocol/address/info summary for logging and broker status
// payloads. It stops there deliberately — nothing downstream needs a
// full layer-by-layer decode.
package parser

import (
	"fmt"
	"time"

	"github.com/google/gopacket"

	"wireloop/internal/models"
)

// Parse converts a raw gopacket.Packet into a PacketInfo.
func Parse(pkt gopacket.Packet, number int, startTime time.Time) models.PacketInfo {
	info := models.PacketInfo{
		Number: number,
		Length: pkt.Metadata().Length,
	}

	ts := pkt.Metadata().Timestamp
	if startTime.IsZero() {
		info.Timestamp = ts.Format("15:04:05.000000")
	} else {
		info.Timestamp = fmt.Sprintf("%.6f", ts.Sub(startTime).Seconds())
	}

	info.Protocol, info.SrcAddr, info.DstAddr, info.Info = summarize(pkt)
	return info
}
