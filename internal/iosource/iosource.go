// Package iosource implements the polled set of readiness sources the
// run loop consults each iteration: live interfaces, trace files and a
// packet dumper built on gopacket, plus a directory watcher built on
// fsnotify.
package iosource

import (
	"context"

	"github.com/google/gopacket"
)

// Source is the minimal external interface every IOSource offers.
type Source interface {
	Tag() string
	Process(ctx context.Context) error
}

// Stats holds the driver-level packet statistics a PacketSource
// reports: how many packets the kernel delivered versus dropped.
type Stats struct {
	Received int
	Dropped  int
}

// PacketHandler is invoked by a PacketSource for every packet it reads,
// with the packet's timestamp already converted to network-time
// seconds.
type PacketHandler func(t float64, pkt gopacket.Packet, src PacketSource)

// PacketSource is the subset of Source implemented by packet-producing
// drivers (live interfaces, offline trace files).
type PacketSource interface {
	Source
	IsOpen() bool
	IsLive() bool
	Path() string
	Statistics() Stats
	ContinueAfterSuspend()
	ErrorMsg() string
	Close()
}

// Dumper is the external interface for a packet-writing sink, used
// both for the configured pcap output and for the watchdog's fallback
// capture file.
type Dumper interface {
	Dump(pkt gopacket.Packet) error
	Path() string
	Close() error
}
