package iosource

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/google/gopacket"
	"github.com/google/gopacket/pcap"
	"github.com/google/gopacket/pcapgo"
)

const (
	defaultSnapLen = 65535
	defaultTimeout = 100 * time.Millisecond
)

// PcapLiveSource is a PacketSource reading from a live interface.
type PcapLiveSource struct {
	handle  *pcap.Handle
	iface   string
	onPkt   PacketHandler
	errMsg  string
	lastErr error
}

// OpenPcapLive opens a live capture on iface and wires its packets to
// onPkt.
func OpenPcapLive(iface, bpfFilter string, snapLen int, onPkt PacketHandler) (*PcapLiveSource, error) {
	if snapLen <= 0 {
		snapLen = defaultSnapLen
	}
	handle, err := pcap.OpenLive(iface, int32(snapLen), true, defaultTimeout)
	if err != nil {
		return nil, fmt.Errorf("open live capture on %s: %w", iface, err)
	}
	if bpfFilter != "" {
		if err := handle.SetBPFFilter(bpfFilter); err != nil {
			handle.Close()
			return nil, fmt.Errorf("set BPF filter %q: %w", bpfFilter, err)
		}
	}
	return &PcapLiveSource{handle: handle, iface: iface, onPkt: onPkt}, nil
}

func (s *PcapLiveSource) Tag() string { return "PcapLiveSource(" + s.iface + ")" }

// Process reads whatever packets are available within the handle's
// read timeout and dispatches each to the registered handler.
func (s *PcapLiveSource) Process(ctx context.Context) error {
	for {
		data, ci, err := s.handle.ZeroCopyReadPacketData()
		if err != nil {
			if err == pcap.NextErrorTimeoutExpired {
				return nil
			}
			s.lastErr = err
			s.errMsg = err.Error()
			return err
		}
		pkt := gopacket.NewPacket(data, s.handle.LinkType(), gopacket.Lazy)
		pkt.Metadata().Timestamp = ci.Timestamp
		pkt.Metadata().CaptureLength = ci.CaptureLength
		pkt.Metadata().Length = ci.Length
		t := float64(ci.Timestamp.UnixNano()) / 1e9
		s.onPkt(t, pkt, s)
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}
	}
}

func (s *PcapLiveSource) IsOpen() bool  { return s.handle != nil }
func (s *PcapLiveSource) IsLive() bool  { return true }
func (s *PcapLiveSource) Path() string  { return s.iface }
func (s *PcapLiveSource) ErrorMsg() string { return s.errMsg }
func (s *PcapLiveSource) ContinueAfterSuspend() {}

func (s *PcapLiveSource) Statistics() Stats {
	stats, err := s.handle.Stats()
	if err != nil {
		return Stats{}
	}
	return Stats{Received: stats.PacketsReceived, Dropped: stats.PacketsDropped}
}

func (s *PcapLiveSource) Close() {
	if s.handle != nil {
		s.handle.Close()
		s.handle = nil
	}
}

// PcapFileSource is a PacketSource reading from an offline trace file,
// with optional pseudo-real-time pacing.
type PcapFileSource struct {
	handle *pcap.Handle
	path   string
	onPkt  PacketHandler

	pseudoRealtime float64 // 0 disables pacing
	lastPktTime    time.Time
	lastWallTime   time.Time
	havePrev       bool

	open   bool
	errMsg string
}

// OpenPcapFile opens a trace file for replay.
func OpenPcapFile(path string, pseudoRealtime float64, onPkt PacketHandler) (*PcapFileSource, error) {
	handle, err := pcap.OpenOffline(path)
	if err != nil {
		return nil, fmt.Errorf("open pcap file %q: %w", path, err)
	}
	return &PcapFileSource{handle: handle, path: path, onPkt: onPkt, pseudoRealtime: pseudoRealtime, open: true}, nil
}

func (s *PcapFileSource) Tag() string { return "PcapFileSource(" + s.path + ")" }

// Process reads the next packet from the file, pacing delivery against
// wall-clock time when pseudo-real-time replay is active, then
// dispatches it to the registered handler. Reaching EOF closes the
// source.
func (s *PcapFileSource) Process(ctx context.Context) error {
	data, ci, err := s.handle.ZeroCopyReadPacketData()
	if err != nil {
		s.open = false
		if !errors.Is(err, io.EOF) {
			s.errMsg = err.Error()
			return err
		}
		return nil
	}

	if s.pseudoRealtime > 0 {
		if s.havePrev {
			pktDelta := ci.Timestamp.Sub(s.lastPktTime)
			wallDelta := time.Duration(float64(pktDelta) / s.pseudoRealtime)
			target := s.lastWallTime.Add(wallDelta)
			if d := time.Until(target); d > 0 {
				select {
				case <-time.After(d):
				case <-ctx.Done():
					return ctx.Err()
				}
			}
		}
		s.lastPktTime = ci.Timestamp
		s.lastWallTime = time.Now()
		s.havePrev = true
	}

	pkt := gopacket.NewPacket(data, s.handle.LinkType(), gopacket.Lazy)
	pkt.Metadata().Timestamp = ci.Timestamp
	pkt.Metadata().CaptureLength = ci.CaptureLength
	pkt.Metadata().Length = ci.Length
	t := float64(ci.Timestamp.UnixNano()) / 1e9
	s.onPkt(t, pkt, s)
	return nil
}

func (s *PcapFileSource) IsOpen() bool  { return s.open }
func (s *PcapFileSource) IsLive() bool  { return false }
func (s *PcapFileSource) Path() string  { return s.path }
func (s *PcapFileSource) ErrorMsg() string { return s.errMsg }
func (s *PcapFileSource) ContinueAfterSuspend() {}

func (s *PcapFileSource) Statistics() Stats { return Stats{} }

func (s *PcapFileSource) Close() {
	if s.handle != nil {
		s.handle.Close()
		s.handle = nil
	}
	s.open = false
}

// pcapDumper writes packets to a pcap file on demand, used for both
// the configured pcap output and the watchdog's fallback capture file.
type pcapDumper struct {
	f      *os.File
	w      *pcapgo.Writer
	path   string
}

// OpenPcapDumper opens path for writing (or appending) a pcap file.
func OpenPcapDumper(path string, appendFile bool) (Dumper, error) {
	flags := os.O_CREATE | os.O_WRONLY
	if appendFile {
		flags |= os.O_APPEND
	} else {
		flags |= os.O_TRUNC
	}
	f, err := os.OpenFile(path, flags, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open pcap dumper %q: %w", path, err)
	}
	w := pcapgo.NewWriter(f)
	if !appendFile {
		if err := w.WriteFileHeader(defaultSnapLen, 1 /* LinkTypeEthernet */); err != nil {
			f.Close()
			return nil, err
		}
	}
	return &pcapDumper{f: f, w: w, path: path}, nil
}

func (d *pcapDumper) Dump(pkt gopacket.Packet) error {
	md := pkt.Metadata()
	return d.w.WritePacket(md.CaptureInfo, pkt.Data())
}

func (d *pcapDumper) Path() string { return d.path }

func (d *pcapDumper) Close() error { return d.f.Close() }
