package stream

import (
	"encoding/base64"
	"encoding/binary"
	"sync"
	"time"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
	"github.com/google/gopacket/tcpassembly"
	"github.com/google/gopacket/tcpassembly/tcpreader"
)

const (
	maxStreamBuffer = 256 * 1024 // 256KB per direction
	inputChanCap    = 4096
	flushInterval   = 30 * time.Second
)

// Broadcaster publishes a reassembled stream's HTTP transaction once
// one is recognized, so a broker subscriber can see it without polling
// GetStreamData. Implemented by internal/broker.Manager.
type Broadcaster interface {
	PublishStreamEvent(streamID uint64, httpInfo *HTTPTransaction)
}

// StreamData holds the reassembled data for one stream.
type StreamData struct {
	ID         uint64           `json:"id"`
	ClientData []byte           `json:"-"`
	ServerData []byte           `json:"-"`
	HTTPInfo   *HTTPTransaction `json:"httpInfo,omitempty"`
	SrcAddr    string           `json:"srcAddr"`
	DstAddr    string           `json:"dstAddr"`
	SrcPort    uint16           `json:"srcPort"`
	DstPort    uint16           `json:"dstPort"`
	StartTime  time.Time        `json:"startTime"`
	LastSeen   time.Time        `json:"lastSeen"`
}

// StreamDataResponse is the client-facing, base64-encoded view of a
// StreamData record.
type StreamDataResponse struct {
	StreamID   uint64           `json:"streamId"`
	ClientData string           `json:"clientData"`
	ServerData string           `json:"serverData"`
	HTTPInfo   *HTTPTransaction `json:"httpInfo,omitempty"`
}

type flowKey struct {
	net       string
	transport string
}

func makeFlowKey(net, transport gopacket.Flow) flowKey {
	return flowKey{net: net.String(), transport: transport.String()}
}

// Manager reassembles TCP byte streams out of individual packets, using
// gopacket's assembler for ordering/retransmission handling, and recognizes
// HTTP request/response pairs inside the reassembled bytes.
type Manager struct {
	mu        sync.Mutex
	streams   map[uint64]*StreamData
	lookupMap map[flowKey]uint64 // (net,transport) -> streamID
	nextID    uint64

	assembler   *tcpassembly.Assembler
	inputCh     chan gopacket.Packet
	stopCh      chan struct{}
	broadcaster Broadcaster
}

// NewManager creates a stream reassembly manager publishing recognized
// HTTP transactions to broadcaster (may be nil).
func NewManager(broadcaster Broadcaster) *Manager {
	m := &Manager{
		streams:     make(map[uint64]*StreamData),
		lookupMap:   make(map[flowKey]uint64),
		inputCh:     make(chan gopacket.Packet, inputChanCap),
		stopCh:      make(chan struct{}),
		broadcaster: broadcaster,
	}
	pool := tcpassembly.NewStreamPool(&streamFactory{mgr: m})
	m.assembler = tcpassembly.NewAssembler(pool)
	return m
}

// Feed sends a packet to the assembler goroutine. Non-blocking: a full
// input channel means the assembler can't keep up, and the packet is
// dropped from reassembly rather than stalling the caller.
func (m *Manager) Feed(pkt gopacket.Packet) {
	select {
	case m.inputCh <- pkt:
	default:
	}
}

// Start launches the background assembly loop.
func (m *Manager) Start() { go m.assembleLoop() }

// Stop signals the assembly loop to flush and exit.
func (m *Manager) Stop() { close(m.stopCh) }

// GetStreamData returns the base64-encoded reassembled data for a
// stream, or nil if id is unknown.
func (m *Manager) GetStreamData(id uint64) *StreamDataResponse {
	m.mu.Lock()
	defer m.mu.Unlock()

	sd, ok := m.streams[id]
	if !ok {
		return nil
	}
	return &StreamDataResponse{
		StreamID:   id,
		ClientData: base64.StdEncoding.EncodeToString(sd.ClientData),
		ServerData: base64.StdEncoding.EncodeToString(sd.ServerData),
		HTTPInfo:   sd.HTTPInfo,
	}
}

// GetStreamID resolves a network/transport flow pair to its stream ID in
// either direction, or 0 if no stream has been registered for it.
func (m *Manager) GetStreamID(netFlow, tcpFlow gopacket.Flow) uint64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	if id, ok := m.lookupMap[makeFlowKey(netFlow, tcpFlow)]; ok {
		return id
	}
	return m.lookupMap[makeFlowKey(netFlow.Reverse(), tcpFlow.Reverse())]
}

func (m *Manager) assembleLoop() {
	flushTicker := time.NewTicker(flushInterval)
	defer flushTicker.Stop()

	for {
		select {
		case <-m.stopCh:
			m.assembler.FlushAll()
			return
		case pkt, ok := <-m.inputCh:
			if !ok {
				return
			}
			m.assemble(pkt)
		case <-flushTicker.C:
			m.assembler.FlushOlderThan(time.Now().Add(-flushInterval))
		}
	}
}

func (m *Manager) assemble(pkt gopacket.Packet) {
	tcpLayer := pkt.Layer(layers.LayerTypeTCP)
	if tcpLayer == nil {
		return
	}
	m.assembler.AssembleWithTimestamp(
		pkt.NetworkLayer().NetworkFlow(),
		tcpLayer.(*layers.TCP),
		pkt.Metadata().Timestamp,
	)
}

func (m *Manager) registerStream(netFlow, tcpFlow gopacket.Flow) (uint64, *StreamData) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if id, ok := m.lookupMap[makeFlowKey(netFlow.Reverse(), tcpFlow.Reverse())]; ok {
		return id, m.streams[id]
	}

	m.nextID++
	id := m.nextID
	now := time.Now()
	sd := &StreamData{
		ID:        id,
		SrcAddr:   netFlow.Src().String(),
		DstAddr:   netFlow.Dst().String(),
		SrcPort:   portFromEndpoint(tcpFlow.Src()),
		DstPort:   portFromEndpoint(tcpFlow.Dst()),
		StartTime: now,
		LastSeen:  now,
	}
	m.streams[id] = sd
	m.lookupMap[makeFlowKey(netFlow, tcpFlow)] = id
	return id, sd
}

// portFromEndpoint reads a TCP port back out of a gopacket.Endpoint's
// raw 2-byte big-endian encoding.
func portFromEndpoint(ep gopacket.Endpoint) uint16 {
	raw := ep.Raw()
	if len(raw) != 2 {
		return 0
	}
	return binary.BigEndian.Uint16(raw)
}

func (m *Manager) appendData(id uint64, netFlow gopacket.Flow, data []byte) {
	m.mu.Lock()
	defer m.mu.Unlock()

	sd, ok := m.streams[id]
	if !ok {
		return
	}
	sd.LastSeen = time.Now()

	if netFlow.Src().String() == sd.SrcAddr {
		sd.ClientData = appendCapped(sd.ClientData, data, maxStreamBuffer)
	} else {
		sd.ServerData = appendCapped(sd.ServerData, data, maxStreamBuffer)
	}

	if sd.HTTPInfo == nil && len(sd.ClientData) > 0 {
		if tx, err := tryParseHTTP(sd.ClientData, sd.ServerData); err == nil && tx != nil {
			sd.HTTPInfo = tx
			if m.broadcaster != nil {
				m.broadcaster.PublishStreamEvent(id, tx)
			}
		}
	}
}

func appendCapped(buf, data []byte, limit int) []byte {
	remaining := limit - len(buf)
	if remaining <= 0 {
		return buf
	}
	if len(data) > remaining {
		data = data[:remaining]
	}
	return append(buf, data...)
}

// Reset clears all stream data.
func (m *Manager) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.streams = make(map[uint64]*StreamData)
	m.lookupMap = make(map[flowKey]uint64)
	m.nextID = 0
}

// streamFactory hands the assembler a reassemblyStream for every new TCP
// conversation it sees.
type streamFactory struct {
	mgr *Manager
}

func (f *streamFactory) New(netFlow, tcpFlow gopacket.Flow) tcpassembly.Stream {
	id, _ := f.mgr.registerStream(netFlow, tcpFlow)
	reader := tcpreader.NewReaderStream()
	rs := &reassemblyStream{id: id, mgr: f.mgr, netFlow: netFlow, reader: &reader}
	go rs.drain()
	return &reader
}

// reassemblyStream pulls reassembled bytes for one direction of one
// conversation off its reader and feeds them to the owning Manager.
type reassemblyStream struct {
	id      uint64
	mgr     *Manager
	netFlow gopacket.Flow
	reader  *tcpreader.ReaderStream
}

func (s *reassemblyStream) drain() {
	buf := make([]byte, 4096)
	for {
		n, err := s.reader.Read(buf)
		if n > 0 {
			chunk := make([]byte, n)
			copy(chunk, buf[:n])
			s.mgr.appendData(s.id, s.netFlow, chunk)
		}
		if err != nil {
			return
		}
	}
}
