package stream

import (
	"net"
	"testing"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingBroadcaster struct {
	streamID uint64
	tx       *HTTPTransaction
	calls    int
}

func (r *recordingBroadcaster) PublishStreamEvent(streamID uint64, httpInfo *HTTPTransaction) {
	r.calls++
	r.streamID = streamID
	r.tx = httpInfo
}

func buildTCPFlows(t *testing.T, srcIP, dstIP string, srcPort, dstPort uint16) (gopacket.Flow, gopacket.Flow) {
	t.Helper()
	eth := &layers.Ethernet{EthernetType: layers.EthernetTypeIPv4, SrcMAC: net.HardwareAddr{0, 0, 0, 0, 0, 1}, DstMAC: net.HardwareAddr{0, 0, 0, 0, 0, 2}}
	ip := &layers.IPv4{Version: 4, TTL: 64, Protocol: layers.IPProtocolTCP, SrcIP: net.ParseIP(srcIP), DstIP: net.ParseIP(dstIP)}
	tcp := &layers.TCP{SrcPort: layers.TCPPort(srcPort), DstPort: layers.TCPPort(dstPort), ACK: true, Seq: 1}
	require.NoError(t, tcp.SetNetworkLayerForChecksum(ip))

	buf := gopacket.NewSerializeBuffer()
	opts := gopacket.SerializeOptions{ComputeChecksums: true, FixLengths: true}
	require.NoError(t, gopacket.SerializeLayers(buf, opts, eth, ip, tcp))

	pkt := gopacket.NewPacket(buf.Bytes(), layers.LayerTypeEthernet, gopacket.Default)
	tcpLayer := pkt.Layer(layers.LayerTypeTCP).(*layers.TCP)
	return pkt.NetworkLayer().NetworkFlow(), tcpLayer.TransportFlow()
}

func TestRegisterStreamReusesIDForReverseDirection(t *testing.T) {
	m := NewManager(nil)
	netFlow, tcpFlow := buildTCPFlows(t, "10.0.0.1", "10.0.0.2", 51000, 80)

	id, sd := m.registerStream(netFlow, tcpFlow)
	assert.Equal(t, uint64(1), id)
	assert.Equal(t, "10.0.0.1", sd.SrcAddr)
	assert.Equal(t, "10.0.0.2", sd.DstAddr)

	// The reverse direction must resolve to the same stream, not a new one.
	reverseID, _ := m.registerStream(netFlow.Reverse(), tcpFlow.Reverse())
	assert.Equal(t, id, reverseID)
}

func TestGetStreamIDResolvesEitherDirection(t *testing.T) {
	m := NewManager(nil)
	netFlow, tcpFlow := buildTCPFlows(t, "10.0.0.1", "10.0.0.2", 51000, 80)
	id, _ := m.registerStream(netFlow, tcpFlow)

	assert.Equal(t, id, m.GetStreamID(netFlow, tcpFlow))
	assert.Equal(t, id, m.GetStreamID(netFlow.Reverse(), tcpFlow.Reverse()))
}

func TestGetStreamIDReturnsZeroForUnknownFlow(t *testing.T) {
	m := NewManager(nil)
	netFlow, tcpFlow := buildTCPFlows(t, "10.0.0.1", "10.0.0.2", 51000, 80)
	assert.Equal(t, uint64(0), m.GetStreamID(netFlow, tcpFlow))
}

func TestAppendDataRecognizesHTTPRequestAndPublishesStreamEvent(t *testing.T) {
	bc := &recordingBroadcaster{}
	m := NewManager(bc)
	netFlow, tcpFlow := buildTCPFlows(t, "10.0.0.1", "10.0.0.2", 51000, 80)
	id, _ := m.registerStream(netFlow, tcpFlow)

	req := "GET /widgets HTTP/1.1\r\nHost: example.com\r\n\r\n"
	m.appendData(id, netFlow, []byte(req))

	resp := m.GetStreamData(id)
	require.NotNil(t, resp)
	require.NotNil(t, resp.HTTPInfo)
	assert.Equal(t, "GET", resp.HTTPInfo.Method)
	assert.Equal(t, "/widgets", resp.HTTPInfo.URL)

	assert.Equal(t, 1, bc.calls)
	assert.Equal(t, id, bc.streamID)
}

func TestAppendDataCapsBufferAtMaxStreamBuffer(t *testing.T) {
	m := NewManager(nil)
	netFlow, tcpFlow := buildTCPFlows(t, "10.0.0.1", "10.0.0.2", 51000, 80)
	id, _ := m.registerStream(netFlow, tcpFlow)

	over := make([]byte, maxStreamBuffer+1024)
	m.appendData(id, netFlow, over)

	sd := m.streams[id]
	assert.Len(t, sd.ClientData, maxStreamBuffer)
}

func TestGetStreamDataReturnsNilForUnknownID(t *testing.T) {
	m := NewManager(nil)
	assert.Nil(t, m.GetStreamData(999))
}

func TestResetClearsAllStreamState(t *testing.T) {
	m := NewManager(nil)
	netFlow, tcpFlow := buildTCPFlows(t, "10.0.0.1", "10.0.0.2", 51000, 80)
	m.registerStream(netFlow, tcpFlow)

	m.Reset()

	assert.Empty(t, m.streams)
	assert.Empty(t, m.lookupMap)
	assert.Equal(t, uint64(0), m.GetStreamID(netFlow, tcpFlow))
}
