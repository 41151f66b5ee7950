package flow

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestTrackCreatesFlowOnFirstPacket(t *testing.T) {
	tr := NewTracker()
	id, f := tr.Track(1000, "10.0.0.1", "10.0.0.2", 1234, 80, "TCP", 100, TCPFlags{SYN: true})
	assert.Equal(t, uint64(1), id)
	assert.Equal(t, TCPStateSynSent, f.TCPState)
	assert.Equal(t, 1, f.PacketCount)
}

func TestTrackMergesBothDirectionsIntoOneFlow(t *testing.T) {
	tr := NewTracker()
	id1, _ := tr.Track(1000, "10.0.0.1", "10.0.0.2", 1234, 80, "TCP", 100, TCPFlags{SYN: true})
	id2, f := tr.Track(1010, "10.0.0.2", "10.0.0.1", 80, 1234, "TCP", 60, TCPFlags{SYN: true, ACK: true})
	assert.Equal(t, id1, id2)
	assert.Equal(t, 2, f.PacketCount)
	assert.Equal(t, 1, f.FwdPackets)
	assert.Equal(t, 1, f.RevPackets)
}

func TestTCPStateAdvancesThroughHandshake(t *testing.T) {
	tr := NewTracker()
	tr.Track(0, "a", "b", 1, 2, "TCP", 0, TCPFlags{SYN: true})
	tr.Track(1, "b", "a", 2, 1, "TCP", 0, TCPFlags{SYN: true, ACK: true})
	_, f := tr.Track(2, "a", "b", 1, 2, "TCP", 0, TCPFlags{ACK: true})
	assert.Equal(t, TCPStateEstablished, f.TCPState)
}

func TestRSTClosesFlowFromAnyState(t *testing.T) {
	tr := NewTracker()
	tr.Track(0, "a", "b", 1, 2, "TCP", 0, TCPFlags{SYN: true})
	_, f := tr.Track(1, "a", "b", 1, 2, "TCP", 0, TCPFlags{RST: true})
	assert.Equal(t, TCPStateClosed, f.TCPState)
}

func TestEvictIdleRemovesStaleFlowsAtCapacity(t *testing.T) {
	tr := NewTracker()
	tr.maxFlows = 1
	tr.idleExpiry = 100
	tr.Track(0, "a", "b", 1, 2, "UDP", 0, TCPFlags{})
	// second flow arrives well past idleExpiry later, forcing eviction of the first
	id2, _ := tr.Track(1000, "c", "d", 3, 4, "UDP", 0, TCPFlags{})
	flows := tr.GetFlows()
	assert.Len(t, flows, 1)
	assert.Equal(t, id2, flows[0].ID)
}

func TestMakeFlowKeyNormalizesBothPortsRegardlessOfDirection(t *testing.T) {
	fwd := MakeFlowKey("10.0.0.1", "10.0.0.2", 1234, 80, "TCP")
	rev := MakeFlowKey("10.0.0.2", "10.0.0.1", 80, 1234, "TCP")
	assert.Equal(t, fwd, rev)
	assert.Equal(t, uint16(1234), rev.Port1)
	assert.Equal(t, uint16(80), rev.Port2)
}

func TestResetClearsFlowTable(t *testing.T) {
	tr := NewTracker()
	tr.Track(0, "a", "b", 1, 2, "TCP", 0, TCPFlags{})
	tr.Reset()
	assert.Empty(t, tr.GetFlows())
}
