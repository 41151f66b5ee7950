package clock

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestUpdateNetworkTimeMonotonic(t *testing.T) {
	c := New(100.0)
	var seen []float64
	c.OnUpdateNetworkTime = func(nt float64) { seen = append(seen, nt) }

	times := []float64{1.0, 1.5, 1.5, 3.0}
	last := 0.0
	for _, ts := range times {
		c.UpdateNetworkTime(ts)
		require.GreaterOrEqual(t, c.NetworkTime(), ts)
		require.GreaterOrEqual(t, c.NetworkTime(), last)
		last = c.NetworkTime()
	}
	assert.Equal(t, times, seen)
	assert.Equal(t, 1.0, c.StartNetworkTime)
}

func TestProcessingStartTimeIdleBetweenDispatches(t *testing.T) {
	c := New(0)
	assert.Equal(t, 0.0, c.ProcessingStartTime())
	c.SetProcessingStartTime(5.0)
	assert.Equal(t, 5.0, c.ProcessingStartTime())
	c.SetProcessingStartTime(0)
	assert.Equal(t, 0.0, c.ProcessingStartTime())
}

func TestSuspendContinueBalances(t *testing.T) {
	c := New(0)
	notified := 0
	c.OnSuspendChange = func(suspended bool) {
		if !suspended {
			notified++
		}
	}

	const n = 4
	c.SuspendProcessing()
	for i := 0; i < n-1; i++ {
		c.SuspendProcessing()
	}
	assert.True(t, c.IsProcessingSuspended())

	for i := 0; i < n; i++ {
		c.ContinueProcessing()
	}
	assert.False(t, c.IsProcessingSuspended())
	assert.Equal(t, 1, notified)
}
