package telemetry

import (
	"bytes"
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestNewBuildsAllInstruments(t *testing.T) {
	var buf bytes.Buffer
	m, err := New(&buf, time.Minute)
	require.NoError(t, err)
	require.NotNil(t, m.DispatchLatency)
	require.NotNil(t, m.PacketsHandled)
	require.NotNil(t, m.TimersFired)
	require.NotNil(t, m.EventsDrained)
	require.NotNil(t, m.PacketsDropped)
	require.NotNil(t, m.QueueDepth)

	require.NoError(t, m.Shutdown(context.Background()))
}
