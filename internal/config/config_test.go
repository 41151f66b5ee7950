package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestLoadMergesOverDefaults(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "wireloop.yaml")
	require.NoError(t, os.WriteFile(path, []byte("interface: eth0\nwatchdog_interval: 5s\n"), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, "eth0", cfg.Interface)
	require.Equal(t, 5*time.Second, cfg.WatchdogInterval)
	require.Equal(t, 1000, cfg.MaxTimerExpires) // untouched default
}

func TestLoadEmptyPathReturnsDefaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)
	require.Equal(t, Default(), cfg)
}
