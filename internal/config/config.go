// Package config loads the YAML-file + flag-driven configuration for
// the wireloop CLI.
package config

import (
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the top-level configuration document.
type Config struct {
	Interface         string        `yaml:"interface"`
	PcapInput         string        `yaml:"pcap_input"`
	PcapOutput        string        `yaml:"pcap_output"`
	WatchDir          string        `yaml:"watch_dir"`
	DoWatchdog        bool          `yaml:"watchdog"`
	WatchdogInterval  time.Duration `yaml:"watchdog_interval"`
	ExitOnlyAfterTerm bool          `yaml:"exit_only_after_terminate"`
	PseudoRealtime    float64       `yaml:"pseudo_realtime"`
	MaxTimerExpires   int           `yaml:"max_timer_expires"`
	LoadSampleFreq    int           `yaml:"load_sample_freq"`
	BrokerListen      string        `yaml:"broker_listen"`
	LogLevel          string        `yaml:"log_level"`
	AnonPrefixKey     uint32        `yaml:"anon_prefix_key"`
}

// Default returns a Config with the run loop's baked-in defaults.
func Default() Config {
	return Config{
		DoWatchdog:       true,
		WatchdogInterval: 10 * time.Second,
		MaxTimerExpires:  1000,
		LoadSampleFreq:   20,
		BrokerListen:     ":9911",
		LogLevel:         "info",
	}
}

// Load reads a YAML document at path and merges it over Default().
func Load(path string) (Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, err
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, err
	}
	return cfg, nil
}
