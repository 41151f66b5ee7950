// Package runloop ties the Clock, Watchdog, timer manager, event
// manager, IOSource registry, session layer, broker and anonymizer
// array together into the single run loop: init, packet dispatch, and
// the main loop's per-iteration steps.
package runloop

import (
	"context"
	"errors"
	"math/rand"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/gopacket"

	"wireloop/internal/anon"
	"wireloop/internal/broker"
	"wireloop/internal/clock"
	"wireloop/internal/config"
	"wireloop/internal/event"
	"wireloop/internal/iosource"
	"wireloop/internal/reporter"
	"wireloop/internal/session"
	"wireloop/internal/telemetry"
	"wireloop/internal/timer"
	"wireloop/internal/watchdog"
)

// networkTimeInitHandler receives the one-shot network_time_init event
// fired before any user handler sees the first packet.
type networkTimeInitHandler func(t float64)

// Runner owns every process-wide singleton and enforces their
// init → main loop → final stats → drain → delete ordering.
type Runner struct {
	cfg config.Config
	rep *reporter.Reporter

	Clock    *clock.Clock
	Timers   *timer.Manager
	Events   *event.Manager
	Registry *iosource.Registry
	Session  *session.Session
	Broker   *broker.Manager
	Anon     *anon.Array
	Metrics  *telemetry.Metrics

	watchdog *watchdog.Watchdog
	dumper   iosource.Dumper

	sigCh chan os.Signal

	currentPktSrc iosource.PacketSource
	currentIOSrc  iosource.Source
	currentPkt    gopacket.Packet

	networkTimeInitFired bool

	// OnNetworkTimeInit, if set, is invoked the first time a packet is
	// dispatched, before any other handler sees it.
	OnNetworkTimeInit networkTimeInitHandler
}

// New builds a Runner from cfg, wiring every collaborator but not yet
// opening any sources (call Init next).
func New(cfg config.Config, rep *reporter.Reporter, metrics *telemetry.Metrics) *Runner {
	r := &Runner{
		cfg:     cfg,
		rep:     rep,
		Clock:   clock.New(nowSeconds()),
		Timers:  timer.NewManager(),
		Broker:  broker.NewManager(rep.RunID()),
		Anon:    anon.New(cfg.AnonPrefixKey),
		Metrics: metrics,
	}
	r.Events = event.NewManager(func(rec any) {
		r.rep.Error("event handler panic", nil, map[string]any{"recovered": rec})
	})
	r.Registry = iosource.NewRegistry(r.handlePacket)
	r.Session = session.New(r.Events, r.Broker)
	r.Clock.OnSuspendChange = r.handleSuspendChange
	return r
}

// SuspendProcessing pauses packet dispatch (invariant: every suspend
// must be matched by a ContinueProcessing call before the packet source
// resumes). Exposed for collaborators — e.g. a future plugin or the
// broker — that need to hold up processing for an async operation.
func (r *Runner) SuspendProcessing() { r.Clock.SuspendProcessing() }

// ContinueProcessing resumes packet dispatch suspended by
// SuspendProcessing. The matching active-source nudge happens via
// handleSuspendChange once the suspension counter reaches zero.
func (r *Runner) ContinueProcessing() { r.Clock.ContinueProcessing() }

// handleSuspendChange is the clock.Clock.OnSuspendChange hook: it
// reports the transition and, on resume, makes exactly one
// ContinueAfterSuspend call against the registry's active packet
// source so a live or offline capture resumes delivering packets.
func (r *Runner) handleSuspendChange(suspended bool) {
	if suspended {
		r.rep.Info("processing suspended", nil)
		return
	}
	r.rep.Info("processing resumed", nil)
	if ps := r.Registry.GetPktSrc(); ps != nil {
		ps.ContinueAfterSuspend()
	}
}

// Init opens at most one of a live interface or a trace file, opens
// the packet dumper if configured, and arms the watchdog.
func (r *Runner) Init() error {
	switch {
	case r.cfg.Interface != "" && r.cfg.PcapInput != "":
		return r.fatalInit("init_run: both interface and pcap_input set", "", nil)
	case r.cfg.Interface != "":
		if _, err := r.Registry.OpenPktSrc(r.cfg.Interface, true, 0); err != nil {
			return r.fatalInit("failed to open live interface", r.cfg.Interface, err)
		}
		r.Clock.ReadingLive = true
		r.Clock.ReadingTraces = false
	case r.cfg.PcapInput != "":
		if _, err := r.Registry.OpenPktSrc(r.cfg.PcapInput, false, r.cfg.PseudoRealtime); err != nil {
			return r.fatalInit("failed to open trace file", r.cfg.PcapInput, err)
		}
		r.Clock.ReadingTraces = true
		r.Clock.ReadingLive = r.cfg.PseudoRealtime > 0
		r.Clock.PseudoRealtime = r.cfg.PseudoRealtime
	default:
		// timer-only mode: reading_live = reading_traces = false
	}

	if r.cfg.WatchDir != "" {
		dw, err := iosource.NewDirWatchSource(r.cfg.WatchDir, r.openDroppedTrace)
		if err != nil {
			return r.fatalInit("failed to watch directory", r.cfg.WatchDir, err)
		}
		r.Registry.Add(dw)
	}

	if r.cfg.PcapOutput != "" {
		d, err := r.Registry.OpenPktDumper(r.cfg.PcapOutput, false)
		if err != nil {
			return r.fatalInit("failed to open packet dumper", r.cfg.PcapOutput, err)
		}
		r.dumper = d
	}

	if r.cfg.DoWatchdog {
		r.watchdog = watchdog.New(r.Clock, watchdog.Config{
			Interval:           r.cfg.WatchdogInterval,
			Dump:               r.dumpWatchdogPacket,
			FinalStats:         r.finalStats,
			Shutdown:           func() { r.Session.Close() },
			Fatal:              r.reportWatchdogFatal,
			DispatchedSnapshot: func() int { return r.Clock.CurrentDispatched },
		})
		if err := r.watchdog.Start(); err != nil {
			return err
		}
	}

	return nil
}

// openDroppedTrace is the fsnotify callback: a new trace file appeared
// in the watched directory, so open it as a fresh packet source.
func (r *Runner) openDroppedTrace(path string) {
	if _, err := r.Registry.OpenPktSrc(path, false, r.cfg.PseudoRealtime); err != nil {
		r.rep.Error("failed to open dropped trace file", err, map[string]any{"path": path})
	}
}

// fatalInit reports an unrecoverable init_run failure and returns it to
// the caller rather than exiting the process itself: unlike a watchdog
// trip mid-run, an init failure has no packets in flight to lose, so
// cli is left to pick the process exit code (ExitCommandError) through
// the normal RunE error path.
func (r *Runner) fatalInit(msg, path string, err error) error {
	r.rep.Error(msg, err, map[string]any{"path": path, "severity": "fatal"})
	if err != nil {
		return err
	}
	return errors.New(msg)
}

// handlePacket is the iosource.PacketHandler every opened PacketSource
// calls back into to dispatch one packet through the clock, timers and
// session layer.
func (r *Runner) handlePacket(t float64, pkt gopacket.Packet, src iosource.PacketSource) {
	dispatchStart := time.Now()

	// update_network_time below is the authoritative, clamped write to
	// StartNetworkTime on its first call; no separate write here.
	if !r.networkTimeInitFired {
		r.networkTimeInitFired = true
		if r.OnNetworkTimeInit != nil {
			r.Events.Enqueue(func(args ...any) { r.OnNetworkTimeInit(args[0].(float64)) }, t)
		}
	}

	r.Clock.UpdateNetworkTime(maxFloat(t, r.Timers.Time()))

	r.currentPktSrc = src
	r.currentIOSrc = src
	r.currentPkt = pkt
	r.Clock.SetProcessingStartTime(t)

	budget := r.cfg.MaxTimerExpires - r.Clock.CurrentDispatched
	fired := r.Timers.Advance(r.Clock.NetworkTime(), budget)
	r.Clock.CurrentDispatched += fired
	if r.Metrics != nil && fired > 0 {
		r.Metrics.TimersFired.Add(context.Background(), int64(fired))
	}

	var sample *segmentSample
	if r.cfg.LoadSampleFreq > 0 && sampledThisPacket(r.cfg.LoadSampleFreq) {
		r.Events.Drain()
		sample = startSegmentSample("load-samp")
	}

	if r.dumper != nil {
		if err := r.dumper.Dump(pkt); err != nil {
			r.rep.Error("failed to dump packet", err, map[string]any{"path": r.dumper.Path()})
		}
	}

	r.Session.NextPacket(t, pkt)

	r.Events.Drain()

	if sample != nil {
		sample.stop(r.rep)
	}

	if r.Metrics != nil {
		r.Metrics.PacketsHandled.Add(context.Background(), 1)
		r.Metrics.DispatchLatency.Record(context.Background(), time.Since(dispatchStart).Seconds())
	}

	r.Clock.SetProcessingStartTime(0)
	r.Clock.CurrentDispatched = 0
	r.currentIOSrc = nil
	r.currentPktSrc = nil
	r.currentPkt = nil
}

// sampledThisPacket decides, via a uniform RNG threshold derived from
// 0xffffffff/freq, whether this packet's dispatch should be profiled.
func sampledThisPacket(freq int) bool {
	threshold := uint32(0xffffffff) / uint32(freq)
	return rand.Uint32() < threshold
}

func maxFloat(a, b float64) float64 {
	if a > b {
		return a
	}
	return b
}

// Run executes the main loop until the IOSource set empties (subject
// to ExitOnlyAfterTerm) or a termination signal arrives.
func (r *Runner) Run(ctx context.Context) error {
	r.sigCh = make(chan os.Signal, 1)
	signal.Notify(r.sigCh, syscall.SIGTERM, syscall.SIGINT)
	defer signal.Stop(r.sigCh)

	for r.Registry.TotalSize() > 0 || (r.cfg.ExitOnlyAfterTerm && !r.Clock.Terminating) {
		select {
		case <-r.sigCh:
			r.Clock.Terminating = true
		default:
		}

		ready := r.Registry.FindReady(ctx)
		if len(ready) > 0 {
			for _, src := range ready {
				if err := src.Process(ctx); err != nil && ctx.Err() != nil {
					return ctx.Err()
				}
				if ps, ok := src.(iosource.PacketSource); ok && !ps.IsOpen() {
					ps.Close()
					r.Registry.Remove(src)
				}
			}
		} else if r.Timers.Size() > 0 || r.Broker.Active() || r.cfg.ExitOnlyAfterTerm {
			if r.Clock.PseudoRealtime == 0 {
				now := nowSeconds()
				r.Clock.UpdateNetworkTime(maxFloat(now, r.Timers.Time()))
				r.Clock.CurrentTimestamp = now
				fired := r.Timers.Advance(r.Clock.NetworkTime(), r.cfg.MaxTimerExpires)
				if r.Metrics != nil && fired > 0 {
					r.Metrics.TimersFired.Add(ctx, int64(fired))
				}
			} else {
				time.Sleep(10 * time.Millisecond)
			}
		} else {
			time.Sleep(10 * time.Millisecond)
		}

		r.Events.Drain()

		r.Clock.SetProcessingStartTime(0)
		r.Clock.CurrentDispatched = 0
		r.currentIOSrc = nil

		if r.Clock.Terminating {
			break
		}

		if !r.Clock.ReadingTraces {
			r.Clock.HavePendingTimers = r.Timers.Size() > 0
		}

		if r.Clock.PseudoRealtime != 0 && r.Registry.GetPktSrc() == nil {
			r.Clock.PseudoRealtime = 0
		}

		r.publishStatus()
	}

	r.finalStats()
	r.Events.Drain()
	return r.teardown()
}

func (r *Runner) publishStatus() {
	if !r.Broker.Active() {
		return
	}
	r.Broker.Publish(broker.StatusMessage{
		NetworkTime: r.Clock.NetworkTime(),
		Dispatched:  r.Clock.CurrentDispatched,
		Flows:       len(r.Session.Flows.GetFlows()),
		Terminating: r.Clock.Terminating,
	})
}

// finalStats captures final packet statistics immediately on exit, so
// pending timer-drain time is not charged against drop counts.
func (r *Runner) finalStats() {
	if ps := r.Registry.GetPktSrc(); ps != nil {
		stats := ps.Statistics()
		r.rep.Info("final packet statistics", map[string]any{
			"received": stats.Received,
			"dropped":  stats.Dropped,
		})
		if r.Metrics != nil && stats.Dropped > 0 {
			r.Metrics.PacketsDropped.Add(context.Background(), int64(stats.Dropped))
		}
	}
}

// teardown releases the anonymizer array, closes the session layer
// and dumper, and stops the watchdog — the last stage of the
// init → main loop → final stats → drain → delete ordering.
func (r *Runner) teardown() error {
	r.Session.Close()
	r.Anon.Release()
	if r.dumper != nil {
		_ = r.dumper.Close()
	}
	if r.watchdog != nil {
		r.watchdog.Stop()
	}
	return nil
}

// dumpWatchdogPacket persists the packet in flight when the watchdog
// trips to watchdog-pkt.pcap, opened on demand, so the cause survives
// the abort.
func (r *Runner) dumpWatchdogPacket() error {
	if r.currentPkt == nil {
		return nil
	}
	d, err := iosource.OpenPcapDumper("watchdog-pkt.pcap", false)
	if err != nil {
		return err
	}
	defer d.Close()
	return d.Dump(r.currentPkt)
}

func (r *Runner) reportWatchdogFatal(info watchdog.TripInfo) {
	r.rep.FatalErrorWithCore(info.Message, map[string]any{
		"processing_start_time": info.ProcessingStartTime,
		"wall_time":              info.WallTime,
		"dispatched":             info.Dispatched,
	})
}

func nowSeconds() float64 {
	return float64(time.Now().UnixNano()) / 1e9
}
