// Package watchdog implements the periodic liveness check that aborts
// the process if a single packet's processing exceeds a bounded
// interval.
//
// A SIGALRM handler bound by strict async-signal-safety rules — no
// allocation, no locks, no floating-point formatted I/O — would
// normally have to run the actual trip check. Go's signal delivery
// already moves the OS signal trampoline out of user code: os/signal
// hands the notification to an ordinary goroutine on the runtime's own
// dedicated signal-forwarding thread, which keeps delivering even
// while the main loop goroutine is pegged in a tight spin, so there is
// no equivalent of "running inside the handler" here. What this
// package keeps deliberately is the timestamp formatting discipline:
// fatal messages are built from integer seconds/microseconds via
// strconv, never through fmt's floating-point verbs, even though Go's
// goroutine-based delivery no longer requires it for safety.
package watchdog

import (
	"math"
	"os"
	"os/signal"
	"strconv"
	"sync/atomic"
	"syscall"
	"time"

	"golang.org/x/sys/unix"

	"wireloop/internal/clock"
)

// TripInfo describes the state observed when the watchdog decides the
// monitor is wedged.
type TripInfo struct {
	ProcessingStartTime float64
	WallTime            float64
	Dispatched          int
	Message             string
}

// Config wires the watchdog to its collaborators. All fields are
// optional except Interval.
type Config struct {
	Interval time.Duration

	// Dump attempts to persist the offending packet to a fallback
	// capture file, opened on demand, before the process aborts.
	Dump func() error
	// FinalStats runs final packet-statistics collection.
	FinalStats func()
	// Shutdown performs orderly teardown before the abort.
	Shutdown func()
	// Fatal reports the fatal message (e.g. via the reporter) before
	// Abort runs.
	Fatal func(info TripInfo)
	// Abort terminates the process. Defaults to raising SIGABRT against
	// the current process so a core is produced. Tests override this
	// to avoid actually aborting the test binary.
	Abort func()

	// DispatchedSnapshot returns the current per-packet dispatched
	// count for inclusion in the fatal message. Read on a best-effort
	// basis: by the time it's consulted the process is already
	// aborting, so an exact-atomicity guarantee isn't needed.
	DispatchedSnapshot func() int
}

// Watchdog ticks every Interval and compares the clock's
// ProcessingStartTime against the value observed on the previous tick.
type Watchdog struct {
	clock  *clock.Clock
	cfg    Config
	sigCh  chan os.Signal
	stopCh chan struct{}

	lastProcTime atomic.Uint64 // float64 bits, "last_watchdog_proc_time"
	tripped      atomic.Bool
}

// New returns a Watchdog bound to c, not yet started.
func New(c *clock.Clock, cfg Config) *Watchdog {
	if cfg.Abort == nil {
		cfg.Abort = defaultAbort
	}
	return &Watchdog{
		clock:  c,
		cfg:    cfg,
		stopCh: make(chan struct{}),
	}
}

func defaultAbort() {
	_ = unix.Kill(os.Getpid(), syscall.SIGABRT)
}

// Start arms the repeating interval timer and launches the watchdog's
// goroutine. It re-arms itself automatically: the kernel interval timer
// fires on every period without the watchdog having to reschedule.
func (w *Watchdog) Start() error {
	w.sigCh = make(chan os.Signal, 1)
	signal.Notify(w.sigCh, syscall.SIGALRM)

	interval := durationToTimeval(w.cfg.Interval)
	it := unix.Itimerval{Value: interval, Interval: interval}
	if _, err := unix.Setitimer(unix.ITIMER_REAL, it); err != nil {
		signal.Stop(w.sigCh)
		return err
	}

	go w.loop()
	return nil
}

// Stop disarms the timer and stops the watchdog goroutine.
func (w *Watchdog) Stop() {
	_, _ = unix.Setitimer(unix.ITIMER_REAL, unix.Itimerval{})
	signal.Stop(w.sigCh)
	close(w.stopCh)
}

// Tripped reports whether the watchdog has already decided the process
// is wedged.
func (w *Watchdog) Tripped() bool { return w.tripped.Load() }

func (w *Watchdog) loop() {
	for {
		select {
		case <-w.stopCh:
			return
		case <-w.sigCh:
			w.tick()
		}
	}
}

// tick runs one watchdog check. It is unexported, and this package's
// tests call it directly to drive the watchdog without relying on real
// signal delivery.
func (w *Watchdog) tick() {
	cur := floatBits(w.clock.ProcessingStartTime())
	last := w.lastProcTime.Load()

	if cur != 0 && cur == last {
		w.trip()
		return
	}
	w.lastProcTime.Store(cur)
}

func (w *Watchdog) trip() {
	if !w.tripped.CompareAndSwap(false, true) {
		return
	}

	start := w.clock.ProcessingStartTime()
	dispatched := 0
	if w.cfg.DispatchedSnapshot != nil {
		dispatched = w.cfg.DispatchedSnapshot()
	}
	info := TripInfo{
		ProcessingStartTime: start,
		WallTime:            nowSeconds(),
		Dispatched:          dispatched,
	}
	info.Message = buildFatalMessage(info.WallTime, info.ProcessingStartTime, info.Dispatched)

	if w.cfg.Dump != nil {
		_ = w.cfg.Dump()
	}
	if w.cfg.FinalStats != nil {
		w.cfg.FinalStats()
	}
	if w.cfg.Shutdown != nil {
		w.cfg.Shutdown()
	}
	if w.cfg.Fatal != nil {
		w.cfg.Fatal(info)
	}
	w.cfg.Abort()
}

func floatBits(f float64) uint64 { return math.Float64bits(f) }

// buildFatalMessage formats the watchdog's fatal message using only
// integer seconds/microseconds splits, never a floating-point format
// verb, keeping to signal-safe formatting discipline.
func buildFatalMessage(wallTime, procStart float64, dispatched int) string {
	buf := make([]byte, 0, 96)
	buf = append(buf, "watchdog: t = "...)
	buf = appendSecsMicros(buf, wallTime)
	buf = append(buf, ", start = "...)
	buf = appendSecsMicros(buf, procStart)
	buf = append(buf, ", dispatched = "...)
	buf = strconv.AppendInt(buf, int64(dispatched), 10)
	return string(buf)
}

func appendSecsMicros(buf []byte, t float64) []byte {
	secs, micros := splitSecsMicros(t)
	buf = strconv.AppendInt(buf, secs, 10)
	buf = append(buf, '.')
	if micros < 100000 {
		buf = append(buf, '0')
	}
	if micros < 10000 {
		buf = append(buf, '0')
	}
	if micros < 1000 {
		buf = append(buf, '0')
	}
	if micros < 100 {
		buf = append(buf, '0')
	}
	if micros < 10 {
		buf = append(buf, '0')
	}
	return strconv.AppendInt(buf, micros, 10)
}

func splitSecsMicros(t float64) (secs int64, micros int64) {
	secs = int64(t)
	frac := t - float64(secs)
	micros = int64(frac * 1e6)
	if micros < 0 {
		micros = 0
	}
	return
}

func durationToTimeval(d time.Duration) unix.Timeval {
	secs := int64(d / time.Second)
	usec := int64((d % time.Second) / time.Microsecond)
	return unix.Timeval{Sec: secs, Usec: usec}
}

func nowSeconds() float64 {
	return float64(time.Now().UnixNano()) / 1e9
}
