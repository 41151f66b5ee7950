// Package reporter wraps zerolog to provide structured, leveled,
// field-tagged logging and fatal-error reporting for the run loop.
package reporter

import (
	"os"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// Reporter is the process-wide logging façade. Every log line carries
// the run's correlation id.
type Reporter struct {
	log   zerolog.Logger
	runID uuid.UUID
}

// New builds a Reporter writing to w (typically os.Stderr) at level.
func New(w *os.File, level zerolog.Level) *Reporter {
	zerolog.TimeFieldFormat = time.RFC3339Nano
	runID := uuid.New()
	log := zerolog.New(w).
		Level(level).
		With().
		Timestamp().
		Str("run_id", runID.String()).
		Logger()
	return &Reporter{log: log, runID: runID}
}

// RunID returns the correlation id threaded through log fields and
// broker messages.
func (r *Reporter) RunID() uuid.UUID { return r.runID }

// Info logs an informational event: statistics, suspend/resume
// notices. Does not affect control flow.
func (r *Reporter) Info(msg string, fields map[string]any) {
	ev := r.log.Info()
	addFields(ev, fields)
	ev.Msg(msg)
}

// Debug logs a low-level per-packet trace line, visible only when the
// logger's level is debug (--verbose, or log_level: debug in the config).
func (r *Reporter) Debug(msg string, fields map[string]any) {
	ev := r.log.Debug()
	addFields(ev, fields)
	ev.Msg(msg)
}

// Error logs a recoverable error.
func (r *Reporter) Error(msg string, err error, fields map[string]any) {
	ev := r.log.Error().Err(err)
	addFields(ev, fields)
	ev.Msg(msg)
}

// FatalErrorWithCore reports a runtime liveness failure (watchdog
// timeout) and then raises SIGABRT against the current process so a
// core is produced, instead of merely exiting non-zero.
func (r *Reporter) FatalErrorWithCore(msg string, fields map[string]any) {
	ev := r.log.Error().Str("severity", "fatal")
	addFields(ev, fields)
	ev.Msg(msg)
	_ = syscall.Kill(os.Getpid(), syscall.SIGABRT)
}

func addFields(ev *zerolog.Event, fields map[string]any) {
	for k, v := range fields {
		ev.Interface(k, v)
	}
}
