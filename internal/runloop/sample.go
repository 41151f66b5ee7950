package runloop

import (
	"time"

	"wireloop/internal/reporter"
)

// segmentSample times a single load-sampled dispatch and reports the
// elapsed wall time once it ends, standing in for a profiling logger
// that a production build would wire to its own sample log.
type segmentSample struct {
	label string
	start time.Time
}

// startSegmentSample begins timing label. Call stop when the sampled
// span ends.
func startSegmentSample(label string) *segmentSample {
	return &segmentSample{label: label, start: time.Now()}
}

// stop reports the elapsed time since startSegmentSample through rep.
func (s *segmentSample) stop(rep *reporter.Reporter) {
	rep.Debug("load sample", map[string]any{
		"segment":    s.label,
		"elapsed_us": time.Since(s.start).Microseconds(),
	})
}
