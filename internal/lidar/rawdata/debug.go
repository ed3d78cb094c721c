package rawdata

import (
	"io"
	"log"
	"sync/atomic"
	"time"

	"github.com/banshee-data/velodyne.report/internal/timeutil"
)

var (
	opsLogger   *log.Logger
	diagLogger  *log.Logger
	traceLogger *log.Logger
)

// SetLogWriters configures the three logging streams for the rawdata package.
// Pass nil for any writer to disable that stream. Call before building a
// Decoder; the loggers are not swapped atomically.
func SetLogWriters(ops, diag, trace io.Writer) {
	opsLogger = newLogger("[rawdata] ", ops)
	diagLogger = newLogger("[rawdata] ", diag)
	traceLogger = newLogger("[rawdata] ", trace)
}

func newLogger(prefix string, w io.Writer) *log.Logger {
	if w == nil {
		return nil
	}
	return log.New(w, prefix, log.LstdFlags|log.Lmicroseconds)
}

// opsf logs to the ops stream (actionable warnings, errors, data loss).
func opsf(format string, args ...interface{}) {
	if opsLogger != nil {
		opsLogger.Printf(format, args...)
	}
}

// diagf logs to the diag stream (day-to-day diagnostics, tuning context).
func diagf(format string, args ...interface{}) {
	if diagLogger != nil {
		diagLogger.Printf(format, args...)
	}
}

// tracef logs to the trace stream (high-frequency packet telemetry).
func tracef(format string, args ...interface{}) {
	if traceLogger != nil {
		traceLogger.Printf(format, args...)
	}
}

// DO NOT add Debugf, that's an anti-pattern. Each callsite needs to use opsf, diagf, or tracef.

// throttle admits at most one event per interval. It is safe for concurrent
// use; losers of a race within the same window are simply suppressed.
type throttle struct {
	clock      timeutil.Clock
	interval   time.Duration
	last       atomic.Int64 // unix nanos of the last admitted event, 0 = never
	suppressed atomic.Int64
}

func newThrottle(clock timeutil.Clock, interval time.Duration) *throttle {
	return &throttle{clock: clock, interval: interval}
}

// allow reports whether an event may be emitted now, and how many events
// were suppressed since the last admitted one.
func (t *throttle) allow() (bool, int64) {
	now := t.clock.Now().UnixNano()
	last := t.last.Load()
	if last != 0 && now-last < int64(t.interval) {
		t.suppressed.Add(1)
		return false, 0
	}
	if !t.last.CompareAndSwap(last, now) {
		t.suppressed.Add(1)
		return false, 0
	}
	return true, t.suppressed.Swap(0)
}
