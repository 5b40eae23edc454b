package otel

import (
	"os"
	"sync/atomic"
)

// traceEnabled gates per-keystroke ui.key events.
var traceEnabled atomic.Bool

func init() {
	traceEnabled.Store(os.Getenv("PATIENTDESK_TRACE") != "")
}

// TraceEnabled reports whether PATIENTDESK_TRACE is set.
func TraceEnabled() bool {
	return traceEnabled.Load()
}

// SetTraceEnabled overrides the environment setting (the --trace flag).
func SetTraceEnabled(v bool) {
	traceEnabled.Store(v)
}
