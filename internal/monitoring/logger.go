// Package monitoring carries the process-wide logging hooks. The default
// logger writes through the standard library; binaries redirect or silence
// it at startup, and the ops/diag/trace streams split debug output by
// audience.
package monitoring

import "log"

// Logf is the package-level logger. It defaults to log.Printf and may be
// replaced with SetLogger so tests and embedding binaries can redirect or
// mute output.
var Logf func(format string, v ...interface{}) = log.Printf

// SetLogger replaces the package logger. Passing nil installs a no-op logger.
func SetLogger(f func(format string, v ...interface{})) {
	if f == nil {
		Logf = func(string, ...interface{}) {}
		return
	}
	Logf = f
}
