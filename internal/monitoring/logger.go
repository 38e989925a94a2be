package monitoring

import (
	"io"
	"log"
)

// LogPrefix tags every line written by the controller so it can be picked out
// of the shared system journal.
const LogPrefix = "[PET_FEEDER_PI] "

// Logf is the package-level diagnostic logger. It defaults to log.Printf but may
// be replaced by SetLogger. Tests or production code can redirect or mute it.
var Logf func(format string, v ...interface{}) = log.Printf

// SetLogger replaces the package logger. Passing nil will set a no-op logger.
func SetLogger(f func(format string, v ...interface{})) {
	if f == nil {
		Logf = func(string, ...interface{}) {}
		return
	}
	Logf = f
}

// NewPrefixLogger returns a Logf-compatible function writing prefixed lines
// to w. Timestamps are left to the journal.
func NewPrefixLogger(w io.Writer, prefix string) func(format string, v ...interface{}) {
	return log.New(w, prefix, log.Lmsgprefix).Printf
}
