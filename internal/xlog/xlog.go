// Package xlog provides leveled trace/info logging: plain lines behind a
// process-wide level gate a caller can silence.
package xlog

import (
	"log"
	"os"
)

// Level controls verbosity. Info enables Infof output (the interpreters
// log each function call at this level); Trace additionally enables
// Tracef output; Silent emits nothing.
type Level int

const (
	Silent Level = iota
	Info
	Trace
)

var (
	level  = Info
	logger = log.New(os.Stderr, "", 0)
)

// SetLevel sets the process-wide verbosity.
func SetLevel(l Level) { level = l }

// Infof logs an info-level message.
func Infof(format string, args ...interface{}) {
	if level >= Info {
		logger.Printf("[info] "+format, args...)
	}
}

// Tracef logs a trace-level message.
func Tracef(format string, args ...interface{}) {
	if level >= Trace {
		logger.Printf("[trace] "+format, args...)
	}
}
