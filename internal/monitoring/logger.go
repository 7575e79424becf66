// Package monitoring holds the diagnostic logger and the small counters the
// acquisition components report through.
package monitoring

import (
	"log"
	"sync/atomic"
)

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

// Component returns a logger that prefixes every line with "[name] ". The
// returned func always routes through the current Logf, so SetLogger applies
// to loggers created before the swap.
func Component(name string) func(format string, v ...interface{}) {
	prefix := "[" + name + "] "
	return func(format string, v ...interface{}) {
		Logf(prefix+format, v...)
	}
}

// Counter is a monotonically increasing tally safe for concurrent use.
type Counter struct {
	n atomic.Uint64
}

// Inc adds one and returns the new value.
func (c *Counter) Inc() uint64 { return c.n.Add(1) }

// Add adds n and returns the new value.
func (c *Counter) Add(n uint64) uint64 { return c.n.Add(n) }

// Load returns the current value.
func (c *Counter) Load() uint64 { return c.n.Load() }

// Reset sets the counter back to zero.
func (c *Counter) Reset() { c.n.Store(0) }
