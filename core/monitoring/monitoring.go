// Package monitoring routes errors, panics and lifecycle breadcrumbs to the
// configured error tracker. The default monitor discards everything.
package monitoring

import "time"

// Monitor defines methods used for error reporting.
type Monitor interface {
	CaptureException(err error, tags map[string]string)
	// Breadcrumb records a step of the booking lifecycle; it is attached to
	// the next captured error.
	Breadcrumb(category, message string, data map[string]any)
	Recover()
	Flush(timeout time.Duration)
}

type NopMonitor struct{}

func (NopMonitor) CaptureException(error, map[string]string)  {}
func (NopMonitor) Breadcrumb(string, string, map[string]any) {}
func (NopMonitor) Recover()                                   {}
func (NopMonitor) Flush(time.Duration)                        {}

var current Monitor = NopMonitor{}

// Init sets the global monitor implementation. A nil monitor is ignored.
func Init(m Monitor) {
	if m != nil {
		current = m
	}
}

// CaptureException records err with optional tags. Nil errors are dropped.
func CaptureException(err error, tags map[string]string) {
	if err == nil {
		return
	}
	current.CaptureException(err, tags)
}

// Capture reports a failed operation of a component.
func Capture(component, op string, err error) {
	CaptureException(err, map[string]string{"component": component, "op": op})
}

// Breadcrumb forwards a lifecycle step to the current monitor.
func Breadcrumb(category, message string, data map[string]any) {
	current.Breadcrumb(category, message, data)
}

// Recover captures panics in goroutines and re-panics.
func Recover() {
	current.Recover()
}

// Flush waits up to d for buffered events to be sent.
func Flush(d time.Duration) {
	current.Flush(d)
}
