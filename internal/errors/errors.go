// Package errors defines the error taxonomy shared by the resolver, the
// dependency collector, the render engine and the orchestrator.
//
// Errors fall in three groups: fatal to a render (missing page or layout,
// parse failures, data file failures), recoverable during collection (a
// helper module that fails to load) and render-time structural errors
// (missing helper, filter or partial). All of them carry the responsible
// address and, where known, the line inside the template.
package errors

import (
	"errors"
	"sync"

	"go.uber.org/multierr"
)

// New, Is and As forward to the standard library so callers importing this
// package under the name errors keep them.
var (
	New = errors.New
	Is  = errors.Is
	As  = errors.As
)

// WarningCollector accumulates recoverable errors raised while collecting
// dependencies for one render. It is safe for concurrent use by sibling
// collection tasks.
type WarningCollector struct {
	errors []error
	mutex  sync.RWMutex
}

// NewWarningCollector creates an empty collector.
func NewWarningCollector() *WarningCollector {
	return &WarningCollector{errors: make([]error, 0)}
}

// Add records err. Nil errors are ignored.
func (wc *WarningCollector) Add(err error) {
	if err == nil {
		return
	}
	wc.mutex.Lock()
	defer wc.mutex.Unlock()
	wc.errors = append(wc.errors, err)
}

// All returns a copy of every recorded error.
func (wc *WarningCollector) All() []error {
	wc.mutex.RLock()
	defer wc.mutex.RUnlock()
	result := make([]error, len(wc.errors))
	copy(result, wc.errors)
	return result
}

// Count returns the number of recorded errors.
func (wc *WarningCollector) Count() int {
	wc.mutex.RLock()
	defer wc.mutex.RUnlock()
	return len(wc.errors)
}

// HasErrors returns true if anything was recorded.
func (wc *WarningCollector) HasErrors() bool {
	wc.mutex.RLock()
	defer wc.mutex.RUnlock()
	return len(wc.errors) > 0
}

// Combined folds every recorded error into one, or returns nil.
func (wc *WarningCollector) Combined() error {
	wc.mutex.RLock()
	defer wc.mutex.RUnlock()
	return multierr.Combine(wc.errors...)
}

// ForAddress returns the recorded errors attributed to address.
func (wc *WarningCollector) ForAddress(address string) []error {
	wc.mutex.RLock()
	defer wc.mutex.RUnlock()
	var out []error
	for _, err := range wc.errors {
		if qe, ok := err.(*QuiltError); ok && qe.Address == address {
			out = append(out, err)
		}
	}
	return out
}
