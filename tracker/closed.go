package tracker

import "sync/atomic"

// ClosedFlag reports whether a request has been retired (its response
// was observed or it was explicitly removed). Write handles check it
// before sending an update or response: once set, the request ID may
// already have been reused for something else.
type ClosedFlag struct {
	value atomic.Bool
}

func newClosedFlag() *ClosedFlag {
	return &ClosedFlag{}
}

// Set marks the flag closed.
func (f *ClosedFlag) Set() { f.value.Store(true) }

// IsSet reports whether the flag has been set.
func (f *ClosedFlag) IsSet() bool { return f.value.Load() }
