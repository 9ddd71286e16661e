// Package poller wraps the OS readiness-notification facility behind a small
// declarative interface.
//
// Connection descriptors are registered one-shot: after a readiness event
// fires for a descriptor, its interest is disabled until the owner calls
// SetInterest again. Callers state what they want to wait for ({read, write,
// neither, both}) and the poller takes care of re-registration, so the
// bookkeeping hazard of forgetting to re-arm lives in exactly one place.
//
// Listener-style descriptors can instead be registered persistent, where read
// interest stays armed across events.
//
// Only the Linux epoll implementation is functional; other platforms get a
// stub that fails at construction.
package poller
